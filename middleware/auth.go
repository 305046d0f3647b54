// Copyright 2021-2022
// SPDX-License-Identifier: Apache-2.0
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package middleware

import (
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/lestrrat-go/jwx/jwa"
	"github.com/lestrrat-go/jwx/jwt"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

// SessionCookie is the name of the cookie holding the session token.
const SessionCookie = "session"

func sessionSecret() []byte {
	return []byte(viper.GetString("auth.secret"))
}

func sessionDuration() time.Duration {
	if d := viper.GetDuration("auth.session_duration"); d > 0 {
		return d
	}
	return 7 * 24 * time.Hour
}

// SessionToken mints a signed token identifying the user.
func SessionToken(userID int32) (string, error) {
	now := time.Now()
	tok, err := jwt.NewBuilder().
		Subject(strconv.FormatInt(int64(userID), 10)).
		IssuedAt(now).
		Expiration(now.Add(sessionDuration())).
		Build()
	if err != nil {
		return "", err
	}
	signed, err := jwt.Sign(tok, jwa.HS256, sessionSecret())
	if err != nil {
		return "", err
	}
	return string(signed), nil
}

// SessionAuth only lets requests through that carry a valid session
// token, either in the session cookie or as a bearer token. The user id
// ends up in c.Locals("userID").
func SessionAuth() fiber.Handler {
	return func(c *fiber.Ctx) error {
		raw := c.Cookies(SessionCookie)
		if raw == "" {
			header := c.Get(fiber.HeaderAuthorization)
			if strings.HasPrefix(header, "Bearer ") {
				raw = strings.TrimPrefix(header, "Bearer ")
			}
		}
		if raw == "" {
			return c.SendStatus(fiber.StatusUnauthorized)
		}

		tok, err := jwt.Parse([]byte(raw),
			jwt.WithValidate(true),
			jwt.WithVerify(jwa.HS256, sessionSecret()),
		)
		if err != nil {
			log.Warn().Err(err).Str("IP", c.IP()).Msg("rejecting invalid session token")
			return c.SendStatus(fiber.StatusUnauthorized)
		}

		userID, err := strconv.ParseInt(tok.Subject(), 10, 32)
		if err != nil {
			log.Warn().Err(err).Str("Subject", tok.Subject()).Msg("session token has malformed subject")
			return c.SendStatus(fiber.StatusUnauthorized)
		}

		c.Locals("userID", int32(userID))
		return c.Next()
	}
}

// UserID reads the authenticated user id set by SessionAuth.
func UserID(c *fiber.Ctx) int32 {
	id, _ := c.Locals("userID").(int32)
	return id
}
