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

package handler

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
	"golang.org/x/crypto/bcrypt"

	"github.com/stockbook/sb-api/data"
	"github.com/stockbook/sb-api/middleware"
)

type userInfo struct {
	ID                   int32  `json:"id"`
	Name                 string `json:"name"`
	FullName             string `json:"fullName"`
	ApplicationServerKey string `json:"applicationServerKey"`
}

type loginData struct {
	UserName string `json:"userName"`
	Password string `json:"password"`
}

func newUserInfo(u *data.User) userInfo {
	return userInfo{
		ID:                   u.ID,
		Name:                 u.Name,
		FullName:             u.FullName,
		ApplicationServerKey: viper.GetString("webpush.application_server_key"),
	}
}

// Login checks the credentials and starts a session.
func Login(c *fiber.Ctx) error {
	var login loginData
	if err := c.BodyParser(&login); err != nil {
		return c.SendStatus(fiber.StatusBadRequest)
	}

	u, err := store.UserByName(c.Context(), login.UserName)
	if err != nil {
		log.Warn().Str("UserName", login.UserName).Msg("attempt to login with non-existing username")
		return c.SendStatus(fiber.StatusUnauthorized)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(u.Hash), []byte(login.Password)); err != nil {
		log.Warn().Str("UserName", login.UserName).Msg("attempt to login with wrong password")
		return c.SendStatus(fiber.StatusUnauthorized)
	}

	token, err := middleware.SessionToken(u.ID)
	if err != nil {
		log.Error().Err(err).Msg("could not mint session token")
		return c.SendStatus(fiber.StatusInternalServerError)
	}

	log.Info().Str("UserName", login.UserName).Msg("successful login")
	c.Cookie(&fiber.Cookie{
		Name:     middleware.SessionCookie,
		Value:    token,
		HTTPOnly: true,
		SameSite: fiber.CookieSameSiteStrictMode,
	})
	return c.JSON(newUserInfo(u))
}

// Logout ends the session.
func Logout(c *fiber.Ctx) error {
	c.Cookie(&fiber.Cookie{
		Name:     middleware.SessionCookie,
		Value:    "",
		Expires:  time.Unix(0, 0),
		HTTPOnly: true,
		SameSite: fiber.CookieSameSiteStrictMode,
	})
	return c.SendStatus(fiber.StatusOK)
}

// UserInfo returns the logged-in user.
func UserInfo(c *fiber.Ctx) error {
	u, err := store.UserByID(c.Context(), middleware.UserID(c))
	if err != nil {
		return fiber.ErrNotFound
	}
	return c.JSON(newUserInfo(u))
}
