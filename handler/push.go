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
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"

	"github.com/stockbook/sb-api/data"
	"github.com/stockbook/sb-api/middleware"
)

// subscriptionInfo mirrors the PushSubscription.toJSON() shape browsers
// produce.
type subscriptionInfo struct {
	Endpoint string `json:"endpoint"`
	Keys     struct {
		Auth   string `json:"auth"`
		P256DH string `json:"p256dh"`
	} `json:"keys"`
}

// PushSubscribe registers a browser endpoint for notifications or
// refreshes its keys. An endpoint registered by another user cannot be
// taken over.
func PushSubscribe(c *fiber.Ctx) error {
	var sub subscriptionInfo
	if err := c.BodyParser(&sub); err != nil {
		return fiber.ErrBadRequest
	}

	userID := middleware.UserID(c)
	existing, err := store.GetPushSubscription(c.Context(), sub.Endpoint)
	if err == nil && existing.UserID != userID {
		log.Warn().Str("Endpoint", sub.Endpoint).Int32("OwnerID", existing.UserID).
			Int32("UserID", userID).Msg("attempt to update foreign push subscription")
		return fiber.ErrNotFound
	}

	err = store.SavePushSubscription(c.Context(), &data.PushSubscription{
		Endpoint: sub.Endpoint,
		UserID:   userID,
		Auth:     sub.Keys.Auth,
		P256DH:   sub.Keys.P256DH,
	})
	if err != nil {
		return fiber.ErrInternalServerError
	}
	return c.SendStatus(fiber.StatusOK)
}

// PushUnsubscribe removes one of the user's endpoints.
func PushUnsubscribe(c *fiber.Ctx) error {
	var sub subscriptionInfo
	if err := c.BodyParser(&sub); err != nil {
		return fiber.ErrBadRequest
	}

	userID := middleware.UserID(c)
	existing, err := store.GetPushSubscription(c.Context(), sub.Endpoint)
	if errors.Is(err, data.ErrNotFound) {
		return fiber.ErrNotFound
	}
	if err != nil {
		return fiber.ErrInternalServerError
	}
	if existing.UserID != userID {
		log.Warn().Str("Endpoint", sub.Endpoint).Int32("OwnerID", existing.UserID).
			Int32("UserID", userID).Msg("attempt to remove foreign push subscription")
		return fiber.ErrNotFound
	}

	if err := store.DeletePushSubscription(c.Context(), sub.Endpoint); err != nil {
		return fiber.ErrInternalServerError
	}
	return c.SendStatus(fiber.StatusOK)
}
