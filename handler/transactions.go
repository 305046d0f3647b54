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

// ListTransactions lists transactions on any of the user's accounts.
func ListTransactions(c *fiber.Ctx) error {
	ts, err := store.ListTransactions(c.Context(), middleware.UserID(c),
		queryInt64(c, "offset", 0), queryInt64(c, "count", 0))
	if err != nil {
		return fiber.ErrInternalServerError
	}
	return c.JSON(ts)
}

// GetTransaction returns one transaction; other users' read as 404.
func GetTransaction(c *fiber.Ctx) error {
	id, err := c.ParamsInt("id")
	if err != nil {
		return fiber.ErrBadRequest
	}
	t, err := store.GetTransaction(c.Context(), middleware.UserID(c), int32(id))
	if err != nil {
		return fiber.ErrNotFound
	}
	return c.JSON(t)
}

func ownsAccount(c *fiber.Ctx, accountID int32) (bool, error) {
	ids, err := store.AccountIDsForUser(c.Context(), middleware.UserID(c))
	if err != nil {
		return false, err
	}
	for _, id := range ids {
		if id == accountID {
			return true, nil
		}
	}
	return false, nil
}

// CreateTransaction books a transaction on one of the user's accounts.
// Booking on someone else's account is rejected.
func CreateTransaction(c *fiber.Ctx) error {
	var t data.Transaction
	if err := c.BodyParser(&t); err != nil {
		return fiber.ErrBadRequest
	}

	ok, err := ownsAccount(c, t.AccountID)
	if err != nil {
		return fiber.ErrInternalServerError
	}
	if !ok {
		return fiber.ErrUnauthorized
	}

	if err := store.CreateTransaction(c.Context(), &t); err != nil {
		return fiber.ErrInternalServerError
	}
	purgePerformance(middleware.UserID(c))
	return c.JSON(t)
}

// UpdateTransaction overwrites a transaction. The target account must
// belong to the user.
func UpdateTransaction(c *fiber.Ctx) error {
	id, err := c.ParamsInt("id")
	if err != nil {
		return fiber.ErrBadRequest
	}

	var t data.Transaction
	if err := c.BodyParser(&t); err != nil {
		return fiber.ErrBadRequest
	}
	t.ID = int32(id)

	ok, err := ownsAccount(c, t.AccountID)
	if err != nil {
		return fiber.ErrInternalServerError
	}
	if !ok {
		return fiber.ErrUnauthorized
	}

	switch err := store.UpdateTransaction(c.Context(), &t); {
	case errors.Is(err, data.ErrNotFound):
		return fiber.ErrNotFound
	case err != nil:
		log.Error().Err(err).Int32("TransactionID", t.ID).Msg("could not update transaction")
		return fiber.ErrInternalServerError
	}
	purgePerformance(middleware.UserID(c))
	return c.SendStatus(fiber.StatusOK)
}

// DeleteTransaction removes a transaction from one of the user's
// accounts.
func DeleteTransaction(c *fiber.Ctx) error {
	id, err := c.ParamsInt("id")
	if err != nil {
		return fiber.ErrBadRequest
	}

	switch err := store.DeleteTransaction(c.Context(), middleware.UserID(c), int32(id)); {
	case errors.Is(err, data.ErrNotFound):
		return fiber.ErrNotFound
	case err != nil:
		log.Error().Err(err).Int("TransactionID", id).Msg("could not delete transaction")
		return fiber.ErrInternalServerError
	}
	purgePerformance(middleware.UserID(c))
	return c.SendStatus(fiber.StatusOK)
}
