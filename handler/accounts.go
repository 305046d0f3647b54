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

// ListAccounts lists all accounts of the logged-in user.
func ListAccounts(c *fiber.Ctx) error {
	accounts, err := store.ListAccounts(c.Context(), middleware.UserID(c),
		queryInt64(c, "offset", 0), queryInt64(c, "count", 0))
	if err != nil {
		return fiber.ErrInternalServerError
	}
	return c.JSON(accounts)
}

// GetAccount returns one account; accounts of other users read as 404.
func GetAccount(c *fiber.Ctx) error {
	id, err := c.ParamsInt("id")
	if err != nil {
		return fiber.ErrBadRequest
	}
	account, err := store.GetAccount(c.Context(), middleware.UserID(c), int32(id))
	if err != nil {
		return fiber.ErrNotFound
	}
	return c.JSON(account)
}

// CreateAccount stores a new account for the logged-in user.
func CreateAccount(c *fiber.Ctx) error {
	var account data.Account
	if err := c.BodyParser(&account); err != nil {
		return fiber.ErrBadRequest
	}
	account.UserID = middleware.UserID(c)

	if err := store.CreateAccount(c.Context(), &account); err != nil {
		log.Error().Err(err).Msg("could not create account")
		return fiber.ErrInternalServerError
	}
	return c.JSON(account)
}

// UpdateAccount overwrites an account the user owns.
func UpdateAccount(c *fiber.Ctx) error {
	id, err := c.ParamsInt("id")
	if err != nil {
		return fiber.ErrBadRequest
	}

	var account data.Account
	if err := c.BodyParser(&account); err != nil {
		return fiber.ErrBadRequest
	}
	account.ID = int32(id)
	account.UserID = middleware.UserID(c)

	switch err := store.UpdateAccount(c.Context(), &account); {
	case errors.Is(err, data.ErrNotFound):
		return fiber.ErrNotFound
	case err != nil:
		log.Error().Err(err).Int32("AccountID", account.ID).Msg("could not update account")
		return fiber.ErrInternalServerError
	}
	log.Info().Int32("AccountID", account.ID).Msg("updated record in the account table")
	return c.SendStatus(fiber.StatusOK)
}

// DeleteAccount removes an account the user owns.
func DeleteAccount(c *fiber.Ctx) error {
	id, err := c.ParamsInt("id")
	if err != nil {
		return fiber.ErrBadRequest
	}

	switch err := store.DeleteAccount(c.Context(), middleware.UserID(c), int32(id)); {
	case errors.Is(err, data.ErrNotFound):
		return fiber.ErrNotFound
	case err != nil:
		log.Error().Err(err).Int("AccountID", id).Msg("could not delete account")
		return fiber.ErrInternalServerError
	}
	log.Info().Int("AccountID", id).Msg("deleted record from the account table")
	return c.SendStatus(fiber.StatusOK)
}
