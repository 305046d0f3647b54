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
	"encoding/base64"
	"fmt"

	"github.com/gofiber/fiber/v2"

	"github.com/stockbook/sb-api/middleware"
	"github.com/stockbook/sb-api/receipts"
)

type receiptFile struct {
	Name  string `json:"name"`
	Bytes string `json:"bytes"` // base64 encoded
}

// UploadReceipts books transactions from uploaded broker receipt PDFs
// and returns them. Parse failures report the offending file as a JSON
// error body.
func UploadReceipts(c *fiber.Ctx) error {
	var body []receiptFile
	if err := c.BodyParser(&body); err != nil {
		return fiber.ErrBadRequest
	}

	files := make([]receipts.File, 0, len(body))
	for _, f := range body {
		buf, err := base64.StdEncoding.DecodeString(f.Bytes)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": fmt.Sprintf("%s: error decoding base64: %v", f.Name, err),
			})
		}
		files = append(files, receipts.File{Name: f.Name, Data: buf})
	}

	ts, err := receipts.Ingest(c.Context(), store, middleware.UserID(c), files)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}
	purgePerformance(middleware.UserID(c))
	return c.JSON(ts)
}
