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

package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/stockbook/sb-api/handler"
	"github.com/stockbook/sb-api/middleware"
)

// SetupRoutes setup router api
func SetupRoutes(app *fiber.App) {
	api := app.Group("/api", middleware.NewLogger())
	api.Get("/", handler.Ping)

	// User
	api.Post("/user/login", handler.Login)
	api.Get("/user/logout", handler.Logout)
	api.Get("/user", middleware.SessionAuth(), handler.UserInfo)

	// Accounts
	accounts := api.Group("/accounts", middleware.SessionAuth())
	accounts.Get("/", handler.ListAccounts)
	accounts.Get("/:id", handler.GetAccount)
	accounts.Post("/", handler.CreateAccount)
	accounts.Put("/:id", handler.UpdateAccount)
	accounts.Delete("/:id", handler.DeleteAccount)

	// Transactions
	transactions := api.Group("/transactions", middleware.SessionAuth())
	transactions.Get("/", handler.ListTransactions)
	transactions.Get("/:id", handler.GetTransaction)
	transactions.Post("/", handler.CreateTransaction)
	transactions.Put("/:id", handler.UpdateTransaction)
	transactions.Delete("/:id", handler.DeleteTransaction)

	// receipt upload
	api.Post("/receipts", middleware.SessionAuth(), handler.UploadReceipts)

	// push notifications
	push := api.Group("/push", middleware.SessionAuth())
	push.Post("/subscribe", handler.PushSubscribe)
	push.Post("/unsubscribe", handler.PushUnsubscribe)

	// Stocks
	stocks := api.Group("/stocks", middleware.SessionAuth())
	stocks.Get("/", handler.ListStocks)
	stocks.Get("/prices/historical/:record", handler.ListHistoricalPrices)
	stocks.Get("/:isin", handler.GetStock)

	// Analysis
	analysis := api.Group("/analysis", middleware.SessionAuth())
	analysis.Get("/portfolio", handler.GetPortfolio)
	analysis.Get("/performance", handler.GetPerformance)
	analysis.Get("/plots/portfolio", handler.GetPortfolioPlot)
	analysis.Get("/plots/:isin", handler.GetStockPlot)
}
