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
	"regexp"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/stockbook/sb-api/data"
)

type stockPrice struct {
	Date  time.Time `json:"date"`
	Price float64   `json:"price"`
}

type stockExchange struct {
	ISIN              string      `json:"isin"`
	Name              string      `json:"name"`
	Code              string      `json:"code"`
	Quality           *string     `json:"quality"`
	OnvistaRecordID   int32       `json:"onvistaRecordId"`
	OnvistaExchangeID *int32      `json:"onvistaExchangeId"`
	CurrentPrice      *stockPrice `json:"currentPrice"`
}

type stock struct {
	*data.StockInfo
	Exchanges []stockExchange `json:"exchanges"`
	Index     *string         `json:"index"`
}

var indexRe = regexp.MustCompile(`(MSCI|iSTOXX|STOXX|S&P|Dow Jones)[^ ]*(:? [^a-z(][\w]*)+`)

// findIndex guesses the tracked benchmark index from the fund
// description.
func findIndex(si *data.StockInfo) *string {
	if si.Description == nil {
		return nil
	}
	for _, m := range indexRe.FindAllString(*si.Description, -1) {
		if !strings.Contains(m, "ETF") {
			match := m
			return &match
		}
	}
	return nil
}

func newStockExchange(e *data.StockExchange, current *data.RealtimePrice) stockExchange {
	se := stockExchange{
		ISIN:              e.ISIN,
		Name:              e.Name,
		Code:              e.Code,
		Quality:           e.Quality,
		OnvistaRecordID:   e.OnvistaRecordID,
		OnvistaExchangeID: e.OnvistaExchangeID,
	}
	if current != nil {
		se.CurrentPrice = &stockPrice{Date: current.Date, Price: current.Price}
	}
	return se
}

func assembleStocks(c *fiber.Ctx, infos []*data.StockInfo) ([]stock, error) {
	isins := make([]string, 0, len(infos))
	for _, si := range infos {
		isins = append(isins, si.ISIN)
	}
	exchanges, err := store.ExchangesForISINs(c.Context(), isins)
	if err != nil {
		return nil, err
	}

	recordIDs := make([]int32, 0, len(exchanges))
	for _, e := range exchanges {
		recordIDs = append(recordIDs, e.OnvistaRecordID)
	}
	// might return nothing for a venue if its newest price is very old
	prices, err := store.RecentRealtimePrices(c.Context(), recordIDs, 200)
	if err != nil {
		return nil, err
	}
	newest := make(map[int32]*data.RealtimePrice, len(prices))
	for _, p := range prices {
		if _, ok := newest[p.OnvistaRecordID]; !ok {
			newest[p.OnvistaRecordID] = p
		}
	}

	stocks := make([]stock, 0, len(infos))
	for _, si := range infos {
		s := stock{StockInfo: si, Index: findIndex(si), Exchanges: make([]stockExchange, 0, 4)}
		for _, e := range exchanges {
			if e.ISIN == si.ISIN {
				s.Exchanges = append(s.Exchanges, newStockExchange(e, newest[e.OnvistaRecordID]))
			}
		}
		stocks = append(stocks, s)
	}
	return stocks, nil
}

// ListStocks lists all known instruments with their venues and the
// newest intraday price per venue.
func ListStocks(c *fiber.Ctx) error {
	infos, err := store.ListStocks(c.Context(), queryInt64(c, "offset", 0), queryInt64(c, "count", 0))
	if err != nil {
		return fiber.ErrInternalServerError
	}
	stocks, err := assembleStocks(c, infos)
	if err != nil {
		return fiber.ErrInternalServerError
	}
	return c.JSON(stocks)
}

// GetStock returns one instrument by isin.
func GetStock(c *fiber.Ctx) error {
	isin := strings.ToUpper(c.Params("isin"))
	info, err := store.GetStock(c.Context(), isin)
	if err != nil {
		return fiber.ErrNotFound
	}
	stocks, err := assembleStocks(c, []*data.StockInfo{info})
	if err != nil {
		return fiber.ErrInternalServerError
	}
	return c.JSON(stocks[0])
}

// ListHistoricalPrices returns the daily bars of one venue record,
// optionally narrowed by ?from and ?to civil dates.
func ListHistoricalPrices(c *fiber.Ctx) error {
	record, err := c.ParamsInt("record")
	if err != nil {
		return fiber.ErrBadRequest
	}

	from := time.Date(1900, time.January, 1, 0, 0, 0, 0, time.UTC)
	if raw := c.Query("from"); raw != "" {
		if t, err := time.Parse("2006-01-02", raw); err == nil {
			from = t
		}
	}
	to := time.Date(2100, time.January, 1, 0, 0, 0, 0, time.UTC)
	if raw := c.Query("to"); raw != "" {
		if t, err := time.Parse("2006-01-02", raw); err == nil {
			to = t
		}
	}

	prices, err := store.HistoricalPricesForRecord(c.Context(), int32(record), from, to,
		queryInt64(c, "offset", 0), queryInt64(c, "count", 0))
	if err != nil {
		return fiber.ErrInternalServerError
	}
	return c.JSON(prices)
}
