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
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"

	"github.com/stockbook/sb-api/analysis"
	"github.com/stockbook/sb-api/common"
	"github.com/stockbook/sb-api/middleware"
)

// GetPortfolio values the user's portfolio. Without a date parameter it
// uses intraday prices as of now; with ?date=YYYY-MM-DD it uses daily
// closes as of 17:30 UTC on that day.
func GetPortfolio(c *fiber.Ctx) error {
	userID := middleware.UserID(c)

	if raw := c.Query("date"); raw != "" {
		day, err := time.Parse("2006-01-02", raw)
		if err != nil {
			return fiber.ErrNotFound
		}
		instant := time.Date(day.Year(), day.Month(), day.Day(), 17, 30, 0, 0, time.UTC)
		portfolio, err := analysis.ComputePortfolio(c.Context(), store, userID, instant, false)
		if err != nil {
			log.Error().Err(err).Int32("UserID", userID).Msg("could not compute historic portfolio")
			return fiber.ErrInternalServerError
		}
		return c.JSON(portfolio)
	}

	portfolio, err := analysis.ComputePortfolio(c.Context(), store, userID, time.Now(), true)
	if err != nil {
		log.Error().Err(err).Int32("UserID", userID).Msg("could not compute portfolio")
		return fiber.ErrInternalServerError
	}
	return c.JSON(portfolio)
}

type cachedPerformance struct {
	At      time.Time                        `json:"at"`
	Reports []*analysis.PortfolioPerformance `json:"reports"`
}

func performanceCacheKey(userID int32) string {
	return fmt.Sprintf("performance:%d", userID)
}

func performanceCacheTTL() time.Duration {
	if d := viper.GetDuration("cache.performance_ttl"); d > 0 {
		return d
	}
	return 5 * time.Minute
}

func purgePerformance(userID int32) {
	common.CachePurge(performanceCacheKey(userID))
}

// GetPerformance builds the full set of performance reports. Reports
// are cached for a few minutes; any transaction change purges them.
func GetPerformance(c *fiber.Ctx) error {
	userID := middleware.UserID(c)
	key := performanceCacheKey(userID)

	if raw, err := common.CacheGet(key); err == nil {
		var cached cachedPerformance
		if err := json.Unmarshal(raw, &cached); err == nil && time.Since(cached.At) < performanceCacheTTL() {
			return c.JSON(cached.Reports)
		}
	}

	reports, err := analysis.Performance(c.Context(), store, userID, time.Now())
	if err != nil {
		log.Error().Err(err).Int32("UserID", userID).Msg("could not compute performance reports")
		return fiber.ErrInternalServerError
	}

	if raw, err := json.Marshal(cachedPerformance{At: time.Now(), Reports: reports}); err == nil {
		if err := common.CacheSet(key, raw); err != nil {
			log.Warn().Err(err).Msg("could not cache performance reports")
		}
	}

	return c.JSON(reports)
}

func plotRange(c *fiber.Ctx) (analysis.Date, analysis.Date, analysis.PlotSource, error) {
	start, err := time.Parse("2006-01-02", c.Query("start"))
	if err != nil {
		return analysis.Date{}, analysis.Date{}, analysis.PlotAutomatic, err
	}
	end, err := time.Parse("2006-01-02", c.Query("end"))
	if err != nil {
		return analysis.Date{}, analysis.Date{}, analysis.PlotAutomatic, err
	}
	source, ok := analysis.ParsePlotSource(c.Query("source"))
	if !ok {
		return analysis.Date{}, analysis.Date{}, analysis.PlotAutomatic, fmt.Errorf("unknown plot source %q", c.Query("source"))
	}
	startDate := analysis.NewDate(start.Year(), start.Month(), start.Day())
	endDate := analysis.NewDate(end.Year(), end.Month(), end.Day())
	return startDate, endDate, source, nil
}

// GetPortfolioPlot charts the whole portfolio between ?start and ?end.
func GetPortfolioPlot(c *fiber.Ctx) error {
	start, end, source, err := plotRange(c)
	if err != nil {
		return fiber.ErrNotFound
	}

	plot, err := analysis.ComputePortfolioPlot(c.Context(), store, middleware.UserID(c), start, end, source)
	if err != nil {
		log.Error().Err(err).Msg("could not compute portfolio plot")
		return fiber.ErrInternalServerError
	}
	return c.JSON(plot)
}

// GetStockPlot charts a single instrument between ?start and ?end.
func GetStockPlot(c *fiber.Ctx) error {
	start, end, source, err := plotRange(c)
	if err != nil {
		return fiber.ErrNotFound
	}

	plot, err := analysis.ComputeStockPlot(c.Context(), store, middleware.UserID(c), c.Params("isin"), start, end, source)
	if err != nil {
		log.Error().Err(err).Str("ISIN", c.Params("isin")).Msg("could not compute stock plot")
		return fiber.ErrNotFound
	}
	return c.JSON(plot)
}
