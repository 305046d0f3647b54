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

package analysis

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"

	"github.com/stockbook/sb-api/common"
	"github.com/stockbook/sb-api/data"
	"github.com/stockbook/sb-api/observability/opentelemetry"
)

// PlotSource selects which price table feeds a plot.
type PlotSource int

const (
	PlotAutomatic PlotSource = iota
	PlotRealtime
	PlotHistorical
)

// ParsePlotSource maps the query parameter to a selection. An absent
// parameter means automatic; an unrecognized one is rejected.
func ParsePlotSource(s string) (PlotSource, bool) {
	switch strings.ToLower(s) {
	case "", "auto", "automatic":
		return PlotAutomatic, true
	case "realtime":
		return PlotRealtime, true
	case "historical":
		return PlotHistorical, true
	default:
		return PlotAutomatic, false
	}
}

type PortfolioPlotDataPoint struct {
	Date     time.Time `json:"date"`
	Invested float64   `json:"invested"`
	Value    *float64  `json:"value"`
}

type PortfolioPlot struct {
	Points    []PortfolioPlotDataPoint `json:"points"`
	Exchanges []*data.StockExchange    `json:"exchanges"`
}

type StockPlotDataPoint struct {
	Date      time.Time  `json:"date"`
	Units     float64    `json:"units"`
	Invested  float64    `json:"invested"`
	PriceDate *time.Time `json:"priceDate"`
	Price     *float64   `json:"price"`
	Value     *float64   `json:"value"`
}

type StockPlot struct {
	Points   []StockPlotDataPoint `json:"points"`
	Exchange *data.StockExchange  `json:"exchange"`
}

func almostEq(a *float64, b *float64) bool {
	switch {
	case a == nil && b == nil:
		return true
	case a != nil && b != nil:
		return (*b - *a) < 0.01 && (*a - *b) < 0.01
	default:
		return false
	}
}

func utcDay(t time.Time) Date {
	u := t.UTC()
	return NewDate(u.Year(), u.Month(), u.Day())
}

// choosePoints picks the sampling grid and loads the matching prices
// for the requested venues. Historical plots sample at most twice a
// day; realtime plots sample in multiples of five minutes during
// trading hours.
func choosePoints(ctx context.Context, src Source, recordIDs []int32, startDate Date, endDate Date, sel PlotSource) ([]time.Time, []Quote, error) {
	if sel == PlotHistorical || (endDate.Sub(startDate.Time) > 3*7*24*time.Hour && sel == PlotAutomatic) {
		// sample 200 dates between start and end, but at most once a day
		interval := endDate.Sub(startDate.Time) / 200
		if interval < 24*time.Hour {
			interval = 24 * time.Hour
		}
		coarse := make([]time.Time, 0, 256)
		for d := startDate.At(9, 0); !utcDay(d).After(endDate); d = d.Add(interval) {
			coarse = append(coarse, d)
		}

		var dates []time.Time
		if len(coarse) < 150 {
			// few enough dates to afford an opening and a closing
			// sample per day
			dates = make([]time.Time, 0, len(coarse)*2)
			for _, d := range coarse {
				day := utcDay(d)
				dates = append(dates, day.At(9, 0), day.At(18, 0))
			}
		} else {
			dates = make([]time.Time, 0, len(coarse))
			for _, d := range coarse {
				dates = append(dates, utcDay(d).At(18, 0))
			}
		}

		bars, err := src.HistoricalPricesRange(ctx, recordIDs, startDate.Time, endDate.Time)
		if err != nil {
			return nil, nil, err
		}
		prices := make([]Quote, 0, len(bars)*2)
		for _, bar := range bars {
			prices = append(prices, OpeningQuoteOf(*bar), ClosingQuoteOf(*bar))
		}
		log.Debug().Int("NumPrices", len(bars)).Int("NumExchanges", len(recordIDs)).Msg("loaded historical prices for plot")

		return dates, prices, nil
	}

	startTime := startDate.At(9, 0)
	endTime := endDate.At(18, 0)
	if now := time.Now(); now.Before(endTime) {
		endTime = now
	}

	// sample many dates between start and end, but at most once every
	// 5min, and make sure the interval is a multiple of 5 minutes
	interval := endTime.Sub(startTime) / 400
	if interval < 5*time.Minute {
		interval = 5 * time.Minute
	}
	interval = (interval / (5 * time.Minute)) * (5 * time.Minute)

	tz := common.GetTimezone()
	dates := make([]time.Time, 0, 512)
	for d := startTime; !d.After(endTime); d = d.Add(interval) {
		if hour := d.In(tz).Hour(); hour >= 9 && hour <= 18 {
			dates = append(dates, d)
		}
	}

	ticks, err := src.RealtimePricesRange(ctx, recordIDs, startTime, endTime)
	if err != nil {
		return nil, nil, err
	}
	prices := make([]Quote, 0, len(ticks))
	for _, p := range ticks {
		prices = append(prices, RealtimeQuoteOf(*p))
	}
	log.Debug().Int("NumPrices", len(prices)).Int("NumExchanges", len(recordIDs)).Msg("loaded realtime prices for plot")

	// failsafe if no realtime data is available and the user doesn't
	// care about the source
	if sel == PlotAutomatic && len(prices) < 2*len(recordIDs) {
		log.Info().Msg("falling back to historical data because realtime data does not contain many points")
		return choosePoints(ctx, src, recordIDs, startDate, endDate, PlotHistorical)
	}

	return dates, prices, nil
}

// ComputePortfolioPlot charts invested money and total value over time.
// Positions without a listed venue contribute their invested money but
// no value.
func ComputePortfolioPlot(ctx context.Context, src Source, userID int32, startDate Date, endDate Date, sel PlotSource) (*PortfolioPlot, error) {
	ctx, span := otel.Tracer(opentelemetry.Name).Start(ctx, "analysis.ComputePortfolioPlot")
	defer span.End()

	cutoff := time.Date(endDate.Year(), endDate.Month(), endDate.Day(), 18, 0, 0, 0, time.UTC)
	ts, err := src.TransactionsForUser(ctx, userID, cutoff)
	if err != nil {
		return nil, err
	}
	isins := collectISINs(ts)

	listings, err := src.ExchangesForISINs(ctx, isins)
	if err != nil {
		return nil, err
	}
	byISIN := make(map[string][]*data.StockExchange, len(isins))
	for _, e := range listings {
		byISIN[e.ISIN] = append(byISIN[e.ISIN], e)
	}
	preferred := make(map[string]*data.StockExchange, len(isins))
	for _, isin := range isins {
		preferred[isin] = data.PreferredExchange(byISIN[isin])
	}

	recordIDs := make([]int32, 0, len(isins))
	for _, e := range preferred {
		if e != nil {
			recordIDs = append(recordIDs, e.OnvistaRecordID)
		}
	}

	dates, prices, err := choosePoints(ctx, src, recordIDs, startDate, endDate, sel)
	if err != nil {
		return nil, err
	}

	points := make([]PortfolioPlotDataPoint, 0, len(dates))
	for _, d := range dates {
		points = append(points, PortfolioPlotDataPoint{Date: d, Value: f64ptr(0.0)})
	}

	for isin, ex := range preferred {
		var invested, units float64

		isinTS := make([]*data.Transaction, 0, 16)
		for _, t := range ts {
			if t.ISIN == isin {
				isinTS = append(isinTS, t)
			}
		}

		isinPS := make([]Quote, 0, 64)
		if ex != nil {
			for _, p := range prices {
				if p.OnvistaRecordID() == ex.OnvistaRecordID {
					isinPS = append(isinPS, p)
				}
			}
		}

		tIdx, pIdx := 0, 0
		var currentPrice *Quote
		if len(isinPS) > 0 {
			currentPrice = &isinPS[0]
		}

		// go through all points, search for the nearest price,
		// calculate invested money and current value
		for i := range points {
			p := &points[i]
			for tIdx < len(isinTS) && !isinTS[tIdx].Date.After(p.Date) {
				t := isinTS[tIdx]
				units += t.Units
				invested -= float64(t.Amount+t.Fees) / 100.0
				tIdx++
			}
			p.Invested += invested

			for pIdx < len(isinPS) && !isinPS[pIdx].Time().After(p.Date) {
				currentPrice = &isinPS[pIdx]
				pIdx++
			}

			if currentPrice != nil {
				if withinSevenDays(p.Date, currentPrice.Time()) {
					if p.Value != nil {
						p.Value = f64ptr(*p.Value + units*currentPrice.Value())
					}
				} else if units > 1e-8 || units < -1e-8 {
					p.Value = nil
				}
			} else if units > 1e-8 || units < -1e-8 {
				p.Value = nil
			}
		}
	}

	exchanges := make([]*data.StockExchange, 0, len(preferred))
	for _, e := range preferred {
		if e != nil {
			exchanges = append(exchanges, e)
		}
	}

	deduped := make([]PortfolioPlotDataPoint, 0, len(points))
	for _, p := range points {
		if n := len(deduped); n > 0 {
			last := deduped[n-1]
			if almostEq(last.Value, p.Value) && (p.Invested-last.Invested) < 0.01 && (last.Invested-p.Invested) < 0.01 {
				continue
			}
		}
		deduped = append(deduped, p)
	}

	return &PortfolioPlot{Points: deduped, Exchanges: exchanges}, nil
}

// ComputeStockPlot charts one instrument on its preferred venue.
func ComputeStockPlot(ctx context.Context, src Source, userID int32, isin string, startDate Date, endDate Date, sel PlotSource) (*StockPlot, error) {
	ctx, span := otel.Tracer(opentelemetry.Name).Start(ctx, "analysis.ComputeStockPlot")
	defer span.End()

	listings, err := src.ExchangesForISINs(ctx, []string{isin})
	if err != nil {
		return nil, err
	}
	ex := data.PreferredExchange(listings)
	if ex == nil {
		return nil, data.ErrNoExchanges
	}

	cutoff := time.Date(endDate.Year(), endDate.Month(), endDate.Day(), 18, 0, 0, 0, time.UTC)
	ts, err := src.TransactionsForUserAndISIN(ctx, userID, isin, cutoff)
	if err != nil {
		return nil, err
	}

	dates, prices, err := choosePoints(ctx, src, []int32{ex.OnvistaRecordID}, startDate, endDate, sel)
	if err != nil {
		return nil, err
	}

	points := make([]StockPlotDataPoint, 0, len(dates))
	for _, d := range dates {
		points = append(points, StockPlotDataPoint{Date: d, Value: f64ptr(0.0)})
	}

	var invested, units float64
	tIdx, pIdx := 0, 0
	var currentPrice *Quote
	if len(prices) > 0 {
		currentPrice = &prices[0]
	}

	// go through all points, search for the nearest price, calculate
	// invested money and current value
	for i := range points {
		p := &points[i]
		for tIdx < len(ts) && !ts[tIdx].Date.After(p.Date) {
			t := ts[tIdx]
			units += t.Units
			invested -= float64(t.Amount+t.Fees) / 100.0
			tIdx++
		}
		p.Invested = invested
		p.Units = units

		for pIdx < len(prices) && !prices[pIdx].Time().After(p.Date) {
			currentPrice = &prices[pIdx]
			pIdx++
		}

		if currentPrice != nil {
			if priceTime := currentPrice.Time(); withinSevenDays(p.Date, priceTime) {
				p.Value = f64ptr(units * currentPrice.Value())
				p.Price = f64ptr(currentPrice.Value())
				p.PriceDate = &priceTime
			}
		} else if units > 1e-8 || units < -1e-8 {
			p.Value = nil
		}
	}

	deduped := make([]StockPlotDataPoint, 0, len(points))
	for _, p := range points {
		if n := len(deduped); n > 0 {
			last := deduped[n-1]
			if almostEq(last.Value, p.Value) && almostSameInvested(last.Invested, p.Invested) &&
				equalPtr(last.Price, p.Price) && equalTimePtr(last.PriceDate, p.PriceDate) {
				continue
			}
		}
		deduped = append(deduped, p)
	}

	return &StockPlot{Points: deduped, Exchange: ex}, nil
}

// withinSevenDays compares whole days between the two instants, so a
// price from six days and 23 hours ago still counts.
func withinSevenDays(a time.Time, b time.Time) bool {
	delta := a.Sub(b)
	if delta < 0 {
		delta = -delta
	}
	return delta/(24*time.Hour) < 7
}

func almostSameInvested(a float64, b float64) bool {
	return (a-b) < 0.01 && (b-a) < 0.01
}

func equalPtr(a *float64, b *float64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func equalTimePtr(a *time.Time, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}
