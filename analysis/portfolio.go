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
	"time"

	"go.opentelemetry.io/otel"

	"github.com/stockbook/sb-api/data"
	"github.com/stockbook/sb-api/observability/opentelemetry"
)

// Portfolio is the state of all holdings at one instant.
type Portfolio struct {
	Invested float64     `json:"invested"`
	Value    *float64    `json:"value"`
	IRR      *float64    `json:"irr"`
	Stocks   []*Position `json:"stocks"`
}

type Position struct {
	ISIN         string              `json:"isin"`
	Units        float64             `json:"units"`
	Invested     float64             `json:"invested"`
	Value        *float64            `json:"value"`
	IRR          *float64            `json:"irr"`
	DataSource   *DataSource         `json:"data_source"`
	Transactions []*data.Transaction `json:"transactions"`
}

// ComputePortfolio values every holding at the given instant using
// intraday prices when realtime is set, daily closes otherwise.
func ComputePortfolio(ctx context.Context, src Source, userID int32, date time.Time, realtime bool) (*Portfolio, error) {
	ctx, span := otel.Tracer(opentelemetry.Name).Start(ctx, "analysis.ComputePortfolio")
	defer span.End()

	ts, err := src.TransactionsForUser(ctx, userID, date)
	if err != nil {
		return nil, err
	}
	isins := collectISINs(ts)

	var maps []PriceMap
	if realtime {
		maps, err = FindRealtime(ctx, src, isins, []time.Time{date}, priceWindow, priceWindow)
	} else {
		maps, err = FindHistorical(ctx, src, isins, []time.Time{date}, priceWindow, priceWindow)
	}
	if err != nil {
		return nil, err
	}
	prices := maps[0]

	positions := make([]*Position, 0, len(isins))
	for _, isin := range isins {
		positions = append(positions, portfolioPosition(isin, ts, prices[isin]))
	}

	var invested float64
	value := f64ptr(0.0)
	for _, p := range positions {
		invested += p.Invested
		value = addValues(value, p.Value)
	}

	portfolio := &Portfolio{
		Invested: invested,
		Value:    value,
		Stocks:   positions,
	}

	// the total rate needs a simulated sale for every position, which
	// requires every position to be priced
	if value != nil {
		flows := make([]CashFlow, 0, len(ts)+len(positions))
		for _, t := range ts {
			flows = append(flows, CashFlow{t.Date, float64(t.Amount+t.Fees) / 100.0})
		}
		for _, p := range positions {
			if p.DataSource != nil {
				flows = append(flows, CashFlow{p.DataSource.Price.Time(), p.Units * p.DataSource.Price.Value()})
			}
		}
		if irr, ok := InternalRateOfReturn(flows, year); ok {
			portfolio.IRR = &irr
		}
	}

	return portfolio, nil
}

func portfolioPosition(isin string, ts []*data.Transaction, price *DataSource) *Position {
	relevant := make([]*data.Transaction, 0, 8)
	var units, invested float64
	for _, t := range ts {
		if t.ISIN != isin {
			continue
		}
		relevant = append(relevant, t)
		units += t.Units
		invested += float64(t.Amount+t.Fees) / 100.0
	}

	p := &Position{
		ISIN:         isin,
		Units:        units,
		Invested:     invested,
		DataSource:   price,
		Transactions: relevant,
	}

	if price != nil {
		p.Value = f64ptr(units * price.Price.Value())

		flows := make([]CashFlow, 0, len(relevant)+1)
		for _, t := range relevant {
			flows = append(flows, CashFlow{t.Date, float64(t.Amount+t.Fees) / 100.0})
		}
		flows = append(flows, CashFlow{price.Price.Time(), units * price.Price.Value()})
		if irr, ok := InternalRateOfReturn(flows, year); ok {
			p.IRR = &irr
		}
	}

	return p
}
