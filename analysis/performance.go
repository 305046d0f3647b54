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
	"sort"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"

	"github.com/stockbook/sb-api/data"
	"github.com/stockbook/sb-api/observability/opentelemetry"
)

type PerformanceKind string

const (
	KindTotal        PerformanceKind = "Total"
	KindToday        PerformanceKind = "Today"
	KindYearToDate   PerformanceKind = "YearToDate"
	KindMonthToDate  PerformanceKind = "MonthToDate"
	KindWeekToDate   PerformanceKind = "WeekToDate"
	KindYearToYear   PerformanceKind = "YearToYear"
	KindMonthToMonth PerformanceKind = "MonthToMonth"
)

// priceWindow bounds how stale a resolved price may be.
const priceWindow = 4 * 24 * time.Hour

const year = 365 * 24 * time.Hour

// PortfolioSnapshot is the state of the whole portfolio at the end of a
// day. Value is nil when some position could not be priced.
type PortfolioSnapshot struct {
	Date     Date     `json:"date"`
	Invested float64  `json:"invested"`
	Fees     float64  `json:"fees"` // these are included in Invested
	Value    *float64 `json:"value"`
}

// PositionSnapshot is the state of one holding at the end of a day.
type PositionSnapshot struct {
	Date       Date        `json:"date"`
	Units      float64     `json:"units"`
	Invested   float64     `json:"invested"`
	Fees       float64     `json:"fees"` // these are included in Invested
	Value      *float64    `json:"value"`
	DataSource *DataSource `json:"dataSource"`
}

type PositionPerformance struct {
	Start        PositionSnapshot    `json:"start"`
	End          PositionSnapshot    `json:"end"`
	IRRAnnual    *float64            `json:"irrAnnual"`
	IRRPeriod    *float64            `json:"irrPeriod"`
	Transactions []*data.Transaction `json:"transactions"`
}

type PortfolioPerformance struct {
	Kind      PerformanceKind                 `json:"kind"`
	Start     PortfolioSnapshot               `json:"start"`
	End       PortfolioSnapshot               `json:"end"`
	IRRAnnual *float64                        `json:"irrAnnual"`
	IRRPeriod *float64                        `json:"irrPeriod"`
	Positions map[string]*PositionPerformance `json:"positions"`
}

// performanceJob is one reporting window. A nil end means "up to now",
// priced with intraday data instead of a daily close.
type performanceJob struct {
	kind  PerformanceKind
	start Date
	end   *Date
}

// Performance builds the full set of reports for a user: lifetime,
// today, week/month/year to date, and year-over-year plus up to twelve
// month-over-month windows back to the first transaction.
func Performance(ctx context.Context, src Source, userID int32, date time.Time) ([]*PortfolioPerformance, error) {
	ctx, span := otel.Tracer(opentelemetry.Name).Start(ctx, "analysis.Performance")
	defer span.End()

	ts, err := src.TransactionsForUser(ctx, userID, date)
	if err != nil {
		return nil, err
	}
	isins := collectISINs(ts)

	currentMaps, err := FindRealtime(ctx, src, isins, []time.Time{date}, priceWindow, priceWindow)
	if err != nil {
		return nil, err
	}
	currentPrices := currentMaps[0]

	// the newest intraday price decides what "today" means; fall back
	// to the wall clock when we have none
	newest := time.Time{}
	for _, ds := range currentPrices {
		if t := ds.Price.Time(); t.After(newest) {
			newest = t
		}
	}
	if newest.IsZero() {
		newest = time.Now()
	}
	currentDay := DateOf(newest).PrevBusinessDay()
	prevDay := currentDay.Pred().PrevBusinessDay()

	var firstTransaction Date
	if len(ts) == 0 {
		firstTransaction = NewDate(prevDay.Year(), time.January, 1)
	} else {
		// transactions are ordered by date ascending
		firstTransaction = DateOf(ts[0].Date)
	}

	jobs := performanceCalendar(prevDay, firstTransaction)

	// batch-load daily closes for every date any job needs
	seen := make(map[Date]struct{})
	days := make([]Date, 0, len(jobs)*2)
	for _, job := range jobs {
		if _, ok := seen[job.start]; !ok {
			seen[job.start] = struct{}{}
			days = append(days, job.start)
		}
		if job.end != nil {
			if _, ok := seen[*job.end]; !ok {
				seen[*job.end] = struct{}{}
				days = append(days, *job.end)
			}
		}
	}

	instants := make([]time.Time, 0, len(days))
	for _, d := range days {
		instants = append(instants, d.At(17, 30))
	}

	log.Debug().Int("NumISINs", len(isins)).Int("NumDates", len(days)).Msg("querying prices for performance reports")
	maps, err := FindHistorical(ctx, src, isins, instants, priceWindow, priceWindow)
	if err != nil {
		return nil, err
	}
	prices := make(map[Date]PriceMap, len(days))
	for i, d := range days {
		prices[d] = maps[i]
	}

	reports := make([]*PortfolioPerformance, 0, len(jobs))
	for _, job := range jobs {
		reports = append(reports, computeReport(ts, isins, currentPrices, prices, job))
	}
	return reports, nil
}

// performanceCalendar lays out the reporting windows ending on prevDay.
// Window boundaries are the trading day before the period starts, so a
// year-to-date report starts at December 31st.
func performanceCalendar(prevDay Date, firstTransaction Date) []performanceJob {
	jobs := make([]performanceJob, 0, 32)
	jobs = append(jobs, performanceJob{kind: KindTotal, start: firstTransaction.Pred()})
	jobs = append(jobs, performanceJob{kind: KindToday, start: prevDay})

	daysFromFriday := (int(prevDay.Weekday()+6)%7 - int(time.Friday+6)%7 + 7) % 7
	jobs = append(jobs, performanceJob{kind: KindWeekToDate, start: prevDay.AddDays(-daysFromFriday)})

	firstOfMonth := prevDay.FirstOfMonth()
	jobs = append(jobs, performanceJob{kind: KindMonthToDate, start: firstOfMonth.Pred()})

	firstOfYear := prevDay.FirstOfYear()
	jobs = append(jobs, performanceJob{kind: KindYearToDate, start: firstOfYear.Pred()})

	// every year back to the first transaction
	last := firstOfYear.Pred()
	for {
		start := NewDate(last.Year(), time.January, 1).Pred()
		end := last
		if !firstTransaction.Before(end) {
			break
		}
		jobs = append(jobs, performanceJob{kind: KindYearToYear, start: start, end: &end})
		last = start
	}

	// the last twelve months, as far back as the first transaction
	last = firstOfMonth.Pred()
	for i := 0; i < 12; i++ {
		start := NewDate(last.Year(), last.Month(), 1).Pred()
		end := last
		if !firstTransaction.Before(end) {
			break
		}
		jobs = append(jobs, performanceJob{kind: KindMonthToMonth, start: start, end: &end})
		last = start
	}

	return jobs
}

func collectISINs(ts []*data.Transaction) []string {
	seen := make(map[string]struct{})
	isins := make([]string, 0, 16)
	for _, t := range ts {
		if _, ok := seen[t.ISIN]; !ok {
			seen[t.ISIN] = struct{}{}
			isins = append(isins, t.ISIN)
		}
	}
	sort.Strings(isins)
	return isins
}

func computeReport(ts []*data.Transaction, isins []string, currentPrices PriceMap, prices map[Date]PriceMap, job performanceJob) *PortfolioPerformance {
	startPrices := prices[job.start]

	positions := make(map[string]*PositionPerformance, len(isins))
	endDate := DateOf(time.Now())
	if job.end != nil {
		endDate = *job.end
		endPrices := prices[*job.end]
		for _, isin := range isins {
			positions[isin] = computePosition(isin, ts, startPrices[isin], endPrices[isin], job.start, endDate)
		}
	} else {
		for _, isin := range isins {
			positions[isin] = computePosition(isin, ts, startPrices[isin], currentPrices[isin], job.start, endDate)
		}
	}

	var startInvested, startFees, endInvested, endFees float64
	startValue := f64ptr(0.0)
	endValue := f64ptr(0.0)
	for _, p := range positions {
		startInvested += p.Start.Invested
		startFees += p.Start.Fees
		endInvested += p.End.Invested
		endFees += p.End.Fees
		startValue = addValues(startValue, p.Start.Value)
		endValue = addValues(endValue, p.End.Value)
	}

	report := &PortfolioPerformance{
		Kind:  job.kind,
		Start: PortfolioSnapshot{Date: job.start, Invested: startInvested, Fees: startFees, Value: startValue},
		End:   PortfolioSnapshot{Date: endDate, Invested: endInvested, Fees: endFees, Value: endValue},
	}
	report.Positions = positions

	if startValue == nil || endValue == nil {
		return report
	}

	flows := make([]CashFlow, 0, len(positions)*2+len(ts))
	for _, p := range positions {
		// simulated sale
		if p.End.DataSource != nil && p.End.Units != 0.0 {
			flows = append(flows, CashFlow{p.End.DataSource.Price.Time(), p.End.Units * p.End.DataSource.Price.Value()})
		}
	}
	for _, p := range positions {
		// simulated purchase
		if p.Start.DataSource != nil && p.Start.Units != 0.0 {
			flows = append(flows, CashFlow{p.Start.DataSource.Price.Time(), -1.0 * p.Start.Units * p.Start.DataSource.Price.Value()})
		}
	}
	for _, p := range positions {
		for _, t := range p.Transactions {
			flows = append(flows, CashFlow{t.Date, float64(t.Amount+t.Fees) / 100.0})
		}
	}

	var firstPurchase, lastSale *time.Time
	for _, p := range positions {
		if p.Start.DataSource != nil {
			t := p.Start.DataSource.Price.Time()
			if firstPurchase == nil || t.Before(*firstPurchase) {
				firstPurchase = &t
			}
		}
		if p.End.DataSource != nil {
			t := p.End.DataSource.Price.Time()
			if lastSale == nil || t.After(*lastSale) {
				lastSale = &t
			}
		}
	}

	period := 7 * 24 * time.Hour
	if firstPurchase != nil && lastSale != nil {
		period = lastSale.Sub(*firstPurchase)
	}

	report.IRRAnnual, report.IRRPeriod = solveRates(flows, period)
	return report
}

func computePosition(isin string, ts []*data.Transaction, startPrice *DataSource, endPrice *DataSource, start Date, end Date) *PositionPerformance {
	var priorUnits, priorInvested, priorFees float64
	var units, invested, fees float64
	relevant := make([]*data.Transaction, 0, 8)
	for _, t := range ts {
		if t.ISIN != isin {
			continue
		}
		day := DateOf(t.Date)
		if day.After(end) {
			continue
		}
		if !day.After(start) {
			priorUnits += t.Units
			priorInvested += float64(t.Amount+t.Fees) / 100.0
			priorFees += float64(t.Fees) / 100.0
		} else {
			relevant = append(relevant, t)
			units += t.Units
			invested += float64(t.Amount+t.Fees) / 100.0
			fees += float64(t.Fees) / 100.0
		}
	}

	endSnapshot := PositionSnapshot{
		Date:       end,
		Units:      units + priorUnits,
		Invested:   invested + priorInvested,
		Fees:       fees + priorFees,
		DataSource: endPrice,
	}
	if units+priorUnits == 0.0 {
		endSnapshot.Value = f64ptr(0.0)
	} else if endPrice != nil {
		endSnapshot.Value = f64ptr((priorUnits + units) * endPrice.Price.Value())
	}

	startSnapshot := PositionSnapshot{
		Date:       start,
		Units:      priorUnits,
		Invested:   priorInvested,
		Fees:       priorFees,
		DataSource: startPrice,
	}
	if priorUnits == 0.0 {
		startSnapshot.Value = f64ptr(0.0)
	} else if startPrice != nil {
		startSnapshot.Value = f64ptr(priorUnits * startPrice.Price.Value())
	}

	perf := &PositionPerformance{
		Start:        startSnapshot,
		End:          endSnapshot,
		Transactions: relevant,
	}

	// the rate is unknowable when units were held at the window start
	// but no price exists to simulate buying them
	if startPrice == nil && priorUnits != 0.0 {
		return perf
	}
	if endPrice == nil {
		return perf
	}

	flows := make([]CashFlow, 0, len(relevant)+2)
	if units+priorUnits != 0.0 {
		// simulated sale
		flows = append(flows, CashFlow{endPrice.Price.Time(), (units + priorUnits) * endPrice.Price.Value()})
	}
	if priorUnits != 0.0 && startPrice != nil {
		// simulated purchase
		flows = append(flows, CashFlow{startPrice.Price.Time(), -1.0 * priorUnits * startPrice.Price.Value()})
	}
	for _, t := range relevant {
		flows = append(flows, CashFlow{t.Date, float64(t.Amount+t.Fees) / 100.0})
	}

	anchor := start.NoonUTC()
	if startPrice != nil {
		anchor = startPrice.Price.Time()
	}
	period := endPrice.Price.Time().Sub(anchor)

	perf.IRRAnnual, perf.IRRPeriod = solveRates(flows, period)
	return perf
}

// solveRates computes the rate on the shorter of the two time scales
// and converts it to the other, avoiding loss of accuracy.
func solveRates(flows []CashFlow, period time.Duration) (*float64, *float64) {
	if period > year {
		annual, ok := InternalRateOfReturn(flows, year)
		if !ok {
			return nil, nil
		}
		periodRate := ConvertRate(annual, year, period)
		return &annual, &periodRate
	}
	periodRate, ok := InternalRateOfReturn(flows, period)
	if !ok {
		return nil, nil
	}
	annual := ConvertRate(periodRate, period, year)
	return &annual, &periodRate
}

func f64ptr(v float64) *float64 {
	return &v
}

func addValues(acc *float64, v *float64) *float64 {
	if acc == nil || v == nil {
		return nil
	}
	return f64ptr(*acc + *v)
}
