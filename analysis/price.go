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
	"errors"
	"sort"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"

	"github.com/stockbook/sb-api/common"
	"github.com/stockbook/sb-api/data"
	"github.com/stockbook/sb-api/observability/opentelemetry"
)

var ErrUnknownQuoteType = errors.New("unknown quote type")

// Source supplies the market data the analysis functions run on. The
// data.Store satisfies it; tests use an in-memory implementation.
type Source interface {
	RealtimeQuotesWithin(ctx context.Context, isins []string, earliest time.Time, latest time.Time) ([]*data.RealtimeQuote, error)
	HistoricalQuotesWithin(ctx context.Context, isins []string, earliest time.Time, latest time.Time) ([]*data.HistoricalQuote, error)
	ExchangesForISINs(ctx context.Context, isins []string) ([]*data.StockExchange, error)
	RealtimePricesRange(ctx context.Context, recordIDs []int32, start time.Time, end time.Time) ([]*data.RealtimePrice, error)
	HistoricalPricesRange(ctx context.Context, recordIDs []int32, start time.Time, end time.Time) ([]*data.HistoricalPrice, error)
	TransactionsForUser(ctx context.Context, userID int32, cutoff time.Time) ([]*data.Transaction, error)
	TransactionsForUserAndISIN(ctx context.Context, userID int32, isin string, cutoff time.Time) ([]*data.Transaction, error)
}

type quoteKind int

const (
	quoteRealtime quoteKind = iota
	quoteClosing
	quoteOpening
)

// Quote is a price observation from one of the two price tables. A
// daily bar yields two quotes, its opening and its close.
type Quote struct {
	kind     quoteKind
	realtime data.RealtimePrice
	bar      data.HistoricalPrice
}

func RealtimeQuoteOf(p data.RealtimePrice) Quote {
	return Quote{kind: quoteRealtime, realtime: p}
}

func ClosingQuoteOf(p data.HistoricalPrice) Quote {
	return Quote{kind: quoteClosing, bar: p}
}

func OpeningQuoteOf(p data.HistoricalPrice) Quote {
	return Quote{kind: quoteOpening, bar: p}
}

func (q Quote) Value() float64 {
	switch q.kind {
	case quoteClosing:
		return q.bar.Closing
	case quoteOpening:
		return q.bar.Opening
	default:
		return q.realtime.Price
	}
}

// Time places the quote on the timeline. Intraday prices carry their
// own timestamp; a close is pinned to 18:00 and an opening to 09:00
// local time on the bar's trading day. Does not have to be exact.
func (q Quote) Time() time.Time {
	tz := common.GetTimezone()
	switch q.kind {
	case quoteClosing:
		d := q.bar.Date
		return time.Date(d.Year(), d.Month(), d.Day(), 18, 0, 0, 0, tz)
	case quoteOpening:
		d := q.bar.Date
		return time.Date(d.Year(), d.Month(), d.Day(), 9, 0, 0, 0, tz)
	default:
		return q.realtime.Date
	}
}

func (q Quote) OnvistaRecordID() int32 {
	if q.kind == quoteRealtime {
		return q.realtime.OnvistaRecordID
	}
	return q.bar.OnvistaRecordID
}

type taggedRealtime struct {
	Type string `json:"type"`
	data.RealtimePrice
}

type taggedBar struct {
	Type string `json:"type"`
	data.HistoricalPrice
}

func (q Quote) MarshalJSON() ([]byte, error) {
	switch q.kind {
	case quoteClosing:
		return json.Marshal(taggedBar{"HistoricalPrice", q.bar})
	case quoteOpening:
		return json.Marshal(taggedBar{"HistoricalPriceOpening", q.bar})
	default:
		return json.Marshal(taggedRealtime{"RealtimePrice", q.realtime})
	}
}

func (q *Quote) UnmarshalJSON(raw []byte) error {
	var tag struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(raw, &tag); err != nil {
		return err
	}
	switch tag.Type {
	case "RealtimePrice":
		q.kind = quoteRealtime
		return json.Unmarshal(raw, &q.realtime)
	case "HistoricalPrice":
		q.kind = quoteClosing
		return json.Unmarshal(raw, &q.bar)
	case "HistoricalPriceOpening":
		q.kind = quoteOpening
		return json.Unmarshal(raw, &q.bar)
	default:
		return ErrUnknownQuoteType
	}
}

// DataSource is a resolved price together with the venue it came from.
type DataSource struct {
	Price    Quote              `json:"price"`
	Exchange data.StockExchange `json:"exchange"`
}

// PriceMap holds the resolved price per isin for one instant. Isins
// with no price inside the hard window are absent.
type PriceMap map[string]*DataSource

// FindRealtime resolves an intraday price for every isin at every
// instant. hard bounds how stale a price may be; candidates no older
// than soft are ranked by venue preference, while older ones inside the
// hard window only serve as a recency fallback.
func FindRealtime(ctx context.Context, src Source, isins []string, instants []time.Time, hard time.Duration, soft time.Duration) ([]PriceMap, error) {
	ctx, span := otel.Tracer(opentelemetry.Name).Start(ctx, "analysis.FindRealtime")
	defer span.End()

	if len(instants) == 0 {
		return []PriceMap{}, nil
	}

	earliest, latest := windowBounds(instants, hard)
	t0 := time.Now()
	quotes, err := src.RealtimeQuotesWithin(ctx, isins, earliest, latest)
	if err != nil {
		return nil, err
	}
	log.Debug().Int("NumQuotes", len(quotes)).Dur("Elapsed", time.Since(t0)).Msg("loaded realtime prices")

	res := make([]PriceMap, 0, len(instants))
	for _, instant := range instants {
		pm := make(PriceMap, len(isins))
		for _, isin := range isins {
			best := pickQuote(quotes, isin, instant, instant.Add(-hard), instant.Add(-soft))
			if best != nil {
				pm[isin] = &DataSource{Price: RealtimeQuoteOf(best.Price), Exchange: best.Exchange}
			}
		}
		res = append(res, pm)
	}
	return res, nil
}

// FindHistorical resolves a daily close for every isin at every
// instant. Windows are truncated to civil dates so a bar from the same
// local day always qualifies.
func FindHistorical(ctx context.Context, src Source, isins []string, instants []time.Time, hard time.Duration, soft time.Duration) ([]PriceMap, error) {
	ctx, span := otel.Tracer(opentelemetry.Name).Start(ctx, "analysis.FindHistorical")
	defer span.End()

	if len(instants) == 0 {
		return []PriceMap{}, nil
	}

	tz := common.GetTimezone()
	earliest, latest := windowBounds(instants, hard)
	t0 := time.Now()
	quotes, err := src.HistoricalQuotesWithin(ctx, isins, data.Day(earliest, tz), data.Day(latest, tz))
	if err != nil {
		return nil, err
	}
	log.Debug().Int("NumQuotes", len(quotes)).Dur("Elapsed", time.Since(t0)).Msg("loaded historical prices")

	res := make([]PriceMap, 0, len(instants))
	for _, instant := range instants {
		day := data.Day(instant, tz)
		hardLB := data.Day(instant.Add(-hard), tz)
		softLB := data.Day(instant.Add(-soft), tz)
		pm := make(PriceMap, len(isins))
		for _, isin := range isins {
			best := pickBar(quotes, isin, day, hardLB, softLB)
			if best != nil {
				pm[isin] = &DataSource{Price: ClosingQuoteOf(best.Price), Exchange: best.Exchange}
			}
		}
		res = append(res, pm)
	}
	return res, nil
}

func windowBounds(instants []time.Time, hard time.Duration) (time.Time, time.Time) {
	earliest := instants[0].Add(-hard)
	latest := instants[0]
	for _, d := range instants[1:] {
		if lb := d.Add(-hard); lb.Before(earliest) {
			earliest = lb
		}
		if d.After(latest) {
			latest = d
		}
	}
	return earliest, latest
}

// pickQuote works on rows sorted by date descending: preferred venue
// inside the soft window wins, otherwise the most recent row inside the
// hard window.
func pickQuote(quotes []*data.RealtimeQuote, isin string, instant, hardLB, softLB time.Time) *data.RealtimeQuote {
	soft := make([]*data.RealtimeQuote, 0, 8)
	var hardFirst *data.RealtimeQuote
	for _, q := range quotes {
		if q.Exchange.ISIN != isin || q.Price.Date.After(instant) {
			continue
		}
		if !q.Price.Date.Before(softLB) {
			soft = append(soft, q)
		}
		if hardFirst == nil && !q.Price.Date.Before(hardLB) {
			hardFirst = q
		}
	}
	if len(soft) == 0 {
		return hardFirst
	}
	sort.SliceStable(soft, func(i, j int) bool {
		return data.CompareExchanges(&soft[i].Exchange, &soft[j].Exchange) < 0
	})
	return soft[0]
}

func pickBar(quotes []*data.HistoricalQuote, isin string, day, hardLB, softLB time.Time) *data.HistoricalQuote {
	soft := make([]*data.HistoricalQuote, 0, 8)
	var hardFirst *data.HistoricalQuote
	for _, q := range quotes {
		if q.Exchange.ISIN != isin || q.Price.Date.After(day) {
			continue
		}
		if !q.Price.Date.Before(softLB) {
			soft = append(soft, q)
		}
		if hardFirst == nil && !q.Price.Date.Before(hardLB) {
			hardFirst = q
		}
	}
	if len(soft) == 0 {
		return hardFirst
	}
	sort.SliceStable(soft, func(i, j int) bool {
		return data.CompareExchanges(&soft[i].Exchange, &soft[j].Exchange) < 0
	})
	return soft[0]
}
