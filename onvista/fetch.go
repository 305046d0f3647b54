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

package onvista

import (
	"context"
	"sort"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"

	"github.com/stockbook/sb-api/data"
	"github.com/stockbook/sb-api/observability/opentelemetry"
)

// venuesPerISIN caps how many venues the historical fetcher walks per
// instrument.
const venuesPerISIN = 5

// Fetcher keeps the price tables stocked from the onvista API.
type Fetcher struct {
	store  *data.Store
	client *Client
}

func NewFetcher(store *data.Store, client *Client) *Fetcher {
	return &Fetcher{store: store, client: client}
}

// FetchMissing looks up master data for every isin that appears in
// transactions but has no stocks row yet.
func (f *Fetcher) FetchMissing(ctx context.Context) error {
	ctx, span := otel.Tracer(opentelemetry.Name).Start(ctx, "onvista.FetchMissing")
	defer span.End()

	isins, err := f.store.MissingStocks(ctx)
	if err != nil {
		return err
	}
	for _, isin := range isins {
		si, exchanges, err := f.client.Search(ctx, isin)
		if err != nil {
			log.Error().Err(err).Str("ISIN", isin).Msg("could not look up instrument")
			continue
		}
		if err := f.store.UpsertStock(ctx, si, exchanges); err != nil {
			return err
		}
		log.Info().Str("ISIN", isin).Str("Title", si.Title).Int("NumExchanges", len(exchanges)).
			Msg("stored master data for instrument")
	}
	return nil
}

// FetchRealtime grabs current quotes for the given instruments. Quotes
// on venues we have never seen are discarded; the update stamp is
// bumped even when a request fails so one broken instrument cannot
// starve the rest.
func (f *Fetcher) FetchRealtime(ctx context.Context, stocks []*data.StockInfo) error {
	ctx, span := otel.Tracer(opentelemetry.Name).Start(ctx, "onvista.FetchRealtime")
	defer span.End()

	isins := make([]string, 0, len(stocks))
	for _, s := range stocks {
		isins = append(isins, s.ISIN)
	}
	exchanges, err := f.store.ExchangesForISINs(ctx, isins)
	if err != nil {
		return err
	}
	known := make(map[int32]struct{}, len(exchanges))
	for _, e := range exchanges {
		known[e.OnvistaRecordID] = struct{}{}
	}

	for _, s := range stocks {
		prices, err := f.client.RealtimeQuotes(ctx, s)
		if err != nil {
			log.Error().Err(err).Str("ISIN", s.ISIN).Msg("error obtaining realtime data")
		} else {
			kept := make([]*data.RealtimePrice, 0, len(prices))
			for _, p := range prices {
				if _, ok := known[p.OnvistaRecordID]; ok {
					kept = append(kept, p)
				}
			}
			if len(kept) < len(prices) {
				log.Warn().Int("NumDiscarded", len(prices)-len(kept)).Int("NumTotal", len(prices)).
					Str("ISIN", s.ISIN).Msg("throwing away realtime records that belong to unknown exchanges")
			}
			if err := f.store.InsertRealtimePrices(ctx, kept); err != nil {
				return err
			}
			log.Info().Int("NumRows", len(kept)).Str("ISIN", s.ISIN).Msg("inserted realtime data")
		}

		if err := f.store.SetLastRealtimeUpdate(ctx, s.ISIN, time.Now()); err != nil {
			return err
		}
	}
	return nil
}

// FetchHistorical walks the daily-bar history for the given
// instruments on their preferred venues, requesting five-year chunks
// starting two weeks before the oldest bar we already have.
func (f *Fetcher) FetchHistorical(ctx context.Context, stocks []*data.StockInfo) error {
	ctx, span := otel.Tracer(opentelemetry.Name).Start(ctx, "onvista.FetchHistorical")
	defer span.End()

	isins := make([]string, 0, len(stocks))
	for _, s := range stocks {
		isins = append(isins, s.ISIN)
	}
	exchanges, err := f.store.ExchangesForISINs(ctx, isins)
	if err != nil {
		return err
	}
	sort.SliceStable(exchanges, func(i, j int) bool {
		return data.CompareExchanges(exchanges[i], exchanges[j]) < 0
	})

	for _, s := range stocks {
		now := time.Now()

		taken := 0
		for _, ex := range exchanges {
			if ex.ISIN != s.ISIN || taken >= venuesPerISIN {
				continue
			}
			taken++

			earliest, err := f.store.EarliestHistoricalDate(ctx, ex.OnvistaRecordID)
			if err != nil {
				return err
			}
			start := now.Add(-15 * 52 * 7 * 24 * time.Hour)
			if earliest != nil {
				start = *earliest
			}
			start = start.Add(-2 * 7 * 24 * time.Hour)

			for t := start; t.Before(now); t = t.Add(4 * 52 * 7 * 24 * time.Hour) {
				log.Info().Str("ISIN", ex.ISIN).Str("Code", ex.Code).Time("Start", t).
					Msg("requesting 5 years of historical data")

				batch, err := f.client.EODHistory(ctx, s, ex.OnvistaRecordID, t)
				if err != nil {
					log.Error().Err(err).Str("ISIN", s.ISIN).Str("Code", ex.Code).Msg("error updating historical data")
				} else {
					if err := f.store.InsertHistoricalPrices(ctx, batch); err != nil {
						return err
					}
					log.Info().Int("NumRows", len(batch)).Str("ISIN", s.ISIN).Str("Code", ex.Code).
						Msg("inserted historical data")
				}

				time.Sleep(500 * time.Millisecond)
			}
		}

		// set in any case, even if a request failed
		if err := f.store.SetLastHistoricalUpdate(ctx, s.ISIN, now); err != nil {
			return err
		}
	}
	return nil
}
