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

package data

import (
	"context"
	"math"
	"time"

	"github.com/rs/zerolog/log"
)

// RealtimeQuote pairs an intraday price row with the venue it was
// recorded on.
type RealtimeQuote struct {
	Price    RealtimePrice
	Exchange StockExchange
}

// HistoricalQuote pairs a daily bar with the venue it was recorded on.
type HistoricalQuote struct {
	Price    HistoricalPrice
	Exchange StockExchange
}

// ExchangesForISINs loads all venue listings for the given instruments,
// grouped by isin.
func (s *Store) ExchangesForISINs(ctx context.Context, isins []string) ([]*StockExchange, error) {
	sql := `SELECT isin, name, code, quality, onvista_record_id, onvista_exchange_id
		FROM stock_exchanges WHERE isin = ANY($1) ORDER BY isin ASC`
	rows, err := s.db.Query(ctx, sql, isins)
	if err != nil {
		log.Warn().Err(err).Msg("load stock exchanges failed")
		return nil, err
	}
	defer rows.Close()

	exchanges := make([]*StockExchange, 0, len(isins)*4)
	for rows.Next() {
		e := &StockExchange{}
		err := rows.Scan(&e.ISIN, &e.Name, &e.Code, &e.Quality, &e.OnvistaRecordID, &e.OnvistaExchangeID)
		if err != nil {
			return nil, err
		}
		exchanges = append(exchanges, e)
	}
	return exchanges, rows.Err()
}

// RealtimeQuotesWithin loads every intraday price for the given
// instruments whose timestamp falls in [earliest, latest], most recent
// first. Prices whose venue is no longer listed are skipped.
func (s *Store) RealtimeQuotesWithin(ctx context.Context, isins []string, earliest time.Time, latest time.Time) ([]*RealtimeQuote, error) {
	sql := `SELECT p.date, p.price, p.onvista_record_id,
			e.isin, e.name, e.code, e.quality, e.onvista_record_id, e.onvista_exchange_id
		FROM realtime_prices p
		INNER JOIN stock_exchanges e ON e.onvista_record_id = p.onvista_record_id
		WHERE e.isin = ANY($1) AND p.date >= $2 AND p.date <= $3
		ORDER BY p.date DESC`
	rows, err := s.db.Query(ctx, sql, isins, earliest, latest)
	if err != nil {
		log.Warn().Err(err).Msg("load realtime quotes failed")
		return nil, err
	}
	defer rows.Close()

	quotes := make([]*RealtimeQuote, 0, 256)
	for rows.Next() {
		q := &RealtimeQuote{}
		err := rows.Scan(&q.Price.Date, &q.Price.Price, &q.Price.OnvistaRecordID,
			&q.Exchange.ISIN, &q.Exchange.Name, &q.Exchange.Code, &q.Exchange.Quality,
			&q.Exchange.OnvistaRecordID, &q.Exchange.OnvistaExchangeID)
		if err != nil {
			return nil, err
		}
		quotes = append(quotes, q)
	}
	return quotes, rows.Err()
}

// HistoricalQuotesWithin loads every daily bar for the given
// instruments with a trading day in [earliest, latest], most recent
// first. Bounds are civil dates.
func (s *Store) HistoricalQuotesWithin(ctx context.Context, isins []string, earliest time.Time, latest time.Time) ([]*HistoricalQuote, error) {
	sql := `SELECT p.date, p.opening, p.closing, p.high, p.low, p.volume, p.onvista_record_id,
			e.isin, e.name, e.code, e.quality, e.onvista_record_id, e.onvista_exchange_id
		FROM historical_prices p
		INNER JOIN stock_exchanges e ON e.onvista_record_id = p.onvista_record_id
		WHERE e.isin = ANY($1) AND p.date >= $2 AND p.date <= $3
		ORDER BY p.date DESC`
	rows, err := s.db.Query(ctx, sql, isins, earliest, latest)
	if err != nil {
		log.Warn().Err(err).Msg("load historical quotes failed")
		return nil, err
	}
	defer rows.Close()

	quotes := make([]*HistoricalQuote, 0, 256)
	for rows.Next() {
		q := &HistoricalQuote{}
		err := rows.Scan(&q.Price.Date, &q.Price.Opening, &q.Price.Closing, &q.Price.High,
			&q.Price.Low, &q.Price.Volume, &q.Price.OnvistaRecordID,
			&q.Exchange.ISIN, &q.Exchange.Name, &q.Exchange.Code, &q.Exchange.Quality,
			&q.Exchange.OnvistaRecordID, &q.Exchange.OnvistaExchangeID)
		if err != nil {
			return nil, err
		}
		quotes = append(quotes, q)
	}
	return quotes, rows.Err()
}

// RealtimePricesRange loads intraday prices for the given venue records
// in ascending order.
func (s *Store) RealtimePricesRange(ctx context.Context, recordIDs []int32, start time.Time, end time.Time) ([]*RealtimePrice, error) {
	sql := `SELECT date, price, onvista_record_id FROM realtime_prices
		WHERE onvista_record_id = ANY($1) AND date >= $2 AND date <= $3
		ORDER BY date ASC`
	rows, err := s.db.Query(ctx, sql, recordIDs, start, end)
	if err != nil {
		log.Warn().Err(err).Msg("load realtime price range failed")
		return nil, err
	}
	defer rows.Close()

	prices := make([]*RealtimePrice, 0, 256)
	for rows.Next() {
		p := &RealtimePrice{}
		if err := rows.Scan(&p.Date, &p.Price, &p.OnvistaRecordID); err != nil {
			return nil, err
		}
		prices = append(prices, p)
	}
	return prices, rows.Err()
}

// HistoricalPricesRange loads daily bars for the given venue records in
// ascending order. Bounds are civil dates.
func (s *Store) HistoricalPricesRange(ctx context.Context, recordIDs []int32, start time.Time, end time.Time) ([]*HistoricalPrice, error) {
	sql := `SELECT date, opening, closing, high, low, volume, onvista_record_id FROM historical_prices
		WHERE onvista_record_id = ANY($1) AND date >= $2 AND date <= $3
		ORDER BY date ASC`
	rows, err := s.db.Query(ctx, sql, recordIDs, start, end)
	if err != nil {
		log.Warn().Err(err).Msg("load historical price range failed")
		return nil, err
	}
	defer rows.Close()

	prices := make([]*HistoricalPrice, 0, 256)
	for rows.Next() {
		p := &HistoricalPrice{}
		err := rows.Scan(&p.Date, &p.Opening, &p.Closing, &p.High, &p.Low, &p.Volume, &p.OnvistaRecordID)
		if err != nil {
			return nil, err
		}
		prices = append(prices, p)
	}
	return prices, rows.Err()
}

// RecentRealtimePrices loads the newest intraday prices across the
// given venue records, newest first, capped at limit. May return
// nothing for a venue if its newest price is very old.
func (s *Store) RecentRealtimePrices(ctx context.Context, recordIDs []int32, limit int64) ([]*RealtimePrice, error) {
	sql := `SELECT date, price, onvista_record_id FROM realtime_prices
		WHERE onvista_record_id = ANY($1) ORDER BY date DESC LIMIT $2`
	rows, err := s.db.Query(ctx, sql, recordIDs, limit)
	if err != nil {
		log.Warn().Err(err).Msg("load recent realtime prices failed")
		return nil, err
	}
	defer rows.Close()

	prices := make([]*RealtimePrice, 0, limit)
	for rows.Next() {
		p := &RealtimePrice{}
		if err := rows.Scan(&p.Date, &p.Price, &p.OnvistaRecordID); err != nil {
			return nil, err
		}
		prices = append(prices, p)
	}
	return prices, rows.Err()
}

// HistoricalPricesForRecord pages through the daily bars of one venue
// record in ascending order.
func (s *Store) HistoricalPricesForRecord(ctx context.Context, recordID int32, from time.Time, to time.Time, offset int64, count int64) ([]*HistoricalPrice, error) {
	if count <= 0 {
		count = math.MaxInt64
	}
	sql := `SELECT date, opening, closing, high, low, volume, onvista_record_id FROM historical_prices
		WHERE onvista_record_id=$1 AND date >= $2 AND date <= $3
		ORDER BY date ASC LIMIT $4 OFFSET $5`
	rows, err := s.db.Query(ctx, sql, recordID, from, to, count, offset)
	if err != nil {
		log.Warn().Err(err).Int32("OnvistaRecordID", recordID).Msg("load historical prices failed")
		return nil, err
	}
	defer rows.Close()

	prices := make([]*HistoricalPrice, 0, 256)
	for rows.Next() {
		p := &HistoricalPrice{}
		err := rows.Scan(&p.Date, &p.Opening, &p.Closing, &p.High, &p.Low, &p.Volume, &p.OnvistaRecordID)
		if err != nil {
			return nil, err
		}
		prices = append(prices, p)
	}
	return prices, rows.Err()
}

// EarliestHistoricalDate returns the oldest bar date stored for a venue
// record, or nil if there is none yet.
func (s *Store) EarliestHistoricalDate(ctx context.Context, recordID int32) (*time.Time, error) {
	sql := `SELECT MIN(date) FROM historical_prices WHERE onvista_record_id=$1`
	var earliest *time.Time
	if err := s.db.QueryRow(ctx, sql, recordID).Scan(&earliest); err != nil {
		return nil, err
	}
	return earliest, nil
}

// InsertRealtimePrices stores fetched intraday prices; rows that are
// already present are left untouched.
func (s *Store) InsertRealtimePrices(ctx context.Context, prices []*RealtimePrice) error {
	if len(prices) == 0 {
		return nil
	}
	sql := `INSERT INTO realtime_prices (date, price, onvista_record_id)
		VALUES ($1, $2, $3) ON CONFLICT DO NOTHING`
	for _, p := range prices {
		if _, err := s.db.Exec(ctx, sql, p.Date, p.Price, p.OnvistaRecordID); err != nil {
			log.Error().Err(err).Int32("OnvistaRecordID", p.OnvistaRecordID).Msg("insert realtime price failed")
			return err
		}
	}
	return nil
}

// InsertHistoricalPrices stores fetched daily bars; rows that are
// already present are left untouched.
func (s *Store) InsertHistoricalPrices(ctx context.Context, prices []*HistoricalPrice) error {
	if len(prices) == 0 {
		return nil
	}
	sql := `INSERT INTO historical_prices (date, opening, closing, high, low, volume, onvista_record_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7) ON CONFLICT DO NOTHING`
	for _, p := range prices {
		if _, err := s.db.Exec(ctx, sql, p.Date, p.Opening, p.Closing, p.High, p.Low, p.Volume, p.OnvistaRecordID); err != nil {
			log.Error().Err(err).Int32("OnvistaRecordID", p.OnvistaRecordID).Msg("insert historical price failed")
			return err
		}
	}
	return nil
}
