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

const stockColumns = `isin, wkn, title, kind, company, fonds_type, focus, persistent, onvista_url,
	last_historical_update, last_realtime_update, launch_date, currency, management_type,
	payout_type, ter, description, benchmark_index, instrument_id`

func scanStock(row interface{ Scan(dest ...interface{}) error }, si *StockInfo) error {
	return row.Scan(&si.ISIN, &si.WKN, &si.Title, &si.Kind, &si.Company, &si.FondsType, &si.Focus,
		&si.Persistent, &si.OnvistaURL, &si.LastHistoricalUpdate, &si.LastRealtimeUpdate,
		&si.LaunchDate, &si.Currency, &si.ManagementType, &si.PayoutType, &si.TER,
		&si.Description, &si.BenchmarkIndex, &si.InstrumentID)
}

func (s *Store) ListStocks(ctx context.Context, offset int64, count int64) ([]*StockInfo, error) {
	if count <= 0 {
		count = math.MaxInt64
	}
	sql := `SELECT ` + stockColumns + ` FROM stocks ORDER BY isin ASC LIMIT $1 OFFSET $2`
	return s.queryStocks(ctx, sql, count, offset)
}

func (s *Store) GetStock(ctx context.Context, isin string) (*StockInfo, error) {
	sql := `SELECT ` + stockColumns + ` FROM stocks WHERE isin=$1`
	si := &StockInfo{}
	if err := scanStock(s.db.QueryRow(ctx, sql, isin), si); err != nil {
		return nil, ErrNotFound
	}
	return si, nil
}

// MissingStocks returns isins that appear in transactions but have no
// master data row yet. The fetcher works through this backlog.
func (s *Store) MissingStocks(ctx context.Context) ([]string, error) {
	sql := `SELECT DISTINCT t.isin FROM transactions t
		LEFT JOIN stocks s ON s.isin = t.isin
		WHERE s.isin IS NULL ORDER BY t.isin ASC`
	rows, err := s.db.Query(ctx, sql)
	if err != nil {
		log.Warn().Err(err).Msg("load missing stocks failed")
		return nil, err
	}
	defer rows.Close()

	isins := make([]string, 0, 8)
	for rows.Next() {
		var isin string
		if err := rows.Scan(&isin); err != nil {
			return nil, err
		}
		isins = append(isins, isin)
	}
	return isins, rows.Err()
}

// UpsertStock stores master data for an instrument together with its
// venue listings.
func (s *Store) UpsertStock(ctx context.Context, si *StockInfo, exchanges []*StockExchange) error {
	sql := `INSERT INTO stocks (` + stockColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)
		ON CONFLICT (isin) DO UPDATE SET
			wkn=EXCLUDED.wkn, title=EXCLUDED.title, kind=EXCLUDED.kind, company=EXCLUDED.company,
			fonds_type=EXCLUDED.fonds_type, focus=EXCLUDED.focus, onvista_url=EXCLUDED.onvista_url,
			launch_date=EXCLUDED.launch_date, currency=EXCLUDED.currency,
			management_type=EXCLUDED.management_type, payout_type=EXCLUDED.payout_type,
			ter=EXCLUDED.ter, description=EXCLUDED.description,
			benchmark_index=EXCLUDED.benchmark_index, instrument_id=EXCLUDED.instrument_id`
	_, err := s.db.Exec(ctx, sql, si.ISIN, si.WKN, si.Title, si.Kind, si.Company, si.FondsType,
		si.Focus, si.Persistent, si.OnvistaURL, si.LastHistoricalUpdate, si.LastRealtimeUpdate,
		si.LaunchDate, si.Currency, si.ManagementType, si.PayoutType, si.TER, si.Description,
		si.BenchmarkIndex, si.InstrumentID)
	if err != nil {
		log.Error().Err(err).Str("ISIN", si.ISIN).Msg("upsert stock failed")
		return err
	}

	sql = `INSERT INTO stock_exchanges (isin, name, code, quality, onvista_record_id, onvista_exchange_id)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (onvista_record_id) DO UPDATE SET name=EXCLUDED.name, code=EXCLUDED.code, quality=EXCLUDED.quality`
	for _, e := range exchanges {
		if _, err := s.db.Exec(ctx, sql, e.ISIN, e.Name, e.Code, e.Quality, e.OnvistaRecordID, e.OnvistaExchangeID); err != nil {
			log.Error().Err(err).Str("ISIN", e.ISIN).Str("Code", e.Code).Msg("upsert stock exchange failed")
			return err
		}
	}
	return nil
}

// StocksNeedingRealtimeUpdate returns instruments whose intraday data
// has not been refreshed since cutoff. Stamps are bumped even when a
// fetch fails so a broken instrument cannot starve the rest.
func (s *Store) StocksNeedingRealtimeUpdate(ctx context.Context, cutoff time.Time) ([]*StockInfo, error) {
	sql := `SELECT ` + stockColumns + ` FROM stocks
		WHERE last_realtime_update IS NULL OR last_realtime_update < $1
		ORDER BY last_realtime_update ASC NULLS FIRST`
	return s.queryStocks(ctx, sql, cutoff)
}

// StocksNeedingHistoricalUpdate is the daily-bar analogue of
// StocksNeedingRealtimeUpdate.
func (s *Store) StocksNeedingHistoricalUpdate(ctx context.Context, cutoff time.Time) ([]*StockInfo, error) {
	sql := `SELECT ` + stockColumns + ` FROM stocks
		WHERE last_historical_update IS NULL OR last_historical_update < $1
		ORDER BY last_historical_update ASC NULLS FIRST`
	return s.queryStocks(ctx, sql, cutoff)
}

func (s *Store) queryStocks(ctx context.Context, sql string, args ...interface{}) ([]*StockInfo, error) {
	rows, err := s.db.Query(ctx, sql, args...)
	if err != nil {
		log.Warn().Err(err).Msg("load stocks failed")
		return nil, err
	}
	defer rows.Close()

	stocks := make([]*StockInfo, 0, 16)
	for rows.Next() {
		si := &StockInfo{}
		if err := scanStock(rows, si); err != nil {
			return nil, err
		}
		stocks = append(stocks, si)
	}
	return stocks, rows.Err()
}

func (s *Store) SetLastRealtimeUpdate(ctx context.Context, isin string, when time.Time) error {
	sql := `UPDATE stocks SET last_realtime_update=$2 WHERE isin=$1`
	_, err := s.db.Exec(ctx, sql, isin, when)
	return err
}

func (s *Store) SetLastHistoricalUpdate(ctx context.Context, isin string, when time.Time) error {
	sql := `UPDATE stocks SET last_historical_update=$2 WHERE isin=$1`
	_, err := s.db.Exec(ctx, sql, isin, when)
	return err
}
