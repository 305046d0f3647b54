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
	"time"
)

// User of the application; Hash holds the bcrypt password digest and is
// never serialized.
type User struct {
	ID       int32  `json:"id"`
	Name     string `json:"name"`
	FullName string `json:"fullName"`
	Hash     string `json:"-"`
}

// Account is a securities account (depot) belonging to a user.
type Account struct {
	ID     int32   `json:"id"`
	UserID int32   `json:"userId"`
	Name   string  `json:"name"`
	IBAN   *string `json:"iban"`
}

// Transaction is a single buy/sell/dividend booking on an account.
//
// Amount is -units*price in cents (or simply the amount in case of
// dividends); it does not include fees; negative sign means money was
// given away. Fees should carry a negative sign.
type Transaction struct {
	ID                int32     `json:"id"`
	AccountID         int32     `json:"accountId"`
	ISIN              string    `json:"isin"`
	Date              time.Time `json:"date"`
	Units             float64   `json:"units"`
	Amount            int64     `json:"amount"`
	Fees              int64     `json:"fees"`
	OnvistaExchangeID *int32    `json:"onvistaExchangeId"`
	Comments          string    `json:"comments"`
	Exchange          *string   `json:"exchange"`
	ReceiptNumber     *int64    `json:"receiptNumber"`
}

// StockInfo is the master record for an instrument, grabbed periodically
// from the quote provider for relevant ISINs.
type StockInfo struct {
	ISIN                 string     `json:"isin"`
	WKN                  string     `json:"wkn"`
	Title                string     `json:"title"`
	Kind                 string     `json:"kind"`
	Company              string     `json:"company"`
	FondsType            *string    `json:"fondsType"`
	Focus                *string    `json:"focus"`
	Persistent           bool       `json:"persistent"`
	OnvistaURL           string     `json:"onvistaUrl"`
	LastHistoricalUpdate *time.Time `json:"lastHistoricalUpdate"`
	LastRealtimeUpdate   *time.Time `json:"lastRealtimeUpdate"`
	LaunchDate           *time.Time `json:"launchDate"`
	Currency             *string    `json:"currency"`
	ManagementType       *string    `json:"managementType"`
	PayoutType           *string    `json:"payoutType"`
	TER                  *float64   `json:"ter"`
	Description          *string    `json:"description"`
	BenchmarkIndex       *string    `json:"benchmarkIndex"`
	InstrumentID         *string    `json:"instrumentId"`
}

// StockExchange is a single trading venue for an instrument.
// OnvistaRecordID keys the price rows and is specific to
// exchange+stock; OnvistaExchangeID is specific to the exchange only.
type StockExchange struct {
	ISIN              string  `json:"isin"`
	Name              string  `json:"name"`
	Code              string  `json:"code"`
	Quality           *string `json:"quality"`
	OnvistaRecordID   int32   `json:"onvistaRecordId"`
	OnvistaExchangeID *int32  `json:"onvistaExchangeId"`
}

// RealtimePrice is an intraday tick for a venue.
type RealtimePrice struct {
	Date            time.Time `json:"date"`
	Price           float64   `json:"price"`
	OnvistaRecordID int32     `json:"onvistaRecordId"`
}

// HistoricalPrice is an end-of-day bar for a venue. Date is a civil day
// (midnight UTC as stored by pgx for a DATE column).
type HistoricalPrice struct {
	Date            time.Time `json:"date"`
	Opening         float64   `json:"opening"`
	Closing         float64   `json:"closing"`
	High            float64   `json:"high"`
	Low             float64   `json:"low"`
	Volume          int32     `json:"volume"`
	OnvistaRecordID int32     `json:"onvistaRecordId"`
}

// Day truncates t to its civil date in loc.
func Day(t time.Time, loc *time.Location) time.Time {
	local := t.In(loc)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, time.UTC)
}
