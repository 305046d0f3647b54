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

// Package onvista talks to the onvista JSON API, the quote provider
// for German trading venues.
package onvista

import (
	"context"
	"errors"
	"fmt"
	"io/ioutil"
	"net/http"
	"net/url"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/stockbook/sb-api/data"
	"github.com/stockbook/sb-api/observability/opentelemetry"
)

var (
	ErrNotFound        = errors.New("onvista knows no instrument for search value")
	ErrMalformedSeries = errors.New("onvista returned eod series of unequal lengths")
)

var onvistaAPI = "https://api.onvista.de"

type Client struct {
	client *http.Client
}

func NewClient() *Client {
	return &Client{
		client: &http.Client{Timeout: 30 * time.Second},
	}
}

// NewClientWithHTTP wraps an existing http client; tests use it to
// install a mock transport.
func NewClientWithHTTP(hc *http.Client) *Client {
	return &Client{client: hc}
}

type searchResponse struct {
	List []struct {
		ISIN         string `json:"isin"`
		WKN          string `json:"wkn"`
		Name         string `json:"name"`
		EntityType   string `json:"entityType"`
		EntityValue  string `json:"entityValue"`
		InstrumentID string `json:"entityValueAlt"`
		URL          struct {
			Website string `json:"WEBSITE"`
		} `json:"urls"`
	} `json:"list"`
}

type snapshotResponse struct {
	Instrument struct {
		ISIN string `json:"isin"`
		Name string `json:"name"`
	} `json:"instrument"`
	StocksBaseData struct {
		Company string `json:"nameCompany"`
	} `json:"stocksBaseData"`
	FundsBaseData struct {
		Company        string   `json:"nameInvestmentCompany"`
		FondsType      *string  `json:"nameTypeFund"`
		Focus          *string  `json:"nameInvestmentFocus"`
		Currency       *string  `json:"isoCurrency"`
		ManagementType *string  `json:"nameTypeManagement"`
		PayoutType     *string  `json:"nameTypeUseOfProfit"`
		TER            *float64 `json:"ongoingCharges"`
		LaunchDate     *int64   `json:"dateEmission"`
		Description    *string  `json:"descriptionFund"`
		BenchmarkIndex *string  `json:"nameBenchmarkIndex"`
	} `json:"fundsBaseData"`
	QuoteList struct {
		List []struct {
			Market struct {
				Name         string  `json:"name"`
				CodeExchange string  `json:"codeExchange"`
				IDNotation   int32   `json:"idNotation"`
				IDExchange   *int32  `json:"idExchange"`
				Quality      *string `json:"nameQuality"`
			} `json:"market"`
			Last         float64 `json:"last"`
			DatetimeLast int64   `json:"datetimeLast"`
		} `json:"list"`
	} `json:"quoteList"`
}

type eodResponse struct {
	DatetimeLast []int64   `json:"datetimeLast"`
	First        []float64 `json:"first"`
	Last         []float64 `json:"last"`
	Low          []float64 `json:"low"`
	High         []float64 `json:"high"`
	Volume       []float64 `json:"volume"`
}

func (c *Client) get(ctx context.Context, rawURL string, out interface{}) error {
	ctx, span := otel.Tracer(opentelemetry.Name).Start(ctx, "onvista.get")
	defer span.End()
	span.SetAttributes(attribute.KeyValue{Key: "Url", Value: attribute.StringValue(rawURL)})

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		span.RecordError(err)
		msg := "onvista http request failed"
		span.SetStatus(codes.Error, msg)
		log.Error().Err(err).Str("Url", rawURL).Msg(msg)
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		span.SetAttributes(attribute.KeyValue{Key: "StatusCode", Value: attribute.IntValue(resp.StatusCode)})
		msg := "onvista returned invalid response code"
		span.SetStatus(codes.Error, msg)
		log.Error().Int("HTTPResponseStatusCode", resp.StatusCode).Str("Url", rawURL).Msg(msg)
		return fmt.Errorf("HTTP request returned invalid status code: %d", resp.StatusCode)
	}

	body, err := ioutil.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	return json.Unmarshal(body, out)
}

// Search resolves an isin (or wkn, or name) to instrument master data
// and the venues it trades on.
func (c *Client) Search(ctx context.Context, needle string) (*data.StockInfo, []*data.StockExchange, error) {
	ctx, span := otel.Tracer(opentelemetry.Name).Start(ctx, "onvista.Search")
	defer span.End()

	searchURL := fmt.Sprintf("%s/api/v1/instruments/query?searchValue=%s", onvistaAPI, url.QueryEscape(needle))
	var sr searchResponse
	if err := c.get(ctx, searchURL, &sr); err != nil {
		return nil, nil, err
	}
	if len(sr.List) == 0 {
		log.Warn().Str("SearchValue", needle).Msg("onvista search came up empty")
		return nil, nil, ErrNotFound
	}
	hit := sr.List[0]

	var kind string
	switch hit.EntityType {
	case "FUND":
		kind = "ETF"
	case "STOCK":
		kind = "Aktie"
	case "DERIVATIVE":
		kind = "ETC"
	default:
		kind = hit.EntityType
	}

	snapURL := fmt.Sprintf("%s/api/v1/instruments/%s/%s/snapshot", onvistaAPI, hit.EntityType, url.PathEscape(hit.EntityValue))
	var snap snapshotResponse
	if err := c.get(ctx, snapURL, &snap); err != nil {
		return nil, nil, err
	}

	si := &data.StockInfo{
		ISIN:       hit.ISIN,
		WKN:        hit.WKN,
		Title:      hit.Name,
		Kind:       kind,
		OnvistaURL: hit.URL.Website,
	}
	if hit.EntityValue != "" {
		instrumentID := hit.EntityValue
		si.InstrumentID = &instrumentID
	}
	switch kind {
	case "ETF":
		si.Company = snap.FundsBaseData.Company
		si.FondsType = snap.FundsBaseData.FondsType
		si.Focus = snap.FundsBaseData.Focus
		si.Currency = snap.FundsBaseData.Currency
		si.ManagementType = snap.FundsBaseData.ManagementType
		si.PayoutType = snap.FundsBaseData.PayoutType
		si.TER = snap.FundsBaseData.TER
		si.Description = snap.FundsBaseData.Description
		si.BenchmarkIndex = snap.FundsBaseData.BenchmarkIndex
		if snap.FundsBaseData.LaunchDate != nil {
			launch := time.Unix(*snap.FundsBaseData.LaunchDate, 0).UTC()
			si.LaunchDate = &launch
		}
	default:
		si.Company = snap.StocksBaseData.Company
	}

	exchanges := make([]*data.StockExchange, 0, len(snap.QuoteList.List))
	for _, q := range snap.QuoteList.List {
		exchanges = append(exchanges, &data.StockExchange{
			ISIN:              hit.ISIN,
			Name:              q.Market.Name,
			Code:              q.Market.CodeExchange,
			Quality:           q.Market.Quality,
			OnvistaRecordID:   q.Market.IDNotation,
			OnvistaExchangeID: q.Market.IDExchange,
		})
	}

	return si, exchanges, nil
}

// RealtimeQuotes grabs the current quote on every venue an instrument
// trades on.
func (c *Client) RealtimeQuotes(ctx context.Context, si *data.StockInfo) ([]*data.RealtimePrice, error) {
	ctx, span := otel.Tracer(opentelemetry.Name).Start(ctx, "onvista.RealtimeQuotes")
	defer span.End()

	entityType := entityTypeOf(si.Kind)
	if si.InstrumentID == nil {
		return nil, fmt.Errorf("%s has no instrument id", si.ISIN)
	}

	snapURL := fmt.Sprintf("%s/api/v1/instruments/%s/%s/snapshot", onvistaAPI, entityType, url.PathEscape(*si.InstrumentID))
	var snap snapshotResponse
	if err := c.get(ctx, snapURL, &snap); err != nil {
		return nil, err
	}

	prices := make([]*data.RealtimePrice, 0, len(snap.QuoteList.List))
	for _, q := range snap.QuoteList.List {
		if q.DatetimeLast == 0 {
			continue
		}
		prices = append(prices, &data.RealtimePrice{
			Date:            time.Unix(q.DatetimeLast, 0).UTC(),
			Price:           q.Last,
			OnvistaRecordID: q.Market.IDNotation,
		})
	}
	return prices, nil
}

// EODHistory loads up to five years of daily bars for one venue record
// starting at start.
func (c *Client) EODHistory(ctx context.Context, si *data.StockInfo, recordID int32, start time.Time) ([]*data.HistoricalPrice, error) {
	ctx, span := otel.Tracer(opentelemetry.Name).Start(ctx, "onvista.EODHistory")
	defer span.End()

	entityType := entityTypeOf(si.Kind)
	if si.InstrumentID == nil {
		return nil, fmt.Errorf("%s has no instrument id", si.ISIN)
	}

	eodURL := fmt.Sprintf("%s/api/v1/instruments/%s/%s/eod_history?idNotation=%d&range=Y5&startDate=%s",
		onvistaAPI, entityType, url.PathEscape(*si.InstrumentID), recordID, start.Format("2006-01-02"))
	var eod eodResponse
	if err := c.get(ctx, eodURL, &eod); err != nil {
		return nil, err
	}

	n := len(eod.DatetimeLast)
	if len(eod.First) != n || len(eod.Last) != n || len(eod.Low) != n || len(eod.High) != n || len(eod.Volume) != n {
		return nil, ErrMalformedSeries
	}

	bars := make([]*data.HistoricalPrice, 0, n)
	for i := 0; i < n; i++ {
		day := time.Unix(eod.DatetimeLast[i], 0).UTC()
		bars = append(bars, &data.HistoricalPrice{
			Date:            time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC),
			Opening:         eod.First[i],
			Closing:         eod.Last[i],
			Low:             eod.Low[i],
			High:            eod.High[i],
			Volume:          int32(eod.Volume[i]),
			OnvistaRecordID: recordID,
		})
	}
	return bars, nil
}

func entityTypeOf(kind string) string {
	switch kind {
	case "ETF":
		return "FUND"
	case "Aktie":
		return "STOCK"
	case "ETC", "ETN":
		return "DERIVATIVE"
	default:
		return kind
	}
}
