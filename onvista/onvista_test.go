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

package onvista_test

import (
	"context"
	"net/http"
	"time"

	"github.com/jarcoal/httpmock"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/stockbook/sb-api/data"
	"github.com/stockbook/sb-api/onvista"
)

const snapshotJSON = `{
	"instrument": {"isin": "IE00TEST0001", "name": "Test World ETF"},
	"fundsBaseData": {
		"nameInvestmentCompany": "Test Asset Management",
		"nameTypeFund": "Aktienfonds",
		"nameInvestmentFocus": "Welt",
		"isoCurrency": "USD",
		"ongoingCharges": 0.2,
		"dateEmission": 1262304000
	},
	"quoteList": {"list": [
		{
			"market": {"name": "Xetra", "codeExchange": "GER", "idNotation": 111, "idExchange": 1, "nameQuality": "RLT"},
			"last": 99.5,
			"datetimeLast": 1655300000
		},
		{
			"market": {"name": "Frankfurt", "codeExchange": "FRA", "idNotation": 222},
			"last": 99.0,
			"datetimeLast": 0
		}
	]}
}`

var _ = Describe("Client", func() {
	var client *onvista.Client

	BeforeEach(func() {
		hc := &http.Client{}
		httpmock.ActivateNonDefault(hc)
		client = onvista.NewClientWithHTTP(hc)
	})

	AfterEach(func() {
		httpmock.DeactivateAndReset()
	})

	Describe("Search", func() {
		Context("for a fund", func() {
			BeforeEach(func() {
				httpmock.RegisterResponder("GET", "https://api.onvista.de/api/v1/instruments/query?searchValue=IE00TEST0001",
					httpmock.NewStringResponder(200, `{"list": [{
						"isin": "IE00TEST0001",
						"wkn": "A1TEST",
						"name": "Test World ETF",
						"entityType": "FUND",
						"entityValue": "123456",
						"urls": {"WEBSITE": "https://www.onvista.de/etf/test-world"}
					}]}`))
				httpmock.RegisterResponder("GET", "https://api.onvista.de/api/v1/instruments/FUND/123456/snapshot",
					httpmock.NewStringResponder(200, snapshotJSON))
			})

			It("should assemble master data and venues", func() {
				si, exchanges, err := client.Search(context.Background(), "IE00TEST0001")
				Expect(err).To(BeNil())

				Expect(si.ISIN).To(Equal("IE00TEST0001"))
				Expect(si.WKN).To(Equal("A1TEST"))
				Expect(si.Kind).To(Equal("ETF"))
				Expect(si.Company).To(Equal("Test Asset Management"))
				Expect(*si.FondsType).To(Equal("Aktienfonds"))
				Expect(*si.Currency).To(Equal("USD"))
				Expect(*si.TER).To(BeNumerically("~", 0.2))
				Expect(si.LaunchDate.Year()).To(Equal(2010))
				Expect(*si.InstrumentID).To(Equal("123456"))

				Expect(exchanges).To(HaveLen(2))
				Expect(exchanges[0].Code).To(Equal("GER"))
				Expect(exchanges[0].OnvistaRecordID).To(Equal(int32(111)))
				Expect(*exchanges[0].Quality).To(Equal("RLT"))
				Expect(exchanges[1].Code).To(Equal("FRA"))
				Expect(exchanges[1].OnvistaExchangeID).To(BeNil())
			})
		})

		Context("for an unknown needle", func() {
			BeforeEach(func() {
				httpmock.RegisterResponder("GET", "https://api.onvista.de/api/v1/instruments/query?searchValue=garbage",
					httpmock.NewStringResponder(200, `{"list": []}`))
			})

			It("should report the miss", func() {
				_, _, err := client.Search(context.Background(), "garbage")
				Expect(err).To(MatchError(onvista.ErrNotFound))
			})
		})
	})

	Describe("RealtimeQuotes", func() {
		var si *data.StockInfo

		BeforeEach(func() {
			instrumentID := "123456"
			si = &data.StockInfo{ISIN: "IE00TEST0001", Kind: "ETF", InstrumentID: &instrumentID}

			httpmock.RegisterResponder("GET", "https://api.onvista.de/api/v1/instruments/FUND/123456/snapshot",
				httpmock.NewStringResponder(200, snapshotJSON))
		})

		It("should skip venues without a current quote", func() {
			prices, err := client.RealtimeQuotes(context.Background(), si)
			Expect(err).To(BeNil())

			Expect(prices).To(HaveLen(1))
			Expect(prices[0].OnvistaRecordID).To(Equal(int32(111)))
			Expect(prices[0].Price).To(BeNumerically("~", 99.5))
			Expect(prices[0].Date).To(BeTemporally("==", time.Unix(1655300000, 0).UTC()))
		})

		It("should refuse an instrument without an id", func() {
			si.InstrumentID = nil
			_, err := client.RealtimeQuotes(context.Background(), si)
			Expect(err).ToNot(BeNil())
		})
	})

	Describe("EODHistory", func() {
		var si *data.StockInfo

		BeforeEach(func() {
			instrumentID := "123456"
			si = &data.StockInfo{ISIN: "IE00TEST0001", Kind: "ETF", InstrumentID: &instrumentID}
		})

		It("should map the parallel arrays to daily bars", func() {
			httpmock.RegisterResponder("GET",
				"https://api.onvista.de/api/v1/instruments/FUND/123456/eod_history?idNotation=111&range=Y5&startDate=2020-01-01",
				httpmock.NewStringResponder(200, `{
					"datetimeLast": [1654473600, 1654560000],
					"first": [10.0, 10.5],
					"last": [10.4, 10.9],
					"low": [9.9, 10.4],
					"high": [10.6, 11.0],
					"volume": [1000, 1200]
				}`))

			bars, err := client.EODHistory(context.Background(), si, 111, time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC))
			Expect(err).To(BeNil())

			Expect(bars).To(HaveLen(2))
			Expect(bars[0].Date).To(BeTemporally("==", time.Date(2022, 6, 6, 0, 0, 0, 0, time.UTC)))
			Expect(bars[0].Opening).To(BeNumerically("~", 10.0))
			Expect(bars[0].Closing).To(BeNumerically("~", 10.4))
			Expect(bars[0].Volume).To(Equal(int32(1000)))
			Expect(bars[1].Closing).To(BeNumerically("~", 10.9))
			Expect(bars[1].OnvistaRecordID).To(Equal(int32(111)))
		})

		It("should reject series of unequal lengths", func() {
			httpmock.RegisterResponder("GET",
				"https://api.onvista.de/api/v1/instruments/FUND/123456/eod_history?idNotation=111&range=Y5&startDate=2020-01-01",
				httpmock.NewStringResponder(200, `{
					"datetimeLast": [1654473600, 1654560000],
					"first": [10.0],
					"last": [10.4, 10.9],
					"low": [9.9, 10.4],
					"high": [10.6, 11.0],
					"volume": [1000, 1200]
				}`))

			_, err := client.EODHistory(context.Background(), si, 111, time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC))
			Expect(err).To(MatchError(onvista.ErrMalformedSeries))
		})
	})
})
