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

package analysis_test

import (
	"context"
	"strings"
	"time"

	"github.com/goccy/go-json"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/stockbook/sb-api/analysis"
	"github.com/stockbook/sb-api/common"
	"github.com/stockbook/sb-api/data"
)

const testISIN = "IE00TEST0001"

var _ = Describe("FindRealtime", func() {
	var (
		src     *fakeSource
		instant time.Time
		window  time.Duration
	)

	BeforeEach(func() {
		src = &fakeSource{
			exchanges: []*data.StockExchange{
				{ISIN: testISIN, Name: "Xetra", Code: "GER", OnvistaRecordID: 1},
				{ISIN: testISIN, Name: "Outcry", Code: "XXX", OnvistaRecordID: 2},
			},
		}
		instant = time.Date(2022, 6, 15, 12, 0, 0, 0, time.UTC)
		window = 96 * time.Hour
	})

	Context("with fresh prices on several venues", func() {
		BeforeEach(func() {
			src.ticks = []*data.RealtimePrice{
				{Date: instant.Add(-time.Hour), Price: 100.0, OnvistaRecordID: 2},
				{Date: instant.Add(-3 * time.Hour), Price: 99.0, OnvistaRecordID: 1},
			}
		})

		It("should prefer the ranked venue over the newer price", func() {
			maps, err := analysis.FindRealtime(context.Background(), src, []string{testISIN}, []time.Time{instant}, window, window)
			Expect(err).To(BeNil())
			Expect(maps).To(HaveLen(1))

			ds := maps[0][testISIN]
			Expect(ds).ToNot(BeNil())
			Expect(ds.Exchange.Code).To(Equal("GER"))
			Expect(ds.Price.Value()).To(BeNumerically("~", 99.0))
		})

		It("should fall back to the most recent price outside the preference window", func() {
			maps, err := analysis.FindRealtime(context.Background(), src, []string{testISIN}, []time.Time{instant}, window, 30*time.Minute)
			Expect(err).To(BeNil())

			ds := maps[0][testISIN]
			Expect(ds).ToNot(BeNil())
			Expect(ds.Exchange.Code).To(Equal("XXX"))
			Expect(ds.Price.Value()).To(BeNumerically("~", 100.0))
		})
	})

	Context("with only a stale price", func() {
		BeforeEach(func() {
			src.ticks = []*data.RealtimePrice{
				{Date: instant.Add(-5 * 24 * time.Hour), Price: 98.0, OnvistaRecordID: 1},
			}
		})

		It("should resolve no price", func() {
			maps, err := analysis.FindRealtime(context.Background(), src, []string{testISIN}, []time.Time{instant}, window, window)
			Expect(err).To(BeNil())
			Expect(maps[0]).ToNot(HaveKey(testISIN))
		})
	})

	Context("with a price newer than the instant", func() {
		BeforeEach(func() {
			src.ticks = []*data.RealtimePrice{
				{Date: instant.Add(time.Hour), Price: 101.0, OnvistaRecordID: 1},
			}
		})

		It("should not look into the future", func() {
			maps, err := analysis.FindRealtime(context.Background(), src, []string{testISIN}, []time.Time{instant}, window, window)
			Expect(err).To(BeNil())
			Expect(maps[0]).ToNot(HaveKey(testISIN))
		})
	})
})

var _ = Describe("FindHistorical", func() {
	var (
		src     *fakeSource
		instant time.Time
		window  time.Duration
	)

	BeforeEach(func() {
		src = &fakeSource{
			exchanges: []*data.StockExchange{
				{ISIN: testISIN, Name: "Xetra", Code: "GER", OnvistaRecordID: 1},
				{ISIN: testISIN, Name: "Outcry", Code: "XXX", OnvistaRecordID: 2},
			},
		}
		// civil day June 15th in the market timezone
		instant = analysis.NewDate(2022, 6, 15).At(17, 30)
		window = 96 * time.Hour
	})

	Context("with a close on the same day", func() {
		BeforeEach(func() {
			src.bars = []*data.HistoricalPrice{
				{Date: time.Date(2022, 6, 15, 0, 0, 0, 0, time.UTC), Opening: 11.5, Closing: 12.0, OnvistaRecordID: 1},
				{Date: time.Date(2022, 6, 15, 0, 0, 0, 0, time.UTC), Opening: 12.5, Closing: 13.0, OnvistaRecordID: 2},
			}
		})

		It("should use the ranked venue's close", func() {
			maps, err := analysis.FindHistorical(context.Background(), src, []string{testISIN}, []time.Time{instant}, window, window)
			Expect(err).To(BeNil())

			ds := maps[0][testISIN]
			Expect(ds).ToNot(BeNil())
			Expect(ds.Exchange.Code).To(Equal("GER"))
			Expect(ds.Price.Value()).To(BeNumerically("~", 12.0))
		})
	})

	Context("with the last bar a few days back", func() {
		BeforeEach(func() {
			src.bars = []*data.HistoricalPrice{
				{Date: time.Date(2022, 6, 12, 0, 0, 0, 0, time.UTC), Closing: 11.0, OnvistaRecordID: 1},
			}
		})

		It("should fall back to it inside the hard window", func() {
			maps, err := analysis.FindHistorical(context.Background(), src, []string{testISIN}, []time.Time{instant}, window, 24*time.Hour)
			Expect(err).To(BeNil())

			ds := maps[0][testISIN]
			Expect(ds).ToNot(BeNil())
			Expect(ds.Price.Value()).To(BeNumerically("~", 11.0))
		})
	})

	Context("with only a bar older than the hard window", func() {
		BeforeEach(func() {
			src.bars = []*data.HistoricalPrice{
				{Date: time.Date(2022, 6, 8, 0, 0, 0, 0, time.UTC), Closing: 10.0, OnvistaRecordID: 1},
			}
		})

		It("should resolve no price", func() {
			maps, err := analysis.FindHistorical(context.Background(), src, []string{testISIN}, []time.Time{instant}, window, window)
			Expect(err).To(BeNil())
			Expect(maps[0]).ToNot(HaveKey(testISIN))
		})
	})
})

var _ = Describe("Quote", func() {
	bar := data.HistoricalPrice{
		Date:            time.Date(2022, 6, 15, 0, 0, 0, 0, time.UTC),
		Opening:         11.5,
		Closing:         12.0,
		OnvistaRecordID: 1,
	}

	It("should pin a close to 18:00 local time", func() {
		q := analysis.ClosingQuoteOf(bar)
		Expect(q.Time()).To(BeTemporally("==", time.Date(2022, 6, 15, 18, 0, 0, 0, common.GetTimezone())))
		Expect(q.Value()).To(BeNumerically("~", 12.0))
	})

	It("should pin an opening to 09:00 local time", func() {
		q := analysis.OpeningQuoteOf(bar)
		Expect(q.Time()).To(BeTemporally("==", time.Date(2022, 6, 15, 9, 0, 0, 0, common.GetTimezone())))
		Expect(q.Value()).To(BeNumerically("~", 11.5))
	})

	It("should tag serialized quotes with their variant", func() {
		raw, err := json.Marshal(analysis.ClosingQuoteOf(bar))
		Expect(err).To(BeNil())
		Expect(strings.Contains(string(raw), `"type":"HistoricalPrice"`)).To(BeTrue())

		raw, err = json.Marshal(analysis.OpeningQuoteOf(bar))
		Expect(err).To(BeNil())
		Expect(strings.Contains(string(raw), `"type":"HistoricalPriceOpening"`)).To(BeTrue())

		tick := data.RealtimePrice{Date: time.Now().UTC(), Price: 99.0, OnvistaRecordID: 1}
		raw, err = json.Marshal(analysis.RealtimeQuoteOf(tick))
		Expect(err).To(BeNil())
		Expect(strings.Contains(string(raw), `"type":"RealtimePrice"`)).To(BeTrue())
	})

	It("should round-trip through JSON", func() {
		raw, err := json.Marshal(analysis.ClosingQuoteOf(bar))
		Expect(err).To(BeNil())

		var q analysis.Quote
		Expect(json.Unmarshal(raw, &q)).To(Succeed())
		Expect(q.Value()).To(BeNumerically("~", 12.0))
		Expect(q.OnvistaRecordID()).To(Equal(int32(1)))
	})

	It("should reject an unknown variant", func() {
		var q analysis.Quote
		err := json.Unmarshal([]byte(`{"type":"Garbage"}`), &q)
		Expect(err).ToNot(BeNil())
	})
})
