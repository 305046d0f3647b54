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
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/stockbook/sb-api/analysis"
	"github.com/stockbook/sb-api/data"
)

var _ = Describe("ParsePlotSource", func() {
	It("should default to automatic", func() {
		sel, ok := analysis.ParsePlotSource("")
		Expect(ok).To(BeTrue())
		Expect(sel).To(Equal(analysis.PlotAutomatic))
	})

	It("should accept the explicit sources", func() {
		sel, ok := analysis.ParsePlotSource("realtime")
		Expect(ok).To(BeTrue())
		Expect(sel).To(Equal(analysis.PlotRealtime))

		sel, ok = analysis.ParsePlotSource("Historical")
		Expect(ok).To(BeTrue())
		Expect(sel).To(Equal(analysis.PlotHistorical))
	})

	It("should reject anything else", func() {
		_, ok := analysis.ParsePlotSource("intraday")
		Expect(ok).To(BeFalse())
	})
})

var _ = Describe("ComputeStockPlot", func() {
	var src *fakeSource

	BeforeEach(func() {
		src = &fakeSource{
			exchanges: []*data.StockExchange{
				{ISIN: testISIN, Name: "Xetra", Code: "GER", OnvistaRecordID: 1},
			},
		}
	})

	Context("from daily bars", func() {
		BeforeEach(func() {
			src.bars = []*data.HistoricalPrice{
				{Date: time.Date(2022, 6, 1, 0, 0, 0, 0, time.UTC), Opening: 10.0, Closing: 11.0, OnvistaRecordID: 1},
				{Date: time.Date(2022, 6, 8, 0, 0, 0, 0, time.UTC), Opening: 12.0, Closing: 13.0, OnvistaRecordID: 1},
			}
			src.transactions = []*data.Transaction{
				{ID: 1, AccountID: 1, ISIN: testISIN, Date: time.Date(2022, 6, 3, 10, 0, 0, 0, time.UTC),
					Units: 5.0, Amount: -5000, Fees: 0},
			}
		})

		It("should sample openings and closings and drop repeated points", func() {
			plot, err := analysis.ComputeStockPlot(context.Background(), src, 1, testISIN,
				analysis.NewDate(2022, 6, 1), analysis.NewDate(2022, 6, 10), analysis.PlotHistorical)
			Expect(err).To(BeNil())
			Expect(plot.Exchange.Code).To(Equal("GER"))

			// opening, close, the buy, and the two samples of the
			// second bar; everything in between repeats
			Expect(plot.Points).To(HaveLen(5))

			Expect(*plot.Points[0].Price).To(BeNumerically("~", 10.0))
			Expect(*plot.Points[1].Price).To(BeNumerically("~", 11.0))

			afterBuy := plot.Points[2]
			Expect(afterBuy.Units).To(BeNumerically("~", 5.0))
			Expect(afterBuy.Invested).To(BeNumerically("~", 50.0))
			Expect(*afterBuy.Value).To(BeNumerically("~", 55.0))

			Expect(*plot.Points[3].Price).To(BeNumerically("~", 12.0))
			Expect(*plot.Points[4].Value).To(BeNumerically("~", 65.0))
		})
	})

	Context("from intraday prices", func() {
		BeforeEach(func() {
			src.ticks = []*data.RealtimePrice{
				{Date: time.Date(2022, 6, 8, 8, 0, 0, 0, time.UTC), Price: 10.0, OnvistaRecordID: 1},
				{Date: time.Date(2022, 6, 8, 10, 0, 0, 0, time.UTC), Price: 11.0, OnvistaRecordID: 1},
				{Date: time.Date(2022, 6, 8, 12, 0, 0, 0, time.UTC), Price: 11.0, OnvistaRecordID: 1},
			}
		})

		It("should keep one point per price change", func() {
			plot, err := analysis.ComputeStockPlot(context.Background(), src, 1, testISIN,
				analysis.NewDate(2022, 6, 8), analysis.NewDate(2022, 6, 8), analysis.PlotRealtime)
			Expect(err).To(BeNil())

			// same price twice, but from a newer observation
			Expect(plot.Points).To(HaveLen(3))
			Expect(*plot.Points[0].Price).To(BeNumerically("~", 10.0))
			Expect(*plot.Points[1].Price).To(BeNumerically("~", 11.0))
			Expect(*plot.Points[2].Price).To(BeNumerically("~", 11.0))
			Expect(plot.Points[2].PriceDate.After(*plot.Points[1].PriceDate)).To(BeTrue())
		})
	})

	Context("with automatic selection but no intraday data", func() {
		BeforeEach(func() {
			src.bars = []*data.HistoricalPrice{
				{Date: time.Date(2022, 6, 8, 0, 0, 0, 0, time.UTC), Opening: 12.0, Closing: 13.0, OnvistaRecordID: 1},
			}
		})

		It("should fall back to daily bars", func() {
			plot, err := analysis.ComputeStockPlot(context.Background(), src, 1, testISIN,
				analysis.NewDate(2022, 6, 8), analysis.NewDate(2022, 6, 8), analysis.PlotAutomatic)
			Expect(err).To(BeNil())

			Expect(plot.Points).To(HaveLen(2))
			Expect(*plot.Points[0].Price).To(BeNumerically("~", 12.0))
			Expect(*plot.Points[1].Price).To(BeNumerically("~", 13.0))
		})
	})

	Context("for an instrument with no listings", func() {
		It("should report the missing venue", func() {
			_, err := analysis.ComputeStockPlot(context.Background(), src, 1, "XX0000000000",
				analysis.NewDate(2022, 6, 8), analysis.NewDate(2022, 6, 8), analysis.PlotHistorical)
			Expect(err).To(MatchError(data.ErrNoExchanges))
		})
	})
})

var _ = Describe("ComputePortfolioPlot", func() {
	const unlistedISIN = "DE00NOLIST00"

	var src *fakeSource

	BeforeEach(func() {
		src = &fakeSource{
			exchanges: []*data.StockExchange{
				{ISIN: testISIN, Name: "Xetra", Code: "GER", OnvistaRecordID: 1},
			},
			bars: []*data.HistoricalPrice{
				{Date: time.Date(2022, 6, 8, 0, 0, 0, 0, time.UTC), Opening: 12.0, Closing: 13.0, OnvistaRecordID: 1},
			},
			transactions: []*data.Transaction{
				{ID: 1, AccountID: 1, ISIN: testISIN, Date: time.Date(2022, 6, 3, 10, 0, 0, 0, time.UTC),
					Units: 5.0, Amount: -5000, Fees: 0},
				{ID: 2, AccountID: 1, ISIN: unlistedISIN, Date: time.Date(2022, 6, 3, 11, 0, 0, 0, time.UTC),
					Units: 2.0, Amount: -2000, Fees: 0},
			},
		}
	})

	It("should count invested money of unpriceable positions but leave value open", func() {
		plot, err := analysis.ComputePortfolioPlot(context.Background(), src, 1,
			analysis.NewDate(2022, 6, 8), analysis.NewDate(2022, 6, 8), analysis.PlotHistorical)
		Expect(err).To(BeNil())

		Expect(plot.Exchanges).To(HaveLen(1))
		Expect(plot.Exchanges[0].Code).To(Equal("GER"))

		// both samples collapse because value stays unknown
		Expect(plot.Points).To(HaveLen(1))
		Expect(plot.Points[0].Invested).To(BeNumerically("~", 70.0))
		Expect(plot.Points[0].Value).To(BeNil())
	})

	It("should value the portfolio when every position is priced", func() {
		src.transactions = src.transactions[:1]

		plot, err := analysis.ComputePortfolioPlot(context.Background(), src, 1,
			analysis.NewDate(2022, 6, 8), analysis.NewDate(2022, 6, 8), analysis.PlotHistorical)
		Expect(err).To(BeNil())

		Expect(plot.Points).To(HaveLen(2))
		Expect(plot.Points[0].Invested).To(BeNumerically("~", 50.0))
		Expect(*plot.Points[0].Value).To(BeNumerically("~", 60.0))
		Expect(*plot.Points[1].Value).To(BeNumerically("~", 65.0))
	})
})
