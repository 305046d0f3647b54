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

var _ = Describe("ComputePortfolio", func() {
	var (
		src  *fakeSource
		date time.Time
	)

	BeforeEach(func() {
		src = &fakeSource{
			exchanges: []*data.StockExchange{
				{ISIN: testISIN, Name: "Xetra", Code: "GER", OnvistaRecordID: 1},
			},
			ticks: []*data.RealtimePrice{
				{Date: time.Date(2022, 6, 16, 14, 0, 0, 0, time.UTC), Price: 13.0, OnvistaRecordID: 1},
			},
			bars: []*data.HistoricalPrice{
				{Date: time.Date(2022, 6, 15, 0, 0, 0, 0, time.UTC), Opening: 11.5, Closing: 12.0, OnvistaRecordID: 1},
			},
			transactions: []*data.Transaction{
				{ID: 1, AccountID: 1, ISIN: testISIN, Date: time.Date(2022, 1, 10, 10, 0, 0, 0, time.UTC),
					Units: 10.0, Amount: -10000, Fees: -500},
			},
		}
		date = time.Date(2022, 6, 16, 15, 0, 0, 0, time.UTC)
	})

	Context("with intraday prices", func() {
		It("should value every holding at the latest tick", func() {
			p, err := analysis.ComputePortfolio(context.Background(), src, 1, date, true)
			Expect(err).To(BeNil())

			Expect(p.Invested).To(BeNumerically("~", -105.0))
			Expect(p.Value).ToNot(BeNil())
			Expect(*p.Value).To(BeNumerically("~", 130.0))
			Expect(p.Stocks).To(HaveLen(1))

			pos := p.Stocks[0]
			Expect(pos.ISIN).To(Equal(testISIN))
			Expect(pos.Units).To(BeNumerically("~", 10.0))
			Expect(pos.DataSource).ToNot(BeNil())
			Expect(pos.DataSource.Exchange.Code).To(Equal("GER"))
			Expect(pos.Transactions).To(HaveLen(1))
		})

		It("should solve the annualized rate of return", func() {
			p, err := analysis.ComputePortfolio(context.Background(), src, 1, date, true)
			Expect(err).To(BeNil())

			// 105 paid in January, worth 130 in mid June
			Expect(p.IRR).ToNot(BeNil())
			Expect(*p.IRR).To(BeNumerically("~", 0.642, 1e-2))
			Expect(p.Stocks[0].IRR).ToNot(BeNil())
		})
	})

	Context("with daily closes", func() {
		It("should value every holding at the close", func() {
			p, err := analysis.ComputePortfolio(context.Background(), src, 1, date, false)
			Expect(err).To(BeNil())

			Expect(p.Value).ToNot(BeNil())
			Expect(*p.Value).To(BeNumerically("~", 120.0))
		})
	})

	Context("with an unpriceable holding", func() {
		BeforeEach(func() {
			src.transactions = append(src.transactions, &data.Transaction{
				ID: 2, AccountID: 1, ISIN: "DE00NOLIST00", Date: time.Date(2022, 2, 1, 10, 0, 0, 0, time.UTC),
				Units: 2.0, Amount: -2000, Fees: 0,
			})
		})

		It("should leave the total value and rate open", func() {
			p, err := analysis.ComputePortfolio(context.Background(), src, 1, date, true)
			Expect(err).To(BeNil())

			Expect(p.Invested).To(BeNumerically("~", -125.0))
			Expect(p.Value).To(BeNil())
			Expect(p.IRR).To(BeNil())
			Expect(p.Stocks).To(HaveLen(2))
		})
	})
})
