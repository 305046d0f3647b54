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
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/stockbook/sb-api/analysis"
)

var _ = Describe("InternalRateOfReturn", func() {
	var (
		t0   time.Time
		year time.Duration
	)

	BeforeEach(func() {
		t0 = time.Date(2022, 1, 1, 12, 0, 0, 0, time.UTC)
		year = 365 * 24 * time.Hour
	})

	Context("with no cash flows", func() {
		It("should not solve", func() {
			_, ok := analysis.InternalRateOfReturn(nil, year)
			Expect(ok).To(BeFalse())
		})
	})

	Context("with a 10% gain over exactly one year", func() {
		It("should solve to 10%", func() {
			flows := []analysis.CashFlow{
				{Date: t0, Amount: -100.0},
				{Date: t0.Add(year), Amount: 110.0},
			}
			irr, ok := analysis.InternalRateOfReturn(flows, year)
			Expect(ok).To(BeTrue())
			Expect(irr).To(BeNumerically("~", 0.1, 1e-6))
		})
	})

	Context("with a 10% gain over half a year", func() {
		It("should solve to 21% annualized", func() {
			flows := []analysis.CashFlow{
				{Date: t0, Amount: -1000.0},
				{Date: t0.Add(year / 2), Amount: 1100.0},
			}
			irr, ok := analysis.InternalRateOfReturn(flows, year)
			Expect(ok).To(BeTrue())
			Expect(irr).To(BeNumerically("~", 0.21, 1e-3))
		})
	})

	Context("with a single inflow", func() {
		It("should fail at the critical point", func() {
			flows := []analysis.CashFlow{
				{Date: t0, Amount: 100.0},
			}
			_, ok := analysis.InternalRateOfReturn(flows, year)
			Expect(ok).To(BeFalse())
		})
	})

	Context("with a loss", func() {
		It("should solve to a negative rate", func() {
			flows := []analysis.CashFlow{
				{Date: t0, Amount: -1000.0},
				{Date: t0.Add(year), Amount: 900.0},
			}
			irr, ok := analysis.InternalRateOfReturn(flows, year)
			Expect(ok).To(BeTrue())
			Expect(irr).To(BeNumerically("~", -0.1, 1e-3))
		})
	})
})

var _ = Describe("ConvertRate", func() {
	year := 365 * 24 * time.Hour

	It("should leave a rate alone when the periods match", func() {
		Expect(analysis.ConvertRate(0.07, year, year)).To(BeNumerically("~", 0.07, 1e-9))
	})

	It("should halve the compounding of an annual rate", func() {
		Expect(analysis.ConvertRate(0.21, year, year/2)).To(BeNumerically("~", 0.1, 1e-9))
	})

	It("should annualize a half-year rate", func() {
		Expect(analysis.ConvertRate(0.1, year/2, year)).To(BeNumerically("~", 0.21, 1e-9))
	})
})
