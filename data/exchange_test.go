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

package data_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/stockbook/sb-api/data"
)

func sign(n int) int {
	switch {
	case n < 0:
		return -1
	case n > 0:
		return 1
	default:
		return 0
	}
}

var _ = Describe("CompareExchanges", func() {
	cmp := func(a string, b string) int {
		return sign(data.CompareExchanges(
			&data.StockExchange{Code: a},
			&data.StockExchange{Code: b},
		))
	}

	DescribeTable("venue ranking",
		func(a string, b string, expected int) {
			Expect(cmp(a, b)).To(Equal(expected))
			Expect(cmp(b, a)).To(Equal(-expected))
		},
		Entry("Xetra beats Frankfurt", "GER", "FRA", -1),
		Entry("Quotrix beats Stuttgart", "QUO", "STU", -1),
		Entry("a ranked venue beats an unranked one", "DUS", "NYSE", -1),
		Entry("two unranked venues are equal", "NYSE", "NASDAQ", 0),
		Entry("a venue ties with itself", "GER", "GER", 0),
	)
})

var _ = Describe("PreferredExchange", func() {
	It("should return nil for no listings", func() {
		Expect(data.PreferredExchange(nil)).To(BeNil())
	})

	It("should pick the best ranked venue", func() {
		exchanges := []*data.StockExchange{
			{Code: "STU", OnvistaRecordID: 1},
			{Code: "GER", OnvistaRecordID: 2},
			{Code: "NYSE", OnvistaRecordID: 3},
		}
		Expect(data.PreferredExchange(exchanges).OnvistaRecordID).To(Equal(int32(2)))
	})

	It("should keep the first venue on a tie", func() {
		exchanges := []*data.StockExchange{
			{Code: "NYSE", OnvistaRecordID: 1},
			{Code: "NASDAQ", OnvistaRecordID: 2},
		}
		Expect(data.PreferredExchange(exchanges).OnvistaRecordID).To(Equal(int32(1)))
	})
})
