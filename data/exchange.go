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

// exchangeFavorites ranks venue codes; earlier is better. A listed code
// always beats an unlisted one; two unlisted codes compare equal.
var exchangeFavorites = []string{
	"GER", "QUO", "FRA", "LUSG", "STU", "HAM", "MUN", "BER", "GAT", "DUS",
}

func favoriteIndex(code string) int {
	for i, c := range exchangeFavorites {
		if c == code {
			return i
		}
	}
	return -1
}

// CompareExchanges orders two venues by preference. The result is
// negative when a is preferred over b, positive when b is preferred,
// and zero when neither code is ranked.
func CompareExchanges(a *StockExchange, b *StockExchange) int {
	idxA := favoriteIndex(a.Code)
	idxB := favoriteIndex(b.Code)

	switch {
	case idxA < 0 && idxB < 0:
		return 0
	case idxB < 0:
		return -1
	case idxA < 0:
		return 1
	default:
		return idxA - idxB
	}
}

// PreferredExchange returns the best ranked venue from exchanges, or nil
// when the list is empty. Ties keep the earliest entry (stable).
func PreferredExchange(exchanges []*StockExchange) *StockExchange {
	var best *StockExchange
	for _, ex := range exchanges {
		if best == nil || CompareExchanges(ex, best) < 0 {
			best = ex
		}
	}
	return best
}
