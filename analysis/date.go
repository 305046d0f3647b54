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

package analysis

import (
	"time"

	"github.com/stockbook/sb-api/common"
)

// Date is a civil date. It wraps a time.Time fixed to midnight UTC and
// marshals as "2006-01-02".
type Date struct {
	time.Time
}

func NewDate(year int, month time.Month, day int) Date {
	return Date{time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// DateOf truncates an instant to its civil date in the local market
// timezone.
func DateOf(t time.Time) Date {
	local := t.In(common.GetTimezone())
	return NewDate(local.Year(), local.Month(), local.Day())
}

func (d Date) MarshalJSON() ([]byte, error) {
	return []byte(`"` + d.Format("2006-01-02") + `"`), nil
}

func (d *Date) UnmarshalJSON(raw []byte) error {
	t, err := time.Parse(`"2006-01-02"`, string(raw))
	if err != nil {
		return err
	}
	d.Time = t
	return nil
}

// Pred is the previous calendar day.
func (d Date) Pred() Date {
	return Date{d.AddDate(0, 0, -1)}
}

func (d Date) AddDays(n int) Date {
	return Date{d.AddDate(0, 0, n)}
}

// FirstOfMonth returns the 1st of the date's month.
func (d Date) FirstOfMonth() Date {
	return NewDate(d.Year(), d.Month(), 1)
}

// FirstOfYear returns January 1st of the date's year.
func (d Date) FirstOfYear() Date {
	return NewDate(d.Year(), time.January, 1)
}

// PrevBusinessDay rolls the date back until it is no longer a Saturday
// or Sunday.
func (d Date) PrevBusinessDay() Date {
	for d.Weekday() == time.Saturday || d.Weekday() == time.Sunday {
		d = d.Pred()
	}
	return d
}

// At places a wall-clock time on the civil date in the local market
// timezone.
func (d Date) At(hour, minute int) time.Time {
	return time.Date(d.Year(), d.Month(), d.Day(), hour, minute, 0, 0, common.GetTimezone())
}

// NoonUTC is the date at 12:00 UTC, used as a price-less period anchor.
func (d Date) NoonUTC() time.Time {
	return time.Date(d.Year(), d.Month(), d.Day(), 12, 0, 0, 0, time.UTC)
}

func (d Date) Equal(other Date) bool {
	return d.Time.Equal(other.Time)
}

func (d Date) After(other Date) bool {
	return d.Time.After(other.Time)
}

func (d Date) Before(other Date) bool {
	return d.Time.Before(other.Time)
}
