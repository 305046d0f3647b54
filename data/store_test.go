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
	"context"
	"math"
	"time"

	"github.com/jackc/pgx/v4"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/pashagolub/pgxmock"

	"github.com/stockbook/sb-api/data"
)

var transactionColumns = []string{"id", "account_id", "isin", "date", "units", "amount",
	"fees", "onvista_exchange_id", "comments", "exchange", "receipt_number"}

var _ = Describe("Store", func() {
	var (
		mock  pgxmock.PgxConnIface
		store *data.Store
		ctx   context.Context
	)

	BeforeEach(func() {
		var err error
		mock, err = pgxmock.NewConn()
		Expect(err).To(BeNil())
		store = data.NewStore(mock)
		ctx = context.Background()
	})

	AfterEach(func() {
		Expect(mock.ExpectationsWereMet()).To(Succeed())
		_ = mock.Close(ctx)
	})

	Describe("GetTransaction", func() {
		It("should map a row to a transaction", func() {
			exchangeID := int32(5)
			venue := "GER"
			receipt := int64(12345)
			date := time.Date(2022, 1, 10, 10, 0, 0, 0, time.UTC)

			mock.ExpectQuery("FROM transactions t").
				WithArgs(int32(7), int32(42)).
				WillReturnRows(pgxmock.NewRows(transactionColumns).
					AddRow(int32(42), int32(3), "IE00TEST0001", date, 10.0, int64(-10000),
						int64(-500), &exchangeID, "first buy", &venue, &receipt))

			t, err := store.GetTransaction(ctx, 7, 42)
			Expect(err).To(BeNil())
			Expect(t.ID).To(Equal(int32(42)))
			Expect(t.AccountID).To(Equal(int32(3)))
			Expect(t.ISIN).To(Equal("IE00TEST0001"))
			Expect(t.Units).To(BeNumerically("~", 10.0))
			Expect(t.Amount).To(Equal(int64(-10000)))
			Expect(t.Fees).To(Equal(int64(-500)))
			Expect(*t.OnvistaExchangeID).To(Equal(int32(5)))
			Expect(*t.ReceiptNumber).To(Equal(int64(12345)))
		})

		It("should translate a missing row", func() {
			mock.ExpectQuery("FROM transactions t").
				WithArgs(int32(7), int32(42)).
				WillReturnError(pgx.ErrNoRows)

			_, err := store.GetTransaction(ctx, 7, 42)
			Expect(err).To(MatchError(data.ErrNotFound))
		})
	})

	Describe("CreateTransaction", func() {
		It("should fill in the generated id", func() {
			date := time.Date(2022, 1, 10, 10, 0, 0, 0, time.UTC)
			t := &data.Transaction{
				AccountID: 3,
				ISIN:      "IE00TEST0001",
				Date:      date,
				Units:     10.0,
				Amount:    -10000,
				Fees:      -500,
			}

			mock.ExpectQuery("INSERT INTO transactions").
				WithArgs(int32(3), "IE00TEST0001", date, 10.0, int64(-10000), int64(-500),
					(*int32)(nil), "", (*string)(nil), (*int64)(nil)).
				WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int32(99)))

			Expect(store.CreateTransaction(ctx, t)).To(Succeed())
			Expect(t.ID).To(Equal(int32(99)))
		})
	})

	Describe("DeleteTransaction", func() {
		It("should report a transaction the user does not own", func() {
			mock.ExpectExec("DELETE FROM transactions").
				WithArgs(int32(42), int32(7)).
				WillReturnResult(pgxmock.NewResult("DELETE", 0))

			err := store.DeleteTransaction(ctx, 7, 42)
			Expect(err).To(MatchError(data.ErrNotFound))
		})
	})

	Describe("UserByName", func() {
		It("should translate a missing user", func() {
			mock.ExpectQuery("FROM users").
				WithArgs("alice").
				WillReturnError(pgx.ErrNoRows)

			_, err := store.UserByName(ctx, "alice")
			Expect(err).To(MatchError(data.ErrNotFound))
		})
	})

	Describe("TransactionsByReceiptNumbers", func() {
		It("should answer an empty batch without touching the database", func() {
			ts, err := store.TransactionsByReceiptNumbers(ctx, 7, []int64{})
			Expect(err).To(BeNil())
			Expect(ts).To(BeEmpty())
		})

		It("should load the user's transactions for the given receipts", func() {
			receipt := int64(55512345)
			date := time.Date(2022, 1, 10, 10, 0, 0, 0, time.UTC)
			mock.ExpectQuery("receipt_number = ANY").
				WithArgs(int32(7), []int64{55512345}).
				WillReturnRows(pgxmock.NewRows(transactionColumns).
					AddRow(int32(42), int32(3), "IE00TEST0001", date, 10.0, int64(-10000),
						int64(-500), (*int32)(nil), "", (*string)(nil), &receipt))

			ts, err := store.TransactionsByReceiptNumbers(ctx, 7, []int64{55512345})
			Expect(err).To(BeNil())
			Expect(ts).To(HaveLen(1))
			Expect(*ts[0].ReceiptNumber).To(Equal(receipt))
		})
	})

	Describe("SavePushSubscription", func() {
		It("should upsert the endpoint with its keys", func() {
			mock.ExpectExec("INSERT INTO push_subscriptions").
				WithArgs("https://push.example.org/ep1", int32(7), "auth-key", "p256dh-key").
				WillReturnResult(pgxmock.NewResult("INSERT", 1))

			err := store.SavePushSubscription(ctx, &data.PushSubscription{
				Endpoint: "https://push.example.org/ep1",
				UserID:   7,
				Auth:     "auth-key",
				P256DH:   "p256dh-key",
			})
			Expect(err).To(BeNil())
		})
	})

	Describe("DuePushSubscriptions", func() {
		It("should load never-notified and stale endpoints grouped by user", func() {
			created := time.Date(2022, 6, 1, 8, 0, 0, 0, time.UTC)
			notified := time.Date(2022, 6, 15, 18, 0, 0, 0, time.UTC)
			cutoff := time.Date(2022, 6, 16, 18, 0, 0, 0, time.UTC)

			mock.ExpectQuery("FROM push_subscriptions").
				WithArgs(cutoff).
				WillReturnRows(pgxmock.NewRows([]string{"endpoint", "user_id", "auth", "p256dh",
					"created", "last_contact", "last_notification"}).
					AddRow("https://push.example.org/ep1", int32(3), "a1", "p1", created, created, (*time.Time)(nil)).
					AddRow("https://push.example.org/ep2", int32(7), "a2", "p2", created, created, &notified))

			subs, err := store.DuePushSubscriptions(ctx, cutoff)
			Expect(err).To(BeNil())
			Expect(subs).To(HaveLen(2))
			Expect(subs[0].UserID).To(Equal(int32(3)))
			Expect(subs[0].LastNotification).To(BeNil())
			Expect(subs[1].LastNotification).ToNot(BeNil())
		})
	})

	Describe("ListAccounts", func() {
		It("should list the user's accounts", func() {
			iban := "DE02120300000000202051"
			mock.ExpectQuery("FROM accounts").
				WithArgs(int32(7), int64(math.MaxInt64), int64(0)).
				WillReturnRows(pgxmock.NewRows([]string{"id", "user_id", "name", "iban"}).
					AddRow(int32(1), int32(7), "Depot", &iban).
					AddRow(int32(2), int32(7), "Altersvorsorge", (*string)(nil)))

			accounts, err := store.ListAccounts(ctx, 7, 0, 0)
			Expect(err).To(BeNil())
			Expect(accounts).To(HaveLen(2))
			Expect(accounts[0].Name).To(Equal("Depot"))
			Expect(*accounts[0].IBAN).To(Equal(iban))
			Expect(accounts[1].IBAN).To(BeNil())
		})
	})
})
