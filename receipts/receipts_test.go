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

package receipts_test

import (
	"context"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/stockbook/sb-api/data"
	"github.com/stockbook/sb-api/receipts"
)

const purchasePage = `Depot-Nr. 100200300
Wertpapierabrechnung  Kauf  Kommissionsgeschäft
SEITENNUMMER=1
ISIN  IE00TEST0001 (WKN A0TEST)
Abrechnungs-Nr.  55512345
Nominal  STK 10,000  Kurs  EUR 100,50
Kurswert EUR 1.005,00
Konto-Nr.  987654321
Betrag zu Ihren Lasten  EUR 1.014,90
Handelstag 10.01.2022  Handelszeit 10:30  Handelsplatz Börse Xetra
`

const otcPurchasePage = `Depot-Nr. 100200300
Wertpapierabrechnung  Kauf Sparplan  Kommissionsgeschäft
SEITENNUMMER=1
ISIN  IE00TEST0001 (WKN A0TEST)
Abrechnungs-Nr.  55512346
Nominal  STK 2,500  Kurs  EUR 100,00
Kurswert EUR 250,00
Konto-Nr.  987654321
Betrag zu Ihren Lasten  EUR 250,00
Handelstag 11.01.2022  Handelszeit 09:15  Handelsplatz außerbörslich Quotrix/EUR
`

const dividendPage = `Depot-Nr. 100200300
Erträgnisgutschrift
SEITENNUMMER=1
ISIN  IE00TEST0001
Abrechnungs-Nr.  55598765
Nominal  STK 10,000
Ausschüttungsbetrag pro Stück  EUR 0,25
Ausschüttung für  01.01.2022 - 31.03.2022
Konto-Nr.  987654321
Betrag zu Ihren Gunsten  EUR 2,50
Wert  15.04.2022
`

const taxPage = `Depot-Nr. 100200300
SEITENNUMMER=1
Steuerbelastung
aus Wertpapieren
`

const followUpPage = `Depot-Nr. 100200300
SEITENNUMMER=2
Fortsetzung der Abrechnung
`

var _ = Describe("ParseText", func() {
	Context("with a purchase page", func() {
		It("should split the debited amount into gross amount and fees", func() {
			drafts, err := receipts.ParseText(purchasePage)
			Expect(err).To(BeNil())
			Expect(drafts).To(HaveLen(1))

			d := drafts[0]
			Expect(d.Transaction.ISIN).To(Equal("IE00TEST0001"))
			Expect(d.Transaction.Units).To(BeNumerically("~", 10.0))
			Expect(d.Transaction.Amount).To(Equal(int64(-100500)))
			Expect(d.Transaction.Fees).To(Equal(int64(-990)))
			Expect(d.Transaction.ReceiptNumber).ToNot(BeNil())
			Expect(*d.Transaction.ReceiptNumber).To(Equal(int64(55512345)))
			Expect(d.AccountNumber).To(Equal(uint64(987654321)))
			Expect(d.OverTheCounter).To(BeFalse())
		})

		It("should keep the venue name for later resolution", func() {
			drafts, err := receipts.ParseText(purchasePage)
			Expect(err).To(BeNil())
			Expect(drafts[0].Transaction.Exchange).ToNot(BeNil())
			Expect(*drafts[0].Transaction.Exchange).To(Equal("Xetra"))
		})

		It("should convert the trade time from local time", func() {
			drafts, err := receipts.ParseText(purchasePage)
			Expect(err).To(BeNil())
			// 10:30 Berlin time in January is 09:30 UTC
			Expect(drafts[0].Transaction.Date).To(
				BeTemporally("==", time.Date(2022, 1, 10, 9, 30, 0, 0, time.UTC)))
		})
	})

	Context("with an over-the-counter purchase", func() {
		It("should strip the currency from the venue and mark the draft", func() {
			drafts, err := receipts.ParseText(otcPurchasePage)
			Expect(err).To(BeNil())
			Expect(drafts).To(HaveLen(1))
			Expect(drafts[0].OverTheCounter).To(BeTrue())
			Expect(*drafts[0].Transaction.Exchange).To(Equal("Quotrix"))
			Expect(drafts[0].Transaction.Fees).To(Equal(int64(0)))
		})
	})

	Context("with a dividend page", func() {
		It("should book the credited amount without units", func() {
			drafts, err := receipts.ParseText(dividendPage)
			Expect(err).To(BeNil())
			Expect(drafts).To(HaveLen(1))

			d := drafts[0]
			Expect(d.Transaction.Units).To(BeNumerically("~", 0.0))
			Expect(d.Transaction.Amount).To(Equal(int64(250)))
			Expect(d.Transaction.Fees).To(Equal(int64(0)))
			Expect(d.Transaction.Exchange).To(BeNil())
			Expect(d.OverTheCounter).To(BeTrue())
			Expect(d.Transaction.Comments).To(
				Equal("Ausschüttung für 01.01.2022 - 31.03.2022, EUR 0,25 pro Stück, 10.000 Stück im Besitz"))
			// value date midnight Berlin time in April is 22:00 UTC the day before
			Expect(d.Transaction.Date).To(
				BeTemporally("==", time.Date(2022, 4, 14, 22, 0, 0, 0, time.UTC)))
		})
	})

	Context("with several pages in one document", func() {
		It("should parse every settlement page and skip the rest", func() {
			drafts, err := receipts.ParseText(purchasePage + dividendPage + followUpPage)
			Expect(err).To(BeNil())
			Expect(drafts).To(HaveLen(2))
		})
	})

	Context("with a tax-only document", func() {
		It("should ignore it", func() {
			drafts, err := receipts.ParseText(taxPage)
			Expect(err).To(BeNil())
			Expect(drafts).To(BeEmpty())
		})
	})

	Context("with an unrecognized settlement page", func() {
		It("should reject the document", func() {
			_, err := receipts.ParseText("Depot-Nr. 100200300\nSEITENNUMMER=1\nGutschrift\n")
			Expect(err).To(MatchError(receipts.ErrUnknownReceipt))
		})
	})

	Context("with no settlement pages at all", func() {
		It("should report the missing transactions", func() {
			_, err := receipts.ParseText(followUpPage)
			Expect(err).To(MatchError(receipts.ErrNoTransactions))
		})
	})
})

type fakeLedger struct {
	accounts  []*data.Account
	existing  []*data.Transaction
	exchanges []*data.StockExchange
	created   []*data.Transaction
}

func (f *fakeLedger) ListAccounts(ctx context.Context, userID int32, offset int64, count int64) ([]*data.Account, error) {
	return f.accounts, nil
}

func (f *fakeLedger) TransactionsByReceiptNumbers(ctx context.Context, userID int32, numbers []int64) ([]*data.Transaction, error) {
	matches := make([]*data.Transaction, 0, len(f.existing))
	for _, t := range f.existing {
		if t.ReceiptNumber == nil {
			continue
		}
		for _, n := range numbers {
			if *t.ReceiptNumber == n {
				matches = append(matches, t)
			}
		}
	}
	return matches, nil
}

func (f *fakeLedger) ExchangesForISINs(ctx context.Context, isins []string) ([]*data.StockExchange, error) {
	return f.exchanges, nil
}

func (f *fakeLedger) CreateTransaction(ctx context.Context, t *data.Transaction) error {
	t.ID = int32(len(f.created) + 1)
	f.created = append(f.created, t)
	return nil
}

var _ = Describe("Book", func() {
	var (
		ledger *fakeLedger
		iban   = "DE02100100100987654321"
		exID   = int32(44)
	)

	BeforeEach(func() {
		ledger = &fakeLedger{
			accounts: []*data.Account{
				{ID: 7, UserID: 1, Name: "Depot", IBAN: &iban},
			},
			exchanges: []*data.StockExchange{
				{ISIN: "IE00TEST0001", Name: "Xetra", Code: "GER", OnvistaRecordID: 1, OnvistaExchangeID: &exID},
			},
		}
	})

	It("should book onto the account whose IBAN ends with the receipt's account number", func() {
		drafts, err := receipts.ParseText(purchasePage)
		Expect(err).To(BeNil())

		ts, err := receipts.Book(context.Background(), ledger, 1, drafts)
		Expect(err).To(BeNil())
		Expect(ts).To(HaveLen(1))
		Expect(ts[0].AccountID).To(Equal(int32(7)))
	})

	It("should resolve the venue name to its listing", func() {
		drafts, err := receipts.ParseText(purchasePage)
		Expect(err).To(BeNil())

		ts, err := receipts.Book(context.Background(), ledger, 1, drafts)
		Expect(err).To(BeNil())
		Expect(ts[0].Exchange).To(BeNil())
		Expect(ts[0].OnvistaExchangeID).ToNot(BeNil())
		Expect(*ts[0].OnvistaExchangeID).To(Equal(exID))
	})

	It("should keep the venue name of over-the-counter trades", func() {
		drafts, err := receipts.ParseText(otcPurchasePage)
		Expect(err).To(BeNil())

		ts, err := receipts.Book(context.Background(), ledger, 1, drafts)
		Expect(err).To(BeNil())
		Expect(ts[0].Exchange).ToNot(BeNil())
		Expect(*ts[0].Exchange).To(Equal("Quotrix"))
		Expect(ts[0].OnvistaExchangeID).To(BeNil())
	})

	It("should skip receipts that were booked before", func() {
		booked := int64(55512345)
		ledger.existing = []*data.Transaction{
			{ID: 99, AccountID: 7, ISIN: "IE00TEST0001", ReceiptNumber: &booked},
		}

		drafts, err := receipts.ParseText(purchasePage + dividendPage)
		Expect(err).To(BeNil())

		ts, err := receipts.Book(context.Background(), ledger, 1, drafts)
		Expect(err).To(BeNil())
		Expect(ts).To(HaveLen(1))
		Expect(*ts[0].ReceiptNumber).To(Equal(int64(55598765)))
	})

	It("should fail when no account matches the receipt's account number", func() {
		other := "DE02100100100000000042"
		ledger.accounts = []*data.Account{
			{ID: 8, UserID: 1, Name: "Depot", IBAN: &other},
		}

		drafts, err := receipts.ParseText(purchasePage)
		Expect(err).To(BeNil())

		_, err = receipts.Book(context.Background(), ledger, 1, drafts)
		Expect(err).To(MatchError(receipts.ErrUnknownAccount))
	})
})
