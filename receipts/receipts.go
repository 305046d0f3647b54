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

// Package receipts books transactions from broker settlement PDFs.
// Supported are comdirect purchase notes (Wertpapierabrechnung) and
// dividend credits (Erträgnisgutschrift).
package receipts

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/ledongthuc/pdf"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"

	"github.com/stockbook/sb-api/common"
	"github.com/stockbook/sb-api/data"
	"github.com/stockbook/sb-api/observability/opentelemetry"
)

var (
	ErrUnknownReceipt = errors.New("unknown receipt type")
	ErrNoTransactions = errors.New("no transaction pages found")
	ErrUnknownAccount = errors.New("cannot find account for receipt")
)

// File is one uploaded receipt.
type File struct {
	Name string
	Data []byte
}

// Draft is a transaction parsed from a receipt page. The account is
// identified only by the broker's account number until Ingest maps it
// onto one of the user's accounts by IBAN suffix.
type Draft struct {
	Transaction    data.Transaction
	AccountNumber  uint64
	OverTheCounter bool
}

// Ledger is the slice of the data.Store the ingester needs.
type Ledger interface {
	ListAccounts(ctx context.Context, userID int32, offset int64, count int64) ([]*data.Account, error)
	TransactionsByReceiptNumbers(ctx context.Context, userID int32, numbers []int64) ([]*data.Transaction, error)
	ExchangesForISINs(ctx context.Context, isins []string) ([]*data.StockExchange, error)
	CreateTransaction(ctx context.Context, t *data.Transaction) error
}

var (
	// the marker is doubled before matching so consecutive pages do
	// not swallow each other's header
	rePage     = regexp.MustCompile(`Depot-Nr\.[\s\S]+?(Depot-Nr\.|\z)`)
	rePurchase = regexp.MustCompile(`Wertpapierabrechnung\s+(Kauf|Kauf Sparplan)\s+Kommissionsgeschäft`)

	reISIN       = regexp.MustCompile(`ISIN\s+([A-Z]{2}[A-Z0-9]{10})\s`)
	reReceiptNo  = regexp.MustCompile(`Abrechnungs-Nr\.\s+(\d+)\s`)
	reAccountNo  = regexp.MustCompile(`Konto-Nr\.\s+(\d+)\s`)
	reUnits      = regexp.MustCompile(`Nominal\s+STK ([\d\.]+,\d+)\s`)
	reUnitsPrice = regexp.MustCompile(`Nominal\s+STK ([\d\.]+,\d+)\s+Kurs\s+EUR ([\d\.]+,\d+)`)
	reGross      = regexp.MustCompile(`Kurswert\sEUR ([\d\.]+,\d{2})`)
	reDebit      = regexp.MustCompile(`Betrag zu Ihren Lasten\s+EUR ([\d\.]+,\d{2})`)
	reCredit     = regexp.MustCompile(`Betrag zu Ihren Gunsten\s+EUR ([\d\.]+,\d{2})`)
	rePerUnit    = regexp.MustCompile(`Ausschüttungsbetrag pro Stück\s+((EUR|USD) [\d\.]+,\d+)`)
	rePeriod     = regexp.MustCompile(`Ausschüttung für\s+([\d\.]{10}\s-\s[\d\.]{10})`)
	reValueDate  = regexp.MustCompile(`Wert\s+(\d\d)\.(\d\d)\.(\d{4})\s`)
	reTrade      = regexp.MustCompile(`Handelstag\s(\d\d)\.(\d\d)\.(\d{4})\s+Handelszeit\s(\d\d):(\d\d)\s+Handelsplatz\s(Börse|außerbörslich)\s(.+?)\s*\n`)
	reVenue      = regexp.MustCompile(`([\pL\pN_]+)/[\pL]{3}`)
)

// Parse extracts the plain text of a receipt PDF and parses it.
func Parse(buf []byte) ([]*Draft, error) {
	r, err := pdf.NewReader(bytes.NewReader(buf), int64(len(buf)))
	if err != nil {
		return nil, err
	}
	text, err := r.GetPlainText()
	if err != nil {
		return nil, err
	}
	var sb strings.Builder
	if _, err := io.Copy(&sb, text); err != nil {
		return nil, err
	}
	return ParseText(sb.String())
}

// ParseText parses the extracted text of a receipt. A receipt may
// carry several settlement pages; tax-information pages and follow-up
// pages are skipped.
func ParseText(body string) ([]*Draft, error) {
	body = strings.ReplaceAll(body, "Depot-Nr.", "Depot-Nr.Depot-Nr.")

	drafts := make([]*Draft, 0, 4)
	for _, page := range rePage.FindAllString(body, -1) {
		switch {
		case strings.Contains(page, "Erträgnisgutschrift"):
			d, err := parseDividend(page)
			if err != nil {
				return nil, err
			}
			drafts = append(drafts, d)
		case rePurchase.MatchString(page):
			d, err := parsePurchase(page)
			if err != nil {
				return nil, err
			}
			drafts = append(drafts, d)
		case strings.Contains(page, "Steuerbelastung\naus Wertpapieren"):
			log.Debug().Msg("skipping tax information page")
		case !strings.Contains(page, "SEITENNUMMER=1\n"):
			log.Debug().Msg("skipping follow-up page")
		default:
			return nil, ErrUnknownReceipt
		}
	}

	if len(drafts) == 0 {
		if strings.Contains(body, "Steuerbelastung\naus Wertpapieren") {
			log.Info().Msg("receipt only contains tax information, ignoring")
			return drafts, nil
		}
		return nil, ErrNoTransactions
	}
	return drafts, nil
}

func parsePurchase(page string) (*Draft, error) {
	isin, err := capture(reISIN, page, "isin")
	if err != nil {
		return nil, err
	}
	receiptNumber, err := captureInt(reReceiptNo, page, "receipt number")
	if err != nil {
		return nil, err
	}
	accountNumber, err := captureInt(reAccountNo, page, "account number")
	if err != nil {
		return nil, err
	}

	m := reUnitsPrice.FindStringSubmatch(page)
	if m == nil {
		return nil, fmt.Errorf("no units/price match")
	}
	units, err := parseGermanFloat(m[1])
	if err != nil {
		return nil, err
	}

	gross, err := captureCents(reGross, page, "gross amount")
	if err != nil {
		return nil, err
	}
	debit, err := captureCents(reDebit, page, "debited amount")
	if err != nil {
		return nil, err
	}

	m = reTrade.FindStringSubmatch(page)
	if m == nil {
		return nil, fmt.Errorf("no trade date and venue match")
	}
	date, err := localTime(m[3], m[2], m[1], m[4], m[5])
	if err != nil {
		return nil, err
	}
	venue := m[7]
	if vm := reVenue.FindStringSubmatch(venue); vm != nil {
		venue = vm[1]
	}

	t := data.Transaction{
		AccountID: -1,
		ISIN:      isin,
		Date:      date,
		Units:     units,
		// gross is -units*price; the fee is the spread between the
		// gross amount and what the bank actually debited
		Amount:        -gross,
		Fees:          gross - debit,
		Exchange:      &venue,
		ReceiptNumber: &receiptNumber,
	}
	return &Draft{
		Transaction:    t,
		AccountNumber:  uint64(accountNumber),
		OverTheCounter: m[6] == "außerbörslich",
	}, nil
}

func parseDividend(page string) (*Draft, error) {
	isin, err := capture(reISIN, page, "isin")
	if err != nil {
		return nil, err
	}
	receiptNumber, err := captureInt(reReceiptNo, page, "receipt number")
	if err != nil {
		return nil, err
	}
	accountNumber, err := captureInt(reAccountNo, page, "account number")
	if err != nil {
		return nil, err
	}

	rawUnits, err := capture(reUnits, page, "units")
	if err != nil {
		return nil, err
	}
	units, err := parseGermanFloat(rawUnits)
	if err != nil {
		return nil, err
	}
	perUnit, err := capture(rePerUnit, page, "amount per unit")
	if err != nil {
		return nil, err
	}
	period, err := capture(rePeriod, page, "payout period")
	if err != nil {
		return nil, err
	}
	amount, err := captureCents(reCredit, page, "credited amount")
	if err != nil {
		return nil, err
	}

	m := reValueDate.FindStringSubmatch(page)
	if m == nil {
		return nil, fmt.Errorf("no value date match")
	}
	date, err := localTime(m[3], m[2], m[1], "00", "00")
	if err != nil {
		return nil, err
	}

	t := data.Transaction{
		AccountID: -1,
		ISIN:      isin,
		Date:      date,
		Amount:    amount,
		Comments: fmt.Sprintf("Ausschüttung für %s, %s pro Stück, %.3f Stück im Besitz",
			period, perUnit, units),
		ReceiptNumber: &receiptNumber,
	}
	return &Draft{
		Transaction:    t,
		AccountNumber:  uint64(accountNumber),
		OverTheCounter: true,
	}, nil
}

// Ingest parses the uploaded receipts and books their transactions on
// the user's accounts.
func Ingest(ctx context.Context, ledger Ledger, userID int32, files []File) ([]*data.Transaction, error) {
	ctx, span := otel.Tracer(opentelemetry.Name).Start(ctx, "receipts.Ingest")
	defer span.End()

	drafts := make([]*Draft, 0, len(files))
	for _, f := range files {
		ds, err := Parse(f.Data)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", f.Name, err)
		}
		drafts = append(drafts, ds...)
	}
	return Book(ctx, ledger, userID, drafts)
}

// Book inserts parsed drafts as transactions. Receipts that were
// booked before are skipped; a draft that cannot be matched to an
// account fails the whole batch.
func Book(ctx context.Context, ledger Ledger, userID int32, drafts []*Draft) ([]*data.Transaction, error) {
	// drop receipts that are already booked
	numbers := make([]int64, 0, len(drafts))
	for _, d := range drafts {
		if d.Transaction.ReceiptNumber != nil {
			numbers = append(numbers, *d.Transaction.ReceiptNumber)
		}
	}
	existing, err := ledger.TransactionsByReceiptNumbers(ctx, userID, numbers)
	if err != nil {
		return nil, err
	}
	booked := make(map[int64]struct{}, len(existing))
	for _, t := range existing {
		if t.ReceiptNumber != nil {
			booked[*t.ReceiptNumber] = struct{}{}
		}
	}
	kept := make([]*Draft, 0, len(drafts))
	for _, d := range drafts {
		if d.Transaction.ReceiptNumber != nil {
			if _, ok := booked[*d.Transaction.ReceiptNumber]; ok {
				continue
			}
		}
		kept = append(kept, d)
	}
	if len(kept) < len(drafts) {
		log.Warn().Int("NumDropped", len(drafts)-len(kept)).
			Msg("dropping transactions whose receipts are already booked")
	}
	drafts = kept

	// replace venue names with listing records where possible
	isins := make([]string, 0, len(drafts))
	for _, d := range drafts {
		isins = append(isins, d.Transaction.ISIN)
	}
	exchanges, err := ledger.ExchangesForISINs(ctx, isins)
	if err != nil {
		return nil, err
	}
	for _, d := range drafts {
		resolveExchange(d, exchanges)
	}

	accounts, err := ledger.ListAccounts(ctx, userID, 0, 0)
	if err != nil {
		return nil, err
	}
	for _, d := range drafts {
		account := accountByNumber(accounts, d.AccountNumber)
		if account == nil {
			return nil, fmt.Errorf("%w: account number %d", ErrUnknownAccount, d.AccountNumber)
		}
		d.Transaction.AccountID = account.ID
	}

	inserted := make([]*data.Transaction, 0, len(drafts))
	for _, d := range drafts {
		t := d.Transaction
		if err := ledger.CreateTransaction(ctx, &t); err != nil {
			return nil, err
		}
		inserted = append(inserted, &t)
	}
	log.Info().Int("NumTransactions", len(inserted)).Msg("booked transactions from receipts")
	return inserted, nil
}

func resolveExchange(d *Draft, exchanges []*data.StockExchange) {
	if d.OverTheCounter || d.Transaction.Exchange == nil {
		return
	}
	for _, e := range exchanges {
		if e.ISIN == d.Transaction.ISIN && e.Name == *d.Transaction.Exchange {
			d.Transaction.Exchange = nil
			d.Transaction.OnvistaExchangeID = e.OnvistaExchangeID
			return
		}
	}
}

func accountByNumber(accounts []*data.Account, number uint64) *data.Account {
	suffix := strconv.FormatUint(number, 10)
	for _, a := range accounts {
		if a.IBAN != nil && strings.HasSuffix(*a.IBAN, suffix) {
			return a
		}
	}
	return nil
}

func capture(re *regexp.Regexp, s string, what string) (string, error) {
	m := re.FindStringSubmatch(s)
	if m == nil {
		return "", fmt.Errorf("no %s match", what)
	}
	return m[1], nil
}

func captureInt(re *regexp.Regexp, s string, what string) (int64, error) {
	raw, err := capture(re, s, what)
	if err != nil {
		return 0, err
	}
	return strconv.ParseInt(raw, 10, 64)
}

func captureCents(re *regexp.Regexp, s string, what string) (int64, error) {
	raw, err := capture(re, s, what)
	if err != nil {
		return 0, err
	}
	v, err := parseGermanFloat(raw)
	if err != nil {
		return 0, err
	}
	return int64(math.Round(v * 100.0)), nil
}

// parseGermanFloat reads "1.234,56" as 1234.56.
func parseGermanFloat(s string) (float64, error) {
	s = strings.ReplaceAll(s, ".", "")
	s = strings.ReplaceAll(s, ",", ".")
	return strconv.ParseFloat(s, 64)
}

func localTime(year, month, day, hour, minute string) (time.Time, error) {
	y, err := strconv.Atoi(year)
	if err != nil {
		return time.Time{}, err
	}
	mo, err := strconv.Atoi(month)
	if err != nil {
		return time.Time{}, err
	}
	d, err := strconv.Atoi(day)
	if err != nil {
		return time.Time{}, err
	}
	h, err := strconv.Atoi(hour)
	if err != nil {
		return time.Time{}, err
	}
	mi, err := strconv.Atoi(minute)
	if err != nil {
		return time.Time{}, err
	}
	return time.Date(y, time.Month(mo), d, h, mi, 0, 0, common.GetTimezone()).UTC(), nil
}
