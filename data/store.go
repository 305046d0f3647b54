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

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/stockbook/sb-api/database"

	"github.com/rs/zerolog/log"
)

var (
	ErrNotFound     = errors.New("record not found")
	ErrNotOwned     = errors.New("record does not belong to user")
	ErrNoExchanges  = errors.New("no exchanges found for isin")
	ErrEmptyBatch   = errors.New("empty batch")
	ErrUserExists   = errors.New("user already exists")
	ErrUnknownVenue = errors.New("price row references unknown venue")
)

// Store runs all SQL against the shared connection pool. The analysis
// package consumes it through narrow interfaces so tests can substitute
// an in-memory source.
type Store struct {
	db database.PgxIface
}

func NewStore(db database.PgxIface) *Store {
	return &Store{db: db}
}

// USERS

func (s *Store) UserByName(ctx context.Context, name string) (*User, error) {
	sql := `SELECT id, name, full_name, hash FROM users WHERE name=$1`
	u := &User{}
	err := s.db.QueryRow(ctx, sql, name).Scan(&u.ID, &u.Name, &u.FullName, &u.Hash)
	if err != nil {
		return nil, ErrNotFound
	}
	return u, nil
}

func (s *Store) UserByID(ctx context.Context, id int32) (*User, error) {
	sql := `SELECT id, name, full_name, hash FROM users WHERE id=$1`
	u := &User{}
	err := s.db.QueryRow(ctx, sql, id).Scan(&u.ID, &u.Name, &u.FullName, &u.Hash)
	if err != nil {
		return nil, ErrNotFound
	}
	return u, nil
}

func (s *Store) CreateUser(ctx context.Context, u *User) error {
	sql := `INSERT INTO users (name, full_name, hash) VALUES ($1, $2, $3) RETURNING id`
	if err := s.db.QueryRow(ctx, sql, u.Name, u.FullName, u.Hash).Scan(&u.ID); err != nil {
		log.Error().Err(err).Str("UserName", u.Name).Msg("could not create user")
		return err
	}
	return nil
}

func (s *Store) SetUserPassword(ctx context.Context, id int32, hash string) error {
	sql := `UPDATE users SET hash=$2 WHERE id=$1`
	tag, err := s.db.Exec(ctx, sql, id, hash)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ACCOUNTS

func (s *Store) ListAccounts(ctx context.Context, userID int32, offset int64, count int64) ([]*Account, error) {
	if count <= 0 {
		count = math.MaxInt64
	}
	sql := `SELECT id, user_id, name, iban FROM accounts WHERE user_id=$1 ORDER BY id ASC LIMIT $2 OFFSET $3`
	rows, err := s.db.Query(ctx, sql, userID, count, offset)
	if err != nil {
		log.Warn().Err(err).Int32("UserID", userID).Msg("list accounts failed")
		return nil, err
	}
	defer rows.Close()

	accounts := make([]*Account, 0, 8)
	for rows.Next() {
		a := &Account{}
		if err := rows.Scan(&a.ID, &a.UserID, &a.Name, &a.IBAN); err != nil {
			return nil, err
		}
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}

func (s *Store) GetAccount(ctx context.Context, userID int32, id int32) (*Account, error) {
	sql := `SELECT id, user_id, name, iban FROM accounts WHERE user_id=$1 AND id=$2`
	a := &Account{}
	err := s.db.QueryRow(ctx, sql, userID, id).Scan(&a.ID, &a.UserID, &a.Name, &a.IBAN)
	if err != nil {
		return nil, ErrNotFound
	}
	return a, nil
}

func (s *Store) CreateAccount(ctx context.Context, a *Account) error {
	sql := `INSERT INTO accounts (user_id, name, iban) VALUES ($1, $2, $3) RETURNING id`
	return s.db.QueryRow(ctx, sql, a.UserID, a.Name, a.IBAN).Scan(&a.ID)
}

func (s *Store) UpdateAccount(ctx context.Context, a *Account) error {
	sql := `UPDATE accounts SET name=$3, iban=$4 WHERE user_id=$1 AND id=$2`
	tag, err := s.db.Exec(ctx, sql, a.UserID, a.ID, a.Name, a.IBAN)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) DeleteAccount(ctx context.Context, userID int32, id int32) error {
	sql := `DELETE FROM accounts WHERE user_id=$1 AND id=$2`
	tag, err := s.db.Exec(ctx, sql, userID, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// AccountIDsForUser returns the ids of every account owned by userID.
func (s *Store) AccountIDsForUser(ctx context.Context, userID int32) ([]int32, error) {
	sql := `SELECT id FROM accounts WHERE user_id=$1`
	rows, err := s.db.Query(ctx, sql, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ids := make([]int32, 0, 8)
	for rows.Next() {
		var id int32
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// TRANSACTIONS

const transactionColumns = `t.id, t.account_id, t.isin, t.date, t.units, t.amount, t.fees, t.onvista_exchange_id, t.comments, t.exchange, t.receipt_number`

func scanTransactions(rows interface {
	Next() bool
	Scan(dest ...interface{}) error
	Err() error
}) ([]*Transaction, error) {
	ts := make([]*Transaction, 0, 64)
	for rows.Next() {
		t := &Transaction{}
		err := rows.Scan(&t.ID, &t.AccountID, &t.ISIN, &t.Date, &t.Units, &t.Amount, &t.Fees,
			&t.OnvistaExchangeID, &t.Comments, &t.Exchange, &t.ReceiptNumber)
		if err != nil {
			return nil, err
		}
		ts = append(ts, t)
	}
	return ts, rows.Err()
}

// TransactionsForUser loads every transaction booked on any of the
// user's accounts up to and including cutoff, ascending by date.
func (s *Store) TransactionsForUser(ctx context.Context, userID int32, cutoff time.Time) ([]*Transaction, error) {
	sql := `SELECT ` + transactionColumns + `
		FROM transactions t
		INNER JOIN accounts a ON a.id = t.account_id
		WHERE a.user_id=$1 AND t.date <= $2
		ORDER BY t.date ASC`
	rows, err := s.db.Query(ctx, sql, userID, cutoff)
	if err != nil {
		log.Warn().Err(err).Int32("UserID", userID).Msg("load transactions failed")
		return nil, err
	}
	defer rows.Close()
	return scanTransactions(rows)
}

// TransactionsForUserAndISIN is TransactionsForUser restricted to one
// instrument.
func (s *Store) TransactionsForUserAndISIN(ctx context.Context, userID int32, isin string, cutoff time.Time) ([]*Transaction, error) {
	sql := `SELECT ` + transactionColumns + `
		FROM transactions t
		INNER JOIN accounts a ON a.id = t.account_id
		WHERE a.user_id=$1 AND t.isin=$2 AND t.date <= $3
		ORDER BY t.date ASC`
	rows, err := s.db.Query(ctx, sql, userID, isin, cutoff)
	if err != nil {
		log.Warn().Err(err).Int32("UserID", userID).Str("ISIN", isin).Msg("load transactions failed")
		return nil, err
	}
	defer rows.Close()
	return scanTransactions(rows)
}

// TransactionsByReceiptNumbers returns the user's transactions that
// were booked from one of the given broker receipts.
func (s *Store) TransactionsByReceiptNumbers(ctx context.Context, userID int32, numbers []int64) ([]*Transaction, error) {
	if len(numbers) == 0 {
		return []*Transaction{}, nil
	}
	sql := `SELECT ` + transactionColumns + `
		FROM transactions t
		INNER JOIN accounts a ON a.id = t.account_id
		WHERE a.user_id=$1 AND t.receipt_number = ANY($2)`
	rows, err := s.db.Query(ctx, sql, userID, numbers)
	if err != nil {
		log.Warn().Err(err).Int32("UserID", userID).Msg("load transactions by receipt failed")
		return nil, err
	}
	defer rows.Close()
	return scanTransactions(rows)
}

func (s *Store) ListTransactions(ctx context.Context, userID int32, offset int64, count int64) ([]*Transaction, error) {
	if count <= 0 {
		count = math.MaxInt64
	}
	sql := `SELECT ` + transactionColumns + `
		FROM transactions t
		INNER JOIN accounts a ON a.id = t.account_id
		WHERE a.user_id=$1
		ORDER BY t.id ASC LIMIT $2 OFFSET $3`
	rows, err := s.db.Query(ctx, sql, userID, count, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTransactions(rows)
}

func (s *Store) GetTransaction(ctx context.Context, userID int32, id int32) (*Transaction, error) {
	sql := `SELECT ` + transactionColumns + `
		FROM transactions t
		INNER JOIN accounts a ON a.id = t.account_id
		WHERE a.user_id=$1 AND t.id=$2`
	t := &Transaction{}
	err := s.db.QueryRow(ctx, sql, userID, id).Scan(&t.ID, &t.AccountID, &t.ISIN, &t.Date,
		&t.Units, &t.Amount, &t.Fees, &t.OnvistaExchangeID, &t.Comments, &t.Exchange, &t.ReceiptNumber)
	if err != nil {
		return nil, ErrNotFound
	}
	return t, nil
}

func (s *Store) CreateTransaction(ctx context.Context, t *Transaction) error {
	sql := `INSERT INTO transactions (account_id, isin, date, units, amount, fees, onvista_exchange_id, comments, exchange, receipt_number)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10) RETURNING id`
	err := s.db.QueryRow(ctx, sql, t.AccountID, t.ISIN, t.Date, t.Units, t.Amount, t.Fees,
		t.OnvistaExchangeID, t.Comments, t.Exchange, t.ReceiptNumber).Scan(&t.ID)
	if err != nil {
		log.Warn().Err(err).Str("ISIN", t.ISIN).Msg("could not create transaction")
	}
	return err
}

func (s *Store) UpdateTransaction(ctx context.Context, t *Transaction) error {
	sql := `UPDATE transactions SET account_id=$2, isin=$3, date=$4, units=$5, amount=$6, fees=$7, onvista_exchange_id=$8, comments=$9, exchange=$10, receipt_number=$11
		WHERE id=$1`
	tag, err := s.db.Exec(ctx, sql, t.ID, t.AccountID, t.ISIN, t.Date, t.Units, t.Amount, t.Fees,
		t.OnvistaExchangeID, t.Comments, t.Exchange, t.ReceiptNumber)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	log.Info().Int32("TransactionID", t.ID).Msg("updated record in the transaction table")
	return nil
}

func (s *Store) DeleteTransaction(ctx context.Context, userID int32, id int32) error {
	sql := `DELETE FROM transactions WHERE id=$1 AND account_id IN (SELECT id FROM accounts WHERE user_id=$2)`
	tag, err := s.db.Exec(ctx, sql, id, userID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	log.Info().Int32("TransactionID", id).Msg("deleted record from the transaction table")
	return nil
}
