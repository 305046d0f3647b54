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
	"time"

	"github.com/rs/zerolog/log"
)

// PushSubscription is one browser endpoint registered for Web Push.
// Auth and P256DH are the client keys as handed out by the browser.
type PushSubscription struct {
	Endpoint         string     `json:"endpoint"`
	UserID           int32      `json:"userId"`
	Auth             string     `json:"auth"`
	P256DH           string     `json:"p256dh"`
	Created          time.Time  `json:"created"`
	LastContact      time.Time  `json:"lastContact"`
	LastNotification *time.Time `json:"lastNotification"`
}

const pushColumns = `endpoint, user_id, auth, p256dh, created, last_contact, last_notification`

func (s *Store) GetPushSubscription(ctx context.Context, endpoint string) (*PushSubscription, error) {
	sql := `SELECT ` + pushColumns + ` FROM push_subscriptions WHERE endpoint=$1`
	sub := &PushSubscription{}
	err := s.db.QueryRow(ctx, sql, endpoint).Scan(&sub.Endpoint, &sub.UserID, &sub.Auth,
		&sub.P256DH, &sub.Created, &sub.LastContact, &sub.LastNotification)
	if err != nil {
		return nil, ErrNotFound
	}
	return sub, nil
}

// SavePushSubscription registers an endpoint or refreshes its keys.
// Ownership is checked by the caller; the upsert never moves an
// endpoint between users.
func (s *Store) SavePushSubscription(ctx context.Context, sub *PushSubscription) error {
	sql := `INSERT INTO push_subscriptions (endpoint, user_id, auth, p256dh, created, last_contact)
		VALUES ($1, $2, $3, $4, now(), now())
		ON CONFLICT (endpoint) DO UPDATE SET auth=EXCLUDED.auth, p256dh=EXCLUDED.p256dh, last_contact=now()`
	_, err := s.db.Exec(ctx, sql, sub.Endpoint, sub.UserID, sub.Auth, sub.P256DH)
	if err != nil {
		log.Error().Err(err).Str("Endpoint", sub.Endpoint).Msg("could not save push subscription")
	}
	return err
}

func (s *Store) DeletePushSubscription(ctx context.Context, endpoint string) error {
	sql := `DELETE FROM push_subscriptions WHERE endpoint=$1`
	tag, err := s.db.Exec(ctx, sql, endpoint)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	log.Info().Str("Endpoint", endpoint).Msg("removed push subscription")
	return nil
}

// DuePushSubscriptions returns endpoints that have not been notified
// since before, grouped by user.
func (s *Store) DuePushSubscriptions(ctx context.Context, before time.Time) ([]*PushSubscription, error) {
	sql := `SELECT ` + pushColumns + ` FROM push_subscriptions
		WHERE last_notification IS NULL OR last_notification < $1
		ORDER BY user_id ASC, endpoint ASC`
	rows, err := s.db.Query(ctx, sql, before)
	if err != nil {
		log.Warn().Err(err).Msg("load push subscriptions failed")
		return nil, err
	}
	defer rows.Close()

	subs := make([]*PushSubscription, 0, 8)
	for rows.Next() {
		sub := &PushSubscription{}
		err := rows.Scan(&sub.Endpoint, &sub.UserID, &sub.Auth, &sub.P256DH,
			&sub.Created, &sub.LastContact, &sub.LastNotification)
		if err != nil {
			return nil, err
		}
		subs = append(subs, sub)
	}
	return subs, rows.Err()
}

// TouchNotifications stamps last_notification on the given endpoints,
// including ones whose delivery will fail, so a broken endpoint cannot
// flood its user.
func (s *Store) TouchNotifications(ctx context.Context, endpoints []string, when time.Time) error {
	if len(endpoints) == 0 {
		return nil
	}
	sql := `UPDATE push_subscriptions SET last_notification=$2 WHERE endpoint = ANY($1)`
	_, err := s.db.Exec(ctx, sql, endpoints, when)
	return err
}
