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

// Package push delivers Web Push notifications: a welcome message on
// registration and a daily digest of the Today performance report.
package push

import (
	"context"
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
	"go.opentelemetry.io/otel"

	"github.com/stockbook/sb-api/analysis"
	"github.com/stockbook/sb-api/common"
	"github.com/stockbook/sb-api/data"
	"github.com/stockbook/sb-api/observability/opentelemetry"
)

// digests are sent once the local clock passes this hour
const notificationHour = 20

type textPayload struct {
	Text string `json:"text"`
}

// Notifier sends VAPID-signed messages to the registered endpoints.
type Notifier struct {
	store      *data.Store
	subscriber string
	publicKey  string
	privateKey string
}

func NewNotifier(store *data.Store) *Notifier {
	return &Notifier{
		store:      store,
		subscriber: viper.GetString("push.subscriber"),
		publicKey:  viper.GetString("push.vapid_public_key"),
		privateKey: viper.GetString("push.vapid_private_key"),
	}
}

// Enabled reports whether VAPID keys are configured.
func (n *Notifier) Enabled() bool {
	return n.publicKey != "" && n.privateKey != ""
}

// SendDaily welcomes fresh subscriptions and, after the notification
// hour, sends every due subscription its user's daily digest. Delivery
// stamps are written up front so a failing endpoint is not retried
// until the next day.
func (n *Notifier) SendDaily(ctx context.Context) error {
	ctx, span := otel.Tracer(opentelemetry.Name).Start(ctx, "push.SendDaily")
	defer span.End()

	now := time.Now()
	local := now.In(common.GetTimezone())
	notificationTime := time.Date(local.Year(), local.Month(), local.Day(),
		notificationHour, 0, 0, 0, common.GetTimezone())

	subs, err := n.store.DuePushSubscriptions(ctx, notificationTime)
	if err != nil {
		return err
	}

	welcome, err := json.Marshal(textPayload{Text: "Erfolgreich für Push-Benachrichtigungen registriert!"})
	if err != nil {
		return err
	}
	for _, sub := range subs {
		if sub.LastNotification != nil {
			continue
		}
		if err := n.send(sub, welcome); err != nil {
			log.Error().Err(err).Str("Endpoint", sub.Endpoint).Msg("could not send welcome notification")
		} else {
			log.Info().Str("Endpoint", sub.Endpoint).Msg("sent welcome notification")
		}
	}

	endpoints := make([]string, 0, len(subs))
	for _, sub := range subs {
		endpoints = append(endpoints, sub.Endpoint)
	}
	if err := n.store.TouchNotifications(ctx, endpoints, now); err != nil {
		return err
	}

	if notificationTime.After(now) {
		return nil
	}

	// subscriptions come grouped by user, so one digest serves all of
	// a user's devices
	var digest []byte
	lastUser := int32(-1)
	for _, sub := range subs {
		if sub.UserID != lastUser {
			lastUser = sub.UserID
			reports, err := analysis.Performance(ctx, n.store, sub.UserID, now)
			if err != nil {
				return err
			}
			digest, err = DailyDigest(reports, now)
			if err != nil {
				return err
			}
		}
		if len(digest) == 0 {
			continue
		}
		if err := n.send(sub, digest); err != nil {
			log.Error().Err(err).Str("Endpoint", sub.Endpoint).Msg("could not send daily notification")
		} else {
			log.Info().Str("Endpoint", sub.Endpoint).Msg("sent daily notification")
		}
	}
	return nil
}

// DailyDigest renders the Today report as a notification body. It is
// empty when no position has a price from today or when the market is
// closed for the weekend.
func DailyDigest(reports []*analysis.PortfolioPerformance, now time.Time) ([]byte, error) {
	var today *analysis.PortfolioPerformance
	for _, r := range reports {
		if r.Kind == analysis.KindToday {
			today = r
			break
		}
	}
	if today == nil {
		return nil, nil
	}

	var newest time.Time
	for _, p := range today.Positions {
		if p.End.DataSource == nil {
			continue
		}
		if t := p.End.DataSource.Price.Time(); t.After(newest) {
			newest = t
		}
	}
	if newest.IsZero() {
		return nil, nil
	}
	if !data.Day(newest, time.UTC).Equal(data.Day(now, time.UTC)) {
		return nil, nil
	}
	if wd := now.In(common.GetTimezone()).Weekday(); wd == time.Saturday || wd == time.Sunday {
		return nil, nil
	}

	// keep the message below the push payload limit
	slim := *today
	slim.Positions = map[string]*analysis.PositionPerformance{}
	return json.Marshal(&slim)
}

func (n *Notifier) send(sub *data.PushSubscription, body []byte) error {
	resp, err := webpush.SendNotification(body, &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys: webpush.Keys{
			Auth:   sub.Auth,
			P256dh: sub.P256DH,
		},
	}, &webpush.Options{
		Subscriber:      n.subscriber,
		VAPIDPublicKey:  n.publicKey,
		VAPIDPrivateKey: n.privateKey,
		TTL:             12 * 60 * 60,
	})
	if err != nil {
		return err
	}
	return resp.Body.Close()
}
