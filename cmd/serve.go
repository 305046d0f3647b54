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

package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/goccy/go-json"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/stockbook/sb-api/common"
	"github.com/stockbook/sb-api/data"
	"github.com/stockbook/sb-api/database"
	"github.com/stockbook/sb-api/handler"
	"github.com/stockbook/sb-api/observability/opentelemetry"
	"github.com/stockbook/sb-api/onvista"
	"github.com/stockbook/sb-api/push"
	"github.com/stockbook/sb-api/router"
)

func init() {
	viper.BindEnv("server.port", "PORT")
	serveCmd.Flags().IntP("port", "p", 3000, "Port to run application server on")
	viper.BindPFlag("server.port", serveCmd.Flags().Lookup("port"))

	viper.BindEnv("fetch.realtime_interval", "SB_FETCH_REALTIME_INTERVAL")
	serveCmd.Flags().Duration("fetch-realtime-interval", 15*time.Minute, "How often to refresh intraday prices")
	viper.BindPFlag("fetch.realtime_interval", serveCmd.Flags().Lookup("fetch-realtime-interval"))

	viper.BindEnv("fetch.historical_interval", "SB_FETCH_HISTORICAL_INTERVAL")
	serveCmd.Flags().Duration("fetch-historical-interval", 24*time.Hour, "How often to refresh daily bars")
	viper.BindPFlag("fetch.historical_interval", serveCmd.Flags().Lookup("fetch-historical-interval"))

	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the stockbook API server",
	Long:  `Run HTTP server that implements the stockbook API`,
	Run: func(cmd *cobra.Command, args []string) {
		common.SetupLogging()
		common.SetupCache()
		log.Info().Msg("initialized logging")

		traceShutdown, err := opentelemetry.Setup()
		if err != nil {
			log.Fatal().Err(err).Msg("could not setup tracing")
		}
		defer func() {
			if err := traceShutdown(context.Background()); err != nil {
				log.Error().Err(err).Msg("trace exporter shutdown failed")
			}
		}()

		// setup database
		if err := database.Connect(context.Background()); err != nil {
			log.Fatal().Err(err).Msg("could not connect to database")
		}

		store := data.NewStore(database.Conn())
		handler.Setup(store)

		app := fiber.New(fiber.Config{
			JSONEncoder: json.Marshal,
			JSONDecoder: json.Unmarshal,
		})

		// shutdown cleanly on interrupt
		c := make(chan os.Signal, 1)
		signal.Notify(c, os.Interrupt)
		go func() {
			sig := <-c // block until signal is read
			fmt.Printf("Received signal: '%s'; shutting down...\n", sig.String())
			if err := app.Shutdown(); err != nil {
				log.Fatal().Err(err).Msg("fiber shutdown failed")
			}
		}()

		app.Use(cors.New(cors.Config{
			AllowOrigins: viper.GetString("server.cors_origins"),
			AllowHeaders: "*",
			AllowMethods: "GET,POST,HEAD,PUT,DELETE,PATCH",
		}))

		router.SetupRoutes(app)

		// keep the price tables fresh while the server runs
		fetcher := onvista.NewFetcher(store, onvista.NewClient())
		scheduler := gocron.NewScheduler(common.GetTimezone())
		scheduler.Every(1).Hours().Do(func() {
			if err := fetcher.FetchMissing(context.Background()); err != nil {
				log.Error().Err(err).Msg("fetching missing instruments failed")
			}
		})
		scheduler.Every(int(viper.GetDuration("fetch.realtime_interval").Minutes())).Minutes().Do(func() {
			stocks, err := store.StocksNeedingRealtimeUpdate(context.Background(), time.Now().Add(-viper.GetDuration("fetch.realtime_interval")))
			if err != nil {
				log.Error().Err(err).Msg("loading stale realtime instruments failed")
				return
			}
			if err := fetcher.FetchRealtime(context.Background(), stocks); err != nil {
				log.Error().Err(err).Msg("realtime fetch failed")
			}
		})
		scheduler.Every(1).Hours().Do(func() {
			stocks, err := store.StocksNeedingHistoricalUpdate(context.Background(), time.Now().Add(-viper.GetDuration("fetch.historical_interval")))
			if err != nil {
				log.Error().Err(err).Msg("loading stale historical instruments failed")
				return
			}
			if err := fetcher.FetchHistorical(context.Background(), stocks); err != nil {
				log.Error().Err(err).Msg("historical fetch failed")
			}
		})

		notifier := push.NewNotifier(store)
		if notifier.Enabled() {
			scheduler.Every(15).Minutes().Do(func() {
				if err := notifier.SendDaily(context.Background()); err != nil {
					log.Error().Err(err).Msg("sending push notifications failed")
				}
			})
		} else {
			log.Info().Msg("no VAPID keys configured, push notifications disabled")
		}

		scheduler.StartAsync()

		if err := app.Listen(":" + viper.GetString("server.port")); err != nil {
			log.Fatal().Err(err).Msg("server exited")
		}
	},
}
