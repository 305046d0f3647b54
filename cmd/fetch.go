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
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/stockbook/sb-api/common"
	"github.com/stockbook/sb-api/data"
	"github.com/stockbook/sb-api/database"
	"github.com/stockbook/sb-api/onvista"
)

var (
	fetchRealtime   bool
	fetchHistorical bool
	fetchMissing    bool
)

func init() {
	fetchCmd.Flags().BoolVar(&fetchRealtime, "realtime", false, "Fetch current intraday quotes")
	fetchCmd.Flags().BoolVar(&fetchHistorical, "historical", false, "Fetch end-of-day history")
	fetchCmd.Flags().BoolVar(&fetchMissing, "missing", false, "Look up master data for unknown isins")
	rootCmd.AddCommand(fetchCmd)
}

var fetchCmd = &cobra.Command{
	Use:   "fetch [isin...]",
	Short: "Fetch prices and master data from onvista",
	Long:  `Fetch instrument master data, intraday quotes, and end-of-day history from onvista. Without isin arguments all known instruments are refreshed.`,
	Run: func(cmd *cobra.Command, args []string) {
		common.SetupLogging()

		ctx := context.Background()
		if err := database.Connect(ctx); err != nil {
			log.Fatal().Err(err).Msg("could not connect to database")
		}

		store := data.NewStore(database.Conn())
		fetcher := onvista.NewFetcher(store, onvista.NewClient())

		if fetchMissing {
			if err := fetcher.FetchMissing(ctx); err != nil {
				log.Fatal().Err(err).Msg("fetching missing instruments failed")
			}
		}

		if !fetchRealtime && !fetchHistorical {
			return
		}

		var stocks []*data.StockInfo
		if len(args) == 0 {
			var err error
			stocks, err = store.ListStocks(ctx, 0, 0)
			if err != nil {
				log.Fatal().Err(err).Msg("loading instruments failed")
			}
		} else {
			for _, isin := range args {
				si, err := store.GetStock(ctx, isin)
				if err != nil {
					log.Fatal().Str("ISIN", isin).Msg("unknown instrument")
				}
				stocks = append(stocks, si)
			}
		}

		start := time.Now()
		if fetchRealtime {
			if err := fetcher.FetchRealtime(ctx, stocks); err != nil {
				log.Fatal().Err(err).Msg("realtime fetch failed")
			}
		}
		if fetchHistorical {
			if err := fetcher.FetchHistorical(ctx, stocks); err != nil {
				log.Fatal().Err(err).Msg("historical fetch failed")
			}
		}
		log.Info().Int("NumStocks", len(stocks)).Dur("Elapsed", time.Since(start)).Msg("fetch finished")
	},
}
