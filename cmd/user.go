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
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/term"

	"github.com/stockbook/sb-api/common"
	"github.com/stockbook/sb-api/data"
	"github.com/stockbook/sb-api/database"
)

var userFullName string

func init() {
	userAddCmd.Flags().StringVar(&userFullName, "full-name", "", "Display name of the new user")
	userCmd.AddCommand(userAddCmd)
	userCmd.AddCommand(userPasswdCmd)
	rootCmd.AddCommand(userCmd)
}

var userCmd = &cobra.Command{
	Use:   "user",
	Short: "Manage user accounts",
	Long:  `Manage user accounts`,
}

var userAddCmd = &cobra.Command{
	Use:   "add <name>",
	Short: "Create a new user",
	Long:  `Create a new user. The password is read from the terminal.`,
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		common.SetupLogging()

		ctx := context.Background()
		if err := database.Connect(ctx); err != nil {
			log.Fatal().Err(err).Msg("could not connect to database")
		}
		store := data.NewStore(database.Conn())

		fullName := userFullName
		if fullName == "" {
			fullName = args[0]
		}

		u := &data.User{
			Name:     args[0],
			FullName: fullName,
			Hash:     readPasswordHash(),
		}
		if err := store.CreateUser(ctx, u); err != nil {
			log.Fatal().Err(err).Str("UserName", u.Name).Msg("creating user failed")
		}
		fmt.Printf("created user %s (id %d)\n", u.Name, u.ID)
	},
}

var userPasswdCmd = &cobra.Command{
	Use:   "passwd <name>",
	Short: "Change a user's password",
	Long:  `Change a user's password. The new password is read from the terminal.`,
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		common.SetupLogging()

		ctx := context.Background()
		if err := database.Connect(ctx); err != nil {
			log.Fatal().Err(err).Msg("could not connect to database")
		}
		store := data.NewStore(database.Conn())

		u, err := store.UserByName(ctx, args[0])
		if err != nil {
			log.Fatal().Str("UserName", args[0]).Msg("unknown user")
		}
		if err := store.SetUserPassword(ctx, u.ID, readPasswordHash()); err != nil {
			log.Fatal().Err(err).Msg("updating password failed")
		}
		fmt.Println("password updated")
	},
}

// readPasswordHash prompts for a password twice and returns its bcrypt hash.
func readPasswordHash() string {
	fmt.Fprint(os.Stderr, "Password: ")
	pass, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		log.Fatal().Err(err).Msg("reading password failed")
	}

	fmt.Fprint(os.Stderr, "Repeat password: ")
	again, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		log.Fatal().Err(err).Msg("reading password failed")
	}

	if string(pass) != string(again) {
		log.Fatal().Msg("passwords do not match")
	}
	if len(pass) == 0 {
		log.Fatal().Msg("password must not be empty")
	}

	hash, err := bcrypt.GenerateFromPassword(pass, bcrypt.DefaultCost)
	if err != nil {
		log.Fatal().Err(err).Msg("hashing password failed")
	}
	return string(hash)
}
