// Copyright 2025 Supabase, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/unigres/unigres/go/client"
)

var queryCmd = &cobra.Command{
	Use:   "query <sql> [param]...",
	Short: "Run a statement and print the rows as JSON lines.",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runQuery,
}

var execCmd = &cobra.Command{
	Use:   "exec <sql> [param]...",
	Short: "Run a command statement and print the affected row count.",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runExec,
}

var pingCmd = &cobra.Command{
	Use:   "ping",
	Short: "Open a connection, run SELECT 1, and report success.",
	Args:  cobra.NoArgs,
	RunE:  runPing,
}

// newClient builds a client from the persistent flags.
func newClient() (*client.Client, error) {
	return client.New(client.Config{
		ConnString: viper.GetString("dsn"),
		PoolSize:   viper.GetInt("pool-size"),
		Logger:     slog.Default(),
	})
}

// cliParams widens the string arguments so the driver sends them as text
// parameters and lets the server coerce them.
func cliParams(args []string) []any {
	params := make([]any, len(args))
	for i, a := range args {
		params[i] = a
	}
	return params
}

func runQuery(cmd *cobra.Command, args []string) error {
	c, err := newClient()
	if err != nil {
		return err
	}
	defer c.Close()

	rows, err := c.Query(cmd.Context(), args[0], cliParams(args[1:])...)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	for _, row := range rows {
		if err := enc.Encode(row); err != nil {
			return err
		}
	}
	return nil
}

func runExec(cmd *cobra.Command, args []string) error {
	c, err := newClient()
	if err != nil {
		return err
	}
	defer c.Close()

	affected, err := c.Exec(cmd.Context(), args[0], cliParams(args[1:])...)
	if err != nil {
		return err
	}

	fmt.Fprintln(os.Stdout, affected)
	return nil
}

func runPing(cmd *cobra.Command, args []string) error {
	c, err := newClient()
	if err != nil {
		return err
	}
	defer c.Close()

	if _, err := c.FetchValue(cmd.Context(), "SELECT 1"); err != nil {
		return err
	}

	fmt.Fprintln(os.Stdout, "ok")
	return nil
}

func init() {
	Main.AddCommand(queryCmd)
	Main.AddCommand(execCmd)
	Main.AddCommand(pingCmd)
}
