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

// unigres is a small command line front end for the client library: run a
// statement against a database, print the rows, and exit.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var Main = &cobra.Command{
	Use:   "unigres",
	Short: "Unigres runs SQL statements against a PostgreSQL database through a pooled client.",
	Long:  "Unigres runs SQL statements against a PostgreSQL database through a pooled client.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := viper.BindPFlags(cmd.Flags()); err != nil {
			return err
		}
		return setupLogging()
	},
	SilenceUsage: true,
}

func main() {
	if err := Main.Execute(); err != nil {
		slog.Error(err.Error())
		os.Exit(1)
	}
}

// setupLogging configures the default slog logger from the log flags.
func setupLogging() error {
	var level slog.Level
	switch viper.GetString("log-level") {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		return fmt.Errorf("invalid log level: %s (valid values: debug, info, warn, error)", viper.GetString("log-level"))
	}

	var output *os.File
	switch viper.GetString("log-output") {
	case "stderr", "":
		output = os.Stderr
	case "stdout":
		output = os.Stdout
	default:
		file, err := os.OpenFile(viper.GetString("log-output"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("failed to open log file %s: %w", viper.GetString("log-output"), err)
		}
		output = file
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	switch viper.GetString("log-format") {
	case "text":
		handler = slog.NewTextHandler(output, opts)
	case "json", "":
		handler = slog.NewJSONHandler(output, opts)
	default:
		return fmt.Errorf("invalid log format: %s (valid values: json, text)", viper.GetString("log-format"))
	}

	slog.SetDefault(slog.New(handler))
	return nil
}

func init() {
	Main.PersistentFlags().String("dsn", "", "connection string, space delimited key=value pairs")
	Main.PersistentFlags().Int("pool-size", 0, "maximum number of concurrent server sessions (0 means the default)")
	Main.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	Main.PersistentFlags().String("log-format", "text", "log format (json, text)")
	Main.PersistentFlags().String("log-output", "stderr", "log output destination (stderr, stdout, or a file path)")

	viper.SetEnvPrefix("unigres")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}
