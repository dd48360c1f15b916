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

package pgwire

import (
	"fmt"
	"strconv"
	"strings"
)

// Config holds the parsed connection parameters for one database.
type Config struct {
	// Host is the server hostname. Required.
	Host string

	// User is the username to authenticate as. Required.
	User string

	// Database is the database name. Required.
	Database string

	// Password may be empty.
	Password string
	passwordSet bool

	// Port is the TCP port. Zero means the driver default.
	Port int

	// SSLMode is the TLS negotiation policy. Empty means the driver default.
	SSLMode string

	// ConnectTimeout is the open timeout in seconds. Zero means none.
	ConnectTimeout int

	// Persistent requests server process reuse across client recreation.
	// It does not affect the wire-level session.
	Persistent bool
}

var sslModes = map[string]bool{
	"disable":     true,
	"allow":       true,
	"prefer":      true,
	"require":     true,
	"verify-ca":   true,
	"verify-full": true,
}

// ParseConfig parses a space-delimited "key=value" connection string.
// Recognized keys are host, user, dbname, password, port, sslmode,
// connect_timeout and persistent. Unknown keys, duplicate keys, malformed
// tokens and invalid values are rejected with a ConfigurationError.
func ParseConfig(connString string) (*Config, error) {
	cfg := &Config{}
	seen := make(map[string]bool)

	for _, token := range strings.Fields(connString) {
		key, value, ok := strings.Cut(token, "=")
		if !ok || key == "" {
			return nil, &ConfigurationError{Detail: fmt.Sprintf("malformed entry %q, want key=value", token)}
		}
		if seen[key] {
			return nil, &ConfigurationError{Detail: fmt.Sprintf("duplicate key %q", key)}
		}
		seen[key] = true

		switch key {
		case "host":
			cfg.Host = value
		case "user":
			cfg.User = value
		case "dbname":
			cfg.Database = value
		case "password":
			cfg.Password = value
			cfg.passwordSet = true
		case "port":
			port, err := strconv.Atoi(value)
			if err != nil || port <= 0 {
				return nil, &ConfigurationError{Detail: fmt.Sprintf("port must be a positive integer, got %q", value)}
			}
			cfg.Port = port
		case "sslmode":
			if !sslModes[value] {
				return nil, &ConfigurationError{Detail: fmt.Sprintf("unsupported sslmode %q", value)}
			}
			cfg.SSLMode = value
		case "connect_timeout":
			seconds, err := strconv.Atoi(value)
			if err != nil || seconds <= 0 {
				return nil, &ConfigurationError{Detail: fmt.Sprintf("connect_timeout must be a positive integer, got %q", value)}
			}
			cfg.ConnectTimeout = seconds
		case "persistent":
			persistent, err := strconv.ParseBool(value)
			if err != nil {
				return nil, &ConfigurationError{Detail: fmt.Sprintf("persistent must be a boolean, got %q", value)}
			}
			cfg.Persistent = persistent
		default:
			return nil, &ConfigurationError{Detail: fmt.Sprintf("unknown key %q", key)}
		}
	}

	for _, required := range []struct {
		key   string
		value string
	}{
		{"host", cfg.Host},
		{"user", cfg.User},
		{"dbname", cfg.Database},
	} {
		if value := strings.TrimSpace(required.value); value == "" {
			return nil, &ConfigurationError{Detail: fmt.Sprintf("%s is required and must be non-empty", required.key)}
		}
	}

	return cfg, nil
}

// DSN renders the config as a driver connection string. The persistent flag
// is client-side only and is not forwarded.
func (c *Config) DSN() string {
	parts := []string{
		"host=" + c.Host,
		"user=" + c.User,
		"dbname=" + c.Database,
	}
	if c.passwordSet {
		parts = append(parts, "password="+c.Password)
	}
	if c.Port > 0 {
		parts = append(parts, "port="+strconv.Itoa(c.Port))
	}
	if c.SSLMode != "" {
		parts = append(parts, "sslmode="+c.SSLMode)
	}
	if c.ConnectTimeout > 0 {
		parts = append(parts, "connect_timeout="+strconv.Itoa(c.ConnectTimeout))
	}
	return strings.Join(parts, " ")
}
