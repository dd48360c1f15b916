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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseConfig(t *testing.T) {
	tests := []struct {
		name       string
		connString string
		want       *Config
		wantErr    string
	}{
		{
			name:       "minimal",
			connString: "host=localhost user=postgres dbname=app",
			want:       &Config{Host: "localhost", User: "postgres", Database: "app"},
		},
		{
			name:       "all keys",
			connString: "host=db.internal port=5433 user=svc dbname=app password=s3cret sslmode=require connect_timeout=10 persistent=true",
			want: &Config{
				Host:           "db.internal",
				User:           "svc",
				Database:       "app",
				Password:       "s3cret",
				passwordSet:    true,
				Port:           5433,
				SSLMode:        "require",
				ConnectTimeout: 10,
				Persistent:     true,
			},
		},
		{
			name:       "empty password accepted",
			connString: "host=localhost user=postgres dbname=app password=",
			want:       &Config{Host: "localhost", User: "postgres", Database: "app", passwordSet: true},
		},
		{
			name:       "extra whitespace between entries",
			connString: "  host=localhost \t user=postgres \n dbname=app  ",
			want:       &Config{Host: "localhost", User: "postgres", Database: "app"},
		},
		{
			name:       "missing host",
			connString: "user=postgres dbname=app",
			wantErr:    "host is required",
		},
		{
			name:       "missing user",
			connString: "host=localhost dbname=app",
			wantErr:    "user is required",
		},
		{
			name:       "missing dbname",
			connString: "host=localhost user=postgres",
			wantErr:    "dbname is required",
		},
		{
			name:       "unknown key",
			connString: "host=localhost user=postgres dbname=app application_name=x",
			wantErr:    `unknown key "application_name"`,
		},
		{
			name:       "duplicate key",
			connString: "host=a host=b user=postgres dbname=app",
			wantErr:    `duplicate key "host"`,
		},
		{
			name:       "malformed entry",
			connString: "host=localhost user=postgres dbname=app justaword",
			wantErr:    `malformed entry "justaword"`,
		},
		{
			name:       "bad port",
			connString: "host=localhost user=postgres dbname=app port=tcp",
			wantErr:    "port must be a positive integer",
		},
		{
			name:       "negative port",
			connString: "host=localhost user=postgres dbname=app port=-1",
			wantErr:    "port must be a positive integer",
		},
		{
			name:       "bad sslmode",
			connString: "host=localhost user=postgres dbname=app sslmode=maybe",
			wantErr:    `unsupported sslmode "maybe"`,
		},
		{
			name:       "bad connect_timeout",
			connString: "host=localhost user=postgres dbname=app connect_timeout=0",
			wantErr:    "connect_timeout must be a positive integer",
		},
		{
			name:       "bad persistent",
			connString: "host=localhost user=postgres dbname=app persistent=sometimes",
			wantErr:    "persistent must be a boolean",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := ParseConfig(tt.connString)
			if tt.wantErr != "" {
				require.Error(t, err)
				var cfgErr *ConfigurationError
				require.ErrorAs(t, err, &cfgErr)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, cfg)
		})
	}
}

func TestConfigDSN(t *testing.T) {
	// 1. Optional keys are omitted when unset.
	cfg, err := ParseConfig("host=localhost user=postgres dbname=app")
	require.NoError(t, err)
	assert.Equal(t, "host=localhost user=postgres dbname=app", cfg.DSN())

	// 2. Set keys are rendered; persistent stays client-side.
	cfg, err = ParseConfig("host=h user=u dbname=d password=p port=5433 sslmode=disable connect_timeout=3 persistent=true")
	require.NoError(t, err)
	assert.Equal(t, "host=h user=u dbname=d password=p port=5433 sslmode=disable connect_timeout=3", cfg.DSN())

	// 3. An explicitly empty password is still forwarded.
	cfg, err = ParseConfig("host=h user=u dbname=d password=")
	require.NoError(t, err)
	assert.Equal(t, "host=h user=u dbname=d password=", cfg.DSN())
}
