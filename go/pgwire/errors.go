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
	"errors"
	"fmt"
)

var (
	// ErrConnClosed is returned when an operation is attempted on a closed
	// connection.
	ErrConnClosed = errors.New("pgwire: connection is closed")

	// ErrConnBusy is returned when a statement or Rollback is started while
	// a previous statement on the same connection is still running.
	ErrConnBusy = errors.New("pgwire: connection is busy with another statement")
)

// ConfigurationError reports an invalid or unknown connection string entry.
// It is raised at construction time, before any connection is opened.
type ConfigurationError struct {
	Detail string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("invalid connection configuration: %s", e.Detail)
}

// ConnectionOpenFailedError wraps the driver error raised while establishing
// a new server session.
type ConnectionOpenFailedError struct {
	Err error
}

func (e *ConnectionOpenFailedError) Error() string {
	return fmt.Sprintf("opening connection: %v", e.Err)
}

func (e *ConnectionOpenFailedError) Unwrap() error {
	return e.Err
}
