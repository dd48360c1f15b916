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

package executor

import "fmt"

// BadPlaceholdersError reports a statement whose parameter markers cannot be
// normalized: the two dialects are mixed, or a '?' sits in a position where
// a marker cannot legally start. The statement is never sent.
type BadPlaceholdersError struct {
	SQL    string
	Reason string
}

func (e *BadPlaceholdersError) Error() string {
	return fmt.Sprintf("bad placeholders: %s in %q", e.Reason, e.SQL)
}

// QueryError reports a statement the server (or the driver) failed to
// execute. It carries the statement and parameters as submitted by the
// caller plus the server's error text.
type QueryError struct {
	SQL    string
	Params []any
	Server string
	Err    error
}

func (e *QueryError) Error() string {
	if e.Server != "" {
		return fmt.Sprintf("query failed: %s (sql: %q, params: %v)", e.Server, e.SQL, e.Params)
	}
	return fmt.Sprintf("query failed: %v (sql: %q, params: %v)", e.Err, e.SQL, e.Params)
}

func (e *QueryError) Unwrap() error {
	return e.Err
}
