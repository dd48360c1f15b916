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

// Result is a fully materialized statement result: the column names, every
// row, and the affected-row count from the command tag. Row-returning
// statements carry zero in Affected; commands carry no rows.
type Result struct {
	columns  []string
	rows     [][]any
	affected int64
}

// NewResult builds a Result. Tests and fake connections use it directly.
func NewResult(columns []string, rows [][]any, affected int64) *Result {
	return &Result{columns: columns, rows: rows, affected: affected}
}

// Columns returns the column names in wire order.
func (r *Result) Columns() []string {
	return r.columns
}

// NumRows returns the number of rows in the result.
func (r *Result) NumRows() int {
	return len(r.rows)
}

// Affected returns the affected-row count. Zero for non-DML statements.
func (r *Result) Affected() int64 {
	return r.affected
}

// Row returns row i as a positional sequence.
func (r *Result) Row(i int) []any {
	return r.rows[i]
}

// RowMap returns row i keyed by column name.
func (r *Result) RowMap(i int) map[string]any {
	row := r.rows[i]
	m := make(map[string]any, len(r.columns))
	for j, col := range r.columns {
		m[col] = row[j]
	}
	return m
}
