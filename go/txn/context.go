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

package txn

import "context"

// The active transaction rides on the context. Because context values are
// scoped, a nested Transaction call shadows the outer binding for its
// duration and the outer one is visible again afterwards, with no explicit
// save/restore.

type txContextKey struct{}

func withTx(ctx context.Context, tx *Tx) context.Context {
	return context.WithValue(ctx, txContextKey{}, tx)
}

// FromContext returns the transaction the context is running under, if any.
// A handle that has already ended is reported as absent.
func FromContext(ctx context.Context) (*Tx, bool) {
	tx, ok := ctx.Value(txContextKey{}).(*Tx)
	if !ok || tx.done.Load() {
		return nil, false
	}
	return tx, true
}

// OnCommit queues fn on the transaction the context is running under.
// Returns ErrNotInTransaction when there is none.
func OnCommit(ctx context.Context, fn func() error) error {
	tx, ok := FromContext(ctx)
	if !ok {
		return ErrNotInTransaction
	}
	return tx.OnCommit(fn)
}

// OnRollback queues fn on the transaction the context is running under.
// Returns ErrNotInTransaction when there is none.
func OnRollback(ctx context.Context, fn func() error) error {
	tx, ok := FromContext(ctx)
	if !ok {
		return ErrNotInTransaction
	}
	return tx.OnRollback(fn)
}
