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

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsolationLevelBeginStatement(t *testing.T) {
	tests := []struct {
		level IsolationLevel
		want  string
	}{
		{LevelDefault, "BEGIN"},
		{LevelReadUncommitted, "BEGIN ISOLATION LEVEL READ UNCOMMITTED"},
		{LevelReadCommitted, "BEGIN ISOLATION LEVEL READ COMMITTED"},
		{LevelRepeatableRead, "BEGIN ISOLATION LEVEL REPEATABLE READ"},
		{LevelSerializable, "BEGIN ISOLATION LEVEL SERIALIZABLE"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.level.beginStatement())
	}
}
