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

package list

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func collect[T any](l *List[T]) []T {
	var out []T
	for e := l.Front(); e != nil; e = e.Next() {
		out = append(out, e.Value)
	}
	return out
}

func TestListOperations(t *testing.T) {
	// 1. The zero value is an empty, usable list.
	var l List[int]
	assert.Equal(t, 0, l.Len())
	assert.Nil(t, l.Front())
	assert.Nil(t, l.Back())

	// 2. PushBack appends, PushFront prepends.
	l.PushBack(2)
	l.PushBack(3)
	l.PushFront(1)
	assert.Equal(t, 3, l.Len())
	assert.Equal(t, []int{1, 2, 3}, collect(&l))
	assert.Equal(t, 1, l.Front().Value)
	assert.Equal(t, 3, l.Back().Value)

	// 3. Next and Prev walk the list and stop at the ends.
	mid := l.Front().Next()
	require.NotNil(t, mid)
	assert.Equal(t, 2, mid.Value)
	assert.Equal(t, 1, mid.Prev().Value)
	assert.Nil(t, l.Front().Prev())
	assert.Nil(t, l.Back().Next())
}

func TestListRemove(t *testing.T) {
	l := New[string]()
	a := l.PushBack("a")
	b := l.PushBack("b")
	c := l.PushBack("c")

	// 1. Removing the middle element keeps the others linked.
	assert.True(t, l.Remove(b))
	assert.Equal(t, 2, l.Len())
	assert.Equal(t, []string{"a", "c"}, collect(l))

	// 2. A removed element is detached and cannot be removed twice.
	assert.Nil(t, b.Next())
	assert.Nil(t, b.Prev())
	assert.False(t, l.Remove(b))

	// 3. An element of another list is refused.
	other := New[string]()
	other.PushBack("x")
	assert.False(t, l.Remove(other.Front()))

	// 4. Removing the remaining elements empties the list.
	assert.True(t, l.Remove(a))
	assert.True(t, l.Remove(c))
	assert.Equal(t, 0, l.Len())
	assert.Nil(t, l.Front())
}

func TestListPushBackElementReuse(t *testing.T) {
	l := New[int]()

	// A caller-allocated element can cycle through the list repeatedly,
	// which is what a sync.Pool of elements relies on.
	e := &Element[int]{Value: 7}
	for range 3 {
		l.PushBackElement(e)
		assert.Equal(t, 1, l.Len())
		assert.Same(t, e, l.Back())
		require.True(t, l.Remove(e))
		assert.Equal(t, 0, l.Len())
	}
}
