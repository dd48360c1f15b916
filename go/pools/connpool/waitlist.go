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

package connpool

import (
	"runtime"
	"sync"

	"github.com/unigres/unigres/go/tools/list"
)

// handoff is what a releaser sends to a waiter: a connection, or the error
// that explains why none is coming.
type handoff[C Connection] struct {
	conn *Pooled[C]
	err  error
}

// waiter is a client queued for a connection. The channel is unbuffered so a
// delivery is an actual rendezvous with the waiting goroutine.
type waiter[C Connection] struct {
	ch chan handoff[C]
}

type waitElem[C Connection] = list.Element[waiter[C]]

// waitlist is a strict FIFO queue of waiters. List elements are recycled
// through a sync.Pool; the hand-off channel survives recycling.
type waitlist[C Connection] struct {
	nodes sync.Pool

	mu   sync.Mutex
	list list.List[waiter[C]]
}

func (wl *waitlist[C]) init() {
	wl.nodes.New = func() any {
		return &waitElem[C]{
			Value: waiter[C]{ch: make(chan handoff[C])},
		}
	}
	wl.list.Init()
}

// enqueue appends a waiter to the back of the queue and returns its element.
func (wl *waitlist[C]) enqueue() *waitElem[C] {
	elem := wl.nodes.Get().(*waitElem[C])
	wl.mu.Lock()
	wl.list.PushBackElement(elem)
	wl.mu.Unlock()
	return elem
}

// dequeue removes and returns the head waiter, or nil if the queue is empty.
func (wl *waitlist[C]) dequeue() *waitElem[C] {
	wl.mu.Lock()
	defer wl.mu.Unlock()
	elem := wl.list.Front()
	if elem != nil {
		wl.list.Remove(elem)
	}
	return elem
}

// remove reports whether the element was still queued. A false return means
// a deliverer has already dequeued the element and is about to send on its
// channel; the caller must then receive that hand-off.
func (wl *waitlist[C]) remove(elem *waitElem[C]) bool {
	wl.mu.Lock()
	defer wl.mu.Unlock()
	return wl.list.Remove(elem)
}

// deliver hands off to a dequeued waiter and nudges the scheduler so the
// waiter runs promptly.
func (wl *waitlist[C]) deliver(elem *waitElem[C], ho handoff[C]) {
	elem.Value.ch <- ho
	runtime.Gosched()
}

// recycle returns an element to the allocation pool. Only the goroutine that
// enqueued the element may recycle it, after the wait has fully resolved.
func (wl *waitlist[C]) recycle(elem *waitElem[C]) {
	wl.nodes.Put(elem)
}

func (wl *waitlist[C]) waiting() int {
	wl.mu.Lock()
	defer wl.mu.Unlock()
	return wl.list.Len()
}
