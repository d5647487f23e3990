/*
github.com/tcrain/simnet - Transport and session layer for networked simulation testing.
Copyright (C) 2023 The project authors - tcrain

This program is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

This program is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with this program.  If not, see <https://www.gnu.org/licenses/>.

*/

/*
This package contains the inbound message queues shared between the pump
goroutines and the application. Locks are held only across a single push or
pop, never across I/O, so a slow consumer cannot stall a pump.
*/
package queue

import (
	"sync"

	equeue "github.com/eapache/queue"
	"github.com/tcrain/simnet/config"
	"github.com/tcrain/simnet/transport/messages"
)

// SteadyQueue is the unbounded FIFO for inbound steady messages. Order is
// preserved and entries are only removed by an explicit pop.
type SteadyQueue struct {
	mutex sync.Mutex
	ring  *equeue.Queue
}

// NewSteadyQueue returns an empty SteadyQueue.
func NewSteadyQueue() *SteadyQueue {
	return &SteadyQueue{ring: equeue.New()}
}

// Push appends a message at the back of the queue.
func (sq *SteadyQueue) Push(d messages.SteadyMsgData) {
	sq.mutex.Lock()
	sq.ring.Add(d)
	sq.mutex.Unlock()
}

// Pop removes and returns the oldest message, returning false when the
// queue is empty. It never blocks.
func (sq *SteadyQueue) Pop() (messages.SteadyMsgData, bool) {
	sq.mutex.Lock()
	defer sq.mutex.Unlock()
	if sq.ring.Length() == 0 {
		return messages.SteadyMsgData{}, false
	}
	return sq.ring.Remove().(messages.SteadyMsgData), true
}

// Len returns the number of queued messages.
func (sq *SteadyQueue) Len() int {
	sq.mutex.Lock()
	defer sq.mutex.Unlock()
	return sq.ring.Length()
}

// FastQueue is the bounded FIFO for inbound fast updates. A push when full
// evicts the single oldest entry, so the queue always holds the most recent
// config.FastQueueLimit items in arrival order. Fast updates are staleness
// tolerant, recency beats completeness here.
type FastQueue[T any] struct {
	mutex sync.Mutex
	limit int
	items []T
}

// NewFastQueue returns an empty FastQueue with capacity
// config.FastQueueLimit.
func NewFastQueue[T any]() *FastQueue[T] {
	return &FastQueue[T]{limit: config.FastQueueLimit}
}

// Push appends an item, evicting the oldest entry if the queue is full.
func (fq *FastQueue[T]) Push(item T) {
	fq.mutex.Lock()
	defer fq.mutex.Unlock()
	if len(fq.items) >= fq.limit {
		copy(fq.items, fq.items[1:])
		fq.items[len(fq.items)-1] = item
		return
	}
	fq.items = append(fq.items, item)
}

// Pop removes and returns the oldest item, returning false when the queue
// is empty. It never blocks.
func (fq *FastQueue[T]) Pop() (T, bool) {
	fq.mutex.Lock()
	defer fq.mutex.Unlock()
	var zero T
	if len(fq.items) == 0 {
		return zero, false
	}
	item := fq.items[0]
	copy(fq.items, fq.items[1:])
	fq.items[len(fq.items)-1] = zero
	fq.items = fq.items[:len(fq.items)-1]
	return item, true
}

// Len returns the number of queued items.
func (fq *FastQueue[T]) Len() int {
	fq.mutex.Lock()
	defer fq.mutex.Unlock()
	return len(fq.items)
}
