// queue package

package queue

import (
	"fmt"
	"sync"
)

const (
	// QueueBufferSize is the default capacity of an in-memory queue
	QueueBufferSize = 1024
)

// InMemoryQueue is a bounded queue backed by a buffered channel.
type InMemoryQueue struct {
	ch   chan interface{}
	lock sync.RWMutex
}

// NewInMemoryQueue creates a new queue with the given capacity. A
// non-positive size uses QueueBufferSize.
func NewInMemoryQueue(size int) *InMemoryQueue {
	if size <= 0 {
		size = QueueBufferSize
	}
	return &InMemoryQueue{
		ch: make(chan interface{}, size),
	}
}

// Enqueue adds an item to the end of the queue without blocking.
func (q *InMemoryQueue) Enqueue(item interface{}) error {
	q.lock.RLock()
	defer q.lock.RUnlock()
	select {
	case q.ch <- item:
		return nil
	default:
		return fmt.Errorf("failed to enqueue %T: %w", item, ErrQueueFull)
	}
}

// Dequeue removes and returns the item from the front of the queue,
// blocking until one is available.
func (q *InMemoryQueue) Dequeue() interface{} {
	return <-q.ch
}

// Size returns the current size of the queue.
func (q *InMemoryQueue) Size() int {
	return len(q.ch)
}

// ReadAllMessages drains every item currently in the queue. Items enqueued
// while draining are left for the next call.
func (q *InMemoryQueue) ReadAllMessages() []interface{} {
	q.lock.Lock()
	defer q.lock.Unlock()

	var messages []interface{}
	for len(q.ch) > 0 {
		messages = append(messages, <-q.ch)
	}

	return messages
}

// ClearQueue clears all messages from the queue.
func (q *InMemoryQueue) ClearQueue() {
	q.lock.Lock()
	defer q.lock.Unlock()

	for len(q.ch) > 0 {
		<-q.ch
	}
}
