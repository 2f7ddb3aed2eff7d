package queue

import "errors"

// ErrQueueFull is returned by Enqueue when the queue has no free capacity.
var ErrQueueFull = errors.New("queue is full")

// Queue moves items from producer goroutines to a single consumer.
type Queue interface {
	Enqueue(item interface{}) error
	Dequeue() interface{}
	Size() int
	ReadAllMessages() []interface{}
	ClearQueue()
}
