package lob

import (
	"context"
	"errors"
	"runtime"
	"sync/atomic"
)

// ErrDisruptorTimeout is returned when shutdown times out
var ErrDisruptorTimeout = errors.New("disruptor: shutdown timeout")

// EventHandler consumes events in publish order on the consumer goroutine.
type EventHandler[T any] interface {
	OnEvent(event *T)
}

// RingBuffer is a single-producer, single-consumer ring. The producer claims
// a slot, fills it in place and commits it; Run delivers committed slots to
// the handler in order.
type RingBuffer[T any] struct {
	// Cache line padding to avoid false sharing
	_                [56]byte
	producerSequence atomic.Int64 // last committed
	_                [56]byte
	consumerSequence atomic.Int64 // last handled
	_                [56]byte

	buffer     []T
	bufferMask int64
	capacity   int64
	claimed    int64 // producer-local

	handler    EventHandler[T]
	isShutdown atomic.Bool
	done       chan struct{}
}

// NewRingBuffer creates a ring of capacity slots. capacity must be a power of 2.
func NewRingBuffer[T any](capacity int64, handler EventHandler[T]) *RingBuffer[T] {
	if capacity <= 0 || (capacity&(capacity-1)) != 0 {
		panic("size must be a power of 2")
	}

	rb := &RingBuffer[T]{
		buffer:     make([]T, capacity),
		capacity:   capacity,
		bufferMask: capacity - 1,
		claimed:    -1,
		handler:    handler,
		done:       make(chan struct{}),
	}
	rb.producerSequence.Store(-1)
	rb.consumerSequence.Store(-1)
	return rb
}

// Claim reserves the next slot, waiting while the ring is full. It returns
// -1 and nil once the ring is shut down.
func (rb *RingBuffer[T]) Claim() (int64, *T) {
	next := rb.claimed + 1
	for next-rb.capacity > rb.consumerSequence.Load() {
		if rb.isShutdown.Load() {
			return -1, nil
		}
		runtime.Gosched()
	}
	if rb.isShutdown.Load() {
		return -1, nil
	}
	rb.claimed = next
	return next, &rb.buffer[next&rb.bufferMask]
}

// Commit makes the slot claimed as seq visible to the consumer.
func (rb *RingBuffer[T]) Commit(seq int64) {
	rb.producerSequence.Store(seq)
}

// Publish copies event into the next slot. It reports false after shutdown.
func (rb *RingBuffer[T]) Publish(event T) bool {
	seq, slot := rb.Claim()
	if slot == nil {
		return false
	}
	*slot = event
	rb.Commit(seq)
	return true
}

// Run consumes events until Shutdown and the remaining events are handled.
// It blocks; callers start it on its own goroutine.
func (rb *RingBuffer[T]) Run() {
	defer close(rb.done)

	next := rb.consumerSequence.Load() + 1
	for {
		// Load the shutdown flag first so no commit made before it is missed.
		stopping := rb.isShutdown.Load()
		available := rb.producerSequence.Load()

		for ; next <= available; next++ {
			slot := &rb.buffer[next&rb.bufferMask]
			rb.handler.OnEvent(slot)
			var zero T
			*slot = zero
			rb.consumerSequence.Store(next)
		}

		if stopping {
			return
		}
		runtime.Gosched()
	}
}

// Shutdown stops accepting events and waits until the consumer has handled
// every committed one.
func (rb *RingBuffer[T]) Shutdown(ctx context.Context) error {
	rb.isShutdown.Store(true)

	select {
	case <-rb.done:
		return nil
	case <-ctx.Done():
		return ErrDisruptorTimeout
	}
}

// ConsumerSequence returns the last handled sequence (for monitoring).
func (rb *RingBuffer[T]) ConsumerSequence() int64 {
	return rb.consumerSequence.Load()
}

// ProducerSequence returns the last committed sequence (for monitoring).
func (rb *RingBuffer[T]) ProducerSequence() int64 {
	return rb.producerSequence.Load()
}

// GetPendingEvents returns how many committed events wait for the consumer.
func (rb *RingBuffer[T]) GetPendingEvents() int64 {
	return rb.producerSequence.Load() - rb.consumerSequence.Load()
}
