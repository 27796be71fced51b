package broadcast

import (
	"context"
	"sync"
)

// MemoryBroadcaster is an in-process Broadcaster. Delivery never blocks:
// a subscriber with a full buffer misses the message.
type MemoryBroadcaster[T any] struct {
	mu          sync.RWMutex
	subscribers map[*memorySubscriber[T]]struct{}
	bufferSize  int
	closed      bool
}

// NewMemoryBroadcaster creates a broadcaster with the given per-subscriber buffer.
func NewMemoryBroadcaster[T any](bufferSize int) *MemoryBroadcaster[T] {
	if bufferSize < 0 {
		bufferSize = 0
	}
	return &MemoryBroadcaster[T]{
		subscribers: make(map[*memorySubscriber[T]]struct{}),
		bufferSize:  bufferSize,
	}
}

// Subscribe registers a subscriber that is removed when ctx is done.
// Subscribing to a closed broadcaster yields an already closed subscriber.
func (b *MemoryBroadcaster[T]) Subscribe(ctx context.Context) Subscriber[T] {
	sub := &memorySubscriber[T]{
		ch:          make(chan Message[T], b.bufferSize),
		done:        make(chan struct{}),
		broadcaster: b,
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		sub.closeLocked()
		return sub
	}
	b.subscribers[sub] = struct{}{}
	b.mu.Unlock()

	if ctx.Done() != nil {
		go func() {
			select {
			case <-ctx.Done():
				_ = sub.Close()
			case <-sub.done:
			}
		}()
	}

	return sub
}

// Broadcast delivers msg to every subscriber with buffer space.
func (b *MemoryBroadcaster[T]) Broadcast(ctx context.Context, msg Message[T]) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return ErrBroadcasterClosed
	}

	for sub := range b.subscribers {
		select {
		case sub.ch <- msg:
		default:
		}
	}
	return nil
}

// Len reports the number of active subscribers.
func (b *MemoryBroadcaster[T]) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}

// Close closes every subscriber. Further broadcasts return ErrBroadcasterClosed.
func (b *MemoryBroadcaster[T]) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true

	for sub := range b.subscribers {
		sub.closeLocked()
		delete(b.subscribers, sub)
	}
	return nil
}

type memorySubscriber[T any] struct {
	ch          chan Message[T]
	done        chan struct{}
	once        sync.Once
	broadcaster *MemoryBroadcaster[T]
}

// Receive returns the message channel. It is closed when the subscriber
// closes or ctx is done.
func (s *memorySubscriber[T]) Receive(ctx context.Context) <-chan Message[T] {
	if ctx.Done() != nil {
		go func() {
			select {
			case <-ctx.Done():
				_ = s.Close()
			case <-s.done:
			}
		}()
	}
	return s.ch
}

// Close removes the subscriber. Safe to call more than once.
func (s *memorySubscriber[T]) Close() error {
	b := s.broadcaster
	b.mu.Lock()
	defer b.mu.Unlock()

	delete(b.subscribers, s)
	s.closeLocked()
	return nil
}

// closeLocked requires the broadcaster lock so no Broadcast sends on ch concurrently.
func (s *memorySubscriber[T]) closeLocked() {
	s.once.Do(func() {
		close(s.done)
		close(s.ch)
	})
}
