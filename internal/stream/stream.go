package stream

import (
	"context"
	"sync"
	"sync/atomic"
)

// DefaultBuffer is the per-subscriber channel capacity.
const DefaultBuffer = 16

type subscriber[T any] struct {
	ch   chan T
	done <-chan struct{}
}

// Stream fans events out to live subscribers, typically SSE connections. Publish never
// blocks: a subscriber whose buffer is full misses the event.
type Stream[T any] struct {
	mu      sync.RWMutex
	subs    map[uint64]subscriber[T]
	seq     uint64
	buffer  int
	dropped atomic.Uint64
}

// New returns a stream with DefaultBuffer capacity per subscriber.
func New[T any]() *Stream[T] {
	return NewWithBuffer[T](DefaultBuffer)
}

// NewWithBuffer returns a stream with the given per-subscriber capacity.
func NewWithBuffer[T any](buffer int) *Stream[T] {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	return &Stream[T]{subs: make(map[uint64]subscriber[T]), buffer: buffer}
}

// Subscribe registers a subscriber until ctx ends, at which point the returned channel
// is closed.
func (s *Stream[T]) Subscribe(ctx context.Context) <-chan T {
	sub := subscriber[T]{ch: make(chan T, s.buffer), done: ctx.Done()}

	s.mu.Lock()
	s.seq++
	id := s.seq
	s.subs[id] = sub
	s.mu.Unlock()

	go func() {
		<-sub.done
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
		close(sub.ch)
	}()
	return sub.ch
}

// Publish offers evt to every subscriber and returns how many accepted it.
func (s *Stream[T]) Publish(evt T) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	delivered := 0
	for _, sub := range s.subs {
		select {
		case <-sub.done:
			continue
		default:
		}
		select {
		case sub.ch <- evt:
			delivered++
		default:
			s.dropped.Add(1)
		}
	}
	return delivered
}

// Subscribers reports the number of live subscriptions.
func (s *Stream[T]) Subscribers() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.subs)
}

// Dropped reports how many deliveries were skipped because a subscriber was full.
func (s *Stream[T]) Dropped() uint64 { return s.dropped.Load() }
