// Package stream defines the finite, single-use record streams that carry
// data between analysis stages.
//
// A stage hands its output to the next stage as a Stream. Draining the
// stream materialises every record into a slice and exhausts the stream;
// after that the producing stage no longer owns the records.
package stream

import (
	"errors"
	"sync"
)

// ErrDrained is returned by Drain on a stream that was already drained.
var ErrDrained = errors.New("stream already drained")

// Stream is a finite producer of T.
type Stream[T any] interface {
	// Drain returns every remaining record in order and exhausts the stream.
	Drain() ([]T, error)
}

// sliceStream hands over a pre-built slice exactly once.
type sliceStream[T any] struct {
	mu      sync.Mutex
	items   []T
	drained bool
}

// FromSlice returns a Stream that yields items on its first Drain. The slice
// is handed over, not copied; the caller must not retain it.
func FromSlice[T any](items []T) Stream[T] {
	return &sliceStream[T]{items: items}
}

func (s *sliceStream[T]) Drain() ([]T, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.drained {
		return nil, ErrDrained
	}
	s.drained = true
	out := s.items
	s.items = nil
	if out == nil {
		out = []T{}
	}
	return out, nil
}

type failedStream[T any] struct {
	err error
}

// Failed returns a Stream whose Drain always reports err.
func Failed[T any](err error) Stream[T] {
	return failedStream[T]{err: err}
}

func (s failedStream[T]) Drain() ([]T, error) {
	return nil, s.err
}

// Func adapts a function to the Stream interface. The function runs once;
// later calls return ErrDrained.
func Func[T any](fn func() ([]T, error)) Stream[T] {
	return &funcStream[T]{fn: fn}
}

type funcStream[T any] struct {
	mu  sync.Mutex
	fn  func() ([]T, error)
	ran bool
}

func (s *funcStream[T]) Drain() ([]T, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ran {
		return nil, ErrDrained
	}
	s.ran = true
	return s.fn()
}
