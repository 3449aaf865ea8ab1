// Package windowed adapts the teacher's tumbling-window boundary bookkeeping
// (datastreams/windower) from a batch-flush trigger into a continuously
// variable chunk-size function: a chunk that arrives right after a window
// boundary is nearly free, while one arriving as the window is about to
// close weighs close to 1. Feeding this into a Readable/Writable strategy
// smooths bursts that would otherwise cluster right before a tumbling-window
// flush, without requiring the producer to know anything about windows.
package windowed

import (
	"sync"
	"time"

	"github.com/relaystream/streams/strategy"
)

// Strategy is a time-windowed queuing strategy: Size grows linearly from 0
// to 1 over the course of each window and resets at the next boundary.
type Strategy[T any] struct {
	hwm    float64
	window time.Duration

	mu          sync.Mutex
	windowStart time.Time
	now         func() time.Time
}

// New constructs a windowed Strategy with the given high-water mark and
// window duration.
func New[T any](hwm float64, window time.Duration) (*Strategy[T], error) {
	if err := strategy.ValidateHighWaterMark(hwm); err != nil {
		return nil, err
	}
	if window <= 0 {
		window = time.Second
	}
	return &Strategy[T]{hwm: hwm, window: window, now: time.Now}, nil
}

func (s *Strategy[T]) HighWaterMark() float64 { return s.hwm }

func (s *Strategy[T]) Size(T) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if s.windowStart.IsZero() || now.Sub(s.windowStart) >= s.window {
		s.windowStart = now
		return 0, nil
	}
	frac := float64(now.Sub(s.windowStart)) / float64(s.window)
	if frac > 1 {
		frac = 1
	}
	return frac, nil
}

var _ strategy.Strategy[any] = (*Strategy[any])(nil)
