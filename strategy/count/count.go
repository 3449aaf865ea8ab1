// Package count implements the default queuing strategy: every chunk costs
// exactly 1, so the queue's total size is simply its length.
package count

import "github.com/relaystream/streams/strategy"

// Strategy is a count-based strategy: Size always returns 1.
type Strategy[T any] struct {
	hwm float64
}

// New constructs a count Strategy with the given high-water mark.
func New[T any](hwm float64) (*Strategy[T], error) {
	if err := strategy.ValidateHighWaterMark(hwm); err != nil {
		return nil, err
	}
	return &Strategy[T]{hwm: hwm}, nil
}

func (s *Strategy[T]) HighWaterMark() float64 { return s.hwm }

func (s *Strategy[T]) Size(T) (float64, error) { return 1, nil }

var _ strategy.Strategy[any] = (*Strategy[any])(nil)
