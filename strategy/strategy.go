// Package strategy defines the queuing-strategy contract shared by the
// Readable and Writable controllers: a pair of (size function, high-water
// mark) that together decide how "full" a queue is and when backpressure
// should engage.
package strategy

import (
	"math"

	"github.com/relaystream/streams/serr"
)

// Strategy computes a per-chunk size and exposes the high-water mark that
// size is compared against to derive desiredSize / backpressure.
type Strategy[T any] interface {
	// HighWaterMark returns the target occupancy above which backpressure
	// engages. Must be non-negative and not NaN.
	HighWaterMark() float64
	// Size returns the weight of a single chunk. An error here errors the
	// owning stream with that error.
	Size(chunk T) (float64, error)
}

// ValidateHighWaterMark rejects a high-water mark that is negative or NaN.
func ValidateHighWaterMark(hwm float64) error {
	if math.IsNaN(hwm) || hwm < 0 {
		return serr.New(serr.Range, "strategy.ValidateHighWaterMark", "high water mark must be a non-negative number")
	}
	return nil
}

// Func adapts a plain size function and fixed high-water mark into a
// Strategy, for callers who don't need a dedicated type.
type Func[T any] struct {
	Hwm    float64
	SizeFn func(T) (float64, error)
}

// New constructs a Func-backed Strategy, validating hwm up front.
func New[T any](hwm float64, sizeFn func(T) (float64, error)) (Func[T], error) {
	if err := ValidateHighWaterMark(hwm); err != nil {
		return Func[T]{}, err
	}
	if sizeFn == nil {
		sizeFn = func(T) (float64, error) { return 1, nil }
	}
	return Func[T]{Hwm: hwm, SizeFn: sizeFn}, nil
}

func (f Func[T]) HighWaterMark() float64         { return f.Hwm }
func (f Func[T]) Size(chunk T) (float64, error) { return f.SizeFn(chunk) }
