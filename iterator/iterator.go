// Package iterator adapts a Readable's Default Reader into a Go 1.23
// iter.Seq2-shaped function, in the spirit of the teacher's pipes/event
// OrDone/Take helpers (a bounded, ctx-aware channel-to-loop adapter)
// rewired onto readable.Reader instead of a bare channel.
package iterator

import (
	"context"

	"github.com/relaystream/streams/readable"
	"github.com/relaystream/streams/serr"
)

// ErrIterationStopped is the cancel reason used when a range loop over
// Iterate's sequence breaks before the reader is exhausted.
var ErrIterationStopped = serr.New(serr.State, "iterator.Iterate", "iteration stopped before the reader was exhausted")

// Iterate returns an iter.Seq2[T, error]-shaped function over r: each
// iteration yields the next chunk, or a single (zero, err) pair once the
// stream errors, after which the sequence is exhausted. Breaking out of a
// `for v, err := range Iterate(r, preventCancel)` loop releases r and,
// unless preventCancel, cancels the stream with ErrIterationStopped.
//
// The returned function is not restartable: once it has produced a
// terminal result (done, error, or an early break), every later call
// yields nothing.
func Iterate[T any](r *readable.Reader[T], preventCancel bool) func(yield func(T, error) bool) {
	ctx := context.Background()
	done := false

	return func(yield func(T, error) bool) {
		if done {
			return
		}
		for {
			res, err := r.Read(ctx)
			if err != nil {
				done = true
				r.ReleaseLock()
				var zero T
				yield(zero, err)
				return
			}
			if res.Done {
				done = true
				r.ReleaseLock()
				return
			}
			if !yield(res.Value, nil) {
				done = true
				if !preventCancel {
					_ = r.Cancel(ctx, ErrIterationStopped)
				}
				r.ReleaseLock()
				return
			}
		}
	}
}
