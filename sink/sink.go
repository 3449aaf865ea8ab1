// Package sink provides concrete UnderlyingSink implementations, adapted
// from the teacher's datastreams/sinks package (channel-backed,
// batching) onto writable.Controller semantics.
package sink

import (
	"context"

	"github.com/relaystream/streams/writable"
)

// ToChannel builds an UnderlyingSink that forwards every written chunk to
// out. Grounded on sinks.channelSink.Sink.
func ToChannel[T any](out chan<- T) writable.UnderlyingSink[T] {
	return writable.UnderlyingSink[T]{
		Write: func(ctx context.Context, chunk T, _ *writable.Controller[T]) error {
			select {
			case out <- chunk:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		},
	}
}

// Batching builds an UnderlyingSink that accumulates writes into batches of
// size batchSize and calls onFlush once a batch fills, plus once more on
// Close for any partial trailing batch. Grounded on sinks.BatchSinker.
func Batching[T any](batchSize int, onFlush func(context.Context, []T) error) writable.UnderlyingSink[T] {
	batch := make([]T, 0, batchSize)

	flush := func(ctx context.Context) error {
		if len(batch) == 0 {
			return nil
		}
		elems := batch
		batch = make([]T, 0, batchSize)
		return onFlush(ctx, elems)
	}

	return writable.UnderlyingSink[T]{
		Write: func(ctx context.Context, chunk T, _ *writable.Controller[T]) error {
			batch = append(batch, chunk)
			if len(batch) == cap(batch) {
				return flush(ctx)
			}
			return nil
		},
		Close: func(ctx context.Context) error {
			return flush(ctx)
		},
	}
}
