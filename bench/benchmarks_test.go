package bench

import (
	"context"
	"testing"
	"time"

	"github.com/relaystream/streams"
	"github.com/relaystream/streams/fanpipe"
	"github.com/relaystream/streams/pipe"
	"github.com/relaystream/streams/readable"
	"github.com/relaystream/streams/source"
	"github.com/relaystream/streams/strategy/count"
	"github.com/relaystream/streams/transform"
	"github.com/relaystream/streams/writable"
)

func benchmarkSource(ctx context.Context, n int, hwm *count.Strategy[int]) *readable.Stream[int] {
	values := make([]int, n)
	for i := range values {
		values[i] = i
	}
	return streams.NewReadable(ctx, source.FromArray(values), hwm)
}

func sinkDiscard(ctx context.Context, hwm *count.Strategy[int], delay time.Duration) *writable.Stream[int] {
	return streams.NewWritable(ctx, streams.UnderlyingSink[int]{
		Write: func(context.Context, int, *writable.Controller[int]) error {
			if delay > 0 {
				time.Sleep(delay)
			}
			return nil
		},
	}, hwm)
}

func BenchmarkPipelineOpen(b *testing.B) {
	benchmarks := []struct {
		name string
		run  func(ctx context.Context, hwm *count.Strategy[int], src *readable.Stream[int])
	}{
		{
			name: "fast pipeline",
			run: func(ctx context.Context, hwm *count.Strategy[int], src *readable.Stream[int]) {
				tf := streams.NewTransform(ctx, streams.Transformer[int, int]{
					Transform: func(_ context.Context, chunk int, c *transform.Controller[int]) error {
						return c.Enqueue(chunk * 2)
					},
				}, hwm, hwm)
				dst := sinkDiscard(ctx, hwm, 0)

				done := make(chan error, 1)
				go func() { done <- streams.PipeTo(ctx, src, tf.Writable, pipe.Options{}) }()
				_ = streams.PipeTo(ctx, tf.Readable, dst, pipe.Options{})
				<-done
			},
		},
		{
			name: "fast pipeline fanOut-5",
			run: func(ctx context.Context, hwm *count.Strategy[int], src *readable.Stream[int]) {
				dsts := make([]*writable.Stream[int], 5)
				for i := range dsts {
					dsts[i] = sinkDiscard(ctx, hwm, 0)
				}
				_ = fanpipe.FanOut[int, int](ctx, src, dsts, func(v int) int { return v % len(dsts) }, fanpipe.Options{})
			},
		},
		{
			name: "slow pipeline",
			run: func(ctx context.Context, hwm *count.Strategy[int], src *readable.Stream[int]) {
				tf := streams.NewTransform(ctx, streams.Transformer[int, int]{
					Transform: func(_ context.Context, chunk int, c *transform.Controller[int]) error {
						time.Sleep(2 * time.Millisecond)
						return c.Enqueue(chunk * 2)
					},
				}, hwm, hwm)
				dst := sinkDiscard(ctx, hwm, 0)

				done := make(chan error, 1)
				go func() { done <- streams.PipeTo(ctx, src, tf.Writable, pipe.Options{}) }()
				_ = streams.PipeTo(ctx, tf.Readable, dst, pipe.Options{})
				<-done
			},
		},
		{
			name: "slow pipeline fanOut-5",
			run: func(ctx context.Context, hwm *count.Strategy[int], src *readable.Stream[int]) {
				dsts := make([]*writable.Stream[int], 5)
				for i := range dsts {
					dsts[i] = sinkDiscard(ctx, hwm, 2*time.Millisecond)
				}
				_ = fanpipe.FanOut[int, int](ctx, src, dsts, func(v int) int { return v % len(dsts) }, fanpipe.Options{})
			},
		},
	}

	for _, bm := range benchmarks {
		b.Run(bm.name, func(b *testing.B) {
			ctx := context.Background()
			hwm, err := count.New[int](16)
			if err != nil {
				b.Fatal(err)
			}
			src := benchmarkSource(ctx, b.N, hwm)
			bm.run(ctx, hwm, src)
		})
	}
}
