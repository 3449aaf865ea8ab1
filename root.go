package streams

import (
	"context"

	"github.com/relaystream/streams/pipe"
	"github.com/relaystream/streams/readable"
	"github.com/relaystream/streams/settlement"
	"github.com/relaystream/streams/strategy"
	"github.com/relaystream/streams/tee"
	"github.com/relaystream/streams/transform"
	"github.com/relaystream/streams/writable"
	"github.com/sirupsen/logrus"
)

// UnderlyingSource supplies the producer-side callbacks for a Readable.
type UnderlyingSource[T any] = readable.UnderlyingSource[T]

// UnderlyingSink supplies the consumer-side callbacks for a Writable.
type UnderlyingSink[T any] = writable.UnderlyingSink[T]

// Transformer supplies the callbacks coupling a Transform pair's input
// side to its output side.
type Transformer[I, O any] = transform.Transformer[I, O]

// ReadResult is what a Reader.Read call produces.
type ReadResult[T any] = readable.ReadResult[T]

// PipeOptions controls which shutdown propagations PipeTo performs.
type PipeOptions = pipe.Options

// NewReadable constructs a Readable stream bound to src, sized by strat.
func NewReadable[T any](ctx context.Context, src UnderlyingSource[T], strat strategy.Strategy[T]) *readable.Stream[T] {
	return readable.New(ctx, src, strat)
}

// NewWritable constructs a Writable stream bound to sink, sized by strat.
func NewWritable[T any](ctx context.Context, sink UnderlyingSink[T], strat strategy.Strategy[T]) *writable.Stream[T] {
	return writable.New(ctx, sink, strat)
}

// NewTransform constructs a Transform pair: an input Writable coupled to
// an output Readable through t.
func NewTransform[I, O any](ctx context.Context, t Transformer[I, O], wStrat strategy.Strategy[I], rStrat strategy.Strategy[O]) *transform.Transform[I, O] {
	return transform.New[I, O](ctx, t, wStrat, rStrat)
}

// PipeTo drains src into dst; see package pipe for the full shutdown
// semantics.
func PipeTo[T any](ctx context.Context, src *readable.Stream[T], dst *writable.Stream[T], opts PipeOptions) error {
	return pipe.PipeTo(ctx, src, dst, opts)
}

// SetLogger overrides the diagnostic logger used by every core package
// (readable, writable, pipe, tee, settlement) with l.
func SetLogger(l logrus.FieldLogger) {
	readable.SetLogger(l)
	writable.SetLogger(l)
	pipe.SetLogger(l)
	tee.SetLogger(l)
	settlement.SetLogger(l)
}
