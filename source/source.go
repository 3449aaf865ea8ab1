// Package source provides concrete UnderlyingSource implementations,
// adapted from the teacher's sources package (array-backed, channel-backed)
// onto readable.Controller.Enqueue/Close semantics.
package source

import (
	"context"

	"github.com/relaystream/streams/readable"
)

// FromArray builds an UnderlyingSource that enqueues every element of
// values in order, then closes. Grounded on sources.Array.Consume.
func FromArray[T any](values []T) readable.UnderlyingSource[T] {
	return readable.UnderlyingSource[T]{
		Start: func(ctx context.Context, c *readable.Controller[T]) error {
			for _, v := range values {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				if err := c.Enqueue(v); err != nil {
					return err
				}
			}
			return c.Close()
		},
	}
}

// FromChannel builds an UnderlyingSource that relays every value received
// on in until in is closed or ctx is canceled, then closes the readable.
// Grounded on sources.Channel's select-based relay.
func FromChannel[T any](in <-chan T) readable.UnderlyingSource[T] {
	return readable.UnderlyingSource[T]{
		Start: func(ctx context.Context, c *readable.Controller[T]) error {
			for {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case v, ok := <-in:
					if !ok {
						return c.Close()
					}
					if err := c.Enqueue(v); err != nil {
						return err
					}
				}
			}
		},
	}
}

// EventFunc produces the next event, or reports done/err when the event
// source is exhausted or fails.
type EventFunc[T any] func(ctx context.Context) (value T, done bool, err error)

// FromEventFunc builds an UnderlyingSource whose Pull callback calls next
// once per pull and enqueues, closes, or errors accordingly. Grounded on
// sources.EventSourcer's pull-driven shape.
func FromEventFunc[T any](next EventFunc[T]) readable.UnderlyingSource[T] {
	return readable.UnderlyingSource[T]{
		Pull: func(ctx context.Context, c *readable.Controller[T]) error {
			v, done, err := next(ctx)
			if err != nil {
				return err
			}
			if done {
				return c.Close()
			}
			return c.Enqueue(v)
		},
	}
}
