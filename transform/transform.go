// Package transform implements the Transform pair: a Writable input side
// coupled to a Readable output side through a user transform function and
// a backpressure-change settlement that throttles writes to the pace the
// readable side is being drained at.
package transform

import (
	"context"
	"fmt"
	"sync"

	"github.com/relaystream/streams/readable"
	"github.com/relaystream/streams/serr"
	"github.com/relaystream/streams/settlement"
	"github.com/relaystream/streams/strategy"
	"github.com/relaystream/streams/writable"
)

// Transformer supplies the user-side callbacks for a Transform pair. Start
// runs once, before either side accepts traffic. Transform runs once per
// chunk written to the input side; a nil Transform makes every write fail
// with a Misuse error — there is no implicit identity default,
// since Go's type system cannot express "I equals O" here the way an
// untyped default could. Flush runs once the input side closes, before
// the output side is allowed to close in turn.
type Transformer[I, O any] struct {
	Start     func(ctx context.Context, c *Controller[O]) error
	Transform func(ctx context.Context, chunk I, c *Controller[O]) error
	Flush     func(ctx context.Context, c *Controller[O]) error
}

// Transform couples a *writable.Stream[I] to a *readable.Stream[O]. Writes
// to the input side invoke Transformer.Transform, which enqueues zero or
// more chunks to the output side via the Controller it is given.
type Transform[I, O any] struct {
	Writable *writable.Stream[I]
	Readable *readable.Stream[O]

	mu              sync.Mutex
	backpressure    bool
	bpChange        *settlement.Settlement[struct{}]
	resolveBpChange func(struct{})
	rejectBpChange  func(error)

	transformFn func(context.Context, I, *Controller[O]) error
	flushFn     func(context.Context, *Controller[O]) error
	ctrl        *Controller[O]
}

// New constructs a Transform pair. The input side is sized by writableStrat
// (default high-water mark for a producer is conventionally 1) and the
// output side by readableStrat (conventionally 0).
func New[I, O any](ctx context.Context, t Transformer[I, O], writableStrat strategy.Strategy[I], readableStrat strategy.Strategy[O]) *Transform[I, O] {
	tf := &Transform[I, O]{
		backpressure: true,
		transformFn:  t.Transform,
		flushFn:      t.Flush,
	}
	tf.resetBackpressureChangeLocked()

	startDone, resolveStart, rejectStart := settlement.New[struct{}]()

	tf.Readable = readable.New(ctx, readable.UnderlyingSource[O]{
		Start: func(ctx context.Context, rc *readable.Controller[O]) error {
			_, err := startDone.Await(ctx)
			return err
		},
		Pull: func(ctx context.Context, rc *readable.Controller[O]) error {
			return tf.sourcePull()
		},
		Cancel: func(ctx context.Context, reason any) error {
			return tf.sourceCancel(reason)
		},
	}, readableStrat)

	tf.ctrl = &Controller[O]{rc: tf.Readable.Controller(), afterEnqueue: tf.afterEnqueue, terminate: tf.Terminate}

	tf.Writable = writable.New(ctx, writable.UnderlyingSink[I]{
		Start: func(ctx context.Context, wc *writable.Controller[I]) error {
			_, err := startDone.Await(ctx)
			return err
		},
		Write: func(ctx context.Context, chunk I, wc *writable.Controller[I]) error {
			return tf.sinkWrite(ctx, chunk)
		},
		Close: func(ctx context.Context) error {
			return tf.sinkClose(ctx)
		},
		Abort: func(ctx context.Context, reason any) error {
			return tf.sinkAbort(reason)
		},
	}, writableStrat)

	go func() {
		var err error
		if t.Start != nil {
			err = t.Start(ctx, tf.ctrl)
		}
		if err != nil {
			rejectStart(serr.Wrap(serr.Propagated, "transform.Transformer.Start", err))
			return
		}
		resolveStart(struct{}{})
	}()

	return tf
}

// Controller returns the output-side controller passed to Transform/Flush,
// for callers that need it outside those callbacks (e.g. tests).
func (tf *Transform[I, O]) Controller() *Controller[O] { return tf.ctrl }

func (tf *Transform[I, O]) resetBackpressureChangeLocked() {
	bp, resolve, reject := settlement.New[struct{}]()
	tf.bpChange, tf.resolveBpChange, tf.rejectBpChange = bp, resolve, reject
}

func reasonToError(reason any) error {
	if err, ok := reason.(error); ok {
		return err
	}
	return fmt.Errorf("%v", reason)
}

// sinkWrite implements §4.F's SinkWrite(chunk): wait out backpressure if
// engaged, then run the user transform.
func (tf *Transform[I, O]) sinkWrite(ctx context.Context, chunk I) error {
	tf.mu.Lock()
	bp := tf.backpressure
	bpChange := tf.bpChange
	tf.mu.Unlock()

	if bp {
		if _, err := bpChange.Await(ctx); err != nil {
			return err
		}
		if tf.Writable.State() != writable.StateWritable {
			if se := tf.Writable.StoredErr(); se != nil {
				return se
			}
			return serr.New(serr.State, "transform.Transform.SinkWrite", "writable side is no longer writable")
		}
	}

	if tf.transformFn == nil {
		return serr.New(serr.Misuse, "transform.Transform.SinkWrite", "no Transform function was supplied")
	}
	if err := tf.transformFn(ctx, chunk, tf.ctrl); err != nil {
		wrapped := serr.Wrap(serr.Propagated, "transform.Transformer.Transform", err)
		tf.Readable.Controller().Error(wrapped)
		return wrapped
	}
	return nil
}

// afterEnqueue implements §4.F's backpressure recomputation: a transition
// from false to true engages backpressure and installs a fresh
// backpressure_change for the next SinkWrite to await.
func (tf *Transform[I, O]) afterEnqueue() {
	desired, ok := tf.Readable.Controller().DesiredSize()
	rose := ok && desired <= 0

	tf.mu.Lock()
	if rose && !tf.backpressure {
		tf.backpressure = true
		tf.resetBackpressureChangeLocked()
	}
	tf.mu.Unlock()
}

// sourcePull implements §4.F's SourcePull: clear backpressure and resolve
// backpressure_change, unblocking any SinkWrite that is waiting on it.
func (tf *Transform[I, O]) sourcePull() error {
	tf.mu.Lock()
	tf.backpressure = false
	resolve := tf.resolveBpChange
	tf.mu.Unlock()
	resolve(struct{}{})
	return nil
}

// sourceCancel implements §4.F's SourceCancel: unblock any waiting writer
// and error the writable side with the cancel reason.
func (tf *Transform[I, O]) sourceCancel(reason any) error {
	tf.mu.Lock()
	tf.backpressure = false
	resolve := tf.resolveBpChange
	tf.mu.Unlock()
	resolve(struct{}{})

	tf.Writable.Controller().Error(serr.Wrap(serr.Propagated, "transform.Transform.Cancel", reasonToError(reason)))
	return nil
}

// sinkAbort implements §4.F's SinkAbort: error the readable side with the
// abort reason.
func (tf *Transform[I, O]) sinkAbort(reason any) error {
	tf.Readable.Controller().Error(serr.Wrap(serr.Propagated, "transform.Transform.Abort", reasonToError(reason)))
	return nil
}

// sinkClose implements §4.F's SinkClose: run Flush, then close the
// readable side on success or error both sides on failure.
//
// On failure this reports whichever error ends up stored on the readable
// side, not necessarily the flush rejection itself: if the readable side
// had already started erroring for an unrelated reason, erroring it again
// here is a no-op, and the error observed by the writer's Close() call is
// the readable's earlier, unrelated error. This mirrors a known quirk in
// the upstream algorithm this pair is modeled on; it is preserved rather
// than special-cased away. See TestFlushFailureDuringConcurrentReadableErrorReportsTheEarlierError.
func (tf *Transform[I, O]) sinkClose(ctx context.Context) error {
	var flushErr error
	if tf.flushFn != nil {
		flushErr = tf.flushFn(ctx, tf.ctrl)
	}
	if flushErr != nil {
		wrapped := serr.Wrap(serr.Propagated, "transform.Transformer.Flush", flushErr)
		tf.Readable.Controller().Error(wrapped)
		return tf.Readable.StoredErr()
	}
	if tf.Readable.State() == readable.StateReadable {
		_ = tf.Readable.Controller().Close()
	}
	return nil
}

// Terminate closes the readable side (if still open), unblocks any writer
// waiting on backpressure, and errors the writable side with a terminated
// error. It is the Go analogue of TransformStreamDefaultController.terminate.
func (tf *Transform[I, O]) Terminate() {
	if tf.Readable.State() == readable.StateReadable {
		_ = tf.Readable.Controller().Close()
	}
	tf.mu.Lock()
	tf.backpressure = false
	resolve := tf.resolveBpChange
	tf.mu.Unlock()
	resolve(struct{}{})

	tf.Writable.Controller().Error(serr.New(serr.State, "transform.Transform.Terminate", "the transform stream has been terminated"))
}
