// Package tee forks a single Readable into two independent Readables that
// share one upstream reader, adapted from the teacher's pipes.Tee
// (channel-based fan-to-two with select-based delivery) onto
// readable.Stream/Controller semantics.
package tee

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/relaystream/streams/readable"
	"github.com/relaystream/streams/settlement"
	"github.com/relaystream/streams/strategy/count"
	"github.com/sirupsen/logrus"
)

// Logger is the package-level diagnostic logger; override with SetLogger.
var Logger logrus.FieldLogger = logrus.WithField("component", "tee")

// SetLogger overrides the package-level diagnostic logger.
func SetLogger(l logrus.FieldLogger) { Logger = l }

// coordinator owns the single upstream reader and fans each chunk out to
// both branches' controllers without cloning it.
type coordinator[T any] struct {
	mu       sync.Mutex
	reader   *readable.Reader[T]
	src      *readable.Stream[T]
	ctrl     [2]*readable.Controller[T]
	canceled [2]bool
	reason   [2]any
	pulling  bool
	log      logrus.FieldLogger

	cancelDone    *settlement.Settlement[struct{}]
	resolveCancel func(struct{})
	rejectCancel  func(error)
}

// pull implements §4.H's serialized pull loop: at most one upstream read is
// ever outstanding, regardless of which branch's Pull triggered it, and its
// result is delivered to every non-canceled branch.
func (tc *coordinator[T]) pull(ctx context.Context) error {
	tc.mu.Lock()
	if tc.pulling {
		tc.mu.Unlock()
		return nil
	}
	tc.pulling = true
	tc.mu.Unlock()

	res, err := tc.reader.Read(ctx)

	tc.mu.Lock()
	tc.pulling = false
	c0, c1 := tc.canceled[0], tc.canceled[1]
	ctrl0, ctrl1 := tc.ctrl[0], tc.ctrl[1]
	tc.mu.Unlock()

	switch {
	case err != nil:
		if !c0 {
			ctrl0.Error(err)
		}
		if !c1 {
			ctrl1.Error(err)
		}
	case res.Done:
		if !c0 {
			_ = ctrl0.Close()
		}
		if !c1 {
			_ = ctrl1.Close()
		}
	default:
		if !c0 {
			_ = ctrl0.Enqueue(res.Value)
		}
		if !c1 {
			_ = ctrl1.Enqueue(res.Value)
		}
	}
	return nil
}

// cancel implements §4.H's cancel policy for branch index i: upstream is
// only canceled once both branches have canceled, with a composite
// [reason0, reason1] reason, and every branch's Cancel call blocks on the
// same shared settlement for that composite cancellation.
func (tc *coordinator[T]) cancel(i int) func(context.Context, any) error {
	return func(ctx context.Context, reason any) error {
		tc.mu.Lock()
		tc.canceled[i] = true
		tc.reason[i] = reason
		var composite []any
		both := tc.canceled[0] && tc.canceled[1]
		if both {
			composite = []any{tc.reason[0], tc.reason[1]}
		}
		cancelDone := tc.cancelDone
		tc.mu.Unlock()

		if both {
			tc.log.WithField("reasons", composite).Debug("both tee branches canceled, canceling upstream")
			if err := tc.src.Cancel(ctx, composite); err != nil {
				tc.rejectCancel(err)
			} else {
				tc.resolveCancel(struct{}{})
			}
		}
		_, err := cancelDone.Await(ctx)
		return err
	}
}

// Tee forks src into two branches sharing a single reader acquired on src.
// If src is already locked, both branches immediately error with that
// failure.
func Tee[T any](ctx context.Context, src *readable.Stream[T]) (b1, b2 *readable.Stream[T]) {
	r, err := src.GetReader()
	if err != nil {
		return erroredBranch[T](ctx, err), erroredBranch[T](ctx, err)
	}

	pairID := "tp_" + uuid.NewString()[:12]
	log := Logger.WithField("pair", pairID)

	cancelDone, resolveCancel, rejectCancel := settlement.New[struct{}]()
	tc := &coordinator[T]{
		reader:        r,
		src:           src,
		cancelDone:    cancelDone,
		resolveCancel: resolveCancel,
		rejectCancel:  rejectCancel,
		log:           log,
	}

	branchStrat1, _ := count.New[T](1)
	branchStrat2, _ := count.New[T](1)

	b1 = readable.New(ctx, readable.UnderlyingSource[T]{
		Pull:   func(ctx context.Context, _ *readable.Controller[T]) error { return tc.pull(ctx) },
		Cancel: tc.cancel(0),
	}, branchStrat1)
	b2 = readable.New(ctx, readable.UnderlyingSource[T]{
		Pull:   func(ctx context.Context, _ *readable.Controller[T]) error { return tc.pull(ctx) },
		Cancel: tc.cancel(1),
	}, branchStrat2)

	tc.ctrl[0] = b1.Controller()
	tc.ctrl[1] = b2.Controller()

	return b1, b2
}

func erroredBranch[T any](ctx context.Context, err error) *readable.Stream[T] {
	strat, _ := count.New[T](1)
	return readable.New(ctx, readable.UnderlyingSource[T]{
		Start: func(context.Context, *readable.Controller[T]) error { return err },
	}, strat)
}
