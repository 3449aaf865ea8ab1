// Package merge merges N Readables into one, the dual of tee.Tee, adapted
// from the teacher's event.FanIn channel multiplexer onto
// readable.Stream/Controller semantics.
package merge

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/relaystream/streams/readable"
	"github.com/relaystream/streams/strategy"
	"github.com/relaystream/streams/strategy/count"
	"github.com/sirupsen/logrus"
)

// Logger is the package-level diagnostic logger; override with SetLogger.
var Logger logrus.FieldLogger = logrus.WithField("component", "merge")

// SetLogger overrides the package-level diagnostic logger.
func SetLogger(l logrus.FieldLogger) { Logger = l }

// Merge acquires a reader on each of srcs and pumps every chunk it reads
// into a single Readable, closing the merged stream once every source has
// closed and erroring it with whichever source errors first. Canceling the
// merged stream cancels every source reader with the same reason.
func Merge[T any](ctx context.Context, strat strategy.Strategy[T], srcs ...*readable.Stream[T]) *readable.Stream[T] {
	id := "mg_" + uuid.NewString()[:12]
	log := Logger.WithField("merge", id)

	readers := make([]*readable.Reader[T], 0, len(srcs))
	for _, src := range srcs {
		r, err := src.GetReader()
		if err != nil {
			for _, acquired := range readers {
				acquired.ReleaseLock()
			}
			return erroredMerge[T](ctx, err)
		}
		readers = append(readers, r)
	}

	var (
		mu       sync.Mutex
		firstErr error
	)

	out := readable.New(ctx, readable.UnderlyingSource[T]{
		Start: func(context.Context, *readable.Controller[T]) error { return nil },
		Cancel: func(ctx context.Context, reason any) error {
			for _, r := range readers {
				_ = r.Cancel(ctx, reason)
			}
			return nil
		},
	}, strat)
	ctrl := out.Controller()

	var wg sync.WaitGroup
	pump := func(r *readable.Reader[T]) {
		defer wg.Done()
		defer r.ReleaseLock()
		for {
			res, err := r.Read(ctx)
			if err != nil {
				mu.Lock()
				if firstErr == nil {
					firstErr = err
					log.WithError(err).Debug("a source errored, erroring the merged stream")
					ctrl.Error(err)
				}
				mu.Unlock()
				return
			}
			if res.Done {
				return
			}
			if err := ctrl.Enqueue(res.Value); err != nil {
				return
			}
		}
	}

	wg.Add(len(readers))
	for _, r := range readers {
		go pump(r)
	}
	go func() {
		wg.Wait()
		mu.Lock()
		done := firstErr == nil
		mu.Unlock()
		if done {
			log.Debug("every source closed, closing the merged stream")
			_ = ctrl.Close()
		}
	}()

	return out
}

func erroredMerge[T any](ctx context.Context, err error) *readable.Stream[T] {
	strat, _ := count.New[T](1)
	return readable.New(ctx, readable.UnderlyingSource[T]{
		Start: func(context.Context, *readable.Controller[T]) error { return err },
	}, strat)
}
