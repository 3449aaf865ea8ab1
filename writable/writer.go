package writable

import (
	"context"

	"github.com/relaystream/streams/serr"
	"github.com/relaystream/streams/settlement"
)

// Writer is the Default Writer for a Writable Stream: the single producer
// allowed to lock a Stream at a time.
type Writer[T any] struct {
	stream *Stream[T]

	ready          *settlement.Settlement[struct{}]
	resolveReadyFn func(struct{})
	rejectReadyFn  func(error)

	closed          *settlement.Settlement[struct{}]
	resolveClosedFn func(struct{})
	rejectClosedFn  func(error)

	released bool
}

// newWriter is called with s.mu already held by GetWriter.
func newWriter[T any](s *Stream[T]) *Writer[T] {
	w := &Writer[T]{stream: s}
	w.resetReadyLocked()
	closed, resolve, reject := settlement.New[struct{}]()
	w.closed, w.resolveClosedFn, w.rejectClosedFn = closed, resolve, reject

	switch s.state {
	case StateWritable:
		if s.controller.strategy.HighWaterMark()-s.controller.queue.TotalSize() > 0 {
			w.resolveReadyFn(struct{}{})
		}
	case StateClosed:
		resolve(struct{}{})
	case StateErrored:
		reject(s.storedErr)
		w.rejectReadyFn(s.storedErr)
	}
	return w
}

// resetReadyLocked swaps in a fresh pending ready settlement. Callers must
// hold w.stream.mu.
func (w *Writer[T]) resetReadyLocked() {
	ready, resolve, reject := settlement.New[struct{}]()
	w.ready, w.resolveReadyFn, w.rejectReadyFn = ready, resolve, reject
}

// resetReady is resetReadyLocked for callers that have not already taken
// w.stream.mu. It re-checks backpressure under the lock and leaves ready
// alone if the write loop has already drained the queue below the
// high-water mark.
func (w *Writer[T]) resetReady() {
	s := w.stream
	s.mu.Lock()
	if s.controller.strategy.HighWaterMark()-s.controller.queue.TotalSize() <= 0 {
		w.resetReadyLocked()
	}
	s.mu.Unlock()
}

func (w *Writer[T]) resolveReady() {
	w.stream.mu.Lock()
	fn := w.resolveReadyFn
	w.stream.mu.Unlock()
	fn(struct{}{})
}

func (w *Writer[T]) rejectReady(err error) {
	w.stream.mu.Lock()
	fn := w.rejectReadyFn
	w.stream.mu.Unlock()
	fn(err)
}

func (w *Writer[T]) resolveClosed()         { w.resolveClosedFn(struct{}{}) }
func (w *Writer[T]) rejectClosed(err error) { w.rejectClosedFn(err) }

// Ready returns the settlement that resolves once desiredSize rises back
// above zero. Producers should await it before writing again once it has
// gone pending, to honor backpressure.
func (w *Writer[T]) Ready() *settlement.Settlement[struct{}] {
	w.stream.mu.Lock()
	defer w.stream.mu.Unlock()
	return w.ready
}

// Closed returns the settlement that resolves once the stream has fully
// closed (including draining the sink's Close callback).
func (w *Writer[T]) Closed() *settlement.Settlement[struct{}] { return w.closed }

// DesiredSize reports how much room remains below the high-water mark.
func (w *Writer[T]) DesiredSize() (float64, bool) { return w.stream.controller.DesiredSize() }

// Write enqueues chunk and blocks until the sink's Write callback for this
// specific chunk completes, fails, or ctx is done. It does not itself wait
// out backpressure; callers that want to honor desiredSize should await
// Ready() between writes.
func (w *Writer[T]) Write(ctx context.Context, chunk T) error {
	s := w.stream
	s.mu.Lock()
	if w.released {
		s.mu.Unlock()
		return serr.New(serr.Misuse, "writable.Writer.Write", "writer has been released")
	}
	if s.state != StateWritable {
		err := s.storedErr
		s.mu.Unlock()
		if err != nil {
			return err
		}
		return serr.New(serr.State, "writable.Writer.Write", "stream is not writable")
	}
	s.mu.Unlock()

	done, resolve, reject := settlement.New[struct{}]()
	rec := record[T]{chunk: chunk, resolve: resolve, reject: reject}
	exceeded, err := s.controller.enqueue(rec)
	if err != nil {
		s.errorInternal(err)
		return err
	}
	if exceeded {
		w.resetReady()
	}

	_, err = done.Await(ctx)
	return err
}

// Close requests the stream close once every previously-written chunk has
// drained. It blocks until the sink's Close callback completes, fails, or
// ctx is done.
func (w *Writer[T]) Close(ctx context.Context) error {
	s := w.stream
	s.mu.Lock()
	if w.released {
		s.mu.Unlock()
		return serr.New(serr.Misuse, "writable.Writer.Close", "writer has been released")
	}
	if s.state != StateWritable {
		s.mu.Unlock()
		return serr.New(serr.State, "writable.Writer.Close", "stream is not writable")
	}
	s.mu.Unlock()

	done, resolve, reject := settlement.New[struct{}]()
	rec := record[T]{isClose: true, resolve: resolve, reject: reject}
	if _, err := s.controller.enqueue(rec); err != nil {
		s.errorInternal(err)
		return err
	}
	_, err := done.Await(ctx)
	return err
}

// Abort moves the stream through the erroring protocol with reason:
// start_erroring runs synchronously (rejecting Ready immediately), and
// finish_erroring — which invokes the sink's Abort callback at most once
// per stream lifetime and then errors the stream — runs as soon as no
// write or close is in flight, deferring until the in-flight one settles
// otherwise. Concurrent Abort callers made while one is already erroring
// share that pending abort's outcome. Aborting an already-closed or
// already-errored stream resolves immediately with nil.
//
// Abort always waits out the full protocol rather than honoring ctx's own
// cancellation: ctx is commonly already done by the time a caller aborts
// (that's often exactly why it's aborting), and the abort itself is always
// bounded by at most one already in-flight sink call settling, so there is
// nothing useful to give up on early. ctx is still forwarded to the sink's
// Abort callback.
func (w *Writer[T]) Abort(ctx context.Context, reason any) error {
	done := w.stream.startErroring(ctx, reason)
	_, err := done.Await(context.Background())
	return err
}

// ReleaseLock detaches the writer from its stream.
func (w *Writer[T]) ReleaseLock() {
	s := w.stream
	s.mu.Lock()
	if w.released {
		s.mu.Unlock()
		return
	}
	w.released = true
	if s.writer == w {
		s.writer = nil
	}
	s.mu.Unlock()

	releaseErr := serr.New(serr.Misuse, "writable.Writer.Write", "writer was released")
	w.rejectReady(releaseErr)
}
