// Package writable implements the Writable sink core: the
// {writable, erroring, errored, closed} state machine, its Default
// Controller, and the single Default Writer a producer may lock onto it.
package writable

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/relaystream/streams/serr"
	"github.com/relaystream/streams/settlement"
	"github.com/relaystream/streams/strategy"
	"github.com/sirupsen/logrus"
)

// Logger is the package-level diagnostic logger; override with SetLogger.
var Logger logrus.FieldLogger = logrus.WithField("component", "writable")

// SetLogger overrides the package-level diagnostic logger.
func SetLogger(l logrus.FieldLogger) { Logger = l }

// State is the lifecycle state of a Stream.
type State int

const (
	StateWritable State = iota
	StateErroring
	StateErrored
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateWritable:
		return "writable"
	case StateErroring:
		return "erroring"
	case StateErrored:
		return "errored"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// UnderlyingSink supplies the consumer-side callbacks for a Stream. Start
// runs once, before any write is accepted. Write is invoked once per
// enqueued chunk, in order, only after the previous Write (or Start) has
// returned. Close runs after every written chunk has been consumed; Abort
// runs when a producer aborts the stream.
type UnderlyingSink[T any] struct {
	Start  func(ctx context.Context, c *Controller[T]) error
	Write  func(ctx context.Context, chunk T, c *Controller[T]) error
	Close  func(ctx context.Context) error
	Abort  func(ctx context.Context, reason any) error
}

// record is a queued unit of work: either a chunk to write or the close
// marker, each carrying its own completion settlement.
type record[T any] struct {
	chunk   T
	isClose bool
	resolve func(struct{})
	reject  func(error)
}

// Stream is a Writable stream: a {writable, erroring, errored, closed}
// state machine owning exactly one Default Controller and at most one
// Writer.
type Stream[T any] struct {
	id  string
	ctx context.Context
	log logrus.FieldLogger

	mu         sync.Mutex
	state      State
	storedErr  error
	writer     *Writer[T]
	controller *Controller[T]

	abortCtx        context.Context
	abortReason     any
	abortSettlement *settlement.Settlement[struct{}]
	abortResolve    func(struct{})
	abortReject     func(error)
}

// New constructs a Stream bound to sink, sized by strat, and kicks off the
// sink's Start callback on a background goroutine.
func New[T any](ctx context.Context, sink UnderlyingSink[T], strat strategy.Strategy[T]) *Stream[T] {
	id := "ws_" + uuid.NewString()[:12]
	s := &Stream[T]{
		id:    id,
		ctx:   ctx,
		log:   Logger.WithField("stream", id),
		state: StateWritable,
	}
	s.controller = &Controller[T]{
		stream:   s,
		strategy: strat,
		writeFn:  sink.Write,
		closeFn:  sink.Close,
		abortFn:  sink.Abort,
	}
	go s.runStart(sink.Start)
	return s
}

func (s *Stream[T]) runStart(start func(context.Context, *Controller[T]) error) {
	var err error
	if start != nil {
		err = start(s.ctx, s.controller)
	}
	if err != nil {
		s.errorInternal(serr.Wrap(serr.Propagated, "writable.UnderlyingSink.Start", err))
		return
	}
	s.mu.Lock()
	if s.state != StateWritable {
		s.mu.Unlock()
		return
	}
	s.controller.started = true
	s.mu.Unlock()
	s.controller.kickWriteLoop()
}

// State returns the stream's current lifecycle state.
func (s *Stream[T]) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// StoredErr returns the error the stream errored with, or nil if it has
// never errored.
func (s *Stream[T]) StoredErr() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.storedErr
}

// Locked reports whether a Writer currently holds this stream.
func (s *Stream[T]) Locked() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writer != nil
}

// Controller returns the stream's Default Controller.
func (s *Stream[T]) Controller() *Controller[T] { return s.controller }

// GetWriter locks the stream to a new Default Writer. It fails with a
// Misuse error if the stream is already locked.
func (s *Stream[T]) GetWriter() (*Writer[T], error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.writer != nil {
		return nil, serr.New(serr.Misuse, "writable.Stream.GetWriter", "stream is already locked to a writer")
	}
	w := newWriter(s)
	s.writer = w
	return w, nil
}

// errorInternal transitions the stream to errored, rejecting the writer's
// ready/closed settlements and every queued record. Idempotent.
func (s *Stream[T]) errorInternal(err error) {
	s.mu.Lock()
	if s.state == StateErrored || s.state == StateClosed {
		s.mu.Unlock()
		return
	}
	s.storedErr = err
	s.state = StateErrored
	records := s.controller.drainAll()
	w := s.writer
	s.mu.Unlock()

	for _, rec := range records {
		rec.reject(err)
	}
	if w != nil {
		w.rejectReady(err)
		w.rejectClosed(err)
	}
	s.log.WithError(err).Debug("writable stream errored")
}

// startErroring begins the abort protocol for reason: it moves a writable
// stream to erroring, rejects the writer's ready immediately, and either
// runs finishErroring right away (no write or close in flight) or leaves it
// for drainLoop to run once the in-flight operation settles. A stream that
// is already erroring shares the pending abort's settlement instead of
// starting a second one; a closed or already-errored stream resolves
// immediately, since abort on either is a no-op by definition.
func (s *Stream[T]) startErroring(ctx context.Context, reason any) *settlement.Settlement[struct{}] {
	s.mu.Lock()
	switch s.state {
	case StateClosed, StateErrored:
		s.mu.Unlock()
		done, resolve, _ := settlement.New[struct{}]()
		resolve(struct{}{})
		return done
	case StateErroring:
		done := s.abortSettlement
		s.mu.Unlock()
		return done
	}

	s.state = StateErroring
	s.abortCtx = ctx
	s.abortReason = reason
	done, resolve, reject := settlement.New[struct{}]()
	s.abortSettlement = done
	s.abortResolve = resolve
	s.abortReject = reject
	w := s.writer
	inFlight := s.controller.inFlight
	s.mu.Unlock()

	if w != nil {
		w.rejectReady(serr.New(serr.State, "writable.Writer.Abort", "stream is erroring"))
	}
	if !inFlight {
		s.finishErroring()
	}
	return done
}

// finishErroring invokes the sink's Abort callback, if one remains, and
// errors the stream. It is a no-op once the stream has left StateErroring,
// so it is safe to call unconditionally from drainLoop after every
// operation and, redundantly, from multiple racing startErroring callers.
func (s *Stream[T]) finishErroring() {
	s.mu.Lock()
	if s.state != StateErroring {
		s.mu.Unlock()
		return
	}
	ctx := s.abortCtx
	reason := s.abortReason
	abortFn := s.controller.abortFn
	s.controller.abortFn = nil
	resolve := s.abortResolve
	reject := s.abortReject
	s.mu.Unlock()

	var abortErr error
	if abortFn != nil {
		abortErr = abortFn(ctx, reason)
	}
	streamErr := serr.New(serr.State, "writable.Writer.Abort", "stream was aborted")
	if abortErr != nil {
		streamErr = serr.Wrap(serr.Propagated, "writable.UnderlyingSink.Abort", abortErr)
	}
	s.errorInternal(streamErr)
	if abortErr != nil {
		reject(abortErr)
		return
	}
	resolve(struct{}{})
}

// closeInternal transitions the stream to closed once the close record's
// sink.Close call has succeeded. It only fires from StateWritable: a close
// that was already in flight when an abort arrived leaves the terminal
// transition to finishErroring, which runs once this close record's drain
// loop iteration clears inFlight.
func (s *Stream[T]) closeInternal() {
	s.mu.Lock()
	if s.state != StateWritable {
		s.mu.Unlock()
		return
	}
	s.state = StateClosed
	w := s.writer
	s.mu.Unlock()
	if w != nil {
		w.resolveClosed()
		w.resolveReady()
	}
}
