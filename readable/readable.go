// Package readable implements the Readable source core: the
// {readable, closed, errored} state machine, its Default Controller, and
// the single Default Reader a consumer may lock onto it.
package readable

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/relaystream/streams/serr"
	"github.com/relaystream/streams/strategy"
	"github.com/sirupsen/logrus"
)

// Logger is the package-level diagnostic logger; override with SetLogger.
var Logger logrus.FieldLogger = logrus.WithField("component", "readable")

// SetLogger overrides the package-level diagnostic logger.
func SetLogger(l logrus.FieldLogger) { Logger = l }

// State is the lifecycle state of a Stream.
type State int

const (
	StateReadable State = iota
	StateClosed
	StateErrored
)

func (s State) String() string {
	switch s {
	case StateReadable:
		return "readable"
	case StateClosed:
		return "closed"
	case StateErrored:
		return "errored"
	default:
		return "unknown"
	}
}

// ReadResult is what a Reader.Read call produces. Done == true implies
// Value is the zero value of T.
type ReadResult[T any] struct {
	Value T
	Done  bool
}

// UnderlyingSource supplies the producer-side callbacks for a Stream.
// Start runs once, before the stream accepts any pull. Pull is invoked
// whenever the controller decides the source should produce more data
// (§4.D's pull discipline). Cancel runs when a consumer cancels the stream.
type UnderlyingSource[T any] struct {
	Start  func(ctx context.Context, c *Controller[T]) error
	Pull   func(ctx context.Context, c *Controller[T]) error
	Cancel func(ctx context.Context, reason any) error
}

// Stream is a Readable stream: a {readable, closed, errored} state machine
// owning exactly one Default Controller and at most one Reader.
type Stream[T any] struct {
	id  string
	ctx context.Context
	log logrus.FieldLogger

	mu         sync.Mutex
	state      State
	storedErr  error
	disturbed  bool
	reader     *Reader[T]
	controller *Controller[T]
}

// New constructs a Stream bound to src, sized by strat, and kicks off the
// source's Start callback on a background goroutine. ctx is used for every
// Pull/Cancel invocation that is not otherwise tied to a caller's context.
func New[T any](ctx context.Context, src UnderlyingSource[T], strat strategy.Strategy[T]) *Stream[T] {
	id := "rs_" + uuid.NewString()[:12]
	s := &Stream[T]{
		id:    id,
		ctx:   ctx,
		log:   Logger.WithField("stream", id),
		state: StateReadable,
	}
	s.controller = &Controller[T]{
		stream:   s,
		strategy: strat,
		pullFn:   src.Pull,
		cancelFn: src.Cancel,
	}
	go s.runStart(src.Start)
	return s
}

func (s *Stream[T]) runStart(start func(context.Context, *Controller[T]) error) {
	var err error
	if start != nil {
		err = start(s.ctx, s.controller)
	}
	s.mu.Lock()
	if err != nil {
		s.mu.Unlock()
		s.controller.Error(serr.Wrap(serr.Propagated, "readable.UnderlyingSource.Start", err))
		return
	}
	if s.state != StateReadable {
		s.mu.Unlock()
		return
	}
	s.controller.started = true
	s.mu.Unlock()
	s.controller.evaluatePull()
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

// Locked reports whether a Reader currently holds this stream.
func (s *Stream[T]) Locked() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reader != nil
}

// Disturbed reports whether the stream has served at least one read or been
// canceled.
func (s *Stream[T]) Disturbed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.disturbed
}

// Controller returns the stream's Default Controller, for callers that need
// to hold onto it outside of the Start/Pull/Cancel callbacks (e.g. tee).
func (s *Stream[T]) Controller() *Controller[T] { return s.controller }

// GetReader locks the stream to a new Default Reader. It fails with a
// Misuse error if the stream is already locked.
func (s *Stream[T]) GetReader() (*Reader[T], error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.reader != nil {
		return nil, serr.New(serr.Misuse, "readable.Stream.GetReader", "stream is already locked to a reader")
	}
	r := newReader(s)
	s.reader = r
	return r, nil
}

// Cancel cancels the stream with reason, as described in §4.D's cancel
// step. Canceling an already-closed stream resolves immediately; canceling
// an already-errored stream returns the stored error. The cancel algorithm
// is invoked at most once per stream lifetime.
func (s *Stream[T]) Cancel(ctx context.Context, reason any) error {
	s.mu.Lock()
	s.disturbed = true
	switch s.state {
	case StateClosed:
		s.mu.Unlock()
		return nil
	case StateErrored:
		err := s.storedErr
		s.mu.Unlock()
		return err
	}
	s.controller.queue.Reset()
	for _, req := range s.drainReadRequestsLocked() {
		req.resolve(ReadResult[T]{Done: true})
	}
	cancelFn := s.controller.cancelFn
	s.state = StateClosed
	s.controller.pullFn = nil
	s.controller.cancelFn = nil
	reader := s.reader
	s.mu.Unlock()

	if reader != nil {
		reader.resolveClosed()
	}
	if cancelFn == nil {
		return nil
	}
	return cancelFn(ctx, reason)
}

// errorInternal transitions the stream to errored, resetting the queue and
// rejecting every pending read request and the reader's closed settlement.
// Called with s.mu unlocked; acquires it itself.
func (s *Stream[T]) errorInternal(err error) {
	s.mu.Lock()
	if s.state != StateReadable {
		s.mu.Unlock()
		return
	}
	s.storedErr = err
	s.state = StateErrored
	s.controller.queue.Reset()
	s.controller.pullFn = nil
	s.controller.cancelFn = nil
	requests := s.drainReadRequestsLocked()
	reader := s.reader
	s.mu.Unlock()

	for _, req := range requests {
		req.reject(err)
	}
	if reader != nil {
		reader.rejectClosed(err)
	}
	s.log.WithError(err).Debug("readable stream errored")
}

// closeInternal transitions the stream to closed, resolving every pending
// read request with a done result and the reader's closed settlement.
// Called with s.mu unlocked; acquires it itself.
func (s *Stream[T]) closeInternal() {
	s.mu.Lock()
	if s.state != StateReadable {
		s.mu.Unlock()
		return
	}
	s.state = StateClosed
	s.controller.pullFn = nil
	s.controller.cancelFn = nil
	requests := s.drainReadRequestsLocked()
	reader := s.reader
	s.mu.Unlock()

	for _, req := range requests {
		req.resolve(ReadResult[T]{Done: true})
	}
	if reader != nil {
		reader.resolveClosed()
	}
}

// drainReadRequestsLocked removes and returns every pending read request.
// Callers must hold s.mu.
func (s *Stream[T]) drainReadRequestsLocked() []*readRequest[T] {
	if s.reader == nil {
		return nil
	}
	reqs := s.reader.requests
	s.reader.requests = nil
	return reqs
}
