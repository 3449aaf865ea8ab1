// Package settlement implements the one-shot producer/consumer completion
// signal ("promise-like") used throughout the streams core: a Settlement is
// created pending and resolved or rejected exactly once, and its observers
// fire in FIFO order on a dedicated scheduler goroutine rather than inline,
// modeling the microtask-like boundary described by the core's concurrency
// model.
package settlement

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"
)

// Logger receives a warning whenever a Settlement rejects and nothing ever
// observes the rejection (no Then(_, onRejected) and no MarkHandled). It can
// be overridden with SetLogger.
var Logger logrus.FieldLogger = logrus.WithField("component", "settlement")

// SetLogger overrides the package-level diagnostic logger.
func SetLogger(l logrus.FieldLogger) { Logger = l }

type state int

const (
	pending state = iota
	fulfilled
	rejected
)

type observer[T any] struct {
	onFulfilled func(T)
	onRejected  func(error)
}

// Settlement is a one-shot completion signal carrying a value of type T or
// an error. The zero value is not usable; construct with New.
type Settlement[T any] struct {
	mu        sync.Mutex
	state     state
	value     T
	err       error
	observers []observer[T]
	handled   bool
}

// New creates a pending Settlement and returns it along with idempotent
// resolve and reject closures. Calling resolve or reject after the first
// call on either is a no-op.
func New[T any]() (s *Settlement[T], resolve func(T), reject func(error)) {
	s = &Settlement[T]{}
	var once sync.Once
	resolve = func(v T) { once.Do(func() { s.settleFulfilled(v) }) }
	reject = func(e error) { once.Do(func() { s.settleRejected(e) }) }
	return s, resolve, reject
}

func (s *Settlement[T]) settleFulfilled(v T) {
	s.mu.Lock()
	if s.state != pending {
		s.mu.Unlock()
		return
	}
	s.state = fulfilled
	s.value = v
	obs := s.observers
	s.observers = nil
	s.mu.Unlock()

	for _, o := range obs {
		if o.onFulfilled != nil {
			fn := o.onFulfilled
			sched.schedule(func() { fn(v) })
		}
	}
}

func (s *Settlement[T]) settleRejected(e error) {
	s.mu.Lock()
	if s.state != pending {
		s.mu.Unlock()
		return
	}
	s.state = rejected
	s.err = e
	obs := s.observers
	s.observers = nil
	hadHandler := s.handled
	for _, o := range obs {
		if o.onRejected != nil {
			hadHandler = true
		}
	}
	s.mu.Unlock()

	for _, o := range obs {
		if o.onRejected != nil {
			fn := o.onRejected
			sched.schedule(func() { fn(e) })
		}
	}
	if !hadHandler {
		sched.schedule(func() { s.warnIfUnhandled(e) })
	}
}

func (s *Settlement[T]) warnIfUnhandled(e error) {
	s.mu.Lock()
	handled := s.handled
	s.mu.Unlock()
	if !handled {
		Logger.WithError(e).Warn("settlement rejected with no observer and MarkHandled was never called")
	}
}

// Then attaches observers. If the Settlement is already settled, the
// matching observer is scheduled to run on the next scheduler turn rather
// than invoked inline. Passing a non-nil onRejected counts as handling the
// rejection for the purposes of the unhandled-rejection warning, exactly as
// MarkHandled would.
func (s *Settlement[T]) Then(onFulfilled func(T), onRejected func(error)) {
	s.mu.Lock()
	if onRejected != nil {
		s.handled = true
	}
	switch s.state {
	case pending:
		s.observers = append(s.observers, observer[T]{onFulfilled: onFulfilled, onRejected: onRejected})
		s.mu.Unlock()
	case fulfilled:
		v := s.value
		s.mu.Unlock()
		if onFulfilled != nil {
			sched.schedule(func() { onFulfilled(v) })
		}
	case rejected:
		e := s.err
		s.mu.Unlock()
		if onRejected != nil {
			sched.schedule(func() { onRejected(e) })
		}
	}
}

// MarkHandled suppresses the unhandled-rejection warning for a Settlement
// that will never attach a rejection observer, e.g. one only consulted via
// Settled() after the fact.
func (s *Settlement[T]) MarkHandled() {
	s.mu.Lock()
	s.handled = true
	s.mu.Unlock()
}

// Await blocks the calling goroutine until the Settlement settles or ctx is
// done, whichever happens first. Awaiting marks the rejection (if any) as
// handled.
func (s *Settlement[T]) Await(ctx context.Context) (T, error) {
	done := make(chan struct{})
	var (
		val T
		err error
	)
	s.Then(
		func(v T) { val = v; close(done) },
		func(e error) { err = e; close(done) },
	)
	select {
	case <-done:
		return val, err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Settled reports whether the Settlement has fulfilled or rejected yet.
func (s *Settlement[T]) Settled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state != pending
}
