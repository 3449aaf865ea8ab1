package readable

import (
	"context"

	"github.com/relaystream/streams/queue"
	"github.com/relaystream/streams/serr"
	"github.com/relaystream/streams/strategy"
)

// Controller is the Default Controller for a Readable Stream: it owns the
// internal queue and decides, after every enqueue/dequeue/read, whether the
// underlying source's Pull callback should run again.
type Controller[T any] struct {
	stream   *Stream[T]
	strategy strategy.Strategy[T]
	queue    queue.Queue[T]

	started        bool
	closeRequested bool
	pulling        bool
	pullAgain      bool

	pullFn   func(context.Context, *Controller[T]) error
	cancelFn func(context.Context, any) error
}

// DesiredSize reports how much room remains below the high-water mark. It
// returns (0, true) once the stream has closed, and nil semantics via
// (0, false) once it has errored.
func (c *Controller[T]) DesiredSize() (float64, bool) {
	c.stream.mu.Lock()
	defer c.stream.mu.Unlock()
	switch c.stream.state {
	case StateErrored:
		return 0, false
	case StateClosed:
		return 0, true
	}
	return c.strategy.HighWaterMark() - c.queue.TotalSize(), true
}

// Enqueue adds chunk to the stream, either delivering it directly to a
// pending read request (bypassing sizing, per §4.D) or sizing it into the
// internal queue. A sizing error becomes the stream's error.
func (c *Controller[T]) Enqueue(chunk T) error {
	s := c.stream
	s.mu.Lock()
	if s.state != StateReadable {
		s.mu.Unlock()
		return serr.New(serr.State, "readable.Controller.Enqueue", "stream is not readable")
	}
	if c.closeRequested {
		s.mu.Unlock()
		return serr.New(serr.State, "readable.Controller.Enqueue", "close has already been requested")
	}

	if s.reader != nil && len(s.reader.requests) > 0 {
		req := s.reader.requests[0]
		s.reader.requests = s.reader.requests[1:]
		s.mu.Unlock()
		req.resolve(ReadResult[T]{Value: chunk})
		c.evaluatePull()
		return nil
	}

	size, err := c.strategy.Size(chunk)
	if err != nil {
		s.mu.Unlock()
		wrapped := serr.Wrap(serr.Propagated, "readable.Controller.Enqueue", err)
		s.errorInternal(wrapped)
		return wrapped
	}
	if qerr := c.queue.Enqueue(chunk, size); qerr != nil {
		s.mu.Unlock()
		s.errorInternal(qerr)
		return qerr
	}
	s.mu.Unlock()
	c.evaluatePull()
	return nil
}

// Close requests the stream close. If chunks remain queued, the close is
// deferred until the queue fully drains via Read.
func (c *Controller[T]) Close() error {
	s := c.stream
	s.mu.Lock()
	if s.state != StateReadable {
		s.mu.Unlock()
		return serr.New(serr.State, "readable.Controller.Close", "stream is not readable")
	}
	if c.closeRequested {
		s.mu.Unlock()
		return serr.New(serr.State, "readable.Controller.Close", "close has already been requested")
	}
	c.closeRequested = true
	if c.queue.Len() > 0 {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()
	s.closeInternal()
	return nil
}

// Error transitions the stream to errored with err, per §4.D's error step.
func (c *Controller[T]) Error(err error) {
	c.stream.errorInternal(err)
}

// maybeFinalizeCloseIfDrained closes the stream if a close was requested
// and the queue has just drained.
func (c *Controller[T]) maybeFinalizeCloseIfDrained() {
	s := c.stream
	s.mu.Lock()
	if c.closeRequested && c.queue.Len() == 0 && s.state == StateReadable {
		s.mu.Unlock()
		s.closeInternal()
		return
	}
	s.mu.Unlock()
}

// evaluatePull decides whether Pull should run, guarding against
// re-entrancy: if a Pull call is already in flight, it just notes that
// another one is wanted once the in-flight call returns.
func (c *Controller[T]) evaluatePull() {
	s := c.stream
	s.mu.Lock()
	if c.pulling {
		c.pullAgain = true
		s.mu.Unlock()
		return
	}
	if !c.shouldPullLocked() {
		s.mu.Unlock()
		return
	}
	c.pulling = true
	pullFn := c.pullFn
	s.mu.Unlock()

	if pullFn == nil {
		c.finishPull()
		return
	}
	go c.runPull(pullFn)
}

func (c *Controller[T]) finishPull() {
	s := c.stream
	s.mu.Lock()
	c.pulling = false
	again := c.pullAgain
	c.pullAgain = false
	s.mu.Unlock()
	if again {
		c.evaluatePull()
	}
}

func (c *Controller[T]) runPull(pullFn func(context.Context, *Controller[T]) error) {
	err := pullFn(c.stream.ctx, c)
	if err != nil {
		c.Error(serr.Wrap(serr.Propagated, "readable.UnderlyingSource.Pull", err))
		return
	}
	c.finishPull()
}

// shouldPullLocked implements the pull discipline: pull only once started,
// only while the stream can still close or accept more chunks, and only
// when there is demand (a pending read or remaining desiredSize headroom).
// Callers must hold stream.mu.
func (c *Controller[T]) shouldPullLocked() bool {
	s := c.stream
	if s.state != StateReadable || c.closeRequested || !c.started {
		return false
	}
	if s.reader != nil && len(s.reader.requests) > 0 {
		return true
	}
	return c.strategy.HighWaterMark()-c.queue.TotalSize() > 0
}
