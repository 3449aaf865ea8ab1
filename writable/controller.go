package writable

import (
	"context"

	"github.com/relaystream/streams/queue"
	"github.com/relaystream/streams/serr"
	"github.com/relaystream/streams/strategy"
)

// Controller is the Default Controller for a Writable Stream: it owns the
// internal queue of pending writes/close and drives the sink's Write/Close
// calls one at a time, in order.
type Controller[T any] struct {
	stream   *Stream[T]
	strategy strategy.Strategy[T]
	queue    queue.Queue[record[T]]

	started  bool
	draining bool
	inFlight bool

	writeFn func(context.Context, T, *Controller[T]) error
	closeFn func(context.Context) error
	abortFn func(context.Context, any) error
}

// drainAll empties the queue and returns every record that was in it, for
// rejection on error/abort. Callers must hold stream.mu.
func (c *Controller[T]) drainAll() []record[T] {
	var out []record[T]
	for {
		rec, ok := c.queue.Dequeue()
		if !ok {
			break
		}
		out = append(out, rec)
	}
	return out
}

// DesiredSize reports how much room remains below the high-water mark.
func (c *Controller[T]) DesiredSize() (float64, bool) {
	c.stream.mu.Lock()
	defer c.stream.mu.Unlock()
	if c.stream.state != StateWritable {
		return 0, false
	}
	return c.strategy.HighWaterMark() - c.queue.TotalSize(), true
}

// Error transitions the stream to errored with err, typically called from
// within a Write callback that detected a problem asynchronously.
func (c *Controller[T]) Error(err error) {
	c.stream.errorInternal(err)
}

// enqueue appends rec, sized via the strategy for writes (close markers are
// zero-sized), and kicks the write loop. exceeded reports whether the
// queue's total size reached or passed the high-water mark (desiredSize <= 0)
// as a result, computed
// under the same lock as the enqueue to avoid racing the write loop.
func (c *Controller[T]) enqueue(rec record[T]) (exceeded bool, err error) {
	s := c.stream
	var size float64
	if !rec.isClose {
		sz, serr2 := c.strategy.Size(rec.chunk)
		if serr2 != nil {
			return false, serr.Wrap(serr.Propagated, "writable.Controller.Enqueue", serr2)
		}
		size = sz
	}
	s.mu.Lock()
	if err := c.queue.Enqueue(rec, size); err != nil {
		s.mu.Unlock()
		return false, err
	}
	exceeded = c.strategy.HighWaterMark()-c.queue.TotalSize() <= 0
	s.mu.Unlock()
	c.kickWriteLoop()
	return exceeded, nil
}

// kickWriteLoop starts the draining goroutine if one is not already
// running.
func (c *Controller[T]) kickWriteLoop() {
	s := c.stream
	s.mu.Lock()
	if c.draining || !c.started || s.state != StateWritable {
		s.mu.Unlock()
		return
	}
	if c.queue.Len() == 0 {
		s.mu.Unlock()
		return
	}
	c.draining = true
	s.mu.Unlock()
	go c.drainLoop()
}

// drainLoop is the sole in-flight operation per stream: it holds
// c.inFlight for the duration of each sink call so startErroring can tell
// whether finishErroring must run now or wait for this loop to clear it.
func (c *Controller[T]) drainLoop() {
	s := c.stream
	for {
		s.mu.Lock()
		if s.state != StateWritable {
			c.draining = false
			s.mu.Unlock()
			return
		}
		rec, ok := c.queue.Peek()
		if !ok {
			c.draining = false
			s.mu.Unlock()
			return
		}
		c.inFlight = true
		s.mu.Unlock()

		if rec.isClose {
			c.runClose(rec)
			s.mu.Lock()
			c.inFlight = false
			c.draining = false
			s.mu.Unlock()
			s.finishErroring()
			return
		}
		ok = c.runWrite(rec)
		s.mu.Lock()
		c.inFlight = false
		s.mu.Unlock()
		s.finishErroring()
		if !ok {
			s.mu.Lock()
			c.draining = false
			s.mu.Unlock()
			return
		}
		c.afterDequeueAdjustBackpressure()
	}
}

func (c *Controller[T]) runWrite(rec record[T]) (ok bool) {
	var err error
	if c.writeFn != nil {
		err = c.writeFn(c.stream.ctx, rec.chunk, c)
	}
	if err != nil {
		c.Error(serr.Wrap(serr.Propagated, "writable.UnderlyingSink.Write", err))
		rec.reject(err)
		return false
	}
	c.stream.mu.Lock()
	c.queue.Dequeue()
	c.stream.mu.Unlock()
	rec.resolve(struct{}{})
	return true
}

func (c *Controller[T]) runClose(rec record[T]) {
	var err error
	if c.closeFn != nil {
		err = c.closeFn(c.stream.ctx)
	}
	c.stream.mu.Lock()
	c.queue.Dequeue()
	c.stream.mu.Unlock()
	if err != nil {
		wrapped := serr.Wrap(serr.Propagated, "writable.UnderlyingSink.Close", err)
		rec.reject(wrapped)
		c.stream.errorInternal(wrapped)
		return
	}
	rec.resolve(struct{}{})
	c.stream.closeInternal()
}

// afterDequeueAdjustBackpressure resolves the writer's ready settlement if
// the queue has drained back below the high-water mark.
func (c *Controller[T]) afterDequeueAdjustBackpressure() {
	s := c.stream
	s.mu.Lock()
	if s.state != StateWritable {
		s.mu.Unlock()
		return
	}
	w := s.writer
	hasRoom := c.strategy.HighWaterMark()-c.queue.TotalSize() > 0
	s.mu.Unlock()
	if w != nil && hasRoom {
		w.resolveReady()
	}
}
