package readable

import (
	"context"

	"github.com/relaystream/streams/serr"
	"github.com/relaystream/streams/settlement"
)

// readRequest is a pending Read() call waiting on a chunk that hasn't
// arrived yet.
type readRequest[T any] struct {
	s        *settlement.Settlement[ReadResult[T]]
	resolveFn func(ReadResult[T])
	rejectFn  func(error)
}

func newReadRequest[T any]() *readRequest[T] {
	s, resolve, reject := settlement.New[ReadResult[T]]()
	return &readRequest[T]{s: s, resolveFn: resolve, rejectFn: reject}
}

func (r *readRequest[T]) resolve(v ReadResult[T]) { r.resolveFn(v) }
func (r *readRequest[T]) reject(err error)        { r.rejectFn(err) }

// Reader is the Default Reader for a Readable Stream: the single consumer
// allowed to lock a Stream at a time.
type Reader[T any] struct {
	stream   *Stream[T]
	requests []*readRequest[T]

	closed         *settlement.Settlement[struct{}]
	resolveClosedFn func(struct{})
	rejectClosedFn  func(error)
	released       bool
}

func newReader[T any](s *Stream[T]) *Reader[T] {
	closed, resolve, reject := settlement.New[struct{}]()
	r := &Reader[T]{stream: s, closed: closed, resolveClosedFn: resolve, rejectClosedFn: reject}
	if s.state != StateReadable {
		if s.state == StateClosed {
			resolve(struct{}{})
		} else {
			reject(s.storedErr)
		}
	}
	return r
}

func (r *Reader[T]) resolveClosed()        { r.resolveClosedFn(struct{}{}) }
func (r *Reader[T]) rejectClosed(err error) { r.rejectClosedFn(err) }

// Closed returns a settlement that fulfills when the stream closes and
// rejects if the stream errors or the reader is released while the stream
// is still readable.
func (r *Reader[T]) Closed() *settlement.Settlement[struct{}] { return r.closed }

// Read returns the next chunk, blocking until one is available, the stream
// closes, or ctx is done. A released reader returns a Misuse error.
func (r *Reader[T]) Read(ctx context.Context) (ReadResult[T], error) {
	s := r.stream
	s.mu.Lock()
	if r.released {
		s.mu.Unlock()
		return ReadResult[T]{}, serr.New(serr.Misuse, "readable.Reader.Read", "reader has been released")
	}
	s.disturbed = true

	switch s.state {
	case StateErrored:
		err := s.storedErr
		s.mu.Unlock()
		return ReadResult[T]{}, err
	case StateClosed:
		if chunk, ok := s.controller.queue.Dequeue(); ok {
			s.mu.Unlock()
			return ReadResult[T]{Value: chunk}, nil
		}
		s.mu.Unlock()
		return ReadResult[T]{Done: true}, nil
	}

	if chunk, ok := s.controller.queue.Dequeue(); ok {
		ctrl := s.controller
		s.mu.Unlock()
		ctrl.maybeFinalizeCloseIfDrained()
		ctrl.evaluatePull()
		return ReadResult[T]{Value: chunk}, nil
	}

	req := newReadRequest[T]()
	r.requests = append(r.requests, req)
	s.mu.Unlock()
	s.controller.evaluatePull()
	return req.s.Await(ctx)
}

// Cancel is equivalent to Stream.Cancel, available without exposing the
// underlying stream to the reader's holder.
func (r *Reader[T]) Cancel(ctx context.Context, reason any) error {
	return r.stream.Cancel(ctx, reason)
}

// ReleaseLock detaches the reader from its stream. Any reads still pending
// are rejected with a Misuse error; a subsequent GetReader on the stream
// will succeed.
func (r *Reader[T]) ReleaseLock() {
	s := r.stream
	s.mu.Lock()
	if r.released {
		s.mu.Unlock()
		return
	}
	r.released = true
	pending := r.requests
	r.requests = nil
	if s.reader == r {
		s.reader = nil
	}
	stillReadable := s.state == StateReadable
	s.mu.Unlock()

	releaseErr := serr.New(serr.Misuse, "readable.Reader.Read", "reader was released while a read was pending")
	for _, req := range pending {
		req.reject(releaseErr)
	}
	if stillReadable {
		r.rejectClosed(serr.New(serr.Misuse, "readable.Reader.Closed", "reader was released before the stream closed"))
	}
}
