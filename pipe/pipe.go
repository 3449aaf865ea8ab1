// Package pipe implements PipeTo, the long-running coordination between a
// Readable reader and a Writable writer. It follows the teacher's own
// goroutine-per-stage idiom (one pump goroutine that reads and writes, one
// watcher goroutine per shutdown source, shutdown raced through a single
// channel) rather than pulling in an
// errgroup-style coordination library.
package pipe

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
	"github.com/relaystream/streams/readable"
	"github.com/relaystream/streams/serr"
	"github.com/relaystream/streams/settlement"
	"github.com/relaystream/streams/writable"
	"github.com/sirupsen/logrus"
)

// Logger is the package-level diagnostic logger; override with SetLogger.
var Logger logrus.FieldLogger = logrus.WithField("component", "pipe")

// SetLogger overrides the package-level diagnostic logger.
func SetLogger(l logrus.FieldLogger) { Logger = l }

// Options controls which shutdown propagations PipeTo performs.
type Options struct {
	PreventClose  bool
	PreventAbort  bool
	PreventCancel bool
}

type shutdownEvent struct {
	source string // "ctx", "src-closed", "src-errored", "dst-closed", "dst-errored"
	err    error
}

// PipeTo drains src into dst until src closes, src errors, dst errors, dst
// closes unexpectedly, or ctx is done — whichever happens first — then
// propagates that event to the other side per opts and releases the writer,
// then the reader, it acquired. It fails synchronously with a serr.Misuse
// error if src or dst is already locked.
func PipeTo[T any](ctx context.Context, src *readable.Stream[T], dst *writable.Stream[T], opts Options) error {
	log := Logger.WithField("pipe", "pp_"+uuid.NewString()[:12])

	if src.Locked() {
		return serr.New(serr.Misuse, "pipe.PipeTo", "source is already locked to a reader")
	}
	if dst.Locked() {
		return serr.New(serr.Misuse, "pipe.PipeTo", "destination is already locked to a writer")
	}

	r, err := src.GetReader()
	if err != nil {
		return err
	}
	w, err := dst.GetWriter()
	if err != nil {
		r.ReleaseLock()
		return err
	}
	defer r.ReleaseLock()
	defer w.ReleaseLock()

	shutdown := make(chan shutdownEvent, 1)
	var once sync.Once
	fire := func(ev shutdownEvent) {
		once.Do(func() { shutdown <- ev })
	}

	pumpCtx, cancelPump := context.WithCancel(ctx)
	defer cancelPump()

	go watchContext(ctx, fire)
	go watchClosed(r.Closed(), fire, "src-closed", "src-errored")
	go watchClosed(w.Closed(), fire, "dst-closed", "dst-errored")
	go pump(pumpCtx, r, w, fire)

	ev := <-shutdown
	cancelPump()
	log.WithField("event", ev.source).Debug("pipe shutting down")

	return settle(ctx, ev, r, w, opts)
}

func watchContext(ctx context.Context, fire func(shutdownEvent)) {
	<-ctx.Done()
	fire(shutdownEvent{source: "ctx", err: ctx.Err()})
}

func watchClosed(closed *settlement.Settlement[struct{}], fire func(shutdownEvent), closedLabel, erroredLabel string) {
	_, err := closed.Await(context.Background())
	if err != nil {
		fire(shutdownEvent{source: erroredLabel, err: err})
		return
	}
	fire(shutdownEvent{source: closedLabel})
}

// pump is the steady-state read/write loop: wait for the writer to be
// ready, read one chunk, write it, repeat. It only returns by way of fire,
// via the watchers above detecting the resulting close/error — it never
// fires a shutdownEvent itself, since read/write errors surface through
// the reader's/writer's own closed settlements.
func pump[T any](ctx context.Context, r *readable.Reader[T], w *writable.Writer[T], fire func(shutdownEvent)) {
	for {
		if _, err := w.Ready().Await(ctx); err != nil {
			return
		}
		res, err := r.Read(ctx)
		if err != nil {
			return
		}
		if res.Done {
			return
		}
		if err := w.Write(ctx, res.Value); err != nil {
			return
		}
	}
}

// settle implements §4.G's shutdown-action table for whichever event won
// the race.
func settle[T any](ctx context.Context, ev shutdownEvent, r *readable.Reader[T], w *writable.Writer[T], opts Options) error {
	switch ev.source {
	case "ctx":
		if !opts.PreventAbort {
			_ = w.Abort(ctx, ev.err)
		}
		if !opts.PreventCancel {
			_ = r.Cancel(ctx, ev.err)
		}
		return ev.err

	case "src-errored":
		if !opts.PreventAbort {
			_ = w.Abort(ctx, ev.err)
		}
		return ev.err

	case "src-closed":
		if opts.PreventClose {
			return nil
		}
		return w.Close(ctx)

	case "dst-errored":
		reason := ev.err
		var se *serr.Error
		if errors.As(ev.err, &se) && se.Kind == serr.Propagated && se.Err != nil {
			reason = se.Err
		}
		if !opts.PreventCancel {
			_ = r.Cancel(ctx, reason)
		}
		return reason

	case "dst-closed":
		unexpected := serr.New(serr.State, "pipe.PipeTo", "destination closed unexpectedly")
		if !opts.PreventCancel {
			_ = r.Cancel(ctx, unexpected)
		}
		return unexpected

	default:
		return nil
	}
}
