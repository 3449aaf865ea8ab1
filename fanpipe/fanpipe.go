// Package fanpipe routes a single Readable's chunks across N Writable
// sinks by a hash of each chunk's key, adapted from the teacher's
// FanOut/partitioner combinators onto readable.Stream/writable.Stream
// semantics. Unlike pipe.PipeTo's one-to-one drain, a partition is chosen
// per chunk; a write error on any one destination aborts the others,
// cancels the source and ends the run at once.
package fanpipe

import (
	"context"
	"fmt"
	"hash/fnv"
	"sync"

	"github.com/google/uuid"
	"github.com/relaystream/streams/readable"
	"github.com/relaystream/streams/serr"
	"github.com/relaystream/streams/writable"
	"github.com/sirupsen/logrus"
)

// modulusHash hashes key with FNV-1a and reduces it modulo shardCount,
// the same sharding scheme the teacher's partition.ModulusHash uses.
func modulusHash[K comparable](key K, shardCount int) int {
	if shardCount <= 1 {
		return 0
	}
	h := fnv.New64a()
	_, _ = h.Write([]byte(fmt.Sprint(key)))
	return int(h.Sum64() % uint64(shardCount))
}

// Logger is the package-level diagnostic logger; override with SetLogger.
var Logger logrus.FieldLogger = logrus.WithField("component", "fanpipe")

// SetLogger overrides the package-level diagnostic logger.
func SetLogger(l logrus.FieldLogger) { Logger = l }

// Options controls which shutdown propagations FanOut performs, mirroring
// pipe.Options.
type Options struct {
	PreventClose  bool
	PreventAbort  bool
	PreventCancel bool
}

// KeyFunc extracts the routing key used to pick a destination shard for
// chunk.
type KeyFunc[T any, K comparable] func(chunk T) K

// FanOut drains src into dsts, routing each chunk to dsts[modulusHash(keyFn(chunk), len(dsts))].
// It acquires src's reader and every destination's writer for the run's
// lifetime and releases them before returning. A write error on any one
// destination cancels src (unless PreventCancel) and aborts every other
// still-open destination (unless PreventAbort); src closing closes every
// destination in turn (unless PreventClose).
func FanOut[T any, K comparable](ctx context.Context, src *readable.Stream[T], dsts []*writable.Stream[T], keyFn KeyFunc[T, K], opts Options) error {
	id := "fo_" + uuid.NewString()[:12]
	log := Logger.WithField("fanpipe", id)

	if src.Locked() {
		return serr.New(serr.Misuse, "fanpipe.FanOut", "source readable is already locked")
	}
	for _, d := range dsts {
		if d.Locked() {
			return serr.New(serr.Misuse, "fanpipe.FanOut", "a destination writable is already locked")
		}
	}

	r, err := src.GetReader()
	if err != nil {
		return err
	}
	defer r.ReleaseLock()

	writers := make([]*writable.Writer[T], len(dsts))
	for i, d := range dsts {
		w, err := d.GetWriter()
		if err != nil {
			for j := 0; j < i; j++ {
				writers[j].ReleaseLock()
			}
			return err
		}
		writers[i] = w
	}
	defer func() {
		for _, w := range writers {
			w.ReleaseLock()
		}
	}()

	var (
		mu       sync.Mutex
		firstErr error
		aborted  = make([]bool, len(writers))
	)
	abortOthers := func(ctx context.Context, except int, reason error) {
		mu.Lock()
		defer mu.Unlock()
		for i, w := range writers {
			if i == except || aborted[i] || opts.PreventAbort {
				continue
			}
			aborted[i] = true
			_ = w.Abort(ctx, reason)
		}
	}

	for {
		res, err := r.Read(ctx)
		if err != nil {
			log.WithError(err).Debug("source errored, aborting every destination")
			abortOthers(ctx, -1, err)
			return err
		}
		if res.Done {
			log.Debug("source closed, closing every destination")
			if opts.PreventClose {
				return nil
			}
			for i, w := range writers {
				if aborted[i] {
					continue
				}
				if err := w.Close(ctx); err != nil && firstErr == nil {
					firstErr = err
				}
			}
			return firstErr
		}

		shard := modulusHash(keyFn(res.Value), len(writers))
		if aborted[shard] {
			continue
		}
		if err := writers[shard].Write(ctx, res.Value); err != nil {
			log.WithError(err).WithField("shard", shard).Debug("destination errored, canceling source")
			abortOthers(ctx, shard, err)
			if !opts.PreventCancel {
				_ = src.Cancel(ctx, err)
			}
			return err
		}
	}
}
