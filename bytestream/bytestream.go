// Package bytestream describes, at the interface level only, the
// byte-oriented ("bytes"-typed) readable source and its BYOB reader
// mentioned in §6. The BYOB buffer-splicing algorithm itself — copying
// pulled bytes directly into a caller-supplied buffer instead of an
// internal queue — is out of scope; NewSource below builds an ordinary
// []byte readable.Stream sized by strategy/bytelen, and BYOBReader exists
// only to name the shape a real implementation would have to satisfy.
package bytestream

import (
	"context"

	"github.com/relaystream/streams/readable"
	"github.com/relaystream/streams/serr"
	"github.com/relaystream/streams/strategy"
	"github.com/relaystream/streams/strategy/bytelen"
)

// BYOBReader is the interface a bring-your-own-buffer reader would expose:
// a Read that copies pulled bytes into a caller-owned buf instead of
// handing back an internally queued chunk, returning the number of bytes
// written. No implementation of this interface is provided.
type BYOBReader interface {
	Read(ctx context.Context, buf []byte) (n int, done bool, err error)
	ReleaseLock()
}

// NewSource constructs a []byte readable.Stream whose queuing strategy is
// fixed to byte length. A byte-oriented source has no caller-selectable
// size function — passing one is the caller mistakenly treating this as a
// general "bytes" type, which §6 forbids, so it is rejected with
// serr.Range rather than silently ignored.
func NewSource(ctx context.Context, src readable.UnderlyingSource[[]byte], hwm float64, sizeFn func([]byte) (float64, error)) (*readable.Stream[[]byte], error) {
	if sizeFn != nil {
		return nil, serr.New(serr.Range, "bytestream.NewSource", "a byte-oriented source's size function is fixed to byte length and cannot be overridden")
	}
	strat, err := bytelen.New(hwm)
	if err != nil {
		return nil, err
	}
	var _ strategy.Strategy[[]byte] = strat
	return readable.New(ctx, src, strat), nil
}

// GetBYOBReader is the interface-level counterpart to Stream.GetReader for
// a byte-oriented source. It always fails: this module implements the
// default reader path only, per §1's scope exclusion of the BYOB
// buffer-splicing algorithm.
func GetBYOBReader(*readable.Stream[[]byte]) (BYOBReader, error) {
	return nil, serr.New(serr.Misuse, "bytestream.GetBYOBReader", "BYOB reader buffer-splicing is not implemented, only described at the interface level")
}
