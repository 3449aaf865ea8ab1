// Package bytelen implements the byte-oriented queuing strategy used by
// "bytes"-typed readable sources (§6): the size of a chunk is fixed to its
// byte length and a caller-supplied size function is never consulted.
package bytelen

import "github.com/relaystream/streams/strategy"

// Strategy sizes []byte chunks by len(chunk).
type Strategy struct {
	hwm float64
}

// New constructs a byte-length Strategy with the given high-water mark.
func New(hwm float64) (*Strategy, error) {
	if err := strategy.ValidateHighWaterMark(hwm); err != nil {
		return nil, err
	}
	return &Strategy{hwm: hwm}, nil
}

func (s *Strategy) HighWaterMark() float64 { return s.hwm }

func (s *Strategy) Size(chunk []byte) (float64, error) { return float64(len(chunk)), nil }

var _ strategy.Strategy[[]byte] = (*Strategy)(nil)
