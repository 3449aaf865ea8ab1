package bytelen_test

import (
	"testing"

	"github.com/relaystream/streams/strategy/bytelen"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSizeIsByteLength(t *testing.T) {
	s, err := bytelen.New(1024)
	require.NoError(t, err)
	size, err := s.Size([]byte("hello"))
	require.NoError(t, err)
	assert.Equal(t, float64(5), size)
}

func TestZeroLengthChunkSizesZero(t *testing.T) {
	s, err := bytelen.New(0)
	require.NoError(t, err)
	size, err := s.Size(nil)
	require.NoError(t, err)
	assert.Equal(t, float64(0), size)
}
