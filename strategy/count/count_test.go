package count_test

import (
	"testing"

	"github.com/relaystream/streams/strategy/count"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCountAlwaysSizesOne(t *testing.T) {
	s, err := count.New[string](3)
	require.NoError(t, err)
	size, err := s.Size("x")
	require.NoError(t, err)
	assert.Equal(t, float64(1), size)
	size, err = s.Size("much longer chunk value")
	require.NoError(t, err)
	assert.Equal(t, float64(1), size)
	assert.Equal(t, float64(3), s.HighWaterMark())
}

func TestCountRejectsNegativeHWM(t *testing.T) {
	_, err := count.New[string](-1)
	assert.Error(t, err)
}
