package streams_test

import (
	"context"
	"testing"

	"github.com/relaystream/streams"
	"github.com/relaystream/streams/pipe"
	"github.com/relaystream/streams/readable"
	"github.com/relaystream/streams/strategy/count"
	"github.com/relaystream/streams/transform"
	"github.com/relaystream/streams/writable"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewReadableNewWritablePipeToRoundTrip(t *testing.T) {
	ctx := context.Background()
	hwm, err := count.New[int](4)
	require.NoError(t, err)

	src := streams.NewReadable(ctx, streams.UnderlyingSource[int]{
		Start: func(_ context.Context, c *readable.Controller[int]) error {
			require.NoError(t, c.Enqueue(1))
			require.NoError(t, c.Enqueue(2))
			return c.Close()
		},
	}, hwm)

	var got []int
	dst := streams.NewWritable(ctx, streams.UnderlyingSink[int]{
		Write: func(_ context.Context, chunk int, _ *writable.Controller[int]) error {
			got = append(got, chunk)
			return nil
		},
	}, hwm)

	require.NoError(t, streams.PipeTo(ctx, src, dst, pipe.Options{}))
	assert.Equal(t, []int{1, 2}, got)
}

func TestNewTransformDoublesChunks(t *testing.T) {
	ctx := context.Background()
	hwm, err := count.New[int](4)
	require.NoError(t, err)

	tf := streams.NewTransform(ctx, streams.Transformer[int, int]{
		Transform: func(_ context.Context, chunk int, c *transform.Controller[int]) error {
			return c.Enqueue(chunk * 2)
		},
	}, hwm, hwm)

	w, err := tf.Writable.GetWriter()
	require.NoError(t, err)
	r, err := tf.Readable.GetReader()
	require.NoError(t, err)

	require.NoError(t, w.Write(ctx, 3))
	require.NoError(t, w.Close(ctx))

	res, err := r.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, 6, res.Value)
}
