package streams_test

import (
	"context"
	"testing"
	"time"

	"github.com/relaystream/streams"
	"github.com/relaystream/streams/pipe"
	"github.com/relaystream/streams/readable"
	"github.com/relaystream/streams/strategy/count"
	"github.com/relaystream/streams/writable"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAbortSignalErrorsBothEndsAndRejectsPipe(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	hwm, err := count.New[int](4)
	require.NoError(t, err)

	var aborted bool
	var canceledReason any
	block := make(chan struct{})
	src := streams.NewReadable(ctx, streams.UnderlyingSource[int]{
		Start: func(_ context.Context, c *readable.Controller[int]) error {
			require.NoError(t, c.Enqueue(1))
			return nil
		},
		Cancel: func(_ context.Context, reason any) error {
			canceledReason = reason
			return nil
		},
	}, hwm)

	dst := streams.NewWritable(ctx, streams.UnderlyingSink[int]{
		Write: func(_ context.Context, _ int, _ *writable.Controller[int]) error {
			<-block
			return nil
		},
		Abort: func(_ context.Context, reason any) error {
			aborted = true
			return nil
		},
	}, hwm)

	pipeErr := make(chan error, 1)
	go func() { pipeErr <- streams.PipeTo(ctx, src, dst, pipe.Options{}) }()

	time.Sleep(20 * time.Millisecond)
	cancel()
	close(block)

	err = <-pipeErr
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.True(t, aborted)
	assert.Equal(t, context.Canceled, canceledReason)
	assert.Equal(t, writable.StateErrored, dst.State())
	assert.Equal(t, readable.StateClosed, src.State())
}
