package readable_test

import (
	"context"
	"testing"
	"time"

	"github.com/relaystream/streams/readable"
	"github.com/relaystream/streams/serr"
	"github.com/relaystream/streams/strategy/count"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func countStrategy(t *testing.T, hwm float64) *count.Strategy[int] {
	s, err := count.New[int](hwm)
	require.NoError(t, err)
	return s
}

func TestEnqueueThenReadDeliversInOrder(t *testing.T) {
	ctx := context.Background()
	s := readable.New(ctx, readable.UnderlyingSource[int]{
		Start: func(_ context.Context, c *readable.Controller[int]) error {
			require.NoError(t, c.Enqueue(1))
			require.NoError(t, c.Enqueue(2))
			return c.Close()
		},
	}, countStrategy(t, 10))

	r, err := s.GetReader()
	require.NoError(t, err)

	res, err := r.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Value)
	assert.False(t, res.Done)

	res, err = r.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Value)

	res, err = r.Read(ctx)
	require.NoError(t, err)
	assert.True(t, res.Done)
}

func TestReadBlocksUntilEnqueue(t *testing.T) {
	ctx := context.Background()
	var ctrl *readable.Controller[int]
	ready := make(chan struct{})
	s := readable.New(ctx, readable.UnderlyingSource[int]{
		Start: func(_ context.Context, c *readable.Controller[int]) error {
			ctrl = c
			close(ready)
			return nil
		},
	}, countStrategy(t, 10))
	<-ready

	r, err := s.GetReader()
	require.NoError(t, err)

	resultCh := make(chan readable.ReadResult[int], 1)
	go func() {
		res, _ := r.Read(ctx)
		resultCh <- res
	}()

	select {
	case <-resultCh:
		t.Fatal("read should not resolve before a chunk is enqueued")
	case <-time.After(20 * time.Millisecond):
	}

	require.NoError(t, ctrl.Enqueue(42))
	select {
	case res := <-resultCh:
		assert.Equal(t, 42, res.Value)
	case <-time.After(time.Second):
		t.Fatal("read did not resolve after enqueue")
	}
}

func TestGetReaderFailsWhenAlreadyLocked(t *testing.T) {
	ctx := context.Background()
	s := readable.New(ctx, readable.UnderlyingSource[int]{}, countStrategy(t, 1))
	_, err := s.GetReader()
	require.NoError(t, err)

	_, err = s.GetReader()
	require.Error(t, err)
	assert.True(t, serr.Is(err, serr.Misuse))
}

func TestReleaseLockAllowsNewReader(t *testing.T) {
	ctx := context.Background()
	s := readable.New(ctx, readable.UnderlyingSource[int]{}, countStrategy(t, 1))
	r1, err := s.GetReader()
	require.NoError(t, err)
	r1.ReleaseLock()

	r2, err := s.GetReader()
	require.NoError(t, err)
	assert.NotNil(t, r2)
}

func TestErrorRejectsPendingReads(t *testing.T) {
	ctx := context.Background()
	var ctrl *readable.Controller[int]
	ready := make(chan struct{})
	s := readable.New(ctx, readable.UnderlyingSource[int]{
		Start: func(_ context.Context, c *readable.Controller[int]) error {
			ctrl = c
			close(ready)
			return nil
		},
	}, countStrategy(t, 10))
	<-ready

	r, err := s.GetReader()
	require.NoError(t, err)

	errCh := make(chan error, 1)
	go func() {
		_, err := r.Read(ctx)
		errCh <- err
	}()
	time.Sleep(10 * time.Millisecond)

	boom := serr.New(serr.State, "test", "boom")
	ctrl.Error(boom)

	select {
	case err := <-errCh:
		require.Error(t, err)
	case <-time.After(time.Second):
		t.Fatal("pending read was not rejected on error")
	}
}

func TestCancelIsIdempotentAndOnlyInvokesCancelFnOnce(t *testing.T) {
	ctx := context.Background()
	calls := 0
	s := readable.New(ctx, readable.UnderlyingSource[int]{
		Cancel: func(_ context.Context, reason any) error {
			calls++
			return nil
		},
	}, countStrategy(t, 10))

	require.NoError(t, s.Cancel(ctx, "first"))
	require.NoError(t, s.Cancel(ctx, "second"))
	assert.Equal(t, 1, calls)
	assert.Equal(t, readable.StateClosed, s.State())
}

func TestCancelOnAlreadyErroredReturnsStoredError(t *testing.T) {
	ctx := context.Background()
	var ctrl *readable.Controller[int]
	ready := make(chan struct{})
	s := readable.New(ctx, readable.UnderlyingSource[int]{
		Start: func(_ context.Context, c *readable.Controller[int]) error {
			ctrl = c
			close(ready)
			return nil
		},
	}, countStrategy(t, 10))
	<-ready

	boom := serr.New(serr.State, "test", "boom")
	ctrl.Error(boom)
	time.Sleep(5 * time.Millisecond)

	err := s.Cancel(ctx, "reason")
	assert.Equal(t, boom, err)
}

func TestCloseWithQueuedChunksDefersUntilDrained(t *testing.T) {
	ctx := context.Background()
	s := readable.New(ctx, readable.UnderlyingSource[int]{
		Start: func(_ context.Context, c *readable.Controller[int]) error {
			require.NoError(t, c.Enqueue(1))
			require.NoError(t, c.Close())
			return nil
		},
	}, countStrategy(t, 10))

	r, err := s.GetReader()
	require.NoError(t, err)

	res, err := r.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Value)
	assert.False(t, res.Done)

	time.Sleep(5 * time.Millisecond)
	assert.Equal(t, readable.StateClosed, s.State())

	res, err = r.Read(ctx)
	require.NoError(t, err)
	assert.True(t, res.Done)
}

func TestDisturbedBecomesTrueOnFirstRead(t *testing.T) {
	ctx := context.Background()
	s := readable.New(ctx, readable.UnderlyingSource[int]{
		Start: func(_ context.Context, c *readable.Controller[int]) error {
			return c.Close()
		},
	}, countStrategy(t, 10))
	assert.False(t, s.Disturbed())

	r, err := s.GetReader()
	require.NoError(t, err)
	_, _ = r.Read(ctx)
	assert.True(t, s.Disturbed())
}

func TestReadAfterReleaseReturnsMisuse(t *testing.T) {
	ctx := context.Background()
	s := readable.New(ctx, readable.UnderlyingSource[int]{}, countStrategy(t, 1))
	r, err := s.GetReader()
	require.NoError(t, err)
	r.ReleaseLock()

	_, err = r.Read(ctx)
	require.Error(t, err)
	assert.True(t, serr.Is(err, serr.Misuse))
}
