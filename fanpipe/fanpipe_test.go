package fanpipe_test

import (
	"context"
	"sync"
	"testing"

	"github.com/relaystream/streams/fanpipe"
	"github.com/relaystream/streams/readable"
	"github.com/relaystream/streams/strategy/count"
	"github.com/relaystream/streams/writable"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strat[T any](t *testing.T, hwm float64) *count.Strategy[T] {
	s, err := count.New[T](hwm)
	require.NoError(t, err)
	return s
}

func TestFanOutRoutesByKeyAndClosesEveryDestination(t *testing.T) {
	ctx := context.Background()
	src := readable.New(ctx, readable.UnderlyingSource[int]{
		Start: func(_ context.Context, c *readable.Controller[int]) error {
			for i := 0; i < 6; i++ {
				require.NoError(t, c.Enqueue(i))
			}
			return c.Close()
		},
	}, strat[int](t, 8))

	var mu sync.Mutex
	got := make([][]int, 2)
	closed := make([]bool, 2)
	dsts := make([]*writable.Stream[int], 2)
	for i := range dsts {
		i := i
		dsts[i] = writable.New(ctx, writable.UnderlyingSink[int]{
			Write: func(_ context.Context, chunk int, _ *writable.Controller[int]) error {
				mu.Lock()
				got[i] = append(got[i], chunk)
				mu.Unlock()
				return nil
			},
			Close: func(context.Context) error {
				mu.Lock()
				closed[i] = true
				mu.Unlock()
				return nil
			},
		}, strat[int](t, 8))
	}

	err := fanpipe.FanOut(ctx, src, dsts, func(v int) int { return v }, fanpipe.Options{})
	require.NoError(t, err)
	assert.True(t, closed[0])
	assert.True(t, closed[1])
	assert.Equal(t, 6, len(got[0])+len(got[1]))
}

func TestFanOutAbortsOtherDestinationsWhenOneErrors(t *testing.T) {
	ctx := context.Background()
	src := readable.New(ctx, readable.UnderlyingSource[int]{
		Start: func(_ context.Context, c *readable.Controller[int]) error {
			for i := 0; i < 4; i++ {
				require.NoError(t, c.Enqueue(i))
			}
			return c.Close()
		},
	}, strat[int](t, 8))

	boom := context.Canceled
	var aborted bool
	dsts := []*writable.Stream[int]{
		writable.New(ctx, writable.UnderlyingSink[int]{
			Write: func(context.Context, int, *writable.Controller[int]) error { return boom },
		}, strat[int](t, 8)),
		writable.New(ctx, writable.UnderlyingSink[int]{
			Abort: func(context.Context, any) error {
				aborted = true
				return nil
			},
		}, strat[int](t, 8)),
	}

	err := fanpipe.FanOut(ctx, src, dsts, func(v int) int { return v }, fanpipe.Options{})
	require.Error(t, err)
	assert.True(t, aborted)
}
