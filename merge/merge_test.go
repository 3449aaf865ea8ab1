package merge_test

import (
	"context"
	"sort"
	"testing"

	"github.com/relaystream/streams/merge"
	"github.com/relaystream/streams/readable"
	"github.com/relaystream/streams/strategy/count"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func source(t *testing.T, values ...int) *readable.Stream[int] {
	strat, err := count.New[int](8)
	require.NoError(t, err)
	return readable.New(context.Background(), readable.UnderlyingSource[int]{
		Start: func(_ context.Context, c *readable.Controller[int]) error {
			for _, v := range values {
				require.NoError(t, c.Enqueue(v))
			}
			return c.Close()
		},
	}, strat)
}

func TestMergeDeliversEveryChunkFromEverySource(t *testing.T) {
	ctx := context.Background()
	s1 := source(t, 1, 2, 3)
	s2 := source(t, 4, 5, 6)
	strat, err := count.New[int](8)
	require.NoError(t, err)

	merged := merge.Merge(ctx, strat, s1, s2)
	r, err := merged.GetReader()
	require.NoError(t, err)

	var got []int
	for {
		res, err := r.Read(ctx)
		require.NoError(t, err)
		if res.Done {
			break
		}
		got = append(got, res.Value)
	}
	sort.Ints(got)
	assert.Equal(t, []int{1, 2, 3, 4, 5, 6}, got)
}

func TestMergeErrorsOnFirstSourceError(t *testing.T) {
	ctx := context.Background()
	strat, err := count.New[int](8)
	require.NoError(t, err)
	boom := context.Canceled
	bad := readable.New(ctx, readable.UnderlyingSource[int]{
		Start: func(context.Context, *readable.Controller[int]) error { return boom },
	}, strat)
	good := source(t, 1)

	merged := merge.Merge(ctx, strat, bad, good)
	r, err := merged.GetReader()
	require.NoError(t, err)

	_, readErr := r.Read(ctx)
	require.Error(t, readErr)
}
