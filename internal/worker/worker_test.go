package worker

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProcessAllOrdersResults(t *testing.T) {
	items := []int{1, 2, 3, 4, 5}
	results, err := ProcessAll(context.Background(), items, func(ctx context.Context, n int) (string, error) {
		return strconv.Itoa(n * 10), nil
	}, Options{Workers: 3})
	require.NoError(t, err)
	require.Len(t, results, 5)
	for i, r := range results {
		assert.Equal(t, items[i], r.Input)
		assert.Equal(t, strconv.Itoa(items[i]*10), r.Output)
		assert.NoError(t, r.Err)
	}
}

func TestProcessAllRecordsItemErrors(t *testing.T) {
	items := []int{1, 2, 3}
	results, err := ProcessAll(context.Background(), items, func(ctx context.Context, n int) (string, error) {
		if n == 2 {
			return "", fmt.Errorf("item %d failed", n)
		}
		return "ok", nil
	}, Options{})
	require.NoError(t, err, "item errors must not fail the run")
	assert.NoError(t, results[0].Err)
	assert.ErrorContains(t, results[1].Err, "item 2 failed")
	assert.NoError(t, results[2].Err)
}

func TestProcessAllFailFast(t *testing.T) {
	var processed atomic.Int32
	items := make([]int, 50)
	boom := errors.New("boom")

	_, err := ProcessAll(context.Background(), items, func(ctx context.Context, n int) (string, error) {
		if processed.Add(1) == 1 {
			return "", boom
		}
		return "ok", nil
	}, Options{Workers: 1, FailFast: true})
	require.ErrorIs(t, err, boom)
	assert.Less(t, processed.Load(), int32(50), "remaining items should be skipped")
}

func TestProcessAllSequentialDefault(t *testing.T) {
	var inFlight, maxInFlight atomic.Int32
	items := make([]int, 10)

	_, err := ProcessAll(context.Background(), items, func(ctx context.Context, n int) (string, error) {
		cur := inFlight.Add(1)
		if cur > maxInFlight.Load() {
			maxInFlight.Store(cur)
		}
		inFlight.Add(-1)
		return "ok", nil
	}, Options{})
	require.NoError(t, err)
	assert.Equal(t, int32(1), maxInFlight.Load())
}
