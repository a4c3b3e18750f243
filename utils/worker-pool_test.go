package utils

import (
	"bytes"
	"context"
	"io"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var quiet = log.New(io.Discard)

func TestProcessBatchKeepsOrder(t *testing.T) {
	pp := NewParallelProcessor(4, quiet)
	items := make([]int, 250)
	for i := range items {
		items[i] = i
	}

	results, err := ProcessBatch(context.Background(), pp, items, func(_ context.Context, n int) int {
		return n * n
	}, "squares")
	require.NoError(t, err)
	for i, r := range results {
		assert.Equal(t, i*i, r)
	}
}

func TestProcessBatchEmpty(t *testing.T) {
	results, err := ProcessBatch(context.Background(), NewParallelProcessor(2, quiet), nil,
		func(_ context.Context, s string) int { return len(s) }, "empty")
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestProcessBatchCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var calls atomic.Int64
	results, err := ProcessBatch(ctx, NewParallelProcessor(2, quiet), []int{1, 2, 3}, func(_ context.Context, n int) int {
		calls.Add(1)
		return n
	}, "cancelled")
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, []int{0, 0, 0}, results)
	assert.Zero(t, calls.Load())
}

func TestNewParallelProcessorDefaults(t *testing.T) {
	pp := NewParallelProcessor(0, nil)
	assert.Positive(t, pp.NumWorkers)
	assert.NotNil(t, pp.Logger)
}

func TestProgressTracker(t *testing.T) {
	pt := NewProgressTracker(4, "tracking", quiet)
	for i := 0; i < 3; i++ {
		pt.Increment()
	}
	processed, total, percent := pt.GetProgress()
	assert.Equal(t, int64(3), processed)
	assert.Equal(t, int64(4), total)
	assert.InDelta(t, 75.0, percent, 1e-9)
}

func TestProcessBatchLogsCompletion(t *testing.T) {
	var buf bytes.Buffer
	logger := log.NewWithOptions(&buf, log.Options{Level: log.DebugLevel})

	_, err := ProcessBatch(context.Background(), NewParallelProcessor(2, logger), []int{1, 2, 3},
		func(_ context.Context, n int) int { return n }, "doubling")
	require.NoError(t, err)

	var done string
	for _, line := range strings.Split(buf.String(), "\n") {
		if strings.Contains(line, "doubling complete") {
			done = line
		}
	}
	require.NotEmpty(t, done)
	assert.Contains(t, done, "processed=3")
	assert.Contains(t, done, "total=3")
	assert.Contains(t, done, "percent=100")
}
