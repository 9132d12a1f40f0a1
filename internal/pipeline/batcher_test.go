package pipeline

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"streamtrans/pkg/contract"
)

func TestBatcherFlushesOnCrossingThreshold(t *testing.T) {
	rec := &batchRecorder{}
	b := NewBatcher(5, rec, nil)
	ctx := context.Background()
	for _, f := range []contract.Fragment{"one two ", "three four ", "five six\n", "seven\n"} {
		require.NoError(t, b.Push(ctx, f))
	}
	require.Len(t, rec.batches, 1, "第三个片段使计数达到 6")
	assert.Equal(t, contract.Batch{Text: "one two three four five six\n", Words: 6}, rec.batches[0])

	require.NoError(t, b.Close(ctx))
	require.Len(t, rec.batches, 2)
	assert.Equal(t, contract.Batch{Text: "seven\n", Words: 1}, rec.batches[1])
	assert.Equal(t, 1, rec.closed)
}

func TestBatcherExactThreshold(t *testing.T) {
	rec := &batchRecorder{}
	b := NewBatcher(2, rec, nil)
	require.NoError(t, b.Push(context.Background(), "a b"))
	require.Len(t, rec.batches, 1)
	assert.Equal(t, 2, rec.batches[0].Words)
}

// 关闭时即使批为空也恰好刷出一次。
func TestBatcherEmptyFinalFlushExactlyOnce(t *testing.T) {
	rec := &batchRecorder{}
	b := NewBatcher(1, rec, nil)
	ctx := context.Background()
	require.NoError(t, b.Push(ctx, "word\n"))
	require.NoError(t, b.Close(ctx))
	require.NoError(t, b.Close(ctx))
	require.Len(t, rec.batches, 2)
	assert.Equal(t, contract.Batch{}, rec.batches[1])
	assert.Equal(t, 1, rec.closed)
	assert.Error(t, b.Push(ctx, "late"))
}

// 每个片段恰好进入一个批，且除最后一批外每批计数 ≥ 阈值、末次合并前 < 阈值。
func TestBatcherConservesFragments(t *testing.T) {
	rec := &batchRecorder{}
	const threshold = 4
	b := NewBatcher(threshold, rec, nil)
	ctx := context.Background()
	var input strings.Builder
	frags := []contract.Fragment{"a ", "b c ", "", "d e f g ", "h\n", "  ", "i j k ", "l"}
	for _, f := range frags {
		input.WriteString(string(f))
		require.NoError(t, b.Push(ctx, f))
	}
	require.NoError(t, b.Close(ctx))

	var got strings.Builder
	for i, bt := range rec.batches {
		got.WriteString(bt.Text)
		assert.Equal(t, len(strings.Fields(bt.Text)), bt.Words)
		if i < len(rec.batches)-1 {
			assert.GreaterOrEqual(t, bt.Words, threshold)
		}
	}
	assert.Equal(t, input.String(), got.String())
}

func TestBatcherAbortDropsPartial(t *testing.T) {
	rec := &batchRecorder{}
	b := NewBatcher(10, rec, nil)
	ctx := context.Background()
	require.NoError(t, b.Push(ctx, "partial"))
	require.NoError(t, b.Abort(ctx))
	require.NoError(t, b.Close(ctx))
	assert.Empty(t, rec.batches)
	assert.Equal(t, 1, rec.aborted)
	assert.Zero(t, rec.closed)
}

func TestBatcherDefaultThreshold(t *testing.T) {
	assert.Equal(t, DefaultBatchWords, NewBatcher(0, &batchRecorder{}, nil).threshold)
}
