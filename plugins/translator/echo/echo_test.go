package echo

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"streamtrans/pkg/contract"
)

func TestTranslateWhole(t *testing.T) {
	tr, err := New(nil)
	require.NoError(t, err)
	res, err := tr.Translate(context.Background(), "hello world\nfoo\n")
	require.NoError(t, err)
	require.Len(t, res.Segments, 1)
	v, ok := res.Segments[0].Get(contract.FieldTransliterated)
	assert.True(t, ok)
	assert.Equal(t, "hello world\nfoo\n", v)

	res, err = tr.Translate(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, []contract.Segment{{contract.FieldTranslated: "", contract.FieldTransliterated: ""}}, res.Segments)
}

func TestTranslateSplitLines(t *testing.T) {
	tr, err := New(json.RawMessage(`{"split_lines":true}`))
	require.NoError(t, err)
	res, err := tr.Translate(context.Background(), "a\n\nb")
	require.NoError(t, err)
	require.Len(t, res.Segments, 3)
	assert.Equal(t, "\n", res.Segments[1][contract.FieldTranslated])
	assert.Equal(t, "b", res.Segments[2][contract.FieldTranslated])

	res, err = tr.Translate(context.Background(), "")
	require.NoError(t, err)
	assert.Empty(t, res.Segments)
}

func TestTranslateCanceled(t *testing.T) {
	tr, _ := New(nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := tr.Translate(ctx, "x")
	assert.ErrorIs(t, err, context.Canceled)
}
