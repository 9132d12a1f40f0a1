package pipeline

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"streamtrans/pkg/contract"
)

func seg(tr, tl string) contract.Segment {
	return contract.Segment{contract.FieldTranslated: tr, contract.FieldTransliterated: tl}
}

func TestSinkWritesSelectedFieldWithoutSeparators(t *testing.T) {
	ctx := context.Background()
	for _, tc := range []struct {
		field contract.Field
		want  string
	}{
		{contract.FieldTranslated, "Hello world.Bye.\n"},
		{contract.FieldTransliterated, "Nǐ hǎo shìjiè.Zàijiàn.\n"},
	} {
		var buf strings.Builder
		s := NewSink(&buf, tc.field)
		require.NoError(t, s.Consume(ctx, contract.TranslationResult{Segments: []contract.Segment{
			seg("Hello ", "Nǐ hǎo "), seg("world.", "shìjiè."),
		}}))
		require.NoError(t, s.Consume(ctx, contract.TranslationResult{Segments: []contract.Segment{seg("Bye.", "Zàijiàn.")}}))
		require.NoError(t, s.Close(ctx))
		assert.Equal(t, tc.want, buf.String())
		assert.EqualValues(t, 2, s.Written())
	}
}

// 首段缺少所选字段：ConfigurationError，且不写任何内容。
func TestSinkMissingFieldInFirstSegment(t *testing.T) {
	var buf strings.Builder
	s := NewSink(&buf, contract.FieldTransliterated)
	err := s.Consume(context.Background(), contract.TranslationResult{Segments: []contract.Segment{
		{contract.FieldTranslated: "a"}, seg("b", "B"),
	}})
	var ce *contract.ConfigurationError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "output", ce.Field)
	require.NoError(t, s.Abort(context.Background()))
	assert.Empty(t, buf.String())
}

// 仅检查首段；后续段缺少字段时跳过。
func TestSinkSkipsLaterSegmentsWithoutField(t *testing.T) {
	var buf strings.Builder
	s := NewSink(&buf, contract.FieldTransliterated)
	require.NoError(t, s.Consume(context.Background(), contract.TranslationResult{Segments: []contract.Segment{
		seg("a", "A"), {contract.FieldTranslated: "b"}, seg("c", "C"),
	}}))
	require.NoError(t, s.Abort(context.Background()))
	assert.Equal(t, "AC", buf.String())
}

func TestSinkEmptyResultWritesNothing(t *testing.T) {
	var buf strings.Builder
	s := NewSink(&buf, contract.FieldTranslated)
	require.NoError(t, s.Consume(context.Background(), contract.TranslationResult{}))
	assert.Empty(t, buf.String())
	assert.Zero(t, s.Written())
}

// 结尾符只在正常关闭时写一次。
func TestSinkTerminatorOnlyOnClose(t *testing.T) {
	var buf strings.Builder
	s := NewSink(&buf, contract.FieldTranslated)
	require.NoError(t, s.Close(context.Background()))
	require.NoError(t, s.Close(context.Background()))
	require.NoError(t, s.Abort(context.Background()))
	assert.Equal(t, Terminator, buf.String())

	buf.Reset()
	s = NewSink(&buf, contract.FieldTranslated)
	require.NoError(t, s.Consume(context.Background(), contract.TranslationResult{Segments: []contract.Segment{seg("x", "X")}}))
	require.NoError(t, s.Abort(context.Background()))
	assert.Equal(t, "x", buf.String())
}

type failWriter struct{}

func (failWriter) Write([]byte) (int, error) { return 0, errors.New("disk full") }

func TestSinkWriteError(t *testing.T) {
	s := NewSink(failWriter{}, contract.FieldTranslated)
	err := s.Consume(context.Background(), contract.TranslationResult{Segments: []contract.Segment{seg("x", "X")}})
	assert.ErrorContains(t, err, "disk full")
}
