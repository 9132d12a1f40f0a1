package pipeline

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"streamtrans/internal/diag"
	"streamtrans/pkg/contract"
)

func baseSettings(inputs ...string) Settings {
	return Settings{
		Inputs:      inputs,
		Artifact:    "out.txt",
		Translator:  "echo",
		Workers:     4,
		MaxFragment: DefaultMaxFragment,
		BatchWords:  DefaultBatchWords,
		Output:      contract.FieldTranslated,
	}
}

type recordingTranslator struct {
	mu    sync.Mutex
	texts []string
}

func (r *recordingTranslator) Translate(_ context.Context, text string) (contract.TranslationResult, error) {
	r.mu.Lock()
	r.texts = append(r.texts, text)
	r.mu.Unlock()
	return echoResult(text), nil
}

// 阈值 1 词：每行单独成批，输出按序还原输入，末尾追加一次结尾符。
func TestRunEchoReproducesInput(t *testing.T) {
	tr := &recordingTranslator{}
	w := &memWriter{}
	set := baseSettings("in")
	set.BatchWords = 1
	err := Run(context.Background(), Components{
		Reader:     &memReader{inputs: map[string]string{"in": "hello world\nfoo\n"}},
		Translator: tr,
		Writer:     w,
	}, set, nil)
	require.NoError(t, err)
	assert.Equal(t, "hello world\nfoo\n"+Terminator, w.String())
	assert.Equal(t, contract.ArtifactID("out.txt"), w.id)
	assert.ElementsMatch(t, []string{"hello world\n", "foo\n", ""}, tr.texts, "关闭时刷出空批")
}

func TestRunTransliteratedAcrossInputs(t *testing.T) {
	w := &memWriter{}
	set := baseSettings("a", "b")
	set.Output = contract.FieldTransliterated
	set.BatchWords = 2
	err := Run(context.Background(), Components{
		Reader:     &memReader{inputs: map[string]string{"a": "one two three\n", "b": "four\n"}},
		Translator: echo,
		Writer:     w,
	}, set, nil)
	require.NoError(t, err)
	assert.Equal(t, "ONE TWO THREE\nFOUR\n\n", w.String())
}

func TestRunTranslationFailureKeepsPartialOutput(t *testing.T) {
	tr := contract.TranslatorFunc(func(_ context.Context, text string) (contract.TranslationResult, error) {
		if strings.HasPrefix(text, "bad") {
			return contract.TranslationResult{}, errors.New("service unavailable")
		}
		return echoResult(text), nil
	})
	w := &memWriter{}
	set := baseSettings("in")
	set.BatchWords = 1
	set.Workers = 1
	err := Run(context.Background(), Components{
		Reader:     &memReader{inputs: map[string]string{"in": "good\nbad\nlater\n"}},
		Translator: tr,
		Writer:     w,
	}, set, nil)
	var te *contract.TranslationError
	require.ErrorAs(t, err, &te)
	assert.EqualValues(t, 2, te.Seq)
	assert.Equal(t, "good\n", w.String(), "已交付部分保留，不写结尾符")
}

func TestRunInputTooLong(t *testing.T) {
	w := &memWriter{}
	set := baseSettings("in")
	set.MaxFragment = 4
	set.Overlong = OverlongError
	set.BatchWords = 1
	err := Run(context.Background(), Components{
		Reader:     &memReader{inputs: map[string]string{"in": "ok\nabcdefgh\n"}},
		Translator: echo,
		Writer:     w,
	}, set, nil)
	assert.ErrorIs(t, err, contract.ErrInputTooLong)
	assert.Equal(t, "ok\n", w.String(), "中止时交付已完成的前缀")
}

// 中断：停止读取后续输入，已提交的批全部完成并按序写出。
func TestRunInterruptDrainsSubmitted(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w := &memWriter{}
	set := baseSettings("a", "b")
	set.BatchWords = 1
	err := Run(ctx, Components{
		Reader: &memReader{
			inputs: map[string]string{"a": "first\n", "b": "second\n"},
			after:  func(int) { cancel() },
		},
		Translator: echo,
		Writer:     w,
	}, set, nil)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, "first\n"+Terminator, w.String())
}

func TestRunWriterFailure(t *testing.T) {
	werr := errors.New("read-only filesystem")
	err := Run(context.Background(), Components{
		Reader:     &memReader{inputs: map[string]string{"in": "x\n"}},
		Translator: echo,
		Writer:     &memWriter{err: werr},
	}, baseSettings("in"), nil)
	assert.ErrorIs(t, err, werr)
}

func TestRunSanity(t *testing.T) {
	ctx := context.Background()
	comps := Components{Reader: &memReader{}, Translator: echo, Writer: &memWriter{}}
	assert.Error(t, Run(ctx, Components{}, baseSettings("in"), nil))
	assert.Error(t, Run(ctx, comps, baseSettings(), nil))

	set := baseSettings("in")
	set.Output = "original"
	assert.ErrorIs(t, Run(ctx, comps, set, nil), contract.ErrConfiguration)
	set = baseSettings("in")
	set.Overlong = "truncate"
	assert.ErrorIs(t, Run(ctx, comps, set, nil), contract.ErrConfiguration)
}

// 运行期间记录结构化日志与指标。
func TestRunEmitsDiagnostics(t *testing.T) {
	diag.ResetMetrics()
	var logs strings.Builder
	logger := diag.NewLoggerTo(&logs, "corr-1", "debug")
	set := baseSettings("in")
	set.BatchWords = 1
	require.NoError(t, Run(context.Background(), Components{
		Reader:     &memReader{inputs: map[string]string{"in": "a\nb\n"}},
		Translator: echo,
		Writer:     &memWriter{},
	}, set, logger))
	assert.Contains(t, logs.String(), `"comp":"scheduler"`)
	assert.Contains(t, logs.String(), `"corr_id":"corr-1"`)
	assert.EqualValues(t, 3, diag.Value("op_total", "scheduler", "translate", "success"))
	assert.EqualValues(t, 1, diag.Value("op_total", "pipeline", "run", "success"))
}

// 读取失败时错误日志带上出错的输入。
func TestRunLogsSourceErrorWithInput(t *testing.T) {
	diag.ResetMetrics()
	var logs strings.Builder
	logger := diag.NewLoggerTo(&logs, "corr-2", "info")
	set := baseSettings("a", "long")
	set.MaxFragment = 3
	set.Overlong = OverlongError
	err := Run(context.Background(), Components{
		Reader:     &memReader{inputs: map[string]string{"a": "ok\n", "long": "abcdefgh\n"}},
		Translator: echo,
		Writer:     &memWriter{},
	}, set, logger)
	require.Error(t, err)
	var sourceLine string
	for _, ln := range strings.Split(logs.String(), "\n") {
		if strings.Contains(ln, `"comp":"source"`) && strings.Contains(ln, `"stage":"error"`) {
			sourceLine = ln
		}
	}
	require.NotEmpty(t, sourceLine)
	assert.Contains(t, sourceLine, `"input":"long"`)
}

// 运行结束后进度快照停止计时且提交数等于排空数。
func TestRunUpdatesProgress(t *testing.T) {
	diag.ResetMetrics()
	defer diag.ResetMetrics()
	set := baseSettings("in")
	set.BatchWords = 1
	err := Run(context.Background(), Components{
		Reader:     &memReader{inputs: map[string]string{"in": "a\nb\nc\n"}},
		Translator: echo,
		Writer:     &memWriter{},
	}, set, nil)
	require.NoError(t, err)
	p := diag.CurrentProgress()
	assert.False(t, p.Running)
	assert.Equal(t, "in", p.Input)
	assert.Equal(t, "echo", p.Translator)
	assert.Equal(t, int64(4), p.Submitted)
	assert.Equal(t, p.Submitted, p.Drained)
}
