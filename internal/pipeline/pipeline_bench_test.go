package pipeline

import (
	"context"
	"fmt"
	"io"
	"runtime"
	"strings"
	"testing"
	"time"

	"streamtrans/pkg/contract"
)

// delayTranslator 模拟固定延迟的翻译调用。
type delayTranslator struct{ delay time.Duration }

func (d delayTranslator) Translate(ctx context.Context, text string) (contract.TranslationResult, error) {
	if d.delay > 0 {
		select {
		case <-ctx.Done():
			return contract.TranslationResult{}, ctx.Err()
		case <-time.After(d.delay):
		}
	}
	return echoResult(text), nil
}

// discardWriter 丢弃所有输出，避免磁盘开销。
type discardWriter struct{}

func (discardWriter) Write(_ context.Context, _ contract.ArtifactID, r io.Reader) error {
	_, err := io.Copy(io.Discard, r)
	return err
}

// BenchmarkPipeline 测试完整流水线在不同并发度下的吞吐。
func BenchmarkPipeline(b *testing.B) {
	var sb strings.Builder
	for i := 0; i < 2000; i++ {
		fmt.Fprintf(&sb, "%04d the quick brown fox jumps over the lazy dog\n", i)
	}
	input := sb.String()
	for _, c := range []int{1, runtime.NumCPU(), runtime.NumCPU() * 32} {
		b.Run(fmt.Sprintf("W=%d", c), func(b *testing.B) {
			set := baseSettings("in")
			set.Workers = c
			set.BatchWords = 100
			comp := Components{
				Reader:     &memReader{inputs: map[string]string{"in": input}},
				Translator: delayTranslator{delay: 200 * time.Microsecond},
				Writer:     discardWriter{},
			}
			b.SetBytes(int64(len(input)))
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				if err := Run(context.Background(), comp, set, nil); err != nil {
					b.Fatalf("run: %v", err)
				}
			}
		})
	}
}
