package pipeline

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"streamtrans/internal/diag"
	"streamtrans/pkg/contract"
)

// Batcher 累积片段，直到空白分词数达到阈值后整批交给调度器。
// 文本缓冲与计数器同步更新；每个片段恰好进入一个批。
type Batcher struct {
	threshold int
	next      contract.BatchConsumer
	logger    *diag.Logger

	text  strings.Builder
	words int
	frags int
	sent  int64
	done  bool
}

// NewBatcher 构造 Batcher；threshold<=0 时取默认 1200。
func NewBatcher(threshold int, next contract.BatchConsumer, logger *diag.Logger) *Batcher {
	if threshold <= 0 {
		threshold = DefaultBatchWords
	}
	return &Batcher{threshold: threshold, next: next, logger: logger}
}

// Push 合并一个片段；合并后计数达到阈值即刷出。
func (b *Batcher) Push(ctx context.Context, f contract.Fragment) error {
	if b.done {
		return errors.New("batcher: push after close")
	}
	b.text.WriteString(string(f))
	b.words += len(strings.Fields(string(f)))
	b.frags++
	if b.words >= b.threshold {
		return b.flush(ctx)
	}
	return nil
}

func (b *Batcher) flush(ctx context.Context) error {
	batch := contract.Batch{Text: b.text.String(), Words: b.words}
	b.logger.DebugStart("batcher", "flush", "", strconv.FormatInt(b.sent+1, 10), map[string]string{
		"words":     strconv.Itoa(b.words),
		"fragments": strconv.Itoa(b.frags),
	})
	b.text = strings.Builder{}
	b.words, b.frags = 0, 0
	b.sent++
	return b.next.Submit(ctx, batch)
}

// Close 刷出剩余批（即使为空）恰好一次，然后关闭调度器。
func (b *Batcher) Close(ctx context.Context) error {
	if b.done {
		return nil
	}
	b.done = true
	if err := b.flush(ctx); err != nil {
		return errors.Join(err, b.next.Abort(ctx))
	}
	return b.next.Close(ctx)
}

// Abort 丢弃未满的批并中止调度器。
func (b *Batcher) Abort(ctx context.Context) error {
	if b.done {
		return nil
	}
	b.done = true
	b.text = strings.Builder{}
	b.words, b.frags = 0, 0
	return b.next.Abort(ctx)
}
