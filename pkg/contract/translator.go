package contract

import "context"

// Translator: 单次同步翻译调用。实现必须可被多个 goroutine 并发调用。
// 失败直接返回错误，调度层不做重试。
type Translator interface {
	Translate(ctx context.Context, text string) (TranslationResult, error)
}

// TranslatorFunc 便于以函数充当 Translator（测试桩常用）。
type TranslatorFunc func(ctx context.Context, text string) (TranslationResult, error)

func (f TranslatorFunc) Translate(ctx context.Context, text string) (TranslationResult, error) {
	return f(ctx, text)
}
