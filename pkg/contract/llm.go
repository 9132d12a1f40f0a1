package contract

import "context"

// Raw: LLM 客户端返回的原始文本载荷。
// 约束：原样返回，不做清洗/截断/归一化。
type Raw struct {
	Text string
}

// LLMClient: 以 Batch+Prompt 为单位与大模型交互，返回原始文本 Raw。
// 单次调用、同步返回；应尊重 ctx 取消/超时并及时释放资源。
type LLMClient interface {
	Invoke(ctx context.Context, b Batch, p Prompt) (Raw, error)
}

// Decoder: 将 Raw 解码为 TranslationResult；字段名与回退策略由实现自决。
type Decoder interface {
	Decode(ctx context.Context, raw Raw) (TranslationResult, error)
}
