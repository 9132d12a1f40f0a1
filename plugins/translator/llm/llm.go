// Package llm 将 PromptBuilder、LLMClient 与 Decoder 组合为 Translator。
package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"streamtrans/pkg/contract"
)

// Translator: 单次 Translate 依次执行 Build→Invoke→Decode，不做重试。
type Translator struct {
	pb     contract.PromptBuilder
	client contract.LLMClient
	dec    contract.Decoder
}

func New(pb contract.PromptBuilder, client contract.LLMClient, dec contract.Decoder) (*Translator, error) {
	if pb == nil || client == nil || dec == nil {
		return nil, errors.New("llm translator: prompt builder, client and decoder are required")
	}
	return &Translator{pb: pb, client: client, dec: dec}, nil
}

// Translate: 纯空白文本不调用模型，原样作为单段返回。
func (t *Translator) Translate(ctx context.Context, text string) (contract.TranslationResult, error) {
	if strings.TrimSpace(text) == "" {
		return contract.TranslationResult{Segments: []contract.Segment{{
			contract.FieldTranslated:     text,
			contract.FieldTransliterated: text,
		}}}, nil
	}
	b := contract.Batch{Text: text, Words: len(strings.Fields(text))}
	p, err := t.pb.Build(ctx, b)
	if err != nil {
		return contract.TranslationResult{}, fmt.Errorf("prompt: %w", err)
	}
	raw, err := t.client.Invoke(ctx, b, p)
	if err != nil {
		return contract.TranslationResult{}, err
	}
	res, err := t.dec.Decode(ctx, raw)
	if err != nil {
		return contract.TranslationResult{}, fmt.Errorf("decode: %w", err)
	}
	return res, nil
}

// OverheadTokens 返回与批无关的提示词开销。
func (t *Translator) OverheadTokens(estimate contract.TokenEstimator) int {
	return t.pb.EstimateOverheadTokens(estimate)
}

var _ contract.Translator = (*Translator)(nil)
