// Package segjson 将 LLM 返回的 segments JSON 解码为 TranslationResult。
//
// 接受两种形状：{"segments":[{...}]} 或裸数组 [{...}]；允许外层 ```json 代码块。
// 每段必须含 translated；transliterated 可缺省（缺省即结果段无该字段）。
package segjson

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"streamtrans/pkg/contract"
)

// Options: Strict 为 true 时拒绝未知字段。
type Options struct {
	Strict bool `json:"strict"`
}

type decoder struct {
	strict bool
}

func New(raw json.RawMessage) (contract.Decoder, error) {
	var opts Options
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &opts); err != nil {
			return nil, fmt.Errorf("segjson options: %w", err)
		}
	}
	return &decoder{strict: opts.Strict}, nil
}

type item struct {
	Translated     *string `json:"translated"`
	Transliterated *string `json:"transliterated"`
}

type envelope struct {
	Segments []item `json:"segments"`
}

func (d *decoder) Decode(ctx context.Context, raw contract.Raw) (contract.TranslationResult, error) {
	if err := ctx.Err(); err != nil {
		return contract.TranslationResult{}, err
	}
	body := unfence(raw.Text)
	if body == "" {
		return contract.TranslationResult{}, fmt.Errorf("segjson: empty response: %w", contract.ErrResponseInvalid)
	}
	var items []item
	if body[0] == '[' {
		if err := d.unmarshal(body, &items); err != nil {
			return contract.TranslationResult{}, err
		}
	} else {
		var env envelope
		if err := d.unmarshal(body, &env); err != nil {
			return contract.TranslationResult{}, err
		}
		items = env.Segments
	}
	res := contract.TranslationResult{Segments: make([]contract.Segment, 0, len(items))}
	for i, it := range items {
		if it.Translated == nil {
			return contract.TranslationResult{}, fmt.Errorf("segjson: segment %d missing translated: %w", i, contract.ErrResponseInvalid)
		}
		seg := contract.Segment{contract.FieldTranslated: *it.Translated}
		if it.Transliterated != nil {
			seg[contract.FieldTransliterated] = *it.Transliterated
		}
		res.Segments = append(res.Segments, seg)
	}
	return res, nil
}

func (d *decoder) unmarshal(body string, v any) error {
	dec := json.NewDecoder(bytes.NewReader([]byte(body)))
	if d.strict {
		dec.DisallowUnknownFields()
	}
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("segjson: %v: %w", err, contract.ErrResponseInvalid)
	}
	if dec.More() {
		return fmt.Errorf("segjson: trailing data: %w", contract.ErrResponseInvalid)
	}
	return nil
}

// unfence 去除首尾空白与 Markdown 代码块围栏。
func unfence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	} else {
		return ""
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

var _ contract.Decoder = (*decoder)(nil)
