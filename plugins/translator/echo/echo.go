// Package echo 提供原样回显的 Translator：translated 与 transliterated 均为输入文本。
package echo

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"streamtrans/pkg/contract"
)

// Options: SplitLines 为 true 时按行（保留行尾换行）拆为多段。
type Options struct {
	SplitLines bool `json:"split_lines"`
}

type Translator struct {
	splitLines bool
}

func New(raw json.RawMessage) (contract.Translator, error) {
	var o Options
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &o); err != nil {
			return nil, fmt.Errorf("echo options: %w", err)
		}
	}
	return &Translator{splitLines: o.SplitLines}, nil
}

func (t *Translator) Translate(ctx context.Context, text string) (contract.TranslationResult, error) {
	if err := ctx.Err(); err != nil {
		return contract.TranslationResult{}, err
	}
	if !t.splitLines {
		return contract.TranslationResult{Segments: []contract.Segment{seg(text)}}, nil
	}
	var res contract.TranslationResult
	for _, line := range strings.SplitAfter(text, "\n") {
		if line != "" {
			res.Segments = append(res.Segments, seg(line))
		}
	}
	return res, nil
}

func seg(s string) contract.Segment {
	return contract.Segment{contract.FieldTranslated: s, contract.FieldTransliterated: s}
}
