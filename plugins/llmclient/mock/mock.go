// Package mock 提供无网络的 LLMClient，按行回显批文本为 segments JSON，供联调与测试使用。
package mock

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"streamtrans/pkg/contract"
)

// Options: 调试配置（均可选）。
type Options struct {
	Prefix string `json:"prefix"` // 译文前缀，默认 "MOCK: "；空白行不加前缀
	// APIKey 仅参与限流分组，不发起任何请求。
	APIKey string `json:"api_key"`
	// ResponseMode:
	//  - "segments"（默认）: {"segments":[{"translated","transliterated"}...]}
	//  - "array": 同上但为裸数组
	//  - "fenced": segments 对象包在 ```json 代码块中
	//  - "invalid": 返回不可解析文本
	ResponseMode string `json:"response_mode,omitempty"`
}

type Client struct {
	prefix string
	mode   string
}

type segment struct {
	Translated     string `json:"translated"`
	Transliterated string `json:"transliterated"`
}

func New(raw json.RawMessage) (contract.LLMClient, error) {
	o := Options{Prefix: "MOCK: "}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &o); err != nil {
			return nil, fmt.Errorf("mock options: %w", err)
		}
	}
	mode := strings.TrimSpace(o.ResponseMode)
	switch mode {
	case "":
		mode = "segments"
	case "segments", "array", "fenced", "invalid":
	default:
		return nil, &contract.ConfigurationError{Field: "mock.response_mode", Reason: "unknown " + mode}
	}
	return &Client{prefix: o.Prefix, mode: mode}, nil
}

// Invoke 按行（保留行尾换行）生成段；译写字段为原文大写。
func (c *Client) Invoke(ctx context.Context, b contract.Batch, _ contract.Prompt) (contract.Raw, error) {
	if err := ctx.Err(); err != nil {
		return contract.Raw{}, err
	}
	if c.mode == "invalid" {
		return contract.Raw{Text: "not json"}, nil
	}
	segs := make([]segment, 0, strings.Count(b.Text, "\n")+1)
	for _, line := range strings.SplitAfter(b.Text, "\n") {
		if line == "" {
			continue
		}
		s := segment{Translated: line, Transliterated: strings.ToUpper(line)}
		if strings.TrimSpace(line) != "" {
			s.Translated = c.prefix + line
		}
		segs = append(segs, s)
	}
	var (
		bts []byte
		err error
	)
	if c.mode == "array" {
		bts, err = json.Marshal(segs)
	} else {
		bts, err = json.Marshal(struct {
			Segments []segment `json:"segments"`
		}{segs})
	}
	if err != nil {
		return contract.Raw{}, err
	}
	if c.mode == "fenced" {
		return contract.Raw{Text: "```json\n" + string(bts) + "\n```"}, nil
	}
	return contract.Raw{Text: string(bts)}, nil
}
