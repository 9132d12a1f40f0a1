// Package openai 实现 OpenAI Chat Completions 兼容的 LLMClient。
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"

	"streamtrans/pkg/contract"
	"streamtrans/plugins/internal/upstream"
)

const vendor = "openai"

// Options: 最小必需配置。
type Options struct {
	BaseURL        string   `json:"base_url"`    // 例如 https://api.openai.com/v1
	Model          string   `json:"model"`       // 为空则使用默认
	APIKeyEnv      string   `json:"api_key_env"` // 优先从环境变量读取
	APIKey         string   `json:"api_key"`     // 明文传入（仅测试用）
	TimeoutSeconds int      `json:"timeout_seconds"`
	Temperature    *float64 `json:"temperature,omitempty"`
	// 兼容服务（Azure/OpenRouter 等）：
	EndpointPath       string            `json:"endpoint_path"` // 覆盖 /chat/completions；可为完整 URL
	DisableDefaultAuth bool              `json:"disable_default_auth"`
	ExtraHeaders       map[string]string `json:"extra_headers"`
}

func (o *Options) defaults() {
	if o.BaseURL == "" {
		o.BaseURL = "https://api.openai.com/v1"
	}
	if o.Model == "" {
		o.Model = "gpt-4.1-mini"
	}
	if o.APIKeyEnv == "" {
		o.APIKeyEnv = "OPENAI_API_KEY"
	}
	if o.EndpointPath == "" {
		o.EndpointPath = "/chat/completions"
	}
}

type Client struct {
	url         string
	apiKey      string
	model       string
	temp        *float64
	extraH      map[string]string
	disableAuth bool
	do          upstream.Doer
}

// New 从原样 JSON 选项构造客户端。
func New(raw json.RawMessage) (contract.LLMClient, error) {
	var opts Options
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &opts); err != nil {
			return nil, fmt.Errorf("openai options: %w", err)
		}
	}
	opts.defaults()
	key := opts.APIKey
	if key == "" {
		key = os.Getenv(opts.APIKeyEnv)
	}
	if key == "" && !opts.DisableDefaultAuth {
		return nil, &contract.ConfigurationError{Field: "openai.api_key", Reason: "missing (set " + opts.APIKeyEnv + ")"}
	}
	return &Client{
		url:         upstream.JoinURL(opts.BaseURL, opts.EndpointPath),
		apiKey:      key,
		model:       opts.Model,
		temp:        opts.Temperature,
		extraH:      opts.ExtraHeaders,
		disableAuth: opts.DisableDefaultAuth,
		do:          upstream.NewHTTPClient(opts.TimeoutSeconds).Do,
	}, nil
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responseFormat struct {
	Type       string      `json:"type"`
	JSONSchema *jsonSchema `json:"json_schema,omitempty"`
}

type jsonSchema struct {
	Name   string          `json:"name"`
	Schema json.RawMessage `json:"schema"`
	Strict bool            `json:"strict,omitempty"`
}

type request struct {
	Model          string          `json:"model"`
	Messages       []message       `json:"messages"`
	Temperature    *float64        `json:"temperature,omitempty"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type response struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// encode 构造请求体；prompt 中携带 schema 时启用 json_schema 响应格式。
func (c *Client) encode(p contract.Prompt) ([]byte, error) {
	rest, schema := upstream.SplitSchema(p)
	req := request{Model: c.model, Temperature: c.temp}
	switch v := rest.(type) {
	case contract.TextPrompt:
		req.Messages = []message{{Role: "user", Content: string(v)}}
	case contract.ChatPrompt:
		for _, m := range v {
			req.Messages = append(req.Messages, message{Role: m.Role, Content: m.Content})
		}
	default:
		return nil, fmt.Errorf("openai: unsupported prompt %T: %w", p, contract.ErrInvalidInput)
	}
	if len(schema) > 0 {
		req.ResponseFormat = &responseFormat{Type: "json_schema", JSONSchema: &jsonSchema{Name: "segments", Schema: schema, Strict: true}}
	}
	return json.Marshal(&req)
}

// Invoke: 单次调用，同步返回首个 choice 的内容。
func (c *Client) Invoke(ctx context.Context, _ contract.Batch, p contract.Prompt) (contract.Raw, error) {
	body, err := c.encode(p)
	if err != nil {
		return contract.Raw{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return contract.Raw{}, fmt.Errorf("openai request: %v: %w", err, contract.ErrInvalidInput)
	}
	if !c.disableAuth {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	for k, v := range c.extraH {
		if k != "" {
			req.Header.Set(k, v)
		}
	}
	resp, err := upstream.Do(ctx, vendor, c.do, req)
	if err != nil {
		return contract.Raw{}, err
	}
	defer resp.Body.Close()

	var out response
	if err := upstream.DecodeJSON(vendor, resp.Body, &out); err != nil {
		return contract.Raw{}, err
	}
	if len(out.Choices) == 0 || out.Choices[0].Message.Content == "" {
		return contract.Raw{}, fmt.Errorf("openai: empty choices: %w", contract.ErrResponseInvalid)
	}
	return contract.Raw{Text: out.Choices[0].Message.Content}, nil
}
