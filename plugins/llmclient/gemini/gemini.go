// Package gemini 实现 Google Generative Language API（generateContent）的 LLMClient。
package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"

	"streamtrans/pkg/contract"
	"streamtrans/plugins/internal/upstream"
)

const vendor = "gemini"

// Options: Gemini 最小必需配置。
type Options struct {
	BaseURL        string `json:"base_url"`    // https://generativelanguage.googleapis.com
	Model          string `json:"model"`       // 默认 gemini-2.5-flash
	APIKeyEnv      string `json:"api_key_env"` // 默认 GOOGLE_API_KEY
	APIKey         string `json:"api_key"`
	TimeoutSeconds int    `json:"timeout_seconds,omitempty"`
	// 兼容网关：
	EndpointPath     string            `json:"endpoint_path"`    // 支持 {model} 占位；可为完整 URL
	APIKeyInQuery    *bool             `json:"api_key_in_query"` // 默认 true；false 时走 x-goog-api-key 头
	ExtraHeaders     map[string]string `json:"extra_headers"`
	ExtraQuery       map[string]string `json:"extra_query"`
	ResponseMIMEType string            `json:"response_mime_type,omitempty"`
}

func (o *Options) defaults() {
	if o.BaseURL == "" {
		o.BaseURL = "https://generativelanguage.googleapis.com"
	}
	if o.Model == "" {
		o.Model = "gemini-2.5-flash"
	}
	if o.APIKeyEnv == "" {
		o.APIKeyEnv = "GOOGLE_API_KEY"
	}
	if o.EndpointPath == "" {
		o.EndpointPath = "/v1beta/models/{model}:generateContent"
	}
	if o.APIKeyInQuery == nil {
		t := true
		o.APIKeyInQuery = &t
	}
	if o.ResponseMIMEType == "" {
		o.ResponseMIMEType = "application/json"
	}
}

type Client struct {
	endpoint *url.URL
	apiKey   string
	inQuery  bool
	extraH   map[string]string
	respMIME string
	do       upstream.Doer
}

func New(raw json.RawMessage) (contract.LLMClient, error) {
	var opts Options
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &opts); err != nil {
			return nil, fmt.Errorf("gemini options: %w", err)
		}
	}
	opts.defaults()
	key := opts.APIKey
	if key == "" {
		key = os.Getenv(opts.APIKeyEnv)
	}
	if key == "" {
		return nil, &contract.ConfigurationError{Field: "gemini.api_key", Reason: "missing (set " + opts.APIKeyEnv + ")"}
	}
	path := strings.ReplaceAll(opts.EndpointPath, "{model}", url.PathEscape(opts.Model))
	u, err := url.Parse(upstream.JoinURL(opts.BaseURL, path))
	if err != nil {
		return nil, &contract.ConfigurationError{Field: "gemini.endpoint_path", Reason: err.Error()}
	}
	q := u.Query()
	for k, v := range opts.ExtraQuery {
		if k != "" {
			q.Set(k, v)
		}
	}
	if *opts.APIKeyInQuery {
		q.Set("key", key)
	}
	u.RawQuery = q.Encode()
	return &Client{
		endpoint: u,
		apiKey:   key,
		inQuery:  *opts.APIKeyInQuery,
		extraH:   opts.ExtraHeaders,
		respMIME: opts.ResponseMIMEType,
		do:       upstream.NewHTTPClient(opts.TimeoutSeconds).Do,
	}, nil
}

type part struct {
	Text string `json:"text"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type generationConfig struct {
	ResponseMIMEType string          `json:"response_mime_type,omitempty"`
	ResponseSchema   json.RawMessage `json:"response_schema,omitempty"`
}

type request struct {
	SystemInstruction *content          `json:"systemInstruction,omitempty"`
	Contents          []content         `json:"contents"`
	GenerationConfig  *generationConfig `json:"generationConfig,omitempty"`
}

type response struct {
	Candidates []struct {
		Content struct {
			Parts []part `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
}

// encode 将 system 消息并入 systemInstruction，其余角色映射为 user|model。
func (c *Client) encode(p contract.Prompt) ([]byte, error) {
	rest, schema := upstream.SplitSchema(p)
	var req request
	switch v := rest.(type) {
	case contract.TextPrompt:
		req.Contents = []content{{Role: "user", Parts: []part{{Text: string(v)}}}}
	case contract.ChatPrompt:
		for _, m := range v {
			role := strings.ToLower(strings.TrimSpace(m.Role))
			if role == "system" {
				if req.SystemInstruction == nil {
					req.SystemInstruction = &content{}
				}
				req.SystemInstruction.Parts = append(req.SystemInstruction.Parts, part{Text: m.Content})
				continue
			}
			req.Contents = append(req.Contents, content{Role: geminiRole(role), Parts: []part{{Text: m.Content}}})
		}
	default:
		return nil, fmt.Errorf("gemini: unsupported prompt %T: %w", p, contract.ErrInvalidInput)
	}
	if len(schema) > 0 {
		req.GenerationConfig = &generationConfig{ResponseMIMEType: c.respMIME, ResponseSchema: schema}
	}
	return json.Marshal(&req)
}

func geminiRole(r string) string {
	if r == "assistant" || r == "model" {
		return "model"
	}
	return "user"
}

func (c *Client) Invoke(ctx context.Context, _ contract.Batch, p contract.Prompt) (contract.Raw, error) {
	body, err := c.encode(p)
	if err != nil {
		return contract.Raw{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint.String(), bytes.NewReader(body))
	if err != nil {
		return contract.Raw{}, fmt.Errorf("gemini request: %v: %w", err, contract.ErrInvalidInput)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if !c.inQuery {
		req.Header.Set("x-goog-api-key", c.apiKey)
	}
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
	if len(out.Candidates) == 0 {
		return contract.Raw{}, fmt.Errorf("gemini: no candidates: %w", contract.ErrResponseInvalid)
	}
	var sb strings.Builder
	for _, pt := range out.Candidates[0].Content.Parts {
		sb.WriteString(pt.Text)
	}
	if sb.Len() == 0 {
		return contract.Raw{}, fmt.Errorf("gemini: empty candidate: %w", contract.ErrResponseInvalid)
	}
	return contract.Raw{Text: sb.String()}, nil
}
