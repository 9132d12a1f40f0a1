// Package upstream 汇集各 HTTP 翻译/LLM 客户端共用的请求与错误映射。
package upstream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"streamtrans/pkg/contract"
)

// Error 为非 2xx 上游响应。实现 net.Error 与 contract.UpstreamError：
// 408/5xx 归为网络类，429 解包为 ErrRateLimited，其余 4xx 解包为 ErrInvalidInput。
type Error struct {
	Vendor string
	Status int
	Msg    string
	cause  error
}

func (e *Error) Error() string {
	if e.Msg == "" {
		return fmt.Sprintf("%s upstream %d", e.Vendor, e.Status)
	}
	return fmt.Sprintf("%s upstream %d: %s", e.Vendor, e.Status, e.Msg)
}
func (e *Error) Unwrap() error           { return e.cause }
func (e *Error) Timeout() bool           { return e.Status == http.StatusRequestTimeout }
func (e *Error) Temporary() bool         { return e.Status/100 == 5 }
func (e *Error) UpstreamStatus() int     { return e.Status }
func (e *Error) UpstreamMessage() string { return e.Msg }

var _ contract.UpstreamError = (*Error)(nil)

// Check 将非 2xx 响应映射为 *Error（读取至多 4KiB 响应体辅助定位）；2xx 返回 nil。
func Check(vendor string, resp *http.Response) error {
	if resp.StatusCode/100 == 2 {
		return nil
	}
	slurp, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
	e := &Error{Vendor: vendor, Status: resp.StatusCode, Msg: strings.TrimSpace(string(slurp))}
	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		e.cause = contract.ErrRateLimited
	case resp.StatusCode == http.StatusRequestTimeout || resp.StatusCode/100 == 5:
	default:
		e.cause = contract.ErrInvalidInput
	}
	return e
}

// Doer 执行 HTTP 请求（*http.Client.Do 或测试桩）。
type Doer func(*http.Request) (*http.Response, error)

// Do 发送请求并做状态码映射；ctx 结束时返回 ctx.Err()。调用方负责关闭返回的 Body。
func Do(ctx context.Context, vendor string, do Doer, req *http.Request) (*http.Response, error) {
	resp, err := do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			if cerr := ctx.Err(); cerr != nil {
				return nil, cerr
			}
		}
		return nil, err
	}
	if err := Check(vendor, resp); err != nil {
		resp.Body.Close()
		return nil, err
	}
	return resp, nil
}

// DecodeJSON 解码响应体；失败归为 ErrResponseInvalid。
func DecodeJSON(vendor string, r io.Reader, v any) error {
	if err := json.NewDecoder(r).Decode(v); err != nil {
		return fmt.Errorf("%s decode: %v: %w", vendor, err, contract.ErrResponseInvalid)
	}
	return nil
}

// NewHTTPClient 返回带超时的客户端；seconds<=0 时取 60 秒。
func NewHTTPClient(seconds int) *http.Client {
	if seconds <= 0 {
		seconds = 60
	}
	return &http.Client{Timeout: time.Duration(seconds) * time.Second}
}

// JoinURL 拼接 base 与 path；path 本身为完整 URL 时原样返回。
func JoinURL(base, path string) string {
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path
	}
	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(path, "/")
}

// SplitSchema 从 ChatPrompt 中取出 role=json_schema 的消息作为 JSON Schema，并返回其余消息。
// 内容不是合法 JSON 时视为无 schema。
func SplitSchema(p contract.Prompt) (contract.Prompt, json.RawMessage) {
	cp, ok := p.(contract.ChatPrompt)
	if !ok {
		return p, nil
	}
	out := make(contract.ChatPrompt, 0, len(cp))
	var schema json.RawMessage
	for _, m := range cp {
		if strings.EqualFold(strings.TrimSpace(m.Role), "json_schema") {
			if json.Valid([]byte(m.Content)) {
				schema = json.RawMessage(m.Content)
			}
			continue
		}
		out = append(out, m)
	}
	return out, schema
}
