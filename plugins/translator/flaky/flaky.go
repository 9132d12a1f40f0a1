// Package flaky 提供可注入失败的 Translator，用于验证失败传播与部分输出语义。
package flaky

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"streamtrans/pkg/contract"
)

// Options: 失败注入规则（任一命中即失败），成功时按原文回显。
type Options struct {
	FailOn    []int64 `json:"fail_on"`    // 第 N 次调用失败（从 1 计）
	FailMatch string  `json:"fail_match"` // 文本包含该子串时失败
	DelayMS   int     `json:"delay_ms"`   // 每次调用的模拟耗时
	// LogPath: 调试用，逐次追加 "<n> ok|fail"。
	LogPath string `json:"log_path,omitempty"`
}

type Translator struct {
	failOn  map[int64]struct{}
	match   string
	delay   time.Duration
	logPath string
	count   atomic.Int64
}

func New(raw json.RawMessage) (contract.Translator, error) {
	var o Options
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &o); err != nil {
			return nil, fmt.Errorf("flaky options: %w", err)
		}
	}
	t := &Translator{
		failOn:  make(map[int64]struct{}, len(o.FailOn)),
		match:   o.FailMatch,
		delay:   time.Duration(o.DelayMS) * time.Millisecond,
		logPath: o.LogPath,
	}
	for _, n := range o.FailOn {
		t.failOn[n] = struct{}{}
	}
	return t, nil
}

// Calls 返回已发生的调用次数。
func (t *Translator) Calls() int64 { return t.count.Load() }

func (t *Translator) Translate(ctx context.Context, text string) (contract.TranslationResult, error) {
	n := t.count.Add(1)
	if t.delay > 0 {
		select {
		case <-time.After(t.delay):
		case <-ctx.Done():
			return contract.TranslationResult{}, ctx.Err()
		}
	}
	_, hit := t.failOn[n]
	if !hit && t.match != "" && strings.Contains(text, t.match) {
		hit = true
	}
	if hit {
		t.log(fmt.Sprintf("%d fail", n))
		return contract.TranslationResult{}, fmt.Errorf("flaky: injected failure on call %d: %w", n, contract.ErrRateLimited)
	}
	t.log(fmt.Sprintf("%d ok", n))
	return contract.TranslationResult{Segments: []contract.Segment{{
		contract.FieldTranslated:     text,
		contract.FieldTransliterated: text,
	}}}, nil
}

func (t *Translator) log(s string) {
	if t.logPath == "" {
		return
	}
	f, err := os.OpenFile(t.logPath, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return
	}
	defer f.Close()
	_, _ = f.WriteString(s + "\n")
}
