package contract

import (
	"errors"
	"fmt"
)

// 最小错误分类（用于上层策略判定与诊断码映射）。
var (
	// ErrInputTooLong: 输入行中存在超过片段上限且无空白可切的连续文本。
	ErrInputTooLong = errors.New("input too long")
	// ErrConfiguration: 配置与实际数据形状不符（例如所选输出字段在结果中不存在）。
	ErrConfiguration = errors.New("configuration error")
	// ErrTranslation: 某个翻译任务失败。
	ErrTranslation = errors.New("translation failed")

	ErrRateLimited     = errors.New("rate limited")
	ErrResponseInvalid = errors.New("response invalid")
	ErrInvalidInput    = errors.New("invalid input")
	// ErrPathInvalid: 目标标识映射为无效/越界路径（例如绝对路径或 '..' 逃逸）。
	ErrPathInvalid = errors.New("path invalid")
	// ErrBudgetExceeded: 预算或配额不足（如单请求 token 上限）。
	ErrBudgetExceeded = errors.New("budget exceeded")
)

// InputTooLongError 描述无法切分的超长文本位置。
type InputTooLongError struct {
	Line   int // 1 起
	Length int // 剩余文本码点数
	Limit  int
}

func (e *InputTooLongError) Error() string {
	return fmt.Sprintf("input too long: line %d has %d characters without whitespace within limit %d", e.Line, e.Length, e.Limit)
}

func (e *InputTooLongError) Unwrap() error { return ErrInputTooLong }

// ConfigurationError 标识配置项与数据不一致。
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	if e.Field == "" {
		return "configuration error: " + e.Reason
	}
	return fmt.Sprintf("configuration error: %s: %s", e.Field, e.Reason)
}

func (e *ConfigurationError) Unwrap() error { return ErrConfiguration }

// TranslationError 携带失败任务的序号与原因。
type TranslationError struct {
	Seq  int64
	Text string
	Err  error
}

func (e *TranslationError) Error() string {
	return fmt.Sprintf("translation job %d failed: %v", e.Seq, e.Err)
}

// Unwrap 同时暴露 ErrTranslation 与底层原因。
func (e *TranslationError) Unwrap() []error { return []error{ErrTranslation, e.Err} }
