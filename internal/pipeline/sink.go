package pipeline

import (
	"bufio"
	"context"
	"fmt"
	"io"

	"streamtrans/pkg/contract"
)

// Terminator 为全部结果写完后追加的唯一结尾符。
const Terminator = "\n"

// Sink 将结果段中选定字段的文本写入输出流，段与段、结果与结果之间不加分隔。
// 每个结果写完即冲刷；正常关闭时追加一次 Terminator。
type Sink struct {
	w     *bufio.Writer
	field contract.Field
	n     int64
	done  bool
}

// NewSink 构造 Sink；field 为 translated 或 transliterated。
func NewSink(w io.Writer, field contract.Field) *Sink {
	return &Sink{w: bufio.NewWriter(w), field: field}
}

// Consume 写出一个结果。首段缺少所选字段时返回 ConfigurationError 且不写任何内容；
// 之后各段缺少该字段时跳过该段。零段结果不写任何内容。
func (s *Sink) Consume(_ context.Context, r contract.TranslationResult) error {
	if len(r.Segments) == 0 {
		return nil
	}
	if _, ok := r.Segments[0].Get(s.field); !ok {
		return &contract.ConfigurationError{Field: "output", Reason: fmt.Sprintf("result has no %q field", s.field)}
	}
	for _, seg := range r.Segments {
		if v, ok := seg.Get(s.field); ok {
			if _, err := s.w.WriteString(v); err != nil {
				return fmt.Errorf("sink write: %w", err)
			}
		}
	}
	s.n++
	if err := s.w.Flush(); err != nil {
		return fmt.Errorf("sink flush: %w", err)
	}
	return nil
}

// Written 返回已写出的结果数。
func (s *Sink) Written() int64 { return s.n }

// Close 写入结尾符并冲刷。
func (s *Sink) Close(context.Context) error {
	if s.done {
		return nil
	}
	s.done = true
	if _, err := s.w.WriteString(Terminator); err != nil {
		return fmt.Errorf("sink terminator: %w", err)
	}
	if err := s.w.Flush(); err != nil {
		return fmt.Errorf("sink flush: %w", err)
	}
	return nil
}

// Abort 仅冲刷已写内容，不写结尾符。
func (s *Sink) Abort(context.Context) error {
	if s.done {
		return nil
	}
	s.done = true
	if err := s.w.Flush(); err != nil {
		return fmt.Errorf("sink flush: %w", err)
	}
	return nil
}
