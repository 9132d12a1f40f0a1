package diag

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Level 为日志级别。
type Level = zerolog.Level

const (
	Debug = zerolog.DebugLevel
	Info  = zerolog.InfoLevel
	Warn  = zerolog.WarnLevel
	Error = zerolog.ErrorLevel
)

// Logger 为结构化日志器：单行 JSON，默认写入 logs/ 下按大小轮转的文件。
// nil *Logger 合法且静默，便于测试与可选注入。
type Logger struct {
	zl   zerolog.Logger
	sink io.Closer
}

func init() {
	zerolog.TimeFieldFormat = time.RFC3339
	zerolog.TimestampFieldName = "ts"
}

// NewLogger 通过配置的 level 初始化，日志写入 logs/streamtrans-current.txt，10MiB 轮转。
func NewLogger(corrID, level string) *Logger {
	rf := NewRotatingFile("logs", 10*1024*1024)
	l := NewLoggerTo(fallbackWriter{rf}, corrID, level)
	l.sink = rf
	return l
}

// NewLoggerTo 将日志写入任意 io.Writer；写入经互斥串行化。
func NewLoggerTo(w io.Writer, corrID, level string) *Logger {
	zl := zerolog.New(zerolog.SyncWriter(w)).Level(parseLevel(level)).With().Timestamp().Str("corr_id", corrID).Logger()
	return &Logger{zl: zl}
}

// Close 释放底层文件句柄。
func (l *Logger) Close() error {
	if l == nil || l.sink == nil {
		return nil
	}
	return l.sink.Close()
}

func parseLevel(s string) Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return Debug
	case "warn", "warning":
		return Warn
	case "error":
		return Error
	default:
		return Info
	}
}

// Event 为标准事件结构。
type Event struct {
	Comp  string
	Stage string // start|finish|error
	Code  string
	DurMS int64
	Count int64
	Input string
	Batch string
	Msg   string
	KV    map[string]string
}

func (l *Logger) log(lv Level, ev Event) {
	if l == nil {
		return
	}
	e := l.zl.WithLevel(lv)
	if e == nil {
		return
	}
	e = e.Str("comp", ev.Comp).Str("stage", ev.Stage)
	if ev.Code != "" {
		e = e.Str("code", ev.Code)
	}
	if ev.DurMS > 0 {
		e = e.Int64("dur_ms", ev.DurMS)
	}
	if ev.Count > 0 {
		e = e.Int64("count", ev.Count)
	}
	if ev.Input != "" {
		e = e.Str("input", ev.Input)
	}
	if ev.Batch != "" {
		e = e.Str("batch_id", ev.Batch)
	}
	if len(ev.KV) > 0 {
		d := zerolog.Dict()
		for k, v := range ev.KV {
			d = d.Str(k, v)
		}
		e = e.Dict("kv", d)
	}
	e.Msg(ev.Msg)
}

// Start 记录 start 事件；返回计时器用于 Finish。
func (l *Logger) Start(comp, msg string) *Timer {
	l.log(Info, Event{Comp: comp, Stage: "start", Msg: msg})
	return &Timer{l: l, comp: comp, t0: time.Now()}
}

// StartWith 记录带 input/batch_id 的 start。
func (l *Logger) StartWith(comp, msg, input, batch string) *Timer {
	l.log(Info, Event{Comp: comp, Stage: "start", Input: input, Batch: batch, Msg: msg})
	return &Timer{l: l, comp: comp, input: input, batch: batch, t0: time.Now()}
}

// StartWithKV 同 StartWith，附带键值。
func (l *Logger) StartWithKV(comp, msg, input, batch string, kv map[string]string) *Timer {
	l.log(Info, Event{Comp: comp, Stage: "start", Input: input, Batch: batch, Msg: msg, KV: kv})
	return &Timer{l: l, comp: comp, input: input, batch: batch, t0: time.Now()}
}

// Error 记录 error 事件。
func (l *Logger) Error(comp, code, msg string, durSince *time.Time) {
	l.ErrorWithKV(comp, code, msg, durSince, "", "", nil)
}

// ErrorWith 支持 input/batch_id。
func (l *Logger) ErrorWith(comp, code, msg string, durSince *time.Time, input, batch string) {
	l.ErrorWithKV(comp, code, msg, durSince, input, batch, nil)
}

// ErrorWithKV 支持附带键值对（例如 HTTP 状态码、上游错误片段）。
func (l *Logger) ErrorWithKV(comp, code, msg string, durSince *time.Time, input, batch string, kv map[string]string) {
	var dur int64
	if durSince != nil {
		dur = time.Since(*durSince).Milliseconds()
	}
	l.log(Error, Event{Comp: comp, Stage: "error", Code: code, DurMS: dur, Msg: msg, Input: input, Batch: batch, KV: kv})
}

// Warn 记录不影响结果的异常（例如中断后转入有序收尾）。
func (l *Logger) Warn(comp, code, msg string) {
	l.log(Warn, Event{Comp: comp, Stage: "warn", Code: code, Msg: msg})
}

// InfoFinish 在已有起点的情况下记录 finish。
func (l *Logger) InfoFinish(comp, msg string, start time.Time, count int64) {
	l.log(Info, Event{Comp: comp, Stage: "finish", DurMS: time.Since(start).Milliseconds(), Count: count, Msg: msg})
}

// DebugStart 输出调试级别的 start 事件（仅 level=debug 时生效）。
func (l *Logger) DebugStart(comp, msg, input, batch string, kv map[string]string) {
	l.log(Debug, Event{Comp: comp, Stage: "start", Input: input, Batch: batch, Msg: msg, KV: kv})
}

// Timer 用于 start→finish 计时。
type Timer struct {
	l     *Logger
	comp  string
	input string
	batch string
	t0    time.Time
}

// Finish 记录 finish；可选 count。
func (t *Timer) Finish(msg string, count int64) {
	if t == nil || t.l == nil {
		return
	}
	t.l.log(Info, Event{Comp: t.comp, Stage: "finish", DurMS: time.Since(t.t0).Milliseconds(), Count: count, Input: t.input, Batch: t.batch, Msg: msg})
}

// fallbackWriter 在轮转文件写失败时退回 stderr。
type fallbackWriter struct{ rf *RotatingFile }

func (w fallbackWriter) Write(p []byte) (int, error) {
	if _, err := w.rf.Write(p); err != nil {
		_, _ = os.Stderr.Write(p)
	}
	return len(p), nil
}
