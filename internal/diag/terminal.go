package diag

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// Terminal: 终端状态提示（非日志）。
// - 输出到提供的 io.Writer（建议 stderr，标准输出留给译文）。
// - TTY: 单行 \r 覆盖；非 TTY: 关键节点分行打印。
// - 并发安全；写失败后进入禁用态为 no-op。
type Terminal struct {
	w       io.Writer
	enabled bool
	isTTY   bool

	workers    int
	translator string
	inputs     int
	runStart   time.Time

	curInput  string
	submitted int64
	drained   int64
	errCount  int

	lastLen   int
	lastFlush time.Time

	mu sync.Mutex
}

var (
	termMu sync.RWMutex
	term   *Terminal
)

// SetTerminal 设置全局终端指针（nil 可清除）。
func SetTerminal(t *Terminal) { termMu.Lock(); term = t; termMu.Unlock() }

// GetTerminal 返回全局终端（可能为 nil）。
func GetTerminal() *Terminal { termMu.RLock(); defer termMu.RUnlock(); return term }

// NewTerminal 构造终端提示器；enabled=false 时总是 no-op。
func NewTerminal(w io.Writer, enabled bool) *Terminal {
	if w == nil {
		w = os.Stderr
	}
	t := &Terminal{w: w, enabled: enabled}
	// CI 环境视为非 TTY
	if os.Getenv("CI") == "" {
		if f, ok := w.(*os.File); ok {
			if fi, err := f.Stat(); err == nil {
				t.isTTY = fi.Mode()&os.ModeCharDevice != 0
			}
		}
	}
	return t
}

// RunStart 记录运行上下文。
func (t *Terminal) RunStart(workers int, translator string) {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.enabled {
		return
	}
	t.workers = workers
	t.translator = translator
	t.inputs = 0
	t.submitted, t.drained, t.errCount = 0, 0, 0
	t.runStart = time.Now()
	t.println(fmt.Sprintf("[run] 并发=%d | translator=%s", workers, safe(translator)))
}

// InputStart 标记当前输入。
func (t *Terminal) InputStart(id string) {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.enabled {
		return
	}
	t.inputs++
	t.curInput = shortenBase(id, 48)
	if !t.isTTY {
		t.println(fmt.Sprintf("[input] %s", t.curInput))
	}
}

// Progress 周期性进度（≥100ms 节流，仅 TTY）。
func (t *Terminal) Progress(submitted, drained int64, errs int) {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.enabled {
		return
	}
	t.submitted, t.drained, t.errCount = submitted, drained, errs
	if !t.isTTY {
		return
	}
	now := time.Now()
	if now.Sub(t.lastFlush) < 100*time.Millisecond {
		return
	}
	t.lastFlush = now
	t.printInline(fmt.Sprintf("[batch] %s | 已提交 %d | 已输出 %d | 错误 %d | 并发 %d | 用时 %s",
		t.curInput, t.submitted, t.drained, t.errCount, t.workers, formatDur(time.Since(t.runStart))))
}

// RunFinish 结束总览。
func (t *Terminal) RunFinish(ok bool, dur time.Duration) {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.enabled {
		return
	}
	if t.isTTY && t.lastLen > 0 {
		t.printInline("")
	}
	tag := "ok"
	if !ok {
		tag = "fail"
	}
	t.println(fmt.Sprintf("[%s] 输入 %d | 批次 %d/%d | 总用时 %s", tag, t.inputs, t.drained, t.submitted, formatDur(dur)))
}

func (t *Terminal) println(s string) {
	if _, err := io.WriteString(t.w, s+"\n"); err != nil {
		t.enabled = false
	}
	t.lastLen = 0
}

func (t *Terminal) printInline(s string) {
	// 新行比旧行短时以空格覆盖残留
	pad := 0
	if l := visLen(s); t.lastLen > l {
		pad = t.lastLen - l
	}
	var b strings.Builder
	b.WriteByte('\r')
	b.WriteString(s)
	b.WriteString(strings.Repeat(" ", pad))
	if _, err := io.WriteString(t.w, b.String()); err != nil {
		t.enabled = false
		return
	}
	t.lastLen = visLen(s)
}

// shortenBase 取基名并按可见宽度截断（尾部省略号）。
func shortenBase(s string, max int) string {
	base := filepath.Base(strings.TrimSpace(s))
	if max <= 0 || base == "" || base == "." {
		return ""
	}
	rs := []rune(base)
	if len(rs) <= max {
		return base
	}
	return string(rs[:max-1]) + "…"
}

func visLen(s string) int { return len([]rune(s)) }

func safe(s string) string {
	s = strings.ReplaceAll(s, "\n", " ")
	return strings.ReplaceAll(s, "\r", " ")
}

func formatDur(d time.Duration) string {
	if d < time.Second {
		ms := d.Milliseconds()
		if ms < 0 {
			ms = 0
		}
		return fmt.Sprintf("%dms", ms)
	}
	return fmt.Sprintf("%.1fs", float64(d.Milliseconds())/1000.0)
}
