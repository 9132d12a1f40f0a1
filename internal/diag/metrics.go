package diag

import (
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// 进程内指标（计数器，无外部导出依赖）：
// - op_total{comp,stage,result}
// - error_total{comp,code}
// - op_duration_ms{comp,stage}（累计毫秒与样本数）
// 通过 Snapshot 读取，statusz 以 JSON 暴露。

type counter struct{ v atomic.Int64 }

var counters sync.Map // key -> *counter

func add(key string, n int64) {
	c, ok := counters.Load(key)
	if !ok {
		c, _ = counters.LoadOrStore(key, &counter{})
	}
	c.(*counter).v.Add(n)
}

func key(name string, labels ...string) string {
	return name + "{" + strings.Join(labels, ",") + "}"
}

// IncOp 累加操作计数（result=success|error）。
func IncOp(comp, stage, result string) {
	add(key("op_total", comp, stage, result), 1)
}

// IncError 按分类累加错误计数。
func IncError(comp, code string) {
	add(key("error_total", comp, code), 1)
}

// ObserveDuration 记录阶段耗时（毫秒）。
func ObserveDuration(comp, stage string, durMS int64) {
	add(key("op_duration_ms_sum", comp, stage), durMS)
	add(key("op_duration_ms_count", comp, stage), 1)
}

// Sample 为单个指标读数。
type Sample struct {
	Name  string `json:"name"`
	Value int64  `json:"value"`
}

// Snapshot 返回按名称排序的全部指标读数。
func Snapshot() []Sample {
	var out []Sample
	counters.Range(func(k, v any) bool {
		out = append(out, Sample{Name: k.(string), Value: v.(*counter).v.Load()})
		return true
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Value 返回单个指标读数（不存在为 0）。
func Value(name string, labels ...string) int64 {
	if c, ok := counters.Load(key(name, labels...)); ok {
		return c.(*counter).v.Load()
	}
	return 0
}

// ResetMetrics 清空全部指标与进度（测试用）。
func ResetMetrics() {
	counters.Range(func(k, _ any) bool {
		counters.Delete(k)
		return true
	})
	UpdateProgress(func(p *Progress) { *p = Progress{} })
}

// Progress 为当前运行的进度快照（供 statusz /progress 读取）。
type Progress struct {
	Running    bool      `json:"running"`
	Translator string    `json:"translator,omitempty"`
	Input      string    `json:"input,omitempty"`
	Submitted  int64     `json:"submitted"`
	Drained    int64     `json:"drained"`
	Errors     int       `json:"errors"`
	StartedAt  time.Time `json:"started_at,omitempty"`
}

var (
	progMu sync.RWMutex
	prog   Progress
)

// UpdateProgress 在锁内修改进度快照。
func UpdateProgress(fn func(p *Progress)) {
	progMu.Lock()
	fn(&prog)
	progMu.Unlock()
}

// CurrentProgress 返回进度快照的副本。
func CurrentProgress() Progress {
	progMu.RLock()
	defer progMu.RUnlock()
	return prog
}
