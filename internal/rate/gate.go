package rate

import (
	"context"
	"fmt"
	"sync"
	"time"

	"streamtrans/pkg/contract"
)

// Key 为限流分组键（翻译服务名，或服务名+密钥摘要）。
type Key string

// Limits 为每分组的限额。0 表示该维度不启用。
type Limits struct {
	RPM             int // 每分钟请求数
	TPM             int // 每分钟估算 token 数
	MaxTokensPerReq int // 单次请求 token 上限
}

func (l Limits) zero() bool { return l.RPM <= 0 && l.TPM <= 0 && l.MaxTokensPerReq <= 0 }

// Gate 在每次翻译调用前放行请求（令牌桶，并发安全）。
// 仅做节流，不做重试；未配置的分组不限额。nil *Gate 总是放行。
type Gate struct {
	clk func() time.Time

	mu sync.Mutex
	m  map[Key]*entry
}

type entry struct {
	lim Limits
	req bucket
	tok bucket
}

// New 从静态配置构造闸门；clk 为空则使用 time.Now。
func New(limits map[Key]Limits, clk func() time.Time) *Gate {
	if clk == nil {
		clk = time.Now
	}
	g := &Gate{clk: clk, m: make(map[Key]*entry, len(limits))}
	now := clk()
	for k, lim := range limits {
		if lim.zero() {
			continue
		}
		g.m[k] = &entry{lim: lim, req: newBucket(lim.RPM, now), tok: newBucket(lim.TPM, now)}
	}
	return g
}

// Enabled 报告该分组是否配置了限额。
func (g *Gate) Enabled(key Key) bool {
	if g == nil {
		return false
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.m[key] != nil
}

// Wait 阻塞直到一次请求（估算 tokens 个 token）的额度可用或 ctx 结束。
// 超过单请求上限时立即返回 ErrBudgetExceeded。
func (g *Gate) Wait(ctx context.Context, key Key, tokens int) error {
	for {
		d, err := g.reserve(key, tokens)
		if err != nil || d == 0 {
			return err
		}
		t := time.NewTimer(d)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}
}

// Try 非阻塞尝试；额度不足或超限返回 false。
func (g *Gate) Try(key Key, tokens int) bool {
	d, err := g.reserve(key, tokens)
	return err == nil && d == 0
}

const minWait = 10 * time.Millisecond

// reserve 成功扣减返回 0；否则返回建议等待时长。
func (g *Gate) reserve(key Key, tokens int) (time.Duration, error) {
	if g == nil {
		return 0, nil
	}
	if tokens < 0 {
		return 0, fmt.Errorf("rate: negative token estimate: %w", contract.ErrInvalidInput)
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	e := g.m[key]
	if e == nil {
		return 0, nil
	}
	if e.lim.MaxTokensPerReq > 0 && tokens > e.lim.MaxTokensPerReq {
		return 0, fmt.Errorf("rate: %d tokens exceeds per-request limit %d: %w", tokens, e.lim.MaxTokensPerReq, contract.ErrBudgetExceeded)
	}
	now := g.clk()
	e.req.refill(now)
	e.tok.refill(now)
	wr, wt := e.req.waitFor(1), e.tok.waitFor(tokens)
	if wr == 0 && wt == 0 {
		e.req.take(1)
		e.tok.take(tokens)
		return 0, nil
	}
	return max(wr, wt, minWait), nil
}

// Avail 为诊断用的可用额度（向下取整）。-1 表示该维度未启用。
type Avail struct {
	Requests int
	Tokens   int
}

// Snapshot 返回分组当前可用额度。
func (g *Gate) Snapshot(key Key) Avail {
	out := Avail{Requests: -1, Tokens: -1}
	if g == nil {
		return out
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	e := g.m[key]
	if e == nil {
		return out
	}
	now := g.clk()
	e.req.refill(now)
	e.tok.refill(now)
	if e.req.enabled() {
		out.Requests = int(e.req.level)
	}
	if e.tok.enabled() {
		out.Tokens = int(e.tok.level)
	}
	return out
}

// bucket 以 cap/分钟 的速率回填，上限为 cap。
type bucket struct {
	cap   float64
	level float64
	last  time.Time
}

func newBucket(perMinute int, now time.Time) bucket {
	if perMinute <= 0 {
		return bucket{}
	}
	return bucket{cap: float64(perMinute), level: float64(perMinute), last: now}
}

func (b *bucket) enabled() bool { return b.cap > 0 }

func (b *bucket) refill(now time.Time) {
	// 时钟回拨视为无时间流逝
	if !b.enabled() || !now.After(b.last) {
		return
	}
	b.level = min(b.cap, b.level+now.Sub(b.last).Minutes()*b.cap)
	b.last = now
}

func (b *bucket) waitFor(n int) time.Duration {
	if !b.enabled() || n <= 0 {
		return 0
	}
	deficit := float64(n) - b.level
	if deficit <= 0 {
		return 0
	}
	return time.Duration(deficit / b.cap * float64(time.Minute))
}

func (b *bucket) take(n int) {
	if b.enabled() && n > 0 {
		b.level = max(0, b.level-float64(n))
	}
}
