package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"streamtrans/internal/diag"
	"streamtrans/internal/rate"
	"streamtrans/pkg/contract"
)

// SchedulerOptions 为调度器的运行参数。
type SchedulerOptions struct {
	Workers int // 工作池大小（>=1）
	// Gate 可选：每次翻译调用前按 GateKey 放行。
	Gate    *rate.Gate
	GateKey rate.Key
	// Estimate 为 Gate 估算单次请求 token；Overhead 为固定提示词开销。
	Estimate contract.TokenEstimator
	Overhead int
}

// job 为一次已提交的翻译任务。seq 自 1 起按提交顺序递增。
type job struct {
	seq   int64
	text  string
	words int
	h     *handle
}

// Scheduler 将批提交到有界工作池，并严格按提交顺序把结果交给 Sink。
//   - Submit 在池饱和时阻塞（背压）；
//   - 每次提交后非阻塞地排空队首已完成的任务，队首未完成则停止；
//   - 队首失败即返回 TranslationError，其后的任务结果不再交付；
//   - 翻译调用与中断解耦：已启动的任务总会跑完。
type Scheduler struct {
	tr     contract.Translator
	next   contract.ResultConsumer
	opts   SchedulerOptions
	pool   *pool
	logger *diag.Logger

	pending []*job // PendingQueue，队首为最早提交
	seq     int64
	drained int64
	errs    int
	failed  bool
	done    bool
}

// NewScheduler 构造调度器并启动工作池；池在 Close/Abort 时等待全部任务结束。
func NewScheduler(tr contract.Translator, opts SchedulerOptions, next contract.ResultConsumer, logger *diag.Logger) *Scheduler {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	return &Scheduler{tr: tr, next: next, opts: opts, pool: newPool(opts.Workers), logger: logger}
}

// Submit 创建任务并提交到工作池，随后尝试非阻塞排空。
func (s *Scheduler) Submit(ctx context.Context, b contract.Batch) error {
	if s.done {
		return errors.New("scheduler: submit after close")
	}
	s.seq++
	j := &job{seq: s.seq, text: b.Text, words: b.Words}
	jctx := context.WithoutCancel(ctx)
	h, err := s.pool.Go(jctx, func() (contract.TranslationResult, error) {
		return s.translate(jctx, j)
	})
	if err != nil {
		return fmt.Errorf("scheduler submit job %d: %w", j.seq, err)
	}
	j.h = h
	s.pending = append(s.pending, j)
	s.progress()
	return s.drain(ctx, false)
}

// Pending 返回尚未交付的任务数。
func (s *Scheduler) Pending() int { return len(s.pending) }

// drain 按 FIFO 从队首交付结果。block=false 时遇到未完成的队首即返回。
func (s *Scheduler) drain(ctx context.Context, block bool) error {
	for len(s.pending) > 0 {
		head := s.pending[0]
		if !block && !head.h.Done() {
			return nil
		}
		res, err := head.h.Wait()
		s.pending[0] = nil
		s.pending = s.pending[1:]
		if err != nil {
			s.failed = true
			s.errs++
			s.progress()
			return &contract.TranslationError{Seq: head.seq, Text: head.text, Err: err}
		}
		if err := s.next.Consume(ctx, res); err != nil {
			s.failed = true
			return fmt.Errorf("scheduler deliver job %d: %w", head.seq, err)
		}
		s.drained++
		s.progress()
	}
	return nil
}

// Close 阻塞地按序排空全部任务，等待工作池结束后关闭 Sink。
// 排空失败时仍等待在途任务，并只冲刷 Sink（不写结尾符）。
func (s *Scheduler) Close(ctx context.Context) error {
	if s.done {
		return nil
	}
	s.done = true
	t := s.logger.Start("scheduler", "drain")
	err := s.drain(ctx, true)
	s.pool.Wait()
	if err != nil {
		return errors.Join(err, s.next.Abort(ctx))
	}
	t.Finish("drain", s.drained)
	return s.next.Close(ctx)
}

// Abort 停止接收并等待全部在途任务；若此前未出现失败，
// 将已完成的有序前缀交付 Sink 后再冲刷。
func (s *Scheduler) Abort(ctx context.Context) error {
	if s.done {
		return nil
	}
	s.done = true
	s.pool.Wait()
	var err error
	if !s.failed {
		err = s.drain(ctx, true)
	}
	s.pending = nil
	return errors.Join(err, s.next.Abort(ctx))
}

func (s *Scheduler) translate(ctx context.Context, j *job) (contract.TranslationResult, error) {
	batch := strconv.FormatInt(j.seq, 10)
	start := time.Now()
	t := s.logger.StartWithKV("scheduler", "translate", "", batch, map[string]string{"words": strconv.Itoa(j.words)})
	if s.opts.Gate != nil && s.opts.Estimate != nil {
		tokens := s.opts.Estimate(j.text) + s.opts.Overhead
		s.logger.DebugStart("gate", "ask", "", batch, map[string]string{"tokens": strconv.Itoa(tokens)})
		if err := s.opts.Gate.Wait(ctx, s.opts.GateKey, tokens); err != nil {
			s.fail("gate", err, &start, batch)
			return contract.TranslationResult{}, err
		}
	}
	res, err := s.tr.Translate(ctx, j.text)
	if err != nil {
		s.fail("translator", err, &start, batch)
		return contract.TranslationResult{}, err
	}
	t.Finish("translate", int64(len(res.Segments)))
	diag.IncOp("scheduler", "translate", "success")
	diag.ObserveDuration("scheduler", "translate", time.Since(start).Milliseconds())
	return res, nil
}

const upstreamMsgMax = 200

// clip 将 s 截到不超过 limit 字节，且不切断多字节字符。
func clip(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	i := limit
	for i > 0 && !utf8.RuneStart(s[i]) {
		i--
	}
	return s[:i]
}

func (s *Scheduler) fail(comp string, err error, start *time.Time, batch string) {
	code := diag.Classify(err)
	var kv map[string]string
	var ue contract.UpstreamError
	if errors.As(err, &ue) {
		kv = map[string]string{"http_status": strconv.Itoa(ue.UpstreamStatus())}
		if m := strings.TrimSpace(ue.UpstreamMessage()); m != "" {
			kv["upstream_msg"] = clip(m, upstreamMsgMax)
		}
	}
	s.logger.ErrorWithKV(comp, string(code), err.Error(), start, "", batch, kv)
	diag.IncOp("scheduler", "translate", "error")
	if code != diag.CodeUnknown {
		diag.IncError(comp, string(code))
	}
}

func (s *Scheduler) progress() {
	diag.UpdateProgress(func(p *diag.Progress) {
		p.Submitted, p.Drained, p.Errors = s.seq, s.drained, s.errs
	})
	if t := diag.GetTerminal(); t != nil {
		t.Progress(s.seq, s.drained, s.errs)
	}
}
