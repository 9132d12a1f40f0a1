package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"streamtrans/internal/diag"
	"streamtrans/internal/rate"
	"streamtrans/pkg/contract"
)

// 默认参数。
const (
	DefaultMaxFragment = 500
	DefaultBatchWords  = 1200
)

// Components 聚合运行所需的外部组件。
type Components struct {
	Reader     contract.Reader
	Translator contract.Translator
	Writer     contract.Writer
}

// Settings 运行期配置。
type Settings struct {
	Inputs     []string
	Artifact   contract.ArtifactID
	Translator string // 仅用于诊断输出

	Workers     int
	MaxFragment int
	BatchWords  int
	Overlong    OverlongPolicy
	Normalize   string
	Output      contract.Field

	// 限流闸门（可选）
	Gate          *rate.Gate
	GateKey       rate.Key
	BytesPerToken int
	Overhead      int
}

// Run 执行完整流水线：Reader → Source → Batcher → Scheduler(工作池) → Sink → Writer。
//   - 全部输入依序进入同一个 Source，输出为单一工件；
//   - ctx 结束时停止读取并有序排空，已提交的翻译全部完成并按序写出，返回 ctx 错误；
//   - 其他错误中止流水线：等待在途任务、冲刷已写出的内容后返回首错。
func Run(ctx context.Context, comp Components, set Settings, logger *diag.Logger) error {
	if err := sanity(comp, set); err != nil {
		return fmt.Errorf("sanity: %w", err)
	}
	runStart := time.Now()
	rt := logger.Start("pipeline", "run")
	if t := diag.GetTerminal(); t != nil {
		t.RunStart(set.Workers, set.Translator)
	}
	diag.UpdateProgress(func(p *diag.Progress) {
		*p = diag.Progress{Running: true, Translator: set.Translator, StartedAt: runStart}
	})
	defer diag.UpdateProgress(func(p *diag.Progress) { p.Running = false })

	// 输出经管道单次流式交给 Writer；中断后仍需写完已排空的结果。
	pr, pw := io.Pipe()
	wdone := make(chan error, 1)
	wctx := context.WithoutCancel(ctx)
	wt := logger.StartWith("writer", "write", string(set.Artifact), "")
	go func() {
		err := comp.Writer.Write(wctx, set.Artifact, pr)
		_ = pr.CloseWithError(err)
		wdone <- err
	}()

	sink := NewSink(pw, set.Output)
	opts := SchedulerOptions{Workers: set.Workers, Gate: set.Gate, GateKey: set.GateKey}
	if set.Gate.Enabled(set.GateKey) {
		opts.Estimate = rate.MakeEstimator(set.BytesPerToken)
		opts.Overhead = set.Overhead
	}
	sched := NewScheduler(comp.Translator, opts, sink, logger)
	batcher := NewBatcher(set.BatchWords, sched, logger)
	src := NewSource(SourceOptions{MaxFragment: set.MaxFragment, Overlong: set.Overlong, Normalize: set.Normalize}, batcher, logger)

	err := comp.Reader.Iterate(ctx, set.Inputs, func(fid contract.FileID, rc io.ReadCloser) error {
		defer rc.Close()
		// 中断时关闭读端，解除阻塞中的读取
		stop := context.AfterFunc(ctx, func() { _ = rc.Close() })
		defer stop()
		if t := diag.GetTerminal(); t != nil {
			t.InputStart(string(fid))
		}
		diag.UpdateProgress(func(p *diag.Progress) { p.Input = string(fid) })
		ft := logger.StartWith("source", "feed", string(fid), "")
		if err := src.Feed(ctx, string(fid), rc); err != nil {
			if ctx.Err() == nil {
				logger.ErrorWith("source", string(diag.Classify(err)), err.Error(), nil, string(fid), "")
			}
			return err
		}
		ft.Finish("feed", 0)
		return nil
	})

	var runErr error
	switch {
	case err == nil:
		runErr = src.Close(ctx)
	case ctx.Err() != nil && errors.Is(err, ctx.Err()):
		logger.Warn("pipeline", string(diag.CodeCancel), "interrupted: draining submitted batches")
		runErr = errors.Join(ctx.Err(), src.Close(ctx))
	default:
		runErr = errors.Join(err, src.Abort(ctx))
	}

	// 无论成败都以 EOF 结束输出，使 Writer 提交已写出的部分。
	_ = pw.Close()
	werr := <-wdone
	if werr != nil {
		werr = fmt.Errorf("writer write: %w", werr)
		logFailure(logger, "writer", werr)
	} else {
		wt.Finish("write", sink.Written())
	}
	if runErr != nil {
		logFailure(logger, "pipeline", runErr)
	}
	ok := runErr == nil && werr == nil
	if t := diag.GetTerminal(); t != nil {
		t.RunFinish(ok, time.Since(runStart))
	}
	if ok {
		rt.Finish("run", sink.Written())
		diag.IncOp("pipeline", "run", "success")
		return nil
	}
	diag.IncOp("pipeline", "run", "error")
	return errors.Join(runErr, werr)
}

func logFailure(logger *diag.Logger, comp string, err error) {
	code := diag.Classify(err)
	logger.Error(comp, string(code), err.Error(), nil)
	if code != diag.CodeUnknown {
		diag.IncError(comp, string(code))
	}
}

func sanity(c Components, s Settings) error {
	if c.Reader == nil || c.Translator == nil || c.Writer == nil {
		return errors.New("pipeline: missing components")
	}
	if len(s.Inputs) == 0 {
		return errors.New("pipeline: empty inputs")
	}
	if !s.Output.Valid() {
		return &contract.ConfigurationError{Field: "output", Reason: fmt.Sprintf("unknown field %q", s.Output)}
	}
	if s.Overlong != "" && s.Overlong != OverlongSplit && s.Overlong != OverlongError {
		return &contract.ConfigurationError{Field: "overlong", Reason: fmt.Sprintf("unknown policy %q", s.Overlong)}
	}
	return nil
}
