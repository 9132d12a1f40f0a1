package pipeline

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"

	"streamtrans/internal/diag"
	"streamtrans/pkg/contract"
)

// OverlongPolicy 决定无空白可切的超长文本如何处理。
type OverlongPolicy string

const (
	// OverlongSplit 在恰好 MaxFragment 个字符处强制切分。
	OverlongSplit OverlongPolicy = "split"
	// OverlongError 返回 InputTooLongError。
	OverlongError OverlongPolicy = "error"
)

// SourceOptions 为 Source 的运行参数。
type SourceOptions struct {
	MaxFragment int            // 片段最大字符数（码点），默认 500
	Overlong    OverlongPolicy // 默认 split
	Normalize   string         // none|nfc|nfkc
}

// Source 逐行读取输入，将超长行按空白切成有界片段并推送给下游。
// 行尾换行符保留在片段内，片段按序拼接即为原始输入。
// 除当前行外不跨行持有状态；行号仅用于错误定位。
type Source struct {
	max    int
	policy OverlongPolicy
	form   *norm.Form
	next   contract.FragmentConsumer
	logger *diag.Logger

	line    int
	frags   int64
	start   time.Time
	done    bool
	midLine bool // 上一输入以未终止的行结束
}

// NewSource 构造 Source；next 为下游（通常是 Batcher）。
func NewSource(opts SourceOptions, next contract.FragmentConsumer, logger *diag.Logger) *Source {
	s := &Source{max: opts.MaxFragment, policy: opts.Overlong, next: next, logger: logger, start: time.Now()}
	if s.max <= 0 {
		s.max = DefaultMaxFragment
	}
	if s.policy == "" {
		s.policy = OverlongSplit
	}
	switch opts.Normalize {
	case "nfc":
		f := norm.NFC
		s.form = &f
	case "nfkc":
		f := norm.NFKC
		s.form = &f
	}
	return s
}

// Run 读取单个输入直到 EOF 后正常关闭下游；出错则中止下游。
func (s *Source) Run(ctx context.Context, r io.Reader) error {
	if err := s.Feed(ctx, "", r); err != nil {
		return errors.Join(err, s.Abort(ctx))
	}
	return s.Close(ctx)
}

// Feed 读取一个输入流的全部行并推送片段；可按顺序对多个输入调用。
// 上一输入末行无换行时，先补一个 "\n" 片段再推送本输入，输入之间不会粘连。
// ctx 结束视为输入结束：停止读取并返回 ctx.Err()，由调用方决定有序收尾。
func (s *Source) Feed(ctx context.Context, input string, r io.Reader) error {
	if s.done {
		return errors.New("source: feed after close")
	}
	br := bufio.NewReaderSize(r, 64*1024)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		line, rerr := br.ReadString('\n')
		if line != "" {
			if s.midLine {
				s.midLine = false
				if err := s.push(ctx, "\n"); err != nil {
					return err
				}
			}
			s.line++
			if err := s.emitLine(ctx, input, line); err != nil {
				return err
			}
			s.midLine = !strings.HasSuffix(line, "\n")
		}
		if rerr == io.EOF {
			return nil
		}
		if rerr != nil {
			// 中断时读端可能已被关闭
			if cerr := ctx.Err(); cerr != nil {
				return cerr
			}
			return fmt.Errorf("source read %s: %w", input, rerr)
		}
	}
}

func (s *Source) emitLine(ctx context.Context, input, line string) error {
	rest := line
	if s.form != nil {
		rest = s.form.String(rest)
	}
	for utf8.RuneCountInString(rest) > s.max {
		head, tail, ok := cutAtFirstSpace(rest, s.max)
		if !ok {
			if s.policy == OverlongError {
				return &contract.InputTooLongError{Line: s.line, Length: utf8.RuneCountInString(rest), Limit: s.max}
			}
			head, tail = cutRunes(rest, s.max)
			s.logger.DebugStart("source", "force_split", input, "", map[string]string{"line": strconv.Itoa(s.line)})
		}
		if err := s.push(ctx, head); err != nil {
			return err
		}
		rest = tail
	}
	return s.push(ctx, rest)
}

func (s *Source) push(ctx context.Context, text string) error {
	s.frags++
	if err := s.next.Push(ctx, contract.Fragment(text)); err != nil {
		return fmt.Errorf("source push: %w", err)
	}
	return nil
}

// Close 表示输入结束，触发下游有序排空。
func (s *Source) Close(ctx context.Context) error {
	if s.done {
		return nil
	}
	s.done = true
	s.logger.InfoFinish("source", "read", s.start, s.frags)
	return s.next.Close(ctx)
}

// Abort 放弃剩余输入并中止下游。
func (s *Source) Abort(ctx context.Context) error {
	if s.done {
		return nil
	}
	s.done = true
	return s.next.Abort(ctx)
}

// cutAtFirstSpace 在前 limit 个字符内寻找第一个空白，返回含该空白的前缀与剩余部分。
func cutAtFirstSpace(s string, limit int) (head, tail string, ok bool) {
	n := 0
	for i, r := range s {
		if n == limit {
			break
		}
		n++
		if unicode.IsSpace(r) {
			end := i + utf8.RuneLen(r)
			return s[:end], s[end:], true
		}
	}
	return "", s, false
}

// cutRunes 在第 limit 个字符处切分。
func cutRunes(s string, limit int) (head, tail string) {
	n := 0
	for i := range s {
		if n == limit {
			return s[:i], s[i:]
		}
		n++
	}
	return s, ""
}
