package pipeline

import (
	"bytes"
	"context"
	"io"
	"strings"
	"sync"

	"streamtrans/pkg/contract"
)

type fragRecorder struct {
	frags   []contract.Fragment
	closed  int
	aborted int
	pushErr error
}

func (r *fragRecorder) Push(_ context.Context, f contract.Fragment) error {
	if r.pushErr != nil {
		return r.pushErr
	}
	r.frags = append(r.frags, f)
	return nil
}
func (r *fragRecorder) Close(context.Context) error { r.closed++; return nil }
func (r *fragRecorder) Abort(context.Context) error { r.aborted++; return nil }

func (r *fragRecorder) joined() string {
	var b strings.Builder
	for _, f := range r.frags {
		b.WriteString(string(f))
	}
	return b.String()
}

type batchRecorder struct {
	batches []contract.Batch
	closed  int
	aborted int
}

func (r *batchRecorder) Submit(_ context.Context, b contract.Batch) error {
	r.batches = append(r.batches, b)
	return nil
}
func (r *batchRecorder) Close(context.Context) error { r.closed++; return nil }
func (r *batchRecorder) Abort(context.Context) error { r.aborted++; return nil }

type resultRecorder struct {
	mu      sync.Mutex
	texts   []string
	closed  int
	aborted int
}

func (r *resultRecorder) Consume(_ context.Context, res contract.TranslationResult) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	var b strings.Builder
	for _, s := range res.Segments {
		b.WriteString(s[contract.FieldTranslated])
	}
	r.texts = append(r.texts, b.String())
	return nil
}
func (r *resultRecorder) Close(context.Context) error { r.mu.Lock(); r.closed++; r.mu.Unlock(); return nil }
func (r *resultRecorder) Abort(context.Context) error {
	r.mu.Lock()
	r.aborted++
	r.mu.Unlock()
	return nil
}

func (r *resultRecorder) snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.texts...)
}

func echoResult(text string) contract.TranslationResult {
	return contract.TranslationResult{Segments: []contract.Segment{{
		contract.FieldTranslated:     text,
		contract.FieldTransliterated: strings.ToUpper(text),
	}}}
}

// echo 原样返回输入文本。
var echo = contract.TranslatorFunc(func(_ context.Context, text string) (contract.TranslationResult, error) {
	return echoResult(text), nil
})

// gatedTranslator 在对应文本的通道被关闭前阻塞，用于模拟乱序完成。
type gatedTranslator struct {
	mu    sync.Mutex
	gates map[string]chan struct{}
	calls int
}

func newGated(texts ...string) *gatedTranslator {
	g := &gatedTranslator{gates: map[string]chan struct{}{}}
	for _, t := range texts {
		g.gates[t] = make(chan struct{})
	}
	return g
}

func (g *gatedTranslator) release(text string) { close(g.gates[text]) }

func (g *gatedTranslator) Translate(_ context.Context, text string) (contract.TranslationResult, error) {
	g.mu.Lock()
	g.calls++
	ch := g.gates[text]
	g.mu.Unlock()
	if ch != nil {
		<-ch
	}
	return echoResult(text), nil
}

type memReader struct {
	inputs map[string]string
	// after 在第 i 个输入交付后调用（可为 nil）
	after func(i int)
}

func (m *memReader) Iterate(ctx context.Context, roots []string, yield func(contract.FileID, io.ReadCloser) error) error {
	for i, r := range roots {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := yield(contract.FileID(r), io.NopCloser(strings.NewReader(m.inputs[r]))); err != nil {
			return err
		}
		if m.after != nil {
			m.after(i)
		}
	}
	return nil
}

type memWriter struct {
	mu  sync.Mutex
	buf bytes.Buffer
	id  contract.ArtifactID
	err error
}

func (w *memWriter) Write(_ context.Context, id contract.ArtifactID, r io.Reader) error {
	if w.err != nil {
		return w.err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.id = id
	_, err := io.Copy(&w.buf, r)
	return err
}

func (w *memWriter) String() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.buf.String()
}
