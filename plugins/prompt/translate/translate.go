// Package translate 提供通用文本翻译的 PromptBuilder（system+user+json_schema 三段 Chat）。
package translate

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"strings"
	"text/template"

	"golang.org/x/text/language"

	"streamtrans/pkg/contract"
)

// Options: 语言对、system 模板与术语表。
// 模板与术语表均为 inline/path 二选一，inline 优先；模板均为空时使用内置默认模板。
type Options struct {
	SourceLanguage       string `json:"source_language"` // 默认 auto
	TargetLanguage       string `json:"target_language"` // 默认 en
	InlineSystemTemplate string `json:"inline_system_template"`
	SystemTemplatePath   string `json:"system_template_path"`
	InlineGlossary       string `json:"inline_glossary"`
	GlossaryPath         string `json:"glossary_path"`
}

// Builder: 运行期不做 I/O；模板与术语表在构造期加载并预渲染。
type Builder struct {
	system string
}

type templateData struct {
	Source string
	Target string
}

// New 创建 Builder。
func New(opts *Options) (*Builder, error) {
	o := Options{}
	if opts != nil {
		o = *opts
	}
	if strings.TrimSpace(o.SourceLanguage) == "" {
		o.SourceLanguage = "auto"
	}
	if strings.TrimSpace(o.TargetLanguage) == "" {
		o.TargetLanguage = "en"
	}
	var err error
	if o.SourceLanguage, err = canonical(o.SourceLanguage, true); err != nil {
		return nil, &contract.ConfigurationError{Field: "prompt.source_language", Reason: err.Error()}
	}
	if o.TargetLanguage, err = canonical(o.TargetLanguage, false); err != nil {
		return nil, &contract.ConfigurationError{Field: "prompt.target_language", Reason: err.Error()}
	}
	src, err := pick(o.InlineSystemTemplate, o.SystemTemplatePath, "system template")
	if err != nil {
		return nil, err
	}
	if src == "" {
		src = defaultSystemTemplate
	}
	tpl, err := template.New("system").Option("missingkey=error").Parse(src)
	if err != nil {
		return nil, &contract.ConfigurationError{Field: "prompt.system_template", Reason: err.Error()}
	}
	var buf bytes.Buffer
	if err := tpl.Execute(&buf, templateData{Source: o.SourceLanguage, Target: o.TargetLanguage}); err != nil {
		return nil, &contract.ConfigurationError{Field: "prompt.system_template", Reason: err.Error()}
	}
	glos, err := pick(o.InlineGlossary, o.GlossaryPath, "glossary")
	if err != nil {
		return nil, err
	}
	if glos != "" {
		buf.WriteString("\n\n<glossary>\n")
		buf.WriteString(glos)
		if !strings.HasSuffix(glos, "\n") {
			buf.WriteByte('\n')
		}
		buf.WriteString("</glossary>")
	}
	return &Builder{system: buf.String()}, nil
}

// canonical 校验 BCP 47 语言标签并返回规范形式；auto 仅允许作为源语言。
func canonical(s string, allowAuto bool) (string, error) {
	s = strings.TrimSpace(s)
	if strings.EqualFold(s, "auto") {
		if allowAuto {
			return "auto", nil
		}
		return "", fmt.Errorf("auto is only valid as source")
	}
	tag, err := language.Parse(s)
	if err != nil {
		return "", err
	}
	if tag == language.Und {
		return "", fmt.Errorf("undetermined language %q", s)
	}
	return tag.String(), nil
}

func pick(inline, path, what string) (string, error) {
	if inline != "" || path == "" {
		return inline, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("%s read: %w", what, err)
	}
	return string(b), nil
}

// Build: system + user（规则与 <text> 包裹的批文本）+ json_schema。
func (b *Builder) Build(ctx context.Context, batch contract.Batch) (contract.Prompt, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if batch.Text == "" {
		return nil, fmt.Errorf("prompt: %w: empty batch", contract.ErrInvalidInput)
	}
	var uw strings.Builder
	uw.Grow(len(userRules) + len(batch.Text) + 16)
	uw.WriteString(userRules)
	uw.WriteString("<text>\n")
	uw.WriteString(batch.Text)
	uw.WriteString("\n</text>\n")
	return contract.ChatPrompt{
		{Role: "system", Content: b.system},
		{Role: "user", Content: uw.String()},
		{Role: "json_schema", Content: segmentsJSONSchema},
	}, nil
}

// EstimateOverheadTokens: 与批内容无关的固定开销（system+规则+包裹标签+schema）。
func (b *Builder) EstimateOverheadTokens(estimate contract.TokenEstimator) int {
	if estimate == nil {
		return 0
	}
	return estimate(b.system) + estimate(userRules+"<text>\n\n</text>\n") + estimate(segmentsJSONSchema)
}

var _ contract.PromptBuilder = (*Builder)(nil)

const userRules = `IMPORTANT OUTPUT RULES:
1) Translate the text inside <text> completely, in order.
2) Preserve every whitespace run and line break exactly; put them inside the segment they belong to.
3) Return ONLY strict JSON: {"segments":[{"translated": string, "transliterated": string}]}; no markdown, no commentary.
`

const defaultSystemTemplate = `## Role
You are a professional translator. Translate from {{.Source}} to {{.Target}}.

## Protocol
- The user message carries the source text inside <text>...</text>.
- Split the output into segments along sentences or lines. Concatenating every "translated" value must yield the full translation with the original layout.
- "transliterated" holds a romanization of the source for that segment; repeat the source when it is already in Latin script.
- If a <glossary> is present, its term mappings MUST take precedence.
`

const segmentsJSONSchema = `{"type":"object","additionalProperties":false,"properties":{"segments":{"type":"array","items":{"type":"object","additionalProperties":false,"properties":{"translated":{"type":"string"},"transliterated":{"type":"string"}},"required":["translated","transliterated"]}}},"required":["segments"]}`
