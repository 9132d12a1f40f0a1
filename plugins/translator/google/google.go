// Package google 通过 translate_a/single（dj=1）实现 Translator。
// 每个含 trans 的 sentence 对应一个结果段，仅含 translit 的 sentence 并入最后一段的 transliterated。
package google

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/text/language"

	"streamtrans/pkg/contract"
	"streamtrans/plugins/internal/upstream"
)

const vendor = "google"

// Options: 语言对与端点。
type Options struct {
	BaseURL        string            `json:"base_url"`      // 默认 https://translate.googleapis.com
	EndpointPath   string            `json:"endpoint_path"` // 默认 /translate_a/single
	Source         string            `json:"source"`        // BCP 47 或 auto，默认 auto
	Target         string            `json:"target"`        // BCP 47，默认 en
	Client         string            `json:"client"`        // 默认 gtx
	TimeoutSeconds int               `json:"timeout_seconds"`
	ExtraQuery     map[string]string `json:"extra_query"`
	// APIKey 仅参与限流分组。
	APIKey string `json:"api_key"`
}

func (o *Options) defaults() {
	if o.BaseURL == "" {
		o.BaseURL = "https://translate.googleapis.com"
	}
	if o.EndpointPath == "" {
		o.EndpointPath = "/translate_a/single"
	}
	if strings.TrimSpace(o.Source) == "" {
		o.Source = "auto"
	}
	if strings.TrimSpace(o.Target) == "" {
		o.Target = "en"
	}
	if o.Client == "" {
		o.Client = "gtx"
	}
}

type Translator struct {
	endpoint string
	query    url.Values
	do       upstream.Doer
}

func New(raw json.RawMessage) (contract.Translator, error) {
	var o Options
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &o); err != nil {
			return nil, fmt.Errorf("google options: %w", err)
		}
	}
	o.defaults()
	sl, err := langTag(o.Source, true)
	if err != nil {
		return nil, &contract.ConfigurationError{Field: "google.source", Reason: err.Error()}
	}
	tl, err := langTag(o.Target, false)
	if err != nil {
		return nil, &contract.ConfigurationError{Field: "google.target", Reason: err.Error()}
	}
	q := url.Values{}
	for k, v := range o.ExtraQuery {
		if k != "" {
			q.Set(k, v)
		}
	}
	q.Set("client", o.Client)
	q.Set("sl", sl)
	q.Set("tl", tl)
	q.Set("dj", "1")
	q.Set("ie", "UTF-8")
	q.Set("oe", "UTF-8")
	q["dt"] = []string{"t", "rm"}
	return &Translator{
		endpoint: upstream.JoinURL(o.BaseURL, o.EndpointPath),
		query:    q,
		do:       upstream.NewHTTPClient(o.TimeoutSeconds).Do,
	}, nil
}

// langTag 校验并规范化 BCP 47 标签；allowAuto 时接受 auto。
func langTag(s string, allowAuto bool) (string, error) {
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

type sentence struct {
	Trans    *string `json:"trans"`
	Translit *string `json:"translit"`
}

type response struct {
	Sentences []sentence `json:"sentences"`
	Src       string     `json:"src"`
}

// Translate: 纯空白文本不发请求，原样作为单段返回。
func (t *Translator) Translate(ctx context.Context, text string) (contract.TranslationResult, error) {
	if strings.TrimSpace(text) == "" {
		return contract.TranslationResult{Segments: []contract.Segment{{
			contract.FieldTranslated:     text,
			contract.FieldTransliterated: text,
		}}}, nil
	}
	// q 放在表单体中，避免长批次超出 URL 长度限制。
	form := url.Values{"q": {text}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint+"?"+t.query.Encode(), strings.NewReader(form.Encode()))
	if err != nil {
		return contract.TranslationResult{}, fmt.Errorf("google request: %v: %w", err, contract.ErrInvalidInput)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded;charset=utf-8")
	req.Header.Set("Accept", "application/json")
	resp, err := upstream.Do(ctx, vendor, t.do, req)
	if err != nil {
		return contract.TranslationResult{}, err
	}
	defer resp.Body.Close()

	var out response
	if err := upstream.DecodeJSON(vendor, resp.Body, &out); err != nil {
		return contract.TranslationResult{}, err
	}
	return contract.TranslationResult{Segments: segments(out.Sentences)}, nil
}

// segments 将 sentences 折叠为两字段齐全的结果段：每个 trans 句一段，
// 仅含 translit 的句子按出现顺序拼接后并入最后一段；无对应音译的段为 ""。
func segments(sentences []sentence) []contract.Segment {
	segs := make([]contract.Segment, 0, len(sentences))
	var rest strings.Builder
	for _, s := range sentences {
		if s.Trans == nil {
			if s.Translit != nil {
				rest.WriteString(*s.Translit)
			}
			continue
		}
		seg := contract.Segment{contract.FieldTranslated: *s.Trans, contract.FieldTransliterated: ""}
		if s.Translit != nil {
			seg[contract.FieldTransliterated] = *s.Translit
		}
		segs = append(segs, seg)
	}
	if rest.Len() > 0 {
		if len(segs) == 0 {
			segs = append(segs, contract.Segment{contract.FieldTranslated: "", contract.FieldTransliterated: ""})
		}
		last := segs[len(segs)-1]
		last[contract.FieldTransliterated] += rest.String()
	}
	return segs
}
