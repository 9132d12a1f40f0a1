package registry

import (
	"bytes"
	"encoding/json"
	"sort"

	"streamtrans/pkg/contract"
	segjson "streamtrans/plugins/decoder/segjson"
	gmi "streamtrans/plugins/llmclient/gemini"
	mock "streamtrans/plugins/llmclient/mock"
	oai "streamtrans/plugins/llmclient/openai"
	ppt "streamtrans/plugins/prompt/translate"
	rfs "streamtrans/plugins/reader/filesystem"
	techo "streamtrans/plugins/translator/echo"
	tflaky "streamtrans/plugins/translator/flaky"
	tgoogle "streamtrans/plugins/translator/google"
	wfs "streamtrans/plugins/writer/filesystem"
	wstdio "streamtrans/plugins/writer/stdio"
)

// strictUnmarshal: 使用 DisallowUnknownFields 严格解码，拒绝未知字段。
func strictUnmarshal(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// strictThen 先按 opts 严格校验，再把原样 JSON 交给 New。
func strictThen[T any, O any](newFn func(json.RawMessage) (T, error)) func(json.RawMessage) (T, error) {
	return func(raw json.RawMessage) (T, error) {
		var opts O
		if err := strictUnmarshal(raw, &opts); err != nil {
			var zero T
			return zero, err
		}
		return newFn(raw)
	}
}

// Names 返回注册表中的名称（字典序），用于报错与帮助信息。
func Names[F any](m map[string]F) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// NewReader 工厂签名：接收原样 JSON Options。
type NewReader func(raw json.RawMessage) (contract.Reader, error)

// NewWriter 工厂签名：接收原样 JSON Options。
type NewWriter func(raw json.RawMessage) (contract.Writer, error)

// NewTranslator 工厂签名：接收原样 JSON Options。
type NewTranslator func(raw json.RawMessage) (contract.Translator, error)

// NewPromptBuilder 工厂签名：接收原样 JSON Options。
type NewPromptBuilder func(raw json.RawMessage) (contract.PromptBuilder, error)

// NewLLMClient 工厂签名：接收原样 JSON Options。
type NewLLMClient func(raw json.RawMessage) (contract.LLMClient, error)

// NewDecoder 工厂签名：接收原样 JSON Options。
type NewDecoder func(raw json.RawMessage) (contract.Decoder, error)

// Reader 工厂注册表（显式、零反射）。
var Reader = map[string]NewReader{
	// fs: 文件/目录/STDIN
	"fs": func(raw json.RawMessage) (contract.Reader, error) {
		var opts rfs.Options
		if err := strictUnmarshal(raw, &opts); err != nil {
			return nil, err
		}
		return rfs.New(&opts)
	},
}

// Writer 工厂注册表。
var Writer = map[string]NewWriter{
	// fs: 落盘（默认原子替换）
	"fs": func(raw json.RawMessage) (contract.Writer, error) {
		var opts wfs.Options
		if err := strictUnmarshal(raw, &opts); err != nil {
			return nil, err
		}
		return wfs.New(&opts)
	},
	// stdout: 标准输出，无选项
	"stdout": func(raw json.RawMessage) (contract.Writer, error) {
		var none struct{}
		if err := strictUnmarshal(raw, &none); err != nil {
			return nil, err
		}
		return wstdio.New(), nil
	},
}

// Translator 工厂注册表。"llm" 由 PromptBuilder+LLMClient+Decoder 组合，不在此注册。
var Translator = map[string]NewTranslator{
	"echo":   strictThen[contract.Translator, techo.Options](techo.New),
	"flaky":  strictThen[contract.Translator, tflaky.Options](tflaky.New),
	"google": strictThen[contract.Translator, tgoogle.Options](tgoogle.New),
}

// PromptBuilder 工厂注册表。
var PromptBuilder = map[string]NewPromptBuilder{
	// translate: 通用文本翻译（system+user+json_schema）
	"translate": func(raw json.RawMessage) (contract.PromptBuilder, error) {
		var opts ppt.Options
		if err := strictUnmarshal(raw, &opts); err != nil {
			return nil, err
		}
		return ppt.New(&opts)
	},
}

// LLMClient 工厂注册表。
var LLMClient = map[string]NewLLMClient{
	"openai": oai.New,
	"gemini": gmi.New,
	"mock":   mock.New,
}

// Decoder 工厂注册表。
var Decoder = map[string]NewDecoder{
	// segjson: {"segments":[{translated,transliterated}]} 或裸数组
	"segjson": segjson.New,
}
