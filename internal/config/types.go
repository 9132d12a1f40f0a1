package config

import (
	"encoding/json"
)

// Config: 运行期只读配置（一次解析，运行期不变）。
// JSON 使用 snake_case；未知字段在解析期失败。校验规则以 validate 标签声明。
type Config struct {
	Inputs []string `json:"inputs" validate:"required,min=1,dive,required"`
	// Workers: 翻译并发上限；默认 NumCPU×32。
	Workers     int    `json:"workers" validate:"gte=1"`
	MaxFragment int    `json:"max_fragment" validate:"gte=1"`
	BatchWords  int    `json:"batch_words" validate:"gte=1"`
	Output      string `json:"output" validate:"oneof=translated transliterated"`
	Overlong    string `json:"overlong" validate:"oneof=split error"`
	Normalize   string `json:"normalize" validate:"oneof=none nfc nfkc"`
	// Translator: 注册表中的翻译实现名，或 "llm"（由 llm/provider 组合）。
	Translator string `json:"translator" validate:"required"`
	// Artifact: 输出工件名（相对 writer 根目录）；stdout writer 仅用于诊断。
	Artifact      string `json:"artifact" validate:"required"`
	BytesPerToken int    `json:"bytes_per_token" validate:"gte=0"`
	// StatusAddr: 状态 HTTP 服务监听地址（如 127.0.0.1:8787）；空则不启动。
	StatusAddr string `json:"status_addr" validate:"omitempty,hostname_port"`
	// Limits: 非 llm 翻译器的限流；llm 使用 provider 自身的 limits。
	Limits  Limits  `json:"limits"`
	Logging Logging `json:"logging"`

	Components Components `json:"components"`

	// LLM Provider 选择与定义（translator=llm 时生效）。
	LLM      string              `json:"llm"`
	Provider map[string]Provider `json:"provider" validate:"dive"`

	// 各组件 Options 子树，原样 JSON 传入工厂。
	Options Options `json:"options"`
}

// Logging: 仅保留日志等级可配置；输出路径与轮转策略为固定默认。
type Logging struct {
	Level string `json:"level" validate:"omitempty,oneof=debug info warn error"`
}

// Components: 组件名选择（注册表中的实现名）。
type Components struct {
	Reader        string `json:"reader"`
	Writer        string `json:"writer"`
	PromptBuilder string `json:"prompt_builder"`
	Decoder       string `json:"decoder"`
}

// Options: 各组件的原样 JSON Options。
type Options struct {
	Reader        json.RawMessage `json:"reader"`
	Writer        json.RawMessage `json:"writer"`
	Translator    json.RawMessage `json:"translator"`
	PromptBuilder json.RawMessage `json:"prompt_builder"`
	Decoder       json.RawMessage `json:"decoder"`
}

// Provider: 命名 provider 定义（client 实现 + options + 限额）。
type Provider struct {
	Client  string          `json:"client" validate:"required"`
	Options json.RawMessage `json:"options"`
	Limits  Limits          `json:"limits"`
}

// Limits: 限流配置（仅承载；执行位于 rate.Gate）。
type Limits struct {
	RPM             int `json:"rpm" validate:"gte=0"`
	TPM             int `json:"tpm" validate:"gte=0"`
	MaxTokensPerReq int `json:"max_tokens_per_req" validate:"gte=0"`
}
