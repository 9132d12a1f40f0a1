package config

import "encoding/json"

// DefaultTemplateConfig 返回一个可直接运行的配置模板：
// 默认输入为 STDIN（"-"），echo 翻译器输出到 stdout；
// provider 预置 mock/openai/gemini，改 translator=llm 即可切换。
// 各 Options 列出全部键（值为安全中性默认）。
func DefaultTemplateConfig() Config {
	d := Defaults()
	cfg := d
	cfg.Inputs = []string{"-"}
	cfg.LLM = "mock"
	cfg.Provider = map[string]Provider{
		"mock": {
			Client:  "mock",
			Options: json.RawMessage(`{"prefix":"","api_key":"","response_mode":""}`),
			Limits:  Limits{RPM: 60, TPM: 10000, MaxTokensPerReq: 4096},
		},
		"openai": {
			Client: "openai",
			Options: json.RawMessage(`{
  "base_url": "",
  "model": "",
  "api_key_env": "OPENAI_API_KEY",
  "api_key": "",
  "timeout_seconds": 60,
  "endpoint_path": "",
  "disable_default_auth": false,
  "extra_headers": {}
}`),
		},
		"gemini": {
			Client: "gemini",
			Options: json.RawMessage(`{
  "base_url": "",
  "model": "",
  "api_key_env": "GOOGLE_API_KEY",
  "api_key": "",
  "endpoint_path": "",
  "timeout_seconds": 60,
  "api_key_in_query": true,
  "extra_headers": {},
  "extra_query": {},
  "response_mime_type": ""
}`),
		},
	}
	cfg.Options.Reader = json.RawMessage(`{
  "buf_size": 65536,
  "exclude_dir_names": [".git", "node_modules", "vendor"],
  "include": []
}`)
	cfg.Options.Writer = json.RawMessage(`{}`)
	cfg.Options.Translator = json.RawMessage(`{"split_lines": false}`)
	cfg.Options.PromptBuilder = json.RawMessage(`{
  "source_language": "auto",
  "target_language": "en",
  "inline_system_template": "",
  "system_template_path": "",
  "inline_glossary": "",
  "glossary_path": ""
}`)
	cfg.Options.Decoder = json.RawMessage(`{"strict": false}`)
	return cfg
}

// DotEnvTemplate 为 --init-config 生成的 .env 模板（全部注释，按需启用）。
const DotEnvTemplate = `# streamtrans 环境变量覆盖（优先级：默认 < JSON < ENV < CLI）
# STREAMTRANS_INPUTS=-
# STREAMTRANS_WORKERS=64
# STREAMTRANS_MAX_FRAGMENT=500
# STREAMTRANS_BATCH_WORDS=1200
# STREAMTRANS_OUTPUT=translated
# STREAMTRANS_OVERLONG=split
# STREAMTRANS_NORMALIZE=none
# STREAMTRANS_TRANSLATOR=echo
# STREAMTRANS_ARTIFACT=output.txt
# STREAMTRANS_STATUS_ADDR=127.0.0.1:8787
# STREAMTRANS_LOG_LEVEL=info
# STREAMTRANS_LLM=openai
# STREAMTRANS_PROVIDER__openai__CLIENT=openai
# STREAMTRANS_PROVIDER__openai__LIMITS_RPM=60
# STREAMTRANS_OPTIONS_TRANSLATOR_JSON={"split_lines":true}
# OPENAI_API_KEY=
# GOOGLE_API_KEY=
`
