package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"os"
	"runtime"
	"strconv"
	"strings"

	"streamtrans/internal/pipeline"
	"streamtrans/pkg/contract"
)

// EnvPrefix 为环境变量覆盖的统一前缀。
const EnvPrefix = "STREAMTRANS_"

// Defaults 返回带有安全默认值的 Config 雏形（inputs 除外）。
func Defaults() Config {
	return Config{
		Workers:     runtime.NumCPU() * 32,
		MaxFragment: pipeline.DefaultMaxFragment,
		BatchWords:  pipeline.DefaultBatchWords,
		Output:      string(contract.FieldTranslated),
		Overlong:    string(pipeline.OverlongSplit),
		Normalize:   "none",
		Translator:  "echo",
		Artifact:    "output.txt",
		Logging:     Logging{Level: "info"},
		Components: Components{
			Reader:        "fs",
			Writer:        "stdout",
			PromptBuilder: "translate",
			Decoder:       "segjson",
		},
	}
}

// LoadJSON 从原始 JSON（优先）或文件路径解析 Config（严格拒绝未知字段）。
func LoadJSON(path string, raw []byte) (Config, error) {
	var cfg Config
	var r io.Reader
	switch {
	case len(raw) > 0:
		r = bytes.NewReader(raw)
	case path != "":
		f, err := os.Open(path)
		if err != nil {
			return cfg, err
		}
		defer f.Close()
		r = f
	default:
		return cfg, errors.New("no config source provided")
	}
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		return cfg, &contract.ConfigurationError{Field: "config", Reason: err.Error()}
	}
	return cfg, nil
}

// Merge 按优先级合并（over 覆盖 base）。零值视为未设置；不做深度合并。
func Merge(base, over Config) Config {
	out := base
	if len(over.Inputs) > 0 {
		out.Inputs = cloneStrings(over.Inputs)
	}
	setInt(&out.Workers, over.Workers)
	setInt(&out.MaxFragment, over.MaxFragment)
	setInt(&out.BatchWords, over.BatchWords)
	setInt(&out.BytesPerToken, over.BytesPerToken)
	setStr(&out.Output, over.Output)
	setStr(&out.Overlong, over.Overlong)
	setStr(&out.Normalize, over.Normalize)
	setStr(&out.Translator, over.Translator)
	setStr(&out.Artifact, over.Artifact)
	setStr(&out.StatusAddr, over.StatusAddr)
	setStr(&out.Logging.Level, over.Logging.Level)
	setStr(&out.LLM, over.LLM)

	setInt(&out.Limits.RPM, over.Limits.RPM)
	setInt(&out.Limits.TPM, over.Limits.TPM)
	setInt(&out.Limits.MaxTokensPerReq, over.Limits.MaxTokensPerReq)

	setStr(&out.Components.Reader, over.Components.Reader)
	setStr(&out.Components.Writer, over.Components.Writer)
	setStr(&out.Components.PromptBuilder, over.Components.PromptBuilder)
	setStr(&out.Components.Decoder, over.Components.Decoder)

	// Provider 按键合并：新键整体加入；已有键逐项覆盖非零字段。
	if len(over.Provider) > 0 {
		merged := make(map[string]Provider, len(out.Provider)+len(over.Provider))
		for k, v := range out.Provider {
			merged[k] = v
		}
		for k, v := range over.Provider {
			p := merged[k]
			setStr(&p.Client, v.Client)
			setRaw(&p.Options, v.Options)
			setInt(&p.Limits.RPM, v.Limits.RPM)
			setInt(&p.Limits.TPM, v.Limits.TPM)
			setInt(&p.Limits.MaxTokensPerReq, v.Limits.MaxTokensPerReq)
			merged[k] = p
		}
		out.Provider = merged
	}

	setRaw(&out.Options.Reader, over.Options.Reader)
	setRaw(&out.Options.Writer, over.Options.Writer)
	setRaw(&out.Options.Translator, over.Options.Translator)
	setRaw(&out.Options.PromptBuilder, over.Options.PromptBuilder)
	setRaw(&out.Options.Decoder, over.Options.Decoder)
	return out
}

// EnvOverlay 从环境变量构建一个 Config 覆盖（仅解析有限键集合）。
// 前缀 STREAMTRANS_；支持 INPUTS（逗号分隔）、WORKERS、MAX_FRAGMENT、BATCH_WORDS、BYTES_PER_TOKEN、
// OUTPUT、OVERLONG、NORMALIZE、TRANSLATOR、ARTIFACT、STATUS_ADDR、LOG_LEVEL、LLM、
// LIMITS_{RPM,TPM,MAX_TOKENS_PER_REQ}、COMPONENTS_*、OPTIONS_*_JSON，
// 以及 PROVIDER__<name>__{CLIENT,LIMITS_RPM,LIMITS_TPM,LIMITS_MAX_TOKENS_PER_REQ,OPTIONS_JSON}。
// 数值非法时返回配置错误；未知键忽略。
func EnvOverlay(environ []string) (Config, error) {
	var over Config
	prov := map[string]Provider{}
	for _, kv := range environ {
		if !strings.HasPrefix(kv, EnvPrefix) {
			continue
		}
		eq := strings.IndexByte(kv, '=')
		if eq <= len(EnvPrefix) {
			continue
		}
		key := kv[:eq]
		nk := key[len(EnvPrefix):]
		val := strings.TrimSpace(kv[eq+1:])
		if val == "" {
			continue
		}
		num := func(dst *int) error {
			n, err := strconv.Atoi(val)
			if err != nil {
				return &contract.ConfigurationError{Field: key, Reason: "not an integer: " + val}
			}
			*dst = n
			return nil
		}
		var err error
		switch nk {
		case "INPUTS":
			over.Inputs = splitComma(val)
		case "WORKERS":
			err = num(&over.Workers)
		case "MAX_FRAGMENT":
			err = num(&over.MaxFragment)
		case "BATCH_WORDS":
			err = num(&over.BatchWords)
		case "BYTES_PER_TOKEN":
			err = num(&over.BytesPerToken)
		case "OUTPUT":
			over.Output = val
		case "OVERLONG":
			over.Overlong = val
		case "NORMALIZE":
			over.Normalize = val
		case "TRANSLATOR":
			over.Translator = val
		case "ARTIFACT":
			over.Artifact = val
		case "STATUS_ADDR":
			over.StatusAddr = val
		case "LOG_LEVEL":
			over.Logging.Level = val
		case "LLM":
			over.LLM = val
		case "LIMITS_RPM":
			err = num(&over.Limits.RPM)
		case "LIMITS_TPM":
			err = num(&over.Limits.TPM)
		case "LIMITS_MAX_TOKENS_PER_REQ":
			err = num(&over.Limits.MaxTokensPerReq)
		case "COMPONENTS_READER":
			over.Components.Reader = val
		case "COMPONENTS_WRITER":
			over.Components.Writer = val
		case "COMPONENTS_PROMPT_BUILDER":
			over.Components.PromptBuilder = val
		case "COMPONENTS_DECODER":
			over.Components.Decoder = val
		case "OPTIONS_READER_JSON":
			over.Options.Reader = json.RawMessage(val)
		case "OPTIONS_WRITER_JSON":
			over.Options.Writer = json.RawMessage(val)
		case "OPTIONS_TRANSLATOR_JSON":
			over.Options.Translator = json.RawMessage(val)
		case "OPTIONS_PROMPT_BUILDER_JSON":
			over.Options.PromptBuilder = json.RawMessage(val)
		case "OPTIONS_DECODER_JSON":
			over.Options.Decoder = json.RawMessage(val)
		default:
			// PROVIDER__name__FIELD
			parts := strings.SplitN(nk, "__", 3)
			if len(parts) != 3 || parts[0] != "PROVIDER" || parts[1] == "" {
				continue
			}
			p := prov[parts[1]]
			switch parts[2] {
			case "CLIENT":
				p.Client = val
			case "LIMITS_RPM":
				err = num(&p.Limits.RPM)
			case "LIMITS_TPM":
				err = num(&p.Limits.TPM)
			case "LIMITS_MAX_TOKENS_PER_REQ":
				err = num(&p.Limits.MaxTokensPerReq)
			case "OPTIONS_JSON":
				p.Options = json.RawMessage(val)
			default:
				continue
			}
			prov[parts[1]] = p
		}
		if err != nil {
			return Config{}, err
		}
	}
	if len(prov) > 0 {
		over.Provider = prov
	}
	return over, nil
}

func setInt(dst *int, v int) {
	if v != 0 {
		*dst = v
	}
}

func setStr(dst *string, v string) {
	if t := strings.TrimSpace(v); t != "" {
		*dst = t
	}
}

func setRaw(dst *json.RawMessage, v json.RawMessage) {
	if len(v) > 0 {
		*dst = cloneRaw(v)
	}
}

func cloneStrings(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}

func cloneRaw(in json.RawMessage) json.RawMessage {
	if len(in) == 0 {
		return nil
	}
	out := make([]byte, len(in))
	copy(out, in)
	return out
}

func splitComma(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := parts[:0]
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}
