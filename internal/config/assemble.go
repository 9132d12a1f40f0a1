package config

import (
	"errors"
	"fmt"

	"streamtrans/internal/pipeline"
	"streamtrans/internal/rate"
	"streamtrans/pkg/contract"
	"streamtrans/pkg/registry"
	"streamtrans/plugins/translator/llm"
)

// Assemble 校验配置并构造 Components 与 Settings（含限流 Gate+Key）。
// 严格 Options 解析在 registry（工厂）层进行；此处只传 raw JSON。
func Assemble(cfg Config) (pipeline.Components, pipeline.Settings, error) {
	var comp pipeline.Components
	if err := Validate(cfg); err != nil {
		return comp, pipeline.Settings{}, err
	}
	d := Defaults()

	r, err := registry.Reader[effName(cfg.Components.Reader, d.Components.Reader)](cfg.Options.Reader)
	if err != nil {
		return comp, pipeline.Settings{}, optionErr("options.reader", err)
	}
	w, err := registry.Writer[effName(cfg.Components.Writer, d.Components.Writer)](cfg.Options.Writer)
	if err != nil {
		return comp, pipeline.Settings{}, optionErr("options.writer", err)
	}

	var (
		tr       contract.Translator
		limits   Limits
		key      rate.Key
		overhead int
	)
	est := rate.MakeEstimator(cfg.BytesPerToken)
	if cfg.Translator == LLMTranslator {
		pb, err := registry.PromptBuilder[effName(cfg.Components.PromptBuilder, d.Components.PromptBuilder)](cfg.Options.PromptBuilder)
		if err != nil {
			return comp, pipeline.Settings{}, optionErr("options.prompt_builder", err)
		}
		dec, err := registry.Decoder[effName(cfg.Components.Decoder, d.Components.Decoder)](cfg.Options.Decoder)
		if err != nil {
			return comp, pipeline.Settings{}, optionErr("options.decoder", err)
		}
		prov := cfg.Provider[cfg.LLM]
		client, err := registry.LLMClient[prov.Client](prov.Options)
		if err != nil {
			return comp, pipeline.Settings{}, optionErr("provider."+cfg.LLM+".options", err)
		}
		lt, err := llm.New(pb, client, dec)
		if err != nil {
			return comp, pipeline.Settings{}, err
		}
		tr = lt
		overhead = lt.OverheadTokens(est)
		limits = prov.Limits
		// 分组键从 options 中派生 API Key，同一密钥的多个 provider 共享额度
		key = rate.DeriveKey(prov.Client, prov.Options)
	} else {
		t, err := registry.Translator[cfg.Translator](cfg.Options.Translator)
		if err != nil {
			return comp, pipeline.Settings{}, optionErr("options.translator", err)
		}
		tr = t
		limits = cfg.Limits
		key = rate.DeriveKey(cfg.Translator, cfg.Options.Translator)
	}

	gate := rate.New(map[rate.Key]rate.Limits{
		key: {RPM: limits.RPM, TPM: limits.TPM, MaxTokensPerReq: limits.MaxTokensPerReq},
	}, nil)

	comp = pipeline.Components{Reader: r, Translator: tr, Writer: w}
	set := pipeline.Settings{
		Inputs:        cloneStrings(cfg.Inputs),
		Artifact:      contract.ArtifactID(cfg.Artifact),
		Translator:    cfg.Translator,
		Workers:       cfg.Workers,
		MaxFragment:   cfg.MaxFragment,
		BatchWords:    cfg.BatchWords,
		Overlong:      pipeline.OverlongPolicy(cfg.Overlong),
		Normalize:     cfg.Normalize,
		Output:        contract.Field(cfg.Output),
		Gate:          gate,
		GateKey:       key,
		BytesPerToken: cfg.BytesPerToken,
		Overhead:      overhead,
	}
	if cfg.Translator == LLMTranslator {
		set.Translator = LLMTranslator + "/" + cfg.LLM
	}
	return comp, set, nil
}

// optionErr 将工厂错误归为配置错误（已是配置错误时保持原样）。
func optionErr(field string, err error) error {
	if errors.Is(err, contract.ErrConfiguration) {
		return err
	}
	return &contract.ConfigurationError{Field: field, Reason: fmt.Sprint(err)}
}
