package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"

	"streamtrans/pkg/contract"
	"streamtrans/pkg/registry"
)

// LLMTranslator 为组合翻译器名：PromptBuilder + LLMClient + Decoder。
const LLMTranslator = "llm"

var (
	vOnce  sync.Once
	vInst  *validator.Validate
	vTrans ut.Translator
)

// validate 返回单例校验器（英文消息；字段名取 json 标签）。
func validate() (*validator.Validate, ut.Translator) {
	vOnce.Do(func() {
		enLoc := en.New()
		uni := ut.New(enLoc, enLoc)
		trans, _ := uni.GetTranslator("en")

		v := validator.New(validator.WithRequiredStructEnabled())
		v.RegisterTagNameFunc(func(fld reflect.StructField) string {
			tag := fld.Tag.Get("json")
			if tag == "-" || tag == "" {
				return fld.Name
			}
			if idx := strings.Index(tag, ","); idx >= 0 {
				tag = tag[:idx]
			}
			return tag
		})
		_ = en_translations.RegisterDefaultTranslations(v, trans)
		vInst, vTrans = v, trans
	})
	return vInst, vTrans
}

// Validate 做静态校验：先按结构标签，再校验注册表名与组合关系。
// 全部问题以 *contract.ConfigurationError 汇总返回（errors.Join）。
func Validate(cfg Config) error {
	var errs []error
	v, trans := validate()
	if err := v.Struct(cfg); err != nil {
		var ves validator.ValidationErrors
		if !errors.As(err, &ves) {
			return &contract.ConfigurationError{Field: "config", Reason: err.Error()}
		}
		for _, fe := range ves {
			errs = append(errs, &contract.ConfigurationError{Field: fieldPath(fe.Namespace()), Reason: fe.Translate(trans)})
		}
	}

	dash := false
	for _, in := range cfg.Inputs {
		if strings.TrimSpace(in) == "-" {
			dash = true
		}
	}
	if dash && len(cfg.Inputs) > 1 {
		errs = append(errs, &contract.ConfigurationError{Field: "inputs", Reason: "'-' cannot be mixed with other inputs"})
	}
	if a := cfg.Artifact; a != "" && (filepath.IsAbs(a) || strings.HasPrefix(a, "/")) {
		errs = append(errs, &contract.ConfigurationError{Field: "artifact", Reason: "must be a relative path"})
	}

	d := Defaults()
	errs = append(errs,
		checkName("components.reader", effName(cfg.Components.Reader, d.Components.Reader), registry.Names(registry.Reader)),
		checkName("components.writer", effName(cfg.Components.Writer, d.Components.Writer), registry.Names(registry.Writer)),
	)

	if cfg.Translator == LLMTranslator {
		errs = append(errs,
			checkName("components.prompt_builder", effName(cfg.Components.PromptBuilder, d.Components.PromptBuilder), registry.Names(registry.PromptBuilder)),
			checkName("components.decoder", effName(cfg.Components.Decoder, d.Components.Decoder), registry.Names(registry.Decoder)),
		)
		prov, ok := cfg.Provider[cfg.LLM]
		switch {
		case cfg.LLM == "":
			errs = append(errs, &contract.ConfigurationError{Field: "llm", Reason: "required when translator is llm"})
		case !ok:
			errs = append(errs, &contract.ConfigurationError{Field: "llm", Reason: fmt.Sprintf("provider %q not found", cfg.LLM)})
		case prov.Client != "":
			errs = append(errs, checkName("provider."+cfg.LLM+".client", prov.Client, registry.Names(registry.LLMClient)))
		}
	} else if cfg.Translator != "" {
		errs = append(errs, checkName("translator", cfg.Translator, append(registry.Names(registry.Translator), LLMTranslator)))
	}
	return errors.Join(errs...)
}

func checkName(field, name string, known []string) error {
	for _, k := range known {
		if k == name {
			return nil
		}
	}
	return &contract.ConfigurationError{Field: field, Reason: fmt.Sprintf("%q not registered (known: %s)", name, strings.Join(known, ", "))}
}

// fieldPath: "Config.limits.rpm" → "limits.rpm"；map 键保留为 provider[name].client。
func fieldPath(ns string) string {
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		return ns[i+1:]
	}
	return ns
}

func effName(got, def string) string {
	if got == "" {
		return def
	}
	return got
}
