package registry

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"streamtrans/pkg/contract"
)

// TestStrictUnmarshal 验证严格解码逻辑。
func TestStrictUnmarshal(t *testing.T) {
	type opt struct {
		A int `json:"a"`
	}
	var o opt
	if err := strictUnmarshal(nil, &o); err != nil || o.A != 0 {
		t.Fatalf("nil 输入失败: %v", err)
	}
	if err := strictUnmarshal(json.RawMessage(`{"a":1}`), &o); err != nil || o.A != 1 {
		t.Fatalf("合法 JSON 解析失败: %v", err)
	}
	if err := strictUnmarshal(json.RawMessage(`{"a":1,"b":2}`), &o); err == nil {
		t.Fatalf("未知字段应报错")
	}
}

// TestNames 名称按字典序
func TestNames(t *testing.T) {
	got := Names(Translator)
	want := []string{"echo", "flaky", "google"}
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Fatalf("names=%v want %v", got, want)
	}
}

// TestFactories 遍历注册表入口。
func TestFactories(t *testing.T) {
	t.Run("reader", func(t *testing.T) {
		if _, err := Reader["fs"](json.RawMessage(`{}`)); err != nil {
			t.Fatalf("reader: %v", err)
		}
		if _, err := Reader["fs"](json.RawMessage(`{"x":1}`)); err == nil {
			t.Fatalf("reader 未对未知字段报错")
		}
	})
	t.Run("writer", func(t *testing.T) {
		tmp := t.TempDir()
		if _, err := Writer["fs"](json.RawMessage(fmt.Sprintf(`{"output_dir":%q}`, tmp))); err != nil {
			t.Fatalf("writer: %v", err)
		}
		if _, err := Writer["fs"](json.RawMessage(fmt.Sprintf(`{"output_dir":%q,"x":1}`, tmp))); err == nil {
			t.Fatalf("writer 未对未知字段报错")
		}
		if _, err := Writer["stdout"](nil); err != nil {
			t.Fatalf("stdout: %v", err)
		}
		if _, err := Writer["stdout"](json.RawMessage(`{"x":1}`)); err == nil {
			t.Fatalf("stdout 未对未知字段报错")
		}
	})
	t.Run("translator", func(t *testing.T) {
		for _, name := range []string{"echo", "flaky", "google"} {
			if _, err := Translator[name](json.RawMessage(`{}`)); err != nil {
				t.Fatalf("%s: %v", name, err)
			}
			if _, err := Translator[name](json.RawMessage(`{"x":1}`)); err == nil {
				t.Fatalf("%s 未对未知字段报错", name)
			}
		}
	})
	t.Run("prompt", func(t *testing.T) {
		if _, err := PromptBuilder["translate"](json.RawMessage(`{}`)); err != nil {
			t.Fatalf("prompt: %v", err)
		}
		if _, err := PromptBuilder["translate"](json.RawMessage(`{"x":1}`)); err == nil {
			t.Fatalf("prompt 未对未知字段报错")
		}
	})
	t.Run("decoder", func(t *testing.T) {
		if _, err := Decoder["segjson"](json.RawMessage(`{}`)); err != nil {
			t.Fatalf("decoder: %v", err)
		}
	})
	t.Run("llm-mock", func(t *testing.T) {
		if _, err := LLMClient["mock"](json.RawMessage(`{}`)); err != nil {
			t.Fatalf("mock: %v", err)
		}
	})
	t.Run("llm-missing-key", func(t *testing.T) {
		t.Setenv("OPENAI_API_KEY", "")
		t.Setenv("GOOGLE_API_KEY", "")
		for _, name := range []string{"openai", "gemini"} {
			if _, err := LLMClient[name](json.RawMessage(`{}`)); !errors.Is(err, contract.ErrConfiguration) {
				t.Fatalf("%s 未按预期报错: %v", name, err)
			}
		}
	})
}
