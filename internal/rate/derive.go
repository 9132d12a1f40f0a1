package rate

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"os"
)

// DeriveKey 为翻译服务构造限流分组键。
// 若 options JSON 中带有 api_key（或 api_key_env 指向的环境变量），键为 name:sha256(key)，
// 使同一密钥的多个配置共享额度；否则键即为 name。
func DeriveKey(name string, options json.RawMessage) Key {
	var obj struct {
		APIKey    string `json:"api_key"`
		APIKeyEnv string `json:"api_key_env"`
	}
	if len(options) > 0 {
		_ = json.Unmarshal(options, &obj)
	}
	secret := obj.APIKey
	if secret == "" && obj.APIKeyEnv != "" {
		secret = os.Getenv(obj.APIKeyEnv)
	}
	if secret == "" {
		return Key(name)
	}
	sum := sha256.Sum256([]byte(secret))
	return Key(fmt.Sprintf("%s:%x", name, sum[:8]))
}
