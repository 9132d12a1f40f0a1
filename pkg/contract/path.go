package contract

import (
	"path"
	"strings"
)

// NormalizeFileID 将输入路径规范化为跨平台稳定的 FileID：
// 反斜杠统一为正斜杠，清理多余分隔符与 . / .. 片段，不做隐式绝对化。
func NormalizeFileID(p string) FileID {
	return FileID(path.Clean(strings.ReplaceAll(p, "\\", "/")))
}
