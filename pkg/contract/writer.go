package contract

import (
	"context"
	"io"
)

// ArtifactID: 输出工件标识。
type ArtifactID = FileID

// Writer: 将 Sink 产出的字节流持久化（标准输出/文件）。
// 约束：
//  1. 同一 ArtifactID 单写者；
//  2. 流式写入，按字节透传；
//  3. ctx 取消需尽快返回；
//  4. 错误直接上抛。
type Writer interface {
	Write(ctx context.Context, id ArtifactID, r io.Reader) error
}
