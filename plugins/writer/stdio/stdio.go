// Package stdio 提供写往标准输出的 Writer，工件 ID 仅用于诊断。
package stdio

import (
	"bufio"
	"context"
	"io"
	"os"

	"streamtrans/pkg/contract"
)

// Stdout 将字节流逐块透传到 out（默认 os.Stdout）。
type Stdout struct {
	out io.Writer
}

func New() *Stdout { return &Stdout{out: os.Stdout} }

var _ contract.Writer = (*Stdout)(nil)

// Write 每次读到数据即写出并冲刷，便于下游实时消费。
func (s *Stdout) Write(ctx context.Context, _ contract.ArtifactID, r io.Reader) error {
	bw := bufio.NewWriter(s.out)
	buf := make([]byte, 32*1024)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, rerr := r.Read(buf)
		if n > 0 {
			if _, err := bw.Write(buf[:n]); err != nil {
				return err
			}
			if err := bw.Flush(); err != nil {
				return err
			}
		}
		if rerr == io.EOF {
			return nil
		}
		if rerr != nil {
			return rerr
		}
	}
}
