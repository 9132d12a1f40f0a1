// Package filesystem 实现落盘 Writer：工件 ID 映射到 OutputDir 下的相对路径。
package filesystem

import (
	"bufio"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"

	"streamtrans/pkg/contract"
)

// Options: 均可选。
type Options struct {
	// OutputDir 输出根目录，默认当前目录。
	OutputDir string `json:"output_dir"`
	// Atomic 同目录临时文件写完后 rename 替换，默认 true。Append 时忽略。
	Atomic *bool `json:"atomic,omitempty"`
	// Append 追加到已有文件末尾而非覆盖。
	Append bool `json:"append,omitempty"`
	// Flat 仅保留工件基名，丢弃目录层级。
	Flat bool `json:"flat,omitempty"`
	// PermFile/PermDir 为 0 时取 0644/0755。
	PermFile os.FileMode `json:"perm_file,omitempty"`
	PermDir  os.FileMode `json:"perm_dir,omitempty"`
	// BufSize 写缓冲区大小，<=0 取 64KiB。
	BufSize int `json:"buf_size,omitempty"`
}

type FS struct {
	root    string
	atomic  bool
	append  bool
	flat    bool
	permF   os.FileMode
	permD   os.FileMode
	bufSize int
}

// New 创建文件系统 Writer。
func New(opts *Options) (*FS, error) {
	o := Options{}
	if opts != nil {
		o = *opts
	}
	if strings.TrimSpace(o.OutputDir) == "" {
		o.OutputDir = "."
	}
	if o.BufSize <= 0 {
		o.BufSize = 64 * 1024
	}
	if o.PermFile == 0 {
		o.PermFile = 0o644
	}
	if o.PermDir == 0 {
		o.PermDir = 0o755
	}
	atomic := o.Atomic == nil || *o.Atomic
	return &FS{
		root:    o.OutputDir,
		atomic:  atomic && !o.Append,
		append:  o.Append,
		flat:    o.Flat,
		permF:   o.PermFile,
		permD:   o.PermDir,
		bufSize: o.BufSize,
	}, nil
}

var _ contract.Writer = (*FS)(nil)

// Write 将 r 的全部字节写入 id 对应路径。
// r 以 EOF 结束即提交（原子模式下 rename 生效）；读取出错则丢弃临时文件。
func (w *FS) Write(ctx context.Context, id contract.ArtifactID, r io.Reader) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	dest, err := w.mapPath(id)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(dest), w.permD); err != nil {
		return err
	}
	src := &ctxReader{ctx: ctx, r: r}
	if w.atomic {
		return w.writeAtomic(dest, src)
	}
	flag := os.O_CREATE | os.O_WRONLY | os.O_TRUNC
	if w.append {
		flag = os.O_CREATE | os.O_WRONLY | os.O_APPEND
	}
	f, err := os.OpenFile(dest, flag, w.permF)
	if err != nil {
		return err
	}
	if err := w.copyTo(f, src); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// mapPath: 拒绝空名、绝对路径、卷名与父级逃逸。
func (w *FS) mapPath(id contract.ArtifactID) (string, error) {
	rel := filepath.Clean(filepath.FromSlash(string(id)))
	if w.flat {
		rel = filepath.Base(rel)
	}
	switch {
	case rel == "." || rel == ".." || rel == string(filepath.Separator):
		return "", contract.ErrPathInvalid
	case filepath.IsAbs(rel) || filepath.VolumeName(rel) != "":
		return "", contract.ErrPathInvalid
	case strings.HasPrefix(rel, ".."+string(filepath.Separator)):
		return "", contract.ErrPathInvalid
	}
	return filepath.Join(w.root, rel), nil
}

func (w *FS) copyTo(f *os.File, r io.Reader) error {
	bw := bufio.NewWriterSize(f, w.bufSize)
	if _, err := io.Copy(bw, r); err != nil {
		_ = bw.Flush()
		return err
	}
	return bw.Flush()
}

func (w *FS) writeAtomic(dest string, r io.Reader) error {
	dir := filepath.Dir(dest)
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	fail := func(err error) error {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return err
	}
	if err := tmp.Chmod(w.permF); err != nil {
		return fail(err)
	}
	if err := w.copyTo(tmp, r); err != nil {
		return fail(err)
	}
	if err := tmp.Sync(); err != nil {
		return fail(err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	// os.Rename 在 Windows 上同样覆盖已存在的目标。
	if err := os.Rename(tmpPath, dest); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	syncDir(dir)
	return nil
}

// syncDir 尽力持久化目录项；不支持的平台上静默失败。
func syncDir(dir string) {
	f, err := os.Open(dir)
	if err != nil {
		return
	}
	_ = f.Sync()
	_ = f.Close()
}

// ctxReader 在每次 Read 前检查 ctx。
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (cr *ctxReader) Read(p []byte) (int, error) {
	if err := cr.ctx.Err(); err != nil {
		return 0, err
	}
	return cr.r.Read(p)
}
