// Package filesystem 实现基于文件系统与 STDIN 的 Reader。
package filesystem

import (
	"bufio"
	"context"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"streamtrans/pkg/contract"
)

// StdinID 为 STDIN 输入的 FileID。
const StdinID contract.FileID = "stdin"

// Options 为可选配置。
type Options struct {
	// BufSize 读缓冲区大小（字节），默认 64KiB。
	BufSize int `json:"buf_size"`
	// ExcludeDirNames 目录递归时跳过的目录基名（大小写不敏感），例如 [".git","node_modules"]。
	ExcludeDirNames []string `json:"exclude_dir_names"`
	// Include 目录递归时仅接收基名匹配任一模式的文件（filepath.Match 语法）；为空接收全部。
	// 显式给出的文件 root 不受影响。
	Include []string `json:"include"`
}

// FileSystem 按 roots 顺序产出输入；目录内字典序、先子目录后文件。
type FileSystem struct {
	bufSize    int
	excludeDir map[string]struct{}
	include    []string
}

// New 创建 FileSystem Reader；Include 模式非法时返回配置错误。
func New(opts *Options) (*FileSystem, error) {
	o := Options{}
	if opts != nil {
		o = *opts
	}
	if o.BufSize <= 0 {
		o.BufSize = 64 * 1024
	}
	ex := make(map[string]struct{}, len(o.ExcludeDirNames))
	for _, name := range o.ExcludeDirNames {
		if name != "" {
			ex[strings.ToLower(name)] = struct{}{}
		}
	}
	for _, pat := range o.Include {
		if _, err := filepath.Match(pat, ""); err != nil {
			return nil, &contract.ConfigurationError{Field: "reader.include", Reason: pat + ": " + err.Error()}
		}
	}
	return &FileSystem{bufSize: o.BufSize, excludeDir: ex, include: o.Include}, nil
}

var _ contract.Reader = (*FileSystem)(nil)

type yieldFunc = func(contract.FileID, io.ReadCloser) error

// Iterate 对每个输入调用一次 yield。"-" 表示 STDIN，不可与其他 root 混用。
func (r *FileSystem) Iterate(ctx context.Context, roots []string, yield func(fileID contract.FileID, rc io.ReadCloser) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(roots) == 0 || (len(roots) == 1 && roots[0] == "-") {
		return yield(StdinID, r.wrap(os.Stdin))
	}
	for _, s := range roots {
		if s == "-" {
			return &contract.ConfigurationError{Field: "inputs", Reason: "stdin '-' cannot be mixed with other inputs"}
		}
	}
	for _, root := range roots {
		if err := r.visitRoot(ctx, root, yield); err != nil {
			return err
		}
	}
	return nil
}

// visitRoot: 目录递归；文件（含指向常规文件的符号链接）直接产出；指向目录的符号链接与非常规文件忽略。
func (r *FileSystem) visitRoot(ctx context.Context, root string, yield yieldFunc) error {
	info, err := os.Lstat(root)
	if err != nil {
		return err
	}
	if info.IsDir() {
		return r.walkDir(ctx, root, yield)
	}
	if info.Mode()&fs.ModeSymlink != 0 {
		if info, err = os.Stat(root); err != nil {
			return err
		}
	}
	if !info.Mode().IsRegular() {
		return nil
	}
	return r.open(root, yield)
}

func (r *FileSystem) walkDir(ctx context.Context, dir string, yield yieldFunc) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if _, skip := r.excludeDir[strings.ToLower(e.Name())]; skip {
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := r.walkDir(ctx, filepath.Join(dir, e.Name()), yield); err != nil {
			return err
		}
	}
	for _, e := range entries {
		if e.IsDir() || !r.included(e.Name()) {
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		p := filepath.Join(dir, e.Name())
		mode := e.Type()
		if mode&fs.ModeSymlink != 0 {
			t, err := os.Stat(p)
			if err != nil {
				return err
			}
			mode = t.Mode()
		}
		if !mode.IsRegular() {
			continue
		}
		if err := r.open(p, yield); err != nil {
			return err
		}
	}
	return nil
}

func (r *FileSystem) included(name string) bool {
	if len(r.include) == 0 {
		return true
	}
	for _, pat := range r.include {
		if ok, _ := filepath.Match(pat, name); ok {
			return true
		}
	}
	return false
}

// open 打开文件并交给 yield；yield 出错时代为关闭。
func (r *FileSystem) open(p string, yield yieldFunc) error {
	f, err := os.Open(p)
	if err != nil {
		return err
	}
	rc := r.wrap(f)
	if err := yield(contract.NormalizeFileID(p), rc); err != nil {
		_ = rc.Close()
		return err
	}
	return nil
}

// bufferedCloser 将 bufio.Reader 与底层 Closer 组合为 ReadCloser。
type bufferedCloser struct {
	*bufio.Reader
	c io.Closer
}

func (r *FileSystem) wrap(rc io.ReadCloser) *bufferedCloser {
	return &bufferedCloser{Reader: bufio.NewReaderSize(rc, r.bufSize), c: rc}
}

func (b *bufferedCloser) Close() error { return b.c.Close() }
