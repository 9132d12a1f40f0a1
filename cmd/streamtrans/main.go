package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"

	cfgpkg "streamtrans/internal/config"
	"streamtrans/internal/diag"
	"streamtrans/internal/pipeline"
	"streamtrans/internal/statusz"
)

var pipelineRun = pipeline.Run

// 退出码
const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 3
)

// CLI：位置参数为输入（文件/目录，或 "-" 表示 STDIN，不能与其他输入混用）。
// 合并优先级：默认 < JSON < ENV < CLI。
func main() {
	os.Exit(run())
}

func run() int {
	start := time.Now()
	corrID := uuid.NewString()
	// 在任何 ENV 读取前加载工作目录下的 .env（不覆盖已有 ENV）。
	_ = loadDotEnv(".env")
	logger := diag.NewLogger(corrID, "info")
	defer func() { _ = logger.Close() }()

	var (
		flagConfig      string
		flagTranslator  string
		flagLLM         string
		flagWorkers     int
		flagMaxFragment int
		flagBatchWords  int
		flagOutput      string
		flagOverlong    string
		flagNormalize   string
		flagArtifact    string
		flagInitDir     string
		flagStatus      bool
		flagStatusAddr  string
	)
	flag.StringVar(&flagConfig, "config", "", "配置文件路径（JSON）；缺省读取 ./config.json（若存在）")
	flag.StringVar(&flagTranslator, "translator", "", "翻译器名称：echo|flaky|google|llm（覆盖配置）")
	flag.StringVar(&flagLLM, "llm", "", "translator=llm 时使用的 provider 名称（覆盖配置）")
	flag.IntVar(&flagWorkers, "workers", 0, "翻译并发上限（覆盖配置）")
	flag.IntVar(&flagMaxFragment, "max-fragment", 0, "片段最大字符数（覆盖配置）")
	flag.IntVar(&flagBatchWords, "batch-words", 0, "批次词数阈值（覆盖配置）")
	flag.StringVar(&flagOutput, "output", "", "输出字段：translated|transliterated（覆盖配置）")
	flag.StringVar(&flagOverlong, "overlong", "", "超长无空白文本策略：split|error（覆盖配置）")
	flag.StringVar(&flagNormalize, "normalize", "", "输入 Unicode 规范化：none|nfc|nfkc（覆盖配置）")
	flag.StringVar(&flagArtifact, "artifact", "", "输出工件名（fs writer 下相对 output_dir）")
	flag.StringVar(&flagInitDir, "init-config", "", "在指定目录生成默认 config.json 和 .env 模板（已存在则不覆盖）；不带值时默认当前目录")
	flag.BoolVar(&flagStatus, "status", true, "终端状态提示（stderr）。TTY 动态刷新；非 TTY 打点输出")
	flag.StringVar(&flagStatusAddr, "status-addr", "", "状态 HTTP 服务监听地址（如 127.0.0.1:8787）")
	normalizeInitArg()
	flag.Parse()
	inputs := flag.Args()

	// --init-config: 生成模板并退出
	if initDir := strings.TrimSpace(flagInitDir); initDir != "" {
		if err := initConfig(initDir); err != nil {
			fprintf(os.Stderr, "生成默认配置失败: %v\n", err)
			logger.Error("config", string(diag.Classify(err)), "init-config", &start)
			return exitConfig
		}
		return exitOK
	}

	// JSON 配置（文件或 ENV: STREAMTRANS_CONFIG_JSON）
	var cfgJSON []byte
	if s := os.Getenv(cfgpkg.EnvPrefix + "CONFIG_JSON"); s != "" {
		cfgJSON = []byte(s)
	}
	if flagConfig == "" {
		flagConfig = os.Getenv(cfgpkg.EnvPrefix + "CONFIG_FILE")
	}
	if flagConfig == "" {
		if _, err := os.Stat("config.json"); err == nil {
			flagConfig = "config.json"
		}
	}

	cfg := cfgpkg.Defaults()
	if flagConfig != "" || len(cfgJSON) > 0 {
		base, err := cfgpkg.LoadJSON(flagConfig, cfgJSON)
		if err != nil {
			fprintf(os.Stderr, "配置解析失败: %v\n", err)
			logger.Error("config", string(diag.Classify(err)), "first error", &start)
			return exitConfig
		}
		cfg = cfgpkg.Merge(cfg, base)
	}

	overEnv, err := cfgpkg.EnvOverlay(os.Environ())
	if err != nil {
		fprintf(os.Stderr, "环境变量解析失败: %v\n", err)
		logger.Error("config", string(diag.Classify(err)), "first error", &start)
		return exitConfig
	}
	cfg = cfgpkg.Merge(cfg, overEnv)

	cfg = cfgpkg.Merge(cfg, cfgpkg.Config{
		Inputs:      inputs,
		Translator:  flagTranslator,
		LLM:         flagLLM,
		Workers:     flagWorkers,
		MaxFragment: flagMaxFragment,
		BatchWords:  flagBatchWords,
		Output:      flagOutput,
		Overlong:    flagOverlong,
		Normalize:   flagNormalize,
		Artifact:    flagArtifact,
		StatusAddr:  flagStatusAddr,
	})

	if err := cfgpkg.Validate(cfg); err != nil {
		fprintf(os.Stderr, "配置校验失败:\n%v\n", err)
		_ = dumpConfig(cfg)
		logger.Error("config", string(diag.Classify(err)), "first error", &start)
		return exitConfig
	}

	// 使用最终配置中的日志级别重建 logger
	if lv := strings.TrimSpace(cfg.Logging.Level); lv != "" && lv != "info" {
		_ = logger.Close()
		logger = diag.NewLogger(corrID, lv)
	}

	if err := preflightCheckOutputDir(cfg); err != nil {
		fprintf(os.Stderr, "输出目录不可写或无法创建: %v\n", err)
		logger.Error("config", string(diag.Classify(err)), "first error", &start)
		return exitConfig
	}

	comp, set, err := cfgpkg.Assemble(cfg)
	if err != nil {
		fprintf(os.Stderr, "装配失败: %v\n", err)
		logger.Error("config", string(diag.Classify(err)), "first error", &start)
		return exitConfig
	}
	logger.DebugStart("config", "effective", "", "", effectiveKV(cfg))

	// 终端信息提示（非日志）：按 CLI 启用，默认开启
	diag.SetTerminal(diag.NewTerminal(os.Stderr, flagStatus))
	defer diag.SetTerminal(nil)

	if cfg.StatusAddr != "" {
		srv, err := statusz.Start(cfg.StatusAddr, logger)
		if err != nil {
			fprintf(os.Stderr, "状态服务启动失败: %v\n", err)
			logger.Error("statusz", string(diag.Classify(err)), "first error", &start)
			return exitConfig
		}
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			_ = srv.Shutdown(ctx)
		}()
	}

	// 首个信号触发有序排空；之后恢复默认处理，再次中断即退出进程。
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		stop()
	}()

	if err := pipelineRun(ctx, comp, set, logger); err != nil {
		diag.IncOp("cli", "run", "error")
		if errors.Is(err, context.Canceled) {
			fprintf(os.Stderr, "已中断：已提交的批次已排空写出\n")
		} else {
			fprintf(os.Stderr, "运行失败: %v\n", err)
		}
		return exitRuntime
	}
	diag.IncOp("cli", "run", "success")
	diag.ObserveDuration("cli", "run", time.Since(start).Milliseconds())
	return exitOK
}

func fprintf(w *os.File, format string, a ...any) { _, _ = fmt.Fprintf(w, format, a...) }

// effectiveKV 汇总有效配置（不含密钥），用于 debug 日志。
func effectiveKV(cfg cfgpkg.Config) map[string]string {
	kv := map[string]string{
		"inputs_count": strconv.Itoa(len(cfg.Inputs)),
		"workers":      strconv.Itoa(cfg.Workers),
		"max_fragment": strconv.Itoa(cfg.MaxFragment),
		"batch_words":  strconv.Itoa(cfg.BatchWords),
		"output":       cfg.Output,
		"overlong":     cfg.Overlong,
		"normalize":    cfg.Normalize,
		"translator":   cfg.Translator,
		"artifact":     cfg.Artifact,
		"reader":       cfg.Components.Reader,
		"writer":       cfg.Components.Writer,
	}
	if cfg.Translator != cfgpkg.LLMTranslator {
		return kv
	}
	kv["llm"] = cfg.LLM
	if p, ok := cfg.Provider[cfg.LLM]; ok {
		kv["provider_client"] = p.Client
		var s struct {
			BaseURL  string `json:"base_url"`
			Model    string `json:"model"`
			Endpoint string `json:"endpoint_path"`
		}
		_ = json.Unmarshal(p.Options, &s)
		if s.BaseURL != "" {
			kv["base_url"] = s.BaseURL
		}
		if s.Model != "" {
			kv["model"] = s.Model
		}
		if s.Endpoint != "" {
			kv["endpoint_path"] = s.Endpoint
		}
	}
	return kv
}

func dumpConfig(c cfgpkg.Config) error {
	b, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	_, _ = os.Stderr.Write(append([]byte("有效配置:\n"), b...))
	_, _ = os.Stderr.Write([]byte("\n"))
	return nil
}

// initConfig 在 dir 下生成 config.json（已存在则报错）与 .env（已存在则跳过）。
func initConfig(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	if err := writeConfig(filepath.Join(dir, "config.json"), cfgpkg.DefaultTemplateConfig()); err != nil {
		return err
	}
	if err := writeDotEnv(filepath.Join(dir, ".env")); err != nil {
		fprintf(os.Stderr, "提示：.env 生成失败（已跳过）：%v\n", err)
	}
	return nil
}

func writeConfig(path string, c cfgpkg.Config) error {
	b, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	if path == "-" {
		_, err = os.Stdout.Write(append(b, '\n'))
		return err
	}
	// 不覆盖已存在文件
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = f.Write(append(b, '\n'))
	return err
}

// writeDotEnv 生成 .env 模板；已存在则跳过，不合并。
func writeDotEnv(path string) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if os.IsExist(err) {
			return nil
		}
		return err
	}
	defer f.Close()
	_, err = f.WriteString(cfgpkg.DotEnvTemplate)
	return err
}

// loadDotEnv 读取简单的 .env 文件并注入进程环境：
// 忽略不存在的文件；跳过空行与 # 注释；支持可选前缀 "export "；
// 按首个 '=' 分割，成对引号去除（双引号内处理 \n \t \r \" \\）；
// 不覆盖已存在的环境变量。
func loadDotEnv(path string) error {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	defer f.Close()
	s := bufio.NewScanner(f)
	for s.Scan() {
		line := strings.TrimSpace(s.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.TrimSpace(strings.TrimPrefix(line, "export "))
		eq := strings.IndexByte(line, '=')
		if eq <= 0 {
			continue
		}
		key := strings.TrimSpace(line[:eq])
		val := strings.TrimSpace(line[eq+1:])
		if len(val) >= 2 {
			if (val[0] == '\'' && val[len(val)-1] == '\'') || (val[0] == '"' && val[len(val)-1] == '"') {
				quoted := val[0]
				val = val[1 : len(val)-1]
				if quoted == '"' {
					val = strings.NewReplacer(`\n`, "\n", `\t`, "\t", `\r`, "\r", `\"`, `"`, `\\`, `\`).Replace(val)
				}
			}
		}
		if _, exists := os.LookupEnv(key); exists {
			continue
		}
		_ = os.Setenv(key, val)
	}
	return s.Err()
}

// normalizeInitArg: --init-config 未带值（位于末尾或后接其他开关）时补默认值 "."。
func normalizeInitArg() {
	args := os.Args
	if len(args) <= 1 {
		return
	}
	out := make([]string, 0, len(args)+1)
	out = append(out, args[0])
	for i := 1; i < len(args); i++ {
		a := args[i]
		out = append(out, a)
		if a == "--init-config" || a == "-init-config" {
			if i == len(args)-1 || strings.HasPrefix(args[i+1], "-") {
				out = append(out, ".")
			}
		}
	}
	os.Args = out
}

// preflightCheckOutputDir: fs writer 启动前检查输出目录可写性。
// 目录存在时尝试创建并删除临时文件；不存在时检查父目录可写。其他 writer 跳过。
func preflightCheckOutputDir(cfg cfgpkg.Config) error {
	name := strings.TrimSpace(cfg.Components.Writer)
	if name == "" {
		name = cfgpkg.Defaults().Components.Writer
	}
	if name != "fs" {
		return nil
	}
	var wopts struct {
		OutputDir string `json:"output_dir"`
	}
	if len(cfg.Options.Writer) > 0 {
		_ = json.Unmarshal(cfg.Options.Writer, &wopts)
	}
	dir := strings.TrimSpace(wopts.OutputDir)
	if dir == "" {
		dir = "."
	}
	st, err := os.Stat(dir)
	switch {
	case err == nil && st.IsDir():
		f, err := os.CreateTemp(dir, ".wcheck-*")
		if err != nil {
			return err
		}
		name := f.Name()
		_ = f.Close()
		_ = os.Remove(name)
		return nil
	case err == nil:
		return fmt.Errorf("路径存在但不是目录: %s", dir)
	case !os.IsNotExist(err):
		return err
	}
	parent := filepath.Dir(dir)
	if parent == dir {
		return fmt.Errorf("无法确定父目录: %s", dir)
	}
	pst, err := os.Stat(parent)
	if err != nil {
		return err
	}
	if !pst.IsDir() {
		return fmt.Errorf("父路径不是目录: %s", parent)
	}
	tmpd, err := os.MkdirTemp(parent, ".wcheck-*")
	if err != nil {
		return err
	}
	_ = os.RemoveAll(tmpd)
	return nil
}
