// resumeprocessor 本地批处理工具：不连接任何存储，直接在文件上运行流水线
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"cvision/internal/config"
	"cvision/internal/extraction"
	"cvision/internal/logger"
	"cvision/internal/parser"
	"cvision/internal/processor"

	"github.com/spf13/pflag"
)

const usage = `用法: resumeprocessor <command> [flags]

命令:
  extract   输出结构化简历 JSON
  lines     输出整理后的行
  rank      对目录中的简历按岗位排序，写出 ranked_results.json
`

// commonFlags 所有子命令共享的参数
type commonFlags struct {
	configPath string
	verbose    bool
}

func (c *commonFlags) register(fs *pflag.FlagSet) {
	fs.StringVarP(&c.configPath, "config", "c", "", "配置文件路径")
	fs.BoolVarP(&c.verbose, "verbose", "v", false, "输出调试日志")
}

// load 读取配置并初始化日志。标准输出留给结果，日志默认只输出错误
func (c *commonFlags) load() (*config.Config, error) {
	cfg, err := config.LoadConfig(c.configPath)
	if err != nil {
		return nil, err
	}
	cfg.Logger.File = ""
	cfg.Logger.Level = "error"
	if c.verbose {
		cfg.Logger.Level = "debug"
	}
	if err := logger.Init(logger.Config(cfg.Logger)); err != nil {
		return nil, err
	}
	return cfg, nil
}

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	var err error
	switch os.Args[1] {
	case "extract":
		err = runExtract(os.Args[2:], false)
	case "lines":
		err = runExtract(os.Args[2:], true)
	case "rank":
		err = runRank(os.Args[2:])
	case "-h", "--help", "help":
		fmt.Fprint(os.Stdout, usage)
		return
	default:
		fmt.Fprintf(os.Stderr, "未知命令 %q\n\n%s", os.Args[1], usage)
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "错误: %v\n", err)
		os.Exit(1)
	}
}

// newService 组装一个只有流水线和可选 Embedder 的服务
func newService(ctx context.Context, cfg *config.Config, withEmbedder bool) (*processor.ResumeService, processor.TextEmbedder) {
	log := logger.Component("cli")
	var (
		opts     []processor.ComponentOpt
		embedder processor.TextEmbedder
	)
	if text, err := extraction.NewEinoTextExtractor(ctx, time.Duration(cfg.Pipeline.ExtractTimeoutSeconds)*time.Second); err == nil {
		opts = append(opts, processor.WithTextExtractor(text))
	} else {
		log.Warn().Err(err).Msg("Eino PDF 文本兜底不可用")
	}
	if withEmbedder {
		if e, err := parser.NewOpenAIEmbedder(cfg.Embedding); err == nil {
			embedder = e
			opts = append(opts, processor.WithEmbedder(e))
		} else {
			log.Warn().Err(err).Msg("未配置向量化，只使用词面打分")
		}
	}
	settings := processor.NewSettings(
		processor.WithPipelineConfig(cfg.Pipeline),
		processor.WithMatcherConfig(cfg.Matcher),
	)
	return processor.NewResumeService(processor.NewComponents(opts...), settings), embedder
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}

func runExtract(args []string, linesOnly bool) error {
	name := "extract"
	if linesOnly {
		name = "lines"
	}
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	var common commonFlags
	common.register(fs)
	output := fs.StringP("output", "o", "", "结果写入文件，默认输出到标准输出")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("%s 需要一个 PDF 或 TXT 文件路径", name)
	}
	path := fs.Arg(0)

	cfg, err := common.load()
	if err != nil {
		return err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("读取文件失败: %w", err)
	}

	ctx := context.Background()
	svc, _ := newService(ctx, cfg, false)
	pipeline := svc.Pipeline()

	var result interface{}
	if linesOnly {
		result, err = pipeline.Lines(ctx, data, path)
	} else {
		result, err = pipeline.ExtractResume(ctx, data, path)
	}
	if err != nil {
		return err
	}

	if *output == "" {
		return writeJSON(os.Stdout, result)
	}
	f, err := os.Create(*output)
	if err != nil {
		return fmt.Errorf("创建输出文件失败: %w", err)
	}
	defer f.Close()
	return writeJSON(f, result)
}
