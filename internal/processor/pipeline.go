package processor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"cvision/internal/config"
	"cvision/internal/extraction"
	"cvision/internal/postprocess"
	"cvision/internal/sectioning"
	"cvision/internal/tracing"
	"cvision/internal/types"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("cvision/processor")

// Format 输入文件格式
type Format string

const (
	FormatPDF  Format = "pdf"
	FormatText Format = "text"
)

// DetectFormat 按扩展名和文件头判断格式
func DetectFormat(filename string, data []byte) (Format, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	switch {
	case ext == ".pdf" || bytes.HasPrefix(data, []byte("%PDF")):
		return FormatPDF, nil
	case ext == ".txt" || ext == ".md" || (ext == "" && utf8.Valid(data)):
		return FormatText, nil
	}
	return "", fmt.Errorf("%w: %s", ErrUnsupportedFormat, ext)
}

// Pipeline 文档 -> 行 -> 结构化中间记录 -> 最终简历。无状态，可并发使用
type Pipeline struct {
	words   WordExtractor
	text    TextExtractor
	wrap    *extraction.WrapMerger
	router  *sectioning.Router
	merger  *sectioning.LineMerger
	bullets *postprocess.BulletMerger
	builder *postprocess.Builder
	cfg     config.PipelineConfig
	logger  zerolog.Logger
}

// NewPipeline 未提供词抽取器时使用内置的 PDF 字形抽取
func NewPipeline(comps *Components, settings *Settings) *Pipeline {
	if comps == nil {
		comps = NewComponents()
	}
	if settings == nil {
		settings = DefaultSettings()
	}
	cfg := settings.Pipeline
	words := comps.Words
	if words == nil {
		words = extraction.NewPDFWordExtractor()
	}
	return &Pipeline{
		words: words,
		text:  comps.Text,
		wrap: extraction.NewWrapMerger(
			extraction.WithWrapThresholds(cfg.WrapVerticalGap, cfg.WrapAlignThreshold),
			extraction.WithWrapLogger(settings.Logger),
		),
		router: sectioning.NewRouter(sectioning.WithPageMidX(cfg.PageMidX)),
		merger: sectioning.NewLineMerger(
			sectioning.WithMergeYThreshold(cfg.MergeLinesYThreshold),
			sectioning.WithEducationThresholds(cfg.EducationVerticalGap, cfg.EducationAlign),
		),
		bullets: postprocess.NewBulletMerger(
			postprocess.WithBulletThresholds(cfg.BulletVerticalGap, cfg.BulletIndentDiff),
			postprocess.WithBulletLogger(settings.Logger),
		),
		builder: postprocess.NewBuilder(comps.Provider),
		cfg:     cfg,
		logger:  settings.Logger,
	}
}

// CheckSize 上传大小限制，MaxUploadMB <= 0 表示不限制
func (p *Pipeline) CheckSize(size int) error {
	if p.cfg.MaxUploadMB <= 0 {
		return nil
	}
	if limit := p.cfg.MaxUploadMB << 20; size > limit {
		return fmt.Errorf("%w: %d > %d bytes", ErrFileTooLarge, size, limit)
	}
	return nil
}

// LinesFromWords PDF 路径：组行、分类、换行合并，再进入公共阶段
func (p *Pipeline) LinesFromWords(words []types.Word) []types.Line {
	lines := extraction.AssembleLines(words, p.cfg.LineYThreshold)
	lines = extraction.ClassifyLines(lines)
	lines = p.wrap.Merge(lines)
	return p.refine(lines)
}

// LinesFromText 纯文本路径：每行一条，补齐内联章节头
func (p *Pipeline) LinesFromText(text string) []types.Line {
	lines := extraction.PlaintextToLines(text)
	lines = extraction.ClassifyLines(lines)
	lines = extraction.AdaptPlaintextLines(lines)
	return p.refine(lines)
}

// refine 分节、行合并、要点续行，顺序不可调换
func (p *Pipeline) refine(lines []types.Line) []types.Line {
	lines = p.router.AssignSections(lines)
	lines = p.merger.MergeLines(lines)
	lines = postprocess.SplitEmbeddedBullets(lines)
	lines = p.bullets.MergeBulletContinuations(lines)
	lines = p.merger.MergeEducationWrapped(lines)
	lines = p.bullets.MergeBulletContinuations(lines)
	return postprocess.DropEmptyLines(lines)
}

// Lines 抽取并整理行，调试和 CLI 使用
func (p *Pipeline) Lines(ctx context.Context, data []byte, filename string) ([]types.Line, error) {
	ctx, span := tracer.Start(ctx, "Pipeline.Lines",
		trace.WithAttributes(
			attribute.String("document.name", filename),
			attribute.Int("document.size", len(data)),
		))
	defer span.End()

	if p.cfg.ExtractTimeoutSeconds > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(p.cfg.ExtractTimeoutSeconds)*time.Second)
		defer cancel()
	}

	format, err := DetectFormat(filename, data)
	if err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeValidation)
		return nil, err
	}
	span.SetAttributes(attribute.String("document.format", string(format)))

	var lines []types.Line
	switch format {
	case FormatPDF:
		lines, err = p.pdfLines(ctx, data, filename)
	default:
		if !utf8.Valid(data) {
			err = NewExtractionError(filename, "文本不是合法的 UTF-8")
			break
		}
		lines = p.LinesFromText(string(data))
	}
	if err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeExtraction)
		return nil, err
	}
	span.SetAttributes(attribute.Int("document.lines", len(lines)))
	return lines, nil
}

func (p *Pipeline) pdfLines(ctx context.Context, data []byte, filename string) ([]types.Line, error) {
	words, err := p.words.ExtractWords(ctx, data)
	switch {
	case err == nil:
		return p.LinesFromWords(words), nil
	case errors.Is(err, extraction.ErrNoText):
		if p.text == nil {
			return nil, &PipelineError{DocumentID: filename, Op: "extract", BaseErr: ErrEmptyDocument, Detail: err.Error()}
		}
		p.logger.Info().Str("file", filename).Msg("PDF 字形流无文字，改用纯文本抽取")
		text, terr := p.text.ExtractText(ctx, data, filename)
		if terr != nil {
			return nil, NewExtractionError(filename, terr.Error())
		}
		return p.LinesFromText(text), nil
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return nil, err
	default:
		return nil, NewExtractionError(filename, err.Error())
	}
}

// Structure 行 -> 结构化中间记录，并补充短语、嵌入要点和教育条目切分
func (p *Pipeline) Structure(lines []types.Line) *types.StructuredResume {
	s := postprocess.Structure(lines)
	postprocess.ExtractPhrases(s)
	postprocess.ExtractEmbeddedBullets(s)
	s.Education = postprocess.SplitEducationEntries(s.Education)
	return s
}

// ExtractResume 完整流水线，返回 schema v1 简历
func (p *Pipeline) ExtractResume(ctx context.Context, data []byte, filename string) (*types.Resume, error) {
	if err := p.CheckSize(len(data)); err != nil {
		return nil, err
	}
	lines, err := p.Lines(ctx, data, filename)
	if err != nil {
		return nil, err
	}
	if len(lines) == 0 {
		return nil, &PipelineError{DocumentID: filename, Op: "extract", BaseErr: ErrEmptyDocument}
	}

	ctx, span := tracer.Start(ctx, "Pipeline.Build")
	defer span.End()
	resume := p.builder.BuildFinalResume(ctx, p.Structure(lines))
	span.SetAttributes(
		attribute.String("candidate.name", tracing.SafeAttributeValue("name", resume.Profile.Name, tracing.MaxAttributeLength)),
		attribute.String("candidate.email", tracing.SafeAttributeValue("email", resume.Profile.Email, tracing.MaxAttributeLength)),
		attribute.Int("resume.experience", len(resume.Experience)),
		attribute.Int("resume.projects", len(resume.Projects)),
	)

	p.logger.Debug().
		Str("file", filename).
		Int("lines", len(lines)).
		Int("experience", len(resume.Experience)).
		Int("projects", len(resume.Projects)).
		Int("education", len(resume.Education)).
		Msg("简历结构化完成")
	return resume, nil
}
