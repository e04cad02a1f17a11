package extraction

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"unicode"

	"cvision/internal/logger"
	"cvision/internal/types"

	"github.com/ledongthuc/pdf"
	"github.com/rs/zerolog"
)

var (
	// ErrUnreadable PDF 无法解析
	ErrUnreadable = errors.New("pdf unreadable")
	// ErrNoText PDF 中没有可抽取的文字（通常是扫描件）
	ErrNoText = errors.New("pdf has no extractable text")
)

const defaultPageHeight = 792.0 // Letter

// PDFWordExtractor 从数字 PDF 的字形流中重建带坐标的词
type PDFWordExtractor struct {
	logger zerolog.Logger
}

// NewPDFWordExtractor 创建词抽取器
func NewPDFWordExtractor() *PDFWordExtractor {
	return &PDFWordExtractor{logger: logger.Component("pdf_words")}
}

// ExtractWords 返回页内坐标（原点左上）的词列表，页码从 1 开始
func (e *PDFWordExtractor) ExtractWords(ctx context.Context, data []byte) (words []types.Word, err error) {
	// 损坏的 PDF 可能让底层库 panic
	defer func() {
		if r := recover(); r != nil {
			words = nil
			err = fmt.Errorf("%w: %v", ErrUnreadable, r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreadable, err)
	}

	numPages := reader.NumPage()
	for i := 1; i <= numPages; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		pageWords := groupGlyphs(page.Content().Text, i, pageHeight(page))
		words = append(words, pageWords...)
	}

	e.logger.Debug().Int("pages", numPages).Int("words", len(words)).Msg("pdf words extracted")
	if len(words) == 0 {
		return nil, ErrNoText
	}
	return words, nil
}

func pageHeight(p pdf.Page) float64 {
	box := p.V.Key("MediaBox")
	if box.IsNull() {
		box = p.V.Key("Parent").Key("MediaBox")
	}
	if box.Len() == 4 {
		if h := box.Index(3).Float64() - box.Index(1).Float64(); h > 0 {
			return h
		}
	}
	return defaultPageHeight
}

// glyphRun 正在累积的词
type glyphRun struct {
	text     strings.Builder
	x0, x1   float64
	baseline float64
	size     float64
}

// groupGlyphs 把逐字形的文本按空白、基线变化和水平间隙切成词。
// PDF 坐标原点在左下，这里转换为 top = H − (Y + size)，bottom = H − Y。
func groupGlyphs(texts []pdf.Text, page int, height float64) []types.Word {
	var (
		words []types.Word
		run   *glyphRun
	)
	flush := func() {
		if run == nil {
			return
		}
		if s := strings.TrimSpace(run.text.String()); s != "" {
			words = append(words, types.Word{
				Page:   page,
				Text:   s,
				X0:     run.x0,
				X1:     run.x1,
				Top:    height - (run.baseline + run.size),
				Bottom: height - run.baseline,
			})
		}
		run = nil
	}

	for _, t := range texts {
		if strings.TrimFunc(t.S, unicode.IsSpace) == "" {
			flush()
			continue
		}
		size := t.FontSize
		if size <= 0 {
			size = 10
		}
		width := t.W
		if width <= 0 {
			width = 0.5 * size * float64(len([]rune(t.S)))
		}

		if run != nil {
			sameBaseline := math.Abs(t.Y-run.baseline) <= 0.5*size
			gap := t.X - run.x1
			if !sameBaseline || gap > 0.2*size || gap < -0.5*size {
				flush()
			}
		}
		if run == nil {
			run = &glyphRun{x0: t.X, baseline: t.Y, size: size}
		}
		run.text.WriteString(t.S)
		run.x1 = t.X + width
		run.size = math.Max(run.size, size)
	}
	flush()
	return words
}
