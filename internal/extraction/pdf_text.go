package extraction

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"cvision/internal/logger"

	"github.com/cloudwego/eino-ext/components/document/parser/pdf"
	einoParser "github.com/cloudwego/eino/components/document/parser"
	"github.com/rs/zerolog"
)

// EinoTextExtractor 用 Eino PDF Parser 抽取整篇纯文本。
// 字形流拿不到词时作为兜底，结果再走纯文本流水线。
type EinoTextExtractor struct {
	parser  *pdf.PDFParser
	timeout time.Duration
	logger  zerolog.Logger
}

// NewEinoTextExtractor 初始化，不按页面分割
func NewEinoTextExtractor(ctx context.Context, timeout time.Duration) (*EinoTextExtractor, error) {
	p, err := pdf.NewPDFParser(ctx, &pdf.Config{
		ToPages: false,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Eino PDF parser: %w", err)
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &EinoTextExtractor{
		parser:  p,
		timeout: timeout,
		logger:  logger.Component("pdf_text"),
	}, nil
}

// ExtractText 返回文档全文
func (e *EinoTextExtractor) ExtractText(ctx context.Context, data []byte, uri string) (string, error) {
	startTime := time.Now()
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	docs, err := e.parser.Parse(ctx, bytes.NewReader(data),
		einoParser.WithURI(uri),
		einoParser.WithExtraMeta(map[string]any{
			"extraction_time": startTime.Format(time.RFC3339),
		}),
	)
	if err != nil {
		return "", fmt.Errorf("%w: eino parser failed for %s: %v", ErrUnreadable, uri, err)
	}

	var sb strings.Builder
	for i, doc := range docs {
		if i > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString(doc.Content)
	}
	text := strings.TrimSpace(sb.String())

	e.logger.Debug().
		Str("uri", uri).
		Int("documents", len(docs)).
		Int("chars", len(text)).
		Dur("elapsed", time.Since(startTime)).
		Msg("pdf text extracted")

	if text == "" {
		return "", ErrNoText
	}
	return text, nil
}
