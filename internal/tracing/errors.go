package tracing

import (
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// ErrorType 写入 error.type 属性，按依赖分类
type ErrorType string

const (
	ErrorTypeHTTP        ErrorType = "http"
	ErrorTypeDB          ErrorType = "db"
	ErrorTypeRabbitMQ    ErrorType = "rabbitmq"
	ErrorTypeVectorDB    ErrorType = "vector_db"
	ErrorTypeObjectStore ErrorType = "object_store"
	ErrorTypeValidation  ErrorType = "validation"
	ErrorTypeTimeout     ErrorType = "timeout"
	ErrorTypeExtraction  ErrorType = "extraction" // PDF 或纯文本抽取
	ErrorTypeLLM         ErrorType = "llm"
	ErrorTypeEmbedding   ErrorType = "embedding"
)

func markFailed(span trace.Span, errorType ErrorType, msg string, extra ...attribute.KeyValue) {
	attrs := make([]attribute.KeyValue, 0, len(extra)+2)
	attrs = append(attrs,
		attribute.String("error.type", string(errorType)),
		attribute.String("error.message", TruncateString(msg, MaxErrorLength)),
	)
	span.SetAttributes(append(attrs, extra...)...)
	span.SetStatus(codes.Error, msg)
}

// RecordError 记录错误并把 span 标为失败。span 或 err 为 nil 时什么都不做
func RecordError(span trace.Span, err error, errorType ErrorType) {
	RecordErrorWithInfo(span, err, errorType)
}

// RecordErrorWithInfo 同 RecordError，附带额外属性
func RecordErrorWithInfo(span trace.Span, err error, errorType ErrorType, attributes ...attribute.KeyValue) {
	if span == nil || err == nil {
		return
	}
	span.RecordError(err)
	markFailed(span, errorType, err.Error(), attributes...)
}

func httpErrorCategory(statusCode int) string {
	switch {
	case statusCode == 429:
		return "rate_limited"
	case statusCode >= 400 && statusCode < 500:
		return "client_error"
	case statusCode >= 500:
		return "server_error"
	}
	return "unknown"
}

// RecordHTTPError 外部 HTTP 调用（大模型、向量化、Qdrant）返回非 2xx
func RecordHTTPError(span trace.Span, err error, statusCode int) {
	RecordErrorWithInfo(span, err, ErrorTypeHTTP,
		attribute.Int("http.status_code", statusCode),
		attribute.String("error.category", httpErrorCategory(statusCode)),
	)
}

// RecordRabbitMQNack 消息被拒绝并重新入队
func RecordRabbitMQNack(span trace.Span, messageID string, reason string) {
	if span == nil {
		return
	}
	if reason == "" {
		reason = "message not acknowledged"
	}
	markFailed(span, ErrorTypeRabbitMQ, reason,
		attribute.String("messaging.message_id", messageID),
		attribute.String("messaging.operation", "nack"),
		attribute.Bool("messaging.requeue", true),
	)
}
