package tracing

import (
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// ErrorType 写入 span 的 error.type
type ErrorType string

const (
	ErrorTypeHTTP       ErrorType = "http"
	ErrorTypeDB         ErrorType = "db"
	ErrorTypeRedis      ErrorType = "redis"
	ErrorTypeRabbitMQ   ErrorType = "rabbitmq"
	ErrorTypeValidation ErrorType = "validation"
	ErrorTypeInternal   ErrorType = "internal"
	ErrorTypeTimeout    ErrorType = "timeout"
	// ErrorTypeScoring 单个岗位打分失败，不影响整批结果
	ErrorTypeScoring ErrorType = "scoring"
)

// RecordError 在 span 上记录 err 并置为 Error 状态；span 或 err 为 nil 时什么也不做
func RecordError(span trace.Span, err error, errorType ErrorType, attrs ...attribute.KeyValue) {
	if span == nil || err == nil {
		return
	}
	msg := TruncateString(err.Error(), DefaultMaxLength)
	span.RecordError(err)
	span.SetAttributes(
		attribute.String("error.type", string(errorType)),
		attribute.String("error.message", msg),
	)
	span.SetAttributes(attrs...)
	span.SetStatus(codes.Error, msg)
}

// RecordHTTPError 记录接口返回的错误；4xx 只打属性，5xx 和超时才把 span 置为失败
func RecordHTTPError(span trace.Span, err error, statusCode int) {
	if span == nil || err == nil {
		return
	}
	attrs := []attribute.KeyValue{attribute.Int("http.status_code", statusCode)}
	switch {
	case statusCode == 504:
		RecordError(span, err, ErrorTypeTimeout, attrs...)
	case statusCode >= 500:
		RecordError(span, err, ErrorTypeHTTP, append(attrs, attribute.String("error.category", "server_error"))...)
	default:
		span.SetAttributes(append(attrs,
			attribute.String("error.category", "client_error"),
			attribute.String("error.message", TruncateString(err.Error(), DefaultMaxLength)),
		)...)
	}
}

// RecordRabbitMQNack 消息处理失败、将被重新入队
func RecordRabbitMQNack(span trace.Span, messageID string, reason string) {
	if span == nil {
		return
	}
	if reason == "" {
		reason = "message not acknowledged"
	}
	span.SetAttributes(
		attribute.String("error.type", string(ErrorTypeRabbitMQ)),
		attribute.String("messaging.message_id", messageID),
		attribute.String("messaging.error_type", "nack"),
		attribute.String("error.message", TruncateString(reason, DefaultMaxLength)),
	)
	span.SetStatus(codes.Error, reason)
}
