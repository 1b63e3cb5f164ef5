package tracing

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestSafeAttributeValue(t *testing.T) {
	tests := []struct {
		name  string
		field string
		value string
		want  string
	}{
		{"邮箱", "email", "alice@example.com", "al*************om"},
		{"带前缀的手机号", "user_phone", "13812345678", "13*******78"},
		{"otp", "otp", "123456", "12**56"},
		{"identifier", "login.identifier", "9876543210", "98******10"},
		{"api_key", "api_key", "abc", "a*c"},
		{"普通字段不掩码", "message", "profile saved", "profile saved"},
		{"page 不误判为 age", "page", "3", "3"},
		{"普通字段截断", "title", "abcdefghijklmnop", "abc...nop"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SafeAttributeValue(tt.field, tt.value, 9))
		})
	}
}

func TestMaskPII(t *testing.T) {
	assert.Equal(t, "", MaskPII(""))
	assert.Equal(t, "*", MaskPII("a"))
	assert.Equal(t, "张*", MaskPII("张三"))
	assert.Equal(t, "王*明", MaskPII("王小明"))
}

func TestTruncateString(t *testing.T) {
	assert.Equal(t, "short", TruncateString("short", 10))
	assert.Equal(t, "ab", TruncateString("abcdef", 2))
	assert.Equal(t, "a...f", TruncateString("abcdef", 5))
}

func TestRecordError(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	_, span := tp.Tracer("test").Start(context.Background(), "op")

	RecordHTTPError(span, errors.New("boom"), 503)
	span.End()

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, codes.Error, spans[0].Status().Code)

	attrs := map[string]string{}
	for _, kv := range spans[0].Attributes() {
		attrs[string(kv.Key)] = kv.Value.Emit()
	}
	assert.Equal(t, "http", attrs["error.type"])
	assert.Equal(t, "server_error", attrs["error.category"])
	assert.Equal(t, "503", attrs["http.status_code"])

	// nil 安全
	RecordError(nil, errors.New("x"), ErrorTypeInternal)
	RecordError(span, nil, ErrorTypeInternal)
}

func TestRecordHTTPClientErrorKeepsStatus(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	_, span := tp.Tracer("test").Start(context.Background(), "op")

	RecordHTTPError(span, errors.New("profile not found"), 404)
	span.End()

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, codes.Unset, spans[0].Status().Code, "4xx 不算服务端失败")
	assert.Empty(t, spans[0].Events())
}
