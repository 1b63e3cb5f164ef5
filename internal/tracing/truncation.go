package tracing

import (
	"strings"
)

const (
	// DefaultMaxLength 默认最大属性长度
	DefaultMaxLength = 200

	// MaxSQLLength SQL语句最大长度
	MaxSQLLength = 500

	// MaxRedisLength Redis键最大长度
	MaxRedisLength = 100
)

// maskPIILookup 字段名中出现这些片段时值需要掩码
var maskPIILookup = map[string]bool{
	"email":      true,
	"phone":      true,
	"password":   true,
	"id_card":    true,
	"身份证":        true,
	"address":    true,
	"地址":         true,
	"name":       true,
	"姓名":         true,
	"secret":     true,
	"token":      true,
	"otp":        true,
	"identifier": true,
	"api_key":    true,
}

// isPIIField 按 `_`、`.`、`-` 切分字段名逐段比较，避免 "message" 之类误命中
func isPIIField(name string) bool {
	lower := strings.ToLower(name)
	if maskPIILookup[lower] {
		return true
	}
	parts := strings.FieldsFunc(lower, func(r rune) bool {
		return r == '_' || r == '.' || r == '-'
	})
	for i, p := range parts {
		if maskPIILookup[p] {
			return true
		}
		if i > 0 && maskPIILookup[parts[i-1]+"_"+p] {
			return true
		}
	}
	return false
}

// SafeAttributeValue 敏感字段返回掩码值，其余截断到 maxLength
func SafeAttributeValue(name string, value string, maxLength int) string {
	if isPIIField(name) {
		return MaskPII(value)
	}
	return TruncateString(value, maxLength)
}

// MaskPII 对个人敏感信息进行掩码处理
func MaskPII(value string) string {
	if value == "" {
		return ""
	}

	runes := []rune(value)
	length := len(runes)

	if length <= 1 {
		return "*"
	}
	// "张三" -> "张*", "王小明" -> "王*明"
	if length <= 4 {
		if length == 2 {
			return string(runes[0:1]) + "*"
		}
		return string(runes[0:1]) + strings.Repeat("*", length-2) + string(runes[length-1:])
	}

	// "13812345678" -> "13*******78"
	return string(runes[0:2]) + strings.Repeat("*", length-4) + string(runes[length-2:])
}

// TruncateString 超长时保留首尾，中间用省略号连接
func TruncateString(s string, maxLength int) string {
	runes := []rune(s)
	if len(runes) <= maxLength {
		return s
	}

	if maxLength <= 3 {
		return string(runes[:maxLength])
	}

	half := (maxLength - 3) / 2
	if half < 1 {
		half = 1
	}
	return string(runes[:half]) + "..." + string(runes[len(runes)-half:])
}

// SafeSQL 安全处理SQL语句
func SafeSQL(sql string) string {
	return TruncateString(sql, MaxSQLLength)
}

// SafeRedisKey 安全处理Redis键
func SafeRedisKey(key string) string {
	return TruncateString(key, MaxRedisLength)
}
