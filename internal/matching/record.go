package matching

import (
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"
)

// first 返回第一个存在且非空的别名字段
func (r Record) first(keys ...string) (any, bool) {
	for _, k := range keys {
		if v, ok := r[k]; ok && v != nil {
			if s, isStr := v.(string); isStr && strings.TrimSpace(s) == "" {
				continue
			}
			return v, true
		}
	}
	return nil, false
}

func (r Record) str(maxBytes int, keys ...string) string {
	v, ok := r.first(keys...)
	if !ok {
		return ""
	}
	return asString(v, maxBytes)
}

func (r Record) boolean(keys ...string) bool {
	v, ok := r.first(keys...)
	if !ok {
		return false
	}
	return asBool(v)
}

// asString 只接受标量；对象/数组返回空串
func asString(v any, maxBytes int) string {
	var s string
	switch t := v.(type) {
	case string:
		s = t
	case json.Number:
		s = t.String()
	case float64, float32, int, int32, int64, uint, uint32, uint64:
		s = fmt.Sprint(t)
	case bool:
		s = strconv.FormatBool(t)
	default:
		return ""
	}
	return truncateUTF8(strings.TrimSpace(s), maxBytes)
}

func asBool(v any) bool {
	switch t := v.(type) {
	case bool:
		return t
	case string:
		switch strings.ToLower(strings.TrimSpace(t)) {
		case "true", "yes", "y", "1", "on":
			return true
		}
		return false
	case json.Number:
		f, err := t.Float64()
		return err == nil && f != 0
	default:
		f, ok := asNumber(v)
		return ok && f != 0
	}
}

// asNumber 只处理数值类型，字符串走 parseFirstNumber
func asNumber(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int32:
		return float64(t), true
	case int64:
		return float64(t), true
	case uint:
		return float64(t), true
	case uint32:
		return float64(t), true
	case uint64:
		return float64(t), true
	case json.Number:
		f, err := t.Float64()
		return f, err == nil
	}
	return 0, false
}

// asList 把 []any / []string / []map 以及逗号分隔字符串统一成 []any，并截断
func asList(v any, maxItems int) []any {
	var out []any
	switch t := v.(type) {
	case []any:
		out = t
	case []string:
		out = make([]any, 0, len(t))
		for _, s := range t {
			out = append(out, s)
		}
	case []map[string]any:
		out = make([]any, 0, len(t))
		for _, m := range t {
			out = append(out, m)
		}
	case []Record:
		out = make([]any, 0, len(t))
		for _, m := range t {
			out = append(out, map[string]any(m))
		}
	case string:
		for _, part := range strings.Split(t, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	case map[string]any, Record:
		out = []any{t}
	}
	if maxItems > 0 && len(out) > maxItems {
		out = out[:maxItems]
	}
	return out
}

func asMap(v any) (map[string]any, bool) {
	switch t := v.(type) {
	case map[string]any:
		return t, true
	case Record:
		return map[string]any(t), true
	}
	return nil, false
}

// finite 非有限值或负数一律视为 0
func finite(f float64) float64 {
	if math.IsNaN(f) || math.IsInf(f, 0) || f < 0 {
		return 0
	}
	return f
}

// truncateUTF8 按字节截断，不切断多字节字符
func truncateUTF8(s string, maxBytes int) string {
	if maxBytes <= 0 || len(s) <= maxBytes {
		return s
	}
	cut := maxBytes
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

// 第一个数字 token，可带千分位与 k/m/lakh 后缀
var numberTokenRegex = regexp.MustCompile(`(\d[\d,]*(?:\.\d+)?)(?:\s*(lakhs?|lpa|k|m|l)\b)?`)

// parseFirstNumber 解析文本中的第一个数字，无法解析时返回 0
func parseFirstNumber(text string) float64 {
	m := numberTokenRegex.FindStringSubmatch(strings.ToLower(text))
	if m == nil {
		return 0
	}
	f, err := strconv.ParseFloat(strings.ReplaceAll(m[1], ",", ""), 64)
	if err != nil {
		return 0
	}
	switch m[2] {
	case "k":
		f *= 1e3
	case "m":
		f *= 1e6
	case "l", "lakh", "lakhs", "lpa":
		f *= 1e5
	}
	return finite(f)
}

// numeric 数值直接取，字符串取第一个数字
func numeric(v any, maxBytes int) float64 {
	if f, ok := asNumber(v); ok {
		return finite(f)
	}
	if s, ok := v.(string); ok {
		return parseFirstNumber(truncateUTF8(s, maxBytes))
	}
	return 0
}
