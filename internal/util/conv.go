package util

import (
	"strconv"
	"strings"
)

// ToInt64 安全地把 interface{} 转换为 int64
// 兼容 Redis Lua 返回的 int64 / float64 / uint64 / string
func ToInt64(v interface{}) int64 {
	switch x := v.(type) {
	case int64:
		return x
	case float64:
		return int64(x)
	case uint64:
		return int64(x)
	case string:
		n, _ := strconv.ParseInt(strings.TrimSpace(x), 10, 64)
		return n
	default:
		return 0
	}
}

// ToFloat64 converts a Redis reply into a float.
// Lua truncates numbers to integers on the way out, so fractional stamps travel as strings.
func ToFloat64(v interface{}) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case int64:
		return float64(x), true
	case string:
		if strings.TrimSpace(x) == "" {
			return 0, false
		}
		f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		if err != nil {
			return 0, false
		}
		return f, true
	case []byte:
		return ToFloat64(string(x))
	default:
		return 0, false
	}
}
