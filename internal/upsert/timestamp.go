package upsert

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

var layouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.999999999Z0700",
	"2006-01-02T15:04:05Z0700",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02 15:04:05 -0700",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ParseTimestamp 解析远端时间戳：秒级 epoch（整数/浮点/数字字符串）、ISO-8601 或 time.Time。
// nil 和空字符串返回 (nil, nil)；无法解析时返回 error，调用方按"没有时间戳"处理。
func ParseTimestamp(v any) (*time.Time, error) {
	switch t := v.(type) {
	case nil:
		return nil, nil
	case time.Time:
		if t.IsZero() {
			return nil, nil
		}
		return &t, nil
	case *time.Time:
		return t, nil
	case float64:
		return fromEpoch(t)
	case float32:
		return fromEpoch(float64(t))
	case int:
		return fromEpoch(float64(t))
	case int64:
		return fromEpoch(float64(t))
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return nil, fmt.Errorf("parse timestamp %q: %w", t.String(), err)
		}
		return fromEpoch(f)
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return nil, nil
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return fromEpoch(f)
		}
		for _, layout := range layouts {
			if parsed, err := time.Parse(layout, s); err == nil {
				parsed = parsed.UTC()
				return &parsed, nil
			}
		}
		return nil, fmt.Errorf("parse timestamp %q: unrecognized format", s)
	default:
		return nil, fmt.Errorf("parse timestamp: unsupported type %T", v)
	}
}

// fromEpoch 只接受有限值；NaN / Inf 转 int64 的结果未定义
func fromEpoch(f float64) (*time.Time, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil, fmt.Errorf("parse timestamp: non-finite epoch %v", f)
	}
	sec, frac := math.Modf(f)
	t := time.Unix(int64(sec), int64(math.Round(frac*1e6))*int64(time.Microsecond)).UTC()
	return &t, nil
}
