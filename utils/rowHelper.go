package utils

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// RowString reads a string field out of a generic row, tolerating the value
// types the MySQL driver and in-memory store hand back ([]byte, time.Time).
func RowString(row map[string]any, key string) string {
	v, ok := row[key]
	if !ok || v == nil {
		return ""
	}
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case []byte:
		return strings.TrimSpace(string(t))
	case time.Time:
		return t.UTC().Format(time.RFC3339)
	default:
		return ""
	}
}

// RowFloat reads a numeric field out of a generic row. Decimal columns come
// back from the driver as []byte / string.
func RowFloat(row map[string]any, key string) float64 {
	v, ok := row[key]
	if !ok || v == nil {
		return 0
	}
	switch t := v.(type) {
	case float64:
		return t
	case float32:
		return float64(t)
	case int:
		return float64(t)
	case int64:
		return float64(t)
	case json.Number:
		f, _ := t.Float64()
		return f
	case string:
		f, _ := strconv.ParseFloat(strings.TrimSpace(t), 64)
		return f
	case []byte:
		f, _ := strconv.ParseFloat(strings.TrimSpace(string(t)), 64)
		return f
	default:
		return 0
	}
}

// RowBool reads a boolean field; MySQL tinyint(1) may arrive as int64.
func RowBool(row map[string]any, key string) bool {
	v, ok := row[key]
	if !ok || v == nil {
		return false
	}
	switch t := v.(type) {
	case bool:
		return t
	case int64:
		return t != 0
	case int:
		return t != 0
	case string:
		return t == "1" || strings.EqualFold(t, "true")
	default:
		return false
	}
}

// RowMap reads a nested JSON object field, decoding it when the store returned
// the raw column bytes.
func RowMap(row map[string]any, key string) map[string]any {
	v, ok := row[key]
	if !ok || v == nil {
		return nil
	}
	switch t := v.(type) {
	case map[string]any:
		return t
	case []byte:
		var out map[string]any
		if err := json.Unmarshal(t, &out); err == nil {
			return out
		}
	case string:
		var out map[string]any
		if err := json.Unmarshal([]byte(t), &out); err == nil {
			return out
		}
	}
	return nil
}

// RowDate parses a calendar-date field (YYYY-MM-DD). The driver may return
// the full timestamp form for DATE columns.
func RowDate(row map[string]any, key string) (time.Time, bool) {
	s := RowString(row, key)
	if s == "" {
		return time.Time{}, false
	}
	if len(s) > 10 {
		s = s[:10]
	}
	d, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}, false
	}
	return d, true
}

// RowTime parses a timestamp field (RFC 3339 or the driver's datetime form).
func RowTime(row map[string]any, key string) (time.Time, bool) {
	if v, ok := row[key]; ok {
		if t, ok := v.(time.Time); ok {
			return t.UTC(), true
		}
	}
	s := RowString(row, key)
	if s == "" {
		return time.Time{}, false
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), true
	}
	if t, err := time.Parse("2006-01-02 15:04:05", s); err == nil {
		return t.UTC(), true
	}
	return time.Time{}, false
}
