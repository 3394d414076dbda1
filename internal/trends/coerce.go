package trends

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"
)

// Epoch values at or above this are read as milliseconds. 1e11 seconds is
// the year 5138; 1e11 milliseconds is March 1973.
const millisThreshold = 1e11

var isoLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02 15:04:05.999999999-07:00", // go-sqlite3 time binding
}

// CoerceInstant turns a stored timestamp into an instant. It accepts
// time.Time, epoch seconds or milliseconds (any numeric type or numeric
// string) and ISO-8601 strings. Anything it cannot read, including
// epoch zero or earlier, returns the zero time.
func CoerceInstant(v any) time.Time {
	switch x := v.(type) {
	case nil:
		return time.Time{}
	case time.Time:
		return validInstant(x)
	case *time.Time:
		if x == nil {
			return time.Time{}
		}
		return validInstant(*x)
	case int:
		return fromEpoch(float64(x))
	case int32:
		return fromEpoch(float64(x))
	case int64:
		return fromEpoch(float64(x))
	case uint32:
		return fromEpoch(float64(x))
	case uint64:
		return fromEpoch(float64(x))
	case float32:
		return fromEpoch(float64(x))
	case float64:
		return fromEpoch(x)
	case json.Number:
		return coerceString(x.String())
	case []byte:
		return coerceString(string(x))
	case string:
		return coerceString(x)
	}
	return time.Time{}
}

func coerceString(s string) time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return fromEpoch(f)
	}
	for _, layout := range isoLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return validInstant(t)
		}
	}
	return time.Time{}
}

func fromEpoch(f float64) time.Time {
	if math.IsNaN(f) || math.IsInf(f, 0) || f <= 0 {
		return time.Time{}
	}
	if f >= millisThreshold {
		ms := int64(f)
		return time.UnixMilli(ms).UTC()
	}
	sec, frac := math.Modf(f)
	return time.Unix(int64(sec), int64(frac*1e9)).UTC()
}

func validInstant(t time.Time) time.Time {
	if t.IsZero() || t.Unix() <= 0 {
		return time.Time{}
	}
	return t
}

// StorageForm returns v as the store should keep it: numbers as int64 or
// float64, strings unchanged. ok is false when v is not a readable instant.
func StorageForm(v any) (any, bool) {
	if CoerceInstant(v).IsZero() {
		return nil, false
	}
	switch x := v.(type) {
	case json.Number:
		if n, err := x.Int64(); err == nil {
			return n, true
		}
		f, _ := x.Float64()
		return f, true
	case float64:
		if x == math.Trunc(x) {
			return int64(x), true
		}
		return x, true
	case []byte:
		return string(x), true
	}
	return v, true
}
