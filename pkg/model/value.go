package model

import (
	"fmt"
	"math"
	"strconv"
	"time"
)

// FieldKind is the inferred dynamic type of an attribute value.
type FieldKind string

const (
	KindString  FieldKind = "string"
	KindNumber  FieldKind = "number"
	KindBool    FieldKind = "bool"
	KindDate    FieldKind = "date"
	KindList    FieldKind = "list"
	KindMap     FieldKind = "map"
	KindUnknown FieldKind = "unknown"
)

// KindOf infers the FieldKind of a dynamically-typed attribute value as it
// comes out of JSON or BSON decoding.
func KindOf(v interface{}) FieldKind {
	switch v.(type) {
	case nil:
		return KindUnknown
	case string:
		return KindString
	case bool:
		return KindBool
	case float32, float64, int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return KindNumber
	case time.Time:
		return KindDate
	case []interface{}, []string, []float64:
		return KindList
	case map[string]interface{}:
		return KindMap
	default:
		return KindUnknown
	}
}

// dateLayouts are the accepted date literal formats, tried in order.
var dateLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02",
	"2006/01/02",
	"01/02/2006",
}

// IsDateString reports whether s matches one of the accepted date layouts.
// Bare numeric strings do not count; they stay numbers.
func IsDateString(s string) bool {
	for _, layout := range dateLayouts {
		if _, err := time.Parse(layout, s); err == nil {
			return true
		}
	}
	return false
}

// ParseDateLiteral coerces a filter literal into a timestamp. It accepts the
// common date string formats plus unix seconds or milliseconds as numbers.
func ParseDateLiteral(v interface{}) (time.Time, error) {
	switch val := v.(type) {
	case time.Time:
		return val, nil
	case string:
		for _, layout := range dateLayouts {
			if t, err := time.Parse(layout, val); err == nil {
				return t.UTC(), nil
			}
		}
		// Bare unix timestamps sometimes arrive as strings.
		if n, err := strconv.ParseInt(val, 10, 64); err == nil {
			return unixToTime(n), nil
		}
		return time.Time{}, fmt.Errorf("unparseable date literal %q", val)
	case float64:
		if val != math.Trunc(val) {
			return time.Time{}, fmt.Errorf("unparseable date literal %v", val)
		}
		return unixToTime(int64(val)), nil
	case int:
		return unixToTime(int64(val)), nil
	case int64:
		return unixToTime(val), nil
	default:
		return time.Time{}, fmt.Errorf("unparseable date literal of type %T", v)
	}
}

// unixToTime interprets n as unix milliseconds when it is too large to be a
// plausible seconds value.
func unixToTime(n int64) time.Time {
	const millisCutoff = int64(1) << 40 // ~year 36812 in seconds, ~2004 in millis
	if n >= millisCutoff {
		return time.UnixMilli(n).UTC()
	}
	return time.Unix(n, 0).UTC()
}

// AsNumber converts a numeric literal to float64.
func AsNumber(v interface{}) (float64, bool) {
	switch val := v.(type) {
	case float64:
		return val, true
	case float32:
		return float64(val), true
	case int:
		return float64(val), true
	case int32:
		return float64(val), true
	case int64:
		return float64(val), true
	case uint:
		return float64(val), true
	case uint64:
		return float64(val), true
	default:
		return 0, false
	}
}
