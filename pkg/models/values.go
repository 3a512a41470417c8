package models

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Cell values are one of: nil (NULL), string, int64, float64, time.Time.

// DateLayouts are the accepted textual date forms, most specific first
var DateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
	"02.01.2006",
}

// ParseTime parses a date in any of DateLayouts
func ParseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range DateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("cannot parse %q as date", s)
}

// Normalize converts a driver value into the canonical representation for the given type
func Normalize(v interface{}, t SemanticType) interface{} {
	if v == nil {
		return nil
	}
	if b, ok := v.([]byte); ok {
		v = string(b)
	}

	switch t {
	case Integer:
		if i, ok := ToInt(v); ok {
			return i
		}
	case Float:
		if f, ok := ToFloat(v); ok {
			return f
		}
	case Date:
		if tm, ok := ToTime(v); ok {
			return tm
		}
	case String:
		if s, ok := v.(string); ok {
			return s
		}
		return FormatValue(v)
	}
	return v
}

// ToInt coerces a value to int64, rounding floats half away from zero
func ToInt(v interface{}) (int64, bool) {
	switch val := v.(type) {
	case int64:
		return val, true
	case int:
		return int64(val), true
	case int32:
		return int64(val), true
	case int16:
		return int64(val), true
	case int8:
		return int64(val), true
	case uint8:
		return int64(val), true
	case uint16:
		return int64(val), true
	case uint32:
		return int64(val), true
	case uint64:
		return int64(val), true
	case float64:
		return int64(math.Round(val)), true
	case float32:
		return int64(math.Round(float64(val))), true
	case bool:
		if val {
			return 1, true
		}
		return 0, true
	case []byte:
		return ToInt(string(val))
	case string:
		s := strings.TrimSpace(val)
		if i, err := strconv.ParseInt(s, 10, 64); err == nil {
			return i, true
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return int64(math.Round(f)), true
		}
	}
	return 0, false
}

// ToFloat coerces a value to float64
func ToFloat(v interface{}) (float64, bool) {
	switch val := v.(type) {
	case float64:
		return val, true
	case float32:
		return float64(val), true
	case int64:
		return float64(val), true
	case int:
		return float64(val), true
	case int32:
		return float64(val), true
	case int16:
		return float64(val), true
	case int8:
		return float64(val), true
	case uint8:
		return float64(val), true
	case uint16:
		return float64(val), true
	case uint32:
		return float64(val), true
	case uint64:
		return float64(val), true
	case time.Time:
		return float64(val.Unix()), true
	case []byte:
		return ToFloat(string(val))
	case string:
		if f, err := strconv.ParseFloat(strings.TrimSpace(val), 64); err == nil {
			return f, true
		}
	}
	return 0, false
}

// ToTime coerces a value to time.Time
func ToTime(v interface{}) (time.Time, bool) {
	switch val := v.(type) {
	case time.Time:
		return val, true
	case []byte:
		return ToTime(string(val))
	case string:
		if t, err := ParseTime(val); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// Coerce parses a literal into the canonical value for a semantic type
func Coerce(literal string, t SemanticType) (interface{}, error) {
	switch t {
	case Integer:
		s := strings.TrimSpace(literal)
		if i, err := strconv.ParseInt(s, 10, 64); err == nil {
			return i, nil
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, fmt.Errorf("value %q is not an integer", literal)
		}
		return int64(math.Round(f)), nil
	case Float:
		f, err := strconv.ParseFloat(strings.TrimSpace(literal), 64)
		if err != nil {
			return nil, fmt.Errorf("value %q is not a number", literal)
		}
		return f, nil
	case Date:
		return ParseTime(literal)
	}
	return literal, nil
}

// Cast converts a canonical value into the representation of another semantic type
func Cast(v interface{}, t SemanticType) (interface{}, error) {
	if v == nil {
		return nil, nil
	}
	switch t {
	case Integer:
		if i, ok := ToInt(v); ok {
			return i, nil
		}
	case Float:
		if f, ok := ToFloat(v); ok {
			return f, nil
		}
	case Date:
		if tm, ok := ToTime(v); ok {
			return tm, nil
		}
	case String:
		return FormatValue(v), nil
	}
	return nil, fmt.Errorf("cannot convert %v to %s", v, t)
}

// FormatValue renders a value as text; NULL renders as an empty string
func FormatValue(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case []byte:
		return string(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case time.Time:
		if val.Hour() == 0 && val.Minute() == 0 && val.Second() == 0 && val.Nanosecond() == 0 {
			return val.Format("2006-01-02")
		}
		return val.Format("2006-01-02 15:04:05")
	}
	return fmt.Sprintf("%v", v)
}

// Key renders a value for exact-match grouping. NULL gets a marker no real value produces.
func Key(v interface{}) string {
	if v == nil {
		return "\x00null"
	}
	if tm, ok := v.(time.Time); ok {
		return tm.UTC().Format(time.RFC3339Nano)
	}
	return FormatValue(v)
}

// Holds reports whether a column of type st can store v without changing it.
// Integers fit a float column while they stay exact.
func Holds(st SemanticType, v interface{}) bool {
	switch val := v.(type) {
	case nil:
		return true
	case int64:
		return st == Integer || (st == Float && val >= -1<<53 && val <= 1<<53)
	case float64:
		return st == Float
	case time.Time:
		return st == Date
	case string:
		return st == String
	}
	return false
}

// TupleKey renders a row projection for exact-match grouping. Every part is quoted so a
// separator inside a value cannot make two different tuples collide.
func TupleKey(values ...interface{}) string {
	var b strings.Builder
	for i, v := range values {
		if i > 0 {
			b.WriteByte(',')
		}
		if v == nil {
			b.WriteString("null")
			continue
		}
		b.WriteString(strconv.Quote(Key(v)))
	}
	return b.String()
}

// Compare orders two values: NULL first, then numbers, times and text in natural order
func Compare(a, b interface{}) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return -1
	case b == nil:
		return 1
	}

	if ta, ok := a.(time.Time); ok {
		if tb, ok := b.(time.Time); ok {
			return ta.Compare(tb)
		}
	}
	if ia, ok := a.(int64); ok {
		if ib, ok := b.(int64); ok {
			switch {
			case ia < ib:
				return -1
			case ia > ib:
				return 1
			}
			return 0
		}
	}
	_, aIsString := a.(string)
	_, bIsString := b.(string)
	if !aIsString && !bIsString {
		fa, okA := ToFloat(a)
		fb, okB := ToFloat(b)
		if okA && okB {
			switch {
			case fa < fb:
				return -1
			case fa > fb:
				return 1
			}
			return 0
		}
	}
	return strings.Compare(FormatValue(a), FormatValue(b))
}

// Equal reports whether two values are the same cell content
func Equal(a, b interface{}) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return Key(a) == Key(b)
}

// InferColumnType picks the narrowest semantic type that parses every non-empty sample
func InferColumnType(samples []string) SemanticType {
	isInt, isFloat, isDate := true, true, true
	seen := false
	for _, s := range samples {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		seen = true
		if isInt {
			if _, err := strconv.ParseInt(s, 10, 64); err != nil {
				isInt = false
			}
		}
		if isFloat {
			if _, err := strconv.ParseFloat(s, 64); err != nil {
				isFloat = false
			}
		}
		if isDate {
			if _, err := ParseTime(s); err != nil {
				isDate = false
			}
		}
	}

	switch {
	case !seen:
		return String
	case isInt:
		return Integer
	case isFloat:
		return Float
	case isDate:
		return Date
	}
	return String
}
