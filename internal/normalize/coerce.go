package normalize

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// ParseBRNumber parses a Brazilian-locale decimal string. A currency prefix
// "R$" and whitespace are ignored, "." is a thousands separator and ","
// the decimal mark.
func ParseBRNumber(s string) (decimal.Decimal, bool) {
	s = strings.TrimSpace(s)
	s = strings.ReplaceAll(s, "R$", "")
	s = strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\u00a0', '\t':
			return -1
		}
		return r
	}, s)
	if s == "" {
		return decimal.Zero, false
	}
	s = strings.ReplaceAll(s, ".", "")
	s = strings.Replace(s, ",", ".", 1)
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, false
	}
	return d, true
}

// LooksDotDecimal reports whether s reads like a number written with "."
// as the decimal mark ("12.50"), which ParseBRNumber treats as thousands
// grouping.
func LooksDotDecimal(s string) bool {
	s = strings.TrimSpace(strings.ReplaceAll(s, "R$", ""))
	if strings.Contains(s, ",") {
		return false
	}
	i := strings.LastIndexByte(s, '.')
	if i < 0 {
		return false
	}
	tail := s[i+1:]
	if tail == "" || len(tail) == 3 {
		return false
	}
	for _, r := range tail {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

var (
	maxInt = decimal.NewFromInt(math.MaxInt64)
	minInt = decimal.NewFromInt(math.MinInt64)
)

// toDecimal coerces a decoded JSON value into a decimal.
func toDecimal(v any) (decimal.Decimal, bool) {
	switch val := v.(type) {
	case json.Number:
		d, err := decimal.NewFromString(string(val))
		if err != nil {
			return decimal.Zero, false
		}
		return d, true
	case float64:
		if math.IsNaN(val) || math.IsInf(val, 0) {
			return decimal.Zero, false
		}
		return decimal.NewFromFloat(val), true
	case int:
		return decimal.NewFromInt(int64(val)), true
	case int64:
		return decimal.NewFromInt(val), true
	case string:
		return ParseBRNumber(val)
	}
	return decimal.Zero, false
}

// ToInt coerces v to an integer, rounding half away from zero. Values
// outside the int64 range are rejected.
func ToInt(v any) (int64, bool) {
	d, ok := toDecimal(v)
	if !ok {
		return 0, false
	}
	d = d.Round(0)
	if d.GreaterThan(maxInt) || d.LessThan(minInt) {
		return 0, false
	}
	return d.IntPart(), true
}

// ToFloat coerces v to a float64.
func ToFloat(v any) (float64, bool) {
	d, ok := toDecimal(v)
	if !ok {
		return 0, false
	}
	f, _ := d.Float64()
	return f, true
}

// toString accepts strings and numbers; numbers are rendered as written.
func toString(v any) (string, bool) {
	switch val := v.(type) {
	case string:
		return val, true
	case json.Number:
		return string(val), true
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64), true
	case int:
		return strconv.Itoa(val), true
	case int64:
		return strconv.FormatInt(val, 10), true
	}
	return "", false
}

func toBool(v any) bool {
	switch val := v.(type) {
	case bool:
		return val
	case string:
		b, _ := strconv.ParseBool(strings.TrimSpace(val))
		return b
	case json.Number:
		n, ok := ToInt(val)
		return ok && n != 0
	}
	return false
}
