package normalize

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestToInt(t *testing.T) {
	tests := []struct {
		in     any
		want   int64
		wantOK bool
	}{
		{json.Number("42"), 42, true},
		{json.Number("2.5"), 3, true},
		{json.Number("-2.5"), -3, true},
		{7.4, 7, true},
		{"1.234", 1234, true},
		{"1.234,56", 1235, true},
		{"R$ 10,49", 10, true},
		{" 15 ", 15, true},
		{"-3", -3, true},
		{"", 0, false},
		{"abc", 0, false},
		{nil, 0, false},
		{true, 0, false},
		{json.Number("9223372036854775807"), 9223372036854775807, true},
		{json.Number("-9223372036854775808"), -9223372036854775808, true},
		{json.Number("1e20"), 0, false},
		{"99999999999999999999", 0, false},
		{-1e19, 0, false},
	}
	for _, tt := range tests {
		got, ok := ToInt(tt.in)
		assert.Equal(t, tt.wantOK, ok, "%#v", tt.in)
		assert.Equal(t, tt.want, got, "%#v", tt.in)
	}
}

func TestParseBRNumber(t *testing.T) {
	d, ok := ParseBRNumber("R$ 1.234.567,89")
	assert.True(t, ok)
	assert.Equal(t, "1234567.89", d.String())

	_, ok = ParseBRNumber("R$")
	assert.False(t, ok)
}

func TestLooksDotDecimal(t *testing.T) {
	for _, s := range []string{"12.50", "R$ 3.5", "1.234.5", "0.1234"} {
		assert.True(t, LooksDotDecimal(s), s)
	}
	for _, s := range []string{"1.234", "1.234,56", "12,50", "15", "1.", "a.bc", ""} {
		assert.False(t, LooksDotDecimal(s), s)
	}
}

func TestToFloat(t *testing.T) {
	f, ok := ToFloat("12,75")
	assert.True(t, ok)
	assert.InDelta(t, 12.75, f, 1e-9)
}
