package similarity

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode"

	"github.com/desertthunder/tracksig/internal/shared"
)

// Serialize joins v as comma-separated decimals using the shortest exact representation.
func Serialize(v []float64) string {
	parts := make([]string, len(v))
	for i, x := range v {
		parts[i] = strconv.FormatFloat(x, 'g', -1, 64)
	}
	return strings.Join(parts, ",")
}

// Deserialize parses the output of [Serialize]. Surrounding spaces on each value are allowed.
func Deserialize(s string) ([]float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return []float64{}, nil
	}

	parts := strings.Split(s, ",")
	out := make([]float64, len(parts))
	for i, p := range parts {
		x, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return nil, fmt.Errorf("%w: value %d: %v", shared.ErrInvalidInput, i, err)
		}
		out[i] = x
	}
	return out, nil
}

// DeserializeLenient accepts anything [Deserialize] does. Otherwise it drops brackets, braces, parentheses,
// quotes and whitespace before parsing, so wrapped forms such as `"[0.1, 0.2]"` and `{0.1,NaN}` are accepted.
// Every field must still hold a value; the dimension never changes.
func DeserializeLenient(s string) ([]float64, error) {
	if v, err := Deserialize(s); err == nil {
		return v, nil
	}

	cleaned := strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) || strings.ContainsRune("[]{}()\"'`", r) {
			return -1
		}
		return r
	}, s)
	return Deserialize(cleaned)
}

// Nullable returns nil for NaN and ±Inf, which JSON cannot represent, and &x otherwise.
func Nullable(x float64) *float64 {
	if math.IsNaN(x) || math.IsInf(x, 0) {
		return nil
	}
	return &x
}

// NullableVector applies [Nullable] to every value of v. A nil v stays nil.
func NullableVector(v []float64) []*float64 {
	if v == nil {
		return nil
	}
	out := make([]*float64, len(v))
	for i, x := range v {
		out[i] = Nullable(x)
	}
	return out
}

// FromNullable is the inverse of [NullableVector]; null values come back as NaN.
func FromNullable(v []*float64) []float64 {
	if v == nil {
		return nil
	}
	out := make([]float64, len(v))
	for i, p := range v {
		if p == nil {
			out[i] = math.NaN()
			continue
		}
		out[i] = *p
	}
	return out
}
