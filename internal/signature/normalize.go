package signature

import (
	"fmt"
	"strings"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/desertthunder/tracksig/internal/shared"
)

// Mode selects a per-vector normalization.
type Mode string

const (
	ZScore Mode = "z-score"
	MinMax Mode = "min-max"
)

// ParseMode accepts "z-score", "zscore", "min-max", "minmax" and their underscore spellings.
func ParseMode(s string) (Mode, error) {
	switch strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "_", "-") {
	case "z-score", "zscore":
		return ZScore, nil
	case "min-max", "minmax":
		return MinMax, nil
	}
	return "", fmt.Errorf("%w: %q", shared.ErrUnknownMode, s)
}

// Normalize returns a rescaled copy of v using only v's own statistics.
//
// ZScore subtracts the mean and divides by the population standard deviation.
// MinMax maps [min, max] onto [0, 1].
// A constant vector has zero spread and yields NaN values in either mode; callers
// see that as a malformed signature.
func Normalize(v []float64, mode Mode) ([]float64, error) {
	out := make([]float64, len(v))

	switch mode {
	case ZScore:
		if len(v) == 0 {
			return out, nil
		}
		mean, std := stat.PopMeanStdDev(v, nil)
		for i, x := range v {
			out[i] = (x - mean) / std
		}
	case MinMax:
		if len(v) == 0 {
			return out, nil
		}
		lo, hi := floats.Min(v), floats.Max(v)
		span := hi - lo
		for i, x := range v {
			out[i] = (x - lo) / span
		}
	default:
		return nil, fmt.Errorf("%w: %q", shared.ErrUnknownMode, mode)
	}

	return out, nil
}
