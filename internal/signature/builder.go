package signature

import (
	"fmt"

	"gonum.org/v1/gonum/stat"

	"github.com/desertthunder/tracksig/internal/shared"
)

const (
	DefaultNumMFCC = 20
	DefaultNumMel  = 128
	NumChroma      = 12
	NumTonnetz     = 6
)

// Matrix is a feature matrix with one row per time frame and one column per coefficient.
type Matrix [][]float64

// Frames returns the number of time frames.
func (m Matrix) Frames() int {
	return len(m)
}

// Column copies coefficient c across all frames.
func (m Matrix) Column(c int) []float64 {
	out := make([]float64, len(m))
	for i, row := range m {
		out[i] = row[c]
	}
	return out
}

// Builder assembles feature matrices into a raw signature vector.
//
// The zero value is usable and falls back to 20 MFCCs and 128 mel bands.
type Builder struct {
	NumMFCC int
	NumMel  int
}

// NewBuilder returns a Builder with the default coefficient counts.
func NewBuilder() Builder {
	return Builder{NumMFCC: DefaultNumMFCC, NumMel: DefaultNumMel}
}

// Coefficients returns the number of columns expected in a matrix of kind k.
func (b Builder) Coefficients(k Kind) int {
	switch k {
	case MFCC:
		if b.NumMFCC > 0 {
			return b.NumMFCC
		}
		return DefaultNumMFCC
	case MelSpectrogram:
		if b.NumMel > 0 {
			return b.NumMel
		}
		return DefaultNumMel
	case Chroma:
		return NumChroma
	case Tonnetz:
		return NumTonnetz
	default:
		return 1
	}
}

// KindWidth returns how many values kind k contributes to a raw signature.
func (b Builder) KindWidth(k Kind) int {
	switch k.Aggregate() {
	case AggregateMeanStd:
		return 2 * b.Coefficients(k)
	case AggregateScalar:
		return 1
	default:
		return b.Coefficients(k)
	}
}

// Width returns the raw signature length for toggles. It never depends on the audio.
func (b Builder) Width(toggles Toggles) int {
	n := 0
	for _, k := range toggles.Enabled() {
		n += b.KindWidth(k)
	}
	return n
}

// Build concatenates the aggregates of every enabled kind in concatenation order.
//
// Kinds with mean+std aggregation contribute all means followed by all standard
// deviations. A missing or frameless matrix for an enabled kind fails with
// [shared.ErrIncompleteFeature]; a row of the wrong width fails with
// [shared.ErrDimensionMismatch].
func (b Builder) Build(matrices map[Kind]Matrix, toggles Toggles) ([]float64, error) {
	out := make([]float64, 0, b.Width(toggles))

	for _, k := range toggles.Enabled() {
		m := matrices[k]
		if m.Frames() == 0 {
			return nil, fmt.Errorf("%w: %s", shared.ErrIncompleteFeature, k)
		}

		if k.Aggregate() == AggregateScalar {
			var all []float64
			for _, row := range m {
				all = append(all, row...)
			}
			if len(all) == 0 {
				return nil, fmt.Errorf("%w: %s", shared.ErrIncompleteFeature, k)
			}
			out = append(out, stat.Mean(all, nil))
			continue
		}

		width := b.Coefficients(k)
		for i, row := range m {
			if len(row) != width {
				return nil, fmt.Errorf("%w: %s frame %d has %d coefficients, want %d",
					shared.ErrDimensionMismatch, k, i, len(row), width)
			}
		}

		means := make([]float64, width)
		stds := make([]float64, width)
		for c := range width {
			means[c], stds[c] = stat.PopMeanStdDev(m.Column(c), nil)
		}

		out = append(out, means...)
		if k.Aggregate() == AggregateMeanStd {
			out = append(out, stds...)
		}
	}

	return out, nil
}
