// Package similarity measures distances between signatures and ranks stored tracks against a reference.
//
// Every metric is reported as a distance: 0 for identical vectors and larger for less similar ones.
// Cosine and correlation are reported as 1 - cos and 1 - pearson respectively.
package similarity

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/desertthunder/tracksig/internal/shared"
)

// Metric names a distance function.
type Metric string

const (
	Cosine      Metric = "cosine"
	Euclidean   Metric = "euclidean"
	Manhattan   Metric = "manhattan"
	Chebyshev   Metric = "chebyshev"
	Minkowski   Metric = "minkowski"
	Correlation Metric = "correlation"
)

// DefaultMinkowskiP is the Minkowski order used when [Engine.MinkowskiP] is unset.
const DefaultMinkowskiP = 2.0

// Metrics lists every supported metric in report order.
func Metrics() []Metric {
	return []Metric{Cosine, Euclidean, Manhattan, Chebyshev, Minkowski, Correlation}
}

// ParseMetric accepts the metric names plus "cityblock" for Manhattan.
func ParseMetric(s string) (Metric, error) {
	switch m := Metric(strings.ToLower(strings.TrimSpace(s))); m {
	case Cosine, Euclidean, Manhattan, Chebyshev, Minkowski, Correlation:
		return m, nil
	case "cityblock":
		return Manhattan, nil
	}
	return "", fmt.Errorf("%w: %q", shared.ErrUnknownMetric, s)
}

// Engine computes distances between equal-length vectors.
//
// The zero value is ready to use.
type Engine struct {
	MinkowskiP float64
}

func checkDims(a, b []float64) error {
	if len(a) != len(b) {
		return fmt.Errorf("%w: %d vs %d", shared.ErrDimensionMismatch, len(a), len(b))
	}
	if len(a) == 0 {
		return fmt.Errorf("%w: empty vectors", shared.ErrDimensionMismatch)
	}
	return nil
}

// Distance dispatches to the named metric.
func (e Engine) Distance(metric Metric, a, b []float64) (float64, error) {
	switch metric {
	case Cosine:
		return e.Cosine(a, b)
	case Euclidean:
		return e.Euclidean(a, b)
	case Manhattan:
		return e.Manhattan(a, b)
	case Chebyshev:
		return e.Chebyshev(a, b)
	case Minkowski:
		return e.Minkowski(a, b)
	case Correlation:
		return e.Correlation(a, b)
	}
	return 0, fmt.Errorf("%w: %q", shared.ErrUnknownMetric, metric)
}

// Cosine returns 1 - cos(a, b). A zero vector yields NaN.
func (e Engine) Cosine(a, b []float64) (float64, error) {
	if err := checkDims(a, b); err != nil {
		return 0, err
	}
	return 1 - floats.Dot(a, b)/(floats.Norm(a, 2)*floats.Norm(b, 2)), nil
}

func (e Engine) Euclidean(a, b []float64) (float64, error) {
	if err := checkDims(a, b); err != nil {
		return 0, err
	}
	return floats.Distance(a, b, 2), nil
}

// Manhattan is the cityblock (L1) distance.
func (e Engine) Manhattan(a, b []float64) (float64, error) {
	if err := checkDims(a, b); err != nil {
		return 0, err
	}
	return floats.Distance(a, b, 1), nil
}

// Chebyshev is the largest absolute coordinate difference.
func (e Engine) Chebyshev(a, b []float64) (float64, error) {
	if err := checkDims(a, b); err != nil {
		return 0, err
	}
	return floats.Distance(a, b, math.Inf(1)), nil
}

func (e Engine) Minkowski(a, b []float64) (float64, error) {
	if err := checkDims(a, b); err != nil {
		return 0, err
	}
	p := e.MinkowskiP
	if p <= 0 {
		p = DefaultMinkowskiP
	}
	return floats.Distance(a, b, p), nil
}

// Correlation returns 1 - pearson(a, b). A constant vector yields NaN.
func (e Engine) Correlation(a, b []float64) (float64, error) {
	if err := checkDims(a, b); err != nil {
		return 0, err
	}
	return 1 - stat.Correlation(a, b, nil), nil
}

// Comparison holds every metric for one pair of vectors.
type Comparison map[Metric]float64

// Compare computes all metrics for a and b.
func (e Engine) Compare(a, b []float64) (Comparison, error) {
	out := Comparison{}
	for _, m := range Metrics() {
		d, err := e.Distance(m, a, b)
		if err != nil {
			return nil, err
		}
		out[m] = d
	}
	return out, nil
}

// Candidate is a stored vector to rank against a reference.
type Candidate struct {
	ID     string
	Vector []float64
}

// Match is a ranked candidate.
type Match struct {
	ID       string  `json:"id"`
	Distance float64 `json:"distance"`
}

// MarshalJSON writes a NaN distance as null.
func (m Match) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		ID       string   `json:"id"`
		Distance *float64 `json:"distance"`
	}{m.ID, Nullable(m.Distance)})
}

// Rank orders candidates by ascending distance to reference, keeping input order on ties.
//
// Candidates whose dimension differs from the reference are skipped. NaN distances sort last.
// A limit <= 0 keeps every match.
func (e Engine) Rank(reference []float64, candidates []Candidate, metric Metric, limit int) ([]Match, error) {
	if _, err := ParseMetric(string(metric)); err != nil {
		return nil, err
	}

	matches := make([]Match, 0, len(candidates))
	for _, c := range candidates {
		d, err := e.Distance(metric, reference, c.Vector)
		if err != nil {
			continue
		}
		matches = append(matches, Match{ID: c.ID, Distance: d})
	}

	sort.SliceStable(matches, func(i, j int) bool {
		a, b := matches[i].Distance, matches[j].Distance
		if math.IsNaN(a) {
			return false
		}
		return math.IsNaN(b) || a < b
	})

	if limit > 0 && len(matches) > limit {
		matches = matches[:limit]
	}
	return matches, nil
}
