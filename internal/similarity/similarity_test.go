package similarity

import (
	"encoding/json"
	"errors"
	"math"
	"reflect"
	"testing"

	"github.com/desertthunder/tracksig/internal/shared"
)

func approx(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestEngine(t *testing.T) {
	var e Engine
	a := []float64{1, 2, 3}
	b := []float64{4, 0, 3}

	t.Run("metrics", func(t *testing.T) {
		tests := []struct {
			metric Metric
			want   float64
		}{
			{Euclidean, math.Sqrt(13)},
			{Manhattan, 5},
			{Chebyshev, 3},
			{Minkowski, math.Sqrt(13)},
			{Cosine, 1 - 13/(math.Sqrt(14)*5)},
			{Correlation, 1 - pearson(a, b)},
		}

		for _, tt := range tests {
			t.Run(string(tt.metric), func(t *testing.T) {
				got, err := e.Distance(tt.metric, a, b)
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				if !approx(got, tt.want) {
					t.Errorf("expected %v, got %v", tt.want, got)
				}
			})
		}
	})

	t.Run("self distance", func(t *testing.T) {
		v := []float64{0.25, -3, 8, 1e-3}
		for _, m := range Metrics() {
			d, err := e.Distance(m, v, v)
			if err != nil {
				t.Fatalf("%s: unexpected error: %v", m, err)
			}
			if math.Abs(d) > 1e-12 {
				t.Errorf("%s: expected 0, got %v", m, d)
			}
		}
	})

	t.Run("minkowski order", func(t *testing.T) {
		d, err := Engine{MinkowskiP: 1}.Minkowski(a, b)
		if err != nil || !approx(d, 5) {
			t.Errorf("expected p=1 to match manhattan, got %v, %v", d, err)
		}
	})

	t.Run("dimension mismatch", func(t *testing.T) {
		for _, m := range Metrics() {
			if _, err := e.Distance(m, a, []float64{1, 2}); !errors.Is(err, shared.ErrDimensionMismatch) {
				t.Errorf("%s: expected ErrDimensionMismatch, got %v", m, err)
			}
		}
	})

	t.Run("zero vector cosine is NaN", func(t *testing.T) {
		d, err := e.Cosine([]float64{0, 0}, []float64{1, 1})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !math.IsNaN(d) {
			t.Errorf("expected NaN, got %v", d)
		}
	})

	t.Run("unknown metric", func(t *testing.T) {
		if _, err := e.Distance("hamming", a, b); !errors.Is(err, shared.ErrUnknownMetric) {
			t.Errorf("expected ErrUnknownMetric, got %v", err)
		}
		if m, err := ParseMetric("CityBlock"); err != nil || m != Manhattan {
			t.Errorf("expected cityblock alias, got %v, %v", m, err)
		}
	})

	t.Run("compare", func(t *testing.T) {
		c, err := e.Compare(a, b)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(c) != 6 || !approx(c[Euclidean], math.Sqrt(13)) {
			t.Errorf("unexpected comparison %v", c)
		}
	})
}

func pearson(x, y []float64) float64 {
	var mx, my float64
	for i := range x {
		mx += x[i]
		my += y[i]
	}
	mx /= float64(len(x))
	my /= float64(len(y))
	var sxy, sxx, syy float64
	for i := range x {
		sxy += (x[i] - mx) * (y[i] - my)
		sxx += (x[i] - mx) * (x[i] - mx)
		syy += (y[i] - my) * (y[i] - my)
	}
	return sxy / math.Sqrt(sxx*syy)
}

func TestRank(t *testing.T) {
	var e Engine
	ref := []float64{0, 0}
	candidates := []Candidate{
		{ID: "far", Vector: []float64{3, 4}},
		{ID: "near", Vector: []float64{0, 1}},
		{ID: "tie-a", Vector: []float64{1, 0}},
		{ID: "wrong-dim", Vector: []float64{1}},
		{ID: "tie-b", Vector: []float64{0, -1}},
	}

	matches, err := e.Rank(ref, candidates, Euclidean, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var ids []string
	for _, m := range matches {
		ids = append(ids, m.ID)
	}
	if want := []string{"near", "tie-a", "tie-b", "far"}; !reflect.DeepEqual(ids, want) {
		t.Errorf("expected %v, got %v", want, ids)
	}

	limited, _ := e.Rank(ref, candidates, Euclidean, 2)
	if len(limited) != 2 {
		t.Errorf("expected 2 matches, got %d", len(limited))
	}

	if _, err := e.Rank(ref, candidates, "nope", 1); !errors.Is(err, shared.ErrUnknownMetric) {
		t.Errorf("expected ErrUnknownMetric, got %v", err)
	}
}

func TestSerialize(t *testing.T) {
	t.Run("round trip", func(t *testing.T) {
		vectors := [][]float64{
			{0.1, 0.2, 0.30000000000000004},
			{-1e-300, 1.7976931348623157e308, 5e-324},
			{math.Pi, -math.E, 0, 42},
		}
		for _, v := range vectors {
			got, err := Deserialize(Serialize(v))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !reflect.DeepEqual(got, v) {
				t.Errorf("round trip changed %v into %v", v, got)
			}
		}
	})

	t.Run("format", func(t *testing.T) {
		if got := Serialize([]float64{1, 0.5, -2}); got != "1,0.5,-2" {
			t.Errorf("unexpected form %q", got)
		}
	})

	t.Run("strict rejects noise", func(t *testing.T) {
		if _, err := Deserialize("[1,2]"); !errors.Is(err, shared.ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput, got %v", err)
		}
	})

	t.Run("lenient", func(t *testing.T) {
		tests := map[string][]float64{
			`"[0.5, -1.25, 3e-2]"`: {0.5, -1.25, 0.03},
			"{1,2,3}":              {1, 2, 3},
			"'[7]'":                {7},
			"":                     {},
		}
		if v, err := DeserializeLenient("1,NaN,-Inf"); err != nil || !math.IsNaN(v[1]) || !math.IsInf(v[2], -1) {
			t.Errorf("expected strict spellings to survive, got %v, %v", v, err)
		}
		if v, err := DeserializeLenient("[NaN, 1, 2]"); err != nil || len(v) != 3 || !math.IsNaN(v[0]) {
			t.Errorf("expected NaN kept in place, got %v, %v", v, err)
		}
		for _, in := range []string{"[1, , 2]", "[1, 2,]", "[x, 1]"} {
			if v, err := DeserializeLenient(in); !errors.Is(err, shared.ErrInvalidInput) {
				t.Errorf("%q: expected ErrInvalidInput, got %v, %v", in, v, err)
			}
		}
		for in, want := range tests {
			got, err := DeserializeLenient(in)
			if err != nil {
				t.Fatalf("%q: unexpected error: %v", in, err)
			}
			if !reflect.DeepEqual(got, want) {
				t.Errorf("%q: expected %v, got %v", in, want, got)
			}
		}
	})
}

func TestNullable(t *testing.T) {
	for _, x := range []float64{math.NaN(), math.Inf(1), math.Inf(-1)} {
		if Nullable(x) != nil {
			t.Errorf("expected nil for %v", x)
		}
	}
	if p := Nullable(0.25); p == nil || *p != 0.25 {
		t.Errorf("expected 0.25, got %v", p)
	}

	if NullableVector(nil) != nil || FromNullable(nil) != nil {
		t.Error("expected nil vectors to stay nil")
	}
	back := FromNullable(NullableVector([]float64{1, math.NaN(), 3}))
	if len(back) != 3 || back[0] != 1 || !math.IsNaN(back[1]) || back[2] != 3 {
		t.Errorf("expected [1 NaN 3], got %v", back)
	}

	data, err := json.Marshal([]Match{{ID: "a", Distance: 0.5}, {ID: "b", Distance: math.NaN()}})
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	if want := `[{"id":"a","distance":0.5},{"id":"b","distance":null}]`; string(data) != want {
		t.Errorf("expected %s, got %s", want, data)
	}
}
