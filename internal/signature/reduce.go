package signature

import (
	"fmt"
	"math"
	"sync"

	"gonum.org/v1/gonum/mat"

	"github.com/desertthunder/tracksig/internal/shared"
)

type basisKey struct {
	rows, cols int
}

var bases sync.Map // basisKey -> *mat.Dense

// dctBasis returns the first rows basis vectors of the orthonormal type-II DCT of length cols.
func dctBasis(rows, cols int) *mat.Dense {
	key := basisKey{rows, cols}
	if b, ok := bases.Load(key); ok {
		return b.(*mat.Dense)
	}

	n := float64(cols)
	data := make([]float64, rows*cols)
	for k := range rows {
		scale := math.Sqrt(2 / n)
		if k == 0 {
			scale = math.Sqrt(1 / n)
		}
		for i := range cols {
			data[k*cols+i] = scale * math.Cos(math.Pi*float64(k)*(2*float64(i)+1)/(2*n))
		}
	}

	b, _ := bases.LoadOrStore(key, mat.NewDense(rows, cols, data))
	return b.(*mat.Dense)
}

// DCT returns the orthonormal type-II discrete cosine transform of v.
func DCT(v []float64) []float64 {
	if len(v) == 0 {
		return []float64{}
	}
	return project(v, len(v))
}

// Reduce keeps the first n coefficients of the orthonormal DCT-II of v.
//
// n must be in [1, len(v)]; out-of-range counts fail with [shared.ErrInvalidArgument]
// rather than padding.
func Reduce(v []float64, n int) ([]float64, error) {
	if n <= 0 || n > len(v) {
		return nil, fmt.Errorf("%w: %d components requested from a vector of length %d",
			shared.ErrInvalidArgument, n, len(v))
	}
	return project(v, n), nil
}

func project(v []float64, rows int) []float64 {
	var out mat.VecDense
	out.MulVec(dctBasis(rows, len(v)), mat.NewVecDense(len(v), append([]float64(nil), v...)))
	return out.RawVector().Data
}
