package encoder

import (
	"fmt"
	"math"
	"math/rand"
)

// Embedding is a fixed-width lookup table of float32 vectors.
type Embedding struct {
	rows [][]float32
	dim  int
}

// NewEmbedding builds a table with the given row count and width,
// initialized from rng with a scaled uniform distribution. Weight
// loading from a trained checkpoint replaces the rows wholesale via
// SetRows.
func NewEmbedding(count, dim int, rng *rand.Rand) *Embedding {
	rows := make([][]float32, count)
	scale := float32(1.0 / math.Sqrt(float64(dim)))
	for i := range rows {
		row := make([]float32, dim)
		for j := range row {
			row[j] = (rng.Float32()*2 - 1) * scale
		}
		rows[i] = row
	}
	return &Embedding{rows: rows, dim: dim}
}

// SetRows replaces the table contents.
func (e *Embedding) SetRows(rows [][]float32) error {
	for i, row := range rows {
		if len(row) != e.dim {
			return fmt.Errorf("embedding row %d has width %d, want %d", i, len(row), e.dim)
		}
	}
	e.rows = rows
	return nil
}

// Dim returns the vector width.
func (e *Embedding) Dim() int { return e.dim }

// Count returns the number of rows.
func (e *Embedding) Count() int { return len(e.rows) }

// Lookup returns row id. Callers must not mutate it.
func (e *Embedding) Lookup(id int) ([]float32, error) {
	if id < 0 || id >= len(e.rows) {
		return nil, fmt.Errorf("embedding id %d out of range [0, %d)", id, len(e.rows))
	}
	return e.rows[id], nil
}

// Rows returns the full table. Callers must not mutate it.
func (e *Embedding) Rows() [][]float32 { return e.rows }

// Dense is a fully connected projection y = Wx + b.
type Dense struct {
	weight [][]float32 // [out][in]
	bias   []float32
}

// NewDense builds an out-by-in projection initialized from rng.
func NewDense(in, out int, rng *rand.Rand) *Dense {
	weight := make([][]float32, out)
	scale := float32(1.0 / math.Sqrt(float64(in)))
	for i := range weight {
		row := make([]float32, in)
		for j := range row {
			row[j] = (rng.Float32()*2 - 1) * scale
		}
		weight[i] = row
	}
	return &Dense{weight: weight, bias: make([]float32, out)}
}

// Apply projects x.
func (d *Dense) Apply(x []float32) []float32 {
	out := make([]float32, len(d.weight))
	for i, row := range d.weight {
		s := d.bias[i]
		for j, w := range row {
			s += w * x[j]
		}
		out[i] = s
	}
	return out
}

// ApplyAll projects every vector in xs.
func (d *Dense) ApplyAll(xs [][]float32) [][]float32 {
	out := make([][]float32, len(xs))
	for i, x := range xs {
		out[i] = d.Apply(x)
	}
	return out
}

// Dot returns the inner product of two equal-width vectors.
func Dot(a, b []float32) float32 {
	var s float32
	for i, v := range a {
		s += v * b[i]
	}
	return s
}

// Norm returns the L2 norm of v.
func Norm(v []float32) float32 {
	var s float32
	for _, x := range v {
		s += x * x
	}
	return float32(math.Sqrt(float64(s)))
}

// Normalize returns v scaled to unit norm, or v unchanged when its
// norm is zero.
func Normalize(v []float32) []float32 {
	n := Norm(v)
	if n == 0 {
		return v
	}
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = x / n
	}
	return out
}

func tanh32(x float32) float32 { return float32(math.Tanh(float64(x))) }
