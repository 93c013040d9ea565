// Package ragged implements the variable-length score and id
// containers used throughout argument prediction, plus the filter,
// gather and padding primitives that operate on them.
//
// A ragged container is a flat value arena plus a row-offset index
// (offsets[i]:offsets[i+1] delimits row i). All operations work
// directly on offsets and run in linear time; none of them mutate
// their receiver.
package ragged

import (
	"fmt"
	"math"
)

// Sentinel is the reserved id marking "no ground truth" at a position.
const Sentinel = -1

// NegInf is the fill value for padded score slots that feed a max or
// softmax. Padding with anything else silently corrupts reductions.
var NegInf = float32(math.Inf(-1))

// Ragged is a batch of variable-length float32 rows.
type Ragged struct {
	values  []float32
	offsets []int // len = NumRows()+1, offsets[0] == 0, non-decreasing
}

// NewRagged copies rows into a single arena.
func NewRagged(rows [][]float32) Ragged {
	offsets := make([]int, len(rows)+1)
	total := 0
	for i, row := range rows {
		total += len(row)
		offsets[i+1] = total
	}
	values := make([]float32, 0, total)
	for _, row := range rows {
		values = append(values, row...)
	}
	return Ragged{values: values, offsets: offsets}
}

// FromFlat wraps an existing arena. The lengths must sum to len(values).
func FromFlat(values []float32, lengths []int) (Ragged, error) {
	offsets := make([]int, len(lengths)+1)
	total := 0
	for i, n := range lengths {
		if n < 0 {
			return Ragged{}, fmt.Errorf("negative row length %d at row %d", n, i)
		}
		total += n
		offsets[i+1] = total
	}
	if total != len(values) {
		return Ragged{}, fmt.Errorf("row lengths sum to %d, arena holds %d values", total, len(values))
	}
	return Ragged{values: values, offsets: offsets}, nil
}

// NumRows returns the number of rows.
func (r Ragged) NumRows() int { return len(r.offsets) - 1 }

// RowLen returns the length of row i.
func (r Ragged) RowLen(i int) int { return r.offsets[i+1] - r.offsets[i] }

// Row returns row i as a sub-slice of the arena. Callers must not
// mutate it.
func (r Ragged) Row(i int) []float32 { return r.values[r.offsets[i]:r.offsets[i+1]] }

// Values returns the flat arena. Callers must not mutate it.
func (r Ragged) Values() []float32 { return r.values }

// Lengths returns the per-row lengths.
func (r Ragged) Lengths() []int {
	lengths := make([]int, r.NumRows())
	for i := range lengths {
		lengths[i] = r.RowLen(i)
	}
	return lengths
}

// MaxRowLen returns the widest row, 0 for an empty container.
func (r Ragged) MaxRowLen() int {
	max := 0
	for i := 0; i < r.NumRows(); i++ {
		if n := r.RowLen(i); n > max {
			max = n
		}
	}
	return max
}

// ToDense pads every row to width with fill. A width of -1 uses the
// widest row. The fill value is the caller's responsibility: -Inf for
// scores feeding a max or softmax, 0 for scores feeding a sum.
func (r Ragged) ToDense(width int, fill float32) [][]float32 {
	if width < 0 {
		width = r.MaxRowLen()
	}
	dense := make([][]float32, r.NumRows())
	for i := range dense {
		row := make([]float32, width)
		n := copy(row, r.Row(i))
		for j := n; j < width; j++ {
			row[j] = fill
		}
		dense[i] = row
	}
	return dense
}

// FromDense truncates each padded row to its stated length. Inverse of
// ToDense for inputs whose padding already equals the fill value.
func FromDense(dense [][]float32, lengths []int) (Ragged, error) {
	if len(dense) != len(lengths) {
		return Ragged{}, fmt.Errorf("%d rows but %d lengths", len(dense), len(lengths))
	}
	rows := make([][]float32, len(dense))
	for i, row := range dense {
		if lengths[i] > len(row) {
			return Ragged{}, fmt.Errorf("row %d: length %d exceeds padded width %d", i, lengths[i], len(row))
		}
		rows[i] = row[:lengths[i]]
	}
	return NewRagged(rows), nil
}

// Ints is a batch of variable-length id rows.
type Ints struct {
	values  []int
	offsets []int
}

// NewInts copies rows into a single arena.
func NewInts(rows [][]int) Ints {
	offsets := make([]int, len(rows)+1)
	total := 0
	for i, row := range rows {
		total += len(row)
		offsets[i+1] = total
	}
	values := make([]int, 0, total)
	for _, row := range rows {
		values = append(values, row...)
	}
	return Ints{values: values, offsets: offsets}
}

// IntsFromFlat wraps an existing arena. The lengths must sum to
// len(values).
func IntsFromFlat(values []int, lengths []int) (Ints, error) {
	offsets := make([]int, len(lengths)+1)
	total := 0
	for i, n := range lengths {
		if n < 0 {
			return Ints{}, fmt.Errorf("negative row length %d at row %d", n, i)
		}
		total += n
		offsets[i+1] = total
	}
	if total != len(values) {
		return Ints{}, fmt.Errorf("row lengths sum to %d, arena holds %d values", total, len(values))
	}
	return Ints{values: values, offsets: offsets}, nil
}

// NumRows returns the number of rows.
func (r Ints) NumRows() int { return len(r.offsets) - 1 }

// RowLen returns the length of row i.
func (r Ints) RowLen(i int) int { return r.offsets[i+1] - r.offsets[i] }

// Row returns row i as a sub-slice of the arena. Callers must not
// mutate it.
func (r Ints) Row(i int) []int { return r.values[r.offsets[i]:r.offsets[i+1]] }

// Values returns the flat arena. Callers must not mutate it.
func (r Ints) Values() []int { return r.values }

// TotalLen returns the number of values across all rows.
func (r Ints) TotalLen() int { return len(r.values) }

// ToDense pads every row to width with fill (normally Sentinel for id
// rows). A width of -1 uses the widest row.
func (r Ints) ToDense(width int, fill int) [][]int {
	if width < 0 {
		for i := 0; i < r.NumRows(); i++ {
			if n := r.RowLen(i); n > width {
				width = n
			}
		}
		if width < 0 {
			width = 0
		}
	}
	dense := make([][]int, r.NumRows())
	for i := range dense {
		row := make([]int, width)
		n := copy(row, r.Row(i))
		for j := n; j < width; j++ {
			row[j] = fill
		}
		dense[i] = row
	}
	return dense
}
