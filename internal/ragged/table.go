package ragged

import "fmt"

// Table is a two-level ragged batch of scores: example -> argument
// position -> candidate score row. Positions of all examples share one
// arena; posOffsets indexes positions by example, rowOffsets indexes
// candidate rows by position.
type Table struct {
	values     []float32
	rowOffsets []int // position p occupies values[rowOffsets[p]:rowOffsets[p+1]]
	posOffsets []int // example e owns positions posOffsets[e]:posOffsets[e+1]
}

// NewTable copies a nested slice layout into table form.
func NewTable(examples [][][]float32) Table {
	posOffsets := make([]int, len(examples)+1)
	positions := 0
	total := 0
	for i, ex := range examples {
		positions += len(ex)
		posOffsets[i+1] = positions
		for _, row := range ex {
			total += len(row)
		}
	}
	rowOffsets := make([]int, positions+1)
	values := make([]float32, 0, total)
	p := 0
	for _, ex := range examples {
		for _, row := range ex {
			values = append(values, row...)
			rowOffsets[p+1] = len(values)
			p++
		}
	}
	return Table{values: values, rowOffsets: rowOffsets, posOffsets: posOffsets}
}

// NumExamples returns the number of examples.
func (t Table) NumExamples() int { return len(t.posOffsets) - 1 }

// NumPositions returns the number of argument positions of example e.
func (t Table) NumPositions(e int) int { return t.posOffsets[e+1] - t.posOffsets[e] }

// TotalPositions returns the number of positions across the batch.
func (t Table) TotalPositions() int { return len(t.rowOffsets) - 1 }

// PositionLengths returns the candidate count of every position, in
// batch order.
func (t Table) PositionLengths() []int {
	lengths := make([]int, t.TotalPositions())
	for p := range lengths {
		lengths[p] = t.rowOffsets[p+1] - t.rowOffsets[p]
	}
	return lengths
}

// Row returns the candidate score row of position j of example e.
// Callers must not mutate it.
func (t Table) Row(e, j int) []float32 {
	p := t.posOffsets[e] + j
	return t.values[t.rowOffsets[p]:t.rowOffsets[p+1]]
}

// FlatRow returns the candidate score row of flat position p.
func (t Table) FlatRow(p int) []float32 {
	return t.values[t.rowOffsets[p]:t.rowOffsets[p+1]]
}

// ExampleOf returns the example owning flat position p.
func (t Table) ExampleOf(p int) int {
	// positions are ordered by example; binary search is overkill for
	// the batch sizes involved but keeps this O(log n)
	lo, hi := 0, t.NumExamples()
	for lo < hi {
		mid := (lo + hi) / 2
		if t.posOffsets[mid+1] <= p {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	return lo
}

// Map returns a new table with f applied to every score.
func (t Table) Map(f func(float32) float32) Table {
	values := make([]float32, len(t.values))
	for i, v := range t.values {
		values[i] = f(v)
	}
	return Table{values: values, rowOffsets: t.rowOffsets, posOffsets: t.posOffsets}
}

// ToDense pads the table to [examples][maxPositions][maxCandidates].
// Padded candidate slots get candFill (-Inf before a max/softmax);
// padded position rows get posFill (0 keeps them out of sums).
func (t Table) ToDense(posFill, candFill float32) [][][]float32 {
	maxPos, maxCand := 0, 0
	for e := 0; e < t.NumExamples(); e++ {
		if n := t.NumPositions(e); n > maxPos {
			maxPos = n
		}
	}
	for p := 0; p < t.TotalPositions(); p++ {
		if n := t.rowOffsets[p+1] - t.rowOffsets[p]; n > maxCand {
			maxCand = n
		}
	}
	dense := make([][][]float32, t.NumExamples())
	for e := range dense {
		ex := make([][]float32, maxPos)
		for j := 0; j < maxPos; j++ {
			row := make([]float32, maxCand)
			if j < t.NumPositions(e) {
				n := copy(row, t.Row(e, j))
				for k := n; k < maxCand; k++ {
					row[k] = candFill
				}
			} else {
				for k := range row {
					row[k] = posFill
				}
			}
			ex[j] = row
		}
		dense[e] = ex
	}
	return dense
}

// SameShape reports whether two tables share position and candidate
// counts.
func SameShape(a, b Table) bool {
	if len(a.posOffsets) != len(b.posOffsets) || len(a.rowOffsets) != len(b.rowOffsets) {
		return false
	}
	for i := range a.posOffsets {
		if a.posOffsets[i] != b.posOffsets[i] {
			return false
		}
	}
	for i := range a.rowOffsets {
		if a.rowOffsets[i] != b.rowOffsets[i] {
			return false
		}
	}
	return true
}

// checkAligned verifies that labels carry one id per position of t.
func checkAligned(t Table, labels Ints) error {
	if labels.NumRows() != t.NumExamples() {
		return fmt.Errorf("labels have %d rows, table has %d examples", labels.NumRows(), t.NumExamples())
	}
	for e := 0; e < t.NumExamples(); e++ {
		if labels.RowLen(e) != t.NumPositions(e) {
			return fmt.Errorf("example %d: %d labels for %d positions", e, labels.RowLen(e), t.NumPositions(e))
		}
	}
	return nil
}
