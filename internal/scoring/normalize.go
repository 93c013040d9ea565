package scoring

import (
	"fmt"
	"math"

	"tacgraph/internal/ragged"
)

// NormalizeJoint merges raw local and global scores into one
// log-probability space per argument position: exponentiated, the
// union of both pools sums to one at every position.
//
// The normalization constant is log(sum exp(local) + sum exp(global)) with
// a max subtraction shared across both pools. Normalizing the pools
// independently and mixing afterward miscounts probability mass, so
// the shared constant is a correctness requirement, not a style
// choice. Entries at -Inf (masked globals) stay -Inf and end up with
// probability exactly zero.
//
// Both tables must carry the same positions per example. A position
// with no candidates in either pool, or only -Inf entries, has no
// defined distribution and fails hard; callers guarantee at least one
// candidate wherever a tactic requires an argument.
func NormalizeJoint(local, global ragged.Table) (ragged.Table, ragged.Table, error) {
	if local.NumExamples() != global.NumExamples() {
		return ragged.Table{}, ragged.Table{}, fmt.Errorf("normalize: %d local examples vs %d global", local.NumExamples(), global.NumExamples())
	}
	for e := 0; e < local.NumExamples(); e++ {
		if local.NumPositions(e) != global.NumPositions(e) {
			return ragged.Table{}, ragged.Table{}, fmt.Errorf("normalize: example %d has %d local positions vs %d global", e, local.NumPositions(e), global.NumPositions(e))
		}
	}

	normalize := func(t ragged.Table, norms []float64) ragged.Table {
		return tableMapByPosition(t, func(pos int, row, out []float32) {
			for k, v := range row {
				if math.IsInf(float64(v), -1) {
					out[k] = ragged.NegInf
				} else {
					out[k] = v - float32(norms[pos])
				}
			}
		})
	}

	total := local.TotalPositions()
	norms := make([]float64, total)
	for p := 0; p < total; p++ {
		localRow := local.FlatRow(p)
		globalRow := global.FlatRow(p)

		max := math.Inf(-1)
		for _, v := range localRow {
			if float64(v) > max {
				max = float64(v)
			}
		}
		for _, v := range globalRow {
			if float64(v) > max {
				max = float64(v)
			}
		}
		if math.IsInf(max, -1) {
			return ragged.Table{}, ragged.Table{}, fmt.Errorf("normalize: position %d (example %d) has no candidates with finite score", p, local.ExampleOf(p))
		}

		var sum float64
		for _, v := range localRow {
			sum += math.Exp(float64(v) - max)
		}
		for _, v := range globalRow {
			sum += math.Exp(float64(v) - max)
		}
		norms[p] = max + math.Log(sum)
	}

	return normalize(local, norms), normalize(global, norms), nil
}

// LogSoftmaxRows normalizes each row independently with a max
// subtraction. Used where only a single pool is in play; joint
// local/global normalization must go through NormalizeJoint instead.
func LogSoftmaxRows(rows [][]float32) [][]float32 {
	out := make([][]float32, len(rows))
	for j, row := range rows {
		norm := make([]float32, len(row))
		if len(row) == 0 {
			out[j] = norm
			continue
		}
		max := math.Inf(-1)
		for _, v := range row {
			if float64(v) > max {
				max = float64(v)
			}
		}
		var sum float64
		for _, v := range row {
			sum += math.Exp(float64(v) - max)
		}
		logNorm := max + math.Log(sum)
		for k, v := range row {
			norm[k] = float32(float64(v) - logNorm)
		}
		out[j] = norm
	}
	return out
}

// tableMapByPosition rebuilds a table by transforming each position's
// row in flat order.
func tableMapByPosition(t ragged.Table, f func(pos int, row, out []float32)) ragged.Table {
	rows := make([][][]float32, t.NumExamples())
	p := 0
	for e := 0; e < t.NumExamples(); e++ {
		n := t.NumPositions(e)
		ex := make([][]float32, n)
		for j := 0; j < n; j++ {
			row := t.Row(e, j)
			out := make([]float32, len(row))
			f(p, row, out)
			p++
			ex[j] = out
		}
		rows[e] = ex
	}
	return ragged.NewTable(rows)
}
