package loss

import (
	"fmt"
	"math"

	"tacgraph/internal/ragged"
)

// LocalArgumentNLL is the argument loss for the local-only task: raw
// (unnormalized) local scores are log-softmaxed within each position's
// candidate row before gathering the true candidate. Sentinel
// positions are excluded first, so an empty local context is legal as
// long as no position claims a local ground truth.
func LocalArgumentNLL(raw ragged.Table, labels ragged.Ints, agg Aggregation) ([]float32, error) {
	keptLabels, keptScores, err := ragged.FilterValid(labels, raw)
	if err != nil {
		return nil, fmt.Errorf("local argument loss: %w", err)
	}

	normalized := logSoftmaxRows(keptScores)
	gathered, err := ragged.GatherByLabel(normalized, keptLabels)
	if err != nil {
		return nil, fmt.Errorf("local argument loss: %w", err)
	}

	switch agg {
	case SumOverSequence:
		sums := ragged.SumRows(gathered)
		for i, v := range sums {
			sums[i] = -v
		}
		return sums, nil
	case Flat:
		flat := gathered.Values()
		out := make([]float32, len(flat))
		for i, v := range flat {
			out[i] = -v
		}
		return out, nil
	default:
		return nil, fmt.Errorf("local argument loss: unknown aggregation %d", agg)
	}
}

// logSoftmaxRows normalizes every position row independently with a
// max subtraction. Rows must be non-empty for positions that survived
// sentinel filtering; empty rows stay empty.
func logSoftmaxRows(t ragged.Table) ragged.Table {
	rows := make([][][]float32, t.NumExamples())
	for e := 0; e < t.NumExamples(); e++ {
		n := t.NumPositions(e)
		ex := make([][]float32, n)
		for j := 0; j < n; j++ {
			row := t.Row(e, j)
			out := make([]float32, len(row))
			if len(row) == 0 {
				ex[j] = out
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
				out[k] = float32(float64(v) - logNorm)
			}
			ex[j] = out
		}
		rows[e] = ex
	}
	return ragged.NewTable(rows)
}
