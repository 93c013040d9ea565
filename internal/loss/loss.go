// Package loss computes the training objectives: tactic cross-entropy,
// argument negative log-likelihood over jointly normalized candidate
// scores, and the auxiliary definition-embedding norm loss.
package loss

import (
	"fmt"
	"math"

	"tacgraph/internal/ragged"
)

// Aggregation selects how per-position argument losses are reduced.
type Aggregation int

const (
	// SumOverSequence sums a tactic application's argument losses
	// into one scalar per example, so tactic loss plus argument loss
	// approximates the negative log-probability of the whole
	// application. Examples without valid positions contribute zero.
	SumOverSequence Aggregation = iota
	// Flat emits one loss per valid argument across the batch,
	// implicitly averaging per argument rather than per example.
	Flat
)

const (
	sumOverSequenceName = "sum_over_sequence"
	flatName            = "flat"
)

// ParseAggregation maps a configuration string to an Aggregation.
func ParseAggregation(s string) (Aggregation, error) {
	switch s {
	case sumOverSequenceName:
		return SumOverSequence, nil
	case flatName, "":
		return Flat, nil
	default:
		return 0, fmt.Errorf("unknown aggregation policy %q (want %q or %q)", s, sumOverSequenceName, flatName)
	}
}

// String returns the configuration name of the policy.
func (a Aggregation) String() string {
	switch a {
	case SumOverSequence:
		return sumOverSequenceName
	case Flat:
		return flatName
	default:
		return fmt.Sprintf("aggregation(%d)", int(a))
	}
}

// TacticNLL is categorical cross-entropy from unnormalized tactic
// logits, one value per example. The log-softmax is computed with a
// max subtraction.
func TacticNLL(logits [][]float32, truth []int) ([]float32, error) {
	if len(logits) != len(truth) {
		return nil, fmt.Errorf("tactic loss: %d logit rows for %d labels", len(logits), len(truth))
	}
	out := make([]float32, len(logits))
	for i, row := range logits {
		t := truth[i]
		if t < 0 || t >= len(row) {
			return nil, fmt.Errorf("tactic loss: example %d: tactic %d out of range [0, %d)", i, t, len(row))
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
		out[i] = -float32(float64(row[t]) - max - math.Log(sum))
	}
	return out, nil
}

// ArgumentNLL takes, for every non-sentinel ground-truth position, the
// negated normalized log-probability of the true candidate, then
// reduces per the aggregation policy. The scores must already be
// jointly normalized; this function only gathers and negates.
//
// A batch with no valid positions is legal: SumOverSequence yields an
// all-zero vector, Flat yields an empty one.
func ArgumentNLL(normalized ragged.Table, labels ragged.Ints, agg Aggregation) ([]float32, error) {
	keptLabels, keptScores, err := ragged.FilterValid(labels, normalized)
	if err != nil {
		return nil, fmt.Errorf("argument loss: %w", err)
	}
	gathered, err := ragged.GatherByLabel(keptScores, keptLabels)
	if err != nil {
		return nil, fmt.Errorf("argument loss: %w", err)
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
		return nil, fmt.Errorf("argument loss: unknown aggregation %d", agg)
	}
}

// DefinitionNormSquared is the auxiliary definition-embedding loss:
// the squared L2 norm of each predicted embedding against an implicit
// zero target.
func DefinitionNormSquared(embeddings [][]float32) []float32 {
	out := make([]float32, len(embeddings))
	for i, emb := range embeddings {
		var s float32
		for _, v := range emb {
			s += v * v
		}
		out[i] = s
	}
	return out
}

// Mean reduces a loss vector to its average, 0 for an empty vector.
func Mean(losses []float32) float64 {
	if len(losses) == 0 {
		return 0
	}
	var s float64
	for _, v := range losses {
		s += float64(v)
	}
	return s / float64(len(losses))
}
