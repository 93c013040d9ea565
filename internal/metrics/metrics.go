// Package metrics implements the running accuracy metrics for tactic
// and argument prediction. Accumulators are running means over a pass
// and are reset explicitly at train/eval/predict boundaries; the
// sentinel and masking rules mirror the loss computation exactly.
package metrics

import (
	"fmt"
	"sort"

	"tacgraph/internal/ragged"
)

// Mean is a weighted running mean.
type Mean struct {
	name  string
	sum   float64
	count float64
}

// NewMean returns a named accumulator.
func NewMean(name string) *Mean { return &Mean{name: name} }

// Name returns the accumulator name.
func (m *Mean) Name() string { return m.name }

// Update folds one observation in with the given weight.
func (m *Mean) Update(value, weight float64) {
	m.sum += value * weight
	m.count += weight
}

// UpdateBatch folds a vector of observations in with weight one each.
func (m *Mean) UpdateBatch(values []float32) {
	for _, v := range values {
		m.Update(float64(v), 1)
	}
}

// Result returns the running mean, 0 before any observation.
func (m *Mean) Result() float64 {
	if m.count == 0 {
		return 0
	}
	return m.sum / m.count
}

// Reset clears the accumulator for a new pass.
func (m *Mean) Reset() { m.sum, m.count = 0, 0 }

// Set is a named collection of accumulators sharing a reset lifecycle.
type Set struct {
	means map[string]*Mean
}

// NewSet creates accumulators for the given names.
func NewSet(names ...string) *Set {
	means := make(map[string]*Mean, len(names))
	for _, name := range names {
		means[name] = NewMean(name)
	}
	return &Set{means: means}
}

// Get returns the accumulator with the given name.
func (s *Set) Get(name string) (*Mean, error) {
	m, ok := s.means[name]
	if !ok {
		return nil, fmt.Errorf("no metric named %q", name)
	}
	return m, nil
}

// Reset clears every accumulator; called at the start of each
// training, evaluation or prediction pass.
func (s *Set) Reset() {
	for _, m := range s.means {
		m.Reset()
	}
}

// Results returns the current value of every accumulator.
func (s *Set) Results() map[string]float64 {
	out := make(map[string]float64, len(s.means))
	for name, m := range s.means {
		out[name] = m.Result()
	}
	return out
}

// Names returns the accumulator names in stable order.
func (s *Set) Names() []string {
	names := make([]string, 0, len(s.means))
	for name := range s.means {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// TacticAccuracy returns a 0/1 value per example for top-1 tactic
// match. Ties resolve to the lowest tactic id.
func TacticAccuracy(logits [][]float32, truth []int) ([]float32, error) {
	if len(logits) != len(truth) {
		return nil, fmt.Errorf("tactic accuracy: %d logit rows for %d labels", len(logits), len(truth))
	}
	out := make([]float32, len(logits))
	for i, row := range logits {
		best := ragged.Sentinel
		for k, v := range row {
			if best == ragged.Sentinel || v > row[best] {
				best = k
			}
		}
		if best == truth[i] {
			out[i] = 1
		}
	}
	return out, nil
}

// ArgumentAccuracy counts, over non-sentinel positions, how often the
// arg-max candidate equals the ground truth. Positions are excluded by
// the same sentinel rule as the loss. Returns correct and total valid
// position counts so callers can weight the running mean.
func ArgumentAccuracy(scores ragged.Table, labels ragged.Ints) (correct, total int, err error) {
	keptLabels, keptScores, err := ragged.FilterValid(labels, scores)
	if err != nil {
		return 0, 0, fmt.Errorf("argument accuracy: %w", err)
	}
	predictions, _ := ragged.ArgMax(keptScores)
	flatPred := predictions.Values()
	flatTrue := keptLabels.Values()
	for i, p := range flatPred {
		if p == flatTrue[i] {
			correct++
		}
	}
	return correct, len(flatTrue), nil
}

// SequenceAccuracy returns a 0/1 value per example for the joint
// local/global task: every argument position must pick the right pool
// and the right candidate within it. The predicted pool is the one
// holding the higher best score, ties favoring local. A position whose
// ground truth is absent in both pools can never be correct: the model
// has no way to predict "no argument", so absence is excluded from the
// loss but counted as a miss here.
func SequenceAccuracy(localNorm, globalNorm ragged.Table, localLabels, globalLabels ragged.Ints) ([]float32, error) {
	if localNorm.NumExamples() != globalNorm.NumExamples() {
		return nil, fmt.Errorf("sequence accuracy: %d local examples vs %d global", localNorm.NumExamples(), globalNorm.NumExamples())
	}
	localPred, localBest := ragged.ArgMax(localNorm)
	globalPred, globalBest := ragged.ArgMax(globalNorm)

	out := make([]float32, localNorm.NumExamples())
	for e := range out {
		n := localNorm.NumPositions(e)
		if globalNorm.NumPositions(e) != n || localLabels.RowLen(e) != n || globalLabels.RowLen(e) != n {
			return nil, fmt.Errorf("sequence accuracy: example %d has inconsistent position counts", e)
		}
		ok := true
		for j := 0; j < n; j++ {
			lTrue, gTrue := localLabels.Row(e)[j], globalLabels.Row(e)[j]
			trueIsLocal := lTrue >= gTrue
			trueIdx := gTrue
			if trueIsLocal {
				trueIdx = lTrue
			}

			predIsLocal := localBest.Row(e)[j] >= globalBest.Row(e)[j]
			predIdx := globalPred.Row(e)[j]
			if predIsLocal {
				predIdx = localPred.Row(e)[j]
			}

			if predIsLocal != trueIsLocal || predIdx != trueIdx {
				ok = false
				break
			}
		}
		if ok {
			out[e] = 1
		}
	}
	return out, nil
}

// LocalSequenceAccuracy returns a 0/1 value per example for the
// local-only task: every position's arg-max must equal the ground
// truth, and examples with any absent ground truth are never correct.
func LocalSequenceAccuracy(localNorm ragged.Table, localLabels ragged.Ints) ([]float32, error) {
	if localNorm.NumExamples() != localLabels.NumRows() {
		return nil, fmt.Errorf("local sequence accuracy: %d examples vs %d label rows", localNorm.NumExamples(), localLabels.NumRows())
	}
	predictions, _ := ragged.ArgMax(localNorm)

	out := make([]float32, localNorm.NumExamples())
	for e := range out {
		n := localNorm.NumPositions(e)
		if localLabels.RowLen(e) != n {
			return nil, fmt.Errorf("local sequence accuracy: example %d has %d labels for %d positions", e, localLabels.RowLen(e), n)
		}
		ok := true
		for j := 0; j < n; j++ {
			label := localLabels.Row(e)[j]
			if label == ragged.Sentinel || predictions.Row(e)[j] != label {
				ok = false
				break
			}
		}
		if ok {
			out[e] = 1
		}
	}
	return out, nil
}

// StrictAccuracy combines per-example sequence and tactic outcomes:
// an example is strictly correct only when both are.
func StrictAccuracy(sequence, tactic []float32) ([]float32, error) {
	if len(sequence) != len(tactic) {
		return nil, fmt.Errorf("strict accuracy: %d sequence values for %d tactic values", len(sequence), len(tactic))
	}
	out := make([]float32, len(sequence))
	for i := range out {
		out[i] = sequence[i] * tactic[i]
	}
	return out, nil
}
