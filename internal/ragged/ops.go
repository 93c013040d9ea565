package ragged

import "fmt"

// FilterValid drops every position whose label is Sentinel, preserving
// example grouping in both outputs. Labels must carry one id per
// position of scores. A row whose labels are all Sentinel comes back
// empty, not as an error; an entirely sentinel batch yields empty
// containers.
func FilterValid(labels Ints, scores Table) (Ints, Table, error) {
	if err := checkAligned(scores, labels); err != nil {
		return Ints{}, Table{}, fmt.Errorf("filter valid: %w", err)
	}
	keptLabels := make([][]int, labels.NumRows())
	keptRows := make([][][]float32, labels.NumRows())
	for e := 0; e < labels.NumRows(); e++ {
		row := labels.Row(e)
		for j, label := range row {
			if label == Sentinel {
				continue
			}
			keptLabels[e] = append(keptLabels[e], label)
			keptRows[e] = append(keptRows[e], scores.Row(e, j))
		}
	}
	return NewInts(keptLabels), NewTable(keptRows), nil
}

// GatherByLabel picks, for every position, the score at the label's
// candidate index, grouped per example. Labels must be sentinel-free
// (run FilterValid first) and in range for each position's candidate
// count; an out-of-range label means the candidate pool and the ground
// truth disagree, which is a contract violation upstream and fails
// hard here rather than yielding a silently wrong score.
func GatherByLabel(scores Table, labels Ints) (Ragged, error) {
	if err := checkAligned(scores, labels); err != nil {
		return Ragged{}, fmt.Errorf("gather by label: %w", err)
	}
	gathered := make([][]float32, scores.NumExamples())
	for e := 0; e < scores.NumExamples(); e++ {
		row := labels.Row(e)
		out := make([]float32, len(row))
		for j, label := range row {
			candidates := scores.Row(e, j)
			if label < 0 || label >= len(candidates) {
				return Ragged{}, fmt.Errorf("gather by label: example %d position %d: label %d out of range for %d candidates", e, j, label, len(candidates))
			}
			out[j] = candidates[label]
		}
		gathered[e] = out
	}
	return NewRagged(gathered), nil
}

// ArgMax returns, per position, the index and value of the maximum
// score, grouped per example. Empty rows yield index Sentinel and
// value -Inf.
func ArgMax(scores Table) (Ints, Ragged) {
	indices := make([][]int, scores.NumExamples())
	best := make([][]float32, scores.NumExamples())
	for e := 0; e < scores.NumExamples(); e++ {
		n := scores.NumPositions(e)
		idxRow := make([]int, n)
		valRow := make([]float32, n)
		for j := 0; j < n; j++ {
			row := scores.Row(e, j)
			bestIdx, bestVal := Sentinel, NegInf
			for k, v := range row {
				if bestIdx == Sentinel || v > bestVal {
					bestIdx, bestVal = k, v
				}
			}
			idxRow[j] = bestIdx
			valRow[j] = bestVal
		}
		indices[e] = idxRow
		best[e] = valRow
	}
	return NewInts(indices), NewRagged(best)
}

// SumRows sums each example's row of r into one scalar. Empty rows sum
// to zero, so an example with no valid positions contributes zero.
func SumRows(r Ragged) []float32 {
	sums := make([]float32, r.NumRows())
	for i := range sums {
		var s float32
		for _, v := range r.Row(i) {
			s += v
		}
		sums[i] = s
	}
	return sums
}
