// Package infer expands proof states into ranked tactic hypotheses and
// per-hypothesis argument predictions. Expansion is weakly
// autoregressive: the top-K tactics are committed up front and each
// hypothesis decodes its argument slots in parallel, conditioned on
// that tactic alone.
package infer

import (
	"context"
	"fmt"
	"math"
	"sort"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"tacgraph/internal/encoder"
	"tacgraph/internal/ragged"
	"tacgraph/internal/types"
)

// Hypothesis is one expanded prediction for a proof state: a tactic,
// its masked log-probability, and the jointly normalized argument
// scores for however many slots the tactic requires.
type Hypothesis struct {
	Tactic       types.TacticID   `json:"tactic"`
	LogProb      float32          `json:"log_prob"`
	LocalScores  [][]float32      `json:"local_scores,omitempty"`  // position -> local-context candidate log-probs
	GlobalScores [][]float32      `json:"global_scores,omitempty"` // position -> global vocabulary log-probs
	Arguments    []types.Argument `json:"arguments"`               // best candidate per position, pool chosen by higher score
}

// ArgumentScorer computes normalized local and global argument scores
// for one example under one committed tactic, through the same pool
// and normalization path as training.
type ArgumentScorer interface {
	ScoreArguments(ps *types.ProofState, enc encoder.Encoding, tactic types.TacticID) (local, global [][]float32, err error)
	// GlobalCandidates returns the number of selectable global
	// candidates for the example: the vocabulary size, or the
	// available subset size under restriction. Zero when the task has
	// no global pool.
	GlobalCandidates(ps *types.ProofState) int
}

// TacticScorer produces tactic logits from an encoding.
type TacticScorer interface {
	TacticLogits(enc encoder.Encoding) []float32
}

// Expander drives two-stage inference over a batch.
type Expander struct {
	constants encoder.Constants
	enc       encoder.Encoder
	tactics   TacticScorer
	arguments ArgumentScorer // nil for the tactic-only task
	bound     int
	logger    *zap.Logger
}

// NewExpander validates the expansion bound and assembles the driver.
// A nil arguments scorer disables the argument stage (tactic-only
// task).
func NewExpander(constants encoder.Constants, enc encoder.Encoder, tactics TacticScorer, arguments ArgumentScorer, tacticExpandBound int, logger *zap.Logger) (*Expander, error) {
	if tacticExpandBound <= 0 {
		return nil, fmt.Errorf("tactic expand bound must be positive, got %d", tacticExpandBound)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Expander{
		constants: constants,
		enc:       enc,
		tactics:   tactics,
		arguments: arguments,
		bound:     tacticExpandBound,
		logger:    logger,
	}, nil
}

// MaskedTopK applies the permitted-tactic mask, log-softmaxes the
// surviving logits, and returns up to k (id, log-probability) pairs in
// non-increasing probability order. Masked ids are never returned, so
// fewer than k results come back when fewer tactics are permitted.
// Ties resolve to the lower tactic id.
func MaskedTopK(logits []float32, mask []bool, k int) ([]types.TacticID, []float32, error) {
	if len(mask) != len(logits) {
		return nil, nil, fmt.Errorf("top-k: mask has %d entries for %d logits", len(mask), len(logits))
	}
	max := math.Inf(-1)
	for i, v := range logits {
		if mask[i] && float64(v) > max {
			max = float64(v)
		}
	}
	if math.IsInf(max, -1) {
		return nil, nil, nil
	}
	var sum float64
	for i, v := range logits {
		if mask[i] {
			sum += math.Exp(float64(v) - max)
		}
	}
	logNorm := max + math.Log(sum)

	permitted := make([]int, 0, len(logits))
	for i := range logits {
		if mask[i] {
			permitted = append(permitted, i)
		}
	}
	sort.SliceStable(permitted, func(a, b int) bool {
		return logits[permitted[a]] > logits[permitted[b]]
	})
	if k > len(permitted) {
		k = len(permitted)
	}

	ids := make([]types.TacticID, k)
	values := make([]float32, k)
	for i := 0; i < k; i++ {
		ids[i] = types.TacticID(permitted[i])
		values[i] = float32(float64(logits[permitted[i]]) - logNorm)
	}
	return ids, values, nil
}

// PermittedTactics builds the per-example tactic mask: the external
// mask ANDed with an arity constraint. When the example has no
// candidates in any pool, only zero-argument tactics remain; otherwise
// every tactic the external mask allows.
func (x *Expander) PermittedTactics(ps *types.ProofState, external []bool) ([]bool, error) {
	if external != nil && len(external) != x.constants.TacticCount {
		return nil, fmt.Errorf("tactic mask has %d entries for %d tactics", len(external), x.constants.TacticCount)
	}
	globalCandidates := 0
	if x.arguments != nil {
		globalCandidates = x.arguments.GlobalCandidates(ps)
	}
	noContext := len(ps.LocalContext) == 0 && globalCandidates == 0

	mask := make([]bool, x.constants.TacticCount)
	for t := range mask {
		if external != nil && !external[t] {
			continue
		}
		if noContext && x.constants.TacticArity[t] != 0 {
			continue
		}
		mask[t] = true
	}
	return mask, nil
}

// Expand runs both stages for every example in the batch and returns
// up to bound ranked hypotheses per example. Hypotheses of one example
// are scored concurrently; the context cancels the whole expansion.
func (x *Expander) Expand(ctx context.Context, batch types.Batch, external []bool) ([][]Hypothesis, error) {
	out := make([][]Hypothesis, len(batch))
	for i := range batch {
		hyps, err := x.expandOne(ctx, &batch[i], external)
		if err != nil {
			return nil, fmt.Errorf("example %d: %w", i, err)
		}
		out[i] = hyps
	}
	return out, nil
}

func (x *Expander) expandOne(ctx context.Context, ps *types.ProofState, external []bool) ([]Hypothesis, error) {
	enc, err := x.enc.Encode(ps)
	if err != nil {
		return nil, fmt.Errorf("encode: %w", err)
	}

	mask, err := x.PermittedTactics(ps, external)
	if err != nil {
		return nil, err
	}
	ids, logProbs, err := MaskedTopK(x.tactics.TacticLogits(enc), mask, x.bound)
	if err != nil {
		return nil, err
	}
	x.logger.Debug("expanded tactic hypotheses",
		zap.Int("requested", x.bound),
		zap.Int("returned", len(ids)))

	hyps := make([]Hypothesis, len(ids))
	grp, ctx := errgroup.WithContext(ctx)
	for i := range ids {
		i := i
		grp.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			hyp := Hypothesis{Tactic: ids[i], LogProb: logProbs[i]}
			if x.arguments != nil {
				local, global, err := x.arguments.ScoreArguments(ps, enc, ids[i])
				if err != nil {
					return fmt.Errorf("tactic %d: %w", ids[i], err)
				}
				hyp.LocalScores = local
				hyp.GlobalScores = global
				hyp.Arguments = bestArguments(local, global)
			}
			hyps[i] = hyp
			return nil
		})
	}
	if err := grp.Wait(); err != nil {
		return nil, err
	}
	return hyps, nil
}

// bestArguments picks, per position, the pool and candidate with the
// highest normalized score, ties favoring the local pool.
func bestArguments(local, global [][]float32) []types.Argument {
	args := make([]types.Argument, len(local))
	for j := range local {
		localIdx, localBest := argMaxRow(local[j])
		globalIdx, globalBest := argMaxRow(global[j])
		switch {
		case localIdx == ragged.Sentinel && globalIdx == ragged.Sentinel:
			args[j] = types.NoArgument()
		case globalIdx == ragged.Sentinel || (localIdx != ragged.Sentinel && localBest >= globalBest):
			args[j] = types.LocalArgument(localIdx)
		default:
			args[j] = types.GlobalArgument(types.GlobalID(globalIdx))
		}
	}
	return args
}

func argMaxRow(row []float32) (int, float32) {
	best, bestVal := ragged.Sentinel, ragged.NegInf
	for k, v := range row {
		if math.IsInf(float64(v), -1) {
			continue
		}
		if best == ragged.Sentinel || v > bestVal {
			best, bestVal = k, v
		}
	}
	return best, bestVal
}
