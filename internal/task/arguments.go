package task

import (
	"fmt"

	"go.uber.org/zap"

	"tacgraph/internal/encoder"
	"tacgraph/internal/infer"
	"tacgraph/internal/loss"
	"tacgraph/internal/metrics"
	"tacgraph/internal/ragged"
	"tacgraph/internal/scoring"
	"tacgraph/internal/types"
)

// localTask predicts the tactic plus local-context arguments.
type localTask struct {
	model *Model
	agg   loss.Aggregation
	coeff float64
	set   *metrics.Set
}

func (t *localTask) Kind() string { return LocalArgumentPrediction }

func (t *localTask) Outputs() []string {
	return []string{OutputTacticLogits, OutputLocalArguments}
}

func (t *localTask) Forward(batch types.Batch) (*Forward, error) {
	f, encodings, err := t.model.forwardTactic(batch)
	if err != nil {
		return nil, err
	}
	if err := t.model.forwardLocal(batch, f, encodings); err != nil {
		return nil, err
	}
	return f, nil
}

func (t *localTask) Losses(f *Forward) (map[string][]float32, error) {
	losses, err := tacticLoss(f)
	if err != nil {
		return nil, err
	}
	args, err := loss.LocalArgumentNLL(f.LocalRaw, f.LocalLabels, t.agg)
	if err != nil {
		return nil, err
	}
	losses[OutputLocalArguments] = args
	return losses, nil
}

func (t *localTask) LossWeights() map[string]float64 {
	return map[string]float64{
		OutputTacticLogits:   1.0,
		OutputLocalArguments: t.coeff,
	}
}

func (t *localTask) Metrics() *metrics.Set { return t.set }

func (t *localTask) UpdateMetrics(f *Forward) error {
	tacticAcc, err := updateTacticAccuracy(t.set, f)
	if err != nil {
		return err
	}
	if err := updateArgumentAccuracy(t.set, MetricLocalArgumentsAccuracy, f.LocalRaw, f.LocalLabels); err != nil {
		return err
	}

	// arg-max is invariant under per-position normalization, so the
	// raw scores feed the sequence metric directly
	seq, err := metrics.LocalSequenceAccuracy(f.LocalRaw, f.LocalLabels)
	if err != nil {
		return err
	}
	strict, err := metrics.StrictAccuracy(seq, tacticAcc)
	if err != nil {
		return err
	}
	return updateSeqAndStrict(t.set, seq, strict)
}

func (t *localTask) NewExpander(tacticExpandBound int, logger *zap.Logger) (*infer.Expander, error) {
	return infer.NewExpander(t.model.constants, t.model.enc, t.model, &localArgumentScorer{model: t.model}, tacticExpandBound, logger)
}

// globalTask predicts the tactic plus arguments drawn jointly from the
// local context and the global vocabulary.
type globalTask struct {
	model *Model
	agg   loss.Aggregation
	coeff float64
	set   *metrics.Set
}

func (t *globalTask) Kind() string { return GlobalArgumentPrediction }

func (t *globalTask) Outputs() []string {
	return []string{OutputTacticLogits, OutputLocalArguments, OutputGlobalArguments}
}

func (t *globalTask) Forward(batch types.Batch) (*Forward, error) {
	f, encodings, err := t.model.forwardTactic(batch)
	if err != nil {
		return nil, err
	}
	if err := t.model.forwardGlobal(batch, f, encodings); err != nil {
		return nil, err
	}
	return f, nil
}

func (t *globalTask) Losses(f *Forward) (map[string][]float32, error) {
	losses, err := tacticLoss(f)
	if err != nil {
		return nil, err
	}
	localArgs, err := loss.ArgumentNLL(f.LocalNorm, f.LocalLabels, t.agg)
	if err != nil {
		return nil, err
	}
	globalArgs, err := loss.ArgumentNLL(f.GlobalNorm, f.GlobalLabels, t.agg)
	if err != nil {
		return nil, err
	}
	losses[OutputLocalArguments] = localArgs
	losses[OutputGlobalArguments] = globalArgs
	return losses, nil
}

func (t *globalTask) LossWeights() map[string]float64 {
	return map[string]float64{
		OutputTacticLogits:    1.0,
		OutputLocalArguments:  t.coeff,
		OutputGlobalArguments: t.coeff,
	}
}

func (t *globalTask) Metrics() *metrics.Set { return t.set }

func (t *globalTask) UpdateMetrics(f *Forward) error {
	tacticAcc, err := updateTacticAccuracy(t.set, f)
	if err != nil {
		return err
	}
	if err := updateArgumentAccuracy(t.set, MetricLocalArgumentsAccuracy, f.LocalNorm, f.LocalLabels); err != nil {
		return err
	}
	if err := updateArgumentAccuracy(t.set, MetricGlobalArgumentsAccuracy, f.GlobalNorm, f.GlobalLabels); err != nil {
		return err
	}

	seq, err := metrics.SequenceAccuracy(f.LocalNorm, f.GlobalNorm, f.LocalLabels, f.GlobalLabels)
	if err != nil {
		return err
	}
	strict, err := metrics.StrictAccuracy(seq, tacticAcc)
	if err != nil {
		return err
	}
	return updateSeqAndStrict(t.set, seq, strict)
}

func (t *globalTask) NewExpander(tacticExpandBound int, logger *zap.Logger) (*infer.Expander, error) {
	return infer.NewExpander(t.model.constants, t.model.enc, t.model, &globalArgumentScorer{model: t.model}, tacticExpandBound, logger)
}

func updateSeqAndStrict(set *metrics.Set, seq, strict []float32) error {
	m, err := set.Get(MetricSeqAccuracy)
	if err != nil {
		return err
	}
	m.UpdateBatch(seq)
	m, err = set.Get(MetricStrictAccuracy)
	if err != nil {
		return err
	}
	m.UpdateBatch(strict)
	return nil
}

// localArgumentScorer decodes arguments from the local pool alone,
// normalized per position.
type localArgumentScorer struct {
	model *Model
}

func (s *localArgumentScorer) ScoreArguments(ps *types.ProofState, enc encoder.Encoding, tactic types.TacticID) ([][]float32, [][]float32, error) {
	queries, err := s.model.argumentQueries(enc, tactic)
	if err != nil {
		return nil, nil, err
	}
	rows, err := s.model.localScores(ps, enc, queries)
	if err != nil {
		return nil, nil, err
	}
	for j, row := range rows {
		if len(row) == 0 {
			return nil, nil, fmt.Errorf("position %d has no local candidates for tactic %d", j, tactic)
		}
	}
	normalized := scoring.LogSoftmaxRows(rows)
	// no global pool in this task: empty rows keep the layout aligned
	return normalized, make([][]float32, len(rows)), nil
}

func (s *localArgumentScorer) GlobalCandidates(*types.ProofState) int { return 0 }

// globalArgumentScorer decodes arguments through the same joint
// local/global normalization used in training.
type globalArgumentScorer struct {
	model *Model
}

func (s *globalArgumentScorer) ScoreArguments(ps *types.ProofState, enc encoder.Encoding, tactic types.TacticID) ([][]float32, [][]float32, error) {
	queries, err := s.model.argumentQueries(enc, tactic)
	if err != nil {
		return nil, nil, err
	}
	local, err := s.model.localScores(ps, enc, queries)
	if err != nil {
		return nil, nil, err
	}
	global, err := s.model.globalScores(ps, queries)
	if err != nil {
		return nil, nil, err
	}

	localNorm, globalNorm, err := scoring.NormalizeJoint(
		ragged.NewTable([][][]float32{local}),
		ragged.NewTable([][][]float32{global}),
	)
	if err != nil {
		return nil, nil, err
	}

	outLocal := make([][]float32, len(local))
	outGlobal := make([][]float32, len(global))
	for j := range local {
		outLocal[j] = localNorm.Row(0, j)
		outGlobal[j] = globalNorm.Row(0, j)
	}
	return outLocal, outGlobal, nil
}

func (s *globalArgumentScorer) GlobalCandidates(ps *types.ProofState) int {
	return s.model.globalCandidates(ps)
}
