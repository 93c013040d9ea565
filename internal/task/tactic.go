package task

import (
	"go.uber.org/zap"

	"tacgraph/internal/infer"
	"tacgraph/internal/metrics"
	"tacgraph/internal/types"
)

// tacticTask predicts the base tactic only.
type tacticTask struct {
	model *Model
	set   *metrics.Set
}

func (t *tacticTask) Kind() string { return BaseTacticPrediction }

func (t *tacticTask) Outputs() []string { return []string{OutputTacticLogits} }

func (t *tacticTask) Forward(batch types.Batch) (*Forward, error) {
	f, _, err := t.model.forwardTactic(batch)
	return f, err
}

func (t *tacticTask) Losses(f *Forward) (map[string][]float32, error) {
	return tacticLoss(f)
}

func (t *tacticTask) LossWeights() map[string]float64 {
	return map[string]float64{OutputTacticLogits: 1.0}
}

func (t *tacticTask) Metrics() *metrics.Set { return t.set }

func (t *tacticTask) UpdateMetrics(f *Forward) error {
	_, err := updateTacticAccuracy(t.set, f)
	return err
}

func (t *tacticTask) NewExpander(tacticExpandBound int, logger *zap.Logger) (*infer.Expander, error) {
	return infer.NewExpander(t.model.constants, t.model.enc, t.model, nil, tacticExpandBound, logger)
}
