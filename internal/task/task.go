package task

import (
	"fmt"

	"go.uber.org/zap"

	"tacgraph/internal/encoder"
	"tacgraph/internal/infer"
	"tacgraph/internal/loss"
	"tacgraph/internal/metrics"
	"tacgraph/internal/ragged"
	"tacgraph/internal/types"
)

// Task is the capability set shared by the prediction task variants.
type Task interface {
	// Kind returns the prediction_task_type string.
	Kind() string
	// Outputs returns the named outputs of the training forward pass.
	Outputs() []string
	// Forward runs the training forward pass over a batch.
	Forward(batch types.Batch) (*Forward, error)
	// Losses computes one loss vector per named output.
	Losses(f *Forward) (map[string][]float32, error)
	// LossWeights maps each output to its loss weight.
	LossWeights() map[string]float64
	// Metrics returns the task's running accumulators; callers reset
	// them at pass boundaries.
	Metrics() *metrics.Set
	// UpdateMetrics folds one forward pass into the accumulators.
	UpdateMetrics(f *Forward) error
	// NewExpander builds the inference-time top-K driver.
	NewExpander(tacticExpandBound int, logger *zap.Logger) (*infer.Expander, error)
}

// New constructs the configured task variant. Each variant is
// assembled independently and completely here; an unknown kind fails
// before any batch is processed.
func New(spec Spec, constants encoder.Constants, enc encoder.Encoder) (Task, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	model, err := NewModel(spec, constants, enc)
	if err != nil {
		return nil, err
	}
	agg, err := loss.ParseAggregation(spec.LossAggregation)
	if err != nil {
		return nil, err
	}

	switch spec.PredictionTaskType {
	case BaseTacticPrediction:
		return &tacticTask{
			model: model,
			set:   metrics.NewSet(MetricTacticAccuracy),
		}, nil
	case LocalArgumentPrediction:
		return &localTask{
			model: model,
			agg:   agg,
			coeff: spec.ArgumentsLossCoefficient,
			set: metrics.NewSet(
				MetricTacticAccuracy,
				MetricLocalArgumentsAccuracy,
				MetricSeqAccuracy,
				MetricStrictAccuracy,
			),
		}, nil
	case GlobalArgumentPrediction:
		return &globalTask{
			model: model,
			agg:   agg,
			coeff: spec.ArgumentsLossCoefficient,
			set: metrics.NewSet(
				MetricTacticAccuracy,
				MetricLocalArgumentsAccuracy,
				MetricGlobalArgumentsAccuracy,
				MetricSeqAccuracy,
				MetricStrictAccuracy,
			),
		}, nil
	default:
		return nil, fmt.Errorf("%q is not a valid prediction task type", spec.PredictionTaskType)
	}
}

// updateTacticAccuracy is shared by all variants.
func updateTacticAccuracy(set *metrics.Set, f *Forward) ([]float32, error) {
	acc, err := metrics.TacticAccuracy(f.TacticLogits, f.TacticTruth)
	if err != nil {
		return nil, err
	}
	m, err := set.Get(MetricTacticAccuracy)
	if err != nil {
		return nil, err
	}
	m.UpdateBatch(acc)
	return acc, nil
}

// updateArgumentAccuracy folds per-position accuracy into the named
// accumulator, weighting by the number of valid positions.
func updateArgumentAccuracy(set *metrics.Set, name string, scores ragged.Table, labels ragged.Ints) error {
	correct, total, err := metrics.ArgumentAccuracy(scores, labels)
	if err != nil {
		return err
	}
	if total == 0 {
		return nil
	}
	m, err := set.Get(name)
	if err != nil {
		return err
	}
	m.Update(float64(correct)/float64(total), float64(total))
	return nil
}
