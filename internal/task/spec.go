// Package task assembles the three prediction task variants behind one
// interface: base tactic prediction, tactic plus local arguments, and
// tactic plus joint local/global arguments. A task owns its forward
// pass, named losses and loss weights, metric set, and inference
// expansion; variants are constructed independently from a YAML spec
// and never share mutable construction state.
package task

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"tacgraph/internal/loss"
	"tacgraph/internal/scoring"
)

// Task kinds, matching the prediction_task_type values of the original
// configuration files.
const (
	BaseTacticPrediction     = "base_tactic_prediction"
	LocalArgumentPrediction  = "local_argument_prediction"
	GlobalArgumentPrediction = "global_argument_prediction"
)

// Output names, used as keys for losses, loss weights and metrics.
const (
	OutputTacticLogits    = "tactic_logits"
	OutputLocalArguments  = "local_arguments_logits"
	OutputGlobalArguments = "global_arguments_logits"
)

// Metric names.
const (
	MetricTacticAccuracy          = "tactic_accuracy"
	MetricLocalArgumentsAccuracy  = "local_arguments_accuracy"
	MetricGlobalArgumentsAccuracy = "global_arguments_accuracy"
	MetricSeqAccuracy             = "arguments_seq_accuracy"
	MetricStrictAccuracy          = "strict_accuracy"
)

// Spec is the YAML-facing task configuration.
type Spec struct {
	PredictionTaskType string `yaml:"prediction_task_type"`

	HiddenSize          int `yaml:"hidden_size"`
	TacticEmbeddingSize int `yaml:"tactic_embedding_size"`

	// ArgumentsLossCoefficient weights the argument losses relative to
	// the tactic loss (which always has weight 1).
	ArgumentsLossCoefficient float64 `yaml:"arguments_loss_coefficient"`
	// LossAggregation is "sum_over_sequence" or "flat".
	LossAggregation string `yaml:"loss_aggregation"`

	// DynamicGlobalContext restricts the global vocabulary to each
	// example's available subset.
	DynamicGlobalContext bool `yaml:"dynamic_global_context"`
	// GlobalSimilarity is "dot_product" or "cosine".
	GlobalSimilarity string `yaml:"global_similarity"`
	// GlobalTemperature is the initial learned temperature for cosine
	// scoring.
	GlobalTemperature float32 `yaml:"global_temperature"`

	// Seed drives parameter initialization.
	Seed int64 `yaml:"seed"`
}

// DefaultSpec returns the defaults a YAML file overrides.
func DefaultSpec() Spec {
	return Spec{
		PredictionTaskType:       GlobalArgumentPrediction,
		HiddenSize:               128,
		TacticEmbeddingSize:      32,
		ArgumentsLossCoefficient: 1.0,
		LossAggregation:          "flat",
		GlobalSimilarity:         "dot_product",
		GlobalTemperature:        0.07,
		Seed:                     1,
	}
}

// ParseSpec decodes a YAML document over the defaults and validates
// it. Configuration errors surface here, before any batch is
// processed.
func ParseSpec(data []byte) (Spec, error) {
	spec := DefaultSpec()
	if err := yaml.Unmarshal(data, &spec); err != nil {
		return Spec{}, fmt.Errorf("parse task spec: %w", err)
	}
	if err := spec.Validate(); err != nil {
		return Spec{}, err
	}
	return spec, nil
}

// LoadSpec reads and parses a YAML task spec file.
func LoadSpec(path string) (Spec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Spec{}, fmt.Errorf("load task spec: %w", err)
	}
	return ParseSpec(data)
}

// Validate rejects unknown selectors and out-of-range parameters.
func (s *Spec) Validate() error {
	switch s.PredictionTaskType {
	case BaseTacticPrediction, LocalArgumentPrediction, GlobalArgumentPrediction:
	default:
		return fmt.Errorf("%q is not a valid prediction task type", s.PredictionTaskType)
	}
	if s.HiddenSize <= 0 {
		return fmt.Errorf("hidden size must be positive, got %d", s.HiddenSize)
	}
	if s.TacticEmbeddingSize <= 0 {
		return fmt.Errorf("tactic embedding size must be positive, got %d", s.TacticEmbeddingSize)
	}
	if s.ArgumentsLossCoefficient < 0 {
		return fmt.Errorf("arguments loss coefficient must be non-negative, got %g", s.ArgumentsLossCoefficient)
	}
	if _, err := loss.ParseAggregation(s.LossAggregation); err != nil {
		return err
	}
	if _, err := scoring.ParseSimilarity(s.GlobalSimilarity); err != nil {
		return err
	}
	if sim, _ := scoring.ParseSimilarity(s.GlobalSimilarity); sim == scoring.Cosine && s.GlobalTemperature == 0 {
		return fmt.Errorf("cosine similarity requires a non-zero global temperature")
	}
	return nil
}
