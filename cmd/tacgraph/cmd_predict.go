package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"tacgraph/internal/infer"
	"tacgraph/internal/store"
	"tacgraph/internal/task"
)

var (
	predictTaskPath      string
	predictConstantsPath string
	predictDataPath      string
	predictOutputPath    string
	predictExpandBound   int
)

// predictCmd expands ranked tactic hypotheses for unlabelled proof
// states.
var predictCmd = &cobra.Command{
	Use:   "predict",
	Short: "Expand ranked tactic hypotheses for proof states",
	Long: `Runs two-stage inference over a JSONL file of proof states.

For each state the top tactics survive a masked softmax cut at the
expansion bound, then each surviving tactic is conditioned on and its
argument slots are scored jointly over the state's local context and
the global vocabulary. Output is one ranked hypothesis list per
state, as JSON.`,
	RunE: runPredict,
}

func init() {
	predictCmd.Flags().StringVar(&predictTaskPath, "task", "", "Task configuration YAML (required)")
	predictCmd.Flags().StringVar(&predictConstantsPath, "constants", "", "Graph constants YAML (required)")
	predictCmd.Flags().StringVar(&predictDataPath, "data", "", "Proof states JSONL (required)")
	predictCmd.Flags().StringVarP(&predictOutputPath, "output", "o", "", "Output file (default: stdout)")
	predictCmd.Flags().IntVar(&predictExpandBound, "expand-bound", 16, "Tactics to expand per proof state")
	predictCmd.MarkFlagRequired("task")
	predictCmd.MarkFlagRequired("constants")
	predictCmd.MarkFlagRequired("data")
}

func runPredict(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()

	tk, _, _, err := loadTask(predictTaskPath, predictConstantsPath)
	if err != nil {
		return err
	}
	batch, err := loadBatch(predictDataPath)
	if err != nil {
		return err
	}
	logger.Info("expanding hypotheses",
		zap.String("task", tk.Kind()),
		zap.Int("proof_states", len(batch)),
		zap.Int("expand_bound", predictExpandBound))

	expander, err := tk.NewExpander(predictExpandBound, logger)
	if err != nil {
		return err
	}
	hyps, err := expander.Expand(ctx, batch, nil)
	if err != nil {
		return err
	}

	if storePath != "" {
		if err := storePredictions(tk, hyps); err != nil {
			return err
		}
	}
	return writeHypotheses(hyps)
}

func storePredictions(tk task.Task, hyps [][]infer.Hypothesis) error {
	rawSpec, err := os.ReadFile(predictTaskPath)
	if err != nil {
		return fmt.Errorf("load task spec: %w", err)
	}
	rs, err := store.NewRunStore(storePath, logger)
	if err != nil {
		return err
	}
	defer rs.Close()

	runID, err := rs.BeginRun("predict", tk.Kind(), rawSpec)
	if err != nil {
		return err
	}
	for i, ranked := range hyps {
		if err := rs.RecordPredictions(runID, i, ranked); err != nil {
			return err
		}
	}
	if err := rs.FinishRun(runID); err != nil {
		return err
	}
	logger.Info("predictions stored", zap.String("run_id", runID))
	return nil
}

func writeHypotheses(hyps [][]infer.Hypothesis) error {
	out := os.Stdout
	if predictOutputPath != "" {
		f, err := os.Create(predictOutputPath)
		if err != nil {
			return fmt.Errorf("create output: %w", err)
		}
		defer f.Close()
		out = f
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(hyps)
}
