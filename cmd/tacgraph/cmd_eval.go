package main

import (
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"tacgraph/internal/loss"
	"tacgraph/internal/store"
	"tacgraph/internal/task"
	"tacgraph/internal/types"
)

var (
	evalTaskPath      string
	evalConstantsPath string
	evalDataPath      string
	evalBatchSize     int
	evalParallelism   int
)

// evalCmd computes losses and accuracy metrics over labelled proof
// states.
var evalCmd = &cobra.Command{
	Use:   "eval",
	Short: "Evaluate losses and accuracies over labelled proof states",
	Long: `Runs the forward pass over a JSONL file of labelled proof states
and reports per-output mean losses plus the task's accuracy metrics.

Batches are scored in parallel; metric accumulation is ordered, so
results are independent of scheduling.`,
	RunE: runEval,
}

func init() {
	evalCmd.Flags().StringVar(&evalTaskPath, "task", "", "Task configuration YAML (required)")
	evalCmd.Flags().StringVar(&evalConstantsPath, "constants", "", "Graph constants YAML (required)")
	evalCmd.Flags().StringVar(&evalDataPath, "data", "", "Labelled proof states JSONL (required)")
	evalCmd.Flags().IntVar(&evalBatchSize, "batch-size", 64, "Proof states per batch")
	evalCmd.Flags().IntVar(&evalParallelism, "parallelism", 4, "Batches scored concurrently")
	evalCmd.MarkFlagRequired("task")
	evalCmd.MarkFlagRequired("constants")
	evalCmd.MarkFlagRequired("data")
}

func runEval(cmd *cobra.Command, args []string) error {
	if evalBatchSize <= 0 {
		return fmt.Errorf("batch size must be positive, got %d", evalBatchSize)
	}
	ctx := cmd.Context()

	tk, _, _, err := loadTask(evalTaskPath, evalConstantsPath)
	if err != nil {
		return err
	}
	data, err := loadBatch(evalDataPath)
	if err != nil {
		return err
	}

	batches := splitBatches(data, evalBatchSize)
	logger.Info("evaluating",
		zap.String("task", tk.Kind()),
		zap.Int("proof_states", len(data)),
		zap.Int("batches", len(batches)))

	// Score batches in parallel, then fold losses and metrics in
	// batch order.
	forwards := make([]*task.Forward, len(batches))
	grp, _ := errgroup.WithContext(ctx)
	grp.SetLimit(evalParallelism)
	for i, batch := range batches {
		i, batch := i, batch
		grp.Go(func() error {
			f, err := tk.Forward(batch)
			if err != nil {
				return fmt.Errorf("batch %d: %w", i, err)
			}
			forwards[i] = f
			return nil
		})
	}
	if err := grp.Wait(); err != nil {
		return err
	}

	lossSums := make(map[string]float64)
	lossCounts := make(map[string]int)
	for i, f := range forwards {
		losses, err := tk.Losses(f)
		if err != nil {
			return fmt.Errorf("batch %d: %w", i, err)
		}
		for name, values := range losses {
			lossSums[name] += loss.Mean(values) * float64(len(values))
			lossCounts[name] += len(values)
		}
		if err := tk.UpdateMetrics(f); err != nil {
			return fmt.Errorf("batch %d: %w", i, err)
		}
	}

	meanLosses := make(map[string]float64, len(lossSums))
	weights := tk.LossWeights()
	var total float64
	for name, sum := range lossSums {
		if lossCounts[name] == 0 {
			continue
		}
		mean := sum / float64(lossCounts[name])
		meanLosses[name] = mean
		total += weights[name] * mean
	}
	results := tk.Metrics().Results()

	printEvalReport(meanLosses, total, results)

	if storePath != "" {
		return storeEval(tk, meanLosses, total, results)
	}
	return nil
}

func splitBatches(data types.Batch, size int) []types.Batch {
	var batches []types.Batch
	for start := 0; start < len(data); start += size {
		end := start + size
		if end > len(data) {
			end = len(data)
		}
		batches = append(batches, data[start:end])
	}
	return batches
}

func printEvalReport(meanLosses map[string]float64, total float64, results map[string]float64) {
	fmt.Println("Losses:")
	for _, name := range sortedKeys(meanLosses) {
		fmt.Printf("  %-28s %.6f\n", name, meanLosses[name])
	}
	fmt.Printf("  %-28s %.6f\n", "total (weighted)", total)
	fmt.Println("Metrics:")
	for _, name := range sortedKeys(results) {
		fmt.Printf("  %-28s %.6f\n", name, results[name])
	}
}

func storeEval(tk task.Task, meanLosses map[string]float64, total float64, results map[string]float64) error {
	rawSpec, err := os.ReadFile(evalTaskPath)
	if err != nil {
		return fmt.Errorf("load task spec: %w", err)
	}
	rs, err := store.NewRunStore(storePath, logger)
	if err != nil {
		return err
	}
	defer rs.Close()

	runID, err := rs.BeginRun("eval", tk.Kind(), rawSpec)
	if err != nil {
		return err
	}
	recorded := make(map[string]float64, len(results)+len(meanLosses)+1)
	for name, v := range results {
		recorded[name] = v
	}
	for name, v := range meanLosses {
		recorded["loss/"+name] = v
	}
	recorded["loss/total"] = total
	if err := rs.RecordMetrics(runID, recorded); err != nil {
		return err
	}
	if err := rs.FinishRun(runID); err != nil {
		return err
	}
	logger.Info("evaluation stored", zap.String("run_id", runID))
	return nil
}

func sortedKeys(m map[string]float64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
