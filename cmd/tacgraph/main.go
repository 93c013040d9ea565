package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"math/rand"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"tacgraph/internal/encoder"
	"tacgraph/internal/logging"
	"tacgraph/internal/task"
	"tacgraph/internal/types"
)

var (
	// Global flags
	verbose   bool
	storePath string
	timeout   time.Duration

	// Logger
	logger *zap.Logger
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "tacgraph",
	Short: "tacgraph - tactic and argument prediction over proof states",
	Long: `tacgraph scores tactics and their arguments for proof states.

A task configuration selects one of three prediction variants:
base tactic prediction, local argument prediction, or joint
local/global argument prediction. Local candidates come from each
proof state's context; global candidates from a fixed definition
vocabulary, optionally restricted per state.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		logger, err = logging.New(verbose)
		return err
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVar(&storePath, "store", "", "SQLite run store path (optional)")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 5*time.Minute, "Operation timeout")

	rootCmd.AddCommand(predictCmd)
	rootCmd.AddCommand(evalCmd)
	rootCmd.AddCommand(checkConfigCmd)
	rootCmd.AddCommand(runsCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadConstants reads the graph constants YAML the model was trained
// against.
func loadConstants(path string) (encoder.Constants, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return encoder.Constants{}, fmt.Errorf("load constants: %w", err)
	}
	var constants encoder.Constants
	if err := yaml.Unmarshal(data, &constants); err != nil {
		return encoder.Constants{}, fmt.Errorf("parse constants: %w", err)
	}
	if err := constants.Validate(); err != nil {
		return encoder.Constants{}, err
	}
	return constants, nil
}

// loadTask assembles the configured task with a seeded node-label
// encoder.
func loadTask(taskPath, constantsPath string) (task.Task, task.Spec, encoder.Constants, error) {
	spec, err := task.LoadSpec(taskPath)
	if err != nil {
		return nil, task.Spec{}, encoder.Constants{}, err
	}
	constants, err := loadConstants(constantsPath)
	if err != nil {
		return nil, task.Spec{}, encoder.Constants{}, err
	}
	enc := encoder.NewStaticEncoder(constants.NodeLabelCount, spec.HiddenSize,
		rand.New(rand.NewSource(spec.Seed)))
	tk, err := task.New(spec, constants, enc)
	if err != nil {
		return nil, task.Spec{}, encoder.Constants{}, err
	}
	return tk, spec, constants, nil
}

// loadBatch reads proof states from a JSONL file, one state per line.
func loadBatch(path string) (types.Batch, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("load proof states: %w", err)
	}
	defer f.Close()

	var batch types.Batch
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 1024*1024), 16*1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		raw := scanner.Bytes()
		if len(raw) == 0 {
			continue
		}
		var ps types.ProofState
		if err := json.Unmarshal(raw, &ps); err != nil {
			return nil, fmt.Errorf("%s:%d: %w", path, line, err)
		}
		batch = append(batch, ps)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read proof states: %w", err)
	}
	if len(batch) == 0 {
		return nil, fmt.Errorf("%s contains no proof states", path)
	}
	return batch, nil
}
