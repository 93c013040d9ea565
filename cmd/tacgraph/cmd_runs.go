package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"tacgraph/internal/store"
)

// runsCmd lists recorded runs and their metric summaries.
var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List recorded runs in the run store",
	RunE:  listRuns,
}

func listRuns(cmd *cobra.Command, args []string) error {
	if storePath == "" {
		return fmt.Errorf("runs requires --store")
	}
	rs, err := store.NewRunStore(storePath, logger)
	if err != nil {
		return err
	}
	defer rs.Close()

	runs, err := rs.Runs()
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Println("no runs recorded")
		return nil
	}
	for _, run := range runs {
		fmt.Printf("%s  %-8s %-28s %s\n",
			run.ID, run.Kind, run.TaskType, run.StartedAt.Format("2006-01-02 15:04:05"))
		results, err := rs.Metrics(run.ID)
		if err != nil {
			return err
		}
		for _, name := range sortedKeys(results) {
			fmt.Printf("    %-28s %.6f\n", name, results[name])
		}
	}
	return nil
}
