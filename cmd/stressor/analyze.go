package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/failproof/stressor/internal/metrics"
	"github.com/failproof/stressor/internal/output"
	"github.com/failproof/stressor/internal/result"
	"github.com/failproof/stressor/internal/storage"
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze [run-id]",
	Short: "Report on stored runs",
	Long: `Without arguments, list stored runs with their summaries. With a run id,
replay that run's results through the aggregator and print the full report.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runAnalyze,
}

func init() {
	analyzeCmd.Flags().String("storage", "memory", "Result store: memory, jsonl:<path>, or postgres:<dsn>")
	analyzeCmd.Flags().Int("limit", 20, "Max runs to list")
	analyzeCmd.Flags().Bool("json", false, "Emit JSON")
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	spec, _ := cmd.Flags().GetString("storage")
	limit, _ := cmd.Flags().GetInt("limit")
	asJSON, _ := cmd.Flags().GetBool("json")

	store, err := storage.Open(ctx, spec)
	if err != nil {
		return err
	}
	defer store.Close()

	w := cmd.OutOrStdout()

	if len(args) == 1 {
		run, err := store.GetRun(ctx, args[0])
		if err != nil {
			return err
		}
		results, err := store.ListResults(ctx, run.ID)
		if err != nil {
			return err
		}

		agg := metrics.NewAggregator()
		for _, res := range results {
			agg.Observe(res)
		}
		rep := output.Report{Run: run, Stats: agg.Stats()}
		if asJSON {
			return output.PrintJSONReport(w, rep)
		}
		output.PrintReport(w, rep)
		return nil
	}

	runs, err := store.ListRuns(ctx, limit)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Fprintln(w, "No stored runs.")
		return nil
	}

	summaries := make([]result.RunSummary, 0, len(runs))
	for i := range runs {
		results, err := store.ListResults(ctx, runs[i].ID)
		if err != nil {
			return err
		}
		summaries = append(summaries, storage.Summarize(&runs[i], results))
	}

	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(summaries)
	}

	fmt.Fprintf(w, "%-28s %-16s %-10s %7s %9s %12s\n", "RUN", "NAME", "STATUS", "CASES", "SUCCESS", "AVG LATENCY")
	for _, s := range summaries {
		fmt.Fprintf(w, "%-28s %-16s %-10s %7d %8.1f%% %10.1fms\n",
			s.ID, s.Name, s.Status, s.TotalCases, s.SuccessRate, s.AverageLatency)
	}
	return nil
}
