package main

import (
	"encoding/json"
	"fmt"
	"os"

	"ekb/internal/bench"
	"ekb/internal/engine"

	"github.com/spf13/cobra"
)

var (
	benchIterations int
	benchJSONOut    string
	benchMarkdown   string
)

var benchCmd = &cobra.Command{
	Use:   "bench",
	Short: "Benchmark query latency across storage backends",
	Long: `Run the standard question mix against every available storage backend and
report per-query and summary latency (avg, p50, p95, min, max in milliseconds).

Examples:
  ekb bench
  ekb bench --iterations 25 --markdown bench.md --json-out bench.json`,
	RunE: runBench,
}

func init() {
	benchCmd.Flags().IntVar(&benchIterations, "iterations", 10, "Timed iterations per query")
	benchCmd.Flags().StringVar(&benchJSONOut, "json-out", "", "Write raw results to this JSON file")
	benchCmd.Flags().StringVar(&benchMarkdown, "markdown", "", "Write the comparison table to this markdown file")
	rootCmd.AddCommand(benchCmd)
}

func runBench(cmd *cobra.Command, args []string) error {
	root := mustGetRepoRoot()
	cfg := loadConfig(root, newLogger(nil))
	logger := newLogger(cfg)

	engines := map[string]*engine.Engine{}
	for _, backend := range []string{"memory", "sqlite"} {
		eng, err := buildEngine(backend, cfg, logger)
		if err != nil {
			logger.Warn("Backend unavailable, skipping", map[string]interface{}{
				"backend": backend,
				"error":   err.Error(),
			})
			continue
		}
		engines[backend] = eng
	}
	if len(engines) == 0 {
		return fmt.Errorf("no storage backend could be opened")
	}

	result, err := bench.Run(newContext(), engines, bench.DefaultQueries, benchIterations)
	if err != nil {
		return err
	}

	md := result.Markdown()
	fmt.Print(md)

	if benchMarkdown != "" {
		if err := os.WriteFile(benchMarkdown, []byte(md), 0644); err != nil {
			return err
		}
		fmt.Printf("\nMarkdown written to: %s\n", benchMarkdown)
	}
	if benchJSONOut != "" {
		data, marshalErr := json.MarshalIndent(result, "", "  ")
		if marshalErr != nil {
			return marshalErr
		}
		if err := os.WriteFile(benchJSONOut, data, 0644); err != nil {
			return err
		}
		fmt.Printf("JSON written to: %s\n", benchJSONOut)
	}
	return nil
}
