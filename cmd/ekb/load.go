package main

import (
	"encoding/json"
	"fmt"

	"ekb/internal/loader"

	"github.com/spf13/cobra"
)

var (
	loadDBPath string
	loadJSON   bool
)

var loadCmd = &cobra.Command{
	Use:   "load <snapshot.json>",
	Short: "Load a graph snapshot into the SQLite knowledge base",
	Long: `Read a knowledge graph snapshot (plain or gzip compressed JSON), repair
missing project assignments, validate edge endpoints, and rebuild the indexed
SQLite realization from it. The previous contents of the database are replaced.

Examples:
  ekb load graph_snapshot.json
  ekb load graph_snapshot.json.gz --db .ekb/kb.db`,
	Args: cobra.ExactArgs(1),
	RunE: runLoad,
}

func init() {
	loadCmd.Flags().StringVar(&loadDBPath, "db", "", "Database path (default: from config)")
	loadCmd.Flags().BoolVar(&loadJSON, "json", false, "Emit the load report as JSON")
	rootCmd.AddCommand(loadCmd)
}

func runLoad(cmd *cobra.Command, args []string) error {
	root := mustGetRepoRoot()
	cfg := loadConfig(root, newLogger(nil))
	logger := newLogger(cfg)

	dbPath := loadDBPath
	if dbPath == "" {
		dbPath = cfg.Storage.DBPath
	}

	report, err := loader.Load(args[0], dbPath, logger)
	if err != nil {
		return err
	}

	if loadJSON {
		data, marshalErr := json.MarshalIndent(report, "", "  ")
		if marshalErr != nil {
			return marshalErr
		}
		fmt.Println(string(data))
		return nil
	}

	fmt.Printf("Loaded %s into %s\n", args[0], dbPath)
	fmt.Printf("  run: %s\n", report.RunID)
	fmt.Printf("  nodes: %d, edges: %d, excerpts: %d\n", report.Nodes, report.Edges, report.Excerpts)
	fmt.Printf("  projects: %v\n", report.Projects)
	fmt.Printf("  payload sha256: %s\n", report.PayloadSHA256)
	for _, w := range report.Warnings {
		fmt.Printf("  warning: %s\n", w)
	}
	return nil
}
