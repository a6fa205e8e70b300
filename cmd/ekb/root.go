package main

import (
	"ekb/internal/version"

	"github.com/spf13/cobra"
)

var (
	// backendFlag is the CLI --backend flag value
	backendFlag string
)

var rootCmd = &cobra.Command{
	Use:   "ekb",
	Short: "EKB - Engineering Knowledge Base",
	Long: `EKB (Engineering Knowledge Base) answers natural-language questions over an
engineering knowledge graph of requirements, decisions, components, constraints,
and evidence. Answers are built from graph traversal and hybrid ranking, and
every claim carries citations back to the nodes and edges it rests on.`,
	Version: version.Version,
}

func init() {
	rootCmd.SetVersionTemplate("EKB version {{.Version}}\n")
	rootCmd.PersistentFlags().StringVar(&backendFlag, "backend", "",
		"Storage backend: memory or sqlite (default: from config)")
}
