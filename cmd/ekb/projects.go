package main

import (
	"fmt"
	"strings"

	"ekb/internal/classify"

	"github.com/spf13/cobra"
)

var projectsCmd = &cobra.Command{
	Use:   "projects",
	Short: "List the projects the scope detector knows about",
	Long: `List the project registry used for scope detection: each project's ID, the
question phrases that bind to it, and the identifier patterns that resolve to
its graph nodes. The registry comes from projects.registryPath in the config,
or the built-in two-project registry when unset.`,
	RunE: runProjects,
}

func init() {
	rootCmd.AddCommand(projectsCmd)
}

func runProjects(cmd *cobra.Command, args []string) error {
	root := mustGetRepoRoot()
	cfg := loadConfig(root, newLogger(nil))

	registry := classify.DefaultRegistry()
	if cfg.Projects.RegistryPath != "" {
		loaded, err := classify.LoadRegistry(cfg.Projects.RegistryPath)
		if err != nil {
			return err
		}
		registry = loaded
		fmt.Printf("Registry: %s\n\n", cfg.Projects.RegistryPath)
	} else {
		fmt.Printf("Registry: built-in\n\n")
	}

	for _, p := range registry.Projects {
		fmt.Printf("%s\n", p.ID)
		if len(p.Markers) > 0 {
			fmt.Printf("  markers: %s\n", strings.Join(p.Markers, ", "))
		}
		if len(p.Patterns) > 0 {
			fmt.Printf("  patterns: %s\n", strings.Join(p.Patterns, ", "))
		}
		if len(p.IDPatterns) > 0 {
			fmt.Printf("  id patterns: %s\n", strings.Join(p.IDPatterns, ", "))
		}
	}
	fmt.Printf("\nID namespace: %s\n", registry.IDNamespace)
	return nil
}
