package main

import (
	"fmt"
	"os"
	"path/filepath"

	"ekb/internal/config"
	"ekb/internal/errors"
	"ekb/internal/logging"

	"github.com/spf13/cobra"
)

var (
	initForce bool
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize EKB configuration",
	Long:  "Creates a .ekb/ directory with default configuration in the current directory",
	RunE:  runInit,
}

func init() {
	initCmd.Flags().BoolVarP(&initForce, "force", "f", false, "Force reinitialization (removes existing .ekb directory)")
	rootCmd.AddCommand(initCmd)
}

func runInit(cmd *cobra.Command, args []string) error {
	logger := logging.NewLogger(logging.Config{
		Format: logging.HumanFormat,
		Level:  logging.InfoLevel,
	})

	cwd, err := os.Getwd()
	if err != nil {
		return errors.New(errors.InternalError, "Failed to get current directory", err)
	}

	ekbDir := filepath.Join(cwd, ".ekb")
	if _, statErr := os.Stat(ekbDir); statErr == nil {
		if !initForce {
			// Idempotent behavior: already initialized is success (CI-friendly)
			fmt.Println("EKB already initialized.")
			fmt.Printf("Configuration at: %s\n", filepath.Join(ekbDir, "config.json"))
			fmt.Println("\nRun 'ekb init --force' to reinitialize.")
			return nil
		}
		if removeErr := os.RemoveAll(ekbDir); removeErr != nil {
			return errors.New(errors.InternalError, "Failed to remove existing .ekb directory", removeErr)
		}
		logger.Info("Removed existing .ekb directory", nil)
	}

	cfg := config.DefaultConfig()
	if saveErr := cfg.Save(cwd); saveErr != nil {
		return errors.New(errors.InternalError, "Failed to write config file", saveErr)
	}

	configPath := filepath.Join(ekbDir, "config.json")
	logger.Info("EKB initialized successfully", map[string]interface{}{
		"config_path": configPath,
	})

	fmt.Println("EKB initialized successfully!")
	fmt.Printf("Configuration written to: %s\n", configPath)
	fmt.Println("\nNext steps:")
	fmt.Println("  1. Run 'ekb load <snapshot.json>' to build the SQLite knowledge base")
	fmt.Println("  2. Run 'ekb ask \"soru\"' to query it")

	return nil
}
