package main

import (
	"fmt"

	"ekb/internal/auth"

	"github.com/spf13/cobra"
)

var (
	tokenFile string
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Manage the HTTP server bearer token",
	Long: `Issue the bearer token that protects the HTTP server's /api/ask endpoint.

Only the bcrypt hash of the token is stored on disk. The raw token is printed
once at creation and cannot be recovered later; issuing a new token replaces
the old one.

Examples:
  ekb token issue
  ekb token issue --file .ekb/auth_token`,
}

var tokenIssueCmd = &cobra.Command{
	Use:   "issue",
	Short: "Issue a new bearer token",
	RunE:  runTokenIssue,
}

func init() {
	tokenIssueCmd.Flags().StringVar(&tokenFile, "file", "", "Token hash file (default: from config)")
	tokenCmd.AddCommand(tokenIssueCmd)
	rootCmd.AddCommand(tokenCmd)
}

func runTokenIssue(cmd *cobra.Command, args []string) error {
	root := mustGetRepoRoot()
	cfg := loadConfig(root, newLogger(nil))

	path := tokenFile
	if path == "" {
		path = cfg.Server.AuthTokenFile
	}
	if path == "" {
		path = ".ekb/auth_token"
	}

	raw, err := auth.Issue(path)
	if err != nil {
		return err
	}

	fmt.Println("Token issued. Store it now; it will not be shown again.")
	fmt.Printf("\n  %s\n\n", raw)
	fmt.Printf("Hash written to: %s (%s)\n", path, auth.MaskToken(raw))
	if cfg.Server.AuthTokenFile == "" {
		fmt.Printf("\nSet server.authTokenFile to %q in .ekb/config.json to enable auth on serve.\n", path)
	}
	return nil
}
