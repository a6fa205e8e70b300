package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"ekb/internal/auth"
	"ekb/internal/engine"
	"ekb/internal/server"

	"github.com/spf13/cobra"
)

var (
	serveAddr string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP question-answering server",
	Long: `Start the EKB HTTP server. It exposes POST /api/ask for questions and
GET /api/health for liveness. Both storage backends are loaded when available,
so a request can pick its backend per call.

When the config names an auth token file, /api/ask requires a bearer token
issued with 'ekb token issue'.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address (default: from config)")
}

func runServe(cmd *cobra.Command, args []string) error {
	root := mustGetRepoRoot()
	cfg := loadConfig(root, newLogger(nil))
	logger := newLogger(cfg)

	engines := map[string]*engine.Engine{}
	for _, backend := range []string{"memory", "sqlite"} {
		eng, err := buildEngine(backend, cfg, logger)
		if err != nil {
			logger.Warn("Backend unavailable", map[string]interface{}{
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

	var verifier *auth.Verifier
	if cfg.Server.AuthTokenFile != "" {
		v, err := auth.LoadVerifier(cfg.Server.AuthTokenFile)
		if err != nil {
			return fmt.Errorf("load auth token: %w", err)
		}
		verifier = v
	}

	addr := serveAddr
	if addr == "" {
		addr = cfg.Server.Addr
	}

	defaultBackend := resolveBackend(cfg)
	if _, ok := engines[defaultBackend]; !ok {
		for name := range engines {
			defaultBackend = name
		}
	}

	opts := server.Options{
		Engines:        engines,
		DefaultBackend: defaultBackend,
		Verifier:       verifier,
		Log:            logger,
	}
	if s := newSynth(cfg, logger); s != nil {
		opts.Synth = s
	}
	srv := server.New(opts)

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("Starting EKB HTTP server", map[string]interface{}{
			"addr":         addr,
			"backends":     len(engines),
			"auth_enabled": verifier.Enabled(),
		})
		fmt.Printf("EKB HTTP server listening on http://%s\n", addr)
		fmt.Println("Press Ctrl+C to stop")
		serverErr <- srv.Run(addr)
	}()

	select {
	case err := <-serverErr:
		if err != nil {
			logger.Error("Server error", map[string]interface{}{
				"error": err.Error(),
			})
			return err
		}
	case sig := <-shutdown:
		logger.Info("Received shutdown signal", map[string]interface{}{
			"signal": sig.String(),
		})
	}

	return nil
}
