package commands

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/loom-engine/loom/internal/config"
	"github.com/loom-engine/loom/internal/logging"
	"github.com/loom-engine/loom/internal/server"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the headless Loom server",
	Long: `Start Loom as a headless server that exposes the engine over HTTP:
session management, turn execution, tree editing, undo/redo, context
preview, and an SSE event feed.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 8080, "Port to listen on")
}

func runServe(cmd *cobra.Command, args []string) error {
	paths := config.GetPaths()
	if err := paths.EnsurePaths(); err != nil {
		return fmt.Errorf("prepare data directories: %w", err)
	}

	ctx := cmd.Context()
	eng, err := buildEngine(ctx)
	if err != nil {
		return err
	}

	srvCfg := server.DefaultConfig()
	srvCfg.Port = servePort
	srv := server.New(srvCfg, eng.service, eng.agents, eng.registry)

	logging.Info().
		Str("version", Version).
		Int("port", servePort).
		Msg("Starting Loom server")
	fmt.Printf("loom server listening on :%d\n", servePort)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		logging.Info().Str("signal", sig.String()).Msg("Shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
