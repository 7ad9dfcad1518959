package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/vietddude/docsync/internal/control"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the diagnostics monitor and observability endpoints",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	layer, err := control.NewLayer(ctx, cfg, control.WithLogger(slog.Default()))
	if err != nil {
		slog.Error("Failed to initialize resilience layer", "error", err)
		return err
	}

	slog.Info("docsync started", "config", cfgPath, "port", cfg.Server.Port)
	serveErr := layer.Serve(ctx)
	slog.Info("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := layer.Close(shutdownCtx); err != nil {
		slog.Error("Error during shutdown", "error", err)
	}
	if serveErr != nil {
		return fmt.Errorf("serve: %w", serveErr)
	}
	return nil
}
