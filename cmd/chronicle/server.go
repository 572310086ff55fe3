package chronicle

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/soundprediction/chronicle"
	"github.com/soundprediction/chronicle/pkg/config"
	"github.com/soundprediction/chronicle/pkg/logger"
	"github.com/soundprediction/chronicle/pkg/server"
	"github.com/soundprediction/chronicle/pkg/telemetry"
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Start the Chronicle HTTP server",
	Long: `Start the Chronicle HTTP server to provide REST API access to the graph.

The server provides endpoints for:
- Committing judged decision batches
- Searching entities and relations
- Traversing relation paths and version histories
- Scene snapshot storage
- Health checks

Configuration can be provided through config files, environment variables, or command-line flags.`,
	RunE: runServer,
}

var (
	serverHost string
	serverPort int
	serverMode string
)

func init() {
	rootCmd.AddCommand(serverCmd)

	// Server-specific flags
	serverCmd.Flags().StringVar(&serverHost, "host", "localhost", "Server host")
	serverCmd.Flags().IntVar(&serverPort, "port", 8080, "Server port")
	serverCmd.Flags().StringVar(&serverMode, "mode", "debug", "Server mode (debug, release, test)")

	// Store flags
	serverCmd.Flags().String("store-path", "", "Storage directory (defaults to ~/.chronicle/graph)")
	serverCmd.Flags().Bool("in-memory", false, "Keep the graph in memory, nothing persisted")
}

func runServer(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	overrideServerFlags(cmd, cfg)

	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return fmt.Errorf("invalid port: %d", cfg.Server.Port)
	}

	client, log, err := openClient(cfg)
	if err != nil {
		return err
	}
	defer client.Close()

	srv := server.New(cfg, client)
	srv.Setup()

	// Handle signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	serverErrChan := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil {
			serverErrChan <- err
		}
	}()

	select {
	case err := <-serverErrChan:
		return fmt.Errorf("server error: %w", err)
	case sig := <-sigChan:
		log.Info("received signal, shutting down", "signal", sig.String())

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := srv.Stop(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown error: %w", err)
		}
		log.Info("server stopped gracefully")
		return nil
	}
}

func overrideServerFlags(cmd *cobra.Command, cfg *config.Config) {
	if cmd.Flags().Changed("host") {
		cfg.Server.Host = serverHost
	}
	if cmd.Flags().Changed("port") {
		cfg.Server.Port = serverPort
	}
	if cmd.Flags().Changed("mode") {
		cfg.Server.Mode = serverMode
	}
	if cmd.Flags().Changed("store-path") {
		cfg.Store.Path, _ = cmd.Flags().GetString("store-path")
	}
	if cmd.Flags().Changed("in-memory") {
		cfg.Store.InMemory, _ = cmd.Flags().GetBool("in-memory")
	}
}

// openClient opens the graph described by cfg with a colored logger at the
// configured level. When a telemetry path is set, error records are also
// batched into parquet files there.
func openClient(cfg *config.Config) (*chronicle.Client, *slog.Logger, error) {
	colorHandler := logger.NewColorHandler(os.Stderr, &slog.HandlerOptions{
		Level: parseLevel(cfg.Log.Level),
	})
	log := slog.New(colorHandler)
	if cfg.Telemetry.ParquetPath != "" {
		parquetHandler, err := telemetry.NewParquetHandler(colorHandler, cfg.Telemetry.ParquetPath)
		if err != nil {
			log.Warn("error tracking disabled", "error", err)
		} else {
			log = slog.New(parquetHandler)
			log.Info("error tracking enabled", "path", cfg.Telemetry.ParquetPath)
		}
	}

	client, err := chronicle.Open(chronicle.Config{
		Path:     cfg.Store.Path,
		InMemory: cfg.Store.InMemory,
		Logger:   log,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open graph: %w", err)
	}
	log.Info("graph opened", "path", cfg.Store.Path, "in_memory", cfg.Store.InMemory)
	return client, log, nil
}

func parseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
