package chronicle

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/soundprediction/chronicle/pkg/config"
	"github.com/soundprediction/chronicle/pkg/export"
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Dump the graph to parquet files",
	Long: `Export the full version and commit logs to parquet files for offline
analysis. One file per record kind is written under the export directory:
entity versions, relation versions, commits, and scene snapshots.`,
	RunE: runExport,
}

func init() {
	rootCmd.AddCommand(exportCmd)

	exportCmd.Flags().String("out", "", "Output directory (defaults to ~/.chronicle/export)")
	exportCmd.Flags().String("store-path", "", "Storage directory (defaults to ~/.chronicle/graph)")
}

func runExport(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if cmd.Flags().Changed("store-path") {
		cfg.Store.Path, _ = cmd.Flags().GetString("store-path")
	}
	if cmd.Flags().Changed("out") {
		cfg.Export.Path, _ = cmd.Flags().GetString("out")
	}

	client, log, err := openClient(cfg)
	if err != nil {
		return err
	}
	defer client.Close()

	exporter, err := export.NewParquetExporter(cfg.Export.Path, client.Store())
	if err != nil {
		return fmt.Errorf("failed to create exporter: %w", err)
	}

	rows, err := exporter.ExportAll(context.Background())
	if err != nil {
		return fmt.Errorf("export failed: %w", err)
	}
	log.Info("export complete", "rows", rows, "path", cfg.Export.Path)
	return nil
}
