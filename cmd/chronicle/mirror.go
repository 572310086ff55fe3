package chronicle

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/soundprediction/chronicle/pkg/config"
	"github.com/soundprediction/chronicle/pkg/mirror"
)

var mirrorCmd = &cobra.Command{
	Use:   "mirror",
	Short: "Project the current graph into Neo4j",
	Long: `Rebuild the Neo4j projection from the current chain heads. The local
store stays the source of truth; the projection exists for Cypher tooling
and visualization. Credentials come from config or the NEO4J_URI,
NEO4J_USER, and NEO4J_PASSWORD environment variables.`,
	RunE: runMirror,
}

func init() {
	rootCmd.AddCommand(mirrorCmd)

	mirrorCmd.Flags().String("store-path", "", "Storage directory (defaults to ~/.chronicle/graph)")
	mirrorCmd.Flags().String("uri", "", "Neo4j bolt URI")
	mirrorCmd.Flags().String("database", "", "Neo4j database name (defaults to neo4j)")
}

func runMirror(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if cmd.Flags().Changed("store-path") {
		cfg.Store.Path, _ = cmd.Flags().GetString("store-path")
	}
	if cmd.Flags().Changed("uri") {
		cfg.Mirror.URI, _ = cmd.Flags().GetString("uri")
	}
	if cmd.Flags().Changed("database") {
		cfg.Mirror.Database, _ = cmd.Flags().GetString("database")
	}
	if cfg.Mirror.URI == "" {
		return fmt.Errorf("mirror URI is required (--uri or NEO4J_URI)")
	}

	client, log, err := openClient(cfg)
	if err != nil {
		return err
	}
	defer client.Close()

	ctx := context.Background()
	m, err := mirror.NewNeo4jMirror(cfg.Mirror.URI, cfg.Mirror.Username, cfg.Mirror.Password, cfg.Mirror.Database, client.Store(), log)
	if err != nil {
		return fmt.Errorf("failed to connect mirror: %w", err)
	}
	defer m.Close(ctx)

	if err := m.Sync(ctx); err != nil {
		return fmt.Errorf("mirror sync failed: %w", err)
	}
	return nil
}
