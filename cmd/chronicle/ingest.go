package chronicle

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/soundprediction/chronicle"
	"github.com/soundprediction/chronicle/pkg/checkpoint"
	"github.com/soundprediction/chronicle/pkg/config"
	"github.com/soundprediction/chronicle/pkg/embedder"
	"github.com/soundprediction/chronicle/pkg/extract"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest [file]",
	Short: "Extract and commit a document into the graph",
	Long: `Run the full ingestion pipeline over a text file: segment it into
overlapping chunks, extract entity and relation facts with the OpenAI
reasoner, judge each fact against the current graph, and commit one batch
per chunk. Progress is checkpointed per chunk, so rerunning the command
for the same document resumes where it stopped.

Requires OPENAI_API_KEY.`,
	Args: cobra.ExactArgs(1),
	RunE: runIngest,
}

func init() {
	rootCmd.AddCommand(ingestCmd)

	ingestCmd.Flags().String("document-id", "", "Document id for checkpoint resume (defaults to the file name)")
	ingestCmd.Flags().String("activity", "", "Activity stream for scene snapshots")
	ingestCmd.Flags().String("source-type", "document", "Provenance label stamped on commits")
	ingestCmd.Flags().String("checkpoint-dir", "", "Checkpoint directory (defaults to the system temp dir)")
	ingestCmd.Flags().Int("window-size", 0, "Chunk window size in runes (0 uses the configured default)")
	ingestCmd.Flags().Int("overlap", 0, "Chunk overlap in runes (0 uses the configured default)")
	ingestCmd.Flags().Bool("embed", false, "Attach OpenAI embeddings to every fact")
	ingestCmd.Flags().String("model", "", "Chat model for extraction (defaults to gpt-4o-mini)")
	ingestCmd.Flags().String("store-path", "", "Storage directory (defaults to ~/.chronicle/graph)")
}

func runIngest(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if cmd.Flags().Changed("store-path") {
		cfg.Store.Path, _ = cmd.Flags().GetString("store-path")
	}
	if size, _ := cmd.Flags().GetInt("window-size"); size > 0 {
		cfg.Chunker.WindowSize = size
	}
	if overlap, _ := cmd.Flags().GetInt("overlap"); overlap > 0 {
		cfg.Chunker.Overlap = overlap
	}

	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" {
		return fmt.Errorf("OPENAI_API_KEY is required for ingestion")
	}

	text, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("failed to read document: %w", err)
	}

	client, log, err := openClient(cfg)
	if err != nil {
		return err
	}
	defer client.Close()

	model, _ := cmd.Flags().GetString("model")
	ex, err := buildExtractor(cfg, apiKey, model, log)
	if err != nil {
		return err
	}

	checkpointDir, _ := cmd.Flags().GetString("checkpoint-dir")
	mgr, err := checkpoint.NewManager(checkpointDir)
	if err != nil {
		return fmt.Errorf("failed to open checkpoint directory: %w", err)
	}

	documentID, _ := cmd.Flags().GetString("document-id")
	if documentID == "" {
		documentID = filepath.Base(args[0])
	}
	activity, _ := cmd.Flags().GetString("activity")
	sourceType, _ := cmd.Flags().GetString("source-type")

	opts := chronicle.IngestOptions{
		DocumentID:   documentID,
		ActivityType: activity,
		SourceType:   sourceType,
		WindowSize:   cfg.Chunker.WindowSize,
		Overlap:      cfg.Chunker.Overlap,
		Checkpoints:  mgr,
	}
	if embed, _ := cmd.Flags().GetBool("embed"); embed {
		opts.Embedder = embedder.NewOpenAIEmbedder(apiKey, embedder.Config{})
	}

	res, err := client.IngestDocument(context.Background(), string(text), ex, opts)
	if err != nil {
		return fmt.Errorf("ingestion failed: %w", err)
	}

	log.Info("ingestion complete",
		"document_id", res.DocumentID,
		"chunks", res.Chunks,
		"commits", len(res.CommitIDs),
		"deferred", len(res.Deferred))
	for _, d := range res.Deferred {
		log.Warn("deferred conflict", "fact_id", d.FactID, "target", d.Target, "reasoning", d.Reasoning)
	}
	return nil
}

// buildExtractor stacks the OpenAI reasoner behind retry backoff and, when
// enabled, the circuit breaker.
func buildExtractor(cfg *config.Config, apiKey, model string, log *slog.Logger) (extract.Extractor, error) {
	base, err := extract.NewOpenAIExtractor(apiKey, extract.OpenAIConfig{Model: model, Logger: log})
	if err != nil {
		return nil, fmt.Errorf("failed to create extractor: %w", err)
	}

	var ex extract.Extractor = extract.NewRetryExtractor(base, extract.DefaultRetryConfig())
	if cfg.CircuitBreaker.Enabled {
		ex = extract.NewBreakerExtractor(ex, extract.BreakerConfig{
			MaxRequests:      cfg.CircuitBreaker.MaxRequests,
			IntervalSeconds:  cfg.CircuitBreaker.Interval,
			TimeoutSeconds:   cfg.CircuitBreaker.Timeout,
			ReadyToTripRatio: cfg.CircuitBreaker.ReadyToTripRatio,
		}, log)
	}
	return ex, nil
}
