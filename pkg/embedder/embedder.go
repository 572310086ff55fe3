// Package embedder provides text embedding clients for vector search.
//
// Embeddings are attached to facts before they are committed; the store and
// search layers treat them as opaque vectors.
package embedder

import (
	"context"
	"fmt"

	openai "github.com/sashabaranov/go-openai"
)

// Client embeds text batches into vectors.
type Client interface {
	// Embed returns one vector per input text, in order.
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	// EmbedSingle is a convenience for one text.
	EmbedSingle(ctx context.Context, text string) ([]float32, error)
}

// Config holds embedding settings shared by providers.
type Config struct {
	// Model names the embedding model. Empty defaults to text-embedding-3-small.
	Model string
	// BaseURL points at an OpenAI-compatible endpoint.
	BaseURL string
	// BatchSize caps texts per request. Zero defaults to 100.
	BatchSize int
}

// OpenAIEmbedder implements Client over the OpenAI embeddings API.
type OpenAIEmbedder struct {
	client    *openai.Client
	model     openai.EmbeddingModel
	batchSize int
}

// NewOpenAIEmbedder creates the embedder.
func NewOpenAIEmbedder(apiKey string, cfg Config) *OpenAIEmbedder {
	clientConfig := openai.DefaultConfig(apiKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}
	model := cfg.Model
	if model == "" {
		model = string(openai.SmallEmbedding3)
	}
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = 100
	}
	return &OpenAIEmbedder{
		client:    openai.NewClientWithConfig(clientConfig),
		model:     openai.EmbeddingModel(model),
		batchSize: batchSize,
	}
}

// Embed implements Client, batching requests to the provider limit.
func (e *OpenAIEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += e.batchSize {
		end := start + e.batchSize
		if end > len(texts) {
			end = len(texts)
		}
		resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
			Input: texts[start:end],
			Model: e.model,
		})
		if err != nil {
			return nil, fmt.Errorf("embedding request failed: %w", err)
		}
		if len(resp.Data) != end-start {
			return nil, fmt.Errorf("embedding response has %d vectors for %d inputs", len(resp.Data), end-start)
		}
		for _, d := range resp.Data {
			out = append(out, d.Embedding)
		}
	}
	return out, nil
}

// EmbedSingle implements Client.
func (e *OpenAIEmbedder) EmbedSingle(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

var _ Client = (*OpenAIEmbedder)(nil)
