package extract

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/soundprediction/chronicle/pkg/types"
)

// OpenAIConfig configures an OpenAI-backed extractor.
type OpenAIConfig struct {
	// Model names the chat model. Empty defaults to gpt-4o-mini.
	Model string
	// BaseURL points at an OpenAI-compatible endpoint. Empty uses api.openai.com.
	BaseURL string
	// Temperature for all completions.
	Temperature float32
	// Logger receives diagnostics. Nil falls back to slog.Default().
	Logger *slog.Logger
}

// OpenAIExtractor implements Extractor over the OpenAI chat API. Wrap it in
// a BreakerExtractor when the endpoint is flaky.
type OpenAIExtractor struct {
	client      *openai.Client
	model       string
	temperature float32
	logger      *slog.Logger
}

// NewOpenAIExtractor creates the extractor.
func NewOpenAIExtractor(apiKey string, cfg OpenAIConfig) (*OpenAIExtractor, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai api key is required")
	}
	clientConfig := openai.DefaultConfig(apiKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}
	model := cfg.Model
	if model == "" {
		model = "gpt-4o-mini"
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &OpenAIExtractor{
		client:      openai.NewClientWithConfig(clientConfig),
		model:       model,
		temperature: cfg.Temperature,
		logger:      logger,
	}, nil
}

// ExtractFacts implements Extractor.
func (e *OpenAIExtractor) ExtractFacts(ctx context.Context, chunk types.Chunk, gc GraphContext) ([]types.EntityFact, []types.RelationFact, error) {
	raw, err := e.complete(ctx, extractFactsSystem, extractFactsUser(chunk, gc))
	if err != nil {
		return nil, nil, err
	}
	payload, err := DecodeJSON(raw)
	if err != nil {
		return nil, nil, fmt.Errorf("decoding extraction payload: %w", err)
	}
	e.logger.Debug("extracted facts", "entities", len(payload.EntityFacts), "relations", len(payload.RelationFacts))
	return payload.EntityFacts, payload.RelationFacts, nil
}

// JudgeUpdates implements Extractor.
func (e *OpenAIExtractor) JudgeUpdates(ctx context.Context, entities []types.EntityFact, relations []types.RelationFact, gc GraphContext) ([]types.UpdateDecision, []types.UpdateDecision, error) {
	raw, err := e.complete(ctx, judgeUpdatesSystem, judgeUpdatesUser(entities, relations, gc))
	if err != nil {
		return nil, nil, err
	}
	payload, err := DecodeJSON(raw)
	if err != nil {
		return nil, nil, fmt.Errorf("decoding judgment payload: %w", err)
	}
	return payload.EntityDecisions, payload.RelationDecisions, nil
}

// InferEventTimes implements Extractor.
func (e *OpenAIExtractor) InferEventTimes(ctx context.Context, chunk types.Chunk, entities []types.EntityFact, relations []types.RelationFact) (map[string]types.EventTime, error) {
	raw, err := e.complete(ctx, inferEventTimesSystem, inferEventTimesUser(chunk, entities, relations))
	if err != nil {
		return nil, err
	}
	payload, err := DecodeJSON(raw)
	if err != nil {
		return nil, fmt.Errorf("decoding event time payload: %w", err)
	}
	return payload.EventTimes, nil
}

// UpdateSceneContent implements Extractor. The response is plain text, not a
// payload.
func (e *OpenAIExtractor) UpdateSceneContent(ctx context.Context, current string, chunk types.Chunk) (string, error) {
	raw, err := e.complete(ctx, updateSceneSystem, updateSceneUser(current, chunk))
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(stripCodeFence(raw)), nil
}

func (e *OpenAIExtractor) complete(ctx context.Context, system, user string) (string, error) {
	resp, err := e.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       e.model,
		Temperature: e.temperature,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
	})
	if err != nil {
		return "", fmt.Errorf("chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("chat completion returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}

var _ Extractor = (*OpenAIExtractor)(nil)
