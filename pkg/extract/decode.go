package extract

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/kaptinlin/jsonrepair"
	"gopkg.in/yaml.v3"

	"github.com/soundprediction/chronicle/pkg/types"
)

// BatchPayload is the interchange shape a reasoner emits for one chunk:
// facts, decisions, and event times, ready to feed a commit.
type BatchPayload struct {
	EntityFacts       []types.EntityFact         `json:"entity_facts" yaml:"entity_facts"`
	RelationFacts     []types.RelationFact       `json:"relation_facts" yaml:"relation_facts"`
	EntityDecisions   []types.UpdateDecision     `json:"entity_decisions" yaml:"entity_decisions"`
	RelationDecisions []types.UpdateDecision     `json:"relation_decisions" yaml:"relation_decisions"`
	EventTimes        map[string]types.EventTime `json:"event_times" yaml:"event_times"`
}

// DecodeJSON parses a reasoner's JSON payload. Model output is frequently
// almost-JSON (trailing commas, unquoted keys, fenced blocks), so a failed
// parse goes through jsonrepair before giving up.
func DecodeJSON(raw string) (*BatchPayload, error) {
	cleaned := stripCodeFence(raw)

	var payload BatchPayload
	if err := json.Unmarshal([]byte(cleaned), &payload); err == nil {
		return &payload, nil
	}

	repaired, err := jsonrepair.JSONRepair(cleaned)
	if err != nil {
		return nil, fmt.Errorf("payload is not repairable JSON: %w", err)
	}
	if err := json.Unmarshal([]byte(repaired), &payload); err != nil {
		return nil, fmt.Errorf("decoding repaired payload: %w", err)
	}
	return &payload, nil
}

// DecodeYAML parses a reasoner's YAML payload. YAML survives multi-line
// prose content better than JSON, so some reasoners prefer it.
func DecodeYAML(raw string) (*BatchPayload, error) {
	cleaned := stripCodeFence(raw)

	var payload BatchPayload
	if err := yaml.Unmarshal([]byte(cleaned), &payload); err != nil {
		return nil, fmt.Errorf("decoding yaml payload: %w", err)
	}
	return &payload, nil
}

// stripCodeFence removes a surrounding markdown fence, with or without a
// language tag.
func stripCodeFence(s string) string {
	trimmed := strings.TrimSpace(s)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}
	trimmed = strings.TrimPrefix(trimmed, "```")
	if idx := strings.Index(trimmed, "\n"); idx >= 0 {
		first := strings.TrimSpace(trimmed[:idx])
		// A language tag has no spaces; anything else is payload.
		if !strings.ContainsAny(first, " \t{[") {
			trimmed = trimmed[idx+1:]
		}
	}
	trimmed = strings.TrimSuffix(strings.TrimSpace(trimmed), "```")
	return strings.TrimSpace(trimmed)
}
