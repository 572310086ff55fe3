package extract

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/soundprediction/chronicle/pkg/types"
)

// Prompt builders for LLM-backed extractors. Each returns a system prompt
// and a user prompt; the payload contract matches BatchPayload so the
// response decodes with DecodeJSON.

const extractFactsSystem = `You are an assistant that extracts knowledge graph facts from narrative text.
Extract significant entities (characters, places, organizations, objects) and the
relationships between them. Assign each fact a unique fact_id within this batch.
Respond with JSON only, no commentary.`

func extractFactsUser(chunk types.Chunk, gc GraphContext) string {
	var b strings.Builder
	if gc.SceneContent != "" {
		fmt.Fprintf(&b, "Current scene summary:\n%s\n\n", gc.SceneContent)
	}
	if len(gc.CandidateEntities) > 0 {
		b.WriteString("Entities already in the graph:\n")
		for _, e := range gc.CandidateEntities {
			fmt.Fprintf(&b, "- %s: %s\n", e.Name, e.Content)
		}
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "Text:\n%s\n\n", chunk.Content)
	b.WriteString(`Respond with JSON of the form:
{
  "entity_facts": [{"fact_id": "e1", "name": "...", "content": "..."}],
  "relation_facts": [{"fact_id": "r1", "endpoint1": {"fact_id": "e1"}, "endpoint2": {"fact_id": "e2"}, "content": "..."}]
}`)
	return b.String()
}

const judgeUpdatesSystem = `You are an assistant that reconciles newly extracted facts against a knowledge graph.
For each fact decide exactly one of:
- NEW: the fact describes something not in the graph
- UPDATE: the fact adds to or changes an existing record (set "target" to its id)
- REDUNDANT: the graph already holds this information (set "target" to the existing id)
- CONFLICT: the fact contradicts the graph and a human must resolve it
Respond with JSON only, no commentary.`

func judgeUpdatesUser(entities []types.EntityFact, relations []types.RelationFact, gc GraphContext) string {
	var b strings.Builder
	if len(gc.CandidateEntities) > 0 {
		b.WriteString("Existing graph records:\n")
		for _, e := range gc.CandidateEntities {
			fmt.Fprintf(&b, "- id=%s name=%s: %s\n", e.EntityID, e.Name, e.Content)
		}
		b.WriteString("\n")
	}
	facts, _ := json.Marshal(map[string]any{
		"entity_facts":   entities,
		"relation_facts": relations,
	})
	fmt.Fprintf(&b, "New facts:\n%s\n\n", facts)
	b.WriteString(`Respond with JSON of the form:
{
  "entity_decisions": [{"fact_id": "e1", "kind": "NEW|UPDATE|REDUNDANT|CONFLICT", "target": "...", "reasoning": "..."}],
  "relation_decisions": [{"fact_id": "r1", "kind": "NEW", "reasoning": "..."}]
}
Every fact needs exactly one decision.`)
	return b.String()
}

const inferEventTimesSystem = `You are an assistant that places narrative facts on the story's own timeline.
For each fact, if the text indicates when it happened inside the story, emit an anchor:
- absolute: a concrete in-story date or timestamp
- relative: an offset from another narrative point ("three days later")
- sequence: a bare ordering position when no clock is available
Omit facts with no temporal signal. Respond with JSON only, no commentary.`

func inferEventTimesUser(chunk types.Chunk, entities []types.EntityFact, relations []types.RelationFact) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Text:\n%s\n\n", chunk.Content)
	b.WriteString("Facts:\n")
	for _, f := range entities {
		fmt.Fprintf(&b, "- %s: %s (%s)\n", f.FactID, f.Name, f.Content)
	}
	for _, f := range relations {
		fmt.Fprintf(&b, "- %s: %s\n", f.FactID, f.Content)
	}
	b.WriteString(`
Respond with JSON of the form:
{
  "event_times": {"e1": {"anchor_type": "absolute", "anchor_value": "1967-05-04"},
                  "r1": {"anchor_type": "sequence", "sequence_index": 3}}
}`)
	return b.String()
}

const updateSceneSystem = `You are an assistant that maintains a running scene summary of a narrative.
Fold the new text into the current summary: carry forward what still matters,
drop what the story has left behind, and keep the result under a few hundred words.
Respond with the updated summary as plain text, no commentary.`

func updateSceneUser(current string, chunk types.Chunk) string {
	var b strings.Builder
	if current != "" {
		fmt.Fprintf(&b, "Current summary:\n%s\n\n", current)
	} else {
		b.WriteString("There is no summary yet; start one.\n\n")
	}
	fmt.Fprintf(&b, "New text:\n%s\n", chunk.Content)
	return b.String()
}
