package types

import "fmt"

// DecisionKind is the update judgment an external reasoner attaches to one
// extracted fact. The commit engine acts on the kind; it never re-judges.
type DecisionKind string

const (
	// DecisionNew mints a fresh logical id and writes its first version.
	DecisionNew DecisionKind = "NEW"
	// DecisionUpdate appends a version to an existing logical chain.
	DecisionUpdate DecisionKind = "UPDATE"
	// DecisionRedundant drops the fact; the store already holds it.
	DecisionRedundant DecisionKind = "REDUNDANT"
	// DecisionConflict defers the fact to the caller; it is reported in the
	// commit result and never written. The store has no merge policy.
	DecisionConflict DecisionKind = "CONFLICT"
)

// Valid reports whether k is a known decision kind.
func (k DecisionKind) Valid() bool {
	switch k {
	case DecisionNew, DecisionUpdate, DecisionRedundant, DecisionConflict:
		return true
	}
	return false
}

// EntityFact is one extracted entity observation, produced outside the core.
// FactID keys the fact within its batch: decisions, event times, and relation
// endpoint references all refer to facts by this id.
type EntityFact struct {
	FactID    string    `json:"fact_id" mapstructure:"fact_id"`
	Name      string    `json:"name" mapstructure:"name"`
	Content   string    `json:"content" mapstructure:"content"`
	Embedding []float32 `json:"embedding,omitempty" mapstructure:"embedding"`
}

// EndpointRef names one endpoint of a relation fact. Exactly one field is
// set: EntityVersionID pins an already-stored entity version; FactID refers
// to an entity fact committed in the same batch, resolved to the version the
// batch writes (or, for a REDUNDANT entity fact, to its existing chain head).
type EndpointRef struct {
	EntityVersionID string `json:"entity_version_id,omitempty" mapstructure:"entity_version_id"`
	FactID          string `json:"fact_id,omitempty" mapstructure:"fact_id"`
}

// Validate checks that the reference names exactly one target.
func (r *EndpointRef) Validate() error {
	if (r.EntityVersionID == "") == (r.FactID == "") {
		return fmt.Errorf("endpoint ref must set exactly one of entity_version_id, fact_id")
	}
	return nil
}

// RelationFact is one extracted relation observation between two entities.
// Relations are undirected; endpoint order carries no meaning.
type RelationFact struct {
	FactID    string      `json:"fact_id" mapstructure:"fact_id"`
	Endpoint1 EndpointRef `json:"endpoint1" mapstructure:"endpoint1"`
	Endpoint2 EndpointRef `json:"endpoint2" mapstructure:"endpoint2"`
	Content   string      `json:"content" mapstructure:"content"`
	Embedding []float32   `json:"embedding,omitempty" mapstructure:"embedding"`
}

// UpdateDecision is the reasoner's judgment for one fact.
//
// For UPDATE, Target is the logical id whose chain gains the version and
// TargetVersionID optionally pins the expected chain head; a stale pin is
// an integrity violation rejecting the batch. For CONFLICT, Target and
// TargetVersionID identify what the fact conflicts with.
type UpdateDecision struct {
	FactID          string       `json:"fact_id" mapstructure:"fact_id"`
	Kind            DecisionKind `json:"kind" mapstructure:"kind"`
	Target          string       `json:"target,omitempty" mapstructure:"target"`
	TargetVersionID string       `json:"target_version_id,omitempty" mapstructure:"target_version_id"`
	Reasoning       string       `json:"reasoning,omitempty" mapstructure:"reasoning"`
}

// Validate checks structural consistency of a single decision.
func (d *UpdateDecision) Validate() error {
	if d.FactID == "" {
		return fmt.Errorf("decision missing fact_id")
	}
	if !d.Kind.Valid() {
		return fmt.Errorf("decision %s: unknown kind %q", d.FactID, d.Kind)
	}
	if d.Kind == DecisionUpdate && d.Target == "" && d.TargetVersionID == "" {
		return fmt.Errorf("decision %s: UPDATE requires a target", d.FactID)
	}
	return nil
}

// DeferredConflict reports one CONFLICT decision the commit engine set aside.
// Nothing was written for it; resolving the conflict is the caller's policy.
type DeferredConflict struct {
	FactID          string `json:"fact_id" mapstructure:"fact_id"`
	Relation        bool   `json:"relation" mapstructure:"relation"`
	Target          string `json:"target,omitempty" mapstructure:"target"`
	TargetVersionID string `json:"target_version_id,omitempty" mapstructure:"target_version_id"`
	Reasoning       string `json:"reasoning,omitempty" mapstructure:"reasoning"`
}
