package chronicle

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/soundprediction/chronicle/pkg/store"
	"github.com/soundprediction/chronicle/pkg/types"
)

// CommitInput is one decision batch, typically the judged output of one
// chunk of external work. Every fact must carry exactly one decision;
// event times are keyed by fact id and optional per fact.
type CommitInput struct {
	EntityFacts   []types.EntityFact
	RelationFacts []types.RelationFact

	EntityDecisions   []types.UpdateDecision
	RelationDecisions []types.UpdateDecision

	EventTimes map[string]types.EventTime

	// CacheID is the scene snapshot in effect when the facts were extracted.
	CacheID string
	// WorldTime stamps the commit and every version it writes. Zero means now.
	WorldTime time.Time

	Source types.SourceMeta
}

// CommitResult reports what one batch did. Committed distinguishes a no-op
// (all decisions redundant or deferred) from a persisted commit, so callers
// cannot conflate absence with failure. Deferred lists CONFLICT decisions
// that were reported but never written.
type CommitResult struct {
	Committed bool
	Commit    *types.Commit
	Deferred  []types.DeferredConflict
}

// Commit applies one decision batch atomically. REDUNDANT decisions are
// dropped, CONFLICT decisions are deferred into the result, and remaining
// NEW/UPDATE decisions become version writes plus a commit record, all
// persisted in a single transaction. Validation failures surface before any
// write; storage failures roll the whole batch back.
func (c *Client) Commit(ctx context.Context, in CommitInput) (CommitResult, error) {
	if err := c.checkOpen(); err != nil {
		return CommitResult{}, err
	}

	c.commitMu.Lock()
	defer c.commitMu.Unlock()

	worldTime := in.WorldTime
	if worldTime.IsZero() {
		worldTime = time.Now()
	}

	p := &commitPlan{
		client:    c,
		input:     &in,
		worldTime: worldTime,
		resolved:  make(map[string]string),
		heads:     make(map[string]*types.EntityVersion),
		relHeads:  make(map[string]*types.RelationVersion),
	}

	if err := p.validateBatch(); err != nil {
		return CommitResult{}, err
	}
	if err := p.planEntities(ctx); err != nil {
		return CommitResult{}, err
	}
	if err := p.planRelations(ctx); err != nil {
		return CommitResult{}, err
	}

	if len(p.addedEntities)+len(p.modifiedEntities)+len(p.addedRelations)+len(p.modifiedRelations) == 0 {
		c.logger.Debug("commit batch was a no-op", "deferred", len(p.deferred))
		return CommitResult{Committed: false, Deferred: p.deferred}, nil
	}

	commit := &types.Commit{
		ID:                       uuid.NewString(),
		WorldTime:                worldTime,
		AddedEntityVersions:      versionIDs(p.addedEntities),
		ModifiedEntityVersions:   versionIDs(p.modifiedEntities),
		AddedRelationVersions:    relationVersionIDs(p.addedRelations),
		ModifiedRelationVersions: relationVersionIDs(p.modifiedRelations),
		CacheID:                  in.CacheID,
		SourceType:               in.Source.SourceType,
		SourceTextRange:          in.Source.TextRange,
		SourceTextSnippet:        in.Source.TextSnippet,
		Message:                  in.Source.Message,
	}

	err := c.store.ApplyCommit(ctx, store.CommitWrite{
		Commit:    commit,
		Entities:  append(p.addedEntities, p.modifiedEntities...),
		Relations: append(p.addedRelations, p.modifiedRelations...),
	})
	if err != nil {
		return CommitResult{}, err
	}
	return CommitResult{Committed: true, Commit: commit, Deferred: p.deferred}, nil
}

// commitPlan accumulates the write set for one batch before it is handed to
// the store. resolved maps entity fact ids to the version id a relation
// endpoint reference lands on.
type commitPlan struct {
	client    *Client
	input     *CommitInput
	worldTime time.Time

	resolved map[string]string
	heads    map[string]*types.EntityVersion
	relHeads map[string]*types.RelationVersion

	addedEntities     []*types.EntityVersion
	modifiedEntities  []*types.EntityVersion
	addedRelations    []*types.RelationVersion
	modifiedRelations []*types.RelationVersion
	deferred          []types.DeferredConflict
}

// validateBatch checks the decision algebra before any store access: one
// decision per fact, no unknown references, well-formed event time anchors.
func (p *commitPlan) validateBatch() error {
	entityFacts := make(map[string]bool, len(p.input.EntityFacts))
	for _, f := range p.input.EntityFacts {
		if f.FactID == "" {
			return fmt.Errorf("%w: entity fact missing fact_id", types.ErrInvalidDecision)
		}
		if entityFacts[f.FactID] {
			return fmt.Errorf("%w: duplicate entity fact %s", types.ErrInvalidDecision, f.FactID)
		}
		entityFacts[f.FactID] = true
	}
	relationFacts := make(map[string]bool, len(p.input.RelationFacts))
	for _, f := range p.input.RelationFacts {
		if f.FactID == "" {
			return fmt.Errorf("%w: relation fact missing fact_id", types.ErrInvalidDecision)
		}
		if relationFacts[f.FactID] || entityFacts[f.FactID] {
			return fmt.Errorf("%w: duplicate fact id %s", types.ErrInvalidDecision, f.FactID)
		}
		relationFacts[f.FactID] = true
	}

	if err := checkDecisions(p.input.EntityDecisions, entityFacts, "entity"); err != nil {
		return err
	}
	if err := checkDecisions(p.input.RelationDecisions, relationFacts, "relation"); err != nil {
		return err
	}

	for factID, et := range p.input.EventTimes {
		if !entityFacts[factID] && !relationFacts[factID] {
			return fmt.Errorf("%w: event time keyed by unknown fact %s", types.ErrInvalidDecision, factID)
		}
		if err := et.Validate(); err != nil {
			return fmt.Errorf("%w: %v", types.ErrInvalidDecision, err)
		}
	}

	for _, f := range p.input.RelationFacts {
		if err := f.Endpoint1.Validate(); err != nil {
			return fmt.Errorf("%w: relation fact %s: %v", types.ErrInvalidDecision, f.FactID, err)
		}
		if err := f.Endpoint2.Validate(); err != nil {
			return fmt.Errorf("%w: relation fact %s: %v", types.ErrInvalidDecision, f.FactID, err)
		}
	}
	return nil
}

func checkDecisions(decisions []types.UpdateDecision, facts map[string]bool, kind string) error {
	seen := make(map[string]bool, len(decisions))
	for i := range decisions {
		d := &decisions[i]
		if err := d.Validate(); err != nil {
			return fmt.Errorf("%w: %v", types.ErrInvalidDecision, err)
		}
		if !facts[d.FactID] {
			return fmt.Errorf("%w: %s decision references unknown fact %s", types.ErrInvalidDecision, kind, d.FactID)
		}
		if seen[d.FactID] {
			return fmt.Errorf("%w: fact %s has multiple decisions", types.ErrInvalidDecision, d.FactID)
		}
		seen[d.FactID] = true
	}
	if len(seen) != len(facts) {
		return fmt.Errorf("%w: every %s fact needs a decision (%d facts, %d decisions)", types.ErrInvalidDecision, kind, len(facts), len(seen))
	}
	return nil
}

func (p *commitPlan) planEntities(ctx context.Context) error {
	factByID := make(map[string]*types.EntityFact, len(p.input.EntityFacts))
	for i := range p.input.EntityFacts {
		factByID[p.input.EntityFacts[i].FactID] = &p.input.EntityFacts[i]
	}

	for i := range p.input.EntityDecisions {
		d := &p.input.EntityDecisions[i]
		fact := factByID[d.FactID]

		switch d.Kind {
		case types.DecisionRedundant:
			// Nothing is written, but a relation in this batch may still
			// pin an endpoint to the fact; resolve it to the existing
			// version the decision points at.
			if d.TargetVersionID != "" {
				p.resolved[d.FactID] = d.TargetVersionID
			} else if d.Target != "" {
				head, err := p.entityHead(ctx, d.Target)
				if err != nil {
					return err
				}
				p.resolved[d.FactID] = head.VersionID
			}

		case types.DecisionConflict:
			p.deferred = append(p.deferred, types.DeferredConflict{
				FactID:          d.FactID,
				Target:          d.Target,
				TargetVersionID: d.TargetVersionID,
				Reasoning:       d.Reasoning,
			})

		case types.DecisionNew:
			v := &types.EntityVersion{
				VersionID:    uuid.NewString(),
				EntityID:     "ent_" + uuid.NewString(),
				Name:         fact.Name,
				Content:      fact.Content,
				PhysicalTime: p.worldTime,
				CacheID:      p.input.CacheID,
				Embedding:    fact.Embedding,
				EventTime:    p.eventTime(d.FactID),
			}
			p.addedEntities = append(p.addedEntities, v)
			p.resolved[d.FactID] = v.VersionID
			p.heads[v.EntityID] = v

		case types.DecisionUpdate:
			entityID := d.Target
			if entityID == "" {
				target, err := p.client.store.GetEntityVersion(ctx, d.TargetVersionID)
				if err != nil {
					return fmt.Errorf("resolving update target for fact %s: %w", d.FactID, err)
				}
				entityID = target.EntityID
			}
			head, err := p.entityHead(ctx, entityID)
			if err != nil {
				return fmt.Errorf("resolving update target for fact %s: %w", d.FactID, err)
			}
			if d.TargetVersionID != "" && d.TargetVersionID != head.VersionID {
				return fmt.Errorf("%w: fact %s pins version %s but chain head of %s is %s",
					types.ErrIntegrityViolation, d.FactID, d.TargetVersionID, entityID, head.VersionID)
			}
			name := fact.Name
			if name == "" {
				name = head.Name
			}
			v := &types.EntityVersion{
				VersionID:            uuid.NewString(),
				EntityID:             entityID,
				Name:                 name,
				Content:              fact.Content,
				PhysicalTime:         p.worldTime,
				CacheID:              p.input.CacheID,
				Embedding:            fact.Embedding,
				PredecessorVersionID: head.VersionID,
				EventTime:            p.eventTime(d.FactID),
			}
			p.modifiedEntities = append(p.modifiedEntities, v)
			p.resolved[d.FactID] = v.VersionID
			p.heads[entityID] = v
		}
	}
	return nil
}

func (p *commitPlan) planRelations(ctx context.Context) error {
	factByID := make(map[string]*types.RelationFact, len(p.input.RelationFacts))
	for i := range p.input.RelationFacts {
		factByID[p.input.RelationFacts[i].FactID] = &p.input.RelationFacts[i]
	}

	for i := range p.input.RelationDecisions {
		d := &p.input.RelationDecisions[i]
		fact := factByID[d.FactID]

		switch d.Kind {
		case types.DecisionRedundant:
			// Dropped; relation versions are never endpoint targets.

		case types.DecisionConflict:
			p.deferred = append(p.deferred, types.DeferredConflict{
				FactID:          d.FactID,
				Relation:        true,
				Target:          d.Target,
				TargetVersionID: d.TargetVersionID,
				Reasoning:       d.Reasoning,
			})

		case types.DecisionNew, types.DecisionUpdate:
			ep1, err := p.resolveEndpoint(fact.Endpoint1, d.FactID)
			if err != nil {
				return err
			}
			ep2, err := p.resolveEndpoint(fact.Endpoint2, d.FactID)
			if err != nil {
				return err
			}

			v := &types.RelationVersion{
				VersionID:          uuid.NewString(),
				Endpoint1VersionID: ep1,
				Endpoint2VersionID: ep2,
				Content:            fact.Content,
				PhysicalTime:       p.worldTime,
				CacheID:            p.input.CacheID,
				Embedding:          fact.Embedding,
				EventTime:          p.eventTime(d.FactID),
			}

			if d.Kind == types.DecisionNew {
				v.RelationID = "rel_" + uuid.NewString()
				p.addedRelations = append(p.addedRelations, v)
			} else {
				relationID := d.Target
				if relationID == "" {
					target, err := p.client.store.GetRelationVersion(ctx, d.TargetVersionID)
					if err != nil {
						return fmt.Errorf("resolving update target for fact %s: %w", d.FactID, err)
					}
					relationID = target.RelationID
				}
				head, err := p.relationHead(ctx, relationID)
				if err != nil {
					return fmt.Errorf("resolving update target for fact %s: %w", d.FactID, err)
				}
				if d.TargetVersionID != "" && d.TargetVersionID != head.VersionID {
					return fmt.Errorf("%w: fact %s pins version %s but chain head of %s is %s",
						types.ErrIntegrityViolation, d.FactID, d.TargetVersionID, relationID, head.VersionID)
				}
				v.RelationID = relationID
				v.PredecessorVersionID = head.VersionID
				p.modifiedRelations = append(p.modifiedRelations, v)
			}
			p.relHeads[v.RelationID] = v
		}
	}
	return nil
}

// resolveEndpoint turns an endpoint reference into a concrete entity version
// id: either the explicit pin, or the version this batch produced (or
// confirmed, for REDUNDANT entity facts) for the referenced fact.
func (p *commitPlan) resolveEndpoint(ref types.EndpointRef, relFactID string) (string, error) {
	if ref.EntityVersionID != "" {
		return ref.EntityVersionID, nil
	}
	versionID, ok := p.resolved[ref.FactID]
	if !ok {
		return "", fmt.Errorf("%w: relation fact %s references entity fact %s, which produced no version",
			types.ErrInvalidDecision, relFactID, ref.FactID)
	}
	return versionID, nil
}

// entityHead returns the chain head, preferring versions planned earlier in
// this same batch over the stored head.
func (p *commitPlan) entityHead(ctx context.Context, entityID string) (*types.EntityVersion, error) {
	if v, ok := p.heads[entityID]; ok {
		return v, nil
	}
	head, err := p.client.store.LatestEntityVersion(ctx, entityID)
	if err != nil {
		return nil, err
	}
	p.heads[entityID] = head
	return head, nil
}

func (p *commitPlan) relationHead(ctx context.Context, relationID string) (*types.RelationVersion, error) {
	if v, ok := p.relHeads[relationID]; ok {
		return v, nil
	}
	head, err := p.client.store.LatestRelationVersion(ctx, relationID)
	if err != nil {
		return nil, err
	}
	p.relHeads[relationID] = head
	return head, nil
}

func (p *commitPlan) eventTime(factID string) *types.EventTime {
	et, ok := p.input.EventTimes[factID]
	if !ok {
		return nil
	}
	return &et
}

func versionIDs(versions []*types.EntityVersion) []string {
	out := make([]string, 0, len(versions))
	for _, v := range versions {
		out = append(out, v.VersionID)
	}
	return out
}

func relationVersionIDs(versions []*types.RelationVersion) []string {
	out := make([]string, 0, len(versions))
	for _, v := range versions {
		out = append(out, v.VersionID)
	}
	return out
}
