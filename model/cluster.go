package model

import "github.com/google/uuid"

// MentionCluster is a transitive group of mentions and at most one bound entity
type MentionCluster struct {
	ID uuid.UUID `json:"id"`
	// EntityID is nil for a group that represents a new entity.
	EntityID *uuid.UUID `json:"entity_id,omitempty"`
	// MergeEntityIDs are further entities that ended up in the same group.
	MergeEntityIDs []uuid.UUID               `json:"merge_entity_ids,omitempty"`
	Members        []uuid.UUID               `json:"members"`
	CanonicalName  string                    `json:"canonical_name"`
	Identifiers    map[IdentifierType]string `json:"identifiers,omitempty"`
	Confidence     float64                   `json:"confidence"`
	// Trail holds per member the chain of matches leading to the group's anchor.
	Trail map[uuid.UUID][]MatchLink `json:"trail,omitempty"`
}

// ClusterSet is the partition produced by one clustering run.
// Orphans are mentions that were never linked to anything.
type ClusterSet struct {
	Clusters []MentionCluster `json:"clusters"`
	Orphans  []uuid.UUID      `json:"orphans,omitempty"`
}

// MatchLink is one recorded match, used to explain cluster membership
type MatchLink struct {
	From  uuid.UUID `json:"from"`
	To    uuid.UUID `json:"to"`
	Score float64   `json:"score"`
}
