package model

import (
	"time"

	"github.com/google/uuid"
)

// CandidateEntity is a canonical entity a mention can be matched against
type CandidateEntity struct {
	ID            uuid.UUID                 `json:"id"`
	Type          EntityType                `json:"entity_type"`
	CanonicalName string                    `json:"canonical_name"`
	Identifiers   map[IdentifierType]string `json:"identifiers,omitempty"`
	Attributes    Attributes                `json:"attributes,omitempty"`
	Confidence    float64                   `json:"confidence"`
	Active        bool                      `json:"active"`
	CreatedAt     time.Time                 `json:"created_at"`
}

// Identifier returns the normalized identifier value of the given type
func (e *CandidateEntity) Identifier(t IdentifierType) (string, bool) {
	v, ok := e.Identifiers[t]
	return v, ok && v != ""
}

// IdentifierLink is the input of the atomic create-or-link operation
// of the entity store.
type IdentifierLink struct {
	MentionID  uuid.UUID      `json:"mention_id"`
	EntityType EntityType     `json:"entity_type"`
	Type       IdentifierType `json:"identifier_type"`
	Value      string         `json:"identifier_value"`
	Name       *string        `json:"name,omitempty"`
	// NewEntityID is used when no entity holds the identifier yet.
	NewEntityID      uuid.UUID `json:"new_entity_id"`
	CreateIfNotFound bool      `json:"create_if_not_found"`
}

// ExactMatchResult is the outcome of resolving a mention by identifier
type ExactMatchResult struct {
	MentionID   uuid.UUID      `json:"mention_id"`
	EntityID    *uuid.UUID     `json:"entity_id,omitempty"`
	Matched     bool           `json:"matched"`
	IsNewEntity bool           `json:"is_new_entity"`
	Confidence  float64        `json:"confidence"`
	Identifier  string         `json:"identifier"`
	Kind        IdentifierKind `json:"kind"`
}
