package model

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/siherrmann/resolver/helper"
)

// EntityType is the closed set of things a mention can refer to
type EntityType string

const (
	EntityTypePerson  EntityType = "PERSON"
	EntityTypeCompany EntityType = "COMPANY"
	EntityTypeAddress EntityType = "ADDRESS"
)

// EntityTypes lists every entity type in a fixed order
var EntityTypes = []EntityType{EntityTypePerson, EntityTypeCompany, EntityTypeAddress}

// Valid reports whether t is one of the known entity types
func (t EntityType) Valid() bool {
	switch t {
	case EntityTypePerson, EntityTypeCompany, EntityTypeAddress:
		return true
	}
	return false
}

// Provenance points back at where a mention was extracted
type Provenance struct {
	Source       string     `json:"source,omitempty"`
	DocumentID   *uuid.UUID `json:"document_id,omitempty"`
	ExtractionID *uuid.UUID `json:"extraction_id,omitempty"`
	ExtractedAt  *time.Time `json:"extracted_at,omitempty"`
}

// Value implements the driver.Valuer interface for database storage
func (p Provenance) Value() (driver.Value, error) {
	return json.Marshal(p)
}

// Scan implements the sql.Scanner interface for database retrieval
func (p *Provenance) Scan(value interface{}) error {
	if value == nil {
		*p = Provenance{}
		return nil
	}
	b, ok := value.([]byte)
	if !ok {
		return helper.NewError("byte assertion", errors.New("type assertion to []byte failed"))
	}
	return json.Unmarshal(b, p)
}

// Mention is an unresolved reference to a person, company or address.
// Mentions are immutable once extracted; resolution works on copies.
type Mention struct {
	ID                  uuid.UUID   `json:"id"`
	Type                EntityType  `json:"mention_type"`
	RawText             string      `json:"raw_text"`
	NormalizedText      string      `json:"normalized_text,omitempty"`
	Personnummer        *Identifier `json:"personnummer,omitempty"`
	Organisationsnummer *Identifier `json:"organisationsnummer,omitempty"`
	Attributes          Attributes  `json:"attributes,omitempty"`
	Provenance          Provenance  `json:"provenance"`
	CreatedAt           time.Time   `json:"created_at"`
}

// Name returns the text used for name comparison
func (m *Mention) Name() string {
	if m.NormalizedText != "" {
		return m.NormalizedText
	}
	return m.RawText
}

// Identifiers returns the present identifiers, person identifier first
func (m *Mention) Identifiers() []*Identifier {
	var ids []*Identifier
	if m.Personnummer != nil {
		ids = append(ids, m.Personnummer)
	}
	if m.Organisationsnummer != nil {
		ids = append(ids, m.Organisationsnummer)
	}
	return ids
}

// ValidIdentifier returns the first validated identifier, if any
func (m *Mention) ValidIdentifier() (IdentifierType, *Identifier, bool) {
	if m.Personnummer.IsValid() {
		return IdentifierTypePersonnummer, m.Personnummer, true
	}
	if m.Organisationsnummer.IsValid() {
		return IdentifierTypeOrganisationsnummer, m.Organisationsnummer, true
	}
	return "", nil, false
}

// Copy returns a copy with its own identifier values and attributes
func (m *Mention) Copy() *Mention {
	c := *m
	c.Personnummer = m.Personnummer.Copy()
	c.Organisationsnummer = m.Organisationsnummer.Copy()
	if m.Attributes != nil {
		c.Attributes = m.Attributes.Clone()
	}
	return &c
}

// MentionStatus is the stored resolution state of a mention
type MentionStatus struct {
	Status     string     `json:"resolution_status"`
	EntityID   *uuid.UUID `json:"resolved_entity_id,omitempty"`
	Confidence float64    `json:"confidence"`
	ResolvedAt *time.Time `json:"resolved_at,omitempty"`
}
