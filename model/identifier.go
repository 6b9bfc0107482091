package model

// IdentifierType names the kind of identifier an entity holds
type IdentifierType string

const (
	IdentifierTypePersonnummer        IdentifierType = "personnummer"
	IdentifierTypeOrganisationsnummer IdentifierType = "organisationsnummer"
)

// IdentifierKind is what a validated identifier turned out to be
type IdentifierKind string

const (
	IdentifierKindPerson       IdentifierKind = "PERSON_ID"
	IdentifierKindCoordination IdentifierKind = "COORDINATION_ID"
	IdentifierKindOrganisation IdentifierKind = "ORG_ID"
)

// Type returns the identifier type a kind is stored under.
// Coordination numbers share the personnummer namespace.
func (k IdentifierKind) Type() IdentifierType {
	if k == IdentifierKindOrganisation {
		return IdentifierTypeOrganisationsnummer
	}
	return IdentifierTypePersonnummer
}

// IdentifierValidation is the result of validating a raw identifier
type IdentifierValidation struct {
	Valid      bool           `json:"valid"`
	Normalized string         `json:"normalized,omitempty"`
	Kind       IdentifierKind `json:"kind,omitempty"`
}

// Identifier is a national identifier extracted for a mention.
// A nil *Identifier means none was extracted; a non nil one with
// Valid false was extracted but failed validation (or was not validated yet).
type Identifier struct {
	Raw        string         `json:"raw"`
	Normalized string         `json:"normalized,omitempty"`
	Kind       IdentifierKind `json:"kind,omitempty"`
	Valid      bool           `json:"valid"`
}

// NewIdentifier returns an unvalidated identifier for raw
func NewIdentifier(raw string) *Identifier {
	return &Identifier{Raw: raw}
}

// IsValid is nil safe
func (i *Identifier) IsValid() bool {
	return i != nil && i.Valid && i.Normalized != ""
}

// Apply returns a copy carrying the validation result
func (i *Identifier) Apply(v IdentifierValidation) *Identifier {
	if i == nil {
		return nil
	}
	return &Identifier{
		Raw:        i.Raw,
		Normalized: v.Normalized,
		Kind:       v.Kind,
		Valid:      v.Valid,
	}
}

func (i *Identifier) Copy() *Identifier {
	if i == nil {
		return nil
	}
	c := *i
	return &c
}
