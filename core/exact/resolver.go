package exact

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/siherrmann/resolver/core/identifier"
	"github.com/siherrmann/resolver/helper"
	"github.com/siherrmann/resolver/model"
)

// entityNamespace seeds the ids of entities created from an identifier
var entityNamespace = uuid.MustParse("b3e0f7a4-58c1-4c2e-8d0b-7e1f9a2c6d13")

// Store is the entity store primitive the exact path needs. One call is one
// atomic unit: link the mention to the active entity holding the identifier,
// or create entity, identifier and mention link together. When a concurrent
// writer created the identifier first it returns
// model.ErrConcurrentIdentifierConflict and nothing is written.
type Store interface {
	LinkMentionByIdentifier(ctx context.Context, link model.IdentifierLink) (*model.ExactMatchResult, error)
}

// Resolver resolves mentions by validated national identifier
type Resolver struct {
	store  Store
	logger *slog.Logger

	ValidatePersonnummer        identifier.ValidateFunc
	ValidateOrganisationsnummer identifier.ValidateFunc

	// Timeout bounds every store call on top of the caller's context.
	Timeout time.Duration
	// Retries is how often a conflicting create is retried.
	Retries int
}

// NewResolver creates a Resolver validating with validator
func NewResolver(store Store, validator *identifier.Validator, timeout time.Duration, retries int, logger *slog.Logger) *Resolver {
	if validator == nil {
		validator = identifier.NewValidator()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{
		store:                       store,
		logger:                      logger,
		ValidatePersonnummer:        validator.ValidatePersonnummer,
		ValidateOrganisationsnummer: validator.ValidateOrganisationsnummer,
		Timeout:                     timeout,
		Retries:                     retries,
	}
}

// EntityIDForIdentifier is the id an entity created for an identifier gets.
// Retried and concurrent creates for the same identifier agree on it.
func EntityIDForIdentifier(t model.IdentifierType, normalized string) uuid.UUID {
	return uuid.NewSHA1(entityNamespace, []byte(string(t)+":"+normalized))
}

// ResolvePersonnummer links a mention to the person holding the identifier
func (r *Resolver) ResolvePersonnummer(ctx context.Context, mentionID uuid.UUID, raw string, name *string, createIfNotFound bool) (*model.ExactMatchResult, error) {
	return r.resolve(ctx, mentionID, raw, name, createIfNotFound, r.ValidatePersonnummer, model.EntityTypePerson)
}

// ResolveOrganisationsnummer links a mention to the company holding the identifier
func (r *Resolver) ResolveOrganisationsnummer(ctx context.Context, mentionID uuid.UUID, raw string, name *string, createIfNotFound bool) (*model.ExactMatchResult, error) {
	return r.resolve(ctx, mentionID, raw, name, createIfNotFound, r.ValidateOrganisationsnummer, model.EntityTypeCompany)
}

// ResolveMention resolves by the first of the mention's identifiers that
// validates, person identifier first. An invalid person identifier does not
// hide a valid organisation identifier.
func (r *Resolver) ResolveMention(ctx context.Context, mention *model.Mention, createIfNotFound bool) (*model.ExactMatchResult, error) {
	name := mention.Name()
	if mention.Personnummer != nil {
		if v := r.ValidatePersonnummer(mention.Personnummer.Raw); v.Valid {
			return r.link(ctx, mention.ID, v, &name, createIfNotFound, model.EntityTypePerson)
		}
	}
	if mention.Organisationsnummer != nil {
		if v := r.ValidateOrganisationsnummer(mention.Organisationsnummer.Raw); v.Valid {
			return r.link(ctx, mention.ID, v, &name, createIfNotFound, model.EntityTypeCompany)
		}
	}

	if len(mention.Identifiers()) > 0 {
		return nil, helper.NewError("validate identifier", fmt.Errorf("%w: no valid identifier on mention %s", model.ErrInvalidIdentifier, mention.ID))
	}
	return nil, helper.NewError("resolve mention", model.ErrNoIdentifier)
}

// entitySource is implemented by stores that can read entities back
type entitySource interface {
	SelectEntity(id uuid.UUID) (*model.CandidateEntity, error)
}

// Entity reads an entity from the store, when the store supports it
func (r *Resolver) Entity(id uuid.UUID) (*model.CandidateEntity, bool) {
	source, ok := r.store.(entitySource)
	if !ok {
		return nil, false
	}
	entity, err := source.SelectEntity(id)
	if err != nil {
		return nil, false
	}
	return entity, true
}

func (r *Resolver) resolve(ctx context.Context, mentionID uuid.UUID, raw string, name *string, createIfNotFound bool, validate identifier.ValidateFunc, entityType model.EntityType) (*model.ExactMatchResult, error) {
	v := validate(raw)
	if !v.Valid {
		return nil, helper.NewError("validate identifier", fmt.Errorf("%w: %q", model.ErrInvalidIdentifier, raw))
	}
	return r.link(ctx, mentionID, v, name, createIfNotFound, entityType)
}

// link runs the store call for a validated identifier, retrying conflicts
func (r *Resolver) link(ctx context.Context, mentionID uuid.UUID, v model.IdentifierValidation, name *string, createIfNotFound bool, entityType model.EntityType) (*model.ExactMatchResult, error) {
	if r.store == nil {
		return nil, helper.NewError("resolve identifier", model.ErrStoreUnavailable)
	}

	if r.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}

	idType := v.Kind.Type()
	link := model.IdentifierLink{
		MentionID:        mentionID,
		EntityType:       entityType,
		Type:             idType,
		Value:            v.Normalized,
		Name:             name,
		NewEntityID:      EntityIDForIdentifier(idType, v.Normalized),
		CreateIfNotFound: createIfNotFound,
	}

	var err error
	for attempt := 0; attempt <= r.Retries; attempt++ {
		var res *model.ExactMatchResult
		res, err = r.store.LinkMentionByIdentifier(ctx, link)
		if err == nil {
			res.MentionID = mentionID
			res.Identifier = v.Normalized
			res.Kind = v.Kind
			if res.Matched {
				res.Confidence = 1.0
			}
			return res, nil
		}
		if !errors.Is(err, model.ErrConcurrentIdentifierConflict) {
			return nil, helper.NewError("link mention by identifier", err)
		}

		// The winner is visible now, the next attempt links to it.
		r.logger.Warn("Identifier created concurrently, retrying", slog.String("identifier_type", string(idType)), slog.Int("attempt", attempt+1))
	}

	return nil, helper.NewError("link mention by identifier", err)
}
