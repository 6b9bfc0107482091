package database

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/siherrmann/resolver/helper"
	"github.com/siherrmann/resolver/model"
)

// MemoryStore keeps entities, mentions and results in memory. It offers the
// same operations as the postgres handlers, including identifier uniqueness
// and the atomic create-or-link, and is safe for concurrent use.
type MemoryStore struct {
	mu sync.RWMutex

	entities    map[uuid.UUID]*model.CandidateEntity
	entityOrder []uuid.UUID
	identifiers map[model.IdentifierType]map[string]uuid.UUID

	mentions     map[uuid.UUID]*model.Mention
	mentionOrder []uuid.UUID
	statuses     map[uuid.UUID]model.MentionStatus

	results map[uuid.UUID][]*model.ResolutionResult
}

// NewMemoryStore creates an empty MemoryStore
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entities:    map[uuid.UUID]*model.CandidateEntity{},
		identifiers: map[model.IdentifierType]map[string]uuid.UUID{},
		mentions:    map[uuid.UUID]*model.Mention{},
		statuses:    map[uuid.UUID]model.MentionStatus{},
		results:     map[uuid.UUID][]*model.ResolutionResult{},
	}
}

func copyEntity(e *model.CandidateEntity) *model.CandidateEntity {
	c := *e
	c.Identifiers = make(map[model.IdentifierType]string, len(e.Identifiers))
	for t, v := range e.Identifiers {
		c.Identifiers[t] = v
	}
	c.Attributes = e.Attributes.Clone()
	return &c
}

// InsertEntity stores a new entity with its identifiers. A zero id is
// replaced by a random one. Identifiers already held by another entity
// fail with model.ErrConcurrentIdentifierConflict.
func (s *MemoryStore) InsertEntity(entity *model.CandidateEntity) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.insertEntity(entity)
}

func (s *MemoryStore) insertEntity(entity *model.CandidateEntity) error {
	if entity.ID == uuid.Nil {
		entity.ID = uuid.New()
	}
	if _, exists := s.entities[entity.ID]; exists {
		return helper.NewError("insert entity", fmt.Errorf("entity %s already exists", entity.ID))
	}
	for t, v := range entity.Identifiers {
		if _, taken := s.identifiers[t][v]; taken {
			return helper.NewError("insert identifier", fmt.Errorf("%w: %s %s", model.ErrConcurrentIdentifierConflict, t, v))
		}
	}

	if entity.CreatedAt.IsZero() {
		entity.CreatedAt = time.Now().UTC()
	}
	entity.Active = true

	stored := copyEntity(entity)
	s.entities[stored.ID] = stored
	s.entityOrder = append(s.entityOrder, stored.ID)
	for t, v := range stored.Identifiers {
		if s.identifiers[t] == nil {
			s.identifiers[t] = map[string]uuid.UUID{}
		}
		s.identifiers[t][v] = stored.ID
	}
	return nil
}

// SelectEntity returns an entity by id
func (s *MemoryStore) SelectEntity(id uuid.UUID) (*model.CandidateEntity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entities[id]
	if !ok {
		return nil, helper.NewError("select entity", model.ErrEntityNotFound)
	}
	return copyEntity(e), nil
}

// SelectActiveEntities returns all active entities in insertion order
func (s *MemoryStore) SelectActiveEntities(ctx context.Context) ([]*model.CandidateEntity, error) {
	if err := ctx.Err(); err != nil {
		return nil, helper.NewError("select active entities", err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	entities := []*model.CandidateEntity{}
	for _, id := range s.entityOrder {
		if e := s.entities[id]; e.Active {
			entities = append(entities, copyEntity(e))
		}
	}
	return entities, nil
}

// SelectEntityByIdentifier returns the active entity holding an identifier
func (s *MemoryStore) SelectEntityByIdentifier(t model.IdentifierType, value string) (*model.CandidateEntity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.identifiers[t][value]
	if !ok {
		return nil, helper.NewError("select entity by identifier", model.ErrEntityNotFound)
	}
	return copyEntity(s.entities[id]), nil
}

// DeactivateEntity marks an entity inactive and releases its identifiers
func (s *MemoryStore) DeactivateEntity(id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entities[id]
	if !ok {
		return helper.NewError("deactivate entity", model.ErrEntityNotFound)
	}
	e.Active = false
	for t, v := range e.Identifiers {
		if s.identifiers[t][v] == id {
			delete(s.identifiers[t], v)
		}
	}
	return nil
}

// LinkMentionByIdentifier links the mention to the entity holding the
// identifier, creating the entity first when allowed.
func (s *MemoryStore) LinkMentionByIdentifier(ctx context.Context, link model.IdentifierLink) (*model.ExactMatchResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, helper.NewError("link mention by identifier", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	result := &model.ExactMatchResult{MentionID: link.MentionID, Identifier: link.Value}

	entityID, found := s.identifiers[link.Type][link.Value]
	if !found {
		if !link.CreateIfNotFound {
			return result, nil
		}

		name := link.Value
		if link.Name != nil && *link.Name != "" {
			name = *link.Name
		}
		err := s.insertEntity(&model.CandidateEntity{
			ID:            link.NewEntityID,
			Type:          link.EntityType,
			CanonicalName: name,
			Identifiers:   map[model.IdentifierType]string{link.Type: link.Value},
			Attributes:    model.Attributes{},
			Confidence:    1.0,
		})
		if err != nil {
			return nil, err
		}
		entityID = link.NewEntityID
		result.IsNewEntity = true
	}

	status := model.DecisionAutoMatch
	if result.IsNewEntity {
		status = model.DecisionNewEntity
	}
	s.setStatus(link.MentionID, model.MentionStatus{
		Status:     string(status),
		EntityID:   &entityID,
		Confidence: 1.0,
	})

	result.EntityID = &entityID
	result.Matched = true
	result.Confidence = 1.0
	return result, nil
}

// setStatus only updates mentions the store knows
func (s *MemoryStore) setStatus(mentionID uuid.UUID, status model.MentionStatus) {
	if _, ok := s.mentions[mentionID]; !ok {
		return
	}
	now := time.Now().UTC()
	status.ResolvedAt = &now
	s.statuses[mentionID] = status
}

// InsertMention stores an unresolved mention
func (s *MemoryStore) InsertMention(mention *model.Mention) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if mention.ID == uuid.Nil {
		mention.ID = uuid.New()
	}
	if _, exists := s.mentions[mention.ID]; exists {
		return helper.NewError("insert mention", fmt.Errorf("mention %s already exists", mention.ID))
	}
	if mention.CreatedAt.IsZero() {
		mention.CreatedAt = time.Now().UTC()
	}

	s.mentions[mention.ID] = mention.Copy()
	s.mentionOrder = append(s.mentionOrder, mention.ID)
	s.statuses[mention.ID] = model.MentionStatus{Status: model.StatusUnresolved}
	return nil
}

// SelectMention returns a mention by id
func (s *MemoryStore) SelectMention(id uuid.UUID) (*model.Mention, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.mentions[id]
	if !ok {
		return nil, helper.NewError("select mention", model.ErrMentionNotFound)
	}
	return m.Copy(), nil
}

// SelectMentionStatus returns the stored resolution state of a mention
func (s *MemoryStore) SelectMentionStatus(id uuid.UUID) (*model.MentionStatus, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	status, ok := s.statuses[id]
	if !ok {
		return nil, helper.NewError("select mention status", model.ErrMentionNotFound)
	}
	return &status, nil
}

// SelectUnresolvedMentions returns up to limit unresolved mentions, oldest first
func (s *MemoryStore) SelectUnresolvedMentions(ctx context.Context, limit int) ([]*model.Mention, error) {
	if err := ctx.Err(); err != nil {
		return nil, helper.NewError("select unresolved mentions", err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	mentions := []*model.Mention{}
	for _, id := range s.mentionOrder {
		if limit > 0 && len(mentions) >= limit {
			break
		}
		if s.statuses[id].Status == model.StatusUnresolved {
			mentions = append(mentions, s.mentions[id].Copy())
		}
	}
	return mentions, nil
}

// UpdateMentionResolution stores the outcome of a resolution result
func (s *MemoryStore) UpdateMentionResolution(ctx context.Context, result *model.ResolutionResult) error {
	if err := ctx.Err(); err != nil {
		return helper.NewError("update mention resolution", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.mentions[result.MentionID]; !ok {
		return helper.NewError("update mention resolution", model.ErrMentionNotFound)
	}
	s.setStatus(result.MentionID, model.MentionStatus{
		Status:     string(result.Decision),
		EntityID:   result.EntityID,
		Confidence: result.Score,
	})
	return nil
}

// InsertResolution appends a result to the mention's history
func (s *MemoryStore) InsertResolution(ctx context.Context, result *model.ResolutionResult) error {
	if err := ctx.Err(); err != nil {
		return helper.NewError("insert resolution", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	stored := *result
	s.results[result.MentionID] = append(s.results[result.MentionID], &stored)
	return nil
}

// SelectResolutionsByMention returns the results of a mention, oldest first
func (s *MemoryStore) SelectResolutionsByMention(mentionID uuid.UUID) ([]*model.ResolutionResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	results := make([]*model.ResolutionResult, 0, len(s.results[mentionID]))
	for _, r := range s.results[mentionID] {
		c := *r
		results = append(results, &c)
	}
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].ResolvedAt.Before(results[j].ResolvedAt)
	})
	return results, nil
}

// SelectLatestResolution returns the newest result of a mention
func (s *MemoryStore) SelectLatestResolution(mentionID uuid.UUID) (*model.ResolutionResult, error) {
	results, err := s.SelectResolutionsByMention(mentionID)
	if err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return nil, helper.NewError("select latest resolution", model.ErrMentionNotFound)
	}
	return results[len(results)-1], nil
}
