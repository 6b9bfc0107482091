package blocking

import (
	"fmt"
	"log/slog"
	"sort"

	"github.com/google/uuid"
	"github.com/siherrmann/resolver/helper"
	"github.com/siherrmann/resolver/model"
)

// Index keeps known entities in an arena and posting lists of arena slots
// per blocking key. It is not safe for concurrent mutation.
type Index struct {
	strategies []Strategy
	logger     *slog.Logger

	// Arena, removed entities leave a nil slot behind.
	entities []*model.CandidateEntity
	keys     [][]model.BlockingKey
	slots    map[uuid.UUID]int
	postings map[model.BlockingKey][]int
	live     int
}

// NewIndex creates an empty index. Without strategies the defaults are used.
func NewIndex(logger *slog.Logger, strategies ...Strategy) *Index {
	if logger == nil {
		logger = slog.Default()
	}
	if len(strategies) == 0 {
		strategies = DefaultStrategies()
	}
	return &Index{
		strategies: strategies,
		logger:     logger,
		slots:      map[uuid.UUID]int{},
		postings:   map[model.BlockingKey][]int{},
	}
}

// AddEntity indexes an entity under every key its strategies derive.
// Adding a known id again replaces its keys.
func (i *Index) AddEntity(entity *model.CandidateEntity) error {
	if entity == nil {
		return helper.NewError("add entity", fmt.Errorf("entity is nil"))
	}
	if !entity.Type.Valid() {
		return helper.NewError("add entity", fmt.Errorf("unknown entity type %q", entity.Type))
	}

	slot, exists := i.slots[entity.ID]
	if exists {
		i.unpost(slot)
	} else {
		slot = len(i.entities)
		i.entities = append(i.entities, nil)
		i.keys = append(i.keys, nil)
		i.slots[entity.ID] = slot
		i.live++
	}

	var keys []model.BlockingKey
	for _, s := range i.strategies {
		keys = append(keys, s.EntityKeys(entity)...)
	}
	keys = dedupKeys(keys)
	for _, k := range keys {
		i.postings[k] = append(i.postings[k], slot)
	}

	i.entities[slot] = entity
	i.keys[slot] = keys

	i.logger.Debug("Indexed entity", slog.String("id", entity.ID.String()), slog.Int("keys", len(keys)), slog.Bool("reindexed", exists))
	return nil
}

// RemoveEntity drops an entity and all its postings
func (i *Index) RemoveEntity(id uuid.UUID) bool {
	slot, ok := i.slots[id]
	if !ok {
		return false
	}
	i.unpost(slot)
	i.entities[slot] = nil
	i.keys[slot] = nil
	delete(i.slots, id)
	i.live--
	return true
}

func (i *Index) unpost(slot int) {
	for _, k := range i.keys[slot] {
		list := i.postings[k]
		for j, s := range list {
			if s == slot {
				list = append(list[:j], list[j+1:]...)
				break
			}
		}
		if len(list) == 0 {
			delete(i.postings, k)
		} else {
			i.postings[k] = list
		}
	}
}

// Entity returns an indexed entity by id
func (i *Index) Entity(id uuid.UUID) (*model.CandidateEntity, bool) {
	slot, ok := i.slots[id]
	if !ok {
		return nil, false
	}
	return i.entities[slot], true
}

// Len returns the number of indexed entities
func (i *Index) Len() int {
	return i.live
}

// GetCandidates returns the entities sharing a key with the mention, in the
// order they were first added. A shared identifier is definitive and returns
// only the identifier hits. Otherwise the phonetic, prefix and postal keys are
// combined, and name tokens are only consulted when those found nothing.
func (i *Index) GetCandidates(mention *model.Mention) []*model.CandidateEntity {
	if mention == nil || !mention.Type.Valid() {
		return nil
	}

	byTier := make([][]model.BlockingKey, 3)
	for _, s := range i.strategies {
		t := tier(s.Name())
		byTier[t] = append(byTier[t], s.MentionKeys(mention)...)
	}

	for _, keys := range byTier {
		if candidates := i.lookup(keys, mention.Type); len(candidates) > 0 {
			return candidates
		}
	}
	return nil
}

// tier orders strategies by how definitive a shared key is
func tier(s model.BlockingStrategy) int {
	switch s {
	case model.BlockingIdentifier:
		return 0
	case model.BlockingToken:
		return 2
	}
	return 1
}

func (i *Index) lookup(keys []model.BlockingKey, entityType model.EntityType) []*model.CandidateEntity {
	seen := map[int]struct{}{}
	for _, k := range keys {
		for _, slot := range i.postings[k] {
			seen[slot] = struct{}{}
		}
	}

	slots := make([]int, 0, len(seen))
	for slot := range seen {
		slots = append(slots, slot)
	}
	sort.Ints(slots)

	candidates := make([]*model.CandidateEntity, 0, len(slots))
	for _, slot := range slots {
		if e := i.entities[slot]; e != nil && e.Type == entityType {
			candidates = append(candidates, e)
		}
	}
	return candidates
}

// Stats counts distinct keys and postings per strategy
func (i *Index) Stats() model.IndexStats {
	stats := model.IndexStats{
		Entities: i.live,
		Keys:     map[model.BlockingStrategy]int{},
		Postings: map[model.BlockingStrategy]int{},
	}
	for _, s := range i.strategies {
		stats.Keys[s.Name()] = 0
		stats.Postings[s.Name()] = 0
	}
	for k, list := range i.postings {
		stats.Keys[k.Strategy]++
		stats.Postings[k.Strategy] += len(list)
	}
	return stats
}

func dedupKeys(keys []model.BlockingKey) []model.BlockingKey {
	seen := make(map[model.BlockingKey]struct{}, len(keys))
	out := keys[:0]
	for _, k := range keys {
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	return out
}
