package exact

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/siherrmann/resolver/core/identifier"
	"github.com/siherrmann/resolver/database"
	"github.com/siherrmann/resolver/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedValidator() *identifier.Validator {
	return &identifier.Validator{Now: func() time.Time {
		return time.Date(2026, time.June, 1, 0, 0, 0, 0, time.UTC)
	}}
}

// conflictStore fails the first n calls as if another writer won the race
type conflictStore struct {
	*database.MemoryStore
	conflicts int32
	calls     int32
}

func (s *conflictStore) LinkMentionByIdentifier(ctx context.Context, link model.IdentifierLink) (*model.ExactMatchResult, error) {
	atomic.AddInt32(&s.calls, 1)
	if atomic.AddInt32(&s.conflicts, -1) >= 0 {
		// The competing writer commits the same identifier.
		_ = s.MemoryStore.InsertEntity(&model.CandidateEntity{
			ID:            uuid.New(),
			Type:          link.EntityType,
			CanonicalName: "winner",
			Identifiers:   map[model.IdentifierType]string{link.Type: link.Value},
		})
		return nil, model.ErrConcurrentIdentifierConflict
	}
	return s.MemoryStore.LinkMentionByIdentifier(ctx, link)
}

func TestResolvePersonnummer(t *testing.T) {
	ctx := context.Background()

	t.Run("Existing entity is matched with confidence one", func(t *testing.T) {
		store := database.NewMemoryStore()
		existing := &model.CandidateEntity{
			Type:          model.EntityTypePerson,
			CanonicalName: "Karin Svensson",
			Identifiers:   map[model.IdentifierType]string{model.IdentifierTypePersonnummer: "198001011231"},
		}
		require.NoError(t, store.InsertEntity(existing))
		resolver := NewResolver(store, fixedValidator(), time.Second, 3, nil)

		name := "Erik Eriksson"
		res, err := resolver.ResolvePersonnummer(ctx, uuid.New(), "19800101-1231", &name, true)

		require.NoError(t, err)
		assert.True(t, res.Matched)
		assert.False(t, res.IsNewEntity)
		assert.Equal(t, existing.ID, *res.EntityID)
		assert.Equal(t, 1.0, res.Confidence)
		assert.Equal(t, "198001011231", res.Identifier)
	})

	t.Run("Missing entity is created with its identifier", func(t *testing.T) {
		store := database.NewMemoryStore()
		resolver := NewResolver(store, fixedValidator(), time.Second, 3, nil)

		name := "Erik Eriksson"
		res, err := resolver.ResolvePersonnummer(ctx, uuid.New(), "800101-1231", &name, true)

		require.NoError(t, err)
		assert.True(t, res.Matched)
		assert.True(t, res.IsNewEntity)
		assert.Equal(t, EntityIDForIdentifier(model.IdentifierTypePersonnummer, "198001011231"), *res.EntityID)

		created, err := store.SelectEntityByIdentifier(model.IdentifierTypePersonnummer, "198001011231")
		require.NoError(t, err)
		assert.Equal(t, "Erik Eriksson", created.CanonicalName)
		assert.Equal(t, model.EntityTypePerson, created.Type)
	})

	t.Run("Creation disabled reports no match without writing", func(t *testing.T) {
		store := database.NewMemoryStore()
		resolver := NewResolver(store, fixedValidator(), time.Second, 3, nil)

		res, err := resolver.ResolvePersonnummer(ctx, uuid.New(), "19800101-1231", nil, false)

		require.NoError(t, err)
		assert.False(t, res.Matched)
		assert.Nil(t, res.EntityID)
		entities, err := store.SelectActiveEntities(ctx)
		require.NoError(t, err)
		assert.Empty(t, entities)
	})

	t.Run("Invalid checksum is reported", func(t *testing.T) {
		resolver := NewResolver(database.NewMemoryStore(), fixedValidator(), time.Second, 3, nil)

		_, err := resolver.ResolvePersonnummer(ctx, uuid.New(), "19800101-1234", nil, true)

		assert.ErrorIs(t, err, model.ErrInvalidIdentifier)
	})

	t.Run("Missing store is reported", func(t *testing.T) {
		resolver := NewResolver(nil, fixedValidator(), time.Second, 3, nil)

		_, err := resolver.ResolvePersonnummer(ctx, uuid.New(), "19800101-1231", nil, true)

		assert.ErrorIs(t, err, model.ErrStoreUnavailable)
	})
}

func TestResolveOrganisationsnummer(t *testing.T) {
	t.Run("Company is created and matched again", func(t *testing.T) {
		ctx := context.Background()
		store := database.NewMemoryStore()
		resolver := NewResolver(store, fixedValidator(), time.Second, 3, nil)

		name := "Acme AB"
		first, err := resolver.ResolveOrganisationsnummer(ctx, uuid.New(), "556036-0793", &name, true)
		require.NoError(t, err)
		second, err := resolver.ResolveOrganisationsnummer(ctx, uuid.New(), "5560360793", nil, true)
		require.NoError(t, err)

		assert.True(t, first.IsNewEntity)
		assert.False(t, second.IsNewEntity)
		assert.Equal(t, *first.EntityID, *second.EntityID)
		assert.Equal(t, model.IdentifierKindOrganisation, second.Kind)
	})

	t.Run("Person number is not accepted as organisation number", func(t *testing.T) {
		resolver := NewResolver(database.NewMemoryStore(), fixedValidator(), time.Second, 3, nil)

		_, err := resolver.ResolveOrganisationsnummer(context.Background(), uuid.New(), "19800101-1231", nil, true)

		assert.ErrorIs(t, err, model.ErrInvalidIdentifier)
	})
}

func TestResolveMention(t *testing.T) {
	t.Run("Mention without identifier", func(t *testing.T) {
		resolver := NewResolver(database.NewMemoryStore(), fixedValidator(), time.Second, 3, nil)

		_, err := resolver.ResolveMention(context.Background(), &model.Mention{ID: uuid.New(), Type: model.EntityTypePerson, RawText: "Erik"}, true)

		assert.ErrorIs(t, err, model.ErrNoIdentifier)
	})

	t.Run("Mention with person number uses its name", func(t *testing.T) {
		store := database.NewMemoryStore()
		resolver := NewResolver(store, fixedValidator(), time.Second, 3, nil)
		mention := &model.Mention{ID: uuid.New(), Type: model.EntityTypePerson, RawText: "Erik Eriksson", Personnummer: model.NewIdentifier("19800101-1231")}

		res, err := resolver.ResolveMention(context.Background(), mention, true)

		require.NoError(t, err)
		entity, err := store.SelectEntity(*res.EntityID)
		require.NoError(t, err)
		assert.Equal(t, "Erik Eriksson", entity.CanonicalName)
		assert.Equal(t, mention.ID, res.MentionID)
	})

	t.Run("Invalid person number does not hide a valid organisation number", func(t *testing.T) {
		store := database.NewMemoryStore()
		holding := &model.CandidateEntity{
			ID:            uuid.New(),
			Type:          model.EntityTypeCompany,
			CanonicalName: "Volvo AB",
			Identifiers:   map[model.IdentifierType]string{model.IdentifierTypeOrganisationsnummer: "5560360793"},
		}
		require.NoError(t, store.InsertEntity(holding))
		resolver := NewResolver(store, fixedValidator(), time.Second, 3, nil)
		mention := &model.Mention{
			ID:                  uuid.New(),
			Type:                model.EntityTypeCompany,
			RawText:             "Volvo",
			Personnummer:        model.NewIdentifier("12345"),
			Organisationsnummer: model.NewIdentifier("556036-0793"),
		}

		res, err := resolver.ResolveMention(context.Background(), mention, false)

		require.NoError(t, err)
		assert.True(t, res.Matched)
		assert.False(t, res.IsNewEntity)
		assert.Equal(t, holding.ID, *res.EntityID)
		assert.Equal(t, 1.0, res.Confidence)
		assert.Equal(t, model.IdentifierKindOrganisation, res.Kind)
	})

	t.Run("Only invalid identifiers are reported as invalid", func(t *testing.T) {
		resolver := NewResolver(database.NewMemoryStore(), fixedValidator(), time.Second, 3, nil)
		mention := &model.Mention{
			ID:                  uuid.New(),
			Type:                model.EntityTypeCompany,
			RawText:             "Volvo",
			Personnummer:        model.NewIdentifier("12345"),
			Organisationsnummer: model.NewIdentifier("556036-0794"),
		}

		_, err := resolver.ResolveMention(context.Background(), mention, true)

		assert.ErrorIs(t, err, model.ErrInvalidIdentifier)
	})
}

func TestEntity(t *testing.T) {
	t.Run("Reads entities back from the store", func(t *testing.T) {
		store := database.NewMemoryStore()
		resolver := NewResolver(store, fixedValidator(), time.Second, 3, nil)

		res, err := resolver.ResolveOrganisationsnummer(context.Background(), uuid.New(), "556036-0793", nil, true)
		require.NoError(t, err)

		entity, ok := resolver.Entity(*res.EntityID)
		require.True(t, ok)
		assert.Equal(t, "5560360793", entity.Identifiers[model.IdentifierTypeOrganisationsnummer])
	})

	t.Run("Unknown entity is not found", func(t *testing.T) {
		resolver := NewResolver(database.NewMemoryStore(), fixedValidator(), time.Second, 3, nil)

		_, ok := resolver.Entity(uuid.New())
		assert.False(t, ok)
	})
}

func TestConcurrentIdentifierConflict(t *testing.T) {
	t.Run("Conflict links to the winner", func(t *testing.T) {
		store := &conflictStore{MemoryStore: database.NewMemoryStore(), conflicts: 1}
		resolver := NewResolver(store, fixedValidator(), time.Second, 3, nil)

		res, err := resolver.ResolvePersonnummer(context.Background(), uuid.New(), "19800101-1231", nil, true)

		require.NoError(t, err)
		assert.True(t, res.Matched)
		assert.False(t, res.IsNewEntity)
		assert.Equal(t, int32(2), atomic.LoadInt32(&store.calls))

		winner, err := store.SelectEntityByIdentifier(model.IdentifierTypePersonnummer, "198001011231")
		require.NoError(t, err)
		assert.Equal(t, winner.ID, *res.EntityID)
	})

	t.Run("Retries are bounded", func(t *testing.T) {
		store := &conflictStore{MemoryStore: database.NewMemoryStore(), conflicts: 100}
		resolver := NewResolver(store, fixedValidator(), time.Second, 2, nil)

		_, err := resolver.ResolvePersonnummer(context.Background(), uuid.New(), "19800101-1231", nil, true)

		assert.ErrorIs(t, err, model.ErrConcurrentIdentifierConflict)
		assert.Equal(t, int32(3), atomic.LoadInt32(&store.calls))
	})

	t.Run("Parallel resolution creates one entity per identifier", func(t *testing.T) {
		store := database.NewMemoryStore()
		resolver := NewResolver(store, fixedValidator(), time.Second, 3, nil)

		var wg sync.WaitGroup
		entityIDs := make([]uuid.UUID, 20)
		for i := range entityIDs {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				res, err := resolver.ResolvePersonnummer(context.Background(), uuid.New(), "19800101-1231", nil, true)
				if assert.NoError(t, err) {
					entityIDs[i] = *res.EntityID
				}
			}(i)
		}
		wg.Wait()

		entities, err := store.SelectActiveEntities(context.Background())
		require.NoError(t, err)
		require.Len(t, entities, 1)
		for _, id := range entityIDs {
			assert.Equal(t, entities[0].ID, id)
		}
	})
}
