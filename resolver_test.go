package resolver

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/siherrmann/resolver/helper"
	"github.com/siherrmann/resolver/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// personnummer builds a valid personnummer born 1975-03-15 with serial n
func personnummer(n int) string {
	base := fmt.Sprintf("750315%03d", n)
	sum := 0
	for i, r := range base {
		d := int(r - '0')
		if i%2 == 0 {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
	}
	return fmt.Sprintf("19%s-%s%d", base[:6], base[6:], (10-sum%10)%10)
}

func initResolver(t *testing.T) *Resolver {
	helper.SetTestDatabaseConfigEnvs(t, dbPort)
	dbConfig, err := helper.NewDatabaseConfiguration()
	require.NoError(t, err, "failed to create database configuration")

	r, err := NewResolver(dbConfig, nil)
	require.NoError(t, err, "failed to create resolver")
	require.NotNil(t, r, "expected resolver to be non-nil")

	t.Cleanup(func() {
		r.Close()
	})

	return r
}

func TestNewResolver(t *testing.T) {
	helper.SetTestDatabaseConfigEnvs(t, dbPort)
	dbConfig, err := helper.NewDatabaseConfiguration()
	require.NoError(t, err)

	t.Run("Valid call NewResolver", func(t *testing.T) {
		r, err := NewResolver(dbConfig, nil)
		require.NoError(t, err, "Expected NewResolver to not return an error")
		require.NotNil(t, r)
		assert.NotNil(t, r.DB)
		assert.NotNil(t, r.Entities)
		assert.NotNil(t, r.Mentions)
		assert.NotNil(t, r.Resolutions)
		assert.NotNil(t, r.Index)
		assert.NotNil(t, r.Engine)

		assert.NoError(t, r.Close())
	})

	t.Run("Invalid resolver config is rejected before connecting", func(t *testing.T) {
		config := model.DefaultResolverConfig()
		config.MinClusterConfidence = 2
		_, err := NewResolver(dbConfig, &config)
		assert.Error(t, err)
	})

	t.Run("Missing database config is an error", func(t *testing.T) {
		_, err := NewResolver(nil, nil)
		assert.Error(t, err)
	})

	t.Run("Resolver with nil database handles Close gracefully", func(t *testing.T) {
		r := &Resolver{}
		assert.NoError(t, r.Close())
	})
}

func TestResolverIdentifierFlow(t *testing.T) {
	r := initResolver(t)
	ctx := context.Background()

	value := personnummer(101)
	existing := &model.CandidateEntity{
		Type:          model.EntityTypePerson,
		CanonicalName: "Karin Lindgren",
		Identifiers:   map[model.IdentifierType]string{model.IdentifierTypePersonnummer: "19" + value[2:8] + value[9:]},
		Confidence:    1.0,
	}
	require.NoError(t, r.Entities.InsertEntity(existing))

	t.Run("Loaded index contains stored entities", func(t *testing.T) {
		n, err := r.LoadIndex(ctx)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, n, 1)

		stats, err := r.IndexStats()
		require.NoError(t, err)
		assert.Equal(t, n, stats.Entities)
	})

	t.Run("Mention with known personnummer is matched exactly", func(t *testing.T) {
		m := &model.Mention{
			ID:           uuid.New(),
			Type:         model.EntityTypePerson,
			RawText:      "K. Lindgren",
			Personnummer: model.NewIdentifier(value),
		}

		res, err := r.ResolveMention(ctx, m)
		require.NoError(t, err)
		assert.Equal(t, model.DecisionAutoMatch, res.Decision)
		assert.True(t, res.ExactMatch)
		assert.Equal(t, existing.ID, *res.EntityID)

		logged, err := r.Resolutions.SelectLatestResolution(m.ID)
		require.NoError(t, err)
		assert.Equal(t, res.ID, logged.ID)
	})

	t.Run("Unknown organisationsnummer creates the company", func(t *testing.T) {
		m := &model.Mention{
			ID:                  uuid.New(),
			Type:                model.EntityTypeCompany,
			RawText:             "Volvo AB",
			Organisationsnummer: model.NewIdentifier("556036-0793"),
		}
		require.NoError(t, r.Mentions.InsertMention(m))

		res, err := r.ResolveMention(ctx, m)
		require.NoError(t, err)
		assert.True(t, res.ExactMatch)
		assert.Equal(t, model.DecisionNewEntity, res.Decision)

		entity, err := r.Entities.SelectEntityByIdentifier(model.IdentifierTypeOrganisationsnummer, "5560360793")
		require.NoError(t, err)
		assert.Equal(t, *res.EntityID, entity.ID)

		status, err := r.Mentions.SelectMentionStatus(m.ID)
		require.NoError(t, err)
		assert.Equal(t, string(res.Decision), status.Status, "stored status agrees with the returned decision")
	})

	t.Run("Noisy personnummer does not hide a stored organisationsnummer", func(t *testing.T) {
		holding := &model.CandidateEntity{
			Type:          model.EntityTypeCompany,
			CanonicalName: "Nordhav Holding AB",
			Identifiers:   map[model.IdentifierType]string{model.IdentifierTypeOrganisationsnummer: "5566778899"},
			Confidence:    1.0,
		}
		// Stored after the index was loaded, so only the store knows it.
		require.NoError(t, r.Entities.InsertEntity(holding))

		m := &model.Mention{
			ID:                  uuid.New(),
			Type:                model.EntityTypeCompany,
			RawText:             "Nordhav",
			Personnummer:        model.NewIdentifier("12345"),
			Organisationsnummer: model.NewIdentifier("556677-8899"),
		}

		res, err := r.ResolveMention(ctx, m)
		require.NoError(t, err)
		assert.Equal(t, model.DecisionAutoMatch, res.Decision)
		assert.Equal(t, 1.0, res.Score)
		assert.True(t, res.ExactMatch)
		assert.Equal(t, holding.ID, *res.EntityID)

		indexed, ok := r.Index.Entity(holding.ID)
		require.True(t, ok, "matched entity is indexed for later mentions")
		assert.Equal(t, "Nordhav Holding AB", indexed.CanonicalName)
	})
}

func TestResolverPendingFlow(t *testing.T) {
	r := initResolver(t)
	ctx := context.Background()

	reviewed := &model.CandidateEntity{Type: model.EntityTypePerson, CanonicalName: "Gunilla Westerberg"}
	require.NoError(t, r.Entities.InsertEntity(reviewed))
	_, err := r.LoadIndex(ctx)
	require.NoError(t, err)

	ambiguous := &model.Mention{Type: model.EntityTypePerson, RawText: "Gunilla Westerberg"}
	fresh := &model.Mention{
		Type:       model.EntityTypePerson,
		RawText:    "Ottilia Brandqvist",
		Attributes: model.Attributes{model.AttributeBirthYear: 1962},
	}
	repeated := &model.Mention{
		Type:       model.EntityTypePerson,
		RawText:    "Ottilia Brandqvist",
		Attributes: model.Attributes{model.AttributeBirthYear: 1962},
	}
	for _, m := range []*model.Mention{ambiguous, fresh, repeated} {
		require.NoError(t, r.Mentions.InsertMention(m))
	}

	var batch *model.BatchResolutionResult
	t.Run("Pending mentions are resolved and written back", func(t *testing.T) {
		batch, err = r.ResolvePending(ctx, 1000)
		require.NoError(t, err)
		assert.Equal(t, 0, batch.Stats.Failures)

		decisions := map[uuid.UUID]*model.ResolutionResult{}
		for _, res := range batch.Results {
			decisions[res.MentionID] = res
		}
		require.Contains(t, decisions, ambiguous.ID)
		require.Contains(t, decisions, fresh.ID)
		require.Contains(t, decisions, repeated.ID)

		assert.Equal(t, model.DecisionPendingReview, decisions[ambiguous.ID].Decision)
		assert.Equal(t, model.DecisionNewEntity, decisions[fresh.ID].Decision)
		assert.Equal(t, model.DecisionAutoMatch, decisions[repeated.ID].Decision)
		assert.Equal(t, *decisions[fresh.ID].EntityID, *decisions[repeated.ID].EntityID)

		status, err := r.Mentions.SelectMentionStatus(fresh.ID)
		require.NoError(t, err)
		assert.Equal(t, string(model.DecisionNewEntity), status.Status)

		created, err := r.Entities.SelectEntity(*decisions[fresh.ID].EntityID)
		require.NoError(t, err)
		assert.Equal(t, "Ottilia Brandqvist", created.CanonicalName)

		_, indexed := r.Index.Entity(created.ID)
		assert.True(t, indexed)
	})

	t.Run("Resolved mentions are not picked up again", func(t *testing.T) {
		again, err := r.ResolvePending(ctx, 1000)
		require.NoError(t, err)
		for _, res := range again.Results {
			assert.NotEqual(t, fresh.ID, res.MentionID)
			assert.NotEqual(t, ambiguous.ID, res.MentionID)
		}
	})

	t.Run("Reviewer confirms the pending match", func(t *testing.T) {
		res, err := r.SubmitHumanDecision(ctx, ambiguous.ID, &reviewed.ID, true, "reviewer-7")
		require.NoError(t, err)
		assert.Equal(t, model.DecisionHumanMatch, res.Decision)
		require.NotNil(t, res.Supersedes)

		status, err := r.Mentions.SelectMentionStatus(ambiguous.ID)
		require.NoError(t, err)
		assert.Equal(t, string(model.DecisionHumanMatch), status.Status)
		assert.Equal(t, reviewed.ID, *status.EntityID)

		history, err := r.Resolutions.SelectResolutionsByMention(ambiguous.ID)
		require.NoError(t, err)
		require.Len(t, history, 2)
		assert.Equal(t, model.DecisionPendingReview, history[0].Decision)
		assert.Equal(t, history[0].ID, *history[1].Supersedes)
	})

	t.Run("Match without entity is rejected", func(t *testing.T) {
		_, err := r.SubmitHumanDecision(ctx, ambiguous.ID, nil, true, "reviewer-7")
		assert.ErrorIs(t, err, model.ErrInvalidDecision)
	})
}
