package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/siherrmann/resolver/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, name string, content string) string {
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadConfig(t *testing.T) {
	t.Run("Defaults without file", func(t *testing.T) {
		config, err := loadConfig("")
		require.NoError(t, err)
		assert.Equal(t, model.DefaultResolverConfig(), *config)
	})

	t.Run("File overrides defaults", func(t *testing.T) {
		path := writeConfig(t, "resolver.yaml", `
top_n: 3
link_within_batch: false
exact_timeout: 2s
thresholds:
  person:
    auto_match: 0.97
    human_review_min: 0.70
    auto_reject: 0.40
weights:
  company:
    legal_form: 0.5
`)
		config, err := loadConfig(path)
		require.NoError(t, err)
		assert.Equal(t, 3, config.TopN)
		assert.False(t, config.LinkWithinBatch)
		assert.Equal(t, 2*time.Second, config.ExactTimeout)
		assert.Equal(t, model.Thresholds{AutoMatch: 0.97, HumanReviewMin: 0.70, AutoReject: 0.40}, config.ThresholdsFor(model.EntityTypePerson))
		assert.Equal(t, 0.5, config.WeightsFor(model.EntityTypeCompany).LegalForm)
		assert.Equal(t, 0.60, config.WeightsFor(model.EntityTypeCompany).Identifier, "unset weights keep their default")
	})

	t.Run("Environment overrides file", func(t *testing.T) {
		path := writeConfig(t, "resolver.yaml", "scoring_workers: 8\n")
		t.Setenv("RESOLVER_SCORING_WORKERS", "2")
		t.Setenv("RESOLVER_THRESHOLDS_ADDRESS_AUTO_MATCH", "0.99")

		config, err := loadConfig(path)
		require.NoError(t, err)
		assert.Equal(t, 2, config.ScoringWorkers)
		assert.Equal(t, 0.99, config.ThresholdsFor(model.EntityTypeAddress).AutoMatch)
	})

	t.Run("Non monotonic thresholds are rejected", func(t *testing.T) {
		path := writeConfig(t, "resolver.yaml", `
thresholds:
  company:
    auto_match: 0.50
    human_review_min: 0.70
    auto_reject: 0.40
`)
		_, err := loadConfig(path)
		require.Error(t, err)
		assert.ErrorIs(t, err, model.ErrInvalidThresholds)
	})

	t.Run("Missing file fails", func(t *testing.T) {
		_, err := loadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
		assert.Error(t, err)
	})
}

func TestParseMentions(t *testing.T) {
	t.Run("Parse mentions with identifiers and attributes", func(t *testing.T) {
		input := `[
			{"mention_type": "person", "raw_text": "Karin Lindgren", "personnummer": "19800101-1234", "attributes": {"birth_year": 1980}},
			{"id": "6f1c2a4e-0c7b-4d8e-9a51-2b3c4d5e6f70", "mention_type": "COMPANY", "raw_text": "Volvo AB", "organisationsnummer": "556036-0793", "source": "registry"}
		]`

		mentions, err := parseMentions(strings.NewReader(input))
		require.NoError(t, err)
		require.Len(t, mentions, 2)

		assert.Equal(t, model.EntityTypePerson, mentions[0].Type)
		require.NotNil(t, mentions[0].Personnummer)
		assert.Equal(t, "19800101-1234", mentions[0].Personnummer.Raw)
		assert.False(t, mentions[0].Personnummer.Valid, "validation happens during resolution")
		assert.Nil(t, mentions[0].Organisationsnummer)
		assert.Equal(t, float64(1980), mentions[0].Attributes["birth_year"])

		assert.Equal(t, "6f1c2a4e-0c7b-4d8e-9a51-2b3c4d5e6f70", mentions[1].ID.String())
		assert.Equal(t, "registry", mentions[1].Provenance.Source)
		require.NotNil(t, mentions[1].Organisationsnummer)
	})

	t.Run("Missing raw text fails", func(t *testing.T) {
		_, err := parseMentions(strings.NewReader(`[{"mention_type": "PERSON"}]`))
		assert.Error(t, err)
	})

	t.Run("Invalid JSON fails", func(t *testing.T) {
		_, err := parseMentions(strings.NewReader(`{`))
		assert.Error(t, err)
	})
}
