package identifier

import (
	"testing"
	"time"

	"github.com/siherrmann/resolver/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedValidator() *Validator {
	return &Validator{Now: func() time.Time {
		return time.Date(2026, time.June, 1, 0, 0, 0, 0, time.UTC)
	}}
}

func TestValidatePersonnummer(t *testing.T) {
	v := fixedValidator()

	tests := []struct {
		name       string
		raw        string
		normalized string
		kind       model.IdentifierKind
	}{
		{"Twelve digits with dash", "19800101-1231", "198001011231", model.IdentifierKindPerson},
		{"Twelve digits without separator", "198001011231", "198001011231", model.IdentifierKindPerson},
		{"Ten digits infer the last century", "800101-1231", "198001011231", model.IdentifierKindPerson},
		{"Ten digits infer this century", "121212-1212", "201212121212", model.IdentifierKindPerson},
		{"Plus separator adds a century", "121212+1212", "191212121212", model.IdentifierKindPerson},
		{"Ten digits without separator", "0101012383", "200101012383", model.IdentifierKindPerson},
		{"Whitespace is ignored", " 800101 - 1231 ", "198001011231", model.IdentifierKindPerson},
		{"Coordination number", "800161-1238", "198001611238", model.IdentifierKindCoordination},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := v.ValidatePersonnummer(tt.raw)

			require.True(t, res.Valid)
			assert.Equal(t, tt.normalized, res.Normalized)
			assert.Equal(t, tt.kind, res.Kind)
		})
	}

	invalid := []struct {
		name string
		raw  string
	}{
		{"Wrong check digit", "19800101-1234"},
		{"Impossible date", "19800230-1231"},
		{"Month thirteen", "19801301-1231"},
		{"Too short", "800101-123"},
		{"Letters", "80O101-1231"},
		{"Empty", ""},
		{"Organisation number", "556036-0793"},
	}
	for _, tt := range invalid {
		t.Run(tt.name+" is rejected", func(t *testing.T) {
			res := v.ValidatePersonnummer(tt.raw)

			assert.False(t, res.Valid)
			assert.Empty(t, res.Normalized)
		})
	}
}

func TestValidateOrganisationsnummer(t *testing.T) {
	v := fixedValidator()

	t.Run("Dashed number is normalized to ten digits", func(t *testing.T) {
		res := v.ValidateOrganisationsnummer("556036-0793")

		require.True(t, res.Valid)
		assert.Equal(t, "5560360793", res.Normalized)
		assert.Equal(t, model.IdentifierKindOrganisation, res.Kind)
	})

	t.Run("Sixteen prefix is stripped", func(t *testing.T) {
		res := v.ValidateOrganisationsnummer("16556036-0793")

		require.True(t, res.Valid)
		assert.Equal(t, "5560360793", res.Normalized)
	})

	t.Run("Wrong check digit is rejected", func(t *testing.T) {
		assert.False(t, v.ValidateOrganisationsnummer("5560360794").Valid)
	})

	t.Run("Person number is not an organisation number", func(t *testing.T) {
		assert.False(t, v.ValidateOrganisationsnummer("800101-1231").Valid)
	})
}

func TestValidate(t *testing.T) {
	v := fixedValidator()

	t.Run("Detects the identifier kind", func(t *testing.T) {
		assert.Equal(t, model.IdentifierKindOrganisation, v.Validate("202100-5406").Kind)
		assert.Equal(t, model.IdentifierKindPerson, v.Validate("19800101-1231").Kind)
		assert.Equal(t, model.IdentifierKindCoordination, v.Validate("800161-1238").Kind)
	})

	t.Run("Validation is deterministic", func(t *testing.T) {
		assert.Equal(t, v.Validate("800101-1231"), v.Validate("800101-1231"))
	})

	t.Run("Garbage is invalid", func(t *testing.T) {
		for _, raw := range []string{"abc", "12345", "-", "+1234", "0000000000000000"} {
			assert.False(t, v.Validate(raw).Valid, raw)
		}
	})
}

func TestCheck(t *testing.T) {
	v := fixedValidator()

	t.Run("Nil identifier stays absent", func(t *testing.T) {
		assert.Nil(t, v.Check(nil))
	})

	t.Run("Check returns a validated copy", func(t *testing.T) {
		raw := model.NewIdentifier("19800101-1231")

		checked := v.Check(raw)

		require.True(t, checked.IsValid())
		assert.Equal(t, "198001011231", checked.Normalized)
		assert.False(t, raw.Valid)
	})

	t.Run("Invalid identifier stays present", func(t *testing.T) {
		checked := v.Check(model.NewIdentifier("19800101-1234"))

		require.NotNil(t, checked)
		assert.False(t, checked.IsValid())
		assert.Equal(t, "19800101-1234", checked.Raw)
	})
}
