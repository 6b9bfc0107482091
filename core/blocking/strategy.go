package blocking

import (
	"strconv"
	"strings"
	"unicode"

	"github.com/antzucaro/matchr"
	"github.com/siherrmann/resolver/core/compare"
	"github.com/siherrmann/resolver/model"
)

// Strategy derives blocking keys for entities and mentions.
// Entities and mentions sharing a key become candidates of each other.
type Strategy interface {
	Name() model.BlockingStrategy
	EntityKeys(entity *model.CandidateEntity) []model.BlockingKey
	MentionKeys(mention *model.Mention) []model.BlockingKey
}

// DefaultStrategies returns every built in strategy
func DefaultStrategies() []Strategy {
	return []Strategy{
		IdentifierStrategy{},
		PhoneticStrategy{},
		PrefixBirthYearStrategy{},
		PostalPrefixStrategy{},
		TokenStrategy{},
	}
}

// stopWords are tokens too common to block on
var stopWords = map[string]struct{}{
	"och": {}, "and": {}, "the": {}, "for": {}, "med": {},
	"von": {}, "van": {}, "der": {}, "den": {}, "det": {},
}

// significantTokens drops short tokens and stop words
func significantTokens(tokens []string) []string {
	var out []string
	for _, t := range tokens {
		if len(t) <= 2 {
			continue
		}
		if _, stop := stopWords[t]; stop {
			continue
		}
		out = append(out, t)
	}
	return out
}

func key(strategy model.BlockingStrategy, value string, entityType model.EntityType) model.BlockingKey {
	return model.BlockingKey{Strategy: strategy, Value: value, EntityType: entityType}
}

// IdentifierStrategy blocks on normalized national identifiers
type IdentifierStrategy struct{}

func (IdentifierStrategy) Name() model.BlockingStrategy { return model.BlockingIdentifier }

func (s IdentifierStrategy) EntityKeys(entity *model.CandidateEntity) []model.BlockingKey {
	var keys []model.BlockingKey
	for _, t := range []model.IdentifierType{model.IdentifierTypePersonnummer, model.IdentifierTypeOrganisationsnummer} {
		if v, ok := entity.Identifier(t); ok {
			keys = append(keys, key(s.Name(), string(t)+":"+v, entity.Type))
		}
	}
	return keys
}

// MentionKeys only uses identifiers that passed validation
func (s IdentifierStrategy) MentionKeys(mention *model.Mention) []model.BlockingKey {
	var keys []model.BlockingKey
	for _, id := range mention.Identifiers() {
		if id.IsValid() {
			keys = append(keys, key(s.Name(), string(id.Kind.Type())+":"+id.Normalized, mention.Type))
		}
	}
	return keys
}

// PhoneticStrategy blocks on Double Metaphone codes of the significant name
// tokens. Names without a code fall back to a literal prefix.
type PhoneticStrategy struct{}

func (PhoneticStrategy) Name() model.BlockingStrategy { return model.BlockingPhonetic }

func (s PhoneticStrategy) EntityKeys(entity *model.CandidateEntity) []model.BlockingKey {
	return s.keys(entity.CanonicalName, entity.Type)
}

func (s PhoneticStrategy) MentionKeys(mention *model.Mention) []model.BlockingKey {
	return s.keys(mention.Name(), mention.Type)
}

func (s PhoneticStrategy) keys(name string, entityType model.EntityType) []model.BlockingKey {
	n := compare.Normalize(name, entityType)
	tokens := significantTokens(n.Tokens)
	if len(tokens) == 0 {
		tokens = n.Tokens
	}

	seen := map[string]struct{}{}
	var keys []model.BlockingKey
	for _, t := range tokens {
		primary, secondary := metaphone(t)
		for _, code := range []string{primary, secondary} {
			if code == "" {
				continue
			}
			if _, ok := seen[code]; ok {
				continue
			}
			seen[code] = struct{}{}
			keys = append(keys, key(s.Name(), code, entityType))
		}
	}
	if len(keys) > 0 {
		return keys
	}

	if prefix := literalPrefix(name); prefix != "" {
		return []model.BlockingKey{key(s.Name(), "lit:"+prefix, entityType)}
	}
	return nil
}

// metaphone returns no codes instead of panicking on input the encoder rejects
func metaphone(token string) (primary, secondary string) {
	defer func() {
		if recover() != nil {
			primary, secondary = "", ""
		}
	}()
	return matchr.DoubleMetaphone(strings.ToUpper(token))
}

// literalPrefix is the first four letters or digits of a name, upper cased
func literalPrefix(name string) string {
	var b strings.Builder
	count := 0
	for _, r := range compare.Fold(name) {
		if count == 4 {
			break
		}
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(unicode.ToUpper(r))
			count++
		}
	}
	return b.String()
}

// PrefixBirthYearStrategy blocks persons on name prefix and birth year
type PrefixBirthYearStrategy struct{}

func (PrefixBirthYearStrategy) Name() model.BlockingStrategy { return model.BlockingPrefixBirthYear }

func (s PrefixBirthYearStrategy) EntityKeys(entity *model.CandidateEntity) []model.BlockingKey {
	return s.keys(entity.CanonicalName, entity.Type, entity.Attributes)
}

func (s PrefixBirthYearStrategy) MentionKeys(mention *model.Mention) []model.BlockingKey {
	return s.keys(mention.Name(), mention.Type, mention.Attributes)
}

func (s PrefixBirthYearStrategy) keys(name string, entityType model.EntityType, attrs model.Attributes) []model.BlockingKey {
	if entityType != model.EntityTypePerson {
		return nil
	}
	year, ok := attrs.BirthYear()
	if !ok {
		return nil
	}
	prefix := literalPrefix(compare.Normalize(name, entityType).Text)
	if prefix == "" {
		return nil
	}
	return []model.BlockingKey{key(s.Name(), prefix+"|"+strconv.Itoa(year), entityType)}
}

// PostalPrefixStrategy blocks addresses on the first three postal code digits
type PostalPrefixStrategy struct{}

func (PostalPrefixStrategy) Name() model.BlockingStrategy { return model.BlockingPostalPrefix }

func (s PostalPrefixStrategy) EntityKeys(entity *model.CandidateEntity) []model.BlockingKey {
	return s.keys(entity.Type, entity.Attributes)
}

func (s PostalPrefixStrategy) MentionKeys(mention *model.Mention) []model.BlockingKey {
	return s.keys(mention.Type, mention.Attributes)
}

func (s PostalPrefixStrategy) keys(entityType model.EntityType, attrs model.Attributes) []model.BlockingKey {
	if entityType != model.EntityTypeAddress {
		return nil
	}
	code, ok := attrs.PostalCode()
	if !ok || len(code) < 3 {
		return nil
	}
	return []model.BlockingKey{key(s.Name(), code[:3], entityType)}
}

// TokenStrategy blocks on significant normalized name tokens
type TokenStrategy struct{}

func (TokenStrategy) Name() model.BlockingStrategy { return model.BlockingToken }

func (s TokenStrategy) EntityKeys(entity *model.CandidateEntity) []model.BlockingKey {
	return s.keys(entity.CanonicalName, entity.Type)
}

func (s TokenStrategy) MentionKeys(mention *model.Mention) []model.BlockingKey {
	return s.keys(mention.Name(), mention.Type)
}

func (s TokenStrategy) keys(name string, entityType model.EntityType) []model.BlockingKey {
	var keys []model.BlockingKey
	seen := map[string]struct{}{}
	for _, t := range significantTokens(compare.Normalize(name, entityType).Tokens) {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		keys = append(keys, key(s.Name(), t, entityType))
	}
	return keys
}
