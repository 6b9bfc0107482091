package compare

import (
	"math"
	"strings"

	"github.com/agnivade/levenshtein"
	"github.com/antzucaro/matchr"
	"github.com/siherrmann/resolver/model"
)

// Comparator computes feature scores for (mention, candidate) pairs and
// reduces them with per entity type weights. It is safe for concurrent use.
type Comparator struct {
	weights map[model.EntityType]model.Weights
}

// NewComparator creates a Comparator. Entity types missing from weights use
// model.DefaultWeights.
func NewComparator(weights map[model.EntityType]model.Weights) *Comparator {
	merged := model.DefaultWeights()
	for t, w := range weights {
		merged[t] = w
	}
	return &Comparator{weights: merged}
}

// Compare computes and scores the features of one pair
func (c *Comparator) Compare(mention *model.Mention, candidate *model.CandidateEntity) model.CandidateScore {
	features := c.ComputeFeatures(mention, candidate)
	return model.CandidateScore{
		EntityID: candidate.ID,
		Name:     candidate.CanonicalName,
		Score:    c.ScoreFeatures(features, mention.Type),
		Features: features,
	}
}

// ComputeFeatures measures the similarity of a mention and a candidate.
// Features that can not be measured because data is missing on either side
// are left out.
func (c *Comparator) ComputeFeatures(mention *model.Mention, candidate *model.CandidateEntity) model.FeatureScores {
	features := model.FeatureScores{}

	if v, ok := identifierEquality(mention, candidate); ok {
		features[model.FeatureIdentifier] = v
	}

	a := Normalize(mention.Name(), mention.Type)
	b := Normalize(candidate.CanonicalName, mention.Type)
	if len(a.Tokens) > 0 && len(b.Tokens) > 0 {
		features[model.FeatureName] = NameSimilarity(a, b)
		features[model.FeatureTokenOverlap] = TokenOverlap(a.Tokens, b.Tokens)
		features[model.FeaturePhonetic] = PhoneticOverlap(a.Tokens, b.Tokens)
	}

	switch mention.Type {
	case model.EntityTypeCompany:
		if a.LegalForm != "" && b.LegalForm != "" {
			features[model.FeatureLegalForm] = boolScore(a.LegalForm == b.LegalForm)
		}
	case model.EntityTypePerson:
		if v, ok := birthYearSimilarity(mention.Attributes, candidate.Attributes); ok {
			features[model.FeatureBirthYear] = v
		}
	case model.EntityTypeAddress:
	}

	if v, ok := postalSimilarity(mention.Attributes, candidate.Attributes); ok {
		features[model.FeaturePostalCode] = v
	}

	return features
}

// ScoreFeatures reduces features to a confidence in [0,1].
// An identifier equality of 1 gives exactly 1. Otherwise the score is the
// weighted mean of the present features, capped by the name only ceiling
// when no agreeing identifier, birth year or postal code backs the names.
func (c *Comparator) ScoreFeatures(features model.FeatureScores, entityType model.EntityType) float64 {
	if v, ok := features.Get(model.FeatureIdentifier); ok && v >= 1 {
		return 1.0
	}

	weights, ok := c.weights[entityType]
	if !ok {
		return 0
	}

	var sum, total float64
	corroborated := false
	for _, f := range model.Features {
		v, ok := features.Get(f)
		w := weights.For(f)
		if !ok || w <= 0 {
			continue
		}
		sum += w * clamp(v)
		total += w

		switch f {
		case model.FeatureIdentifier, model.FeatureBirthYear, model.FeaturePostalCode:
			// Contradicting evidence does not lift the ceiling.
			if v > 0 {
				corroborated = true
			}
		}
	}
	if total == 0 {
		return 0
	}

	score := sum / total
	if !corroborated && score > weights.NameOnlyCeiling {
		score = weights.NameOnlyCeiling
	}
	return clamp(score)
}

// identifierEquality compares the identifiers both sides hold.
// Any equal pair gives 1, otherwise 0 when at least one pair was comparable.
func identifierEquality(mention *model.Mention, candidate *model.CandidateEntity) (float64, bool) {
	compared := false
	for _, id := range mention.Identifiers() {
		if !id.IsValid() {
			continue
		}
		value, ok := candidate.Identifier(id.Kind.Type())
		if !ok {
			continue
		}
		if value == id.Normalized {
			return 1, true
		}
		compared = true
	}
	return 0, compared
}

// NameSimilarity is the Jaro-Winkler similarity of the normalized names,
// taking the better of the given and the sorted token order.
func NameSimilarity(a, b Normalized) float64 {
	if a.Text == b.Text || a.Sorted() == b.Sorted() {
		return 1
	}
	direct := matchr.JaroWinkler(a.Text, b.Text, false)
	sorted := matchr.JaroWinkler(a.Sorted(), b.Sorted(), false)
	return clamp(math.Max(direct, sorted))
}

// TokenOverlap is a Jaccard index where tokens of five or more characters
// also match with an edit distance of one.
func TokenOverlap(a, b []string) float64 {
	matches := greedyMatches(a, b, func(x, y string) bool {
		if x == y {
			return true
		}
		if len(x) < 5 || len(y) < 5 {
			return false
		}
		return levenshtein.ComputeDistance(x, y) <= 1
	})
	union := len(a) + len(b) - matches
	if union == 0 {
		return 0
	}
	return float64(matches) / float64(union)
}

// PhoneticOverlap is the Dice coefficient of tokens sharing a Double Metaphone code
func PhoneticOverlap(a, b []string) float64 {
	if len(a)+len(b) == 0 {
		return 0
	}
	ca, cb := phoneticCodes(a), phoneticCodes(b)
	matches := greedyMatches(ca, cb, func(x, y string) bool {
		xp, xs, _ := strings.Cut(x, "|")
		yp, ys, _ := strings.Cut(y, "|")
		return xp == yp || xp == ys || xs == yp || (xs != "" && xs == ys)
	})
	return 2 * float64(matches) / float64(len(a)+len(b))
}

// phoneticCodes encodes each token as "primary|secondary". Tokens without a
// code (digits) fall back to the token itself.
func phoneticCodes(tokens []string) []string {
	codes := make([]string, len(tokens))
	for i, t := range tokens {
		primary, secondary := matchr.DoubleMetaphone(strings.ToUpper(t))
		if primary == "" {
			primary = "=" + t
		}
		if secondary == primary {
			secondary = ""
		}
		codes[i] = primary + "|" + secondary
	}
	return codes
}

// greedyMatches pairs every token of a with the first unused matching token of b
func greedyMatches(a, b []string, match func(x, y string) bool) int {
	used := make([]bool, len(b))
	matches := 0
	for _, x := range a {
		for j, y := range b {
			if !used[j] && match(x, y) {
				used[j] = true
				matches++
				break
			}
		}
	}
	return matches
}

func birthYearSimilarity(a, b model.Attributes) (float64, bool) {
	ya, okA := a.BirthYear()
	yb, okB := b.BirthYear()
	if !okA || !okB {
		return 0, false
	}
	switch diff := ya - yb; {
	case diff == 0:
		return 1, true
	case diff == 1 || diff == -1:
		return 0.5, true
	}
	return 0, true
}

func postalSimilarity(a, b model.Attributes) (float64, bool) {
	pa, okA := a.PostalCode()
	pb, okB := b.PostalCode()
	if !okA || !okB {
		return 0, false
	}
	if pa == pb {
		return 1, true
	}
	if len(pa) >= 3 && len(pb) >= 3 && pa[:3] == pb[:3] {
		return 0.5, true
	}
	return 0, true
}

func boolScore(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

func clamp(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
