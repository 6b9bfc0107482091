package model

// Feature names one similarity measurement of a (mention, candidate) pair
type Feature string

const (
	FeatureIdentifier   Feature = "identifier"
	FeatureName         Feature = "name"
	FeatureTokenOverlap Feature = "token_overlap"
	FeaturePhonetic     Feature = "phonetic"
	FeatureLegalForm    Feature = "legal_form"
	FeatureBirthYear    Feature = "birth_year"
	FeaturePostalCode   Feature = "postal_code"
)

// Features lists every feature in a fixed order
var Features = []Feature{
	FeatureIdentifier,
	FeatureName,
	FeatureTokenOverlap,
	FeaturePhonetic,
	FeatureLegalForm,
	FeatureBirthYear,
	FeaturePostalCode,
}

// FeatureScores holds values in [0,1]. A missing key is neutral.
type FeatureScores map[Feature]float64

// Get returns the feature value and whether it is present
func (f FeatureScores) Get(feature Feature) (float64, bool) {
	v, ok := f[feature]
	return v, ok
}

// BlockingStrategy tags the kind of a blocking key
type BlockingStrategy string

const (
	BlockingIdentifier      BlockingStrategy = "identifier"
	BlockingPhonetic        BlockingStrategy = "phonetic"
	BlockingPrefixBirthYear BlockingStrategy = "prefix_birth_year"
	BlockingPostalPrefix    BlockingStrategy = "postal_prefix"
	BlockingToken           BlockingStrategy = "token"
)

// BlockingKey is a derived index key, never persisted
type BlockingKey struct {
	Strategy   BlockingStrategy `json:"strategy"`
	Value      string           `json:"value"`
	EntityType EntityType       `json:"entity_type"`
}

// IndexStats reports the size of a blocking index per strategy
type IndexStats struct {
	Entities int                      `json:"entities"`
	Keys     map[BlockingStrategy]int `json:"keys"`
	Postings map[BlockingStrategy]int `json:"postings"`
}
