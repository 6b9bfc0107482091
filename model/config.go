package model

import (
	"fmt"
	"time"

	"github.com/siherrmann/resolver/helper"
)

// Thresholds are the three confidence bands of one entity type
type Thresholds struct {
	AutoMatch      float64 `json:"auto_match" mapstructure:"auto_match"`
	HumanReviewMin float64 `json:"human_review_min" mapstructure:"human_review_min"`
	AutoReject     float64 `json:"auto_reject" mapstructure:"auto_reject"`
}

// Validate checks 0 <= auto_reject <= human_review_min <= auto_match <= 1
func (t Thresholds) Validate() error {
	if t.AutoReject < 0 || t.AutoMatch > 1 {
		return fmt.Errorf("%w: values must be within [0,1]", ErrInvalidThresholds)
	}
	if t.AutoMatch < t.HumanReviewMin || t.HumanReviewMin < t.AutoReject {
		return fmt.Errorf("%w: auto_match %.2f >= human_review_min %.2f >= auto_reject %.2f does not hold", ErrInvalidThresholds, t.AutoMatch, t.HumanReviewMin, t.AutoReject)
	}
	return nil
}

// Weights are the feature weights of one entity type.
// A zero weight ignores the feature.
type Weights struct {
	Identifier   float64 `json:"identifier" mapstructure:"identifier"`
	Name         float64 `json:"name" mapstructure:"name"`
	TokenOverlap float64 `json:"token_overlap" mapstructure:"token_overlap"`
	Phonetic     float64 `json:"phonetic" mapstructure:"phonetic"`
	LegalForm    float64 `json:"legal_form" mapstructure:"legal_form"`
	BirthYear    float64 `json:"birth_year" mapstructure:"birth_year"`
	PostalCode   float64 `json:"postal_code" mapstructure:"postal_code"`
	// NameOnlyCeiling caps the score when nothing but names support the match.
	NameOnlyCeiling float64 `json:"name_only_ceiling" mapstructure:"name_only_ceiling"`
}

// For returns the weight of a feature
func (w Weights) For(f Feature) float64 {
	switch f {
	case FeatureIdentifier:
		return w.Identifier
	case FeatureName:
		return w.Name
	case FeatureTokenOverlap:
		return w.TokenOverlap
	case FeaturePhonetic:
		return w.Phonetic
	case FeatureLegalForm:
		return w.LegalForm
	case FeatureBirthYear:
		return w.BirthYear
	case FeaturePostalCode:
		return w.PostalCode
	}
	return 0
}

// Validate rejects negative weights and ceilings outside (0,1]
func (w Weights) Validate() error {
	for _, f := range Features {
		if w.For(f) < 0 {
			return fmt.Errorf("%w: weight of %s is negative", ErrInvalidWeights, f)
		}
	}
	if w.NameOnlyCeiling <= 0 || w.NameOnlyCeiling > 1 {
		return fmt.Errorf("%w: name only ceiling %.2f not within (0,1]", ErrInvalidWeights, w.NameOnlyCeiling)
	}
	return nil
}

// DefaultThresholds returns the default bands per entity type
func DefaultThresholds() map[EntityType]Thresholds {
	return map[EntityType]Thresholds{
		EntityTypePerson:  {AutoMatch: 0.95, HumanReviewMin: 0.60, AutoReject: 0.60},
		EntityTypeCompany: {AutoMatch: 0.95, HumanReviewMin: 0.60, AutoReject: 0.60},
		EntityTypeAddress: {AutoMatch: 0.90, HumanReviewMin: 0.50, AutoReject: 0.50},
	}
}

// DefaultWeights returns the default feature weights per entity type
func DefaultWeights() map[EntityType]Weights {
	return map[EntityType]Weights{
		EntityTypePerson: {
			Identifier:      0.60,
			Name:            0.45,
			TokenOverlap:    0.15,
			Phonetic:        0.10,
			BirthYear:       0.30,
			PostalCode:      0.05,
			NameOnlyCeiling: 0.90,
		},
		EntityTypeCompany: {
			Identifier:      0.60,
			Name:            0.50,
			TokenOverlap:    0.15,
			Phonetic:        0.10,
			LegalForm:       0.25,
			PostalCode:      0.05,
			NameOnlyCeiling: 1.0,
		},
		EntityTypeAddress: {
			Name:            0.50,
			TokenOverlap:    0.20,
			PostalCode:      0.30,
			NameOnlyCeiling: 1.0,
		},
	}
}

// ResolverConfig configures an entity resolver session
type ResolverConfig struct {
	Thresholds map[EntityType]Thresholds `json:"thresholds"`
	Weights    map[EntityType]Weights    `json:"weights"`

	// Clustering
	MinClusterConfidence float64 `json:"min_cluster_confidence"`
	LinkWithinBatch      bool    `json:"link_within_batch"` // Match new mentions against earlier mentions of the batch

	// Scoring
	TopN               int `json:"top_n"` // Candidates kept on a result for audit
	ScoringWorkers     int `json:"scoring_workers"`
	ParallelScoringMin int `json:"parallel_scoring_min"` // Below this many candidates scoring stays sequential

	// Exact identifier path
	CreateOnExactMiss bool          `json:"create_on_exact_miss"`
	ExactTimeout      time.Duration `json:"exact_timeout"`
	ExactRetries      int           `json:"exact_retries"`
}

// DefaultResolverConfig returns a configuration with the default bands and weights
func DefaultResolverConfig() ResolverConfig {
	return ResolverConfig{
		Thresholds:           DefaultThresholds(),
		Weights:              DefaultWeights(),
		MinClusterConfidence: 0.60,
		LinkWithinBatch:      true,
		TopN:                 5,
		ScoringWorkers:       4,
		ParallelScoringMin:   16,
		CreateOnExactMiss:    true,
		ExactTimeout:         5 * time.Second,
		ExactRetries:         3,
	}
}

// ThresholdsFor returns the configured bands, falling back to the defaults
func (c ResolverConfig) ThresholdsFor(t EntityType) Thresholds {
	if th, ok := c.Thresholds[t]; ok {
		return th
	}
	return DefaultThresholds()[t]
}

// WeightsFor returns the configured weights, falling back to the defaults
func (c ResolverConfig) WeightsFor(t EntityType) Weights {
	if w, ok := c.Weights[t]; ok {
		return w
	}
	return DefaultWeights()[t]
}

// Validate checks every entity type's bands and weights and the scalar settings
func (c ResolverConfig) Validate() error {
	for _, t := range EntityTypes {
		if err := c.ThresholdsFor(t).Validate(); err != nil {
			return helper.NewError(fmt.Sprintf("validate %s thresholds", t), err)
		}
		if err := c.WeightsFor(t).Validate(); err != nil {
			return helper.NewError(fmt.Sprintf("validate %s weights", t), err)
		}
	}
	for t := range c.Thresholds {
		if !t.Valid() {
			return helper.NewError("validate thresholds", fmt.Errorf("%w: unknown entity type %q", ErrInvalidThresholds, t))
		}
	}
	if c.MinClusterConfidence < 0 || c.MinClusterConfidence > 1 {
		return helper.NewError("validate config", fmt.Errorf("min cluster confidence %.2f not within [0,1]", c.MinClusterConfidence))
	}
	if c.TopN < 0 || c.ScoringWorkers < 0 || c.ParallelScoringMin < 0 || c.ExactRetries < 0 || c.ExactTimeout < 0 {
		return helper.NewError("validate config", fmt.Errorf("negative numeric setting"))
	}
	return nil
}
