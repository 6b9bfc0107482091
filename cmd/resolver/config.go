package main

import (
	"fmt"
	"strings"

	"github.com/siherrmann/resolver/model"
	"github.com/spf13/viper"
)

// SetDefaults registers every resolver setting with its default value.
// Keys are lower case, per entity type settings live under
// thresholds.<type> and weights.<type>.
func SetDefaults(v *viper.Viper) {
	defaults := model.DefaultResolverConfig()

	v.SetDefault("min_cluster_confidence", defaults.MinClusterConfidence)
	v.SetDefault("link_within_batch", defaults.LinkWithinBatch)
	v.SetDefault("top_n", defaults.TopN)
	v.SetDefault("scoring_workers", defaults.ScoringWorkers)
	v.SetDefault("parallel_scoring_min", defaults.ParallelScoringMin)
	v.SetDefault("create_on_exact_miss", defaults.CreateOnExactMiss)
	v.SetDefault("exact_timeout", defaults.ExactTimeout)
	v.SetDefault("exact_retries", defaults.ExactRetries)

	for _, t := range model.EntityTypes {
		th := defaults.ThresholdsFor(t)
		prefix := "thresholds." + typeKey(t) + "."
		v.SetDefault(prefix+"auto_match", th.AutoMatch)
		v.SetDefault(prefix+"human_review_min", th.HumanReviewMin)
		v.SetDefault(prefix+"auto_reject", th.AutoReject)

		w := defaults.WeightsFor(t)
		prefix = "weights." + typeKey(t) + "."
		for _, f := range model.Features {
			v.SetDefault(prefix+string(f), w.For(f))
		}
		v.SetDefault(prefix+"name_only_ceiling", w.NameOnlyCeiling)
	}
}

func typeKey(t model.EntityType) string {
	return strings.ToLower(string(t))
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix("RESOLVER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	SetDefaults(v)
	return v
}

// loadConfig reads the optional config file over the defaults, with
// RESOLVER_* environment variables taking precedence over both.
func loadConfig(path string) (*model.ResolverConfig, error) {
	v := newViper()
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}

	config := configFromViper(v)
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// configFromViper reads the per type maps key by key since viper lower
// cases map keys while entity types are upper case.
func configFromViper(v *viper.Viper) *model.ResolverConfig {
	config := &model.ResolverConfig{
		Thresholds:           map[model.EntityType]model.Thresholds{},
		Weights:              map[model.EntityType]model.Weights{},
		MinClusterConfidence: v.GetFloat64("min_cluster_confidence"),
		LinkWithinBatch:      v.GetBool("link_within_batch"),
		TopN:                 v.GetInt("top_n"),
		ScoringWorkers:       v.GetInt("scoring_workers"),
		ParallelScoringMin:   v.GetInt("parallel_scoring_min"),
		CreateOnExactMiss:    v.GetBool("create_on_exact_miss"),
		ExactTimeout:         v.GetDuration("exact_timeout"),
		ExactRetries:         v.GetInt("exact_retries"),
	}

	for _, t := range model.EntityTypes {
		prefix := "thresholds." + typeKey(t) + "."
		config.Thresholds[t] = model.Thresholds{
			AutoMatch:      v.GetFloat64(prefix + "auto_match"),
			HumanReviewMin: v.GetFloat64(prefix + "human_review_min"),
			AutoReject:     v.GetFloat64(prefix + "auto_reject"),
		}

		prefix = "weights." + typeKey(t) + "."
		config.Weights[t] = model.Weights{
			Identifier:      v.GetFloat64(prefix + string(model.FeatureIdentifier)),
			Name:            v.GetFloat64(prefix + string(model.FeatureName)),
			TokenOverlap:    v.GetFloat64(prefix + string(model.FeatureTokenOverlap)),
			Phonetic:        v.GetFloat64(prefix + string(model.FeaturePhonetic)),
			LegalForm:       v.GetFloat64(prefix + string(model.FeatureLegalForm)),
			BirthYear:       v.GetFloat64(prefix + string(model.FeatureBirthYear)),
			PostalCode:      v.GetFloat64(prefix + string(model.FeaturePostalCode)),
			NameOnlyCeiling: v.GetFloat64(prefix + "name_only_ceiling"),
		}
	}

	return config
}
