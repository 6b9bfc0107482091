package model

import (
	"time"

	"github.com/google/uuid"
)

// Decision is the outcome of resolving one mention
type Decision string

const (
	DecisionAutoMatch     Decision = "AUTO_MATCH"
	DecisionAutoReject    Decision = "AUTO_REJECT"
	DecisionHumanMatch    Decision = "HUMAN_MATCH"
	DecisionHumanReject   Decision = "HUMAN_REJECT"
	DecisionPendingReview Decision = "PENDING_REVIEW"
	DecisionNewEntity     Decision = "NEW_ENTITY"
)

// StatusUnresolved marks a stored mention no result was written for yet
const StatusUnresolved = "UNRESOLVED"

// ResolvedBySystem is the resolver identity of automatic decisions
const ResolvedBySystem = "system"

// CandidateScore is one scored candidate kept for audit
type CandidateScore struct {
	EntityID uuid.UUID     `json:"entity_id"`
	Name     string        `json:"name"`
	Score    float64       `json:"score"`
	Features FeatureScores `json:"features,omitempty"`
}

// ResolutionResult is the immutable decision for one mention.
// Overrides are new results pointing at the one they supersede.
type ResolutionResult struct {
	ID          uuid.UUID        `json:"id"`
	MentionID   uuid.UUID        `json:"mention_id"`
	Decision    Decision         `json:"decision"`
	EntityID    *uuid.UUID       `json:"entity_id,omitempty"`
	Score       float64          `json:"score"`
	Candidates  []CandidateScore `json:"candidates,omitempty"`
	IsNewEntity bool             `json:"is_new_entity"`
	ExactMatch  bool             `json:"exact_match"`
	ResolvedAt  time.Time        `json:"resolved_at"`
	ResolvedBy  string           `json:"resolved_by"`
	Reason      string           `json:"reason,omitempty"`
	Supersedes  *uuid.UUID       `json:"supersedes,omitempty"`
}

// BatchStats are the counters of one batch run
type BatchStats struct {
	Mentions      int `json:"mentions"`
	AutoMatched   int `json:"auto_matched"`
	AutoRejected  int `json:"auto_rejected"`
	PendingReview int `json:"pending_review"`
	NewEntities   int `json:"new_entities"`
	ExactMatches  int `json:"exact_matches"`
	Clusters      int `json:"clusters"`
	Orphans       int `json:"orphans"`
	Candidates    int `json:"candidates"`
	Failures      int `json:"failures"`
}

// Count adds one result to the decision counters
func (s *BatchStats) Count(r *ResolutionResult) {
	s.Mentions++
	s.Candidates += len(r.Candidates)
	if r.ExactMatch {
		s.ExactMatches++
	}
	switch r.Decision {
	case DecisionAutoMatch, DecisionHumanMatch:
		s.AutoMatched++
	case DecisionAutoReject, DecisionHumanReject:
		s.AutoRejected++
	case DecisionPendingReview:
		s.PendingReview++
	case DecisionNewEntity:
		s.NewEntities++
	}
}

// BatchResolutionResult is everything one batch run produced
type BatchResolutionResult struct {
	Results  []*ResolutionResult `json:"results"`
	Clusters []MentionCluster    `json:"clusters"`
	Orphans  []uuid.UUID         `json:"orphans,omitempty"`
	Stats    BatchStats          `json:"stats"`
	Duration time.Duration       `json:"duration"`
}
