package model

import "errors"

var (
	// ErrInvalidIdentifier is returned for identifiers failing format or checksum checks
	ErrInvalidIdentifier = errors.New("invalid identifier")
	// ErrNoIdentifier is returned when a mention carries no identifier to resolve by
	ErrNoIdentifier = errors.New("mention has no identifier")
	// ErrIndexUnavailable is returned when the blocking index was never set up
	ErrIndexUnavailable = errors.New("blocking index unavailable")
	// ErrStoreUnavailable is returned when an operation needs an entity store that is missing
	ErrStoreUnavailable = errors.New("entity store unavailable")
	// ErrConcurrentIdentifierConflict is returned by stores when a concurrent writer created the identifier first
	ErrConcurrentIdentifierConflict = errors.New("concurrent identifier conflict")
	ErrInvalidThresholds            = errors.New("invalid thresholds")
	ErrInvalidWeights               = errors.New("invalid weights")
	ErrInvalidDecision              = errors.New("invalid decision")
	ErrEntityNotFound               = errors.New("entity not found")
	ErrMentionNotFound              = errors.New("mention not found")
)
