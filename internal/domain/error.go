package domain

import "errors"

var (
	// Common domain errors
	ErrNotFound           = errors.New("entity not found")
	ErrAlreadyExists      = errors.New("entity already exists")
	ErrInvalidArgument    = errors.New("invalid argument")
	ErrInvalidTransition  = errors.New("invalid state transition")
	ErrUnknownTier        = errors.New("unknown analysis tier")
	ErrCircuitOpen        = errors.New("circuit breaker is open")
	ErrStoreUnavailable   = errors.New("durable store unavailable")
	ErrReadDatabaseRow    = errors.New("failed to read database row")
	ErrInvalidExecContext = errors.New("invalid execution context for query")
)
