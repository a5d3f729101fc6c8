package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound signals a missing resource (profile, advisor, institution).
	ErrNotFound = errors.New("not found")
	// ErrValidation signals malformed input: bad vector dimension, bad filter.
	ErrValidation = errors.New("validation failed")
	// ErrNoEmbeddableContent signals a profile with no text to embed.
	ErrNoEmbeddableContent = errors.New("profile has no embeddable content")
	// ErrProviderUnavailable signals an embedding provider failure.
	ErrProviderUnavailable = errors.New("embedding provider unavailable")
	// ErrStoreFailure signals a relational store I/O failure.
	ErrStoreFailure = errors.New("store failure")
	// ErrIndexCorruption signals a vector/mapping count mismatch on index load.
	ErrIndexCorruption = errors.New("vector index corrupted")
	// ErrUpstreamFailure signals a non-success response or malformed payload
	// from the external bibliographic feed.
	ErrUpstreamFailure = errors.New("upstream feed failure")
)

// DimensionError wraps ErrValidation with the expected and actual vector sizes.
type DimensionError struct {
	Want int
	Got  int
}

func (e *DimensionError) Error() string {
	return fmt.Sprintf("%s: vector dimension %d, index expects %d", ErrValidation.Error(), e.Got, e.Want)
}

func (e *DimensionError) Unwrap() error { return ErrValidation }

// NewDimensionError creates a vector dimension mismatch error.
func NewDimensionError(want, got int) error {
	return &DimensionError{Want: want, Got: got}
}
