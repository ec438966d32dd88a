package errors

import "errors"

// Sentinel errors shared across the storage and serving packages.
var (
	// ErrNotFound indicates that a requested resource was not found
	ErrNotFound = errors.New("resource not found")

	// ErrUnsupportedModel indicates that a requested model is not served
	ErrUnsupportedModel = errors.New("unsupported model")
)
