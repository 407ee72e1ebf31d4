package errors

import "errors"

// Sentinel errors for common error conditions
var (
	// ErrEmptyQuestion indicates that a query was submitted without text
	ErrEmptyQuestion = errors.New("question text is empty")

	// ErrUnknownTopic indicates that no decision tree exists for the requested topic
	ErrUnknownTopic = errors.New("unknown eligibility topic")

	// ErrMissingThreshold indicates that a criterion references a threshold with no stored value
	ErrMissingThreshold = errors.New("threshold value missing")

	// ErrInvalidClientValue indicates that a supplied client value failed validation
	ErrInvalidClientValue = errors.New("invalid client value")

	// ErrNoInference indicates that no inference service is configured
	ErrNoInference = errors.New("no inference service configured")

	// ErrNoIndex indicates that no retrieval index is configured
	ErrNoIndex = errors.New("no retrieval index configured")

	// ErrSynthesisUnavailable indicates that answer synthesis failed after retries
	ErrSynthesisUnavailable = errors.New("synthesis unavailable")

	// ErrEmptyCorpus indicates that an index has no chunks to search
	ErrEmptyCorpus = errors.New("corpus is empty")

	// ErrNotFound indicates that a requested resource was not found
	ErrNotFound = errors.New("resource not found")
)
