package docstruct

import "errors"

var (
	// ErrDocumentNotFound is returned when a document ID does not exist.
	ErrDocumentNotFound = errors.New("docstruct: document not found")

	// ErrFileMissing is returned when a document's local file path is
	// absent or unreadable.
	ErrFileMissing = errors.New("docstruct: local file missing")

	// ErrExtractionFailed is returned when structured-text extraction fails.
	ErrExtractionFailed = errors.New("docstruct: extraction failed")

	// ErrEmbeddingFailed is returned when embedding generation fails.
	ErrEmbeddingFailed = errors.New("docstruct: embedding generation failed")

	// ErrDimensionMismatch is returned when a provider returns vectors of a
	// different length than the configured embedding dimension.
	ErrDimensionMismatch = errors.New("docstruct: embedding dimension mismatch")

	// ErrCaptioningFailed is returned when asset captioning fails.
	ErrCaptioningFailed = errors.New("docstruct: captioning failed")

	// ErrNoResults is returned when retrieval yields no matching chunks.
	ErrNoResults = errors.New("docstruct: no results found")

	// ErrInvalidConfig is returned for invalid configuration values.
	ErrInvalidConfig = errors.New("docstruct: invalid configuration")
)
