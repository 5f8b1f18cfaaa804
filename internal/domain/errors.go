package domain

import "errors"

var (
	// ErrChunking indicates an unsatisfiable chunker configuration
	ErrChunking = errors.New("invalid chunking configuration")
	// ErrIndexBuild indicates the index build could not complete
	ErrIndexBuild = errors.New("index build failed")
	// ErrIndexLoad indicates a corrupt or incompatible persisted index
	ErrIndexLoad = errors.New("index load failed")
	// ErrDimensionMismatch indicates a query vector of the wrong dimension
	ErrDimensionMismatch = errors.New("vector dimension mismatch")
	// ErrSessionNotFound indicates an unknown session ID
	ErrSessionNotFound = errors.New("session not found")
	// ErrGeneration indicates the completion capability failed after retries
	ErrGeneration = errors.New("generation failed")
	// ErrRetrieval indicates an index query failure other than a dimension mismatch
	ErrRetrieval = errors.New("retrieval failed")
	// ErrUnauthorized indicates a missing or unknown API key
	ErrUnauthorized = errors.New("unauthorized")
)
