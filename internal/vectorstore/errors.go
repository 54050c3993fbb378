package vectorstore

import "errors"

var (
	ErrCountMismatch     = errors.New("document and embedding counts differ")
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
	ErrIndexNotFound     = errors.New("vector index not found")
	ErrPersistence       = errors.New("vector index persistence failed")
)
