package vectorstore

import "errors"

var (
	// ErrProjectNotFound indicates the referenced project does not exist.
	ErrProjectNotFound = errors.New("project not found")

	// ErrRecordNotFound indicates no record exists with the given id.
	ErrRecordNotFound = errors.New("knowledge record not found")

	// ErrInvalidCategory indicates an unknown knowledge category.
	ErrInvalidCategory = errors.New("invalid knowledge category")

	// ErrEmptyContent indicates the content to store is empty.
	ErrEmptyContent = errors.New("empty content")

	// ErrDimensionMismatch indicates an embedding's dimensionality does not
	// match the store's configured embedding space.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
)
