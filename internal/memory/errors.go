package memory

import "errors"

var (
	ErrNotFound    = errors.New("not found")
	ErrInvalidType = errors.New("invalid memory type")
	ErrEmptyKey    = errors.New("empty key")
)
