package service

import "errors"

var (
	ErrNotFound               = errors.New("not found")
	ErrPermissionDenied       = errors.New("permission denied")
	ErrInvalidInput           = errors.New("invalid input")
	ErrImmutableField         = errors.New("immutable field")
	ErrConcurrentModification = errors.New("concurrent modification")
)
