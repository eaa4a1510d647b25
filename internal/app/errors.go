package app

import "errors"

// ErrNotFound and related errors describe storage and orchestration failures.
var (
	ErrNotFound          = errors.New("not found")
	ErrConflict          = errors.New("concurrent modification")
	ErrAlreadyExists     = errors.New("already exists")
	ErrUnsupportedFilter = errors.New("filter expressions are not supported by this repository")
	ErrActorRequired     = errors.New("actor id is required")
)
