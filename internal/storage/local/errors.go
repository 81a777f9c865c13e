package local

import "errors"

var (
	// ErrNotFound is returned when no draft is stored for a lesson
	ErrNotFound = errors.New("draft not found")

	// ErrInvalidKey is returned for learner or lesson ids that cannot name a file
	ErrInvalidKey = errors.New("invalid draft key")
)
