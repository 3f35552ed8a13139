package id

import "github.com/google/uuid"

// New returns an identifier for a single landing run.
func New() string {
	id, err := uuid.NewRandom()
	if err != nil {
		return "run-fallback-id"
	}
	return id.String()
}
