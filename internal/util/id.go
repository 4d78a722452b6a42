package util

import "github.com/google/uuid"

// NewID returns a random identifier. A non-empty prefix is joined with an
// underscore so token ids stay distinguishable from entity ids in logs.
func NewID(prefix string) string {
	id := uuid.NewString()
	if prefix == "" {
		return id
	}
	return prefix + "_" + id
}
