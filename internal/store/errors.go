package store

import "errors"

// Lookups of missing entities return sql.ErrNoRows from both backends.
var (
	ErrDuplicateEmail = errors.New("email already registered")
	ErrInvalidOrder   = errors.New("order is not a permutation of the current children")
)

// isPermutation reports whether next holds exactly the ids of current, each once.
func isPermutation(current, next []string) bool {
	if len(current) != len(next) {
		return false
	}
	seen := make(map[string]int, len(current))
	for _, id := range current {
		seen[id]++
	}
	for _, id := range next {
		if seen[id] == 0 {
			return false
		}
		seen[id]--
	}
	return true
}
