package ftstore

import "github.com/redis/rueidis"

// NewForTest creates a Store with the provided rueidis client (test-only).
func NewForTest(c rueidis.Client, textSearch bool) *Store {
	return &Store{client: c, textSearch: textSearch}
}
