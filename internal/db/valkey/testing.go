package valkey

import (
	"github.com/redis/rueidis"

	"github.com/kailas-cloud/ragchat/internal/db/ftstore"
)

// NewStoreForTest creates a Store with the provided rueidis client (test-only).
func NewStoreForTest(c rueidis.Client) *Store {
	return &Store{Store: ftstore.NewForTest(c, false)}
}
