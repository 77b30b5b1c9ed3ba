// Package logostore is the object-storage collaborator contract for
// institution logo assets. The directory queries by id-existence and
// writes only when absent; logos are immutable once stored.
package logostore

import "context"

// Store holds logo assets keyed by institution id.
type Store interface {
	Exists(ctx context.Context, id string) (bool, error)
	Put(ctx context.Context, id string, data []byte, contentType string) error

	// URL returns the public address of a stored logo.
	URL(id string) string
}
