// Package remote defines the authoritative document tier behind the local cache.
package remote

import "context"

// Ports for the remote document store.
type (
	// DocumentStore holds JSON documents addressed by (collection, key), scoped
	// to the authenticated user. Implementations return core.ErrRemoteUnavailable
	// when the backend cannot be reached.
	DocumentStore interface {
		Get(ctx context.Context, collection, key string) (body []byte, found bool, err error)
		Put(ctx context.Context, collection, key string, body []byte) error
		Delete(ctx context.Context, collection, key string) error
		List(ctx context.Context, collection string) (map[string][]byte, error)

		// NewID returns a fresh document id assigned by the backend.
		NewID(ctx context.Context, collection string) (string, error)

		Reachable(ctx context.Context) bool
	}

	Closer interface {
		Close() error
	}
)
