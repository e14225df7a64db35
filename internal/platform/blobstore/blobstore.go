package blobstore

import "context"

// Store is the replica surface for encrypted envelopes. Implementations
// hold only ciphertext blobs; keys into the store are opaque paths
// like org/<id>/doc/<id>/<set>.json.
type Store interface {
	Put(ctx context.Context, key string, data []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
	DeletePrefix(ctx context.Context, prefix string) error
	URI(key string) string
}
