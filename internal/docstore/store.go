package docstore

import (
	"context"
	"errors"
)

// ErrNotFound is returned when a document does not exist.
var ErrNotFound = errors.New("docstore: not found")

// Doc is a flat field map; adapters own the field names and encoding.
type Doc map[string]string

// Store is the key-document contract shared by the whitelist, the
// verification codes and the attendance aggregates. IncrField is the
// atomic numeric increment primitive; everything that counts under
// concurrency goes through it.
type Store interface {
	Get(ctx context.Context, collection, key string) (Doc, error)
	// Set replaces the whole document.
	Set(ctx context.Context, collection, key string, doc Doc) error
	// SetFields updates individual fields, leaving the rest in place.
	SetFields(ctx context.Context, collection, key string, fields Doc) error
	// SetMulti writes several documents in one batched call.
	SetMulti(ctx context.Context, collection string, docs map[string]Doc) error
	Delete(ctx context.Context, collection, key string) error
	DeleteMulti(ctx context.Context, collection string, keys []string) error
	// IncrField atomically adds delta to a numeric field and returns the
	// post-increment value. Missing documents and fields start at zero.
	IncrField(ctx context.Context, collection, key, field string, delta int64) (int64, error)
}
