package docstore

import (
	"context"
	"strconv"
	"sync"
)

// Memory is a mutex-guarded in-process Store for dev and testing. It
// mirrors the Redis semantics, including atomic field increments.
type Memory struct {
	mu   sync.Mutex
	docs map[string]Doc
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{docs: make(map[string]Doc)}
}

// Get fetches a copy of a document.
func (m *Memory) Get(ctx context.Context, collection, key string) (Doc, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, ok := m.docs[docKey(collection, key)]
	if !ok {
		return nil, ErrNotFound
	}
	out := make(Doc, len(doc))
	for k, v := range doc {
		out[k] = v
	}
	return out, nil
}

// Set replaces the whole document.
func (m *Memory) Set(ctx context.Context, collection, key string, doc Doc) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.docs[docKey(collection, key)] = clone(doc)
	return nil
}

// SetFields updates individual fields.
func (m *Memory) SetFields(ctx context.Context, collection, key string, fields Doc) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := docKey(collection, key)
	doc, ok := m.docs[k]
	if !ok {
		doc = make(Doc, len(fields))
		m.docs[k] = doc
	}
	for f, v := range fields {
		doc[f] = v
	}
	return nil
}

// SetMulti writes several documents at once.
func (m *Memory) SetMulti(ctx context.Context, collection string, docs map[string]Doc) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for key, doc := range docs {
		m.docs[docKey(collection, key)] = clone(doc)
	}
	return nil
}

// Delete removes a document.
func (m *Memory) Delete(ctx context.Context, collection, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.docs, docKey(collection, key))
	return nil
}

// DeleteMulti removes several documents.
func (m *Memory) DeleteMulti(ctx context.Context, collection string, keys []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		delete(m.docs, docKey(collection, k))
	}
	return nil
}

// IncrField atomically adds delta to a numeric field and returns the
// post-increment value.
func (m *Memory) IncrField(ctx context.Context, collection, key, field string, delta int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := docKey(collection, key)
	doc, ok := m.docs[k]
	if !ok {
		doc = make(Doc)
		m.docs[k] = doc
	}
	cur, _ := strconv.ParseInt(doc[field], 10, 64)
	cur += delta
	doc[field] = strconv.FormatInt(cur, 10)
	return cur, nil
}

func clone(doc Doc) Doc {
	out := make(Doc, len(doc))
	for k, v := range doc {
		out[k] = v
	}
	return out
}
