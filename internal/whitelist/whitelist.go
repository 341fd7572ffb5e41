package whitelist

import (
	"context"
	"errors"
	"fmt"
	"time"

	"memberportal/internal/docstore"
)

// Collection is the document collection holding whitelist entries, keyed
// by identity id.
const Collection = "whitelist"

// ErrNotFound means no entry exists for the identity id.
var ErrNotFound = errors.New("whitelist: entry not found")

// ErrConflict means a rename target id is already taken.
var ErrConflict = errors.New("whitelist: identity id already exists")

// Entry is one authorized member identity.
type Entry struct {
	IdentityID  string    `json:"identity_id"`
	DisplayName string    `json:"display_name"`
	CreatedAt   time.Time `json:"created_at"`
}

// Store adapts the document store into the whitelist contract.
type Store struct {
	docs docstore.Store
	now  func() time.Time
}

// NewStore builds the adapter.
func NewStore(docs docstore.Store) *Store {
	return &Store{docs: docs, now: time.Now}
}

// Lookup returns the entry for the identity id, ErrNotFound when absent.
func (s *Store) Lookup(ctx context.Context, identityID string) (Entry, error) {
	doc, err := s.docs.Get(ctx, Collection, identityID)
	if err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return Entry{}, ErrNotFound
		}
		return Entry{}, fmt.Errorf("whitelist lookup %s: %w", identityID, err)
	}
	return fromDoc(identityID, doc), nil
}

// Check reports whether the identity id is authorized. The stored display
// name is authoritative; the caller-supplied name is advisory only and
// returned corrected.
func (s *Store) Check(ctx context.Context, identityID string) (Entry, bool, error) {
	entry, err := s.Lookup(ctx, identityID)
	if errors.Is(err, ErrNotFound) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, err
	}
	return entry, true, nil
}

// UpsertMany writes entries in one batched call; existing entries are
// replaced.
func (s *Store) UpsertMany(ctx context.Context, entries []Entry) error {
	if len(entries) == 0 {
		return nil
	}
	docs := make(map[string]docstore.Doc, len(entries))
	for _, e := range entries {
		if e.IdentityID == "" {
			return errors.New("whitelist: identity id required")
		}
		created := e.CreatedAt
		if created.IsZero() {
			created = s.now()
		}
		docs[e.IdentityID] = docstore.Doc{
			"display_name": e.DisplayName,
			"created_at":   created.UTC().Format(time.RFC3339),
		}
	}
	if err := s.docs.SetMulti(ctx, Collection, docs); err != nil {
		return fmt.Errorf("whitelist upsert: %w", err)
	}
	return nil
}

// DeleteMany removes entries in one batched call.
func (s *Store) DeleteMany(ctx context.Context, identityIDs []string) error {
	if len(identityIDs) == 0 {
		return nil
	}
	if err := s.docs.DeleteMulti(ctx, Collection, identityIDs); err != nil {
		return fmt.Errorf("whitelist delete: %w", err)
	}
	return nil
}

// Rename moves an entry to a new identity id, the store's primary key.
// A taken target id fails with ErrConflict and leaves the old entry
// untouched. The new key is written before the old one is deleted, so a
// crash mid-rename leaves both keys present, never neither.
func (s *Store) Rename(ctx context.Context, oldID, newID, displayName string) (Entry, error) {
	if oldID == "" || newID == "" {
		return Entry{}, errors.New("whitelist: old and new identity ids required")
	}
	if oldID == newID {
		return Entry{}, ErrConflict
	}

	old, err := s.Lookup(ctx, oldID)
	if err != nil {
		return Entry{}, err
	}
	if _, err := s.docs.Get(ctx, Collection, newID); err == nil {
		return Entry{}, ErrConflict
	} else if !errors.Is(err, docstore.ErrNotFound) {
		return Entry{}, fmt.Errorf("whitelist rename check: %w", err)
	}

	name := old.DisplayName
	if displayName != "" {
		name = displayName
	}
	moved := Entry{IdentityID: newID, DisplayName: name, CreatedAt: old.CreatedAt}
	if err := s.docs.Set(ctx, Collection, newID, docstore.Doc{
		"display_name": moved.DisplayName,
		"created_at":   moved.CreatedAt.UTC().Format(time.RFC3339),
	}); err != nil {
		return Entry{}, fmt.Errorf("whitelist rename insert: %w", err)
	}
	if err := s.docs.Delete(ctx, Collection, oldID); err != nil {
		return Entry{}, fmt.Errorf("whitelist rename cleanup: %w", err)
	}
	return moved, nil
}

func fromDoc(identityID string, doc docstore.Doc) Entry {
	created, _ := time.Parse(time.RFC3339, doc["created_at"])
	return Entry{
		IdentityID:  identityID,
		DisplayName: doc["display_name"],
		CreatedAt:   created,
	}
}
