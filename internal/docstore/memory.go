package docstore

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/keyxmakerx/mediatag/internal/apperror"
)

// memoryStore implements Store in process memory. All values are stored in
// their JSON-normalized form so reads behave like the MariaDB backend.
type memoryStore struct {
	mu   sync.RWMutex
	docs map[string]map[string]any
}

// NewMemory creates an empty in-memory document store.
func NewMemory() Store {
	return &memoryStore{docs: make(map[string]map[string]any)}
}

// Get fetches a single document.
func (s *memoryStore) Get(_ context.Context, path string) (*Document, error) {
	if _, _, _, err := SplitDocumentPath(path); err != nil {
		return nil, apperror.NewBadRequest(err.Error())
	}

	s.mu.RLock()
	data, ok := s.docs[path]
	s.mu.RUnlock()
	if !ok {
		return nil, apperror.NewNotFound("document not found")
	}

	copied, err := normalize(data)
	if err != nil {
		return nil, fmt.Errorf("copying document %s: %w", path, err)
	}
	_, _, id, _ := SplitDocumentPath(path)
	return &Document{Path: path, ID: id, Data: copied}, nil
}

// List returns every document directly inside a collection, ordered by id.
func (s *memoryStore) List(_ context.Context, collectionPath string) ([]Document, error) {
	return s.scan(collectionPath, func(map[string]any) bool { return true })
}

// Query returns the collection documents whose field equals value.
func (s *memoryStore) Query(_ context.Context, collectionPath, field, value string) ([]Document, error) {
	return s.scan(collectionPath, func(data map[string]any) bool {
		v, ok := data[field].(string)
		return ok && v == value
	})
}

func (s *memoryStore) scan(collectionPath string, match func(map[string]any) bool) ([]Document, error) {
	if _, _, err := splitCollectionPath(collectionPath); err != nil {
		return nil, apperror.NewBadRequest(err.Error())
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Document
	for path, data := range s.docs {
		parent, _, id, err := SplitDocumentPath(path)
		if err != nil || parent != collectionPath || !match(data) {
			continue
		}
		copied, err := normalize(data)
		if err != nil {
			return nil, fmt.Errorf("copying document %s: %w", path, err)
		}
		out = append(out, Document{Path: path, ID: id, Data: copied})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Set creates or replaces a document.
func (s *memoryStore) Set(ctx context.Context, path string, data map[string]any) error {
	b := s.Batch()
	b.Set(path, data)
	return b.Commit(ctx)
}

// Update merges patch into an existing document.
func (s *memoryStore) Update(ctx context.Context, path string, patch map[string]any) error {
	b := s.Batch()
	b.Update(path, patch)
	return b.Commit(ctx)
}

// Delete removes a document.
func (s *memoryStore) Delete(ctx context.Context, path string) error {
	b := s.Batch()
	b.Delete(path)
	return b.Commit(ctx)
}

// Batch starts an atomic multi-document write.
func (s *memoryStore) Batch() Batch {
	return &memoryBatch{store: s}
}

type memoryBatch struct {
	store *memoryStore
	ops   []op
}

func (b *memoryBatch) Set(path string, data map[string]any) {
	b.ops = append(b.ops, op{kind: opSet, path: path, data: data})
}

func (b *memoryBatch) Update(path string, patch map[string]any) {
	b.ops = append(b.ops, op{kind: opUpdate, path: path, data: patch})
}

func (b *memoryBatch) Delete(path string) {
	b.ops = append(b.ops, op{kind: opDelete, path: path})
}

func (b *memoryBatch) Len() int { return len(b.ops) }

// Commit applies the staged writes against a working copy and swaps it in
// only when every write succeeded.
func (b *memoryBatch) Commit(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s := b.store
	s.mu.Lock()
	defer s.mu.Unlock()

	staged := make(map[string]map[string]any)
	deleted := make(map[string]bool)
	current := func(path string) (map[string]any, bool) {
		if deleted[path] {
			return nil, false
		}
		if d, ok := staged[path]; ok {
			return d, true
		}
		d, ok := s.docs[path]
		return d, ok
	}

	for _, o := range b.ops {
		if _, _, _, err := SplitDocumentPath(o.path); err != nil {
			return apperror.NewBadRequest(err.Error())
		}
		switch o.kind {
		case opSet:
			data, err := normalize(o.data)
			if err != nil {
				return fmt.Errorf("encoding document %s: %w", o.path, err)
			}
			staged[o.path] = data
			delete(deleted, o.path)
		case opUpdate:
			existing, ok := current(o.path)
			if !ok {
				return apperror.NewNotFound(fmt.Sprintf("document %s not found", o.path))
			}
			base, err := normalize(existing)
			if err != nil {
				return fmt.Errorf("copying document %s: %w", o.path, err)
			}
			merged, err := normalize(mergeTopLevel(base, o.data))
			if err != nil {
				return fmt.Errorf("encoding patch for %s: %w", o.path, err)
			}
			staged[o.path] = merged
		case opDelete:
			delete(staged, o.path)
			deleted[o.path] = true
		}
	}

	for path := range deleted {
		delete(s.docs, path)
	}
	for path, data := range staged {
		s.docs[path] = data
	}
	return nil
}
