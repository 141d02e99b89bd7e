// Package docstore is the hierarchical document store the campaign tree
// lives in. Documents are JSON objects addressed by slash-separated paths
// that alternate collection and id segments, e.g.
//
//	clients/acme/campaigns/c1/versions/v1
//
// Two backends exist: MariaDB (one row per document, JSON column) and an
// in-memory store used in development and tests. Reads are plain lookups
// and children scans; writes are single-document patches or one batch
// committed atomically.
package docstore

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// Document is one stored JSON object.
type Document struct {
	// Path is the full document path.
	Path string `json:"path"`

	// ID is the last path segment.
	ID string `json:"id"`

	// Data holds the top-level fields. Numbers decode as float64.
	Data map[string]any `json:"data"`
}

// Decode converts the document data into v through a JSON round trip.
func (d *Document) Decode(v any) error {
	raw, err := json.Marshal(d.Data)
	if err != nil {
		return fmt.Errorf("encoding document %s: %w", d.Path, err)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("decoding document %s: %w", d.Path, err)
	}
	return nil
}

// Store defines the document store contract. Get and Update return an
// apperror not-found error for missing documents.
type Store interface {
	// Get fetches a single document.
	Get(ctx context.Context, path string) (*Document, error)

	// List returns every document directly inside a collection, ordered by id.
	List(ctx context.Context, collectionPath string) ([]Document, error)

	// Query returns the documents of a collection whose top-level field
	// equals value.
	Query(ctx context.Context, collectionPath, field, value string) ([]Document, error)

	// Set creates or fully replaces a document.
	Set(ctx context.Context, path string, data map[string]any) error

	// Update merges patch into the top-level fields of an existing document.
	Update(ctx context.Context, path string, patch map[string]any) error

	// Delete removes a document. Deleting a missing document is not an error.
	Delete(ctx context.Context, path string) error

	// Batch starts a multi-document write committed atomically.
	Batch() Batch
}

// Batch stages writes and applies them in order on Commit. Either every
// staged write is applied or none is.
type Batch interface {
	Set(path string, data map[string]any)
	Update(path string, patch map[string]any)
	Delete(path string)

	// Len returns the number of staged writes.
	Len() int

	Commit(ctx context.Context) error
}

// opKind identifies a staged batch write.
type opKind int

const (
	opSet opKind = iota
	opUpdate
	opDelete
)

// op is one staged batch write, shared by both backends.
type op struct {
	kind opKind
	path string
	data map[string]any
}

// --- Paths ---

// Join builds a path from segments, skipping empty ones.
func Join(segments ...string) string {
	parts := make([]string, 0, len(segments))
	for _, s := range segments {
		s = strings.Trim(s, "/")
		if s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, "/")
}

// SplitDocumentPath returns the parent collection path, collection name and
// document id of a document path. A valid document path has an even number
// of segments.
func SplitDocumentPath(path string) (collectionPath, collection, id string, err error) {
	segs := strings.Split(strings.Trim(path, "/"), "/")
	if len(segs) < 2 || len(segs)%2 != 0 {
		return "", "", "", fmt.Errorf("invalid document path %q", path)
	}
	for _, s := range segs {
		if s == "" {
			return "", "", "", fmt.Errorf("invalid document path %q", path)
		}
	}
	id = segs[len(segs)-1]
	collection = segs[len(segs)-2]
	collectionPath = strings.Join(segs[:len(segs)-1], "/")
	return collectionPath, collection, id, nil
}

// splitCollectionPath returns the parent document path and the collection
// name of a collection path (odd number of segments).
func splitCollectionPath(path string) (parent, collection string, err error) {
	segs := strings.Split(strings.Trim(path, "/"), "/")
	if len(segs)%2 != 1 || segs[len(segs)-1] == "" {
		return "", "", fmt.Errorf("invalid collection path %q", path)
	}
	return strings.Join(segs[:len(segs)-1], "/"), segs[len(segs)-1], nil
}

// mergeTopLevel applies patch onto data, replacing whole top-level fields.
func mergeTopLevel(data, patch map[string]any) map[string]any {
	if data == nil {
		data = make(map[string]any, len(patch))
	}
	for k, v := range patch {
		data[k] = v
	}
	return data
}

// normalize converts arbitrary Go values into their JSON form so both
// backends hand back identical shapes (float64 numbers, RFC 3339 times).
func normalize(data map[string]any) (map[string]any, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	out := map[string]any{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}
