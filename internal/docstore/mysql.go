package docstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/keyxmakerx/mediatag/internal/apperror"
)

// mysqlStore implements Store on the MariaDB documents table.
type mysqlStore struct {
	db *sql.DB
}

// NewMySQL creates a document store backed by the given DB pool.
func NewMySQL(db *sql.DB) Store {
	return &mysqlStore{db: db}
}

// execer is satisfied by both *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Get fetches a single document by path.
func (s *mysqlStore) Get(ctx context.Context, path string) (*Document, error) {
	_, _, id, err := SplitDocumentPath(path)
	if err != nil {
		return nil, apperror.NewBadRequest(err.Error())
	}

	var raw []byte
	err = s.db.QueryRowContext(ctx, `SELECT data FROM documents WHERE path = ?`, path).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperror.NewNotFound("document not found")
	}
	if err != nil {
		return nil, fmt.Errorf("querying document %s: %w", path, err)
	}

	data := map[string]any{}
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("unmarshaling document %s: %w", path, err)
	}
	return &Document{Path: path, ID: id, Data: data}, nil
}

// List returns every document directly inside a collection.
func (s *mysqlStore) List(ctx context.Context, collectionPath string) ([]Document, error) {
	parent, collection, err := splitCollectionPath(collectionPath)
	if err != nil {
		return nil, apperror.NewBadRequest(err.Error())
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT path, doc_id, data FROM documents
		 WHERE parent_path = ? AND collection = ?
		 ORDER BY doc_id`,
		parent, collection,
	)
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", collectionPath, err)
	}
	defer rows.Close()
	return scanDocuments(rows)
}

// Query returns the collection documents whose top-level field equals value.
func (s *mysqlStore) Query(ctx context.Context, collectionPath, field, value string) ([]Document, error) {
	parent, collection, err := splitCollectionPath(collectionPath)
	if err != nil {
		return nil, apperror.NewBadRequest(err.Error())
	}

	jsonPath := fmt.Sprintf(`$."%s"`, field)
	rows, err := s.db.QueryContext(ctx,
		`SELECT path, doc_id, data FROM documents
		 WHERE parent_path = ? AND collection = ?
		   AND JSON_UNQUOTE(JSON_EXTRACT(data, ?)) = ?
		 ORDER BY doc_id`,
		parent, collection, jsonPath, value,
	)
	if err != nil {
		return nil, fmt.Errorf("querying %s by %s: %w", collectionPath, field, err)
	}
	defer rows.Close()
	return scanDocuments(rows)
}

func scanDocuments(rows *sql.Rows) ([]Document, error) {
	var docs []Document
	for rows.Next() {
		var d Document
		var raw []byte
		if err := rows.Scan(&d.Path, &d.ID, &raw); err != nil {
			return nil, fmt.Errorf("scanning document row: %w", err)
		}
		d.Data = map[string]any{}
		if err := json.Unmarshal(raw, &d.Data); err != nil {
			return nil, fmt.Errorf("unmarshaling document %s: %w", d.Path, err)
		}
		docs = append(docs, d)
	}
	return docs, rows.Err()
}

// Set creates or replaces a document.
func (s *mysqlStore) Set(ctx context.Context, path string, data map[string]any) error {
	return setDocument(ctx, s.db, path, data)
}

// Update merges patch into an existing document inside a short transaction.
func (s *mysqlStore) Update(ctx context.Context, path string, patch map[string]any) error {
	b := s.Batch()
	b.Update(path, patch)
	return b.Commit(ctx)
}

// Delete removes a document.
func (s *mysqlStore) Delete(ctx context.Context, path string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM documents WHERE path = ?`, path); err != nil {
		return fmt.Errorf("deleting document %s: %w", path, err)
	}
	return nil
}

// Batch starts a transactional multi-document write.
func (s *mysqlStore) Batch() Batch {
	return &mysqlBatch{db: s.db}
}

func setDocument(ctx context.Context, ex execer, path string, data map[string]any) error {
	parent, collection, id, err := SplitDocumentPath(path)
	if err != nil {
		return apperror.NewBadRequest(err.Error())
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshaling document %s: %w", path, err)
	}
	_, err = ex.ExecContext(ctx,
		`INSERT INTO documents (path, parent_path, collection, doc_id, data)
		 VALUES (?, ?, ?, ?, ?)
		 ON DUPLICATE KEY UPDATE data = VALUES(data)`,
		path, parent, collection, id, raw,
	)
	if err != nil {
		return fmt.Errorf("writing document %s: %w", path, err)
	}
	return nil
}

// updateDocument reads the row under a lock, merges in Go and writes it
// back. Top-level fields are replaced whole, nested maps are not merged.
func updateDocument(ctx context.Context, tx *sql.Tx, path string, patch map[string]any) error {
	var raw []byte
	err := tx.QueryRowContext(ctx, `SELECT data FROM documents WHERE path = ? FOR UPDATE`, path).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return apperror.NewNotFound(fmt.Sprintf("document %s not found", path))
	}
	if err != nil {
		return fmt.Errorf("locking document %s: %w", path, err)
	}

	data := map[string]any{}
	if err := json.Unmarshal(raw, &data); err != nil {
		return fmt.Errorf("unmarshaling document %s: %w", path, err)
	}
	merged, err := json.Marshal(mergeTopLevel(data, patch))
	if err != nil {
		return fmt.Errorf("marshaling patch for %s: %w", path, err)
	}

	if _, err := tx.ExecContext(ctx, `UPDATE documents SET data = ? WHERE path = ?`, merged, path); err != nil {
		return fmt.Errorf("updating document %s: %w", path, err)
	}
	return nil
}

type mysqlBatch struct {
	db  *sql.DB
	ops []op
}

func (b *mysqlBatch) Set(path string, data map[string]any) {
	b.ops = append(b.ops, op{kind: opSet, path: path, data: data})
}

func (b *mysqlBatch) Update(path string, patch map[string]any) {
	b.ops = append(b.ops, op{kind: opUpdate, path: path, data: patch})
}

func (b *mysqlBatch) Delete(path string) {
	b.ops = append(b.ops, op{kind: opDelete, path: path})
}

func (b *mysqlBatch) Len() int { return len(b.ops) }

// Commit applies all staged writes in one transaction.
func (b *mysqlBatch) Commit(ctx context.Context) error {
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning batch tx: %w", err)
	}
	defer tx.Rollback()

	for _, o := range b.ops {
		switch o.kind {
		case opSet:
			err = setDocument(ctx, tx, o.path, o.data)
		case opUpdate:
			err = updateDocument(ctx, tx, o.path, o.data)
		case opDelete:
			_, err = tx.ExecContext(ctx, `DELETE FROM documents WHERE path = ?`, o.path)
		}
		if err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing batch of %d writes: %w", len(b.ops), err)
	}
	return nil
}
