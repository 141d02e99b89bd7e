package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"
)

// AuditRepository defines the data access contract for audit log operations.
// All SQL lives in the concrete implementation -- no SQL leaks out.
type AuditRepository interface {
	// Log inserts a new audit entry.
	Log(ctx context.Context, entry *AuditEntry) error

	// ListByClient returns audit entries for a client, most recent first.
	// An empty campaignID lists every campaign. Returns the entries, the
	// total count (for pagination), and any error.
	ListByClient(ctx context.Context, clientID, campaignID string, limit, offset int) ([]AuditEntry, int, error)

	// ListByEntity returns the most recent audit entries for one document path.
	ListByEntity(ctx context.Context, entityPath string, limit int) ([]AuditEntry, error)
}

// auditRepository implements AuditRepository with MariaDB queries.
type auditRepository struct {
	db *sql.DB
}

// NewAuditRepository creates a new repository backed by the given DB pool.
func NewAuditRepository(db *sql.DB) AuditRepository {
	return &auditRepository{db: db}
}

// Log inserts a new audit entry. The details map is serialized to JSON
// before storage. Nil details are stored as SQL NULL.
func (r *auditRepository) Log(ctx context.Context, entry *AuditEntry) error {
	query := `INSERT INTO audit_log (client_id, campaign_id, action, entity_kind, entity_path, details, created_at)
	          VALUES (?, ?, ?, ?, ?, ?, ?)`

	var detailsJSON []byte
	if entry.Details != nil {
		var err error
		detailsJSON, err = json.Marshal(entry.Details)
		if err != nil {
			return fmt.Errorf("marshaling audit details: %w", err)
		}
	}

	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	result, err := r.db.ExecContext(ctx, query,
		entry.ClientID, entry.CampaignID, entry.Action,
		entry.EntityKind, entry.EntityPath,
		detailsJSON, entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting audit entry: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("getting audit entry id: %w", err)
	}
	entry.ID = id

	return nil
}

// ListByClient returns audit entries for a client ordered by most recent
// first, optionally narrowed to one campaign.
func (r *auditRepository) ListByClient(ctx context.Context, clientID, campaignID string, limit, offset int) ([]AuditEntry, int, error) {
	where := `WHERE client_id = ?`
	args := []any{clientID}
	if campaignID != "" {
		where += ` AND campaign_id = ?`
		args = append(args, campaignID)
	}

	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM audit_log `+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("counting audit entries: %w", err)
	}

	query := `SELECT id, client_id, campaign_id, action, entity_kind, entity_path, details, created_at
	          FROM audit_log ` + where + `
	          ORDER BY created_at DESC, id DESC
	          LIMIT ? OFFSET ?`

	rows, err := r.db.QueryContext(ctx, query, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("listing audit entries: %w", err)
	}
	defer rows.Close()

	entries, err := scanAuditRows(rows)
	if err != nil {
		return nil, 0, err
	}

	return entries, total, nil
}

// ListByEntity returns the most recent audit entries for one document path.
func (r *auditRepository) ListByEntity(ctx context.Context, entityPath string, limit int) ([]AuditEntry, error) {
	query := `SELECT id, client_id, campaign_id, action, entity_kind, entity_path, details, created_at
	          FROM audit_log
	          WHERE entity_path = ?
	          ORDER BY created_at DESC, id DESC
	          LIMIT ?`

	rows, err := r.db.QueryContext(ctx, query, entityPath, limit)
	if err != nil {
		return nil, fmt.Errorf("listing entity audit entries: %w", err)
	}
	defer rows.Close()

	return scanAuditRows(rows)
}

// scanAuditRows reads audit entries from a result set. Details JSON is
// decoded back into a map; NULL details stay nil.
func scanAuditRows(rows *sql.Rows) ([]AuditEntry, error) {
	var entries []AuditEntry
	for rows.Next() {
		var e AuditEntry
		var details []byte
		if err := rows.Scan(&e.ID, &e.ClientID, &e.CampaignID, &e.Action,
			&e.EntityKind, &e.EntityPath, &details, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning audit row: %w", err)
		}
		if len(details) > 0 {
			if err := json.Unmarshal(details, &e.Details); err != nil {
				return nil, fmt.Errorf("unmarshaling audit details: %w", err)
			}
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// --- In-memory implementation ---

// memoryAuditRepository keeps entries in process memory for the memory
// store driver and tests.
type memoryAuditRepository struct {
	mu      sync.RWMutex
	entries []AuditEntry
	nextID  int64
}

// NewMemoryAuditRepository creates an empty in-memory audit repository.
func NewMemoryAuditRepository() AuditRepository {
	return &memoryAuditRepository{}
}

func (r *memoryAuditRepository) Log(_ context.Context, entry *AuditEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	r.nextID++
	entry.ID = r.nextID
	r.entries = append(r.entries, *entry)
	return nil
}

func (r *memoryAuditRepository) ListByClient(_ context.Context, clientID, campaignID string, limit, offset int) ([]AuditEntry, int, error) {
	matched := r.filter(func(e AuditEntry) bool {
		return e.ClientID == clientID && (campaignID == "" || e.CampaignID == campaignID)
	})
	total := len(matched)
	if offset >= total {
		return nil, total, nil
	}
	end := min(offset+limit, total)
	return matched[offset:end], total, nil
}

func (r *memoryAuditRepository) ListByEntity(_ context.Context, entityPath string, limit int) ([]AuditEntry, error) {
	matched := r.filter(func(e AuditEntry) bool { return e.EntityPath == entityPath })
	if len(matched) > limit {
		matched = matched[:limit]
	}
	return matched, nil
}

// filter returns matching entries, most recent first.
func (r *memoryAuditRepository) filter(match func(AuditEntry) bool) []AuditEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []AuditEntry
	for _, e := range r.entries {
		if match(e) {
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out
}
