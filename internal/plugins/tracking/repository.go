package tracking

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/go-sql-driver/mysql"
)

// ErrDuplicateVersion is returned by Insert when the entity already has a
// snapshot with the same version.
var ErrDuplicateVersion = errors.New("tag version already stored")

// TagRepository defines the data access contract for tag snapshots.
// All SQL lives in the concrete implementation -- no SQL leaks out.
type TagRepository interface {
	// Insert appends a snapshot. The (kind, path, version) triple is unique.
	Insert(ctx context.Context, s *Snapshot) error

	// ListByEntity returns an entity's snapshots, oldest first.
	ListByEntity(ctx context.Context, kind EntityKind, path string) ([]Snapshot, error)

	// ListLatestByCampaign returns the newest snapshot of every entity of
	// the given kind in a campaign.
	ListLatestByCampaign(ctx context.Context, clientID, campaignID string, kind EntityKind) ([]Snapshot, error)

	// DeleteByEntity removes every snapshot of an entity and returns how
	// many were removed.
	DeleteByEntity(ctx context.Context, kind EntityKind, path string) (int64, error)
}

// tagRepository implements TagRepository with MariaDB queries.
type tagRepository struct {
	db *sql.DB
}

// NewTagRepository creates a new repository backed by the given DB pool.
func NewTagRepository(db *sql.DB) TagRepository {
	return &tagRepository{db: db}
}

// Insert writes one snapshot row.
func (r *tagRepository) Insert(ctx context.Context, s *Snapshot) error {
	values, err := json.Marshal(s.Values)
	if err != nil {
		return fmt.Errorf("marshaling snapshot values: %w", err)
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO cm360_tags (id, client_id, campaign_id, entity_kind, entity_path, version, snapshot, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		s.ID, s.ClientID, s.CampaignID, string(s.Kind), s.EntityPath, s.Version, values, s.Timestamp,
	)
	if isDuplicateEntry(err) {
		return fmt.Errorf("inserting cm360 tag version %d of %s: %w", s.Version, s.EntityPath, ErrDuplicateVersion)
	}
	if err != nil {
		return fmt.Errorf("inserting cm360 tag: %w", err)
	}
	return nil
}

// isDuplicateEntry checks if a MySQL/MariaDB error is a duplicate key violation.
// Error code 1062 is ER_DUP_ENTRY for unique constraint violations.
func isDuplicateEntry(err error) bool {
	var myErr *mysql.MySQLError
	return errors.As(err, &myErr) && myErr.Number == 1062
}

const snapshotColumns = `id, client_id, campaign_id, entity_kind, entity_path, version, snapshot, created_at`

// ListByEntity returns the snapshots of one entity ordered by version.
func (r *tagRepository) ListByEntity(ctx context.Context, kind EntityKind, path string) ([]Snapshot, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+snapshotColumns+` FROM cm360_tags
		 WHERE entity_kind = ? AND entity_path = ?
		 ORDER BY version ASC`,
		string(kind), path,
	)
	if err != nil {
		return nil, fmt.Errorf("listing cm360 tags: %w", err)
	}
	defer rows.Close()
	return scanSnapshots(rows)
}

// ListLatestByCampaign joins each entity's max version back onto the table.
func (r *tagRepository) ListLatestByCampaign(ctx context.Context, clientID, campaignID string, kind EntityKind) ([]Snapshot, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT t.id, t.client_id, t.campaign_id, t.entity_kind, t.entity_path, t.version, t.snapshot, t.created_at
		 FROM cm360_tags t
		 JOIN (
		     SELECT entity_path, MAX(version) AS version
		     FROM cm360_tags
		     WHERE client_id = ? AND campaign_id = ? AND entity_kind = ?
		     GROUP BY entity_path
		 ) latest ON latest.entity_path = t.entity_path AND latest.version = t.version
		 WHERE t.entity_kind = ?
		 ORDER BY t.entity_path`,
		clientID, campaignID, string(kind), string(kind),
	)
	if err != nil {
		return nil, fmt.Errorf("listing latest cm360 tags: %w", err)
	}
	defer rows.Close()
	return scanSnapshots(rows)
}

// DeleteByEntity removes an entity's whole history.
func (r *tagRepository) DeleteByEntity(ctx context.Context, kind EntityKind, path string) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM cm360_tags WHERE entity_kind = ? AND entity_path = ?`,
		string(kind), path,
	)
	if err != nil {
		return 0, fmt.Errorf("deleting cm360 tags: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("counting deleted cm360 tags: %w", err)
	}
	return n, nil
}

func scanSnapshots(rows *sql.Rows) ([]Snapshot, error) {
	var out []Snapshot
	for rows.Next() {
		var s Snapshot
		var kind string
		var raw []byte
		if err := rows.Scan(&s.ID, &s.ClientID, &s.CampaignID, &kind, &s.EntityPath, &s.Version, &raw, &s.Timestamp); err != nil {
			return nil, fmt.Errorf("scanning cm360 tag row: %w", err)
		}
		s.Kind = EntityKind(kind)
		if err := json.Unmarshal(raw, &s.Values); err != nil {
			return nil, fmt.Errorf("unmarshaling cm360 tag %s: %w", s.ID, err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// --- In-memory implementation ---

// memoryTagRepository implements TagRepository in process memory for the
// memory store driver.
type memoryTagRepository struct {
	mu   sync.RWMutex
	tags map[string][]Snapshot // kind + path -> snapshots, oldest first
}

// NewMemoryTagRepository creates an empty in-memory tag repository.
func NewMemoryTagRepository() TagRepository {
	return &memoryTagRepository{tags: make(map[string][]Snapshot)}
}

func entityKey(kind EntityKind, path string) string {
	return string(kind) + "\x00" + path
}

func (r *memoryTagRepository) Insert(_ context.Context, s *Snapshot) error {
	values, err := roundTrip(s.Values)
	if err != nil {
		return fmt.Errorf("marshaling snapshot values: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	key := entityKey(s.Kind, s.EntityPath)
	for _, existing := range r.tags[key] {
		if existing.Version == s.Version {
			return fmt.Errorf("inserting cm360 tag version %d of %s: %w", s.Version, s.EntityPath, ErrDuplicateVersion)
		}
	}
	stored := *s
	stored.Values = values
	r.tags[key] = append(r.tags[key], stored)
	sort.Slice(r.tags[key], func(i, j int) bool { return r.tags[key][i].Version < r.tags[key][j].Version })
	return nil
}

func (r *memoryTagRepository) ListByEntity(_ context.Context, kind EntityKind, path string) ([]Snapshot, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]Snapshot(nil), r.tags[entityKey(kind, path)]...), nil
}

func (r *memoryTagRepository) ListLatestByCampaign(_ context.Context, clientID, campaignID string, kind EntityKind) ([]Snapshot, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []Snapshot
	for _, snaps := range r.tags {
		if len(snaps) == 0 {
			continue
		}
		latest := snaps[len(snaps)-1]
		if latest.Kind == kind && latest.ClientID == clientID && latest.CampaignID == campaignID {
			out = append(out, latest)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EntityPath < out[j].EntityPath })
	return out, nil
}

func (r *memoryTagRepository) DeleteByEntity(_ context.Context, kind EntityKind, path string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := entityKey(kind, path)
	n := int64(len(r.tags[key]))
	delete(r.tags, key)
	return n, nil
}

// roundTrip gives values the same shape they have after a MariaDB read.
func roundTrip(values map[string]any) (map[string]any, error) {
	raw, err := json.Marshal(values)
	if err != nil {
		return nil, err
	}
	out := map[string]any{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}
