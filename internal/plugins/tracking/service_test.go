package tracking

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/go-sql-driver/mysql"

	"github.com/keyxmakerx/mediatag/internal/apperror"
	"github.com/keyxmakerx/mediatag/internal/docstore"
	"github.com/keyxmakerx/mediatag/internal/plugins/audit"
)

// --- Mock Repository ---

// mockTagRepo implements TagRepository for testing.
type mockTagRepo struct {
	insertFn               func(ctx context.Context, s *Snapshot) error
	listByEntityFn         func(ctx context.Context, kind EntityKind, path string) ([]Snapshot, error)
	listLatestByCampaignFn func(ctx context.Context, clientID, campaignID string, kind EntityKind) ([]Snapshot, error)
	deleteByEntityFn       func(ctx context.Context, kind EntityKind, path string) (int64, error)
}

func (m *mockTagRepo) Insert(ctx context.Context, s *Snapshot) error {
	if m.insertFn != nil {
		return m.insertFn(ctx, s)
	}
	return nil
}

func (m *mockTagRepo) ListByEntity(ctx context.Context, kind EntityKind, path string) ([]Snapshot, error) {
	if m.listByEntityFn != nil {
		return m.listByEntityFn(ctx, kind, path)
	}
	return nil, nil
}

func (m *mockTagRepo) ListLatestByCampaign(ctx context.Context, clientID, campaignID string, kind EntityKind) ([]Snapshot, error) {
	if m.listLatestByCampaignFn != nil {
		return m.listLatestByCampaignFn(ctx, clientID, campaignID, kind)
	}
	return nil, nil
}

func (m *mockTagRepo) DeleteByEntity(ctx context.Context, kind EntityKind, path string) (int64, error) {
	if m.deleteByEntityFn != nil {
		return m.deleteByEntityFn(ctx, kind, path)
	}
	return 0, nil
}

func assertAppError(t *testing.T, err error, expectedCode int) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected AppError with code %d, got nil", expectedCode)
	}
	var appErr *apperror.AppError
	if !errors.As(err, &appErr) {
		t.Fatalf("expected *apperror.AppError, got %T: %v", err, err)
	}
	if appErr.Code != expectedCode {
		t.Errorf("expected status code %d, got %d (message: %s)", expectedCode, appErr.Code, appErr.Message)
	}
}

// --- Fixtures ---

const placementPath = "clients/acme/campaigns/c1/versions/v1/onglets/o1/sections/s1/tactiques/t1/placements/p1"

func newTestService(t *testing.T) (*tagService, docstore.Store, audit.AuditRepository) {
	t.Helper()
	docs := docstore.NewMemory()
	if err := docs.Set(context.Background(), placementPath, map[string]any{
		"PL_Label":    "Homepage takeover",
		"PL_Tag_Type": "Display",
		"PL_Tag_1":    "GOO_QC",
	}); err != nil {
		t.Fatalf("seeding placement: %v", err)
	}
	auditRepo := audit.NewMemoryAuditRepository()
	svc := NewTagService(NewMemoryTagRepository(), docs, audit.NewAuditService(auditRepo)).(*tagService)
	clock := time.Date(2025, 5, 1, 9, 0, 0, 0, time.UTC)
	svc.now = func() time.Time {
		clock = clock.Add(time.Minute)
		return clock
	}
	return svc, docs, auditRepo
}

func placementRef() EntityRef {
	return EntityRef{ClientID: "acme", Kind: KindPlacement, Path: placementPath}
}

// --- Lifecycle ---

func TestLifecycle(t *testing.T) {
	svc, docs, auditRepo := newTestService(t)
	ctx := context.Background()
	ref := placementRef()

	h, err := svc.GetHistory(ctx, ref)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if h.State != StateNone {
		t.Fatalf("expected NONE, got %s", h.State)
	}

	// Confirming before creating is not a valid transition.
	_, err = svc.ConfirmApplied(ctx, ref)
	assertAppError(t, err, http.StatusConflict)

	h, err = svc.CreateTag(ctx, ref)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if h.State != StateCreated || h.LatestTag.Version != 1 {
		t.Fatalf("expected CREATED v1, got %s v%d", h.State, h.LatestTag.Version)
	}

	_, err = svc.CreateTag(ctx, ref)
	assertAppError(t, err, http.StatusConflict)

	// Nothing changed: confirm is a no-op.
	h, err = svc.ConfirmApplied(ctx, ref)
	if err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if len(h.Tags) != 1 {
		t.Fatalf("no-op confirm appended a version: %d tags", len(h.Tags))
	}

	if err := docs.Update(ctx, placementPath, map[string]any{"PL_Tag_1": "GOO_ON"}); err != nil {
		t.Fatalf("edit: %v", err)
	}
	h, _ = svc.GetHistory(ctx, ref)
	if h.State != StateChanged || len(h.ChangedFields) != 1 || h.ChangedFields[0] != "PL_Tag_1" {
		t.Fatalf("expected CHANGED on PL_Tag_1, got %s %v", h.State, h.ChangedFields)
	}

	h, err = svc.ConfirmApplied(ctx, ref)
	if err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if h.State != StateCreated || h.LatestTag.Version != 2 || len(h.Tags) != 2 {
		t.Fatalf("expected CREATED v2, got %s v%d (%d tags)", h.State, h.LatestTag.Version, len(h.Tags))
	}

	fh, err := svc.GetFieldHistory(ctx, ref, "PL_Tag_1")
	if err != nil {
		t.Fatalf("field history: %v", err)
	}
	if len(fh.History) != 2 || fh.History[0].Value != "GOO_ON" || fh.History[1].Value != "GOO_QC" {
		t.Errorf("unexpected field history: %+v", fh.History)
	}

	if err := svc.CancelTags(ctx, ref); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	h, _ = svc.GetHistory(ctx, ref)
	if h.State != StateNone {
		t.Errorf("expected NONE after cancel, got %s", h.State)
	}

	entries, total, _ := auditRepo.ListByClient(ctx, "acme", "c1", 10, 0)
	if total != 3 {
		t.Fatalf("expected 3 audit entries, got %d", total)
	}
	if entries[0].Action != audit.ActionTagsCancelled || entries[2].Action != audit.ActionTagsCreated {
		t.Errorf("unexpected audit order: %s .. %s", entries[0].Action, entries[2].Action)
	}
}

func TestCreateTag_SnapshotsWholeFieldGroup(t *testing.T) {
	svc, _, _ := newTestService(t)
	h, err := svc.CreateTag(context.Background(), placementRef())
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	for _, f := range KindPlacement.Fields() {
		if _, ok := h.LatestTag.Values[f]; !ok {
			t.Errorf("snapshot missing field %s", f)
		}
	}
	if h.LatestTag.CampaignID != "c1" || h.LatestTag.ID == "" {
		t.Errorf("unexpected snapshot identity: %+v", h.LatestTag)
	}
}

// --- Validation ---

func TestResolve_RejectsBadReferences(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	cases := map[string]EntityRef{
		"unknown kind":   {ClientID: "acme", Kind: "tactic", Path: placementPath},
		"bad path":       {ClientID: "acme", Kind: KindPlacement, Path: "nope"},
		"other client":   {ClientID: "globex", Kind: KindPlacement, Path: placementPath},
		"kind mismatch":  {ClientID: "acme", Kind: KindCreative, Path: placementPath},
		"tactic as kind": {ClientID: "acme", Kind: KindTacticMetrics, Path: placementPath},
	}
	for name, ref := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := svc.GetHistory(ctx, ref)
			assertAppError(t, err, http.StatusBadRequest)
		})
	}
}

func TestGetHistory_MissingEntity(t *testing.T) {
	svc, _, _ := newTestService(t)
	ref := placementRef()
	ref.Path = placementPath[:len(placementPath)-2] + "p404"

	_, err := svc.GetHistory(context.Background(), ref)
	assertAppError(t, err, http.StatusNotFound)
}

func TestGetFieldHistory_UntrackedField(t *testing.T) {
	svc, _, _ := newTestService(t)
	_, err := svc.GetFieldHistory(context.Background(), placementRef(), "PL_Audience")
	assertAppError(t, err, http.StatusBadRequest)
}

func TestCreateTag_RepoError(t *testing.T) {
	docs := docstore.NewMemory()
	_ = docs.Set(context.Background(), placementPath, map[string]any{})
	svc := NewTagService(&mockTagRepo{
		insertFn: func(ctx context.Context, s *Snapshot) error { return errors.New("db down") },
	}, docs, nil)

	_, err := svc.CreateTag(context.Background(), placementRef())
	assertAppError(t, err, http.StatusInternalServerError)
}

// staleTagRepo answers reads from a fixed view while writes go to the real
// repository, the way a concurrent request sees the store.
type staleTagRepo struct {
	TagRepository
	view []Snapshot
}

func (r *staleTagRepo) ListByEntity(context.Context, EntityKind, string) ([]Snapshot, error) {
	return r.view, nil
}

func TestCreateTag_ConcurrentCreateIsConflict(t *testing.T) {
	svc, docs, _ := newTestService(t)
	ctx := context.Background()
	if _, err := svc.CreateTag(ctx, placementRef()); err != nil {
		t.Fatalf("first create: %v", err)
	}

	racing := NewTagService(&staleTagRepo{TagRepository: svc.repo}, docs, nil)
	_, err := racing.CreateTag(ctx, placementRef())
	assertAppError(t, err, http.StatusConflict)
}

func TestConfirmApplied_ConcurrentConfirmIsConflict(t *testing.T) {
	svc, docs, _ := newTestService(t)
	ctx := context.Background()
	created, err := svc.CreateTag(ctx, placementRef())
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	_ = docs.Update(ctx, placementPath, map[string]any{"PL_Tag_1": "GOO_ON"})
	if _, err := svc.ConfirmApplied(ctx, placementRef()); err != nil {
		t.Fatalf("first confirm: %v", err)
	}

	racing := NewTagService(&staleTagRepo{TagRepository: svc.repo, view: created.Tags}, docs, nil)
	_, err = racing.ConfirmApplied(ctx, placementRef())
	assertAppError(t, err, http.StatusConflict)
}

func TestIsDuplicateEntry(t *testing.T) {
	dup := fmt.Errorf("exec: %w", &mysql.MySQLError{Number: 1062, Message: "Duplicate entry"})
	if !isDuplicateEntry(dup) {
		t.Error("expected 1062 to be a duplicate entry")
	}
	if isDuplicateEntry(&mysql.MySQLError{Number: 1213}) || isDuplicateEntry(errors.New("Duplicate entry")) || isDuplicateEntry(nil) {
		t.Error("unexpected duplicate entry match")
	}
}

// --- Changed entities ---

func TestListChangedEntities(t *testing.T) {
	svc, docs, _ := newTestService(t)
	ctx := context.Background()

	other := placementPath[:len(placementPath)-2] + "p2"
	gone := placementPath[:len(placementPath)-2] + "p3"
	_ = docs.Set(ctx, other, map[string]any{"PL_Tag_1": "same"})
	_ = docs.Set(ctx, gone, map[string]any{"PL_Tag_1": "x"})

	for _, p := range []string{placementPath, other, gone} {
		if _, err := svc.CreateTag(ctx, EntityRef{ClientID: "acme", Kind: KindPlacement, Path: p}); err != nil {
			t.Fatalf("create %s: %v", p, err)
		}
	}
	_ = docs.Update(ctx, placementPath, map[string]any{"PL_Tag_Type": "Video"})
	_ = docs.Delete(ctx, gone)

	changed, err := svc.ListChangedEntities(ctx, "acme", "c1", KindPlacement)
	if err != nil {
		t.Fatalf("list changed: %v", err)
	}
	if len(changed) != 1 || changed[0].EntityPath != placementPath {
		t.Fatalf("expected only the edited placement, got %+v", changed)
	}
	if len(changed[0].ChangedFields) != 1 || changed[0].ChangedFields[0] != "PL_Tag_Type" {
		t.Errorf("unexpected changed fields: %v", changed[0].ChangedFields)
	}
}

func TestListChangedEntities_Validation(t *testing.T) {
	svc, _, _ := newTestService(t)
	_, err := svc.ListChangedEntities(context.Background(), "acme", "", KindPlacement)
	assertAppError(t, err, http.StatusBadRequest)
	_, err = svc.ListChangedEntities(context.Background(), "acme", "c1", "bogus")
	assertAppError(t, err, http.StatusBadRequest)
}
