package reorg

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/keyxmakerx/mediatag/internal/apperror"
	"github.com/keyxmakerx/mediatag/internal/docstore"
	"github.com/keyxmakerx/mediatag/internal/plugins/audit"
	"github.com/keyxmakerx/mediatag/internal/plugins/campaigns"
	"github.com/keyxmakerx/mediatag/internal/plugins/regen"
)

// --- Mocks ---

// mockDispatcher implements Dispatcher for testing.
type mockDispatcher struct {
	submitFn func(parentType regen.ParentType, parent campaigns.Ref) (*regen.Job, error)
}

func (m *mockDispatcher) Submit(parentType regen.ParentType, parent campaigns.Ref) (*regen.Job, error) {
	if m.submitFn != nil {
		return m.submitFn(parentType, parent)
	}
	return &regen.Job{ID: "job-1", ParentType: parentType, ParentPath: parent.Path()}, nil
}

// mockGuard implements Guard for testing.
type mockGuard struct {
	acquireFn func(ctx context.Context, key string, ttl time.Duration) (func(), error)
}

func (m *mockGuard) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	if m.acquireFn != nil {
		return m.acquireFn(ctx, key, ttl)
	}
	return func() {}, nil
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

const (
	tabPath = "clients/acme/campaigns/c1/versions/v1/onglets/o1"
	s1Path  = tabPath + "/sections/s1"
	s2Path  = tabPath + "/sections/s2"
	t1Path  = s1Path + "/tactiques/t1"
	t2Path  = s2Path + "/tactiques/t2"
	p1Path  = t1Path + "/placements/p1"
	cr1Path = p1Path + "/creatifs/cr1"
	p2Path  = t2Path + "/placements/p2"
)

func seedStore(t *testing.T) docstore.Store {
	t.Helper()
	store := docstore.NewMemory()
	docs := map[string]map[string]any{
		s1Path:  {},
		s2Path:  {},
		t1Path:  {"TC_Label": "Search", "TC_SectionId": "s1"},
		t2Path:  {"TC_Label": "Social", "TC_SectionId": "s2"},
		p1Path:  {"PL_Label": "Home", "PL_TactiqueId": "t1"},
		cr1Path: {"CR_Version": "A", "CR_PlacementId": "p1"},
		p2Path:  {"PL_Label": "Feed", "PL_TactiqueId": "t2"},
	}
	for path, data := range docs {
		if err := store.Set(context.Background(), path, data); err != nil {
			t.Fatalf("seeding %s: %v", path, err)
		}
	}
	return store
}

type submitted struct {
	parentType regen.ParentType
	parent     campaigns.Ref
}

func newService(store docstore.Store, guard Guard) (MoveService, *[]submitted, audit.AuditRepository) {
	var calls []submitted
	d := &mockDispatcher{submitFn: func(pt regen.ParentType, parent campaigns.Ref) (*regen.Job, error) {
		calls = append(calls, submitted{pt, parent})
		return &regen.Job{ID: "job-1", ParentType: pt, ParentPath: parent.Path()}, nil
	}}
	auditRepo := audit.NewMemoryAuditRepository()
	return NewMoveService(store, guard, 30*time.Second, d, audit.NewAuditService(auditRepo)), &calls, auditRepo
}

func exists(t *testing.T, store docstore.Store, path string) bool {
	t.Helper()
	_, err := store.Get(context.Background(), path)
	if err != nil && !apperror.IsNotFound(err) {
		t.Fatalf("reading %s: %v", path, err)
	}
	return err == nil
}

// --- Moves ---

func TestMove_TacticCarriesSubtree(t *testing.T) {
	store := seedStore(t)
	svc, calls, auditRepo := newService(store, NewMemoryGuard())
	ctx := context.Background()

	res, err := svc.Move(ctx, "acme", MoveRequest{EntityPath: t1Path, DestinationPath: s2Path})
	if err != nil {
		t.Fatalf("move: %v", err)
	}

	newT1 := s2Path + "/tactiques/t1"
	if res.To != newT1 || res.Documents != 3 || res.Kind != "tactic" {
		t.Errorf("unexpected result: %+v", res)
	}
	for _, p := range []string{t1Path, p1Path, cr1Path} {
		if exists(t, store, p) {
			t.Errorf("old document %s still exists", p)
		}
	}
	for _, p := range []string{newT1, newT1 + "/placements/p1", newT1 + "/placements/p1/creatifs/cr1"} {
		if !exists(t, store, p) {
			t.Errorf("moved document %s missing", p)
		}
	}

	doc, _ := store.Get(ctx, newT1)
	if doc.Data["TC_SectionId"] != "s2" || doc.Data["TC_Label"] != "Search" {
		t.Errorf("unexpected moved tactic: %v", doc.Data)
	}
	doc, _ = store.Get(ctx, newT1+"/placements/p1")
	if doc.Data["PL_TactiqueId"] != "t1" {
		t.Errorf("child parent id rewritten: %v", doc.Data)
	}

	if len(*calls) != 1 || (*calls)[0].parentType != regen.ParentTactic || (*calls)[0].parent.Path() != newT1 {
		t.Errorf("unexpected regeneration dispatch: %+v", *calls)
	}
	if res.Regeneration == nil || res.Regeneration.ID != "job-1" {
		t.Errorf("missing regeneration job: %+v", res.Regeneration)
	}

	entries, _ := auditRepo.ListByEntity(ctx, newT1, 10)
	if len(entries) != 1 || entries[0].Action != audit.ActionEntityMoved {
		t.Errorf("unexpected audit entries: %+v", entries)
	}
}

func TestMove_CreativeRegeneratesDestinationPlacement(t *testing.T) {
	store := seedStore(t)
	svc, calls, _ := newService(store, NewMemoryGuard())

	res, err := svc.Move(context.Background(), "acme", MoveRequest{EntityPath: cr1Path, DestinationPath: p2Path})
	if err != nil {
		t.Fatalf("move: %v", err)
	}
	doc, _ := store.Get(context.Background(), res.To)
	if doc.Data["CR_PlacementId"] != "p2" {
		t.Errorf("CR_PlacementId = %v", doc.Data["CR_PlacementId"])
	}
	if len(*calls) != 1 || (*calls)[0].parentType != regen.ParentPlacement || (*calls)[0].parent.Path() != p2Path {
		t.Errorf("unexpected regeneration dispatch: %+v", *calls)
	}
}

func TestMove_PlacementRegeneratesItself(t *testing.T) {
	store := seedStore(t)
	svc, calls, _ := newService(store, NewMemoryGuard())

	res, err := svc.Move(context.Background(), "acme", MoveRequest{EntityPath: p1Path, DestinationPath: t2Path})
	if err != nil {
		t.Fatalf("move: %v", err)
	}
	if res.Documents != 2 {
		t.Errorf("expected placement and creative, moved %d", res.Documents)
	}
	if len(*calls) != 1 || (*calls)[0].parent.Path() != t2Path+"/placements/p1" {
		t.Errorf("unexpected regeneration dispatch: %+v", *calls)
	}
}

func TestMove_QueueFailureDoesNotFailMove(t *testing.T) {
	store := seedStore(t)
	d := &mockDispatcher{submitFn: func(regen.ParentType, campaigns.Ref) (*regen.Job, error) {
		return nil, regen.ErrQueueFull
	}}
	svc := NewMoveService(store, NewMemoryGuard(), 30*time.Second, d, nil)

	res, err := svc.Move(context.Background(), "acme", MoveRequest{EntityPath: p1Path, DestinationPath: t2Path})
	if err != nil {
		t.Fatalf("move: %v", err)
	}
	if res.Regeneration != nil {
		t.Errorf("expected no job, got %+v", res.Regeneration)
	}
	if !exists(t, store, t2Path+"/placements/p1") {
		t.Error("move was not applied")
	}
}

// --- Guard ---

func TestMove_BusyGuardIsLocked(t *testing.T) {
	store := seedStore(t)
	guard := &mockGuard{acquireFn: func(ctx context.Context, key string, ttl time.Duration) (func(), error) {
		if key != "acme:c1" || ttl != 30*time.Second {
			t.Errorf("unexpected lock %s for %s", key, ttl)
		}
		return nil, ErrBusy
	}}
	svc, calls, _ := newService(store, guard)

	_, err := svc.Move(context.Background(), "acme", MoveRequest{EntityPath: p1Path, DestinationPath: t2Path})
	assertAppError(t, err, http.StatusLocked)
	if !exists(t, store, p1Path) || len(*calls) != 0 {
		t.Error("busy move touched the tree")
	}
}

func TestMove_ReleasesGuard(t *testing.T) {
	store := seedStore(t)
	released := 0
	guard := &mockGuard{acquireFn: func(context.Context, string, time.Duration) (func(), error) {
		return func() { released++ }, nil
	}}
	svc, _, _ := newService(store, guard)

	_, _ = svc.Move(context.Background(), "acme", MoveRequest{EntityPath: p1Path, DestinationPath: t2Path})
	_, _ = svc.Move(context.Background(), "acme", MoveRequest{EntityPath: p1Path, DestinationPath: t2Path})
	if released != 2 {
		t.Errorf("expected release after success and failure, got %d", released)
	}
}

// --- Validation ---

func TestMove_Validation(t *testing.T) {
	store := seedStore(t)
	_ = store.Set(context.Background(), t2Path+"/placements/p1", map[string]any{})
	svc, _, _ := newService(store, NewMemoryGuard())
	ctx := context.Background()

	tests := []struct {
		name string
		req  MoveRequest
		code int
	}{
		{"bad path", MoveRequest{EntityPath: "nope", DestinationPath: s2Path}, http.StatusBadRequest},
		{"section not movable", MoveRequest{EntityPath: s1Path, DestinationPath: tabPath}, http.StatusBadRequest},
		{"wrong destination level", MoveRequest{EntityPath: p1Path, DestinationPath: s2Path}, http.StatusBadRequest},
		{"same parent", MoveRequest{EntityPath: p1Path, DestinationPath: t1Path}, http.StatusBadRequest},
		{"other campaign", MoveRequest{EntityPath: p1Path, DestinationPath: "clients/acme/campaigns/c2/versions/v1/onglets/o1/sections/s1/tactiques/t9"}, http.StatusBadRequest},
		{"other client", MoveRequest{EntityPath: "clients/globex/campaigns/c1/versions/v1/onglets/o1/sections/s1/tactiques/t1", DestinationPath: s2Path}, http.StatusBadRequest},
		{"missing destination", MoveRequest{EntityPath: p1Path, DestinationPath: s2Path + "/tactiques/t404"}, http.StatusNotFound},
		{"missing entity", MoveRequest{EntityPath: t1Path + "/placements/p404", DestinationPath: t2Path}, http.StatusNotFound},
		{"id taken at destination", MoveRequest{EntityPath: p1Path, DestinationPath: t2Path}, http.StatusConflict},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Move(ctx, "acme", tt.req)
			assertAppError(t, err, tt.code)
		})
	}
}
