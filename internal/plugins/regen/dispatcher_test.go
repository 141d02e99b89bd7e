package regen

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/keyxmakerx/mediatag/internal/plugins/audit"
	"github.com/keyxmakerx/mediatag/internal/plugins/campaigns"
)

// mockRunner implements BulkRunner for testing.
type mockRunner struct {
	runFn func(ctx context.Context, parentType ParentType, parent campaigns.Ref) (*Result, error)
}

func (m *mockRunner) UpdateTaxonomiesAfterMove(ctx context.Context, parentType ParentType, parent campaigns.Ref) (*Result, error) {
	if m.runFn != nil {
		return m.runFn(ctx, parentType, parent)
	}
	return &Result{}, nil
}

var tacticRef = campaigns.Ref{
	ClientID: "acme", CampaignID: "c1", VersionID: "v1", TabID: "o1", SectionID: "s1", TacticID: "t1",
}

func TestDispatcher_RunsSubmittedJobs(t *testing.T) {
	var (
		mu   sync.Mutex
		seen []ParentType
	)
	runner := &mockRunner{runFn: func(ctx context.Context, pt ParentType, parent campaigns.Ref) (*Result, error) {
		mu.Lock()
		seen = append(seen, pt)
		mu.Unlock()
		return &Result{Committed: true, Staged: 2}, nil
	}}
	auditRepo := audit.NewMemoryAuditRepository()
	d := NewDispatcher(runner, audit.NewAuditService(auditRepo), DispatcherConfig{Workers: 2, QueueSize: 4})

	for _, pt := range []ParentType{ParentTactic, ParentPlacement} {
		job, err := d.Submit(pt, tacticRef)
		if err != nil {
			t.Fatalf("submit: %v", err)
		}
		if job.ID == "" || job.ParentPath != tacticRef.Path() {
			t.Errorf("unexpected job: %+v", job)
		}
	}
	if err := d.Close(context.Background()); err != nil {
		t.Fatalf("close: %v", err)
	}

	if len(seen) != 2 {
		t.Fatalf("expected 2 runs, got %d", len(seen))
	}
	entries, total, _ := auditRepo.ListByClient(context.Background(), "acme", "c1", 10, 0)
	if total != 2 || entries[0].Action != audit.ActionTaxonomyBulkRegenerated {
		t.Errorf("unexpected audit entries: %+v", entries)
	}
}

func TestDispatcher_QueueFull(t *testing.T) {
	started := make(chan struct{}, 1)
	release := make(chan struct{})
	runner := &mockRunner{runFn: func(ctx context.Context, pt ParentType, parent campaigns.Ref) (*Result, error) {
		started <- struct{}{}
		<-release
		return &Result{}, nil
	}}
	d := NewDispatcher(runner, nil, DispatcherConfig{Workers: 1, QueueSize: 1})

	if _, err := d.Submit(ParentTactic, tacticRef); err != nil {
		t.Fatalf("first submit: %v", err)
	}
	<-started

	if _, err := d.Submit(ParentTactic, tacticRef); err != nil {
		t.Fatalf("second submit: %v", err)
	}
	if _, err := d.Submit(ParentTactic, tacticRef); !errors.Is(err, ErrQueueFull) {
		t.Fatalf("expected ErrQueueFull, got %v", err)
	}

	close(release)
	<-started
	if err := d.Close(context.Background()); err != nil {
		t.Fatalf("close: %v", err)
	}
	if _, err := d.Submit(ParentTactic, tacticRef); !errors.Is(err, ErrDispatcherClosed) {
		t.Errorf("expected ErrDispatcherClosed, got %v", err)
	}
}

func TestDispatcher_FailureIsAudited(t *testing.T) {
	runner := &mockRunner{runFn: func(ctx context.Context, pt ParentType, parent campaigns.Ref) (*Result, error) {
		return nil, errors.New("commit failed")
	}}
	auditRepo := audit.NewMemoryAuditRepository()
	d := NewDispatcher(runner, audit.NewAuditService(auditRepo), DispatcherConfig{Workers: 1, QueueSize: 1})

	if _, err := d.Submit(ParentTactic, tacticRef); err != nil {
		t.Fatalf("submit: %v", err)
	}
	_ = d.Close(context.Background())

	entries, err := auditRepo.ListByEntity(context.Background(), tacticRef.Path(), 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(entries) != 1 || entries[0].Action != audit.ActionTaxonomyBulkFailed {
		t.Fatalf("expected one bulk_failed entry, got %+v", entries)
	}
	if entries[0].Details["error"] != "commit failed" {
		t.Errorf("unexpected details: %v", entries[0].Details)
	}
}

func TestDispatcher_TimeoutCancelsJob(t *testing.T) {
	done := make(chan error, 1)
	runner := &mockRunner{runFn: func(ctx context.Context, pt ParentType, parent campaigns.Ref) (*Result, error) {
		<-ctx.Done()
		done <- ctx.Err()
		return nil, ctx.Err()
	}}
	d := NewDispatcher(runner, nil, DispatcherConfig{Workers: 1, QueueSize: 1, Timeout: 10 * time.Millisecond})
	defer d.Close(context.Background())

	if _, err := d.Submit(ParentCampaign, tacticRef.Truncate(1)); err != nil {
		t.Fatalf("submit: %v", err)
	}
	select {
	case err := <-done:
		if !errors.Is(err, context.DeadlineExceeded) {
			t.Errorf("expected deadline exceeded, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("job was not cancelled")
	}
}

func TestDispatcher_QueueDepthGauge(t *testing.T) {
	started := make(chan struct{}, 1)
	release := make(chan struct{})
	runner := &mockRunner{runFn: func(ctx context.Context, pt ParentType, parent campaigns.Ref) (*Result, error) {
		started <- struct{}{}
		<-release
		return &Result{}, nil
	}}
	base := testutil.ToFloat64(queueDepth)
	d := NewDispatcher(runner, nil, DispatcherConfig{Workers: 1, QueueSize: 1})

	if _, err := d.Submit(ParentTactic, tacticRef); err != nil {
		t.Fatalf("first submit: %v", err)
	}
	<-started
	if got := testutil.ToFloat64(queueDepth); got != base {
		t.Errorf("depth with an empty queue = %v, want %v", got, base)
	}

	if _, err := d.Submit(ParentTactic, tacticRef); err != nil {
		t.Fatalf("second submit: %v", err)
	}
	if _, err := d.Submit(ParentTactic, tacticRef); !errors.Is(err, ErrQueueFull) {
		t.Fatalf("expected ErrQueueFull, got %v", err)
	}
	if got := testutil.ToFloat64(queueDepth); got != base+1 {
		t.Errorf("depth after a rejected submit = %v, want %v", got, base+1)
	}

	close(release)
	if err := d.Close(context.Background()); err != nil {
		t.Fatalf("close: %v", err)
	}
	if got := testutil.ToFloat64(queueDepth); got != base {
		t.Errorf("depth after drain = %v, want %v", got, base)
	}
}
