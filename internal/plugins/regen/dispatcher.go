package regen

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/keyxmakerx/mediatag/internal/plugins/audit"
	"github.com/keyxmakerx/mediatag/internal/plugins/campaigns"
)

var (
	// ErrQueueFull is returned when the dispatcher cannot accept more jobs.
	ErrQueueFull = errors.New("regeneration queue is full")

	// ErrDispatcherClosed is returned after Close.
	ErrDispatcherClosed = errors.New("regeneration dispatcher is closed")
)

// BulkRunner runs one post-move bulk regeneration.
type BulkRunner interface {
	UpdateTaxonomiesAfterMove(ctx context.Context, parentType ParentType, parent campaigns.Ref) (*Result, error)
}

// Job is one queued bulk regeneration.
type Job struct {
	ID          string        `json:"id"`
	ParentType  ParentType    `json:"parentType"`
	Parent      campaigns.Ref `json:"-"`
	ParentPath  string        `json:"parentPath"`
	SubmittedAt time.Time     `json:"submittedAt"`
}

// DispatcherConfig sizes the worker pool.
type DispatcherConfig struct {
	Workers   int
	QueueSize int

	// Timeout caps one job. Zero means no cap.
	Timeout time.Duration
}

// Dispatcher runs bulk regenerations on a fixed pool of background workers.
// The caller that submits a job never waits on it: failures are logged and
// written to the audit log.
type Dispatcher struct {
	runner   BulkRunner
	auditSvc audit.AuditService
	timeout  time.Duration

	jobs chan Job
	wg   sync.WaitGroup

	mu     sync.RWMutex
	closed bool
	stop   context.CancelFunc
	base   context.Context
}

// NewDispatcher starts cfg.Workers workers. auditSvc may be nil.
func NewDispatcher(runner BulkRunner, auditSvc audit.AuditService, cfg DispatcherConfig) *Dispatcher {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.QueueSize < 0 {
		cfg.QueueSize = 0
	}
	base, stop := context.WithCancel(context.Background())
	d := &Dispatcher{
		runner:   runner,
		auditSvc: auditSvc,
		timeout:  cfg.Timeout,
		jobs:     make(chan Job, cfg.QueueSize),
		base:     base,
		stop:     stop,
	}
	for i := 0; i < cfg.Workers; i++ {
		d.wg.Add(1)
		go d.worker()
	}
	return d
}

// Submit queues a bulk regeneration of the subtree under parent and
// returns immediately with the job.
func (d *Dispatcher) Submit(parentType ParentType, parent campaigns.Ref) (*Job, error) {
	job := Job{
		ID:          uuid.NewString(),
		ParentType:  parentType,
		Parent:      parent,
		ParentPath:  parent.Path(),
		SubmittedAt: time.Now().UTC(),
	}

	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		droppedJobsTotal.Inc()
		return nil, ErrDispatcherClosed
	}

	queueDepth.Inc()
	select {
	case d.jobs <- job:
		return &job, nil
	default:
		queueDepth.Dec()
		droppedJobsTotal.Inc()
		slog.Warn("regeneration queue full, dropping job",
			slog.String("parent_type", string(parentType)),
			slog.String("parent_path", job.ParentPath),
		)
		return nil, ErrQueueFull
	}
}

// Close stops accepting jobs and waits for queued ones to finish. When ctx
// expires first, running jobs are cancelled and ctx's error is returned.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.jobs)
	}
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		d.stop()
		return nil
	case <-ctx.Done():
		d.stop()
		<-done
		return ctx.Err()
	}
}

func (d *Dispatcher) worker() {
	defer d.wg.Done()
	for job := range d.jobs {
		queueDepth.Dec()
		d.run(job)
	}
}

func (d *Dispatcher) run(job Job) {
	ctx := d.base
	if d.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}

	defer func() {
		if r := recover(); r != nil {
			slog.Error("panic in bulk regeneration",
				slog.String("job_id", job.ID),
				slog.Any("panic", r),
			)
		}
	}()

	res, err := d.runner.UpdateTaxonomiesAfterMove(ctx, job.ParentType, job.Parent)
	if err != nil {
		slog.Error("bulk taxonomy regeneration failed",
			slog.String("job_id", job.ID),
			slog.String("parent_type", string(job.ParentType)),
			slog.String("parent_path", job.ParentPath),
			slog.Any("error", err),
		)
		d.record(job, audit.ActionTaxonomyBulkFailed, map[string]any{"error": err.Error()})
		return
	}
	if res.Committed {
		d.record(job, audit.ActionTaxonomyBulkRegenerated, map[string]any{
			"staged":  res.Staged,
			"skipped": res.Skipped,
		})
	}
}

// record writes an audit entry with a fresh context; the job context may
// already be expired.
func (d *Dispatcher) record(job Job, action string, details map[string]any) {
	if d.auditSvc == nil {
		return
	}
	details["jobId"] = job.ID
	details["parentType"] = string(job.ParentType)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = d.auditSvc.Log(ctx, &audit.AuditEntry{
		ClientID:   job.Parent.ClientID,
		CampaignID: job.Parent.CampaignID,
		Action:     action,
		EntityKind: string(job.ParentType),
		EntityPath: job.ParentPath,
		Details:    details,
	})
}
