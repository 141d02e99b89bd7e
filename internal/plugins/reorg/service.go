package reorg

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/keyxmakerx/mediatag/internal/apperror"
	"github.com/keyxmakerx/mediatag/internal/docstore"
	"github.com/keyxmakerx/mediatag/internal/plugins/audit"
	"github.com/keyxmakerx/mediatag/internal/plugins/campaigns"
	"github.com/keyxmakerx/mediatag/internal/plugins/regen"
)

// Dispatcher queues a background bulk regeneration.
type Dispatcher interface {
	Submit(parentType regen.ParentType, parent campaigns.Ref) (*regen.Job, error)
}

// MoveService re-parents tree entities.
type MoveService interface {
	// Move re-parents the entity. Only one move per campaign runs at a
	// time; a concurrent one fails with 423 Locked.
	Move(ctx context.Context, clientID string, req MoveRequest) (*MoveResult, error)
}

type moveService struct {
	store      docstore.Store
	guard      Guard
	lockTTL    time.Duration
	dispatcher Dispatcher
	auditSvc   audit.AuditService
}

// NewMoveService creates a move service. auditSvc may be nil.
func NewMoveService(store docstore.Store, guard Guard, lockTTL time.Duration, dispatcher Dispatcher, auditSvc audit.AuditService) MoveService {
	return &moveService{
		store:      store,
		guard:      guard,
		lockTTL:    lockTTL,
		dispatcher: dispatcher,
		auditSvc:   auditSvc,
	}
}

func (s *moveService) Move(ctx context.Context, clientID string, req MoveRequest) (*MoveResult, error) {
	src, dest, m, err := s.validate(clientID, req)
	if err != nil {
		return nil, err
	}

	release, err := s.guard.Acquire(ctx, clientID+":"+src.CampaignID, s.lockTTL)
	if errors.Is(err, ErrBusy) {
		return nil, apperror.NewLocked("another move is in progress for this campaign")
	}
	if err != nil {
		return nil, apperror.NewInternal(err)
	}
	defer release()

	if _, err := s.store.Get(ctx, dest.Path()); err != nil {
		if apperror.IsNotFound(err) {
			return nil, apperror.NewNotFound("destination not found")
		}
		return nil, apperror.NewInternal(fmt.Errorf("loading destination: %w", err))
	}

	docs, err := s.collect(ctx, src.Path(), m.children)
	if apperror.IsNotFound(err) {
		return nil, apperror.NewNotFound(m.kind + " not found")
	}
	if err != nil {
		return nil, apperror.NewInternal(err)
	}

	moved := dest.With(src.ID())
	to := moved.Path()
	if _, err := s.store.Get(ctx, to); err == nil {
		return nil, apperror.NewConflict("destination already holds a " + m.kind + " with this id")
	} else if !apperror.IsNotFound(err) {
		return nil, apperror.NewInternal(fmt.Errorf("checking destination: %w", err))
	}

	from := src.Path()
	batch := s.store.Batch()
	for i, d := range docs {
		data := d.Data
		if data == nil {
			data = map[string]any{}
		}
		if i == 0 {
			data[m.parentField] = m.parentID(dest)
		}
		batch.Set(to+strings.TrimPrefix(d.Path, from), data)
	}
	for i := len(docs) - 1; i >= 0; i-- {
		batch.Delete(docs[i].Path)
	}
	if err := batch.Commit(ctx); err != nil {
		return nil, apperror.NewInternal(fmt.Errorf("committing move of %s: %w", from, err))
	}

	slog.Info("entity moved",
		slog.String("kind", m.kind),
		slog.String("from", from),
		slog.String("to", to),
		slog.Int("documents", len(docs)),
	)

	res := &MoveResult{Kind: m.kind, From: from, To: to, Documents: len(docs)}
	res.Regeneration = s.dispatch(m, moved, dest)
	s.record(ctx, moved, res)
	return res, nil
}

// validate parses both paths and checks the move is a legal re-parent.
func (s *moveService) validate(clientID string, req MoveRequest) (src, dest campaigns.Ref, m movable, err error) {
	src, err = campaigns.ParseRef(req.EntityPath)
	if err != nil {
		return src, dest, m, apperror.NewBadRequest(err.Error())
	}
	dest, err = campaigns.ParseRef(req.DestinationPath)
	if err != nil {
		return src, dest, m, apperror.NewBadRequest(err.Error())
	}
	if src.ClientID != clientID || dest.ClientID != clientID {
		return src, dest, m, apperror.NewBadRequest("paths must belong to the client")
	}

	m, ok := movables[src.Depth()]
	if !ok {
		return src, dest, m, apperror.NewBadRequest("only tactics, placements and creatives can be moved")
	}
	if dest.Depth() != m.depth-1 {
		return src, dest, m, apperror.NewBadRequest(fmt.Sprintf("a %s must move under a %s", m.kind, m.parentKind))
	}
	if dest.CampaignID != src.CampaignID {
		return src, dest, m, apperror.NewBadRequest("moves across campaigns are not supported")
	}
	if src.Truncate(m.depth-1) == dest {
		return src, dest, m, apperror.NewBadRequest(m.kind + " is already under this parent")
	}
	return src, dest, m, nil
}

// collect returns the document at root followed by its descendants in the
// given child collections, parents before children.
func (s *moveService) collect(ctx context.Context, root string, children []string) ([]docstore.Document, error) {
	doc, err := s.store.Get(ctx, root)
	if err != nil {
		return nil, err
	}
	out := []docstore.Document{*doc}
	if len(children) == 0 {
		return out, nil
	}

	kids, err := s.store.List(ctx, docstore.Join(root, children[0]))
	if err != nil {
		return nil, fmt.Errorf("listing %s of %s: %w", children[0], root, err)
	}
	for _, k := range kids {
		sub, err := s.collect(ctx, k.Path, children[1:])
		if err != nil {
			return nil, err
		}
		out = append(out, sub...)
	}
	return out, nil
}

// dispatch queues the post-move regeneration. Queue failures are logged;
// the move has already succeeded.
func (s *moveService) dispatch(m movable, moved, dest campaigns.Ref) *regen.Job {
	if s.dispatcher == nil {
		return nil
	}
	parentType, parent := regen.ParentTactic, moved
	switch m.kind {
	case "placement":
		parentType = regen.ParentPlacement
	case "creative":
		parentType, parent = regen.ParentPlacement, dest
	}

	job, err := s.dispatcher.Submit(parentType, parent)
	if err != nil {
		slog.Warn("post-move regeneration not queued",
			slog.String("path", moved.Path()),
			slog.Any("error", err),
		)
		return nil
	}
	return job
}

func (s *moveService) record(ctx context.Context, moved campaigns.Ref, res *MoveResult) {
	if s.auditSvc == nil {
		return
	}
	details := map[string]any{"from": res.From, "to": res.To, "documents": res.Documents}
	if res.Regeneration != nil {
		details["jobId"] = res.Regeneration.ID
	}
	_ = s.auditSvc.Log(ctx, &audit.AuditEntry{
		ClientID:   moved.ClientID,
		CampaignID: moved.CampaignID,
		Action:     audit.ActionEntityMoved,
		EntityKind: res.Kind,
		EntityPath: res.To,
		Details:    details,
	})
}
