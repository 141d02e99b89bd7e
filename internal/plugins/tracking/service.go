package tracking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/keyxmakerx/mediatag/internal/apperror"
	"github.com/keyxmakerx/mediatag/internal/docstore"
	"github.com/keyxmakerx/mediatag/internal/plugins/audit"
	"github.com/keyxmakerx/mediatag/internal/plugins/campaigns"
)

// EntityRef addresses one tracked entity of a client.
type EntityRef struct {
	ClientID string
	Kind     EntityKind
	Path     string
}

// TagService handles the CM360 tag lifecycle of placements, creatives and
// tactic metrics.
//
//	NONE --CreateTag--> CREATED <--ConfirmApplied-- CHANGED
//	                       \________live edit________/
//	(any) --CancelTags--> NONE
type TagService interface {
	// GetHistory returns the derived tag history of an entity.
	GetHistory(ctx context.Context, ref EntityRef) (*History, error)

	// CreateTag takes the first snapshot of an entity. Conflict unless the
	// entity is in state NONE.
	CreateTag(ctx context.Context, ref EntityRef) (*History, error)

	// ConfirmApplied appends a snapshot of the live values once the user
	// has pushed them to the ad server. No-op when nothing changed;
	// conflict when the entity has no tags.
	ConfirmApplied(ctx context.Context, ref EntityRef) (*History, error)

	// CancelTags removes the whole tag history of an entity.
	CancelTags(ctx context.Context, ref EntityRef) error

	// GetFieldHistory returns one field's value across snapshots, newest
	// first, alongside the live value.
	GetFieldHistory(ctx context.Context, ref EntityRef, field string) (*FieldHistory, error)

	// ListChangedEntities returns the entities of a campaign whose live
	// values drifted from their latest snapshot.
	ListChangedEntities(ctx context.Context, clientID, campaignID string, kind EntityKind) ([]ChangedEntity, error)
}

// tagService implements TagService.
type tagService struct {
	repo  TagRepository
	docs  docstore.Store
	audit audit.AuditService
	now   func() time.Time
}

// NewTagService creates a tag service reading live values from docs.
func NewTagService(repo TagRepository, docs docstore.Store, auditSvc audit.AuditService) TagService {
	return &tagService{repo: repo, docs: docs, audit: auditSvc, now: time.Now}
}

// kindCollection is the document collection each kind reads from.
var kindCollection = map[EntityKind]string{
	KindPlacement:     campaigns.CollPlacements,
	KindCreative:      campaigns.CollCreatives,
	KindTacticMetrics: campaigns.CollTactics,
}

// resolve validates an entity reference against the campaign tree.
func (s *tagService) resolve(ref EntityRef) (campaigns.Ref, error) {
	if _, ok := fieldGroups[ref.Kind]; !ok {
		return campaigns.Ref{}, apperror.NewBadRequest(fmt.Sprintf("unknown entity kind %q", ref.Kind))
	}
	tree, err := campaigns.ParseRef(ref.Path)
	if err != nil {
		return campaigns.Ref{}, apperror.NewBadRequest(err.Error())
	}
	if tree.ClientID != ref.ClientID {
		return campaigns.Ref{}, apperror.NewBadRequest("entity path belongs to another client")
	}
	if tree.Kind() != kindCollection[ref.Kind] {
		return campaigns.Ref{}, apperror.NewBadRequest(fmt.Sprintf("path does not point to a %s", ref.Kind))
	}
	return tree, nil
}

// load reads the snapshots and live values of an entity.
func (s *tagService) load(ctx context.Context, ref EntityRef) ([]Snapshot, map[string]any, error) {
	doc, err := s.docs.Get(ctx, ref.Path)
	if err != nil {
		if apperror.IsNotFound(err) {
			return nil, nil, apperror.NewNotFound(fmt.Sprintf("%s not found", ref.Kind))
		}
		return nil, nil, apperror.NewInternal(fmt.Errorf("loading %s: %w", ref.Path, err))
	}

	snaps, err := s.repo.ListByEntity(ctx, ref.Kind, ref.Path)
	if err != nil {
		return nil, nil, apperror.NewInternal(fmt.Errorf("listing tags of %s: %w", ref.Path, err))
	}
	return snaps, currentValues(ref.Kind, doc.Data), nil
}

// GetHistory returns the derived history of an entity.
func (s *tagService) GetHistory(ctx context.Context, ref EntityRef) (*History, error) {
	if _, err := s.resolve(ref); err != nil {
		return nil, err
	}
	snaps, current, err := s.load(ctx, ref)
	if err != nil {
		return nil, err
	}
	h := BuildHistory(ref.Kind, ref.Path, snaps, current)
	return &h, nil
}

// CreateTag takes version 1 of an entity's tags.
func (s *tagService) CreateTag(ctx context.Context, ref EntityRef) (*History, error) {
	tree, err := s.resolve(ref)
	if err != nil {
		return nil, err
	}
	snaps, current, err := s.load(ctx, ref)
	if err != nil {
		return nil, err
	}
	if len(snaps) > 0 {
		return nil, apperror.NewConflict("tags already exist for this entity")
	}

	snap, err := s.appendSnapshot(ctx, tree, ref, 1, current)
	if err != nil {
		return nil, err
	}
	s.record(ctx, tree, ref, audit.ActionTagsCreated, snap.Version)

	h := BuildHistory(ref.Kind, ref.Path, []Snapshot{*snap}, current)
	return &h, nil
}

// ConfirmApplied appends the next version when the live values changed.
func (s *tagService) ConfirmApplied(ctx context.Context, ref EntityRef) (*History, error) {
	tree, err := s.resolve(ref)
	if err != nil {
		return nil, err
	}
	snaps, current, err := s.load(ctx, ref)
	if err != nil {
		return nil, err
	}

	h := BuildHistory(ref.Kind, ref.Path, snaps, current)
	switch h.State {
	case StateNone:
		return nil, apperror.NewConflict("no tags to confirm; create tags first")
	case StateCreated:
		return &h, nil
	}

	snap, err := s.appendSnapshot(ctx, tree, ref, len(snaps)+1, current)
	if err != nil {
		return nil, err
	}
	s.record(ctx, tree, ref, audit.ActionTagsConfirmed, snap.Version)

	h = BuildHistory(ref.Kind, ref.Path, append(snaps, *snap), current)
	return &h, nil
}

// CancelTags deletes every snapshot of an entity. The live document is not
// required to exist.
func (s *tagService) CancelTags(ctx context.Context, ref EntityRef) error {
	tree, err := s.resolve(ref)
	if err != nil {
		return err
	}
	n, err := s.repo.DeleteByEntity(ctx, ref.Kind, ref.Path)
	if err != nil {
		return apperror.NewInternal(fmt.Errorf("cancelling tags of %s: %w", ref.Path, err))
	}
	slog.Info("cm360 tags cancelled",
		slog.String("entity_path", ref.Path),
		slog.String("kind", string(ref.Kind)),
		slog.Int64("removed", n),
	)
	s.record(ctx, tree, ref, audit.ActionTagsCancelled, 0)
	return nil
}

// GetFieldHistory projects one field of the entity's field group.
func (s *tagService) GetFieldHistory(ctx context.Context, ref EntityRef, field string) (*FieldHistory, error) {
	if _, err := s.resolve(ref); err != nil {
		return nil, err
	}
	if !inGroup(ref.Kind, field) {
		return nil, apperror.NewBadRequest(fmt.Sprintf("%s is not tracked for %s", field, ref.Kind))
	}
	snaps, current, err := s.load(ctx, ref)
	if err != nil {
		return nil, err
	}
	fh := GetFieldHistory(field, snaps, current[field])
	return &fh, nil
}

// ListChangedEntities compares the latest snapshot of every tracked entity
// of a campaign with its live document. Entities whose document is gone are
// skipped.
func (s *tagService) ListChangedEntities(ctx context.Context, clientID, campaignID string, kind EntityKind) ([]ChangedEntity, error) {
	if _, ok := fieldGroups[kind]; !ok {
		return nil, apperror.NewBadRequest(fmt.Sprintf("unknown entity kind %q", kind))
	}
	if clientID == "" || campaignID == "" {
		return nil, apperror.NewBadRequest("client and campaign are required")
	}

	latest, err := s.repo.ListLatestByCampaign(ctx, clientID, campaignID, kind)
	if err != nil {
		return nil, apperror.NewInternal(fmt.Errorf("listing latest tags: %w", err))
	}

	changed := []ChangedEntity{}
	for i := range latest {
		snap := &latest[i]
		doc, err := s.docs.Get(ctx, snap.EntityPath)
		if apperror.IsNotFound(err) {
			continue
		}
		if err != nil {
			return nil, apperror.NewInternal(fmt.Errorf("loading %s: %w", snap.EntityPath, err))
		}
		cs := DetectChanges(currentValues(kind, doc.Data), snap)
		if cs.HasChanges {
			changed = append(changed, ChangedEntity{
				EntityPath:    snap.EntityPath,
				Version:       snap.Version,
				ChangedFields: cs.ChangedFields,
			})
		}
	}
	return changed, nil
}

func (s *tagService) appendSnapshot(ctx context.Context, tree campaigns.Ref, ref EntityRef, version int, current map[string]any) (*Snapshot, error) {
	snap := &Snapshot{
		ID:         uuid.NewString(),
		ClientID:   tree.ClientID,
		CampaignID: tree.CampaignID,
		Kind:       ref.Kind,
		EntityPath: ref.Path,
		Version:    version,
		Timestamp:  s.now().UTC().Truncate(time.Millisecond),
		Values:     current,
	}
	if err := s.repo.Insert(ctx, snap); err != nil {
		if errors.Is(err, ErrDuplicateVersion) {
			return nil, apperror.NewConflict("tags of this entity changed concurrently; reload and retry")
		}
		return nil, apperror.NewInternal(fmt.Errorf("storing tag of %s: %w", ref.Path, err))
	}
	slog.Info("cm360 tag stored",
		slog.String("entity_path", ref.Path),
		slog.String("kind", string(ref.Kind)),
		slog.Int("version", version),
	)
	return snap, nil
}

// record writes an audit entry; failures are already logged by the
// audit service.
func (s *tagService) record(ctx context.Context, tree campaigns.Ref, ref EntityRef, action string, version int) {
	if s.audit == nil {
		return
	}
	entry := &audit.AuditEntry{
		ClientID:   tree.ClientID,
		CampaignID: tree.CampaignID,
		Action:     action,
		EntityKind: string(ref.Kind),
		EntityPath: ref.Path,
	}
	if version > 0 {
		entry.Details = map[string]any{"version": version}
	}
	_ = s.audit.Log(ctx, entry)
}

func inGroup(kind EntityKind, field string) bool {
	return slices.Contains(kind.Fields(), field)
}
