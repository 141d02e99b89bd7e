package regen

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/keyxmakerx/mediatag/internal/apperror"
	"github.com/keyxmakerx/mediatag/internal/docstore"
	"github.com/keyxmakerx/mediatag/internal/plugins/audit"
	"github.com/keyxmakerx/mediatag/internal/plugins/campaigns"
	"github.com/keyxmakerx/mediatag/internal/plugins/taxonomy"
)

// Service regenerates the taxonomy fields of a single placement or creative.
type Service interface {
	// Preview computes the generated fields without writing them.
	Preview(ctx context.Context, ref campaigns.Ref) (taxonomy.Patch, error)

	// RegenerateEntity computes and writes the generated fields. Stored
	// taxonomy values win over source fields.
	RegenerateEntity(ctx context.Context, ref campaigns.Ref) (taxonomy.Patch, error)
}

type service struct {
	tree     campaigns.TreeRepository
	store    docstore.Store
	regen    *taxonomy.Regenerator
	auditSvc audit.AuditService
}

// NewService creates a regeneration service. auditSvc may be nil.
func NewService(tree campaigns.TreeRepository, store docstore.Store, regen *taxonomy.Regenerator, auditSvc audit.AuditService) Service {
	return &service{tree: tree, store: store, regen: regen, auditSvc: auditSvc}
}

func (s *service) Preview(ctx context.Context, ref campaigns.Ref) (taxonomy.Patch, error) {
	return s.compute(ctx, ref)
}

func (s *service) RegenerateEntity(ctx context.Context, ref campaigns.Ref) (taxonomy.Patch, error) {
	patch, err := s.compute(ctx, ref)
	if err != nil {
		return nil, err
	}

	kind := entityKind(ref)
	if err := s.store.Update(ctx, ref.Path(), patch); err != nil {
		entitiesTotal.WithLabelValues(kind, "failed").Inc()
		if apperror.IsNotFound(err) {
			return nil, err
		}
		return nil, apperror.NewInternal(fmt.Errorf("writing taxonomy fields of %s: %w", ref.Path(), err))
	}
	entitiesTotal.WithLabelValues(kind, "written").Inc()

	if s.auditSvc != nil {
		_ = s.auditSvc.Log(ctx, &audit.AuditEntry{
			ClientID:   ref.ClientID,
			CampaignID: ref.CampaignID,
			Action:     audit.ActionTaxonomyRegenerated,
			EntityKind: kind,
			EntityPath: ref.Path(),
		})
	}

	slog.Info("taxonomy fields regenerated",
		slog.String("path", ref.Path()),
		slog.String("kind", kind),
	)
	return patch, nil
}

// compute loads ref and its ancestors and regenerates without forcing.
func (s *service) compute(ctx context.Context, ref campaigns.Ref) (taxonomy.Patch, error) {
	depth := ref.Depth()
	if depth != 6 && depth != 7 {
		return nil, apperror.NewBadRequest("only placements and creatives carry taxonomies")
	}

	ca, err := s.tree.GetCampaign(ctx, ref)
	if err != nil {
		return nil, loadError("campaign", err)
	}
	tc, err := s.tree.GetTactic(ctx, ref)
	if err != nil {
		return nil, loadError("tactic", err)
	}
	pl, err := s.tree.GetPlacement(ctx, ref)
	if err != nil {
		return nil, loadError("placement", err)
	}

	var patch taxonomy.Patch
	if depth == 6 {
		patch, err = s.regen.RegeneratePlacement(ctx, ref.ClientID, pl, ca, tc, false)
	} else {
		cr, gerr := s.tree.GetCreative(ctx, ref)
		if gerr != nil {
			return nil, loadError("creative", gerr)
		}
		patch, err = s.regen.RegenerateCreative(ctx, ref.ClientID, cr, ca, tc, pl, false)
	}
	if err != nil {
		return nil, apperror.NewInternal(fmt.Errorf("regenerating %s: %w", ref.Path(), err))
	}
	return patch, nil
}

func loadError(what string, err error) error {
	if apperror.IsNotFound(err) {
		return apperror.NewNotFound(what + " not found")
	}
	return apperror.NewInternal(fmt.Errorf("loading %s: %w", what, err))
}

func entityKind(ref campaigns.Ref) string {
	if ref.Depth() == 7 {
		return "creative"
	}
	return "placement"
}
