// Package regen persists regenerated taxonomy fields: single entities on
// demand, and whole subtrees after a hierarchy move. Moves hand their
// regeneration to a background Dispatcher so the move itself never waits.
package regen

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/keyxmakerx/mediatag/internal/apperror"
	"github.com/keyxmakerx/mediatag/internal/docstore"
	"github.com/keyxmakerx/mediatag/internal/plugins/campaigns"
	"github.com/keyxmakerx/mediatag/internal/plugins/taxonomy"
)

// ParentType is the tree level a move happened at.
type ParentType string

const (
	ParentCampaign  ParentType = "campaign"
	ParentTactic    ParentType = "tactic"
	ParentPlacement ParentType = "placement"
)

// Valid reports whether p is a known parent type.
func (p ParentType) Valid() bool {
	switch p {
	case ParentCampaign, ParentTactic, ParentPlacement:
		return true
	}
	return false
}

// Result summarizes one bulk regeneration.
type Result struct {
	ParentType ParentType `json:"parentType"`
	CampaignID string     `json:"campaignId"`

	// Staged is the number of entity patches included in the commit.
	Staged int `json:"staged"`

	// Skipped counts entities (or subtrees) that failed and were left out.
	Skipped int `json:"skipped"`

	// Committed is false when nothing matched and no write was issued.
	Committed bool `json:"committed"`
}

// BulkRegenerator rewrites the generated taxonomy fields of every placement
// and creative under a moved parent.
type BulkRegenerator struct {
	tree  campaigns.TreeRepository
	store docstore.Store
	regen *taxonomy.Regenerator
}

// NewBulkRegenerator creates a bulk regenerator.
func NewBulkRegenerator(tree campaigns.TreeRepository, store docstore.Store, regen *taxonomy.Regenerator) *BulkRegenerator {
	return &BulkRegenerator{tree: tree, store: store, regen: regen}
}

// UpdateTaxonomiesAfterMove walks the whole campaign of parent, regenerates
// with ForceRegeneration every placement and creative whose ancestor at
// parentType has parent's id (every one for ParentCampaign), and commits
// all patches in one batch. Entities that fail are logged and skipped; only
// a commit failure is returned.
//
// The walk is a full scan of the campaign: the store has no descendant
// query, so cost grows with the campaign, not the moved subtree.
func (b *BulkRegenerator) UpdateTaxonomiesAfterMove(ctx context.Context, parentType ParentType, parent campaigns.Ref) (*Result, error) {
	if !parentType.Valid() {
		return nil, apperror.NewBadRequest(fmt.Sprintf("unknown parent type %q", parentType))
	}
	if parent.ClientID == "" || parent.CampaignID == "" {
		return nil, apperror.NewBadRequest("parent must reference a campaign")
	}
	switch {
	case parentType == ParentTactic && parent.TacticID == "":
		return nil, apperror.NewBadRequest("tactic parent requires a tactic id")
	case parentType == ParentPlacement && parent.PlacementID == "":
		return nil, apperror.NewBadRequest("placement parent requires a placement id")
	}

	start := time.Now()
	res := &Result{ParentType: parentType, CampaignID: parent.CampaignID}

	campaign, err := b.tree.GetCampaign(ctx, parent)
	if err != nil {
		bulkRunsTotal.WithLabelValues(string(parentType), "failed").Inc()
		return nil, fmt.Errorf("loading campaign %s: %w", parent.CampaignID, err)
	}

	w := &walk{
		b:          b,
		parentType: parentType,
		parent:     parent,
		campaign:   campaign,
		batch:      b.store.Batch(),
		res:        res,
	}
	w.run(ctx)
	bulkDuration.WithLabelValues(string(parentType)).Observe(time.Since(start).Seconds())

	if w.batch.Len() == 0 {
		bulkRunsTotal.WithLabelValues(string(parentType), "empty").Inc()
		slog.Info("bulk taxonomy regeneration matched nothing",
			slog.String("campaign_id", parent.CampaignID),
			slog.String("parent_type", string(parentType)),
			slog.Int("skipped", res.Skipped),
		)
		return res, nil
	}

	if err := w.batch.Commit(ctx); err != nil {
		bulkRunsTotal.WithLabelValues(string(parentType), "failed").Inc()
		return res, fmt.Errorf("committing %d taxonomy patches: %w", w.batch.Len(), err)
	}
	res.Committed = true
	bulkRunsTotal.WithLabelValues(string(parentType), "committed").Inc()

	slog.Info("bulk taxonomy regeneration committed",
		slog.String("campaign_id", parent.CampaignID),
		slog.String("parent_type", string(parentType)),
		slog.Int("staged", res.Staged),
		slog.Int("skipped", res.Skipped),
		slog.Duration("took", time.Since(start)),
	)
	return res, nil
}

// walk is the state of one sequential tree scan.
type walk struct {
	b          *BulkRegenerator
	parentType ParentType
	parent     campaigns.Ref
	campaign   *campaigns.Campaign
	batch      docstore.Batch
	res        *Result
}

func (w *walk) run(ctx context.Context) {
	campaignRef := w.parent.Truncate(1)
	for _, version := range w.children(ctx, campaignRef, campaigns.CollVersions) {
		for _, tab := range w.children(ctx, version.Ref, campaigns.CollTabs) {
			for _, section := range w.children(ctx, tab.Ref, campaigns.CollSections) {
				w.section(ctx, section.Ref)
			}
		}
	}
}

// children lists a structural level; a failing list skips the subtree.
func (w *walk) children(ctx context.Context, ref campaigns.Ref, collection string) []campaigns.Node {
	nodes, err := w.b.tree.ListChildren(ctx, ref, collection)
	if err != nil {
		w.skip("listing "+collection, ref, err)
		return nil
	}
	return nodes
}

func (w *walk) section(ctx context.Context, ref campaigns.Ref) {
	tactics, failed, err := w.b.tree.ListTactics(ctx, ref)
	if err != nil {
		w.skip("listing tactics", ref, err)
		return
	}
	for _, f := range failed {
		if w.wantTactic(f.Ref) {
			w.skip("decoding tactic", f.Ref, f.Err)
		}
	}
	for i := range tactics {
		tc := &tactics[i]
		if !w.wantTactic(tc.Ref) {
			continue
		}
		w.tactic(ctx, tc)
	}
}

func (w *walk) tactic(ctx context.Context, tc *campaigns.Tactic) {
	placements, failed, err := w.b.tree.ListPlacements(ctx, tc.Ref)
	if err != nil {
		w.skip("listing placements", tc.Ref, err)
		return
	}
	for _, f := range failed {
		if w.wantPlacement(f.Ref) {
			w.skip("decoding placement", f.Ref, f.Err)
			entitiesTotal.WithLabelValues("placement", "skipped").Inc()
		}
	}
	for i := range placements {
		pl := &placements[i]
		if !w.wantPlacement(pl.Ref) {
			continue
		}

		patch, err := w.b.regen.RegeneratePlacement(ctx, pl.Ref.ClientID, pl, w.campaign, tc, true)
		if err != nil {
			w.skip("regenerating placement", pl.Ref, err)
			entitiesTotal.WithLabelValues("placement", "skipped").Inc()
		} else {
			w.stage(pl.Ref, patch, "placement")
		}

		w.creatives(ctx, tc, pl)
	}
}

func (w *walk) creatives(ctx context.Context, tc *campaigns.Tactic, pl *campaigns.Placement) {
	creatives, failed, err := w.b.tree.ListCreatives(ctx, pl.Ref)
	if err != nil {
		w.skip("listing creatives", pl.Ref, err)
		return
	}
	for _, f := range failed {
		w.skip("decoding creative", f.Ref, f.Err)
		entitiesTotal.WithLabelValues("creative", "skipped").Inc()
	}
	for i := range creatives {
		cr := &creatives[i]
		patch, err := w.b.regen.RegenerateCreative(ctx, cr.Ref.ClientID, cr, w.campaign, tc, pl, true)
		if err != nil {
			w.skip("regenerating creative", cr.Ref, err)
			entitiesTotal.WithLabelValues("creative", "skipped").Inc()
			continue
		}
		w.stage(cr.Ref, patch, "creative")
	}
}

// wantTactic reports whether a tactic lies under the moved parent.
func (w *walk) wantTactic(ref campaigns.Ref) bool {
	return w.parentType == ParentCampaign || ref == w.parent.Truncate(5)
}

// wantPlacement reports whether a placement lies under the moved parent.
func (w *walk) wantPlacement(ref campaigns.Ref) bool {
	return w.parentType != ParentPlacement || ref == w.parent.Truncate(6)
}

func (w *walk) stage(ref campaigns.Ref, patch taxonomy.Patch, kind string) {
	w.batch.Update(ref.Path(), patch)
	w.res.Staged++
	entitiesTotal.WithLabelValues(kind, "staged").Inc()
}

func (w *walk) skip(what string, ref campaigns.Ref, err error) {
	w.res.Skipped++
	slog.Warn("bulk taxonomy regeneration skipped entity",
		slog.String("step", what),
		slog.String("path", ref.Path()),
		slog.Any("error", err),
	)
}
