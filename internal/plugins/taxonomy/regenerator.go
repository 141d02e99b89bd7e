package taxonomy

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/keyxmakerx/mediatag/internal/plugins/campaigns"
)

// Field prefixes of the generated fields.
const (
	PlacementPrefix = "PL"
	CreativePrefix  = "CR"
)

// Regenerator computes the generated taxonomy fields of placements and
// creatives. It only reads; callers persist the returned patch.
type Regenerator struct {
	repo Repository
	now  func() time.Time
}

// NewRegenerator creates a regenerator reading lookups through repo.
func NewRegenerator(repo Repository) *Regenerator {
	return &Regenerator{repo: repo, now: time.Now}
}

// RegeneratePlacement computes PL_Tag_1..4, PL_Plateforme_1..4, PL_MO_1..4
// and PL_Generated_Taxonomies for a placement.
func (r *Regenerator) RegeneratePlacement(ctx context.Context, clientID string, pl *campaigns.Placement, ca *campaigns.Campaign, tc *campaigns.Tactic, force bool) (Patch, error) {
	if pl == nil {
		return nil, errors.New("regenerating placement: placement is required")
	}
	rc := &ResolutionContext{
		ClientID:          clientID,
		Campaign:          ca,
		Tactic:            tc,
		Placement:         pl,
		Cache:             NewPassCache(r.repo),
		ForceRegeneration: force,
	}
	return r.generate(ctx, rc, pl.Taxonomies(), PlacementPrefix, PlacementLevels, false)
}

// RegenerateCreative computes CR_Tag_5..6, CR_Plateforme_5..6, CR_MO_5..6
// and CR_Generated_Taxonomies for a creative.
func (r *Regenerator) RegenerateCreative(ctx context.Context, clientID string, cr *campaigns.Creative, ca *campaigns.Campaign, tc *campaigns.Tactic, pl *campaigns.Placement, force bool) (Patch, error) {
	if cr == nil {
		return nil, errors.New("regenerating creative: creative is required")
	}
	rc := &ResolutionContext{
		ClientID:          clientID,
		Campaign:          ca,
		Tactic:            tc,
		Placement:         pl,
		Creative:          cr,
		Cache:             NewPassCache(r.repo),
		ForceRegeneration: force,
	}
	return r.generate(ctx, rc, cr.Taxonomies(), CreativePrefix, CreativeLevels, true)
}

// generate fans out one goroutine per (kind, level). Kinds without a
// taxonomy set, or whose set is missing, yield empty levels.
func (r *Regenerator) generate(ctx context.Context, rc *ResolutionContext, refs campaigns.TaxonomyRefs, prefix string, levels []int, isCreatif bool) (Patch, error) {
	ids := map[string]string{
		KindTags:       refs.Tags,
		KindPlatform:   refs.Platform,
		KindMediaOcean: refs.MediaOcean,
	}

	results := make([][]string, len(taxonomyKinds))
	g, gctx := errgroup.WithContext(ctx)
	for ki, kind := range taxonomyKinds {
		results[ki] = make([]string, len(levels))
		setID := ids[kind.key]
		if setID == "" {
			continue
		}
		for li, level := range levels {
			g.Go(func() error {
				set, err := rc.Cache.TemplateSet(gctx, rc.ClientID, setID)
				if err != nil {
					return err
				}
				if set == nil {
					return nil
				}
				s, err := GenerateLevel(gctx, set.Level(level), rc, isCreatif)
				if err != nil {
					return fmt.Errorf("generating %s level %d: %w", kind.key, level, err)
				}
				results[ki][li] = s
				return nil
			})
		}
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	patch := Patch{}
	summary := map[string]any{}
	for ki, kind := range taxonomyKinds {
		for li, level := range levels {
			patch[fmt.Sprintf("%s_%s_%d", prefix, kind.field, level)] = results[ki][li]
		}
		summary[kind.key] = joinNonEmpty(results[ki], "|")
	}
	patch[prefix+"_Generated_Taxonomies"] = summary
	patch["updatedAt"] = r.now().UTC()
	return patch, nil
}
