package taxonomy

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/keyxmakerx/mediatag/internal/plugins/campaigns"
)

// mockRepo implements Repository for testing.
type mockRepo struct {
	getShortcodeFn   func(ctx context.Context, id string) (*Shortcode, error)
	findCustomCodeFn func(ctx context.Context, clientID, shortcodeID string) (string, bool, error)
	getTemplateSetFn func(ctx context.Context, clientID, id string) (*TemplateSet, error)
}

func (m *mockRepo) GetShortcode(ctx context.Context, id string) (*Shortcode, error) {
	if m.getShortcodeFn != nil {
		return m.getShortcodeFn(ctx, id)
	}
	return nil, nil
}

func (m *mockRepo) FindCustomCode(ctx context.Context, clientID, shortcodeID string) (string, bool, error) {
	if m.findCustomCodeFn != nil {
		return m.findCustomCodeFn(ctx, clientID, shortcodeID)
	}
	return "", false, nil
}

func (m *mockRepo) GetTemplateSet(ctx context.Context, clientID, id string) (*TemplateSet, error) {
	if m.getTemplateSetFn != nil {
		return m.getTemplateSetFn(ctx, clientID, id)
	}
	return nil, nil
}

func seedTemplates(t *testing.T, store *countingStore) {
	t.Helper()
	ctx := context.Background()
	docs := map[string]map[string]any{
		"clients/acme/taxonomies/tags": {
			"NA_Name_Level_1": "<[TC_Publisher:code]_[TC_Market:code]>",
			"NA_Name_Level_2": "[PL_Audience:display_fr]",
			"NA_Name_Level_3": "",
			"NA_Name_Level_4": "[CA_Year:open]",
			"NA_Name_Level_5": "[CR_Offer:open]",
			"NA_Name_Level_6": "<[CR_Version:open]-[TC_Publisher:code]>",
		},
		"clients/acme/taxonomies/platform": {
			"NA_Name_Level_1": "[TC_Publisher:display_en]",
		},
	}
	for path, data := range docs {
		if err := store.Set(ctx, path, data); err != nil {
			t.Fatalf("seeding %s: %v", path, err)
		}
	}
}

func fixedRegenerator(repo Repository) *Regenerator {
	r := NewRegenerator(repo)
	r.now = func() time.Time { return time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC) }
	return r
}

func TestRegeneratePlacement(t *testing.T) {
	store := newLookupStore(t)
	seedTemplates(t, store)
	r := fixedRegenerator(NewRepository(store))

	pl := &campaigns.Placement{
		Audience:     "aud-young",
		TaxonomyTags: "tags",
		TaxonomyPlat: "platform",
		TaxonomyMO:   "missing",
	}
	ca := &campaigns.Campaign{Year: "2025"}
	tc := &campaigns.Tactic{Publisher: "shortcode123", Market: "mkt-qc"}

	patch, err := r.RegeneratePlacement(context.Background(), "acme", pl, ca, tc, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := Patch{
		"PL_Tag_1": "GOO_QC", "PL_Tag_2": "Jeunes", "PL_Tag_3": "", "PL_Tag_4": "2025",
		"PL_Plateforme_1": "Google Inc", "PL_Plateforme_2": "", "PL_Plateforme_3": "", "PL_Plateforme_4": "",
		"PL_MO_1": "", "PL_MO_2": "", "PL_MO_3": "", "PL_MO_4": "",
		"PL_Generated_Taxonomies": map[string]any{
			"tags":       "GOO_QC|Jeunes|2025",
			"platform":   "Google Inc",
			"mediaocean": "",
		},
		"updatedAt": time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	if diff := cmp.Diff(want, patch); diff != "" {
		t.Errorf("patch mismatch (-want +got):\n%s", diff)
	}
}

func TestRegeneratePlacement_NoTaxonomies(t *testing.T) {
	r := fixedRegenerator(&mockRepo{
		getTemplateSetFn: func(ctx context.Context, clientID, id string) (*TemplateSet, error) {
			t.Fatalf("unexpected template fetch for %s", id)
			return nil, nil
		},
	})

	patch, err := r.RegeneratePlacement(context.Background(), "acme", &campaigns.Placement{}, nil, nil, true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, f := range []string{"PL_Tag_1", "PL_Tag_4", "PL_Plateforme_2", "PL_MO_3"} {
		if patch[f] != "" {
			t.Errorf("%s = %v, want empty", f, patch[f])
		}
	}
	if _, ok := patch["PL_Tag_5"]; ok {
		t.Error("placement patch must not contain creative levels")
	}
}

func TestRegenerateCreative(t *testing.T) {
	store := newLookupStore(t)
	seedTemplates(t, store)
	r := fixedRegenerator(NewRepository(store))

	cr := &campaigns.Creative{Offer: "Promo", Version: "v2", TaxonomyTags: "tags"}
	pl := &campaigns.Placement{TaxonomyTags: "tags"}
	tc := &campaigns.Tactic{Publisher: "shortcode123"}

	patch, err := r.RegenerateCreative(context.Background(), "acme", cr, &campaigns.Campaign{}, tc, pl, true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if patch["CR_Tag_5"] != "Promo" || patch["CR_Tag_6"] != "v2-GOO" {
		t.Errorf("unexpected creative tags: %v / %v", patch["CR_Tag_5"], patch["CR_Tag_6"])
	}
	if _, ok := patch["CR_Tag_1"]; ok {
		t.Error("creative patch must not contain placement levels")
	}
	summary, _ := patch["CR_Generated_Taxonomies"].(map[string]any)
	if summary["tags"] != "Promo|v2-GOO" {
		t.Errorf("tags summary = %v", summary["tags"])
	}
}

func TestRegenerate_IsIdempotent(t *testing.T) {
	store := newLookupStore(t)
	seedTemplates(t, store)
	r := NewRegenerator(NewRepository(store))

	pl := &campaigns.Placement{
		Audience:       "aud-young",
		TaxonomyTags:   "tags",
		TaxonomyPlat:   "platform",
		TaxonomyValues: map[string]campaigns.TaxonomyValue{"PL_Audience": {Format: "open", OpenValue: "stale"}},
	}
	ca := &campaigns.Campaign{Year: "2025"}
	tc := &campaigns.Tactic{Publisher: "shortcode123", Market: "mkt-qc"}

	first, err := r.RegeneratePlacement(context.Background(), "acme", pl, ca, tc, true)
	if err != nil {
		t.Fatalf("first pass: %v", err)
	}
	second, err := r.RegeneratePlacement(context.Background(), "acme", pl, ca, tc, true)
	if err != nil {
		t.Fatalf("second pass: %v", err)
	}

	delete(first, "updatedAt")
	delete(second, "updatedAt")
	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("patches differ (-first +second):\n%s", diff)
	}
	if first["PL_Tag_2"] != "Jeunes" {
		t.Errorf("forced pass kept the stored value: %v", first["PL_Tag_2"])
	}
}

func TestRegenerate_TemplateFetchedOncePerPass(t *testing.T) {
	store := newLookupStore(t)
	seedTemplates(t, store)
	r := NewRegenerator(NewRepository(store))

	pl := &campaigns.Placement{TaxonomyTags: "tags", TaxonomyPlat: "tags", TaxonomyMO: "tags"}
	tc := &campaigns.Tactic{Publisher: "shortcode123", Market: "mkt-qc"}

	before := store.gets.Load()
	if _, err := r.RegeneratePlacement(context.Background(), "acme", pl, &campaigns.Campaign{}, tc, true); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// One template read plus the two distinct shortcodes used by level 1.
	if n := store.gets.Load() - before; n != 3 {
		t.Errorf("expected 3 reads, got %d", n)
	}
}

func TestRegenerate_RepositoryErrorPropagates(t *testing.T) {
	boom := errors.New("store unavailable")
	r := NewRegenerator(&mockRepo{
		getTemplateSetFn: func(ctx context.Context, clientID, id string) (*TemplateSet, error) {
			return nil, boom
		},
	})

	_, err := r.RegeneratePlacement(context.Background(), "acme", &campaigns.Placement{TaxonomyTags: "tags"}, nil, nil, false)
	if !errors.Is(err, boom) {
		t.Fatalf("expected store error, got %v", err)
	}
}

func TestRegenerate_NilEntity(t *testing.T) {
	r := NewRegenerator(&mockRepo{})
	if _, err := r.RegeneratePlacement(context.Background(), "acme", nil, nil, nil, false); err == nil {
		t.Error("expected error for nil placement")
	}
	if _, err := r.RegenerateCreative(context.Background(), "acme", nil, nil, nil, nil, false); err == nil {
		t.Error("expected error for nil creative")
	}
}
