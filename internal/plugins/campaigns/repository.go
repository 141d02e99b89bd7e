package campaigns

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/keyxmakerx/mediatag/internal/docstore"
)

// TreeRepository defines read access to the campaign tree. Get methods
// return an apperror not-found error when the document is missing.
type TreeRepository interface {
	GetCampaign(ctx context.Context, ref Ref) (*Campaign, error)
	GetTactic(ctx context.Context, ref Ref) (*Tactic, error)
	GetPlacement(ctx context.Context, ref Ref) (*Placement, error)
	GetCreative(ctx context.Context, ref Ref) (*Creative, error)

	// ListChildren returns the structural children of ref in the named
	// collection (versions, onglets or sections).
	ListChildren(ctx context.Context, ref Ref, collection string) ([]Node, error)

	// ListTactics, ListPlacements and ListCreatives return the entities
	// that decoded and one DecodeError per document that did not. The error
	// result is reserved for a failing store.
	ListTactics(ctx context.Context, section Ref) ([]Tactic, []DecodeError, error)
	ListPlacements(ctx context.Context, tactic Ref) ([]Placement, []DecodeError, error)
	ListCreatives(ctx context.Context, placement Ref) ([]Creative, []DecodeError, error)
}

// DecodeError reports a listed document whose data does not fit its typed
// entity.
type DecodeError struct {
	Ref Ref
	Err error
}

func (e DecodeError) Error() string { return e.Err.Error() }

func (e DecodeError) Unwrap() error { return e.Err }

// treeRepository implements TreeRepository on a document store.
type treeRepository struct {
	store docstore.Store
}

// NewTreeRepository creates a campaign tree repository on the given store.
func NewTreeRepository(store docstore.Store) TreeRepository {
	return &treeRepository{store: store}
}

// GetCampaign loads the campaign ref points into.
func (r *treeRepository) GetCampaign(ctx context.Context, ref Ref) (*Campaign, error) {
	ref = ref.Truncate(1)
	c := &Campaign{Ref: ref}
	if err := r.load(ctx, ref, c, &c.Extra); err != nil {
		return nil, err
	}
	return c, nil
}

// GetTactic loads the tactic ref points into.
func (r *treeRepository) GetTactic(ctx context.Context, ref Ref) (*Tactic, error) {
	ref = ref.Truncate(5)
	t := &Tactic{Ref: ref}
	if err := r.load(ctx, ref, t, &t.Extra); err != nil {
		return nil, err
	}
	return t, nil
}

// GetPlacement loads the placement ref points into.
func (r *treeRepository) GetPlacement(ctx context.Context, ref Ref) (*Placement, error) {
	ref = ref.Truncate(6)
	p := &Placement{Ref: ref}
	if err := r.load(ctx, ref, p, &p.Extra); err != nil {
		return nil, err
	}
	return p, nil
}

// GetCreative loads the creative ref points to.
func (r *treeRepository) GetCreative(ctx context.Context, ref Ref) (*Creative, error) {
	ref = ref.Truncate(7)
	c := &Creative{Ref: ref}
	if err := r.load(ctx, ref, c, &c.Extra); err != nil {
		return nil, err
	}
	return c, nil
}

// ListChildren lists the documents of a structural child collection.
func (r *treeRepository) ListChildren(ctx context.Context, ref Ref, collection string) ([]Node, error) {
	docs, err := r.store.List(ctx, ref.Child(collection))
	if err != nil {
		return nil, fmt.Errorf("listing %s of %s: %w", collection, ref.Path(), err)
	}
	nodes := make([]Node, 0, len(docs))
	for _, d := range docs {
		nodes = append(nodes, Node{Ref: ref.With(d.ID), Extra: d.Data})
	}
	return nodes, nil
}

// ListTactics lists the tactics of a section.
func (r *treeRepository) ListTactics(ctx context.Context, section Ref) ([]Tactic, []DecodeError, error) {
	return listTyped(ctx, r.store, section, CollTactics, func(t *Tactic, ref Ref) *map[string]any {
		t.Ref = ref
		return &t.Extra
	})
}

// ListPlacements lists the placements of a tactic.
func (r *treeRepository) ListPlacements(ctx context.Context, tactic Ref) ([]Placement, []DecodeError, error) {
	return listTyped(ctx, r.store, tactic, CollPlacements, func(p *Placement, ref Ref) *map[string]any {
		p.Ref = ref
		return &p.Extra
	})
}

// ListCreatives lists the creatives of a placement.
func (r *treeRepository) ListCreatives(ctx context.Context, placement Ref) ([]Creative, []DecodeError, error) {
	return listTyped(ctx, r.store, placement, CollCreatives, func(c *Creative, ref Ref) *map[string]any {
		c.Ref = ref
		return &c.Extra
	})
}

// listTyped decodes every document of a child collection. Documents that do
// not decode are reported in the second result and left out of the first.
func listTyped[T any](ctx context.Context, store docstore.Store, parent Ref, collection string, bind func(*T, Ref) *map[string]any) ([]T, []DecodeError, error) {
	docs, err := store.List(ctx, parent.Child(collection))
	if err != nil {
		return nil, nil, fmt.Errorf("listing %s of %s: %w", collection, parent.Path(), err)
	}
	out := make([]T, 0, len(docs))
	var failed []DecodeError
	for i := range docs {
		var v T
		ref := parent.With(docs[i].ID)
		if err := decodeEntity(&docs[i], &v, bind(&v, ref)); err != nil {
			failed = append(failed, DecodeError{Ref: ref, Err: err})
			continue
		}
		out = append(out, v)
	}
	return out, failed, nil
}

func (r *treeRepository) load(ctx context.Context, ref Ref, v any, extra *map[string]any) error {
	doc, err := r.store.Get(ctx, ref.Path())
	if err != nil {
		return err
	}
	return decodeEntity(doc, v, extra)
}

// decodeEntity fills the typed fields of v from the document and collects
// every field v does not declare into extra.
func decodeEntity(doc *docstore.Document, v any, extra *map[string]any) error {
	raw, err := json.Marshal(doc.Data)
	if err != nil {
		return fmt.Errorf("encoding document %s: %w", doc.Path, err)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("decoding document %s: %w", doc.Path, err)
	}

	known := declaredFields(reflect.TypeOf(v).Elem())
	rest := make(map[string]any)
	for k, val := range doc.Data {
		if !known[k] {
			rest[k] = val
		}
	}
	*extra = rest
	return nil
}

var declaredCache sync.Map // reflect.Type -> map[string]bool

// declaredFields returns the JSON names of the struct's tagged fields.
func declaredFields(t reflect.Type) map[string]bool {
	if cached, ok := declaredCache.Load(t); ok {
		return cached.(map[string]bool)
	}
	names := make(map[string]bool, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		tag := t.Field(i).Tag.Get("json")
		name, _, _ := strings.Cut(tag, ",")
		if name != "" && name != "-" {
			names[name] = true
		}
	}
	declaredCache.Store(t, names)
	return names
}
