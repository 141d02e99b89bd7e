package taxonomy

import (
	"context"
	"fmt"

	"github.com/keyxmakerx/mediatag/internal/apperror"
	"github.com/keyxmakerx/mediatag/internal/docstore"
)

// Repository reads the lookup tables and templates taxonomy generation
// depends on. A missing document is reported as a nil value, not an error.
type Repository interface {
	// GetShortcode returns the shortcode with the given id, or nil.
	GetShortcode(ctx context.Context, id string) (*Shortcode, error)

	// FindCustomCode returns the client's custom code for a shortcode.
	FindCustomCode(ctx context.Context, clientID, shortcodeID string) (string, bool, error)

	// GetTemplateSet returns a client's taxonomy set, or nil.
	GetTemplateSet(ctx context.Context, clientID, id string) (*TemplateSet, error)
}

// storeRepository implements Repository on the document store.
type storeRepository struct {
	store docstore.Store
}

// NewRepository creates a taxonomy repository on the given store.
func NewRepository(store docstore.Store) Repository {
	return &storeRepository{store: store}
}

// GetShortcode fetches shortcodes/{id}.
func (r *storeRepository) GetShortcode(ctx context.Context, id string) (*Shortcode, error) {
	if id == "" {
		return nil, nil
	}
	doc, err := r.store.Get(ctx, docstore.Join("shortcodes", id))
	if apperror.IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("fetching shortcode %s: %w", id, err)
	}

	sh := &Shortcode{ID: id}
	if err := doc.Decode(sh); err != nil {
		return nil, err
	}
	return sh, nil
}

// FindCustomCode queries clients/{c}/customCodes by shortcode id. The first
// match wins.
func (r *storeRepository) FindCustomCode(ctx context.Context, clientID, shortcodeID string) (string, bool, error) {
	docs, err := r.store.Query(ctx,
		docstore.Join("clients", clientID, "customCodes"),
		"CC_Shortcode_ID", shortcodeID,
	)
	if err != nil {
		return "", false, fmt.Errorf("querying custom code for shortcode %s: %w", shortcodeID, err)
	}
	for _, d := range docs {
		if code, ok := d.Data["CC_Custom_Code"].(string); ok {
			return code, true, nil
		}
	}
	return "", false, nil
}

// GetTemplateSet fetches clients/{c}/taxonomies/{id}.
func (r *storeRepository) GetTemplateSet(ctx context.Context, clientID, id string) (*TemplateSet, error) {
	doc, err := r.store.Get(ctx, docstore.Join("clients", clientID, "taxonomies", id))
	if apperror.IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("fetching taxonomy %s: %w", id, err)
	}

	set := &TemplateSet{ID: id}
	for n := 1; n <= MaxLevels; n++ {
		if s, ok := doc.Data[levelField(n)].(string); ok {
			set.Levels[n-1] = s
		}
	}
	return set, nil
}
