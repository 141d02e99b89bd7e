package taxonomy

import (
	"context"
	"sync"

	"golang.org/x/sync/singleflight"
)

// PassCache is the read-through cache of one regeneration pass. Misses are
// cached too, so every key is read from the repository at most once per
// pass. Safe for the concurrent level generators of a single pass; never
// share one across passes.
type PassCache struct {
	repo Repository

	mu          sync.Mutex
	shortcodes  map[string]*Shortcode
	customCodes map[string]customCode
	templates   map[string]*TemplateSet

	flight singleflight.Group
}

type customCode struct {
	code  string
	found bool
}

// NewPassCache creates an empty cache reading through repo.
func NewPassCache(repo Repository) *PassCache {
	return &PassCache{
		repo:        repo,
		shortcodes:  make(map[string]*Shortcode),
		customCodes: make(map[string]customCode),
		templates:   make(map[string]*TemplateSet),
	}
}

// Shortcode returns the shortcode with the given id, or nil when missing.
func (c *PassCache) Shortcode(ctx context.Context, id string) (*Shortcode, error) {
	if sh, ok := c.cachedShortcode(id); ok {
		return sh, nil
	}
	v, err, _ := c.flight.Do("sh\x00"+id, func() (any, error) {
		if sh, ok := c.cachedShortcode(id); ok {
			return sh, nil
		}
		sh, err := c.repo.GetShortcode(ctx, id)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.shortcodes[id] = sh
		c.mu.Unlock()
		return sh, nil
	})
	if err != nil {
		return nil, err
	}
	sh, _ := v.(*Shortcode)
	return sh, nil
}

func (c *PassCache) cachedShortcode(id string) (*Shortcode, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	sh, ok := c.shortcodes[id]
	return sh, ok
}

// CustomCode returns the client's custom code for a shortcode, or "".
func (c *PassCache) CustomCode(ctx context.Context, clientID, shortcodeID string) (string, error) {
	key := clientID + "\x00" + shortcodeID
	if cc, ok := c.cachedCustomCode(key); ok {
		return cc.code, nil
	}
	v, err, _ := c.flight.Do("cc\x00"+key, func() (any, error) {
		if cc, ok := c.cachedCustomCode(key); ok {
			return cc, nil
		}
		code, found, err := c.repo.FindCustomCode(ctx, clientID, shortcodeID)
		if err != nil {
			return nil, err
		}
		cc := customCode{code: code, found: found}
		c.mu.Lock()
		c.customCodes[key] = cc
		c.mu.Unlock()
		return cc, nil
	})
	if err != nil {
		return "", err
	}
	return v.(customCode).code, nil
}

func (c *PassCache) cachedCustomCode(key string) (customCode, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	cc, ok := c.customCodes[key]
	return cc, ok
}

// TemplateSet returns a client's taxonomy set, or nil when missing.
func (c *PassCache) TemplateSet(ctx context.Context, clientID, id string) (*TemplateSet, error) {
	key := clientID + "\x00" + id
	if t, ok := c.cachedTemplate(key); ok {
		return t, nil
	}
	v, err, _ := c.flight.Do("tpl\x00"+key, func() (any, error) {
		if t, ok := c.cachedTemplate(key); ok {
			return t, nil
		}
		t, err := c.repo.GetTemplateSet(ctx, clientID, id)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.templates[key] = t
		c.mu.Unlock()
		return t, nil
	})
	if err != nil {
		return nil, err
	}
	t, _ := v.(*TemplateSet)
	return t, nil
}

func (c *PassCache) cachedTemplate(key string) (*TemplateSet, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	t, ok := c.templates[key]
	return t, ok
}
