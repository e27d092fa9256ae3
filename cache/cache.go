// Package cache stores raw NodeSet2 documents keyed by model identity.
//
// A BackedCache applies the version policy (a document is persisted only
// when it is newer than everything already stored for its model URI) and
// the scope policy (core and DI models are always global) on top of a
// Backend that knows how to store bytes: a directory tree, a SQLite table or
// Redis.
package cache

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cesmii/profiledesigner/model"
	"github.com/cesmii/profiledesigner/nodeset"
)

// ErrNotCached indicates that no stored document exists for a model.
var ErrNotCached = errors.New("cache: model not cached")

// Scope is the tenant visibility of a cached document.
type Scope = model.Scope

// Cache loads models into an import result and manages their persistence.
type Cache interface {
	// LoadIdentity looks up the newest stored document satisfying id that
	// is visible from scope and adds it to res.
	LoadIdentity(ctx context.Context, res *model.ImportResult, id model.ModelIdentity, scope Scope) (bool, error)

	// LoadBytes parses raw, adds it to res and persists it when newer than
	// every stored version. It reports whether the document was persisted.
	LoadBytes(ctx context.Context, res *model.ImportResult, raw []byte, scope Scope) (bool, error)

	// RawXML returns the document text of a loaded model.
	RawXML(ctx context.Context, mv *model.ModelValue) (string, error)

	// DeleteNewlyAdded removes every document persisted during the import
	// that produced res.
	DeleteNewlyAdded(ctx context.Context, res *model.ImportResult) error

	// Flush makes pending writes durable.
	Flush(ctx context.Context) error
}

// Entry describes one stored document.
type Entry struct {
	Identity model.ModelIdentity
	Scope    Scope
	Key      string
}

// Backend stores document bytes.
type Backend interface {
	// Newest returns the entry with the greatest publication date for uri
	// among the given scopes, or nil when none is stored.
	Newest(ctx context.Context, uri string, scopes []Scope) (*Entry, error)

	// Put stores data and returns its key.
	Put(ctx context.Context, id model.ModelIdentity, scope Scope, data []byte) (string, error)

	// Read returns the bytes stored under key.
	Read(ctx context.Context, key string) ([]byte, error)

	// Delete removes the document stored under key.
	Delete(ctx context.Context, key string) error

	// Flush makes pending writes durable.
	Flush(ctx context.Context) error
}

// Option configures a BackedCache.
type Option func(*BackedCache)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *BackedCache) {
		c.logger = logger
	}
}

// WithScopePolicy sets the policy deciding which models are stored globally.
func WithScopePolicy(p *ScopePolicy) Option {
	return func(c *BackedCache) {
		c.policy = p
	}
}

// BackedCache implements Cache over a Backend.
type BackedCache struct {
	backend Backend
	policy  *ScopePolicy
	logger  *slog.Logger
}

// New returns a cache storing documents in backend.
func New(backend Backend, opts ...Option) *BackedCache {
	c := &BackedCache{
		backend: backend,
		policy:  DefaultScopePolicy(),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// LoadIdentity implements Cache.
func (c *BackedCache) LoadIdentity(ctx context.Context, res *model.ImportResult, id model.ModelIdentity, scope Scope) (bool, error) {
	entry, err := c.backend.Newest(ctx, id.ModelURI, visibleScopes(scope))
	if err != nil {
		return false, fmt.Errorf("lookup %s: %w", id.ModelURI, err)
	}
	if entry == nil || !entry.Identity.SameOrNewer(id) {
		return false, nil
	}

	data, err := c.backend.Read(ctx, entry.Key)
	if err != nil {
		return false, fmt.Errorf("read %s: %w", entry.Identity, err)
	}
	set, err := nodeset.Parse(data)
	if err != nil {
		return false, fmt.Errorf("parse cached %s: %w", entry.Identity, err)
	}
	mv, err := model.NewModelValue(set, data)
	if err != nil {
		return false, err
	}
	mv.CacheKey = entry.Key
	mv.Identity.CacheKey = entry.Key
	mv.Scope = entry.Scope
	res.Add(mv)

	c.logger.Debug("loaded cached model", "model", mv.Identity.String(), "scope", entry.Scope.String())
	return true, nil
}

// LoadBytes implements Cache.
func (c *BackedCache) LoadBytes(ctx context.Context, res *model.ImportResult, raw []byte, scope Scope) (bool, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return false, nil
	}
	set, err := nodeset.Parse(raw)
	if errors.Is(err, nodeset.ErrEmptyPayload) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	mv, err := model.NewModelValue(set, raw)
	if err != nil {
		return false, err
	}

	target, err := c.policy.ScopeFor(mv.Identity, scope)
	if err != nil {
		return false, err
	}
	mv.Scope = target

	newest, err := c.backend.Newest(ctx, mv.Identity.ModelURI, visibleScopes(target))
	if err != nil {
		return false, fmt.Errorf("lookup %s: %w", mv.Identity.ModelURI, err)
	}

	persist := newest == nil || mv.Identity.PublicationDate.After(newest.Identity.PublicationDate)
	if persist {
		key, err := c.backend.Put(ctx, mv.Identity, target, raw)
		if err != nil {
			return false, fmt.Errorf("store %s: %w", mv.Identity, err)
		}
		mv.CacheKey = key
		mv.NewInThisImport = true
		c.logger.Info("cached model", "model", mv.Identity.String(), "scope", target.String())
	} else {
		if newest.Identity.PublicationDate.Equal(mv.Identity.PublicationDate) {
			mv.CacheKey = newest.Key
		}
		c.logger.Debug("model already cached", "model", mv.Identity.String(), "cached", newest.Identity.String())
	}
	mv.Identity.CacheKey = mv.CacheKey

	res.Add(mv)
	return persist, nil
}

// RawXML implements Cache.
func (c *BackedCache) RawXML(ctx context.Context, mv *model.ModelValue) (string, error) {
	if len(mv.Raw) > 0 {
		return string(mv.Raw), nil
	}
	if mv.CacheKey == "" {
		return "", fmt.Errorf("%w: %s", ErrNotCached, mv.Identity)
	}
	data, err := c.backend.Read(ctx, mv.CacheKey)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", mv.Identity, err)
	}
	return string(data), nil
}

// DeleteNewlyAdded implements Cache.
func (c *BackedCache) DeleteNewlyAdded(ctx context.Context, res *model.ImportResult) error {
	var errs []error
	for _, mv := range res.Models {
		if !mv.NewInThisImport || mv.CacheKey == "" {
			continue
		}
		if err := c.backend.Delete(ctx, mv.CacheKey); err != nil {
			errs = append(errs, fmt.Errorf("delete %s: %w", mv.Identity, err))
			continue
		}
		c.logger.Info("rolled back cached model", "model", mv.Identity.String())
		mv.NewInThisImport = false
		mv.CacheKey = ""
	}
	return errors.Join(errs...)
}

// Flush implements Cache.
func (c *BackedCache) Flush(ctx context.Context) error {
	return c.backend.Flush(ctx)
}

// visibleScopes lists the scopes a lookup from scope can see.
func visibleScopes(scope Scope) []Scope {
	if scope.IsGlobal() {
		return []Scope{model.GlobalScope}
	}
	return []Scope{scope, model.GlobalScope}
}

// newestOf returns the entry with the greatest publication date.
func newestOf(entries []*Entry) *Entry {
	var best *Entry
	for _, e := range entries {
		if e == nil {
			continue
		}
		if best == nil || e.Identity.PublicationDate.After(best.Identity.PublicationDate) {
			best = e
		}
	}
	return best
}

// dateScore orders dates to the millisecond. A float64 cannot hold
// nanoseconds since the epoch exactly, so entries sharing a score are
// compared by their stored date.
func dateScore(t time.Time) float64 {
	if t.IsZero() {
		return 0
	}
	return float64(t.UnixMilli())
}

// dateNanos is the integer sort key of a stored date.
func dateNanos(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}
