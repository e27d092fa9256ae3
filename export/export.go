// Package export writes persisted profile items back to NodeSet2 XML.
//
// An export builds wire nodes with expanded node ids, collects every
// namespace they touch, and only then assigns namespace indexes: the core
// namespace at 0, the exported namespaces next, the rest sorted by URI.
package export

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/cesmii/profiledesigner/cache"
	"github.com/cesmii/profiledesigner/model"
	"github.com/cesmii/profiledesigner/nodeset"
	"github.com/cesmii/profiledesigner/profile"
)

var (
	// ErrNothingToExport is returned when a request selects no items.
	ErrNothingToExport = errors.New("export: nothing to export")

	// ErrNoCache is returned for a core export without a configured cache.
	ErrNoCache = errors.New("export: no cache configured")

	// ErrNoNamespace is returned when a request names neither a namespace
	// nor items to take it from.
	ErrNoNamespace = errors.New("export: no namespace")
)

// ItemSource reads persisted profile items.
type ItemSource interface {
	ItemsForNamespace(ctx context.Context, uri string) ([]*profile.ProfileItem, error)
	Item(ctx context.Context, key profile.ItemKey) (*profile.ProfileItem, error)
}

// VersionLookup resolves the registered version of a namespace.
type VersionLookup interface {
	ModelVersion(ctx context.Context, uri string) (model.ModelIdentity, bool, error)
}

// VersionChain asks each lookup in turn; the first hit wins.
type VersionChain []VersionLookup

// ModelVersion implements VersionLookup.
func (c VersionChain) ModelVersion(ctx context.Context, uri string) (model.ModelIdentity, bool, error) {
	for _, l := range c {
		if l == nil {
			continue
		}
		id, ok, err := l.ModelVersion(ctx, uri)
		if err != nil {
			return model.ModelIdentity{}, false, fmt.Errorf("look up version of %s: %w", uri, err)
		}
		if ok {
			return id, true, nil
		}
	}
	return model.ModelIdentity{}, false, nil
}

// Request selects what to export. Without Items the whole namespace is
// exported. With Items and no Namespace, the namespace of the first item
// is the primary model.
type Request struct {
	Namespace string
	Items     []profile.ItemKey
}

// Exporter writes NodeSet2 documents.
type Exporter struct {
	source   ItemSource
	versions VersionChain
	cache    cache.Cache
	logger   *slog.Logger
}

// Option configures an Exporter.
type Option func(*Exporter)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Exporter) {
		e.logger = logger
	}
}

// WithVersionLookup appends version sources, consulted in order.
func WithVersionLookup(lookups ...VersionLookup) Option {
	return func(e *Exporter) {
		e.versions = append(e.versions, lookups...)
	}
}

// WithCache enables the core namespace export from cached documents.
func WithCache(c cache.Cache) Option {
	return func(e *Exporter) {
		e.cache = c
	}
}

// New returns an exporter reading items from source.
func New(source ItemSource, opts ...Option) *Exporter {
	e := &Exporter{
		source: source,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Export writes the selected items as a NodeSet2 document. The core
// namespace is exported from its cached document.
func (e *Exporter) Export(ctx context.Context, req Request) ([]byte, error) {
	if req.Namespace == nodeset.CoreNamespace && len(req.Items) == 0 {
		return e.exportCore(ctx)
	}

	if req.Namespace == "" && len(req.Items) == 0 {
		return nil, ErrNoNamespace
	}

	items, err := e.selectItems(ctx, req)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNothingToExport, req.Namespace)
	}
	if req.Namespace == "" {
		req.Namespace = items[0].Key.Namespace
		if req.Namespace == "" {
			return nil, fmt.Errorf("%w: item %s has no namespace", ErrNoNamespace, items[0].Key)
		}
	}

	b := newBuilder(ctx, e.source, items, e.logger)
	if err := b.build(); err != nil {
		return nil, err
	}

	exported := b.exportedNamespaces(req.Namespace)
	table := namespaceTable(exported, b.touchedNamespaces())
	set := &nodeset.UANodeSet{
		NamespaceUris: &nodeset.UriTable{Uri: table.URIs()},
	}
	if set.Models, err = e.models(ctx, exported, table); err != nil {
		return nil, err
	}
	if set.Items, set.Aliases, err = b.localize(table); err != nil {
		return nil, err
	}

	e.logger.Debug("exported namespace", "namespace", req.Namespace, "items", len(items), "nodes", len(set.Items))
	return nodeset.Marshal(set)
}

func (e *Exporter) selectItems(ctx context.Context, req Request) ([]*profile.ProfileItem, error) {
	if len(req.Items) == 0 {
		items, err := e.source.ItemsForNamespace(ctx, req.Namespace)
		if err != nil {
			return nil, fmt.Errorf("read items of %s: %w", req.Namespace, err)
		}
		return items, nil
	}
	items := make([]*profile.ProfileItem, 0, len(req.Items))
	for _, key := range req.Items {
		item, err := e.source.Item(ctx, key)
		if err != nil {
			return nil, fmt.Errorf("read item %s: %w", key, err)
		}
		items = append(items, item)
	}
	return items, nil
}

// models builds the model table: one entry per exported namespace, the
// first carrying the required models. Namespaces without a known version
// are left out of RequiredModel.
func (e *Exporter) models(ctx context.Context, exported []string, table nodeset.NamespaceTable) (*nodeset.ModelTable, error) {
	isExported := make(map[string]bool, len(exported))
	models := &nodeset.ModelTable{}
	for _, uri := range exported {
		isExported[uri] = true
		entry := &nodeset.ModelTableEntry{ModelUriAttr: uri}
		id, ok, err := e.versions.ModelVersion(ctx, uri)
		if err != nil {
			return nil, err
		}
		if ok {
			entry.VersionAttr = id.Version
			entry.PublicationDateAttr = nodeset.FormatPublicationDate(id.PublicationDate)
		}
		models.Model = append(models.Model, entry)
	}

	primary := models.Model[0]
	for _, uri := range table {
		if isExported[uri] {
			continue
		}
		id, ok, err := e.versions.ModelVersion(ctx, uri)
		if err != nil {
			return nil, err
		}
		if !ok {
			e.logger.Debug("omitting required model without registered version", "namespace", uri)
			continue
		}
		primary.RequiredModel = append(primary.RequiredModel, &nodeset.ModelTableEntry{
			ModelUriAttr:        uri,
			VersionAttr:         id.Version,
			PublicationDateAttr: nodeset.FormatPublicationDate(id.PublicationDate),
		})
	}
	return models, nil
}

// namespaceTable orders namespaces: core, exported, then the rest sorted.
func namespaceTable(exported, touched []string) nodeset.NamespaceTable {
	table := nodeset.NewNamespaceTable(nil)
	for _, uri := range exported {
		table.Add(uri)
	}
	rest := make([]string, 0, len(touched))
	for _, uri := range touched {
		if _, ok := table.Index(uri); !ok {
			rest = append(rest, uri)
		}
	}
	sort.Strings(rest)
	for _, uri := range rest {
		table.Add(uri)
	}
	return table
}
