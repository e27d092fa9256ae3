package designer

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/cesmii/profiledesigner/cache"
	"github.com/cesmii/profiledesigner/export"
	"github.com/cesmii/profiledesigner/graph"
	"github.com/cesmii/profiledesigner/model"
	"github.com/cesmii/profiledesigner/nodeset"
	"github.com/cesmii/profiledesigner/profile"
	"github.com/cesmii/profiledesigner/registry"
	"github.com/cesmii/profiledesigner/resolver"
	"github.com/cesmii/profiledesigner/store"
)

// Store is the persistence a Designer imports into and exports from.
// store.MemoryStore and store.SQLiteStore implement it.
type Store interface {
	profile.Store
	export.ItemSource
	export.VersionLookup
}

// ModelReport describes one model handled by an import.
type ModelReport struct {
	ModelURI        string    `json:"modelUri"`
	Version         string    `json:"version"`
	PublicationDate time.Time `json:"publicationDate"`
	ProfileID       string    `json:"profileId,omitempty"`

	// New is set when this import stored the document in the cache.
	New bool `json:"new"`

	// Projected is false for models that are only loaded to resolve
	// references, such as the core namespace.
	Projected bool `json:"projected"`
	Nodes     int  `json:"nodes"`
}

// ImportReport is the outcome of an import. It is returned together with
// the error of a failed import.
type ImportReport struct {
	TransactionID string            `json:"transactionId"`
	Tenant        string            `json:"tenant,omitempty"`
	Models        []ModelReport     `json:"models"`
	Items         int               `json:"items"`
	MissingModels []string          `json:"missingModels,omitempty"`
	Warnings      []profile.Warning `json:"warnings,omitempty"`
	Error         string            `json:"error,omitempty"`
	Duration      time.Duration     `json:"duration"`
}

// Designer runs NodeSet imports and exports against a cache, a store and
// an optional shared registry. Each call is an independent transaction;
// a Designer is safe for concurrent use when its collaborators are.
type Designer struct {
	cache                 cache.Cache
	store                 Store
	registry              registry.Registry
	tenant                string
	failOnAlreadyImported bool
	instanceID            string

	importer  *graph.Importer
	projector *profile.Projector
	exporter  *export.Exporter

	logger  *slog.Logger
	tracer  trace.Tracer
	metrics *otelMetrics
}

// New builds a Designer. WithCache is required.
func New(opts ...Option) (*Designer, error) {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}

	if o.cache == nil {
		return nil, NewConfigurationError("designer.New", ErrNoCache)
	}
	if o.store == nil {
		o.store = store.NewMemoryStore()
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	if o.tracerProvider == nil {
		o.tracerProvider = otel.GetTracerProvider()
	}
	if o.meterProvider == nil {
		o.meterProvider = otel.GetMeterProvider()
	}
	if o.instanceID == "" {
		if host, err := os.Hostname(); err == nil {
			o.instanceID = host
		}
	}

	metrics, err := newOTelMetrics(o.meterProvider.Meter(instrumentationName))
	if err != nil {
		return nil, NewInternalError("designer.New", err)
	}

	d := &Designer{
		cache:                 o.cache,
		store:                 o.store,
		registry:              o.registry,
		tenant:                o.tenant,
		failOnAlreadyImported: o.failOnAlreadyImported,
		instanceID:            o.instanceID,
		importer:              graph.NewImporter(graph.WithLogger(o.logger)),
		projector:             profile.NewProjector(profile.WithLogger(o.logger)),
		logger:                o.logger,
		tracer:                o.tracerProvider.Tracer(instrumentationName),
		metrics:               metrics,
	}

	lookups := []export.VersionLookup{o.store}
	if o.registry != nil {
		lookups = append(lookups, o.registry)
	}
	d.exporter = export.New(o.store,
		export.WithLogger(o.logger),
		export.WithCache(o.cache),
		export.WithVersionLookup(lookups...),
	)
	return d, nil
}

// Store returns the store the designer imports into.
func (d *Designer) Store() Store {
	return d.store
}

// Import loads payloads and every model they require, builds the node
// graph of each model in dependency order, and projects it into the store.
//
// On failure the documents this import added to the cache are removed
// again and the returned report carries the error and any missing models.
func (d *Designer) Import(ctx context.Context, payloads [][]byte) (*ImportReport, error) {
	start := time.Now()
	report := &ImportReport{
		TransactionID: uuid.New().String(),
		Tenant:        d.tenant,
	}

	ctx, span := d.tracer.Start(ctx, "designer.import", trace.WithAttributes(
		attribute.String("designer.transaction", report.TransactionID),
		attribute.String("designer.tenant", d.tenant),
		attribute.Int("designer.payloads", len(payloads)),
	))

	err := d.runImport(ctx, report, payloads)
	report.Duration = time.Since(start)
	if err != nil {
		report.Error = err.Error()
	}
	span.SetAttributes(
		attribute.Int("designer.models", len(report.Models)),
		attribute.Int("designer.items", report.Items),
		attribute.Int("designer.warnings", len(report.Warnings)),
	)
	endSpan(span, err)
	d.metrics.recordImport(ctx, d.tenant, report, err, report.Duration)
	return report, err
}

func (d *Designer) runImport(ctx context.Context, report *ImportReport, payloads [][]byte) error {
	const op = "Designer.Import"
	logger := d.logger.With("transaction", report.TransactionID)

	if len(payloads) == 0 {
		return NewValidationError(op, ErrNoPayloads)
	}

	res, err := d.resolve(ctx, payloads, logger)
	if res != nil {
		for _, m := range res.MissingModels {
			report.MissingModels = append(report.MissingModels, m.String())
		}
	}
	if err != nil {
		d.rollback(ctx, res, logger)
		return classify(op, err, KindStorage)
	}

	tx := profile.NewTransaction(graph.NewRegistry(), d.store,
		profile.WithTransactionID(report.TransactionID),
		profile.WithTransactionLogger(d.logger),
	)
	for _, mv := range res.Models {
		mr, err := d.importModel(ctx, tx, mv)
		if err != nil {
			d.rollback(ctx, res, logger)
			return classify(op, err, KindStorage).WithContext(map[string]any{"namespace": mv.Identity.ModelURI})
		}
		report.Models = append(report.Models, mr)
	}
	report.Items = len(tx.Items())
	report.Warnings = tx.Warnings()

	if err := d.cache.Flush(ctx); err != nil {
		return NewStorageError(op, fmt.Errorf("flush cache: %w", err))
	}
	d.publish(ctx, res, logger)

	logger.Info("import finished",
		"models", len(report.Models),
		"items", report.Items,
		"warnings", len(report.Warnings))
	return nil
}

func (d *Designer) resolve(ctx context.Context, payloads [][]byte, logger *slog.Logger) (*model.ImportResult, error) {
	ctx, span := d.tracer.Start(ctx, "designer.resolve")
	res, err := resolver.Resolve(ctx, payloads, d.cache, resolver.Options{
		Scope:                 cache.Scope{Tenant: d.tenant},
		FailOnAlreadyImported: d.failOnAlreadyImported,
		Logger:                logger,
	})
	if res != nil {
		span.SetAttributes(
			attribute.Int("designer.models", len(res.Models)),
			attribute.Int("designer.missing", len(res.MissingModels)),
		)
	}
	endSpan(span, err)
	return res, err
}

// importModel builds the graph of one model and projects it. The core
// namespace is only registered for reference resolution.
func (d *Designer) importModel(ctx context.Context, tx *profile.Transaction, mv *model.ModelValue) (mr ModelReport, err error) {
	mr = ModelReport{
		ModelURI:        mv.Identity.ModelURI,
		Version:         mv.Identity.Version,
		PublicationDate: mv.Identity.PublicationDate,
		New:             mv.NewInThisImport,
	}

	ctx, span := d.tracer.Start(ctx, "designer.import_namespace", trace.WithAttributes(
		attribute.String("designer.namespace", mv.Identity.ModelURI),
		attribute.String("designer.version", mv.Identity.Version),
		attribute.Bool("designer.new", mv.NewInThisImport),
	))
	defer func() { endSpan(span, err) }()

	m, err := d.importer.Import(ctx, mv.NodeSet, mv.Identity, tx.Registry)
	if err != nil {
		return mr, fmt.Errorf("import %s: %w", mv.Identity, err)
	}
	mr.Nodes = len(m.Order)
	if mv.Identity.ModelURI == nodeset.CoreNamespace {
		return mr, nil
	}

	p, err := d.store.UpsertProfile(ctx, &profile.Profile{
		Namespace:       mv.Identity.ModelURI,
		Version:         mv.Identity.Version,
		PublicationDate: mv.Identity.PublicationDate,
		Tenant:          mv.Scope.Tenant,
		RequiredModels:  mv.RequiredModels,
	})
	if err != nil {
		return mr, NewStorageError("Designer.Import", fmt.Errorf("upsert profile %s: %w", mv.Identity.ModelURI, err))
	}
	tx.SetProfile(p)
	mr.ProfileID = p.ID

	if err := d.project(ctx, tx, m); err != nil {
		return mr, err
	}
	mr.Projected = true
	return mr, nil
}

func (d *Designer) project(ctx context.Context, tx *profile.Transaction, m *graph.NodeSetModel) error {
	ctx, span := d.tracer.Start(ctx, "designer.project", trace.WithAttributes(
		attribute.String("designer.namespace", m.NamespaceURI),
		attribute.Int("designer.nodes", len(m.Order)),
	))
	warningsBefore := len(tx.Warnings())
	err := d.projector.ProjectNamespace(ctx, tx, m)
	span.SetAttributes(attribute.Int("designer.warnings", len(tx.Warnings())-warningsBefore))
	endSpan(span, err)
	return err
}

// rollback removes the documents this import added to the cache.
func (d *Designer) rollback(ctx context.Context, res *model.ImportResult, logger *slog.Logger) {
	if res == nil {
		return
	}
	if err := d.cache.DeleteNewlyAdded(context.WithoutCancel(ctx), res); err != nil {
		logger.Error("cache rollback failed", "error", err)
		return
	}
	logger.Info("rolled back cache", "models", len(res.Models))
}

// publish announces the imported models on the shared registry. Failures
// are logged; the import itself has already been committed.
func (d *Designer) publish(ctx context.Context, res *model.ImportResult, logger *slog.Logger) {
	if d.registry == nil {
		return
	}
	for _, mv := range res.Models {
		if err := d.registry.Publish(ctx, registry.RecordFromValue(mv, d.instanceID)); err != nil {
			logger.Warn("failed to publish model", "model", mv.Identity.String(), "error", err)
		}
	}
}

// Export writes the selected profile items as a NodeSet2 document.
func (d *Designer) Export(ctx context.Context, req export.Request) ([]byte, error) {
	ctx, span := d.tracer.Start(ctx, "designer.export", trace.WithAttributes(
		attribute.String("designer.namespace", req.Namespace),
		attribute.Int("designer.items", len(req.Items)),
	))

	out, err := d.exporter.Export(ctx, req)
	if err != nil {
		err = classify("Designer.Export", err, KindStorage)
	} else {
		span.SetAttributes(attribute.Int("designer.bytes", len(out)))
	}
	endSpan(span, err)
	return out, err
}
