package designer

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/cesmii/profiledesigner/cache"
	"github.com/cesmii/profiledesigner/export"
	"github.com/cesmii/profiledesigner/internal/nodesettest"
	"github.com/cesmii/profiledesigner/model"
	"github.com/cesmii/profiledesigner/nodeset"
	"github.com/cesmii/profiledesigner/profile"
	"github.com/cesmii/profiledesigner/registry"
	"github.com/cesmii/profiledesigner/resolver"
	"github.com/cesmii/profiledesigner/store"
)

// memRegistry is an in-process registry.Registry.
type memRegistry struct {
	mu      sync.Mutex
	records []registry.ModelRecord
}

func (r *memRegistry) Publish(_ context.Context, rec registry.ModelRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, rec)
	return nil
}

func (r *memRegistry) Lookup(_ context.Context, uri string) (*registry.ModelRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var newest *registry.ModelRecord
	for i := range r.records {
		rec := r.records[i]
		if rec.ModelURI == uri && (newest == nil || rec.PublicationDate.After(newest.PublicationDate)) {
			newest = &rec
		}
	}
	return newest, nil
}

func (r *memRegistry) List(context.Context) ([]registry.ModelRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]registry.ModelRecord(nil), r.records...), nil
}

func (r *memRegistry) Watch(context.Context) (<-chan []registry.ModelRecord, error) {
	return nil, errors.New("not supported")
}

func (r *memRegistry) ModelVersion(ctx context.Context, uri string) (model.ModelIdentity, bool, error) {
	rec, err := r.Lookup(ctx, uri)
	if err != nil || rec == nil {
		return model.ModelIdentity{}, false, err
	}
	return rec.Identity(), true, nil
}

func (r *memRegistry) Close() error { return nil }

type fixture struct {
	designer *Designer
	cache    *cache.BackedCache
	store    *store.MemoryStore
	spans    *tracetest.SpanRecorder
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	fb, err := cache.NewFileBackend(t.TempDir())
	require.NoError(t, err)

	f := &fixture{
		cache: cache.New(fb),
		store: store.NewMemoryStore(),
		spans: tracetest.NewSpanRecorder(),
	}
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(f.spans))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	base := []Option{
		WithCache(f.cache),
		WithStore(f.store),
		WithTenant("acme"),
		WithTracerProvider(tp),
	}
	f.designer, err = New(append(base, opts...)...)
	require.NoError(t, err)
	return f
}

func (f *fixture) spanNames() []string {
	var names []string
	for _, s := range f.spans.Ended() {
		names = append(names, s.Name())
	}
	return names
}

func (f *fixture) span(t *testing.T, name string) sdktrace.ReadOnlySpan {
	t.Helper()
	for _, s := range f.spans.Ended() {
		if s.Name() == name {
			return s
		}
	}
	require.Failf(t, "span not recorded", "%s", name)
	return nil
}

func TestNew_RequiresCache(t *testing.T) {
	d, err := New()
	assert.Nil(t, d)
	assert.ErrorIs(t, err, ErrNoCache)
	assert.ErrorIs(t, err, &DesignerError{Kind: KindConfiguration})
}

func TestImport_DependencyOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	report, err := f.designer.Import(ctx, [][]byte{nodesettest.DependentB(), nodesettest.Minimal()})
	require.NoError(t, err)

	require.Len(t, report.Models, 2)
	assert.Equal(t, nodesettest.NamespaceA, report.Models[0].ModelURI)
	assert.Equal(t, nodesettest.NamespaceB, report.Models[1].ModelURI)
	for _, m := range report.Models {
		assert.True(t, m.New, m.ModelURI)
		assert.True(t, m.Projected, m.ModelURI)
		assert.NotEmpty(t, m.ProfileID, m.ModelURI)
		assert.Greater(t, m.Nodes, 0, m.ModelURI)
	}
	assert.Equal(t, "acme", report.Tenant)
	assert.NotEmpty(t, report.TransactionID)
	assert.Greater(t, report.Items, 0)
	assert.Empty(t, report.Error)

	b, err := f.store.CheckExisting(ctx, profile.ItemKey{NodeID: nodeset.ExpandedID(nodesettest.NamespaceB, "i=2000"), Namespace: nodesettest.NamespaceB})
	require.NoError(t, err)
	require.NotNil(t, b)
	require.NotNil(t, b.Parent)
	assert.Equal(t, nodeset.ExpandedID(nodesettest.NamespaceA, "i=1000"), b.Parent.NodeID)

	names := f.spanNames()
	assert.Contains(t, names, "designer.import")
	assert.Contains(t, names, "designer.resolve")
	assert.Contains(t, names, "designer.import_namespace")
	assert.Contains(t, names, "designer.project")
	assert.Equal(t, codes.Ok, f.span(t, "designer.import").Status().Code)
}

func TestImport_ReimportIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.designer.Import(ctx, [][]byte{nodesettest.Minimal()})
	require.NoError(t, err)
	before, err := f.store.ItemsForNamespace(ctx, nodesettest.NamespaceA)
	require.NoError(t, err)

	second, err := f.designer.Import(ctx, [][]byte{nodesettest.Minimal()})
	require.NoError(t, err)

	assert.NotEqual(t, first.TransactionID, second.TransactionID)
	require.Len(t, second.Models, 1)
	assert.False(t, second.Models[0].New)
	assert.Equal(t, first.Models[0].ProfileID, second.Models[0].ProfileID)

	after, err := f.store.ItemsForNamespace(ctx, nodesettest.NamespaceA)
	require.NoError(t, err)
	assert.Len(t, after, len(before))
}

func TestImport_CoreIsNotProjected(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	report, err := f.designer.Import(ctx, [][]byte{nodesettest.Core(), nodesettest.Minimal()})
	require.NoError(t, err)
	require.Len(t, report.Models, 2)
	assert.Equal(t, nodeset.CoreNamespace, report.Models[0].ModelURI)
	assert.False(t, report.Models[0].Projected)

	core, err := f.store.ItemsForNamespace(ctx, nodeset.CoreNamespace)
	require.NoError(t, err)
	assert.Empty(t, core)

	items, err := f.store.ItemsForNamespace(ctx, nodesettest.NamespaceA)
	require.NoError(t, err)
	var pump *profile.ProfileItem
	for _, item := range items {
		assert.NotEmpty(t, item.ProfileID, item.Key.NodeID)
		if item.Key.NodeID == nodeset.ExpandedID(nodesettest.NamespaceA, "i=1000") {
			pump = item
		}
	}
	require.NotNil(t, pump)
	require.NotNil(t, pump.Parent)
	assert.Equal(t, nodeset.CoreID(58), pump.Parent.NodeID)
	assert.Equal(t, nodeset.CoreNamespace, pump.Parent.Namespace)
}

func TestImport_MissingDependencyRollsBack(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	report, err := f.designer.Import(ctx, [][]byte{nodesettest.DependentB()})
	require.Error(t, err)
	assert.ErrorIs(t, err, resolver.ErrMissingDependency)
	assert.ErrorIs(t, err, &DesignerError{Kind: KindDependency})

	var derr *DesignerError
	require.ErrorAs(t, err, &derr)
	assert.Equal(t, "Designer.Import", derr.Op)
	assert.Contains(t, derr.Context, "missing")

	require.NotNil(t, report)
	require.Len(t, report.MissingModels, 1)
	assert.Contains(t, report.MissingModels[0], nodesettest.NamespaceA)
	assert.NotEmpty(t, report.Error)

	found, err := f.cache.LoadIdentity(ctx, model.NewImportResult(), model.ModelIdentity{ModelURI: nodesettest.NamespaceB}, cache.Scope{Tenant: "acme"})
	require.NoError(t, err)
	assert.False(t, found, "failed import must not leave its documents cached")

	assert.Equal(t, codes.Error, f.span(t, "designer.import").Status().Code)
}

func TestImport_Errors(t *testing.T) {
	tests := []struct {
		name     string
		payloads [][]byte
		kind     string
		sentinel error
	}{
		{
			name:     "no payloads",
			payloads: nil,
			kind:     KindValidation,
			sentinel: ErrNoPayloads,
		},
		{
			name:     "malformed document",
			payloads: [][]byte{[]byte("<UANodeSet><Models>")},
			kind:     KindParse,
			sentinel: nodeset.ErrParse,
		},
		{
			name:     "dependency cycle",
			payloads: [][]byte{nodesettest.Requiring("urn:x", "urn:y"), nodesettest.Requiring("urn:y", "urn:x")},
			kind:     KindDependency,
			sentinel: resolver.ErrDependencyCycle,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			_, err := f.designer.Import(context.Background(), tt.payloads)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.sentinel)
			assert.ErrorIs(t, err, &DesignerError{Kind: tt.kind})
		})
	}
}

func TestImport_FailOnAlreadyImported(t *testing.T) {
	f := newFixture(t, WithFailOnAlreadyImported(true))
	ctx := context.Background()

	_, err := f.designer.Import(ctx, [][]byte{nodesettest.Minimal()})
	require.NoError(t, err)

	_, err = f.designer.Import(ctx, [][]byte{nodesettest.Minimal()})
	assert.ErrorIs(t, err, resolver.ErrAlreadyImported)
	assert.ErrorIs(t, err, &DesignerError{Kind: KindDependency})

	_, err = f.designer.Import(ctx, [][]byte{nodesettest.MinimalDated("1.1.0", nodesettest.Date2024)})
	assert.NoError(t, err)
}

func TestImport_PublishesToRegistry(t *testing.T) {
	reg := &memRegistry{}
	f := newFixture(t, WithRegistry(reg), WithInstanceID("designer-1"))
	ctx := context.Background()

	_, err := f.designer.Import(ctx, [][]byte{nodesettest.Minimal(), nodesettest.DependentB()})
	require.NoError(t, err)

	records, err := reg.List(ctx)
	require.NoError(t, err)
	require.Len(t, records, 2)
	for _, rec := range records {
		assert.Equal(t, "acme", rec.Tenant)
		assert.Equal(t, "designer-1", rec.Instance)
		assert.NotEmpty(t, rec.CacheKey)
	}
	assert.Equal(t, []string{nodesettest.NamespaceA}, records[1].RequiredModels)
}

func TestImport_FailedImportPublishesNothing(t *testing.T) {
	reg := &memRegistry{}
	f := newFixture(t, WithRegistry(reg))

	_, err := f.designer.Import(context.Background(), [][]byte{nodesettest.DependentB()})
	require.Error(t, err)
	assert.Empty(t, reg.records)
}

func TestExport_RoundTrip(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.designer.Import(ctx, [][]byte{nodesettest.Minimal(), nodesettest.DependentB()})
	require.NoError(t, err)

	out, err := f.designer.Export(ctx, export.Request{Namespace: nodesettest.NamespaceB})
	require.NoError(t, err)

	set, err := nodeset.Parse(out)
	require.NoError(t, err)
	assert.Equal(t, []string{nodesettest.NamespaceB, nodesettest.NamespaceA}, set.NamespaceUris.Uri)
	require.Len(t, set.Models.Model, 1)
	require.Len(t, set.Models.Model[0].RequiredModel, 1)
	assert.Equal(t, nodesettest.NamespaceA, set.Models.Model[0].RequiredModel[0].ModelUriAttr)

	span := f.span(t, "designer.export")
	assert.Equal(t, codes.Ok, span.Status().Code)
}

func TestExport_NothingToExport(t *testing.T) {
	f := newFixture(t)

	_, err := f.designer.Export(context.Background(), export.Request{Namespace: "urn:unknown"})
	assert.ErrorIs(t, err, export.ErrNothingToExport)
	assert.ErrorIs(t, err, &DesignerError{Kind: KindValidation, Op: "Designer.Export"})
	assert.Equal(t, codes.Error, f.span(t, "designer.export").Status().Code)
}

func TestExport_Core(t *testing.T) {
	f := newFixture(t, WithTenant(""))
	ctx := context.Background()

	_, err := f.designer.Import(ctx, [][]byte{nodesettest.Core()})
	require.NoError(t, err)

	out, err := f.designer.Export(ctx, export.Request{Namespace: nodeset.CoreNamespace})
	require.NoError(t, err)
	assert.Contains(t, string(out), `xsi:nil="true"`)
}
