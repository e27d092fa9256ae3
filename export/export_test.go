package export_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cesmii/profiledesigner/cache"
	"github.com/cesmii/profiledesigner/export"
	"github.com/cesmii/profiledesigner/graph"
	"github.com/cesmii/profiledesigner/internal/nodesettest"
	"github.com/cesmii/profiledesigner/model"
	"github.com/cesmii/profiledesigner/nodeset"
	"github.com/cesmii/profiledesigner/profile"
	"github.com/cesmii/profiledesigner/store"
)

func importDoc(t *testing.T, reg *graph.Registry, data []byte) *graph.NodeSetModel {
	t.Helper()
	set, err := nodeset.Parse(data)
	require.NoError(t, err)
	mv, err := model.NewModelValue(set, data)
	require.NoError(t, err)
	m, err := graph.NewImporter().Import(context.Background(), set, mv.Identity, reg)
	require.NoError(t, err)
	return m
}

// projected imports docs in order and projects them into a memory store.
func projected(t *testing.T, docs ...[]byte) (*store.MemoryStore, *graph.Registry, []*graph.NodeSetModel) {
	t.Helper()
	st := store.NewMemoryStore()
	reg := graph.NewRegistry()
	var models []*graph.NodeSetModel
	for _, d := range docs {
		models = append(models, importDoc(t, reg, d))
	}
	tx := profile.NewTransaction(reg, st)
	p := profile.NewProjector()
	for _, m := range models {
		require.NoError(t, p.ProjectNamespace(context.Background(), tx, m))
	}
	return st, reg, models
}

func nodeByID(t *testing.T, set *nodeset.UANodeSet, id string) nodeset.Node {
	t.Helper()
	for _, n := range set.Items {
		if n.Base().NodeIdAttr == id {
			return n
		}
	}
	require.Failf(t, "node not exported", "%s", id)
	return nil
}

func aliasNames(set *nodeset.UANodeSet) map[string]string {
	out := make(map[string]string)
	if set.Aliases == nil {
		return out
	}
	for _, a := range set.Aliases.Alias {
		out[a.AliasAttr] = a.Value
	}
	return out
}

func TestExport_MinimalRoundTrip(t *testing.T) {
	st, reg, models := projected(t, nodesettest.Minimal())
	e := export.New(st, export.WithVersionLookup(reg))

	out, err := e.Export(context.Background(), export.Request{Namespace: nodesettest.NamespaceA})
	require.NoError(t, err)

	set, err := nodeset.Parse(out)
	require.NoError(t, err)
	assert.Equal(t, []string{nodesettest.NamespaceA}, set.NamespaceUris.Uri)
	require.Len(t, set.Models.Model, 1)
	assert.Equal(t, nodesettest.NamespaceA, set.Models.Model[0].ModelUriAttr)
	assert.Equal(t, "1.0.0", set.Models.Model[0].VersionAttr)
	assert.Empty(t, set.Models.Model[0].RequiredModel)

	var ids []string
	for _, n := range set.Items {
		ids = append(ids, n.Base().NodeIdAttr)
	}
	assert.Equal(t, []string{"ns=1;i=1000", "ns=1;i=1001", "ns=1;i=1002"}, ids)

	pump := nodeByID(t, set, "ns=1;i=1000")
	assert.Equal(t, "1:PumpType", pump.Base().BrowseNameAttr)

	serial, ok := nodeByID(t, set, "ns=1;i=1001").(*nodeset.UAVariable)
	require.True(t, ok)
	assert.Equal(t, "String", serial.DataTypeAttr)
	assert.Equal(t, "ns=1;i=1000", serial.ParentNodeIdAttr)

	aliases := aliasNames(set)
	assert.Equal(t, "i=12", aliases["String"])
	assert.Equal(t, "i=45", aliases["HasSubtype"])
	assert.NotContains(t, aliases, "Double")

	again := importDoc(t, graph.NewRegistry(), out)
	original := models[0]
	require.Len(t, again.Nodes, len(original.Nodes))
	for id, want := range original.Nodes {
		got, ok := again.Node(id)
		require.True(t, ok, "missing %s after round trip", id)
		assert.Equal(t, want.Kind, got.Kind, id)
		assert.Equal(t, want.BrowseName, got.BrowseName, id)
		assert.Equal(t, want.SuperType, got.SuperType, id)
		assert.Equal(t, want.TypeDefinition, got.TypeDefinition, id)
		assert.Equal(t, want.ModelingRule, got.ModelingRule, id)
		assert.Equal(t, want.DataType, got.DataType, id)
		assert.Equal(t, want.Parent, got.Parent, id)
	}
}

func TestExport_NamespaceOrderAndRequiredModels(t *testing.T) {
	st, reg, _ := projected(t, nodesettest.Minimal(), nodesettest.DependentB())
	e := export.New(st, export.WithVersionLookup(reg))

	out, err := e.Export(context.Background(), export.Request{Namespace: nodesettest.NamespaceB})
	require.NoError(t, err)
	set, err := nodeset.Parse(out)
	require.NoError(t, err)

	assert.Equal(t, []string{nodesettest.NamespaceB, nodesettest.NamespaceA}, set.NamespaceUris.Uri)
	require.Len(t, set.Models.Model, 1)
	required := set.Models.Model[0].RequiredModel
	require.Len(t, required, 1)
	assert.Equal(t, nodesettest.NamespaceA, required[0].ModelUriAttr)
	assert.Equal(t, "1.0.0", required[0].VersionAttr)
	assert.Equal(t, nodesettest.Date2023, required[0].PublicationDateAttr)

	valve := nodeByID(t, set, "ns=1;i=2000")
	refs := valve.Base().References.Reference
	require.Len(t, refs, 1)
	assert.Equal(t, nodeset.RefHasSubtype, refs[0].ReferenceTypeAttr)
	assert.Equal(t, "ns=2;i=1000", refs[0].Value)
}

func TestExport_OmitsRequiredModelWithoutVersion(t *testing.T) {
	st, _, _ := projected(t, nodesettest.Minimal(), nodesettest.DependentB())
	e := export.New(st)

	out, err := e.Export(context.Background(), export.Request{Namespace: nodesettest.NamespaceB})
	require.NoError(t, err)
	set, err := nodeset.Parse(out)
	require.NoError(t, err)

	assert.Equal(t, []string{nodesettest.NamespaceB, nodesettest.NamespaceA}, set.NamespaceUris.Uri)
	assert.Empty(t, set.Models.Model[0].RequiredModel)
}

func TestExport_StoreVersionsFallBack(t *testing.T) {
	ctx := context.Background()
	st, reg, _ := projected(t, nodesettest.Minimal(), nodesettest.DependentB())
	for _, m := range reg.Models() {
		_, err := st.UpsertProfile(ctx, &profile.Profile{
			Namespace:       m.Identity.ModelURI,
			Version:         m.Identity.Version,
			PublicationDate: m.Identity.PublicationDate,
		})
		require.NoError(t, err)
	}
	e := export.New(st, export.WithVersionLookup(graph.NewRegistry(), st))

	out, err := e.Export(ctx, export.Request{Namespace: nodesettest.NamespaceB})
	require.NoError(t, err)
	set, err := nodeset.Parse(out)
	require.NoError(t, err)

	assert.Equal(t, "1.0.0", set.Models.Model[0].VersionAttr)
	require.Len(t, set.Models.Model[0].RequiredModel, 1)
	assert.Equal(t, nodesettest.NamespaceA, set.Models.Model[0].RequiredModel[0].ModelUriAttr)
}

func TestExport_Rich(t *testing.T) {
	st, reg, _ := projected(t, nodesettest.Rich())
	e := export.New(st, export.WithVersionLookup(reg))

	out, err := e.Export(context.Background(), export.Request{Namespace: nodesettest.NamespaceRich})
	require.NoError(t, err)
	set, err := nodeset.Parse(out)
	require.NoError(t, err)

	enum, ok := nodeByID(t, set, "ns=1;i=3001").(*nodeset.UADataType)
	require.True(t, ok)
	require.NotNil(t, enum.Definition)
	assert.Equal(t, "1:ColorEnum", enum.Definition.NameAttr)
	require.Len(t, enum.Definition.Field, 2)
	assert.Equal(t, "Green", enum.Definition.Field[1].NameAttr)
	require.NotNil(t, enum.Definition.Field[1].ValueAttr)
	assert.EqualValues(t, 1, *enum.Definition.Field[1].ValueAttr)

	percent, ok := nodeByID(t, set, "ns=1;i=3002").(*nodeset.UADataType)
	require.True(t, ok)
	assert.Nil(t, percent.Definition)

	level, ok := nodeByID(t, set, "ns=1;i=3301").(*nodeset.UAVariable)
	require.True(t, ok)
	assert.Equal(t, "ns=1;i=3002", level.DataTypeAttr)
	assert.Equal(t, "ns=1;i=3300", level.ParentNodeIdAttr)

	eu, ok := nodeByID(t, set, "ns=1;i=3304").(*nodeset.UAVariable)
	require.True(t, ok)
	assert.Equal(t, "EngineeringUnits", eu.BrowseNameAttr)
	assert.Equal(t, "EUInformation", eu.DataTypeAttr)
	require.NotNil(t, eu.Value)
	assert.Contains(t, eu.Value.InnerXML, "<uax:UnitId>20529</uax:UnitId>")

	for _, id := range []string{"ns=1;i=3302", "ns=1;i=3303"} {
		child, ok := nodeByID(t, set, id).(*nodeset.UAVariable)
		require.True(t, ok, id)
		assert.Equal(t, "ns=1;i=3301", child.ParentNodeIdAttr, id)
		assert.Equal(t, "Double", child.DataTypeAttr, id)
	}

	drain, ok := nodeByID(t, set, "ns=1;i=3307").(*nodeset.UAMethod)
	require.True(t, ok)
	assert.Equal(t, "ns=1;i=3300", drain.ParentNodeIdAttr)

	tank := nodeByID(t, set, "ns=1;i=3400")
	var organized bool
	for _, r := range tank.Base().References.Reference {
		if r.ReferenceTypeAttr == nodeset.RefOrganizes && r.Value == "i=85" && !r.IsForward() {
			organized = true
		}
	}
	assert.True(t, organized)

	for _, n := range set.Items {
		assert.NotEqual(t, "ns=1;i=3402", n.Base().NodeIdAttr)
	}

	aliases := aliasNames(set)
	assert.Contains(t, aliases, "HasInterface")
	assert.Contains(t, aliases, "EUInformation")

	again := importDoc(t, graph.NewRegistry(), out)
	_, ok = again.Node(nodeset.ExpandedID(nodesettest.NamespaceRich, "i=3302"))
	assert.True(t, ok)
}

func TestExport_SelectedItems(t *testing.T) {
	st, reg, _ := projected(t, nodesettest.Minimal())
	e := export.New(st, export.WithVersionLookup(reg))

	pump := profile.ItemKey{NodeID: nodeset.ExpandedID(nodesettest.NamespaceA, "i=1000"), Namespace: nodesettest.NamespaceA}
	out, err := e.Export(context.Background(), export.Request{Namespace: nodesettest.NamespaceA, Items: []profile.ItemKey{pump}})
	require.NoError(t, err)
	set, err := nodeset.Parse(out)
	require.NoError(t, err)

	// The child object is written from the composition.
	motor, ok := nodeByID(t, set, "ns=1;i=1002").(*nodeset.UAObject)
	require.True(t, ok)
	assert.Equal(t, "ns=1;i=1000", motor.ParentNodeIdAttr)
}

func TestExport_NamespaceFromFirstItem(t *testing.T) {
	st, reg, _ := projected(t, nodesettest.Minimal())
	e := export.New(st, export.WithVersionLookup(reg))

	pump := profile.ItemKey{NodeID: nodeset.ExpandedID(nodesettest.NamespaceA, "i=1000"), Namespace: nodesettest.NamespaceA}
	out, err := e.Export(context.Background(), export.Request{Items: []profile.ItemKey{pump}})
	require.NoError(t, err)
	set, err := nodeset.Parse(out)
	require.NoError(t, err)

	assert.Equal(t, []string{nodesettest.NamespaceA}, set.NamespaceUris.Uri)
	require.NotNil(t, set.Models)
	require.Len(t, set.Models.Model, 1)
	assert.Equal(t, nodesettest.NamespaceA, set.Models.Model[0].ModelUriAttr)
}

func TestExport_NoNamespace(t *testing.T) {
	e := export.New(store.NewMemoryStore())
	_, err := e.Export(context.Background(), export.Request{})
	assert.ErrorIs(t, err, export.ErrNoNamespace)
}

func TestExport_NothingToExport(t *testing.T) {
	e := export.New(store.NewMemoryStore())
	_, err := e.Export(context.Background(), export.Request{Namespace: nodesettest.NamespaceA})
	assert.ErrorIs(t, err, export.ErrNothingToExport)
}

func TestExport_CoreFromCache(t *testing.T) {
	ctx := context.Background()
	backend, err := cache.NewFileBackend(t.TempDir())
	require.NoError(t, err)
	c := cache.New(backend)
	_, err = c.LoadBytes(ctx, model.NewImportResult(), nodesettest.Core(), model.GlobalScope)
	require.NoError(t, err)

	e := export.New(store.NewMemoryStore(), export.WithCache(c))
	out, err := e.Export(ctx, export.Request{Namespace: nodeset.CoreNamespace})
	require.NoError(t, err)
	assert.Contains(t, string(out), `xsi:nil="true"`)

	set, err := nodeset.Parse(out)
	require.NoError(t, err)
	arr, ok := nodeByID(t, set, "i=2255").(*nodeset.UAVariable)
	require.True(t, ok)
	require.NotNil(t, arr.Value)
	assert.True(t, arr.Value.Nil)
}

func TestExport_CoreWithoutCache(t *testing.T) {
	e := export.New(store.NewMemoryStore())
	_, err := e.Export(context.Background(), export.Request{Namespace: nodeset.CoreNamespace})
	assert.ErrorIs(t, err, export.ErrNoCache)
}

func TestVersionChain_FirstHitWins(t *testing.T) {
	regA := graph.NewRegistry()
	importDoc(t, regA, nodesettest.MinimalDated("2.0.0", nodesettest.Date2024))
	regB := graph.NewRegistry()
	importDoc(t, regB, nodesettest.Minimal())

	chain := export.VersionChain{nil, graph.NewRegistry(), regA, regB}
	id, ok, err := chain.ModelVersion(context.Background(), nodesettest.NamespaceA)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "2.0.0", id.Version)
}
