package profile_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cesmii/profiledesigner/graph"
	"github.com/cesmii/profiledesigner/internal/nodesettest"
	"github.com/cesmii/profiledesigner/model"
	"github.com/cesmii/profiledesigner/nodeset"
	"github.com/cesmii/profiledesigner/profile"
	"github.com/cesmii/profiledesigner/store"
)

func load(t *testing.T, reg *graph.Registry, data []byte) *graph.NodeSetModel {
	t.Helper()
	set, err := nodeset.Parse(data)
	require.NoError(t, err)
	mv, err := model.NewModelValue(set, data)
	require.NoError(t, err)
	m, err := graph.NewImporter().Import(context.Background(), set, mv.Identity, reg)
	require.NoError(t, err)
	return m
}

func project(t *testing.T, st profile.Store, docs ...[]byte) *profile.Transaction {
	t.Helper()
	reg := graph.NewRegistry()
	var models []*graph.NodeSetModel
	for _, d := range docs {
		models = append(models, load(t, reg, d))
	}
	tx := profile.NewTransaction(reg, st)
	p := profile.NewProjector()
	for _, m := range models {
		require.NoError(t, p.ProjectNamespace(context.Background(), tx, m))
	}
	return tx
}

func key(uri, local string) profile.ItemKey {
	return profile.ItemKey{NodeID: nodeset.ExpandedID(uri, local), Namespace: uri}
}

func item(t *testing.T, tx *profile.Transaction, k profile.ItemKey) *profile.ProfileItem {
	t.Helper()
	it, ok := tx.Item(k)
	require.True(t, ok, "no item for %s", k)
	return it
}

func TestProjectNamespace_Minimal(t *testing.T) {
	tx := project(t, store.NewMemoryStore(), nodesettest.Minimal())

	pump := item(t, tx, key(nodesettest.NamespaceA, "i=1000"))
	assert.Equal(t, profile.ItemClass, pump.Kind)
	assert.Equal(t, "PumpType", pump.Name)
	assert.Equal(t, "A pump", pump.Description)
	assert.Equal(t, profile.StateCreated, pump.State)
	assert.NotEmpty(t, pump.ID)
	require.NotNil(t, pump.Parent)
	assert.Equal(t, graph.BaseObjectTypeID, pump.Parent.NodeID)

	require.Len(t, pump.Attributes, 1)
	serial := pump.Attributes[0]
	assert.Equal(t, "SerialNumber", serial.Name)
	assert.Equal(t, profile.AttributeProperty, serial.Kind)
	assert.Equal(t, "Optional", serial.ModelingRule)
	require.NotNil(t, serial.IsRequired)
	assert.False(t, *serial.IsRequired)
	require.NotNil(t, serial.DataType)
	assert.Equal(t, "String", serial.DataType.Name)
	assert.NotEmpty(t, serial.DataType.LookupID)
	assert.False(t, serial.DataType.IsCustom())

	require.Len(t, pump.Compositions, 1)
	motor := pump.Compositions[0]
	assert.Equal(t, "Motor", motor.Name)
	assert.Equal(t, profile.CompositionObject, motor.Kind)
	require.NotNil(t, motor.IsRequired)
	assert.True(t, *motor.IsRequired)
	assert.Equal(t, graph.BaseObjectTypeID, motor.Related.NodeID)

	motorItem := item(t, tx, key(nodesettest.NamespaceA, "i=1002"))
	assert.Equal(t, profile.ItemObject, motorItem.Kind)
	require.NotNil(t, motorItem.InstanceParent)
	assert.Equal(t, pump.Key, *motorItem.InstanceParent)
	assert.Equal(t, pump.ID, motorItem.InstanceParentID)

	assert.Len(t, tx.Items(), 2)
	assert.Empty(t, tx.Warnings())
}

func TestProjectNamespace_IdempotentReimport(t *testing.T) {
	st := store.NewMemoryStore()
	first := project(t, st, nodesettest.Rich())
	second := project(t, st, nodesettest.Rich())

	ids := func(tx *profile.Transaction) map[profile.ItemKey]string {
		out := make(map[profile.ItemKey]string)
		for _, it := range tx.Items() {
			out[it.Key] = it.ID
		}
		return out
	}
	assert.Equal(t, ids(first), ids(second))
	for _, it := range second.Items() {
		assert.Equal(t, profile.StateExisting, it.State, it.Key.String())
	}

	stored, err := st.ItemsForNamespace(context.Background(), nodesettest.NamespaceRich)
	require.NoError(t, err)
	assert.Len(t, stored, len(first.Items()))
}

func TestProjectNamespace_RecursiveStructure(t *testing.T) {
	tx := project(t, store.NewMemoryStore(), nodesettest.Recursive())

	entryKey := key(nodesettest.NamespaceDict, "i=3000")
	var count int
	for _, it := range tx.Items() {
		if it.Key == entryKey {
			count++
		}
	}
	assert.Equal(t, 1, count)

	entry := item(t, tx, entryKey)
	assert.Equal(t, profile.ItemStructure, entry.Kind)
	assert.Equal(t, profile.StatePostProcessed, entry.State)
	assert.NotEmpty(t, entry.LookupID)
	require.Len(t, entry.Attributes, 2)

	k := entry.Attributes[0]
	assert.Equal(t, "Key", k.Name)
	assert.Equal(t, profile.AttributeStructureField, k.Kind)
	assert.Equal(t, "String", k.DataType.Name)
	assert.True(t, *k.IsRequired)

	children := entry.Attributes[1]
	assert.Equal(t, "Children", children.Name)
	assert.False(t, *children.IsRequired)
	assert.True(t, children.DataType.IsCustom())
	require.NotNil(t, children.DataType.CustomType)
	assert.Equal(t, entryKey, *children.DataType.CustomType)

	dict := item(t, tx, key(nodesettest.NamespaceDict, "i=3500"))
	root := dict.Attribute(nodeset.ExpandedID(nodesettest.NamespaceDict, "i=3501"))
	require.NotNil(t, root)
	assert.Equal(t, entryKey, *root.DataType.CustomType)
	assert.Equal(t, entry.LookupID, root.DataType.LookupID)
}

func TestProjectNamespace_Rich(t *testing.T) {
	st := store.NewMemoryStore()
	tx := project(t, st, nodesettest.Rich())
	ns := nodesettest.NamespaceRich

	color := item(t, tx, key(ns, "i=3001"))
	assert.Equal(t, profile.ItemEnumeration, color.Kind)
	require.Len(t, color.Attributes, 2)
	assert.Equal(t, "Green", color.Attributes[1].Name)
	assert.Equal(t, profile.AttributeEnumField, color.Attributes[1].Kind)
	require.NotNil(t, color.Attributes[1].EnumValue)
	assert.Equal(t, int64(1), *color.Attributes[1].EnumValue)
	assert.Equal(t, "Int64", color.Attributes[1].DataType.Name)

	percent := item(t, tx, key(ns, "i=3002"))
	assert.Equal(t, profile.ItemCustomDataType, percent.Kind)
	assert.True(t, percent.IsNumeric)
	assert.Equal(t, profile.StatePostProcessed, percent.State)
	lookup, err := st.Lookup(context.Background(), percent.LookupID)
	require.NoError(t, err)
	assert.Equal(t, profile.CustomLookupCode, lookup.Code)
	assert.True(t, lookup.UseEngUnit)
	assert.True(t, lookup.UseMinMax)

	rangeType := item(t, tx, key(ns, "i=3100"))
	assert.Equal(t, profile.ItemVariableType, rangeType.Kind)
	require.NotNil(t, rangeType.VariableDataType)
	assert.Equal(t, "Double", rangeType.VariableDataType.Name)
	assert.Len(t, rangeType.Attributes, 2)

	iface := item(t, tx, key(ns, "i=3200"))
	assert.Equal(t, profile.ItemInterface, iface.Kind)
	assert.True(t, iface.IsAbstract)

	tank := item(t, tx, key(ns, "i=3300"))
	assert.Equal(t, []profile.ItemKey{iface.Key}, tank.Interfaces)
	require.Len(t, tank.Attributes, 2)

	colorAttr := tank.Attributes[0]
	assert.Equal(t, "Color", colorAttr.Name)
	assert.True(t, colorAttr.DataType.IsCustom())
	assert.Equal(t, color.Key, *colorAttr.DataType.CustomType)

	level := tank.Attributes[1]
	assert.Equal(t, "Level", level.Name)
	assert.Equal(t, profile.AttributeDataVariable, level.Kind)
	assert.Equal(t, percent.Key, *level.DataType.CustomType)
	assert.Equal(t, percent.LookupID, level.DataType.LookupID)
	require.NotNil(t, level.EngineeringUnit)
	assert.Equal(t, int32(20529), level.EngineeringUnit.UnitID)
	assert.Equal(t, "%", level.EngineeringUnit.DisplayName)
	assert.NotEmpty(t, level.EngineeringUnit.ID)
	assert.Equal(t, nodeset.ExpandedID(ns, "i=3304"), level.EngineeringUnitNodeID)

	var children map[string]string
	require.NoError(t, json.Unmarshal([]byte(level.DataVariableNodeIDs), &children))
	assert.Equal(t, map[string]string{
		"Low":  nodeset.ExpandedID(ns, "i=3302"),
		"High": nodeset.ExpandedID(ns, "i=3303"),
	}, children)

	require.Len(t, tank.Compositions, 2)
	assert.Equal(t, "Inlet", tank.Compositions[0].Name)
	assert.True(t, *tank.Compositions[0].IsRequired)
	drain := tank.Compositions[1]
	assert.Equal(t, profile.CompositionMethod, drain.Kind)
	assert.False(t, *drain.IsRequired)
	assert.Equal(t, key(ns, "i=3307"), drain.Related)

	// The method was created while its parent was still being projected.
	method := item(t, tx, key(ns, "i=3307"))
	assert.Equal(t, profile.ItemMethod, method.Kind)
	assert.Equal(t, tank.ID, method.InstanceParentID)
	assert.Equal(t, profile.StatePostProcessed, method.State)

	tank1 := item(t, tx, key(ns, "i=3400"))
	assert.Equal(t, profile.ItemObject, tank1.Kind)
	assert.Equal(t, tank.Key, *tank1.Parent)
	assert.Nil(t, tank1.InstanceParent)
	require.Len(t, tank1.OtherReferences, 1)
	assert.Equal(t, nodeset.RefOrganizes, tank1.OtherReferences[0].ReferenceType)

	warnings := tx.Warnings()
	require.Len(t, warnings, 1)
	assert.Equal(t, nodeset.ExpandedID(ns, "i=3402"), warnings[0].NodeID)
	assert.Equal(t, nodeset.ExpandedID(ns, "i=3401"), warnings[0].Parent)
}

func TestProject_VariableDelegatesToOwner(t *testing.T) {
	reg := graph.NewRegistry()
	m := load(t, reg, nodesettest.Rich())
	tx := profile.NewTransaction(reg, store.NewMemoryStore())

	low, ok := m.Node(nodeset.ExpandedID(nodesettest.NamespaceRich, "i=3302"))
	require.True(t, ok)
	it, err := profile.NewProjector().Project(context.Background(), tx, low)
	require.NoError(t, err)
	assert.Equal(t, key(nodesettest.NamespaceRich, "i=3300"), it.Key)
}

func TestProject_UnknownKind(t *testing.T) {
	tx := profile.NewTransaction(graph.NewRegistry(), store.NewMemoryStore())
	_, err := profile.NewProjector().Project(context.Background(), tx, &graph.Node{Kind: graph.NodeKind(42), NodeID: "nsu=urn:x;i=1"})
	assert.ErrorIs(t, err, profile.ErrUnknownNodeKind)
}

func TestProject_UnresolvedDataType(t *testing.T) {
	uri := "urn:broken"
	m := graph.NewNodeSetModel(model.ModelIdentity{ModelURI: uri})
	typeID := nodeset.ExpandedID(uri, "i=1")
	propID := nodeset.ExpandedID(uri, "i=2")
	m.Nodes[typeID] = &graph.Node{Kind: graph.KindObjectType, NodeID: typeID, Namespace: uri, BrowseName: "T", Properties: []string{propID}}
	m.Nodes[propID] = &graph.Node{Kind: graph.KindProperty, NodeID: propID, Namespace: uri, BrowseName: "P", Parent: typeID, DataType: "nsu=urn:gone;i=5"}
	m.Order = []string{typeID, propID}
	reg := graph.NewRegistry()
	reg.Register(m)

	tx := profile.NewTransaction(reg, store.NewMemoryStore())
	err := profile.NewProjector().ProjectNamespace(context.Background(), tx, m)
	assert.ErrorIs(t, err, profile.ErrUnresolvedDataType)
}

func TestProject_DependencyMustBeRegistered(t *testing.T) {
	full := graph.NewRegistry()
	load(t, full, nodesettest.Minimal())
	b := load(t, full, nodesettest.DependentB())

	partial := graph.NewRegistry()
	partial.Register(b)
	tx := profile.NewTransaction(partial, store.NewMemoryStore())
	err := profile.NewProjector().ProjectNamespace(context.Background(), tx, b)
	assert.ErrorIs(t, err, profile.ErrUnresolvedReference)

	tx = profile.NewTransaction(full, store.NewMemoryStore())
	require.NoError(t, profile.NewProjector().ProjectNamespace(context.Background(), tx, b))
	valve := item(t, tx, key(nodesettest.NamespaceB, "i=2000"))
	assert.Equal(t, key(nodesettest.NamespaceA, "i=1000"), *valve.Parent)

	// The supertype in namespace A was projected on demand.
	_, ok := tx.Item(key(nodesettest.NamespaceA, "i=1000"))
	assert.True(t, ok)
}

func TestProject_UsesOwnerProfile(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	p, err := st.UpsertProfile(ctx, &profile.Profile{Namespace: nodesettest.NamespaceA, Version: "1.0.0"})
	require.NoError(t, err)

	tx := project(t, st, nodesettest.Minimal())
	pump := item(t, tx, key(nodesettest.NamespaceA, "i=1000"))
	assert.Equal(t, p.ID, pump.ProfileID)
}

func TestModelingRuleRequired(t *testing.T) {
	rule := func(s string) *string { return &s }

	assert.Nil(t, profile.ModelingRuleRequired(nil))
	tests := []struct {
		rule string
		want bool
	}{
		{rule: "Optional", want: false},
		{rule: "OptionalPlaceholder", want: false},
		{rule: "Mandatory", want: true},
		{rule: "MandatoryPlaceholder", want: true},
		{rule: "ExposesItsArray", want: true},
	}
	for _, tt := range tests {
		t.Run(tt.rule, func(t *testing.T) {
			got := profile.ModelingRuleRequired(rule(tt.rule))
			require.NotNil(t, got)
			assert.Equal(t, tt.want, *got)
		})
	}
}

func TestItemState_String(t *testing.T) {
	assert.Equal(t, "PostProcessed", profile.StatePostProcessed.String())
	assert.Equal(t, "ItemState(9)", profile.ItemState(9).String())
}
