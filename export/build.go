package export

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/cesmii/profiledesigner/graph"
	"github.com/cesmii/profiledesigner/nodeset"
	"github.com/cesmii/profiledesigner/profile"
)

// ErrUnknownItemKind is returned for an item kind the exporter cannot write.
var ErrUnknownItemKind = errors.New("export: unknown item kind")

// builder turns items into wire nodes that still carry expanded ids.
type builder struct {
	ctx    context.Context
	source ItemSource
	items  []*profile.ProfileItem
	inSet  map[profile.ItemKey]bool
	logger *slog.Logger

	nodes    map[string]nodeset.Node
	browseNS map[string]string
}

func newBuilder(ctx context.Context, source ItemSource, items []*profile.ProfileItem, logger *slog.Logger) *builder {
	b := &builder{
		ctx:      ctx,
		source:   source,
		items:    items,
		inSet:    make(map[profile.ItemKey]bool, len(items)),
		logger:   logger,
		nodes:    make(map[string]nodeset.Node),
		browseNS: make(map[string]string),
	}
	for _, item := range items {
		b.inSet[item.Key] = true
	}
	return b
}

// put adds a node. Nodes generated from a parent never replace a node
// written for an item of its own.
func (b *builder) put(n nodeset.Node, browseNamespace string, override bool) {
	id := n.Base().NodeIdAttr
	if _, exists := b.nodes[id]; exists && !override {
		return
	}
	b.nodes[id] = n
	b.browseNS[id] = browseNamespace
}

func (b *builder) build() error {
	for _, item := range b.items {
		if err := b.addItem(item); err != nil {
			return err
		}
	}
	return nil
}

func (b *builder) addItem(item *profile.ProfileItem) error {
	base := nodeset.UANode{
		NodeIdAttr:       item.Key.NodeID,
		BrowseNameAttr:   firstNonEmpty(item.BrowseName, item.Name),
		SymbolicNameAttr: item.SymbolicName,
		DisplayName:      text(item.Name),
		Description:      text(item.Description),
		Documentation:    item.Documentation,
	}

	var n nodeset.Node
	switch item.Kind {
	case profile.ItemClass, profile.ItemInterface:
		t := &nodeset.UAObjectType{UANode: base, IsAbstractAttr: item.IsAbstract}
		addSupertype(&t.UANode, item)
		n = t
	case profile.ItemObject:
		o := &nodeset.UAObject{UANode: base, EventNotifierAttr: item.EventNotifier}
		if item.InstanceParent != nil {
			o.ParentNodeIdAttr = item.InstanceParent.NodeID
		}
		if item.Parent != nil {
			o.AddReference(nodeset.RefHasTypeDefinition, item.Parent.NodeID, true)
		}
		n = o
	case profile.ItemMethod:
		m := &nodeset.UAMethod{UANode: base}
		if item.InstanceParent != nil {
			m.ParentNodeIdAttr = item.InstanceParent.NodeID
		}
		if item.Parent != nil {
			m.MethodDeclarationIdAttr = item.Parent.NodeID
		}
		n = m
	case profile.ItemVariableType:
		vt := &nodeset.UAVariableType{
			UANode:              base,
			ValueRankAttr:       item.ValueRank,
			ArrayDimensionsAttr: item.ArrayDimensions,
			IsAbstractAttr:      item.IsAbstract,
		}
		if item.VariableDataType != nil {
			vt.DataTypeAttr = item.VariableDataType.NodeID
		}
		addSupertype(&vt.UANode, item)
		n = vt
	case profile.ItemStructure, profile.ItemEnumeration, profile.ItemCustomDataType:
		dt := &nodeset.UADataType{UANode: base, IsAbstractAttr: item.IsAbstract}
		addSupertype(&dt.UANode, item)
		dt.Definition = definition(item)
		n = dt
	default:
		return fmt.Errorf("%w: %q for %s", ErrUnknownItemKind, item.Kind, item.Key)
	}

	node := n.Base()
	addModellingRule(node, item.ModelingRule)
	for _, iface := range item.Interfaces {
		node.AddReference(nodeset.RefHasInterface, iface.NodeID, true)
	}
	if !item.Kind.IsDataType() {
		for _, attr := range item.Attributes {
			b.addAttribute(node, attr)
		}
	}
	for _, c := range item.Compositions {
		b.addComposition(node, c)
	}
	for _, r := range item.OtherReferences {
		node.AddReference(r.ReferenceType, r.Target, r.IsForward)
	}

	b.put(n, firstNonEmpty(item.BrowseNamespace, item.Key.Namespace), true)
	return nil
}

func addSupertype(n *nodeset.UANode, item *profile.ProfileItem) {
	if item.Parent != nil {
		n.AddReference(nodeset.RefHasSubtype, item.Parent.NodeID, false)
	}
}

func addModellingRule(n *nodeset.UANode, rule string) {
	if rule == "" {
		return
	}
	if ruleID, ok := nodeset.ModellingRuleID(rule); ok {
		n.AddReference(nodeset.RefHasModellingRule, nodeset.CoreID(ruleID), true)
	}
}

// definition rebuilds the structure or enumeration definition of a data
// type item.
func definition(item *profile.ProfileItem) *nodeset.DataTypeDefinition {
	if item.Kind == profile.ItemCustomDataType && !item.IsOptionSet {
		return nil
	}
	def := &nodeset.DataTypeDefinition{
		NameAttr:        firstNonEmpty(item.BrowseName, item.Name),
		IsOptionSetAttr: item.IsOptionSet,
	}
	for _, attr := range item.Attributes {
		f := &nodeset.DataTypeField{
			NameAttr:    attr.Name,
			Description: text(attr.Description),
		}
		switch attr.Kind {
		case profile.AttributeEnumField:
			f.ValueAttr = attr.EnumValue
		case profile.AttributeStructureField:
			f.SymbolicNameAttr = attr.BrowseName
			if attr.DataType != nil && attr.DataType.NodeID != graph.BaseDataTypeID {
				f.DataTypeAttr = attr.DataType.NodeID
			}
			f.ValueRankAttr = attr.ValueRank
			f.ArrayDimensionsAttr = attr.ArrayDimensions
			f.MaxStringLengthAttr = attr.MaxStringLength
			f.IsOptionalAttr = attr.IsRequired != nil && !*attr.IsRequired
		default:
			continue
		}
		def.Field = append(def.Field, f)
	}
	return def
}

// addAttribute writes the variable behind an attribute, its engineering
// units property and the children instantiated from its type definition.
func (b *builder) addAttribute(parent *nodeset.UANode, attr *profile.Attribute) {
	if attr.NodeID == "" {
		return
	}
	v := &nodeset.UAVariable{
		UANode: nodeset.UANode{
			NodeIdAttr:     attr.NodeID,
			BrowseNameAttr: firstNonEmpty(attr.BrowseName, attr.Name),
			DisplayName:    text(attr.Name),
			Description:    text(attr.Description),
		},
		ParentNodeIdAttr:    parent.NodeIdAttr,
		ValueRankAttr:       attr.ValueRank,
		ArrayDimensionsAttr: attr.ArrayDimensions,
		AccessLevelAttr:     attr.AccessLevel,
	}
	if attr.DataType != nil {
		v.DataTypeAttr = attr.DataType.NodeID
	}
	if attr.Value != "" || attr.ValueNil {
		v.Value = &nodeset.Value{Nil: attr.ValueNil, InnerXML: attr.Value}
	}

	refType, typeDef := nodeset.RefHasComponent, graph.BaseDataVariableTypeID
	if attr.Kind == profile.AttributeProperty {
		refType, typeDef = nodeset.RefHasProperty, graph.PropertyTypeID
	}
	v.AddReference(nodeset.RefHasTypeDefinition, firstNonEmpty(attr.TypeDefinition, typeDef), true)
	addModellingRule(&v.UANode, attr.ModelingRule)
	parent.AddReference(refType, attr.NodeID, true)

	if eu := attr.EngineeringUnit; eu != nil && attr.EngineeringUnitNodeID != "" {
		b.addEngineeringUnit(&v.UANode, attr.EngineeringUnitNodeID, eu)
	}
	b.addTypeDefinedChildren(&v.UANode, attr)

	b.put(v, firstNonEmpty(attr.BrowseNamespace, attr.Namespace), false)
}

func (b *builder) addEngineeringUnit(parent *nodeset.UANode, nodeID string, eu *profile.EngineeringUnit) {
	value := graph.EncodeEngineeringUnit(&graph.EngineeringUnit{
		DisplayName:  graph.LocalizedText{Text: eu.DisplayName},
		Description:  graph.LocalizedText{Text: eu.Description},
		UnitID:       eu.UnitID,
		NamespaceURI: eu.NamespaceURI,
	})
	v := &nodeset.UAVariable{
		UANode: nodeset.UANode{
			NodeIdAttr:     nodeID,
			BrowseNameAttr: graph.EngineeringUnitsName,
			DisplayName:    text(graph.EngineeringUnitsName),
		},
		ParentNodeIdAttr: parent.NodeIdAttr,
		DataTypeAttr:     graph.EUInformationID,
		Value:            &nodeset.Value{InnerXML: value},
	}
	v.AddReference(nodeset.RefHasTypeDefinition, graph.PropertyTypeID, true)
	parent.AddReference(nodeset.RefHasProperty, nodeID, true)
	b.put(v, nodeset.CoreNamespace, false)
}

// addTypeDefinedChildren writes the child variables recorded in an
// attribute's child map, taking their details from the declarations of
// the type definition chain.
func (b *builder) addTypeDefinedChildren(parent *nodeset.UANode, attr *profile.Attribute) {
	if attr.DataVariableNodeIDs == "" || attr.TypeDefinition == "" {
		return
	}
	var children map[string]string
	if err := json.Unmarshal([]byte(attr.DataVariableNodeIDs), &children); err != nil {
		b.logger.Warn("ignoring malformed child variable map", "node", attr.NodeID, "error", err)
		return
	}
	declared := b.declaredVariables(attr.TypeDefinition)

	names := make([]string, 0, len(children))
	for name := range children {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		decl, ok := declared[name]
		if !ok {
			b.logger.Debug("no declaration for child variable", "node", children[name], "type", attr.TypeDefinition)
			continue
		}
		child := *decl
		child.NodeID = children[name]
		child.ModelingRule = ""
		child.DataVariableNodeIDs = ""
		child.EngineeringUnit = nil
		b.addAttribute(parent, &child)
	}
}

// declaredVariables collects the data variables declared by a variable
// type and its supertypes, keyed by browse name. The nearest declaration
// wins.
func (b *builder) declaredVariables(typeID string) map[string]*profile.Attribute {
	out := make(map[string]*profile.Attribute)
	seen := make(map[string]bool)
	for typeID != "" && !seen[typeID] && !nodeset.IsCore(typeID) {
		seen[typeID] = true
		item, err := b.source.Item(b.ctx, profile.ItemKey{NodeID: typeID, Namespace: nodeset.NamespaceOf(typeID)})
		if err != nil {
			b.logger.Debug("type definition not available", "type", typeID, "error", err)
			break
		}
		for _, a := range item.Attributes {
			if a.Kind != profile.AttributeDataVariable {
				continue
			}
			if _, exists := out[a.BrowseName]; !exists {
				out[a.BrowseName] = a
			}
		}
		typeID = ""
		if item.Parent != nil {
			typeID = item.Parent.NodeID
		}
	}
	return out
}

func (b *builder) addComposition(parent *nodeset.UANode, c *profile.Composition) {
	switch c.Kind {
	case profile.CompositionEvent:
		parent.AddReference(nodeset.RefGeneratesEvent, c.Related.NodeID, true)
		return
	case profile.CompositionObject, profile.CompositionMethod:
	default:
		b.logger.Warn("skipping composition of unknown kind", "kind", c.Kind, "node", c.NodeID)
		return
	}
	if c.NodeID == "" {
		return
	}
	parent.AddReference(nodeset.RefHasComponent, c.NodeID, true)
	if b.inSet[profile.ItemKey{NodeID: c.NodeID, Namespace: c.Namespace}] {
		return
	}

	base := nodeset.UANode{
		NodeIdAttr:     c.NodeID,
		BrowseNameAttr: firstNonEmpty(c.BrowseName, c.Name),
		DisplayName:    text(c.Name),
		Description:    text(c.Description),
	}
	addModellingRule(&base, c.ModelingRule)

	var n nodeset.Node
	if c.Kind == profile.CompositionObject {
		o := &nodeset.UAObject{UANode: base, ParentNodeIdAttr: parent.NodeIdAttr}
		if c.Related.NodeID != "" {
			o.AddReference(nodeset.RefHasTypeDefinition, c.Related.NodeID, true)
		}
		n = o
	} else {
		n = &nodeset.UAMethod{UANode: base, ParentNodeIdAttr: parent.NodeIdAttr}
	}
	b.put(n, firstNonEmpty(c.BrowseNamespace, c.Namespace), false)
}

// exportedNamespaces lists the namespaces of the exported items, primary
// first.
func (b *builder) exportedNamespaces(primary string) []string {
	seen := map[string]bool{primary: true}
	var rest []string
	for _, item := range b.items {
		if !seen[item.Key.Namespace] {
			seen[item.Key.Namespace] = true
			rest = append(rest, item.Key.Namespace)
		}
	}
	sort.Strings(rest)
	return append([]string{primary}, rest...)
}

func text(s string) []*nodeset.LocalizedText {
	if s == "" {
		return nil
	}
	return []*nodeset.LocalizedText{{Value: s}}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
