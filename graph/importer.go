package graph

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/cesmii/profiledesigner/model"
	"github.com/cesmii/profiledesigner/nodeset"
)

// Sentinel errors returned by Import.
var (
	// ErrModelMismatch indicates a document whose first model entry does
	// not match the identity it was loaded for.
	ErrModelMismatch = errors.New("graph: model does not match owner")

	// ErrUnresolvedNode indicates a reference to a node that exists in no
	// loaded model.
	ErrUnresolvedNode = errors.New("graph: unresolved node")

	// ErrNamespaceNotLoaded indicates a reference into a namespace that has
	// not been imported yet.
	ErrNamespaceNotLoaded = errors.New("graph: namespace not loaded")
)

// Option configures an Importer.
type Option func(*Importer)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(i *Importer) {
		i.logger = logger
	}
}

// Importer converts parsed documents into NodeSetModels.
type Importer struct {
	logger *slog.Logger
}

// NewImporter returns an importer.
func NewImporter(opts ...Option) *Importer {
	i := &Importer{logger: slog.Default()}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Import builds the model of set, which must be the document of owner, and
// registers it in reg. Every namespace the document references must already
// be registered, except the core namespace which falls back to the builtin
// table.
func (i *Importer) Import(ctx context.Context, set *nodeset.UANodeSet, owner model.ModelIdentity, reg *Registry) (*NodeSetModel, error) {
	if err := checkOwner(set, owner); err != nil {
		return nil, err
	}

	m := NewNodeSetModel(owner)
	m.Namespaces = nodeset.NewNamespaceTable(set.NamespaceUris)
	for _, req := range set.Models.Model[0].RequiredModel {
		rid, err := model.IdentityFromEntry(req)
		if err != nil {
			return nil, err
		}
		m.RequiredModels = append(m.RequiredModels, rid)
	}

	b := &builder{
		logger:  i.logger.With("namespace", owner.ModelURI),
		model:   m,
		reg:     reg,
		skipped: make(map[string]bool),
	}
	if err := b.readAliases(set.Aliases); err != nil {
		return nil, err
	}

	if err := b.materialize(ctx, set.Items); err != nil {
		return nil, err
	}
	if err := b.link(ctx); err != nil {
		return nil, err
	}
	b.reclassify()
	if err := b.resolveDeferred(); err != nil {
		return nil, err
	}
	if err := b.decodeDataTypes(); err != nil {
		return nil, err
	}
	b.decodeEngineeringUnits()

	reg.Register(m)
	b.logger.Info("imported nodeset", "model", owner.String(), "nodes", len(m.Nodes), "skipped", len(b.skipped))
	return m, nil
}

func checkOwner(set *nodeset.UANodeSet, owner model.ModelIdentity) error {
	if set.Models == nil || len(set.Models.Model) == 0 {
		return fmt.Errorf("%w: document declares no model", ErrModelMismatch)
	}
	first, err := model.IdentityFromEntry(set.Models.Model[0])
	if err != nil {
		return err
	}
	if first.ModelURI != owner.ModelURI || first.Version != owner.Version || !first.PublicationDate.Equal(owner.PublicationDate) {
		return fmt.Errorf("%w: document declares %s, expected %s", ErrModelMismatch, first, owner)
	}
	return nil
}

// pendingRef is a reference whose handling needs the final kind of its
// target.
type pendingRef struct {
	source  *Node
	refType string
	target  string
	forward bool
}

// builder holds the state of one Import call.
type builder struct {
	logger *slog.Logger
	model  *NodeSetModel
	reg    *Registry

	// raw keeps the wire node of each materialized node for the link pass.
	raw map[string]nodeset.Node

	// skipped holds ids of reference types and views, which are not part of
	// the graph but may be referenced.
	skipped map[string]bool

	deferred []pendingRef
}

func (b *builder) readAliases(table *nodeset.AliasTable) error {
	if table == nil {
		return nil
	}
	for _, a := range table.Alias {
		id, err := b.model.Namespaces.Expand(a.Value)
		if err != nil {
			return fmt.Errorf("alias %s: %w", a.AliasAttr, err)
		}
		b.model.Aliases[a.AliasAttr] = id
	}
	return nil
}

// expand resolves an alias, a builtin name or a document-relative id.
func (b *builder) expand(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", nil
	}
	if id, ok := b.model.Aliases[raw]; ok {
		return id, nil
	}
	if n, ok := nodeset.BuiltinDataTypes[raw]; ok {
		return nodeset.CoreID(n), nil
	}
	if n, ok := nodeset.ReferenceTypes[raw]; ok {
		return nodeset.CoreID(n), nil
	}
	return b.model.Namespaces.Expand(raw)
}

// referenceName returns the core name of a reference type, or its expanded
// id for custom reference types.
func (b *builder) referenceName(raw string) (string, error) {
	id, err := b.expand(raw)
	if err != nil {
		return "", err
	}
	if n, ok := nodeset.NumericID(id); ok && nodeset.IsCore(id) {
		for name, rn := range nodeset.ReferenceTypes {
			if rn == n {
				return name, nil
			}
		}
	}
	return id, nil
}

// lookup resolves an id against this model, then the registry.
func (b *builder) lookup(id string) (*Node, bool) {
	if n, ok := b.model.Nodes[id]; ok {
		return n, true
	}
	return b.reg.Lookup(id)
}

// checkTarget verifies that a referenced node can be resolved. Nodes of
// this namespace must exist in the document; other namespaces must be
// registered and contain the node. Core nodes are always accepted.
func (b *builder) checkTarget(id string) error {
	uri := nodeset.NamespaceOf(id)
	switch {
	case uri == nodeset.CoreNamespace:
		return nil
	case uri == b.model.NamespaceURI:
		if _, ok := b.model.Nodes[id]; ok || b.skipped[id] {
			return nil
		}
		return fmt.Errorf("%w: %s", ErrUnresolvedNode, id)
	case !b.reg.HasNamespace(uri):
		return fmt.Errorf("%w: %s referenced by %s", ErrNamespaceNotLoaded, uri, b.model.NamespaceURI)
	default:
		if _, ok := b.reg.Lookup(id); ok {
			return nil
		}
		return fmt.Errorf("%w: %s", ErrUnresolvedNode, id)
	}
}

// materialize creates a node for every wire node of the owner namespace.
func (b *builder) materialize(ctx context.Context, items []nodeset.Node) error {
	b.raw = make(map[string]nodeset.Node, len(items))
	for _, item := range items {
		if err := ctx.Err(); err != nil {
			return err
		}
		base := item.Base()
		id, err := b.model.Namespaces.Expand(base.NodeIdAttr)
		if err != nil {
			return fmt.Errorf("node %s: %w", base.NodeIdAttr, err)
		}
		if nodeset.NamespaceOf(id) != b.model.NamespaceURI {
			b.logger.Debug("skipping node of foreign namespace", "node", id)
			continue
		}

		n := &Node{NodeID: id, Namespace: b.model.NamespaceURI}
		idx, name := nodeset.ParseQualifiedName(base.BrowseNameAttr)
		n.BrowseName = name
		if idx < len(b.model.Namespaces) {
			n.BrowseNamespace = b.model.Namespaces[idx]
		}
		n.SymbolicName = base.SymbolicNameAttr
		n.DisplayName = texts(base.DisplayName)
		n.Description = texts(base.Description)
		n.Documentation = base.Documentation

		switch w := item.(type) {
		case *nodeset.UAObject:
			n.Kind = KindObject
			n.EventNotifier = w.EventNotifierAttr
		case *nodeset.UAObjectType:
			n.Kind = KindObjectType
			n.IsAbstract = w.IsAbstractAttr
		case *nodeset.UAVariable:
			n.Kind = KindDataVariable
			n.ValueRank = w.ValueRankAttr
			n.ArrayDimensions = w.ArrayDimensionsAttr
			n.AccessLevel = w.AccessLevelAttr
			n.Historizing = w.HistorizingAttr
			n.Value = w.Value
		case *nodeset.UAVariableType:
			n.Kind = KindVariableType
			n.IsAbstract = w.IsAbstractAttr
			n.ValueRank = w.ValueRankAttr
			n.ArrayDimensions = w.ArrayDimensionsAttr
			n.Value = w.Value
		case *nodeset.UADataType:
			n.Kind = KindDataType
			n.IsAbstract = w.IsAbstractAttr
		case *nodeset.UAMethod:
			n.Kind = KindMethod
		case *nodeset.UAReferenceType, *nodeset.UAView:
			b.skipped[id] = true
			continue
		default:
			return fmt.Errorf("node %s: unsupported element %s", id, item.ElementName())
		}

		b.model.add(n)
		b.raw[id] = item
	}
	return nil
}

func texts(in []*nodeset.LocalizedText) []LocalizedText {
	if len(in) == 0 {
		return nil
	}
	out := make([]LocalizedText, 0, len(in))
	for _, t := range in {
		out = append(out, LocalizedText{Locale: t.LocaleAttr, Text: t.Value})
	}
	return out
}

// link resolves attributes and references that do not depend on kinds.
func (b *builder) link(ctx context.Context) error {
	for _, id := range b.model.Order {
		if err := ctx.Err(); err != nil {
			return err
		}
		n := b.model.Nodes[id]
		if err := b.linkAttributes(n, b.raw[id]); err != nil {
			return fmt.Errorf("link %s: %w", n, err)
		}
		if refs := b.raw[id].Base().References; refs != nil {
			for _, r := range refs.Reference {
				if err := b.linkReference(n, r); err != nil {
					return fmt.Errorf("link %s: %w", n, err)
				}
			}
		}
	}
	return nil
}

func (b *builder) linkAttributes(n *Node, item nodeset.Node) error {
	var dataType, parent string
	switch w := item.(type) {
	case *nodeset.UAVariable:
		dataType, parent = w.DataTypeAttr, w.ParentNodeIdAttr
	case *nodeset.UAVariableType:
		dataType = w.DataTypeAttr
	case *nodeset.UAObject:
		parent = w.ParentNodeIdAttr
	case *nodeset.UAMethod:
		parent = w.ParentNodeIdAttr
		if w.MethodDeclarationIdAttr != "" {
			decl, err := b.expand(w.MethodDeclarationIdAttr)
			if err != nil {
				return err
			}
			n.MethodDeclarationID = decl
		}
	}

	if dataType != "" {
		id, err := b.expand(dataType)
		if err != nil {
			return fmt.Errorf("data type: %w", err)
		}
		if err := b.checkTarget(id); err != nil {
			return fmt.Errorf("data type: %w", err)
		}
		n.DataType = id
	}
	if parent != "" {
		id, err := b.expand(parent)
		if err != nil {
			return fmt.Errorf("parent: %w", err)
		}
		n.Parent = id
	}
	return nil
}

func (b *builder) linkReference(n *Node, r *nodeset.Reference) error {
	refType, err := b.referenceName(r.ReferenceTypeAttr)
	if err != nil {
		return fmt.Errorf("reference type %q: %w", r.ReferenceTypeAttr, err)
	}
	target, err := b.expand(r.Value)
	if err != nil {
		return fmt.Errorf("reference target %q: %w", r.Value, err)
	}
	forward := r.IsForward()

	switch refType {
	case nodeset.RefHasSubtype:
		if err := b.checkTarget(target); err != nil {
			return err
		}
		if !forward {
			n.SuperType = target
		} else if sub, ok := b.model.Nodes[target]; ok && sub.SuperType == "" {
			sub.SuperType = n.NodeID
		}
	case nodeset.RefHasTypeDefinition:
		if forward {
			if err := b.checkTarget(target); err != nil {
				return err
			}
			n.TypeDefinition = target
		}
	case nodeset.RefHasModellingRule:
		if forward {
			n.ModelingRule = b.modellingRuleName(target)
		}
	case nodeset.RefHasProperty, nodeset.RefHasComponent, nodeset.RefHasOrderedComponent,
		nodeset.RefHasInterface, nodeset.RefGeneratesEvent:
		b.deferred = append(b.deferred, pendingRef{source: n, refType: refType, target: target, forward: forward})
	default:
		n.OtherReferences = append(n.OtherReferences, Reference{ReferenceType: refType, Target: target, IsForward: forward})
	}
	return nil
}

func (b *builder) modellingRuleName(target string) string {
	if nodeset.IsCore(target) {
		if n, ok := nodeset.NumericID(target); ok {
			if name, ok := nodeset.ModellingRules[n]; ok {
				return name
			}
		}
	}
	if node, ok := b.lookup(target); ok {
		return node.BrowseName
	}
	return nodeset.LocalPart(target)
}

// reclassify refines wire kinds once supertypes and type definitions are
// known: object types become interfaces or event types, variables linked by
// HasProperty or typed PropertyType become properties.
func (b *builder) reclassify() {
	for _, n := range b.model.Nodes {
		switch n.Kind {
		case KindObjectType:
			switch {
			case derivesFrom(b.lookup, n.SuperType, BaseInterfaceTypeID):
				n.Kind = KindInterface
			case derivesFrom(b.lookup, n.SuperType, BaseEventTypeID):
				n.Kind = KindEventType
			}
		case KindDataVariable:
			if n.TypeDefinition == PropertyTypeID {
				n.Kind = KindProperty
			}
		}
	}
	for _, p := range b.deferred {
		if p.refType != nodeset.RefHasProperty {
			continue
		}
		child := p.target
		if !p.forward {
			child = p.source.NodeID
		}
		if c, ok := b.model.Nodes[child]; ok && c.Kind == KindDataVariable {
			c.Kind = KindProperty
		}
	}
}

// resolveDeferred attaches children, interfaces and events now that every
// kind is final.
func (b *builder) resolveDeferred() error {
	for _, p := range b.deferred {
		if err := b.checkTarget(p.target); err != nil {
			return fmt.Errorf("link %s: %s: %w", p.source, p.refType, err)
		}

		switch p.refType {
		case nodeset.RefHasInterface:
			if p.forward {
				p.source.Interfaces = appendUnique(p.source.Interfaces, p.target)
			}
			continue
		case nodeset.RefGeneratesEvent:
			if p.forward {
				p.source.Events = appendUnique(p.source.Events, p.target)
			}
			continue
		}

		parentID, childID := p.source.NodeID, p.target
		if !p.forward {
			parentID, childID = p.target, p.source.NodeID
		}
		parent, ok := b.model.Nodes[parentID]
		if !ok {
			// Parents in other namespaces are immutable here; keep the back link only.
			if child, ok := b.model.Nodes[childID]; ok && child.Parent == "" {
				child.Parent = parentID
			}
			continue
		}
		child, ok := b.lookup(childID)
		if !ok {
			return fmt.Errorf("link %s: %w: child %s", parent, ErrUnresolvedNode, childID)
		}
		if child.Namespace == b.model.NamespaceURI && child.Parent == "" {
			child.Parent = parentID
		}
		addChild(parent, child)
	}
	return nil
}

func addChild(parent, child *Node) {
	switch child.Kind {
	case KindProperty:
		parent.Properties = appendUnique(parent.Properties, child.NodeID)
	case KindDataVariable:
		parent.DataVariables = appendUnique(parent.DataVariables, child.NodeID)
	case KindMethod:
		parent.Methods = appendUnique(parent.Methods, child.NodeID)
	default:
		parent.Objects = appendUnique(parent.Objects, child.NodeID)
	}
}

// decodeDataTypes converts data type definitions into structure or enum
// fields.
func (b *builder) decodeDataTypes() error {
	for _, id := range b.model.Order {
		n := b.model.Nodes[id]
		dt, ok := b.raw[id].(*nodeset.UADataType)
		if !ok || dt.Definition == nil {
			continue
		}
		n.IsOptionSet = dt.Definition.IsOptionSetAttr
		n.IsUnion = dt.Definition.IsUnionAttr

		if b.isEnumeration(n, dt.Definition) {
			for _, f := range dt.Definition.Field {
				field := EnumField{
					Name:        f.NameAttr,
					DisplayName: texts(f.DisplayName),
					Description: texts(f.Description),
				}
				if f.ValueAttr != nil {
					field.Value = *f.ValueAttr
				}
				n.EnumFields = append(n.EnumFields, field)
			}
			continue
		}

		for _, f := range dt.Definition.Field {
			field := StructureField{
				Name:            f.NameAttr,
				SymbolicName:    f.SymbolicNameAttr,
				ValueRank:       f.ValueRankAttr,
				ArrayDimensions: f.ArrayDimensionsAttr,
				MaxStringLength: f.MaxStringLengthAttr,
				IsOptional:      f.IsOptionalAttr,
				Description:     texts(f.Description),
			}
			if f.DataTypeAttr != "" {
				dtID, err := b.expand(f.DataTypeAttr)
				if err != nil {
					return fmt.Errorf("field %s of %s: %w", f.NameAttr, n, err)
				}
				if err := b.checkTarget(dtID); err != nil {
					return fmt.Errorf("field %s of %s: %w", f.NameAttr, n, err)
				}
				field.DataType = dtID
			} else {
				field.DataType = BaseDataTypeID
			}
			n.StructureFields = append(n.StructureFields, field)
		}
	}
	return nil
}

// isEnumeration reports whether a definition lists enum values: the type
// derives from Enumeration, or its fields carry values but no data types.
func (b *builder) isEnumeration(n *Node, def *nodeset.DataTypeDefinition) bool {
	if derivesFrom(b.lookup, n.SuperType, EnumerationID) {
		return true
	}
	if n.SuperType != "" && derivesFrom(b.lookup, n.SuperType, StructureID) {
		return false
	}
	if len(def.Field) == 0 {
		return false
	}
	for _, f := range def.Field {
		if f.ValueAttr == nil || f.DataTypeAttr != "" {
			return false
		}
	}
	return true
}

// decodeEngineeringUnits moves EUInformation values of EngineeringUnits
// properties onto their parent variables.
func (b *builder) decodeEngineeringUnits() {
	for _, id := range b.model.Order {
		n := b.model.Nodes[id]
		if !n.Kind.IsVariable() || n.BrowseName != EngineeringUnitsName || n.Parent == "" {
			continue
		}
		parent, ok := b.model.Nodes[n.Parent]
		if !ok || !parent.Kind.IsVariable() && parent.Kind != KindVariableType {
			continue
		}
		eu, err := DecodeEngineeringUnit(n.Value)
		if err != nil {
			b.logger.Warn("ignoring undecodable engineering unit", "node", n.NodeID, "error", err)
			continue
		}
		if eu == nil {
			continue
		}
		parent.EngineeringUnit = eu
		parent.EngineeringUnitNodeID = n.NodeID
	}
}
