package profile

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/gopcua/opcua/id"

	"github.com/cesmii/profiledesigner/graph"
	"github.com/cesmii/profiledesigner/nodeset"
)

// Int64DataTypeID is the data type of enumeration field attributes.
var Int64DataTypeID = nodeset.CoreID(id.Int64)

func populateObject(ctx context.Context, p *Projector, tx *Transaction, n *graph.Node, item *ProfileItem) error {
	var err error
	if item.Parent, err = p.link(ctx, tx, n.TypeDefinition); err != nil {
		return fmt.Errorf("type definition of %s: %w", n, err)
	}
	if err := setInstanceParent(ctx, p, tx, n, item); err != nil {
		return err
	}
	return populateMembers(ctx, p, tx, n, item)
}

func populateObjectType(ctx context.Context, p *Projector, tx *Transaction, n *graph.Node, item *ProfileItem) error {
	var err error
	if item.Parent, err = p.link(ctx, tx, n.SuperType); err != nil {
		return fmt.Errorf("supertype of %s: %w", n, err)
	}
	return populateMembers(ctx, p, tx, n, item)
}

func populateMethod(ctx context.Context, p *Projector, tx *Transaction, n *graph.Node, item *ProfileItem) error {
	var err error
	if item.Parent, err = p.link(ctx, tx, n.MethodDeclarationID); err != nil {
		return fmt.Errorf("declaration of %s: %w", n, err)
	}
	if err := setInstanceParent(ctx, p, tx, n, item); err != nil {
		return err
	}
	return collectAttributes(ctx, p, tx, n, item)
}

func populateVariableType(ctx context.Context, p *Projector, tx *Transaction, n *graph.Node, item *ProfileItem) error {
	var err error
	if item.Parent, err = p.link(ctx, tx, n.SuperType); err != nil {
		return fmt.Errorf("supertype of %s: %w", n, err)
	}
	if item.VariableDataType, err = p.resolveDataType(ctx, tx, n.DataType); err != nil {
		return fmt.Errorf("data type of %s: %w", n, err)
	}
	item.ValueRank = n.ValueRank
	item.ArrayDimensions = n.ArrayDimensions
	return populateMembers(ctx, p, tx, n, item)
}

func populateDataType(ctx context.Context, p *Projector, tx *Transaction, n *graph.Node, item *ProfileItem) error {
	var err error
	if item.Parent, err = p.link(ctx, tx, n.SuperType); err != nil {
		return fmt.Errorf("supertype of %s: %w", n, err)
	}
	item.IsOptionSet = n.IsOptionSet
	item.IsNumeric = tx.Registry.DerivesFrom(n.NodeID, graph.NumberID)

	switch {
	case len(n.StructureFields) > 0:
		item.Kind = ItemStructure
		for _, f := range n.StructureFields {
			dt, err := p.resolveDataType(ctx, tx, f.DataType)
			if err != nil {
				return fmt.Errorf("field %s of %s: %w", f.Name, n, err)
			}
			required := !f.IsOptional
			item.Attributes = append(item.Attributes, &Attribute{
				Name:            f.Name,
				BrowseName:      f.SymbolicName,
				Kind:            AttributeStructureField,
				Description:     graph.FirstText(f.Description),
				DataType:        dt,
				IsRequired:      &required,
				ValueRank:       f.ValueRank,
				ArrayDimensions: f.ArrayDimensions,
				MaxStringLength: f.MaxStringLength,
			})
		}
	case len(n.EnumFields) > 0:
		item.Kind = ItemEnumeration
		dt, err := p.resolveDataType(ctx, tx, Int64DataTypeID)
		if err != nil {
			return err
		}
		for _, f := range n.EnumFields {
			value := f.Value
			item.Attributes = append(item.Attributes, &Attribute{
				Name:        f.Name,
				Kind:        AttributeEnumField,
				Description: graph.FirstText(f.Description),
				DataType:    dt,
				EnumValue:   &value,
			})
		}
	}
	return nil
}

// registerDataTypeLookup creates the lookup row that lets variables use a
// new data type.
func registerDataTypeLookup(ctx context.Context, _ *Projector, tx *Transaction, n *graph.Node, item *ProfileItem) (bool, error) {
	key := item.Key
	lookupID, err := tx.Store.CreateCustomDataTypeLookup(ctx, LookupDataType{
		Name:       item.Name,
		Code:       CustomLookupCode,
		NodeID:     n.NodeID,
		CustomType: &key,
		UseEngUnit: item.IsNumeric,
		UseMinMax:  item.IsNumeric,
		IsNumeric:  item.IsNumeric,
	})
	if err != nil {
		return false, fmt.Errorf("create lookup for %s: %w", n, err)
	}
	item.LookupID = lookupID
	return true, nil
}

// repairInstanceParent fills the instance parent id once the parent has
// been stored. Parents still being projected are queued for the end of the
// namespace.
func repairInstanceParent(_ context.Context, _ *Projector, tx *Transaction, _ *graph.Node, item *ProfileItem) (bool, error) {
	if item.InstanceParent == nil || item.InstanceParentID != "" {
		return false, nil
	}
	parent, ok := tx.Item(*item.InstanceParent)
	if !ok {
		return false, nil
	}
	if parent.ID == "" {
		tx.repairs = append(tx.repairs, item.Key)
		return false, nil
	}
	item.InstanceParentID = parent.ID
	return true, nil
}

func setInstanceParent(ctx context.Context, p *Projector, tx *Transaction, n *graph.Node, item *ProfileItem) error {
	if n.Parent == "" {
		return nil
	}
	key, err := p.link(ctx, tx, n.Parent)
	if err != nil {
		return fmt.Errorf("parent of %s: %w", n, err)
	}
	item.InstanceParent = key
	if parent, ok := tx.Item(*key); ok {
		item.InstanceParentID = parent.ID
	}
	return nil
}

// populateMembers collects attributes, compositions and interfaces.
func populateMembers(ctx context.Context, p *Projector, tx *Transaction, n *graph.Node, item *ProfileItem) error {
	if err := collectAttributes(ctx, p, tx, n, item); err != nil {
		return err
	}
	if err := collectCompositions(ctx, p, tx, n, item); err != nil {
		return err
	}
	for _, ifaceID := range n.Interfaces {
		key, err := p.link(ctx, tx, ifaceID)
		if err != nil {
			return fmt.Errorf("interface of %s: %w", n, err)
		}
		item.Interfaces = append(item.Interfaces, *key)
	}
	return nil
}

func collectAttributes(ctx context.Context, p *Projector, tx *Transaction, n *graph.Node, item *ProfileItem) error {
	add := func(ids []string, kind AttributeKind) error {
		for _, childID := range ids {
			attr, err := p.variableAttribute(ctx, tx, childID, kind)
			if err != nil {
				return fmt.Errorf("attribute of %s: %w", n, err)
			}
			item.Attributes = append(item.Attributes, attr)
		}
		return nil
	}
	if err := add(n.Properties, AttributeProperty); err != nil {
		return err
	}
	return add(n.DataVariables, AttributeDataVariable)
}

func collectCompositions(ctx context.Context, p *Projector, tx *Transaction, n *graph.Node, item *ProfileItem) error {
	for _, childID := range n.Objects {
		child, ok := tx.Registry.Lookup(childID)
		if !ok {
			return fmt.Errorf("%w: child %s of %s", ErrUnresolvedReference, childID, n)
		}
		related, err := p.link(ctx, tx, child.TypeDefinition)
		if err != nil {
			return fmt.Errorf("type definition of %s: %w", child, err)
		}
		item.Compositions = append(item.Compositions, childComposition(child, CompositionObject, related))
	}
	for _, childID := range n.Methods {
		child, ok := tx.Registry.Lookup(childID)
		if !ok {
			return fmt.Errorf("%w: method %s of %s", ErrUnresolvedReference, childID, n)
		}
		related, err := p.link(ctx, tx, childID)
		if err != nil {
			return err
		}
		item.Compositions = append(item.Compositions, childComposition(child, CompositionMethod, related))
	}
	for _, eventID := range n.Events {
		event, ok := tx.Registry.Lookup(eventID)
		if !ok {
			return fmt.Errorf("%w: event %s of %s", ErrUnresolvedReference, eventID, n)
		}
		related, err := p.link(ctx, tx, eventID)
		if err != nil {
			return err
		}
		item.Compositions = append(item.Compositions, &Composition{
			Name:    event.Name(),
			Kind:    CompositionEvent,
			Related: *related,
		})
	}
	return nil
}

func childComposition(child *graph.Node, kind CompositionKind, related *ItemKey) *Composition {
	c := &Composition{
		Name:            child.Name(),
		BrowseName:      child.BrowseName,
		BrowseNamespace: child.BrowseNamespace,
		Kind:            kind,
		NodeID:          child.NodeID,
		Namespace:       child.Namespace,
		Description:     graph.FirstText(child.Description),
		ModelingRule:    child.ModelingRule,
		IsRequired:      ModelingRuleRequired(ruleRef(child.ModelingRule)),
	}
	if related != nil {
		c.Related = *related
	}
	return c
}

// variableAttribute projects a property or data variable into an attribute.
func (p *Projector) variableAttribute(ctx context.Context, tx *Transaction, varID string, kind AttributeKind) (*Attribute, error) {
	v, ok := tx.Registry.Lookup(varID)
	if !ok {
		return nil, fmt.Errorf("%w: variable %s", ErrUnresolvedReference, varID)
	}
	dt, err := p.resolveDataType(ctx, tx, v.DataType)
	if err != nil {
		return nil, fmt.Errorf("variable %s: %w", v, err)
	}
	if _, err := p.link(ctx, tx, v.TypeDefinition); err != nil {
		return nil, fmt.Errorf("type definition of %s: %w", v, err)
	}

	attr := &Attribute{
		Name:                  v.Name(),
		BrowseName:            v.BrowseName,
		BrowseNamespace:       v.BrowseNamespace,
		Kind:                  kind,
		NodeID:                v.NodeID,
		Namespace:             v.Namespace,
		Description:           graph.FirstText(v.Description),
		DataType:              dt,
		TypeDefinition:        v.TypeDefinition,
		ModelingRule:          v.ModelingRule,
		IsRequired:            ModelingRuleRequired(ruleRef(v.ModelingRule)),
		ValueRank:             v.ValueRank,
		ArrayDimensions:       v.ArrayDimensions,
		AccessLevel:           v.AccessLevel,
		EngineeringUnitNodeID: v.EngineeringUnitNodeID,
	}
	if v.Value != nil {
		attr.Value = v.Value.InnerXML
		attr.ValueNil = v.Value.Nil
	}
	if eu := v.EngineeringUnit; eu != nil {
		stored, err := tx.Store.GetOrCreateEngineeringUnit(ctx, EngineeringUnit{
			DisplayName:  eu.DisplayName.Text,
			Description:  eu.Description.Text,
			UnitID:       eu.UnitID,
			NamespaceURI: eu.NamespaceURI,
		})
		if err != nil {
			return nil, fmt.Errorf("engineering unit of %s: %w", v, err)
		}
		attr.EngineeringUnit = stored
	}
	if attr.DataVariableNodeIDs, err = typeDefinedChildren(tx, v); err != nil {
		return nil, fmt.Errorf("child variables of %s: %w", v, err)
	}
	return attr, nil
}

// resolveDataType maps a data type id to a reference. Core types resolve
// through the store lookups by name; other types are projected and wrapped
// as custom types.
func (p *Projector) resolveDataType(ctx context.Context, tx *Transaction, dataTypeID string) (*DataTypeRef, error) {
	if dataTypeID == "" {
		dataTypeID = graph.BaseDataTypeID
	}
	n, ok := tx.Registry.Lookup(dataTypeID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnresolvedDataType, dataTypeID)
	}
	if n.Kind != graph.KindDataType {
		return nil, fmt.Errorf("%w: %s is a %s", ErrUnresolvedDataType, n, n.Kind)
	}

	if nodeset.IsCore(dataTypeID) {
		ref := &DataTypeRef{Name: n.BrowseName, NodeID: dataTypeID}
		lookup, err := tx.Store.GetDataTypeByName(ctx, n.BrowseName)
		if err != nil {
			return nil, fmt.Errorf("data type %s: %w", n.BrowseName, err)
		}
		if lookup != nil {
			ref.LookupID = lookup.ID
			ref.Code = lookup.Code
		}
		return ref, nil
	}

	item, err := p.Project(ctx, tx, n)
	if err != nil {
		return nil, err
	}
	key := item.Key
	return &DataTypeRef{
		Name:       item.Name,
		NodeID:     dataTypeID,
		LookupID:   item.LookupID,
		Code:       CustomLookupCode,
		CustomType: &key,
	}, nil
}

// typeDefinedChildren maps the browse names of the data variables declared
// by v's type definition chain to the ids of v's matching children, encoded
// as JSON. It returns "" when there is nothing to map.
func typeDefinedChildren(tx *Transaction, v *graph.Node) (string, error) {
	if v.TypeDefinition == "" || len(v.DataVariables) == 0 {
		return "", nil
	}
	declared := make(map[string]bool)
	seen := make(map[string]bool)
	for typeID := v.TypeDefinition; typeID != "" && !seen[typeID]; {
		seen[typeID] = true
		td, ok := tx.Registry.Lookup(typeID)
		if !ok {
			break
		}
		for _, childID := range td.DataVariables {
			if child, ok := tx.Registry.Lookup(childID); ok {
				declared[child.BrowseName] = true
			}
		}
		typeID = td.SuperType
	}
	if len(declared) == 0 {
		return "", nil
	}

	mapped := make(map[string]string)
	for _, childID := range v.DataVariables {
		child, ok := tx.Registry.Lookup(childID)
		if !ok || !declared[child.BrowseName] {
			continue
		}
		mapped[child.BrowseName] = child.NodeID
	}
	if len(mapped) == 0 {
		return "", nil
	}
	data, err := json.Marshal(mapped)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
