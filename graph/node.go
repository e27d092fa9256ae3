// Package graph builds a typed node graph from a NodeSet2 document.
//
// Every node is keyed by its expanded node id ("nsu=<uri>;i=<n>") and all
// links between nodes (supertypes, type definitions, parents, children) are
// such keys, never pointers. Graphs may be cyclic; resolving a key goes
// through the owning NodeSetModel or the Registry of the current import.
package graph

import (
	"fmt"

	"github.com/cesmii/profiledesigner/nodeset"
)

// NodeKind classifies a node.
type NodeKind int

// Node kinds. The set is closed; consumers dispatch on it exhaustively.
const (
	KindObject NodeKind = iota + 1
	KindObjectType
	KindInterface
	KindEventType
	KindDataVariable
	KindProperty
	KindVariableType
	KindDataType
	KindMethod
)

var kindNames = map[NodeKind]string{
	KindObject:       "Object",
	KindObjectType:   "ObjectType",
	KindInterface:    "Interface",
	KindEventType:    "EventType",
	KindDataVariable: "DataVariable",
	KindProperty:     "Property",
	KindVariableType: "VariableType",
	KindDataType:     "DataType",
	KindMethod:       "Method",
}

// String returns the kind name.
func (k NodeKind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("NodeKind(%d)", int(k))
}

// Kinds returns every node kind.
func Kinds() []NodeKind {
	return []NodeKind{
		KindObject, KindObjectType, KindInterface, KindEventType,
		KindDataVariable, KindProperty, KindVariableType, KindDataType, KindMethod,
	}
}

// IsVariable reports whether k is a variable instance kind.
func (k NodeKind) IsVariable() bool {
	return k == KindDataVariable || k == KindProperty
}

// IsObjectTypeFamily reports whether k is an object type kind.
func (k NodeKind) IsObjectTypeFamily() bool {
	return k == KindObjectType || k == KindInterface || k == KindEventType
}

// LocalizedText is a text with an optional locale.
type LocalizedText struct {
	Locale string
	Text   string
}

// FirstText returns the first non-empty text.
func FirstText(texts []LocalizedText) string {
	for _, t := range texts {
		if t.Text != "" {
			return t.Text
		}
	}
	return ""
}

// Reference is a reference kept verbatim for export.
type Reference struct {
	// ReferenceType is the core reference name or the expanded id of a
	// custom reference type.
	ReferenceType string
	Target        string
	IsForward     bool
}

// StructureField is one field of a structure data type.
type StructureField struct {
	Name            string
	SymbolicName    string
	DataType        string
	ValueRank       *int
	ArrayDimensions string
	MaxStringLength uint32
	IsOptional      bool
	Description     []LocalizedText
}

// EnumField is one value of an enumeration data type.
type EnumField struct {
	Name        string
	Value       int64
	DisplayName []LocalizedText
	Description []LocalizedText
}

// EngineeringUnit is the decoded value of an EngineeringUnits property.
type EngineeringUnit struct {
	DisplayName  LocalizedText
	Description  LocalizedText
	UnitID       int32
	NamespaceURI string
}

// Node is one node of the graph. Fields that do not apply to a kind stay
// at their zero value.
type Node struct {
	Kind      NodeKind
	NodeID    string
	Namespace string

	BrowseName      string
	BrowseNamespace string
	SymbolicName    string
	DisplayName     []LocalizedText
	Description     []LocalizedText
	Documentation   string
	IsAbstract      bool

	SuperType      string
	TypeDefinition string
	Parent         string
	ModelingRule   string

	Properties    []string
	DataVariables []string
	Objects       []string
	Methods       []string
	Interfaces    []string
	Events        []string

	// Variables and variable types.
	DataType              string
	ValueRank             *int
	ArrayDimensions       string
	AccessLevel           *uint32
	Historizing           bool
	Value                 *nodeset.Value
	EngineeringUnit       *EngineeringUnit
	EngineeringUnitNodeID string

	EventNotifier       uint8
	MethodDeclarationID string

	// Data types.
	StructureFields []StructureField
	EnumFields      []EnumField
	IsOptionSet     bool
	IsUnion         bool

	OtherReferences []Reference
}

// Name returns the display name, falling back to the browse name.
func (n *Node) Name() string {
	if t := FirstText(n.DisplayName); t != "" {
		return t
	}
	return n.BrowseName
}

// Children returns every child id in a stable order.
func (n *Node) Children() []string {
	var out []string
	out = append(out, n.Properties...)
	out = append(out, n.DataVariables...)
	out = append(out, n.Objects...)
	out = append(out, n.Methods...)
	return out
}

// String returns a short description for logs and errors.
func (n *Node) String() string {
	return fmt.Sprintf("%s %s (%s)", n.Kind, n.BrowseName, n.NodeID)
}

func appendUnique(list []string, id string) []string {
	for _, v := range list {
		if v == id {
			return list
		}
	}
	return append(list, id)
}
