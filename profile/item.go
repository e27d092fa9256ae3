// Package profile projects node graphs into persistence-ready profile items.
//
// A Projector walks the nodes of one namespace depth-first. Every node id is
// projected at most once per Transaction: the item is placed in the
// transaction arena before its children are populated, so recursive type
// graphs resolve to the same, possibly still incomplete, item. Links between
// items are ItemKeys into that arena, never pointers.
package profile

import (
	"fmt"
	"strings"
	"time"

	"github.com/cesmii/profiledesigner/graph"
	"github.com/cesmii/profiledesigner/model"
	"github.com/cesmii/profiledesigner/nodeset"
)

// ItemKind classifies a profile item.
type ItemKind string

// Profile item kinds.
const (
	ItemObject         ItemKind = "Object"
	ItemClass          ItemKind = "Class"
	ItemInterface      ItemKind = "Interface"
	ItemVariableType   ItemKind = "VariableType"
	ItemMethod         ItemKind = "Method"
	ItemStructure      ItemKind = "Structure"
	ItemEnumeration    ItemKind = "Enumeration"
	ItemCustomDataType ItemKind = "CustomDataType"
)

// IsDataType reports whether k is one of the data type kinds.
func (k ItemKind) IsDataType() bool {
	return k == ItemStructure || k == ItemEnumeration || k == ItemCustomDataType
}

// ItemKey is the natural key of an item.
type ItemKey struct {
	// NodeID is the expanded node id.
	NodeID    string `json:"nodeId"`
	Namespace string `json:"namespace"`
}

// KeyOf returns the key of a graph node.
func KeyOf(n *graph.Node) ItemKey {
	return ItemKey{NodeID: n.NodeID, Namespace: n.Namespace}
}

// String returns the node id.
func (k ItemKey) String() string { return k.NodeID }

// ItemState tracks the persistence lifecycle of an item within one
// transaction.
type ItemState int

// Item states. An item goes Pending -> Existing, or Pending -> Created or
// Updated, and Created -> PostProcessed when a post-creation hook changed it.
const (
	StatePending ItemState = iota
	StateExisting
	StateCreated
	StateUpdated
	StatePostProcessed
)

var stateNames = [...]string{"Pending", "Existing", "Created", "Updated", "PostProcessed"}

// String returns the state name.
func (s ItemState) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("ItemState(%d)", int(s))
}

// AttributeKind tells where an attribute came from.
type AttributeKind string

// Attribute kinds.
const (
	AttributeProperty       AttributeKind = "Property"
	AttributeDataVariable   AttributeKind = "DataVariable"
	AttributeStructureField AttributeKind = "StructureField"
	AttributeEnumField      AttributeKind = "EnumField"
)

// CustomLookupCode tags lookup data types synthesized for custom types.
const CustomLookupCode = "custom"

// DataTypeRef points to the data type of an attribute or variable type.
type DataTypeRef struct {
	Name   string `json:"name"`
	NodeID string `json:"nodeId"`

	// LookupID is the id of the lookup data type row, when known.
	LookupID string `json:"lookupId,omitempty"`

	// Code is CustomLookupCode for custom types.
	Code string `json:"code,omitempty"`

	// CustomType is the item of a custom data type.
	CustomType *ItemKey `json:"customType,omitempty"`
}

// IsCustom reports whether the reference wraps a custom data type.
func (d *DataTypeRef) IsCustom() bool {
	return d != nil && d.Code == CustomLookupCode
}

// LookupDataType is a data type row of the store.
type LookupDataType struct {
	ID         string   `json:"id"`
	Name       string   `json:"name"`
	Code       string   `json:"code"`
	NodeID     string   `json:"nodeId,omitempty"`
	CustomType *ItemKey `json:"customType,omitempty"`
	UseEngUnit bool     `json:"useEngUnit"`
	UseMinMax  bool     `json:"useMinMax"`
	IsNumeric  bool     `json:"isNumeric"`
}

// EngineeringUnit is a persisted engineering unit.
type EngineeringUnit struct {
	ID           string `json:"id"`
	DisplayName  string `json:"displayName"`
	Description  string `json:"description"`
	UnitID       int32  `json:"unitId"`
	NamespaceURI string `json:"namespaceUri"`
}

// Attribute is a variable or data type field of an item.
type Attribute struct {
	Name            string        `json:"name"`
	BrowseName      string        `json:"browseName,omitempty"`
	BrowseNamespace string        `json:"browseNamespace,omitempty"`
	Kind            AttributeKind `json:"kind"`

	// NodeID and Namespace identify the source variable; empty for fields.
	NodeID    string `json:"nodeId,omitempty"`
	Namespace string `json:"namespace,omitempty"`

	Description     string       `json:"description,omitempty"`
	DataType        *DataTypeRef `json:"dataType,omitempty"`
	TypeDefinition  string       `json:"typeDefinition,omitempty"`
	ModelingRule    string       `json:"modelingRule,omitempty"`
	IsRequired      *bool        `json:"isRequired,omitempty"`
	ValueRank       *int         `json:"valueRank,omitempty"`
	ArrayDimensions string       `json:"arrayDimensions,omitempty"`
	AccessLevel     *uint32      `json:"accessLevel,omitempty"`
	MaxStringLength uint32       `json:"maxStringLength,omitempty"`
	EnumValue       *int64       `json:"enumValue,omitempty"`

	// Value is the raw XML of the variable value.
	Value    string `json:"value,omitempty"`
	ValueNil bool   `json:"valueNil,omitempty"`

	EngineeringUnit       *EngineeringUnit `json:"engineeringUnit,omitempty"`
	EngineeringUnitNodeID string           `json:"engineeringUnitNodeId,omitempty"`

	// DataVariableNodeIDs is a JSON object mapping the browse names of the
	// variables declared by the type definition to the node ids of this
	// variable's matching children.
	DataVariableNodeIDs string `json:"dataVariableNodeIds,omitempty"`
}

// CompositionKind tells what a composition refers to.
type CompositionKind string

// Composition kinds.
const (
	CompositionObject CompositionKind = "Object"
	CompositionMethod CompositionKind = "Method"
	CompositionEvent  CompositionKind = "Event"
)

// Composition is a child object, method or generated event of an item.
type Composition struct {
	Name            string          `json:"name"`
	BrowseName      string          `json:"browseName,omitempty"`
	BrowseNamespace string          `json:"browseNamespace,omitempty"`
	Kind            CompositionKind `json:"kind"`

	// NodeID identifies the child node; empty for events.
	NodeID    string `json:"nodeId,omitempty"`
	Namespace string `json:"namespace,omitempty"`

	Description  string `json:"description,omitempty"`
	ModelingRule string `json:"modelingRule,omitempty"`
	IsRequired   *bool  `json:"isRequired,omitempty"`

	// Related is the type definition of a child object, the method item of
	// a method, or the event type of an event.
	Related ItemKey `json:"related"`
}

// Reference is a non-hierarchical reference kept for export.
type Reference struct {
	ReferenceType string `json:"referenceType"`
	Target        string `json:"target"`
	IsForward     bool   `json:"isForward"`
}

// ProfileItem is the projection of one graph node.
type ProfileItem struct {
	ID        string   `json:"id"`
	ProfileID string   `json:"profileId,omitempty"`
	Key       ItemKey  `json:"key"`
	Kind      ItemKind `json:"kind"`

	Name            string `json:"name"`
	BrowseName      string `json:"browseName"`
	BrowseNamespace string `json:"browseNamespace,omitempty"`
	SymbolicName    string `json:"symbolicName,omitempty"`
	Description     string `json:"description,omitempty"`
	Documentation   string `json:"documentation,omitempty"`
	IsAbstract      bool   `json:"isAbstract,omitempty"`

	// Parent is the supertype of types or the type definition of instances.
	Parent *ItemKey `json:"parent,omitempty"`

	// InstanceParent is the node an instance hangs off.
	InstanceParent   *ItemKey `json:"instanceParent,omitempty"`
	InstanceParentID string   `json:"instanceParentId,omitempty"`

	Attributes   []*Attribute   `json:"attributes,omitempty"`
	Compositions []*Composition `json:"compositions,omitempty"`
	Interfaces   []ItemKey      `json:"interfaces,omitempty"`

	ModelingRule string `json:"modelingRule,omitempty"`

	// Variable types.
	VariableDataType *DataTypeRef `json:"variableDataType,omitempty"`
	ValueRank        *int         `json:"valueRank,omitempty"`
	ArrayDimensions  string       `json:"arrayDimensions,omitempty"`

	// Data types.
	LookupID    string `json:"lookupId,omitempty"`
	IsNumeric   bool   `json:"isNumeric,omitempty"`
	IsOptionSet bool   `json:"isOptionSet,omitempty"`

	EventNotifier   uint8       `json:"eventNotifier,omitempty"`
	OtherReferences []Reference `json:"otherReferences,omitempty"`

	State ItemState `json:"-"`
}

// Attribute returns the attribute sourced from a node id, or nil.
func (p *ProfileItem) Attribute(nodeID string) *Attribute {
	for _, a := range p.Attributes {
		if a.NodeID != "" && a.NodeID == nodeID {
			return a
		}
	}
	return nil
}

// NumericID returns the numeric part of the item's node id, if any.
func (p *ProfileItem) NumericID() (uint32, bool) {
	return nodeset.NumericID(p.Key.NodeID)
}

// Profile is the owner record of one namespace version.
type Profile struct {
	ID              string                `json:"id"`
	Namespace       string                `json:"namespace"`
	Version         string                `json:"version"`
	PublicationDate time.Time             `json:"publicationDate"`
	Tenant          string                `json:"tenant,omitempty"`
	RequiredModels  []model.ModelIdentity `json:"requiredModels,omitempty"`
}

// Identity returns the model identity of the profile.
func (p *Profile) Identity() model.ModelIdentity {
	return model.ModelIdentity{ModelURI: p.Namespace, Version: p.Version, PublicationDate: p.PublicationDate}
}

// Warning is a non-fatal finding of a projection.
type Warning struct {
	NodeID  string
	Name    string
	Parent  string
	Message string
}

// ModelingRuleRequired maps a modelling rule to a required flag: nil when
// no rule is set, false when the rule mentions "Optional", true otherwise.
func ModelingRuleRequired(rule *string) *bool {
	if rule == nil {
		return nil
	}
	required := !strings.Contains(*rule, "Optional")
	return &required
}

// ruleRef returns nil for an empty rule.
func ruleRef(rule string) *string {
	if rule == "" {
		return nil
	}
	return &rule
}
