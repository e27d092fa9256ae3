package graph

import (
	"github.com/gopcua/opcua/id"

	"github.com/cesmii/profiledesigner/nodeset"
)

// builtinEntry describes a well-known core node.
type builtinEntry struct {
	name  string
	kind  NodeKind
	super uint32
	// typeDef is the type definition of instances.
	typeDef uint32
}

// builtinTable holds the core nodes an import needs when the core model
// itself is not loaded: base types, common event and variable types, the
// builtin data type hierarchy and the modelling rules.
var builtinTable = map[uint32]builtinEntry{
	id.BaseObjectType:               {name: "BaseObjectType", kind: KindObjectType},
	id.FolderType:                   {name: "FolderType", kind: KindObjectType, super: id.BaseObjectType},
	id.ModellingRuleType:            {name: "ModellingRuleType", kind: KindObjectType, super: id.BaseObjectType},
	nodeset.BaseInterfaceTypeID:     {name: "BaseInterfaceType", kind: KindInterface, super: id.BaseObjectType},
	id.BaseEventType:                {name: "BaseEventType", kind: KindEventType, super: id.BaseObjectType},
	id.AuditEventType:               {name: "AuditEventType", kind: KindEventType, super: id.BaseEventType},
	id.SystemEventType:              {name: "SystemEventType", kind: KindEventType, super: id.BaseEventType},
	id.BaseModelChangeEventType:     {name: "BaseModelChangeEventType", kind: KindEventType, super: id.BaseEventType},
	id.ConditionType:                {name: "ConditionType", kind: KindEventType, super: id.BaseEventType},
	id.AcknowledgeableConditionType: {name: "AcknowledgeableConditionType", kind: KindEventType, super: id.ConditionType},
	id.AlarmConditionType:           {name: "AlarmConditionType", kind: KindEventType, super: id.AcknowledgeableConditionType},

	id.BaseVariableType:     {name: "BaseVariableType", kind: KindVariableType},
	id.BaseDataVariableType: {name: "BaseDataVariableType", kind: KindVariableType, super: id.BaseVariableType},
	id.PropertyType:         {name: "PropertyType", kind: KindVariableType, super: id.BaseVariableType},
	id.DataItemType:         {name: "DataItemType", kind: KindVariableType, super: id.BaseDataVariableType},
	id.AnalogItemType:       {name: "AnalogItemType", kind: KindVariableType, super: id.DataItemType},

	id.ObjectsFolder:                      {name: "Objects", kind: KindObject, typeDef: id.FolderType},
	id.TypesFolder:                        {name: "Types", kind: KindObject, typeDef: id.FolderType},
	id.Server:                             {name: "Server", kind: KindObject},
	id.ModellingRule_Mandatory:            {name: "Mandatory", kind: KindObject, typeDef: id.ModellingRuleType},
	id.ModellingRule_Optional:             {name: "Optional", kind: KindObject, typeDef: id.ModellingRuleType},
	id.ModellingRule_ExposesItsArray:      {name: "ExposesItsArray", kind: KindObject, typeDef: id.ModellingRuleType},
	id.ModellingRule_OptionalPlaceholder:  {name: "OptionalPlaceholder", kind: KindObject, typeDef: id.ModellingRuleType},
	id.ModellingRule_MandatoryPlaceholder: {name: "MandatoryPlaceholder", kind: KindObject, typeDef: id.ModellingRuleType},
}

// dataTypeParents gives the supertype of each builtin data type.
var dataTypeParents = map[string]string{
	"Boolean":        "BaseDataType",
	"SByte":          "Integer",
	"Byte":           "UInteger",
	"Int16":          "Integer",
	"UInt16":         "UInteger",
	"Int32":          "Integer",
	"UInt32":         "UInteger",
	"Int64":          "Integer",
	"UInt64":         "UInteger",
	"Float":          "Number",
	"Double":         "Number",
	"String":         "BaseDataType",
	"DateTime":       "BaseDataType",
	"Guid":           "BaseDataType",
	"ByteString":     "BaseDataType",
	"XmlElement":     "BaseDataType",
	"NodeId":         "BaseDataType",
	"ExpandedNodeId": "BaseDataType",
	"StatusCode":     "BaseDataType",
	"QualifiedName":  "BaseDataType",
	"LocalizedText":  "BaseDataType",
	"Structure":      "BaseDataType",
	"DataValue":      "BaseDataType",
	"DiagnosticInfo": "BaseDataType",
	"Number":         "BaseDataType",
	"Integer":        "Number",
	"UInteger":       "Number",
	"Enumeration":    "BaseDataType",
	"Image":          "ByteString",
	"Duration":       "Double",
	"UtcTime":        "DateTime",
	"LocaleId":       "String",
	"Argument":       "Structure",
	"Range":          "Structure",
	"EUInformation":  "Structure",
}

var builtinNodes = buildBuiltinNodes()

func buildBuiltinNodes() map[string]*Node {
	nodes := make(map[string]*Node, len(builtinTable)+len(nodeset.BuiltinDataTypes))
	for n, e := range builtinTable {
		node := &Node{
			Kind:       e.kind,
			NodeID:     nodeset.CoreID(n),
			Namespace:  nodeset.CoreNamespace,
			BrowseName: e.name,
		}
		if e.super != 0 {
			node.SuperType = nodeset.CoreID(e.super)
		}
		if e.typeDef != 0 {
			node.TypeDefinition = nodeset.CoreID(e.typeDef)
		}
		nodes[node.NodeID] = node
	}
	for name, n := range nodeset.BuiltinDataTypes {
		node := &Node{
			Kind:       KindDataType,
			NodeID:     nodeset.CoreID(n),
			Namespace:  nodeset.CoreNamespace,
			BrowseName: name,
			IsAbstract: name == "BaseDataType" || name == "Number" || name == "Integer" || name == "UInteger" || name == "Enumeration" || name == "Structure",
		}
		if parent, ok := dataTypeParents[name]; ok {
			node.SuperType = nodeset.CoreID(nodeset.BuiltinDataTypes[parent])
		}
		nodes[node.NodeID] = node
	}
	return nodes
}

// BuiltinNode returns a well-known core node. The returned node is shared
// and must not be modified.
func BuiltinNode(expandedID string) (*Node, bool) {
	n, ok := builtinNodes[expandedID]
	return n, ok
}

// Well-known expanded ids used by the importer and projector.
var (
	BaseObjectTypeID       = nodeset.CoreID(id.BaseObjectType)
	BaseInterfaceTypeID    = nodeset.CoreID(nodeset.BaseInterfaceTypeID)
	BaseEventTypeID        = nodeset.CoreID(id.BaseEventType)
	BaseVariableTypeID     = nodeset.CoreID(id.BaseVariableType)
	BaseDataVariableTypeID = nodeset.CoreID(id.BaseDataVariableType)
	PropertyTypeID         = nodeset.CoreID(id.PropertyType)
	BaseDataTypeID         = nodeset.CoreID(id.BaseDataType)
	StructureID            = nodeset.CoreID(id.Structure)
	EnumerationID          = nodeset.CoreID(id.Enumeration)
	NumberID               = nodeset.CoreID(id.Number)
	EUInformationID        = nodeset.CoreID(id.EUInformation)
)
