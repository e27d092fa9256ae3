package nodeset

import (
	"sort"

	"github.com/gopcua/opcua/id"
)

// Core node ids that are newer than the generated id table.
const (
	BaseInterfaceTypeID = 17602
	HasInterfaceID      = 17603
)

// Reference type names used by the importer and exporter.
const (
	RefHasSubtype          = "HasSubtype"
	RefHasComponent        = "HasComponent"
	RefHasOrderedComponent = "HasOrderedComponent"
	RefHasProperty         = "HasProperty"
	RefHasTypeDefinition   = "HasTypeDefinition"
	RefHasModellingRule    = "HasModellingRule"
	RefHasInterface        = "HasInterface"
	RefGeneratesEvent      = "GeneratesEvent"
	RefOrganizes           = "Organizes"
	RefHasEncoding         = "HasEncoding"
	RefHasDescription      = "HasDescription"
)

// ReferenceTypes maps core reference type names to their numeric ids.
var ReferenceTypes = map[string]uint32{
	"References":                id.References,
	"NonHierarchicalReferences": id.NonHierarchicalReferences,
	"HierarchicalReferences":    id.HierarchicalReferences,
	"HasChild":                  id.HasChild,
	"Organizes":                 id.Organizes,
	"HasEventSource":            id.HasEventSource,
	"HasModellingRule":          id.HasModellingRule,
	"HasEncoding":               id.HasEncoding,
	"HasDescription":            id.HasDescription,
	"HasTypeDefinition":         id.HasTypeDefinition,
	"GeneratesEvent":            id.GeneratesEvent,
	"Aggregates":                id.Aggregates,
	"HasSubtype":                id.HasSubtype,
	"HasProperty":               id.HasProperty,
	"HasComponent":              id.HasComponent,
	"HasNotifier":               id.HasNotifier,
	"HasOrderedComponent":       id.HasOrderedComponent,
	"HasInterface":              HasInterfaceID,
}

// BuiltinDataTypes maps core data type names to their numeric ids.
var BuiltinDataTypes = map[string]uint32{
	"Boolean":        id.Boolean,
	"SByte":          id.SByte,
	"Byte":           id.Byte,
	"Int16":          id.Int16,
	"UInt16":         id.UInt16,
	"Int32":          id.Int32,
	"UInt32":         id.UInt32,
	"Int64":          id.Int64,
	"UInt64":         id.UInt64,
	"Float":          id.Float,
	"Double":         id.Double,
	"String":         id.String,
	"DateTime":       id.DateTime,
	"Guid":           id.GUID,
	"ByteString":     id.ByteString,
	"XmlElement":     id.XMLElement,
	"NodeId":         id.NodeID,
	"ExpandedNodeId": id.ExpandedNodeID,
	"StatusCode":     id.StatusCode,
	"QualifiedName":  id.QualifiedName,
	"LocalizedText":  id.LocalizedText,
	"Structure":      id.Structure,
	"DataValue":      id.DataValue,
	"BaseDataType":   id.BaseDataType,
	"DiagnosticInfo": id.DiagnosticInfo,
	"Number":         id.Number,
	"Integer":        id.Integer,
	"UInteger":       id.UInteger,
	"Enumeration":    id.Enumeration,
	"Image":          id.Image,
	"Duration":       id.Duration,
	"UtcTime":        id.UtcTime,
	"LocaleId":       id.LocaleID,
	"Argument":       id.Argument,
	"Range":          id.Range,
	"EUInformation":  id.EUInformation,
}

// ModellingRules maps modelling rule object ids to rule names.
var ModellingRules = map[uint32]string{
	id.ModellingRule_Mandatory:            "Mandatory",
	id.ModellingRule_Optional:             "Optional",
	id.ModellingRule_ExposesItsArray:      "ExposesItsArray",
	id.ModellingRule_OptionalPlaceholder:  "OptionalPlaceholder",
	id.ModellingRule_MandatoryPlaceholder: "MandatoryPlaceholder",
}

// ModellingRuleID returns the object id of a modelling rule name.
func ModellingRuleID(name string) (uint32, bool) {
	for n, rule := range ModellingRules {
		if rule == name {
			return n, true
		}
	}
	return 0, false
}

// DefaultAliases returns the alias table used when writing documents:
// reference types and builtin data types by name.
func DefaultAliases() map[string]string {
	aliases := make(map[string]string, len(ReferenceTypes)+len(BuiltinDataTypes))
	for name, n := range ReferenceTypes {
		aliases[name] = CoreID(n)
	}
	for name, n := range BuiltinDataTypes {
		aliases[name] = CoreID(n)
	}
	return aliases
}

// ReverseAliases inverts an alias table. When several names map to the same
// node id the lexically smallest name wins.
func ReverseAliases(aliases map[string]string) map[string]string {
	names := make([]string, 0, len(aliases))
	for name := range aliases {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make(map[string]string, len(aliases))
	for _, name := range names {
		target := aliases[name]
		if _, seen := out[target]; !seen {
			out[target] = name
		}
	}
	return out
}
