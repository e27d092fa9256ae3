package nodeset

import (
	"encoding/xml"
	"strings"
)

// XML namespaces declared on every written document.
const (
	NodeSetXMLNS = "http://opcfoundation.org/UA/2011/03/UANodeSet.xsd"
	TypesXMLNS   = "http://opcfoundation.org/UA/2008/02/Types.xsd"
	XSIXMLNS     = "http://www.w3.org/2001/XMLSchema-instance"
	XSDXMLNS     = "http://www.w3.org/2001/XMLSchema"
)

// Well-known model URIs.
const (
	// CoreNamespace is the base OPC UA namespace, always index 0.
	CoreNamespace = "http://opcfoundation.org/UA/"

	// DINamespace is the OPC UA for Devices companion namespace.
	DINamespace = "http://opcfoundation.org/UA/DI/"
)

// UANodeSet is the root of a NodeSet2 document.
type UANodeSet struct {
	LastModifiedAttr string
	NamespaceUris    *UriTable
	Models           *ModelTable
	Aliases          *AliasTable

	// Items holds every node element in document order.
	Items []Node
}

// Node is implemented by every typed node element.
type Node interface {
	// Base returns the attributes shared by all node classes.
	Base() *UANode

	// ElementName returns the XML element name of the node class.
	ElementName() string
}

// UriTable lists namespace URIs; entry i maps to namespace index i+1.
type UriTable struct {
	Uri []string `xml:"Uri"`
}

// ModelTable lists the models defined by a document.
type ModelTable struct {
	Model []*ModelTableEntry `xml:"Model"`
}

// ModelTableEntry describes one model and the models it requires.
type ModelTableEntry struct {
	ModelUriAttr        string             `xml:"ModelUri,attr"`
	VersionAttr         string             `xml:"Version,attr,omitempty"`
	PublicationDateAttr string             `xml:"PublicationDate,attr,omitempty"`
	RequiredModel       []*ModelTableEntry `xml:"RequiredModel"`
}

// AliasTable maps short names to node ids.
type AliasTable struct {
	Alias []*NodeIdAlias `xml:"Alias"`
}

// NodeIdAlias is a single alias entry.
type NodeIdAlias struct {
	AliasAttr string `xml:"Alias,attr"`
	Value     string `xml:",chardata"`
}

// LocalizedText is a text with an optional locale.
type LocalizedText struct {
	LocaleAttr string `xml:"Locale,attr,omitempty"`
	Value      string `xml:",chardata"`
}

// Reference is a typed reference from the enclosing node to Value.
// A nil IsForwardAttr means forward.
type Reference struct {
	ReferenceTypeAttr string `xml:"ReferenceType,attr"`
	IsForwardAttr     *bool  `xml:"IsForward,attr,omitempty"`
	Value             string `xml:",chardata"`
}

// IsForward reports the reference direction.
func (r *Reference) IsForward() bool {
	return r.IsForwardAttr == nil || *r.IsForwardAttr
}

// ListOfReferences wraps the references of a node.
type ListOfReferences struct {
	Reference []*Reference `xml:"Reference"`
}

// UANode holds the attributes common to all node classes.
type UANode struct {
	NodeIdAttr       string            `xml:"NodeId,attr"`
	BrowseNameAttr   string            `xml:"BrowseName,attr"`
	SymbolicNameAttr string            `xml:"SymbolicName,attr,omitempty"`
	WriteMaskAttr    uint32            `xml:"WriteMask,attr,omitempty"`
	DisplayName      []*LocalizedText  `xml:"DisplayName"`
	Description      []*LocalizedText  `xml:"Description"`
	Category         []string          `xml:"Category"`
	Documentation    string            `xml:"Documentation,omitempty"`
	References       *ListOfReferences `xml:"References"`
}

// Base implements Node.
func (n *UANode) Base() *UANode { return n }

// AddReference appends a reference, allocating the list when needed.
func (n *UANode) AddReference(refType, target string, forward bool) {
	if n.References == nil {
		n.References = &ListOfReferences{}
	}
	ref := &Reference{ReferenceTypeAttr: refType, Value: target}
	if !forward {
		f := false
		ref.IsForwardAttr = &f
	}
	n.References.Reference = append(n.References.Reference, ref)
}

// UAObject is an object instance.
type UAObject struct {
	UANode
	ParentNodeIdAttr  string `xml:"ParentNodeId,attr,omitempty"`
	EventNotifierAttr uint8  `xml:"EventNotifier,attr,omitempty"`
}

// ElementName implements Node.
func (*UAObject) ElementName() string { return "UAObject" }

// UAVariable is a variable instance.
type UAVariable struct {
	UANode
	ParentNodeIdAttr    string  `xml:"ParentNodeId,attr,omitempty"`
	DataTypeAttr        string  `xml:"DataType,attr,omitempty"`
	ValueRankAttr       *int    `xml:"ValueRank,attr,omitempty"`
	ArrayDimensionsAttr string  `xml:"ArrayDimensions,attr,omitempty"`
	AccessLevelAttr     *uint32 `xml:"AccessLevel,attr,omitempty"`
	HistorizingAttr     bool    `xml:"Historizing,attr,omitempty"`
	Value               *Value  `xml:"Value"`
}

// ElementName implements Node.
func (*UAVariable) ElementName() string { return "UAVariable" }

// UAMethod is a method instance.
type UAMethod struct {
	UANode
	ParentNodeIdAttr        string `xml:"ParentNodeId,attr,omitempty"`
	MethodDeclarationIdAttr string `xml:"MethodDeclarationId,attr,omitempty"`
}

// ElementName implements Node.
func (*UAMethod) ElementName() string { return "UAMethod" }

// UAObjectType is an object type.
type UAObjectType struct {
	UANode
	IsAbstractAttr bool `xml:"IsAbstract,attr,omitempty"`
}

// ElementName implements Node.
func (*UAObjectType) ElementName() string { return "UAObjectType" }

// UAVariableType is a variable type.
type UAVariableType struct {
	UANode
	DataTypeAttr        string `xml:"DataType,attr,omitempty"`
	ValueRankAttr       *int   `xml:"ValueRank,attr,omitempty"`
	ArrayDimensionsAttr string `xml:"ArrayDimensions,attr,omitempty"`
	IsAbstractAttr      bool   `xml:"IsAbstract,attr,omitempty"`
	Value               *Value `xml:"Value"`
}

// ElementName implements Node.
func (*UAVariableType) ElementName() string { return "UAVariableType" }

// UADataType is a data type, optionally with a structure or enum definition.
type UADataType struct {
	UANode
	IsAbstractAttr bool                `xml:"IsAbstract,attr,omitempty"`
	Definition     *DataTypeDefinition `xml:"Definition"`
}

// ElementName implements Node.
func (*UADataType) ElementName() string { return "UADataType" }

// DataTypeDefinition lists the fields of a structure or enumeration.
type DataTypeDefinition struct {
	NameAttr         string           `xml:"Name,attr"`
	SymbolicNameAttr string           `xml:"SymbolicName,attr,omitempty"`
	IsUnionAttr      bool             `xml:"IsUnion,attr,omitempty"`
	IsOptionSetAttr  bool             `xml:"IsOptionSet,attr,omitempty"`
	Field            []*DataTypeField `xml:"Field"`
}

// DataTypeField is one structure field or enum value.
type DataTypeField struct {
	NameAttr            string           `xml:"Name,attr"`
	SymbolicNameAttr    string           `xml:"SymbolicName,attr,omitempty"`
	DataTypeAttr        string           `xml:"DataType,attr,omitempty"`
	ValueRankAttr       *int             `xml:"ValueRank,attr,omitempty"`
	ArrayDimensionsAttr string           `xml:"ArrayDimensions,attr,omitempty"`
	MaxStringLengthAttr uint32           `xml:"MaxStringLength,attr,omitempty"`
	ValueAttr           *int64           `xml:"Value,attr,omitempty"`
	IsOptionalAttr      bool             `xml:"IsOptional,attr,omitempty"`
	DisplayName         []*LocalizedText `xml:"DisplayName"`
	Description         []*LocalizedText `xml:"Description"`
}

// UAReferenceType is a reference type.
type UAReferenceType struct {
	UANode
	IsAbstractAttr bool             `xml:"IsAbstract,attr,omitempty"`
	SymmetricAttr  bool             `xml:"Symmetric,attr,omitempty"`
	InverseName    []*LocalizedText `xml:"InverseName"`
}

// ElementName implements Node.
func (*UAReferenceType) ElementName() string { return "UAReferenceType" }

// UAView is a view node.
type UAView struct {
	UANode
	ContainsNoLoopsAttr bool  `xml:"ContainsNoLoops,attr,omitempty"`
	EventNotifierAttr   uint8 `xml:"EventNotifier,attr,omitempty"`
}

// ElementName implements Node.
func (*UAView) ElementName() string { return "UAView" }

// Value keeps the raw XML of a variable value so it survives a round trip
// without this package decoding every built-in type.
type Value struct {
	// Nil is set for xsi:nil values.
	Nil bool

	// InnerXML is the raw element content, e.g. "<uax:Int32>5</uax:Int32>".
	InnerXML string
}

// UnmarshalXML implements xml.Unmarshaler.
func (v *Value) UnmarshalXML(d *xml.Decoder, start xml.StartElement) error {
	var raw struct {
		Nil   string `xml:"nil,attr"`
		Inner string `xml:",innerxml"`
	}
	if err := d.DecodeElement(&raw, &start); err != nil {
		return err
	}
	v.Nil = raw.Nil == "true" || raw.Nil == "1"
	v.InnerXML = strings.TrimSpace(raw.Inner)
	return nil
}

// MarshalXML implements xml.Marshaler.
func (v Value) MarshalXML(e *xml.Encoder, start xml.StartElement) error {
	if v.Nil {
		start.Attr = append(start.Attr, xml.Attr{Name: xml.Name{Local: "xsi:nil"}, Value: "true"})
	}
	inner := struct {
		Inner string `xml:",innerxml"`
	}{Inner: v.InnerXML}
	return e.EncodeElement(inner, start)
}

// FirstText returns the first localized text value, or "".
func FirstText(texts []*LocalizedText) string {
	for _, t := range texts {
		if t != nil && t.Value != "" {
			return t.Value
		}
	}
	return ""
}
