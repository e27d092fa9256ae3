package nodeset

import (
	"bytes"
	"encoding/xml"
	"fmt"
)

// Marshal encodes a document with an XML header and two-space indentation.
func Marshal(s *UANodeSet) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(xml.Header)

	enc := xml.NewEncoder(&buf)
	enc.Indent("", "  ")
	if err := enc.Encode(s); err != nil {
		return nil, fmt.Errorf("encode nodeset: %w", err)
	}
	buf.WriteByte('\n')
	return buf.Bytes(), nil
}

// MarshalXML implements xml.Marshaler. Namespace declarations are written as
// plain attributes so child elements stay unprefixed.
func (s *UANodeSet) MarshalXML(e *xml.Encoder, start xml.StartElement) error {
	start.Name = xml.Name{Local: "UANodeSet"}
	start.Attr = []xml.Attr{
		{Name: xml.Name{Local: "xmlns:xsi"}, Value: XSIXMLNS},
		{Name: xml.Name{Local: "xmlns:xsd"}, Value: XSDXMLNS},
		{Name: xml.Name{Local: "xmlns:uax"}, Value: TypesXMLNS},
		{Name: xml.Name{Local: "xmlns"}, Value: NodeSetXMLNS},
	}
	if s.LastModifiedAttr != "" {
		start.Attr = append(start.Attr, xml.Attr{Name: xml.Name{Local: "LastModified"}, Value: s.LastModifiedAttr})
	}

	if err := e.EncodeToken(start); err != nil {
		return err
	}
	if s.NamespaceUris != nil && len(s.NamespaceUris.Uri) > 0 {
		if err := e.EncodeElement(s.NamespaceUris, element("NamespaceUris")); err != nil {
			return err
		}
	}
	if s.Models != nil {
		if err := e.EncodeElement(s.Models, element("Models")); err != nil {
			return err
		}
	}
	if s.Aliases != nil && len(s.Aliases.Alias) > 0 {
		if err := e.EncodeElement(s.Aliases, element("Aliases")); err != nil {
			return err
		}
	}
	for _, n := range s.Items {
		if err := e.EncodeElement(n, element(n.ElementName())); err != nil {
			return fmt.Errorf("encode %s %s: %w", n.ElementName(), n.Base().NodeIdAttr, err)
		}
	}
	return e.EncodeToken(start.End())
}

func element(name string) xml.StartElement {
	return xml.StartElement{Name: xml.Name{Local: name}}
}
