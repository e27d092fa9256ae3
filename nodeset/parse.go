package nodeset

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"time"
)

// Sentinel errors for document parsing.
var (
	// ErrParse indicates a malformed NodeSet2 document.
	ErrParse = errors.New("nodeset: malformed document")

	// ErrEmptyPayload indicates an empty or whitespace-only payload.
	ErrEmptyPayload = errors.New("nodeset: empty payload")

	// ErrNoModel indicates a document without a model table entry.
	ErrNoModel = errors.New("nodeset: document declares no model")
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Parse decodes a NodeSet2 document.
func Parse(data []byte) (*UANodeSet, error) {
	data = bytes.TrimPrefix(data, utf8BOM)
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, ErrEmptyPayload
	}

	var set UANodeSet
	if err := xml.NewDecoder(bytes.NewReader(data)).Decode(&set); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParse, err)
	}
	if set.Models == nil || len(set.Models.Model) == 0 {
		return nil, ErrNoModel
	}
	return &set, nil
}

// UnmarshalXML implements xml.Unmarshaler, keeping node elements in document order.
func (s *UANodeSet) UnmarshalXML(d *xml.Decoder, start xml.StartElement) error {
	if start.Name.Local != "UANodeSet" {
		return fmt.Errorf("unexpected root element %q", start.Name.Local)
	}
	for _, a := range start.Attr {
		if a.Name.Local == "LastModified" {
			s.LastModifiedAttr = a.Value
		}
	}

	for {
		tok, err := d.Token()
		if err != nil {
			return err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			if err := s.decodeChild(d, t); err != nil {
				return err
			}
		case xml.EndElement:
			return nil
		}
	}
}

func (s *UANodeSet) decodeChild(d *xml.Decoder, el xml.StartElement) error {
	switch el.Name.Local {
	case "NamespaceUris":
		s.NamespaceUris = &UriTable{}
		return d.DecodeElement(s.NamespaceUris, &el)
	case "Models":
		s.Models = &ModelTable{}
		return d.DecodeElement(s.Models, &el)
	case "Aliases":
		s.Aliases = &AliasTable{}
		return d.DecodeElement(s.Aliases, &el)
	case "UAObject":
		return s.decodeNode(d, el, &UAObject{})
	case "UAVariable":
		return s.decodeNode(d, el, &UAVariable{})
	case "UAMethod":
		return s.decodeNode(d, el, &UAMethod{})
	case "UAObjectType":
		return s.decodeNode(d, el, &UAObjectType{})
	case "UAVariableType":
		return s.decodeNode(d, el, &UAVariableType{})
	case "UADataType":
		return s.decodeNode(d, el, &UADataType{})
	case "UAReferenceType":
		return s.decodeNode(d, el, &UAReferenceType{})
	case "UAView":
		return s.decodeNode(d, el, &UAView{})
	default:
		// ServerUris, Extensions and unknown elements are not modeled.
		return d.Skip()
	}
}

func (s *UANodeSet) decodeNode(d *xml.Decoder, el xml.StartElement, n Node) error {
	if err := d.DecodeElement(n, &el); err != nil {
		return fmt.Errorf("decode %s: %w", el.Name.Local, err)
	}
	s.Items = append(s.Items, n)
	return nil
}

// ReadModelHeader scans a document until its model table and returns it
// without decoding the node list.
func ReadModelHeader(r io.Reader) (*ModelTable, error) {
	d := xml.NewDecoder(r)
	for {
		tok, err := d.Token()
		if err == io.EOF {
			return nil, ErrNoModel
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrParse, err)
		}
		el, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}
		switch el.Name.Local {
		case "UANodeSet":
		case "NamespaceUris", "ServerUris":
			if err := d.Skip(); err != nil {
				return nil, fmt.Errorf("%w: %v", ErrParse, err)
			}
		case "Models":
			var table ModelTable
			if err := d.DecodeElement(&table, &el); err != nil {
				return nil, fmt.Errorf("%w: %v", ErrParse, err)
			}
			if len(table.Model) == 0 {
				return nil, ErrNoModel
			}
			return &table, nil
		default:
			return nil, ErrNoModel
		}
	}
}

// PatchEmptyValues rewrites self-closing <Value/> elements to explicit nil
// values. The core nodeset ships such elements and they have to be marked
// nil before the document is decoded for re-serialization.
func PatchEmptyValues(data []byte) []byte {
	return bytes.ReplaceAll(data, []byte("<Value/>"), []byte("<Value xsi:nil='true' />"))
}

// PublicationDateLayouts are the layouts accepted for PublicationDate.
var PublicationDateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// ParsePublicationDate parses a model publication date. An empty string
// yields the zero time.
func ParsePublicationDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	for _, layout := range PublicationDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: invalid publication date %q", ErrParse, s)
}

// FormatPublicationDate renders a publication date the way NodeSet2 files do.
func FormatPublicationDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format("2006-01-02T15:04:05Z")
}

// FormatPublicationDateExact renders a publication date with its fractional
// seconds so that ParsePublicationDate returns the same instant.
func FormatPublicationDateExact(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}
