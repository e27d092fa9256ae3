package graph

import (
	"encoding/xml"
	"fmt"
	"strings"

	"github.com/cesmii/profiledesigner/nodeset"
)

// EngineeringUnitsName is the browse name of the property carrying a
// variable's engineering unit.
const EngineeringUnitsName = "EngineeringUnits"

type xmlLocalizedText struct {
	Locale string `xml:"Locale"`
	Text   string `xml:"Text"`
}

type xmlEUInformation struct {
	NamespaceURI string           `xml:"NamespaceUri"`
	UnitID       int32            `xml:"UnitId"`
	DisplayName  xmlLocalizedText `xml:"DisplayName"`
	Description  xmlLocalizedText `xml:"Description"`
}

type xmlEUValue struct {
	Direct    *xmlEUInformation `xml:"EUInformation"`
	Extension *struct {
		Body struct {
			EUInformation *xmlEUInformation `xml:"EUInformation"`
		} `xml:"Body"`
	} `xml:"ExtensionObject"`
}

// DecodeEngineeringUnit decodes an EUInformation value, either wrapped in
// an ExtensionObject or bare. It returns nil for empty values.
func DecodeEngineeringUnit(v *nodeset.Value) (*EngineeringUnit, error) {
	if v == nil || v.Nil || strings.TrimSpace(v.InnerXML) == "" {
		return nil, nil
	}

	doc := `<Value xmlns:uax="` + nodeset.TypesXMLNS + `">` + v.InnerXML + `</Value>`
	var decoded xmlEUValue
	if err := xml.Unmarshal([]byte(doc), &decoded); err != nil {
		return nil, fmt.Errorf("decode EUInformation: %w", err)
	}

	eu := decoded.Direct
	if eu == nil && decoded.Extension != nil {
		eu = decoded.Extension.Body.EUInformation
	}
	if eu == nil {
		return nil, nil
	}
	return &EngineeringUnit{
		DisplayName:  LocalizedText{Locale: eu.DisplayName.Locale, Text: eu.DisplayName.Text},
		Description:  LocalizedText{Locale: eu.Description.Locale, Text: eu.Description.Text},
		UnitID:       eu.UnitID,
		NamespaceURI: eu.NamespaceURI,
	}, nil
}

// EncodeEngineeringUnit renders an EUInformation extension object as the
// inner XML of a Value element.
func EncodeEngineeringUnit(eu *EngineeringUnit) string {
	var b strings.Builder
	b.WriteString("<uax:ExtensionObject><uax:TypeId><uax:Identifier>i=888</uax:Identifier></uax:TypeId><uax:Body><uax:EUInformation>")
	writeElement(&b, "NamespaceUri", eu.NamespaceURI)
	writeElement(&b, "UnitId", fmt.Sprint(eu.UnitID))
	writeText(&b, "DisplayName", eu.DisplayName)
	writeText(&b, "Description", eu.Description)
	b.WriteString("</uax:EUInformation></uax:Body></uax:ExtensionObject>")
	return b.String()
}

func writeElement(b *strings.Builder, name, value string) {
	b.WriteString("<uax:" + name + ">")
	xml.EscapeText(b, []byte(value))
	b.WriteString("</uax:" + name + ">")
}

func writeText(b *strings.Builder, name string, t LocalizedText) {
	b.WriteString("<uax:" + name + ">")
	if t.Locale != "" {
		writeElement(b, "Locale", t.Locale)
	}
	writeElement(b, "Text", t.Text)
	b.WriteString("</uax:" + name + ">")
}
