// Package nodesettest builds small NodeSet2 documents for package tests.
package nodesettest

import (
	"fmt"
	"strings"
)

// Model URIs used by the fixtures.
const (
	NamespaceA    = "http://example.org/A/"
	NamespaceB    = "http://example.org/B/"
	NamespaceRich = "http://example.org/Rich/"
	NamespaceDict = "http://example.org/Dict/"
)

// Common fixture publication dates.
const (
	Date2023 = "2023-01-01T00:00:00Z"
	Date2024 = "2024-01-01T00:00:00Z"
)

// Required describes a RequiredModel entry.
type Required struct {
	URI     string
	Version string
	Date    string
}

// Doc assembles a document for modelURI with the given namespace table,
// required models and node elements.
func Doc(modelURI, version, date string, uris []string, required []Required, body string) []byte {
	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="utf-8"?>` + "\n")
	b.WriteString(`<UANodeSet xmlns:xsi="http://www.w3.org/2001/XMLSchema-instance" xmlns:uax="http://opcfoundation.org/UA/2008/02/Types.xsd" xmlns="http://opcfoundation.org/UA/2011/03/UANodeSet.xsd" LastModified="` + date + `">` + "\n")
	if len(uris) > 0 {
		b.WriteString("  <NamespaceUris>\n")
		for _, u := range uris {
			fmt.Fprintf(&b, "    <Uri>%s</Uri>\n", u)
		}
		b.WriteString("  </NamespaceUris>\n")
	}
	b.WriteString("  <Models>\n")
	fmt.Fprintf(&b, "    <Model ModelUri=%q Version=%q PublicationDate=%q>\n", modelURI, version, date)
	for _, r := range required {
		fmt.Fprintf(&b, "      <RequiredModel ModelUri=%q Version=%q PublicationDate=%q />\n", r.URI, r.Version, r.Date)
	}
	b.WriteString("    </Model>\n  </Models>\n")
	b.WriteString(aliases)
	b.WriteString(body)
	b.WriteString("</UANodeSet>\n")
	return []byte(b.String())
}

const aliases = `  <Aliases>
    <Alias Alias="Boolean">i=1</Alias>
    <Alias Alias="Int32">i=6</Alias>
    <Alias Alias="Int64">i=8</Alias>
    <Alias Alias="Double">i=11</Alias>
    <Alias Alias="String">i=12</Alias>
    <Alias Alias="DateTime">i=13</Alias>
    <Alias Alias="EUInformation">i=887</Alias>
    <Alias Alias="Organizes">i=35</Alias>
    <Alias Alias="HasModellingRule">i=37</Alias>
    <Alias Alias="HasTypeDefinition">i=40</Alias>
    <Alias Alias="HasSubtype">i=45</Alias>
    <Alias Alias="HasProperty">i=46</Alias>
    <Alias Alias="HasComponent">i=47</Alias>
    <Alias Alias="HasInterface">i=17603</Alias>
  </Aliases>
`

// Minimal is a single ObjectType with one optional Property and one
// mandatory child Object.
func Minimal() []byte {
	return MinimalDated("1.0.0", Date2023)
}

// MinimalDated is Minimal with an explicit version and publication date.
func MinimalDated(version, date string) []byte {
	return Doc(NamespaceA, version, date, []string{NamespaceA}, nil, minimalBody)
}

const minimalBody = `  <UAObjectType NodeId="ns=1;i=1000" BrowseName="1:PumpType">
    <DisplayName>PumpType</DisplayName>
    <Description>A pump</Description>
    <References>
      <Reference ReferenceType="HasSubtype" IsForward="false">i=58</Reference>
      <Reference ReferenceType="HasProperty">ns=1;i=1001</Reference>
      <Reference ReferenceType="HasComponent">ns=1;i=1002</Reference>
    </References>
  </UAObjectType>
  <UAVariable NodeId="ns=1;i=1001" BrowseName="1:SerialNumber" ParentNodeId="ns=1;i=1000" DataType="String">
    <DisplayName>SerialNumber</DisplayName>
    <References>
      <Reference ReferenceType="HasTypeDefinition">i=68</Reference>
      <Reference ReferenceType="HasModellingRule">i=80</Reference>
      <Reference ReferenceType="HasProperty" IsForward="false">ns=1;i=1000</Reference>
    </References>
  </UAVariable>
  <UAObject NodeId="ns=1;i=1002" BrowseName="1:Motor" ParentNodeId="ns=1;i=1000">
    <DisplayName>Motor</DisplayName>
    <References>
      <Reference ReferenceType="HasTypeDefinition">i=58</Reference>
      <Reference ReferenceType="HasModellingRule">i=78</Reference>
      <Reference ReferenceType="HasComponent" IsForward="false">ns=1;i=1000</Reference>
    </References>
  </UAObject>
`

// DependentB is namespace B, requiring namespace A, with a subtype of
// A's PumpType.
func DependentB() []byte {
	return Doc(NamespaceB, "1.0.0", Date2023, []string{NamespaceB, NamespaceA},
		[]Required{{URI: NamespaceA, Version: "1.0.0", Date: Date2023}}, dependentBody)
}

const dependentBody = `  <UAObjectType NodeId="ns=1;i=2000" BrowseName="1:ValvePumpType">
    <DisplayName>ValvePumpType</DisplayName>
    <References>
      <Reference ReferenceType="HasSubtype" IsForward="false">ns=2;i=1000</Reference>
    </References>
  </UAObjectType>
`

// Requiring returns a document for uri that requires each of deps and
// declares a single ObjectType.
func Requiring(uri string, deps ...string) []byte {
	required := make([]Required, 0, len(deps))
	for _, d := range deps {
		required = append(required, Required{URI: d, Version: "1.0.0", Date: Date2023})
	}
	body := `  <UAObjectType NodeId="ns=1;i=1" BrowseName="1:Thing">
    <References>
      <Reference ReferenceType="HasSubtype" IsForward="false">i=58</Reference>
    </References>
  </UAObjectType>
`
	return Doc(uri, "1.0.0", Date2023, []string{uri}, required, body)
}

// Recursive declares a structure with a field typed as itself, declared
// after the ObjectType that uses it.
func Recursive() []byte {
	return Doc(NamespaceDict, "1.0.0", Date2023, []string{NamespaceDict}, nil, recursiveBody)
}

const recursiveBody = `  <UAObjectType NodeId="ns=1;i=3500" BrowseName="1:DictionaryType">
    <References>
      <Reference ReferenceType="HasSubtype" IsForward="false">i=58</Reference>
      <Reference ReferenceType="HasProperty">ns=1;i=3501</Reference>
    </References>
  </UAObjectType>
  <UAVariable NodeId="ns=1;i=3501" BrowseName="1:Root" ParentNodeId="ns=1;i=3500" DataType="ns=1;i=3000">
    <References>
      <Reference ReferenceType="HasTypeDefinition">i=68</Reference>
      <Reference ReferenceType="HasModellingRule">i=78</Reference>
      <Reference ReferenceType="HasProperty" IsForward="false">ns=1;i=3500</Reference>
    </References>
  </UAVariable>
  <UADataType NodeId="ns=1;i=3000" BrowseName="1:DictionaryEntryType">
    <DisplayName>DictionaryEntryType</DisplayName>
    <References>
      <Reference ReferenceType="HasSubtype" IsForward="false">i=22</Reference>
    </References>
    <Definition Name="1:DictionaryEntryType">
      <Field Name="Key" DataType="String" />
      <Field Name="Children" DataType="ns=1;i=3000" ValueRank="1" IsOptional="true" />
    </Definition>
  </UADataType>
`

// Rich exercises every projector rule: structures, enumerations, numeric
// data types, variable types with nested variables, interfaces, methods,
// engineering units, instances and one unmapped variable (ns=1;i=3402).
func Rich() []byte {
	return Doc(NamespaceRich, "2.0.0", Date2024, []string{NamespaceRich}, nil, richBody)
}

const richBody = `  <UADataType NodeId="ns=1;i=3001" BrowseName="1:ColorEnum">
    <References>
      <Reference ReferenceType="HasSubtype" IsForward="false">i=29</Reference>
    </References>
    <Definition Name="1:ColorEnum">
      <Field Name="Red" Value="0" />
      <Field Name="Green" Value="1" />
    </Definition>
  </UADataType>
  <UADataType NodeId="ns=1;i=3002" BrowseName="1:Percent">
    <References>
      <Reference ReferenceType="HasSubtype" IsForward="false">i=11</Reference>
    </References>
  </UADataType>
  <UAVariableType NodeId="ns=1;i=3100" BrowseName="1:RangeVariableType" DataType="Double">
    <References>
      <Reference ReferenceType="HasSubtype" IsForward="false">i=63</Reference>
      <Reference ReferenceType="HasComponent">ns=1;i=3101</Reference>
      <Reference ReferenceType="HasComponent">ns=1;i=3102</Reference>
    </References>
  </UAVariableType>
  <UAVariable NodeId="ns=1;i=3101" BrowseName="1:Low" ParentNodeId="ns=1;i=3100" DataType="Double">
    <References>
      <Reference ReferenceType="HasTypeDefinition">i=63</Reference>
      <Reference ReferenceType="HasModellingRule">i=78</Reference>
    </References>
  </UAVariable>
  <UAVariable NodeId="ns=1;i=3102" BrowseName="1:High" ParentNodeId="ns=1;i=3100" DataType="Double">
    <References>
      <Reference ReferenceType="HasTypeDefinition">i=63</Reference>
      <Reference ReferenceType="HasModellingRule">i=78</Reference>
    </References>
  </UAVariable>
  <UAObjectType NodeId="ns=1;i=3200" BrowseName="1:IMaintainable" IsAbstract="true">
    <References>
      <Reference ReferenceType="HasSubtype" IsForward="false">i=17602</Reference>
      <Reference ReferenceType="HasProperty">ns=1;i=3201</Reference>
    </References>
  </UAObjectType>
  <UAVariable NodeId="ns=1;i=3201" BrowseName="1:LastService" ParentNodeId="ns=1;i=3200" DataType="DateTime">
    <References>
      <Reference ReferenceType="HasTypeDefinition">i=68</Reference>
      <Reference ReferenceType="HasModellingRule">i=78</Reference>
    </References>
  </UAVariable>
  <UAObjectType NodeId="ns=1;i=3300" BrowseName="1:TankType">
    <References>
      <Reference ReferenceType="HasSubtype" IsForward="false">i=58</Reference>
      <Reference ReferenceType="HasInterface">ns=1;i=3200</Reference>
      <Reference ReferenceType="HasComponent">ns=1;i=3301</Reference>
      <Reference ReferenceType="HasProperty">ns=1;i=3305</Reference>
      <Reference ReferenceType="HasComponent">ns=1;i=3306</Reference>
      <Reference ReferenceType="HasComponent">ns=1;i=3307</Reference>
    </References>
  </UAObjectType>
  <UAVariable NodeId="ns=1;i=3301" BrowseName="1:Level" ParentNodeId="ns=1;i=3300" DataType="ns=1;i=3002">
    <References>
      <Reference ReferenceType="HasTypeDefinition">ns=1;i=3100</Reference>
      <Reference ReferenceType="HasModellingRule">i=78</Reference>
      <Reference ReferenceType="HasComponent">ns=1;i=3302</Reference>
      <Reference ReferenceType="HasComponent">ns=1;i=3303</Reference>
      <Reference ReferenceType="HasProperty">ns=1;i=3304</Reference>
    </References>
  </UAVariable>
  <UAVariable NodeId="ns=1;i=3302" BrowseName="1:Low" ParentNodeId="ns=1;i=3301" DataType="Double">
    <References>
      <Reference ReferenceType="HasTypeDefinition">i=63</Reference>
    </References>
  </UAVariable>
  <UAVariable NodeId="ns=1;i=3303" BrowseName="1:High" ParentNodeId="ns=1;i=3301" DataType="Double">
    <References>
      <Reference ReferenceType="HasTypeDefinition">i=63</Reference>
    </References>
  </UAVariable>
  <UAVariable NodeId="ns=1;i=3304" BrowseName="EngineeringUnits" ParentNodeId="ns=1;i=3301" DataType="EUInformation">
    <References>
      <Reference ReferenceType="HasTypeDefinition">i=68</Reference>
    </References>
    <Value>
      <uax:ExtensionObject>
        <uax:TypeId><uax:Identifier>i=888</uax:Identifier></uax:TypeId>
        <uax:Body>
          <uax:EUInformation>
            <uax:NamespaceUri>http://www.opcfoundation.org/UA/units/un/cefact</uax:NamespaceUri>
            <uax:UnitId>20529</uax:UnitId>
            <uax:DisplayName><uax:Locale>en</uax:Locale><uax:Text>%</uax:Text></uax:DisplayName>
            <uax:Description><uax:Locale>en</uax:Locale><uax:Text>percent</uax:Text></uax:Description>
          </uax:EUInformation>
        </uax:Body>
      </uax:ExtensionObject>
    </Value>
  </UAVariable>
  <UAVariable NodeId="ns=1;i=3305" BrowseName="1:Color" ParentNodeId="ns=1;i=3300" DataType="ns=1;i=3001">
    <References>
      <Reference ReferenceType="HasTypeDefinition">i=68</Reference>
      <Reference ReferenceType="HasModellingRule">i=80</Reference>
    </References>
  </UAVariable>
  <UAObject NodeId="ns=1;i=3306" BrowseName="1:Inlet" ParentNodeId="ns=1;i=3300">
    <References>
      <Reference ReferenceType="HasTypeDefinition">i=58</Reference>
      <Reference ReferenceType="HasModellingRule">i=78</Reference>
    </References>
  </UAObject>
  <UAMethod NodeId="ns=1;i=3307" BrowseName="1:Drain" ParentNodeId="ns=1;i=3300">
    <References>
      <Reference ReferenceType="HasModellingRule">i=80</Reference>
    </References>
  </UAMethod>
  <UAObject NodeId="ns=1;i=3400" BrowseName="1:Tank1">
    <References>
      <Reference ReferenceType="HasTypeDefinition">ns=1;i=3300</Reference>
      <Reference ReferenceType="Organizes" IsForward="false">i=85</Reference>
      <Reference ReferenceType="HasComponent">ns=1;i=3401</Reference>
    </References>
  </UAObject>
  <UAVariable NodeId="ns=1;i=3401" BrowseName="1:Temperature" ParentNodeId="ns=1;i=3400" DataType="Double">
    <References>
      <Reference ReferenceType="HasTypeDefinition">i=63</Reference>
      <Reference ReferenceType="HasComponent">ns=1;i=3402</Reference>
    </References>
  </UAVariable>
  <UAVariable NodeId="ns=1;i=3402" BrowseName="1:Stray" ParentNodeId="ns=1;i=3401" DataType="Double">
    <References>
      <Reference ReferenceType="HasTypeDefinition">i=63</Reference>
    </References>
  </UAVariable>
`

// Core is a minimal core namespace document so tests can exercise the
// global cache scope and the lazy core export path. It carries a
// self-closing <Value/> element.
func Core() []byte {
	body := `  <UAObjectType NodeId="i=58" BrowseName="BaseObjectType">
    <DisplayName>BaseObjectType</DisplayName>
  </UAObjectType>
  <UAVariable NodeId="i=2255" BrowseName="NamespaceArray" DataType="String" ValueRank="1">
    <References>
      <Reference ReferenceType="HasTypeDefinition">i=68</Reference>
    </References>
    <Value/>
  </UAVariable>
`
	return Doc("http://opcfoundation.org/UA/", "1.05.02", "2022-11-01T00:00:00Z", nil, nil, body)
}
