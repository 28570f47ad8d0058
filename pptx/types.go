// Package pptx opens PPTX (Office Open XML Presentation) templates,
// mutates slide content in place, and writes the result back out.
package pptx

import "encoding/xml"

// XML namespaces used in PPTX files.
const (
	nsRelationships = "http://schemas.openxmlformats.org/officeDocument/2006/relationships"
	nsPackageRels   = "http://schemas.openxmlformats.org/package/2006/relationships"

	relTypeImage = "http://schemas.openxmlformats.org/officeDocument/2006/relationships/image"
)

// presentationXML represents the ppt/presentation.xml file structure.
type presentationXML struct {
	XMLName xml.Name    `xml:"presentation"`
	SlideSz *slideSzXML `xml:"sldSz"`
}

type slideSzXML struct {
	Cx int64 `xml:"cx,attr"` // Width in EMUs
	Cy int64 `xml:"cy,attr"` // Height in EMUs
}

// relationshipsXML represents .rels files.
type relationshipsXML struct {
	XMLName      xml.Name          `xml:"Relationships"`
	Relationship []relationshipXML `xml:"Relationship"`
}

type relationshipXML struct {
	ID     string `xml:"Id,attr"`
	Type   string `xml:"Type,attr"`
	Target string `xml:"Target,attr"`
}

// contentTypesXML represents [Content_Types].xml.
type contentTypesXML struct {
	XMLName  xml.Name             `xml:"Types"`
	Defaults []contentDefaultXML  `xml:"Default"`
	Override []contentOverrideXML `xml:"Override"`
}

type contentDefaultXML struct {
	Extension   string `xml:"Extension,attr"`
	ContentType string `xml:"ContentType,attr"`
}

type contentOverrideXML struct {
	PartName    string `xml:"PartName,attr"`
	ContentType string `xml:"ContentType,attr"`
}
