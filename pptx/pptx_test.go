package pptx

import (
	"archive/zip"
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// writeZipFile writes a file into a zip archive.
func writeZipFile(t *testing.T, zw *zip.Writer, name, content string) {
	t.Helper()
	w, err := zw.Create(name)
	if err != nil {
		t.Fatalf("Failed to create %s in zip: %v", name, err)
	}
	if _, err := w.Write([]byte(content)); err != nil {
		t.Fatalf("Failed to write %s: %v", name, err)
	}
}

// fixtureSlide is one slide of a test presentation: its XML and an
// optional rels part.
type fixtureSlide struct {
	xml  string
	rels string
}

// buildPPTX assembles a minimal valid PPTX in memory.
func buildPPTX(t *testing.T, slides []fixtureSlide, extraParts map[string]string) []byte {
	t.Helper()

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)

	var overrides strings.Builder
	for i := range slides {
		fmt.Fprintf(&overrides,
			`  <Override PartName="/ppt/slides/slide%d.xml" ContentType="application/vnd.openxmlformats-officedocument.presentationml.slide+xml"/>`+"\n", i+1)
	}

	writeZipFile(t, zw, "[Content_Types].xml", `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<Types xmlns="http://schemas.openxmlformats.org/package/2006/content-types">
  <Default Extension="rels" ContentType="application/vnd.openxmlformats-package.relationships+xml"/>
  <Default Extension="xml" ContentType="application/xml"/>
  <Default Extension="png" ContentType="image/png"/>
  <Override PartName="/ppt/presentation.xml" ContentType="application/vnd.openxmlformats-officedocument.presentationml.presentation.main+xml"/>
`+overrides.String()+`</Types>`)

	writeZipFile(t, zw, "_rels/.rels", `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships">
  <Relationship Id="rId1" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/officeDocument" Target="ppt/presentation.xml"/>
</Relationships>`)

	var slideRels strings.Builder
	for i := range slides {
		fmt.Fprintf(&slideRels,
			`  <Relationship Id="rId%d" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/slide" Target="slides/slide%d.xml"/>`+"\n", i+1, i+1)
	}
	writeZipFile(t, zw, "ppt/_rels/presentation.xml.rels", `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships">
`+slideRels.String()+`</Relationships>`)

	var slideIds strings.Builder
	for i := range slides {
		fmt.Fprintf(&slideIds, `    <p:sldId id="%d" r:id="rId%d"/>`+"\n", 256+i, i+1)
	}
	writeZipFile(t, zw, "ppt/presentation.xml", `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<p:presentation xmlns:p="http://schemas.openxmlformats.org/presentationml/2006/main" xmlns:r="http://schemas.openxmlformats.org/officeDocument/2006/relationships">
  <p:sldIdLst>
`+slideIds.String()+`  </p:sldIdLst>
  <p:sldSz cx="9144000" cy="6858000"/>
</p:presentation>`)

	for i, slide := range slides {
		writeZipFile(t, zw, fmt.Sprintf("ppt/slides/slide%d.xml", i+1), slide.xml)
		if slide.rels != "" {
			writeZipFile(t, zw, fmt.Sprintf("ppt/slides/_rels/slide%d.xml.rels", i+1), slide.rels)
		}
	}

	for name, content := range extraParts {
		writeZipFile(t, zw, name, content)
	}

	if err := zw.Close(); err != nil {
		t.Fatalf("Failed to close zip: %v", err)
	}
	return buf.Bytes()
}

const slideOpen = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<p:sld xmlns:p="http://schemas.openxmlformats.org/presentationml/2006/main" xmlns:a="http://schemas.openxmlformats.org/drawingml/2006/main" xmlns:r="http://schemas.openxmlformats.org/officeDocument/2006/relationships"><p:cSld><p:spTree><p:nvGrpSpPr><p:cNvPr id="1" name=""/></p:nvGrpSpPr>`

const slideClose = `</p:spTree></p:cSld></p:sld>`

// titleShape renders a title placeholder shape.
func titleShape(title string) string {
	return `<p:sp><p:nvSpPr><p:cNvPr id="2" name="Title 1"/><p:nvPr><p:ph type="title"/></p:nvPr></p:nvSpPr><p:spPr/><p:txBody><a:bodyPr/><a:p><a:r><a:t>` + title + `</a:t></a:r></a:p></p:txBody></p:sp>`
}

// bodyShape renders a plain text shape whose single paragraph is made
// of the given runs.
func bodyShape(runs ...string) string {
	var b strings.Builder
	b.WriteString(`<p:sp><p:nvSpPr><p:cNvPr id="3" name="Content 1"/><p:nvPr/></p:nvSpPr><p:spPr/><p:txBody><a:bodyPr/><a:p>`)
	for _, r := range runs {
		b.WriteString(`<a:r><a:rPr lang="en-US"/><a:t>` + r + `</a:t></a:r>`)
	}
	b.WriteString(`</a:p></p:txBody></p:sp>`)
	return b.String()
}

// tableShape renders a graphic frame carrying a table of text cells.
func tableShape(name string, rows [][]string) string {
	var b strings.Builder
	b.WriteString(`<p:graphicFrame><p:nvGraphicFramePr><p:cNvPr id="5" name="` + name + `"/></p:nvGraphicFramePr>`)
	b.WriteString(`<p:xfrm><a:off x="457200" y="1600200"/><a:ext cx="8229600" cy="1143000"/></p:xfrm>`)
	b.WriteString(`<a:graphic><a:graphicData uri="http://schemas.openxmlformats.org/drawingml/2006/table"><a:tbl><a:tblGrid>`)
	cols := 0
	if len(rows) > 0 {
		cols = len(rows[0])
	}
	for i := 0; i < cols; i++ {
		b.WriteString(`<a:gridCol w="2000000"/>`)
	}
	b.WriteString(`</a:tblGrid>`)
	for _, row := range rows {
		b.WriteString(`<a:tr h="370840">`)
		for _, cell := range row {
			if cell == "" {
				b.WriteString(`<a:tc><a:txBody><a:bodyPr/><a:p/></a:txBody><a:tcPr/></a:tc>`)
			} else {
				b.WriteString(`<a:tc><a:txBody><a:bodyPr/><a:p><a:r><a:t>` + cell + `</a:t></a:r></a:p></a:txBody><a:tcPr/></a:tc>`)
			}
		}
		b.WriteString(`</a:tr>`)
	}
	b.WriteString(`</a:tbl></a:graphicData></a:graphic></p:graphicFrame>`)
	return b.String()
}

// pictureShape renders a picture referencing an embedded image.
func pictureShape(relID string) string {
	return `<p:pic><p:nvPicPr><p:cNvPr id="7" name="Picture 1" descr="chart"/><p:cNvPicPr/><p:nvPr/></p:nvPicPr>` +
		`<p:blipFill><a:blip r:embed="` + relID + `"/><a:stretch><a:fillRect/></a:stretch></p:blipFill>` +
		`<p:spPr><a:xfrm><a:off x="1000000" y="2000000"/><a:ext cx="2000000" cy="1000000"/></a:xfrm>` +
		`<a:prstGeom prst="rect"><a:avLst/></a:prstGeom></p:spPr></p:pic>`
}

const pictureRels = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships">
  <Relationship Id="rId2" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/image" Target="../media/image1.png"/>
</Relationships>`

// writePNG writes a solid-color PNG of the given size to a temp file
// and returns its path.
func writePNG(t *testing.T, width, height int) string {
	t.Helper()

	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, color.RGBA{R: 200, A: 255})
		}
	}

	path := filepath.Join(t.TempDir(), fmt.Sprintf("img-%dx%d.png", width, height))
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("Failed to create image file: %v", err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		t.Fatalf("Failed to encode PNG: %v", err)
	}
	return path
}

// writeJPEG writes a solid-color JPEG of the given size to a temp file
// and returns its path.
func writeJPEG(t *testing.T, width, height int) string {
	t.Helper()

	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, color.RGBA{B: 200, A: 255})
		}
	}

	path := filepath.Join(t.TempDir(), fmt.Sprintf("img-%dx%d.jpg", width, height))
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("Failed to create image file: %v", err)
	}
	defer f.Close()
	if err := jpeg.Encode(f, img, nil); err != nil {
		t.Fatalf("Failed to encode JPEG: %v", err)
	}
	return path
}

// readZipPart extracts one part from a zipped package.
func readZipPart(t *testing.T, data []byte, name string) ([]byte, bool) {
	t.Helper()
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatalf("Failed to open zip: %v", err)
	}
	for _, f := range zr.File {
		if f.Name == name {
			rc, err := f.Open()
			if err != nil {
				t.Fatalf("Failed to open %s: %v", name, err)
			}
			defer rc.Close()
			var buf bytes.Buffer
			if _, err := buf.ReadFrom(rc); err != nil {
				t.Fatalf("Failed to read %s: %v", name, err)
			}
			return buf.Bytes(), true
		}
	}
	return nil, false
}
