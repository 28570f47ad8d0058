package pptx

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"os"
	"path"
	"sort"
	"strconv"
	"strings"
)

// Default slide box used when a placeholder inherits its geometry from
// the layout: 10" x 7.5" in EMUs.
const (
	defaultSlideCx = 9144000
	defaultSlideCy = 6858000
)

// Template is a PPTX presentation held in memory for mutation. The source
// file is read once at open time and never touched again; parts that are
// not mutated round-trip byte-identically into the output.
type Template struct {
	source    []byte
	zipReader *zip.Reader
	slides    []*Slide

	slideCx, slideCy int64

	changed      map[string][]byte // part name -> rewritten content
	newMedia     []mediaPart       // media parts appended to the package
	mediaByPath  map[string]string // source image path -> media part name
	newExts      map[string]string // extension -> content type to register
	nextMediaNum int
}

type mediaPart struct {
	name string
	data []byte
}

// OpenTemplate opens a PPTX file as a template. The file is held open
// only for the duration of the load.
func OpenTemplate(filename string) (*Template, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("reading template: %w", err)
	}
	return NewTemplate(data)
}

// NewTemplate parses an in-memory PPTX file as a template.
func NewTemplate(data []byte) (*Template, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("opening ZIP archive: %w", err)
	}

	t := &Template{
		source:      data,
		zipReader:   zr,
		changed:     make(map[string][]byte),
		mediaByPath: make(map[string]string),
		newExts:     make(map[string]string),
		slideCx:     defaultSlideCx,
		slideCy:     defaultSlideCy,
	}

	if err := t.validate(); err != nil {
		return nil, err
	}

	if err := t.parsePresentation(); err != nil {
		return nil, fmt.Errorf("parsing presentation: %w", err)
	}

	if err := t.parseSlides(); err != nil {
		return nil, fmt.Errorf("parsing slides: %w", err)
	}

	t.nextMediaNum = t.maxMediaNumber() + 1

	return t, nil
}

// validate checks that required PPTX files exist.
func (t *Template) validate() error {
	required := []string{
		"[Content_Types].xml",
		"ppt/presentation.xml",
	}

	fileMap := make(map[string]bool)
	for _, f := range t.zipReader.File {
		fileMap[f.Name] = true
	}

	for _, name := range required {
		if !fileMap[name] {
			return fmt.Errorf("missing required file: %s", name)
		}
	}

	hasSlide := false
	for name := range fileMap {
		if isSlidePart(name) {
			hasSlide = true
			break
		}
	}
	if !hasSlide {
		return fmt.Errorf("no slides found in presentation")
	}

	return nil
}

func isSlidePart(name string) bool {
	return strings.HasPrefix(name, "ppt/slides/slide") &&
		strings.HasSuffix(name, ".xml") &&
		!strings.Contains(name, "_rels")
}

// getPart reads the current content of a package part, preferring
// mutated content over the source archive.
func (t *Template) getPart(name string) ([]byte, error) {
	if data, ok := t.changed[name]; ok {
		return data, nil
	}
	for _, f := range t.zipReader.File {
		if f.Name == name {
			rc, err := f.Open()
			if err != nil {
				return nil, err
			}
			defer rc.Close()
			return io.ReadAll(rc)
		}
	}
	return nil, fmt.Errorf("file not found: %s", name)
}

func (t *Template) hasPart(name string) bool {
	if _, ok := t.changed[name]; ok {
		return true
	}
	for _, f := range t.zipReader.File {
		if f.Name == name {
			return true
		}
	}
	return false
}

// parsePresentation reads the slide size from ppt/presentation.xml.
func (t *Template) parsePresentation() error {
	data, err := t.getPart("ppt/presentation.xml")
	if err != nil {
		return err
	}

	var pres presentationXML
	if err := xml.Unmarshal(data, &pres); err != nil {
		return err
	}
	if pres.SlideSz != nil && pres.SlideSz.Cx > 0 && pres.SlideSz.Cy > 0 {
		t.slideCx = pres.SlideSz.Cx
		t.slideCy = pres.SlideSz.Cy
	}
	return nil
}

// parseSlides parses all slide parts in presentation order.
func (t *Template) parseSlides() error {
	slideFiles := make([]string, 0)
	for _, f := range t.zipReader.File {
		if isSlidePart(f.Name) {
			slideFiles = append(slideFiles, f.Name)
		}
	}

	sort.Slice(slideFiles, func(i, j int) bool {
		return extractSlideNumber(slideFiles[i]) < extractSlideNumber(slideFiles[j])
	})

	t.slides = make([]*Slide, 0, len(slideFiles))

	for i, slidePath := range slideFiles {
		data, err := t.getPart(slidePath)
		if err != nil {
			return fmt.Errorf("reading %s: %w", slidePath, err)
		}

		root, err := parsePart(data)
		if err != nil {
			return fmt.Errorf("parsing %s: %w", slidePath, err)
		}

		slide := &Slide{
			t:        t,
			Index:    i,
			PartName: slidePath,
			Title:    extractTitle(root, data),
			data:     data,
			root:     root,
		}
		t.slides = append(t.slides, slide)
	}

	if len(t.slides) == 0 {
		return fmt.Errorf("no slides could be parsed")
	}

	return nil
}

// extractSlideNumber extracts the slide number from a path like
// "ppt/slides/slide1.xml".
func extractSlideNumber(path string) int {
	name := strings.TrimPrefix(path, "ppt/slides/slide")
	name = strings.TrimSuffix(name, ".xml")
	var num int
	fmt.Sscanf(name, "%d", &num)
	return num
}

// extractTitle returns the text of the slide's title placeholder, or ""
// when the slide has none.
func extractTitle(root *node, data []byte) string {
	for _, sp := range root.find("sp") {
		ph := placeholderOf(sp)
		if ph == nil {
			continue
		}
		phType, _ := ph.attr(data, "type")
		if phType == "title" || phType == "ctrTitle" {
			return shapeText(sp, data)
		}
	}
	return ""
}

// placeholderOf returns the a:ph element of a shape's non-visual
// properties, or nil when the shape is not a placeholder.
func placeholderOf(sp *node) *node {
	nv := sp.firstChild("nvSpPr")
	if nv == nil {
		return nil
	}
	nvPr := nv.firstChild("nvPr")
	if nvPr == nil {
		return nil
	}
	return nvPr.firstChild("ph")
}

// shapeText concatenates a shape's run text, joining paragraphs with
// newlines the way presentation software reports shape text.
func shapeText(sp *node, data []byte) string {
	body := sp.firstChild("txBody")
	if body == nil {
		return ""
	}
	var parts []string
	for _, p := range body.children {
		if p.local != "p" {
			continue
		}
		var text strings.Builder
		for _, r := range p.children {
			if r.local != "r" {
				continue
			}
			if tn := r.firstChild("t"); tn != nil {
				text.WriteString(tn.text(data))
			}
		}
		parts = append(parts, text.String())
	}
	return strings.TrimSpace(strings.Join(parts, "\n"))
}

// SlideCount returns the number of slides.
func (t *Template) SlideCount() int {
	return len(t.slides)
}

// Slides returns all slides in presentation order.
func (t *Template) Slides() []*Slide {
	return t.slides
}

// SlideByTitle returns the slide whose title matches exactly. When
// several slides share a title the last one wins, matching the
// behavior of building a title map in slide order.
func (t *Template) SlideByTitle(title string) (*Slide, bool) {
	var found *Slide
	for _, s := range t.slides {
		if s.Title == title {
			found = s
		}
	}
	return found, found != nil
}

// Titles returns the titles of all slides in order. Untitled slides
// contribute an empty string.
func (t *Template) Titles() []string {
	titles := make([]string, len(t.slides))
	for i, s := range t.slides {
		titles[i] = s.Title
	}
	return titles
}

// maxMediaNumber scans the package for ppt/media/imageN.* names and
// returns the highest N found.
func (t *Template) maxMediaNumber() int {
	max := 0
	for _, f := range t.zipReader.File {
		base := path.Base(f.Name)
		if !strings.HasPrefix(f.Name, "ppt/media/image") {
			continue
		}
		numStr := strings.TrimPrefix(base, "image")
		if i := strings.IndexByte(numStr, '.'); i > 0 {
			numStr = numStr[:i]
		}
		if n, err := strconv.Atoi(numStr); err == nil && n > max {
			max = n
		}
	}
	return max
}

// addImage registers an image as a new media part and relates it to the
// given slide, returning the relationship ID to embed. Media parts are
// shared when the same source path is used more than once.
func (t *Template) addImage(s *Slide, img *Image) (string, error) {
	mediaName, ok := t.mediaByPath[img.Path]
	if !ok {
		mediaName = fmt.Sprintf("ppt/media/image%d.%s", t.nextMediaNum, img.Ext())
		t.nextMediaNum++
		t.newMedia = append(t.newMedia, mediaPart{name: mediaName, data: img.Data})
		t.mediaByPath[img.Path] = mediaName
		t.newExts[img.Ext()] = img.ContentType()
	}

	target := "../media/" + path.Base(mediaName)
	return t.addSlideRel(s, relTypeImage, target)
}

// relsPartName returns the relationships part for a slide part.
func relsPartName(slidePart string) string {
	dir := path.Dir(slidePart)
	base := path.Base(slidePart)
	return path.Join(dir, "_rels", base+".rels")
}

// addSlideRel appends a relationship to a slide's rels part, creating
// the part when the slide has none. An existing relationship with the
// same type and target is reused.
func (t *Template) addSlideRel(s *Slide, relType, target string) (string, error) {
	relsName := relsPartName(s.PartName)

	if !t.hasPart(relsName) {
		content := `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>` + "\r\n" +
			`<Relationships xmlns="` + nsPackageRels + `"></Relationships>`
		t.changed[relsName] = []byte(content)
	}

	data, err := t.getPart(relsName)
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", relsName, err)
	}

	var rels relationshipsXML
	if err := xml.Unmarshal(data, &rels); err != nil {
		return "", fmt.Errorf("parsing %s: %w", relsName, err)
	}

	maxID := 0
	for _, rel := range rels.Relationship {
		if rel.Type == relType && rel.Target == target {
			return rel.ID, nil
		}
		if n, err := strconv.Atoi(strings.TrimPrefix(rel.ID, "rId")); err == nil && n > maxID {
			maxID = n
		}
	}

	relID := fmt.Sprintf("rId%d", maxID+1)
	entry := fmt.Sprintf(`<Relationship Id=%q Type=%q Target=%q/>`, relID, relType, target)

	closeIdx := bytes.LastIndex(data, []byte("</Relationships>"))
	if closeIdx < 0 {
		return "", fmt.Errorf("malformed relationships part %s", relsName)
	}

	updated, err := applySplices(data, []splice{{start: closeIdx, end: closeIdx, text: []byte(entry)}})
	if err != nil {
		return "", err
	}
	t.changed[relsName] = updated

	return relID, nil
}
