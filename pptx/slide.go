package pptx

import (
	"fmt"
	"sort"
	"strings"
)

// Slide is one slide of a template, addressed by its title. Mutations
// operate on the raw part bytes so untouched content keeps its exact
// formatting.
type Slide struct {
	t        *Template
	Index    int    // 0-indexed slide number
	PartName string // e.g. "ppt/slides/slide1.xml"
	Title    string // text of the title placeholder, "" if none

	data    []byte
	root    *node
	changed bool
}

// Changed reports whether any substitution modified this slide.
func (s *Slide) Changed() bool {
	return s.changed
}

// mutate applies splices to the slide part and reparses it.
func (s *Slide) mutate(splices []splice) error {
	if len(splices) == 0 {
		return nil
	}
	data, err := applySplices(s.data, splices)
	if err != nil {
		return fmt.Errorf("editing %s: %w", s.PartName, err)
	}
	root, err := parsePart(data)
	if err != nil {
		return fmt.Errorf("reparsing %s: %w", s.PartName, err)
	}
	s.data = data
	s.root = root
	s.changed = true
	s.t.changed[s.PartName] = data
	return nil
}

// textBodies returns the slide's shape text bodies, excluding table
// cell text which lives inside graphic frames.
func (s *Slide) textBodies() []*node {
	frames := s.root.find("graphicFrame")
	inFrame := func(n *node) bool {
		for _, f := range frames {
			if n.start >= f.start && n.end <= f.end {
				return true
			}
		}
		return false
	}

	var out []*node
	for _, body := range s.root.find("txBody") {
		if !inFrame(body) {
			out = append(out, body)
		}
	}
	return out
}

// ReplaceText substitutes {{key}} tokens in the slide's text shapes.
// Matching is case-sensitive and literal; tokens without a mapping are
// left untouched. It returns the number of tokens replaced.
//
// Run boundaries inside a paragraph are collapsed when a token spans
// them: the paragraph's full text lands in its first run and the
// remaining runs are emptied.
func (s *Slide) ReplaceText(repl map[string]string) (int, error) {
	if len(repl) == 0 {
		return 0, nil
	}

	keys := make([]string, 0, len(repl))
	for k := range repl {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	total := 0
	var splices []splice

	for _, body := range s.textBodies() {
		for _, p := range body.children {
			if p.local != "p" {
				continue
			}

			var ts []*node
			var text strings.Builder
			for _, r := range p.children {
				if r.local != "r" {
					continue
				}
				if tn := r.firstChild("t"); tn != nil {
					ts = append(ts, tn)
					text.WriteString(tn.text(s.data))
				}
			}
			if len(ts) == 0 {
				continue
			}

			original := text.String()
			replaced := original
			for _, key := range keys {
				token := "{{" + key + "}}"
				if n := strings.Count(replaced, token); n > 0 {
					replaced = strings.ReplaceAll(replaced, token, repl[key])
					total += n
				}
			}
			if replaced == original {
				continue
			}

			splices = append(splices, setElementText(ts[0], "a:t", replaced))
			for _, tn := range ts[1:] {
				splices = append(splices, setElementText(tn, "a:t", ""))
			}
		}
	}

	if err := s.mutate(splices); err != nil {
		return 0, err
	}
	return total, nil
}

// setElementText builds a splice that replaces an element's content.
// Self-closing elements are rewritten whole, since they have no content
// span to edit.
func setElementText(n *node, name string, text string) splice {
	if n.selfClose {
		full := append([]byte("<"+name+">"), escapeText(text)...)
		full = append(full, []byte("</"+name+">")...)
		return splice{start: n.start, end: n.end, text: full}
	}
	return splice{start: n.innerStart, end: n.innerEnd, text: escapeText(text)}
}

// Text returns the slide's shape text, paragraphs joined with newlines
// and shapes separated by blank lines. Table cell text is not included.
func (s *Slide) Text() string {
	var shapes []string
	for _, body := range s.textBodies() {
		var paras []string
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
					text.WriteString(tn.text(s.data))
				}
			}
			paras = append(paras, text.String())
		}
		if block := strings.TrimSpace(strings.Join(paras, "\n")); block != "" {
			shapes = append(shapes, block)
		}
	}
	return strings.Join(shapes, "\n\n")
}

// TableText returns the cell text of the table at the given index.
func (s *Slide) TableText(index int) ([][]string, bool) {
	tables := s.tableFrames()
	if index < 0 || index >= len(tables) {
		return nil, false
	}

	var rows [][]string
	for _, tr := range tables[index].tbl.children {
		if tr.local != "tr" {
			continue
		}
		var row []string
		for _, tc := range tr.children {
			if tc.local != "tc" {
				continue
			}
			var text strings.Builder
			for _, tn := range tc.find("t") {
				text.WriteString(tn.text(s.data))
			}
			row = append(row, text.String())
		}
		rows = append(rows, row)
	}
	return rows, true
}

// tableFrame pairs a graphic frame with the table it carries.
type tableFrame struct {
	frame *node
	tbl   *node
}

func (s *Slide) tableFrames() []tableFrame {
	var out []tableFrame
	for _, frame := range s.root.find("graphicFrame") {
		if tbl := frame.first("tbl"); tbl != nil {
			out = append(out, tableFrame{frame: frame, tbl: tbl})
		}
	}
	return out
}

// TableCount returns the number of tables on the slide.
func (s *Slide) TableCount() int {
	return len(s.tableFrames())
}

// FindTableByName returns the index of the table whose graphic frame
// carries the given shape name.
func (s *Slide) FindTableByName(name string) (int, bool) {
	for i, tf := range s.tableFrames() {
		if cNvPr := tf.frame.first("cNvPr"); cNvPr != nil {
			if n, ok := cNvPr.attr(s.data, "name"); ok && n == name {
				return i, true
			}
		}
	}
	return 0, false
}

// FindTableContaining returns the index of the first table whose cell
// text contains the given substring.
func (s *Slide) FindTableContaining(substr string) (int, bool) {
	if substr == "" {
		return 0, false
	}
	for i, tf := range s.tableFrames() {
		for _, tn := range tf.tbl.find("t") {
			if strings.Contains(tn.text(s.data), substr) {
				return i, true
			}
		}
	}
	return 0, false
}

// FillTable overwrites cell text of the table at the given index,
// row-by-row and column-by-column. Data beyond the table's bounds is
// dropped; the table is never resized. It returns false when the slide
// has no table at that index.
func (s *Slide) FillTable(index int, rows [][]string) (bool, error) {
	tables := s.tableFrames()
	if index < 0 || index >= len(tables) {
		return false, nil
	}
	tbl := tables[index].tbl

	var trs []*node
	for _, c := range tbl.children {
		if c.local == "tr" {
			trs = append(trs, c)
		}
	}

	var splices []splice
	for r := 0; r < len(rows) && r < len(trs); r++ {
		var tcs []*node
		for _, c := range trs[r].children {
			if c.local == "tc" {
				tcs = append(tcs, c)
			}
		}
		row := rows[r]
		for c := 0; c < len(row) && c < len(tcs); c++ {
			splices = append(splices, cellTextSplices(tcs[c], s.data, row[c])...)
		}
	}

	if err := s.mutate(splices); err != nil {
		return false, err
	}
	return true, nil
}

// cellTextSplices builds the edits that set a table cell's text: the
// value goes into the cell's first run and any further runs are
// emptied. Cells without runs get one inserted.
func cellTextSplices(tc *node, data []byte, value string) []splice {
	body := tc.firstChild("txBody")
	if body == nil {
		return nil
	}

	var paragraphs []*node
	var ts []*node
	for _, p := range body.children {
		if p.local != "p" {
			continue
		}
		paragraphs = append(paragraphs, p)
		for _, r := range p.children {
			if r.local != "r" {
				continue
			}
			if tn := r.firstChild("t"); tn != nil {
				ts = append(ts, tn)
			}
		}
	}

	if len(ts) > 0 {
		splices := []splice{setElementText(ts[0], "a:t", value)}
		for _, tn := range ts[1:] {
			splices = append(splices, setElementText(tn, "a:t", ""))
		}
		return splices
	}

	run := append([]byte("<a:r><a:t>"), escapeText(value)...)
	run = append(run, []byte("</a:t></a:r>")...)

	if len(paragraphs) == 0 {
		para := append([]byte("<a:p>"), run...)
		para = append(para, []byte("</a:p>")...)
		return []splice{{start: body.innerEnd, end: body.innerEnd, text: para}}
	}

	p := paragraphs[0]
	if p.selfClose {
		para := append([]byte("<a:p>"), run...)
		para = append(para, []byte("</a:p>")...)
		return []splice{{start: p.start, end: p.end, text: para}}
	}

	// Runs precede endParaRPr in the paragraph schema.
	insertAt := p.innerEnd
	if end := p.firstChild("endParaRPr"); end != nil {
		insertAt = end.start
	}
	return []splice{{start: insertAt, end: insertAt, text: run}}
}

// pictures returns the slide's picture shapes in document order.
func (s *Slide) pictures() []*node {
	return s.root.find("pic")
}

// PictureCount returns the number of pictures on the slide.
func (s *Slide) PictureCount() int {
	return len(s.pictures())
}

// placeholderShapes returns the slide's placeholder shapes in document
// order.
func (s *Slide) placeholderShapes() []*node {
	var out []*node
	for _, sp := range s.root.find("sp") {
		if placeholderOf(sp) != nil {
			out = append(out, sp)
		}
	}
	return out
}

// PlaceholderCount returns the number of placeholder shapes on the
// slide.
func (s *Slide) PlaceholderCount() int {
	return len(s.placeholderShapes())
}

// FindImageShape locates a picture or placeholder shape by its shape
// name or alt text. It reports the kind ("pic" or "ph") and the index
// within that kind.
func (s *Slide) FindImageShape(name string) (string, int, bool) {
	match := func(shape *node) bool {
		cNvPr := shape.first("cNvPr")
		if cNvPr == nil {
			return false
		}
		if v, ok := cNvPr.attr(s.data, "name"); ok && v == name {
			return true
		}
		if v, ok := cNvPr.attr(s.data, "descr"); ok && v == name {
			return true
		}
		return false
	}

	for i, pic := range s.pictures() {
		if match(pic) {
			return "pic", i, true
		}
	}
	for i, sp := range s.placeholderShapes() {
		if match(sp) {
			return "ph", i, true
		}
	}
	return "", 0, false
}

// shapeBox reads a shape's offset/extent from its transform, falling
// back to the full slide when the shape inherits geometry from its
// layout.
func (s *Slide) shapeBox(shape *node) box {
	xfrm := shape.first("xfrm")
	if xfrm == nil {
		return box{x: 0, y: 0, cx: s.t.slideCx, cy: s.t.slideCy}
	}
	b := box{cx: s.t.slideCx, cy: s.t.slideCy}
	if off := xfrm.firstChild("off"); off != nil {
		b.x = attrInt64(off, s.data, "x")
		b.y = attrInt64(off, s.data, "y")
	}
	if ext := xfrm.firstChild("ext"); ext != nil {
		if cx := attrInt64(ext, s.data, "cx"); cx > 0 {
			b.cx = cx
		}
		if cy := attrInt64(ext, s.data, "cy"); cy > 0 {
			b.cy = cy
		}
	}
	return b
}

// ReplacePicture swaps the image shown by the picture at the given
// index, preserving the shape's position and aspect-fitting the new
// image inside its box.
func (s *Slide) ReplacePicture(index int, img *Image) error {
	pics := s.pictures()
	if index < 0 || index >= len(pics) {
		return fmt.Errorf("no picture at index %d on slide %d", index, s.Index)
	}
	pic := pics[index]

	blip := pic.first("blip")
	if blip == nil {
		return fmt.Errorf("picture %d on slide %d has no image fill", index, s.Index)
	}

	relID, err := s.t.addImage(s, img)
	if err != nil {
		return err
	}

	var splices []splice

	if start, end, ok := blip.attrSpan(s.data, "embed"); ok {
		splices = append(splices, splice{start: start, end: end, text: []byte(relID)})
	} else {
		return fmt.Errorf("picture %d on slide %d has no embedded image", index, s.Index)
	}

	// Re-fit the image inside the existing box, keeping aspect ratio.
	if xfrm := pic.first("xfrm"); xfrm != nil {
		fitted := fitImage(s.shapeBox(pic), img)
		if off := xfrm.firstChild("off"); off != nil {
			splices = appendAttrSplice(splices, off, s.data, "x", fitted.x)
			splices = appendAttrSplice(splices, off, s.data, "y", fitted.y)
		}
		if ext := xfrm.firstChild("ext"); ext != nil {
			splices = appendAttrSplice(splices, ext, s.data, "cx", fitted.cx)
			splices = appendAttrSplice(splices, ext, s.data, "cy", fitted.cy)
		}
	}

	return s.mutate(splices)
}

// ReplacePlaceholder replaces the placeholder shape at the given index
// with a picture occupying the placeholder's box.
func (s *Slide) ReplacePlaceholder(index int, img *Image) error {
	shapes := s.placeholderShapes()
	if index < 0 || index >= len(shapes) {
		return fmt.Errorf("no placeholder at index %d on slide %d", index, s.Index)
	}
	sp := shapes[index]

	relID, err := s.t.addImage(s, img)
	if err != nil {
		return err
	}

	shapeID := "1001"
	shapeName := fmt.Sprintf("Picture %d", index+1)
	if cNvPr := sp.first("cNvPr"); cNvPr != nil {
		if v, ok := cNvPr.attr(s.data, "id"); ok {
			shapeID = v
		}
		if v, ok := cNvPr.attr(s.data, "name"); ok && v != "" {
			shapeName = v
		}
	}

	fitted := fitImage(s.shapeBox(sp), img)
	pic := picXML(shapeID, shapeName, relID, fitted)

	splices := []splice{{start: sp.start, end: sp.end, text: pic}}
	splices = append(splices, s.ensureRelationshipNS()...)

	return s.mutate(splices)
}

// picXML renders a picture shape element referencing an embedded image.
func picXML(id, name, relID string, b box) []byte {
	return []byte(fmt.Sprintf(
		`<p:pic><p:nvPicPr><p:cNvPr id=%q name=%q/><p:cNvPicPr><a:picLocks noChangeAspect="1"/></p:cNvPicPr><p:nvPr/></p:nvPicPr>`+
			`<p:blipFill><a:blip r:embed=%q/><a:stretch><a:fillRect/></a:stretch></p:blipFill>`+
			`<p:spPr><a:xfrm><a:off x="%d" y="%d"/><a:ext cx="%d" cy="%d"/></a:xfrm>`+
			`<a:prstGeom prst="rect"><a:avLst/></a:prstGeom></p:spPr></p:pic>`,
		id, string(escapeText(name)), relID, b.x, b.y, b.cx, b.cy))
}

// ensureRelationshipNS declares the officeDocument relationships
// namespace on the slide root when it is missing, so generated r:embed
// attributes resolve.
func (s *Slide) ensureRelationshipNS() []splice {
	if len(s.root.children) == 0 {
		return nil
	}
	rootEl := s.root.children[0]
	openTag := s.data[rootEl.start:rootEl.openEnd]
	if strings.Contains(string(openTag), "xmlns:r=") {
		return nil
	}
	decl := []byte(` xmlns:r="` + nsRelationships + `"`)
	insertAt := rootEl.openEnd - 1
	if rootEl.selfClose {
		insertAt = rootEl.openEnd - 2
	}
	return []splice{{start: insertAt, end: insertAt, text: decl}}
}

func attrInt64(n *node, data []byte, name string) int64 {
	v, ok := n.attr(data, name)
	if !ok {
		return 0
	}
	var i int64
	fmt.Sscanf(v, "%d", &i)
	return i
}

func appendAttrSplice(splices []splice, n *node, data []byte, name string, value int64) []splice {
	start, end, ok := n.attrSpan(data, name)
	if !ok {
		return splices
	}
	return append(splices, splice{start: start, end: end, text: []byte(fmt.Sprintf("%d", value))})
}
