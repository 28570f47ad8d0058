package pptx

import (
	"bytes"
	"fmt"
	"sort"
	"strings"
)

// node is an element parsed from a slide part, holding byte offsets into
// the part's raw content rather than decoded values. Edits are expressed
// as splices against those offsets, so bytes outside an edit are carried
// through unchanged.
type node struct {
	name       string // prefixed name, e.g. "a:t"
	local      string // local name without prefix, e.g. "t"
	start      int    // offset of '<'
	end        int    // offset just past the closing '>' of the element
	openEnd    int    // offset just past the '>' of the open tag
	innerStart int    // content start (== openEnd)
	innerEnd   int    // content end (offset of '</'); innerStart for self-closing
	selfClose  bool
	children   []*node
}

// parsePart parses an XML part into an element tree. It is not a general
// XML parser: it assumes the well-formed output of presentation software,
// which is all this package ever reads.
func parsePart(data []byte) (*node, error) {
	root := &node{local: "", innerStart: 0, innerEnd: len(data)}
	stack := []*node{root}

	pos := 0
	for pos < len(data) {
		lt := bytes.IndexByte(data[pos:], '<')
		if lt < 0 {
			break
		}
		pos += lt

		switch {
		case bytes.HasPrefix(data[pos:], []byte("<?")):
			end := bytes.Index(data[pos:], []byte("?>"))
			if end < 0 {
				return nil, fmt.Errorf("unterminated processing instruction at offset %d", pos)
			}
			pos += end + 2

		case bytes.HasPrefix(data[pos:], []byte("<!--")):
			end := bytes.Index(data[pos:], []byte("-->"))
			if end < 0 {
				return nil, fmt.Errorf("unterminated comment at offset %d", pos)
			}
			pos += end + 3

		case bytes.HasPrefix(data[pos:], []byte("<!")):
			end := bytes.IndexByte(data[pos:], '>')
			if end < 0 {
				return nil, fmt.Errorf("unterminated declaration at offset %d", pos)
			}
			pos += end + 1

		case bytes.HasPrefix(data[pos:], []byte("</")):
			end := bytes.IndexByte(data[pos:], '>')
			if end < 0 {
				return nil, fmt.Errorf("unterminated close tag at offset %d", pos)
			}
			if len(stack) < 2 {
				return nil, fmt.Errorf("unbalanced close tag at offset %d", pos)
			}
			top := stack[len(stack)-1]
			top.innerEnd = pos
			top.end = pos + end + 1
			stack = stack[:len(stack)-1]
			pos += end + 1

		default:
			gt, selfClose, err := scanOpenTag(data, pos)
			if err != nil {
				return nil, err
			}
			name := tagName(data[pos+1 : gt])
			n := &node{
				name:    name,
				local:   localName(name),
				start:   pos,
				openEnd: gt + 1,
			}
			n.innerStart = n.openEnd
			parent := stack[len(stack)-1]
			parent.children = append(parent.children, n)
			if selfClose {
				n.selfClose = true
				n.innerEnd = n.openEnd
				n.end = n.openEnd
			} else {
				stack = append(stack, n)
			}
			pos = gt + 1
		}
	}

	if len(stack) != 1 {
		return nil, fmt.Errorf("unclosed element <%s>", stack[len(stack)-1].name)
	}
	return root, nil
}

// scanOpenTag finds the terminating '>' of an open tag starting at pos,
// honoring quoted attribute values. It returns the offset of the '>'.
func scanOpenTag(data []byte, pos int) (gt int, selfClose bool, err error) {
	var quote byte
	for i := pos + 1; i < len(data); i++ {
		c := data[i]
		if quote != 0 {
			if c == quote {
				quote = 0
			}
			continue
		}
		switch c {
		case '"', '\'':
			quote = c
		case '>':
			return i, data[i-1] == '/', nil
		}
	}
	return 0, false, fmt.Errorf("unterminated tag at offset %d", pos)
}

func tagName(tag []byte) string {
	for i, c := range tag {
		if c == ' ' || c == '\t' || c == '\r' || c == '\n' || c == '/' {
			return string(tag[:i])
		}
	}
	return string(tag)
}

func localName(name string) string {
	if i := strings.IndexByte(name, ':'); i >= 0 {
		return name[i+1:]
	}
	return name
}

// find returns all descendants with the given local name, in document order.
func (n *node) find(local string) []*node {
	var out []*node
	n.walk(func(c *node) bool {
		if c.local == local {
			out = append(out, c)
		}
		return true
	})
	return out
}

// findShallow returns descendants with the given local name without
// descending into matches, so nested structures (tables inside table
// cells, groups inside groups) yield only the outermost elements.
func (n *node) findShallow(local string) []*node {
	var out []*node
	n.walk(func(c *node) bool {
		if c.local == local {
			out = append(out, c)
			return false
		}
		return true
	})
	return out
}

func (n *node) firstChild(local string) *node {
	for _, c := range n.children {
		if c.local == local {
			return c
		}
	}
	return nil
}

// first returns the first descendant with the given local name.
func (n *node) first(local string) *node {
	var found *node
	n.walk(func(c *node) bool {
		if found != nil {
			return false
		}
		if c.local == local {
			found = c
			return false
		}
		return true
	})
	return found
}

func (n *node) walk(visit func(*node) bool) {
	for _, c := range n.children {
		if visit(c) {
			c.walk(visit)
		}
	}
}

// attr returns the unescaped value of the named attribute. The name is
// matched on its local part, so attr("embed") finds r:embed.
func (n *node) attr(data []byte, local string) (string, bool) {
	start, end, ok := n.attrSpan(data, local)
	if !ok {
		return "", false
	}
	return unescapeText(string(data[start:end])), true
}

// attrSpan returns the byte span of the named attribute's value,
// excluding quotes.
func (n *node) attrSpan(data []byte, local string) (start, end int, ok bool) {
	region := data[n.start+1+len(n.name) : n.openEnd-1]
	base := n.start + 1 + len(n.name)

	i := 0
	for i < len(region) {
		for i < len(region) && isXMLSpace(region[i]) {
			i++
		}
		if i >= len(region) || region[i] == '/' {
			break
		}
		nameStart := i
		for i < len(region) && region[i] != '=' && !isXMLSpace(region[i]) {
			i++
		}
		name := string(region[nameStart:i])
		for i < len(region) && isXMLSpace(region[i]) {
			i++
		}
		if i >= len(region) || region[i] != '=' {
			continue // attribute without value; not produced by OOXML writers
		}
		i++
		for i < len(region) && isXMLSpace(region[i]) {
			i++
		}
		if i >= len(region) || (region[i] != '"' && region[i] != '\'') {
			return 0, 0, false
		}
		quote := region[i]
		i++
		valStart := i
		for i < len(region) && region[i] != quote {
			i++
		}
		if i >= len(region) {
			return 0, 0, false
		}
		if localName(name) == local {
			return base + valStart, base + i, true
		}
		i++
	}
	return 0, 0, false
}

func isXMLSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\r' || c == '\n'
}

// inner returns the raw (still escaped) content of the element.
func (n *node) inner(data []byte) []byte {
	return data[n.innerStart:n.innerEnd]
}

// text returns the unescaped content of the element.
func (n *node) text(data []byte) string {
	return unescapeText(string(n.inner(data)))
}

// splice is a byte-range replacement against a part's raw content.
type splice struct {
	start, end int
	text       []byte
}

// applySplices rebuilds the part with all splices applied. Splices must
// not overlap.
func applySplices(data []byte, splices []splice) ([]byte, error) {
	if len(splices) == 0 {
		return data, nil
	}
	sort.Slice(splices, func(i, j int) bool { return splices[i].start < splices[j].start })

	var out bytes.Buffer
	out.Grow(len(data))
	pos := 0
	for _, s := range splices {
		if s.start < pos || s.end > len(data) || s.start > s.end {
			return nil, fmt.Errorf("overlapping edit at offset %d", s.start)
		}
		out.Write(data[pos:s.start])
		out.Write(s.text)
		pos = s.end
	}
	out.Write(data[pos:])
	return out.Bytes(), nil
}

// escapeText escapes a replacement string for insertion into element
// content.
func escapeText(s string) []byte {
	var buf bytes.Buffer
	for _, r := range s {
		switch r {
		case '&':
			buf.WriteString("&amp;")
		case '<':
			buf.WriteString("&lt;")
		case '>':
			buf.WriteString("&gt;")
		case '"':
			buf.WriteString("&quot;")
		default:
			buf.WriteRune(r)
		}
	}
	return buf.Bytes()
}

// unescapeText resolves the predefined XML entities and decimal/hex
// character references that presentation writers emit.
func unescapeText(s string) string {
	if !strings.ContainsRune(s, '&') {
		return s
	}
	var buf strings.Builder
	buf.Grow(len(s))
	for i := 0; i < len(s); {
		if s[i] != '&' {
			buf.WriteByte(s[i])
			i++
			continue
		}
		semi := strings.IndexByte(s[i:], ';')
		if semi < 0 {
			buf.WriteString(s[i:])
			break
		}
		ref := s[i+1 : i+semi]
		switch {
		case ref == "amp":
			buf.WriteByte('&')
		case ref == "lt":
			buf.WriteByte('<')
		case ref == "gt":
			buf.WriteByte('>')
		case ref == "quot":
			buf.WriteByte('"')
		case ref == "apos":
			buf.WriteByte('\'')
		case strings.HasPrefix(ref, "#"):
			var r rune
			var err error
			if strings.HasPrefix(ref, "#x") || strings.HasPrefix(ref, "#X") {
				_, err = fmt.Sscanf(ref[2:], "%x", &r)
			} else {
				_, err = fmt.Sscanf(ref[1:], "%d", &r)
			}
			if err != nil {
				buf.WriteString(s[i : i+semi+1])
			} else {
				buf.WriteRune(r)
			}
		default:
			buf.WriteString(s[i : i+semi+1])
		}
		i += semi + 1
	}
	return buf.String()
}
