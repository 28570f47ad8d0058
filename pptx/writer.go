package pptx

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"os"
	"sort"
)

// Save writes the filled presentation to the given path. The source
// template is never modified.
func (t *Template) Save(filename string) error {
	f, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("creating output: %w", err)
	}
	if err := t.WriteTo(f); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("writing output: %w", err)
	}
	return nil
}

// WriteTo assembles the output package. Unmodified parts are copied
// verbatim from the source archive (compressed bytes included); mutated
// slide and relationship parts are swapped in, and new media parts are
// appended.
func (t *Template) WriteTo(w io.Writer) error {
	if err := t.registerContentTypes(); err != nil {
		return err
	}

	zw := zip.NewWriter(w)

	written := make(map[string]bool)
	for _, f := range t.zipReader.File {
		written[f.Name] = true
		if data, ok := t.changed[f.Name]; ok {
			fw, err := zw.Create(f.Name)
			if err != nil {
				return fmt.Errorf("creating %s: %w", f.Name, err)
			}
			if _, err := fw.Write(data); err != nil {
				return fmt.Errorf("writing %s: %w", f.Name, err)
			}
			continue
		}
		if err := zw.Copy(f); err != nil {
			return fmt.Errorf("copying %s: %w", f.Name, err)
		}
	}

	// Rels parts created for slides that had none.
	names := make([]string, 0)
	for name := range t.changed {
		if !written[name] {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	for _, name := range names {
		fw, err := zw.Create(name)
		if err != nil {
			return fmt.Errorf("creating %s: %w", name, err)
		}
		if _, err := fw.Write(t.changed[name]); err != nil {
			return fmt.Errorf("writing %s: %w", name, err)
		}
	}

	for _, m := range t.newMedia {
		fw, err := zw.Create(m.name)
		if err != nil {
			return fmt.Errorf("creating %s: %w", m.name, err)
		}
		if _, err := fw.Write(m.data); err != nil {
			return fmt.Errorf("writing %s: %w", m.name, err)
		}
	}

	if err := zw.Close(); err != nil {
		return fmt.Errorf("closing output archive: %w", err)
	}
	return nil
}

// registerContentTypes adds Default entries to [Content_Types].xml for
// the extensions of newly added media, leaving the part untouched when
// every extension is already registered.
func (t *Template) registerContentTypes() error {
	if len(t.newExts) == 0 {
		return nil
	}

	data, err := t.getPart("[Content_Types].xml")
	if err != nil {
		return fmt.Errorf("reading content types: %w", err)
	}

	var types contentTypesXML
	if err := xml.Unmarshal(data, &types); err != nil {
		return fmt.Errorf("parsing content types: %w", err)
	}

	registered := make(map[string]bool)
	for _, def := range types.Defaults {
		registered[def.Extension] = true
	}

	exts := make([]string, 0, len(t.newExts))
	for ext := range t.newExts {
		if !registered[ext] {
			exts = append(exts, ext)
		}
	}
	if len(exts) == 0 {
		return nil
	}
	sort.Strings(exts)

	var entries bytes.Buffer
	for _, ext := range exts {
		fmt.Fprintf(&entries, `<Default Extension=%q ContentType=%q/>`, ext, t.newExts[ext])
	}

	closeIdx := bytes.LastIndex(data, []byte("</Types>"))
	if closeIdx < 0 {
		return fmt.Errorf("malformed [Content_Types].xml")
	}
	updated, err := applySplices(data, []splice{{start: closeIdx, end: closeIdx, text: entries.Bytes()}})
	if err != nil {
		return err
	}
	t.changed["[Content_Types].xml"] = updated
	return nil
}
