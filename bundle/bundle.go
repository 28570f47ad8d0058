// Package bundle defines the per-slide replacement data supplied by the
// caller and loads it from YAML or JSON files.
package bundle

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// Bundle maps slide titles to their replacement data. Lookup is by
// exact title match; slides without an entry are left untouched.
type Bundle map[string]SlideData

// SlideData carries the three optional substitution inputs for one
// slide. Table and image keys are zero-based indices as strings, or
// shape names for lookup by name.
type SlideData struct {
	Text   map[string]string    `yaml:"text,omitempty"`
	Tables map[string]TableData `yaml:"tables,omitempty"`
	Images map[string]string    `yaml:"images,omitempty"`
}

// TableData is the replacement content for one table. Identifier, when
// set, selects a table by a substring of its current cell text instead
// of by index.
type TableData struct {
	Identifier string     `yaml:"identifier,omitempty"`
	Data       [][]string `yaml:"data"`
}

// Load reads a bundle from a YAML (or JSON) file. Malformed nested
// data fails fast with a descriptive error.
func Load(filename string) (Bundle, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("reading bundle file: %w", err)
	}
	b, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("bundle file %s: %w", filename, err)
	}
	return b, nil
}

// Parse decodes a bundle, rejecting unknown fields so a misspelled or
// misplaced key is an error rather than a silently dropped entry.
func Parse(data []byte) (Bundle, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var b Bundle
	if err := dec.Decode(&b); err != nil {
		if err == io.EOF {
			return Bundle{}, nil
		}
		return nil, fmt.Errorf("malformed replacement data: %w", err)
	}
	return b, nil
}

// Titles returns the bundle's slide titles in sorted order, for
// deterministic application.
func (b Bundle) Titles() []string {
	titles := make([]string, 0, len(b))
	for title := range b {
		titles = append(titles, title)
	}
	sort.Strings(titles)
	return titles
}

// SortedKeys returns a string-keyed map's keys in sorted order.
func SortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
