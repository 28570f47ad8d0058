// Package slidefill substitutes placeholder tokens in PPTX templates
// with caller-supplied text, table, and image data.
//
// Basic usage:
//
//	b := bundle.Bundle{
//	    "Intro": {Text: map[string]string{"name": "World"}},
//	}
//	err := slidefill.Open("template.pptx").
//	    WithBundle(b).
//	    SaveAs("out.pptx")
//
// Slides are addressed by their title. Text placeholders use the
// literal {{name}} form; tokens without a bundle value are left
// untouched, and slides without a bundle entry round-trip unchanged.
package slidefill

import (
	"go.uber.org/zap"

	"github.com/tsawler/slidefill/bundle"
	"github.com/tsawler/slidefill/pptx"
)

// Filler is a fluent handle over one fill run. Configure it with WithX
// calls and finish with Fill or SaveAs.
type Filler struct {
	filename string
	template *pptx.Template
	bundle   bundle.Bundle
	logger   *zap.Logger
	err      error
}

// Open prepares a fill run for the template at the given path. The file
// is not read until a terminal operation runs.
func Open(filename string) *Filler {
	return &Filler{filename: filename}
}

// FromTemplate prepares a fill run over an already-opened template.
func FromTemplate(t *pptx.Template) *Filler {
	return &Filler{template: t}
}

// WithBundle sets the replacement data, keyed by slide title.
func (f *Filler) WithBundle(b bundle.Bundle) *Filler {
	f.bundle = b
	return f
}

// WithBundleFile loads replacement data from a YAML or JSON file.
func (f *Filler) WithBundleFile(filename string) *Filler {
	if f.err != nil {
		return f
	}
	f.bundle, f.err = bundle.Load(filename)
	return f
}

// WithLogger attaches a logger for debug tracing of the fill passes.
func (f *Filler) WithLogger(log *zap.Logger) *Filler {
	f.logger = log
	return f
}

// Fill opens the template if needed, applies the bundle, and returns
// the mutated template for further use (e.g. WriteTo a buffer).
func (f *Filler) Fill() (*pptx.Template, error) {
	if f.err != nil {
		return nil, f.err
	}

	t := f.template
	if t == nil {
		var err error
		t, err = pptx.OpenTemplate(f.filename)
		if err != nil {
			return nil, err
		}
		f.template = t
	}

	if err := Apply(t, f.bundle, f.logger); err != nil {
		return nil, err
	}
	return t, nil
}

// SaveAs runs the fill and writes the result to the given path. Nothing
// is written when any substitution fails.
func (f *Filler) SaveAs(filename string) error {
	t, err := f.Fill()
	if err != nil {
		return err
	}
	return t.Save(filename)
}

// Fill is the one-shot form: open, apply, save.
func Fill(templatePath string, b bundle.Bundle, outputPath string) error {
	return Open(templatePath).WithBundle(b).SaveAs(outputPath)
}

// Must is a helper that wraps a call to a function returning (T, error)
// and panics if the error is non-nil. It is intended for use in scripts
// or tests where error handling would be cumbersome.
func Must[T any](val T, err error) T {
	if err != nil {
		panic(err)
	}
	return val
}
