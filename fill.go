package slidefill

import (
	"fmt"
	"strconv"

	"go.uber.org/zap"

	"github.com/tsawler/slidefill/bundle"
	"github.com/tsawler/slidefill/pptx"
)

// Apply applies a bundle to a template: for each bundled slide title,
// the text, table, and image passes run independently. Slides without a
// bundle entry are never touched. Missing keys and indices are skipped
// silently; an unreadable replacement image aborts the run.
func Apply(t *pptx.Template, b bundle.Bundle, log *zap.Logger) error {
	if log == nil {
		log = zap.NewNop()
	}

	for _, title := range b.Titles() {
		sd := b[title]

		slide, ok := t.SlideByTitle(title)
		if !ok {
			log.Warn("slide not found in template", zap.String("title", title))
			continue
		}
		log.Debug("applying data to slide",
			zap.String("title", title),
			zap.Int("slide", slide.Index))

		if len(sd.Text) > 0 {
			n, err := slide.ReplaceText(sd.Text)
			if err != nil {
				return fmt.Errorf("slide %q: %w", title, err)
			}
			log.Debug("replaced text tokens",
				zap.String("title", title),
				zap.Int("replaced", n))
		}

		if len(sd.Tables) > 0 {
			if err := applyTables(slide, sd.Tables, log); err != nil {
				return fmt.Errorf("slide %q: %w", title, err)
			}
		}

		if len(sd.Images) > 0 {
			if err := applyImages(slide, sd.Images, log); err != nil {
				return fmt.Errorf("slide %q: %w", title, err)
			}
		}
	}

	return nil
}

// applyTables fills each addressed table, clipping data to the table's
// bounds. A key that resolves to no table is skipped.
func applyTables(slide *pptx.Slide, tables map[string]bundle.TableData, log *zap.Logger) error {
	for _, key := range bundle.SortedKeys(tables) {
		td := tables[key]

		index, ok := resolveTable(slide, key, td.Identifier)
		if !ok {
			log.Debug("table not found; skipping",
				zap.String("key", key),
				zap.Int("tables", slide.TableCount()))
			continue
		}

		filled, err := slide.FillTable(index, td.Data)
		if err != nil {
			return err
		}
		if filled {
			log.Debug("filled table",
				zap.String("key", key),
				zap.Int("index", index),
				zap.Int("rows", len(td.Data)))
		}
	}
	return nil
}

// resolveTable turns a bundle key into a table index: a numeric key in
// range wins; otherwise the key is tried as a shape name, then the
// identifier as a cell-text substring.
func resolveTable(slide *pptx.Slide, key, identifier string) (int, bool) {
	if n, err := strconv.Atoi(key); err == nil && n >= 0 && n < slide.TableCount() {
		return n, true
	}
	if index, ok := slide.FindTableByName(key); ok {
		return index, true
	}
	if index, ok := slide.FindTableContaining(identifier); ok {
		return index, true
	}
	return 0, false
}

// applyImages replaces each addressed picture or placeholder. Loading
// the replacement file is fatal when it fails; an unresolved target is
// a silent skip.
func applyImages(slide *pptx.Slide, images map[string]string, log *zap.Logger) error {
	for _, key := range bundle.SortedKeys(images) {
		path := images[key]

		img, err := pptx.LoadImage(path)
		if err != nil {
			return err
		}

		if n, convErr := strconv.Atoi(key); convErr == nil {
			switch {
			case n >= 0 && n < slide.PictureCount():
				if err := slide.ReplacePicture(n, img); err != nil {
					return err
				}
				log.Debug("replaced picture", zap.String("key", key), zap.String("image", path))
			case n >= 0 && n < slide.PlaceholderCount():
				if err := slide.ReplacePlaceholder(n, img); err != nil {
					return err
				}
				log.Debug("replaced placeholder", zap.String("key", key), zap.String("image", path))
			default:
				log.Debug("image target not found; skipping", zap.String("key", key))
			}
			continue
		}

		kind, index, ok := slide.FindImageShape(key)
		if !ok {
			log.Debug("image target not found; skipping", zap.String("key", key))
			continue
		}
		switch kind {
		case "pic":
			err = slide.ReplacePicture(index, img)
		case "ph":
			err = slide.ReplacePlaceholder(index, img)
		}
		if err != nil {
			return err
		}
		log.Debug("replaced image by name", zap.String("key", key), zap.String("image", path))
	}
	return nil
}
