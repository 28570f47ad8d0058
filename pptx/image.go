package pptx

import (
	"bytes"
	"fmt"
	"image"
	"os"

	// Register decoders so DecodeConfig can size the formats
	// presentation software accepts.
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// Image is a replacement image loaded from disk, with its pixel
// dimensions read from the header.
type Image struct {
	Path   string
	Data   []byte
	Width  int
	Height int
	Format string // as reported by image.DecodeConfig, e.g. "png"
}

// LoadImage reads an image file and sniffs its format and dimensions.
// An unreadable or undecodable file is an error; image substitution
// treats that as fatal for the run.
func LoadImage(path string) (*Image, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading image %s: %w", path, err)
	}

	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decoding image %s: %w", path, err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, fmt.Errorf("image %s has invalid dimensions %dx%d", path, cfg.Width, cfg.Height)
	}

	return &Image{
		Path:   path,
		Data:   data,
		Width:  cfg.Width,
		Height: cfg.Height,
		Format: format,
	}, nil
}

// Ext returns the file extension to use for the media part.
func (img *Image) Ext() string {
	if img.Format == "jpeg" {
		return "jpg"
	}
	return img.Format
}

// ContentType returns the MIME type for the image's format.
func (img *Image) ContentType() string {
	switch img.Format {
	case "png":
		return "image/png"
	case "jpeg":
		return "image/jpeg"
	case "gif":
		return "image/gif"
	case "bmp":
		return "image/bmp"
	case "tiff":
		return "image/tiff"
	case "webp":
		return "image/webp"
	}
	return "image/" + img.Format
}

// box is a rectangle in EMUs.
type box struct {
	x, y, cx, cy int64
}

// fitImage scales the image to fit inside the box, preserving aspect
// ratio, and centers it.
func fitImage(b box, img *Image) box {
	wRatio := float64(b.cx) / float64(img.Width)
	hRatio := float64(b.cy) / float64(img.Height)
	scale := wRatio
	if hRatio < scale {
		scale = hRatio
	}

	cx := int64(float64(img.Width) * scale)
	cy := int64(float64(img.Height) * scale)

	return box{
		x:  b.x + (b.cx-cx)/2,
		y:  b.y + (b.cy-cy)/2,
		cx: cx,
		cy: cy,
	}
}
