package ocr

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

var (
	// ErrUnsupportedFormat means the file extension is neither an image
	// nor a PDF.
	ErrUnsupportedFormat = errors.New("unsupported file format")
	// ErrOCRFailure means recognition ran but could not produce text.
	ErrOCRFailure = errors.New("ocr failed")
)

// Format is the recognition strategy for a file.
type Format int

const (
	FormatUnknown Format = iota
	FormatImage
	FormatPDF
)

func (f Format) String() string {
	switch f {
	case FormatImage:
		return "image"
	case FormatPDF:
		return "pdf"
	default:
		return "unknown"
	}
}

// BatchExtensions are the file types picked up when walking a directory.
var BatchExtensions = []string{".jpg", ".jpeg", ".png", ".pdf"}

// UploadExtensions are the file types accepted for single uploads.
var UploadExtensions = []string{".pdf", ".png", ".jpg", ".jpeg", ".bmp", ".tiff", ".tif"}

var imageExts = map[string]bool{
	".png": true, ".jpg": true, ".jpeg": true, ".bmp": true, ".tiff": true, ".tif": true,
}

// Ext returns the lower-cased extension of path, including the dot.
func Ext(path string) string {
	return strings.ToLower(filepath.Ext(path))
}

// Detect picks the format from path's extension, case-insensitively.
func Detect(path string) (Format, error) {
	ext := Ext(path)
	switch {
	case ext == ".pdf":
		return FormatPDF, nil
	case imageExts[ext]:
		return FormatImage, nil
	}
	return FormatUnknown, fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
}

// Allowed reports whether path's extension is in exts.
func Allowed(path string, exts []string) bool {
	ext := Ext(path)
	for _, e := range exts {
		if e == ext {
			return true
		}
	}
	return false
}
