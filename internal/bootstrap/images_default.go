//go:build !tesseract

package bootstrap

import (
	"github.com/kirillkom/estate-docs/internal/config"
	"github.com/kirillkom/estate-docs/internal/infrastructure/ocr/localpdf"
)

const imageOCR = "none"

// newImageReader is nil without the tesseract tag; local image uploads fail.
func newImageReader(config.Config) localpdf.ImageReader {
	return nil
}
