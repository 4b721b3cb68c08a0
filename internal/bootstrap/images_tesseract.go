//go:build tesseract

package bootstrap

import (
	"github.com/kirillkom/estate-docs/internal/config"
	"github.com/kirillkom/estate-docs/internal/infrastructure/ocr/localpdf"
	"github.com/kirillkom/estate-docs/internal/infrastructure/ocr/tesseract"
)

const imageOCR = "tesseract"

func newImageReader(cfg config.Config) localpdf.ImageReader {
	return tesseract.New(cfg.OCRImageLanguages)
}
