//go:build tesseract

// Package tesseract recognizes text in images with the tesseract engine.
// It needs cgo and the tesseract and leptonica libraries, so it only builds
// with the tesseract tag.
package tesseract

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/otiai10/gosseract/v2"

	"github.com/kirillkom/estate-docs/internal/core/domain"
)

type Reader struct {
	languages     []string
	clientFactory func() *gosseract.Client
}

func New(languages []string) *Reader {
	return &Reader{languages: languages, clientFactory: gosseract.NewClient}
}

// ReadImage returns one page with a line per tesseract text line.
func (r *Reader) ReadImage(ctx context.Context, content []byte) ([]domain.OCRPage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c := r.clientFactory()
	defer c.Close()

	if err := c.SetImageFromBytes(content); err != nil {
		return nil, fmt.Errorf("set image: %w", err)
	}
	if len(r.languages) > 0 {
		if err := c.SetLanguage(r.languages...); err != nil {
			return nil, fmt.Errorf("set languages: %w", err)
		}
	}

	boxes, err := c.GetBoundingBoxes(gosseract.RIL_TEXTLINE)
	if err != nil {
		return nil, fmt.Errorf("recognize lines: %w", err)
	}
	sort.SliceStable(boxes, func(i, j int) bool { return boxes[i].Box.Min.Y < boxes[j].Box.Min.Y })

	var page domain.OCRPage
	for _, b := range boxes {
		if line := strings.TrimSpace(b.Word); line != "" {
			page.Lines = append(page.Lines, domain.OCRLine{Content: line})
		}
	}
	if len(page.Lines) == 0 {
		text, err := c.Text()
		if err != nil {
			return nil, fmt.Errorf("recognize text: %w", err)
		}
		for _, line := range strings.Split(text, "\n") {
			if line = strings.TrimSpace(line); line != "" {
				page.Lines = append(page.Lines, domain.OCRLine{Content: line})
			}
		}
	}
	return []domain.OCRPage{page}, nil
}
