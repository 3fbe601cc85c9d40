// Package render rasterises PDF receipts into page images for the vision model.
package render

import (
	"bytes"
	"context"
	"fmt"
	"image/jpeg"
	"os"

	"github.com/garyjia/ai-reimbursement-triage/internal/application/port"
	"github.com/gen2brain/go-fitz"
	"go.uber.org/zap"
)

// DefaultMaxPages caps how many pages of one document are rendered
const DefaultMaxPages = 10

// PDFRenderer implements port.PageRenderer with MuPDF
type PDFRenderer struct {
	maxPages int
	quality  int
	logger   *zap.Logger
}

// NewPDFRenderer creates a renderer; maxPages <= 0 uses DefaultMaxPages
func NewPDFRenderer(maxPages int, logger *zap.Logger) *PDFRenderer {
	if maxPages <= 0 {
		maxPages = DefaultMaxPages
	}
	return &PDFRenderer{
		maxPages: maxPages,
		quality:  85,
		logger:   logger,
	}
}

// RenderPages renders up to maxPages pages to JPEG. A page that fails keeps
// its slot with Err set so callers can report it; a longer document gets one
// trailing truncation marker.
func (r *PDFRenderer) RenderPages(ctx context.Context, path string) ([]port.Page, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("PDF file not found: %w", err)
	}

	doc, err := fitz.New(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open PDF: %w", err)
	}
	defer doc.Close()

	total := doc.NumPage()
	count := total
	if count > r.maxPages {
		r.logger.Warn("Truncating long document",
			zap.String("path", path),
			zap.Int("total_pages", total),
			zap.Int("max_pages", r.maxPages))
		count = r.maxPages
	}

	pages := make([]port.Page, 0, count+1)
	for n := 0; n < count; n++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		page := port.Page{Number: n + 1}
		img, err := doc.Image(n)
		if err != nil {
			r.logger.Warn("Failed to render page", zap.Int("page", n+1), zap.Error(err))
			page.Err = fmt.Errorf("failed to render page %d: %w", n+1, err)
			pages = append(pages, page)
			continue
		}

		var buf bytes.Buffer
		if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: r.quality}); err != nil {
			page.Err = fmt.Errorf("failed to encode page %d: %w", n+1, err)
			pages = append(pages, page)
			continue
		}
		page.Image = port.Image{Data: buf.Bytes(), MimeType: "image/jpeg"}
		pages = append(pages, page)
	}

	if total > count {
		pages = append(pages, port.Page{
			Number: count + 1,
			Err:    &port.PagesTruncatedError{Total: total, Rendered: count},
		})
	}

	r.logger.Debug("Rendered PDF", zap.String("path", path), zap.Int("pages", len(pages)))
	return pages, nil
}

var _ port.PageRenderer = (*PDFRenderer)(nil)
