// Package pdf adapts go-fitz (MuPDF) to the rasterizer boundary.
package pdf

import (
	"context"
	"fmt"
	"sync"

	"github.com/gen2brain/go-fitz"

	"github.com/spherical/paper-extractor/internal/domain"
	"github.com/spherical/paper-extractor/internal/raster"
)

// baseDPI is the native PDF resolution; scale 1.0 renders at 72 dpi.
const baseDPI = 72.0

// Converter implements domain.Rasterizer using go-fitz
type Converter struct{}

// NewConverter creates a new PDF converter instance
func NewConverter() *Converter {
	return &Converter{}
}

// Decode opens an in-memory PDF.
func (c *Converter) Decode(ctx context.Context, data []byte) (domain.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, domain.DecodeError("document is empty", nil)
	}

	doc, err := fitz.NewFromMemory(data)
	if err != nil {
		return nil, domain.DecodeError("failed to open PDF", err)
	}

	if doc.NumPage() == 0 {
		doc.Close()
		return nil, domain.DecodeError("PDF has no pages", nil)
	}

	return &Document{doc: doc}, nil
}

// Document wraps an open fitz document.
type Document struct {
	mu  sync.Mutex
	doc *fitz.Document
}

// PageCount returns the number of physical pages, or 0 after Close.
func (d *Document) PageCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.doc == nil {
		return 0
	}
	return d.doc.NumPage()
}

// RenderPage rasterizes a 1-based page as PNG.
func (d *Document) RenderPage(ctx context.Context, pageNumber int, scale float64) (domain.RasterImage, error) {
	if err := ctx.Err(); err != nil {
		return domain.RasterImage{}, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.doc == nil {
		return domain.RasterImage{}, domain.RenderError("document is closed", nil)
	}
	if pageNumber < 1 || pageNumber > d.doc.NumPage() {
		return domain.RasterImage{}, domain.RenderError(fmt.Sprintf("page %d out of range", pageNumber), domain.ErrPageNotFound)
	}
	if scale <= 0 {
		return domain.RasterImage{}, domain.RenderError(fmt.Sprintf("invalid scale %.2f", scale), nil)
	}

	img, err := d.doc.ImageDPI(pageNumber-1, baseDPI*scale)
	if err != nil {
		return domain.RasterImage{}, domain.RenderError(fmt.Sprintf("failed to render page %d", pageNumber), err)
	}

	out, err := raster.Encode(img)
	if err != nil {
		return domain.RasterImage{}, domain.RenderError(fmt.Sprintf("failed to encode page %d", pageNumber), err)
	}
	return out, nil
}

// Close releases the MuPDF context. Safe to call more than once.
func (d *Document) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.doc == nil {
		return nil
	}
	err := d.doc.Close()
	d.doc = nil
	return err
}
