package domain

import "context"

// Rasterizer decodes PDF bytes into a document that can render pages
type Rasterizer interface {
	// Decode opens a document; corrupt or non-PDF input fails with a decode error
	Decode(ctx context.Context, data []byte) (Document, error)
}

// Document is an opaque handle to a decoded PDF
type Document interface {
	// PageCount returns the number of physical pages
	PageCount() int

	// RenderPage rasterizes the 1-based page at the given scale as PNG
	RenderPage(ctx context.Context, pageNumber int, scale float64) (RasterImage, error)

	// Close releases the decoder resources
	Close() error
}

// Extractor wraps the two inference operations. Both always return a usable
// value; a non-nil error means the request itself failed.
type Extractor interface {
	ExtractPageContent(ctx context.Context, page RasterImage) (PageContent, error)
	ExtractChemicalStructure(ctx context.Context, crop RasterImage) (ChemicalResult, error)
}

// Cropper cuts a normalized-space region out of a raster image
type Cropper interface {
	Crop(img RasterImage, box BoundingBox) (RasterImage, error)
}

// Publisher receives session state changes
type Publisher interface {
	Publish(ctx context.Context, event StreamEvent) error
}
