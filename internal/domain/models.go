package domain

import (
	"fmt"
	"strings"
	"time"
)

const (
	// MaxPages caps how many pages of a document are rasterized and represented.
	MaxPages = 5

	// RenderScale is the rasterization scale relative to the native page size.
	RenderScale = 2.0

	// NormSpace is the width and height of the normalized coordinate space used
	// by the inference service for bounding boxes.
	NormSpace = 1000

	// PNGMimeType is the encoding of every raster image in the pipeline.
	PNGMimeType = "image/png"
)

// PageStatus is the page-level extraction state.
type PageStatus string

const (
	StatusIdle       PageStatus = "idle"
	StatusProcessing PageStatus = "processing"
	StatusDone       PageStatus = "done"
	StatusError      PageStatus = "error"
)

// Confidence labels returned by chemical-structure extraction.
const (
	ConfidenceHigh   = "High"
	ConfidenceMedium = "Medium"
	ConfidenceLow    = "Low"
)

// Fallback values used when the inference service output cannot be used.
const (
	FallbackMarkdown = "Error processing content. Please try again."
	FallbackSMILES   = "Could not extract SMILES"
)

// RasterImage is a PNG-encoded bitmap together with its pixel dimensions.
type RasterImage struct {
	Data   []byte `json:"-"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

// IsEmpty reports whether the image carries no pixels.
func (r RasterImage) IsEmpty() bool {
	return len(r.Data) == 0 || r.Width <= 0 || r.Height <= 0
}

// BoundingBox is a figure region in the 0-1000 normalized coordinate space.
type BoundingBox struct {
	YMin  int    `json:"ymin"`
	XMin  int    `json:"xmin"`
	YMax  int    `json:"ymax"`
	XMax  int    `json:"xmax"`
	Label string `json:"label"`
}

// Validate enforces 0 <= min <= max <= NormSpace on both axes.
func (b BoundingBox) Validate() error {
	switch {
	case b.YMin < 0 || b.XMin < 0:
		return ValidationError(fmt.Sprintf("box %s has negative origin", b), ErrInvalidBox)
	case b.YMax > NormSpace || b.XMax > NormSpace:
		return ValidationError(fmt.Sprintf("box %s exceeds the %d unit space", b, NormSpace), ErrInvalidBox)
	case b.YMin > b.YMax:
		return ValidationError(fmt.Sprintf("box %s has ymin > ymax", b), ErrInvalidBox)
	case b.XMin > b.XMax:
		return ValidationError(fmt.Sprintf("box %s has xmin > xmax", b), ErrInvalidBox)
	}
	return nil
}

// String formats the box as [ymin,xmin,ymax,xmax].
func (b BoundingBox) String() string {
	return fmt.Sprintf("[%d,%d,%d,%d]", b.YMin, b.XMin, b.YMax, b.XMax)
}

// Overlay is a box position expressed as percentages of the page.
type Overlay struct {
	Top    float64 `json:"top"`
	Left   float64 `json:"left"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Overlay converts the box into page percentages for an overlay renderer.
// The result is meaningless for boxes that fail Validate.
func (b BoundingBox) Overlay() Overlay {
	pct := func(v int) float64 { return float64(v) / NormSpace * 100 }
	return Overlay{
		Top:    pct(b.YMin),
		Left:   pct(b.XMin),
		Width:  pct(b.XMax - b.XMin),
		Height: pct(b.YMax - b.YMin),
	}
}

// PageContent is the structured result of whole-page extraction.
type PageContent struct {
	Markdown string        `json:"markdown"`
	Figures  []BoundingBox `json:"figures"`
}

// FallbackPageContent is returned when a page response cannot be parsed.
func FallbackPageContent() PageContent {
	return PageContent{Markdown: FallbackMarkdown, Figures: []BoundingBox{}}
}

// Clone returns a deep copy.
func (c PageContent) Clone() PageContent {
	figures := make([]BoundingBox, len(c.Figures))
	copy(figures, c.Figures)
	return PageContent{Markdown: c.Markdown, Figures: figures}
}

// ChemicalResult is the structured result of chemical-structure extraction.
type ChemicalResult struct {
	SMILES     string `json:"smiles"`
	Confidence string `json:"confidence"`
}

// FallbackChemicalResult is returned when a crop response cannot be used.
func FallbackChemicalResult() ChemicalResult {
	return ChemicalResult{SMILES: FallbackSMILES, Confidence: ConfidenceLow}
}

// ChemistryEntry is the per-figure chemistry state. A pending entry has no SMILES yet.
type ChemistryEntry struct {
	Pending    bool   `json:"pending"`
	SMILES     string `json:"smiles,omitempty"`
	Confidence string `json:"confidence,omitempty"`
}

// FigureID derives the stable figure identifier from its index in Figures.
func FigureID(index int) string {
	return fmt.Sprintf("fig-%d", index)
}

// ParseFigureID is the inverse of FigureID.
func ParseFigureID(id string) (int, error) {
	var index int
	if !strings.HasPrefix(id, "fig-") {
		return 0, ValidationError(fmt.Sprintf("malformed figure id %q", id), nil)
	}
	if _, err := fmt.Sscanf(id, "fig-%d", &index); err != nil || index < 0 || FigureID(index) != id {
		return 0, ValidationError(fmt.Sprintf("malformed figure id %q", id), err)
	}
	return index, nil
}

// PageRecord is the state of one rasterized page. Records are replaced whole;
// callers only ever see copies.
type PageRecord struct {
	PageNumber       int                       `json:"page_number"`
	Image            RasterImage               `json:"image"`
	Status           PageStatus                `json:"status"`
	Content          *PageContent              `json:"content,omitempty"`
	ChemistryResults map[string]ChemistryEntry `json:"chemistry_results"`
	ChemistryBusy    bool                      `json:"chemistry_busy"`
	LastError        string                    `json:"last_error,omitempty"`
	UpdatedAt        time.Time                 `json:"updated_at"`
}

// NewPageRecord creates an idle record for a freshly rendered page.
func NewPageRecord(pageNumber int, img RasterImage) PageRecord {
	return PageRecord{
		PageNumber:       pageNumber,
		Image:            img,
		Status:           StatusIdle,
		ChemistryResults: make(map[string]ChemistryEntry),
		UpdatedAt:        time.Now(),
	}
}

// Clone creates a deep copy of the record. Image bytes are shared since they are immutable.
func (p PageRecord) Clone() PageRecord {
	clone := p
	if p.Content != nil {
		content := p.Content.Clone()
		clone.Content = &content
	}
	clone.ChemistryResults = make(map[string]ChemistryEntry, len(p.ChemistryResults))
	for k, v := range p.ChemistryResults {
		clone.ChemistryResults[k] = v
	}
	return clone
}

// Figure returns the figure at index if the page has content.
func (p PageRecord) Figure(index int) (BoundingBox, error) {
	if p.Status != StatusDone || p.Content == nil {
		return BoundingBox{}, StateError(fmt.Sprintf("page %d is %s", p.PageNumber, p.Status), ErrPageNotDone)
	}
	if index < 0 || index >= len(p.Content.Figures) {
		return BoundingBox{}, ValidationError(fmt.Sprintf("page %d has no figure %d", p.PageNumber, index), ErrFigureNotFound)
	}
	return p.Content.Figures[index], nil
}

// EventType represents the type of stream event
type EventType string

const (
	EventSessionLoaded EventType = "session_loaded"
	EventPageRendered  EventType = "page_rendered"
	EventRenderFailed  EventType = "render_failed"
	EventPageUpdated   EventType = "page_updated"
	EventSessionReset  EventType = "session_reset"
)

// StreamEvent represents an event emitted when session state changes
type StreamEvent struct {
	ID         string      `json:"id"`
	Type       EventType   `json:"type"`
	SessionID  string      `json:"session_id,omitempty"`
	PageNumber int         `json:"page_number,omitempty"`
	Payload    interface{} `json:"payload,omitempty"`
	Timestamp  time.Time   `json:"timestamp"`
}
