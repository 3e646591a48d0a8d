package pipeline

import (
	"context"
	"fmt"
	"image"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/spherical/paper-extractor/internal/domain"
	"github.com/spherical/paper-extractor/internal/raster"
)

// fakeRasterizer produces blank PNG pages and records render call order.
type fakeRasterizer struct {
	pages     int
	failPages map[int]bool
	decodeErr error
	delay     time.Duration

	mu        sync.Mutex
	calls     []string
	active    int
	maxActive int
}

func (f *fakeRasterizer) Decode(ctx context.Context, data []byte) (domain.Document, error) {
	if f.decodeErr != nil {
		return nil, f.decodeErr
	}
	return &fakeDocument{r: f}, nil
}

func (f *fakeRasterizer) log(entry string, delta int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, entry)
	f.active += delta
	if f.active > f.maxActive {
		f.maxActive = f.active
	}
}

func (f *fakeRasterizer) callLog() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

type fakeDocument struct {
	r      *fakeRasterizer
	closed bool
}

func (d *fakeDocument) PageCount() int { return d.r.pages }

func (d *fakeDocument) RenderPage(ctx context.Context, n int, scale float64) (domain.RasterImage, error) {
	d.r.log(fmt.Sprintf("start %d", n), 1)
	defer d.r.log(fmt.Sprintf("end %d", n), -1)

	if d.r.delay > 0 {
		time.Sleep(d.r.delay)
	}
	if d.r.failPages[n] {
		return domain.RasterImage{}, domain.RenderError(fmt.Sprintf("page %d is broken", n), nil)
	}
	return raster.Encode(image.NewRGBA(image.Rect(0, 0, int(100*scale), int(150*scale))))
}

func (d *fakeDocument) Close() error {
	d.closed = true
	return nil
}

// fakeExtractor delegates to per-test functions.
type fakeExtractor struct {
	page func(ctx context.Context, img domain.RasterImage) (domain.PageContent, error)
	chem func(ctx context.Context, img domain.RasterImage) (domain.ChemicalResult, error)

	mu        sync.Mutex
	pageCalls int
	chemCalls int
}

func (f *fakeExtractor) ExtractPageContent(ctx context.Context, img domain.RasterImage) (domain.PageContent, error) {
	f.mu.Lock()
	f.pageCalls++
	f.mu.Unlock()
	if f.page == nil {
		return domain.PageContent{Markdown: "# Page", Figures: []domain.BoundingBox{}}, nil
	}
	return f.page(ctx, img)
}

func (f *fakeExtractor) ExtractChemicalStructure(ctx context.Context, img domain.RasterImage) (domain.ChemicalResult, error) {
	f.mu.Lock()
	f.chemCalls++
	f.mu.Unlock()
	if f.chem == nil {
		return domain.ChemicalResult{SMILES: "C", Confidence: domain.ConfidenceLow}, nil
	}
	return f.chem(ctx, img)
}

// recordingPublisher keeps every published event.
type recordingPublisher struct {
	mu     sync.Mutex
	events []domain.StreamEvent
}

func (p *recordingPublisher) Publish(ctx context.Context, event domain.StreamEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *recordingPublisher) types() []domain.EventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]domain.EventType, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

var figureBox = domain.BoundingBox{YMin: 100, XMin: 200, YMax: 300, XMax: 400, Label: "Fig 1"}

func newTestSession(t *testing.T, r *fakeRasterizer, x *fakeExtractor, mutate ...func(*Options)) (*Session, *recordingPublisher) {
	t.Helper()
	pub := &recordingPublisher{}
	opts := Options{
		Rasterizer: r,
		Extractor:  x,
		Cropper:    raster.NewCropper(),
		Publisher:  pub,
	}
	for _, m := range mutate {
		m(&opts)
	}
	s, err := NewSession(opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s, pub
}

func waitDone(t *testing.T, done <-chan struct{}) {
	t.Helper()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("operation did not resolve")
	}
}

func mustPage(t *testing.T, s *Session, n int) domain.PageRecord {
	t.Helper()
	rec, err := s.Page(n)
	require.NoError(t, err)
	return rec
}
