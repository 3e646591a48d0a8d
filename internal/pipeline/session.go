// Package pipeline owns the page collection of one loaded paper and drives
// every state transition on it: load, page extraction and figure chemistry.
package pipeline

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/spherical/paper-extractor/internal/domain"
	"github.com/spherical/paper-extractor/internal/observability"
)

// Options configures a Session.
type Options struct {
	Rasterizer domain.Rasterizer
	Extractor  domain.Extractor
	Cropper    domain.Cropper
	Publisher  domain.Publisher
	Logger     *observability.Logger

	MaxPages         int
	RenderScale      float64
	PageTimeout      time.Duration
	ChemistryTimeout time.Duration
}

// LoadResult summarizes a completed load.
type LoadResult struct {
	SessionID   string `json:"session_id"`
	TotalPages  int    `json:"total_pages"`
	Rendered    []int  `json:"rendered"`
	FailedPages []int  `json:"failed_pages,omitempty"`
}

// pageState is the mutable bookkeeping behind one PageRecord. The record
// itself is only ever replaced, never edited in place.
type pageState struct {
	record   domain.PageRecord
	epoch    uint64
	inflight map[string]int
}

// Session is the single active document and its page collection.
//
// Every background write carries the generation and page epoch it was started
// under; writes whose tokens no longer match are discarded.
type Session struct {
	opts      Options
	logger    *observability.Logger
	scheduler *RenderScheduler

	mu         sync.Mutex
	generation string
	genCtx     context.Context
	genCancel  context.CancelFunc
	pages      map[int]*pageState
	closed     bool

	// active counts background extractions; idle is signalled when it drops to zero.
	active int
	idle   *sync.Cond
}

// NewSession creates an empty session.
func NewSession(opts Options) (*Session, error) {
	if opts.Rasterizer == nil || opts.Extractor == nil || opts.Cropper == nil {
		return nil, domain.ConfigError("rasterizer, extractor and cropper are required", nil)
	}
	if opts.MaxPages <= 0 {
		opts.MaxPages = domain.MaxPages
	}
	if opts.RenderScale <= 0 {
		opts.RenderScale = domain.RenderScale
	}
	if opts.PageTimeout <= 0 {
		opts.PageTimeout = 2 * time.Minute
	}
	if opts.ChemistryTimeout <= 0 {
		opts.ChemistryTimeout = 3 * time.Minute
	}
	if opts.Logger == nil {
		opts.Logger = observability.Nop()
	}

	s := &Session{
		opts:      opts,
		logger:    opts.Logger.WithOperation("pipeline"),
		scheduler: NewRenderScheduler(),
	}
	s.idle = sync.NewCond(&s.mu)
	s.mu.Lock()
	s.newGenerationLocked()
	s.mu.Unlock()
	return s, nil
}

// newGenerationLocked drops all pages and starts a fresh generation. Work
// started under the old generation has its context cancelled.
func (s *Session) newGenerationLocked() string {
	if s.genCancel != nil {
		s.genCancel()
	}
	s.generation = uuid.NewString()
	s.genCtx, s.genCancel = context.WithCancel(context.Background())
	s.pages = make(map[int]*pageState)
	return s.generation
}

// ID returns the current generation id.
func (s *Session) ID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generation
}

// Load replaces the session contents with the first pages of a new document.
//
// Pages are rasterized strictly in order, one at a time. A page that fails to
// render is omitted; the load fails only if the document cannot be decoded or
// no page renders at all.
func (s *Session) Load(ctx context.Context, data []byte) (*LoadResult, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, domain.StateError("session is closed", nil)
	}
	gen := s.newGenerationLocked()
	s.mu.Unlock()

	logger := s.logger.WithSession(gen)
	s.publish(domain.StreamEvent{Type: domain.EventSessionReset, SessionID: gen})

	doc, err := s.opts.Rasterizer.Decode(ctx, data)
	if err != nil {
		logger.Error().Err(err).Msg("document decode failed")
		if domain.TypeOf(err) == "" {
			err = domain.DecodeError("failed to decode document", err)
		}
		return nil, err
	}
	defer doc.Close()

	total := doc.PageCount()
	limit := total
	if limit > s.opts.MaxPages {
		limit = s.opts.MaxPages
	}

	logger.Info().Int("total_pages", total).Int("rendering", limit).Msg("document decoded")

	result := &LoadResult{SessionID: gen, TotalPages: total, Rendered: make([]int, 0, limit)}

	for n := 1; n <= limit; n++ {
		var img domain.RasterImage
		err := s.scheduler.Do(ctx, func(ctx context.Context) error {
			var renderErr error
			img, renderErr = doc.RenderPage(ctx, n, s.opts.RenderScale)
			return renderErr
		})
		if ctx.Err() != nil {
			s.discardGeneration(gen)
			logger.Info().Int("page", n).Msg("load cancelled, discarding rendered pages")
			return nil, domain.RenderError("load cancelled", ctx.Err())
		}
		if err != nil && len(result.Rendered) == 0 {
			logger.Error().Int("page", n).Err(err).Msg("first page failed to render")
			s.publish(domain.StreamEvent{Type: domain.EventRenderFailed, SessionID: gen, PageNumber: n, Payload: err.Error()})
			return nil, domain.RenderError(fmt.Sprintf("page %d could not be rendered", n), err)
		}
		if err != nil {
			logger.Warn().Int("page", n).Err(err).Msg("page render failed, omitting page")
			result.FailedPages = append(result.FailedPages, n)
			s.publish(domain.StreamEvent{Type: domain.EventRenderFailed, SessionID: gen, PageNumber: n, Payload: err.Error()})
			continue
		}

		record := domain.NewPageRecord(n, img)
		if !s.insertPage(gen, record) {
			logger.Info().Msg("load superseded by a newer session")
			return nil, domain.StateError("load superseded by a newer session", nil)
		}
		result.Rendered = append(result.Rendered, n)
		logger.Debug().Int("page", n).Int("width", img.Width).Int("height", img.Height).Msg("page rendered")
		s.publish(domain.StreamEvent{Type: domain.EventPageRendered, SessionID: gen, PageNumber: n, Payload: record})
	}

	if len(result.Rendered) == 0 {
		return nil, domain.RenderError(fmt.Sprintf("none of the first %d pages could be rendered", limit), nil)
	}

	logger.Info().Int("rendered", len(result.Rendered)).Int("failed", len(result.FailedPages)).Msg("document loaded")
	s.publish(domain.StreamEvent{Type: domain.EventSessionLoaded, SessionID: gen, Payload: result})
	return result, nil
}

// discardGeneration drops the pages of gen if it is still current.
func (s *Session) discardGeneration(gen string) {
	s.mu.Lock()
	current := s.generation == gen
	if current {
		s.pages = make(map[int]*pageState)
	}
	s.mu.Unlock()

	if current {
		s.publish(domain.StreamEvent{Type: domain.EventSessionReset, SessionID: gen})
	}
}

func (s *Session) insertPage(gen string, record domain.PageRecord) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.generation != gen {
		return false
	}
	s.pages[record.PageNumber] = &pageState{record: record, inflight: make(map[string]int)}
	return true
}

// Reset discards all pages. Results of work still in flight are dropped.
func (s *Session) Reset() {
	s.mu.Lock()
	gen := s.newGenerationLocked()
	s.mu.Unlock()

	s.logger.WithSession(gen).Info().Msg("session reset")
	s.publish(domain.StreamEvent{Type: domain.EventSessionReset, SessionID: gen})
}

// Close resets the session, rejects further loads and waits for background work.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.newGenerationLocked()
	s.genCancel()
	s.waitIdleLocked()
	return nil
}

// Wait blocks until no background extraction is running. Work started by a
// concurrent caller after Wait observed an idle session is not waited for.
func (s *Session) Wait() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.waitIdleLocked()
}

func (s *Session) waitIdleLocked() {
	for s.active > 0 {
		s.idle.Wait()
	}
}

// beginTaskLocked registers a background extraction; pair with endTask.
func (s *Session) beginTaskLocked() {
	s.active++
}

func (s *Session) endTask() {
	s.mu.Lock()
	s.active--
	if s.active == 0 {
		s.idle.Broadcast()
	}
	s.mu.Unlock()
}

// Pages returns copies of all records ordered by page number.
func (s *Session) Pages() []domain.PageRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pagesLocked()
}

// Snapshot returns the generation id together with its pages, read atomically.
func (s *Session) Snapshot() (string, []domain.PageRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generation, s.pagesLocked()
}

func (s *Session) pagesLocked() []domain.PageRecord {
	out := make([]domain.PageRecord, 0, len(s.pages))
	for _, p := range s.pages {
		out = append(out, p.record.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PageNumber < out[j].PageNumber })
	return out
}

// Page returns a copy of one record.
func (s *Session) Page(pageNumber int) (domain.PageRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, err := s.pageLocked(pageNumber)
	if err != nil {
		return domain.PageRecord{}, err
	}
	return p.record.Clone(), nil
}

func (s *Session) pageLocked(pageNumber int) (*pageState, error) {
	if len(s.pages) == 0 {
		return nil, domain.StateError("no document loaded", domain.ErrNoDocument)
	}
	p, ok := s.pages[pageNumber]
	if !ok {
		return nil, domain.ValidationError(fmt.Sprintf("page %d is not in the session", pageNumber), domain.ErrPageNotFound)
	}
	return p, nil
}

// commitLocked replaces the record of p.
func (s *Session) commitLocked(p *pageState, record domain.PageRecord) domain.PageRecord {
	record.UpdatedAt = time.Now()
	p.record = record
	return record.Clone()
}

// currentLocked returns the page if gen and epoch still identify live state.
func (s *Session) currentLocked(gen string, pageNumber int, epoch uint64) (*pageState, bool) {
	if s.generation != gen {
		return nil, false
	}
	p, ok := s.pages[pageNumber]
	if !ok || p.epoch != epoch {
		return nil, false
	}
	return p, true
}

func (s *Session) publish(event domain.StreamEvent) {
	if s.opts.Publisher == nil {
		return
	}
	if err := s.opts.Publisher.Publish(context.Background(), event); err != nil {
		s.logger.Warn().Err(err).Str("event_type", string(event.Type)).Msg("failed to publish event")
	}
}

func (s *Session) publishPage(gen string, record domain.PageRecord) {
	s.publish(domain.StreamEvent{
		Type:       domain.EventPageUpdated,
		SessionID:  gen,
		PageNumber: record.PageNumber,
		Payload:    record,
	})
}
