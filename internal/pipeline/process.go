package pipeline

import (
	"context"
	"fmt"

	"github.com/spherical/paper-extractor/internal/domain"
)

// ProcessPage starts whole-page extraction for a page.
//
// The page enters processing synchronously with its content and chemistry
// cleared. The returned channel is closed once the page reached done or error
// (or the result was discarded because the session moved on).
func (s *Session) ProcessPage(ctx context.Context, pageNumber int) (<-chan struct{}, error) {
	s.mu.Lock()
	p, err := s.pageLocked(pageNumber)
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}
	if p.record.Status == domain.StatusProcessing {
		s.mu.Unlock()
		return nil, domain.StateError(fmt.Sprintf("page %d is already processing", pageNumber), domain.ErrPageBusy)
	}

	next := p.record.Clone()
	next.Status = domain.StatusProcessing
	next.Content = nil
	next.ChemistryResults = make(map[string]domain.ChemistryEntry)
	next.ChemistryBusy = false
	next.LastError = ""

	p.epoch++
	p.inflight = make(map[string]int)
	snapshot := s.commitLocked(p, next)

	gen, epoch, genCtx := s.generation, p.epoch, s.genCtx
	image := next.Image
	s.beginTaskLocked()
	s.mu.Unlock()

	logger := s.logger.WithContext(ctx).WithSession(gen).WithPage(pageNumber)
	logger.Debug().Msg("page processing started")
	s.publishPage(gen, snapshot)

	done := make(chan struct{})
	go func() {
		defer s.endTask()
		defer close(done)

		callCtx, cancel := context.WithTimeout(genCtx, s.opts.PageTimeout)
		defer cancel()

		content, err := s.opts.Extractor.ExtractPageContent(callCtx, image)

		s.mu.Lock()
		p, ok := s.currentLocked(gen, pageNumber, epoch)
		if !ok {
			s.mu.Unlock()
			logger.Debug().Msg("discarding stale page result")
			return
		}

		next := p.record.Clone()
		if err != nil {
			perr := domain.PageProcessingError(fmt.Sprintf("extraction of page %d failed", pageNumber), err)
			next.Status = domain.StatusError
			next.Content = nil
			next.LastError = perr.Error()
			logger.Error().Err(err).Msg("page extraction failed")
		} else {
			c := content.Clone()
			next.Status = domain.StatusDone
			next.Content = &c
			logger.Info().Int("figures", len(c.Figures)).Msg("page extraction done")
		}
		snapshot := s.commitLocked(p, next)
		s.mu.Unlock()

		s.publishPage(gen, snapshot)
	}()

	return done, nil
}
