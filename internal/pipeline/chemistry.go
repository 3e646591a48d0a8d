package pipeline

import (
	"context"
	"fmt"

	"github.com/spherical/paper-extractor/internal/domain"
)

// IdentifyStructure starts chemical-structure extraction for one figure.
//
// The figure entry becomes pending and the page chemistry-busy before this
// returns. On resolution the result is merged into whatever the page looks
// like at that moment. A failed request removes the pending entry so the
// figure can be retried.
func (s *Session) IdentifyStructure(ctx context.Context, pageNumber, figureIndex int) (<-chan struct{}, error) {
	s.mu.Lock()
	p, err := s.pageLocked(pageNumber)
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}
	box, err := p.record.Figure(figureIndex)
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}
	if err := box.Validate(); err != nil {
		s.mu.Unlock()
		return nil, err
	}

	figureID := domain.FigureID(figureIndex)
	next := p.record.Clone()
	next.ChemistryResults[figureID] = domain.ChemistryEntry{Pending: true}
	p.inflight[figureID]++
	next.ChemistryBusy = true
	snapshot := s.commitLocked(p, next)

	gen, epoch, genCtx := s.generation, p.epoch, s.genCtx
	image := next.Image
	s.beginTaskLocked()
	s.mu.Unlock()

	logger := s.logger.WithContext(ctx).WithSession(gen).WithPage(pageNumber)
	logger.Debug().Str("figure", figureID).Str("box", box.String()).Msg("chemistry requested")
	s.publishPage(gen, snapshot)

	done := make(chan struct{})
	go func() {
		defer s.endTask()
		defer close(done)

		result, err := s.extractChemistry(genCtx, image, box)
		if err != nil {
			err = domain.ChemistryExtractionError(fmt.Sprintf("figure %s on page %d", figureID, pageNumber), err)
			logger.Error().Err(err).Str("figure", figureID).Msg("chemistry extraction failed")
		}

		s.mu.Lock()
		p, ok := s.currentLocked(gen, pageNumber, epoch)
		if !ok {
			s.mu.Unlock()
			logger.Debug().Str("figure", figureID).Msg("discarding stale chemistry result")
			return
		}

		p.inflight[figureID]--
		if p.inflight[figureID] <= 0 {
			delete(p.inflight, figureID)
		}

		next := p.record.Clone()
		if err != nil {
			// A concurrent request for this figure may already have resolved it;
			// only a placeholder with nothing else in flight reverts to absent.
			if entry := next.ChemistryResults[figureID]; entry.Pending && p.inflight[figureID] == 0 {
				delete(next.ChemistryResults, figureID)
			}
		} else {
			next.ChemistryResults[figureID] = domain.ChemistryEntry{
				SMILES:     result.SMILES,
				Confidence: result.Confidence,
			}
			logger.Info().Str("figure", figureID).Str("confidence", result.Confidence).Msg("chemistry resolved")
		}
		next.ChemistryBusy = len(p.inflight) > 0
		snapshot := s.commitLocked(p, next)
		s.mu.Unlock()

		s.publishPage(gen, snapshot)
	}()

	return done, nil
}

func (s *Session) extractChemistry(genCtx context.Context, image domain.RasterImage, box domain.BoundingBox) (domain.ChemicalResult, error) {
	crop, err := s.opts.Cropper.Crop(image, box)
	if err != nil {
		return domain.ChemicalResult{}, err
	}

	callCtx, cancel := context.WithTimeout(genCtx, s.opts.ChemistryTimeout)
	defer cancel()

	return s.opts.Extractor.ExtractChemicalStructure(callCtx, crop)
}
