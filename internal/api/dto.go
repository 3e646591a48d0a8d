package api

import (
	"fmt"
	"time"

	"github.com/spherical/paper-extractor/internal/domain"
)

// PageDTO is the wire form of a page record.
type PageDTO struct {
	PageNumber    int         `json:"page_number"`
	Status        string      `json:"status"`
	ImageURL      string      `json:"image_url"`
	Width         int         `json:"width"`
	Height        int         `json:"height"`
	Markdown      *string     `json:"markdown,omitempty"`
	Figures       []FigureDTO `json:"figures"`
	ChemistryBusy bool        `json:"chemistry_busy"`
	Error         string      `json:"error,omitempty"`
	UpdatedAt     string      `json:"updated_at"`
}

// FigureDTO is a figure box with its overlay geometry and chemistry state.
type FigureDTO struct {
	ID        string                 `json:"id"`
	Index     int                    `json:"index"`
	Label     string                 `json:"label"`
	Box       domain.BoundingBox     `json:"box"`
	Overlay   domain.Overlay         `json:"overlay"`
	Valid     bool                   `json:"valid"`
	Chemistry *domain.ChemistryEntry `json:"chemistry,omitempty"`
}

// SessionDTO is the response for session level requests.
type SessionDTO struct {
	SessionID   string    `json:"session_id"`
	TotalPages  int       `json:"total_pages,omitempty"`
	FailedPages []int     `json:"failed_pages,omitempty"`
	Pages       []PageDTO `json:"pages"`
}

// AcceptedDTO is returned for commands that complete in the background.
type AcceptedDTO struct {
	SessionID  string `json:"session_id"`
	PageNumber int    `json:"page_number"`
	FigureID   string `json:"figure_id,omitempty"`
	Status     string `json:"status"`
}

func toPageDTO(rec domain.PageRecord) PageDTO {
	dto := PageDTO{
		PageNumber:    rec.PageNumber,
		Status:        string(rec.Status),
		ImageURL:      fmt.Sprintf("/api/v1/pages/%d/image", rec.PageNumber),
		Width:         rec.Image.Width,
		Height:        rec.Image.Height,
		Figures:       []FigureDTO{},
		ChemistryBusy: rec.ChemistryBusy,
		Error:         rec.LastError,
		UpdatedAt:     rec.UpdatedAt.UTC().Format(time.RFC3339Nano),
	}

	if rec.Content != nil {
		md := rec.Content.Markdown
		dto.Markdown = &md
		for i, box := range rec.Content.Figures {
			id := domain.FigureID(i)
			fig := FigureDTO{
				ID:      id,
				Index:   i,
				Label:   box.Label,
				Box:     box,
				Overlay: box.Overlay(),
				Valid:   box.Validate() == nil,
			}
			if entry, ok := rec.ChemistryResults[id]; ok {
				e := entry
				fig.Chemistry = &e
			}
			dto.Figures = append(dto.Figures, fig)
		}
	}
	return dto
}

func toPageDTOs(records []domain.PageRecord) []PageDTO {
	out := make([]PageDTO, 0, len(records))
	for _, rec := range records {
		out = append(out, toPageDTO(rec))
	}
	return out
}
