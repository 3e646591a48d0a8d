package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/spherical/paper-extractor/internal/domain"
	"github.com/spherical/paper-extractor/internal/observability"
	"github.com/spherical/paper-extractor/internal/pdf"
	"github.com/spherical/paper-extractor/internal/pipeline"
	"github.com/spherical/paper-extractor/internal/raster"
)

// Pipeline is the part of pipeline.Session the handlers drive.
type Pipeline interface {
	Load(ctx context.Context, data []byte) (*pipeline.LoadResult, error)
	Reset()
	Snapshot() (string, []domain.PageRecord)
	Page(pageNumber int) (domain.PageRecord, error)
	ProcessPage(ctx context.Context, pageNumber int) (<-chan struct{}, error)
	IdentifyStructure(ctx context.Context, pageNumber, figureIndex int) (<-chan struct{}, error)
}

// SessionHandler serves the session, page and figure routes.
type SessionHandler struct {
	logger    *observability.Logger
	session   Pipeline
	validator *pdf.Validator
	maxBytes  int64
}

// NewSessionHandler creates a new session handler.
func NewSessionHandler(logger *observability.Logger, session Pipeline, maxBytes int64) *SessionHandler {
	return &SessionHandler{
		logger:    logger,
		session:   session,
		validator: pdf.NewValidator(maxBytes),
		maxBytes:  maxBytes,
	}
}

// Upload handles POST /api/v1/session. The body is either the raw PDF or a
// multipart form with a "file" field.
func (h *SessionHandler) Upload(w http.ResponseWriter, r *http.Request) {
	data, contentType, err := h.readUpload(w, r)
	if err != nil {
		writeError(w, err)
		return
	}

	if err := h.validator.ValidateUpload(contentType, data); err != nil {
		writeError(w, err)
		return
	}

	res, err := h.session.Load(r.Context(), data)
	if err != nil {
		h.logger.WithContext(r.Context()).Warn().Err(err).Msg("document load failed")
		writeError(w, err)
		return
	}

	_, pages := h.session.Snapshot()
	writeJSON(w, http.StatusCreated, SessionDTO{
		SessionID:   res.SessionID,
		TotalPages:  res.TotalPages,
		FailedPages: res.FailedPages,
		Pages:       toPageDTOs(pages),
	})
}

func (h *SessionHandler) readUpload(w http.ResponseWriter, r *http.Request) ([]byte, string, error) {
	limit := h.maxBytes
	if limit > 0 {
		// multipart framing needs some headroom over the file itself
		r.Body = http.MaxBytesReader(w, r.Body, limit+1<<20)
	}

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType != "multipart/form-data" {
		data, err := io.ReadAll(r.Body)
		if err != nil {
			return nil, "", uploadReadError(err)
		}
		return data, r.Header.Get("Content-Type"), nil
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) {
			return nil, "", domain.ValidationError("multipart field \"file\" is required", err)
		}
		return nil, "", uploadReadError(err)
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, "", uploadReadError(err)
	}
	return data, header.Header.Get("Content-Type"), nil
}

func uploadReadError(err error) error {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return domain.ValidationError("upload exceeds the size limit", err)
	}
	return domain.IOError("failed to read upload", err)
}

// Reset handles DELETE /api/v1/session.
func (h *SessionHandler) Reset(w http.ResponseWriter, r *http.Request) {
	h.session.Reset()
	gen, _ := h.session.Snapshot()
	writeJSON(w, http.StatusOK, SessionDTO{SessionID: gen, Pages: []PageDTO{}})
}

// ListPages handles GET /api/v1/pages.
func (h *SessionHandler) ListPages(w http.ResponseWriter, r *http.Request) {
	gen, pages := h.session.Snapshot()
	writeJSON(w, http.StatusOK, SessionDTO{SessionID: gen, Pages: toPageDTOs(pages)})
}

// GetPage handles GET /api/v1/pages/{page}.
func (h *SessionHandler) GetPage(w http.ResponseWriter, r *http.Request) {
	n, err := pageParam(r)
	if err != nil {
		writeError(w, err)
		return
	}
	rec, err := h.session.Page(n)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toPageDTO(rec))
}

// GetImage handles GET /api/v1/pages/{page}/image. With ?format=datauri the
// PNG is returned as a data URI string instead of raw bytes.
func (h *SessionHandler) GetImage(w http.ResponseWriter, r *http.Request) {
	n, err := pageParam(r)
	if err != nil {
		writeError(w, err)
		return
	}
	rec, err := h.session.Page(n)
	if err != nil {
		writeError(w, err)
		return
	}

	if r.URL.Query().Get("format") == "datauri" {
		writeJSON(w, http.StatusOK, map[string]string{"data_uri": raster.DataURI(rec.Image)})
		return
	}

	w.Header().Set("Content-Type", domain.PNGMimeType)
	w.Header().Set("Content-Length", strconv.Itoa(len(rec.Image.Data)))
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(rec.Image.Data)
}

// Process handles POST /api/v1/pages/{page}/process.
func (h *SessionHandler) Process(w http.ResponseWriter, r *http.Request) {
	n, err := pageParam(r)
	if err != nil {
		writeError(w, err)
		return
	}
	if _, err := h.session.ProcessPage(r.Context(), n); err != nil {
		writeError(w, err)
		return
	}

	gen, _ := h.session.Snapshot()
	writeJSON(w, http.StatusAccepted, AcceptedDTO{
		SessionID:  gen,
		PageNumber: n,
		Status:     string(domain.StatusProcessing),
	})
}

// Identify handles POST /api/v1/pages/{page}/figures/{figure}/identify.
func (h *SessionHandler) Identify(w http.ResponseWriter, r *http.Request) {
	n, err := pageParam(r)
	if err != nil {
		writeError(w, err)
		return
	}
	index, err := figureParam(r)
	if err != nil {
		writeError(w, err)
		return
	}
	if _, err := h.session.IdentifyStructure(r.Context(), n, index); err != nil {
		writeError(w, err)
		return
	}

	gen, _ := h.session.Snapshot()
	writeJSON(w, http.StatusAccepted, AcceptedDTO{
		SessionID:  gen,
		PageNumber: n,
		FigureID:   domain.FigureID(index),
		Status:     "pending",
	})
}

func pageParam(r *http.Request) (int, error) {
	raw := chi.URLParam(r, "page")
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return 0, domain.ValidationError("invalid page number "+strconv.Quote(raw), err)
	}
	return n, nil
}

// figureParam accepts either a figure id ("fig-2") or a bare index ("2").
func figureParam(r *http.Request) (int, error) {
	raw := chi.URLParam(r, "figure")
	if i, err := strconv.Atoi(raw); err == nil && i >= 0 {
		return i, nil
	}
	return domain.ParseFigureID(raw)
}

type errorResponse struct {
	Error   string `json:"error"`
	Type    string `json:"type,omitempty"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	msg := http.StatusText(status)
	if status < 500 {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{
		Error:   http.StatusText(status),
		Type:    string(domain.TypeOf(err)),
		Message: msg,
	})
}

// statusFor maps domain errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrNoDocument),
		errors.Is(err, domain.ErrPageNotFound),
		errors.Is(err, domain.ErrFigureNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrPageBusy),
		errors.Is(err, domain.ErrPageNotDone):
		return http.StatusConflict
	case errors.Is(err, domain.ErrInvalidBox):
		return http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrNotPDF):
		return http.StatusUnsupportedMediaType
	}

	switch domain.TypeOf(err) {
	case domain.ErrorTypeValidation:
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return http.StatusRequestEntityTooLarge
		}
		return http.StatusBadRequest
	case domain.ErrorTypeDecode, domain.ErrorTypeRender:
		return http.StatusUnprocessableEntity
	case domain.ErrorTypeState:
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}
