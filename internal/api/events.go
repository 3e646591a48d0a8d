package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/spherical/paper-extractor/internal/domain"
	"github.com/spherical/paper-extractor/internal/events"
	"github.com/spherical/paper-extractor/internal/observability"
)

const keepAliveInterval = 15 * time.Second

// EventsHandler streams session events as Server-Sent Events.
type EventsHandler struct {
	logger *observability.Logger
	bus    events.Bus
}

// NewEventsHandler creates a new events handler.
func NewEventsHandler(logger *observability.Logger, bus events.Bus) *EventsHandler {
	return &EventsHandler{logger: logger, bus: bus}
}

// Stream handles GET /api/v1/events.
func (h *EventsHandler) Stream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, domain.APIError("streaming is not supported by this connection", nil))
		return
	}

	ctx := r.Context()
	ch, unsubscribe, err := h.bus.Subscribe(ctx)
	if err != nil {
		writeError(w, err)
		return
	}
	defer unsubscribe()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, ": connected\n\n")
	flusher.Flush()

	logger := h.logger.WithContext(ctx)
	logger.Debug().Msg("event stream opened")

	ticker := time.NewTicker(keepAliveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Debug().Msg("event stream closed by client")
			return
		case <-ticker.C:
			fmt.Fprint(w, ": ping\n\n")
			flusher.Flush()
		case ev, ok := <-ch:
			if !ok {
				return
			}
			if err := writeEvent(w, ev); err != nil {
				logger.Warn().Err(err).Msg("failed to write event")
				return
			}
			flusher.Flush()
		}
	}
}

func writeEvent(w http.ResponseWriter, ev domain.StreamEvent) error {
	if rec, ok := ev.Payload.(domain.PageRecord); ok {
		ev.Payload = toPageDTO(rec)
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "id: %s\nevent: %s\ndata: %s\n\n", ev.ID, ev.Type, data)
	return err
}
