package events

import (
	"encoding/json"
	"time"

	"github.com/spherical/paper-extractor/internal/domain"
)

// wireEvent is StreamEvent with the payload left undecoded.
type wireEvent struct {
	ID         string           `json:"id"`
	Type       domain.EventType `json:"type"`
	SessionID  string           `json:"session_id,omitempty"`
	PageNumber int              `json:"page_number,omitempty"`
	Payload    json.RawMessage  `json:"payload,omitempty"`
	Timestamp  time.Time        `json:"timestamp"`
}

// EncodeEvent marshals an event for transport between processes.
func EncodeEvent(event domain.StreamEvent) ([]byte, error) {
	return json.Marshal(event)
}

// DecodeEvent restores an event from transport. Page events get their
// payload back as a domain.PageRecord so subscribers see the same types as
// with the in-memory broker.
func DecodeEvent(data []byte) (domain.StreamEvent, error) {
	var w wireEvent
	if err := json.Unmarshal(data, &w); err != nil {
		return domain.StreamEvent{}, err
	}

	event := domain.StreamEvent{
		ID:         w.ID,
		Type:       w.Type,
		SessionID:  w.SessionID,
		PageNumber: w.PageNumber,
		Timestamp:  w.Timestamp,
	}
	if len(w.Payload) == 0 || string(w.Payload) == "null" {
		return event, nil
	}

	switch w.Type {
	case domain.EventPageUpdated, domain.EventPageRendered:
		var rec domain.PageRecord
		if err := json.Unmarshal(w.Payload, &rec); err != nil {
			return domain.StreamEvent{}, err
		}
		if rec.ChemistryResults == nil {
			rec.ChemistryResults = make(map[string]domain.ChemistryEntry)
		}
		event.Payload = rec
	default:
		var payload interface{}
		if err := json.Unmarshal(w.Payload, &payload); err != nil {
			return domain.StreamEvent{}, err
		}
		event.Payload = payload
	}
	return event, nil
}
