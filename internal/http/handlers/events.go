package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/zedaapi/instance-gateway/internal/api"
	"github.com/zedaapi/instance-gateway/internal/webhooks"
)

// EventsHandler exposes the event source named in spec.md §2's data-flow
// diagram: the entry point instance workers use to publish a domain event
// for asynchronous webhook fan-out.
type EventsHandler struct {
	publisher *api.EventPublisher
	log       *slog.Logger
}

func NewEventsHandler(publisher *api.EventPublisher, log *slog.Logger) *EventsHandler {
	return &EventsHandler{publisher: publisher, log: log.With(slog.String("component", "events_handler"))}
}

func (h *EventsHandler) Register(r chi.Router) {
	r.Route("/events", func(er chi.Router) {
		er.Post("/publish", h.publish)
	})
}

type publishEventRequest struct {
	Event    string          `json:"event"`
	Instance *string         `json:"instance,omitempty"`
	Data     json.RawMessage `json:"data"`
}

func (h *EventsHandler) publish(w http.ResponseWriter, r *http.Request) {
	var req publishEventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid json payload")
		return
	}
	if !webhooks.IsValidEventKind(req.Event) {
		respondError(w, http.StatusBadRequest, "unknown event kind")
		return
	}
	if len(req.Data) == 0 {
		req.Data = json.RawMessage(`{}`)
	}

	if err := h.publisher.Dispatch(r.Context(), req.Event, req.Instance, req.Data); err != nil {
		handleServiceError(r.Context(), w, h.log, err)
		return
	}
	respondJSON(w, http.StatusAccepted, map[string]bool{"published": true})
}
