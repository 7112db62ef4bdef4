package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/zedaapi/instance-gateway/internal/webhooks"
)

// WebhooksHandler exposes the external-webhook CRUD, toggle, stats, and
// test endpoints named in spec.md §6.
type WebhooksHandler struct {
	service  *webhooks.Service
	validate *validator.Validate
	log      *slog.Logger
}

func NewWebhooksHandler(service *webhooks.Service, log *slog.Logger) *WebhooksHandler {
	return &WebhooksHandler{service: service, validate: validator.New(), log: log.With(slog.String("component", "webhooks_handler"))}
}

func (h *WebhooksHandler) Register(r chi.Router) {
	r.Route("/external-webhook", func(wr chi.Router) {
		wr.Post("/", h.create)
		wr.Get("/", h.list)
		wr.Get("/{id}", h.get)
		wr.Put("/{id}", h.update)
		wr.Delete("/{id}", h.delete)
		wr.Patch("/{id}/toggle", h.toggle)
		wr.Get("/{id}/stats", h.stats)
		wr.Post("/{id}/test", h.test)
	})
}

func (h *WebhooksHandler) parseID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid webhook id")
		return uuid.UUID{}, false
	}
	return id, true
}

func (h *WebhooksHandler) create(w http.ResponseWriter, r *http.Request) {
	var in webhooks.CreateInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		respondError(w, http.StatusBadRequest, "invalid json payload")
		return
	}
	if err := h.validate.Struct(in); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	sub, err := h.service.Create(r.Context(), in)
	if err != nil {
		handleServiceError(r.Context(), w, h.log, err)
		return
	}
	respondJSON(w, http.StatusCreated, sub)
}

func (h *WebhooksHandler) list(w http.ResponseWriter, r *http.Request) {
	list, err := h.service.List(r.Context())
	if err != nil {
		handleServiceError(r.Context(), w, h.log, err)
		return
	}
	respondJSON(w, http.StatusOK, list)
}

func (h *WebhooksHandler) get(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r)
	if !ok {
		return
	}
	sub, err := h.service.Get(r.Context(), id)
	if err != nil {
		handleServiceError(r.Context(), w, h.log, err)
		return
	}
	respondJSON(w, http.StatusOK, sub)
}

func (h *WebhooksHandler) update(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r)
	if !ok {
		return
	}
	var in webhooks.UpdateInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		respondError(w, http.StatusBadRequest, "invalid json payload")
		return
	}
	sub, err := h.service.Update(r.Context(), id, in)
	if err != nil {
		handleServiceError(r.Context(), w, h.log, err)
		return
	}
	respondJSON(w, http.StatusOK, sub)
}

func (h *WebhooksHandler) delete(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r)
	if !ok {
		return
	}
	if err := h.service.Delete(r.Context(), id); err != nil {
		handleServiceError(r.Context(), w, h.log, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]bool{"deleted": true})
}

func (h *WebhooksHandler) toggle(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r)
	if !ok {
		return
	}
	sub, err := h.service.Toggle(r.Context(), id)
	if err != nil {
		handleServiceError(r.Context(), w, h.log, err)
		return
	}
	respondJSON(w, http.StatusOK, sub)
}

func (h *WebhooksHandler) stats(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r)
	if !ok {
		return
	}
	stats, err := h.service.Stats(r.Context(), id)
	if err != nil {
		handleServiceError(r.Context(), w, h.log, err)
		return
	}
	respondJSON(w, http.StatusOK, stats)
}

func (h *WebhooksHandler) test(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r)
	if !ok {
		return
	}
	result, err := h.service.TestDelivery(r.Context(), id)
	if err != nil {
		handleServiceError(r.Context(), w, h.log, err)
		return
	}
	respondJSON(w, http.StatusOK, result)
}
