package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/zedaapi/instance-gateway/internal/groups"
)

// GroupsHandler exposes the instance-group CRUD and membership endpoints
// named in spec.md §6.
type GroupsHandler struct {
	service  *groups.Service
	validate *validator.Validate
	log      *slog.Logger
}

func NewGroupsHandler(service *groups.Service, log *slog.Logger) *GroupsHandler {
	return &GroupsHandler{service: service, validate: validator.New(), log: log.With(slog.String("component", "groups_handler"))}
}

func (h *GroupsHandler) Register(r chi.Router) {
	r.Route("/instance-group", func(gr chi.Router) {
		gr.Post("/", h.create)
		gr.Get("/", h.list)
		gr.Get("/name/{name}", h.getByName)
		gr.Get("/alias/{alias}", h.getByAlias)
		gr.Get("/{id}", h.get)
		gr.Put("/{id}", h.update)
		gr.Delete("/{id}", h.delete)
		gr.Post("/{id}/addInstance", h.addInstance)
		gr.Post("/{id}/removeInstance", h.removeInstance)
		gr.Get("/{id}/activeInstances", h.activeInstances)
		gr.Get("/{id}/stats", h.stats)
	})
}

func (h *GroupsHandler) parseID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid group id")
		return uuid.UUID{}, false
	}
	return id, true
}

func (h *GroupsHandler) create(w http.ResponseWriter, r *http.Request) {
	var in groups.CreateInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		respondError(w, http.StatusBadRequest, "invalid json payload")
		return
	}
	if err := h.validate.Struct(in); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	group, err := h.service.Create(r.Context(), in)
	if err != nil {
		handleServiceError(r.Context(), w, h.log, err)
		return
	}
	respondJSON(w, http.StatusCreated, group)
}

func (h *GroupsHandler) list(w http.ResponseWriter, r *http.Request) {
	list, err := h.service.List(r.Context())
	if err != nil {
		handleServiceError(r.Context(), w, h.log, err)
		return
	}
	respondJSON(w, http.StatusOK, list)
}

func (h *GroupsHandler) get(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r)
	if !ok {
		return
	}
	group, err := h.service.Get(r.Context(), id)
	if err != nil {
		handleServiceError(r.Context(), w, h.log, err)
		return
	}
	respondJSON(w, http.StatusOK, group)
}

func (h *GroupsHandler) getByName(w http.ResponseWriter, r *http.Request) {
	group, err := h.service.GetByName(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		handleServiceError(r.Context(), w, h.log, err)
		return
	}
	respondJSON(w, http.StatusOK, group)
}

func (h *GroupsHandler) getByAlias(w http.ResponseWriter, r *http.Request) {
	group, err := h.service.GetByAlias(r.Context(), chi.URLParam(r, "alias"))
	if err != nil {
		handleServiceError(r.Context(), w, h.log, err)
		return
	}
	respondJSON(w, http.StatusOK, group)
}

func (h *GroupsHandler) update(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r)
	if !ok {
		return
	}
	var in groups.UpdateInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		respondError(w, http.StatusBadRequest, "invalid json payload")
		return
	}
	if err := h.validate.Struct(in); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	group, err := h.service.Update(r.Context(), id, in)
	if err != nil {
		handleServiceError(r.Context(), w, h.log, err)
		return
	}
	respondJSON(w, http.StatusOK, group)
}

func (h *GroupsHandler) delete(w http.ResponseWriter, r *http.Request) {
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

type instanceMembershipRequest struct {
	Instance string `json:"instance" validate:"required"`
}

func (h *GroupsHandler) addInstance(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r)
	if !ok {
		return
	}
	var req instanceMembershipRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid json payload")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	group, err := h.service.AddInstance(r.Context(), id, req.Instance)
	if err != nil {
		handleServiceError(r.Context(), w, h.log, err)
		return
	}
	respondJSON(w, http.StatusOK, group)
}

func (h *GroupsHandler) removeInstance(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r)
	if !ok {
		return
	}
	var req instanceMembershipRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid json payload")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	group, err := h.service.RemoveInstance(r.Context(), id, req.Instance)
	if err != nil {
		handleServiceError(r.Context(), w, h.log, err)
		return
	}
	respondJSON(w, http.StatusOK, group)
}

func (h *GroupsHandler) activeInstances(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r)
	if !ok {
		return
	}
	active, err := h.service.ActiveInstances(r.Context(), id)
	if err != nil {
		handleServiceError(r.Context(), w, h.log, err)
		return
	}
	respondJSON(w, http.StatusOK, active)
}

func (h *GroupsHandler) stats(w http.ResponseWriter, r *http.Request) {
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
