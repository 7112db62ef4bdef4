package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"regexp"

	"github.com/go-chi/chi/v5"

	"github.com/zedaapi/instance-gateway/internal/api"
)

// MessageHandler exposes the group-balanced send endpoint named in
// spec.md §6.
type MessageHandler struct {
	sender *api.BalancedSender
	log    *slog.Logger
}

func NewMessageHandler(sender *api.BalancedSender, log *slog.Logger) *MessageHandler {
	return &MessageHandler{sender: sender, log: log.With(slog.String("component", "message_handler"))}
}

func (h *MessageHandler) Register(r chi.Router) {
	r.Route("/message", func(mr chi.Router) {
		mr.Post("/sendTextWithGroupBalancing", h.sendTextWithGroupBalancing)
	})
}

var contactPattern = regexp.MustCompile(`^\d+[.@\w-]+$`)

type sendTextWithGroupBalancingRequest struct {
	GroupAlias string `json:"alias"`
	Number     string `json:"number"`
	Text       string `json:"text"`
}

type balancingInfo struct {
	Contact                string   `json:"contact"`
	GroupID                string   `json:"groupId"`
	LastUsedInstance       string   `json:"lastUsedInstance"`
	UsedInstancesInCycle   []string `json:"usedInstancesInCycle"`
	RotationCount          int      `json:"rotationCount"`
	GlobalLastUsedInstance string   `json:"globalLastUsedInstance"`
	GlobalRotationCount    int      `json:"globalRotationCount"`
}

type sendTextWithGroupBalancingResponse struct {
	MessageID     string        `json:"messageId"`
	InstanceUsed  string        `json:"instanceUsed"`
	GroupID       string        `json:"groupId"`
	GroupAlias    string        `json:"groupAlias"`
	BalancingInfo balancingInfo `json:"balancingInfo"`
}

func (h *MessageHandler) sendTextWithGroupBalancing(w http.ResponseWriter, r *http.Request) {
	var req sendTextWithGroupBalancingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid json payload")
		return
	}
	if req.GroupAlias == "" {
		respondError(w, http.StatusBadRequest, "alias is required")
		return
	}
	if req.Text == "" {
		respondError(w, http.StatusBadRequest, "text is required")
		return
	}
	if !contactPattern.MatchString(req.Number) {
		respondError(w, http.StatusBadRequest, "number must be a valid contact identifier")
		return
	}

	selection, result, err := h.sender.SendTextWithGroupBalancing(r.Context(), req.GroupAlias, req.Number, req.Text)
	if err != nil {
		handleServiceError(r.Context(), w, h.log, err)
		return
	}

	respondJSON(w, http.StatusOK, sendTextWithGroupBalancingResponse{
		MessageID:    result.MessageID,
		InstanceUsed: selection.Instance,
		GroupID:      selection.GroupID.String(),
		GroupAlias:   selection.GroupAlias,
		BalancingInfo: balancingInfo{
			Contact:                selection.Contact,
			GroupID:                selection.GroupID.String(),
			LastUsedInstance:       selection.LastUsedInstance,
			UsedInstancesInCycle:   selection.UsedInstancesInCycle,
			RotationCount:          selection.RotationCount,
			GlobalLastUsedInstance: selection.GlobalLastUsed,
			GlobalRotationCount:    selection.GlobalRotationCount,
		},
	})
}
