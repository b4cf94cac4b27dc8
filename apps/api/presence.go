package main

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/mahaj/chunkchat/pkg/chat"
	"go.uber.org/zap"
)

type PresenceHandler struct {
	svc *chat.Service
	log *zap.Logger
}

func NewPresenceHandler(svc *chat.Service, log *zap.Logger) *PresenceHandler {
	return &PresenceHandler{svc: svc, log: log}
}

// RoomUsers serves /rooms/{roomId}/users.
func (h *PresenceHandler) RoomUsers(w http.ResponseWriter, r *http.Request) {
	roomID := mux.Vars(r)["roomId"]
	users, err := h.svc.Presence(r.Context(), roomID)
	if err != nil {
		h.log.Warn("fetch presence", zap.String("room", roomID), zap.Error(err))
		users = []string{}
	}
	writeJSON(w, http.StatusOK, users)
}

func (h *PresenceHandler) UserStatus(w http.ResponseWriter, r *http.Request) {
	userID := mux.Vars(r)["userId"]
	writeJSON(w, http.StatusOK, map[string]string{
		"userId": userID,
		"status": h.svc.Status(r.Context(), userID),
	})
}
