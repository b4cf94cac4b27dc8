package main

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/mahaj/chunkchat/pkg/chat"
	"github.com/mahaj/chunkchat/pkg/model"
	"go.uber.org/zap"
)

// HistoryHandler serves room history pages. Reads never fail on cache or
// store trouble; they return what could be loaded.
type HistoryHandler struct {
	svc *chat.Service
	log *zap.Logger
}

func NewHistoryHandler(svc *chat.Service, log *zap.Logger) *HistoryHandler {
	return &HistoryHandler{svc: svc, log: log}
}

func (h *HistoryHandler) Latest(w http.ResponseWriter, r *http.Request) {
	roomID := mux.Vars(r)["roomId"]
	writeJSON(w, http.StatusOK, h.svc.GetLatest(r.Context(), roomID))
}

func (h *HistoryHandler) Older(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	page, err := h.svc.GetOlder(r.Context(), vars["roomId"], vars["chunkId"])
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (h *HistoryHandler) Pending(w http.ResponseWriter, r *http.Request) {
	roomID := mux.Vars(r)["roomId"]
	writeJSON(w, http.StatusOK, struct {
		Messages []model.Message `json:"messages"`
	}{h.svc.GetPending(r.Context(), roomID)})
}
