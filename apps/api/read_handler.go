package main

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/mahaj/chunkchat/pkg/chat"
	"go.uber.org/zap"
)

type ReadRequest struct {
	RoomID            string `json:"roomId"`
	UserID            string `json:"userId"`
	LastReadMessageID string `json:"lastReadMessageId"`
}

type ReadHandler struct {
	svc *chat.Service
	log *zap.Logger
}

func NewReadHandler(svc *chat.Service, log *zap.Logger) *ReadHandler {
	return &ReadHandler{svc: svc, log: log}
}

func (h *ReadHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	var req ReadRequest
	if err := decode(r, &req); err != nil {
		writeError(w, h.log, err)
		return
	}
	user, err := identity(r, req.UserID)
	if err != nil {
		writeError(w, h.log, err)
		return
	}

	if _, err := h.svc.MarkRead(r.Context(), req.RoomID, user, req.LastReadMessageID); err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (h *ReadHandler) UnreadCount(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	user, err := identity(r, q.Get("userId"))
	if err != nil {
		writeError(w, h.log, err)
		return
	}

	var lastRead int64
	if s := q.Get("lastRead"); s != "" {
		lastRead, err = strconv.ParseInt(s, 10, 64)
		if err != nil || lastRead < 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "lastRead must be epoch milliseconds"})
			return
		}
	}

	count := h.svc.UnreadCount(r.Context(), mux.Vars(r)["roomId"], user, lastRead)
	writeJSON(w, http.StatusOK, map[string]int{"count": count})
}
