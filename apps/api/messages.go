package main

import (
	"net/http"

	"github.com/mahaj/chunkchat/pkg/chat"
	"github.com/mahaj/chunkchat/pkg/model"
	"go.uber.org/zap"
)

type SendRequest struct {
	RoomID   string            `json:"roomId"`
	Sender   string            `json:"sender"`
	Content  string            `json:"content"`
	Type     model.MessageType `json:"type"`
	FileName string            `json:"fileName,omitempty"`
	FileSize int64             `json:"fileSize,omitempty"`
	FileType string            `json:"fileType,omitempty"`
	ReplyTo  string            `json:"replyTo,omitempty"`
}

type SendResponse struct {
	Success   bool   `json:"success"`
	MessageID string `json:"messageId"`
	Timestamp int64  `json:"timestamp"`
}

type ReactRequest struct {
	RoomID    string `json:"roomId"`
	MessageID string `json:"messageId"`
	Emoji     string `json:"emoji"`
	UserName  string `json:"userName"`
	Remove    bool   `json:"remove,omitempty"`
}

type MessageHandler struct {
	svc *chat.Service
	log *zap.Logger
}

func NewMessageHandler(svc *chat.Service, log *zap.Logger) *MessageHandler {
	return &MessageHandler{svc: svc, log: log}
}

func (h *MessageHandler) Send(w http.ResponseWriter, r *http.Request) {
	var req SendRequest
	if err := decode(r, &req); err != nil {
		writeError(w, h.log, err)
		return
	}
	sender, err := identity(r, req.Sender)
	if err != nil {
		writeError(w, h.log, err)
		return
	}

	m, err := h.svc.Send(r.Context(), req.RoomID, model.Message{
		Sender:   sender,
		Content:  req.Content,
		Type:     req.Type,
		FileName: req.FileName,
		FileSize: req.FileSize,
		FileType: req.FileType,
		ReplyTo:  req.ReplyTo,
	})
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, SendResponse{Success: true, MessageID: m.ID, Timestamp: m.Timestamp})
}

func (h *MessageHandler) React(w http.ResponseWriter, r *http.Request) {
	var req ReactRequest
	if err := decode(r, &req); err != nil {
		writeError(w, h.log, err)
		return
	}
	user, err := identity(r, req.UserName)
	if err != nil {
		writeError(w, h.log, err)
		return
	}

	if _, err := h.svc.React(r.Context(), req.RoomID, req.MessageID, req.Emoji, user, req.Remove); err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}
