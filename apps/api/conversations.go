package main

import (
	"net/http"

	"github.com/mahaj/chunkchat/pkg/auth"
	"github.com/mahaj/chunkchat/pkg/chat"
	"go.uber.org/zap"
)

// ContactsHandler lists the caller's rooms, most recently active first.
func ContactsHandler(svc *chat.Service, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, ok := auth.ClaimsFrom(r.Context())
		if !ok {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
			return
		}

		rooms, err := svc.Contacts(r.Context(), claims.UserID)
		if err != nil {
			writeError(w, log, err)
			return
		}
		writeJSON(w, http.StatusOK, rooms)
	}
}
