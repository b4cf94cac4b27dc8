package main

import (
	"net/http"

	"github.com/mahaj/chunkchat/pkg/auth"
	"go.uber.org/zap"
)

type LoginRequest struct {
	UserID string `json:"user_id"`
	Email  string `json:"email,omitempty"`
}

type LoginResponse struct {
	Token string `json:"token"`
}

// LoginHandler issues a token for any user id. It stands in for the
// identity provider in development.
func LoginHandler(iss *auth.Issuer, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req LoginRequest
		if err := decode(r, &req); err != nil {
			writeError(w, log, err)
			return
		}
		if req.UserID == "" {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "user_id is required"})
			return
		}

		token, err := iss.GenerateToken(req.UserID, req.Email)
		if err != nil {
			log.Error("generate token", zap.Error(err))
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to generate token"})
			return
		}
		writeJSON(w, http.StatusOK, LoginResponse{Token: token})
	}
}
