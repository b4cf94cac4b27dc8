package main

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/mahaj/chunkchat/pkg/auth"
	"github.com/mahaj/chunkchat/pkg/chat"
	"github.com/mahaj/chunkchat/pkg/chunk"
	"go.uber.org/zap"
)

var errForbidden = errors.New("identity does not match token")

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, chunk.ErrInvalidMessage),
		errors.Is(err, chunk.ErrDocumentTooLarge),
		errors.Is(err, chat.ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(err, errForbidden):
		return http.StatusForbidden
	case errors.Is(err, chunk.ErrMessageNotFound):
		return http.StatusNotFound
	}
	return http.StatusServiceUnavailable
}

func writeError(w http.ResponseWriter, log *zap.Logger, err error) {
	status := statusFor(err)
	msg := err.Error()
	if status == http.StatusServiceUnavailable {
		log.Error("request failed", zap.Error(err))
		msg = "service temporarily unavailable"
	}
	writeJSON(w, status, map[string]string{"error": msg})
}

// identity resolves the acting user. An empty claimed id defaults to the
// token's user; a different one is refused.
func identity(r *http.Request, claimed string) (string, error) {
	claims, ok := auth.ClaimsFrom(r.Context())
	if !ok {
		return claimed, nil
	}
	if claimed == "" || claimed == claims.UserID {
		return claims.UserID, nil
	}
	return "", errForbidden
}

func decode(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return errors.Join(chat.ErrInvalidRequest, err)
	}
	return nil
}
