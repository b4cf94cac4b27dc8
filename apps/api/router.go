package main

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/mahaj/chunkchat/pkg/auth"
	"github.com/mahaj/chunkchat/pkg/chat"
	"github.com/rs/cors"
	"go.uber.org/zap"
)

// newRouter builds the HTTP surface. ping backs /health.
func newRouter(svc *chat.Service, iss *auth.Issuer, ping func(context.Context) error, log *zap.Logger) http.Handler {
	r := mux.NewRouter()
	r.Use(logRequests(log))

	r.HandleFunc("/health", healthHandler(ping)).Methods(http.MethodGet)
	r.Handle("/login", LoginHandler(iss, log)).Methods(http.MethodPost)

	api := r.NewRoute().Subrouter()
	api.Use(iss.Middleware)

	messages := NewMessageHandler(svc, log)
	history := NewHistoryHandler(svc, log)
	reads := NewReadHandler(svc, log)
	presence := NewPresenceHandler(svc, log)

	api.HandleFunc("/messages/send", messages.Send).Methods(http.MethodPost)
	api.HandleFunc("/messages/react", messages.React).Methods(http.MethodPost)
	api.HandleFunc("/messages/latest/{roomId}", history.Latest).Methods(http.MethodGet)
	api.HandleFunc("/messages/older/{roomId}/{chunkId}", history.Older).Methods(http.MethodGet)
	api.HandleFunc("/messages/pending/{roomId}", history.Pending).Methods(http.MethodGet)
	api.HandleFunc("/messages/unread-count/{roomId}", reads.UnreadCount).Methods(http.MethodGet)
	api.HandleFunc("/messages/mark-read", reads.MarkRead).Methods(http.MethodPost)
	api.HandleFunc("/contacts", ContactsHandler(svc, log)).Methods(http.MethodGet)
	api.HandleFunc("/rooms/{roomId}/users", presence.RoomUsers).Methods(http.MethodGet)
	api.HandleFunc("/users/{userId}/status", presence.UserStatus).Methods(http.MethodGet)

	c := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", "Authorization"},
	})
	return c.Handler(r)
}

func healthHandler(ping func(context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := ping(ctx); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded", "error": err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func logRequests(log *zap.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)
			log.Debug("request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", rec.status),
				zap.Duration("took", time.Since(start)),
			)
		})
	}
}
