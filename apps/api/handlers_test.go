package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/mahaj/chunkchat/pkg/auth"
	"github.com/mahaj/chunkchat/pkg/cache"
	"github.com/mahaj/chunkchat/pkg/chat"
	"github.com/mahaj/chunkchat/pkg/chunk"
	"github.com/mahaj/chunkchat/pkg/snowflake"
	"github.com/mahaj/chunkchat/pkg/store"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type testAPI struct {
	handler http.Handler
	engine  *chunk.Engine
	iss     *auth.Issuer
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	node, err := snowflake.NewNode(3)
	require.NoError(t, err)
	c := cache.New(rdb, cache.DefaultTTLs())
	st := store.NewMemory()
	engine := chunk.New(c, st, node, zap.NewNop(), chunk.DefaultOptions())
	svc := chat.NewService(engine, c, st, nil, node, zap.NewNop())
	iss := auth.NewIssuer("test-secret", time.Hour)
	ping := func(ctx context.Context) error { return rdb.Ping(ctx).Err() }

	return &testAPI{
		handler: newRouter(svc, iss, ping, zap.NewNop()),
		engine:  engine,
		iss:     iss,
	}
}

func (a *testAPI) do(t *testing.T, user, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if user != "" {
		token, err := a.iss.GenerateToken(user, "")
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	a.handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	return v
}

func TestLoginIssuesToken(t *testing.T) {
	api := newTestAPI(t)

	rec := api.do(t, "", http.MethodPost, "/login", LoginRequest{UserID: "alice"})
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeBody[LoginResponse](t, rec)
	claims, err := api.iss.ValidateToken(resp.Token)
	require.NoError(t, err)
	assert.Equal(t, "alice", claims.UserID)

	rec = api.do(t, "", http.MethodPost, "/login", LoginRequest{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	api := newTestAPI(t)

	rec := api.do(t, "", http.MethodGet, "/messages/latest/r1", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = api.do(t, "", http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestSendAndReadBack(t *testing.T) {
	api := newTestAPI(t)

	rec := api.do(t, "alice", http.MethodPost, "/messages/send", SendRequest{RoomID: "r1", Content: "hello", Type: "text"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	sent := decodeBody[SendResponse](t, rec)
	assert.True(t, sent.Success)
	assert.NotEmpty(t, sent.MessageID)

	rec = api.do(t, "bob", http.MethodGet, "/messages/pending/r1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), sent.MessageID)

	_, err := api.engine.DrainRoom(context.Background(), "r1")
	require.NoError(t, err)

	rec = api.do(t, "bob", http.MethodGet, "/messages/latest/r1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	page := decodeBody[chat.Page](t, rec)
	assert.Equal(t, "chunk_1", page.ChunkID)
	assert.False(t, page.HasMore)
	require.Len(t, page.Messages, 1)
	assert.Equal(t, "alice", page.Messages[0].Sender)
	assert.Equal(t, "hello", page.Messages[0].Content)

	rec = api.do(t, "bob", http.MethodGet, "/messages/older/r1/chunk_1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"id":"chunk_1","messages":[],"hasMore":false}`, rec.Body.String())

	rec = api.do(t, "bob", http.MethodGet, "/messages/older/r1/nope", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSendRejections(t *testing.T) {
	api := newTestAPI(t)

	rec := api.do(t, "alice", http.MethodPost, "/messages/send", SendRequest{
		RoomID: "r1", Content: "x", Type: "document", FileName: "big.pdf", FileSize: 3670016,
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "3MB")

	rec = api.do(t, "alice", http.MethodPost, "/messages/send", SendRequest{RoomID: "r1", Sender: "mallory", Content: "x"})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = api.do(t, "alice", http.MethodPost, "/messages/send", SendRequest{RoomID: "r1"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = api.do(t, "bob", http.MethodGet, "/messages/pending/r1", nil)
	assert.JSONEq(t, `{"messages":[]}`, rec.Body.String())
}

func TestReactAndReads(t *testing.T) {
	api := newTestAPI(t)

	rec := api.do(t, "alice", http.MethodPost, "/messages/send", SendRequest{RoomID: "r1", Content: "hi"})
	require.Equal(t, http.StatusOK, rec.Code)
	sent := decodeBody[SendResponse](t, rec)

	rec = api.do(t, "bob", http.MethodPost, "/messages/react", ReactRequest{RoomID: "r1", MessageID: sent.MessageID, Emoji: "👍"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = api.do(t, "bob", http.MethodPost, "/messages/react", ReactRequest{RoomID: "r1", MessageID: "1_none", Emoji: "👍"})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = api.do(t, "bob", http.MethodGet, "/messages/unread-count/r1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"count":1}`, rec.Body.String())

	rec = api.do(t, "bob", http.MethodPost, "/messages/mark-read", ReadRequest{RoomID: "r1", LastReadMessageID: sent.MessageID})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = api.do(t, "bob", http.MethodGet, "/messages/unread-count/r1?userId=bob", nil)
	assert.JSONEq(t, `{"count":0}`, rec.Body.String())

	rec = api.do(t, "bob", http.MethodGet, "/messages/unread-count/r1?lastRead=1", nil)
	assert.JSONEq(t, `{"count":1}`, rec.Body.String())

	rec = api.do(t, "bob", http.MethodGet, "/messages/unread-count/r1?lastRead=abc", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = api.do(t, "alice", http.MethodGet, "/contacts", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"room_id":"r1"`)

	rec = api.do(t, "alice", http.MethodGet, "/users/bob/status", nil)
	assert.JSONEq(t, `{"userId":"bob","status":"offline"}`, rec.Body.String())

	rec = api.do(t, "alice", http.MethodGet, "/rooms/r1/users", nil)
	assert.JSONEq(t, `[]`, rec.Body.String())
}

func TestCORSPreflight(t *testing.T) {
	api := newTestAPI(t)

	req := httptest.NewRequest(http.MethodOptions, "/messages/send", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	req.Header.Set("Access-Control-Request-Headers", "Authorization")
	rec := httptest.NewRecorder()
	api.handler.ServeHTTP(rec, req)

	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}
