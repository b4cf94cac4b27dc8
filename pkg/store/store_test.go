package store

import (
	"context"
	"fmt"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/mahaj/chunkchat/pkg/db"
	"github.com/mahaj/chunkchat/pkg/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// exerciseStore runs the behaviour every Store must share.
func exerciseStore(t *testing.T, s Store, roomID string) {
	ctx := context.Background()

	latest, err := s.LatestChunkID(ctx, roomID)
	require.NoError(t, err)
	assert.Equal(t, 1, latest)

	_, ok, err := s.LoadChunk(ctx, roomID, 1)
	require.NoError(t, err)
	assert.False(t, ok)

	doc := strings.Repeat("minutes of the meeting ", 50)
	first := model.Chunk{Number: 1, Messages: []model.Message{
		{ID: "1_a", Sender: "alice", Content: "hi", Type: model.TypeText, Timestamp: 1},
		{ID: "2_b", Sender: "bob", Content: doc, Type: model.TypeDocument, Timestamp: 2, FileName: "notes.txt"},
	}}
	require.NoError(t, s.WriteChunk(ctx, roomID, first))
	require.NoError(t, s.WriteChunk(ctx, roomID, model.Chunk{Number: 2, Messages: []model.Message{
		{ID: "3_c", Sender: "alice", Content: "later", Type: model.TypeText, Timestamp: 3},
	}}))

	latest, err = s.LatestChunkID(ctx, roomID)
	require.NoError(t, err)
	assert.Equal(t, 2, latest)

	got, ok, err := s.LoadChunk(ctx, roomID, 1)
	require.NoError(t, err)
	require.True(t, ok)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, doc, got.Messages[1].Content)
	assert.Equal(t, len(doc), got.Messages[1].OriginalSize)
	assert.Equal(t, "hi", got.Messages[0].Content)

	_, ok, err = s.LoadReadMarker(ctx, roomID, "alice")
	require.NoError(t, err)
	assert.False(t, ok)
	require.NoError(t, s.SaveReadMarker(ctx, roomID, "alice", model.ReadMarker{MessageID: "2_b", Timestamp: 2}))
	marker, ok, err := s.LoadReadMarker(ctx, roomID, "alice")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, model.ReadMarker{MessageID: "2_b", Timestamp: 2}, marker)

	now := time.Now().Truncate(time.Millisecond)
	other := roomID + "-other"
	require.NoError(t, s.TouchRooms(ctx, other, []string{"alice"}, now.Add(-time.Minute)))
	require.NoError(t, s.TouchRooms(ctx, roomID, []string{"alice", "bob"}, now))
	rooms, err := s.ListRooms(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, rooms, 2)
	assert.Equal(t, roomID, rooms[0].RoomID)
	assert.Equal(t, other, rooms[1].RoomID)
}

func TestMemoryStore(t *testing.T) {
	m := NewMemory()
	exerciseStore(t, m, "room-1")
	assert.Equal(t, 2, m.Writes())
}

func TestScyllaStore(t *testing.T) {
	hosts := os.Getenv("SCYLLA_HOSTS")
	if hosts == "" {
		t.Skip("SCYLLA_HOSTS not set")
	}
	hostList := strings.Split(hosts, ",")
	require.NoError(t, db.Migrate(hostList, "chat_test"))

	session, err := db.NewSession(hostList, "chat_test")
	require.NoError(t, err)
	defer session.Close()

	exerciseStore(t, NewScylla(session), fmt.Sprintf("room-%d", time.Now().UnixNano()))
}
