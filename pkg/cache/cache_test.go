package cache

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/mahaj/chunkchat/pkg/model"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T) (*Cache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return New(rdb, DefaultTTLs()), mr
}

func msg(id, sender string) model.Message {
	return model.Message{ID: id, Sender: sender, Content: "content " + id, Type: model.TypeText, Timestamp: 1}
}

func TestChunkRoundTripAndDirtyIndex(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()

	_, ok, err := c.GetChunk(ctx, "r1", 3)
	require.NoError(t, err)
	assert.False(t, ok)

	doc := model.Message{ID: "9_z", Sender: "a", Type: model.TypeDocument, Content: strings.Repeat("abc ", 300)}
	chunk := model.Chunk{Number: 3, Messages: []model.Message{msg("1_a", "a"), doc}}
	require.NoError(t, c.SetChunk(ctx, "r1", chunk, true))

	// stored compressed
	raw, err := mr.Get("room:r1:chunk:3")
	require.NoError(t, err)
	assert.NotContains(t, raw, "abc abc")
	assert.Contains(t, raw, `"h":true`)

	e, ok, err := c.GetChunk(ctx, "r1", 3)
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, e.IsDirty)
	assert.Equal(t, doc.Content, e.Chunk.Messages[1].Content)

	dirty, err := c.DirtyChunks(ctx)
	require.NoError(t, err)
	require.Len(t, dirty, 1)
	assert.Equal(t, "r1", dirty[0].RoomID)
	assert.Equal(t, 3, dirty[0].Number)

	mr.FastForward(10 * time.Minute)
	require.NoError(t, c.MarkClean(ctx, "r1", e.Chunk))

	ttl, err := c.ChunkTTL(ctx, "r1", 3)
	require.NoError(t, err)
	assert.Equal(t, 20*time.Minute, ttl)

	e, _, err = c.GetChunk(ctx, "r1", 3)
	require.NoError(t, err)
	assert.False(t, e.IsDirty)
	dirty, err = c.DirtyChunks(ctx)
	require.NoError(t, err)
	assert.Empty(t, dirty)
}

func TestChunkExpires(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.SetChunk(ctx, "r1", model.Chunk{Number: 1}, false))
	cached, err := c.ChunkCached(ctx, "r1", 1)
	require.NoError(t, err)
	assert.True(t, cached)

	mr.FastForward(31 * time.Minute)
	cached, err = c.ChunkCached(ctx, "r1", 1)
	require.NoError(t, err)
	assert.False(t, cached)
}

func TestPendingBufferKeepsArrivalOrder(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()

	for i, id := range []string{"1_a", "2_b", "3_c", "4_d"} {
		n, err := c.PushPending(ctx, "r1", msg(id, "a"))
		require.NoError(t, err)
		assert.Equal(t, int64(i+1), n)
	}

	rooms, err := c.PendingRooms(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"r1"}, rooms)

	got, err := c.PeekPending(ctx, "r1", 3)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "1_a", got[0].ID)
	assert.Equal(t, "3_c", got[2].ID)

	require.NoError(t, c.TrimPending(ctx, "r1", 3))
	rest, err := c.PeekPending(ctx, "r1", 0)
	require.NoError(t, err)
	require.Len(t, rest, 1)
	assert.Equal(t, "4_d", rest[0].ID)

	assert.Equal(t, 5*time.Minute, mr.TTL("room:r1:pending"))
}

func TestRoomMetaAndUnread(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.SetLastMessage(ctx, "r1", msg("5_e", "bob")))
	last, ok, err := c.LastMessage(ctx, "r1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "5_e", last.ID)

	require.NoError(t, c.SetReadMarker(ctx, "r1", "alice", model.ReadMarker{MessageID: "5_e", Timestamp: 5}))
	marker, ok, err := c.ReadMarker(ctx, "r1", "alice")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(5), marker.Timestamp)
	assert.Equal(t, 10*time.Minute, mr.TTL("room:r1:meta"))

	require.NoError(t, c.SetUnreadCount(ctx, "r1", "alice", 4))
	n, ok, err := c.UnreadCount(ctx, "r1", "alice")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 4, n)

	require.NoError(t, c.InvalidateUnread(ctx, "r1"))
	_, ok, err = c.UnreadCount(ctx, "r1", "alice")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestContactsAndStatus(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()

	_, ok, err := c.Contacts(ctx, "alice")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.SetContacts(ctx, "alice", nil))
	rooms, ok, err := c.Contacts(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Empty(t, rooms)

	require.NoError(t, c.InvalidateContacts(ctx, "alice", "bob"))
	_, ok, err = c.Contacts(ctx, "alice")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.SetStatus(ctx, "alice", "online"))
	s, ok, err := c.Status(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "online", s)

	mr.FastForward(3 * time.Minute)
	_, ok, err = c.Status(ctx, "alice")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.JoinRoom(ctx, "r1", "alice"))
	require.NoError(t, c.JoinRoom(ctx, "r1", "bob"))
	require.NoError(t, c.LeaveRoom(ctx, "r1", "alice"))
	users, err := c.RoomUsers(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, []string{"bob"}, users)
}

func TestRoomLock(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()

	unlock, ok, err := c.TryLock(ctx, "r1")
	require.NoError(t, err)
	require.True(t, ok)

	_, ok, err = c.TryLock(ctx, "r1")
	require.NoError(t, err)
	assert.False(t, ok)

	waitCtx, cancel := context.WithTimeout(ctx, 100*time.Millisecond)
	defer cancel()
	_, err = c.Lock(waitCtx, "r1")
	assert.ErrorIs(t, err, ErrLockTimeout)

	unlock()
	assert.False(t, mr.Exists("lock:room:r1"))

	unlock2, err := c.Lock(ctx, "r1")
	require.NoError(t, err)

	// a stale unlock from the first holder must not release the second
	unlock()
	assert.True(t, mr.Exists("lock:room:r1"))
	unlock2()
}

func TestParseDirtyMember(t *testing.T) {
	room, n, ok := parseDirtyMember(dirtyMember("team|eng", 12))
	require.True(t, ok)
	assert.Equal(t, "team|eng", room)
	assert.Equal(t, 12, n)

	_, _, ok = parseDirtyMember("nochunk")
	assert.False(t, ok)
}

func TestRaiseLatestNeverLowers(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()

	n, err := c.RaiseLatest(ctx, "r1", 4)
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	// a reader that computed an older pointer must not roll it back
	n, err = c.RaiseLatest(ctx, "r1", 3)
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	got, ok, err := c.GetLatest(ctx, "r1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 4, got)
	assert.Equal(t, 30*time.Minute, mr.TTL("room:r1:latest"))

	n, err = c.RaiseLatest(ctx, "r1", 5)
	require.NoError(t, err)
	assert.Equal(t, 5, n)
}

func TestRoomLockRenewedWhileHeld(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	ttl := DefaultTTLs()
	ttl.Lock = 300 * time.Millisecond
	c := New(rdb, ttl)
	ctx := context.Background()

	unlock, ok, err := c.TryLock(ctx, "r1")
	require.NoError(t, err)
	require.True(t, ok)

	mr.FastForward(250 * time.Millisecond)
	require.Eventually(t, func() bool {
		return mr.TTL("lock:room:r1") > 100*time.Millisecond
	}, 2*time.Second, 10*time.Millisecond)

	// a second holder cannot get in while the first keeps renewing
	mr.FastForward(250 * time.Millisecond)
	require.Eventually(t, func() bool {
		return mr.TTL("lock:room:r1") > 100*time.Millisecond
	}, 2*time.Second, 10*time.Millisecond)
	_, ok, err = c.TryLock(ctx, "r1")
	require.NoError(t, err)
	assert.False(t, ok)

	unlock()
	assert.False(t, mr.Exists("lock:room:r1"))
}
