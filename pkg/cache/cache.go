// Package cache is the fast tier shared by every API and worker process:
// hot chunks, pending buffers, the dirty index, room metadata, unread
// counts, contact lists and presence. It stores what it is given; deciding
// what is dirty or stale is up to the callers.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mahaj/chunkchat/pkg/model"
	"github.com/redis/go-redis/v9"
)

// TTLs holds the expiry of every key class.
type TTLs struct {
	Chunk    time.Duration
	Pending  time.Duration
	RoomMeta time.Duration
	Unread   time.Duration
	Contacts time.Duration
	Status   time.Duration
	Lock     time.Duration
}

func DefaultTTLs() TTLs {
	return TTLs{
		Chunk:    30 * time.Minute,
		Pending:  5 * time.Minute,
		RoomMeta: 10 * time.Minute,
		Unread:   5 * time.Minute,
		Contacts: 5 * time.Minute,
		Status:   2 * time.Minute,
		Lock:     10 * time.Second,
	}
}

type Cache struct {
	rdb *redis.Client
	ttl TTLs
}

func New(rdb *redis.Client, ttl TTLs) *Cache {
	return &Cache{rdb: rdb, ttl: ttl}
}

// NewClient connects and pings Redis.
func NewClient(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("connect redis %s: %w", addr, err)
	}
	return rdb, nil
}

func (c *Cache) TTLs() TTLs { return c.ttl }

type chunkEntry struct {
	Messages []model.Compact `json:"m"`
	HasMore  bool            `json:"h"`
	IsDirty  bool            `json:"d"`
}

// ChunkEntry is a cached chunk and whether it still awaits a durable write.
type ChunkEntry struct {
	Chunk   model.Chunk
	IsDirty bool
}

func (c *Cache) GetChunk(ctx context.Context, roomID string, n int) (ChunkEntry, bool, error) {
	raw, err := c.rdb.Get(ctx, chunkKey(roomID, n)).Bytes()
	if errors.Is(err, redis.Nil) {
		return ChunkEntry{}, false, nil
	}
	if err != nil {
		return ChunkEntry{}, false, fmt.Errorf("get %s/%s: %w", roomID, model.ChunkID(n), err)
	}

	var e chunkEntry
	if err := json.Unmarshal(raw, &e); err != nil {
		return ChunkEntry{}, false, fmt.Errorf("decode %s/%s: %w", roomID, model.ChunkID(n), err)
	}
	return ChunkEntry{
		Chunk:   model.Chunk{Number: n, Messages: model.DecodeAll(e.Messages)},
		IsDirty: e.IsDirty,
	}, true, nil
}

// SetChunk caches chunk with a fresh TTL. A dirty chunk is also added to
// the dirty index.
func (c *Cache) SetChunk(ctx context.Context, roomID string, chunk model.Chunk, dirty bool) error {
	return c.setChunk(ctx, roomID, chunk, dirty, c.ttl.Chunk)
}

func (c *Cache) setChunk(ctx context.Context, roomID string, chunk model.Chunk, dirty bool, ttl time.Duration) error {
	raw, err := json.Marshal(chunkEntry{
		Messages: model.EncodeAll(chunk.Messages),
		HasMore:  chunk.HasMore(),
		IsDirty:  dirty,
	})
	if err != nil {
		return fmt.Errorf("encode %s/%s: %w", roomID, chunk.ID(), err)
	}

	_, err = c.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Set(ctx, chunkKey(roomID, chunk.Number), raw, ttl)
		if dirty {
			p.ZAddNX(ctx, dirtyChunksKey, redis.Z{
				Score:  float64(time.Now().UnixMilli()),
				Member: dirtyMember(roomID, chunk.Number),
			})
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("set %s/%s: %w", roomID, chunk.ID(), err)
	}
	return nil
}

// MarkClean clears the dirty flag of a cached chunk without extending its
// TTL and drops it from the dirty index.
func (c *Cache) MarkClean(ctx context.Context, roomID string, chunk model.Chunk) error {
	ttl, err := c.ChunkTTL(ctx, roomID, chunk.Number)
	if err != nil {
		return err
	}
	if ttl > 0 {
		if err := c.setChunk(ctx, roomID, chunk, false, ttl); err != nil {
			return err
		}
	}
	return c.ClearDirty(ctx, roomID, chunk.Number)
}

// ChunkTTL returns the remaining lifetime of a cached chunk, or 0 if it is
// not cached.
func (c *Cache) ChunkTTL(ctx context.Context, roomID string, n int) (time.Duration, error) {
	ttl, err := c.rdb.PTTL(ctx, chunkKey(roomID, n)).Result()
	if err != nil {
		return 0, fmt.Errorf("ttl %s/%s: %w", roomID, model.ChunkID(n), err)
	}
	if ttl < 0 {
		return 0, nil
	}
	return ttl, nil
}

func (c *Cache) ChunkCached(ctx context.Context, roomID string, n int) (bool, error) {
	count, err := c.rdb.Exists(ctx, chunkKey(roomID, n)).Result()
	if err != nil {
		return false, fmt.Errorf("exists %s/%s: %w", roomID, model.ChunkID(n), err)
	}
	return count > 0, nil
}

func (c *Cache) GetLatest(ctx context.Context, roomID string) (int, bool, error) {
	n, err := c.rdb.Get(ctx, latestKey(roomID)).Int()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("get latest chunk of %s: %w", roomID, err)
	}
	return n, true, nil
}

var raiseLatest = redis.NewScript(`
local n = tonumber(ARGV[1])
local cur = tonumber(redis.call("get", KEYS[1]) or "0")
if cur > n then
	n = cur
end
redis.call("set", KEYS[1], n, "PX", ARGV[2])
return n
`)

// RaiseLatest moves the room's latest chunk pointer up to n and refreshes
// its TTL. The pointer never moves back; the value in effect afterwards is
// returned.
func (c *Cache) RaiseLatest(ctx context.Context, roomID string, n int) (int, error) {
	got, err := raiseLatest.Run(ctx, c.rdb, []string{latestKey(roomID)}, n, c.ttl.Chunk.Milliseconds()).Int()
	if err != nil {
		return 0, fmt.Errorf("raise latest chunk of %s: %w", roomID, err)
	}
	return got, nil
}

// DirtyChunk is one entry of the dirty index.
type DirtyChunk struct {
	RoomID string
	Number int
	Since  time.Time
}

func (c *Cache) MarkDirty(ctx context.Context, roomID string, n int) error {
	err := c.rdb.ZAddNX(ctx, dirtyChunksKey, redis.Z{
		Score:  float64(time.Now().UnixMilli()),
		Member: dirtyMember(roomID, n),
	}).Err()
	if err != nil {
		return fmt.Errorf("mark %s/%s dirty: %w", roomID, model.ChunkID(n), err)
	}
	return nil
}

func (c *Cache) ClearDirty(ctx context.Context, roomID string, n int) error {
	if err := c.rdb.ZRem(ctx, dirtyChunksKey, dirtyMember(roomID, n)).Err(); err != nil {
		return fmt.Errorf("clear dirty %s/%s: %w", roomID, model.ChunkID(n), err)
	}
	return nil
}

// DirtyChunks lists the dirty index, oldest first.
func (c *Cache) DirtyChunks(ctx context.Context) ([]DirtyChunk, error) {
	zs, err := c.rdb.ZRangeWithScores(ctx, dirtyChunksKey, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("list dirty chunks: %w", err)
	}

	out := make([]DirtyChunk, 0, len(zs))
	for _, z := range zs {
		member, _ := z.Member.(string)
		roomID, n, ok := parseDirtyMember(member)
		if !ok {
			continue
		}
		out = append(out, DirtyChunk{RoomID: roomID, Number: n, Since: time.UnixMilli(int64(z.Score))})
	}
	return out, nil
}

// PushPending appends msg to the room's pending buffer and returns the new
// buffer length.
func (c *Cache) PushPending(ctx context.Context, roomID string, msg model.Message) (int64, error) {
	raw, err := json.Marshal(model.Encode(msg))
	if err != nil {
		return 0, fmt.Errorf("encode pending message: %w", err)
	}

	var push *redis.IntCmd
	_, err = c.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		push = p.RPush(ctx, pendingKey(roomID), raw)
		p.Expire(ctx, pendingKey(roomID), c.ttl.Pending)
		p.SAdd(ctx, pendingRoomsKey, roomID)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("push pending for %s: %w", roomID, err)
	}
	return push.Val(), nil
}

// PeekPending returns up to max buffered messages in arrival order without
// removing them. max <= 0 returns the whole buffer.
func (c *Cache) PeekPending(ctx context.Context, roomID string, max int) ([]model.Message, error) {
	stop := int64(max) - 1
	if max <= 0 {
		stop = -1
	}
	raws, err := c.rdb.LRange(ctx, pendingKey(roomID), 0, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("peek pending for %s: %w", roomID, err)
	}

	out := make([]model.Message, 0, len(raws))
	for _, raw := range raws {
		var cm model.Compact
		if err := json.Unmarshal([]byte(raw), &cm); err != nil {
			return nil, fmt.Errorf("decode pending for %s: %w", roomID, err)
		}
		out = append(out, model.Decode(cm))
	}
	return out, nil
}

// TrimPending drops the first n buffered messages.
func (c *Cache) TrimPending(ctx context.Context, roomID string, n int) error {
	if n <= 0 {
		return nil
	}
	if err := c.rdb.LTrim(ctx, pendingKey(roomID), int64(n), -1).Err(); err != nil {
		return fmt.Errorf("trim pending for %s: %w", roomID, err)
	}
	return nil
}

func (c *Cache) PendingLen(ctx context.Context, roomID string) (int64, error) {
	n, err := c.rdb.LLen(ctx, pendingKey(roomID)).Result()
	if err != nil {
		return 0, fmt.Errorf("pending length for %s: %w", roomID, err)
	}
	return n, nil
}

// PendingRooms lists rooms that may have buffered messages.
func (c *Cache) PendingRooms(ctx context.Context) ([]string, error) {
	rooms, err := c.rdb.SMembers(ctx, pendingRoomsKey).Result()
	if err != nil {
		return nil, fmt.Errorf("list pending rooms: %w", err)
	}
	return rooms, nil
}

func (c *Cache) AddPendingRoom(ctx context.Context, roomID string) error {
	if err := c.rdb.SAdd(ctx, pendingRoomsKey, roomID).Err(); err != nil {
		return fmt.Errorf("add pending room %s: %w", roomID, err)
	}
	return nil
}

func (c *Cache) ForgetPendingRoom(ctx context.Context, roomID string) error {
	if err := c.rdb.SRem(ctx, pendingRoomsKey, roomID).Err(); err != nil {
		return fmt.Errorf("forget pending room %s: %w", roomID, err)
	}
	return nil
}

func (c *Cache) SetLastMessage(ctx context.Context, roomID string, msg model.Message) error {
	raw, err := json.Marshal(model.Encode(msg))
	if err != nil {
		return fmt.Errorf("encode last message: %w", err)
	}
	return c.setMeta(ctx, roomID, lastMessageField, raw)
}

func (c *Cache) LastMessage(ctx context.Context, roomID string) (model.Message, bool, error) {
	var cm model.Compact
	ok, err := c.getMeta(ctx, roomID, lastMessageField, &cm)
	if !ok || err != nil {
		return model.Message{}, false, err
	}
	return model.Decode(cm), true, nil
}

func (c *Cache) SetReadMarker(ctx context.Context, roomID, userID string, marker model.ReadMarker) error {
	raw, err := json.Marshal(marker)
	if err != nil {
		return fmt.Errorf("encode read marker: %w", err)
	}
	return c.setMeta(ctx, roomID, readFieldPrefix+userID, raw)
}

func (c *Cache) ReadMarker(ctx context.Context, roomID, userID string) (model.ReadMarker, bool, error) {
	var m model.ReadMarker
	ok, err := c.getMeta(ctx, roomID, readFieldPrefix+userID, &m)
	return m, ok, err
}

func (c *Cache) setMeta(ctx context.Context, roomID, field string, raw []byte) error {
	_, err := c.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.HSet(ctx, metaKey(roomID), field, raw)
		p.Expire(ctx, metaKey(roomID), c.ttl.RoomMeta)
		return nil
	})
	if err != nil {
		return fmt.Errorf("set %s meta %s: %w", roomID, field, err)
	}
	return nil
}

func (c *Cache) getMeta(ctx context.Context, roomID, field string, dst any) (bool, error) {
	raw, err := c.rdb.HGet(ctx, metaKey(roomID), field).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("get %s meta %s: %w", roomID, field, err)
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return false, fmt.Errorf("decode %s meta %s: %w", roomID, field, err)
	}
	return true, nil
}

func (c *Cache) UnreadCount(ctx context.Context, roomID, userID string) (int, bool, error) {
	n, err := c.rdb.HGet(ctx, unreadKey(roomID), userID).Int()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("get unread %s/%s: %w", roomID, userID, err)
	}
	return n, true, nil
}

func (c *Cache) SetUnreadCount(ctx context.Context, roomID, userID string, n int) error {
	_, err := c.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.HSet(ctx, unreadKey(roomID), userID, n)
		p.Expire(ctx, unreadKey(roomID), c.ttl.Unread)
		return nil
	})
	if err != nil {
		return fmt.Errorf("set unread %s/%s: %w", roomID, userID, err)
	}
	return nil
}

// InvalidateUnread drops every cached unread count for the room.
func (c *Cache) InvalidateUnread(ctx context.Context, roomID string) error {
	if err := c.rdb.Del(ctx, unreadKey(roomID)).Err(); err != nil {
		return fmt.Errorf("invalidate unread %s: %w", roomID, err)
	}
	return nil
}

func (c *Cache) Contacts(ctx context.Context, userID string) ([]model.RoomSummary, bool, error) {
	raw, err := c.rdb.Get(ctx, contactsKey(userID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get contacts %s: %w", userID, err)
	}
	var rooms []model.RoomSummary
	if err := json.Unmarshal(raw, &rooms); err != nil {
		return nil, false, fmt.Errorf("decode contacts %s: %w", userID, err)
	}
	return rooms, true, nil
}

func (c *Cache) SetContacts(ctx context.Context, userID string, rooms []model.RoomSummary) error {
	if rooms == nil {
		rooms = []model.RoomSummary{}
	}
	raw, err := json.Marshal(rooms)
	if err != nil {
		return fmt.Errorf("encode contacts: %w", err)
	}
	if err := c.rdb.Set(ctx, contactsKey(userID), raw, c.ttl.Contacts).Err(); err != nil {
		return fmt.Errorf("set contacts %s: %w", userID, err)
	}
	return nil
}

func (c *Cache) InvalidateContacts(ctx context.Context, userIDs ...string) error {
	if len(userIDs) == 0 {
		return nil
	}
	keys := make([]string, len(userIDs))
	for i, u := range userIDs {
		keys[i] = contactsKey(u)
	}
	if err := c.rdb.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("invalidate contacts: %w", err)
	}
	return nil
}

// SetStatus records a user status such as "online"; it lapses after the
// status TTL unless refreshed.
func (c *Cache) SetStatus(ctx context.Context, userID, status string) error {
	if err := c.rdb.Set(ctx, statusKey(userID), status, c.ttl.Status).Err(); err != nil {
		return fmt.Errorf("set status %s: %w", userID, err)
	}
	return nil
}

func (c *Cache) Status(ctx context.Context, userID string) (string, bool, error) {
	s, err := c.rdb.Get(ctx, statusKey(userID)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get status %s: %w", userID, err)
	}
	return s, true, nil
}

func (c *Cache) ClearStatus(ctx context.Context, userID string) error {
	if err := c.rdb.Del(ctx, statusKey(userID)).Err(); err != nil {
		return fmt.Errorf("clear status %s: %w", userID, err)
	}
	return nil
}

func (c *Cache) JoinRoom(ctx context.Context, roomID, userID string) error {
	if err := c.rdb.SAdd(ctx, usersKey(roomID), userID).Err(); err != nil {
		return fmt.Errorf("join %s: %w", roomID, err)
	}
	return nil
}

func (c *Cache) LeaveRoom(ctx context.Context, roomID, userID string) error {
	if err := c.rdb.SRem(ctx, usersKey(roomID), userID).Err(); err != nil {
		return fmt.Errorf("leave %s: %w", roomID, err)
	}
	return nil
}

func (c *Cache) RoomUsers(ctx context.Context, roomID string) ([]string, error) {
	users, err := c.rdb.SMembers(ctx, usersKey(roomID)).Result()
	if err != nil {
		return nil, fmt.Errorf("room users %s: %w", roomID, err)
	}
	return users, nil
}
