package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/gocql/gocql"
	"github.com/mahaj/chunkchat/pkg/db"
	"github.com/mahaj/chunkchat/pkg/model"
)

type Scylla struct {
	session *db.Session
}

func NewScylla(session *db.Session) *Scylla {
	return &Scylla{session: session}
}

func (s *Scylla) LoadChunk(ctx context.Context, roomID string, n int) (model.Chunk, bool, error) {
	var raw string
	err := s.session.Query(`SELECT messages FROM message_chunks WHERE room_id = ? AND chunk_num = ?`, roomID, n).
		WithContext(ctx).Scan(&raw)
	if errors.Is(err, gocql.ErrNotFound) {
		return model.Chunk{}, false, nil
	}
	if err != nil {
		return model.Chunk{}, false, fmt.Errorf("load %s/%s: %w", roomID, model.ChunkID(n), err)
	}

	var compact []model.Compact
	if err := json.Unmarshal([]byte(raw), &compact); err != nil {
		return model.Chunk{}, false, fmt.Errorf("decode %s/%s: %w", roomID, model.ChunkID(n), err)
	}
	return model.Chunk{Number: n, Messages: model.DecodeAll(compact)}, true, nil
}

func (s *Scylla) WriteChunk(ctx context.Context, roomID string, chunk model.Chunk) error {
	raw, err := json.Marshal(model.EncodeAll(chunk.Messages))
	if err != nil {
		return fmt.Errorf("encode %s/%s: %w", roomID, chunk.ID(), err)
	}

	err = s.session.Query(`INSERT INTO message_chunks (room_id, chunk_num, messages, message_count, updated_at) VALUES (?, ?, ?, ?, ?)`,
		roomID, chunk.Number, string(raw), len(chunk.Messages), time.Now()).WithContext(ctx).Exec()
	if err != nil {
		return fmt.Errorf("write %s/%s: %w", roomID, chunk.ID(), err)
	}
	return nil
}

func (s *Scylla) LatestChunkID(ctx context.Context, roomID string) (int, error) {
	var n int
	// clustering order is chunk_num DESC
	err := s.session.Query(`SELECT chunk_num FROM message_chunks WHERE room_id = ? LIMIT 1`, roomID).
		WithContext(ctx).Scan(&n)
	if errors.Is(err, gocql.ErrNotFound) {
		return 1, nil
	}
	if err != nil {
		return 0, fmt.Errorf("latest chunk for %s: %w", roomID, err)
	}
	return n, nil
}

func (s *Scylla) SaveReadMarker(ctx context.Context, roomID, userID string, marker model.ReadMarker) error {
	err := s.session.Query(`INSERT INTO read_markers (room_id, user_id, message_id, read_ts) VALUES (?, ?, ?, ?)`,
		roomID, userID, marker.MessageID, marker.Timestamp).WithContext(ctx).Exec()
	if err != nil {
		return fmt.Errorf("save read marker %s/%s: %w", roomID, userID, err)
	}
	return nil
}

func (s *Scylla) LoadReadMarker(ctx context.Context, roomID, userID string) (model.ReadMarker, bool, error) {
	var m model.ReadMarker
	err := s.session.Query(`SELECT message_id, read_ts FROM read_markers WHERE room_id = ? AND user_id = ?`, roomID, userID).
		WithContext(ctx).Scan(&m.MessageID, &m.Timestamp)
	if errors.Is(err, gocql.ErrNotFound) {
		return model.ReadMarker{}, false, nil
	}
	if err != nil {
		return model.ReadMarker{}, false, fmt.Errorf("load read marker %s/%s: %w", roomID, userID, err)
	}
	return m, true, nil
}

func (s *Scylla) TouchRooms(ctx context.Context, roomID string, userIDs []string, at time.Time) error {
	if len(userIDs) == 0 {
		return nil
	}
	batch := s.session.NewBatch(gocql.UnloggedBatch).WithContext(ctx)
	for _, u := range userIDs {
		batch.Query(`INSERT INTO user_rooms (user_id, room_id, last_updated) VALUES (?, ?, ?)`, u, roomID, at)
	}
	if err := s.session.ExecuteBatch(batch); err != nil {
		return fmt.Errorf("touch rooms for %s: %w", roomID, err)
	}
	return nil
}

func (s *Scylla) ListRooms(ctx context.Context, userID string) ([]model.RoomSummary, error) {
	iter := s.session.Query(`SELECT room_id, last_updated FROM user_rooms WHERE user_id = ?`, userID).
		WithContext(ctx).Iter()

	var (
		rooms []model.RoomSummary
		r     model.RoomSummary
	)
	for iter.Scan(&r.RoomID, &r.LastUpdated) {
		rooms = append(rooms, r)
	}
	if err := iter.Close(); err != nil {
		return nil, fmt.Errorf("list rooms for %s: %w", userID, err)
	}

	sort.Slice(rooms, func(i, j int) bool { return rooms[i].LastUpdated.After(rooms[j].LastUpdated) })
	return rooms, nil
}
