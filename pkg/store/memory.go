package store

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/mahaj/chunkchat/pkg/model"
)

// Memory is an in-process Store for local runs and tests. Chunks are kept
// in their compact encoding so reads go through the same codec as Scylla.
type Memory struct {
	mu      sync.RWMutex
	chunks  map[string]map[int][]byte
	markers map[string]model.ReadMarker
	rooms   map[string]map[string]time.Time

	writes int
}

func NewMemory() *Memory {
	return &Memory{
		chunks:  make(map[string]map[int][]byte),
		markers: make(map[string]model.ReadMarker),
		rooms:   make(map[string]map[string]time.Time),
	}
}

func (m *Memory) LoadChunk(_ context.Context, roomID string, n int) (model.Chunk, bool, error) {
	m.mu.RLock()
	raw, ok := m.chunks[roomID][n]
	m.mu.RUnlock()
	if !ok {
		return model.Chunk{}, false, nil
	}

	var compact []model.Compact
	if err := json.Unmarshal(raw, &compact); err != nil {
		return model.Chunk{}, false, err
	}
	return model.Chunk{Number: n, Messages: model.DecodeAll(compact)}, true, nil
}

func (m *Memory) WriteChunk(_ context.Context, roomID string, chunk model.Chunk) error {
	raw, err := json.Marshal(model.EncodeAll(chunk.Messages))
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.chunks[roomID] == nil {
		m.chunks[roomID] = make(map[int][]byte)
	}
	m.chunks[roomID][chunk.Number] = raw
	m.writes++
	return nil
}

func (m *Memory) LatestChunkID(_ context.Context, roomID string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	latest := 1
	for n := range m.chunks[roomID] {
		if n > latest {
			latest = n
		}
	}
	return latest, nil
}

// Writes reports how many chunk writes have been made.
func (m *Memory) Writes() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.writes
}

func (m *Memory) SaveReadMarker(_ context.Context, roomID, userID string, marker model.ReadMarker) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.markers[roomID+"|"+userID] = marker
	return nil
}

func (m *Memory) LoadReadMarker(_ context.Context, roomID, userID string) (model.ReadMarker, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	marker, ok := m.markers[roomID+"|"+userID]
	return marker, ok, nil
}

func (m *Memory) TouchRooms(_ context.Context, roomID string, userIDs []string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range userIDs {
		if m.rooms[u] == nil {
			m.rooms[u] = make(map[string]time.Time)
		}
		m.rooms[u][roomID] = at
	}
	return nil
}

func (m *Memory) ListRooms(_ context.Context, userID string) ([]model.RoomSummary, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rooms := make([]model.RoomSummary, 0, len(m.rooms[userID]))
	for id, at := range m.rooms[userID] {
		rooms = append(rooms, model.RoomSummary{RoomID: id, LastUpdated: at})
	}
	sort.Slice(rooms, func(i, j int) bool { return rooms[i].LastUpdated.After(rooms[j].LastUpdated) })
	return rooms, nil
}
