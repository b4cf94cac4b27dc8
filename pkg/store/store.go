// Package store is the durable system of record for room history. It is
// only touched on cache misses and scheduled flushes.
package store

import (
	"context"
	"time"

	"github.com/mahaj/chunkchat/pkg/model"
)

type Store interface {
	// LoadChunk returns ok=false when the chunk was never written.
	LoadChunk(ctx context.Context, roomID string, n int) (chunk model.Chunk, ok bool, err error)
	WriteChunk(ctx context.Context, roomID string, chunk model.Chunk) error
	// LatestChunkID returns the highest chunk number, 1 for an empty room.
	LatestChunkID(ctx context.Context, roomID string) (int, error)

	SaveReadMarker(ctx context.Context, roomID, userID string, marker model.ReadMarker) error
	LoadReadMarker(ctx context.Context, roomID, userID string) (marker model.ReadMarker, ok bool, err error)

	// TouchRooms records that users took part in roomID at the given time.
	TouchRooms(ctx context.Context, roomID string, userIDs []string, at time.Time) error
	ListRooms(ctx context.Context, userID string) ([]model.RoomSummary, error)
}
