package chunk

import (
	"context"
	"time"

	"github.com/mahaj/chunkchat/pkg/cache"
	"go.uber.org/zap"
)

// Flush writes dirty chunks to the store. Without force only chunks whose
// cache entry is close to expiry, or which have been dirty for
// MaxDirtyAge, are written. A failed write leaves the chunk dirty for the
// next pass.
func (e *Engine) Flush(ctx context.Context, force bool) (int, error) {
	dirty, err := e.cache.DirtyChunks(ctx)
	if err != nil {
		return 0, err
	}

	now := time.Now()
	flushed := 0
	for _, d := range dirty {
		if !force {
			due, err := e.flushDue(ctx, d, now)
			if err != nil {
				e.log.Warn("check chunk ttl", zap.String("room", d.RoomID), zap.Int("chunk", d.Number), zap.Error(err))
				continue
			}
			if !due {
				continue
			}
		}

		ok, err := e.flushChunk(ctx, d.RoomID, d.Number)
		if err != nil {
			e.log.Error("flush chunk", zap.String("room", d.RoomID), zap.Int("chunk", d.Number), zap.Error(err))
			continue
		}
		if ok {
			flushed++
		}
	}
	return flushed, nil
}

func (e *Engine) flushDue(ctx context.Context, d cache.DirtyChunk, now time.Time) (bool, error) {
	if e.opts.MaxDirtyAge > 0 && now.Sub(d.Since) >= e.opts.MaxDirtyAge {
		return true, nil
	}
	ttl, err := e.cache.ChunkTTL(ctx, d.RoomID, d.Number)
	if err != nil {
		return false, err
	}
	return ttl <= e.opts.FlushMargin, nil
}

func (e *Engine) flushChunk(ctx context.Context, roomID string, n int) (bool, error) {
	unlock, err := e.lock(ctx, roomID)
	if err != nil {
		return false, err
	}
	defer unlock()

	entry, ok, err := e.cache.GetChunk(ctx, roomID, n)
	if err != nil {
		return false, err
	}
	if !ok {
		// Marked dirty by a send whose drain has not run yet.
		if left, err := e.cache.PendingLen(ctx, roomID); err == nil && left > 0 {
			return false, nil
		}
		e.log.Warn("dirty chunk left the cache before it was flushed", zap.String("room", roomID), zap.Int("chunk", n))
		return false, e.cache.ClearDirty(ctx, roomID, n)
	}
	if !entry.IsDirty {
		return false, e.cache.ClearDirty(ctx, roomID, n)
	}

	if err := e.store.WriteChunk(ctx, roomID, entry.Chunk); err != nil {
		return false, err
	}
	if err := e.cache.MarkClean(ctx, roomID, entry.Chunk); err != nil {
		return true, err
	}
	e.log.Debug("flushed chunk", zap.String("room", roomID), zap.Int("chunk", n), zap.Int("messages", len(entry.Chunk.Messages)))
	return true, nil
}
