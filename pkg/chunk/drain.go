package chunk

import (
	"context"
	"fmt"
	"time"

	"github.com/mahaj/chunkchat/pkg/model"
	"go.uber.org/zap"
)

// DrainRoom folds the room's whole pending buffer into chunks.
func (e *Engine) DrainRoom(ctx context.Context, roomID string) (int, error) {
	unlock, err := e.lock(ctx, roomID)
	if err != nil {
		return 0, err
	}
	defer unlock()
	return e.drainAllLocked(ctx, roomID)
}

// DrainAll drains every room with buffered messages. Rooms locked by
// another process are skipped; that process is draining them.
func (e *Engine) DrainAll(ctx context.Context) (int, error) {
	rooms, err := e.cache.PendingRooms(ctx)
	if err != nil {
		return 0, err
	}

	total := 0
	for _, roomID := range rooms {
		unlock, ok, err := e.cache.TryLock(ctx, roomID)
		if err != nil {
			return total, err
		}
		if !ok {
			continue
		}

		n, err := e.drainPendingRoom(ctx, roomID)
		unlock()
		total += n
		if err != nil {
			e.log.Error("drain room", zap.String("room", roomID), zap.Error(err))
		}
	}
	return total, nil
}

// drainPendingRoom drains a room listed in the pending set. The room is
// dropped from the set before draining so that a concurrent send re-adds
// it, and put back if anything is left.
func (e *Engine) drainPendingRoom(ctx context.Context, roomID string) (int, error) {
	if err := e.cache.ForgetPendingRoom(ctx, roomID); err != nil {
		return 0, err
	}

	n, drainErr := e.drainAllLocked(ctx, roomID)

	left, err := e.cache.PendingLen(ctx, roomID)
	if err != nil || left > 0 {
		if err := e.cache.AddPendingRoom(ctx, roomID); err != nil {
			e.log.Error("re-list pending room", zap.String("room", roomID), zap.Error(err))
		}
	}
	return n, drainErr
}

func (e *Engine) drainAllLocked(ctx context.Context, roomID string) (int, error) {
	total := 0
	for {
		n, full, err := e.drainLocked(ctx, roomID)
		total += n
		if err != nil || !full {
			return total, err
		}
	}
}

// drainLocked merges one batch of pending messages into the current chunk,
// splitting it at capacity. The batch is read without being removed and
// only trimmed once the chunks are written, so a crash in between leaves
// the messages buffered; ids already present in the last two chunks are
// skipped on the retry. full reports whether the batch was a full one.
func (e *Engine) drainLocked(ctx context.Context, roomID string) (int, bool, error) {
	size := e.opts.MaxBatchSize
	batch, err := e.cache.PeekPending(ctx, roomID, size)
	if err != nil {
		return 0, false, err
	}
	if len(batch) == 0 {
		return 0, false, nil
	}

	latest, err := e.LatestChunk(ctx, roomID)
	if err != nil {
		return 0, false, err
	}
	current, _, err := e.Chunk(ctx, roomID, latest)
	if err != nil {
		return 0, false, fmt.Errorf("load current chunk: %w", err)
	}

	seen := make(map[string]bool, len(current.Messages))
	for _, m := range current.Messages {
		seen[m.ID] = true
	}
	if latest > 1 {
		prev, _, err := e.Chunk(ctx, roomID, latest-1)
		if err != nil {
			return 0, false, fmt.Errorf("load previous chunk: %w", err)
		}
		for _, m := range prev.Messages {
			seen[m.ID] = true
		}
	}

	fresh := make([]model.Message, 0, len(batch))
	for _, m := range batch {
		if !seen[m.ID] {
			seen[m.ID] = true
			fresh = append(fresh, m)
		}
	}

	if len(fresh) > 0 {
		merged := make([]model.Message, 0, len(current.Messages)+len(fresh))
		merged = append(merged, current.Messages...)
		merged = append(merged, fresh...)

		chunks := split(latest, merged, size)
		for i, c := range chunks {
			if i == 0 && len(c.Messages) == len(current.Messages) {
				// current chunk was already full
				continue
			}
			if err := e.cache.SetChunk(ctx, roomID, c, true); err != nil {
				return 0, false, err
			}
		}
		// also refreshes the pointer's TTL while the room is active
		if _, err := e.cache.RaiseLatest(ctx, roomID, chunks[len(chunks)-1].Number); err != nil {
			return 0, false, err
		}
	}

	if err := e.cache.TrimPending(ctx, roomID, len(batch)); err != nil {
		return 0, false, err
	}

	e.recordParticipants(ctx, roomID, fresh)
	return len(fresh), len(batch) == size, nil
}

// split lays msgs out over chunks starting at number first, filling each
// to size before opening the next.
func split(first int, msgs []model.Message, size int) []model.Chunk {
	var out []model.Chunk
	n := first
	for len(msgs) > size {
		out = append(out, model.Chunk{Number: n, Messages: msgs[:size:size]})
		msgs = msgs[size:]
		n++
	}
	return append(out, model.Chunk{Number: n, Messages: msgs})
}

// recordParticipants feeds the senders' contact lists.
func (e *Engine) recordParticipants(ctx context.Context, roomID string, msgs []model.Message) {
	if len(msgs) == 0 {
		return
	}
	var senders []string
	seen := make(map[string]bool)
	for _, m := range msgs {
		if !seen[m.Sender] {
			seen[m.Sender] = true
			senders = append(senders, m.Sender)
		}
	}

	at := time.UnixMilli(msgs[len(msgs)-1].Timestamp)
	if err := e.store.TouchRooms(ctx, roomID, senders, at); err != nil {
		e.log.Warn("record room participants", zap.String("room", roomID), zap.Error(err))
		return
	}
	if err := e.cache.InvalidateContacts(ctx, senders...); err != nil {
		e.log.Warn("invalidate contacts", zap.String("room", roomID), zap.Error(err))
	}
}
