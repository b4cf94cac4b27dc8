package chunk

import (
	"context"
	"fmt"

	"github.com/mahaj/chunkchat/pkg/model"
	"go.uber.org/zap"
)

// React toggles user's reaction on a message and returns the updated
// message. A message still in the pending buffer is drained into its chunk
// first.
func (e *Engine) React(ctx context.Context, roomID, messageID, emoji, user string, remove bool) (model.Message, error) {
	if roomID == "" || messageID == "" || emoji == "" || user == "" {
		return model.Message{}, fmt.Errorf("%w: roomId, messageId, emoji and user are required", ErrInvalidMessage)
	}

	unlock, err := e.lock(ctx, roomID)
	if err != nil {
		return model.Message{}, err
	}
	defer unlock()

	pending, err := e.cache.PeekPending(ctx, roomID, 0)
	if err != nil {
		return model.Message{}, err
	}
	for _, m := range pending {
		if m.ID == messageID {
			if _, err := e.drainAllLocked(ctx, roomID); err != nil {
				return model.Message{}, fmt.Errorf("drain before reaction: %w", err)
			}
			break
		}
	}

	chunk, idx, err := e.findMessage(ctx, roomID, messageID)
	if err != nil {
		return model.Message{}, err
	}

	msgs := make([]model.Message, len(chunk.Messages))
	copy(msgs, chunk.Messages)
	msgs[idx].Reactions = msgs[idx].Reactions.Toggle(emoji, user, remove)
	chunk.Messages = msgs

	if err := e.cache.SetChunk(ctx, roomID, chunk, true); err != nil {
		return model.Message{}, err
	}
	return msgs[idx], nil
}

// findMessage looks through cached chunks newest first, then falls back to
// the store for chunks that are not cached.
func (e *Engine) findMessage(ctx context.Context, roomID, messageID string) (model.Chunk, int, error) {
	latest, err := e.LatestChunk(ctx, roomID)
	if err != nil {
		return model.Chunk{}, 0, err
	}

	var missing []int
	for n := latest; n >= 1; n-- {
		entry, ok, err := e.cache.GetChunk(ctx, roomID, n)
		if err != nil {
			return model.Chunk{}, 0, err
		}
		if !ok {
			missing = append(missing, n)
			continue
		}
		if i := indexOf(entry.Chunk.Messages, messageID); i >= 0 {
			return entry.Chunk, i, nil
		}
	}

	for _, n := range missing {
		chunk, ok, err := e.store.LoadChunk(ctx, roomID, n)
		if err != nil {
			return model.Chunk{}, 0, err
		}
		if !ok {
			continue
		}
		if i := indexOf(chunk.Messages, messageID); i >= 0 {
			if err := e.cache.SetChunk(ctx, roomID, chunk, false); err != nil {
				e.log.Warn("repopulate chunk", zap.String("room", roomID), zap.Int("chunk", n), zap.Error(err))
			}
			return chunk, i, nil
		}
	}
	return model.Chunk{}, 0, ErrMessageNotFound
}

func indexOf(msgs []model.Message, id string) int {
	for i, m := range msgs {
		if m.ID == id {
			return i
		}
	}
	return -1
}
