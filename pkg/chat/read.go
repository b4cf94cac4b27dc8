package chat

import (
	"context"
	"fmt"
	"time"

	"github.com/mahaj/chunkchat/pkg/model"
	"go.uber.org/zap"
)

// MarkRead moves user's watermark in roomID to lastReadMessageID and
// resets their unread count.
func (s *Service) MarkRead(ctx context.Context, roomID, userID, lastReadMessageID string) (model.ReadMarker, error) {
	if roomID == "" || userID == "" || lastReadMessageID == "" {
		return model.ReadMarker{}, fmt.Errorf("%w: roomId, userId and lastReadMessageId are required", ErrInvalidRequest)
	}

	marker := model.ReadMarker{
		MessageID: lastReadMessageID,
		Timestamp: s.messageTime(ctx, roomID, lastReadMessageID),
	}
	if err := s.cache.SetReadMarker(ctx, roomID, userID, marker); err != nil {
		return model.ReadMarker{}, err
	}
	if err := s.store.SaveReadMarker(ctx, roomID, userID, marker); err != nil {
		s.log.Warn("persist read marker", zap.String("room", roomID), zap.String("user", userID), zap.Error(err))
	}
	if err := s.cache.SetUnreadCount(ctx, roomID, userID, 0); err != nil {
		s.log.Warn("reset unread count", zap.String("room", roomID), zap.String("user", userID), zap.Error(err))
	}

	s.publish(ctx, model.EventReadReceipt, roomID, userID, marker)
	return marker, nil
}

// messageTime finds the timestamp of a message among the pending buffer
// and the cached chunks, falling back to the time encoded in its id.
func (s *Service) messageTime(ctx context.Context, roomID, messageID string) int64 {
	for _, m := range s.GetPending(ctx, roomID) {
		if m.ID == messageID {
			return m.Timestamp
		}
	}
	var found int64
	s.eachCachedChunk(ctx, roomID, func(c model.Chunk) bool {
		for _, m := range c.Messages {
			if m.ID == messageID {
				found = m.Timestamp
				return false
			}
		}
		return true
	})
	if found > 0 {
		return found
	}
	if ms, ok := model.MessageTime(messageID); ok {
		return ms
	}
	return time.Now().UnixMilli()
}

// UnreadCount returns how many messages from others in roomID are newer
// than the user's watermark. A positive lastRead overrides the stored
// watermark and bypasses the cached count. The count only covers the
// pending buffer and the cached chunks down to the first uncached one.
func (s *Service) UnreadCount(ctx context.Context, roomID, userID string, lastRead int64) int {
	stored := lastRead <= 0
	if stored {
		n, ok, err := s.cache.UnreadCount(ctx, roomID, userID)
		if err != nil {
			s.log.Warn("read unread count", zap.String("room", roomID), zap.String("user", userID), zap.Error(err))
			return 0
		}
		if ok {
			return n
		}
		lastRead = s.watermark(ctx, roomID, userID)
	}

	unread := func(m model.Message) bool {
		return m.Sender != userID && m.Timestamp > lastRead
	}

	count := 0
	for _, m := range s.GetPending(ctx, roomID) {
		if unread(m) {
			count++
		}
	}
	s.eachCachedChunk(ctx, roomID, func(c model.Chunk) bool {
		for _, m := range c.Messages {
			if unread(m) {
				count++
			}
		}
		return true
	})

	if !stored {
		return count
	}
	if err := s.cache.SetUnreadCount(ctx, roomID, userID, count); err != nil {
		s.log.Warn("cache unread count", zap.String("room", roomID), zap.String("user", userID), zap.Error(err))
	}
	return count
}

func (s *Service) watermark(ctx context.Context, roomID, userID string) int64 {
	marker, ok, err := s.cache.ReadMarker(ctx, roomID, userID)
	if err == nil && ok {
		return marker.Timestamp
	}

	marker, ok, err = s.store.LoadReadMarker(ctx, roomID, userID)
	if err != nil {
		s.log.Warn("load read marker", zap.String("room", roomID), zap.String("user", userID), zap.Error(err))
		return 0
	}
	if !ok {
		return 0
	}
	if err := s.cache.SetReadMarker(ctx, roomID, userID, marker); err != nil {
		s.log.Warn("cache read marker", zap.String("room", roomID), zap.String("user", userID), zap.Error(err))
	}
	return marker.Timestamp
}

// eachCachedChunk walks cached chunks from the latest down, stopping at the
// first one not in the cache or when fn returns false.
func (s *Service) eachCachedChunk(ctx context.Context, roomID string, fn func(model.Chunk) bool) {
	latest, ok, err := s.cache.GetLatest(ctx, roomID)
	if err != nil || !ok {
		return
	}
	for n := latest; n >= 1; n-- {
		entry, ok, err := s.cache.GetChunk(ctx, roomID, n)
		if err != nil || !ok {
			return
		}
		if !fn(entry.Chunk) {
			return
		}
	}
}
