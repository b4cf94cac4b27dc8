// Package chat is the surface the API talks to. It composes the chunk
// engine, the cache tier and the store into the history, reaction, read
// and contact operations, and announces changes to room members through a
// Publisher.
package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mahaj/chunkchat/pkg/cache"
	"github.com/mahaj/chunkchat/pkg/chunk"
	"github.com/mahaj/chunkchat/pkg/model"
	"github.com/mahaj/chunkchat/pkg/snowflake"
	"github.com/mahaj/chunkchat/pkg/store"
	"go.uber.org/zap"
)

const (
	StatusOnline  = "online"
	StatusOffline = "offline"
)

var ErrInvalidRequest = errors.New("invalid request")

// publishTimeout bounds how long a request waits on the event bus. The
// change is already stored when publishing starts.
const publishTimeout = 2 * time.Second

// Publisher delivers events to the members of a room.
type Publisher interface {
	Publish(ctx context.Context, ev model.Event) error
}

// Page is a slice of room history.
type Page struct {
	ChunkID  string          `json:"id"`
	Messages []model.Message `json:"messages"`
	HasMore  bool            `json:"hasMore"`
}

type Service struct {
	engine *chunk.Engine
	cache  *cache.Cache
	store  store.Store
	pub    Publisher
	ids    *snowflake.Node
	log    *zap.Logger

	publishTimeout time.Duration
}

// NewService wires the facade. pub may be nil, in which case nothing is
// published.
func NewService(engine *chunk.Engine, c *cache.Cache, s store.Store, pub Publisher, ids *snowflake.Node, log *zap.Logger) *Service {
	return &Service{
		engine: engine,
		cache:  c,
		store:  s,
		pub:    pub,
		ids:    ids,
		log:    log,

		publishTimeout: publishTimeout,
	}
}

// Send queues msg and returns its assigned id.
func (s *Service) Send(ctx context.Context, roomID string, msg model.Message) (model.Message, error) {
	sent, err := s.engine.Send(ctx, roomID, msg)
	if err != nil {
		return model.Message{}, err
	}
	s.publish(ctx, model.EventMessage, roomID, sent.Sender, sent)
	return sent, nil
}

// GetLatest returns the previous chunk, the current chunk and the pending
// buffer merged in chronological order. ChunkID names the oldest chunk
// included, so paging back from it never repeats a message.
func (s *Service) GetLatest(ctx context.Context, roomID string) Page {
	// Pending is read before the chunks: a drain in between then shows
	// its messages twice, which merge drops, instead of not at all.
	pending := s.GetPending(ctx, roomID)

	latest, err := s.engine.LatestChunk(ctx, roomID)
	if err != nil {
		s.log.Warn("resolve latest chunk", zap.String("room", roomID), zap.Error(err))
		return Page{ChunkID: model.ChunkID(1), Messages: merge(pending)}
	}

	oldest := latest
	var parts [][]model.Message
	if latest > 1 {
		prev, ok, err := s.engine.Chunk(ctx, roomID, latest-1)
		if err != nil {
			s.log.Warn("load previous chunk", zap.String("room", roomID), zap.Int("chunk", latest-1), zap.Error(err))
		}
		if ok {
			parts = append(parts, prev.Messages)
			oldest = latest - 1
		}
	}

	current, _, err := s.engine.Chunk(ctx, roomID, latest)
	if err != nil {
		s.log.Warn("load current chunk", zap.String("room", roomID), zap.Int("chunk", latest), zap.Error(err))
	}
	parts = append(parts, current.Messages, pending)

	return Page{
		ChunkID:  model.ChunkID(oldest),
		Messages: merge(parts...),
		HasMore:  oldest > 1,
	}
}

// GetOlder returns the chunk before fromChunkID.
func (s *Service) GetOlder(ctx context.Context, roomID, fromChunkID string) (Page, error) {
	from, err := model.ParseChunkID(fromChunkID)
	if err != nil {
		return Page{}, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	if from <= 1 {
		return emptyPage(1), nil
	}

	n := from - 1
	c, _, err := s.engine.Chunk(ctx, roomID, n)
	if err != nil {
		s.log.Warn("load older chunk", zap.String("room", roomID), zap.Int("chunk", n), zap.Error(err))
	}
	return Page{
		ChunkID:  model.ChunkID(n),
		Messages: merge(c.Messages),
		HasMore:  n > 1,
	}, nil
}

// GetPending returns the room's not yet chunked messages in arrival order.
func (s *Service) GetPending(ctx context.Context, roomID string) []model.Message {
	msgs, err := s.cache.PeekPending(ctx, roomID, 0)
	if err != nil {
		s.log.Warn("read pending buffer", zap.String("room", roomID), zap.Error(err))
		return []model.Message{}
	}
	if msgs == nil {
		return []model.Message{}
	}
	return msgs
}

type reactionPayload struct {
	MessageID string          `json:"messageId"`
	Emoji     string          `json:"emoji"`
	Remove    bool            `json:"remove,omitempty"`
	Reactions model.Reactions `json:"reactions"`
}

// React toggles user's emoji on a message.
func (s *Service) React(ctx context.Context, roomID, messageID, emoji, user string, remove bool) (model.Message, error) {
	m, err := s.engine.React(ctx, roomID, messageID, emoji, user, remove)
	if err != nil {
		return model.Message{}, err
	}
	s.publish(ctx, model.EventReaction, roomID, user, reactionPayload{
		MessageID: messageID,
		Emoji:     emoji,
		Remove:    remove,
		Reactions: m.Reactions,
	})
	return m, nil
}

func (s *Service) publish(ctx context.Context, typ model.EventType, roomID, userID string, payload any) {
	if s.pub == nil {
		return
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		s.log.Error("encode event payload", zap.String("type", string(typ)), zap.Error(err))
		return
	}
	ev := model.Event{
		ID:        s.ids.Generate(),
		Type:      typ,
		RoomID:    roomID,
		UserID:    userID,
		Payload:   raw,
		Timestamp: time.Now(),
	}
	pctx, cancel := context.WithTimeout(ctx, s.publishTimeout)
	defer cancel()
	if err := s.pub.Publish(pctx, ev); err != nil {
		s.log.Warn("publish event", zap.String("type", string(typ)), zap.String("room", roomID), zap.Error(err))
	}
}

func emptyPage(n int) Page {
	return Page{ChunkID: model.ChunkID(n), Messages: []model.Message{}}
}

// merge concatenates parts, dropping repeated ids.
func merge(parts ...[]model.Message) []model.Message {
	out := []model.Message{}
	seen := make(map[string]bool)
	for _, p := range parts {
		for _, m := range p {
			if seen[m.ID] {
				continue
			}
			seen[m.ID] = true
			out = append(out, m)
		}
	}
	return out
}
