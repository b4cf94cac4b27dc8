// Package chunk is the write-back engine behind room history. Sends land in
// a per-room pending buffer in the cache; a drain task folds them into
// fixed-size chunks and a flush task writes dirty chunks to the store
// before their cache entries expire.
package chunk

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mahaj/chunkchat/pkg/cache"
	"github.com/mahaj/chunkchat/pkg/model"
	"github.com/mahaj/chunkchat/pkg/snowflake"
	"github.com/mahaj/chunkchat/pkg/store"
	"go.uber.org/zap"
)

// MaxDocumentSize is the largest document accepted by Send.
const MaxDocumentSize = 3 * 1024 * 1024

var (
	ErrInvalidMessage   = errors.New("invalid message")
	ErrDocumentTooLarge = errors.New("document exceeds the 3MB limit")
	ErrMessageNotFound  = errors.New("message not found")
)

type Options struct {
	// MaxBatchSize is both the chunk capacity and the most pending
	// messages folded in by one drain pass.
	MaxBatchSize int
	// MaxPending triggers an immediate drain of a room whose buffer
	// reaches it. Zero disables the trigger.
	MaxPending int

	BatchInterval time.Duration
	FlushInterval time.Duration
	// FlushMargin flushes a dirty chunk once its cache TTL drops to it.
	FlushMargin time.Duration
	// MaxDirtyAge flushes a chunk dirty for this long regardless of TTL.
	// Zero disables it.
	MaxDirtyAge time.Duration
	// LockWait bounds how long a request waits for a room lock.
	LockWait time.Duration
}

func DefaultOptions() Options {
	return Options{
		MaxBatchSize:  50,
		MaxPending:    500,
		BatchInterval: 5 * time.Second,
		FlushInterval: 30 * time.Second,
		FlushMargin:   5 * time.Minute,
		MaxDirtyAge:   5 * time.Minute,
		LockWait:      5 * time.Second,
	}
}

type Engine struct {
	cache *cache.Cache
	store store.Store
	ids   *snowflake.Node
	log   *zap.Logger
	opts  Options

	kick chan string
}

func New(c *cache.Cache, s store.Store, ids *snowflake.Node, log *zap.Logger, opts Options) *Engine {
	if opts.MaxBatchSize <= 0 {
		opts.MaxBatchSize = DefaultOptions().MaxBatchSize
	}
	if opts.LockWait <= 0 {
		opts.LockWait = DefaultOptions().LockWait
	}
	return &Engine{
		cache: c,
		store: s,
		ids:   ids,
		log:   log,
		opts:  opts,
		kick:  make(chan string, 64),
	}
}

func (e *Engine) Options() Options { return e.opts }

// Validate checks a message before it is queued.
func Validate(roomID string, msg model.Message) error {
	switch {
	case roomID == "":
		return fmt.Errorf("%w: roomId is required", ErrInvalidMessage)
	case msg.Sender == "":
		return fmt.Errorf("%w: sender is required", ErrInvalidMessage)
	case !msg.Type.Valid():
		return fmt.Errorf("%w: unknown type %q", ErrInvalidMessage, msg.Type)
	case msg.Content == "":
		return fmt.Errorf("%w: content is required", ErrInvalidMessage)
	}

	if msg.Type == model.TypeDocument {
		size := msg.FileSize
		if size == 0 {
			size = int64(len(msg.Content))
		}
		if size > MaxDocumentSize {
			return ErrDocumentTooLarge
		}
	}
	return nil
}

// Send validates msg, stamps it with an id and server time and queues it
// in the room's pending buffer. The returned message is queued but not yet
// durable.
func (e *Engine) Send(ctx context.Context, roomID string, msg model.Message) (model.Message, error) {
	if msg.Type == "" {
		msg.Type = model.TypeText
	}
	if err := Validate(roomID, msg); err != nil {
		return model.Message{}, err
	}

	msg.ID, msg.Timestamp = e.ids.MessageID()
	msg.Reactions = nil
	msg.OriginalSize, msg.CompressedSize = 0, 0

	n, err := e.cache.PushPending(ctx, roomID, msg)
	if err != nil {
		return model.Message{}, fmt.Errorf("queue message: %w", err)
	}

	// The message is queued; the rest is bookkeeping the drain repairs.
	if latest, err := e.LatestChunk(ctx, roomID); err != nil {
		e.log.Warn("resolve latest chunk on send", zap.String("room", roomID), zap.Error(err))
	} else if err := e.cache.MarkDirty(ctx, roomID, latest); err != nil {
		e.log.Warn("mark chunk dirty on send", zap.String("room", roomID), zap.Error(err))
	}
	if err := e.cache.SetLastMessage(ctx, roomID, msg); err != nil {
		e.log.Warn("update room last message", zap.String("room", roomID), zap.Error(err))
	}
	if err := e.cache.InvalidateUnread(ctx, roomID); err != nil {
		e.log.Warn("invalidate unread counts", zap.String("room", roomID), zap.Error(err))
	}

	if e.opts.MaxPending > 0 && n >= int64(e.opts.MaxPending) {
		e.Kick(roomID)
	}
	return msg, nil
}

// Kick asks the drain loop to drain roomID now. It never blocks.
func (e *Engine) Kick(roomID string) {
	select {
	case e.kick <- roomID:
	default:
	}
}

// LatestChunk returns the room's current chunk number, consulting the
// store when the pointer is not cached.
func (e *Engine) LatestChunk(ctx context.Context, roomID string) (int, error) {
	n, ok, err := e.cache.GetLatest(ctx, roomID)
	if err != nil {
		return 0, err
	}
	if ok {
		return n, nil
	}

	n, err = e.store.LatestChunkID(ctx, roomID)
	if err != nil {
		return 0, err
	}
	// newer chunks may exist only in the cache, not yet flushed
	for {
		cached, err := e.cache.ChunkCached(ctx, roomID, n+1)
		if err != nil {
			return 0, err
		}
		if !cached {
			break
		}
		n++
	}
	// a drain may have advanced the pointer meanwhile
	raised, err := e.cache.RaiseLatest(ctx, roomID, n)
	if err != nil {
		e.log.Warn("cache latest chunk", zap.String("room", roomID), zap.Error(err))
		return n, nil
	}
	return raised, nil
}

// Chunk loads chunk n cache-first, repopulating the cache from the store
// on a miss. ok is false when the chunk exists nowhere.
func (e *Engine) Chunk(ctx context.Context, roomID string, n int) (model.Chunk, bool, error) {
	entry, ok, err := e.cache.GetChunk(ctx, roomID, n)
	if err != nil {
		return model.Chunk{Number: n}, false, err
	}
	if ok {
		return entry.Chunk, true, nil
	}

	chunk, ok, err := e.store.LoadChunk(ctx, roomID, n)
	if err != nil || !ok {
		return model.Chunk{Number: n}, false, err
	}
	if err := e.cache.SetChunk(ctx, roomID, chunk, false); err != nil {
		e.log.Warn("repopulate chunk", zap.String("room", roomID), zap.Int("chunk", n), zap.Error(err))
	}
	return chunk, true, nil
}

func (e *Engine) lock(ctx context.Context, roomID string) (func(), error) {
	lctx, cancel := context.WithTimeout(ctx, e.opts.LockWait)
	defer cancel()
	return e.cache.Lock(lctx, roomID)
}
