package model

import (
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"time"
)

type MessageType string

const (
	TypeText     MessageType = "text"
	TypeImage    MessageType = "image"
	TypeDocument MessageType = "document"
)

// Valid reports whether t is one of the supported message types.
func (t MessageType) Valid() bool {
	switch t {
	case TypeText, TypeImage, TypeDocument:
		return true
	}
	return false
}

// Message is the canonical in-process message. It only leaves the process
// in this shape through the API; caches and stores hold Compact.
type Message struct {
	ID             string      `json:"id"`
	Sender         string      `json:"sender"`
	Content        string      `json:"content"`
	Type           MessageType `json:"type"`
	Timestamp      int64       `json:"timestamp"`
	FileName       string      `json:"fileName,omitempty"`
	FileSize       int64       `json:"fileSize,omitempty"`
	FileType       string      `json:"fileType,omitempty"`
	OriginalSize   int         `json:"originalSize,omitempty"`
	CompressedSize int         `json:"compressedSize,omitempty"`
	ReplyTo        string      `json:"replyTo,omitempty"`
	Reactions      Reactions   `json:"reactions,omitempty"`
}

// Chunk is one fixed-capacity page of a room's history, oldest first.
type Chunk struct {
	Number   int
	Messages []Message
}

func (c Chunk) ID() string { return ChunkID(c.Number) }

// HasMore reports whether an older chunk exists.
func (c Chunk) HasMore() bool { return c.Number > 1 }

const chunkPrefix = "chunk_"

var ErrInvalidChunkID = errors.New("invalid chunk id")

func ChunkID(n int) string { return chunkPrefix + strconv.Itoa(n) }

// ParseChunkID accepts "chunk_<N>" or a bare "<N>".
func ParseChunkID(id string) (int, error) {
	n, err := strconv.Atoi(strings.TrimPrefix(id, chunkPrefix))
	if err != nil || n < 1 {
		return 0, ErrInvalidChunkID
	}
	return n, nil
}

// MessageTime returns the epoch milliseconds a message id was minted at.
func MessageTime(id string) (int64, bool) {
	prefix, _, ok := strings.Cut(id, "_")
	if !ok {
		return 0, false
	}
	ms, err := strconv.ParseInt(prefix, 10, 64)
	if err != nil || ms <= 0 {
		return 0, false
	}
	return ms, true
}

// ReadMarker is a per-user last-read watermark.
type ReadMarker struct {
	MessageID string `json:"messageId"`
	Timestamp int64  `json:"timestamp"`
}

// RoomSummary is one entry of a user's contact list.
type RoomSummary struct {
	RoomID      string    `json:"room_id"`
	LastUpdated time.Time `json:"last_updated"`
}

type EventType string

const (
	EventMessage     EventType = "message"
	EventTyping      EventType = "typing"
	EventPresence    EventType = "presence"
	EventReaction    EventType = "reaction"
	EventReadReceipt EventType = "read_receipt"
)

// Event is what travels over the fan-out bus to room members.
type Event struct {
	ID        int64           `json:"id"`
	Type      EventType       `json:"type"`
	RoomID    string          `json:"room_id"`
	UserID    string          `json:"user_id"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}
