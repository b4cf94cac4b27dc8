package model

import (
	"strings"

	"github.com/mahaj/chunkchat/pkg/lzw"
)

// Compact is the storage shape of a message. Short keys keep cached and
// persisted chunks small; document content may be LZW compressed, in which
// case Cs is set.
type Compact struct {
	I  string      `json:"i"`
	S  string      `json:"s"`
	C  string      `json:"c"`
	T  int64       `json:"t"`
	Ty MessageType `json:"ty"`
	Fn string      `json:"fn,omitempty"`
	Fs int64       `json:"fs,omitempty"`
	Ft string      `json:"ft,omitempty"`
	Os int         `json:"os,omitempty"`
	Cs int         `json:"cs,omitempty"`
	R  string      `json:"r,omitempty"`
	Em Reactions   `json:"em,omitempty"`
}

// ShouldCompress reports whether content of type t is worth compressing.
// Embedded data URIs are already dense.
func ShouldCompress(t MessageType, content string) bool {
	return t == TypeDocument && content != "" && !strings.HasPrefix(content, "data:")
}

func Encode(m Message) Compact {
	c := Compact{
		I:  m.ID,
		S:  m.Sender,
		C:  m.Content,
		T:  m.Timestamp,
		Ty: m.Type,
		Fn: m.FileName,
		Fs: m.FileSize,
		Ft: m.FileType,
		R:  m.ReplyTo,
		Em: m.Reactions,
	}

	// m.Content is always plain text here; sizes are recomputed.
	if ShouldCompress(m.Type, m.Content) {
		z := lzw.Compress(m.Content)
		c.C = z
		c.Os = len(m.Content)
		c.Cs = len(z)
	}
	return c
}

// Decode expands c, decompressing document content. A corrupt compressed
// payload is returned as stored.
func Decode(c Compact) Message {
	m := Message{
		ID:        c.I,
		Sender:    c.S,
		Content:   c.C,
		Type:      c.Ty,
		Timestamp: c.T,
		FileName:  c.Fn,
		FileSize:  c.Fs,
		FileType:  c.Ft,
		ReplyTo:   c.R,
		Reactions: c.Em,
	}
	if c.Cs > 0 {
		m.OriginalSize = c.Os
		m.CompressedSize = c.Cs
		if c.Ty == TypeDocument {
			m.Content = lzw.Decompress(c.C)
		}
	}
	return m
}

func EncodeAll(msgs []Message) []Compact {
	out := make([]Compact, len(msgs))
	for i, m := range msgs {
		out[i] = Encode(m)
	}
	return out
}

func DecodeAll(cs []Compact) []Message {
	out := make([]Message, len(cs))
	for i, c := range cs {
		out[i] = Decode(c)
	}
	return out
}
