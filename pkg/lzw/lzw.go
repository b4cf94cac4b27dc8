// Package lzw implements the dictionary coder used to shrink document
// payloads before they are cached or persisted.
//
// Codes are a fixed 16 bits wide. When the table holds 1<<16 entries both
// the encoder and the decoder drop back to the 256 single-byte literals at
// the same position in the code stream, so no clear code is emitted. The
// code stream is base64 encoded because the cache and store keep values as
// strings.
package lzw

import (
	"bytes"
	"encoding/base64"
	"encoding/binary"
)

const (
	codeWidth = 16
	maxCodes  = 1 << codeWidth
	literals  = 256
)

// Compress encodes text. The dictionary is rebuilt on every call.
func Compress(text string) string {
	if text == "" {
		return ""
	}

	dict := make(map[uint32]uint16)
	next := literals
	out := make([]byte, 0, len(text))

	w := uint16(text[0])
	for i := 1; i < len(text); i++ {
		c := text[i]
		key := uint32(w)<<8 | uint32(c)
		if code, ok := dict[key]; ok {
			w = code
			continue
		}

		out = binary.BigEndian.AppendUint16(out, w)
		if next == maxCodes {
			clear(dict)
			next = literals
		} else {
			dict[key] = uint16(next)
			next++
		}
		w = uint16(c)
	}
	out = binary.BigEndian.AppendUint16(out, w)

	return base64.StdEncoding.EncodeToString(out)
}

// Decompress reverses Compress. Input that is not a valid code stream is
// returned unchanged, so callers must tolerate getting the encoded form back.
func Decompress(encoded string) string {
	if encoded == "" {
		return ""
	}

	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil || len(raw) == 0 || len(raw)%2 != 0 {
		return encoded
	}

	t := &table{}
	var (
		out     bytes.Buffer
		scratch []byte
		prev    = -1
	)
	for i := 0; i < len(raw); i += 2 {
		code := int(binary.BigEndian.Uint16(raw[i:]))

		if prev >= 0 && t.size() == maxCodes {
			t.reset()
			prev = -1
		}

		switch {
		case code < t.size():
			scratch = t.expand(code, scratch[:0])
			if prev >= 0 {
				t.add(prev, scratch[0])
			}
		case code == t.size() && prev >= 0:
			scratch = t.expand(prev, scratch[:0])
			scratch = append(scratch, scratch[0])
			t.add(prev, scratch[0])
		default:
			return encoded
		}

		out.Write(scratch)
		prev = code
	}

	return out.String()
}

// table stores every non-literal code as (prefix code, last byte).
type table struct {
	prefix []uint16
	suffix []byte
}

func (t *table) size() int { return literals + len(t.suffix) }

func (t *table) reset() {
	t.prefix = t.prefix[:0]
	t.suffix = t.suffix[:0]
}

func (t *table) add(prefix int, c byte) {
	t.prefix = append(t.prefix, uint16(prefix))
	t.suffix = append(t.suffix, c)
}

// expand appends the byte string for code to buf.
func (t *table) expand(code int, buf []byte) []byte {
	start := len(buf)
	for code >= literals {
		buf = append(buf, t.suffix[code-literals])
		code = int(t.prefix[code-literals])
	}
	buf = append(buf, byte(code))

	for i, j := start, len(buf)-1; i < j; i, j = i+1, j-1 {
		buf[i], buf[j] = buf[j], buf[i]
	}
	return buf
}
