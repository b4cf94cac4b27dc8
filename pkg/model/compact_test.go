package model

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeCompressesPlainDocuments(t *testing.T) {
	body := strings.Repeat("quarterly report line\n", 100)
	m := Message{ID: "1_a", Sender: "u1", Type: TypeDocument, Content: body, FileName: "r.txt", FileSize: 2200}

	c := Encode(m)
	assert.NotEqual(t, body, c.C)
	assert.Equal(t, len(body), c.Os)
	assert.Equal(t, len(c.C), c.Cs)

	back := Decode(c)
	assert.Equal(t, body, back.Content)
	assert.Equal(t, len(body), back.OriginalSize)
	assert.Equal(t, "r.txt", back.FileName)

	// re-encoding a decoded message must compress again, not store plain text with Cs set
	again := Encode(back)
	assert.Equal(t, c, again)
}

func TestEncodeLeavesOtherContentAlone(t *testing.T) {
	tests := []struct {
		name string
		msg  Message
	}{
		{"text", Message{Type: TypeText, Content: "hello hello hello"}},
		{"image", Message{Type: TypeImage, Content: "data:image/png;base64,AAAA"}},
		{"data uri document", Message{Type: TypeDocument, Content: "data:application/pdf;base64,JVBER"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Encode(tt.msg)
			assert.Equal(t, tt.msg.Content, c.C)
			assert.Zero(t, c.Cs)
			assert.Equal(t, tt.msg, Decode(c))
		})
	}
}

func TestDecodeReadsShortKeys(t *testing.T) {
	raw := `{"i":"17_x","s":"alice","c":"hi","t":17,"ty":"text","r":"16_y","em":{"👍":["bob"]}}`

	var c Compact
	require.NoError(t, json.Unmarshal([]byte(raw), &c))
	m := Decode(c)

	assert.Equal(t, "17_x", m.ID)
	assert.Equal(t, "alice", m.Sender)
	assert.Equal(t, int64(17), m.Timestamp)
	assert.Equal(t, "16_y", m.ReplyTo)
	assert.Equal(t, []string{"bob"}, m.Reactions.Users("👍"))

	out, err := json.Marshal(m)
	require.NoError(t, err)
	assert.Contains(t, string(out), `"replyTo":"16_y"`)
	assert.Contains(t, string(out), `"reactions":{"👍":["bob"]}`)
}

func TestDecodeCorruptDocumentPassesThrough(t *testing.T) {
	c := Compact{I: "1", Ty: TypeDocument, C: "!!corrupt!!", Os: 10, Cs: 11}
	assert.Equal(t, "!!corrupt!!", Decode(c).Content)
}

func TestParseChunkID(t *testing.T) {
	n, err := ParseChunkID("chunk_12")
	require.NoError(t, err)
	assert.Equal(t, 12, n)

	n, err = ParseChunkID("3")
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	for _, bad := range []string{"", "chunk_", "chunk_0", "chunk_-1", "latest"} {
		_, err := ParseChunkID(bad)
		assert.ErrorIs(t, err, ErrInvalidChunkID, bad)
	}
	assert.Equal(t, "chunk_4", Chunk{Number: 4}.ID())
	assert.False(t, Chunk{Number: 1}.HasMore())
}

func TestMessageTime(t *testing.T) {
	ms, ok := MessageTime("1718000000123_a1b2c")
	require.True(t, ok)
	assert.Equal(t, int64(1718000000123), ms)

	for _, id := range []string{"", "abc", "x_1", "-5_a"} {
		_, ok := MessageTime(id)
		assert.False(t, ok, id)
	}
}
