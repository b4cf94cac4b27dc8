package lzw

import (
	"encoding/base64"
	"math/rand"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		in   string
	}{
		{"empty", ""},
		{"single byte", "a"},
		{"repeated run", "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"},
		{"classic", "TOBEORNOTTOBEORTOBEORNOT"},
		{"unicode", "héllo wörld 😂 héllo wörld 😂 héllo"},
		{"document", strings.Repeat("The quick brown fox jumps over the lazy dog. ", 200)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.in, Decompress(Compress(tt.in)))
		})
	}
}

func TestRoundTripRandomText(t *testing.T) {
	r := rand.New(rand.NewSource(7))
	const alphabet = "abcdefghijklmnopqrstuvwxyz ABCDEFGHIJ.,\n0123456789"

	for i := 0; i < 50; i++ {
		var b strings.Builder
		n := r.Intn(4000)
		for j := 0; j < n; j++ {
			b.WriteByte(alphabet[r.Intn(len(alphabet))])
		}
		in := b.String()
		require.Equal(t, in, Decompress(Compress(in)))
	}
}

func TestRoundTripAcrossTableReset(t *testing.T) {
	// Random bytes create a new table entry for almost every code, so this
	// input fills the 16-bit table more than once.
	r := rand.New(rand.NewSource(42))
	buf := make([]byte, 300_000)
	r.Read(buf)
	in := string(buf)

	require.Equal(t, in, Decompress(Compress(in)))
}

func TestCompressShrinksRepetitiveText(t *testing.T) {
	in := strings.Repeat("lorem ipsum dolor sit amet ", 500)
	assert.Less(t, len(Compress(in)), len(in))
}

func TestDecompressCorruptInputPassesThrough(t *testing.T) {
	unresolvable := base64.StdEncoding.EncodeToString([]byte{0x00, 0x41, 0x7f, 0xff})

	tests := []struct {
		name string
		in   string
	}{
		{"not base64", "%%% not base64 %%%"},
		{"odd length", base64.StdEncoding.EncodeToString([]byte{0x00, 0x41, 0x42})},
		{"unknown code", unresolvable},
		{"first code not literal", base64.StdEncoding.EncodeToString([]byte{0x01, 0x00})},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.in, Decompress(tt.in))
		})
	}
}
