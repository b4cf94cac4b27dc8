package logger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWritesToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gateway.log")

	l, err := New("gateway", "info", path)
	require.NoError(t, err)
	l.Info("client registered")
	l.Debug("not written")
	_ = l.Sync()

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"msg":"client registered"`)
	assert.Contains(t, string(raw), `"service":"gateway"`)
	assert.NotContains(t, string(raw), "not written")
}

func TestNewRejectsUnknownLevel(t *testing.T) {
	_, err := New("api", "loud", "")
	assert.Error(t, err)
}
