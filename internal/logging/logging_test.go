package logging

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, DebugLevel, ParseLevel("debug"))
	assert.Equal(t, WarnLevel, ParseLevel(" WARNING "))
	assert.Equal(t, ErrorLevel, ParseLevel("error"))
	assert.Equal(t, InfoLevel, ParseLevel("nonsense"))
}

func TestNewWritesJSON(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Level: InfoLevel, Output: &buf})
	l.Debug().Msg("hidden")
	l.Info().Str("user", "User").Msg("hello")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "hello", entry["message"])
	assert.Equal(t, "User", entry["user"])
	assert.Equal(t, "info", entry["level"])
}

func TestRotatingWriterRollsOver(t *testing.T) {
	base := filepath.Join(t.TempDir(), "logs", "fay.log")
	day := time.Date(2025, 10, 26, 12, 0, 0, 0, time.UTC)
	rw := &RotatingWriter{BasePath: base, MaxBytes: 10, now: func() time.Time { return day }}
	require.NoError(t, rw.rotate(0))
	t.Cleanup(func() { _ = rw.Close() })

	_, err := rw.Write([]byte("12345678"))
	require.NoError(t, err)
	_, err = rw.Write([]byte("abcdef"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(filepath.Dir(base), "fay-2025-10-26-2.log"), rw.Current())

	day = day.Add(24 * time.Hour)
	_, err = rw.Write([]byte("x"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(filepath.Dir(base), "fay-2025-10-27.log"), rw.Current())

	first, err := os.ReadFile(filepath.Join(filepath.Dir(base), "fay-2025-10-26.log"))
	require.NoError(t, err)
	assert.Equal(t, "12345678", string(first))

	pointed, err := os.ReadFile(base)
	require.NoError(t, err)
	assert.Equal(t, "x", string(pointed))
}

func TestRotatingWriterDiscard(t *testing.T) {
	w, err := NewRotatingWriter("-", 0)
	require.NoError(t, err)
	n, err := w.Write([]byte("dropped"))
	require.NoError(t, err)
	assert.Equal(t, 7, n)
	assert.NoError(t, w.Close())
}
