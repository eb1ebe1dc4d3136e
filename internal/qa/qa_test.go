package qa

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sample = `
- question: 你叫什么名字？
  answer: 我叫Fay。
- question: What time do you open?
  answer: We open at nine.
- question: 营业时间
  answer: 每天九点到五点。
`

func openSample(t *testing.T) *Book {
	t.Helper()
	path := filepath.Join(t.TempDir(), "qa.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sample), 0o644))
	b, err := Open(path, zerolog.Nop())
	require.NoError(t, err)
	return b
}

func TestMatch(t *testing.T) {
	b := openSample(t)
	require.Equal(t, 3, b.Len())

	tests := []struct {
		name  string
		query string
		want  string
		ok    bool
	}{
		{"exact with punctuation", "你叫什么名字", "我叫Fay。", true},
		{"case and spacing", "  what TIME do you open ", "We open at nine.", true},
		{"contains curated question", "请问你们的营业时间是？", "每天九点到五点。", true},
		{"single rune", "你", "", false},
		{"unrelated", "tell me a joke", "", false},
		{"blank", " ？ ", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := b.Match(tt.query)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestOpenMissingFile(t *testing.T) {
	b, err := Open(filepath.Join(t.TempDir(), "none.yaml"), zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, 0, b.Len())

	_, err = Open("", zerolog.Nop())
	assert.Error(t, err)
}

func TestOpenInvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "qa.yaml")
	require.NoError(t, os.WriteFile(path, []byte("question: [unterminated"), 0o644))
	_, err := Open(path, zerolog.Nop())
	assert.Error(t, err)
}

func TestRecordPersists(t *testing.T) {
	b := openSample(t)
	require.NoError(t, b.Record("Where are you?", "In Shanghai."))
	require.NoError(t, b.Record("你叫什么名字", "我是小菲。"))
	assert.Error(t, b.Record("", "x"))

	reopened, err := Open(b.Path(), zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, 4, reopened.Len())
	got, ok := reopened.Match("where are you")
	assert.True(t, ok)
	assert.Equal(t, "In Shanghai.", got)
	got, _ = reopened.Match("你叫什么名字？")
	assert.Equal(t, "我是小菲。", got)

	entries, err := os.ReadDir(filepath.Dir(b.Path()))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp files must not be left behind")
}

func TestWatchReloads(t *testing.T) {
	b := openSample(t)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- b.Watch(ctx) }()

	// Give the watcher a moment to register the directory.
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, os.WriteFile(b.Path(), []byte("- question: ping\n  answer: pong\n"), 0o644))

	require.Eventually(t, func() bool {
		got, ok := b.Match("ping")
		return ok && got == "pong"
	}, 3*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Watch did not return after cancel")
	}
}
