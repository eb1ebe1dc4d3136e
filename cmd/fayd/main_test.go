package main

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soullink/fay-gateway/internal/config"
	"github.com/soullink/fay-gateway/internal/content"
	contentsqlite "github.com/soullink/fay-gateway/internal/content/sqlite"
	"github.com/soullink/fay-gateway/internal/modelstore"
	modelsqlite "github.com/soullink/fay-gateway/internal/modelstore/sqlite"
)

func TestNewBackendWithoutKeyUsesLoopback(t *testing.T) {
	r, err := newBackend(config.Config{LLMModel: "gpt-4o-mini"}, zerolog.Nop())
	require.NoError(t, err)
	name, err := r.Resolve("gpt-4o-mini")
	require.NoError(t, err)
	assert.Equal(t, backendLoopback, name)
}

func TestNewBackendRoutesConfiguredModel(t *testing.T) {
	r, err := newBackend(config.Config{
		LLMAPIKey:  "sk-test",
		LLMBaseURL: "http://127.0.0.1:1/v1",
		LLMModel:   "qwen-plus",
	}, zerolog.Nop())
	require.NoError(t, err)

	name, err := r.Resolve("qwen-plus")
	require.NoError(t, err)
	assert.Equal(t, backendOpenAI, name)

	name, err = r.Resolve("other")
	require.NoError(t, err)
	assert.Equal(t, backendLoopback, name)
}

func TestPrintHistory(t *testing.T) {
	store, err := contentsqlite.New(filepath.Join(t.TempDir(), "fay.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	ctx := context.Background()
	_, err = store.AddMessage(ctx, content.Message{Type: content.TypeMember, Way: "speak", Content: "你好", Username: "amy"})
	require.NoError(t, err)
	id, err := store.AddMessage(ctx, content.Message{Type: content.TypeFay, Way: "speak", Content: "欢迎", Username: "amy"})
	require.NoError(t, err)
	require.NoError(t, store.Adopt(ctx, id))

	var out bytes.Buffer
	require.NoError(t, printHistory(ctx, &out, store, "amy", 10))
	lines := bytes.Split(bytes.TrimSpace(out.Bytes()), []byte("\n"))
	require.Len(t, lines, 2)
	assert.Contains(t, string(lines[0]), "member/speak: 你好")
	assert.Contains(t, string(lines[1]), "fay/speak [adopted]: 欢迎")
}

func TestPrintModelsMarksSelection(t *testing.T) {
	store, err := modelsqlite.New(filepath.Join(t.TempDir(), "models.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	ctx := context.Background()
	p, err := store.Create(ctx, modelstore.Profile{Name: "小芳", CreatorUsername: "amy", Attributes: map[string]string{"name": "小芳"}})
	require.NoError(t, err)
	require.NoError(t, store.SelectModel(ctx, "amy", p.ModelID))

	var out bytes.Buffer
	require.NoError(t, printModels(ctx, &out, store, "amy"))
	assert.Contains(t, out.String(), p.ModelID)
	assert.Contains(t, out.String(), "*")
}

func TestVersionCommand(t *testing.T) {
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"version"})
	require.NoError(t, cmd.Execute())
	assert.Contains(t, out.String(), "version=")
}
