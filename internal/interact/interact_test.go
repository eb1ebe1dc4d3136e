package interact

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soullink/fay-gateway/internal/content"
	contentsqlite "github.com/soullink/fay-gateway/internal/content/sqlite"
	"github.com/soullink/fay-gateway/internal/metrics"
	"github.com/soullink/fay-gateway/internal/modelstore"
	modelsqlite "github.com/soullink/fay-gateway/internal/modelstore/sqlite"
	"github.com/soullink/fay-gateway/internal/openai"
	"github.com/soullink/fay-gateway/internal/stream"
)

type fakeLLM struct {
	mu      sync.Mutex
	calls   [][]openai.ChatMessage
	reply   string
	err     error
	block   chan struct{}
	started chan struct{}
}

func (f *fakeLLM) Chat(ctx context.Context, msgs []openai.ChatMessage) (string, error) {
	f.mu.Lock()
	f.calls = append(f.calls, msgs)
	f.mu.Unlock()
	if f.started != nil {
		f.started <- struct{}{}
	}
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return f.reply, f.err
}

func (f *fakeLLM) Complete(ctx context.Context, prompt string) (string, error) {
	return f.Chat(ctx, []openai.ChatMessage{{Role: "user", Content: prompt}})
}

func (f *fakeLLM) lastCall() []openai.ChatMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.calls) == 0 {
		return nil
	}
	return f.calls[len(f.calls)-1]
}

func (f *fakeLLM) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type fixedQA map[string]string

func (q fixedQA) Match(question string) (string, bool) {
	a, ok := q[question]
	return a, ok
}

type harness struct {
	d       *Dispatcher
	reg     *stream.ShardedRegistry
	store   *contentsqlite.Store
	models  *modelsqlite.Store
	metrics *metrics.Collector
}

func newHarness(t *testing.T, llm *fakeLLM, mutate func(*Config)) *harness {
	t.Helper()
	dir := t.TempDir()
	store, err := contentsqlite.New(filepath.Join(dir, "fay.db"))
	require.NoError(t, err)
	models, err := modelsqlite.New(filepath.Join(dir, "models.db"))
	require.NoError(t, err)
	h := &harness{reg: stream.NewRegistry(), store: store, models: models, metrics: metrics.NewCollector()}
	cfg := Config{
		Registry: h.reg,
		Content:  store,
		Models:   models,
		LLM:      llm,
		Metrics:  h.metrics,
		Logger:   zerolog.Nop(),
	}
	if mutate != nil {
		mutate(&cfg)
	}
	h.d, err = New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() {
		h.d.Close()
		_ = store.Close()
		_ = models.Close()
	})
	return h
}

func (h *harness) collect(t *testing.T, username, cid string) (stream.Result, error) {
	t.Helper()
	r, current := h.reg.Subscribe(username)
	if current != cid {
		return stream.Result{}, stream.ErrSuperseded
	}
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	return stream.Collect(ctx, r, stream.Filter{
		ConversationID: cid,
		Current:        func() string { return h.reg.ConversationID(username) },
	})
}

func TestTextInteractionRoundTrip(t *testing.T) {
	llm := &fakeLLM{reply: "你好。我是Fay！"}
	h := newHarness(t, llm, nil)

	cid, err := h.d.OnInteract(context.Background(), Interact{Kind: KindText, Username: "alice", Message: "hi"})
	require.NoError(t, err)
	assert.Equal(t, h.reg.ConversationID("alice"), cid)

	res, err := h.collect(t, "alice", cid)
	require.NoError(t, err)
	assert.Equal(t, "你好。我是Fay！", res.Text)
	assert.Empty(t, res.Err)
	assert.False(t, res.IsQA)

	h.d.Close()
	msgs, err := h.store.List(context.Background(), content.ListQuery{Username: "alice", Order: "asc"})
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, content.TypeMember, msgs[0].Type)
	assert.Equal(t, WayText, msgs[0].Way)
	assert.Equal(t, content.TypeFay, msgs[1].Type)
	assert.Equal(t, "你好。我是Fay！", msgs[1].Content)
	assert.True(t, h.d.Awake("alice"))
	assert.Equal(t, int64(1), h.metrics.GetSnapshot().Interactions["text"])
}

func TestRejectsBadInput(t *testing.T) {
	h := newHarness(t, &fakeLLM{}, nil)
	ctx := context.Background()

	_, err := h.d.OnInteract(ctx, Interact{Kind: KindText, Message: "  "})
	assert.ErrorIs(t, err, ErrEmptyMessage)
	_, err = h.d.OnInteract(ctx, Interact{Kind: "dance", Message: "x"})
	assert.ErrorIs(t, err, ErrUnknownKind)
	_, err = h.d.OnInteract(ctx, Interact{Kind: KindTransparentPass})
	assert.ErrorIs(t, err, ErrEmptyMessage)

	h.d.Close()
	_, err = h.d.OnInteract(ctx, Interact{Kind: KindText, Message: "x"})
	assert.ErrorIs(t, err, ErrClosed)
}

func TestInterruptStopsProducer(t *testing.T) {
	llm := &fakeLLM{reply: "never", block: make(chan struct{}), started: make(chan struct{}, 4)}
	h := newHarness(t, llm, nil)

	cid, err := h.d.OnInteract(context.Background(), Interact{Kind: KindAudio, Message: "tell me a story"})
	require.NoError(t, err)
	<-llm.started

	done := make(chan error, 1)
	go func() {
		_, err := h.collect(t, stream.DefaultUsername, cid)
		done <- err
	}()

	h.d.Interrupt("")
	select {
	case err := <-done:
		assert.ErrorIs(t, err, stream.ErrSuperseded)
	case <-time.After(3 * time.Second):
		t.Fatal("reader did not observe the interruption")
	}
	assert.NotEqual(t, cid, h.reg.ConversationID(stream.DefaultUsername))

	h.d.Close()
	msgs, err := h.store.List(context.Background(), content.ListQuery{})
	require.NoError(t, err)
	require.Len(t, msgs, 1, "interrupted reply must not be stored")
	assert.Equal(t, content.TypeMember, msgs[0].Type)
	assert.Equal(t, WaySpeak, msgs[0].Way)
	assert.Equal(t, int64(1), h.metrics.GetSnapshot().Interruptions)
}

func TestNewInteractionSupersedesOld(t *testing.T) {
	llm := &fakeLLM{reply: "second answer", block: make(chan struct{}), started: make(chan struct{}, 4)}
	h := newHarness(t, llm, nil)
	ctx := context.Background()

	first, err := h.d.OnInteract(ctx, Interact{Kind: KindText, Username: "bob", Message: "one"})
	require.NoError(t, err)
	<-llm.started
	oldReader, _ := h.reg.Subscribe("bob")

	second, err := h.d.OnInteract(ctx, Interact{Kind: KindText, Username: "bob", Message: "two"})
	require.NoError(t, err)
	require.NotEqual(t, first, second)
	<-llm.started
	close(llm.block)

	fctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	_, err = stream.Collect(fctx, oldReader, stream.Filter{
		ConversationID: first,
		Current:        func() string { return h.reg.ConversationID("bob") },
	})
	assert.ErrorIs(t, err, stream.ErrSuperseded)

	res, err := h.collect(t, "bob", second)
	require.NoError(t, err)
	assert.Equal(t, "second answer", res.Text)
}

func TestGenerationFailureCarriesError(t *testing.T) {
	h := newHarness(t, &fakeLLM{err: errors.New("upstream 500")}, nil)
	cid, err := h.d.OnInteract(context.Background(), Interact{Kind: KindText, Message: "hi"})
	require.NoError(t, err)

	res, err := h.collect(t, stream.DefaultUsername, cid)
	require.NoError(t, err)
	assert.Contains(t, res.Err, "upstream 500")
	assert.Empty(t, res.Text)
	assert.Equal(t, int64(1), h.metrics.GetSnapshot().GenerationErrors)
}

func TestQAShortcutSkipsLLM(t *testing.T) {
	llm := &fakeLLM{reply: "from llm"}
	h := newHarness(t, llm, func(c *Config) { c.QA = fixedQA{"营业时间": "每天九点。"} })

	cid, err := h.d.OnInteract(context.Background(), Interact{Kind: KindText, Message: "营业时间"})
	require.NoError(t, err)
	res, err := h.collect(t, stream.DefaultUsername, cid)
	require.NoError(t, err)
	assert.Equal(t, "每天九点。", res.Text)
	assert.True(t, res.IsQA)
	h.d.Close()
	assert.Equal(t, 0, llm.callCount())
	assert.Equal(t, int64(1), h.metrics.GetSnapshot().QAHits)
}

func TestPromptUsesPersonaHistoryAndObservation(t *testing.T) {
	llm := &fakeLLM{reply: "ok"}
	h := newHarness(t, llm, func(c *Config) { c.HistoryLimit = 2 })
	ctx := context.Background()

	p, err := h.models.Create(ctx, modelstore.Profile{Name: "Ava", Attributes: map[string]string{"job": "guide"}})
	require.NoError(t, err)
	require.NoError(t, h.models.SelectModel(ctx, "carol", p.ModelID))
	for _, m := range []content.Message{
		{Type: content.TypeMember, Way: WayText, Content: "old question", Username: "carol", ModelID: p.ModelID},
		{Type: content.TypeMember, Way: WayText, Content: "earlier", Username: "carol", ModelID: p.ModelID},
		{Type: content.TypeFay, Way: WayText, Content: "earlier answer", Username: "carol", ModelID: p.ModelID},
	} {
		_, err := h.store.AddMessage(ctx, m)
		require.NoError(t, err)
	}

	cid, err := h.d.OnInteract(ctx, Interact{Kind: KindText, Username: "carol", Message: "now", Observation: "user waves"})
	require.NoError(t, err)
	_, err = h.collect(t, "carol", cid)
	require.NoError(t, err)

	msgs := llm.lastCall()
	require.NotEmpty(t, msgs)
	assert.Equal(t, "system", msgs[0].Role)
	assert.True(t, strings.HasPrefix(msgs[0].Content, "You are Ava"), msgs[0].Content)
	assert.Contains(t, msgs[0].Content, "guide")

	// The history window includes the new user message, which is sent last
	// instead of from history.
	var roles []string
	for _, m := range msgs[1:] {
		roles = append(roles, m.Role+":"+m.Content)
	}
	assert.Equal(t, []string{"assistant:earlier answer", "system:Observation: user waves", "user:now"}, roles)
}

func TestPureModeSkipsPersona(t *testing.T) {
	llm := &fakeLLM{reply: "ok"}
	h := newHarness(t, llm, nil)
	cid, err := h.d.OnInteract(context.Background(), Interact{Kind: KindText, Message: "2+2?", PureMode: true})
	require.NoError(t, err)
	_, err = h.collect(t, stream.DefaultUsername, cid)
	require.NoError(t, err)

	msgs := llm.lastCall()
	require.Len(t, msgs, 2)
	assert.Equal(t, "You are a helpful AI assistant.", msgs[0].Content)
	assert.Equal(t, "2+2?", msgs[1].Content)
}

func TestHelloUsesGreeting(t *testing.T) {
	llm := &fakeLLM{reply: "Hi there!"}
	h := newHarness(t, llm, nil)
	cid, err := h.d.OnInteract(context.Background(), Interact{Kind: KindHello, Observation: "a child"})
	require.NoError(t, err)
	res, err := h.collect(t, stream.DefaultUsername, cid)
	require.NoError(t, err)
	assert.Equal(t, "Hi there!", res.Text)

	msgs := llm.lastCall()
	assert.Equal(t, GreetMessage, msgs[len(msgs)-1].Content)
	h.d.Close()
	stored, _ := h.store.List(context.Background(), content.ListQuery{})
	require.Len(t, stored, 1)
	assert.Equal(t, content.TypeFay, stored[0].Type)
}

func TestGeneratingKindsWakeUser(t *testing.T) {
	h := newHarness(t, &fakeLLM{reply: "ok"}, nil)
	ctx := context.Background()
	for _, in := range []Interact{
		{Kind: KindHello, Username: "zed"},
		{Kind: KindText, Username: "yan", Message: "hi"},
		{Kind: KindAudio, Username: "xia", Message: "hi"},
	} {
		cid, err := h.d.OnInteract(ctx, in)
		require.NoError(t, err)
		_, err = h.collect(t, in.Username, cid)
		require.NoError(t, err)
		assert.True(t, h.d.Awake(in.Username), "%s wakes %s", in.Kind, in.Username)
	}

	cid, err := h.d.OnInteract(ctx, Interact{Kind: KindTransparentPass, Username: "wu", Text: "relay"})
	require.NoError(t, err)
	_, err = h.collect(t, "wu", cid)
	require.NoError(t, err)
	assert.False(t, h.d.Awake("wu"))
}

func TestTransparentPass(t *testing.T) {
	h := newHarness(t, &fakeLLM{}, nil)
	ctx := context.Background()

	cid, err := h.d.OnInteract(ctx, Interact{Kind: KindTransparentPass, Username: "dave", Text: "hello from outside", Audio: "http://x/a.wav"})
	require.NoError(t, err)
	res, err := h.collect(t, "dave", cid)
	require.NoError(t, err)
	assert.Equal(t, "hello from outside", res.Text)
	assert.Equal(t, "http://x/a.wav", res.Audio)

	cid, err = h.d.OnInteract(ctx, Interact{Kind: KindTransparentPass, Username: "dave", Audio: "http://x/b.wav"})
	require.NoError(t, err)
	res, err = h.collect(t, "dave", cid)
	require.NoError(t, err)
	assert.Empty(t, res.Text)
	assert.Equal(t, "http://x/b.wav", res.Audio)

	stored, _ := h.store.List(ctx, content.ListQuery{Username: "dave"})
	require.Len(t, stored, 1)
	assert.Equal(t, WayTransparentPass, stored[0].Way)
}

func TestWake(t *testing.T) {
	h := newHarness(t, &fakeLLM{}, nil)
	now := time.Unix(1700000000, 0)
	h.d.now = func() time.Time { return now }

	assert.False(t, h.d.Awake("erin"))
	cid, err := h.d.OnInteract(context.Background(), Interact{Kind: KindWake, Username: "erin"})
	require.NoError(t, err)
	assert.Equal(t, h.reg.ConversationID("erin"), cid)
	assert.True(t, h.d.Awake("erin"))

	now = now.Add(WakeTTL + time.Second)
	assert.False(t, h.d.Awake("erin"))
}

func TestGeneratorBoundReleasesOnInterrupt(t *testing.T) {
	llm := &fakeLLM{reply: "done", block: make(chan struct{}), started: make(chan struct{}, 4)}
	h := newHarness(t, llm, func(c *Config) { c.MaxGenerators = 1 })
	ctx := context.Background()

	_, err := h.d.OnInteract(ctx, Interact{Kind: KindText, Username: "u1", Message: "a"})
	require.NoError(t, err)
	<-llm.started

	// u2 waits for the only slot; interrupting it must still end its turn.
	cid2, err := h.d.OnInteract(ctx, Interact{Kind: KindText, Username: "u2", Message: "b"})
	require.NoError(t, err)
	r2, _ := h.reg.Subscribe("u2")
	h.d.Interrupt("u2")

	fctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	_, err = stream.Collect(fctx, r2, stream.Filter{ConversationID: cid2, Current: func() string { return h.reg.ConversationID("u2") }})
	assert.ErrorIs(t, err, stream.ErrSuperseded)
	assert.Equal(t, 1, llm.callCount())

	close(llm.block)
}
