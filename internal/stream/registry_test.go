package stream

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetOrCreateConcurrentSameUser(t *testing.T) {
	reg := NewRegistry()
	const workers = 64

	type seen struct {
		ch *Channel
		id string
	}
	results := make([]seen, workers)
	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func(i int) {
			defer wg.Done()
			ch, id := reg.GetOrCreate("alice")
			results[i] = seen{ch: ch, id: id}
		}(i)
	}
	wg.Wait()

	for i := 1; i < workers; i++ {
		require.Same(t, results[0].ch, results[i].ch)
		require.Equal(t, results[0].id, results[i].id)
	}
}

func TestRegistryUsersAreIndependent(t *testing.T) {
	reg := NewRegistry(WithIDFunc(sequentialIDs("id")), WithShards(4))
	ach, aid := reg.GetOrCreate("alice")
	bch, bid := reg.GetOrCreate("bob")
	assert.NotSame(t, ach, bch)
	assert.NotEqual(t, aid, bid)

	reg.StartNewConversation("alice")
	assert.Equal(t, bid, reg.ConversationID("bob"))
}

func TestRegistryDefaultsEmptyUsername(t *testing.T) {
	reg := NewRegistry()
	_, id := reg.GetOrCreate("  ")
	assert.Equal(t, id, reg.ConversationID(DefaultUsername))
}

func TestStartNewConversationRotatesAndResets(t *testing.T) {
	reg := NewRegistry(WithIDFunc(sequentialIDs("c")))
	ch, first := reg.GetOrCreate("alice")
	ch.Push(Fragment{ConversationID: first, Text: "old"})

	next := reg.StartNewConversation("alice")
	assert.NotEqual(t, first, next)
	assert.Equal(t, next, reg.ConversationID("alice"))
	assert.Zero(t, ch.Len())

	same, _ := reg.GetOrCreate("alice")
	assert.Same(t, ch, same, "channel is reused across conversations")
}

func TestClearChannelIsIdempotent(t *testing.T) {
	reg := NewRegistry(WithIDFunc(sequentialIDs("c")))
	ch, original := reg.GetOrCreate("alice")
	r := ch.NewReader()
	ch.Push(Fragment{ConversationID: original, Text: "pending"})

	reg.ClearChannel("alice")
	once := reg.ConversationID("alice")
	reg.ClearChannel("alice")
	twice := reg.ConversationID("alice")

	assert.Zero(t, ch.Len())
	assert.NotEqual(t, original, once)
	assert.NotEqual(t, original, twice)

	_, err := r.TryRead()
	require.ErrorIs(t, err, ErrCleared)
	_, err = r.TryRead()
	require.True(t, errors.Is(err, ErrEmpty))
}

func TestSubscribeCapturesCurrentID(t *testing.T) {
	reg := NewRegistry(WithIDFunc(sequentialIDs("c")))
	id := reg.StartNewConversation("alice")
	r, captured := reg.Subscribe("alice")
	require.NotNil(t, r)
	assert.Equal(t, id, captured)
}

func TestBindCancelsOnRotation(t *testing.T) {
	reg := NewRegistry(WithIDFunc(sequentialIDs("c")))
	id := reg.StartNewConversation("alice")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	reg.Bind("alice", id, cancel)
	require.NoError(t, ctx.Err())

	reg.ClearChannel("alice")
	assert.ErrorIs(t, ctx.Err(), context.Canceled)
}

func TestBindStaleIDCancelsImmediately(t *testing.T) {
	reg := NewRegistry(WithIDFunc(sequentialIDs("c")))
	old := reg.StartNewConversation("alice")
	reg.StartNewConversation("alice")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	reg.Bind("alice", old, cancel)
	assert.ErrorIs(t, ctx.Err(), context.Canceled)
}
