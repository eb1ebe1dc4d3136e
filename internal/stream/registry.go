package stream

import (
	"context"
	"hash/fnv"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// DefaultUsername is used when a request names no user.
const DefaultUsername = "User"

const defaultShards = 32

// Registry maps each user to the current conversation id and output channel.
// Entries are created on first use and live for the rest of the process.
type Registry interface {
	// GetOrCreate returns the user's channel and current conversation id.
	GetOrCreate(username string) (*Channel, string)
	// ConversationID returns the id consumers should filter on.
	ConversationID(username string) string
	// StartNewConversation installs and returns a fresh id, resets the channel
	// and cancels the producer bound to the previous id.
	StartNewConversation(username string) string
	// ClearChannel purges buffered fragments, rotates the id, cancels the bound
	// producer and wakes blocked readers.
	ClearChannel(username string)
	// Subscribe opens a reader and captures the current id in one step.
	Subscribe(username string) (*Reader, string)
	// Bind attaches a producer cancel func to conversationID. If the id is no
	// longer current, cancel is called immediately.
	Bind(username, conversationID string, cancel context.CancelFunc)
}

// NormalizeUsername trims name and falls back to DefaultUsername.
func NormalizeUsername(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return DefaultUsername
	}
	return name
}

type entry struct {
	mu     sync.Mutex
	convID string
	ch     *Channel
	cancel context.CancelFunc
}

type shard struct {
	mu      sync.Mutex
	entries map[string]*entry
}

// ShardedRegistry spreads users over independently locked shards. Per-user
// operations only take that user's entry lock.
type ShardedRegistry struct {
	shards []shard
	newID  func() string
}

// Option configures a ShardedRegistry.
type Option func(*ShardedRegistry)

// WithIDFunc overrides conversation id generation.
func WithIDFunc(fn func() string) Option {
	return func(r *ShardedRegistry) {
		if fn != nil {
			r.newID = fn
		}
	}
}

// WithShards sets the shard count.
func WithShards(n int) Option {
	return func(r *ShardedRegistry) {
		if n > 0 {
			r.shards = make([]shard, n)
		}
	}
}

// NewRegistry returns an empty registry.
func NewRegistry(opts ...Option) *ShardedRegistry {
	r := &ShardedRegistry{
		shards: make([]shard, defaultShards),
		newID:  uuid.NewString,
	}
	for _, opt := range opts {
		opt(r)
	}
	for i := range r.shards {
		r.shards[i].entries = make(map[string]*entry)
	}
	return r
}

var _ Registry = (*ShardedRegistry)(nil)

func (r *ShardedRegistry) entry(username string) *entry {
	username = NormalizeUsername(username)
	h := fnv.New32a()
	_, _ = h.Write([]byte(username))
	s := &r.shards[h.Sum32()%uint32(len(r.shards))]

	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[username]
	if !ok {
		e = &entry{convID: r.newID(), ch: NewChannel()}
		s.entries[username] = e
	}
	return e
}

func (r *ShardedRegistry) GetOrCreate(username string) (*Channel, string) {
	e := r.entry(username)
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ch, e.convID
}

func (r *ShardedRegistry) ConversationID(username string) string {
	e := r.entry(username)
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.convID
}

func (r *ShardedRegistry) StartNewConversation(username string) string {
	e := r.entry(username)
	e.mu.Lock()
	defer e.mu.Unlock()
	return r.rotateLocked(e)
}

func (r *ShardedRegistry) ClearChannel(username string) {
	e := r.entry(username)
	e.mu.Lock()
	defer e.mu.Unlock()
	r.rotateLocked(e)
}

func (r *ShardedRegistry) Subscribe(username string) (*Reader, string) {
	e := r.entry(username)
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ch.NewReader(), e.convID
}

func (r *ShardedRegistry) Bind(username, conversationID string, cancel context.CancelFunc) {
	if cancel == nil {
		return
	}
	e := r.entry(username)
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.convID != conversationID {
		cancel()
		return
	}
	if e.cancel != nil {
		e.cancel()
	}
	e.cancel = cancel
}

func (r *ShardedRegistry) rotateLocked(e *entry) string {
	if e.cancel != nil {
		e.cancel()
		e.cancel = nil
	}
	e.convID = r.newID()
	e.ch.Reset()
	return e.convID
}
