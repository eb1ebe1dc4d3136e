// Package interact turns user input into conversations: it rotates the
// user's conversation id, persists the turn and runs the producer that
// pushes reply fragments into the user's output channel.
package interact

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"

	"github.com/soullink/fay-gateway/internal/content"
	"github.com/soullink/fay-gateway/internal/llm"
	"github.com/soullink/fay-gateway/internal/metrics"
	"github.com/soullink/fay-gateway/internal/modelstore"
	"github.com/soullink/fay-gateway/internal/qa"
	"github.com/soullink/fay-gateway/internal/stream"
)

// Kind selects how an interaction is handled.
type Kind string

const (
	KindText            Kind = "text"
	KindAudio           Kind = "audio"
	KindTransparentPass Kind = "transparent_pass"
	KindHello           Kind = "hello"
	KindWake            Kind = "wake"
)

// Ways under which turns are stored.
const (
	WayText            = "text"
	WaySpeak           = content.WaySpeak
	WayTransparentPass = "transparent_pass"
)

// GreetMessage is sent to the LLM for a hello interaction without a message.
const GreetMessage = "Greet the user according to the observation."

// WakeTTL is how long a Wake keeps a user awake.
const WakeTTL = 2 * time.Minute

var (
	ErrEmptyMessage = errors.New("interact: message required")
	ErrUnknownKind  = errors.New("interact: unknown interaction kind")
	ErrClosed       = errors.New("interact: dispatcher closed")
)

// Interact is one unit of user input.
type Interact struct {
	Kind        Kind
	Username    string
	Message     string
	Observation string
	// PureMode answers with the plain assistant prompt, skipping persona and
	// history.
	PureMode bool
	// ModelID overrides the user's selected persona.
	ModelID string
	// Text and Audio carry an externally produced reply for transparent pass.
	Text  string
	Audio string
}

// Config wires a Dispatcher.
type Config struct {
	Registry stream.Registry
	Content  content.Store
	LLM      llm.Completer
	// Models, QA and Metrics are optional.
	Models  modelstore.Store
	QA      qa.Matcher
	Metrics *metrics.Collector
	Logger  zerolog.Logger

	HistoryLimit  int
	MaxGenerators int
}

// Dispatcher routes interactions and owns the producer goroutines.
type Dispatcher struct {
	registry     stream.Registry
	content      content.Store
	models       modelstore.Store
	llm          llm.Completer
	qa           qa.Matcher
	metrics      *metrics.Collector
	logger       zerolog.Logger
	historyLimit int
	sem          *semaphore.Weighted

	base   context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	awakeMu sync.Mutex
	awake   map[string]time.Time
	now     func() time.Time
}

// New validates cfg and returns a running dispatcher.
func New(cfg Config) (*Dispatcher, error) {
	if cfg.Registry == nil || cfg.Content == nil || cfg.LLM == nil {
		return nil, errors.New("interact: registry, content store and llm are required")
	}
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = content.DefaultRecentLimit
	}
	if cfg.MaxGenerators <= 0 {
		cfg.MaxGenerators = 64
	}
	base, cancel := context.WithCancel(context.Background())
	return &Dispatcher{
		registry:     cfg.Registry,
		content:      cfg.Content,
		models:       cfg.Models,
		llm:          cfg.LLM,
		qa:           cfg.QA,
		metrics:      cfg.Metrics,
		logger:       cfg.Logger.With().Str("component", "interact").Logger(),
		historyLimit: cfg.HistoryLimit,
		sem:          semaphore.NewWeighted(int64(cfg.MaxGenerators)),
		base:         base,
		cancel:       cancel,
		awake:        make(map[string]time.Time),
		now:          time.Now,
	}, nil
}

// Registry exposes the registry the dispatcher writes to.
func (d *Dispatcher) Registry() stream.Registry { return d.registry }

// Close cancels every producer and waits for them to push their end fragment.
func (d *Dispatcher) Close() {
	d.cancel()
	d.wg.Wait()
}

// OnInteract dispatches in and returns the conversation id the reply will
// carry.
func (d *Dispatcher) OnInteract(ctx context.Context, in Interact) (string, error) {
	if d.base.Err() != nil {
		return "", ErrClosed
	}
	username := stream.NormalizeUsername(in.Username)
	in.Username = username
	if d.metrics != nil {
		d.metrics.RecordInteraction(string(in.Kind))
	}

	switch in.Kind {
	case KindText, KindAudio, KindHello:
		return d.startTurn(ctx, in)
	case KindTransparentPass:
		return d.transparentPass(ctx, in)
	case KindWake:
		d.Wake(username)
		return d.registry.ConversationID(username), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownKind, in.Kind)
	}
}

// Interrupt abandons the user's current reply.
func (d *Dispatcher) Interrupt(username string) {
	username = stream.NormalizeUsername(username)
	d.registry.ClearChannel(username)
	if d.metrics != nil {
		d.metrics.RecordInterrupt()
	}
	d.logger.Info().Str("user", username).Msg("interrupted")
}

// Wake marks username awake for WakeTTL.
func (d *Dispatcher) Wake(username string) {
	d.awakeMu.Lock()
	defer d.awakeMu.Unlock()
	d.awake[stream.NormalizeUsername(username)] = d.now()
}

// Awake reports whether username was woken within WakeTTL.
func (d *Dispatcher) Awake(username string) bool {
	d.awakeMu.Lock()
	defer d.awakeMu.Unlock()
	at, ok := d.awake[stream.NormalizeUsername(username)]
	return ok && d.now().Sub(at) < WakeTTL
}

func wayFor(k Kind) string {
	if k == KindText {
		return WayText
	}
	return WaySpeak
}

func (d *Dispatcher) startTurn(ctx context.Context, in Interact) (string, error) {
	in.Message = strings.TrimSpace(in.Message)
	if in.Message == "" {
		if in.Kind != KindHello {
			return "", ErrEmptyMessage
		}
		in.Message = GreetMessage
	}
	if in.ModelID == "" && d.models != nil {
		id, err := d.models.SelectedModel(ctx, in.Username)
		if err != nil {
			d.logger.Warn().Err(err).Str("user", in.Username).Msg("selected model lookup failed")
		}
		in.ModelID = id
	}

	cid := d.registry.StartNewConversation(in.Username)
	d.Wake(in.Username)

	t := turn{Interact: in, conversationID: cid}
	if in.Kind != KindHello {
		id, err := d.content.AddMessage(ctx, content.Message{
			Type:     content.TypeMember,
			Way:      wayFor(in.Kind),
			Content:  in.Message,
			Username: in.Username,
			ModelID:  in.ModelID,
		})
		if err != nil {
			d.logger.Error().Err(err).Str("user", in.Username).Msg("persist user message")
		}
		t.messageID = id
	}

	pctx, cancel := context.WithCancel(d.base)
	d.registry.Bind(in.Username, cid, cancel)
	d.wg.Add(1)
	go d.produce(pctx, cancel, t)
	return cid, nil
}

func (d *Dispatcher) transparentPass(ctx context.Context, in Interact) (string, error) {
	text := in.Text
	if strings.TrimSpace(text) == "" && strings.TrimSpace(in.Audio) == "" {
		return "", ErrEmptyMessage
	}
	cid := d.registry.StartNewConversation(in.Username)
	ch, _ := d.registry.GetOrCreate(in.Username)
	if text != "" {
		ch.Push(stream.Fragment{ConversationID: cid, Text: text, Audio: in.Audio, IsFirst: true, IsEnd: true})
	} else {
		ch.Push(stream.Fragment{ConversationID: cid, Audio: in.Audio, IsFirst: true})
		ch.Push(stream.Fragment{ConversationID: cid, IsEnd: true})
	}
	if text != "" {
		if _, err := d.content.AddMessage(ctx, content.Message{
			Type:     content.TypeFay,
			Way:      WayTransparentPass,
			Content:  text,
			Username: in.Username,
			ModelID:  in.ModelID,
		}); err != nil {
			d.logger.Error().Err(err).Str("user", in.Username).Msg("persist transparent pass")
		}
	}
	return cid, nil
}
