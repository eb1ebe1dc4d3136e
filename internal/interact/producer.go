package interact

import (
	"context"
	"time"

	"github.com/soullink/fay-gateway/internal/content"
	"github.com/soullink/fay-gateway/internal/openai"
	"github.com/soullink/fay-gateway/internal/persona"
	"github.com/soullink/fay-gateway/internal/stream"
)

type turn struct {
	Interact
	conversationID string
	messageID      int64
}

// produce generates the reply for t. Every exit path pushes an end fragment
// tagged with t's conversation id.
func (d *Dispatcher) produce(ctx context.Context, cancel context.CancelFunc, t turn) {
	defer d.wg.Done()
	defer cancel()

	ch, _ := d.registry.GetOrCreate(t.Username)
	push := func(f stream.Fragment) {
		f.ConversationID = t.conversationID
		ch.Push(f)
	}
	log := d.logger.With().Str("user", t.Username).Str("conversation_id", t.conversationID).Logger()

	if err := d.sem.Acquire(ctx, 1); err != nil {
		push(stream.Fragment{IsEnd: true})
		log.Debug().Msg("cancelled before generation slot")
		return
	}
	defer d.sem.Release(1)

	if t.Kind != KindHello && d.qa != nil {
		if answer, ok := d.qa.Match(t.Message); ok {
			if d.metrics != nil {
				d.metrics.RecordQAHit()
			}
			d.emit(ctx, push, answer, true)
			d.persistReply(ctx, t, answer)
			log.Info().Msg("answered from qa book")
			return
		}
	}

	msgs := d.prompt(ctx, t)
	start := time.Now()
	reply, err := d.llm.Chat(ctx, msgs)
	if d.metrics != nil {
		d.metrics.RecordGeneration(time.Since(start), err)
	}
	if ctx.Err() != nil {
		push(stream.Fragment{IsEnd: true})
		log.Debug().Msg("generation interrupted")
		return
	}
	if err != nil {
		push(stream.Fragment{IsEnd: true, Err: err.Error()})
		log.Error().Err(err).Int64("llm_ms", time.Since(start).Milliseconds()).Msg("generation failed")
		return
	}
	if d.emit(ctx, push, reply, false) {
		d.persistReply(ctx, t, reply)
	}
	log.Debug().Int64("llm_ms", time.Since(start).Milliseconds()).Int("chars", len([]rune(reply))).Msg("reply produced")
}

// emit pushes reply sentence by sentence followed by the end fragment. It
// reports false when ctx was cancelled part way.
func (d *Dispatcher) emit(ctx context.Context, push func(stream.Fragment), reply string, isQA bool) bool {
	sentences := SplitSentences(reply)
	if len(sentences) == 0 {
		push(stream.Fragment{IsFirst: true, IsEnd: true, IsQA: isQA})
		return true
	}
	for i, s := range sentences {
		if ctx.Err() != nil {
			push(stream.Fragment{IsEnd: true})
			return false
		}
		push(stream.Fragment{Text: s, IsFirst: i == 0, IsQA: isQA})
	}
	push(stream.Fragment{IsEnd: true, IsQA: isQA})
	return true
}

func (d *Dispatcher) persistReply(ctx context.Context, t turn, reply string) {
	if reply == "" {
		return
	}
	// The reply was delivered; store it even if the turn is being torn down.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if _, err := d.content.AddMessage(ctx, content.Message{
		Type:     content.TypeFay,
		Way:      wayFor(t.Kind),
		Content:  reply,
		Username: t.Username,
		ModelID:  t.ModelID,
	}); err != nil {
		d.logger.Error().Err(err).Str("user", t.Username).Msg("persist reply")
	}
}

// prompt assembles the chat messages for t.
func (d *Dispatcher) prompt(ctx context.Context, t turn) []openai.ChatMessage {
	if t.PureMode {
		return []openai.ChatMessage{
			{Role: "system", Content: persona.SystemPrompt(nil)},
			{Role: "user", Content: t.Message},
		}
	}

	attrs := &persona.Attributes{}
	if t.ModelID != "" && d.models != nil {
		if p, err := d.models.Get(ctx, t.ModelID); err == nil {
			a := persona.FromMap(p.Attributes)
			if a.Name == "" {
				a.Name = p.Name
			}
			attrs = &a
		} else {
			d.logger.Warn().Err(err).Str("model_id", t.ModelID).Msg("persona lookup failed, using default")
		}
	}
	msgs := []openai.ChatMessage{{Role: "system", Content: persona.SystemPrompt(attrs)}}

	history, err := d.content.RecentByUser(ctx, t.Username, d.historyLimit, t.ModelID)
	if err != nil {
		d.logger.Warn().Err(err).Str("user", t.Username).Msg("history lookup failed")
	}
	for _, m := range history {
		if m.ID == t.messageID {
			continue
		}
		role := "user"
		if m.Type == content.TypeFay {
			role = "assistant"
		}
		msgs = append(msgs, openai.ChatMessage{Role: role, Content: m.Content})
	}
	if obs := t.Observation; obs != "" {
		msgs = append(msgs, openai.ChatMessage{Role: "system", Content: "Observation: " + obs})
	}
	return append(msgs, openai.ChatMessage{Role: "user", Content: t.Message})
}
