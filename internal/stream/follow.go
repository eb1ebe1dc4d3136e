package stream

import (
	"context"
	"errors"
	"strings"
)

var (
	// ErrSuperseded ends a follow whose conversation was replaced while the
	// reader waited. Callers treat it as a normal end of stream.
	ErrSuperseded = errors.New("stream: conversation superseded")
	// ErrStale is reported to Filter.OnDiscard for fragments of another conversation.
	ErrStale = errors.New("stream: fragment belongs to another conversation")
)

// Filter selects the fragments of one conversation.
type Filter struct {
	// ConversationID is captured once when the consumer starts.
	ConversationID string
	// Current reports the user's current id. It is consulted after a reset to
	// tell an abandoned conversation from a live one. Nil never supersedes.
	Current func() string
	// OnDiscard, if set, observes every dropped fragment together with
	// ErrStale or ErrMalformedFragment.
	OnDiscard func(Fragment, error)
}

// Follow hands each visible fragment of the filtered conversation to fn in
// push order and returns nil after the end-of-turn fragment. Empty fragments
// that are neither first nor last are skipped.
func Follow(ctx context.Context, r *Reader, filter Filter, fn func(Fragment) error) error {
	for {
		f, err := r.Next(ctx)
		if errors.Is(err, ErrCleared) {
			if filter.Current != nil && filter.Current() != filter.ConversationID {
				return ErrSuperseded
			}
			continue
		}
		if err != nil {
			return err
		}

		f, err = Normalize(f)
		if err != nil {
			filter.discard(f, err)
			continue
		}
		if f.ConversationID != filter.ConversationID {
			filter.discard(f, ErrStale)
			continue
		}
		if f.Text == "" && !f.IsFirst && !f.IsEnd {
			continue
		}
		if err := fn(f); err != nil {
			return err
		}
		if f.IsEnd {
			return nil
		}
	}
}

func (f Filter) discard(frag Fragment, reason error) {
	if f.OnDiscard != nil {
		f.OnDiscard(frag, reason)
	}
}

// Result is a reply assembled by Collect.
type Result struct {
	Text  string
	Audio string
	IsQA  bool
	// Err carries the upstream failure reported on the end fragment.
	Err string
}

// Collect concatenates the filtered conversation until its end fragment. With
// no end fragment it waits until ctx is done. A superseded conversation returns
// the text gathered so far together with ErrSuperseded.
func Collect(ctx context.Context, r *Reader, filter Filter) (Result, error) {
	var (
		res Result
		b   strings.Builder
	)
	err := Follow(ctx, r, filter, func(f Fragment) error {
		b.WriteString(f.Text)
		res.IsQA = res.IsQA || f.IsQA
		if f.Audio != "" {
			res.Audio = f.Audio
		}
		if f.Err != "" {
			res.Err = f.Err
		}
		return nil
	})
	res.Text = b.String()
	return res, err
}
