// Package stream carries generated reply fragments from a per-user producer
// to the HTTP handlers that relay them, and tracks which conversation is
// current for every user.
package stream

import (
	"errors"
	"regexp"
	"strings"
)

// ErrMalformedFragment marks a fragment that cannot be attributed to any conversation.
var ErrMalformedFragment = errors.New("stream: fragment has no conversation tag")

// Fragment is one piece of a reply plus its control flags.
type Fragment struct {
	ConversationID string
	Text           string
	IsFirst        bool
	IsEnd          bool
	IsQA           bool
	// Audio is an optional audio URL attached by transparent pass turns.
	Audio string
	// Err is set on the terminal fragment when generation failed upstream.
	Err string
}

const (
	markFirst = "_<isfirst>"
	markEnd   = "_<isend>"
	markQA    = "_<isqa>"
)

var (
	cidPattern     = regexp.MustCompile(`__<cid=([^>]+)>__`)
	markerReplacer = strings.NewReplacer(markFirst, "", markEnd, "", markQA, "")
)

// ParseMarkup decodes an inline tagged line. Lines without a non-empty cid tag
// return ErrMalformedFragment.
func ParseMarkup(line string) (Fragment, error) {
	m := cidPattern.FindStringSubmatch(line)
	if m == nil || strings.TrimSpace(m[1]) == "" {
		return Fragment{}, ErrMalformedFragment
	}
	return Fragment{
		ConversationID: m[1],
		Text:           StripMarkup(line),
		IsFirst:        strings.Contains(line, markFirst),
		IsEnd:          strings.Contains(line, markEnd),
		IsQA:           strings.Contains(line, markQA),
	}, nil
}

// StripMarkup removes every inline control marker from s.
func StripMarkup(s string) string {
	if !strings.Contains(s, "_<") && !strings.Contains(s, "__<cid=") {
		return s
	}
	return markerReplacer.Replace(cidPattern.ReplaceAllString(s, ""))
}

// Normalize returns f with a structured conversation id and marker-free text.
// Fragments that only carry their id as inline markup are decoded; flags set
// either way are kept.
func Normalize(f Fragment) (Fragment, error) {
	if f.ConversationID != "" {
		f.Text = StripMarkup(f.Text)
		return f, nil
	}
	parsed, err := ParseMarkup(f.Text)
	if err != nil {
		return Fragment{}, err
	}
	parsed.IsFirst = parsed.IsFirst || f.IsFirst
	parsed.IsEnd = parsed.IsEnd || f.IsEnd
	parsed.IsQA = parsed.IsQA || f.IsQA
	parsed.Audio = f.Audio
	parsed.Err = f.Err
	return parsed, nil
}
