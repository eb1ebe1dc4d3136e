package stream

import (
	"errors"
	"testing"
)

func TestParseMarkup(t *testing.T) {
	out, err := ParseMarkup("__<cid=c-1>__你好。_<isfirst>_<isqa>")
	if err != nil {
		t.Fatalf("ParseMarkup: %v", err)
	}
	want := Fragment{ConversationID: "c-1", Text: "你好。", IsFirst: true, IsQA: true}
	if out != want {
		t.Fatalf("unexpected fragment: %#v", out)
	}
}

func TestParseMarkupRejectsMissingTag(t *testing.T) {
	for _, line := range []string{"plain text", "__<cid=>__text", "_<isend>"} {
		if _, err := ParseMarkup(line); !errors.Is(err, ErrMalformedFragment) {
			t.Fatalf("%q: expected ErrMalformedFragment, got %v", line, err)
		}
	}
}

func TestStripMarkup(t *testing.T) {
	cases := map[string]string{
		"hello":                          "hello",
		"__<cid=abc>__hello_<isend>":     "hello",
		"_<isfirst>a__<cid=x>__b_<isqa>": "ab",
		"keep _<other> text":             "keep _<other> text",
	}
	for in, want := range cases {
		if got := StripMarkup(in); got != want {
			t.Fatalf("StripMarkup(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestNormalizePrefersStructuredID(t *testing.T) {
	f, err := Normalize(Fragment{ConversationID: "real", Text: "__<cid=fake>__hi"})
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if f.ConversationID != "real" || f.Text != "hi" {
		t.Fatalf("unexpected fragment %#v", f)
	}

	f, err = Normalize(Fragment{Text: "__<cid=legacy>__bye_<isend>", Err: "boom"})
	if err != nil {
		t.Fatalf("Normalize legacy: %v", err)
	}
	if f.ConversationID != "legacy" || !f.IsEnd || f.Text != "bye" || f.Err != "boom" {
		t.Fatalf("unexpected legacy fragment %#v", f)
	}
}
