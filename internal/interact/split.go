package interact

import (
	"strings"
	"unicode"
)

func terminal(r rune) bool {
	switch r {
	case '。', '！', '？', '；', '!', '?', ';', '\n':
		return true
	}
	return false
}

// SplitSentences cuts reply after Chinese and Latin terminal punctuation and
// newlines. A '.' ends a sentence only when followed by whitespace or the end
// of the text. Concatenating the result yields reply unchanged.
func SplitSentences(reply string) []string {
	runes := []rune(reply)
	var (
		out   []string
		start int
	)
	for i, r := range runes {
		cut := terminal(r)
		if r == '.' && (i == len(runes)-1 || unicode.IsSpace(runes[i+1])) {
			cut = true
		}
		if !cut {
			continue
		}
		out = appendPiece(out, string(runes[start:i+1]))
		start = i + 1
	}
	if start < len(runes) {
		out = appendPiece(out, string(runes[start:]))
	}
	return out
}

// appendPiece folds pieces without any letter or digit, such as a run of
// trailing punctuation, into the previous sentence.
func appendPiece(out []string, piece string) []string {
	if strings.IndexFunc(piece, func(r rune) bool { return unicode.IsLetter(r) || unicode.IsDigit(r) }) < 0 {
		if len(out) > 0 {
			out[len(out)-1] += piece
		} else if piece != "" {
			out = append(out, piece)
		}
		return out
	}
	return append(out, piece)
}
