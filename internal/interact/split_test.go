package interact

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSplitSentences(t *testing.T) {
	tests := []struct {
		name  string
		reply string
		want  []string
	}{
		{"chinese", "你好。我是Fay！有什么可以帮你？", []string{"你好。", "我是Fay！", "有什么可以帮你？"}},
		{"latin", "Hello world. How are you?", []string{"Hello world.", " How are you?"}},
		{"decimal kept", "Pi is 3.14 today.", []string{"Pi is 3.14 today."}},
		{"newline", "line one\nline two", []string{"line one\n", "line two"}},
		{"punctuation run", "Wow!! Great", []string{"Wow!!", " Great"}},
		{"no terminator", "just words", []string{"just words"}},
		{"empty", "", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SplitSentences(tt.reply)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.reply, strings.Join(got, ""))
		})
	}
}
