package persona

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixedCompleter struct {
	reply  string
	err    error
	prompt string
}

func (f *fixedCompleter) Complete(ctx context.Context, prompt string) (string, error) {
	f.prompt = prompt
	return f.reply, f.err
}

const sampleJSON = `{"name":"小芳","gender":"female","age":"25岁","birth":"北京","zodiac":"兔","constellation":"白羊座","job":"教师","hobby":"阅读","position":"教培","goal":"陪伴学习","additional":"耐心"}`

func TestSystemPromptDefaults(t *testing.T) {
	got := SystemPrompt(&Attributes{})
	assert.Equal(t, "You are Fay, age adult, gender female, working as assistant. Personality: friendly and helpful.", got)
	assert.Equal(t, fallbackPrompt, SystemPrompt(nil))
}

func TestSystemPromptFull(t *testing.T) {
	got := SystemPrompt(&Attributes{Name: "Ava", Age: "30", Gender: "女", Birth: "Shanghai", Job: "guide", Position: "陪伴", Hobby: "music", Goal: "keep people company.", Additional: "warm"})
	assert.Equal(t, "You are Ava, age 30, gender 女, from Shanghai, working as guide, positioned as 陪伴, who enjoys music. Your goal is keep people company. Personality: warm.", got)
	assert.NotContains(t, got, ",,")
	assert.NotContains(t, got, "..")
}

func TestValidate(t *testing.T) {
	var a Attributes
	require.NoError(t, ExtractJSON(sampleJSON, &a))
	require.NoError(t, Validate(&a))
	assert.Equal(t, "女", a.Gender)
	assert.Equal(t, DefaultVoice, a.Voice)

	missing := a
	missing.Hobby = ""
	missing.Goal = " "
	err := Validate(&missing)
	require.ErrorIs(t, err, ErrInvalidAttributes)
	assert.Contains(t, err.Error(), "hobby, goal")

	badGender := a
	badGender.Gender = "unknown"
	assert.ErrorIs(t, Validate(&badGender), ErrInvalidAttributes)

	badPosition := a
	badPosition.Position = "工程"
	assert.ErrorIs(t, Validate(&badPosition), ErrInvalidAttributes)
}

func TestExtractJSON(t *testing.T) {
	cases := map[string]string{
		"direct": sampleJSON,
		"fenced": "Here you go:\n```json\n" + sampleJSON + "\n```\nEnjoy",
		"braced": "Sure! " + sampleJSON + " hope that helps",
	}
	for name, reply := range cases {
		t.Run(name, func(t *testing.T) {
			var a Attributes
			require.NoError(t, ExtractJSON(reply, &a))
			assert.Equal(t, "小芳", a.Name)
		})
	}
	var a Attributes
	assert.ErrorIs(t, ExtractJSON("no json here", &a), ErrNoJSON)
}

func TestGenerate(t *testing.T) {
	llm := &fixedCompleter{reply: "```\n" + sampleJSON + "\n```"}
	a, err := Generate(context.Background(), llm, "a patient teacher from Beijing")
	require.NoError(t, err)
	assert.Equal(t, "教培", a.Position)
	assert.True(t, strings.Contains(llm.prompt, "a patient teacher from Beijing"))

	_, err = Generate(context.Background(), llm, "  ")
	assert.ErrorIs(t, err, ErrInvalidAttributes)

	boom := errors.New("boom")
	_, err = Generate(context.Background(), &fixedCompleter{err: boom}, "x")
	assert.ErrorIs(t, err, boom)

	_, err = Generate(context.Background(), &fixedCompleter{reply: `{"name":"x"}`}, "x")
	assert.ErrorIs(t, err, ErrInvalidAttributes)
}

func TestMapRoundTrip(t *testing.T) {
	a := FromMap(map[string]string{"name": "Ava", "job": "guide", "unknown": "x"})
	assert.Equal(t, "Ava", a.Name)
	assert.Equal(t, "guide", a.Job)
	assert.Equal(t, map[string]string{"name": "Ava", "job": "guide"}, a.Map())
}
