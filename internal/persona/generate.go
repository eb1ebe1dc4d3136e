package persona

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrNoJSON is returned when an LLM reply holds no decodable JSON object.
var ErrNoJSON = errors.New("persona: no json object in reply")

// Completer is the slice of the LLM client Generate needs.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

var (
	fencedJSON = regexp.MustCompile("(?s)```(?:json)?\\s*(\\{.*?\\})\\s*```")
	bracedJSON = regexp.MustCompile(`(?s)\{.*\}`)
)

// Generate asks the LLM to derive a full persona from a free-form
// description and validates the result.
func Generate(ctx context.Context, llm Completer, description string) (Attributes, error) {
	description = strings.TrimSpace(description)
	if description == "" {
		return Attributes{}, fmt.Errorf("%w: empty description", ErrInvalidAttributes)
	}
	reply, err := llm.Complete(ctx, generationPrompt(description))
	if err != nil {
		return Attributes{}, fmt.Errorf("persona: generate: %w", err)
	}
	var attrs Attributes
	if err := ExtractJSON(reply, &attrs); err != nil {
		return Attributes{}, err
	}
	if err := Validate(&attrs); err != nil {
		return Attributes{}, err
	}
	return attrs, nil
}

// ExtractJSON decodes the first JSON object found in reply into v. It tries
// the whole reply, then a fenced code block, then the outermost braces.
func ExtractJSON(reply string, v any) error {
	if json.Unmarshal([]byte(reply), v) == nil {
		return nil
	}
	if m := fencedJSON.FindStringSubmatch(reply); m != nil {
		if json.Unmarshal([]byte(m[1]), v) == nil {
			return nil
		}
	}
	if m := bracedJSON.FindString(reply); m != "" {
		if json.Unmarshal([]byte(m), v) == nil {
			return nil
		}
	}
	return ErrNoJSON
}

func generationPrompt(description string) string {
	return `You generate character attributes for a digital human. Based on the description below, fill in every field; infer values the description leaves open.

Description:
` + description + `

Fields:
- name (required)
- gender: 男 or 女 (required)
- age, e.g. 成年 or 25岁 (required)
- birth: place of origin (required)
- zodiac: Chinese zodiac animal (required)
- constellation: star sign (required)
- job (required)
- hobby (required)
- contact (optional)
- voice (optional, default "abin")
- position: one of ` + strings.Join(Positions, ", ") + ` (required)
- goal (required)
- additional: personality traits (required)

Reply with a single JSON object using exactly these keys and nothing else.`
}
