// Package persona describes a digital human's character and turns it into
// the system prompt sent with every reply.
package persona

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidAttributes is wrapped by every Validate failure.
var ErrInvalidAttributes = errors.New("persona: invalid attributes")

// Attributes is the character sheet of one model profile.
type Attributes struct {
	Name          string `json:"name"`
	Gender        string `json:"gender"`
	Age           string `json:"age"`
	Birth         string `json:"birth"`
	Zodiac        string `json:"zodiac"`
	Constellation string `json:"constellation"`
	Job           string `json:"job"`
	Hobby         string `json:"hobby"`
	Contact       string `json:"contact,omitempty"`
	Voice         string `json:"voice,omitempty"`
	Position      string `json:"position"`
	Goal          string `json:"goal"`
	Additional    string `json:"additional"`
}

// DefaultVoice is used when a generated persona names no voice.
const DefaultVoice = "abin"

// Positions lists the accepted persona positions.
var Positions = []string{"客服", "陪伴", "教培", "娱乐", "销售", "助理"}

var genderAliases = map[string]string{
	"男":      "男",
	"女":      "女",
	"male":   "男",
	"female": "女",
	"m":      "男",
	"f":      "女",
}

// Validate checks that every required field is present and that gender and
// position hold accepted values. Gender aliases are normalised in place.
func Validate(a *Attributes) error {
	required := []struct {
		name  string
		value string
	}{
		{"name", a.Name},
		{"gender", a.Gender},
		{"age", a.Age},
		{"birth", a.Birth},
		{"zodiac", a.Zodiac},
		{"constellation", a.Constellation},
		{"job", a.Job},
		{"hobby", a.Hobby},
		{"position", a.Position},
		{"goal", a.Goal},
		{"additional", a.Additional},
	}
	var missing []string
	for _, f := range required {
		if strings.TrimSpace(f.value) == "" {
			missing = append(missing, f.name)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", ErrInvalidAttributes, strings.Join(missing, ", "))
	}

	g, ok := genderAliases[strings.ToLower(strings.TrimSpace(a.Gender))]
	if !ok {
		return fmt.Errorf("%w: gender %q must be 男 or 女", ErrInvalidAttributes, a.Gender)
	}
	a.Gender = g

	pos := strings.TrimSpace(a.Position)
	for _, p := range Positions {
		if pos == p {
			a.Position = p
			if a.Voice == "" {
				a.Voice = DefaultVoice
			}
			return nil
		}
	}
	return fmt.Errorf("%w: position %q must be one of %s", ErrInvalidAttributes, a.Position, strings.Join(Positions, ", "))
}

// FromMap builds Attributes from a stored attribute map. Unknown keys are
// ignored.
func FromMap(m map[string]string) Attributes {
	var a Attributes
	if raw, err := json.Marshal(m); err == nil {
		_ = json.Unmarshal(raw, &a)
	}
	return a
}

// Map flattens a for storage, dropping empty fields.
func (a Attributes) Map() map[string]string {
	raw, _ := json.Marshal(a)
	var m map[string]string
	_ = json.Unmarshal(raw, &m)
	for k, v := range m {
		if v == "" {
			delete(m, k)
		}
	}
	return m
}
