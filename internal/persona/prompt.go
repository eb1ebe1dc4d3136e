package persona

import "strings"

const fallbackPrompt = "You are a helpful AI assistant."

// SystemPrompt renders a as the system message for the conversation LLM.
// Unset name, gender, age, job and personality fall back to the stock Fay
// persona. A nil a yields a generic assistant prompt.
func SystemPrompt(a *Attributes) string {
	if a == nil {
		return fallbackPrompt
	}
	name := or(a.Name, "Fay")
	parts := []string{"You are " + name}
	add := func(label, v string) {
		if v = strings.TrimSpace(v); v != "" {
			parts = append(parts, label+v)
		}
	}
	add("age ", or(a.Age, "adult"))
	add("gender ", or(a.Gender, "female"))
	add("from ", a.Birth)
	add("working as ", or(a.Job, "assistant"))
	add("positioned as ", a.Position)
	add("who enjoys ", a.Hobby)

	var b strings.Builder
	b.WriteString(strings.Join(parts, ", "))
	b.WriteString(".")
	if goal := strings.TrimSpace(a.Goal); goal != "" {
		b.WriteString(" Your goal is ")
		b.WriteString(strings.TrimRight(goal, ".。"))
		b.WriteString(".")
	}
	b.WriteString(" Personality: ")
	b.WriteString(strings.TrimRight(or(a.Additional, "friendly and helpful"), ".。"))
	b.WriteString(".")
	return b.String()
}

func or(v, def string) string {
	if v = strings.TrimSpace(v); v != "" {
		return v
	}
	return def
}
