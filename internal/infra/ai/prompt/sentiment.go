package prompt

import (
	"encoding/json"
	"fmt"
)

// GetSystemPrompt provides strict directions and schema for JSON output.
func GetSystemPrompt() string {
	return `You are a media analyst covering Guadeloupe news (press articles and radio transcripts, mostly in French). You must produce one valid JSON object only (no markdown, no commentary) that follows the schema below. Do not include code fences.

Requirements:
- Output must be a single JSON object.
- sentiment must be exactly one of: positif, négatif, neutre.
- score is a number between -1.0 (very negative) and 1.0 (very positive), consistent with sentiment.
- entities lists people, institutions and places actually named in the text. Keep items concise.
- themes lists 1-5 short topic labels in French (e.g. "politique locale", "eau", "transport").
- summary is 1-2 sentences in French.

Schema (example with empty values):
{
  "sentiment": "<positif|négatif|neutre>",
  "score": 0.0,
  "summary": "<string>",
  "entities": [
    {"name": "<string>", "type": "<personne|institution|lieu|autre>"}
  ],
  "themes": ["<string>"]
}`
}

// GetUserPrompt builds a compact user message around the text to analyze.
func GetUserPrompt(text string) string {
	return fmt.Sprintf("Analyze the following text and respond with the JSON per schema.\n\nText:\n%s", text)
}

// Payload matches the schema used by the system prompt.
type Payload struct {
	Sentiment string  `json:"sentiment"`
	Score     float64 `json:"score"`
	Summary   string  `json:"summary"`
	Entities  []struct {
		Name string `json:"name"`
		Type string `json:"type"`
	} `json:"entities"`
	Themes []string `json:"themes"`
}

// SamplePayload returns a schema-conforming JSON string, handy for local runs
// without provider credentials.
func SamplePayload(summary string) (string, error) {
	p := Payload{
		Sentiment: "neutre",
		Score:     0,
		Summary:   summary,
		Themes:    []string{"actualité locale"},
	}
	b, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("failed to marshal payload: %w", err)
	}
	return string(b), nil
}
