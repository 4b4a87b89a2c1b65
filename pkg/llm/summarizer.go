// Package llm calls an OpenAI compatible chat completion endpoint for
// schema-constrained JSON output.
package llm

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/pkg/errors"
)

// ErrNotConfigured reports a summarizer without credentials.
var ErrNotConfigured = errors.New("llm: summarizer not configured")

// Summarizer returns a JSON object matching schema.
type Summarizer interface {
	StructuredCall(ctx context.Context, prompt string, schema map[string]any, system string, temperature float64) (map[string]any, error)
}

// ParseObject decodes a model reply into a JSON object. Markdown code fences
// around the object are tolerated.
func ParseObject(content string) (map[string]any, error) {
	text := strings.TrimSpace(content)
	if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```json")
		text = strings.TrimPrefix(text, "```")
		text = strings.TrimSuffix(strings.TrimSpace(text), "```")
		text = strings.TrimSpace(text)
	}
	if start := strings.Index(text, "{"); start > 0 {
		text = text[start:]
	}
	if end := strings.LastIndex(text, "}"); end >= 0 && end < len(text)-1 {
		text = text[:end+1]
	}
	if text == "" {
		return nil, errors.New("llm: empty reply")
	}
	var out map[string]any
	if err := json.Unmarshal([]byte(text), &out); err != nil {
		return nil, errors.Wrap(err, "llm: reply is not a json object")
	}
	return out, nil
}
