package visual

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/kalambet/designgen/internal/design"
	"github.com/kalambet/designgen/internal/engine"
)

// Review is a model's judgement of how faithfully code reproduces a design.
type Review struct {
	Score  float64  `json:"score"`
	Issues []string `json:"issues,omitempty"`
	Model  string   `json:"model"`
}

// Reviewer asks a local model to compare generated code with the design's
// measurements.
type Reviewer struct {
	engine engine.Engine
	model  string
}

// NewReviewer returns a Reviewer that chats with model on e.
func NewReviewer(e engine.Engine, model string) *Reviewer {
	return &Reviewer{engine: e, model: model}
}

var reviewSchema = &engine.Schema{
	Type: "object",
	Properties: map[string]engine.SchemaProperty{
		"score":  {Type: "number", Description: "Visual fidelity 0.0-1.0"},
		"issues": {Type: "array", Description: "Short descriptions of mismatches"},
	},
	Required: []string{"score"},
}

// Review scores code against c. Engine errors are returned unchanged so the
// caller can decide whether to retry; an unparseable reply is an error.
func (r *Reviewer) Review(ctx context.Context, c *design.Component, code string) (Review, error) {
	n := c.Normalized
	var b strings.Builder
	fmt.Fprintf(&b, "A UI component named %q measures %.0fx%.0f with %d child elements.\n", c.Name(), n.Width, n.Height, n.ChildCount)
	if len(n.Texts) > 0 {
		fmt.Fprintf(&b, "It shows the text: %s\n", strings.Join(n.Texts, " | "))
	}
	if len(n.FillColors) > 0 {
		fmt.Fprintf(&b, "Its colours are: %s\n", strings.Join(n.FillColors, ", "))
	}
	b.WriteString("Rate how faithfully the following code reproduces it on a scale of 0.0 to 1.0.\n\n")
	b.WriteString(code)
	b.WriteString("\n\nRespond with only a JSON object: {\"score\": <float>, \"issues\": [<string>]}")

	resp, err := r.engine.Chat(ctx, r.model, []engine.Message{{Role: "user", Content: b.String()}}, reviewSchema)
	if err != nil {
		return Review{}, err
	}
	rev, err := parseReview(resp)
	if err != nil {
		return Review{}, err
	}
	rev.Model = r.model
	return rev, nil
}

// parseReview extracts the JSON object from a model reply. Small local models
// often wrap JSON in code fences or add filler around it.
func parseReview(resp string) (Review, error) {
	s := strings.TrimSpace(resp)
	if idx := strings.Index(s, "```"); idx != -1 {
		s = s[idx+3:]
		s = strings.TrimPrefix(s, "json")
		if end := strings.Index(s, "```"); end != -1 {
			s = s[:end]
		}
	}

	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start == -1 || end <= start {
		return Review{}, fmt.Errorf("no JSON object in review response")
	}

	var rev Review
	if err := json.Unmarshal([]byte(s[start:end+1]), &rev); err != nil {
		return Review{}, fmt.Errorf("unmarshal review: %w", err)
	}
	if rev.Score < 0 {
		rev.Score = 0
	}
	if rev.Score > 1 {
		rev.Score = 1
	}
	return rev, nil
}
