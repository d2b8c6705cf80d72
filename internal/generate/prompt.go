package generate

import (
	"fmt"
	"strings"

	"github.com/kalambet/designgen/internal/design"
	"github.com/kalambet/designgen/internal/icons"
	"github.com/kalambet/designgen/internal/schema"
)

const defaultMaxReferenceTokens = 1500

const systemPrompt = `You are a senior frontend engineer. You write a single React function component in TypeScript (TSX).
Rules:
- Export the component by name and declare a Props type for it.
- Use only the listed icon symbols, imported from the given module.
- Style with className props; do not use inline style objects.
- Do not use the any type.
Reply with exactly one fenced tsx code block and nothing else.`

// Hint is a library component offered as reference material.
type Hint struct {
	ComponentID string  `json:"component_id"`
	Name        string  `json:"name"`
	Type        string  `json:"type"`
	Tier        string  `json:"tier"`
	Score       float64 `json:"score"`
	Code        string  `json:"-"`
}

// Spec is everything the generator knows about one component.
type Spec struct {
	Name        string
	Description string
	Target      schema.Target
	Icons       icons.Extraction
	Layout      design.Normalized
	Hint        *Hint
}

// Composer renders prompts. References longer than MaxReferenceTokens are
// truncated so the design itself is never crowded out.
type Composer struct {
	MaxReferenceTokens int
}

// NewComposer returns a Composer; maxReferenceTokens <= 0 selects the default.
func NewComposer(maxReferenceTokens int) *Composer {
	if maxReferenceTokens <= 0 {
		maxReferenceTokens = defaultMaxReferenceTokens
	}
	return &Composer{MaxReferenceTokens: maxReferenceTokens}
}

// System returns the system prompt.
func (c *Composer) System() string { return systemPrompt }

// Compose renders the user prompt for s.
func (c *Composer) Compose(s Spec) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "[Component]\nName: %s\nTemplate: %s (root element <%s>)\n", s.Name, s.Target.Template, s.Target.Element)
	fmt.Fprintf(&sb, "Description: %s\n", s.Description)

	sb.WriteString("\n[Props]\n")
	for _, p := range s.Target.Props {
		opt := "?"
		if p.Required {
			opt = ""
		}
		fmt.Fprintf(&sb, "%s%s: %s\n", p.Name, opt, p.Type)
	}

	l := s.Layout
	fmt.Fprintf(&sb, "\n[Layout]\nSize: %.0fx%.0f\nChildren: %d\n", l.Width, l.Height, l.ChildCount)
	if len(l.Texts) > 0 {
		fmt.Fprintf(&sb, "Text content: %s\n", strings.Join(l.Texts, " | "))
	}
	if len(l.FillColors) > 0 {
		fmt.Fprintf(&sb, "Colours: %s\n", strings.Join(l.FillColors, ", "))
	}

	if syms := s.Icons.Symbols(); len(syms) > 0 {
		fmt.Fprintf(&sb, "\n[Icons]\nImport from %q: %s\n", s.Icons.Module, strings.Join(syms, ", "))
	}

	if h := s.Hint; h != nil && (h.Tier == "exact" || h.Tier == "similar") {
		fmt.Fprintf(&sb, "\n[Reference]\nA %s match (score %.2f) exists in the library: %s (%s).\n", h.Tier, h.Score, h.Name, h.Type)
		if h.Tier == "exact" {
			sb.WriteString("Follow its structure closely.\n")
		} else {
			sb.WriteString("Use it as a starting point and adapt it.\n")
		}
		if code := c.truncate(h.Code); code != "" {
			fmt.Fprintf(&sb, "```tsx\n%s\n```\n", code)
		}
	}
	return sb.String()
}

func (c *Composer) truncate(code string) string {
	code = strings.TrimSpace(code)
	limit := c.MaxReferenceTokens * 4
	if len(code) <= limit {
		return code
	}
	cut := code[:limit]
	if i := strings.LastIndexByte(cut, '\n'); i > 0 {
		cut = cut[:i]
	}
	return cut + "\n// ..."
}

// EstimateTokens provides a rough token count using 4 chars per token heuristic.
func EstimateTokens(text string) int {
	return (len(text) + 3) / 4
}
