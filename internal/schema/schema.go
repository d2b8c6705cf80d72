// Package schema maps a classified component onto the code template it will
// be generated from, and builds the text and visual signals used to match it
// against the library.
package schema

import (
	"fmt"
	"sort"
	"strings"

	"github.com/kalambet/designgen/internal/classify"
	"github.com/kalambet/designgen/internal/design"
	"github.com/kalambet/designgen/internal/icons"
	"github.com/kalambet/designgen/internal/visual"
)

// Prop is one property of a target template.
type Prop struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	Required bool   `json:"required,omitempty"`
}

// Target is the template a component is generated against.
type Target struct {
	Tag      string `json:"tag"`
	Template string `json:"template"`
	Element  string `json:"element"`
	Props    []Prop `json:"props"`
}

// Mapping is the semantic-map stage output.
type Mapping struct {
	Target      Target    `json:"target"`
	Description string    `json:"description"`
	Visual      []float32 `json:"visual"`
}

var children = Prop{Name: "children", Type: "React.ReactNode"}
var className = Prop{Name: "className", Type: "string"}

var targets = map[string]Target{
	"button":    {Template: "Button", Element: "button", Props: []Prop{{Name: "label", Type: "string", Required: true}, {Name: "onClick", Type: "() => void"}, {Name: "disabled", Type: "boolean"}, className}},
	"icon":      {Template: "Icon", Element: "span", Props: []Prop{{Name: "size", Type: "number"}, className}},
	"input":     {Template: "TextInput", Element: "input", Props: []Prop{{Name: "value", Type: "string", Required: true}, {Name: "onChange", Type: "(value: string) => void", Required: true}, {Name: "placeholder", Type: "string"}, className}},
	"checkbox":  {Template: "Checkbox", Element: "input", Props: []Prop{{Name: "checked", Type: "boolean", Required: true}, {Name: "onChange", Type: "(checked: boolean) => void", Required: true}, {Name: "label", Type: "string"}}},
	"avatar":    {Template: "Avatar", Element: "img", Props: []Prop{{Name: "src", Type: "string", Required: true}, {Name: "alt", Type: "string", Required: true}, {Name: "size", Type: "number"}}},
	"badge":     {Template: "Badge", Element: "span", Props: []Prop{{Name: "label", Type: "string", Required: true}, {Name: "tone", Type: "'neutral' | 'info' | 'success' | 'warning' | 'danger'"}}},
	"navbar":    {Template: "NavBar", Element: "nav", Props: []Prop{{Name: "title", Type: "string"}, children, className}},
	"list":      {Template: "List", Element: "ul", Props: []Prop{{Name: "items", Type: "Array<{ id: string; label: string }>", Required: true}, {Name: "onSelect", Type: "(id: string) => void"}}},
	"modal":     {Template: "Modal", Element: "div", Props: []Prop{{Name: "open", Type: "boolean", Required: true}, {Name: "onClose", Type: "() => void", Required: true}, {Name: "title", Type: "string"}, children}},
	"card":      {Template: "Card", Element: "article", Props: []Prop{{Name: "title", Type: "string"}, children, className}},
	"text":      {Template: "Text", Element: "p", Props: []Prop{{Name: "text", Type: "string", Required: true}, className}},
	"image":     {Template: "Image", Element: "img", Props: []Prop{{Name: "src", Type: "string", Required: true}, {Name: "alt", Type: "string", Required: true}}},
	"container": {Template: "Container", Element: "div", Props: []Prop{children, className}},
}

// TargetFor returns the template for tag, falling back to the container
// template for unknown tags.
func TargetFor(tag string) Target {
	t, ok := targets[tag]
	if !ok {
		t = targets[classify.DefaultTag]
	}
	t.Tag = tag
	return t
}

// Map builds the semantic mapping of c.
func Map(c *design.Component, cls classify.Result, ex icons.Extraction) Mapping {
	return Mapping{
		Target:      TargetFor(cls.Tag),
		Description: Describe(c, cls, ex),
		Visual:      visual.Features(c.Normalized),
	}
}

// Describe renders the text embedded as the component's semantic signal. It
// is built only from stable facts so identical designs describe identically.
func Describe(c *design.Component, cls classify.Result, ex icons.Extraction) string {
	n := c.Normalized
	var b strings.Builder
	fmt.Fprintf(&b, "%s component named %s", cls.Tag, splitCamel(c.Name()))
	if t := strings.TrimSpace(c.Record.Type); t != "" {
		fmt.Fprintf(&b, " (%s)", strings.ToLower(t))
	}
	b.WriteString(".")
	if len(n.Texts) > 0 {
		fmt.Fprintf(&b, " Text: %s.", strings.Join(n.Texts, ", "))
	}
	if syms := ex.Symbols(); len(syms) > 0 {
		fmt.Fprintf(&b, " Icons: %s.", strings.Join(syms, ", "))
	}
	if len(c.Record.Properties) > 0 {
		keys := make([]string, 0, len(c.Record.Properties))
		for k := range c.Record.Properties {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, len(keys))
		for i, k := range keys {
			parts[i] = fmt.Sprintf("%s=%v", k, c.Record.Properties[k])
		}
		fmt.Fprintf(&b, " Properties: %s.", strings.Join(parts, ", "))
	}
	fmt.Fprintf(&b, " Layout: %d children, depth %d.", n.ChildCount, n.Depth)
	return b.String()
}

// splitCamel turns "PrimaryButton" into "primary button".
func splitCamel(s string) string {
	var b strings.Builder
	prevLower := false
	for _, r := range s {
		isUpper := r >= 'A' && r <= 'Z'
		if isUpper && prevLower {
			b.WriteByte(' ')
		}
		switch {
		case r == '_' || r == '-' || r == '/':
			b.WriteByte(' ')
		default:
			b.WriteRune(r)
		}
		prevLower = (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9')
	}
	return strings.ToLower(strings.Join(strings.Fields(b.String()), " "))
}
