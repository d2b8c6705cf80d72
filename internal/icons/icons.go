// Package icons finds icon nodes in a design tree and maps their names to
// code symbols through a YAML lookup table.
package icons

import (
	_ "embed"
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/kalambet/designgen/internal/design"
)

//go:embed icons.yaml
var defaultTable []byte

// Icon is one icon occurrence found in a component.
type Icon struct {
	NodeName string `json:"node_name"`
	Key      string `json:"key"`
	Symbol   string `json:"symbol,omitempty"`
}

// Extraction is the result of scanning one component.
type Extraction struct {
	Module   string   `json:"module"`
	Icons    []Icon   `json:"icons"`
	Unmapped []string `json:"unmapped,omitempty"`
}

// Symbols returns the distinct mapped symbols in sorted order.
func (e Extraction) Symbols() []string {
	seen := make(map[string]bool)
	var out []string
	for _, ic := range e.Icons {
		if ic.Symbol != "" && !seen[ic.Symbol] {
			seen[ic.Symbol] = true
			out = append(out, ic.Symbol)
		}
	}
	sort.Strings(out)
	return out
}

// Mapper holds the name→symbol table.
type Mapper struct {
	module  string
	symbols map[string]string
}

type table struct {
	Prefix  string            `yaml:"prefix"`
	Symbols map[string]string `yaml:"symbols"`
}

// Default returns a mapper over the embedded table.
func Default() (*Mapper, error) { return Parse(defaultTable) }

// Load reads a table from path; an empty path selects the embedded table.
func Load(path string) (*Mapper, error) {
	if path == "" {
		return Default()
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading icon map: %w", err)
	}
	return Parse(b)
}

// Parse decodes a YAML icon table.
func Parse(b []byte) (*Mapper, error) {
	var t table
	if err := yaml.Unmarshal(b, &t); err != nil {
		return nil, fmt.Errorf("parsing icon map: %w", err)
	}
	m := &Mapper{module: t.Prefix, symbols: make(map[string]string, len(t.Symbols))}
	for k, v := range t.Symbols {
		m.symbols[normalizeKey(k)] = strings.TrimSpace(v)
	}
	return m, nil
}

// Module is the import path generated code pulls symbols from.
func (m *Mapper) Module() string { return m.module }

var iconName = regexp.MustCompile(`(?i)^(icon|icons|ic)([/_\- ]|$)`)

// IsIcon reports whether a node looks like an icon: an explicitly named icon
// layer, or a small square vector.
func IsIcon(n *design.Node) bool {
	if iconName.MatchString(strings.TrimSpace(n.Name)) {
		return true
	}
	t := strings.ToUpper(n.Type)
	if t != "VECTOR" && t != "BOOLEAN_OPERATION" {
		return false
	}
	return n.Width > 0 && n.Width <= 48 && n.Height > 0 && n.Height <= 48 && n.Width == n.Height
}

// Extract walks the component tree and maps every icon node. Unmapped names
// are reported, not rejected. The root node is never treated as an icon.
func (m *Mapper) Extract(c *design.Component) Extraction {
	ex := Extraction{Module: m.module}
	seenUnmapped := make(map[string]bool)
	root := c.Record.Node
	design.Walk(root, func(n *design.Node) {
		if n == root || !IsIcon(n) {
			return
		}
		key := iconKey(n.Name)
		ic := Icon{NodeName: n.Name, Key: key, Symbol: m.symbols[key]}
		ex.Icons = append(ex.Icons, ic)
		if ic.Symbol == "" && !seenUnmapped[key] {
			seenUnmapped[key] = true
			ex.Unmapped = append(ex.Unmapped, key)
		}
	})
	return ex
}

// iconKey strips the "icon/" style prefix and keeps the last path segment.
func iconKey(name string) string {
	name = strings.TrimSpace(name)
	if i := strings.LastIndex(name, "/"); i >= 0 {
		name = name[i+1:]
	} else if loc := iconName.FindStringIndex(name); loc != nil {
		name = name[loc[1]:]
	}
	return normalizeKey(name)
}

var separators = regexp.MustCompile(`[\s_]+`)

func normalizeKey(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = separators.ReplaceAllString(s, "-")
	return strings.Trim(s, "-")
}
