package design

import (
	"sort"
	"strings"
)

// Component is a parsed, validated component description.
type Component struct {
	Record      Record
	SourcePath  string
	ContentHash string
	Normalized  Normalized
}

// ID returns the component id as declared in the record.
func (c *Component) ID() string { return c.Record.ID }

// Name returns the declared component name.
func (c *Component) Name() string { return c.Record.Name }

// Normalized holds tree-wide measurements of a component.
type Normalized struct {
	Width         float64        `json:"width"`
	Height        float64        `json:"height"`
	AspectRatio   float64        `json:"aspect_ratio"`
	NodeCount     int            `json:"node_count"`
	ChildCount    int            `json:"child_count"`
	Depth         int            `json:"depth"`
	Texts         []string       `json:"texts,omitempty"`
	FillColors    []string       `json:"fill_colors,omitempty"`
	TypeHistogram map[string]int `json:"type_histogram"`
}

// Text returns all text content joined by spaces.
func (n Normalized) Text() string { return strings.Join(n.Texts, " ") }

// Normalize walks the tree rooted at root.
func Normalize(root *Node) Normalized {
	n := Normalized{
		Width:         root.Width,
		Height:        root.Height,
		ChildCount:    len(root.Children),
		TypeHistogram: make(map[string]int),
	}
	if root.Height > 0 {
		n.AspectRatio = root.Width / root.Height
	}

	colors := make(map[string]bool)
	var walk func(node *Node, depth int)
	walk = func(node *Node, depth int) {
		n.NodeCount++
		if depth > n.Depth {
			n.Depth = depth
		}
		if t := strings.ToUpper(strings.TrimSpace(node.Type)); t != "" {
			n.TypeHistogram[t]++
		}
		if s := strings.TrimSpace(node.Characters); s != "" {
			n.Texts = append(n.Texts, s)
		}
		for _, f := range node.Fills {
			if c := strings.ToUpper(strings.TrimSpace(f.Color)); c != "" && !colors[c] {
				colors[c] = true
				n.FillColors = append(n.FillColors, c)
			}
		}
		for i := range node.Children {
			walk(&node.Children[i], depth+1)
		}
	}
	walk(root, 0)
	sort.Strings(n.FillColors)
	return n
}

// Walk calls fn for every node in the tree in depth-first order.
func Walk(root *Node, fn func(n *Node)) {
	if root == nil {
		return
	}
	fn(root)
	for i := range root.Children {
		Walk(&root.Children[i], fn)
	}
}
