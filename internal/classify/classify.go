// Package classify assigns a component type tag from an ordered, data-driven
// rule table. Rules are evaluated in order and the first match wins.
package classify

import (
	_ "embed"
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/kalambet/designgen/internal/design"
)

//go:embed rules.yaml
var defaultRules []byte

// DefaultTag is used when no rule matches and the rule file names none.
const DefaultTag = "container"

// Rule is one predicate→tag entry. Zero-valued predicates always match.
type Rule struct {
	Tag         string   `yaml:"tag"`
	Name        string   `yaml:"name"`
	Types       []string `yaml:"types"`
	NodeTypes   []string `yaml:"node_types"`
	MinChildren *int     `yaml:"min_children"`
	MaxChildren *int     `yaml:"max_children"`
	MinAspect   *float64 `yaml:"min_aspect"`
	MaxAspect   *float64 `yaml:"max_aspect"`

	nameRe *regexp.Regexp
}

type ruleFile struct {
	Default string `yaml:"default"`
	Rules   []Rule `yaml:"rules"`
}

// Result is the outcome of classifying one component.
type Result struct {
	Tag       string `json:"tag"`
	RuleIndex int    `json:"rule_index"` // -1 when the default tag was used
	Reason    string `json:"reason"`
}

// Classifier holds a compiled rule table.
type Classifier struct {
	rules      []Rule
	defaultTag string
}

// Default returns a classifier over the embedded rule table.
func Default() (*Classifier, error) {
	return Parse(defaultRules)
}

// Load reads a YAML rule table from path. An empty path selects the
// embedded defaults.
func Load(path string) (*Classifier, error) {
	if path == "" {
		return Default()
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading classification rules: %w", err)
	}
	return Parse(b)
}

// Parse compiles a YAML rule table.
func Parse(b []byte) (*Classifier, error) {
	var f ruleFile
	if err := yaml.Unmarshal(b, &f); err != nil {
		return nil, fmt.Errorf("parsing classification rules: %w", err)
	}
	c := &Classifier{defaultTag: strings.TrimSpace(f.Default)}
	if c.defaultTag == "" {
		c.defaultTag = DefaultTag
	}
	for i, r := range f.Rules {
		if strings.TrimSpace(r.Tag) == "" {
			return nil, fmt.Errorf("classification rule %d has no tag", i)
		}
		if r.Name != "" {
			re, err := regexp.Compile(r.Name)
			if err != nil {
				return nil, fmt.Errorf("classification rule %d: invalid name pattern: %w", i, err)
			}
			r.nameRe = re
		}
		c.rules = append(c.rules, r)
	}
	return c, nil
}

// Len returns the number of rules.
func (c *Classifier) Len() int { return len(c.rules) }

// Classify returns the tag of the first matching rule, or the default tag.
func (c *Classifier) Classify(comp *design.Component) Result {
	for i := range c.rules {
		if c.rules[i].matches(comp) {
			return Result{Tag: c.rules[i].Tag, RuleIndex: i, Reason: c.rules[i].describe()}
		}
	}
	return Result{Tag: c.defaultTag, RuleIndex: -1, Reason: "default"}
}

func (r *Rule) matches(c *design.Component) bool {
	n := c.Normalized
	if r.nameRe != nil && !r.nameRe.MatchString(c.Name()) {
		return false
	}
	if len(r.Types) > 0 && !containsFold(r.Types, c.Record.Type) {
		return false
	}
	if len(r.NodeTypes) > 0 && !containsFold(r.NodeTypes, c.Record.Node.Type) {
		return false
	}
	if r.MinChildren != nil && n.ChildCount < *r.MinChildren {
		return false
	}
	if r.MaxChildren != nil && n.ChildCount > *r.MaxChildren {
		return false
	}
	if r.MinAspect != nil && n.AspectRatio < *r.MinAspect {
		return false
	}
	if r.MaxAspect != nil && n.AspectRatio > *r.MaxAspect {
		return false
	}
	return true
}

func (r *Rule) describe() string {
	var parts []string
	if r.Name != "" {
		parts = append(parts, "name~"+r.Name)
	}
	if len(r.Types) > 0 {
		parts = append(parts, "type in "+strings.Join(r.Types, ","))
	}
	if len(r.NodeTypes) > 0 {
		parts = append(parts, "node type in "+strings.Join(r.NodeTypes, ","))
	}
	if r.MinChildren != nil || r.MaxChildren != nil {
		parts = append(parts, "children bounded")
	}
	if r.MinAspect != nil || r.MaxAspect != nil {
		parts = append(parts, "aspect bounded")
	}
	return strings.Join(parts, "; ")
}

func containsFold(list []string, s string) bool {
	for _, v := range list {
		if strings.EqualFold(v, s) {
			return true
		}
	}
	return false
}
