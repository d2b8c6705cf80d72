// Package quality runs static checks over generated component code.
package quality

import (
	"fmt"
	"regexp"
	"strings"
)

// Checklist holds one boolean per code-quality rule.
type Checklist struct {
	ExportsComponent  bool `json:"exports_component"`
	DeclaresPropsType bool `json:"declares_props_type"`
	ImportsReact      bool `json:"imports_react"`
	BalancedBrackets  bool `json:"balanced_brackets"`
	NoAnyType         bool `json:"no_any_type"`
	NoInlineStyles    bool `json:"no_inline_styles"`
	IconsReferenced   bool `json:"icons_referenced"`
	NameMatches       bool `json:"name_matches"`
}

// Passed reports whether every check holds.
func (c Checklist) Passed() bool {
	return c.ExportsComponent && c.DeclaresPropsType && c.ImportsReact && c.BalancedBrackets &&
		c.NoAnyType && c.NoInlineStyles && c.IconsReferenced && c.NameMatches
}

// Report is the validate stage output.
type Report struct {
	Checklist Checklist `json:"checklist"`
	Passed    bool      `json:"passed"`
	Warnings  []string  `json:"warnings,omitempty"`
}

// Input is what the checks need to know about the component.
type Input struct {
	Name    string
	Code    string
	Symbols []string
}

var (
	anyType     = regexp.MustCompile(`:\s*any\b|<any>|\bas any\b|any\[\]`)
	inlineStyle = regexp.MustCompile(`style=\{\{`)
	reactImport = regexp.MustCompile(`(?m)^import\s+.*from\s+['"]react(/jsx-runtime)?['"]`)
	propsType   = regexp.MustCompile(`\b(type|interface)\s+\w*Props\b`)
)

// Check runs all rules. Only a code that fails to balance is fatal to the
// caller; every other failed rule becomes a warning.
func Check(in Input) Report {
	code := in.Code
	name := ComponentName(in.Name)
	c := Checklist{
		ExportsComponent:  exportsName(code, name) || strings.Contains(code, "export default"),
		DeclaresPropsType: propsType.MatchString(code),
		ImportsReact:      reactImport.MatchString(code) || !strings.Contains(code, "<"),
		BalancedBrackets:  balanced(code),
		NoAnyType:         !anyType.MatchString(code),
		NoInlineStyles:    !inlineStyle.MatchString(code),
		IconsReferenced:   true,
		NameMatches:       exportsName(code, name),
	}

	var warnings []string
	var missing []string
	for _, s := range in.Symbols {
		if !regexp.MustCompile(`\b` + regexp.QuoteMeta(s) + `\b`).MatchString(code) {
			missing = append(missing, s)
		}
	}
	if len(missing) > 0 {
		c.IconsReferenced = false
		warnings = append(warnings, fmt.Sprintf("icons not referenced: %s", strings.Join(missing, ", ")))
	}
	if !c.ExportsComponent {
		warnings = append(warnings, "no exported component")
	}
	if !c.DeclaresPropsType {
		warnings = append(warnings, "no Props type declared")
	}
	if !c.ImportsReact {
		warnings = append(warnings, "JSX used without importing react")
	}
	if !c.BalancedBrackets {
		warnings = append(warnings, "unbalanced brackets")
	}
	if !c.NoAnyType {
		warnings = append(warnings, "uses the any type")
	}
	if !c.NoInlineStyles {
		warnings = append(warnings, "uses inline style objects")
	}
	if !c.NameMatches {
		warnings = append(warnings, fmt.Sprintf("exported name does not match %s", name))
	}
	return Report{Checklist: c, Passed: c.Passed(), Warnings: warnings}
}

func exportsName(code, name string) bool {
	if name == "" {
		return false
	}
	re := regexp.MustCompile(`export\s+(default\s+)?(function|const|class)\s+` + regexp.QuoteMeta(name) + `\b`)
	return re.MatchString(code)
}

// ComponentName converts a design name into a PascalCase identifier.
func ComponentName(s string) string {
	var b strings.Builder
	upper := true
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z':
			if upper {
				r -= 'a' - 'A'
			}
			b.WriteRune(r)
			upper = false
		case (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9' && b.Len() > 0):
			b.WriteRune(r)
			upper = false
		default:
			upper = true
		}
	}
	return b.String()
}

// balanced checks (), [] and {} nesting, skipping string and template
// literals and comments.
func balanced(code string) bool {
	var stack []byte
	pairs := map[byte]byte{')': '(', ']': '[', '}': '{'}
	for i := 0; i < len(code); i++ {
		ch := code[i]
		switch ch {
		case '"', '\'', '`':
			j := i + 1
			for j < len(code) && code[j] != ch {
				if code[j] == '\\' {
					j++
				}
				j++
			}
			i = j
		case '/':
			if i+1 < len(code) && code[i+1] == '/' {
				for i < len(code) && code[i] != '\n' {
					i++
				}
			} else if i+1 < len(code) && code[i+1] == '*' {
				end := strings.Index(code[i+2:], "*/")
				if end < 0 {
					return false
				}
				i += end + 3
			}
		case '(', '[', '{':
			stack = append(stack, ch)
		case ')', ']', '}':
			if len(stack) == 0 || stack[len(stack)-1] != pairs[ch] {
				return false
			}
			stack = stack[:len(stack)-1]
		}
	}
	return len(stack) == 0
}
