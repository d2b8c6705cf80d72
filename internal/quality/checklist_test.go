package quality

import (
	"strings"
	"testing"
)

const goodCode = `import React from 'react';
import { ArrowRight } from 'lucide-react';

type PrimaryButtonProps = {
  label: string;
  onClick?: () => void;
};

// Renders a "primary" call to action (with icon).
export function PrimaryButton({ label, onClick }: PrimaryButtonProps) {
  return (
    <button className="btn btn-primary" onClick={onClick}>
      {label} <ArrowRight size={16} />
    </button>
  );
}
`

func TestCheck_Good(t *testing.T) {
	r := Check(Input{Name: "PrimaryButton", Code: goodCode, Symbols: []string{"ArrowRight"}})
	if !r.Passed {
		t.Errorf("good code failed: %+v", r)
	}
	if len(r.Warnings) != 0 {
		t.Errorf("warnings = %v", r.Warnings)
	}
}

func TestCheck_Failures(t *testing.T) {
	tests := []struct {
		name    string
		code    string
		symbols []string
		field   func(Checklist) bool
		warning string
	}{
		{"any", strings.Replace(goodCode, "label: string", "label: any", 1), nil, func(c Checklist) bool { return c.NoAnyType }, "any type"},
		{"inline style", strings.Replace(goodCode, `className="btn btn-primary"`, `style={{color: 'red'}}`, 1), nil, func(c Checklist) bool { return c.NoInlineStyles }, "inline style"},
		{"unbalanced", strings.TrimSuffix(goodCode, "}\n"), nil, func(c Checklist) bool { return c.BalancedBrackets }, "unbalanced"},
		{"missing icon", goodCode, []string{"ArrowRight", "Check"}, func(c Checklist) bool { return c.IconsReferenced }, "Check"},
		{"wrong name", strings.Replace(goodCode, "export function PrimaryButton", "export function Btn", 1), nil, func(c Checklist) bool { return c.NameMatches }, "does not match"},
		{"no props", strings.Replace(goodCode, "type PrimaryButtonProps", "type Args", 1), nil, func(c Checklist) bool { return c.DeclaresPropsType }, "Props"},
		{"no react", strings.Replace(goodCode, "import React from 'react';\n", "", 1), nil, func(c Checklist) bool { return c.ImportsReact }, "react"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := Check(Input{Name: "PrimaryButton", Code: tt.code, Symbols: tt.symbols})
			if tt.field(r.Checklist) {
				t.Errorf("check passed, want failure")
			}
			if r.Passed {
				t.Error("Passed = true")
			}
			if !strings.Contains(strings.Join(r.Warnings, "; "), tt.warning) {
				t.Errorf("warnings %v missing %q", r.Warnings, tt.warning)
			}
		})
	}
}

func TestBalanced_IgnoresLiterals(t *testing.T) {
	for code, want := range map[string]bool{
		`const s = "(";`:              true,
		"const t = `{${a}`;":          true,
		"// ( unclosed in comment\n":  true,
		"/* [ */ const a = [1];":      true,
		"f(a[0]}":                     false,
		"/* never closed":             false,
	} {
		if got := balanced(code); got != want {
			t.Errorf("balanced(%q) = %v, want %v", code, got, want)
		}
	}
}

func TestComponentName(t *testing.T) {
	for in, want := range map[string]string{
		"PrimaryButton":    "PrimaryButton",
		"primary button":   "PrimaryButton",
		"icon/arrow-right": "IconArrowRight",
		"2-col card":       "ColCard",
		"Card 2":           "Card2",
	} {
		if got := ComponentName(in); got != want {
			t.Errorf("ComponentName(%q) = %q, want %q", in, got, want)
		}
	}
}
