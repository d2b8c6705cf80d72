package design

import (
	"errors"
	"testing"
)

const buttonJSON = `{
  "id": "btn-primary",
  "name": "PrimaryButton",
  "type": "COMPONENT",
  "properties": {"variant": "primary"},
  "node": {
    "id": "1:1", "name": "PrimaryButton", "type": "FRAME", "width": 120, "height": 40,
    "fills": [{"type": "SOLID", "color": "#1e88e5"}],
    "children": [
      {"id": "1:2", "name": "Label", "type": "TEXT", "width": 80, "height": 20, "characters": "Submit"},
      {"id": "1:3", "name": "icon/arrow-right", "type": "VECTOR", "width": 16, "height": 16,
       "fills": [{"type": "SOLID", "color": "#FFFFFF"}]}
    ]
  }
}`

func TestDecode_SingleAndArray(t *testing.T) {
	single, err := Decode([]byte(buttonJSON), "button.json")
	if err != nil {
		t.Fatalf("Decode single: %v", err)
	}
	if len(single) != 1 || single[0].ID != "btn-primary" || single[0].SourcePath != "button.json" {
		t.Errorf("single = %+v", single)
	}

	arr, err := Decode([]byte(`[`+buttonJSON+`, {"name": "NoID"}, `+buttonJSON+`]`), "")
	if err != nil {
		t.Fatalf("Decode array: %v", err)
	}
	if len(arr) != 3 {
		t.Fatalf("got %d inputs, want 3", len(arr))
	}
	if arr[1].ID != "component-2" {
		t.Errorf("fallback id = %q, want component-2", arr[1].ID)
	}
	if arr[2].ID != "btn-primary#2" {
		t.Errorf("duplicate id = %q, want btn-primary#2", arr[2].ID)
	}
}

func TestDecode_Rejects(t *testing.T) {
	for _, in := range []string{"", "   ", "42", `[{"id":1}`, `"text"`} {
		_, err := Decode([]byte(in), "")
		var pe *ParseError
		if !errors.As(err, &pe) {
			t.Errorf("Decode(%q) err = %v, want *ParseError", in, err)
		}
	}
}

func TestParse_Valid(t *testing.T) {
	inputs, _ := Decode([]byte(buttonJSON), "")
	c, err := Parse(inputs[0])
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if c.ID() != "btn-primary" || c.Name() != "PrimaryButton" {
		t.Errorf("id/name = %s/%s", c.ID(), c.Name())
	}
	n := c.Normalized
	if n.NodeCount != 3 || n.ChildCount != 2 || n.Depth != 1 {
		t.Errorf("counts = %d/%d/%d, want 3/2/1", n.NodeCount, n.ChildCount, n.Depth)
	}
	if n.AspectRatio != 3 {
		t.Errorf("AspectRatio = %v, want 3", n.AspectRatio)
	}
	if n.Text() != "Submit" {
		t.Errorf("Text() = %q", n.Text())
	}
	if len(n.FillColors) != 2 || n.FillColors[0] != "#1E88E5" {
		t.Errorf("FillColors = %v", n.FillColors)
	}
	if n.TypeHistogram["TEXT"] != 1 || n.TypeHistogram["FRAME"] != 1 {
		t.Errorf("TypeHistogram = %v", n.TypeHistogram)
	}
	if len(c.ContentHash) != 64 {
		t.Errorf("ContentHash = %q", c.ContentHash)
	}
}

func TestParse_Malformed(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"not json", `{"id": "x", `},
		{"missing id", `{"name": "A", "node": {"type": "FRAME"}}`},
		{"missing name", `{"id": "a", "node": {"type": "FRAME"}}`},
		{"missing node", `{"id": "a", "name": "A"}`},
		{"negative size", `{"id": "a", "name": "A", "node": {"type": "FRAME", "width": -1}}`},
		{"wrong type", `{"id": "a", "name": 7, "node": {}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(Input{ID: "a", Raw: []byte(tt.raw)})
			var pe *ParseError
			if !errors.As(err, &pe) {
				t.Fatalf("err = %v, want *ParseError", err)
			}
			if pe.ComponentID != "a" {
				t.Errorf("ComponentID = %q, want a", pe.ComponentID)
			}
		})
	}
}

func TestContentHash_Canonical(t *testing.T) {
	a, err := ContentHash([]byte(`{"b": 1, "a": [1, 2]}`))
	if err != nil {
		t.Fatalf("ContentHash: %v", err)
	}
	b, _ := ContentHash([]byte("{\n  \"a\": [1,2],\n  \"b\": 1\n}"))
	if a != b {
		t.Error("hash depends on key order or whitespace")
	}
	c, _ := ContentHash([]byte(`{"a": [2, 1], "b": 1}`))
	if a == c {
		t.Error("different content hashed equal")
	}
}

func TestWalk_VisitsAll(t *testing.T) {
	inputs, _ := Decode([]byte(buttonJSON), "")
	c, _ := Parse(inputs[0])
	var names []string
	Walk(c.Record.Node, func(n *Node) { names = append(names, n.Name) })
	if len(names) != 3 || names[2] != "icon/arrow-right" {
		t.Errorf("visited %v", names)
	}
}
