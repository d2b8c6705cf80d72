package output

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func testArtifacts() Artifacts {
	return Artifacts{
		Name: "Primary Button",
		Type: "button",
		Code: "export function PrimaryButton() { return null; }\n",
		Metadata: Metadata{
			ComponentID:     "btn-1",
			Classification:  "button",
			TargetSchema:    "Button",
			MatchConfidence: 0.7,
			MatchTier:       "none",
			GenerationModel: "test-model",
			Timestamp:       time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		},
		Validation: Validation{Passed: true, MatchTier: "none"},
	}
}

func TestWrite_Subdirectories(t *testing.T) {
	dir := t.TempDir()
	p, err := NewWriter(dir, true).Write(testArtifacts())
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	want := filepath.Join(dir, "button", "PrimaryButton", "PrimaryButton.tsx")
	if p.Code != want {
		t.Errorf("Code path = %s, want %s", p.Code, want)
	}

	var meta Metadata
	b, err := os.ReadFile(p.Metadata)
	if err != nil {
		t.Fatalf("reading metadata: %v", err)
	}
	if err := json.Unmarshal(b, &meta); err != nil {
		t.Fatalf("decoding metadata: %v", err)
	}
	if meta.ComponentID != "btn-1" || meta.GenerationModel != "test-model" {
		t.Errorf("metadata = %+v", meta)
	}

	var val map[string]any
	b, _ = os.ReadFile(p.Validation)
	json.Unmarshal(b, &val)
	if w, ok := val["warnings"].([]any); !ok || len(w) != 0 {
		t.Errorf("warnings = %#v, want empty list", val["warnings"])
	}

	entries, _ := os.ReadDir(filepath.Dir(p.Code))
	if len(entries) != 3 {
		t.Errorf("found %d files, want 3 (temp files left behind?)", len(entries))
	}
}

func TestWrite_Flat(t *testing.T) {
	dir := t.TempDir()
	p, err := NewWriter(dir, false).Write(testArtifacts())
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	if filepath.Dir(p.Code) != dir {
		t.Errorf("code written to %s, want %s", p.Code, dir)
	}
}

func TestWrite_IOError(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "blocker")
	if err := os.WriteFile(blocker, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	_, err := NewWriter(blocker, true).Write(testArtifacts())
	var ioErr *IOError
	if !errors.As(err, &ioErr) {
		t.Fatalf("err = %v, want *IOError", err)
	}
	if ioErr.Op != "mkdir" {
		t.Errorf("Op = %s, want mkdir", ioErr.Op)
	}
}

func TestWrite_SameNameDifferentComponents(t *testing.T) {
	for _, subdirs := range []bool{true, false} {
		dir := t.TempDir()
		w := NewWriter(dir, subdirs)

		first := testArtifacts()
		second := testArtifacts()
		second.Metadata.ComponentID = "btn-2"
		second.Code = "export function PrimaryButton() { return <b />; }\n"

		p1, err := w.Write(first)
		if err != nil {
			t.Fatalf("Write(first): %v", err)
		}
		p2, err := w.Write(second)
		if err != nil {
			t.Fatalf("Write(second): %v", err)
		}
		if p1.Code == p2.Code || p1.Metadata == p2.Metadata || p1.Validation == p2.Validation {
			t.Fatalf("subdirs=%v: components share paths %+v", subdirs, p1)
		}
		if b, _ := os.ReadFile(p1.Code); string(b) != first.Code {
			t.Errorf("subdirs=%v: first code overwritten: %q", subdirs, b)
		}

		// Rewriting a component reuses its own paths.
		again, err := w.Write(second)
		if err != nil || again != p2 {
			t.Errorf("subdirs=%v: rewrite = %+v, %v; want %+v", subdirs, again, err, p2)
		}

		// A fresh writer over the same directory keeps the same placement.
		p2b, err := NewWriter(dir, subdirs).Write(second)
		if err != nil || p2b != p2 {
			t.Errorf("subdirs=%v: new writer = %+v, %v; want %+v", subdirs, p2b, err, p2)
		}
	}
}

func TestWriteSummary(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested")
	path, err := NewWriter(dir, true).WriteSummary(map[string]int{"total": 3})
	if err != nil {
		t.Fatalf("WriteSummary: %v", err)
	}
	b, _ := os.ReadFile(path)
	if string(b) != "{\n  \"total\": 3\n}\n" {
		t.Errorf("summary = %q", b)
	}
}

func TestSanitize(t *testing.T) {
	for in, want := range map[string]string{"Button": "button", "nav bar": "nav-bar", "": "misc", "a/b": "a-b"} {
		if got := sanitize(in); got != want {
			t.Errorf("sanitize(%q) = %q, want %q", in, got, want)
		}
	}
}
