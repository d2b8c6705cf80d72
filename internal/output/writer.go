// Package output writes generated artifacts and batch summaries to disk.
// Every file is written to a temporary name and renamed into place, so a
// reader never observes a partial artifact.
package output

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/kalambet/designgen/internal/quality"
)

// IOError reports a failed filesystem operation on an artifact.
type IOError struct {
	Op   string
	Path string
	Err  error
}

func (e *IOError) Error() string { return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err) }

func (e *IOError) Unwrap() error { return e.Err }

// Metadata is the per-component metadata record.
type Metadata struct {
	ComponentID      string    `json:"component_id"`
	Name             string    `json:"name"`
	Classification   string    `json:"classification"`
	TargetSchema     string    `json:"target_schema"`
	MatchConfidence  float64   `json:"match_confidence"`
	MatchTier        string    `json:"match_tier"`
	MatchedComponent string    `json:"matched_component,omitempty"`
	GenerationModel  string    `json:"generation_model"`
	ContentHash      string    `json:"content_hash"`
	Timestamp        time.Time `json:"timestamp"`
}

// Validation is the per-component validation report.
type Validation struct {
	Checklist   quality.Checklist `json:"checklist"`
	Passed      bool              `json:"passed"`
	MatchTier   string            `json:"match_tier"`
	VisualScore *float64          `json:"visual_score,omitempty"`
	Warnings    []string          `json:"warnings"`
}

// Artifacts is everything written for one component.
type Artifacts struct {
	Name       string
	Type       string
	Code       string
	Metadata   Metadata
	Validation Validation
}

// Paths are the locations of written artifacts.
type Paths struct {
	Code       string `json:"code"`
	Metadata   string `json:"metadata"`
	Validation string `json:"validation"`
}

// Writer places artifacts under Dir. Components that share a name get
// their own location: the first one keeps the plain name, later ones are
// suffixed with their component id.
type Writer struct {
	Dir            string
	Subdirectories bool

	mu     sync.Mutex
	owners map[string]string // code path -> component id
}

// NewWriter returns a Writer rooted at dir. With subdirs, artifacts go to
// <dir>/<type>/<name>/.
func NewWriter(dir string, subdirs bool) *Writer {
	return &Writer{Dir: dir, Subdirectories: subdirs}
}

// Write persists a. All three files are written or an *IOError is returned.
func (w *Writer) Write(a Artifacts) (Paths, error) {
	p, err := w.reserve(a)
	if err != nil {
		return Paths{}, err
	}
	dir := filepath.Dir(p.Code)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Paths{}, &IOError{Op: "mkdir", Path: dir, Err: err}
	}

	if a.Validation.Warnings == nil {
		a.Validation.Warnings = []string{}
	}
	if err := writeAtomic(p.Code, []byte(a.Code)); err != nil {
		return Paths{}, err
	}
	if err := writeJSON(p.Metadata, a.Metadata); err != nil {
		return Paths{}, err
	}
	if err := writeJSON(p.Validation, a.Validation); err != nil {
		return Paths{}, err
	}
	return p, nil
}

// reserve picks the artifact paths for a and records them as owned by its
// component id for the lifetime of the writer.
func (w *Writer) reserve(a Artifacts) (Paths, error) {
	id := a.Metadata.ComponentID
	name := quality.ComponentName(a.Name)
	if name == "" {
		name = "Component"
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.owners == nil {
		w.owners = make(map[string]string)
	}

	p := w.paths(a.Type, name, "")
	if owner := w.owner(p); owner != "" && owner != id {
		p = w.paths(a.Type, name, sanitize(id))
		if owner := w.owner(p); owner != "" && owner != id {
			return Paths{}, &IOError{Op: "reserve", Path: p.Code, Err: fmt.Errorf("already written for component %s", owner)}
		}
	}
	w.owners[p.Code] = id
	return p, nil
}

func (w *Writer) paths(typ, name, suffix string) Paths {
	dir, base := w.Dir, name
	switch {
	case w.Subdirectories && suffix != "":
		dir = filepath.Join(dir, sanitize(typ), name+"-"+suffix)
	case w.Subdirectories:
		dir = filepath.Join(dir, sanitize(typ), name)
	case suffix != "":
		base = name + "-" + suffix
	}
	return Paths{
		Code:       filepath.Join(dir, base+".tsx"),
		Metadata:   filepath.Join(dir, base+".meta.json"),
		Validation: filepath.Join(dir, base+".validation.json"),
	}
}

// owner returns the component that holds p, from this writer's reservations
// or from metadata an earlier run left on disk.
func (w *Writer) owner(p Paths) string {
	if id, ok := w.owners[p.Code]; ok {
		return id
	}
	b, err := os.ReadFile(p.Metadata)
	if err != nil {
		return ""
	}
	var meta Metadata
	if json.Unmarshal(b, &meta) != nil {
		return ""
	}
	return meta.ComponentID
}

// WriteSummary writes v as <dir>/summary.json.
func (w *Writer) WriteSummary(v any) (string, error) {
	if err := os.MkdirAll(w.Dir, 0o755); err != nil {
		return "", &IOError{Op: "mkdir", Path: w.Dir, Err: err}
	}
	path := filepath.Join(w.Dir, "summary.json")
	return path, writeJSON(path, v)
}

func writeJSON(path string, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return &IOError{Op: "encode", Path: path, Err: err}
	}
	return writeAtomic(path, append(b, '\n'))
}

func writeAtomic(path string, data []byte) error {
	f, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return &IOError{Op: "create", Path: path, Err: err}
	}
	tmp := f.Name()
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmp)
		return &IOError{Op: "write", Path: path, Err: err}
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return &IOError{Op: "close", Path: path, Err: err}
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return &IOError{Op: "rename", Path: path, Err: err}
	}
	return nil
}

func sanitize(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '-' || r == '_' {
			return r
		}
		return '-'
	}, s)
	if s == "" {
		return "misc"
	}
	return s
}
