// Package design decodes component descriptions and normalizes their node
// trees into the measurements later pipeline stages work from.
package design

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Node is one element of a raw design tree.
type Node struct {
	ID         string  `json:"id"`
	Name       string  `json:"name"`
	Type       string  `json:"type"`
	Width      float64 `json:"width"`
	Height     float64 `json:"height"`
	Characters string  `json:"characters,omitempty"`
	Fills      []Fill  `json:"fills,omitempty"`
	Children   []Node  `json:"children,omitempty"`
}

// Fill is a paint applied to a node. Color is a hex string such as "#1E88E5".
type Fill struct {
	Type  string `json:"type"`
	Color string `json:"color,omitempty"`
}

// Embeddings optionally carries precomputed vectors for a record.
type Embeddings struct {
	Semantic []float32 `json:"semantic,omitempty"`
	Visual   []float32 `json:"visual,omitempty"`
}

// Record is one component description as supplied by the design exporter.
type Record struct {
	ID         string         `json:"id"`
	Name       string         `json:"name"`
	Type       string         `json:"type"`
	Properties map[string]any `json:"properties,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Node       *Node          `json:"node"`
	Embeddings *Embeddings    `json:"embeddings,omitempty"`
}

// Input is an undecoded record. Records are kept raw until the parse stage so
// that one malformed entry fails only its own pipeline run.
type Input struct {
	ID         string
	SourcePath string
	Raw        json.RawMessage
}

// ParseError reports a malformed component description.
type ParseError struct {
	ComponentID string
	Reason      string
	Err         error
}

func (e *ParseError) Error() string {
	msg := "parse error"
	if e.ComponentID != "" {
		msg += " in " + e.ComponentID
	}
	msg += ": " + e.Reason
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ParseError) Unwrap() error { return e.Err }

// Decode splits data into inputs. Both a single JSON object and an array of
// objects are accepted. Only the top-level shape is checked here.
func Decode(data []byte, sourcePath string) ([]Input, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, &ParseError{Reason: "empty input"}
	}

	var raws []json.RawMessage
	switch trimmed[0] {
	case '[':
		if err := json.Unmarshal(trimmed, &raws); err != nil {
			return nil, &ParseError{Reason: "invalid component array", Err: err}
		}
	case '{':
		raws = []json.RawMessage{json.RawMessage(trimmed)}
	default:
		return nil, &ParseError{Reason: "expected a JSON object or array"}
	}

	inputs := make([]Input, 0, len(raws))
	seen := make(map[string]int)
	for i, raw := range raws {
		var head struct {
			ID string `json:"id"`
		}
		// Errors surface in the parse stage.
		_ = json.Unmarshal(raw, &head)
		id := strings.TrimSpace(head.ID)
		if id == "" {
			id = fmt.Sprintf("component-%d", i+1)
		}
		seen[id]++
		if n := seen[id]; n > 1 {
			id = fmt.Sprintf("%s#%d", id, n)
		}
		inputs = append(inputs, Input{ID: id, SourcePath: sourcePath, Raw: raw})
	}
	return inputs, nil
}

// Parse decodes and validates one input.
func Parse(in Input) (*Component, error) {
	var rec Record
	dec := json.NewDecoder(bytes.NewReader(in.Raw))
	if err := dec.Decode(&rec); err != nil {
		return nil, &ParseError{ComponentID: in.ID, Reason: "invalid JSON", Err: err}
	}
	switch {
	case strings.TrimSpace(rec.ID) == "":
		return nil, &ParseError{ComponentID: in.ID, Reason: "missing id"}
	case strings.TrimSpace(rec.Name) == "":
		return nil, &ParseError{ComponentID: in.ID, Reason: "missing name"}
	case rec.Node == nil:
		return nil, &ParseError{ComponentID: in.ID, Reason: "missing node tree"}
	}
	if err := checkNode(rec.Node, 0); err != nil {
		return nil, &ParseError{ComponentID: in.ID, Reason: "invalid node tree", Err: err}
	}

	hash, err := ContentHash(in.Raw)
	if err != nil {
		return nil, &ParseError{ComponentID: in.ID, Reason: "hashing content", Err: err}
	}

	return &Component{
		Record:      rec,
		SourcePath:  in.SourcePath,
		ContentHash: hash,
		Normalized:  Normalize(rec.Node),
	}, nil
}

const maxDepth = 64

var errTooDeep = errors.New("node tree exceeds maximum depth")

func checkNode(n *Node, depth int) error {
	if depth > maxDepth {
		return errTooDeep
	}
	if n.Width < 0 || n.Height < 0 {
		return fmt.Errorf("node %q has negative size %vx%v", n.Name, n.Width, n.Height)
	}
	for i := range n.Children {
		if err := checkNode(&n.Children[i], depth+1); err != nil {
			return err
		}
	}
	return nil
}

// ContentHash returns the sha256 of the canonical JSON form of raw. Key order
// and whitespace do not affect the hash.
func ContentHash(raw []byte) (string, error) {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return "", err
	}
	canon, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(canon)
	return hex.EncodeToString(sum[:]), nil
}
