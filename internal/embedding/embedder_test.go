package embedding

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/kalambet/designgen/internal/engine"
)

type mockEngine struct {
	embedFn func(ctx context.Context, model string, text string) ([]float32, error)
}

func (m *mockEngine) Chat(context.Context, string, []engine.Message, *engine.Schema) (string, error) {
	return "", errors.New("not implemented")
}
func (m *mockEngine) Embed(ctx context.Context, model string, text string) ([]float32, error) {
	return m.embedFn(ctx, model, text)
}
func (m *mockEngine) IsRunning(context.Context) bool        { return true }
func (m *mockEngine) HasModel(context.Context, string) bool { return true }
func (m *mockEngine) PullModel(context.Context, string, func(engine.PullProgress)) error {
	return nil
}

func TestEmbed(t *testing.T) {
	e := New(&mockEngine{embedFn: func(_ context.Context, model, text string) ([]float32, error) {
		if model != "nomic-embed-text" {
			t.Errorf("model = %q", model)
		}
		return []float32{float32(len(text)), 1}, nil
	}}, "nomic-embed-text")

	vec, err := e.Embed(context.Background(), "abc")
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if vec[0] != 3 {
		t.Errorf("vec = %v", vec)
	}
	if e.Model() != "nomic-embed-text" {
		t.Errorf("Model() = %q", e.Model())
	}
}

func TestEmbed_Errors(t *testing.T) {
	boom := errors.New("connection refused")
	e := New(&mockEngine{embedFn: func(context.Context, string, string) ([]float32, error) { return nil, boom }}, "m")
	if _, err := e.Embed(context.Background(), "x"); !errors.Is(err, boom) {
		t.Errorf("err = %v, want wrapped engine error", err)
	}

	empty := New(&mockEngine{embedFn: func(context.Context, string, string) ([]float32, error) { return nil, nil }}, "m")
	if _, err := empty.Embed(context.Background(), "x"); err == nil {
		t.Error("empty vector accepted")
	}
}

func TestEmbedBatch_OrderAndConcurrency(t *testing.T) {
	var inFlight, peak atomic.Int32
	e := New(&mockEngine{embedFn: func(_ context.Context, _ string, text string) ([]float32, error) {
		n := inFlight.Add(1)
		defer inFlight.Add(-1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		return []float32{float32(len(text))}, nil
	}}, "m")

	texts := []string{"a", "bb", "ccc", "dddd", "eeeee", "ffffff", "ggggggg", "hhhhhhhh"}
	vecs, err := e.EmbedBatch(context.Background(), texts)
	if err != nil {
		t.Fatalf("EmbedBatch: %v", err)
	}
	for i, v := range vecs {
		if int(v[0]) != len(texts[i]) {
			t.Errorf("vecs[%d] = %v, want %d", i, v, len(texts[i]))
		}
	}
	if peak.Load() > batchConcurrency {
		t.Errorf("peak concurrency %d exceeds %d", peak.Load(), batchConcurrency)
	}
}

func TestEmbedBatch_FailsFast(t *testing.T) {
	e := New(&mockEngine{embedFn: func(_ context.Context, _ string, text string) ([]float32, error) {
		if strings.HasPrefix(text, "bad") {
			return nil, errors.New("model crashed")
		}
		return []float32{1}, nil
	}}, "m")
	if _, err := e.EmbedBatch(context.Background(), []string{"ok", "bad one", "ok"}); err == nil {
		t.Error("expected batch error")
	}
	if v, err := e.EmbedBatch(context.Background(), nil); v != nil || err != nil {
		t.Errorf("empty batch = %v, %v", v, err)
	}
}
