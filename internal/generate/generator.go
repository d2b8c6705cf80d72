// Package generate turns a mapped component into source code by prompting a
// language model, optionally with a matched library component as reference.
package generate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"github.com/kalambet/designgen/internal/engine"
	"github.com/kalambet/designgen/internal/proxy"
)

// Completion is one model reply.
type Completion struct {
	Content string
	Model   string
}

// Completer sends a system+user prompt to a model.
type Completer interface {
	Complete(ctx context.Context, system, user string) (Completion, error)
}

// OpenRouter completes through the OpenRouter API.
type OpenRouter struct {
	Client *proxy.Client
	Model  string
}

func (o *OpenRouter) Complete(ctx context.Context, system, user string) (Completion, error) {
	temp := 0.2
	content, model, err := o.Client.Complete(ctx, proxy.ChatRequest{
		Model:       o.Model,
		Messages:    proxy.Messages(system, user),
		Temperature: &temp,
	})
	if err != nil {
		return Completion{}, err
	}
	return Completion{Content: content, Model: model}, nil
}

// Local completes on the local inference engine.
type Local struct {
	Engine engine.Engine
	Model  string
}

func (l *Local) Complete(ctx context.Context, system, user string) (Completion, error) {
	content, err := l.Engine.Chat(ctx, l.Model, []engine.Message{
		{Role: "system", Content: system},
		{Role: "user", Content: user},
	}, nil)
	if err != nil {
		return Completion{}, err
	}
	return Completion{Content: content, Model: l.Model}, nil
}

// Output is the result of one generation.
type Output struct {
	Code     string        `json:"-"`
	Model    string        `json:"model"`
	Prompt   string        `json:"-"`
	Duration time.Duration `json:"duration"`
	UsedHint bool          `json:"used_hint"`
}

// Generator paces completions through a shared token bucket so that parallel
// component runs respect the provider's request budget.
type Generator struct {
	completer Completer
	composer  *Composer
	limiter   *rate.Limiter
}

// PacingError is returned when the next generation slot opens only after the
// caller's deadline. A later attempt gets a fresh deadline, so it is
// transient.
type PacingError struct {
	Err error
}

func (e *PacingError) Error() string { return "waiting for generation slot: " + e.Err.Error() }

func (e *PacingError) Unwrap() error { return e.Err }

// Transient reports true.
func (e *PacingError) Transient() bool { return true }

// NewGenerator creates a Generator. requestsPerMinute <= 0 disables pacing.
func NewGenerator(c Completer, composer *Composer, requestsPerMinute int) *Generator {
	lim := rate.NewLimiter(rate.Inf, 1)
	if requestsPerMinute > 0 {
		lim = rate.NewLimiter(rate.Every(time.Minute/time.Duration(requestsPerMinute)), 1)
	}
	if composer == nil {
		composer = NewComposer(0)
	}
	return &Generator{completer: c, composer: composer, limiter: lim}
}

// Generate produces code for s. Completer errors are returned unwrapped in
// the chain so callers can classify them.
func (g *Generator) Generate(ctx context.Context, s Spec) (Output, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			return Output{}, fmt.Errorf("waiting for generation slot: %w", err)
		}
		return Output{}, &PacingError{Err: err}
	}

	prompt := g.composer.Compose(s)
	start := time.Now()
	comp, err := g.completer.Complete(ctx, g.composer.System(), prompt)
	if err != nil {
		return Output{}, fmt.Errorf("generating %s: %w", s.Name, err)
	}
	code, err := ExtractCode(comp.Content)
	if err != nil {
		return Output{}, fmt.Errorf("generating %s: %w", s.Name, err)
	}

	out := Output{
		Code:     code,
		Model:    comp.Model,
		Prompt:   prompt,
		Duration: time.Since(start),
		UsedHint: s.Hint != nil && (s.Hint.Tier == "exact" || s.Hint.Tier == "similar"),
	}
	slog.Debug("component generated", "component", s.Name, "model", out.Model, "duration", out.Duration, "used_hint", out.UsedHint)
	return out, nil
}
