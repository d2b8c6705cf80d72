// Package api exposes the component library, matching and generation over
// HTTP and MCP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/kalambet/designgen/internal/design"
	"github.com/kalambet/designgen/internal/library"
	"github.com/kalambet/designgen/internal/matching"
	"github.com/kalambet/designgen/internal/pipeline"
	"github.com/kalambet/designgen/internal/storage"
)

const maxRequestBodySize = 10 << 20 // 10MB

// Runner executes the generation pipeline. *pipeline.Orchestrator
// implements it.
type Runner interface {
	RunBatch(ctx context.Context, inputs []design.Input) pipeline.BatchSummary
}

// Deps are shared by the HTTP handler and the MCP server. Runner may be nil,
// in which case generation requests are refused.
type Deps struct {
	Store   *storage.Store
	Scorer  *matching.Scorer
	Indexer *library.Indexer
	Runner  Runner
	Token   string
}

// NewHandler returns the HTTP API. /health is served without authentication.
func NewHandler(deps Deps) http.Handler {
	r := chi.NewRouter()
	r.Get("/health", handleHealth(deps))

	r.Group(func(r chi.Router) {
		r.Use(BearerAuth(deps.Token))
		r.Get("/components", handleListComponents(deps))
		r.Post("/components", handleIndexComponents(deps))
		r.Get("/components/{id}", handleGetComponent(deps))
		r.Delete("/components/{id}", handleDeleteComponent(deps))
		r.Post("/match", handleMatch(deps))
		r.Post("/generate", handleGenerate(deps))
		r.Get("/runs", handleListRuns(deps))
	})
	return r
}

func handleHealth(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		n, err := deps.Store.CountComponents(r.Context())
		if err != nil {
			httpError(w, http.StatusServiceUnavailable, "api_error", "store unavailable: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "components": n})
	}
}

// ComponentView is the API representation of a stored component.
type ComponentView struct {
	ID          string                   `json:"id"`
	BaseID      string                   `json:"base_id"`
	Version     int                      `json:"version"`
	Name        string                   `json:"name"`
	Type        string                   `json:"type"`
	SourcePath  string                   `json:"source_path,omitempty"`
	ContentHash string                   `json:"content_hash"`
	CreatedAt   time.Time                `json:"created_at"`
	Metadata    map[string]any           `json:"metadata,omitempty"`
	Embeddings  map[string]EmbeddingView `json:"embeddings,omitempty"`
}

// EmbeddingView describes one attached vector without its values.
type EmbeddingView struct {
	Dimensions int    `json:"dimensions"`
	Model      string `json:"model"`
}

func componentView(c storage.Component) ComponentView {
	return ComponentView{
		ID:          c.ID,
		BaseID:      c.BaseID,
		Version:     c.Version,
		Name:        c.Name,
		Type:        c.ComponentType,
		SourcePath:  c.SourcePath,
		ContentHash: c.ContentHash,
		CreatedAt:   c.CreatedAt,
		Metadata:    c.Metadata,
	}
}

func listComponents(ctx context.Context, store *storage.Store, typ string, limit int) ([]ComponentView, error) {
	comps, err := store.ListComponents(ctx, storage.ListFilter{Type: typ, Limit: limit})
	if err != nil {
		return nil, err
	}
	out := make([]ComponentView, len(comps))
	for i, c := range comps {
		out[i] = componentView(c)
		// Listings stay small; code is served by the detail endpoint.
		delete(out[i].Metadata, library.MetaCode)
	}
	return out, nil
}

func handleListComponents(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := parseIntParam(r, "limit", 100, 1000)
		out, err := listComponents(r.Context(), deps.Store, r.URL.Query().Get("type"), limit)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list components: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, out)
	}
}

func handleGetComponent(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		c, err := deps.Store.GetComponent(r.Context(), id)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "component not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to get component: %v", err)
			return
		}
		embs, err := deps.Store.GetEmbeddings(r.Context(), id)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to get embeddings: %v", err)
			return
		}
		v := componentView(c)
		v.Embeddings = make(map[string]EmbeddingView, len(embs))
		for kind, e := range embs {
			v.Embeddings[string(kind)] = EmbeddingView{Dimensions: e.Dimensions, Model: e.ModelName}
		}
		writeJSON(w, http.StatusOK, v)
	}
}

func handleDeleteComponent(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		err := deps.Store.DeleteComponent(r.Context(), id)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "component not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to delete component: %v", err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// readInputs decodes a body holding one component record or an array of them.
func readInputs(w http.ResponseWriter, r *http.Request, source string) ([]design.Input, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	defer r.Body.Close()
	body, err := io.ReadAll(r.Body)
	if err != nil {
		httpError(w, http.StatusRequestEntityTooLarge, "invalid_request_error", "reading body: %v", err)
		return nil, false
	}
	inputs, err := design.Decode(body, source)
	if err != nil {
		httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
		return nil, false
	}
	return inputs, true
}

type indexResponse struct {
	Indexed  []library.Indexed `json:"indexed"`
	Failures []library.Failure `json:"failures"`
}

func handleIndexComponents(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		inputs, ok := readInputs(w, r, "api")
		if !ok {
			return
		}
		indexed, failures, err := deps.Indexer.IndexInputs(r.Context(), inputs)
		if err != nil {
			httpError(w, http.StatusBadGateway, "api_error", "indexing failed: %v", err)
			return
		}
		if indexed == nil {
			indexed = []library.Indexed{}
		}
		if failures == nil {
			failures = []library.Failure{}
		}
		writeJSON(w, http.StatusOK, indexResponse{Indexed: indexed, Failures: failures})
	}
}

// MatchRequest is a raw embeddings query.
type MatchRequest struct {
	Semantic   []float32 `json:"semantic"`
	Visual     []float32 `json:"visual,omitempty"`
	ExcludeIDs []string  `json:"exclude_ids,omitempty"`
	Limit      int       `json:"limit,omitempty"`
}

func handleMatch(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req MatchRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if len(req.Semantic) == 0 {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "semantic embedding is required")
			return
		}
		rep, err := deps.Scorer.Match(r.Context(), matching.Query{
			Semantic:   req.Semantic,
			Visual:     req.Visual,
			ExcludeIDs: req.ExcludeIDs,
			Limit:      req.Limit,
		})
		var dm *storage.DimensionMismatchError
		if errors.As(err, &dm) {
			httpError(w, http.StatusUnprocessableEntity, "dimension_mismatch", "%v", err)
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "match failed: %v", err)
			return
		}
		if rep.Results == nil {
			rep.Results = []matching.Result{}
		}
		writeJSON(w, http.StatusOK, rep)
	}
}

// GenerateResponse is the batch summary plus the full result of every
// component in input order.
type GenerateResponse struct {
	pipeline.BatchSummary
	Results []pipeline.Result `json:"results"`
}

func newGenerateResponse(sum pipeline.BatchSummary) GenerateResponse {
	resp := GenerateResponse{BatchSummary: sum, Results: make([]pipeline.Result, len(sum.Outcomes))}
	for i, oc := range sum.Outcomes {
		resp.Results[i] = oc.Result
	}
	return resp
}

func handleGenerate(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if deps.Runner == nil {
			httpError(w, http.StatusServiceUnavailable, "api_error", "generation is not configured")
			return
		}
		inputs, ok := readInputs(w, r, "api")
		if !ok {
			return
		}
		sum := deps.Runner.RunBatch(r.Context(), inputs)
		writeJSON(w, http.StatusOK, newGenerateResponse(sum))
	}
}

// RunView is one persisted batch.
type RunView struct {
	ID         string          `json:"id"`
	StartedAt  time.Time       `json:"started_at"`
	FinishedAt time.Time       `json:"finished_at"`
	Total      int             `json:"total"`
	Succeeded  int             `json:"succeeded"`
	Failed     int             `json:"failed"`
	CacheHits  int             `json:"cache_hits"`
	Summary    json.RawMessage `json:"summary,omitempty"`
}

func handleListRuns(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		runs, err := deps.Store.RecentRuns(r.Context(), parseIntParam(r, "limit", 20, 100))
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list runs: %v", err)
			return
		}
		out := make([]RunView, len(runs))
		for i, run := range runs {
			out[i] = RunView{
				ID:         run.ID,
				StartedAt:  run.StartedAt,
				FinishedAt: run.FinishedAt,
				Total:      run.Total,
				Succeeded:  run.Succeeded,
				Failed:     run.Failed,
				CacheHits:  run.CacheHits,
			}
			if json.Valid([]byte(run.SummaryJSON)) {
				out[i].Summary = json.RawMessage(run.SummaryJSON)
			}
		}
		writeJSON(w, http.StatusOK, out)
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	writeJSON(w, code, map[string]any{
		"error": map[string]any{
			"message": fmt.Sprintf(format, args...),
			"type":    errType,
		},
	})
}

func parseIntParam(r *http.Request, key string, defaultVal, maxVal int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil || v <= 0 {
		return defaultVal
	}
	if maxVal > 0 && v > maxVal {
		return maxVal
	}
	return v
}
