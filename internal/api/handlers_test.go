package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/kalambet/designgen/internal/classify"
	"github.com/kalambet/designgen/internal/design"
	"github.com/kalambet/designgen/internal/icons"
	"github.com/kalambet/designgen/internal/library"
	"github.com/kalambet/designgen/internal/matching"
	"github.com/kalambet/designgen/internal/pipeline"
	"github.com/kalambet/designgen/internal/storage"
)

const testToken = "test-token-12345"

const buttonJSON = `{"id":"btn","name":"PrimaryButton","type":"COMPONENT","embeddings":{"semantic":[1,0,0]},"node":{"name":"PrimaryButton","type":"FRAME","width":120,"height":40,"children":[{"name":"Label","type":"TEXT","characters":"Go"}]}}`
const cardJSON = `{"id":"card","name":"ProductCard","type":"COMPONENT","embeddings":{"semantic":[0,1,0]},"node":{"name":"ProductCard","type":"FRAME","width":300,"height":200}}`

type fakeRunner struct {
	calls [][]design.Input
}

func (f *fakeRunner) RunBatch(_ context.Context, inputs []design.Input) pipeline.BatchSummary {
	f.calls = append(f.calls, inputs)
	sum := pipeline.BatchSummary{RunID: "run-1", Total: len(inputs), StartedAt: time.Now()}
	for _, in := range inputs {
		r := pipeline.Result{ComponentID: in.ID, Success: true, Code: "export function X() {}"}
		sum.Outcomes = append(sum.Outcomes, pipeline.Outcome{Result: r})
		sum.Components = append(sum.Components, pipeline.ComponentSummary{ComponentID: in.ID, Success: true})
		sum.Succeeded++
	}
	return sum
}

func newTestDeps(t *testing.T) (Deps, *fakeRunner) {
	t.Helper()
	store, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	cls, err := classify.Default()
	if err != nil {
		t.Fatal(err)
	}
	m, err := icons.Default()
	if err != nil {
		t.Fatal(err)
	}
	scorer, err := matching.NewScorer(store, matching.DefaultWeights(), matching.DefaultThresholds(), 10)
	if err != nil {
		t.Fatal(err)
	}
	runner := &fakeRunner{}
	return Deps{
		Store:   store,
		Scorer:  scorer,
		Indexer: library.New(store, nil, cls, m),
		Runner:  runner,
		Token:   testToken,
	}, runner
}

func seedLibrary(t *testing.T, deps Deps) {
	t.Helper()
	inputs, err := design.Decode([]byte("["+buttonJSON+","+cardJSON+"]"), "seed.json")
	if err != nil {
		t.Fatal(err)
	}
	if _, failures, err := deps.Indexer.IndexInputs(context.Background(), inputs); err != nil || len(failures) > 0 {
		t.Fatalf("seeding: %v %v", failures, err)
	}
}

func authReq(method, url, body, token string) *http.Request {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, url, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req
}

func serve(h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealth_NoAuth(t *testing.T) {
	deps, _ := newTestDeps(t)
	rec := serve(NewHandler(deps), httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}
	var body map[string]any
	json.Unmarshal(rec.Body.Bytes(), &body)
	if body["status"] != "ok" {
		t.Errorf("body = %v", body)
	}
}

func TestAuth_Required(t *testing.T) {
	deps, _ := newTestDeps(t)
	h := NewHandler(deps)
	for _, token := range []string{"", "wrong"} {
		rec := serve(h, authReq(http.MethodGet, "/components", "", token))
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("token %q: status = %d, want 401", token, rec.Code)
		}
	}
}

func TestAuth_DisabledWithoutToken(t *testing.T) {
	deps, _ := newTestDeps(t)
	deps.Token = ""
	rec := serve(NewHandler(deps), authReq(http.MethodGet, "/components", "", ""))
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
}

func TestComponents_IndexListGetDelete(t *testing.T) {
	deps, _ := newTestDeps(t)
	h := NewHandler(deps)

	rec := serve(h, authReq(http.MethodPost, "/components", "["+buttonJSON+","+cardJSON+"]", testToken))
	if rec.Code != http.StatusOK {
		t.Fatalf("index status = %d, body %s", rec.Code, rec.Body)
	}
	var idx indexResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &idx); err != nil {
		t.Fatal(err)
	}
	if len(idx.Indexed) != 2 || idx.Indexed[0].ID != "btn@v1" || len(idx.Failures) != 0 {
		t.Fatalf("index response = %+v", idx)
	}

	rec = serve(h, authReq(http.MethodGet, "/components?limit=1", "", testToken))
	var list []ComponentView
	json.Unmarshal(rec.Body.Bytes(), &list)
	if len(list) != 1 || list[0].ID != "btn@v1" {
		t.Errorf("list = %+v", list)
	}

	rec = serve(h, authReq(http.MethodGet, "/components/card@v1", "", testToken))
	if rec.Code != http.StatusOK {
		t.Fatalf("get status = %d", rec.Code)
	}
	var got ComponentView
	json.Unmarshal(rec.Body.Bytes(), &got)
	if got.Name != "ProductCard" || got.Embeddings["semantic"].Dimensions != 3 {
		t.Errorf("component = %+v", got)
	}

	rec = serve(h, authReq(http.MethodDelete, "/components/card@v1", "", testToken))
	if rec.Code != http.StatusNoContent {
		t.Errorf("delete status = %d", rec.Code)
	}
	rec = serve(h, authReq(http.MethodGet, "/components/card@v1", "", testToken))
	if rec.Code != http.StatusNotFound {
		t.Errorf("get after delete status = %d, want 404", rec.Code)
	}
	rec = serve(h, authReq(http.MethodDelete, "/components/card@v1", "", testToken))
	if rec.Code != http.StatusNotFound {
		t.Errorf("second delete status = %d, want 404", rec.Code)
	}
}

func TestComponents_IndexRejectsBadBody(t *testing.T) {
	deps, _ := newTestDeps(t)
	rec := serve(NewHandler(deps), authReq(http.MethodPost, "/components", `"just a string"`, testToken))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestMatch(t *testing.T) {
	deps, _ := newTestDeps(t)
	seedLibrary(t, deps)
	h := NewHandler(deps)

	rec := serve(h, authReq(http.MethodPost, "/match", `{"semantic":[1,0,0],"limit":1}`, testToken))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}
	var rep matching.Report
	json.Unmarshal(rec.Body.Bytes(), &rep)
	if rep.Top == nil || rep.Top.ComponentID != "btn@v1" || len(rep.Results) != 1 {
		t.Errorf("report = %+v", rep)
	}

	rec = serve(h, authReq(http.MethodPost, "/match", `{"semantic":[1,0]}`, testToken))
	if rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("mismatched dims status = %d, want 422", rec.Code)
	}

	rec = serve(h, authReq(http.MethodPost, "/match", `{}`, testToken))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("empty query status = %d, want 400", rec.Code)
	}
}

func TestGenerate(t *testing.T) {
	deps, runner := newTestDeps(t)
	rec := serve(NewHandler(deps), authReq(http.MethodPost, "/generate", buttonJSON, testToken))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}
	if len(runner.calls) != 1 || len(runner.calls[0]) != 1 || runner.calls[0][0].ID != "btn" {
		t.Fatalf("runner calls = %+v", runner.calls)
	}
	var resp GenerateResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.RunID != "run-1" || resp.Succeeded != 1 || len(resp.Results) != 1 || resp.Results[0].Code == "" {
		t.Errorf("response = %+v", resp)
	}
}

func TestGenerate_NotConfigured(t *testing.T) {
	deps, _ := newTestDeps(t)
	deps.Runner = nil
	rec := serve(NewHandler(deps), authReq(http.MethodPost, "/generate", buttonJSON, testToken))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}
}

func TestRuns(t *testing.T) {
	deps, _ := newTestDeps(t)
	now := time.Now().UTC()
	err := deps.Store.SaveRun(context.Background(), storage.Run{
		ID: "r1", StartedAt: now, FinishedAt: now, Total: 2, Succeeded: 1, Failed: 1,
		SummaryJSON: `{"run_id":"r1"}`,
	})
	if err != nil {
		t.Fatal(err)
	}
	rec := serve(NewHandler(deps), authReq(http.MethodGet, "/runs", "", testToken))
	var runs []RunView
	json.Unmarshal(rec.Body.Bytes(), &runs)
	if len(runs) != 1 || runs[0].ID != "r1" || runs[0].Failed != 1 || string(runs[0].Summary) != `{"run_id":"r1"}` {
		t.Errorf("runs = %+v", runs)
	}
}

func TestParseIntParam(t *testing.T) {
	tests := []struct {
		query string
		want  int
	}{
		{"", 20},
		{"limit=5", 5},
		{"limit=-1", 20},
		{"limit=0", 20},
		{"limit=abc", 20},
		{"limit=500", 100},
	}
	for _, tt := range tests {
		r := httptest.NewRequest(http.MethodGet, "/runs?"+tt.query, nil)
		if got := parseIntParam(r, "limit", 20, 100); got != tt.want {
			t.Errorf("parseIntParam(%q) = %d, want %d", tt.query, got, tt.want)
		}
	}
}
