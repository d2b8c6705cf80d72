package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/kalambet/designgen/internal/config"
	"github.com/kalambet/designgen/internal/output"
	"github.com/kalambet/designgen/internal/pipeline"
	"github.com/kalambet/designgen/internal/proxy"
)

const buttonRecord = `{"id":"btn","name":"PrimaryButton","type":"COMPONENT","node":{"name":"PrimaryButton","type":"FRAME","width":120,"height":40,"children":[{"name":"Label","type":"TEXT","characters":"Go"}]}}`

const generatedReply = "```tsx\nexport function PrimaryButton() {\n  return <button type=\"button\">Go</button>;\n}\n```"

// newFakeOllama answers the endpoints the CLI uses: model listing, chat and
// embeddings.
func newFakeOllama(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/api/tags":
			w.Write([]byte(`{"models":[{"name":"nomic-embed-text:latest"},{"name":"qwen2.5-coder:latest"}]}`))
		case "/api/embed":
			w.Write([]byte(`{"embeddings":[[0.1,0.2,0.3]]}`))
		case "/api/chat":
			json.NewEncoder(w).Encode(map[string]any{"message": map[string]string{"role": "assistant", "content": generatedReply}})
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

// writeConfig writes a config file pointing storage and output into a temp
// dir and returns its path.
func writeConfig(t *testing.T, values map[string]any) string {
	t.Helper()
	dir := t.TempDir()
	cfg := map[string]any{
		"storage.data_dir":               filepath.Join(dir, "data"),
		"output.dir":                     filepath.Join(dir, "out"),
		"generation.provider":            "ollama",
		"generation.model":               "qwen2.5-coder",
		"generation.requests_per_minute": 0,
		"pipeline.retry_delay_ms":        0,
		"log.level":                      "error",
	}
	for k, v := range values {
		cfg[k] = v
	}
	b, err := json.Marshal(cfg)
	if err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(dir, "config.json")
	if err := os.WriteFile(path, b, 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func writeInput(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "components.json")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

// execute runs the root command with args and returns stdout.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs(args)
	defer func() {
		rootCmd.SetArgs(nil)
		rootCmd.SetOut(nil)
		resetFlags(rootCmd)
	}()
	err := rootCmd.Execute()
	return out.String(), err
}

// resetFlags restores every flag to its default so state does not leak
// between executions of the shared command tree.
func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		f.Value.Set(f.DefValue)
		f.Changed = false
	}
	cmd.Flags().VisitAll(reset)
	cmd.PersistentFlags().VisitAll(reset)
	for _, c := range cmd.Commands() {
		resetFlags(c)
	}
}

func findFiles(t *testing.T, root, suffix string) []string {
	t.Helper()
	var found []string
	filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err == nil && !d.IsDir() && strings.HasSuffix(path, suffix) {
			found = append(found, path)
		}
		return nil
	})
	return found
}

func TestGenerateCommand_EndToEnd(t *testing.T) {
	ollama := newFakeOllama(t)
	cfgPath := writeConfig(t, map[string]any{"ollama.base_url": ollama.URL})
	input := writeInput(t, buttonRecord)
	outDir := filepath.Join(filepath.Dir(cfgPath), "out")

	if _, err := execute(t, "--config", cfgPath, "--no-color", "generate", input); err != nil {
		t.Fatalf("generate: %v", err)
	}
	code := findFiles(t, outDir, "PrimaryButton.tsx")
	if len(code) != 1 {
		t.Fatalf("generated files = %v", code)
	}
	b, _ := os.ReadFile(code[0])
	if !strings.Contains(string(b), "export function PrimaryButton") {
		t.Errorf("code = %q", b)
	}
	if len(findFiles(t, outDir, "summary.json")) != 1 {
		t.Error("summary.json not written")
	}

	// Auto-indexing added the generated component to the library.
	out, err := execute(t, "--config", cfgPath, "library", "list")
	if err != nil {
		t.Fatalf("library list: %v", err)
	}
	if !strings.Contains(out, "btn@v1") || !strings.Contains(out, "PrimaryButton") {
		t.Errorf("library list output:\n%s", out)
	}
}

func TestGenerateCommand_FailedComponentFailsCommand(t *testing.T) {
	ollama := newFakeOllama(t)
	cfgPath := writeConfig(t, map[string]any{"ollama.base_url": ollama.URL})
	input := writeInput(t, `[`+buttonRecord+`,{"id":"broken","name":"Broken"}]`)

	_, err := execute(t, "--config", cfgPath, "generate", input, "--no-cache")
	if err == nil || !strings.Contains(err.Error(), "1 of 2 components failed") {
		t.Errorf("err = %v, want one failed component", err)
	}
}

func TestGenerateCommand_InvalidConfig(t *testing.T) {
	cfgPath := writeConfig(t, map[string]any{"pipeline.concurrency": 0, "generation.provider": "carrier-pigeon"})
	input := writeInput(t, buttonRecord)

	_, err := execute(t, "--config", cfgPath, "generate", input)
	var ce *config.ConfigurationError
	if !errors.As(err, &ce) {
		t.Fatalf("err = %v, want *config.ConfigurationError", err)
	}
}

func TestGenerateCommand_MissingInput(t *testing.T) {
	cfgPath := writeConfig(t, nil)
	_, err := execute(t, "--config", cfgPath, "generate", filepath.Join(t.TempDir(), "nope.json"))
	var ioErr *output.IOError
	if !errors.As(err, &ioErr) {
		t.Errorf("err = %v, want *output.IOError", err)
	}
}

func TestLibraryCommands_PrecomputedWithoutEngine(t *testing.T) {
	// A closed server stands in for an engine that is not running.
	down := httptest.NewServer(http.NotFoundHandler())
	down.Close()
	cfgPath := writeConfig(t, map[string]any{"ollama.base_url": down.URL})

	records := `[
		{"id":"btn","name":"PrimaryButton","type":"COMPONENT","embeddings":{"semantic":[1,0,0]},"node":{"name":"PrimaryButton","type":"FRAME","width":120,"height":40}},
		{"id":"card","name":"ProductCard","type":"COMPONENT","embeddings":{"semantic":[0,1,0]},"node":{"name":"ProductCard","type":"FRAME","width":300,"height":200}}
	]`
	if _, err := execute(t, "--config", cfgPath, "library", "index", writeInput(t, records)); err != nil {
		t.Fatalf("library index: %v", err)
	}

	out, err := execute(t, "--config", cfgPath, "library", "show", "card@v1")
	if err != nil {
		t.Fatalf("library show: %v", err)
	}
	var shown map[string]any
	if err := json.Unmarshal([]byte(out), &shown); err != nil {
		t.Fatalf("show output is not JSON: %v\n%s", err, out)
	}
	if shown["name"] != "ProductCard" {
		t.Errorf("shown = %v", shown)
	}

	query := `{"id":"query","name":"CTA","type":"COMPONENT","embeddings":{"semantic":[1,0,0]},"node":{"name":"CTA","type":"FRAME","width":120,"height":40}}`
	out, err = execute(t, "--config", cfgPath, "library", "search", writeInput(t, query), "--json")
	if err != nil {
		t.Fatalf("library search: %v", err)
	}
	var reports map[string]struct {
		Top *struct {
			ComponentID string `json:"component_id"`
		} `json:"top"`
	}
	if err := json.Unmarshal([]byte(out), &reports); err != nil {
		t.Fatalf("search output: %v\n%s", err, out)
	}
	if top := reports["query"].Top; top == nil || top.ComponentID != "btn@v1" {
		t.Errorf("reports = %s", out)
	}

	if _, err := execute(t, "--config", cfgPath, "library", "remove", "btn@v1"); err != nil {
		t.Fatalf("library remove: %v", err)
	}
	if _, err := execute(t, "--config", cfgPath, "library", "remove", "btn@v1"); err == nil {
		t.Error("removing twice should fail")
	}
}

func TestInitAndConfigCommands(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	if _, err := execute(t, "init", "--path", path); err != nil {
		t.Fatalf("init: %v", err)
	}
	if _, err := execute(t, "init", "--path", path); !errors.Is(err, config.ErrExists) {
		t.Errorf("second init err = %v, want ErrExists", err)
	}
	if _, err := execute(t, "init", "--path", path, "--force"); err != nil {
		t.Errorf("init --force: %v", err)
	}

	if _, err := execute(t, "--config", path, "config", "set", "pipeline.concurrency", "6"); err != nil {
		t.Fatalf("config set: %v", err)
	}
	out, err := execute(t, "--config", path, "config", "show")
	if err != nil {
		t.Fatalf("config show: %v", err)
	}
	var found bool
	for _, line := range strings.Split(out, "\n") {
		if strings.HasPrefix(line, "pipeline.concurrency") && strings.Contains(line, "= 6") {
			found = true
		}
	}
	if !found {
		t.Errorf("config show output:\n%s", out)
	}

	if _, err := execute(t, "--config", path, "config", "set", "pipeline.concurrency", "many"); err == nil {
		t.Error("expected error for non-integer value")
	}
}

func TestValidateConfigCommand(t *testing.T) {
	good := writeConfig(t, nil)
	if _, err := execute(t, "--config", good, "validate-config"); err != nil {
		t.Errorf("valid config: %v", err)
	}
	bad := writeConfig(t, map[string]any{"server.port": 0, "matching.max_candidates": 0})
	_, err := execute(t, "--config", bad, "validate-config")
	if err == nil || !strings.Contains(err.Error(), "2 configuration problem(s)") {
		t.Errorf("err = %v, want 2 problems", err)
	}
}

func TestValidateConfigCommand_Online(t *testing.T) {
	ollama := newFakeOllama(t)
	good := writeConfig(t, map[string]any{"ollama.base_url": ollama.URL})
	if _, err := execute(t, "--config", good, "validate-config", "--online"); err != nil {
		t.Errorf("available model: %v", err)
	}
	missing := writeConfig(t, map[string]any{"ollama.base_url": ollama.URL, "generation.model": "starcoder2"})
	_, err := execute(t, "--config", missing, "validate-config", "--online")
	if err == nil || !strings.Contains(err.Error(), "starcoder2") {
		t.Errorf("err = %v, want missing model starcoder2", err)
	}
}

func TestCheckRemoteModel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/models" {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte(`{"data":[{"id":"anthropic/claude-sonnet-4"},{"id":"openai/gpt-4o"}]}`))
	}))
	defer srv.Close()
	client := proxy.NewClientWithBaseURL("k", srv.URL)

	if err := checkRemoteModel(context.Background(), client, "openai/gpt-4o"); err != nil {
		t.Errorf("listed model: %v", err)
	}
	if err := checkRemoteModel(context.Background(), client, "meta/llama-9"); err == nil {
		t.Error("expected error for unlisted model")
	}

	down := proxy.NewClientWithBaseURL("k", srv.URL+"/broken")
	if err := checkRemoteModel(context.Background(), down, "openai/gpt-4o"); err == nil {
		t.Error("expected error when listing fails")
	}
}

func TestReportBatch(t *testing.T) {
	ok := pipeline.BatchSummary{Total: 1, Succeeded: 1, Components: []pipeline.ComponentSummary{{ComponentID: "a", Success: true}}}
	if err := reportBatch(ok); err != nil {
		t.Errorf("reportBatch(success) = %v", err)
	}
	failed := pipeline.BatchSummary{Total: 2, Succeeded: 1, Failed: 1, Components: []pipeline.ComponentSummary{
		{ComponentID: "a", Success: true},
		{ComponentID: "b", FailedStage: pipeline.StageParse, Errors: []string{"parse: bad"}},
	}}
	if err := reportBatch(failed); err == nil {
		t.Error("reportBatch with a failure should return an error")
	}
}

func TestColorize(t *testing.T) {
	old := noColor
	defer func() { noColor = old }()

	noColor = true
	if got := colorize(colorRed, "x"); got != "x" {
		t.Errorf("colorize with noColor = %q", got)
	}
	noColor = false
	if got := colorize(colorRed, "x"); !strings.Contains(got, "\033[") {
		t.Errorf("colorize without noColor = %q", got)
	}
}
