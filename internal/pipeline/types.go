package pipeline

import (
	"encoding/json"
	"time"

	"github.com/kalambet/designgen/internal/output"
)

// Status is the lifecycle state of one stage.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusSkipped   Status = "skipped"
)

// Stage names in execution order.
const (
	StageParse          = "parse"
	StageClassify       = "classify"
	StageExtractIcons   = "extract-icons"
	StageSemanticMap    = "semantic-map"
	StageMatch          = "match"
	StageGenerate       = "generate"
	StageValidate       = "validate"
	StageVisualValidate = "visual-validate"
	StagePersistOutput  = "persist-output"
)

// StageRecord is the tracked state of one stage in one run. Error is set iff
// Status is failed.
type StageRecord struct {
	Name       string          `json:"name"`
	Status     Status          `json:"status"`
	StartTime  *time.Time      `json:"start_time,omitempty"`
	EndTime    *time.Time      `json:"end_time,omitempty"`
	Attempts   int             `json:"attempts,omitempty"`
	Result     json.RawMessage `json:"result,omitempty"`
	Error      string          `json:"error,omitempty"`
	ErrorKind  ErrorKind       `json:"error_kind,omitempty"`
	Warnings   []string        `json:"warnings,omitempty"`
	SkipReason string          `json:"skip_reason,omitempty"`
}

// Result is the outcome of running one component through the stages.
type Result struct {
	ComponentID string        `json:"component_id"`
	Name        string        `json:"name,omitempty"`
	Success     bool          `json:"success"`
	Stages      []StageRecord `json:"stages"`
	Errors      []string      `json:"errors,omitempty"`
	Warnings    []string      `json:"warnings,omitempty"`
	Duration    time.Duration `json:"duration"`
	Outputs     *output.Paths `json:"outputs,omitempty"`
	Code        string        `json:"code,omitempty"`
}

// Stage returns the record of the named stage.
func (r *Result) Stage(name string) (StageRecord, bool) {
	for _, s := range r.Stages {
		if s.Name == name {
			return s, true
		}
	}
	return StageRecord{}, false
}

// Outcome wraps a Result with how it was obtained. Elapsed is measured for
// this call even when the result came from the cache.
type Outcome struct {
	Result  Result        `json:"result"`
	Cached  bool          `json:"cached"`
	Elapsed time.Duration `json:"elapsed"`
}

// ComponentSummary is one line of a batch summary.
type ComponentSummary struct {
	ComponentID string        `json:"component_id"`
	Name        string        `json:"name,omitempty"`
	Success     bool          `json:"success"`
	Cached      bool          `json:"cached"`
	ElapsedMs   int64         `json:"elapsed_ms"`
	FailedStage string        `json:"failed_stage,omitempty"`
	Errors      []string      `json:"errors,omitempty"`
	Warnings    int           `json:"warnings"`
	Outputs     *output.Paths `json:"outputs,omitempty"`
}

// BatchSummary aggregates a batch. Components and Outcomes are in input order.
type BatchSummary struct {
	RunID        string             `json:"run_id"`
	StartedAt    time.Time          `json:"started_at"`
	FinishedAt   time.Time          `json:"finished_at"`
	Total        int                `json:"total"`
	Succeeded    int                `json:"succeeded"`
	Failed       int                `json:"failed"`
	CacheHits    int                `json:"cache_hits"`
	DurationMs   int64              `json:"duration_ms"`
	CumulativeMs int64              `json:"cumulative_ms"`
	Components   []ComponentSummary `json:"components"`
	SummaryPath  string             `json:"summary_path,omitempty"`
	Errors       []string           `json:"errors,omitempty"`

	Outcomes []Outcome `json:"-"`
}

// Outcome returns the outcome for a component id.
func (s *BatchSummary) Outcome(componentID string) (Outcome, bool) {
	for _, o := range s.Outcomes {
		if o.Result.ComponentID == componentID {
			return o, true
		}
	}
	return Outcome{}, false
}
