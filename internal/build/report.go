package build

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"
)

// Status is the terminal state of a build run.
type Status string

const (
	StatusSuccess  Status = "success"
	StatusFailed   Status = "failed"
	StatusCanceled Status = "canceled"
)

// RuleResult describes the outcome of one rule in a run.
type RuleResult struct {
	Target     string        `json:"target"`
	Type       string        `json:"type"`
	RuleKey    string        `json:"rule_key,omitempty"`
	Status     Status        `json:"status"`
	CacheHit   bool          `json:"cache_hit"`
	Duration   time.Duration `json:"duration_ns"`
	Artifacts  []string      `json:"artifacts,omitempty"`
	FailedStep string        `json:"failed_step,omitempty"`
}

// Report summarizes a build run: which rules ran, which were skipped,
// and how the run ended.
type Report struct {
	RunID     string        `json:"run_id"`
	StartTime time.Time     `json:"start_time"`
	EndTime   time.Time     `json:"end_time"`
	Duration  time.Duration `json:"duration_ns"`
	Status    Status        `json:"status"`
	Failure   string        `json:"failure,omitempty"`
	Rules     []RuleResult  `json:"rules"`
}

// CacheHits counts the rules skipped by the key check.
func (r *Report) CacheHits() int {
	n := 0
	for _, rule := range r.Rules {
		if rule.CacheHit {
			n++
		}
	}
	return n
}

// WriteJSON writes the report to path, creating parent directories.
func (r *Report) WriteJSON(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0o644)
}
