// Package logging defines the audit record appended to a scout's log store
// and the statistics derived from it.
package logging

import (
	"time"

	"github.com/danielpatrickdp/scenario-miner/internal/schema"
)

// #region attempt
// Attempt results as recorded in LogRecord.Attempts.
const (
	ResultOK        = "ok"
	ResultTransport = "transport"
	ResultNoObject  = "no_object"
	ResultSchema    = "schema"
)

// Attempt is one reasoning call inside a record's retry loop.
type Attempt struct {
	N         int    `json:"n"`
	Result    string `json:"result"`
	Stage     string `json:"extract_stage,omitempty"` // "fenced" | "braces"
	Error     string `json:"error,omitempty"`
	LatencyMS int64  `json:"latency_ms"`
}
// #endregion attempt

// #region timing
// Timing breaks a record's wall time into detector and reasoning phases.
type Timing struct {
	DetectorMS   int64   `json:"detector_ms"`
	ReasoningMS  int64   `json:"reasoning_ms"`
	Attempts     int     `json:"attempts"`
	TokensPerSec float64 `json:"tokens_per_sec"`
}
// #endregion timing

// #region log-record
// LogRecord is the full write-once audit entry for one (record, scout) run,
// written on success and on terminal failure.
type LogRecord struct {
	RunID          string             `json:"run_id"`
	RecordID       string             `json:"token"`
	Scout          string             `json:"scout"`
	Model          string             `json:"model"`
	Timestamp      time.Time          `json:"timestamp"`
	Success        bool               `json:"success"`
	Cameras        []string           `json:"cameras,omitempty"`
	Inventory      string             `json:"inventory"`
	Prompt         map[string]any     `json:"prompt,omitempty"` // image bytes replaced
	RawResponse    string             `json:"raw_response,omitempty"`
	ReasoningTrace string             `json:"reasoning_trace,omitempty"`
	Annotation     *schema.Annotation `json:"annotation,omitempty"`
	Usage          *schema.Usage      `json:"usage,omitempty"`
	Attempts       []Attempt          `json:"attempts,omitempty"`
	Error          string             `json:"error,omitempty"`
	Timing         Timing             `json:"timing"`
}
// #endregion log-record
