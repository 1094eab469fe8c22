// Package miner drives records through detection and retried reasoning and
// appends the results to a scout's index and log stores.
package miner

import (
	"context"
	"errors"

	"github.com/danielpatrickdp/scenario-miner/internal/codec"
	"github.com/danielpatrickdp/scenario-miner/internal/logging"
	"github.com/danielpatrickdp/scenario-miner/internal/outcomes"
	"github.com/danielpatrickdp/scenario-miner/internal/schema"
	"github.com/danielpatrickdp/scenario-miner/internal/source"
)

// #region errors

// ErrInsufficientViews means fewer than the quorum of camera views resolved.
var ErrInsufficientViews = errors.New("insufficient views")

// ErrAlreadyDone means the record is already in the index store.
var ErrAlreadyDone = errors.New("already in index")

// #endregion errors

// #region outcome

// Outcome is the terminal state of one Process call.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailed  Outcome = "failed"
	OutcomeSkipped Outcome = "skipped"
)

// Diagnostics carries what happened inside Process.
type Diagnostics struct {
	Views    int
	Attempts []logging.Attempt
	Timing   logging.Timing
	Err      error // skip reason or last failure
}

// Result is the outcome of processing one record.
type Result struct {
	RecordID    string
	Outcome     Outcome
	Annotation  *schema.Annotation
	Diagnostics Diagnostics
}

// Summary is printed at the end of a run.
type Summary struct {
	Processed int
	Succeeded int
	Failed    int
	Skipped   int
	LastError error
}

// #endregion outcome

// #region collaborators

// RecordSource yields view bundles by record ID.
type RecordSource interface {
	Views(id string) (source.ViewBundle, error)
}

// Detector produces the symbolic inventory for a set of views.
type Detector interface {
	Detect(ctx context.Context, images []codec.Image) (string, error)
}

// Reasoner runs one structured-reasoning call.
type Reasoner interface {
	Complete(ctx context.Context, r codec.Request) (codec.Completion, error)
}

// Appender is an append-only record store.
type Appender interface {
	Append(v any) error
}

// AttemptSink receives per-attempt telemetry.
type AttemptSink interface {
	RecordAttempt(row outcomes.AttemptRow) error
}

// #endregion collaborators
