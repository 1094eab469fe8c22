package miner

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/danielpatrickdp/scenario-miner/internal/codec"
	"github.com/danielpatrickdp/scenario-miner/internal/config"
	"github.com/danielpatrickdp/scenario-miner/internal/extract"
	"github.com/danielpatrickdp/scenario-miner/internal/logging"
	"github.com/danielpatrickdp/scenario-miner/internal/metrics"
	"github.com/danielpatrickdp/scenario-miner/internal/outcomes"
	"github.com/danielpatrickdp/scenario-miner/internal/schema"
	"github.com/danielpatrickdp/scenario-miner/internal/source"
	"github.com/danielpatrickdp/scenario-miner/internal/store"
)

// #region worker-struct

// Deps are the collaborators a Worker drives. Metrics and Outcomes may be nil.
type Deps struct {
	Source   RecordSource
	Detector Detector
	Reasoner Reasoner
	Index    Appender
	Log      Appender
	Ledger   *store.Ledger
	Metrics  *metrics.Metrics
	Outcomes AttemptSink
	RunID    string
}

// Worker is the per-record annotation pipeline for one scout.
type Worker struct {
	cfg    config.Mining
	policy RetryPolicy
	deps   Deps
	system string
	sleep  func(ctx context.Context, d time.Duration) error
	now    func() time.Time
}

// NewWorker wires a Worker. A nil Ledger starts empty.
func NewWorker(cfg config.Mining, deps Deps) *Worker {
	if deps.Ledger == nil {
		deps.Ledger = store.NewLedger()
	}
	if deps.RunID == "" {
		deps.RunID = logging.NewRunID()
	}
	return &Worker{
		cfg: cfg,
		policy: RetryPolicy{
			MaxAttempts:      cfg.MaxAttempts,
			ParseBackoff:     cfg.ParseBackoff,
			TransportBackoff: cfg.TransportBackoff,
		},
		deps:   deps,
		system: schema.ScoutSystemPrompt(),
		sleep:  sleepContext,
		now:    time.Now,
	}
}

// #endregion worker-struct

// #region process

// Process runs one record end to end. Per-record failures are reported in the
// Result; the error is non-nil only for cancellation or a store write failure,
// in which case nothing about the record is guaranteed written.
func (w *Worker) Process(ctx context.Context, id string) (Result, error) {
	res := Result{RecordID: id}

	if w.deps.Ledger.Has(id) {
		return w.skip(res, ErrAlreadyDone), nil
	}

	// 1. Views
	bundle, err := w.deps.Source.Views(id)
	if err != nil {
		return w.skip(res, fmt.Errorf("load views: %w", err)), nil
	}
	res.Diagnostics.Views = bundle.Len()
	if bundle.Len() < w.cfg.MinViews {
		return w.skip(res, fmt.Errorf("%w: %d of %d", ErrInsufficientViews, bundle.Len(), w.cfg.MinViews)), nil
	}
	images := toImages(bundle)

	// 2. Inventory
	detStart := w.now()
	inventory, err := w.deps.Detector.Detect(ctx, images)
	detDur := w.now().Sub(detStart)
	w.deps.Metrics.Latency(metrics.StageMine, metrics.CallDetect, detDur)
	if err != nil {
		if ctx.Err() != nil {
			return res, ctx.Err()
		}
		log.Printf("[MINER] %s: detector failed: %v", id, err)
		inventory = schema.DetectorErrorInventory
	}

	// 3. Reasoning under retry
	req := codec.Request{
		Model:       w.cfg.Scout,
		System:      w.system,
		Text:        userText(inventory),
		Images:      images,
		Temperature: w.cfg.Temperature,
		MaxTokens:   w.cfg.MaxTokens,
	}
	rec := logging.LogRecord{
		RunID:     w.deps.RunID,
		RecordID:  id,
		Scout:     w.cfg.OutputName,
		Model:     w.cfg.Scout,
		Cameras:   bundle.Cameras(),
		Inventory: inventory,
		Prompt:    req.Sanitized(),
	}

	var (
		ann     schema.Annotation
		ok      bool
		lastDur time.Duration
		total   time.Duration
	)
	for n := 1; ; n++ {
		start := w.now()
		comp, callErr := w.deps.Reasoner.Complete(ctx, req)
		lastDur = w.now().Sub(start)
		total += lastDur
		w.deps.Metrics.Latency(metrics.StageMine, metrics.CallComplete, lastDur)
		if callErr != nil && ctx.Err() != nil {
			return res, ctx.Err()
		}

		attempt := logging.Attempt{N: n, LatencyMS: lastDur.Milliseconds()}
		if callErr != nil {
			attempt.Result = logging.ResultTransport
			attempt.Error = callErr.Error()
			// The log record carries the latest attempt's payload only.
			rec.RawResponse, rec.Usage, rec.ReasoningTrace = "", nil, ""
		} else {
			rec.RawResponse = comp.Text
			rec.Usage = comp.Usage
			rec.ReasoningTrace = comp.Reasoning
			if rec.ReasoningTrace == "" {
				rec.ReasoningTrace = extract.Trace(comp.Text)
			}
			var stage extract.Stage
			ann, stage, err = parseCompletion(comp.Text)
			attempt.Stage = string(stage)
			attempt.Result = classify(err)
			if err != nil {
				attempt.Error = err.Error()
			}
		}
		rec.Attempts = append(rec.Attempts, attempt)
		w.recordAttempt(id, attempt, rec.Usage)

		if attempt.Result == logging.ResultOK {
			ok = true
			break
		}
		log.Printf("[MINER] %s: attempt %d/%d %s: %s", id, n, w.policy.MaxAttempts, attempt.Result, attempt.Error)

		retry, wait := w.policy.ShouldRetry(rec.Attempts)
		if !retry {
			break
		}
		if err := w.sleep(ctx, wait); err != nil {
			return res, err
		}
	}

	rec.Timestamp = w.now().UTC()
	rec.Timing = logging.Timing{
		DetectorMS:  detDur.Milliseconds(),
		ReasoningMS: total.Milliseconds(),
		Attempts:    len(rec.Attempts),
	}
	if ok {
		rec.Timing.TokensPerSec = logging.TokensPerSec(rec.Usage, lastDur)
	}
	res.Diagnostics.Attempts = rec.Attempts
	res.Diagnostics.Timing = rec.Timing

	// 4 / 5. Persist
	if !ok {
		rec.Error = rec.LastError()
		res.Outcome = OutcomeFailed
		res.Diagnostics.Err = errors.New(rec.Error)
		if err := w.deps.Log.Append(rec); err != nil {
			return res, fmt.Errorf("append log: %w", err)
		}
		w.deps.Metrics.Record(metrics.StageMine, w.cfg.OutputName, string(OutcomeFailed))
		return res, nil
	}

	rec.Success = true
	rec.Annotation = &ann
	entry := schema.ScoutRecord{
		RecordID:       id,
		Scout:          w.cfg.OutputName,
		Annotation:     ann,
		ReasoningTrace: rec.ReasoningTrace,
		Inventory:      inventory,
		Usage:          rec.Usage,
	}
	if err := w.deps.Index.Append(entry); err != nil {
		return res, fmt.Errorf("append index: %w", err)
	}
	w.deps.Ledger.Add(id)
	if err := w.deps.Log.Append(rec); err != nil {
		return res, fmt.Errorf("append log: %w", err)
	}

	res.Outcome = OutcomeSuccess
	res.Annotation = &ann
	w.deps.Metrics.Record(metrics.StageMine, w.cfg.OutputName, string(OutcomeSuccess))
	return res, nil
}

// #endregion process

// #region helpers

func (w *Worker) skip(res Result, reason error) Result {
	res.Outcome = OutcomeSkipped
	res.Diagnostics.Err = reason
	w.deps.Metrics.Record(metrics.StageMine, w.cfg.OutputName, string(OutcomeSkipped))
	return res
}

func (w *Worker) recordAttempt(id string, a logging.Attempt, usage *schema.Usage) {
	w.deps.Metrics.Attempt(metrics.StageMine, a.Result)
	if w.deps.Outcomes == nil {
		return
	}
	row := outcomes.AttemptRow{
		RunID:      w.deps.RunID,
		RecordID:   id,
		Scout:      w.cfg.OutputName,
		AttemptNum: a.N,
		Result:     a.Result,
		Error:      a.Error,
		LatencyMS:  a.LatencyMS,
	}
	if usage != nil && a.Result != logging.ResultTransport {
		row.OutputTokens = usage.OutputTokens
	}
	if err := w.deps.Outcomes.RecordAttempt(row); err != nil {
		log.Printf("[MINER] failed to record attempt: %v", err)
	}
}

// parseCompletion runs both extraction stages and the strict schema check.
func parseCompletion(raw string) (schema.Annotation, extract.Stage, error) {
	obj, stage, err := extract.Object(raw)
	if err != nil {
		return schema.Annotation{}, stage, err
	}
	ann, err := schema.Parse(obj, schema.ParseOptions{})
	return ann, stage, err
}

func classify(err error) string {
	switch {
	case err == nil:
		return logging.ResultOK
	case errors.Is(err, schema.ErrSchema):
		return logging.ResultSchema
	default:
		return logging.ResultNoObject
	}
}

func toImages(b source.ViewBundle) []codec.Image {
	out := make([]codec.Image, len(b.Views))
	for i, v := range b.Views {
		out[i] = codec.Image{Label: v.Camera, JPEG: v.JPEG}
	}
	return out
}

func userText(inventory string) string {
	var sb strings.Builder
	if strings.TrimSpace(inventory) != "" {
		sb.WriteString("### DETECTED OBJECTS ###\n")
		sb.WriteString(inventory)
		sb.WriteString("\n\n")
	}
	sb.WriteString("Here are the synchronized front-view cameras, in left, center, right order.\n")
	sb.WriteString("Think deeply inside <think> tags, then output valid JSON.")
	return sb.String()
}

// #endregion helpers
