// Package judge resolves disagreement between scouts with best-of-N synthesis
// scored by the symbolic verifier.
package judge

import (
	"context"
	"fmt"
	"log"
	"sync"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/danielpatrickdp/scenario-miner/internal/codec"
	"github.com/danielpatrickdp/scenario-miner/internal/config"
	"github.com/danielpatrickdp/scenario-miner/internal/extract"
	"github.com/danielpatrickdp/scenario-miner/internal/logging"
	"github.com/danielpatrickdp/scenario-miner/internal/metrics"
	"github.com/danielpatrickdp/scenario-miner/internal/outcomes"
	"github.com/danielpatrickdp/scenario-miner/internal/schema"
	"github.com/danielpatrickdp/scenario-miner/internal/store"
	"github.com/danielpatrickdp/scenario-miner/internal/verifier"
)

// #region collaborators

// Reasoner runs one synthesis call.
type Reasoner interface {
	Complete(ctx context.Context, r codec.Request) (codec.Completion, error)
}

// Scorer scores a candidate against an inventory.
type Scorer interface {
	Score(candidate schema.Annotation, inventory string) verifier.Result
}

// Appender is the consensus store.
type Appender interface {
	Append(v any) error
}

// DecisionSink receives per-decision telemetry.
type DecisionSink interface {
	RecordDecision(row outcomes.DecisionRow) error
}

// Deps are the collaborators a Judge drives. Ledger, Metrics and Decisions may be nil.
type Deps struct {
	Reasoner  Reasoner
	Scorer    Scorer
	Output    Appender
	Ledger    *store.Ledger
	Metrics   *metrics.Metrics
	Decisions DecisionSink
	RunID     string
}

// #endregion collaborators

// #region types

// Candidate is one parsed synthesis with its verifier result.
type Candidate struct {
	Index      int // position among the N requests
	Annotation schema.Annotation
	Result     verifier.Result
}

// Summary is printed at the end of a run.
type Summary struct {
	Processed int
	Succeeded int
	Failed    int
	Skipped   int
	LastError error
}

// #endregion types

// #region judge

// Judge synthesizes consensus records.
type Judge struct {
	cfg     config.Judge
	deps    Deps
	limiter *rate.Limiter
	system  string
}

// New wires a Judge. RPS <= 0 disables rate limiting.
func New(cfg config.Judge, deps Deps) *Judge {
	if deps.Ledger == nil {
		deps.Ledger = store.NewLedger()
	}
	if deps.RunID == "" {
		deps.RunID = logging.NewRunID()
	}
	limit := rate.Inf
	if cfg.RPS > 0 {
		limit = rate.Limit(cfg.RPS)
	}
	burst := cfg.Burst
	if burst < 1 {
		burst = 1
	}
	return &Judge{
		cfg:     cfg,
		deps:    deps,
		limiter: rate.NewLimiter(limit, burst),
		system:  schema.JudgeSystemPrompt(),
	}
}

// Synthesize runs best-of-N for one record. ok is false when there are no
// scout records or no candidate survived parsing.
func (j *Judge) Synthesize(ctx context.Context, id string, records []schema.ScoutRecord) (schema.ConsensusRecord, bool, error) {
	if len(records) == 0 {
		return schema.ConsensusRecord{}, false, nil
	}
	inventory := SharedInventory(records)
	text, err := BuildPrompt(inventory, records, j.cfg.TracePrefix)
	if err != nil {
		return schema.ConsensusRecord{}, false, err
	}
	req := codec.Request{
		Model:       j.cfg.Model,
		System:      j.system,
		Text:        text,
		Temperature: j.cfg.Temperature,
		MaxTokens:   j.cfg.MaxTokens,
	}

	var cands []Candidate
	for i := 0; i < j.cfg.N; i++ {
		if err := j.limiter.Wait(ctx); err != nil {
			return schema.ConsensusRecord{}, false, err
		}
		comp, err := j.deps.Reasoner.Complete(ctx, req)
		if err != nil {
			if ctx.Err() != nil {
				return schema.ConsensusRecord{}, false, ctx.Err()
			}
			j.deps.Metrics.Attempt(metrics.StageJudge, logging.ResultTransport)
			log.Printf("[JUDGE] %s: candidate %d: %v", id, i+1, err)
			continue
		}
		obj, _, err := extract.Object(comp.Text)
		if err != nil {
			j.deps.Metrics.Attempt(metrics.StageJudge, logging.ResultNoObject)
			log.Printf("[JUDGE] %s: candidate %d discarded: %v", id, i+1, err)
			continue
		}
		ann, err := schema.Parse(obj, schema.ParseOptions{AllowPlaceholders: true})
		if err != nil {
			j.deps.Metrics.Attempt(metrics.StageJudge, logging.ResultSchema)
			log.Printf("[JUDGE] %s: candidate %d discarded: %v", id, i+1, err)
			continue
		}
		j.deps.Metrics.Attempt(metrics.StageJudge, logging.ResultOK)
		cands = append(cands, Candidate{Index: i, Annotation: ann, Result: j.deps.Scorer.Score(ann, inventory)})
	}

	best, ok := Select(cands)
	if !ok {
		return schema.ConsensusRecord{}, false, nil
	}

	scouts := make([]string, len(records))
	for i, r := range records {
		scouts[i] = r.Scout
	}
	out := schema.ConsensusRecord{
		RecordID:   id,
		Annotation: best.Annotation,
		Score:      best.Result.Score,
		Reasons:    best.Result.Reasons(),
		Inventory:  inventory,
		Candidates: len(cands),
		Scouts:     scouts,
	}
	j.recordDecision(out, best)
	return out, true, nil
}

// Select picks the strictly highest score; ties go to the first seen.
func Select(cands []Candidate) (Candidate, bool) {
	if len(cands) == 0 {
		return Candidate{}, false
	}
	best := cands[0]
	for _, c := range cands[1:] {
		if c.Result.Score > best.Result.Score {
			best = c
		}
	}
	return best, true
}

func (j *Judge) recordDecision(rec schema.ConsensusRecord, best Candidate) {
	j.deps.Metrics.VerifierScore(rec.Score)
	if j.deps.Decisions == nil {
		return
	}
	row := outcomes.DecisionRow{
		RunID:       j.deps.RunID,
		RecordID:    rec.RecordID,
		Scouts:      rec.Scouts,
		Candidates:  j.cfg.N,
		Survivors:   rec.Candidates,
		WinnerIndex: best.Index,
		Score:       rec.Score,
		Reasons:     rec.Reasons,
	}
	if err := j.deps.Decisions.RecordDecision(row); err != nil {
		log.Printf("[JUDGE] failed to record decision: %v", err)
	}
}

// #endregion judge

// #region run

// Run synthesizes every record in scouts that is not yet in the consensus store.
func (j *Judge) Run(ctx context.Context, scouts *Scouts) (Summary, error) {
	ids := scouts.IDs()
	workers := j.cfg.Workers
	if workers < 1 {
		workers = 1
	}
	log.Printf("[JUDGE] run %s: %d records, n=%d, %d workers, %d already judged",
		j.deps.RunID, len(ids), j.cfg.N, workers, j.deps.Ledger.Len())

	var (
		mu  sync.Mutex
		sum Summary
	)
	count := func(f func(*Summary)) {
		mu.Lock()
		defer mu.Unlock()
		sum.Processed++
		f(&sum)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for _, id := range ids {
		id := id // per-iteration copy (go 1.21 loop semantics)
		if gctx.Err() != nil {
			break
		}
		if j.deps.Ledger.Has(id) {
			count(func(s *Summary) { s.Skipped++ })
			j.deps.Metrics.Record(metrics.StageJudge, "", "skipped")
			continue
		}
		g.Go(func() error {
			rec, ok, err := j.Synthesize(gctx, id, scouts.Records(id))
			if err != nil && gctx.Err() != nil {
				return nil
			}
			switch {
			case err != nil:
				count(func(s *Summary) { s.Failed++; s.LastError = err })
				j.deps.Metrics.Record(metrics.StageJudge, "", "failed")
				return nil
			case !ok:
				count(func(s *Summary) {
					s.Failed++
					s.LastError = fmt.Errorf("%s: no candidate survived", id)
				})
				j.deps.Metrics.Record(metrics.StageJudge, "", "failed")
				log.Printf("[JUDGE] %s: all %d candidates failed", id, j.cfg.N)
				return nil
			}
			if err := j.deps.Output.Append(rec); err != nil {
				count(func(s *Summary) { s.Failed++; s.LastError = err })
				return nil
			}
			j.deps.Ledger.Add(id)
			count(func(s *Summary) { s.Succeeded++ })
			j.deps.Metrics.Record(metrics.StageJudge, "", "success")
			return nil
		})
	}
	// Per-record failures land in the summary, so only a worker bug surfaces here.
	if err := g.Wait(); err != nil {
		return sum, err
	}
	if err := ctx.Err(); err != nil {
		return sum, err
	}
	return sum, nil
}

// String renders the end-of-run line.
func (s Summary) String() string {
	last := "none"
	if s.LastError != nil {
		last = s.LastError.Error()
	}
	return fmt.Sprintf("processed=%d succeeded=%d failed=%d skipped=%d last_error=%s",
		s.Processed, s.Succeeded, s.Failed, s.Skipped, last)
}

// #endregion run
