// Package replay rescores stored annotations offline so verifier weights can
// be tuned without another model call.
package replay

import (
	"slices"

	"github.com/danielpatrickdp/scenario-miner/internal/schema"
	"github.com/danielpatrickdp/scenario-miner/internal/verifier"
)

// #region types

// Scorer is the verifier surface a rescore needs.
type Scorer interface {
	Score(candidate schema.Annotation, inventory string) verifier.Result
}

// Item is one annotation with its reference verdict.
type Item struct {
	RecordID   string
	Annotation schema.Annotation
	Inventory  string
	Score      float64
	Reasons    []string
}

// Diff compares the reference verdict with the rescored one.
type Diff struct {
	RecordID       string
	OldScore       float64
	NewScore       float64
	OldReasons     []string
	NewReasons     []string
	SignChanged    bool
	ReasonsChanged bool
}

// Summary provides aggregate stats from a rescore run.
type Summary struct {
	Total          int
	SignChanges    int
	ReasonChanges  int
	Unchanged      int
	MeanDelta      float64
	ScoreIncreases int
	ScoreDecreases int
}

// #endregion types

// #region rescore

// Rescore runs every item through scorer. Pure, in-memory.
func Rescore(items []Item, scorer Scorer) []Diff {
	diffs := make([]Diff, 0, len(items))
	for _, it := range items {
		res := scorer.Score(it.Annotation, it.Inventory)
		reasons := res.Reasons()
		diffs = append(diffs, Diff{
			RecordID:       it.RecordID,
			OldScore:       it.Score,
			NewScore:       res.Score,
			OldReasons:     it.Reasons,
			NewReasons:     reasons,
			SignChanged:    sign(it.Score) != sign(res.Score),
			ReasonsChanged: !slices.Equal(it.Reasons, reasons),
		})
	}
	return diffs
}

// Summarize computes aggregate stats from rescore diffs.
func Summarize(diffs []Diff) Summary {
	s := Summary{Total: len(diffs)}
	var delta float64
	for _, d := range diffs {
		if d.SignChanged {
			s.SignChanges++
		}
		if d.ReasonsChanged {
			s.ReasonChanges++
		}
		if !d.SignChanged && !d.ReasonsChanged && d.NewScore == d.OldScore {
			s.Unchanged++
		}
		switch {
		case d.NewScore > d.OldScore:
			s.ScoreIncreases++
		case d.NewScore < d.OldScore:
			s.ScoreDecreases++
		}
		delta += d.NewScore - d.OldScore
	}
	if s.Total > 0 {
		s.MeanDelta = delta / float64(s.Total)
	}
	return s
}

// Mismatches returns the record IDs whose rescored value differs from a pinned score.
// Pinned IDs with no matching diff are reported too.
func Mismatches(diffs []Diff, expected map[string]float64) []string {
	var out []string
	seen := make(map[string]bool, len(diffs))
	for _, d := range diffs {
		want, ok := expected[d.RecordID]
		if !ok {
			continue
		}
		seen[d.RecordID] = true
		if d.NewScore != want {
			out = append(out, d.RecordID)
		}
	}
	for id := range expected {
		if !seen[id] {
			out = append(out, id)
		}
	}
	slices.Sort(out)
	return out
}

// sign maps a score to -1, 0 or +1.
func sign(v float64) int {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	}
	return 0
}

// #endregion rescore
