package replay

import (
	"path/filepath"
	"testing"

	"github.com/danielpatrickdp/scenario-miner/internal/schema"
	"github.com/danielpatrickdp/scenario-miner/internal/store"
)

// #region fixture-tests

// TestFixture_VerifierCases scores every fixture case with the stock weights and
// compares against the pinned scores. Any change to the default weights or the
// keyword families shows up here.
func TestFixture_VerifierCases(t *testing.T) {
	f, err := LoadFixture(filepath.Join("testdata", "verifier_cases.json"))
	if err != nil {
		t.Fatalf("LoadFixture: %v", err)
	}
	if len(f.Cases) != len(f.ExpectedResults) {
		t.Fatalf("fixture has %d cases but %d expected results", len(f.Cases), len(f.ExpectedResults))
	}

	diffs := Rescore(f.Items(Baseline()), Baseline())
	if bad := Mismatches(diffs, f.Expected()); len(bad) > 0 {
		for _, d := range diffs {
			t.Logf("%s: score=%v reasons=%v", d.RecordID, d.NewScore, d.NewReasons)
		}
		t.Fatalf("pinned score mismatch for %v", bad)
	}

	// Same weights, same verdicts.
	s := Summarize(diffs)
	if s.Unchanged != s.Total {
		t.Errorf("expected all %d unchanged, got %d", s.Total, s.Unchanged)
	}
}

func TestLoadFixture_Missing(t *testing.T) {
	if _, err := LoadFixture(filepath.Join(t.TempDir(), "nope.json")); err == nil {
		t.Error("expected error for missing fixture")
	}
}

func TestLoadConsensus(t *testing.T) {
	path := filepath.Join(t.TempDir(), "consensus.jsonl")
	app, err := store.OpenAppender(path)
	if err != nil {
		t.Fatalf("OpenAppender: %v", err)
	}
	rec := schema.ConsensusRecord{
		RecordID:  "tok",
		Score:     2,
		Reasons:   []string{"pass: construction grounded by inventory"},
		Inventory: "Detected: 1x cone",
	}
	if err := app.Append(rec); err != nil {
		t.Fatalf("Append: %v", err)
	}
	app.Close()

	items, skipped, err := LoadConsensus(path)
	if err != nil {
		t.Fatalf("LoadConsensus: %v", err)
	}
	if skipped != 0 || len(items) != 1 {
		t.Fatalf("expected 1 item and 0 skipped, got %d and %d", len(items), skipped)
	}
	if items[0].Score != 2 || items[0].Inventory != rec.Inventory || len(items[0].Reasons) != 1 {
		t.Errorf("unexpected item %+v", items[0])
	}
}

// #endregion fixture-tests
