package replay

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/danielpatrickdp/scenario-miner/internal/schema"
	"github.com/danielpatrickdp/scenario-miner/internal/store"
	"github.com/danielpatrickdp/scenario-miner/internal/verifier"
)

// #region fixture-types

// Fixture is the top-level JSON structure for a rescoring fixture.
type Fixture struct {
	Description     string                  `json:"description"`
	Cases           []FixtureCase           `json:"cases"`
	ExpectedResults []FixtureExpectedResult `json:"expected_results"`
}

// FixtureCase is one annotation with the inventory it is scored against.
type FixtureCase struct {
	RecordID   string            `json:"token"`
	Inventory  string            `json:"inventory"`
	Annotation schema.Annotation `json:"annotation"`
}

// FixtureExpectedResult pins the score a case must get under the default weights.
type FixtureExpectedResult struct {
	RecordID string  `json:"token"`
	Score    float64 `json:"score"`
}

// #endregion fixture-types

// #region loaders

// LoadFixture reads and parses a JSON fixture file.
func LoadFixture(path string) (*Fixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fixture %s: %w", path, err)
	}
	var f Fixture
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse fixture %s: %w", path, err)
	}
	return &f, nil
}

// Items scores the fixture cases with baseline to give each item its reference verdict.
func (f *Fixture) Items(baseline Scorer) []Item {
	items := make([]Item, len(f.Cases))
	for i, c := range f.Cases {
		res := baseline.Score(c.Annotation, c.Inventory)
		items[i] = Item{
			RecordID:   c.RecordID,
			Annotation: c.Annotation,
			Inventory:  c.Inventory,
			Score:      res.Score,
			Reasons:    res.Reasons(),
		}
	}
	return items
}

// Expected returns the pinned scores keyed by record ID.
func (f *Fixture) Expected() map[string]float64 {
	out := make(map[string]float64, len(f.ExpectedResults))
	for _, e := range f.ExpectedResults {
		out[e.RecordID] = e.Score
	}
	return out
}

// LoadConsensus reads a consensus store. Each record keeps the score and
// reasons it was stored with as the reference verdict.
func LoadConsensus(path string) ([]Item, int, error) {
	rows, skipped, err := store.ReadAll[schema.ConsensusRecord](path)
	if err != nil {
		return nil, 0, fmt.Errorf("load consensus store: %w", err)
	}
	items := make([]Item, len(rows))
	for i, r := range rows {
		items[i] = Item{
			RecordID:   r.RecordID,
			Annotation: r.Annotation,
			Inventory:  r.Inventory,
			Score:      r.Score,
			Reasons:    r.Reasons,
		}
	}
	return items, skipped, nil
}

// Baseline is the stock verifier fixtures are pinned against.
func Baseline() *verifier.Verifier {
	return verifier.New(verifier.DefaultWeights())
}

// #endregion loaders
