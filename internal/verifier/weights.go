package verifier

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// #region weights

// Weights are the point values of each rule. Bonuses and penalties are
// magnitudes: penalties are subtracted.
type Weights struct {
	VRUGroundedBonus           float64 `yaml:"vru_grounded_bonus"`
	VRUHallucinationPenalty    float64 `yaml:"vru_hallucination_penalty"`
	ConstructionGroundedBonus  float64 `yaml:"construction_grounded_bonus"`
	ConstructionMissingPenalty float64 `yaml:"construction_missing_penalty"`
	CausalLinkBonus            float64 `yaml:"causal_link_bonus"`
	CausalMissingPenalty       float64 `yaml:"causal_missing_penalty"`
	PlaceholderPenalty         float64 `yaml:"placeholder_penalty"`
	NoContextScore             float64 `yaml:"no_context_score"`

	// Keyword families matched as lowercase substrings of the inventory.
	Keywords map[string][]string `yaml:"keywords"`
}

// Keyword family names.
const (
	FamilyPerson       = "person"
	FamilyConstruction = "construction"
)

// DefaultWeights returns the stock rule values.
func DefaultWeights() Weights {
	return Weights{
		VRUGroundedBonus:           2.0,
		VRUHallucinationPenalty:    10.0,
		ConstructionGroundedBonus:  2.0,
		ConstructionMissingPenalty: 5.0,
		CausalLinkBonus:            3.0,
		CausalMissingPenalty:       5.0,
		PlaceholderPenalty:         10.0,
		NoContextScore:             0.0,
		Keywords: map[string][]string{
			FamilyPerson:       {"person", "pedestrian", "child", "worker", "human", "cyclist", "rider"},
			FamilyConstruction: {"cone", "drum", "barrel", "barrier", "sign", "fence"},
		},
	}
}

// #endregion weights

// #region validate

// ErrInvalidWeights is returned when weights break the ordering guarantees.
var ErrInvalidWeights = errors.New("invalid verifier weights")

// Validate enforces that every bonus and penalty is positive and that a
// grounding penalty is never smaller than its bonus.
func (w Weights) Validate() error {
	positive := []struct {
		name string
		v    float64
	}{
		{"vru_grounded_bonus", w.VRUGroundedBonus},
		{"vru_hallucination_penalty", w.VRUHallucinationPenalty},
		{"construction_grounded_bonus", w.ConstructionGroundedBonus},
		{"construction_missing_penalty", w.ConstructionMissingPenalty},
		{"causal_link_bonus", w.CausalLinkBonus},
		{"causal_missing_penalty", w.CausalMissingPenalty},
		{"placeholder_penalty", w.PlaceholderPenalty},
	}
	for _, p := range positive {
		if p.v <= 0 {
			return fmt.Errorf("%w: %s must be > 0, got %v", ErrInvalidWeights, p.name, p.v)
		}
	}
	if w.VRUHallucinationPenalty <= w.VRUGroundedBonus {
		return fmt.Errorf("%w: vru penalty %v must exceed bonus %v", ErrInvalidWeights, w.VRUHallucinationPenalty, w.VRUGroundedBonus)
	}
	if w.ConstructionMissingPenalty < w.ConstructionGroundedBonus {
		return fmt.Errorf("%w: construction penalty %v below bonus %v", ErrInvalidWeights, w.ConstructionMissingPenalty, w.ConstructionGroundedBonus)
	}
	for _, fam := range []string{FamilyPerson, FamilyConstruction} {
		if len(w.Keywords[fam]) == 0 {
			return fmt.Errorf("%w: keyword family %q is empty", ErrInvalidWeights, fam)
		}
	}
	return nil
}

// #endregion validate

// #region load

// LoadWeights reads a YAML override file on top of DefaultWeights.
// Keys absent from the file keep their default value.
func LoadWeights(path string) (Weights, error) {
	w := DefaultWeights()
	data, err := os.ReadFile(path)
	if err != nil {
		return Weights{}, fmt.Errorf("read verifier config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &w); err != nil {
		return Weights{}, fmt.Errorf("parse verifier config %s: %w", path, err)
	}
	if err := w.Validate(); err != nil {
		return Weights{}, err
	}
	return w, nil
}

// #endregion load
