// Package verifier scores a candidate annotation against the detector
// inventory with fixed keyword rules. No model call, no state.
package verifier

// #region imports
import (
	"fmt"
	"strings"

	"github.com/danielpatrickdp/scenario-miner/internal/schema"
)

// #endregion

// #region rule-names

// Rule identifies which check produced a Check entry.
type Rule string

const (
	RuleNoContext             Rule = "no_context"
	RuleVRUGrounding          Rule = "vru_grounding"
	RuleConstructionGrounding Rule = "construction_grounding"
	RuleCausalLink            Rule = "causal_link"
	RulePlaceholder           Rule = "placeholder"
)

// strongActions require a named blocking factor.
var strongActions = map[string]bool{
	schema.ActionStop:           true,
	schema.ActionEmergencyBrake: true,
	schema.ActionNudgeAround:    true,
}

// #endregion

// #region result

// Check is one rule outcome.
type Check struct {
	Rule   Rule
	Pass   bool
	Delta  float64
	Reason string
}

// Result is the verifier's verdict on one candidate.
type Result struct {
	Score  float64
	Checks []Check
}

// Reasons renders the checks as "pass: ..." / "fail: ..." strings.
func (r Result) Reasons() []string {
	out := make([]string, len(r.Checks))
	for i, c := range r.Checks {
		verdict := "fail"
		if c.Pass {
			verdict = "pass"
		}
		out[i] = fmt.Sprintf("%s: %s", verdict, c.Reason)
	}
	return out
}

// #endregion

// #region verifier

// Verifier applies the grounding, causal and completeness rules.
type Verifier struct {
	weights Weights
}

// New creates a verifier with the given weights.
func New(w Weights) *Verifier {
	return &Verifier{weights: w}
}

// Weights returns the active weights.
func (v *Verifier) Weights() Weights {
	return v.weights
}

// Score evaluates candidate against inventory. Same inputs, same result.
func (v *Verifier) Score(candidate schema.Annotation, inventory string) Result {
	if !schema.HasGrounding(inventory) {
		return Result{
			Score: v.weights.NoContextScore,
			Checks: []Check{{
				Rule:   RuleNoContext,
				Pass:   false,
				Delta:  0,
				Reason: "no grounding context",
			}},
		}
	}

	lower := strings.ToLower(inventory)
	var checks []Check

	// 1. Agents grounding: an active VRU claim needs a person in the inventory
	vru := candidate.Agents.VRUStatus
	if vru != schema.VRUNone && vru != schema.VRURoadsideStatic && vru != schema.Placeholder && vru != "" {
		if v.mentions(lower, FamilyPerson) {
			checks = append(checks, Check{RuleVRUGrounding, true, v.weights.VRUGroundedBonus,
				fmt.Sprintf("vru %s grounded by inventory", vru)})
		} else {
			checks = append(checks, Check{RuleVRUGrounding, false, -v.weights.VRUHallucinationPenalty,
				fmt.Sprintf("hallucinated vru %s (no person in inventory)", vru)})
		}
	}

	// 2. Construction grounding
	if candidate.HasTag(schema.TagConstruction) {
		if v.mentions(lower, FamilyConstruction) {
			checks = append(checks, Check{RuleConstructionGrounding, true, v.weights.ConstructionGroundedBonus,
				"construction grounded by inventory"})
		} else {
			checks = append(checks, Check{RuleConstructionGrounding, false, -v.weights.ConstructionMissingPenalty,
				"hallucinated construction (no barrier objects in inventory)"})
		}
	}

	// 3. Causal consistency: strong actions need a blocker
	action := candidate.Criticality.EgoRequiredAction
	if strongActions[action] {
		blocker := candidate.Criticality.BlockingFactor
		if blocker == schema.BlockerNone || blocker == schema.Placeholder || blocker == "" {
			checks = append(checks, Check{RuleCausalLink, false, -v.weights.CausalMissingPenalty,
				fmt.Sprintf("action %s has no blocking factor", action)})
		} else {
			checks = append(checks, Check{RuleCausalLink, true, v.weights.CausalLinkBonus,
				fmt.Sprintf("action %s caused by %s", action, blocker)})
		}
	}

	// 4. Completeness: every placeholder costs
	for _, f := range candidate.Fields() {
		if strings.TrimSpace(f.Value) == schema.Placeholder {
			checks = append(checks, Check{RulePlaceholder, false, -v.weights.PlaceholderPenalty,
				fmt.Sprintf("placeholder in %s", f.Name)})
		}
	}

	var score float64
	for _, c := range checks {
		score += c.Delta
	}
	return Result{Score: score, Checks: checks}
}

// #endregion

// #region helpers

func (v *Verifier) mentions(lowerInventory, family string) bool {
	for _, kw := range v.weights.Keywords[family] {
		if strings.Contains(lowerInventory, strings.ToLower(kw)) {
			return true
		}
	}
	return false
}

// #endregion
