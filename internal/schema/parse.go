package schema

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// #region errors

var (
	// ErrMalformed means the candidate text is not a well-formed JSON object.
	ErrMalformed = errors.New("malformed annotation object")

	// ErrSchema means the object parsed but violates the annotation schema.
	ErrSchema = errors.New("annotation schema violation")
)

// RequiredSections are the top-level keys every annotation must carry.
var RequiredSections = []string{
	"odd_attributes",
	"road_topology",
	"key_interacting_agents",
	"scenario_criticality",
	"wod_e2e_tags",
}

// #endregion errors

// #region list-type

// StringList decodes a JSON array of strings, a bare string, or null.
type StringList []string

// UnmarshalJSON implements json.Unmarshaler.
func (l *StringList) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if bytes.Equal(trimmed, []byte("null")) {
		*l = nil
		return nil
	}
	if len(trimmed) > 0 && trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return err
		}
		if strings.TrimSpace(s) == "" {
			*l = nil
			return nil
		}
		*l = StringList{s}
		return nil
	}
	var arr []string
	if err := json.Unmarshal(trimmed, &arr); err != nil {
		return fmt.Errorf("expected string list: %w", err)
	}
	*l = arr
	return nil
}

// #endregion list-type

// #region risk-type

// RiskScore is the integer 0-10 criticality rating.
type RiskScore int

const (
	MinRiskScore RiskScore = 0
	MaxRiskScore RiskScore = 10
)

// UnmarshalJSON accepts integral numbers and numeric strings.
func (r *RiskScore) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if bytes.Equal(trimmed, []byte("null")) {
		*r = 0
		return nil
	}
	raw := string(trimmed)
	if len(trimmed) > 0 && trimmed[0] == '"' {
		if err := json.Unmarshal(trimmed, &raw); err != nil {
			return err
		}
		raw = strings.TrimSpace(raw)
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return fmt.Errorf("risk_score %q is not a number", raw)
	}
	if f != math.Trunc(f) {
		return fmt.Errorf("risk_score %v is not an integer", f)
	}
	*r = RiskScore(f)
	return nil
}

// #endregion risk-type

// #region parse

// ParseOptions controls how lenient the parse boundary is.
type ParseOptions struct {
	// AllowPlaceholders keeps "..." values instead of rejecting them, so a
	// downstream scorer can penalize them.
	AllowPlaceholders bool
}

// Parse decodes and validates one annotation object. Enum values are
// normalized (case, whitespace, hyphens) before the vocabulary check.
func Parse(data []byte, opts ParseOptions) (Annotation, error) {
	var top map[string]json.RawMessage
	if err := json.Unmarshal(data, &top); err != nil {
		return Annotation{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	var missing []string
	for _, key := range RequiredSections {
		if _, ok := top[key]; !ok {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		return Annotation{}, fmt.Errorf("%w: missing sections %s", ErrSchema, strings.Join(missing, ", "))
	}

	var a Annotation
	if err := json.Unmarshal(data, &a); err != nil {
		return Annotation{}, fmt.Errorf("%w: %v", ErrSchema, err)
	}
	if !hasRiskScore(top["scenario_criticality"]) {
		return Annotation{}, fmt.Errorf("%w: scenario_criticality.risk_score is missing", ErrSchema)
	}
	if err := a.normalize(opts); err != nil {
		return Annotation{}, err
	}
	return a, nil
}

// hasRiskScore reports whether the criticality section carries a non-null
// risk_score. A decoded zero cannot tell an absent score from a real 0.
func hasRiskScore(section json.RawMessage) bool {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(section, &fields); err != nil {
		return false
	}
	raw, ok := fields["risk_score"]
	return ok && !bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

// Validate re-checks an already decoded annotation against the vocabulary.
func (a Annotation) Validate(opts ParseOptions) error {
	return a.normalize(opts)
}

func (a *Annotation) normalize(opts ParseOptions) error {
	var problems []string

	for _, ref := range a.scalarRefs() {
		v, problem := normalizeValue(ref.name, *ref.ptr, opts)
		if problem != "" {
			problems = append(problems, problem)
			continue
		}
		*ref.ptr = v
	}

	for _, l := range a.listRefs() {
		seen := make(map[string]bool, len(*l.ptr))
		out := make(StringList, 0, len(*l.ptr))
		for _, raw := range *l.ptr {
			v, problem := normalizeValue(l.name, raw, opts)
			if problem != "" {
				problems = append(problems, problem)
				continue
			}
			if seen[v] {
				continue
			}
			seen[v] = true
			out = append(out, v)
		}
		*l.ptr = out
	}

	if a.Criticality.RiskScore < MinRiskScore || a.Criticality.RiskScore > MaxRiskScore {
		problems = append(problems, fmt.Sprintf("scenario_criticality.risk_score %d out of range %d-%d",
			a.Criticality.RiskScore, MinRiskScore, MaxRiskScore))
	}

	a.Description = strings.TrimSpace(a.Description)

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrSchema, strings.Join(problems, "; "))
	}
	return nil
}

// normalizeValue returns the canonical value or a problem description.
func normalizeValue(field, raw string, opts ParseOptions) (string, string) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == Placeholder {
		if opts.AllowPlaceholders {
			return Placeholder, ""
		}
		return "", fmt.Sprintf("%s is an unfilled placeholder", field)
	}
	if trimmed == "" {
		return "", fmt.Sprintf("%s is missing", field)
	}
	v := NormalizeToken(trimmed)
	vocab, ok := Lookup(field)
	if !ok || !vocab.Contains(v) {
		return "", fmt.Sprintf("%s has illegal value %q", field, raw)
	}
	return v, ""
}

// NormalizeToken lowercases and snake-cases a vocabulary token.
func NormalizeToken(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.NewReplacer(" ", "_", "-", "_").Replace(s)
	return s
}

// #endregion parse
