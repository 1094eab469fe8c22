package logging

import (
	"path/filepath"
	"sort"
	"strings"
)

// #region stats
// ScoutStats aggregates one scout's log store.
type ScoutStats struct {
	Scout           string         `json:"scout"`
	Frames          int            `json:"frames"`
	Successes       int            `json:"successes"`
	SuccessRate     float64        `json:"success_rate"`
	AvgInputTokens  float64        `json:"avg_input_tokens"`
	AvgOutputTokens float64        `json:"avg_output_tokens"`
	ReasoningRatio  float64        `json:"reasoning_ratio"` // output / input
	AvgTokensPerSec float64        `json:"avg_tokens_per_sec"`
	AvgAttempts     float64        `json:"avg_attempts"`
	Tags            map[string]int `json:"tags"`
}

// ScoutFromPath derives the scout name from a "logs_<scout>.jsonl" path.
func ScoutFromPath(path string) string {
	base := strings.TrimSuffix(filepath.Base(path), ".jsonl")
	return strings.TrimPrefix(base, "logs_")
}

// Summarize computes stats for one scout's records. Token averages cover
// every record that reported usage; tag counts cover successes only.
func Summarize(scout string, records []LogRecord) ScoutStats {
	s := ScoutStats{Scout: scout, Frames: len(records), Tags: make(map[string]int)}
	var in, out, tps, attempts float64
	var withUsage, withTPS int
	for _, r := range records {
		attempts += float64(r.Timing.Attempts)
		if r.Usage != nil {
			in += float64(r.Usage.InputTokens)
			out += float64(r.Usage.OutputTokens)
			withUsage++
		}
		if r.Timing.TokensPerSec > 0 {
			tps += r.Timing.TokensPerSec
			withTPS++
		}
		if !r.Success {
			continue
		}
		s.Successes++
		if r.Annotation != nil {
			for _, tag := range r.Annotation.Tags {
				s.Tags[tag]++
			}
		}
	}
	if s.Frames > 0 {
		s.SuccessRate = float64(s.Successes) / float64(s.Frames)
		s.AvgAttempts = attempts / float64(s.Frames)
	}
	if withUsage > 0 {
		s.AvgInputTokens = in / float64(withUsage)
		s.AvgOutputTokens = out / float64(withUsage)
	}
	if s.AvgInputTokens > 0 {
		s.ReasoningRatio = s.AvgOutputTokens / s.AvgInputTokens
	}
	if withTPS > 0 {
		s.AvgTokensPerSec = tps / float64(withTPS)
	}
	return s
}

// TopTags returns tag names ordered by count (desc), then name.
func (s ScoutStats) TopTags() []string {
	names := make([]string, 0, len(s.Tags))
	for k := range s.Tags {
		names = append(names, k)
	}
	sort.Slice(names, func(i, j int) bool {
		if s.Tags[names[i]] != s.Tags[names[j]] {
			return s.Tags[names[i]] > s.Tags[names[j]]
		}
		return names[i] < names[j]
	})
	return names
}
// #endregion stats
