package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/joho/godotenv"

	"github.com/danielpatrickdp/scenario-miner/internal/logging"
	"github.com/danielpatrickdp/scenario-miner/internal/outcomes"
	"github.com/danielpatrickdp/scenario-miner/internal/store"
)

// #region main

func main() {
	_ = godotenv.Load()

	dir := flag.String("dir", envOr("MINER_OUTPUT_DIR", "output"), "directory holding logs_*.jsonl")
	dbPath := flag.String("db", os.Getenv("OUTCOMES_DB"), "optional outcomes database")
	topTags := flag.Int("tags", 5, "show the N most frequent tags per scout")
	jsonOut := flag.Bool("json", false, "output as JSON instead of table")
	flag.Parse()

	paths := flag.Args()
	if len(paths) == 0 {
		matches, err := filepath.Glob(filepath.Join(*dir, "logs_*.jsonl"))
		if err != nil {
			fmt.Fprintf(os.Stderr, "usage: %v\n", err)
			os.Exit(2)
		}
		paths = matches
	}
	if len(paths) == 0 && *dbPath == "" {
		fmt.Fprintln(os.Stderr, "usage: inspect [--dir output] [--db outcomes.db] [--json] [logs_<scout>.jsonl ...]")
		os.Exit(2)
	}
	sort.Strings(paths)

	rep, err := buildReport(paths, *dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	if *jsonOut {
		err = printJSON(rep)
	} else {
		printTables(rep, *topTags)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// #endregion main

// #region report

type decisionStats struct {
	Count     int     `json:"count"`
	MeanScore float64 `json:"mean_score"`
}

type report struct {
	Scouts    []logging.ScoutStats     `json:"scouts"`
	Skipped   map[string]int           `json:"malformed_lines,omitempty"`
	Failures  []outcomes.ScoutFailures `json:"failures,omitempty"`
	Decisions *decisionStats           `json:"decisions,omitempty"`
}

func buildReport(paths []string, dbPath string) (report, error) {
	rep := report{Skipped: make(map[string]int)}
	for _, p := range paths {
		records, skipped, err := store.ReadAll[logging.LogRecord](p)
		if err != nil {
			return rep, err
		}
		scout := logging.ScoutFromPath(p)
		if skipped > 0 {
			rep.Skipped[scout] = skipped
		}
		rep.Scouts = append(rep.Scouts, logging.Summarize(scout, records))
	}
	if dbPath == "" {
		return rep, nil
	}

	db, err := outcomes.Open(dbPath)
	if err != nil {
		return rep, err
	}
	defer db.Close()
	if rep.Failures, err = db.FailureRates(); err != nil {
		return rep, err
	}
	n, mean, err := db.DecisionCount()
	if err != nil {
		return rep, err
	}
	rep.Decisions = &decisionStats{Count: n, MeanScore: mean}
	return rep, nil
}

// #endregion report

// #region output

func printTables(rep report, topTags int) {
	if len(rep.Scouts) > 0 {
		fmt.Printf("%-16s  %6s  %7s  %9s  %9s  %6s  %8s  %5s  %s\n",
			"Scout", "Frames", "Success", "Avg In", "Avg Out", "Ratio", "Tok/s", "Tries", "Top Tags")
		fmt.Printf("%-16s+-%6s+-%7s+-%9s+-%9s+-%6s+-%8s+-%5s+-%s\n",
			"----------------", "------", "-------", "---------", "---------", "------", "--------", "-----", "--------------------")
		for _, s := range rep.Scouts {
			fmt.Printf("%-16s  %6d  %6.1f%%  %9.0f  %9.0f  %6.2f  %8.1f  %5.2f  %s\n",
				s.Scout, s.Frames, s.SuccessRate*100, s.AvgInputTokens, s.AvgOutputTokens,
				s.ReasoningRatio, s.AvgTokensPerSec, s.AvgAttempts, formatTags(s, topTags))
		}
		for scout, n := range rep.Skipped {
			fmt.Printf("  (%s: %d malformed lines skipped)\n", scout, n)
		}
	}

	if len(rep.Failures) > 0 {
		fmt.Printf("\n%-16s  %8s  %8s  %6s  %s\n", "Scout", "Attempts", "Failures", "Rate", "By Result")
		fmt.Printf("%-16s+-%8s+-%8s+-%6s+-%s\n", "----------------", "--------", "--------", "------", "--------------------")
		for _, f := range rep.Failures {
			fmt.Printf("%-16s  %8d  %8d  %5.1f%%  %s\n", f.Scout, f.Attempts, f.Failures, f.Rate*100, formatCounts(f.ByResult))
		}
	}
	if rep.Decisions != nil {
		fmt.Printf("\nConsensus decisions: %d (mean score %.2f)\n", rep.Decisions.Count, rep.Decisions.MeanScore)
	}
}

func formatTags(s logging.ScoutStats, n int) string {
	names := s.TopTags()
	if n >= 0 && len(names) > n {
		names = names[:n]
	}
	parts := make([]string, len(names))
	for i, name := range names {
		parts[i] = fmt.Sprintf("%s=%d", name, s.Tags[name])
	}
	return strings.Join(parts, " ")
}

func formatCounts(m map[string]int) string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s=%d", k, m[k])
	}
	return strings.Join(parts, " ")
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// #endregion output
