package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"

	"github.com/danielpatrickdp/scenario-miner/internal/replay"
	"github.com/danielpatrickdp/scenario-miner/internal/verifier"
)

// #region main

func main() {
	_ = godotenv.Load()

	consensusPath := flag.String("consensus", "", "path to a consensus store (store mode)")
	fixturePath := flag.String("fixture", "", "path to fixture JSON (fixture mode)")
	weightsPath := flag.String("verifier-config", "", "YAML weights to rescore with (default: stock weights)")
	all := flag.Bool("all", false, "list unchanged records too")
	flag.Parse()

	if (*consensusPath == "" && *fixturePath == "") || (*consensusPath != "" && *fixturePath != "") {
		fmt.Fprintln(os.Stderr, "usage: replay --consensus output/consensus.jsonl [--verifier-config weights.yaml]")
		fmt.Fprintln(os.Stderr, "       replay --fixture path/to/fixture.json [--verifier-config weights.yaml]")
		os.Exit(2)
	}

	weights := verifier.DefaultWeights()
	if *weightsPath != "" {
		w, err := verifier.LoadWeights(*weightsPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "load weights: %v\n", err)
			os.Exit(2)
		}
		weights = w
	}
	scorer := verifier.New(weights)

	var exitCode int
	if *fixturePath != "" {
		exitCode = runFixtureMode(*fixturePath, scorer, *all)
	} else {
		exitCode = runStoreMode(*consensusPath, scorer, *all)
	}
	os.Exit(exitCode)
}

// #endregion main

// #region modes

func runStoreMode(path string, scorer replay.Scorer, all bool) int {
	items, skipped, err := replay.LoadConsensus(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return 2
	}
	if len(items) == 0 {
		fmt.Fprintf(os.Stderr, "no consensus records in %s\n", path)
		return 2
	}
	if skipped > 0 {
		fmt.Fprintf(os.Stderr, "skipped %d malformed lines\n", skipped)
	}
	printComparison(replay.Rescore(items, scorer), all)
	return 0
}

// runFixtureMode compares the pinned baseline scores, then reports how the
// chosen weights move each case. Exits 1 if the baseline drifted.
func runFixtureMode(path string, scorer replay.Scorer, all bool) int {
	f, err := replay.LoadFixture(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load fixture: %v\n", err)
		return 2
	}

	baseline := replay.Baseline()
	items := f.Items(baseline)
	if bad := replay.Mismatches(replay.Rescore(items, baseline), f.Expected()); len(bad) > 0 {
		fmt.Printf("Baseline drift: %s\n\n", strings.Join(bad, ", "))
		printComparison(replay.Rescore(items, scorer), all)
		return 1
	}
	printComparison(replay.Rescore(items, scorer), all)
	return 0
}

// #endregion modes

// #region output

func printComparison(diffs []replay.Diff, all bool) {
	fmt.Printf("%-36s| %8s| %8s| %-6s| %s\n", "Record", "Old", "New", "Sign", "Reasons")
	fmt.Printf("%-36s+%9s+%9s+%7s+%s\n",
		"------------------------------------", "---------", "---------", "-------", "--------------------")

	for _, d := range diffs {
		if !all && !d.SignChanged && !d.ReasonsChanged && d.OldScore == d.NewScore {
			continue
		}
		sign := "same"
		if d.SignChanged {
			sign = "FLIP"
		}
		reasons := "same"
		if d.ReasonsChanged {
			reasons = strings.Join(d.NewReasons, "; ")
		}
		fmt.Printf("%-36s| %8.2f| %8.2f| %-6s| %s\n", d.RecordID, d.OldScore, d.NewScore, sign, reasons)
	}

	s := replay.Summarize(diffs)
	fmt.Printf("\nSummary: %d total, %d sign changes, %d reason changes, %d unchanged, mean delta %+.2f\n",
		s.Total, s.SignChanges, s.ReasonChanges, s.Unchanged, s.MeanDelta)
}

// #endregion output
