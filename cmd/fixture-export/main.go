package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/danielpatrickdp/scenario-miner/internal/replay"
)

// #region main

func main() {
	consensusPath := flag.String("consensus", "", "path to a consensus store")
	last := flag.Int("last", 20, "number of most recent consensus records to export")
	outPath := flag.String("out", "", "output fixture JSON path")
	desc := flag.String("description", "", "fixture description")
	flag.Parse()

	if *consensusPath == "" || *outPath == "" {
		fmt.Fprintln(os.Stderr, "usage: fixture-export --consensus path/to/consensus.jsonl --out path/to/fixture.json [--last N]")
		os.Exit(2)
	}

	if err := run(*consensusPath, *last, *outPath, *desc); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// #endregion main

// #region export

// run pins the last N consensus records as fixture cases. Expected scores come
// from the stock verifier, not the stored score, so the fixture tracks the
// defaults the replay tests assert against.
func run(consensusPath string, last int, outPath, desc string) error {
	items, skipped, err := replay.LoadConsensus(consensusPath)
	if err != nil {
		return err
	}
	if len(items) == 0 {
		return fmt.Errorf("no consensus records in %s", consensusPath)
	}
	if last > 0 && len(items) > last {
		items = items[len(items)-last:]
	}

	if desc == "" {
		desc = fmt.Sprintf("Exported from %s (last %d records)", consensusPath, len(items))
	}
	fixture := replay.Fixture{Description: desc}
	baseline := replay.Baseline()
	for _, it := range items {
		fixture.Cases = append(fixture.Cases, replay.FixtureCase{
			RecordID:   it.RecordID,
			Inventory:  it.Inventory,
			Annotation: it.Annotation,
		})
		fixture.ExpectedResults = append(fixture.ExpectedResults, replay.FixtureExpectedResult{
			RecordID: it.RecordID,
			Score:    baseline.Score(it.Annotation, it.Inventory).Score,
		})
	}

	data, err := json.MarshalIndent(fixture, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal fixture: %w", err)
	}
	if err := os.WriteFile(outPath, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("write fixture: %w", err)
	}

	fmt.Printf("Exported %d cases to %s", len(fixture.Cases), outPath)
	if skipped > 0 {
		fmt.Printf(" (%d malformed lines skipped)", skipped)
	}
	fmt.Println()
	return nil
}

// #endregion export
