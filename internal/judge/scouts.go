package judge

import (
	"encoding/json"
	"fmt"
	"log"
	"path/filepath"
	"strings"

	"github.com/danielpatrickdp/scenario-miner/internal/extract"
	"github.com/danielpatrickdp/scenario-miner/internal/schema"
	"github.com/danielpatrickdp/scenario-miner/internal/store"
)

// #region scouts

// Scouts indexes every scout store by record ID, in store order.
type Scouts struct {
	ids  []string
	byID map[string][]schema.ScoutRecord
}

// LoadScouts reads the scout index stores. Within one store only the first
// entry per record counts. Records without a scout tag are named after their file.
func LoadScouts(paths []string) (*Scouts, error) {
	s := &Scouts{byID: make(map[string][]schema.ScoutRecord)}
	for _, path := range paths {
		rows, skipped, err := store.ReadAll[schema.ScoutRecord](path)
		if err != nil {
			return nil, fmt.Errorf("load scout store: %w", err)
		}
		fallback := strings.TrimPrefix(strings.TrimSuffix(filepath.Base(path), ".jsonl"), "index_")
		seen := make(map[string]bool, len(rows))
		for _, r := range rows {
			if r.RecordID == "" || seen[r.RecordID] {
				continue
			}
			seen[r.RecordID] = true
			if r.Scout == "" {
				r.Scout = fallback
			}
			if _, ok := s.byID[r.RecordID]; !ok {
				s.ids = append(s.ids, r.RecordID)
			}
			s.byID[r.RecordID] = append(s.byID[r.RecordID], r)
		}
		log.Printf("[JUDGE] %s: %d records (%d malformed lines)", path, len(seen), skipped)
	}
	return s, nil
}

// IDs returns every record ID seen, first-seen order.
func (s *Scouts) IDs() []string {
	return s.ids
}

// Records returns each scout's record for id, in store order.
func (s *Scouts) Records(id string) []schema.ScoutRecord {
	return s.byID[id]
}

// #endregion scouts

// #region prompt

// SharedInventory is the first inventory among the records that carries real
// detector output, or the no-detector sentinel.
func SharedInventory(records []schema.ScoutRecord) string {
	for _, r := range records {
		if schema.HasGrounding(r.Inventory) {
			return r.Inventory
		}
	}
	return schema.NoDetectorInventory
}

// BuildPrompt renders the synthesis request: the shared inventory followed by a
// condensed report per scout (trace prefix plus structured fields only).
func BuildPrompt(inventory string, records []schema.ScoutRecord, tracePrefix int) (string, error) {
	var b strings.Builder
	b.WriteString("### SYMBOLIC GROUNDING (DETECTOR):\n")
	b.WriteString(inventory)
	b.WriteString("\n\n### SCOUT REPORTS:\n")
	for i, r := range records {
		fields, err := json.Marshal(r.Annotation)
		if err != nil {
			return "", fmt.Errorf("marshal scout report: %w", err)
		}
		trace := extract.Prefix(strings.TrimSpace(r.ReasoningTrace), tracePrefix)
		if trace == "" {
			trace = "No trace"
		}
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "--- SCOUT %d ---\n[Trace]: %s...\n[JSON]: %s", i+1, trace, fields)
	}
	b.WriteString("\n\nSynthesize the Consensus JSON.")
	return b.String(), nil
}

// #endregion prompt
