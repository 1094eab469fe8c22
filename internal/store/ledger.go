package store

import (
	"encoding/json"
	"log"
	"sync"
)

// #region ledger

// Ledger is the set of record IDs already present in an index store.
type Ledger struct {
	mu  sync.RWMutex
	ids map[string]struct{}
}

// NewLedger returns an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{ids: make(map[string]struct{})}
}

// Load rebuilds the ledger from an index store. Malformed lines and lines
// without a token are skipped; a missing file yields an empty ledger.
func Load(path string) (*Ledger, error) {
	l := NewLedger()
	skipped := 0
	err := Scan(path, func(line []byte) error {
		var row struct {
			Token string `json:"token"`
		}
		if err := json.Unmarshal(line, &row); err != nil || row.Token == "" {
			skipped++
			return nil
		}
		l.ids[row.Token] = struct{}{}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if skipped > 0 {
		log.Printf("[STORE] %s: skipped %d malformed lines", path, skipped)
	}
	return l, nil
}

// Has reports whether id is already done.
func (l *Ledger) Has(id string) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	_, ok := l.ids[id]
	return ok
}

// Add marks id as done.
func (l *Ledger) Add(id string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.ids[id] = struct{}{}
}

// Len returns the number of done IDs.
func (l *Ledger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.ids)
}

// #endregion ledger
