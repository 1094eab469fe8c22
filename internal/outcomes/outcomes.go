// Package outcomes records per-attempt and per-decision telemetry in SQLite.
// The pipeline never reads it back for correctness or resume.
package outcomes

// #region imports
import (
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// #endregion

// #region schema

const outcomesSchema = `
CREATE TABLE IF NOT EXISTS mining_attempts (
    id            INTEGER PRIMARY KEY AUTOINCREMENT,
    run_id        TEXT NOT NULL,
    record_id     TEXT NOT NULL,
    scout         TEXT NOT NULL,
    attempt_num   INTEGER NOT NULL,
    result        TEXT NOT NULL,
    error         TEXT,
    latency_ms    INTEGER NOT NULL DEFAULT 0,
    output_tokens INTEGER NOT NULL DEFAULT 0,
    created_at    TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_mining_attempts_scout
ON mining_attempts(scout, result);

CREATE TABLE IF NOT EXISTS consensus_decisions (
    id            INTEGER PRIMARY KEY AUTOINCREMENT,
    run_id        TEXT NOT NULL,
    record_id     TEXT NOT NULL,
    scouts        TEXT NOT NULL,
    candidates    INTEGER NOT NULL,
    survivors     INTEGER NOT NULL,
    winner_index  INTEGER NOT NULL,
    score         REAL NOT NULL,
    reasons       TEXT,
    created_at    TEXT NOT NULL
);
`

// #endregion

// #region rows

// AttemptRow is one reasoning attempt made by the miner.
type AttemptRow struct {
	RunID        string
	RecordID     string
	Scout        string
	AttemptNum   int
	Result       string
	Error        string
	LatencyMS    int64
	OutputTokens int
	CreatedAt    time.Time
}

// DecisionRow is one consensus selection made by the judge.
type DecisionRow struct {
	RunID       string
	RecordID    string
	Scouts      []string
	Candidates  int
	Survivors   int
	WinnerIndex int
	Score       float64
	Reasons     []string
	CreatedAt   time.Time
}

// ScoutFailures is the per-scout attempt breakdown.
type ScoutFailures struct {
	Scout    string         `json:"scout"`
	Attempts int            `json:"attempts"`
	Failures int            `json:"failures"`
	Rate     float64        `json:"failure_rate"`
	ByResult map[string]int `json:"by_result"`
}

// #endregion

// #region store-struct

// Store persists outcome rows. Safe for concurrent use.
type Store struct {
	mu sync.Mutex
	db *sql.DB
}

// Open opens (or creates) the database at path and runs migrations.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma: %w", err)
	}
	if _, err := db.Exec(outcomesSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// #endregion

// #region record

// RecordAttempt persists a single attempt row.
func (s *Store) RecordAttempt(row AttemptRow) error {
	if row.CreatedAt.IsZero() {
		row.CreatedAt = time.Now().UTC()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec(`
		INSERT INTO mining_attempts
		(run_id, record_id, scout, attempt_num, result, error, latency_ms, output_tokens, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		row.RunID, row.RecordID, row.Scout, row.AttemptNum, row.Result,
		nullIfEmpty(row.Error), row.LatencyMS, row.OutputTokens,
		row.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("record attempt: %w", err)
	}
	return nil
}

// RecordDecision persists a single consensus decision row.
func (s *Store) RecordDecision(row DecisionRow) error {
	if row.CreatedAt.IsZero() {
		row.CreatedAt = time.Now().UTC()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec(`
		INSERT INTO consensus_decisions
		(run_id, record_id, scouts, candidates, survivors, winner_index, score, reasons, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		row.RunID, row.RecordID, strings.Join(row.Scouts, ","), row.Candidates,
		row.Survivors, row.WinnerIndex, row.Score,
		nullIfEmpty(strings.Join(row.Reasons, "; ")),
		row.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("record decision: %w", err)
	}
	return nil
}

// #endregion

// #region queries

// FailureRates aggregates attempts by scout and result, ordered by scout.
func (s *Store) FailureRates() ([]ScoutFailures, error) {
	rows, err := s.db.Query(`
		SELECT scout, result, COUNT(*)
		FROM mining_attempts
		GROUP BY scout, result
		ORDER BY scout, result`)
	if err != nil {
		return nil, fmt.Errorf("query failure rates: %w", err)
	}
	defer rows.Close()

	var out []ScoutFailures
	for rows.Next() {
		var scout, result string
		var n int
		if err := rows.Scan(&scout, &result, &n); err != nil {
			return nil, err
		}
		if len(out) == 0 || out[len(out)-1].Scout != scout {
			out = append(out, ScoutFailures{Scout: scout, ByResult: make(map[string]int)})
		}
		cur := &out[len(out)-1]
		cur.ByResult[result] = n
		cur.Attempts += n
		if result != "ok" {
			cur.Failures += n
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range out {
		if out[i].Attempts > 0 {
			out[i].Rate = float64(out[i].Failures) / float64(out[i].Attempts)
		}
	}
	return out, nil
}

// DecisionCount returns the number of consensus decisions and their mean score.
func (s *Store) DecisionCount() (int, float64, error) {
	var n int
	var avg sql.NullFloat64
	if err := s.db.QueryRow(`SELECT COUNT(*), AVG(score) FROM consensus_decisions`).Scan(&n, &avg); err != nil {
		return 0, 0, fmt.Errorf("query decisions: %w", err)
	}
	return n, avg.Float64, nil
}

// #endregion

// #region helpers
func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// #endregion
