// Package config holds the run configuration of the miner and judge commands.
// Defaults come from environment variables; command flags override them.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// #region mining
// Mining configures one scout run.
type Mining struct {
	Scout            string // backend model id
	OutputName       string // store suffix: index_<name>.jsonl, logs_<name>.jsonl
	OutputDir        string
	Workers          int
	Limit            int // 0 means all records
	FramesPerScene   int // 0 means every sample
	MinViews         int
	MaxAttempts      int
	ParseBackoff     time.Duration
	TransportBackoff time.Duration
	Temperature      float64
	MaxTokens        int
	OutcomesDB       string // optional telemetry database
	LockRedis        string // optional redis addr for the store lock
}

// DefaultMining returns mining defaults.
// Reads from env vars: MINER_OUTPUT_DIR, MINER_WORKERS, MINER_MIN_VIEWS,
// MINER_PARSE_BACKOFF_MS, MINER_TRANSPORT_BACKOFF_MS, OUTCOMES_DB, LOCK_REDIS.
func DefaultMining() Mining {
	return Mining{
		OutputDir:        envOr("MINER_OUTPUT_DIR", "output"),
		Workers:          envInt("MINER_WORKERS", 1),
		MinViews:         envInt("MINER_MIN_VIEWS", 3),
		MaxAttempts:      3,
		ParseBackoff:     envMillis("MINER_PARSE_BACKOFF_MS", time.Second),
		TransportBackoff: envMillis("MINER_TRANSPORT_BACKOFF_MS", 2*time.Second),
		Temperature:      0.1,
		MaxTokens:        16384,
		OutcomesDB:       os.Getenv("OUTCOMES_DB"),
		LockRedis:        os.Getenv("LOCK_REDIS"),
	}
}

// IndexPath is the clean ScoutRecord store.
func (m Mining) IndexPath() string {
	return filepath.Join(m.OutputDir, "index_"+m.OutputName+".jsonl")
}

// LogPath is the full LogRecord store.
func (m Mining) LogPath() string {
	return filepath.Join(m.OutputDir, "logs_"+m.OutputName+".jsonl")
}

// Validate reports usage errors.
func (m Mining) Validate() error {
	switch {
	case m.Scout == "":
		return fmt.Errorf("scout model id is required")
	case m.OutputName == "":
		return fmt.Errorf("output name is required")
	case m.Workers < 1:
		return fmt.Errorf("workers must be >= 1, got %d", m.Workers)
	case m.MaxAttempts < 1:
		return fmt.Errorf("max attempts must be >= 1, got %d", m.MaxAttempts)
	case m.MinViews < 1:
		return fmt.Errorf("min views must be >= 1, got %d", m.MinViews)
	}
	return nil
}
// #endregion mining

// #region judge
// Judge configures one consensus run.
type Judge struct {
	Model       string
	Files       []string
	Output      string
	N           int
	Temperature float64
	MaxTokens   int
	TracePrefix int // runes of each scout's reasoning trace shown to the judge
	Workers     int
	RPS         float64 // synthesis requests per second; 0 disables the limit
	Burst       int
	OutcomesDB  string
	LockRedis   string
}

// DefaultJudge returns judge defaults.
// Reads from env vars: JUDGE_MODEL, JUDGE_WORKERS, JUDGE_RPS, OUTCOMES_DB, LOCK_REDIS.
func DefaultJudge() Judge {
	return Judge{
		Model:       envOr("JUDGE_MODEL", "judge"),
		Output:      filepath.Join("output", "consensus.jsonl"),
		N:           3,
		Temperature: 0.3,
		MaxTokens:   16384,
		TracePrefix: 500,
		Workers:     envInt("JUDGE_WORKERS", 4),
		RPS:         envFloat("JUDGE_RPS", 2),
		Burst:       1,
		OutcomesDB:  os.Getenv("OUTCOMES_DB"),
		LockRedis:   os.Getenv("LOCK_REDIS"),
	}
}

// Validate reports usage errors.
func (j Judge) Validate() error {
	switch {
	case len(j.Files) == 0:
		return fmt.Errorf("at least one scout index file is required")
	case j.Output == "":
		return fmt.Errorf("output path is required")
	case j.N < 1:
		return fmt.Errorf("n must be >= 1, got %d", j.N)
	case j.Workers < 1:
		return fmt.Errorf("workers must be >= 1, got %d", j.Workers)
	case j.RPS < 0:
		return fmt.Errorf("rps must be >= 0, got %v", j.RPS)
	}
	for _, f := range j.Files {
		if filepath.Clean(f) == filepath.Clean(j.Output) {
			return fmt.Errorf("output %s is also an input", j.Output)
		}
	}
	return nil
}
// #endregion judge

// #region helpers
func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f >= 0 {
			return f
		}
	}
	return fallback
}

func envMillis(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if ms, err := strconv.Atoi(v); err == nil && ms >= 0 {
			return time.Duration(ms) * time.Millisecond
		}
	}
	return fallback
}
// #endregion helpers
