package config

import (
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultMining(t *testing.T) {
	t.Setenv("MINER_OUTPUT_DIR", "/tmp/out")
	t.Setenv("MINER_WORKERS", "8")
	t.Setenv("MINER_PARSE_BACKOFF_MS", "0")
	t.Setenv("MINER_MIN_VIEWS", "bogus")

	m := DefaultMining()
	if m.OutputDir != "/tmp/out" || m.Workers != 8 {
		t.Errorf("env not applied: %+v", m)
	}
	if m.ParseBackoff != 0 {
		t.Errorf("zero backoff should be allowed, got %v", m.ParseBackoff)
	}
	if m.TransportBackoff != 2*time.Second {
		t.Errorf("transport backoff default: got %v", m.TransportBackoff)
	}
	if m.MinViews != 3 {
		t.Errorf("invalid env should keep default, got %d", m.MinViews)
	}
	if m.MaxAttempts != 3 {
		t.Errorf("max attempts: got %d", m.MaxAttempts)
	}

	m.OutputName = "qwen_run"
	if got := m.IndexPath(); got != filepath.Join("/tmp/out", "index_qwen_run.jsonl") {
		t.Errorf("index path: got %s", got)
	}
	if got := m.LogPath(); got != filepath.Join("/tmp/out", "logs_qwen_run.jsonl") {
		t.Errorf("log path: got %s", got)
	}
}

func TestMiningValidate(t *testing.T) {
	base := DefaultMining()
	base.Scout = "m"
	base.OutputName = "run"
	if err := base.Validate(); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}

	tests := []struct {
		name string
		mod  func(*Mining)
	}{
		{"no scout", func(m *Mining) { m.Scout = "" }},
		{"no output", func(m *Mining) { m.OutputName = "" }},
		{"zero workers", func(m *Mining) { m.Workers = 0 }},
		{"zero attempts", func(m *Mining) { m.MaxAttempts = 0 }},
	}
	for _, tt := range tests {
		m := base
		tt.mod(&m)
		if err := m.Validate(); err == nil {
			t.Errorf("%s: expected error", tt.name)
		}
	}
}

func TestJudgeValidate(t *testing.T) {
	j := DefaultJudge()
	if j.N != 3 || j.Temperature != 0.3 || j.TracePrefix != 500 {
		t.Errorf("judge defaults: %+v", j)
	}
	if err := j.Validate(); err == nil {
		t.Error("missing files should fail")
	}
	j.Files = []string{"a.jsonl", "b.jsonl"}
	if err := j.Validate(); err != nil {
		t.Errorf("valid config rejected: %v", err)
	}
	j.Output = "./a.jsonl"
	if err := j.Validate(); err == nil {
		t.Error("output equal to an input should fail")
	}
}
