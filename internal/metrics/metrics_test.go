package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func counterValue(t *testing.T, m *Metrics, name string, labels map[string]string) float64 {
	t.Helper()
	families, err := m.Registry().Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	for _, f := range families {
		if f.GetName() != name {
			continue
		}
	next:
		for _, metric := range f.GetMetric() {
			for _, lp := range metric.GetLabel() {
				if labels[lp.GetName()] != lp.GetValue() {
					continue next
				}
			}
			return metric.GetCounter().GetValue()
		}
	}
	return 0
}

func TestRecordAndAttempt(t *testing.T) {
	m := New()
	m.Record(StageMine, "scout-a", "success")
	m.Record(StageMine, "scout-a", "success")
	m.Record(StageMine, "scout-a", "failed")
	m.Attempt(StageMine, "schema")

	if got := counterValue(t, m, "scenario_records_total", map[string]string{"stage": "mine", "scout": "scout-a", "outcome": "success"}); got != 2 {
		t.Errorf("success count: got %v", got)
	}
	if got := counterValue(t, m, "scenario_backend_attempts_total", map[string]string{"stage": "mine", "result": "schema"}); got != 1 {
		t.Errorf("attempt count: got %v", got)
	}
}

func TestNilMetricsNoop(t *testing.T) {
	var m *Metrics
	m.Record(StageJudge, "", "success")
	m.Attempt(StageJudge, "ok")
	m.Latency(StageJudge, CallComplete, time.Second)
	m.VerifierScore(3)
}

func TestHandlerExposition(t *testing.T) {
	m := New()
	m.Latency(StageMine, CallDetect, 300*time.Millisecond)
	m.VerifierScore(5)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	for _, want := range []string{"scenario_backend_latency_seconds_bucket", "scenario_verifier_score_count 1"} {
		if !strings.Contains(string(body), want) {
			t.Errorf("exposition missing %q", want)
		}
	}
}
