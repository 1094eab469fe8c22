package miner

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/danielpatrickdp/scenario-miner/internal/logging"
)

func TestRetryPolicy_MaxAttempts(t *testing.T) {
	p := DefaultRetryPolicy()

	// 3 attempts already made, no more retries
	attempts := []logging.Attempt{
		{N: 1, Result: logging.ResultSchema},
		{N: 2, Result: logging.ResultNoObject},
		{N: 3, Result: logging.ResultTransport},
	}
	if retry, _ := p.ShouldRetry(attempts); retry {
		t.Error("should not retry after 3 attempts")
	}
}

func TestRetryPolicy_SuccessNoRetry(t *testing.T) {
	p := DefaultRetryPolicy()
	if retry, _ := p.ShouldRetry([]logging.Attempt{{N: 1, Result: logging.ResultOK}}); retry {
		t.Error("should not retry a successful attempt")
	}
	if retry, _ := p.ShouldRetry(nil); retry {
		t.Error("should not retry with no attempts")
	}
}

func TestRetryPolicy_Backoff(t *testing.T) {
	p := DefaultRetryPolicy()
	tests := []struct {
		result string
		want   time.Duration
	}{
		{logging.ResultTransport, 2 * time.Second},
		{logging.ResultNoObject, time.Second},
		{logging.ResultSchema, time.Second},
	}
	for _, tt := range tests {
		retry, wait := p.ShouldRetry([]logging.Attempt{{N: 1, Result: tt.result}})
		if !retry {
			t.Errorf("%s: expected retry", tt.result)
		}
		if wait != tt.want {
			t.Errorf("%s: wait %v, want %v", tt.result, wait, tt.want)
		}
	}
}

func TestSleepContext_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	start := time.Now()
	if err := sleepContext(ctx, time.Hour); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if time.Since(start) > time.Second {
		t.Error("cancelled sleep should return immediately")
	}
	if err := sleepContext(context.Background(), 0); err != nil {
		t.Errorf("zero sleep: %v", err)
	}
}
