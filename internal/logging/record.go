package logging

import (
	"time"

	"github.com/google/uuid"

	"github.com/danielpatrickdp/scenario-miner/internal/schema"
)

// #region run-id
// NewRunID returns a fresh identifier shared by every LogRecord of one run.
func NewRunID() string {
	return uuid.New().String()
}
// #endregion run-id

// #region derived
// TokensPerSec derives output throughput from usage and reasoning time.
// Returns 0 when either is missing.
func TokensPerSec(u *schema.Usage, reasoning time.Duration) float64 {
	if u == nil || reasoning <= 0 {
		return 0
	}
	return float64(u.OutputTokens) / reasoning.Seconds()
}

// LastError returns the error message of the final failed attempt, if any.
func (r *LogRecord) LastError() string {
	for i := len(r.Attempts) - 1; i >= 0; i-- {
		if r.Attempts[i].Error != "" {
			return r.Attempts[i].Error
		}
	}
	return r.Error
}
// #endregion derived
