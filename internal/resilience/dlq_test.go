package resilience

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDLQEntry_Schedule(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		retries   int
		canRetry  bool
		nextAfter time.Duration
	}{
		{0, true, time.Minute},
		{2, true, 4 * time.Minute},
		{3, false, 8 * time.Minute},
		{40, false, 24 * time.Hour},
	}
	for _, tt := range tests {
		e := DLQEntry{RetryCount: tt.retries, MaxRetries: 3}
		assert.Equal(t, tt.canRetry, e.CanRetry(), "retries=%d", tt.retries)
		assert.Equal(t, now.Add(tt.nextAfter), e.NextBackoff(now, time.Minute), "retries=%d", tt.retries)
	}
}

func TestClassifyError(t *testing.T) {
	assert.Equal(t, ErrorTypeTransient, ClassifyError(Transient(errors.New("resolver busy"))))
	assert.Equal(t, ErrorTypeTransient, ClassifyError(errors.New("database is locked (5) (SQLITE_BUSY)")))
	assert.Equal(t, ErrorTypePermanent, ClassifyError(errors.New("candidate has no phone")))
}
