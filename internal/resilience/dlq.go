package resilience

import (
	"math"
	"time"

	"github.com/sells-group/leadgate/internal/model"
)

// Error types recorded on dead letter entries.
const (
	ErrorTypeTransient = "transient"
	ErrorTypePermanent = "permanent"
)

// DLQEntry is a candidate whose pipeline run failed and can be retried later.
type DLQEntry struct {
	ID           string              `json:"id"`
	UserID       string              `json:"user_id"`
	Candidate    model.CandidateLead `json:"candidate"`
	Error        string              `json:"error"`
	ErrorType    string              `json:"error_type"`
	FailedState  string              `json:"failed_state,omitempty"`
	RetryCount   int                 `json:"retry_count"`
	MaxRetries   int                 `json:"max_retries"`
	NextRetryAt  time.Time           `json:"next_retry_at"`
	CreatedAt    time.Time           `json:"created_at"`
	LastFailedAt time.Time           `json:"last_failed_at"`
}

// DLQFilter specifies criteria for querying the dead letter queue.
type DLQFilter struct {
	UserID    string `json:"user_id,omitempty"`
	ErrorType string `json:"error_type,omitempty"` // empty matches both
	Limit     int    `json:"limit,omitempty"`
}

// CanRetry returns true if this entry hasn't exceeded its max retry count.
func (e *DLQEntry) CanRetry() bool {
	return e.RetryCount < e.MaxRetries
}

// NextBackoff returns when the entry should next be retried: base doubled
// per prior retry, capped at one day.
func (e *DLQEntry) NextBackoff(now time.Time, base time.Duration) time.Time {
	d := time.Duration(float64(base) * math.Pow(2, float64(e.RetryCount)))
	if d <= 0 || d > 24*time.Hour {
		d = 24 * time.Hour
	}
	return now.Add(d)
}

// ClassifyError returns ErrorTypeTransient or ErrorTypePermanent.
func ClassifyError(err error) string {
	if IsTransient(err) {
		return ErrorTypeTransient
	}
	return ErrorTypePermanent
}
