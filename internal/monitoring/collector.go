// Package monitoring watches lead quality and the dead letter queue and
// posts webhook alerts when thresholds are breached.
package monitoring

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/leadgate/internal/model"
	"github.com/sells-group/leadgate/internal/store"
)

// collectPageSize bounds each lead query.
const collectPageSize = 1000

// MetricsSnapshot holds a point-in-time view of system health.
type MetricsSnapshot struct {
	// Leads persisted within the lookback window.
	LeadsTotal       int `json:"leads_total"`
	LeadsAccepted    int `json:"leads_accepted"`
	LeadsInvalidated int `json:"leads_invalidated"`
	LeadsDuplicate   int `json:"leads_duplicate"`
	LeadsCharged     int `json:"leads_charged"`
	LeadsRefunded    int `json:"leads_refunded"`
	LeadsAudited     int `json:"leads_audited"`
	Users            int `json:"users"`

	// RefundRate is refunded over charged leads.
	RefundRate float64 `json:"refund_rate"`

	// DLQ depth.
	DLQDepth int `json:"dlq_depth"`

	// Metadata.
	LookbackHours int       `json:"lookback_hours"`
	CollectedAt   time.Time `json:"collected_at"`
}

// Source is the part of the store the collector reads.
type Source interface {
	ListLeads(ctx context.Context, filter store.LeadFilter) ([]model.PersistedLead, error)
	CountDLQ(ctx context.Context) (int, error)
}

// Collector gathers metrics from the store.
type Collector struct {
	store Source
	now   func() time.Time
}

// NewCollector creates a new metrics collector.
func NewCollector(st Source) *Collector {
	return &Collector{store: st, now: time.Now}
}

// Collect gathers a snapshot of lead metrics over the given lookback window.
func (c *Collector) Collect(ctx context.Context, lookbackHours int) (*MetricsSnapshot, error) {
	now := c.now().UTC()
	snap := &MetricsSnapshot{
		LookbackHours: lookbackHours,
		CollectedAt:   now,
	}

	filter := store.LeadFilter{
		Since: now.Add(-time.Duration(lookbackHours) * time.Hour),
		Limit: collectPageSize,
	}
	users := make(map[string]struct{})
	for {
		page, err := c.store.ListLeads(ctx, filter)
		if err != nil {
			return nil, eris.Wrap(err, "monitoring: list leads")
		}
		for i := range page {
			l := &page[i]
			snap.LeadsTotal++
			users[l.UserID] = struct{}{}
			switch l.Status {
			case model.LeadStatusAccepted:
				snap.LeadsAccepted++
			case model.LeadStatusRejectedInvalid:
				snap.LeadsInvalidated++
			case model.LeadStatusRejectedDuplicate:
				snap.LeadsDuplicate++
			}
			if l.CreditCharged {
				snap.LeadsCharged++
			}
			if l.CreditRefunded {
				snap.LeadsRefunded++
			}
			if l.AuditedAt != nil {
				snap.LeadsAudited++
			}
		}
		if len(page) < filter.Limit {
			break
		}
		filter.Offset += len(page)
	}
	snap.Users = len(users)
	if snap.LeadsCharged > 0 {
		snap.RefundRate = float64(snap.LeadsRefunded) / float64(snap.LeadsCharged)
	}

	dlqCount, err := c.store.CountDLQ(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: count dlq")
	}
	snap.DLQDepth = dlqCount

	return snap, nil
}
