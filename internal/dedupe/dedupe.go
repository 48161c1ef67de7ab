// Package dedupe decides whether a candidate repeats a lead the same user
// already accepted recently, or a confirmed customer.
package dedupe

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/leadgate/internal/model"
	"github.com/sells-group/leadgate/internal/normalize"
	"github.com/sells-group/leadgate/internal/store"
)

// DefaultWindow is how far back accepted leads count as duplicates.
const DefaultWindow = 180 * 24 * time.Hour

// Config tunes the Detector.
type Config struct {
	// Window bounds the lookback over the user's accepted leads.
	Window time.Duration
	// ByName also matches on business name when the phone finds nothing.
	ByName bool
}

// Detector checks candidates against stored leads and customers.
type Detector struct {
	st  store.Reader
	cfg Config
	now func() time.Time
}

// New creates a Detector.
func New(st store.Reader, cfg Config) *Detector {
	if cfg.Window <= 0 {
		cfg.Window = DefaultWindow
	}
	return &Detector{st: st, cfg: cfg, now: time.Now}
}

// Window returns the configured lookback.
func (d *Detector) Window() time.Duration { return d.cfg.Window }

// Check returns a reference to the earlier record the candidate duplicates,
// or nil. phone must already be normalized.
func (d *Detector) Check(ctx context.Context, userID, phone, name string) (*model.LeadRef, error) {
	since := d.now().Add(-d.cfg.Window)

	if phone != "" {
		lead, err := d.st.FindAcceptedLead(ctx, userID, phone, since)
		if err != nil {
			return nil, eris.Wrap(err, "dedupe: leads by phone")
		}
		if lead != nil {
			ref := lead.Ref()
			return &ref, nil
		}

		cust, err := d.st.FindCustomerByPhone(ctx, phone)
		if err != nil {
			return nil, eris.Wrap(err, "dedupe: customers by phone")
		}
		if cust != nil {
			return &model.LeadRef{ID: cust.ID, Kind: model.RefKindCustomer}, nil
		}
	}

	name = normalize.Name(name)
	if d.cfg.ByName && name != "" {
		lead, err := d.st.FindAcceptedLeadByName(ctx, userID, name, since)
		if err != nil {
			return nil, eris.Wrap(err, "dedupe: leads by name")
		}
		if lead != nil {
			ref := lead.Ref()
			return &ref, nil
		}
	}
	return nil, nil
}
