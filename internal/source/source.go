// Package source provides the lead sources that feed the validation
// pipeline: static lists, CSV files, an LLM prospecting prompt and the
// Notion lead queue.
package source

import (
	"context"
	"errors"

	"github.com/rotisserie/eris"

	"github.com/sells-group/leadgate/internal/model"
)

// ErrDone is returned by Next when a source has no more items.
var ErrDone = eris.New("source: done")

// Item is one raw candidate. UserID is set when the source knows whose
// lead it is; callers fall back to their own user otherwise.
type Item struct {
	UserID    string              `json:"user_id,omitempty"`
	Candidate model.CandidateLead `json:"candidate"`
}

// Source yields candidates one at a time until ErrDone.
type Source interface {
	Next(ctx context.Context) (Item, error)
}

// Outcomes reported back to sources that track per-item state.
const (
	OutcomeAccepted = "accepted"
	OutcomeRejected = "rejected"
	OutcomeFailed   = "failed"
)

// Acker is implemented by sources that record what became of each item.
type Acker interface {
	Ack(ctx context.Context, it Item, outcome, note string) error
}

// Collect drains src. limit <= 0 means no limit.
func Collect(ctx context.Context, src Source, limit int) ([]Item, error) {
	var out []Item
	for limit <= 0 || len(out) < limit {
		it, err := src.Next(ctx)
		if errors.Is(err, ErrDone) {
			break
		}
		if err != nil {
			return out, err
		}
		out = append(out, it)
	}
	return out, nil
}

// Static yields a fixed list of candidates for one user.
type Static struct {
	userID string
	cands  []model.CandidateLead
	pos    int
}

// NewStatic creates a Static source.
func NewStatic(userID string, cands ...model.CandidateLead) *Static {
	return &Static{userID: userID, cands: cands}
}

// Next implements Source.
func (s *Static) Next(ctx context.Context) (Item, error) {
	if err := ctx.Err(); err != nil {
		return Item{}, err
	}
	if s.pos >= len(s.cands) {
		return Item{}, ErrDone
	}
	it := Item{UserID: s.userID, Candidate: s.cands[s.pos]}
	s.pos++
	return it, nil
}
