package source

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/leadgate/internal/normalize"
	"github.com/sells-group/leadgate/pkg/notion"
)

// Notion yields the queued pages of a Notion lead database. Each item's
// SourceRef is its page ID, and the page's User property, when present,
// overrides the default user.
type Notion struct {
	client      notion.Client
	dbID        string
	defaultUser string

	fetched bool
	items   []Item
	pos     int
}

// NewNotion creates a Notion queue source.
func NewNotion(client notion.Client, dbID, defaultUser string) *Notion {
	return &Notion{client: client, dbID: dbID, defaultUser: defaultUser}
}

// Next implements Source.
func (n *Notion) Next(ctx context.Context) (Item, error) {
	if err := ctx.Err(); err != nil {
		return Item{}, err
	}
	if !n.fetched {
		pages, err := notion.QueryQueuedLeads(ctx, n.client, n.dbID)
		if err != nil {
			return Item{}, eris.Wrap(err, "source: notion queue")
		}
		n.items = make([]Item, 0, len(pages))
		for _, p := range pages {
			fields := notion.PageFields(p)
			c := normalize.Record(fields)
			c.SourceRef = string(p.ID)
			user := notion.FieldString(fields, notion.PropUser)
			if user == "" {
				user = n.defaultUser
			}
			n.items = append(n.items, Item{UserID: user, Candidate: c})
		}
		n.fetched = true
	}
	if n.pos >= len(n.items) {
		return Item{}, ErrDone
	}
	it := n.items[n.pos]
	n.pos++
	return it, nil
}

// Ack moves the item's page out of the queue.
func (n *Notion) Ack(ctx context.Context, it Item, outcome, note string) error {
	if it.Candidate.SourceRef == "" {
		return nil
	}
	status := notion.StatusFailed
	switch outcome {
	case OutcomeAccepted:
		status = notion.StatusAccepted
	case OutcomeRejected:
		status = notion.StatusRejected
	}
	return notion.MarkStatus(ctx, n.client, it.Candidate.SourceRef, status, note)
}
