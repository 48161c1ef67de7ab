package notion

import (
	"context"
	"strconv"
	"strings"

	"github.com/jomei/notionapi"
	"github.com/rotisserie/eris"
)

// Property names used by the lead queue database.
const (
	PropName   = "Name"
	PropStatus = "Status"
	PropUser   = "User"
	PropResult = "Result"
)

// Lead queue statuses.
const (
	StatusQueued   = "Queued"
	StatusAccepted = "Accepted"
	StatusRejected = "Rejected"
	StatusFailed   = "Failed"
)

// QueryAll pages through a database query until Notion reports no more
// results. filter may be nil; its Filter, Sorts and PageSize apply to every
// page. Throttling is the Client's job.
func QueryAll(ctx context.Context, c Client, dbID string, filter *notionapi.DatabaseQueryRequest) ([]notionapi.Page, error) {
	var all []notionapi.Page
	var cursor notionapi.Cursor
	for n := 1; ; n++ {
		if err := ctx.Err(); err != nil {
			return nil, eris.Wrap(err, "notion: query all")
		}
		req := &notionapi.DatabaseQueryRequest{StartCursor: cursor}
		if filter != nil {
			req.Filter, req.Sorts, req.PageSize = filter.Filter, filter.Sorts, filter.PageSize
		}
		resp, err := c.QueryDatabase(ctx, dbID, req)
		if err != nil {
			return nil, eris.Wrapf(err, "notion: query all page %d", n)
		}
		all = append(all, resp.Results...)
		if !resp.HasMore {
			return all, nil
		}
		cursor = resp.NextCursor
	}
}

// QueryQueuedLeads returns every page of dbID still waiting for validation.
func QueryQueuedLeads(ctx context.Context, c Client, dbID string) ([]notionapi.Page, error) {
	filter := &notionapi.DatabaseQueryRequest{
		Filter: notionapi.PropertyFilter{
			Property: PropStatus,
			Status: &notionapi.StatusFilterCondition{
				Equals: StatusQueued,
			},
		},
	}
	pages, err := QueryAll(ctx, c, dbID, filter)
	if err != nil {
		return nil, eris.Wrap(err, "notion: query queued leads")
	}
	return pages, nil
}

// PageFields flattens a page's properties into plain values keyed by
// property name. Text-like properties become strings, numbers stay float64,
// and property types the lead queue does not use are skipped.
func PageFields(page notionapi.Page) map[string]any {
	out := make(map[string]any, len(page.Properties))
	for name, prop := range page.Properties {
		switch p := prop.(type) {
		case *notionapi.TitleProperty:
			out[name] = plainText(p.Title)
		case *notionapi.RichTextProperty:
			out[name] = plainText(p.RichText)
		case *notionapi.URLProperty:
			out[name] = p.URL
		case *notionapi.EmailProperty:
			out[name] = p.Email
		case *notionapi.PhoneNumberProperty:
			out[name] = p.PhoneNumber
		case *notionapi.SelectProperty:
			out[name] = p.Select.Name
		case *notionapi.StatusProperty:
			out[name] = p.Status.Name
		case *notionapi.NumberProperty:
			out[name] = p.Number
		}
	}
	return out
}

// FieldString returns fields[key] rendered as a trimmed string.
func FieldString(fields map[string]any, key string) string {
	switch v := fields[key].(type) {
	case string:
		return strings.TrimSpace(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return ""
	}
}

func plainText(rt []notionapi.RichText) string {
	var b strings.Builder
	for _, r := range rt {
		switch {
		case r.PlainText != "":
			b.WriteString(r.PlainText)
		case r.Text != nil:
			b.WriteString(r.Text.Content)
		}
	}
	return strings.TrimSpace(b.String())
}

// MarkStatus moves a queued lead page to status and records note in the
// Result property.
func MarkStatus(ctx context.Context, c Client, pageID, status, note string) error {
	req := &notionapi.PageUpdateRequest{
		Properties: notionapi.Properties{
			PropStatus: notionapi.StatusProperty{
				Status: notionapi.Status{Name: status},
			},
			PropResult: richText(note),
		},
	}
	if _, err := c.UpdatePage(ctx, pageID, req); err != nil {
		return eris.Wrapf(err, "notion: mark page %s %s", pageID, status)
	}
	return nil
}

func richText(v string) notionapi.RichTextProperty {
	return notionapi.RichTextProperty{
		Type: notionapi.PropertyTypeRichText,
		RichText: []notionapi.RichText{
			{Type: notionapi.ObjectTypeText, Text: &notionapi.Text{Content: v}},
		},
	}
}
