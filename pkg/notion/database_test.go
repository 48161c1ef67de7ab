package notion

import (
	"context"
	"fmt"
	"testing"

	"github.com/jomei/notionapi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// expectPages scripts one QueryDatabase call per batch, chained by cursor,
// each checked with match.
func expectPages(mc *MockClient, dbID string, match func(*notionapi.DatabaseQueryRequest) bool, batches ...[]notionapi.Page) {
	for i, batch := range batches {
		cursor := notionapi.Cursor("")
		if i > 0 {
			cursor = notionapi.Cursor(fmt.Sprintf("c%d", i))
		}
		resp := &notionapi.DatabaseQueryResponse{Results: batch}
		if i < len(batches)-1 {
			resp.HasMore = true
			resp.NextCursor = notionapi.Cursor(fmt.Sprintf("c%d", i+1))
		}
		mc.On("QueryDatabase", mock.Anything, dbID, mock.MatchedBy(func(req *notionapi.DatabaseQueryRequest) bool {
			return req.StartCursor == cursor && (match == nil || match(req))
		})).Return(resp, nil).Once()
	}
}

func ids(pages []notionapi.Page) []string {
	out := make([]string, len(pages))
	for i, p := range pages {
		out[i] = string(p.ID)
	}
	return out
}

func TestQueryAll(t *testing.T) {
	sorted := &notionapi.DatabaseQueryRequest{
		Sorts:    []notionapi.SortObject{{Property: PropName, Direction: notionapi.SortOrderASC}},
		PageSize: 2,
	}
	queued := &notionapi.DatabaseQueryRequest{
		Filter: notionapi.PropertyFilter{
			Property: PropStatus,
			Status:   &notionapi.StatusFilterCondition{Equals: StatusQueued},
		},
	}

	tests := []struct {
		name    string
		filter  *notionapi.DatabaseQueryRequest
		match   func(*notionapi.DatabaseQueryRequest) bool
		batches [][]notionapi.Page
		want    []string
	}{
		{
			name:    "single page",
			batches: [][]notionapi.Page{{{ID: "p1"}, {ID: "p2"}}},
			want:    []string{"p1", "p2"},
		},
		{
			name:    "follows cursor",
			batches: [][]notionapi.Page{{{ID: "p1"}}, {{ID: "p2"}}, {{ID: "p3"}}},
			want:    []string{"p1", "p2", "p3"},
		},
		{
			name:   "sorts and page size on every page",
			filter: sorted,
			match: func(req *notionapi.DatabaseQueryRequest) bool {
				return req.PageSize == 2 && len(req.Sorts) == 1 && req.Sorts[0].Property == PropName
			},
			batches: [][]notionapi.Page{{{ID: "p1"}, {ID: "p2"}}, {{ID: "p3"}}},
			want:    []string{"p1", "p2", "p3"},
		},
		{
			name:   "status filter",
			filter: queued,
			match: func(req *notionapi.DatabaseQueryRequest) bool {
				pf, ok := req.Filter.(notionapi.PropertyFilter)
				return ok && pf.Status != nil && pf.Status.Equals == StatusQueued
			},
			batches: [][]notionapi.Page{{{ID: "lead-9"}}},
			want:    []string{"lead-9"},
		},
		{
			name:    "empty database",
			batches: [][]notionapi.Page{nil},
			want:    []string{},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mc := new(MockClient)
			expectPages(mc, "db-1", tt.match, tt.batches...)

			pages, err := QueryAll(context.Background(), mc, "db-1", tt.filter)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ids(pages))
			mc.AssertExpectations(t)
		})
	}
}

func TestQueryAll_ErrorNamesPage(t *testing.T) {
	mc := new(MockClient)
	mc.On("QueryDatabase", mock.Anything, "db-1", mock.MatchedBy(func(req *notionapi.DatabaseQueryRequest) bool {
		return req.StartCursor == ""
	})).Return(&notionapi.DatabaseQueryResponse{
		Results:    []notionapi.Page{{ID: "p1"}},
		HasMore:    true,
		NextCursor: "c1",
	}, nil).Once()
	mc.On("QueryDatabase", mock.Anything, "db-1", mock.Anything).Return(nil, assert.AnError).Once()

	pages, err := QueryAll(context.Background(), mc, "db-1", nil)
	assert.ErrorIs(t, err, assert.AnError)
	assert.ErrorContains(t, err, "notion: query all page 2")
	assert.Nil(t, pages)
	mc.AssertExpectations(t)
}

func TestQueryAll_ContextCancelled(t *testing.T) {
	mc := new(MockClient)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	pages, err := QueryAll(ctx, mc, "db-1", nil)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, pages)
	mc.AssertNotCalled(t, "QueryDatabase", mock.Anything, mock.Anything, mock.Anything)
}

func TestQueryQueuedLeads(t *testing.T) {
	mc := new(MockClient)
	ctx := context.Background()

	mc.On("QueryDatabase", ctx, "db-leads", mock.MatchedBy(func(req *notionapi.DatabaseQueryRequest) bool {
		pf, ok := req.Filter.(notionapi.PropertyFilter)
		if !ok {
			return false
		}
		return pf.Property == "Status" && pf.Status != nil && pf.Status.Equals == "Queued"
	})).Return(&notionapi.DatabaseQueryResponse{
		Results: []notionapi.Page{{ID: "lead-1"}, {ID: "lead-2"}},
		HasMore: false,
	}, nil).Once()

	pages, err := QueryQueuedLeads(ctx, mc, "db-leads")
	assert.NoError(t, err)
	assert.Len(t, pages, 2)
	mc.AssertExpectations(t)
}

func TestQueryQueuedLeads_Error(t *testing.T) {
	mc := new(MockClient)
	ctx := context.Background()

	mc.On("QueryDatabase", ctx, "db-err", mock.Anything).Return(nil, assert.AnError).Once()

	pages, err := QueryQueuedLeads(ctx, mc, "db-err")
	assert.ErrorContains(t, err, "notion: query queued leads")
	assert.Nil(t, pages)
}

func TestPageFields(t *testing.T) {
	page := notionapi.Page{
		ID: "lead-1",
		Properties: notionapi.Properties{
			"Name": &notionapi.TitleProperty{Title: []notionapi.RichText{
				{PlainText: "Clínica "}, {Text: &notionapi.Text{Content: "Dental"}},
			}},
			"Phone":     &notionapi.PhoneNumberProperty{PhoneNumber: "+56 9 8274 5193"},
			"Email":     &notionapi.EmailProperty{Email: "contacto@sonrisa.cl"},
			"URL":       &notionapi.URLProperty{URL: "https://sonrisa.cl"},
			"rubro":     &notionapi.SelectProperty{Select: notionapi.Option{Name: "salud"}},
			"Status":    &notionapi.StatusProperty{Status: notionapi.Status{Name: "Queued"}},
			"User":      &notionapi.RichTextProperty{RichText: []notionapi.RichText{{PlainText: " u1 "}}},
			"Empleados": &notionapi.NumberProperty{Number: 12},
			"Activo":    &notionapi.CheckboxProperty{Checkbox: true},
		},
	}

	f := PageFields(page)
	assert.Equal(t, "Clínica Dental", f["Name"])
	assert.Equal(t, "+56 9 8274 5193", f["Phone"])
	assert.Equal(t, "contacto@sonrisa.cl", f["Email"])
	assert.Equal(t, "https://sonrisa.cl", f["URL"])
	assert.Equal(t, "salud", f["rubro"])
	assert.Equal(t, "Queued", f["Status"])
	assert.Equal(t, "u1", FieldString(f, "User"))
	assert.Equal(t, "12", FieldString(f, "Empleados"))
	assert.NotContains(t, f, "Activo")
	assert.Equal(t, "", FieldString(f, "missing"))
}

func TestMarkStatus(t *testing.T) {
	mc := new(MockClient)
	ctx := context.Background()

	mc.On("UpdatePage", ctx, "lead-1", mock.MatchedBy(func(req *notionapi.PageUpdateRequest) bool {
		st, ok := req.Properties[PropStatus].(notionapi.StatusProperty)
		if !ok || st.Status.Name != StatusRejected {
			return false
		}
		note, ok := req.Properties[PropResult].(notionapi.RichTextProperty)
		return ok && note.RichText[0].Text.Content == "duplicate"
	})).Return(&notionapi.Page{ID: "lead-1"}, nil).Once()

	assert.NoError(t, MarkStatus(ctx, mc, "lead-1", StatusRejected, "duplicate"))
	mc.AssertExpectations(t)
}

func TestMarkStatus_Error(t *testing.T) {
	mc := new(MockClient)
	ctx := context.Background()
	mc.On("UpdatePage", ctx, "lead-1", mock.Anything).Return(nil, assert.AnError).Once()

	err := MarkStatus(ctx, mc, "lead-1", StatusFailed, "boom")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "notion: mark page lead-1 Failed")
}
