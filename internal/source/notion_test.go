package source

import (
	"context"
	"testing"

	"github.com/jomei/notionapi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/leadgate/pkg/notion"
)

type mockNotion struct {
	mock.Mock
}

func (m *mockNotion) QueryDatabase(ctx context.Context, dbID string, req *notionapi.DatabaseQueryRequest) (*notionapi.DatabaseQueryResponse, error) {
	args := m.Called(ctx, dbID, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*notionapi.DatabaseQueryResponse), args.Error(1)
}

func (m *mockNotion) CreatePage(ctx context.Context, req *notionapi.PageCreateRequest) (*notionapi.Page, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*notionapi.Page), args.Error(1)
}

func (m *mockNotion) UpdatePage(ctx context.Context, pageID string, req *notionapi.PageUpdateRequest) (*notionapi.Page, error) {
	args := m.Called(ctx, pageID, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*notionapi.Page), args.Error(1)
}

func title(s string) *notionapi.TitleProperty {
	return &notionapi.TitleProperty{Title: []notionapi.RichText{{PlainText: s}}}
}

func text(s string) *notionapi.RichTextProperty {
	return &notionapi.RichTextProperty{RichText: []notionapi.RichText{{PlainText: s}}}
}

func TestNotion_NextAndAck(t *testing.T) {
	mc := new(mockNotion)
	ctx := context.Background()

	mc.On("QueryDatabase", ctx, "leads-db", mock.AnythingOfType("*notionapi.DatabaseQueryRequest")).
		Return(&notionapi.DatabaseQueryResponse{Results: []notionapi.Page{
			{
				ID: "page-1",
				Properties: notionapi.Properties{
					"Name":   title("Clínica Dental Sonrisa"),
					"Phone":  &notionapi.PhoneNumberProperty{PhoneNumber: "+56 9 8274 5193"},
					"Email":  &notionapi.EmailProperty{Email: "juan@empresa.cl"},
					"User":   text("u9"),
					"Status": &notionapi.StatusProperty{Status: notionapi.Status{Name: "Queued"}},
				},
			},
			{
				ID: "page-2",
				Properties: notionapi.Properties{
					"Name":     title("Panadería El Trigal"),
					"WhatsApp": text("56973518264"),
				},
			},
		}}, nil).Once()

	src := NewNotion(mc, "leads-db", "default-user")
	items, err := Collect(ctx, src, 0)
	require.NoError(t, err)
	require.Len(t, items, 2)

	assert.Equal(t, "u9", items[0].UserID)
	assert.Equal(t, "page-1", items[0].Candidate.SourceRef)
	assert.Equal(t, "Clínica Dental Sonrisa", items[0].Candidate.Name)
	assert.Equal(t, "+56 9 8274 5193", items[0].Candidate.Phone)
	assert.Equal(t, "juan@empresa.cl", items[0].Candidate.Email)

	assert.Equal(t, "default-user", items[1].UserID)
	assert.Equal(t, "56973518264", items[1].Candidate.Phone)

	mc.On("UpdatePage", ctx, "page-1", mock.MatchedBy(func(req *notionapi.PageUpdateRequest) bool {
		st, ok := req.Properties[notion.PropStatus].(notionapi.StatusProperty)
		return ok && st.Status.Name == notion.StatusRejected
	})).Return(&notionapi.Page{ID: "page-1"}, nil).Once()

	require.NoError(t, src.Ack(ctx, items[0], OutcomeRejected, "duplicate"))
	mc.AssertExpectations(t)
}

func TestNotion_AckWithoutPage(t *testing.T) {
	mc := new(mockNotion)
	src := NewNotion(mc, "leads-db", "u1")
	require.NoError(t, src.Ack(context.Background(), Item{}, OutcomeAccepted, ""))
	mc.AssertNotCalled(t, "UpdatePage", mock.Anything, mock.Anything, mock.Anything)
}

func TestNotion_QueryError(t *testing.T) {
	mc := new(mockNotion)
	mc.On("QueryDatabase", mock.Anything, "leads-db", mock.Anything).Return(nil, assert.AnError).Once()

	_, err := NewNotion(mc, "leads-db", "u1").Next(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "source: notion queue")
}
