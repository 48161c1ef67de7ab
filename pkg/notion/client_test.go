package notion

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jomei/notionapi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

// MockClient is a testify mock of Client.
type MockClient struct {
	mock.Mock
}

func (m *MockClient) QueryDatabase(ctx context.Context, dbID string, req *notionapi.DatabaseQueryRequest) (*notionapi.DatabaseQueryResponse, error) {
	args := m.Called(ctx, dbID, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*notionapi.DatabaseQueryResponse), args.Error(1)
}

func (m *MockClient) CreatePage(ctx context.Context, req *notionapi.PageCreateRequest) (*notionapi.Page, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*notionapi.Page), args.Error(1)
}

func (m *MockClient) UpdatePage(ctx context.Context, pageID string, req *notionapi.PageUpdateRequest) (*notionapi.Page, error) {
	args := m.Called(ctx, pageID, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*notionapi.Page), args.Error(1)
}

func TestMockClientSatisfiesInterface(t *testing.T) {
	t.Parallel()
	var _ Client = (*MockClient)(nil)
}

func TestNewClient_DefaultRate(t *testing.T) {
	c, ok := NewClient("secret_test").(*apiClient)
	require.True(t, ok)
	require.NotNil(t, c.limiter)
	assert.InDelta(t, DefaultRPS, float64(c.limiter.Limit()), 1e-9)
}

func TestWithRateLimit(t *testing.T) {
	c := NewClient("secret_test", WithRateLimit(10)).(*apiClient)
	require.NotNil(t, c.limiter)
	assert.Equal(t, 10, c.limiter.Burst())

	c = NewClient("secret_test", WithRateLimit(0)).(*apiClient)
	assert.Nil(t, c.limiter)
}

func TestThrottled(t *testing.T) {
	got, err := throttled(context.Background(), nil, "query database db1", func() (int, error) {
		return 7, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 7, got)

	_, err = throttled(context.Background(), nil, "update page p1", func() (int, error) {
		return 0, errors.New("validation_error")
	})
	assert.ErrorContains(t, err, "notion: update page p1")
}

func TestThrottled_CancelledWhileWaiting(t *testing.T) {
	lim := rate.NewLimiter(rate.Every(time.Hour), 1)
	require.True(t, lim.Allow())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	_, err := throttled(ctx, lim, "create page", func() (*notionapi.Page, error) {
		called = true
		return &notionapi.Page{}, nil
	})
	assert.ErrorContains(t, err, "notion: rate limit")
	assert.False(t, called)
}
