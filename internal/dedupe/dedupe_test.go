package dedupe

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/leadgate/internal/model"
	"github.com/sells-group/leadgate/internal/store"
)

// --- Reader Mock ---

type mockReader struct {
	mock.Mock
	store.Reader
}

func (m *mockReader) FindAcceptedLead(ctx context.Context, userID, phone string, since time.Time) (*model.PersistedLead, error) {
	args := m.Called(ctx, userID, phone, since)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.PersistedLead), args.Error(1)
}

func (m *mockReader) FindAcceptedLeadByName(ctx context.Context, userID, name string, since time.Time) (*model.PersistedLead, error) {
	args := m.Called(ctx, userID, name, since)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.PersistedLead), args.Error(1)
}

func (m *mockReader) FindCustomerByPhone(ctx context.Context, phone string) (*model.Customer, error) {
	args := m.Called(ctx, phone)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Customer), args.Error(1)
}

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestDetector(r store.Reader, cfg Config) *Detector {
	d := New(r, cfg)
	d.now = func() time.Time { return fixedNow }
	return d
}

func TestCheck_EarlierLead(t *testing.T) {
	r := &mockReader{}
	since := fixedNow.Add(-DefaultWindow)
	r.On("FindAcceptedLead", mock.Anything, "u1", "56912345678", since).
		Return(&model.PersistedLead{ID: "lead-1"}, nil)

	ref, err := newTestDetector(r, Config{}).Check(context.Background(), "u1", "56912345678", "Taller Ruiz")
	require.NoError(t, err)
	require.NotNil(t, ref)
	assert.Equal(t, model.LeadRef{ID: "lead-1", Kind: model.RefKindLead}, *ref)
	r.AssertExpectations(t)
	r.AssertNotCalled(t, "FindCustomerByPhone", mock.Anything, mock.Anything)
}

func TestCheck_Customer(t *testing.T) {
	r := &mockReader{}
	r.On("FindAcceptedLead", mock.Anything, "u1", "56987654321", mock.Anything).Return(nil, nil)
	r.On("FindCustomerByPhone", mock.Anything, "56987654321").
		Return(&model.Customer{ID: "c-9", Status: "cliente"}, nil)

	ref, err := newTestDetector(r, Config{}).Check(context.Background(), "u1", "56987654321", "")
	require.NoError(t, err)
	require.NotNil(t, ref)
	assert.Equal(t, model.RefKindCustomer, ref.Kind)
	assert.Equal(t, "c-9", ref.ID)
}

func TestCheck_NoDuplicate(t *testing.T) {
	r := &mockReader{}
	r.On("FindAcceptedLead", mock.Anything, "u1", "56982745193", mock.Anything).Return(nil, nil)
	r.On("FindCustomerByPhone", mock.Anything, "56982745193").Return(nil, nil)

	ref, err := newTestDetector(r, Config{}).Check(context.Background(), "u1", "56982745193", "Taller Ruiz")
	require.NoError(t, err)
	assert.Nil(t, ref)
	r.AssertNotCalled(t, "FindAcceptedLeadByName", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestCheck_ByName(t *testing.T) {
	r := &mockReader{}
	window := 30 * 24 * time.Hour
	r.On("FindAcceptedLead", mock.Anything, "u1", "56982745193", fixedNow.Add(-window)).Return(nil, nil)
	r.On("FindCustomerByPhone", mock.Anything, "56982745193").Return(nil, nil)
	r.On("FindAcceptedLeadByName", mock.Anything, "u1", "Taller Ruiz", fixedNow.Add(-window)).
		Return(&model.PersistedLead{ID: "lead-7"}, nil)

	d := newTestDetector(r, Config{Window: window, ByName: true})
	assert.Equal(t, window, d.Window())

	ref, err := d.Check(context.Background(), "u1", "56982745193", "  Taller   Ruiz ")
	require.NoError(t, err)
	require.NotNil(t, ref)
	assert.Equal(t, "lead-7", ref.ID)
	r.AssertExpectations(t)
}

func TestCheck_EmptyPhoneSkipsPhoneLookups(t *testing.T) {
	r := &mockReader{}
	ref, err := newTestDetector(r, Config{}).Check(context.Background(), "u1", "", "Taller Ruiz")
	require.NoError(t, err)
	assert.Nil(t, ref)
	r.AssertNotCalled(t, "FindAcceptedLead", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestCheck_StoreError(t *testing.T) {
	r := &mockReader{}
	r.On("FindAcceptedLead", mock.Anything, "u1", "56982745193", mock.Anything).
		Return(nil, errors.New("conn closed"))

	_, err := newTestDetector(r, Config{}).Check(context.Background(), "u1", "56982745193", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "conn closed")
}
