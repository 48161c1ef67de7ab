package source

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/leadgate/internal/model"
)

type failing struct {
	err   error
	calls int
}

func (f *failing) Next(context.Context) (Item, error) {
	f.calls++
	return Item{}, f.err
}

// flaky yields n items and then fails.
type flaky struct {
	*Static
	n int
}

func (f *flaky) Next(ctx context.Context) (Item, error) {
	if f.n == 0 {
		return Item{}, errors.New("stream broke")
	}
	f.n--
	return f.Static.Next(ctx)
}

func TestFallback_SkipsFailingSource(t *testing.T) {
	primary := &failing{err: errors.New("model overloaded")}
	backup := NewStatic("u1", model.CandidateLead{Name: "a"}, model.CandidateLead{Name: "b"})

	items, err := Collect(context.Background(), NewFallback(primary, backup), 0)
	require.NoError(t, err)
	assert.Len(t, items, 2)
	assert.Equal(t, 1, primary.calls)
}

func TestFallback_AllFail(t *testing.T) {
	f := NewFallback(&failing{err: errors.New("first")}, &failing{err: errors.New("second")})
	_, err := f.Next(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "all sources failed")
	assert.Contains(t, err.Error(), "first")
	assert.Contains(t, err.Error(), "second")
	assert.NotErrorIs(t, err, ErrDone)
}

func TestFallback_EmptyPrimaryEndsChain(t *testing.T) {
	backup := NewStatic("u1", model.CandidateLead{Name: "a"})
	items, err := Collect(context.Background(), NewFallback(NewStatic("u1"), backup), 0)
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestFallback_SticksAfterFirstItem(t *testing.T) {
	primary := &flaky{Static: NewStatic("u1", model.CandidateLead{Name: "a"}, model.CandidateLead{Name: "b"}), n: 1}
	backup := NewStatic("u1", model.CandidateLead{Name: "z"})
	f := NewFallback(primary, backup)

	it, err := f.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "a", it.Candidate.Name)

	_, err = f.Next(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "stream broke")
}

func TestFallback_NoSources(t *testing.T) {
	_, err := NewFallback().Next(context.Background())
	assert.ErrorIs(t, err, ErrDone)
}

func TestFallback_AckForwards(t *testing.T) {
	mc := new(mockNotion)
	f := NewFallback(NewNotion(mc, "db", "u1"))
	// Items without a page are ignored by the Notion source.
	require.NoError(t, f.Ack(context.Background(), Item{}, OutcomeFailed, "x"))
}
