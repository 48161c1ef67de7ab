package blacklist

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sells-group/leadgate/internal/model"
	"github.com/sells-group/leadgate/internal/store"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

func newTestStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "bl.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func record(t *testing.T, svc *Service, st store.Store, e *model.BlacklistEntry) bool {
	t.Helper()
	var inserted bool
	require.NoError(t, st.InTx(context.Background(), func(tx store.Tx) error {
		var err error
		inserted, err = svc.RecordTx(context.Background(), tx, e)
		return err
	}))
	if inserted {
		svc.Remember(context.Background(), e)
	}
	return inserted
}

func TestService_WithoutCache(t *testing.T) {
	st := newTestStore(t)
	svc := New(st, nil, Config{})
	ctx := context.Background()

	hit, err := svc.IsBlacklisted(ctx, "56999999999")
	require.NoError(t, err)
	assert.False(t, hit)

	assert.True(t, record(t, svc, st, &model.BlacklistEntry{
		Phone: "56999999999", BusinessName: "Test Ltda", Reason: "all digits identical", Source: model.BlacklistSourcePipeline,
	}))

	e, err := svc.Lookup(ctx, "56999999999")
	require.NoError(t, err)
	require.NotNil(t, e)
	assert.Equal(t, "Test Ltda", e.BusinessName)
}

func TestService_RecordIdempotent(t *testing.T) {
	st := newTestStore(t)
	svc := New(st, nil, Config{})

	e := &model.BlacklistEntry{Phone: "56900000000", Reason: "all digits zero", Source: model.BlacklistSourcePipeline}
	assert.True(t, record(t, svc, st, e))
	assert.False(t, record(t, svc, st, &model.BlacklistEntry{Phone: "56900000000", Reason: "again", Source: model.BlacklistSourceReaudit}))

	got, err := st.GetBlacklistEntry(context.Background(), "56900000000")
	require.NoError(t, err)
	assert.Equal(t, "all digits zero", got.Reason)
}

func TestService_RecordEmptyPhone(t *testing.T) {
	st := newTestStore(t)
	svc := New(st, nil, Config{})
	err := st.InTx(context.Background(), func(tx store.Tx) error {
		_, err := svc.RecordTx(context.Background(), tx, &model.BlacklistEntry{})
		return err
	})
	assert.Error(t, err)
}

func TestService_CachePopulatedOnStoreHit(t *testing.T) {
	st := newTestStore(t)
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close() //nolint:errcheck
	svc := New(st, client, Config{CacheTTL: time.Hour})
	ctx := context.Background()

	_, err := st.ImportBlacklist(ctx, []model.BlacklistEntry{{Phone: "56911111111", Reason: "manual", Source: model.BlacklistSourceManual}})
	require.NoError(t, err)

	hit, err := svc.IsBlacklisted(ctx, "56911111111")
	require.NoError(t, err)
	assert.True(t, hit)

	got, err := mr.Get("blacklist:56911111111")
	require.NoError(t, err)
	assert.Equal(t, "manual", got)
	assert.Equal(t, time.Hour, mr.TTL("blacklist:56911111111"))

	// Misses are never cached.
	hit, err = svc.IsBlacklisted(ctx, "56982745193")
	require.NoError(t, err)
	assert.False(t, hit)
	assert.False(t, mr.Exists("blacklist:56982745193"))
}

func TestService_CacheHitSkipsStore(t *testing.T) {
	st := newTestStore(t)
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close() //nolint:errcheck
	svc := New(st, client, Config{})

	require.NoError(t, mr.Set("blacklist:56922222222", "other instance"))

	e, err := svc.Lookup(context.Background(), "56922222222")
	require.NoError(t, err)
	require.NotNil(t, e)
	assert.Equal(t, "other instance", e.Reason)
}

func TestService_CacheDownFallsBackToStore(t *testing.T) {
	st := newTestStore(t)
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	defer client.Close() //nolint:errcheck
	svc := New(st, client, Config{})
	ctx := context.Background()

	assert.True(t, record(t, svc, st, &model.BlacklistEntry{Phone: "56933333333", Reason: "r", Source: model.BlacklistSourcePipeline}))
	mr.Close()

	hit, err := svc.IsBlacklisted(ctx, "56933333333")
	require.NoError(t, err)
	assert.True(t, hit)
}

func TestService_RememberAfterCommit(t *testing.T) {
	st := newTestStore(t)
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close() //nolint:errcheck
	svc := New(st, client, Config{})

	record(t, svc, st, &model.BlacklistEntry{Phone: "56944444444", Reason: "all digits identical", Source: model.BlacklistSourcePipeline})
	assert.True(t, mr.Exists("blacklist:56944444444"))
}

func TestService_Import(t *testing.T) {
	st := newTestStore(t)
	svc := New(st, nil, Config{})
	ctx := context.Background()

	n, err := svc.Import(ctx, []model.BlacklistEntry{
		{Phone: "56955555555", Reason: "manual"},
		{Phone: "", Reason: "skipped"},
		{Phone: "56966666666", Reason: "manual", Source: model.BlacklistSourceReaudit},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	e, err := st.GetBlacklistEntry(ctx, "56955555555")
	require.NoError(t, err)
	assert.Equal(t, model.BlacklistSourceManual, e.Source)

	n, err = svc.Import(ctx, []model.BlacklistEntry{{Phone: "56955555555", Reason: "dup"}})
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestService_LookupEmptyPhone(t *testing.T) {
	svc := New(newTestStore(t), nil, Config{})
	e, err := svc.Lookup(context.Background(), "")
	require.NoError(t, err)
	assert.Nil(t, e)
}
