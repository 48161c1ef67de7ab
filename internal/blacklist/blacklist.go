// Package blacklist answers whether a phone has been judged invalid and
// records new judgements. The datastore is the source of truth; Redis, when
// configured, caches positive answers only, since entries are never removed.
package blacklist

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/leadgate/internal/metrics"
	"github.com/sells-group/leadgate/internal/model"
	"github.com/sells-group/leadgate/internal/store"
)

const cacheKeyPrefix = "blacklist:"

// DefaultCacheTTL is used when Config.CacheTTL is zero.
const DefaultCacheTTL = 24 * time.Hour

// Config tunes the Service.
type Config struct {
	// CacheTTL is how long a positive lookup stays in Redis.
	CacheTTL time.Duration
}

// Service looks up and records blacklisted phones.
type Service struct {
	st    store.Store
	cache redis.UniversalClient
	ttl   time.Duration
}

// New creates a Service. cache may be nil.
func New(st store.Store, cache redis.UniversalClient, cfg Config) *Service {
	ttl := cfg.CacheTTL
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &Service{st: st, cache: cache, ttl: ttl}
}

// Lookup returns the entry for phone, or nil when the phone is clean.
// A cache failure falls through to the store.
func (s *Service) Lookup(ctx context.Context, phone string) (*model.BlacklistEntry, error) {
	if phone == "" {
		return nil, nil
	}
	if e := s.cached(ctx, phone); e != nil {
		metrics.BlacklistLookupsTotal.WithLabelValues("cache_hit").Inc()
		return e, nil
	}

	e, err := s.st.GetBlacklistEntry(ctx, phone)
	if err != nil {
		return nil, eris.Wrapf(err, "blacklist: lookup %s", phone)
	}
	if e == nil {
		metrics.BlacklistLookupsTotal.WithLabelValues("miss").Inc()
		return nil, nil
	}
	metrics.BlacklistLookupsTotal.WithLabelValues("store_hit").Inc()
	s.remember(ctx, e)
	return e, nil
}

// IsBlacklisted reports whether phone is on the blacklist.
func (s *Service) IsBlacklisted(ctx context.Context, phone string) (bool, error) {
	e, err := s.Lookup(ctx, phone)
	return e != nil, err
}

// RecordTx inserts e inside tx unless the phone is already present. It
// reports whether a row was written. The cache is not touched until
// Remember is called after the transaction commits.
func (s *Service) RecordTx(ctx context.Context, tx store.Tx, e *model.BlacklistEntry) (bool, error) {
	if e.Phone == "" {
		return false, eris.New("blacklist: empty phone")
	}
	inserted, err := tx.InsertBlacklist(ctx, e)
	if err != nil {
		return false, eris.Wrapf(err, "blacklist: record %s", e.Phone)
	}
	return inserted, nil
}

// Remember caches a committed entry.
func (s *Service) Remember(ctx context.Context, e *model.BlacklistEntry) {
	s.remember(ctx, e)
}

// Import bulk-loads entries, skipping phones already present, and returns
// the number of new rows.
func (s *Service) Import(ctx context.Context, entries []model.BlacklistEntry) (int64, error) {
	valid := entries[:0:0]
	for _, e := range entries {
		if e.Phone == "" {
			continue
		}
		if e.Source == "" {
			e.Source = model.BlacklistSourceManual
		}
		valid = append(valid, e)
	}
	n, err := s.st.ImportBlacklist(ctx, valid)
	if err != nil {
		return 0, eris.Wrap(err, "blacklist: import")
	}
	zap.L().Info("blacklist: imported entries",
		zap.Int("submitted", len(entries)),
		zap.Int64("inserted", n),
	)
	return n, nil
}

func (s *Service) cached(ctx context.Context, phone string) *model.BlacklistEntry {
	if s.cache == nil {
		return nil
	}
	reason, err := s.cache.Get(ctx, cacheKeyPrefix+phone).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			zap.L().Warn("blacklist: cache read failed", zap.String("phone", phone), zap.Error(err))
		}
		return nil
	}
	return &model.BlacklistEntry{Phone: phone, Reason: reason}
}

func (s *Service) remember(ctx context.Context, e *model.BlacklistEntry) {
	if s.cache == nil || e == nil {
		return
	}
	if err := s.cache.Set(ctx, cacheKeyPrefix+e.Phone, e.Reason, s.ttl).Err(); err != nil {
		zap.L().Warn("blacklist: cache write failed", zap.String("phone", e.Phone), zap.Error(err))
	}
}
