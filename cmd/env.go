package main

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/leadgate/internal/api"
	"github.com/sells-group/leadgate/internal/blacklist"
	"github.com/sells-group/leadgate/internal/config"
	"github.com/sells-group/leadgate/internal/dedupe"
	"github.com/sells-group/leadgate/internal/dnscheck"
	"github.com/sells-group/leadgate/internal/pipeline"
	"github.com/sells-group/leadgate/internal/reaudit"
	"github.com/sells-group/leadgate/internal/resilience"
	"github.com/sells-group/leadgate/internal/source"
	"github.com/sells-group/leadgate/internal/store"
	"github.com/sells-group/leadgate/internal/validate"
	anthropicpkg "github.com/sells-group/leadgate/pkg/anthropic"
)

const defaultSQLitePath = "leadgate.db"

// leadEnv holds the store, the optional Redis client and the services
// built on them.
type leadEnv struct {
	Store     store.Store
	Redis     redis.UniversalClient // may be nil
	Validator *validate.Validator
	Blacklist *blacklist.Service
	Pipeline  *pipeline.Pipeline
	Auditor   *reaudit.Auditor
}

// Close releases resources held by the environment.
func (e *leadEnv) Close() {
	if e.Redis != nil {
		_ = e.Redis.Close()
	}
	if e.Store != nil {
		_ = e.Store.Close()
	}
}

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = defaultSQLitePath
		}
		st, err := store.NewSQLite(dsn)
		if err != nil {
			return nil, err
		}
		return st, nil
	case "postgres":
		if cfg.Store.DatabaseURL == "" {
			return nil, eris.New("store.database_url is required for postgres (LEADGATE_STORE_DATABASE_URL)")
		}
		st, err := store.NewPostgres(ctx, cfg.Store.DatabaseURL, &store.PoolConfig{
			MaxConns: cfg.Store.MaxConns,
			MinConns: cfg.Store.MinConns,
		})
		if err != nil {
			return nil, err
		}
		return st, nil
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

// initRedis connects to Redis when an address is configured. A nil client
// means the blacklist runs uncached and locks are process-local.
func initRedis(ctx context.Context, rc config.RedisConfig) (redis.UniversalClient, error) {
	if rc.Addr == "" {
		zap.L().Debug("redis not configured, using local locks and no blacklist cache")
		return nil, nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     rc.Addr,
		Password: rc.Password,
		DB:       rc.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, eris.Wrapf(err, "ping redis at %s", rc.Addr)
	}
	zap.L().Info("redis connected", zap.String("addr", rc.Addr))
	return client, nil
}

func loadValidator() (*validate.Validator, error) {
	if cfg.Pipeline.RulesPath == "" {
		return validate.NewDefault()
	}
	pack, err := validate.LoadPack(cfg.Pipeline.RulesPath)
	if err != nil {
		return nil, eris.Wrap(err, "load rule pack")
	}
	return validate.New(pack), nil
}

// initEnv opens the store, migrates it and builds the pipeline and the
// re-auditor. Callers should defer env.Close().
func initEnv(ctx context.Context, mode string) (*leadEnv, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}

	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	env := &leadEnv{Store: st}

	if err := st.Migrate(ctx); err != nil {
		env.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	if env.Redis, err = initRedis(ctx, cfg.Redis); err != nil {
		env.Close()
		return nil, err
	}

	if env.Validator, err = loadValidator(); err != nil {
		env.Close()
		return nil, err
	}

	var mail pipeline.MailChecker
	if cfg.DNS.Enabled {
		mail = dnscheck.New(dnscheck.Config{
			Timeout:    time.Duration(cfg.DNS.TimeoutMs) * time.Millisecond,
			RatePerSec: cfg.DNS.RatePerSec,
			Breaker:    resilience.FromCircuitConfig("dns", cfg.DNS.FailureThreshold, cfg.DNS.ResetTimeoutSecs),
		})
	}

	retry := resilience.FromRetryConfig(cfg.Pipeline.RetryAttempts, cfg.Pipeline.RetryBackoffMs, cfg.Pipeline.RetryMaxBackoffMs)

	env.Blacklist = blacklist.New(st, env.Redis, blacklist.Config{
		CacheTTL: time.Duration(cfg.Redis.BlacklistTTLSec) * time.Second,
	})
	dd := dedupe.New(st, dedupe.Config{
		Window: cfg.Pipeline.DuplicateWindow(),
		ByName: cfg.Pipeline.DedupeByName,
	})

	env.Pipeline = pipeline.New(pipeline.Config{
		UnitCost:        cfg.Pipeline.UnitCost,
		PersistRejected: cfg.Pipeline.PersistRejected,
		Retry:           retry,
		MaxConcurrent:   cfg.Batch.MaxConcurrentCandidates,
		DLQMaxRetries:   cfg.Batch.DLQMaxRetries,
		DLQBackoff:      time.Duration(cfg.Batch.DLQBackoffSecs) * time.Second,
	}, st, env.Validator, mail, env.Blacklist, dd)

	env.Auditor = reaudit.New(reaudit.Config{
		UnitCost: cfg.Pipeline.UnitCost,
		LockTTL:  time.Duration(cfg.Redis.LockTTLSecs) * time.Second,
		PageSize: cfg.Reaudit.PageSize,
		Retry:    retry,
	}, st, env.Validator, env.Blacklist, env.Redis)

	zap.L().Info("environment ready",
		zap.String("store", cfg.Store.Driver),
		zap.String("rules_version", env.Validator.Version()),
		zap.Bool("dns", cfg.DNS.Enabled),
		zap.Bool("redis", env.Redis != nil),
	)
	return env, nil
}

// newProspector returns a Prospector that asks the primary model and falls
// back to the secondary one when the first call fails.
func newProspector(client anthropicpkg.Client, ac config.AnthropicConfig) api.Prospector {
	return func(req api.ProspectRequest) source.Source {
		base := source.AnthropicConfig{
			MaxTokens: ac.MaxTokens,
			Prompt:    req.Prompt,
			City:      req.City,
			Limit:     req.Limit,
			UserID:    req.UserID,
		}
		primary := base
		primary.Model = ac.Model
		srcs := []source.Source{source.NewAnthropic(client, primary)}
		if ac.FallbackModel != "" && ac.FallbackModel != ac.Model {
			fallback := base
			fallback.Model = ac.FallbackModel
			srcs = append(srcs, source.NewAnthropic(client, fallback))
		}
		return source.NewFallback(srcs...)
	}
}
