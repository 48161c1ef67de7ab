// Package dnscheck confirms that an email domain can receive mail by
// looking up its MX records.
package dnscheck

import (
	"context"
	"errors"
	"net"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/sells-group/leadgate/internal/metrics"
	"github.com/sells-group/leadgate/internal/resilience"
)

// ErrDomainLookupTimeout means the lookup did not finish in time. The
// domain is unconfirmed, not invalid.
var ErrDomainLookupTimeout = eris.New("dnscheck: lookup timed out")

// LookupMXFunc resolves MX records. net.Resolver.LookupMX satisfies it.
type LookupMXFunc func(ctx context.Context, domain string) ([]*net.MX, error)

// Config tunes the Resolver.
type Config struct {
	// Timeout bounds a single lookup. Default 3s.
	Timeout time.Duration
	// RatePerSec caps lookups per second across the process. 0 disables.
	RatePerSec float64
	// Breaker guards the upstream resolver.
	Breaker resilience.CircuitBreakerConfig
}

// Resolver answers HasMailRecord with a timeout, a rate limit, a circuit
// breaker and in-flight deduplication per domain.
type Resolver struct {
	lookup  LookupMXFunc
	timeout time.Duration
	limiter *rate.Limiter
	breaker *resilience.CircuitBreaker
	group   singleflight.Group
}

// New creates a Resolver backed by the system resolver.
func New(cfg Config) *Resolver {
	return NewWithLookup(cfg, net.DefaultResolver.LookupMX)
}

// NewWithLookup creates a Resolver around an arbitrary lookup function.
func NewWithLookup(cfg Config, lookup LookupMXFunc) *Resolver {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 3 * time.Second
	}
	if cfg.Breaker.Name == "" {
		cfg.Breaker.Name = "dns"
	}
	if cfg.Breaker.OnStateChange == nil {
		name := cfg.Breaker.Name
		logChange := resilience.BreakerLogger(name)
		cfg.Breaker.OnStateChange = func(from, to resilience.CircuitState) {
			logChange(from, to)
			metrics.BreakerState.WithLabelValues(name).Set(float64(to))
		}
	}
	if cfg.Breaker.ShouldTrip == nil {
		cfg.Breaker.ShouldTrip = func(err error) bool {
			return errors.Is(err, ErrDomainLookupTimeout) || resilience.IsTransient(err)
		}
	}
	r := &Resolver{
		lookup:  lookup,
		timeout: cfg.Timeout,
		breaker: resilience.NewCircuitBreaker(cfg.Breaker),
	}
	if cfg.RatePerSec > 0 {
		burst := int(cfg.RatePerSec)
		if burst < 1 {
			burst = 1
		}
		r.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), burst)
	}
	return r
}

// HasMailRecord reports whether domain publishes at least one usable MX
// record. A missing domain is (false, nil). A timeout returns
// ErrDomainLookupTimeout, and an open breaker returns
// resilience.ErrCircuitOpen; callers treat both as unconfirmed.
func (r *Resolver) HasMailRecord(ctx context.Context, domain string) (bool, error) {
	domain = strings.TrimSuffix(strings.ToLower(strings.TrimSpace(domain)), ".")
	if domain == "" {
		return false, nil
	}

	v, err, _ := r.group.Do(domain, func() (any, error) {
		return r.resolve(ctx, domain)
	})
	if err != nil {
		return false, err
	}
	return v.(bool), nil
}

func (r *Resolver) resolve(ctx context.Context, domain string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	if r.limiter != nil {
		if err := r.limiter.Wait(ctx); err != nil {
			metrics.DNSLookupsTotal.WithLabelValues("timeout").Inc()
			return false, eris.Wrapf(ErrDomainLookupTimeout, "rate limit wait for %s", domain)
		}
	}

	ok, err := resilience.ExecuteVal(ctx, r.breaker, func(ctx context.Context) (bool, error) {
		records, err := r.lookup(ctx, domain)
		if err != nil {
			var dnsErr *net.DNSError
			switch {
			case errors.As(err, &dnsErr) && dnsErr.IsNotFound:
				return false, nil
			case errors.As(err, &dnsErr) && dnsErr.IsTimeout, errors.Is(err, context.DeadlineExceeded):
				return false, eris.Wrapf(ErrDomainLookupTimeout, "%s", domain)
			case errors.As(err, &dnsErr) && dnsErr.IsTemporary:
				err = resilience.Transient(err)
			}
			return false, eris.Wrapf(err, "dnscheck: lookup %s", domain)
		}
		return usable(records), nil
	})

	switch {
	case err == nil && ok:
		metrics.DNSLookupsTotal.WithLabelValues("confirmed").Inc()
	case err == nil:
		metrics.DNSLookupsTotal.WithLabelValues("no_mx").Inc()
	case errors.Is(err, resilience.ErrCircuitOpen):
		metrics.DNSLookupsTotal.WithLabelValues("circuit_open").Inc()
	case errors.Is(err, ErrDomainLookupTimeout):
		metrics.DNSLookupsTotal.WithLabelValues("timeout").Inc()
	default:
		metrics.DNSLookupsTotal.WithLabelValues("error").Inc()
		zap.L().Warn("dnscheck: lookup failed", zap.String("domain", domain), zap.Error(err))
	}
	return ok, err
}

// usable ignores the null MX ("." with preference 0) a domain publishes to
// say it accepts no mail.
func usable(records []*net.MX) bool {
	for _, mx := range records {
		if host := strings.TrimSuffix(mx.Host, "."); host != "" {
			return true
		}
	}
	return false
}
