// Package resolve walks an indicator's fallback chain in declared order and
// returns the first payload an adapter can serve. Escalation is strictly
// ordered: a lower-priority source is consulted only after every source ahead
// of it has failed or reported no data.
package resolve

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/painel-gv/indicadores/internal/config"
	"github.com/painel-gv/indicadores/internal/resilience"
	"github.com/painel-gv/indicadores/internal/source"
)

// Resolution is a successful chain walk: the payload plus the provenance of
// the adapter that served it. Rank is the 1-based chain position, stored with
// every record so conflicts can be resolved later.
type Resolution struct {
	Payload *source.Payload
	Source  string
	Rank    int
}

// NoDataError reports a fully exhausted chain. The indicator becomes a gap
// for this run; no placeholder value is ever produced in its place.
type NoDataError struct {
	IndicatorKey string
	Attempts     []string
}

func (e *NoDataError) Error() string {
	return fmt.Sprintf("no source could provide %s (tried %d)", e.IndicatorKey, len(e.Attempts))
}

// IsNoData reports whether err marks an exhausted chain.
func IsNoData(err error) bool {
	var nd *NoDataError
	return errors.As(err, &nd)
}

// Resolver walks fallback chains against a registry of adapters.
type Resolver struct {
	registry *Registry
	retry    resilience.RetryConfig
	timeout  time.Duration
}

// Registry is the adapter lookup the resolver consults per chain entry.
type Registry = source.Registry

// Options configures a Resolver.
type Options struct {
	// Timeout bounds each individual adapter attempt. Zero disables it.
	Timeout time.Duration
	// Retry overrides the default transient-retry policy.
	Retry *resilience.RetryConfig
}

// New creates a Resolver over the given adapter registry.
func New(registry *Registry, opts Options) *Resolver {
	retry := resilience.DefaultRetryConfig()
	if opts.Retry != nil {
		retry = *opts.Retry
	}
	return &Resolver{registry: registry, retry: retry, timeout: opts.Timeout}
}

// Resolve walks the indicator's chain in order and returns the first payload
// served. Transient failures are retried against the same adapter with
// backoff before escalating; unavailable and permanent outcomes escalate
// immediately. When every entry is exhausted a NoDataError is returned.
func (r *Resolver) Resolve(ctx context.Context, key string, ind config.Indicator, municipalityCode string) (*Resolution, error) {
	log := zap.L().With(zap.String("indicator", key))

	var attempts []string
	for i, entry := range ind.Chain {
		rank := i + 1
		adapter := r.registry.Get(entry.Adapter)
		if adapter == nil {
			log.Error("resolve: no adapter registered, skipping chain entry",
				zap.String("adapter", entry.Adapter),
				zap.Int("rank", rank),
			)
			attempts = append(attempts, entry.Adapter)
			continue
		}

		req := source.Request{
			IndicatorKey:     key,
			MunicipalityCode: municipalityCode,
			Entry:            entry,
		}

		payload, err := r.attempt(ctx, adapter, req)
		attempts = append(attempts, adapter.Name())

		switch {
		case err == nil && payload != nil && len(payload.Rows) > 0:
			log.Info("resolve: source served",
				zap.String("source", payload.Source),
				zap.Int("rank", rank),
				zap.Int("rows", len(payload.Rows)),
			)
			return &Resolution{Payload: payload, Source: payload.Source, Rank: rank}, nil

		case err == nil:
			// An empty payload is treated the same as a declared absence.
			log.Warn("resolve: source returned no rows, escalating",
				zap.String("adapter", adapter.Name()),
				zap.Int("rank", rank),
			)

		case resilience.IsUnavailable(err):
			log.Warn("resolve: source unavailable, escalating",
				zap.String("adapter", adapter.Name()),
				zap.Int("rank", rank),
			)

		case resilience.IsPermanent(err):
			log.Error("resolve: source failed permanently, escalating",
				zap.String("adapter", adapter.Name()),
				zap.Int("rank", rank),
				zap.Error(err),
			)

		default:
			// Transient and still failing after the retry budget. The source
			// may recover by the next run; for this run it is unusable.
			log.Warn("resolve: source exhausted retries, escalating",
				zap.String("adapter", adapter.Name()),
				zap.Int("rank", rank),
				zap.Error(err),
			)
		}

		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
	}

	log.Warn("resolve: chain exhausted, indicator is a gap",
		zap.Strings("attempted", attempts),
	)
	return nil, &NoDataError{IndicatorKey: key, Attempts: attempts}
}

// attempt runs one adapter with per-call timeout and transient retries.
func (r *Resolver) attempt(ctx context.Context, adapter source.Adapter, req source.Request) (*source.Payload, error) {
	cfg := r.retry
	if cfg.OnRetry == nil {
		cfg.OnRetry = resilience.RetryLogger(adapter.Name(), req.IndicatorKey)
	}

	return resilience.DoVal(ctx, cfg, func(ctx context.Context) (*source.Payload, error) {
		if r.timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, r.timeout)
			defer cancel()
		}
		return adapter.Fetch(ctx, req)
	})
}
