package licensing

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/quotientlabs/quotient/internal/metrics"
	"github.com/quotientlabs/quotient/internal/models"
	"github.com/rs/zerolog"
)

// ErrResolveTimeout is returned when the primary store did not answer a license
// lookup within the configured deadline. Callers distinguish it from lookup
// failures so they can proceed without license context instead of failing the
// triggering request.
var ErrResolveTimeout = errors.New("license resolution timed out")

// Source is the primary store lookup for license records. It may be slow or
// fail; the Resolver races it against a timeout.
type Source interface {
	GetLicense(ctx context.Context, id uuid.UUID) (*models.License, error)
}

// SharedCache is the cross-process cache tier. Get returns (nil, nil) on a
// miss; errors indicate the tier is unavailable and are treated as misses.
type SharedCache interface {
	Get(ctx context.Context, id uuid.UUID) (*models.License, error)
	Set(ctx context.Context, lic *models.License, ttl time.Duration) error
}

// ResolverConfig holds tunables for the license context cache.
type ResolverConfig struct {
	// LocalTTL bounds the age of process-local cache entries.
	LocalTTL time.Duration
	// SharedTTL is the expiry applied to shared-tier writes.
	SharedTTL time.Duration
	// LookupTimeout bounds how long a primary-store lookup may take.
	LookupTimeout time.Duration
	// FailureLogCooldown suppresses repeated failure logs for the same key.
	FailureLogCooldown time.Duration
}

// DefaultResolverConfig returns a ResolverConfig with sensible defaults.
func DefaultResolverConfig() ResolverConfig {
	return ResolverConfig{
		LocalTTL:           5 * time.Minute,
		SharedTTL:          5 * time.Minute,
		LookupTimeout:      2 * time.Second,
		FailureLogCooldown: 60 * time.Second,
	}
}

type localEntry struct {
	lic       *models.License
	fetchedAt time.Time
}

// Resolver resolves license records with bounded latency through a two-tier
// cache: process-local first, then the shared tier, then the primary store
// raced against LookupTimeout.
type Resolver struct {
	source  Source
	shared  SharedCache
	config  ResolverConfig
	logger  zerolog.Logger
	metrics *metrics.Metrics

	mu    sync.RWMutex
	local map[uuid.UUID]localEntry

	failMu   sync.Mutex
	lastFail map[string]time.Time
}

// NewResolver creates a Resolver. shared may be nil, in which case only the
// local tier and the primary store are consulted. m may be nil.
func NewResolver(source Source, shared SharedCache, config ResolverConfig, m *metrics.Metrics, logger zerolog.Logger) *Resolver {
	return &Resolver{
		source:   source,
		shared:   shared,
		config:   config,
		logger:   logger.With().Str("component", "license_resolver").Logger(),
		metrics:  m,
		local:    make(map[uuid.UUID]localEntry),
		lastFail: make(map[string]time.Time),
	}
}

// Resolve returns the license record for id. Resolution never takes longer than
// roughly LookupTimeout beyond the cache checks; on timeout it returns
// ErrResolveTimeout. Shared-tier unavailability falls through to the primary
// store rather than failing the lookup.
func (r *Resolver) Resolve(ctx context.Context, id uuid.UUID) (*models.License, error) {
	if lic := r.localGet(id); lic != nil {
		r.observeHit("local")
		return lic, nil
	}

	if r.shared != nil {
		lic, err := r.shared.Get(ctx, id)
		if err != nil {
			r.logThrottled("shared:"+id.String(), func(e *zerolog.Event) {
				e.Err(err).Str("license_id", id.String()).Msg("shared cache unavailable, falling back to store")
			})
		} else if lic != nil {
			r.observeHit("shared")
			r.localSet(lic)
			return lic, nil
		}
	}

	r.observeMiss()
	return r.resolveFromStore(ctx, id)
}

// Invalidate drops the local-tier entry for id. Shared-tier entries expire by
// TTL only.
func (r *Resolver) Invalidate(id uuid.UUID) {
	r.mu.Lock()
	delete(r.local, id)
	r.mu.Unlock()
}

type lookupResult struct {
	lic *models.License
	err error
}

// resolveFromStore races the primary store against the lookup timeout. The
// loser's goroutine drains into a buffered channel and the deadline context
// releases its resources.
func (r *Resolver) resolveFromStore(ctx context.Context, id uuid.UUID) (*models.License, error) {
	lookupCtx, cancel := context.WithTimeout(ctx, r.config.LookupTimeout)
	defer cancel()

	resultCh := make(chan lookupResult, 1)
	go func() {
		lic, err := r.source.GetLicense(lookupCtx, id)
		resultCh <- lookupResult{lic: lic, err: err}
	}()

	select {
	case res := <-resultCh:
		if res.err != nil {
			r.logThrottled("store:"+id.String(), func(e *zerolog.Event) {
				e.Err(res.err).Str("license_id", id.String()).Msg("license lookup failed")
			})
			return nil, res.err
		}
		r.populate(ctx, res.lic)
		return res.lic, nil
	case <-lookupCtx.Done():
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		r.logThrottled("timeout:"+id.String(), func(e *zerolog.Event) {
			e.Str("license_id", id.String()).
				Dur("timeout", r.config.LookupTimeout).
				Msg("license lookup timed out")
		})
		return nil, ErrResolveTimeout
	}
}

// populate writes a freshly fetched license into both cache tiers. Writes may
// race harmlessly; last writer wins and the value is immutable per TTL window.
func (r *Resolver) populate(ctx context.Context, lic *models.License) {
	if lic == nil {
		return
	}
	r.localSet(lic)
	if r.shared == nil {
		return
	}
	if err := r.shared.Set(ctx, lic, r.config.SharedTTL); err != nil {
		r.logThrottled("sharedset:"+lic.ID.String(), func(e *zerolog.Event) {
			e.Err(err).Str("license_id", lic.ID.String()).Msg("failed to populate shared cache")
		})
	}
}

func (r *Resolver) localGet(id uuid.UUID) *models.License {
	r.mu.RLock()
	entry, ok := r.local[id]
	r.mu.RUnlock()

	if !ok || time.Since(entry.fetchedAt) >= r.config.LocalTTL {
		return nil
	}
	return entry.lic
}

func (r *Resolver) localSet(lic *models.License) {
	r.mu.Lock()
	r.local[lic.ID] = localEntry{lic: lic, fetchedAt: time.Now()}
	r.mu.Unlock()
}

// logThrottled emits at most one warning per key per FailureLogCooldown to
// keep repeated lookup failures from storming the logs.
func (r *Resolver) logThrottled(key string, fill func(*zerolog.Event)) {
	r.failMu.Lock()
	last, seen := r.lastFail[key]
	now := time.Now()
	if seen && now.Sub(last) < r.config.FailureLogCooldown {
		r.failMu.Unlock()
		return
	}
	r.lastFail[key] = now
	r.failMu.Unlock()

	fill(r.logger.Warn())
}

func (r *Resolver) observeHit(tier string) {
	if r.metrics != nil {
		r.metrics.LicenseCacheHits.WithLabelValues(tier).Inc()
	}
}

func (r *Resolver) observeMiss() {
	if r.metrics != nil {
		r.metrics.LicenseCacheMisses.Inc()
	}
}
