package licensing

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/quotientlabs/quotient/internal/models"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeSource is an in-memory primary store with a configurable delay.
type fakeSource struct {
	mu       sync.Mutex
	licenses map[uuid.UUID]*models.License
	delay    time.Duration
	err      error
	calls    int
}

func newFakeSource() *fakeSource {
	return &fakeSource{licenses: make(map[uuid.UUID]*models.License)}
}

func (f *fakeSource) GetLicense(ctx context.Context, id uuid.UUID) (*models.License, error) {
	f.mu.Lock()
	f.calls++
	delay := f.delay
	err := f.err
	lic := f.licenses[id]
	f.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	if lic == nil {
		return nil, errors.New("license not found")
	}
	return lic, nil
}

func (f *fakeSource) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// fakeShared is an in-memory shared cache tier.
type fakeShared struct {
	mu      sync.Mutex
	entries map[uuid.UUID]*models.License
	err     error
	gets    int
	sets    int
}

func newFakeShared() *fakeShared {
	return &fakeShared{entries: make(map[uuid.UUID]*models.License)}
}

func (f *fakeShared) Get(ctx context.Context, id uuid.UUID) (*models.License, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gets++
	if f.err != nil {
		return nil, f.err
	}
	return f.entries[id], nil
}

func (f *fakeShared) Set(ctx context.Context, lic *models.License, ttl time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sets++
	if f.err != nil {
		return f.err
	}
	f.entries[lic.ID] = lic
	return nil
}

func testResolverConfig() ResolverConfig {
	return ResolverConfig{
		LocalTTL:           time.Minute,
		SharedTTL:          time.Minute,
		LookupTimeout:      100 * time.Millisecond,
		FailureLogCooldown: time.Minute,
	}
}

func TestResolverLocalCache(t *testing.T) {
	source := newFakeSource()
	lic := models.NewLicense("acme", "pro")
	source.licenses[lic.ID] = lic

	r := NewResolver(source, nil, testResolverConfig(), nil, zerolog.Nop())

	got, err := r.Resolve(context.Background(), lic.ID)
	require.NoError(t, err)
	assert.Equal(t, lic.ID, got.ID)
	assert.Equal(t, 1, source.callCount())

	// Second resolve within the local TTL must not hit the store.
	got, err = r.Resolve(context.Background(), lic.ID)
	require.NoError(t, err)
	assert.Equal(t, lic.ID, got.ID)
	assert.Equal(t, 1, source.callCount())
}

func TestResolverLocalTTLExpiry(t *testing.T) {
	source := newFakeSource()
	lic := models.NewLicense("acme", "pro")
	source.licenses[lic.ID] = lic

	cfg := testResolverConfig()
	cfg.LocalTTL = 10 * time.Millisecond
	r := NewResolver(source, nil, cfg, nil, zerolog.Nop())

	_, err := r.Resolve(context.Background(), lic.ID)
	require.NoError(t, err)
	require.Equal(t, 1, source.callCount())

	time.Sleep(20 * time.Millisecond)

	_, err = r.Resolve(context.Background(), lic.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, source.callCount(), "expired entry should trigger exactly one re-fetch")
}

func TestResolverSharedTierHit(t *testing.T) {
	source := newFakeSource()
	shared := newFakeShared()
	lic := models.NewLicense("acme", "pro")
	shared.entries[lic.ID] = lic

	r := NewResolver(source, shared, testResolverConfig(), nil, zerolog.Nop())

	got, err := r.Resolve(context.Background(), lic.ID)
	require.NoError(t, err)
	assert.Equal(t, lic.ID, got.ID)
	assert.Equal(t, 0, source.callCount(), "shared hit must not reach the primary store")

	// The shared hit should have populated the local tier.
	_, err = r.Resolve(context.Background(), lic.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, shared.gets)
}

func TestResolverPopulatesBothTiers(t *testing.T) {
	source := newFakeSource()
	shared := newFakeShared()
	lic := models.NewLicense("acme", "pro")
	source.licenses[lic.ID] = lic

	r := NewResolver(source, shared, testResolverConfig(), nil, zerolog.Nop())

	_, err := r.Resolve(context.Background(), lic.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, shared.sets, "store hit should populate the shared tier")

	shared.mu.Lock()
	_, ok := shared.entries[lic.ID]
	shared.mu.Unlock()
	assert.True(t, ok)
}

func TestResolverSharedTierUnavailable(t *testing.T) {
	source := newFakeSource()
	shared := newFakeShared()
	shared.err = errors.New("connection refused")
	lic := models.NewLicense("acme", "pro")
	source.licenses[lic.ID] = lic

	r := NewResolver(source, shared, testResolverConfig(), nil, zerolog.Nop())

	got, err := r.Resolve(context.Background(), lic.ID)
	require.NoError(t, err, "shared tier outage must fall through to the store")
	assert.Equal(t, lic.ID, got.ID)
	assert.Equal(t, 1, source.callCount())
}

func TestResolverTimeoutRace(t *testing.T) {
	source := newFakeSource()
	lic := models.NewLicense("acme", "pro")
	source.licenses[lic.ID] = lic
	source.delay = 500 * time.Millisecond

	cfg := testResolverConfig()
	cfg.LookupTimeout = 50 * time.Millisecond
	r := NewResolver(source, nil, cfg, nil, zerolog.Nop())

	start := time.Now()
	_, err := r.Resolve(context.Background(), lic.ID)
	elapsed := time.Since(start)

	require.ErrorIs(t, err, ErrResolveTimeout)
	assert.Less(t, elapsed, 300*time.Millisecond,
		"resolve should return at roughly the timeout, not wait for the store")
}

func TestResolverStoreError(t *testing.T) {
	source := newFakeSource()
	source.err = errors.New("db down")

	r := NewResolver(source, nil, testResolverConfig(), nil, zerolog.Nop())

	_, err := r.Resolve(context.Background(), uuid.New())
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrResolveTimeout, "store errors must be distinguishable from timeouts")
}

func TestResolverInvalidate(t *testing.T) {
	source := newFakeSource()
	lic := models.NewLicense("acme", "pro")
	source.licenses[lic.ID] = lic

	r := NewResolver(source, nil, testResolverConfig(), nil, zerolog.Nop())

	_, err := r.Resolve(context.Background(), lic.ID)
	require.NoError(t, err)
	require.Equal(t, 1, source.callCount())

	r.Invalidate(lic.ID)

	_, err = r.Resolve(context.Background(), lic.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, source.callCount())
}
