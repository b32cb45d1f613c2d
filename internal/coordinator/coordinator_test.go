package coordinator

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tbbooher/ArgusPanoptes-sub000/internal/adapter"
	"github.com/tbbooher/ArgusPanoptes-sub000/internal/health"
)

type fakeAdapter struct {
	systemID, protocol string
	holdings           []adapter.Holding
	err                error
	calls              int
}

func (f *fakeAdapter) Search(ctx context.Context, isbn string) (adapter.SearchOutcome, error) {
	f.calls++
	if f.err != nil {
		return adapter.SearchOutcome{}, f.err
	}
	return adapter.SearchOutcome{Holdings: f.holdings, Protocol: f.protocol}, nil
}
func (f *fakeAdapter) HealthCheck(ctx context.Context) adapter.HealthOutcome {
	return adapter.HealthOutcome{SystemID: f.systemID}
}
func (f *fakeAdapter) Protocol() string { return f.protocol }
func (f *fakeAdapter) SystemID() string { return f.systemID }

type fixedSystems struct {
	systems []System
}

func (f fixedSystems) EnabledSystems() []System { return f.systems }

type memCache struct {
	values map[string]SearchResult
}

func newMemCache() *memCache { return &memCache{values: map[string]SearchResult{}} }

func (m *memCache) Get(ctx context.Context, isbn13 string, out any) (bool, error) {
	v, ok := m.values[isbn13]
	if !ok {
		return false, nil
	}
	*out.(*SearchResult) = v
	return true, nil
}

func (m *memCache) Set(ctx context.Context, isbn13 string, value any) error {
	m.values[isbn13] = value.(SearchResult)
	return nil
}

func fastConfig() Config {
	return Config{PerSystemTimeout: 2 * time.Second, GlobalTimeout: 3 * time.Second, MaxPerHost: 4}
}

func TestSearchPartialFailureCountsOutcomesCorrectly(t *testing.T) {
	a := &fakeAdapter{systemID: "sys-a", protocol: "koha_sru", holdings: []adapter.Holding{
		{SystemID: "sys-a", Fingerprint: "f1"}, {SystemID: "sys-a", Fingerprint: "f2"},
	}}
	b := &fakeAdapter{systemID: "sys-b", protocol: "sierra_rest", err: &adapter.TimeoutError{Cause: context.DeadlineExceeded}}
	c := &fakeAdapter{systemID: "sys-c", protocol: "web_scrape", err: &adapter.ParseError{Cause: errors.New("bad xml")}}

	systems := fixedSystems{systems: []System{
		{ID: "sys-a", Name: "Sys A", Adapters: []adapter.Adapter{a}},
		{ID: "sys-b", Name: "Sys B", Adapters: []adapter.Adapter{b}},
		{ID: "sys-c", Name: "Sys C", Adapters: []adapter.Adapter{c}},
	}}

	co := New(systems, nil, health.New(), nil, nil, nil, fastConfig())
	result, err := co.Search(t.Context(), "9780306406157", "search-1")
	require.NoError(t, err)

	assert.Equal(t, 3, result.SystemsSearched)
	assert.Equal(t, 1, result.SystemsSucceeded)
	assert.Equal(t, 1, result.SystemsTimedOut)
	assert.Equal(t, 1, result.SystemsFailed)
	assert.True(t, result.IsPartial)
	assert.Len(t, result.Holdings, 2)
	require.Len(t, result.Errors, 2)
	for _, e := range result.Errors {
		assert.NotEmpty(t, e.SystemName)
		assert.NotEmpty(t, e.Protocol)
		assert.False(t, e.Timestamp.IsZero())
	}
}

func TestSearchCircuitOpenSkipsSystemWithoutCallingAdapter(t *testing.T) {
	a := &fakeAdapter{systemID: "sys-x", protocol: "koha_sru", err: &adapter.AuthError{Cause: errors.New("boom")}}
	systems := fixedSystems{systems: []System{{ID: "sys-x", Adapters: []adapter.Adapter{a}}}}

	co := New(systems, nil, health.New(), nil, nil, nil, fastConfig())

	for i := 0; i < 5; i++ {
		_, err := co.Search(t.Context(), "9780306406157", "search-warm")
		require.NoError(t, err)
	}
	callsBeforeTrip := a.calls

	result, err := co.Search(t.Context(), "9780306406157", "search-6")
	require.NoError(t, err)

	assert.Equal(t, callsBeforeTrip, a.calls, "breaker should skip the 6th call")
	assert.Equal(t, 1, result.SystemsFailed)
	assert.True(t, result.IsPartial)
}

func TestSearchReturnsCachedResultOnHit(t *testing.T) {
	cache := newMemCache()
	cache.values["9780306406157"] = SearchResult{NormalizedISBN13: "9780306406157", Holdings: []adapter.Holding{{Fingerprint: "cached"}}}

	a := &fakeAdapter{systemID: "sys-a", protocol: "koha_sru"}
	systems := fixedSystems{systems: []System{{ID: "sys-a", Adapters: []adapter.Adapter{a}}}}

	co := New(systems, cache, health.New(), nil, nil, nil, fastConfig())
	result, err := co.Search(t.Context(), "9780306406157", "search-cache")
	require.NoError(t, err)

	assert.True(t, result.FromCache)
	assert.Equal(t, 0, a.calls)
	require.Len(t, result.Holdings, 1)
	assert.Equal(t, "cached", result.Holdings[0].Fingerprint)
}

func TestSearchNoEnabledSystemsReturnsEmptyNonPartialResult(t *testing.T) {
	co := New(fixedSystems{}, nil, health.New(), nil, nil, nil, fastConfig())
	result, err := co.Search(t.Context(), "9780306406157", "search-empty")
	require.NoError(t, err)
	assert.False(t, result.IsPartial)
	assert.Empty(t, result.Holdings)
}
