package metrics

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizePatternStripsPathParams(t *testing.T) {
	assert.Equal(t, "/search", normalizePattern("/search/{searchId}"))
	assert.Equal(t, "/libraries", normalizePattern("/libraries/{id}"))
	assert.Equal(t, "/health", normalizePattern("/health"))
}

func TestCoordinatorMetricsRecordsWithoutPanicking(t *testing.T) {
	reg := New()
	m := NewCoordinatorMetrics(reg)
	m.SearchCompleted("complete", 0)
	m.SystemOutcome("sys-a", "koha_sru", "success")
}

func TestCacheMetricsRecordsWithoutPanicking(t *testing.T) {
	reg := New()
	m := NewCacheMetrics(reg)
	m.HitInc()
	m.MissInc()
}

func TestBreakerMetricsRecordsWithoutPanicking(t *testing.T) {
	reg := New()
	m := NewBreakerMetrics(reg)
	m.Transition("sys-a", "open")
}
