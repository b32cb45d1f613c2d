// Package adapter defines the polymorphic contract over catalog backends and
// the concrete adapter patterns that implement it: SRU/MARC XML, cached-token
// OAuth2 REST, HMAC-signed REST, two-phase bib-then-items search, static HTML
// scrape, multi-step authenticated scrape, and browser-context fetch.
//
// The source this is modeled on expresses the shared bookkeeping as
// inheritance from a base class. Go has no inheritance, so Base is instead a
// helper embedded as a pointer (*Base) in each concrete adapter (composition over
// inheritance): it owns timing, error classification, and fingerprint
// generation, and concrete adapters call through it rather than overriding
// it.
package adapter

import (
	"context"
	"strings"
	"time"

	"github.com/tbbooher/ArgusPanoptes-sub000/internal/normalize"
)

// Holding is a single physical or licensed item instance at a specific
// branch, normalized to the canonical schema.
type Holding struct {
	ISBN       string
	SystemID   string
	BranchID   string
	SystemName string
	BranchName string

	CallNumber   *string
	Collection   string
	Volume       *string
	MaterialType normalize.MaterialType

	Status    normalize.Status
	DueDate   *string
	HoldCount *int
	CopyCount *int
	RawStatus string

	CatalogURL  string
	Fingerprint string

	// IsSecondarySource marks a holding produced by an aggregate source
	// (e.g. a union catalog) rather than the system's own direct adapter.
	// See internal/aggregate for the cross-source preference rule this
	// flag feeds.
	IsSecondarySource bool
}

// SearchOutcome is what a Base.Search call returns.
type SearchOutcome struct {
	Holdings       []Holding
	ResponseTimeMs int64
	Protocol       string
}

// HealthOutcome is what a Base.HealthCheck call returns. It never carries an
// error: internal failures are reported as Healthy=false with Message set.
type HealthOutcome struct {
	SystemID  string
	Protocol  string
	Healthy   bool
	LatencyMs int64
	Message   string
	CheckedAt time.Time
}

// Adapter is the polymorphic contract every catalog backend implements.
type Adapter interface {
	Search(ctx context.Context, isbn string) (SearchOutcome, error)
	HealthCheck(ctx context.Context) HealthOutcome
	Protocol() string
	SystemID() string
}

// Executor is the narrow seam a concrete adapter implements; Base wraps it
// with timing, error classification, and uniform outcome shaping.
type Executor interface {
	ExecuteSearch(ctx context.Context, isbn string) ([]Holding, error)
	ExecuteHealthCheck(ctx context.Context) error
}

// Base centralizes the bookkeeping every concrete adapter needs: monotonic
// timing, wrapping raw errors into the taxonomy in errors.go, and
// fingerprint/normalization helpers. Concrete adapters embed a *Base and
// provide an Executor.
type Base struct {
	systemID string
	protocol string
	exec     Executor
}

// NewBase constructs the shared adapter bookkeeping. exec is usually the
// concrete adapter itself.
func NewBase(systemID, protocol string, exec Executor) *Base {
	return &Base{systemID: systemID, protocol: protocol, exec: exec}
}

// SystemID returns the owning library system's identifier.
func (b *Base) SystemID() string { return b.systemID }

// Protocol returns the adapter protocol tag.
func (b *Base) Protocol() string { return b.protocol }

// Search starts a monotonic timer, invokes the concrete ExecuteSearch, and
// fills in ResponseTimeMs/Protocol uniformly. Errors are classified via
// Classify before being returned.
func (b *Base) Search(ctx context.Context, isbn string) (SearchOutcome, error) {
	start := time.Now()
	holdings, err := b.exec.ExecuteSearch(ctx, isbn)
	elapsed := time.Since(start)

	if err != nil {
		return SearchOutcome{ResponseTimeMs: elapsed.Milliseconds(), Protocol: b.protocol}, Classify(err)
	}

	return SearchOutcome{
		Holdings:       holdings,
		ResponseTimeMs: elapsed.Milliseconds(),
		Protocol:       b.protocol,
	}, nil
}

// HealthCheck starts a monotonic timer, invokes the concrete
// ExecuteHealthCheck, and never propagates an error: internal failure is
// reported as Healthy=false with Message set.
func (b *Base) HealthCheck(ctx context.Context) HealthOutcome {
	start := time.Now()
	err := b.exec.ExecuteHealthCheck(ctx)
	elapsed := time.Since(start)

	out := HealthOutcome{
		SystemID:  b.systemID,
		Protocol:  b.protocol,
		LatencyMs: elapsed.Milliseconds(),
		CheckedAt: time.Now(),
		Healthy:   err == nil,
	}
	if err != nil {
		out.Message = Classify(err).Error()
	}
	return out
}

// Fingerprint joins the non-null, non-empty string parts (lowercased,
// trimmed) by ":" to build a deterministic dedup key.
func Fingerprint(parts ...string) string {
	kept := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.ToLower(strings.TrimSpace(p))
		if p == "" {
			continue
		}
		kept = append(kept, p)
	}
	return strings.Join(kept, ":")
}
