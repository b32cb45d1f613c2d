// Package registry loads library-system configuration from YAML and builds
// the adapter instances each system uses, maintaining the
// systemId → adapter(s) map the search coordinator fans out across.
package registry

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/tbbooher/ArgusPanoptes-sub000/internal/adapter"
)

// Protocol is the closed enum of adapter protocol tags.
type Protocol string

const (
	ProtocolKohaSRU               Protocol = "koha_sru"
	ProtocolSRU                   Protocol = "sru"
	ProtocolOCLCWorldCat          Protocol = "oclc_worldcat"
	ProtocolSierraREST            Protocol = "sierra_rest"
	ProtocolPolarisPAPI           Protocol = "polaris_papi"
	ProtocolSirsiEnterpriseScrape Protocol = "sirsi_enterprise_scrape"
	ProtocolBibliocommonsScrape   Protocol = "bibliocommons_scrape"
	ProtocolWebScrape             Protocol = "web_scrape"
	ProtocolApolloAPI             Protocol = "apollo_api"
	ProtocolAspenDiscoveryAPI     Protocol = "aspen_discovery_api"
	ProtocolAtriuumScrape         Protocol = "atriuum_scrape"
	ProtocolSpydusScrape          Protocol = "spydus_scrape"
	ProtocolTLCApi                Protocol = "tlc_api"
	ProtocolPlaywrightScrape      Protocol = "playwright_scrape"
)

// Branch is one physical library branch within a system.
type Branch struct {
	ID   string `yaml:"id"`
	Code string `yaml:"code"`
	Name string `yaml:"name"`
	City string `yaml:"city,omitempty"`
}

// AdapterConfig configures one concrete adapter instance.
type AdapterConfig struct {
	Protocol        Protocol          `yaml:"protocol"`
	BaseURL         string            `yaml:"baseUrl"`
	TimeoutMs       int               `yaml:"timeoutMs"`
	MaxConcurrency  int               `yaml:"maxConcurrency"`
	ClientKeyEnvVar string            `yaml:"clientKeyEnvVar,omitempty"`
	ClientSecretEnvVar string         `yaml:"clientSecretEnvVar,omitempty"`
	Extra           map[string]string `yaml:"extra,omitempty"`
}

// LibrarySystem is one library system's identity, branches, and adapter
// configurations, as loaded from one YAML document.
type LibrarySystem struct {
	ID         string          `yaml:"id"`
	Name       string          `yaml:"name"`
	Vendor     string          `yaml:"vendor"`
	Region     string          `yaml:"region"`
	CatalogURL string          `yaml:"catalogUrl"`
	Enabled    bool            `yaml:"enabled"`
	Branches   []Branch        `yaml:"branches"`
	Adapters   []AdapterConfig `yaml:"adapters"`
}

// Validate checks the invariants from the data model: every branch id begins
// with "<systemId>:" followed by a unique code, and at least one adapter is
// configured.
func (s LibrarySystem) Validate() error {
	if s.ID == "" {
		return fmt.Errorf("system missing id")
	}
	if len(s.Adapters) == 0 {
		return fmt.Errorf("system %q has no adapter configurations", s.ID)
	}

	seen := map[string]bool{}
	prefix := s.ID + ":"
	for _, b := range s.Branches {
		if !strings.HasPrefix(b.ID, prefix) {
			return fmt.Errorf("branch id %q does not begin with %q", b.ID, prefix)
		}
		code := strings.TrimPrefix(b.ID, prefix)
		if seen[code] {
			return fmt.Errorf("duplicate branch code %q in system %q", code, s.ID)
		}
		seen[code] = true
	}

	return nil
}

// Registry maps a system id to the adapters registered for it. Registration
// happens once at startup; Adapters is safe for read-only concurrent use
// thereafter.
type Registry struct {
	mu       sync.RWMutex
	systems  map[string]LibrarySystem
	adapters map[string][]adapter.Adapter
	order    []string
}

// New constructs an empty Registry.
func New() *Registry {
	return &Registry{
		systems:  map[string]LibrarySystem{},
		adapters: map[string][]adapter.Adapter{},
	}
}

// Register associates a built adapter with sys, constructing sys's entry in
// the registry the first time it's seen. Registration is expected to happen
// once at startup.
func (r *Registry) Register(sys LibrarySystem, a adapter.Adapter) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.systems[sys.ID]; !ok {
		r.systems[sys.ID] = sys
		r.order = append(r.order, sys.ID)
	}
	r.adapters[sys.ID] = append(r.adapters[sys.ID], a)
}

// Adapters returns all adapters registered for systemID.
func (r *Registry) Adapters(systemID string) []adapter.Adapter {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]adapter.Adapter(nil), r.adapters[systemID]...)
}

// PrimaryAdapter returns the first registered adapter for systemID, or nil
// if none is registered.
func (r *Registry) PrimaryAdapter(systemID string) adapter.Adapter {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a := r.adapters[systemID]
	if len(a) == 0 {
		return nil
	}
	return a[0]
}

// System returns the LibrarySystem metadata for systemID.
func (r *Registry) System(systemID string) (LibrarySystem, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.systems[systemID]
	return s, ok
}

// EnabledSystemIDs returns the ids of all enabled systems, sorted in
// ascending order.
func (r *Registry) EnabledSystemIDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.order))
	for _, id := range r.order {
		if r.systems[id].Enabled {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// Systems returns every registered system's metadata with credential fields
// scrubbed, suitable for the GET /libraries response.
func (r *Registry) Systems() []LibrarySystem {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]LibrarySystem, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, scrub(r.systems[id]))
	}
	return out
}

func scrub(s LibrarySystem) LibrarySystem {
	adapters := make([]AdapterConfig, len(s.Adapters))
	for i, a := range s.Adapters {
		a.ClientKeyEnvVar = ""
		a.ClientSecretEnvVar = ""
		a.Extra = nil
		adapters[i] = a
	}
	s.Adapters = adapters
	return s
}

// Builder constructs a concrete adapter.Adapter from a LibrarySystem and one
// of its AdapterConfigs. Builder implementations are supplied by callers
// (buildAdapter in the root package's transport.go) so this package stays
// free of a direct dependency on *http.Client construction choices.
type Builder func(sys LibrarySystem, cfg AdapterConfig, httpClient *http.Client, lookupEnv func(string) (string, bool)) (adapter.Adapter, error)

// LoadSystems walks dir for YAML files (one LibrarySystem document each, per
// the "_INDEX.md"-style one-file-per-system convention) and registers each
// system's adapters via build. An adapter whose construction fails (most
// commonly because a credential env var name doesn't resolve) is skipped
// with its error returned in the failures map, keyed "<systemID>/<protocol>",
// rather than aborting the whole load; the system's other adapters are still
// registered.
func LoadSystems(dir string, httpClient *http.Client, lookupEnv func(string) (string, bool), build Builder) (*Registry, map[string]error, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, nil, fmt.Errorf("reading config dir: %w", err)
	}

	reg := New()
	failures := map[string]error{}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := filepath.Ext(entry.Name())
		if ext != ".yaml" && ext != ".yml" {
			continue
		}

		path := filepath.Join(dir, entry.Name())
		raw, err := os.ReadFile(path)
		if err != nil {
			failures[entry.Name()] = err
			continue
		}

		var sys LibrarySystem
		if err := yaml.Unmarshal(raw, &sys); err != nil {
			failures[entry.Name()] = fmt.Errorf("parsing %s: %w", path, err)
			continue
		}

		if err := sys.Validate(); err != nil {
			failures[sys.ID] = err
			continue
		}

		registeredAny := false
		for _, cfg := range sys.Adapters {
			a, err := build(sys, cfg, httpClient, lookupEnv)
			if err != nil {
				failures[sys.ID+"/"+string(cfg.Protocol)] = err
				continue
			}
			reg.Register(sys, a)
			registeredAny = true
		}
		if !registeredAny {
			failures[sys.ID] = fmt.Errorf("no adapters could be constructed")
		}
	}

	return reg, failures, nil
}
