package registry

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tbbooher/ArgusPanoptes-sub000/internal/adapter"
)

type stubAdapter struct {
	systemID, protocol string
}

func (s stubAdapter) Search(ctx context.Context, isbn string) (adapter.SearchOutcome, error) {
	return adapter.SearchOutcome{}, nil
}
func (s stubAdapter) HealthCheck(ctx context.Context) adapter.HealthOutcome {
	return adapter.HealthOutcome{SystemID: s.systemID}
}
func (s stubAdapter) Protocol() string { return s.protocol }
func (s stubAdapter) SystemID() string { return s.systemID }

func TestLibrarySystemValidateRejectsBadBranchPrefix(t *testing.T) {
	sys := LibrarySystem{
		ID:       "sys-a",
		Adapters: []AdapterConfig{{Protocol: ProtocolSRU}},
		Branches: []Branch{{ID: "sys-b:main"}},
	}
	err := sys.Validate()
	require.Error(t, err)
}

func TestLibrarySystemValidateRejectsDuplicateBranchCode(t *testing.T) {
	sys := LibrarySystem{
		ID:       "sys-a",
		Adapters: []AdapterConfig{{Protocol: ProtocolSRU}},
		Branches: []Branch{{ID: "sys-a:main"}, {ID: "sys-a:main"}},
	}
	err := sys.Validate()
	require.Error(t, err)
}

func TestLibrarySystemValidateRejectsNoAdapters(t *testing.T) {
	sys := LibrarySystem{ID: "sys-a"}
	require.Error(t, sys.Validate())
}

func TestRegistryRegisterAndLookup(t *testing.T) {
	reg := New()
	sys := LibrarySystem{ID: "sys-a", Name: "Sys A", Enabled: true}
	reg.Register(sys, stubAdapter{systemID: "sys-a", protocol: "sru"})
	reg.Register(sys, stubAdapter{systemID: "sys-a", protocol: "web_scrape"})

	assert.Len(t, reg.Adapters("sys-a"), 2)
	assert.Equal(t, "sru", reg.PrimaryAdapter("sys-a").Protocol())
	assert.Equal(t, []string{"sys-a"}, reg.EnabledSystemIDs())

	got, ok := reg.System("sys-a")
	require.True(t, ok)
	assert.Equal(t, "Sys A", got.Name)
}

func TestRegistryEnabledSystemIDsExcludesDisabled(t *testing.T) {
	reg := New()
	reg.Register(LibrarySystem{ID: "sys-a", Enabled: true}, stubAdapter{systemID: "sys-a"})
	reg.Register(LibrarySystem{ID: "sys-b", Enabled: false}, stubAdapter{systemID: "sys-b"})

	assert.Equal(t, []string{"sys-a"}, reg.EnabledSystemIDs())
}

func TestRegistrySystemsScrubsCredentialFields(t *testing.T) {
	reg := New()
	sys := LibrarySystem{
		ID: "sys-a",
		Adapters: []AdapterConfig{{
			Protocol:           ProtocolSierraREST,
			ClientKeyEnvVar:    "KEY",
			ClientSecretEnvVar: "SECRET",
			Extra:              map[string]string{"x": "y"},
		}},
	}
	reg.Register(sys, stubAdapter{systemID: "sys-a"})

	out := reg.Systems()
	require.Len(t, out, 1)
	require.Len(t, out[0].Adapters, 1)
	assert.Empty(t, out[0].Adapters[0].ClientKeyEnvVar)
	assert.Empty(t, out[0].Adapters[0].ClientSecretEnvVar)
	assert.Nil(t, out[0].Adapters[0].Extra)
}

func TestLoadSystemsParsesYAMLAndSkipsBadFiles(t *testing.T) {
	dir := t.TempDir()

	good := `
id: sys-a
name: Sys A
vendor: koha
region: us-west
enabled: true
branches:
  - id: "sys-a:main"
    code: main
    name: Main Branch
adapters:
  - protocol: koha_sru
    baseUrl: https://sys-a.example.org/sru
    timeoutMs: 5000
    maxConcurrency: 4
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "sys-a.yaml"), []byte(good), 0o600))

	bad := "id: [this is not a system"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.yaml"), []byte(bad), 0o600))

	reg, failures, err := LoadSystems(dir, nil, os.LookupEnv, func(sys LibrarySystem, cfg AdapterConfig, httpClient *http.Client, lookupEnv func(string) (string, bool)) (adapter.Adapter, error) {
		return stubAdapter{systemID: sys.ID, protocol: string(cfg.Protocol)}, nil
	})
	require.NoError(t, err)
	assert.Contains(t, failures, "broken.yaml")
	assert.Len(t, reg.Adapters("sys-a"), 1)
	assert.Equal(t, []string{"sys-a"}, reg.EnabledSystemIDs())
}
