package main

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/tbbooher/ArgusPanoptes-sub000/internal/adapter"
	"github.com/tbbooher/ArgusPanoptes-sub000/internal/registry"
)

// throttledTransport rate limits the requests sent through it, backing off
// to 1 request/minute for a minute when an upstream returns a 403.
type throttledTransport struct {
	http.RoundTripper
	*rate.Limiter
}

func (t throttledTransport) RoundTrip(r *http.Request) (*http.Response, error) {
	if err := t.Limiter.Wait(r.Context()); err != nil {
		return nil, err
	}
	resp, err := t.RoundTripper.RoundTrip(r)
	if err != nil {
		return resp, err
	}

	if resp.StatusCode == http.StatusForbidden {
		log(r.Context()).Warn("backing off after 403", "host", r.URL.Host)
		backoff := rate.Every(time.Minute) // 1RPM
		if orig := t.Limiter.Limit(); orig > backoff {
			t.Limiter.SetLimit(backoff)
			time.AfterFunc(time.Minute, func() { t.Limiter.SetLimit(orig) })
		}
	}

	return resp, err
}

// newThrottledClient builds an *http.Client that rate limits requests to
// rps requests/second with a burst of 1, on top of the shared transport.
func newThrottledClient(rps float64) *http.Client {
	if rps <= 0 {
		rps = 2
	}
	return &http.Client{
		Transport: throttledTransport{
			RoundTripper: http.DefaultTransport,
			Limiter:      rate.NewLimiter(rate.Limit(rps), 1),
		},
	}
}

// buildAdapter is the registry.Builder this repo wires into
// registry.LoadSystems: it switches on the configured protocol and
// constructs the matching concrete adapter from internal/adapter.
func buildAdapter(sys registry.LibrarySystem, cfg registry.AdapterConfig, httpClient *http.Client, lookupEnv func(string) (string, bool)) (adapter.Adapter, error) {
	timeout := time.Duration(cfg.TimeoutMs) * time.Millisecond
	if timeout <= 0 {
		timeout = 8 * time.Second
	}
	client := httpClient
	if client == nil {
		client = &http.Client{Timeout: timeout}
	}

	catalogURL := sys.CatalogURL
	if catalogURL == "" {
		catalogURL = cfg.BaseURL
	}

	switch cfg.Protocol {
	case registry.ProtocolKohaSRU, registry.ProtocolSRU:
		return adapter.NewSRU(sys.ID, string(cfg.Protocol), sys.Name, cfg.BaseURL, catalogURL, client), nil

	case registry.ProtocolSierraREST, registry.ProtocolAspenDiscoveryAPI:
		return adapter.NewOAuth2REST(sys.ID, string(cfg.Protocol), sys.Name, cfg.BaseURL, catalogURL,
			adapter.OAuth2Credentials{
				ClientKeyEnvVar:    cfg.ClientKeyEnvVar,
				ClientSecretEnvVar: cfg.ClientSecretEnvVar,
				TokenURL:           cfg.Extra["tokenUrl"],
				Scopes:             splitNonEmpty(cfg.Extra["scope"]),
			}, lookupEnv, client)

	case registry.ProtocolPolarisPAPI:
		return adapter.NewHMACREST(sys.ID, string(cfg.Protocol), sys.Name, cfg.BaseURL, catalogURL,
			adapter.HMACCredentials{
				AccessKeyEnvVar: cfg.ClientKeyEnvVar,
				SecretEnvVar:    cfg.ClientSecretEnvVar,
			}, lookupEnv, client)

	case registry.ProtocolTLCApi, registry.ProtocolApolloAPI:
		return adapter.NewTwoPhase(sys.ID, string(cfg.Protocol), sys.Name, cfg.BaseURL, catalogURL,
			cfg.Extra["searchPath"], cfg.Extra["itemsPath"], cfg.Extra["needsSetupCall"] == "true", client), nil

	case registry.ProtocolWebScrape, registry.ProtocolAtriuumScrape:
		return adapter.NewScrape(sys.ID, string(cfg.Protocol), sys.Name, catalogURL, adapter.ScrapeSelectors{
			SearchURLTemplate: cfg.Extra["searchUrlTemplate"],
			Row:               cfg.Extra["rowSelector"],
			Branch:            cfg.Extra["branchSelector"],
			Status:            cfg.Extra["statusSelector"],
			CallNumber:        cfg.Extra["callNumberSelector"],
		}, client)

	case registry.ProtocolBibliocommonsScrape, registry.ProtocolSirsiEnterpriseScrape, registry.ProtocolSpydusScrape:
		transport := http.RoundTripper(http.DefaultTransport)
		if client.Transport != nil {
			transport = client.Transport
		}
		return adapter.NewSPA(sys.ID, string(cfg.Protocol), sys.Name, cfg.BaseURL, catalogURL,
			cfg.Extra["searchPath"], cfg.Extra["xhrPath"], cfg.Extra["csrfTokenVar"], transport)

	case registry.ProtocolOCLCWorldCat:
		return adapter.NewOAuth2REST(sys.ID, string(cfg.Protocol), sys.Name, cfg.BaseURL, catalogURL,
			adapter.OAuth2Credentials{
				ClientKeyEnvVar:    cfg.ClientKeyEnvVar,
				ClientSecretEnvVar: cfg.ClientSecretEnvVar,
				TokenURL:           cfg.Extra["tokenUrl"],
				Scopes:             splitNonEmpty(cfg.Extra["scope"]),
			}, lookupEnv, client)

	case registry.ProtocolPlaywrightScrape:
		pool := adapter.NewHTTPFacadeBrowserPool(cfg.Extra["browserSidecarUrl"], maxConcurrencyOrDefault(cfg.MaxConcurrency), client)
		return adapter.NewBrowser(sys.ID, string(cfg.Protocol), sys.Name, cfg.BaseURL, cfg.Extra["apiPath"], catalogURL, pool), nil

	default:
		return nil, fmt.Errorf("unsupported adapter protocol %q", cfg.Protocol)
	}
}

func maxConcurrencyOrDefault(n int) int64 {
	if n <= 0 {
		return 2
	}
	return int64(n)
}

// splitNonEmpty splits a comma-separated scope string into its parts,
// dropping empty entries. Returns nil for an empty input.
func splitNonEmpty(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
