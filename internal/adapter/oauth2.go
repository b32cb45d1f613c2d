package adapter

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/tbbooher/ArgusPanoptes-sub000/internal/normalize"
)

// tokenSafetyMargin is subtracted from a cached token's expiry so a refresh
// starts slightly before the upstream would reject it.
const tokenSafetyMargin = 60 * time.Second

// tokenCache holds a single in-memory OAuth2 token and coalesces concurrent
// refreshes behind one in-flight request, per the source's token-cache
// contract: the first caller issues the network request, concurrent callers
// await the same in-flight result, and nobody issues a second refresh.
type tokenCache struct {
	config *clientcredentials.Config

	mu      sync.Mutex
	token   *oauth2.Token
	inFlight chan struct{}
	refreshErr error
}

func newTokenCache(config *clientcredentials.Config) *tokenCache {
	return &tokenCache{config: config}
}

// get returns a valid cached token, refreshing if absent or within the
// safety margin of expiry. Concurrent callers share one refresh.
func (t *tokenCache) get(ctx context.Context) (*oauth2.Token, error) {
	t.mu.Lock()
	if t.token != nil && time.Until(t.token.Expiry) > tokenSafetyMargin {
		tok := t.token
		t.mu.Unlock()
		return tok, nil
	}

	if t.inFlight != nil {
		ch := t.inFlight
		t.mu.Unlock()
		<-ch
		t.mu.Lock()
		defer t.mu.Unlock()
		return t.token, t.refreshErr
	}

	ch := make(chan struct{})
	t.inFlight = ch
	t.mu.Unlock()

	tok, err := t.config.Token(ctx)

	t.mu.Lock()
	t.token = tok
	t.refreshErr = err
	t.inFlight = nil
	t.mu.Unlock()
	close(ch)

	return tok, err
}

// invalidate clears the cached token, forcing the next get to refresh. Used
// when the upstream rejects the token with 401/403.
func (t *tokenCache) invalidate() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.token = nil
}

// OAuth2REST implements pattern (b): cached-token OAuth2 REST catalogs
// (e.g. sierra_rest). Credentials are resolved once, at construction, from
// named environment variables.
type OAuth2REST struct {
	*Base

	client     *http.Client
	cache      *tokenCache
	baseURL    string
	systemName string
	catalogURL string
}

// OAuth2Credentials names the environment variables an OAuth2REST adapter
// reads its client key/secret from.
type OAuth2Credentials struct {
	ClientKeyEnvVar    string
	ClientSecretEnvVar string
	TokenURL           string
	Scopes             []string
}

// NewOAuth2REST constructs an OAuth2 REST adapter, resolving creds via
// lookupEnv (injectable for tests). Construction fails with an AuthError if
// either named variable is unset.
func NewOAuth2REST(systemID, protocol, systemName, baseURL, catalogURL string, creds OAuth2Credentials, lookupEnv func(string) (string, bool), client *http.Client) (*OAuth2REST, error) {
	key, ok := lookupEnv(creds.ClientKeyEnvVar)
	if !ok || key == "" {
		return nil, &AuthError{Cause: fmt.Errorf("env var %q unset", creds.ClientKeyEnvVar)}
	}
	secret, ok := lookupEnv(creds.ClientSecretEnvVar)
	if !ok || secret == "" {
		return nil, &AuthError{Cause: fmt.Errorf("env var %q unset", creds.ClientSecretEnvVar)}
	}

	config := &clientcredentials.Config{
		ClientID:     key,
		ClientSecret: secret,
		TokenURL:     creds.TokenURL,
		Scopes:       creds.Scopes,
		AuthStyle:    oauth2.AuthStyleInHeader,
	}

	o := &OAuth2REST{
		client:     client,
		cache:      newTokenCache(config),
		baseURL:    baseURL,
		systemName: systemName,
		catalogURL: catalogURL,
	}
	o.Base = NewBase(systemID, protocol, o)
	return o, nil
}

type oauth2ItemsResponse struct {
	Entries []oauth2Entry `json:"entries"`
}

type oauth2Entry struct {
	Barcode      string `json:"barcode"`
	CallNumber   string `json:"callNumber"`
	Branch       string `json:"location"`
	Status       string `json:"status"`
	DueDate      string `json:"dueDate"`
	MaterialType string `json:"itemType"`
}

// ExecuteSearch implements Executor.
func (o *OAuth2REST) ExecuteSearch(ctx context.Context, isbn string) ([]Holding, error) {
	tok, err := o.cache.get(ctx)
	if err != nil {
		return nil, &AuthError{Cause: err}
	}

	url := fmt.Sprintf("%s/items?isbn=%s", o.baseURL, isbn)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &AdapterError{Cause: err}
	}
	tok.SetAuthHeader(req)

	resp, err := o.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		o.cache.invalidate()
		return nil, &AuthError{Cause: StatusErr(resp.StatusCode)}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, StatusErr(resp.StatusCode)
	}

	var parsed oauth2ItemsResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, &ParseError{Cause: err}
	}

	holdings := make([]Holding, 0, len(parsed.Entries))
	for _, e := range parsed.Entries {
		var due *string
		if e.DueDate != "" {
			due = &e.DueDate
		}
		var cn *string
		if e.CallNumber != "" {
			cn = &e.CallNumber
		}

		holdings = append(holdings, Holding{
			ISBN:         isbn,
			SystemID:     o.SystemID(),
			BranchID:     o.SystemID() + ":" + e.Branch,
			SystemName:   o.systemName,
			BranchName:   e.Branch,
			CallNumber:   cn,
			MaterialType: normalize.NormalizeMaterial(e.MaterialType),
			Status:       normalize.NormalizeStatus(e.Status),
			DueDate:      due,
			RawStatus:    e.Status,
			CatalogURL:   o.catalogURL,
			Fingerprint:  Fingerprint(o.SystemID(), isbn, e.Branch, e.CallNumber, e.Barcode),
		})
	}

	return holdings, nil
}

// ExecuteHealthCheck implements Executor by confirming a token can be
// retrieved.
func (o *OAuth2REST) ExecuteHealthCheck(ctx context.Context) error {
	_, err := o.cache.get(ctx)
	return err
}
