package adapter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"golang.org/x/sync/semaphore"
)

// HTTPFacadeBrowserPool implements BrowserPool over an HTTP façade onto a
// headless-browser-rendering sidecar, per the design notes' guidance that
// non-JS ecosystems should treat the browser pool as a documented
// collaborator contract rather than embed a real browser engine. It enforces
// MaxContexts concurrent contexts with a weighted semaphore.
type HTTPFacadeBrowserPool struct {
	client      *http.Client
	sidecarURL  string
	maxContexts *semaphore.Weighted
}

// NewHTTPFacadeBrowserPool constructs a pool that proxies context
// acquisition, navigation, and fetch calls to sidecarURL.
func NewHTTPFacadeBrowserPool(sidecarURL string, maxContexts int64, client *http.Client) *HTTPFacadeBrowserPool {
	if maxContexts < 1 {
		maxContexts = 1
	}
	return &HTTPFacadeBrowserPool{
		client:      client,
		sidecarURL:  sidecarURL,
		maxContexts: semaphore.NewWeighted(maxContexts),
	}
}

// Acquire reserves a context slot and mints a new sidecar session. The
// returned release func always closes the sidecar session and frees the
// slot, even if the caller never uses the context.
func (p *HTTPFacadeBrowserPool) Acquire(ctx context.Context) (BrowserContext, func(), error) {
	if err := p.maxContexts.Acquire(ctx, 1); err != nil {
		return nil, func() {}, err
	}

	sessionID, err := p.newSession(ctx)
	if err != nil {
		p.maxContexts.Release(1)
		return nil, func() {}, err
	}

	bctx := &httpFacadeContext{pool: p, sessionID: sessionID}
	release := func() {
		p.closeSession(context.Background(), sessionID)
		p.maxContexts.Release(1)
	}
	return bctx, release, nil
}

func (p *HTTPFacadeBrowserPool) newSession(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.sidecarURL+"/sessions", nil)
	if err != nil {
		return "", err
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return "", err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return "", StatusErr(resp.StatusCode)
	}

	var out struct {
		SessionID string `json:"sessionId"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", err
	}
	return out.SessionID, nil
}

func (p *HTTPFacadeBrowserPool) closeSession(ctx context.Context, sessionID string) {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, p.sidecarURL+"/sessions/"+sessionID, nil)
	if err != nil {
		return
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return
	}
	_ = resp.Body.Close()
}

type httpFacadeContext struct {
	pool      *HTTPFacadeBrowserPool
	sessionID string
}

func (c *httpFacadeContext) Navigate(ctx context.Context, url string) (string, error) {
	body, _ := json.Marshal(map[string]string{"url": url})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		fmt.Sprintf("%s/sessions/%s/navigate", c.pool.sidecarURL, c.sessionID), bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.pool.client.Do(req)
	if err != nil {
		return "", err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return "", StatusErr(resp.StatusCode)
	}

	var out struct {
		Title string `json:"title"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", err
	}
	return out.Title, nil
}

func (c *httpFacadeContext) FetchJSON(ctx context.Context, url string, v any) error {
	body, _ := json.Marshal(map[string]string{"url": url})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		fmt.Sprintf("%s/sessions/%s/fetch", c.pool.sidecarURL, c.sessionID), bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.pool.client.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return StatusErr(resp.StatusCode)
	}

	return json.NewDecoder(resp.Body).Decode(v)
}
