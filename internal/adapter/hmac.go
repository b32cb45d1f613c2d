package adapter

import (
	"context"
	"crypto/hmac"
	"crypto/sha1" //nolint:gosec // required by the upstream Polaris PAPI signing scheme
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/tbbooher/ArgusPanoptes-sub000/internal/normalize"
)

// HMACREST implements pattern (c): Polaris PAPI-style HMAC-signed REST.
// Per request it computes signature = Base64(HMAC-SHA1(secret, method + url +
// httpDate)) and sends PolarisDate/Authorization headers. There is no
// ecosystem HMAC-REST signing client for this scheme, so the signing itself
// is implemented directly against crypto/hmac and crypto/sha1 — both
// standard library, justified because no third-party client exists for this
// bespoke, vendor-specific header format.
type HMACREST struct {
	*Base

	client     *http.Client
	baseURL    string
	apiKey     string
	secret     string
	systemName string
	catalogURL string
}

// HMACCredentials names the environment variables an HMACREST adapter reads
// its access key and secret from.
type HMACCredentials struct {
	AccessKeyEnvVar string
	SecretEnvVar    string
}

// NewHMACREST constructs an HMAC REST adapter, resolving creds via
// lookupEnv. Construction fails with an AuthError if either named variable
// is unset.
func NewHMACREST(systemID, protocol, systemName, baseURL, catalogURL string, creds HMACCredentials, lookupEnv func(string) (string, bool), client *http.Client) (*HMACREST, error) {
	key, ok := lookupEnv(creds.AccessKeyEnvVar)
	if !ok || key == "" {
		return nil, &AuthError{Cause: fmt.Errorf("env var %q unset", creds.AccessKeyEnvVar)}
	}
	secret, ok := lookupEnv(creds.SecretEnvVar)
	if !ok || secret == "" {
		return nil, &AuthError{Cause: fmt.Errorf("env var %q unset", creds.SecretEnvVar)}
	}

	h := &HMACREST{client: client, baseURL: baseURL, apiKey: key, secret: secret, systemName: systemName, catalogURL: catalogURL}
	h.Base = NewBase(systemID, protocol, h)
	return h, nil
}

// sign computes the PolarisDate/Authorization header pair for a request.
func (h *HMACREST) sign(method, url string) (polarisDate, authorization string) {
	polarisDate = time.Now().UTC().Format(http.TimeFormat)

	mac := hmac.New(sha1.New, []byte(h.secret))
	mac.Write([]byte(method + url + polarisDate))
	sig := base64.StdEncoding.EncodeToString(mac.Sum(nil))

	authorization = fmt.Sprintf("PWS %s:%s", h.apiKey, sig)
	return polarisDate, authorization
}

type hmacItemsResponse struct {
	Items []hmacItem `json:"ItemsAvailable"`
}

type hmacItem struct {
	BranchName string `json:"BranchName"`
	CallNumber string `json:"CallNumber"`
	Status     string `json:"Status"`
	DueDate    string `json:"DueDate"`
	MaterialID string `json:"MaterialType"`
}

// ExecuteSearch implements Executor.
func (h *HMACREST) ExecuteSearch(ctx context.Context, isbn string) ([]Holding, error) {
	url := fmt.Sprintf("%s/items?isbn=%s", h.baseURL, isbn)
	polarisDate, authorization := h.sign(http.MethodGet, url)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &AdapterError{Cause: err}
	}
	req.Header.Set("PolarisDate", polarisDate)
	req.Header.Set("Authorization", authorization)

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return nil, &AuthError{Cause: StatusErr(resp.StatusCode)}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, StatusErr(resp.StatusCode)
	}

	var parsed hmacItemsResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, &ParseError{Cause: err}
	}

	holdings := make([]Holding, 0, len(parsed.Items))
	for _, it := range parsed.Items {
		var due, cn *string
		if it.DueDate != "" {
			due = &it.DueDate
		}
		if it.CallNumber != "" {
			cn = &it.CallNumber
		}

		holdings = append(holdings, Holding{
			ISBN:         isbn,
			SystemID:     h.SystemID(),
			BranchID:     h.SystemID() + ":" + it.BranchName,
			SystemName:   h.systemName,
			BranchName:   it.BranchName,
			CallNumber:   cn,
			MaterialType: normalize.NormalizeMaterial(it.MaterialID),
			Status:       normalize.NormalizeStatus(it.Status),
			DueDate:      due,
			RawStatus:    it.Status,
			CatalogURL:   h.catalogURL,
			Fingerprint:  Fingerprint(h.SystemID(), isbn, it.BranchName, it.CallNumber, ""),
		})
	}

	return holdings, nil
}

// ExecuteHealthCheck implements Executor by signing and issuing a
// lightweight status-only request.
func (h *HMACREST) ExecuteHealthCheck(ctx context.Context) error {
	url := h.baseURL + "/status"
	polarisDate, authorization := h.sign(http.MethodGet, url)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return &AdapterError{Cause: err}
	}
	req.Header.Set("PolarisDate", polarisDate)
	req.Header.Set("Authorization", authorization)

	resp, err := h.client.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return StatusErr(resp.StatusCode)
	}
	return nil
}
