package adapter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/ohler55/ojg/jp"
	"github.com/ohler55/ojg/oj"

	"github.com/tbbooher/ArgusPanoptes-sub000/internal/normalize"
)

// TwoPhase implements pattern (d): first search by ISBN for bibliographic
// record identifiers, then fetch items/holdings per identifier (tlc_api,
// apollo_api). Vendor item payloads vary in
// shape, so item extraction walks the decoded JSON by path via
// github.com/ohler55/ojg rather than a rigid struct.
type TwoPhase struct {
	*Base

	client           *http.Client
	baseURL          string
	systemName       string
	catalogURL       string
	bibsPath         string // e.g. "/search?isbn=%s"
	itemsPathPattern string // e.g. "/bibs/%s/items"
	needsSearchID    bool
}

// NewTwoPhase constructs a two-phase bib-then-items adapter. If
// needsSearchID is true, ExecuteSearch issues a setup call after the bib
// search (and only if it found any bibs) to mint a search_id used in the
// items POST body.
func NewTwoPhase(systemID, protocol, systemName, baseURL, catalogURL, bibsPath, itemsPathPattern string, needsSearchID bool, client *http.Client) *TwoPhase {
	t := &TwoPhase{
		client:           client,
		baseURL:          baseURL,
		systemName:       systemName,
		catalogURL:       catalogURL,
		bibsPath:         bibsPath,
		itemsPathPattern: itemsPathPattern,
		needsSearchID:    needsSearchID,
	}
	t.Base = NewBase(systemID, protocol, t)
	return t
}

// ExecuteSearch implements Executor.
func (t *TwoPhase) ExecuteSearch(ctx context.Context, isbn string) ([]Holding, error) {
	bibIDs, bibCallNumbers, err := t.searchBibs(ctx, isbn)
	if err != nil {
		return nil, err
	}
	if len(bibIDs) == 0 {
		return nil, nil
	}

	var searchID string
	if t.needsSearchID {
		searchID, err = t.mintSearchID(ctx, isbn)
		if err != nil {
			return nil, err
		}
	}

	var holdings []Holding
	for _, bibID := range bibIDs {
		items, err := t.fetchItems(ctx, isbn, bibID, searchID)
		if err != nil {
			// Degrade per-record to a bib-level unknown holding rather
			// than failing the whole search.
			holdings = append(holdings, t.unknownHolding(isbn, bibCallNumbers[bibID]))
			continue
		}
		holdings = append(holdings, items...)
	}

	return holdings, nil
}

func (t *TwoPhase) searchBibs(ctx context.Context, isbn string) ([]string, map[string]string, error) {
	url := t.baseURL + fmt.Sprintf(t.bibsPath, isbn)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, nil, &AdapterError{Cause: err}
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, nil, StatusErr(resp.StatusCode)
	}

	parsed, err := oj.ParseReader(resp.Body)
	if err != nil {
		return nil, nil, &ParseError{Cause: err}
	}

	idPath := jp.MustParseString("$.bibs[*].id")
	callNumberPath := jp.MustParseString("$.bibs[*].callNumber")

	ids := idPath.Get(parsed)
	callNumbers := callNumberPath.Get(parsed)

	bibIDs := make([]string, 0, len(ids))
	callNumberByID := make(map[string]string, len(ids))
	for i, id := range ids {
		idStr := fmt.Sprint(id)
		bibIDs = append(bibIDs, idStr)
		if i < len(callNumbers) {
			callNumberByID[idStr] = fmt.Sprint(callNumbers[i])
		}
	}

	return bibIDs, callNumberByID, nil
}

func (t *TwoPhase) mintSearchID(ctx context.Context, isbn string) (string, error) {
	body, _ := json.Marshal(map[string]string{"isbn": isbn})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL+"/search-setup", bytes.NewReader(body))
	if err != nil {
		return "", &AdapterError{Cause: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return "", err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return "", StatusErr(resp.StatusCode)
	}

	var out struct {
		SearchID string `json:"search_id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", &ParseError{Cause: err}
	}
	return out.SearchID, nil
}

func (t *TwoPhase) fetchItems(ctx context.Context, isbn, bibID, searchID string) ([]Holding, error) {
	url := t.baseURL + fmt.Sprintf(t.itemsPathPattern, bibID)

	var req *http.Request
	var err error
	if searchID != "" {
		body, _ := json.Marshal(map[string]string{"search_id": searchID})
		req, err = http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if req != nil {
			req.Header.Set("Content-Type", "application/json")
		}
	} else {
		req, err = http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	}
	if err != nil {
		return nil, &AdapterError{Cause: err}
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, StatusErr(resp.StatusCode)
	}

	parsed, err := oj.ParseReader(resp.Body)
	if err != nil {
		return nil, &ParseError{Cause: err}
	}

	branchPath := jp.MustParseString("$.items[*].branch")
	statusPath := jp.MustParseString("$.items[*].status")
	callNumberPath := jp.MustParseString("$.items[*].callNumber")

	branches := branchPath.Get(parsed)
	statuses := statusPath.Get(parsed)
	callNumbers := callNumberPath.Get(parsed)

	holdings := make([]Holding, 0, len(branches))
	for i := range branches {
		branch := fmt.Sprint(branches[i])
		status := ""
		if i < len(statuses) {
			status = fmt.Sprint(statuses[i])
		}
		callNumber := ""
		if i < len(callNumbers) {
			callNumber = fmt.Sprint(callNumbers[i])
		}

		var cn *string
		if callNumber != "" {
			cn = &callNumber
		}

		holdings = append(holdings, Holding{
			ISBN:         isbn,
			SystemID:     t.SystemID(),
			BranchID:     t.SystemID() + ":" + branch,
			SystemName:   t.systemName,
			BranchName:   branch,
			CallNumber:   cn,
			MaterialType: normalize.MaterialBook,
			Status:       normalize.NormalizeStatus(status),
			RawStatus:    status,
			CatalogURL:   t.catalogURL,
			Fingerprint:  Fingerprint(t.SystemID(), isbn, branch, callNumber, ""),
		})
	}

	return holdings, nil
}

func (t *TwoPhase) unknownHolding(isbn, callNumber string) Holding {
	var cn *string
	if callNumber != "" {
		cn = &callNumber
	}
	return Holding{
		ISBN:         isbn,
		SystemID:     t.SystemID(),
		SystemName:   t.systemName,
		BranchName:   "Unknown",
		CallNumber:   cn,
		MaterialType: normalize.MaterialUnknown,
		Status:       normalize.StatusUnknown,
		CatalogURL:   t.catalogURL,
		Fingerprint:  Fingerprint(t.SystemID(), isbn, "", callNumber, ""),
	}
}

// ExecuteHealthCheck implements Executor.
func (t *TwoPhase) ExecuteHealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.baseURL+"/ping", nil)
	if err != nil {
		return &AdapterError{Cause: err}
	}
	resp, err := t.client.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return StatusErr(resp.StatusCode)
	}
	return nil
}
