package adapter

import (
	"context"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"strings"

	"github.com/antchfx/htmlquery"
	"github.com/ohler55/ojg/jp"
	"github.com/ohler55/ojg/oj"
	"golang.org/x/net/html"
	"golang.org/x/net/publicsuffix"

	"github.com/tbbooher/ArgusPanoptes-sub000/internal/normalize"
)

// SPA implements pattern (f): multi-step authenticated scrape for
// vendor-specific single-page-app catalogs (bibliocommons_scrape,
// spydus_scrape). It fetches the search HTML, extracts a CSRF token from an
// inline script variable via XPath, follows a detail-panel XHR URL, and
// cross-references the XHR JSON against the HTML to reconstruct per-barcode
// branch and status. Cookies are preserved across requests with a
// net/http/cookiejar the way the source's cookieTransport/scopedTransport
// pairing does, scoped to the catalog host.
type SPA struct {
	*Base

	client            *http.Client
	baseURL           string
	searchPathPattern string // "%s" placeholder for isbn
	xhrPathPattern    string // "%s" placeholder for csrf token
	csrfTokenVarName  string // e.g. "window.csrfToken"
	systemName        string
	catalogURL        string
}

// NewSPA constructs a multi-step authenticated scrape adapter with its own
// cookie jar, independent of any shared transport.
func NewSPA(systemID, protocol, systemName, baseURL, catalogURL, searchPathPattern, xhrPathPattern, csrfTokenVarName string, transport http.RoundTripper) (*SPA, error) {
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, &AdapterError{Cause: err}
	}

	s := &SPA{
		client:            &http.Client{Jar: jar, Transport: transport},
		baseURL:           baseURL,
		searchPathPattern: searchPathPattern,
		xhrPathPattern:    xhrPathPattern,
		csrfTokenVarName:  csrfTokenVarName,
		systemName:        systemName,
		catalogURL:        catalogURL,
	}
	s.Base = NewBase(systemID, protocol, s)
	return s, nil
}

// ExecuteSearch implements Executor.
func (s *SPA) ExecuteSearch(ctx context.Context, isbn string) ([]Holding, error) {
	searchURL := s.baseURL + fmt.Sprintf(s.searchPathPattern, isbn)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, searchURL, nil)
	if err != nil {
		return nil, &AdapterError{Cause: err}
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, StatusErr(resp.StatusCode)
	}

	doc, err := htmlquery.Parse(resp.Body)
	if err != nil {
		return nil, &ParseError{Cause: err}
	}

	csrf, err := s.extractCSRF(doc)
	if err != nil {
		return nil, err
	}

	branchByBarcode := s.extractBranchesFromHTML(doc)

	xhrURL := s.baseURL + fmt.Sprintf(s.xhrPathPattern, csrf)
	xhrReq, err := http.NewRequestWithContext(ctx, http.MethodPost, xhrURL, nil)
	if err != nil {
		return nil, &AdapterError{Cause: err}
	}
	xhrReq.Header.Set("X-CSRF-Token", csrf)

	xhrResp, err := s.client.Do(xhrReq)
	if err != nil {
		return nil, err
	}
	defer func() { _ = xhrResp.Body.Close() }()

	if xhrResp.StatusCode != http.StatusOK {
		return nil, StatusErr(xhrResp.StatusCode)
	}

	parsed, err := oj.ParseReader(xhrResp.Body)
	if err != nil {
		return nil, &ParseError{Cause: err}
	}

	barcodePath := jp.MustParseString("$.items[*].barcode")
	statusPath := jp.MustParseString("$.items[*].status")
	callNumberPath := jp.MustParseString("$.items[*].callNumber")

	barcodes := barcodePath.Get(parsed)
	statuses := statusPath.Get(parsed)
	callNumbers := callNumberPath.Get(parsed)

	holdings := make([]Holding, 0, len(barcodes))
	for i := range barcodes {
		barcode := fmt.Sprint(barcodes[i])
		status := ""
		if i < len(statuses) {
			status = fmt.Sprint(statuses[i])
		}
		callNumber := ""
		if i < len(callNumbers) {
			callNumber = fmt.Sprint(callNumbers[i])
		}

		branch := branchByBarcode[barcode]
		if branch == "" {
			branch = "Unknown"
		}

		var cn *string
		if callNumber != "" {
			cn = &callNumber
		}

		holdings = append(holdings, Holding{
			ISBN:         isbn,
			SystemID:     s.SystemID(),
			BranchID:     s.SystemID() + ":" + branch,
			SystemName:   s.systemName,
			BranchName:   branch,
			CallNumber:   cn,
			MaterialType: normalize.MaterialBook,
			Status:       normalize.NormalizeStatus(status),
			RawStatus:    status,
			CatalogURL:   s.catalogURL,
			Fingerprint:  Fingerprint(s.SystemID(), isbn, branch, callNumber, barcode),
		})
	}

	return holdings, nil
}

// extractCSRF locates the inline script variable named s.csrfTokenVarName
// and extracts its string literal value.
func (s *SPA) extractCSRF(doc *html.Node) (string, error) {
	scripts := htmlquery.Find(doc, "//script")
	for _, script := range scripts {
		text := htmlquery.InnerText(script)
		idx := strings.Index(text, s.csrfTokenVarName)
		if idx == -1 {
			continue
		}
		rest := text[idx+len(s.csrfTokenVarName):]
		start := strings.IndexAny(rest, `"'`)
		if start == -1 {
			continue
		}
		quote := rest[start]
		end := strings.IndexByte(rest[start+1:], quote)
		if end == -1 {
			continue
		}
		return rest[start+1 : start+1+end], nil
	}
	return "", &ParseError{Cause: fmt.Errorf("csrf token %q not found", s.csrfTokenVarName)}
}

// extractBranchesFromHTML reads the search-results HTML for a barcode →
// branch-name map, since the XHR JSON carries barcode, status and call
// number but no branch.
func (s *SPA) extractBranchesFromHTML(doc *html.Node) map[string]string {
	out := map[string]string{}
	rows := htmlquery.Find(doc, "//tr[@data-barcode]")
	for _, row := range rows {
		barcode := htmlquery.SelectAttr(row, "data-barcode")
		branchNode := htmlquery.FindOne(row, ".//td[@class='branch']")
		if barcode == "" || branchNode == nil {
			continue
		}
		out[barcode] = strings.TrimSpace(htmlquery.InnerText(branchNode))
	}
	return out
}

// ExecuteHealthCheck implements Executor by confirming the search page
// loads and a CSRF token can be extracted.
func (s *SPA) ExecuteHealthCheck(ctx context.Context) error {
	searchURL := s.baseURL + fmt.Sprintf(s.searchPathPattern, "0000000000000")
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, searchURL, nil)
	if err != nil {
		return &AdapterError{Cause: err}
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return StatusErr(resp.StatusCode)
	}

	doc, err := htmlquery.Parse(resp.Body)
	if err != nil {
		return &ParseError{Cause: err}
	}
	_, err = s.extractCSRF(doc)
	return err
}
