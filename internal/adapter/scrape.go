package adapter

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/microcosm-cc/bluemonday"

	"github.com/tbbooher/ArgusPanoptes-sub000/internal/normalize"
)

// ScrapeSelectors configures the CSS selectors a Scrape adapter uses to
// locate result rows and fields within them. SearchURLTemplate must contain
// exactly one "{isbn}" placeholder.
type ScrapeSelectors struct {
	SearchURLTemplate string
	Row               string
	Title             string
	Branch            string
	Status            string
	CallNumber        string
}

// Scrape implements pattern (e): static HTML scrape (web_scrape,
// atriuum_scrape protocol tags). Construction fails with a ParseError if the
// search URL template is missing.
type Scrape struct {
	*Base

	client     *http.Client
	selectors  ScrapeSelectors
	systemName string
	catalogURL string
	sanitizer  *bluemonday.Policy
}

// NewScrape constructs a static HTML scrape adapter.
func NewScrape(systemID, protocol, systemName, catalogURL string, selectors ScrapeSelectors, client *http.Client) (*Scrape, error) {
	if selectors.SearchURLTemplate == "" || !strings.Contains(selectors.SearchURLTemplate, "{isbn}") {
		return nil, &ParseError{Cause: fmt.Errorf("missing {isbn} search url template")}
	}

	s := &Scrape{
		client:     client,
		selectors:  selectors,
		systemName: systemName,
		catalogURL: catalogURL,
		sanitizer:  bluemonday.StrictPolicy(),
	}
	s.Base = NewBase(systemID, protocol, s)
	return s, nil
}

// ExecuteSearch implements Executor.
func (s *Scrape) ExecuteSearch(ctx context.Context, isbn string) ([]Holding, error) {
	url := strings.ReplaceAll(s.selectors.SearchURLTemplate, "{isbn}", isbn)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
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

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, &ParseError{Cause: err}
	}

	var holdings []Holding
	doc.Find(s.selectors.Row).Each(func(_ int, row *goquery.Selection) {
		branch := s.text(row, s.selectors.Branch)
		status := s.text(row, s.selectors.Status)
		callNumber := s.text(row, s.selectors.CallNumber)

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
			Fingerprint:  Fingerprint(s.SystemID(), isbn, branch, callNumber, ""),
		})
	})

	return holdings, nil
}

// text extracts and sanitizes the text of the first match of selector within
// row, trimmed of incidental whitespace and markup.
func (s *Scrape) text(row *goquery.Selection, selector string) string {
	if selector == "" {
		return ""
	}
	raw := row.Find(selector).First().Text()
	return strings.TrimSpace(s.sanitizer.Sanitize(raw))
}

// ExecuteHealthCheck implements Executor by confirming the catalog's search
// page loads.
func (s *Scrape) ExecuteHealthCheck(ctx context.Context) error {
	url := strings.ReplaceAll(s.selectors.SearchURLTemplate, "{isbn}", "0000000000000")
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
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
	return nil
}
