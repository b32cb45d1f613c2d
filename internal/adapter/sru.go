package adapter

import (
	"context"
	"encoding/xml"
	"fmt"
	"net/http"
	"net/url"

	"github.com/tbbooher/ArgusPanoptes-sub000/internal/normalize"
)

// SRU implements pattern (a): SRU/MARC21 XML catalogs (koha_sru and sru
// protocol tags). It builds a CQL search URL, fetches the
// response, and decodes repeated MARC 952 item fields as a list. The source
// tolerates single-element and repeated-element XML shapes; by always
// decoding into a Go slice field the encoding/xml decoder normalizes both
// shapes to list<element> uniformly, exactly per the guidance in the design
// notes.
type SRU struct {
	*Base

	client     *http.Client
	baseURL    string
	systemName string
	catalogURL string
}

// NewSRU constructs an SRU adapter for systemID against baseURL (the SRU
// endpoint root). protocol should be "koha_sru" or "sru".
func NewSRU(systemID, protocol, systemName, baseURL, catalogURL string, client *http.Client) *SRU {
	s := &SRU{client: client, baseURL: baseURL, systemName: systemName, catalogURL: catalogURL}
	s.Base = NewBase(systemID, protocol, s)
	return s
}

type sruResponse struct {
	Records struct {
		Record []sruRecord `xml:"record"`
	} `xml:"records"`
}

type sruRecord struct {
	RecordData struct {
		Record struct {
			ControlField []struct {
				Tag   string `xml:"tag,attr"`
				Value string `xml:",chardata"`
			} `xml:"controlfield"`
			DataField []sruDataField `xml:"datafield"`
		} `xml:"record"`
	} `xml:"recordData"`
}

type sruDataField struct {
	Tag      string `xml:"tag,attr"`
	SubField []struct {
		Code  string `xml:"code,attr"`
		Value string `xml:",chardata"`
	} `xml:"subfield"`
}

func (f sruDataField) subfield(code string) string {
	for _, sf := range f.SubField {
		if sf.Code == code {
			return sf.Value
		}
	}
	return ""
}

// ExecuteSearch implements Executor.
func (s *SRU) ExecuteSearch(ctx context.Context, isbn string) ([]Holding, error) {
	u, err := url.Parse(s.baseURL)
	if err != nil {
		return nil, &ParseError{Cause: fmt.Errorf("bad base url: %w", err)}
	}
	q := u.Query()
	q.Set("operation", "searchRetrieve")
	q.Set("query", "bath.isbn="+isbn)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, &AdapterError{Cause: err}
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err // classified by Base via net.Error / context errors
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, StatusErr(resp.StatusCode)
	}

	var parsed sruResponse
	if err := xml.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, &ParseError{Cause: fmt.Errorf("decoding sru response: %w", err)}
	}

	var holdings []Holding
	for _, rec := range parsed.Records.Record {
		bibCallNumber := ""
		var items []sruDataField
		for _, df := range rec.RecordData.Record.DataField {
			if df.Tag == "952" {
				items = append(items, df)
			}
			if df.Tag == "050" || df.Tag == "090" {
				bibCallNumber = df.subfield("a")
			}
		}

		if len(items) == 0 {
			holdings = append(holdings, s.toUnknownHolding(isbn, bibCallNumber))
			continue
		}

		for _, item := range items {
			holdings = append(holdings, s.toHolding(isbn, item))
		}
	}

	return holdings, nil
}

func (s *SRU) toUnknownHolding(isbn, callNumber string) Holding {
	var cn *string
	if callNumber != "" {
		cn = &callNumber
	}
	fp := Fingerprint(s.SystemID(), isbn, "", callNumber, "")
	return Holding{
		ISBN:         isbn,
		SystemID:     s.SystemID(),
		SystemName:   s.systemName,
		BranchName:   "Unknown",
		CallNumber:   cn,
		MaterialType: normalize.MaterialUnknown,
		Status:       normalize.StatusUnknown,
		RawStatus:    "",
		CatalogURL:   s.catalogURL,
		Fingerprint:  fp,
	}
}

func (s *SRU) toHolding(isbn string, item sruDataField) Holding {
	branchCode := item.subfield("a")
	callNumber := item.subfield("o")
	collection := item.subfield("c")
	rawStatus := item.subfield("7") // not-for-loan flag
	dueDate := item.subfield("q")

	status := normalize.StatusAvailable
	if rawStatus != "" && rawStatus != "0" {
		status = normalize.StatusCheckedOut
	}
	if dueDate != "" {
		status = normalize.StatusCheckedOut
	}

	var cn, due *string
	if callNumber != "" {
		cn = &callNumber
	}
	if dueDate != "" {
		due = &dueDate
	}

	fp := Fingerprint(s.SystemID(), isbn, branchCode, callNumber, "")

	return Holding{
		ISBN:         isbn,
		SystemID:     s.SystemID(),
		BranchID:     s.SystemID() + ":" + branchCode,
		SystemName:   s.systemName,
		BranchName:   branchCode,
		CallNumber:   cn,
		Collection:   collection,
		MaterialType: normalize.MaterialBook,
		Status:       status,
		DueDate:      due,
		RawStatus:    rawStatus,
		CatalogURL:   s.catalogURL,
		Fingerprint:  fp,
	}
}

// ExecuteHealthCheck implements Executor by issuing an empty SRU explain
// request and checking for a 200.
func (s *SRU) ExecuteHealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"?operation=explain", nil)
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
