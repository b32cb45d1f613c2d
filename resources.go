package main

import (
	"time"

	"github.com/tbbooher/ArgusPanoptes-sub000/internal/adapter"
	"github.com/tbbooher/ArgusPanoptes-sub000/internal/aggregate"
	"github.com/tbbooher/ArgusPanoptes-sub000/internal/coordinator"
	"github.com/tbbooher/ArgusPanoptes-sub000/internal/health"
	"github.com/tbbooher/ArgusPanoptes-sub000/internal/registry"
)

// holdingResource is the wire shape of one adapter.Holding.
type holdingResource struct {
	ISBN         string  `json:"isbn"`
	SystemID     string  `json:"systemId"`
	BranchID     string  `json:"branchId"`
	SystemName   string  `json:"systemName"`
	BranchName   string  `json:"branchName"`
	CallNumber   *string `json:"callNumber,omitempty"`
	Collection   string  `json:"collection,omitempty"`
	Volume       *string `json:"volume,omitempty"`
	MaterialType string  `json:"materialType"`
	Status       string  `json:"status"`
	DueDate      *string `json:"dueDate,omitempty"`
	HoldCount    *int    `json:"holdCount,omitempty"`
	CopyCount    *int    `json:"copyCount,omitempty"`
	RawStatus    string  `json:"rawStatus"`
	CatalogURL   string  `json:"catalogUrl,omitempty"`
}

type errorResource struct {
	SystemID   string    `json:"systemId"`
	SystemName string    `json:"systemName"`
	Protocol   string    `json:"protocol"`
	ErrorType  string    `json:"errorType"`
	Message    string    `json:"message"`
	Timestamp  time.Time `json:"timestamp"`
}

type branchGroupResource struct {
	BranchID         string            `json:"branchId"`
	BranchName       string            `json:"branchName"`
	Holdings         []holdingResource `json:"holdings"`
	TotalCopies      int               `json:"totalCopies"`
	TotalAvailable   int               `json:"totalAvailable"`
	CheckedOutCopies int               `json:"checkedOutCopies"`
	HoldCount        int               `json:"holdCount"`
}

type systemGroupResource struct {
	SystemID         string                `json:"systemId"`
	SystemName       string                `json:"systemName"`
	Branches         []branchGroupResource `json:"branches"`
	TotalCopies      int                   `json:"totalCopies"`
	TotalAvailable   int                   `json:"totalAvailable"`
	CheckedOutCopies int                   `json:"checkedOutCopies"`
	HoldCount        int                   `json:"holdCount"`
}

// searchResultResource is the GET /search and GET /search/{searchId}
// response body.
type searchResultResource struct {
	SearchID         string                `json:"searchId"`
	ISBN             string                `json:"isbn"`
	NormalizedISBN13 string                `json:"normalizedISBN13"`
	StartedAt        time.Time             `json:"startedAt"`
	CompletedAt      time.Time             `json:"completedAt"`
	Holdings         []holdingResource     `json:"holdings"`
	Systems          []systemGroupResource `json:"systems"`
	TotalCopies      int                   `json:"totalCopies"`
	TotalAvailable   int                   `json:"totalAvailable"`
	Errors           []errorResource       `json:"errors"`
	SystemsSearched  int                   `json:"systemsSearched"`
	SystemsSucceeded int                   `json:"systemsSucceeded"`
	SystemsFailed    int                   `json:"systemsFailed"`
	SystemsTimedOut  int                   `json:"systemsTimedOut"`
	IsPartial        bool                  `json:"isPartial"`
	FromCache        bool                  `json:"fromCache"`
}

func toHoldingResource(h adapter.Holding) holdingResource {
	return holdingResource{
		ISBN: h.ISBN, SystemID: h.SystemID, BranchID: h.BranchID,
		SystemName: h.SystemName, BranchName: h.BranchName,
		CallNumber: h.CallNumber, Collection: h.Collection, Volume: h.Volume,
		MaterialType: string(h.MaterialType), Status: string(h.Status),
		DueDate: h.DueDate, HoldCount: h.HoldCount, CopyCount: h.CopyCount,
		RawStatus: h.RawStatus, CatalogURL: h.CatalogURL,
	}
}

func newSearchResultResource(isbn string, result coordinator.SearchResult) searchResultResource {
	agg := aggregate.Aggregate(result.Holdings)

	holdings := make([]holdingResource, 0, len(agg.Holdings))
	for _, h := range agg.Holdings {
		holdings = append(holdings, toHoldingResource(h))
	}

	systems := make([]systemGroupResource, 0, len(agg.Systems))
	for _, sg := range agg.Systems {
		branches := make([]branchGroupResource, 0, len(sg.Branches))
		for _, bg := range sg.Branches {
			bh := make([]holdingResource, 0, len(bg.Holdings))
			for _, h := range bg.Holdings {
				bh = append(bh, toHoldingResource(h))
			}
			branches = append(branches, branchGroupResource{
				BranchID: bg.BranchID, BranchName: bg.BranchName, Holdings: bh,
				TotalCopies: bg.TotalCopies, TotalAvailable: bg.TotalAvailable,
				CheckedOutCopies: bg.CheckedOutCopies, HoldCount: bg.HoldCount,
			})
		}
		systems = append(systems, systemGroupResource{
			SystemID: sg.SystemID, SystemName: sg.SystemName, Branches: branches,
			TotalCopies: sg.TotalCopies, TotalAvailable: sg.TotalAvailable,
			CheckedOutCopies: sg.CheckedOutCopies, HoldCount: sg.HoldCount,
		})
	}

	errs := make([]errorResource, 0, len(result.Errors))
	for _, e := range result.Errors {
		errs = append(errs, errorResource{
			SystemID: e.SystemID, SystemName: e.SystemName, Protocol: e.Protocol,
			ErrorType: e.ErrorType, Message: e.Message, Timestamp: e.Timestamp,
		})
	}

	return searchResultResource{
		SearchID: result.SearchID, ISBN: isbn, NormalizedISBN13: result.NormalizedISBN13,
		StartedAt: result.StartedAt, CompletedAt: result.CompletedAt,
		Holdings: holdings, Systems: systems,
		TotalCopies: agg.TotalCopies, TotalAvailable: agg.TotalAvailable,
		Errors:           errs,
		SystemsSearched:  result.SystemsSearched,
		SystemsSucceeded: result.SystemsSucceeded,
		SystemsFailed:    result.SystemsFailed,
		SystemsTimedOut:  result.SystemsTimedOut,
		IsPartial:        result.IsPartial,
		FromCache:        result.FromCache,
	}
}

type branchResource struct {
	ID   string `json:"id"`
	Code string `json:"code"`
	Name string `json:"name"`
	City string `json:"city,omitempty"`
}

type adapterConfigResource struct {
	Protocol       string `json:"protocol"`
	BaseURL        string `json:"baseUrl"`
	TimeoutMs      int    `json:"timeoutMs"`
	MaxConcurrency int    `json:"maxConcurrency"`
}

// librarySystemResource is the GET /libraries and GET /libraries/{id}
// response body, with credentials already scrubbed by the registry.
type librarySystemResource struct {
	ID         string                  `json:"id"`
	Name       string                  `json:"name"`
	Vendor     string                  `json:"vendor"`
	Region     string                  `json:"region"`
	CatalogURL string                  `json:"catalogUrl"`
	Enabled    bool                    `json:"enabled"`
	Branches   []branchResource        `json:"branches"`
	Adapters   []adapterConfigResource `json:"adapters"`
}

func newLibrarySystemResource(sys registry.LibrarySystem) librarySystemResource {
	branches := make([]branchResource, 0, len(sys.Branches))
	for _, b := range sys.Branches {
		branches = append(branches, branchResource{ID: b.ID, Code: b.Code, Name: b.Name, City: b.City})
	}
	adapters := make([]adapterConfigResource, 0, len(sys.Adapters))
	for _, a := range sys.Adapters {
		adapters = append(adapters, adapterConfigResource{
			Protocol: string(a.Protocol), BaseURL: a.BaseURL,
			TimeoutMs: a.TimeoutMs, MaxConcurrency: a.MaxConcurrency,
		})
	}
	return librarySystemResource{
		ID: sys.ID, Name: sys.Name, Vendor: sys.Vendor, Region: sys.Region,
		CatalogURL: sys.CatalogURL, Enabled: sys.Enabled, Branches: branches, Adapters: adapters,
	}
}

type healthRecordResource struct {
	SystemID        string  `json:"systemId"`
	Successes       int64   `json:"successes"`
	Failures        int64   `json:"failures"`
	TotalDurationMs int64   `json:"totalDurationMs"`
	LastSuccess     *string `json:"lastSuccess,omitempty"`
	LastFailure     *string `json:"lastFailure,omitempty"`
	LastErrorMsg    string  `json:"lastErrorMessage,omitempty"`
}

func newHealthRecordResource(r health.Record) healthRecordResource {
	out := healthRecordResource{
		SystemID: r.SystemID, Successes: r.Successes, Failures: r.Failures,
		TotalDurationMs: r.TotalDurationMs, LastErrorMsg: r.LastErrorMsg,
	}
	if r.LastSuccess != nil {
		s := r.LastSuccess.Format(time.RFC3339)
		out.LastSuccess = &s
	}
	if r.LastFailure != nil {
		s := r.LastFailure.Format(time.RFC3339)
		out.LastFailure = &s
	}
	return out
}
