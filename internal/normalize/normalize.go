// Package normalize maps the wildly divergent status and material-type
// strings upstream catalogs report onto closed canonical vocabularies.
package normalize

import "strings"

// Status is the canonical availability vocabulary.
type Status string

const (
	StatusAvailable    Status = "available"
	StatusCheckedOut   Status = "checked_out"
	StatusInTransit    Status = "in_transit"
	StatusOnHold       Status = "on_hold"
	StatusOnOrder      Status = "on_order"
	StatusInProcessing Status = "in_processing"
	StatusMissing      Status = "missing"
	StatusUnknown      Status = "unknown"
)

// MaterialType is the canonical material vocabulary.
type MaterialType string

const (
	MaterialBook        MaterialType = "book"
	MaterialLargePrint  MaterialType = "large_print"
	MaterialAudiobookCD MaterialType = "audiobook_cd"
	MaterialEbook       MaterialType = "ebook"
	MaterialDVD         MaterialType = "dvd"
	MaterialUnknown     MaterialType = "unknown"
)

// statusTable maps exact-match, lowered/trimmed phrases to canonical
// statuses. Entries here are sourced from the phrasing commonly emitted by
// Koha, Sierra, Polaris, and WorldCat holdings feeds.
var statusTable = map[string]Status{
	"available":           StatusAvailable,
	"on shelf":            StatusAvailable,
	"in library":          StatusAvailable,
	"not charged":         StatusAvailable,
	"checked out":         StatusCheckedOut,
	"charged":             StatusCheckedOut,
	"checkedout":           StatusCheckedOut,
	"out":                 StatusCheckedOut,
	"in transit":           StatusInTransit,
	"in-transit":           StatusInTransit,
	"transit":              StatusInTransit,
	"on hold":             StatusOnHold,
	"on hold shelf":       StatusOnHold,
	"held":                StatusOnHold,
	"on order":            StatusOnOrder,
	"ordered":             StatusOnOrder,
	"on-order":            StatusOnOrder,
	"in processing":       StatusInProcessing,
	"being processed":     StatusInProcessing,
	"cataloging":          StatusInProcessing,
	"missing":             StatusMissing,
	"lost":                StatusMissing,
	"withdrawn":           StatusMissing,
	"damaged":             StatusMissing,
	"worldcat holdings - real-time status unavailable": StatusUnknown,
}

// NormalizeStatus maps a raw upstream status string to the canonical
// vocabulary. Matching is case-insensitive on the trimmed, lowered string
// against a fixed phrase table, with a prefix match for "due ...". Anything
// unrecognized maps to StatusUnknown. NormalizeStatus never fails.
func NormalizeStatus(raw string) Status {
	s := strings.ToLower(strings.TrimSpace(raw))
	if s == "" {
		return StatusUnknown
	}
	if st, ok := statusTable[s]; ok {
		return st
	}
	if strings.HasPrefix(s, "due ") || strings.HasPrefix(s, "due back") {
		return StatusCheckedOut
	}
	return StatusUnknown
}

// materialTable maps substrings of upstream material/format descriptions to
// the canonical material-type vocabulary. Checked in order; first match
// wins, so more specific phrases are listed before generic ones.
var materialTable = []struct {
	substr string
	mat    MaterialType
}{
	{"large print", MaterialLargePrint},
	{"large-print", MaterialLargePrint},
	{"audiobook", MaterialAudiobookCD},
	{"audio cd", MaterialAudiobookCD},
	{"book on cd", MaterialAudiobookCD},
	{"ebook", MaterialEbook},
	{"e-book", MaterialEbook},
	{"electronic resource", MaterialEbook},
	{"dvd", MaterialDVD},
	{"blu-ray", MaterialDVD},
	{"book", MaterialBook},
	{"print", MaterialBook},
}

// NormalizeMaterial maps a raw upstream material/format description to the
// canonical material-type vocabulary. Unrecognized input maps to
// MaterialUnknown.
func NormalizeMaterial(raw string) MaterialType {
	s := strings.ToLower(strings.TrimSpace(raw))
	if s == "" {
		return MaterialUnknown
	}
	for _, e := range materialTable {
		if strings.Contains(s, e.substr) {
			return e.mat
		}
	}
	return MaterialUnknown
}
