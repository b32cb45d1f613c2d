// Package aggregate deduplicates and groups the holdings a search
// coordinator collects across systems into the shape a client renders.
package aggregate

import (
	"sort"

	"github.com/tbbooher/ArgusPanoptes-sub000/internal/adapter"
	"github.com/tbbooher/ArgusPanoptes-sub000/internal/normalize"
)

// BranchGroup is one branch's holdings within a SystemGroup, with the
// branch-scoped summary totals.
type BranchGroup struct {
	BranchID         string
	BranchName       string
	Holdings         []adapter.Holding
	TotalCopies      int
	TotalAvailable   int
	CheckedOutCopies int
	HoldCount        int
}

// SystemGroup is one system's holdings, partitioned further by branch.
type SystemGroup struct {
	SystemID         string
	SystemName       string
	Branches         []BranchGroup
	TotalCopies      int
	TotalAvailable   int
	CheckedOutCopies int
	HoldCount        int
}

// Result is what Aggregate returns: the flat deduplicated list plus the
// system/branch grouping and grand totals.
type Result struct {
	Holdings       []adapter.Holding
	Systems        []SystemGroup
	TotalCopies    int
	TotalAvailable int
}

// Aggregate deduplicates holdings by fingerprint (first occurrence wins),
// drops aggregate-source holdings for any system that also has a
// direct-source holding, groups the survivors by system then branch with
// running totals, and orders both systems and branches by descending
// availability.
func Aggregate(holdings []adapter.Holding) Result {
	deduped := dedup(holdings)
	deduped = dropShadowedSecondary(deduped)

	systems := group(deduped)

	var totalCopies, totalAvailable int
	for _, s := range systems {
		totalCopies += s.TotalCopies
		totalAvailable += s.TotalAvailable
	}

	return Result{
		Holdings:       deduped,
		Systems:        systems,
		TotalCopies:    totalCopies,
		TotalAvailable: totalAvailable,
	}
}

func dedup(holdings []adapter.Holding) []adapter.Holding {
	seen := make(map[string]bool, len(holdings))
	out := make([]adapter.Holding, 0, len(holdings))
	for _, h := range holdings {
		key := h.Fingerprint
		if key == "" {
			key = adapter.Fingerprint(h.SystemID, h.ISBN, h.BranchID, stringOrEmpty(h.CallNumber))
		}
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, h)
	}
	return out
}

func stringOrEmpty(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func dropShadowedSecondary(holdings []adapter.Holding) []adapter.Holding {
	hasDirect := map[string]bool{}
	for _, h := range holdings {
		if !h.IsSecondarySource {
			hasDirect[h.SystemID] = true
		}
	}

	out := make([]adapter.Holding, 0, len(holdings))
	for _, h := range holdings {
		if h.IsSecondarySource && hasDirect[h.SystemID] {
			continue
		}
		out = append(out, h)
	}
	return out
}

func group(holdings []adapter.Holding) []SystemGroup {
	type branchKey struct{ systemID, branchID string }

	bySystem := map[string]*SystemGroup{}
	systemOrder := []string{}
	byBranch := map[branchKey]*BranchGroup{}

	for _, h := range holdings {
		sg, ok := bySystem[h.SystemID]
		if !ok {
			sg = &SystemGroup{SystemID: h.SystemID, SystemName: h.SystemName}
			bySystem[h.SystemID] = sg
			systemOrder = append(systemOrder, h.SystemID)
		}

		bk := branchKey{h.SystemID, h.BranchID}
		bg, ok := byBranch[bk]
		if !ok {
			bg = &BranchGroup{BranchID: h.BranchID, BranchName: h.BranchName}
			byBranch[bk] = bg
		}

		copies := 1
		if h.CopyCount != nil {
			copies = *h.CopyCount
		}

		bg.Holdings = append(bg.Holdings, h)
		bg.TotalCopies += copies
		sg.TotalCopies += copies
		if h.Status == normalize.StatusAvailable {
			bg.TotalAvailable += copies
			sg.TotalAvailable += copies
		}
		if h.Status == normalize.StatusCheckedOut {
			bg.CheckedOutCopies += copies
			sg.CheckedOutCopies += copies
		}
		if h.HoldCount != nil {
			bg.HoldCount += *h.HoldCount
			sg.HoldCount += *h.HoldCount
		}
	}

	systems := make([]SystemGroup, 0, len(systemOrder))
	for _, id := range systemOrder {
		sg := bySystem[id]

		branches := make([]BranchGroup, 0, 4)
		for bk, bg := range byBranch {
			if bk.systemID == id {
				branches = append(branches, *bg)
			}
		}
		sort.Slice(branches, func(i, j int) bool {
			return lessGroup(branches[i].TotalAvailable, branches[i].TotalCopies, branches[i].BranchName,
				branches[j].TotalAvailable, branches[j].TotalCopies, branches[j].BranchName)
		})
		sg.Branches = branches

		systems = append(systems, *sg)
	}

	sort.Slice(systems, func(i, j int) bool {
		return lessGroup(systems[i].TotalAvailable, systems[i].TotalCopies, systems[i].SystemName,
			systems[j].TotalAvailable, systems[j].TotalCopies, systems[j].SystemName)
	})

	return systems
}

// lessGroup implements "descending totalAvailable, ties broken by
// descending totalCopies, then by name ascending".
func lessGroup(availI, copiesI int, nameI string, availJ, copiesJ int, nameJ string) bool {
	if availI != availJ {
		return availI > availJ
	}
	if copiesI != copiesJ {
		return copiesI > copiesJ
	}
	return nameI < nameJ
}
