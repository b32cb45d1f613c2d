package aggregate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tbbooher/ArgusPanoptes-sub000/internal/adapter"
	"github.com/tbbooher/ArgusPanoptes-sub000/internal/normalize"
)

func intPtr(i int) *int { return &i }

func TestAggregateDedupKeepsFirstOccurrence(t *testing.T) {
	fp := "sys-a:9780306406157:main:fic-gat"
	h1 := adapter.Holding{SystemID: "sys-a", BranchID: "main", Fingerprint: fp, Status: normalize.StatusAvailable}
	h2 := adapter.Holding{SystemID: "sys-a", BranchID: "main", Fingerprint: fp, Status: normalize.StatusCheckedOut}

	out := Aggregate([]adapter.Holding{h1, h2})

	require.Len(t, out.Holdings, 1)
	assert.Equal(t, normalize.StatusAvailable, out.Holdings[0].Status)
}

func TestAggregateCrossSourcePreferenceDropsShadowedSecondary(t *testing.T) {
	direct := adapter.Holding{
		SystemID: "houston-public", BranchID: "main", Fingerprint: "houston-public:main:direct",
		RawStatus: "Available", Status: normalize.StatusAvailable,
	}
	shadowedSecondary := adapter.Holding{
		SystemID: "houston-public", BranchID: "agg", Fingerprint: "houston-public:agg:secondary",
		RawStatus: "WorldCat holdings - real-time status unavailable", IsSecondarySource: true,
		Status: normalize.StatusUnknown,
	}
	retainedSecondary := adapter.Holding{
		SystemID: "rural-county", BranchID: "agg", Fingerprint: "rural-county:agg:secondary",
		RawStatus: "WorldCat holdings - real-time status unavailable", IsSecondarySource: true,
		Status: normalize.StatusUnknown,
	}

	out := Aggregate([]adapter.Holding{direct, shadowedSecondary, retainedSecondary})

	require.Len(t, out.Holdings, 2)
	for _, h := range out.Holdings {
		assert.NotEqual(t, "houston-public:agg:secondary", h.Fingerprint)
	}
}

func TestAggregateGroupsAndOrdersByAvailability(t *testing.T) {
	holdings := []adapter.Holding{
		{SystemID: "sys-a", SystemName: "Sys A", BranchID: "a:main", BranchName: "Main",
			Fingerprint: "a1", Status: normalize.StatusAvailable, CopyCount: intPtr(1)},
		{SystemID: "sys-b", SystemName: "Sys B", BranchID: "b:main", BranchName: "Main",
			Fingerprint: "b1", Status: normalize.StatusAvailable, CopyCount: intPtr(3)},
		{SystemID: "sys-b", SystemName: "Sys B", BranchID: "b:main", BranchName: "Main",
			Fingerprint: "b2", Status: normalize.StatusCheckedOut, CopyCount: intPtr(2)},
	}

	out := Aggregate(holdings)

	require.Len(t, out.Systems, 2)
	assert.Equal(t, "sys-b", out.Systems[0].SystemID)
	assert.Equal(t, 3, out.Systems[0].TotalAvailable)
	assert.Equal(t, 5, out.Systems[0].TotalCopies)
	assert.Equal(t, 2, out.Systems[0].CheckedOutCopies)
	assert.Equal(t, "sys-a", out.Systems[1].SystemID)

	assert.Equal(t, 4, out.TotalAvailable)
	assert.Equal(t, 6, out.TotalCopies)

	require.Len(t, out.Systems[0].Branches, 1)
	assert.Equal(t, "Main", out.Systems[0].Branches[0].BranchName)
}

func TestAggregateHoldCountSumsSkippingNils(t *testing.T) {
	holdings := []adapter.Holding{
		{SystemID: "sys-a", BranchID: "a:main", Fingerprint: "a1", Status: normalize.StatusOnHold, HoldCount: intPtr(2)},
		{SystemID: "sys-a", BranchID: "a:main", Fingerprint: "a2", Status: normalize.StatusOnHold, HoldCount: nil},
	}

	out := Aggregate(holdings)

	require.Len(t, out.Systems, 1)
	assert.Equal(t, 2, out.Systems[0].HoldCount)
}

func TestAggregateEmptyInputYieldsEmptyResult(t *testing.T) {
	out := Aggregate(nil)
	assert.Empty(t, out.Holdings)
	assert.Empty(t, out.Systems)
	assert.Zero(t, out.TotalCopies)
}
