package health

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTrackerRecordsSuccessAndFailureSeparately(t *testing.T) {
	tr := New()
	now := time.Now()

	tr.RecordSuccess("sys-a", 50*time.Millisecond, now)
	tr.RecordFailure("sys-a", 10*time.Millisecond, now, "boom")

	r := tr.Get("sys-a")
	assert.Equal(t, int64(1), r.Successes)
	assert.Equal(t, int64(1), r.Failures)
	assert.Equal(t, int64(60), r.TotalDurationMs)
	assert.Equal(t, "boom", r.LastErrorMsg)
	assert.NotNil(t, r.LastSuccess)
	assert.NotNil(t, r.LastFailure)
}

func TestTrackerGetUnknownSystemReturnsZeroRecord(t *testing.T) {
	tr := New()
	r := tr.Get("sys-z")
	assert.Equal(t, "sys-z", r.SystemID)
	assert.Zero(t, r.Successes)
}

func TestTrackerAllReturnsEverySystem(t *testing.T) {
	tr := New()
	tr.RecordSuccess("sys-a", time.Millisecond, time.Now())
	tr.RecordSuccess("sys-b", time.Millisecond, time.Now())

	all := tr.All()
	assert.Len(t, all, 2)
}
