package normalize

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeStatusExactMatch(t *testing.T) {
	assert.Equal(t, StatusAvailable, NormalizeStatus("  Available  "))
	assert.Equal(t, StatusCheckedOut, NormalizeStatus("CHECKED OUT"))
	assert.Equal(t, StatusOnHold, NormalizeStatus("On Hold"))
}

func TestNormalizeStatusDuePrefix(t *testing.T) {
	assert.Equal(t, StatusCheckedOut, NormalizeStatus("Due 2026-08-01"))
}

func TestNormalizeStatusUnknown(t *testing.T) {
	assert.Equal(t, StatusUnknown, NormalizeStatus("some nonsense status"))
	assert.Equal(t, StatusUnknown, NormalizeStatus(""))
}

func TestNormalizeStatusWorldCatSentinel(t *testing.T) {
	assert.Equal(t, StatusUnknown, NormalizeStatus("WorldCat holdings - real-time status unavailable"))
}

func TestNormalizeMaterial(t *testing.T) {
	assert.Equal(t, MaterialLargePrint, NormalizeMaterial("Book - Large Print"))
	assert.Equal(t, MaterialAudiobookCD, NormalizeMaterial("Audiobook on CD"))
	assert.Equal(t, MaterialEbook, NormalizeMaterial("OverDrive eBook"))
	assert.Equal(t, MaterialDVD, NormalizeMaterial("DVD Video"))
	assert.Equal(t, MaterialBook, NormalizeMaterial("Book"))
	assert.Equal(t, MaterialUnknown, NormalizeMaterial("gizmo"))
}
