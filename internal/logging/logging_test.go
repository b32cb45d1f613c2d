package logging

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLogAttachesSearchID(t *testing.T) {
	ctx := WithSearchID(context.Background(), "abc-123")
	l := Log(ctx)
	assert.NotNil(t, l)
}

func TestLogWithoutSearchIDStillReturnsLogger(t *testing.T) {
	l := Log(context.Background())
	assert.NotNil(t, l)
}
