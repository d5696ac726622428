package contextkeys

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRequestID(t *testing.T) {
	ctx := context.Background()
	assert.Empty(t, GetRequestID(ctx))

	ctx = WithRequestID(ctx, "abc-123")
	assert.Equal(t, "abc-123", GetRequestID(ctx))
}

func TestRequestStartTime(t *testing.T) {
	_, ok := GetRequestStartTime(context.Background())
	assert.False(t, ok)

	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	got, ok := GetRequestStartTime(WithRequestStartTime(context.Background(), start))
	assert.True(t, ok)
	assert.Equal(t, start, got)
}

func TestKeysDoNotCollideWithStrings(t *testing.T) {
	ctx := context.WithValue(context.Background(), "request_id", "plain") //nolint:staticcheck
	assert.Empty(t, GetRequestID(ctx))
}
