package ratelimit

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAllowWithinRate(t *testing.T) {
	l, err := New("5-H", nil)
	require.NoError(t, err)

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		assert.True(t, l.Allow(ctx, "player1"))
	}
	assert.False(t, l.Allow(ctx, "player1"))
}

func TestAllowIsPerKey(t *testing.T) {
	l, err := New("1-H", nil)
	require.NoError(t, err)

	ctx := context.Background()
	assert.True(t, l.Allow(ctx, "player1"))
	assert.True(t, l.Allow(ctx, "player2"))
	assert.False(t, l.Allow(ctx, "player1"))
}

func TestNilLimiterAllowsEverything(t *testing.T) {
	var l *Limiter
	assert.True(t, l.Allow(context.Background(), "anyone"))
}

func TestNewRejectsInvalidRate(t *testing.T) {
	_, err := New("not-a-rate", nil)
	assert.Error(t, err)
}
