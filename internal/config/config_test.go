package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDefaults(t *testing.T) {
	cfg, err := Parse(nil)
	require.NoError(t, err)
	assert.Equal(t, defaultPort, cfg.Port)
	assert.Equal(t, ":9100", cfg.AdminAddr)
	assert.Equal(t, "30-M", cfg.MessageRate)
}

func TestParseShortAndLongPortFlag(t *testing.T) {
	cfg, err := Parse([]string{"-p", "9999"})
	require.NoError(t, err)
	assert.Equal(t, 9999, cfg.Port)

	cfg, err = Parse([]string{"--port", "1234"})
	require.NoError(t, err)
	assert.Equal(t, 1234, cfg.Port)
}

func TestParseRejectsOutOfRangePort(t *testing.T) {
	_, err := Parse([]string{"-p", "70000"})
	assert.Error(t, err)
}

func TestIsValidHostPort(t *testing.T) {
	assert.True(t, isValidHostPort("localhost:6379"))
	assert.False(t, isValidHostPort("localhost"))
	assert.False(t, isValidHostPort(":6379"))
	assert.False(t, isValidHostPort("localhost:abc"))
}

func TestParseRejectsMalformedBusAddr(t *testing.T) {
	t.Setenv("DRADU_BUS_REDIS_ADDR", "not-a-host-port")
	_, err := Parse(nil)
	assert.Error(t, err)
}
