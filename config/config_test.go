package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetAppConfigDefaults(t *testing.T) {
	cfg, err := GetAppConfig()
	require.NoError(t, err, "defaults alone should produce a usable config")

	assert.Equal(t, "ws://localhost:4000/signal", cfg.RelayURL)
	assert.Equal(t, "http://localhost:4000", cfg.AppointmentHost)
	assert.Equal(t, "http://localhost:4000", cfg.IdentityHost)
	assert.Equal(t, "all", cfg.ICETransportPolicy)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.NotEmpty(t, cfg.ICEServers, "ICE servers fall back to the public STUN set")
}

func TestGetAppConfigEnvOverrides(t *testing.T) {
	t.Setenv("MEDORA_RELAY_URL", "wss://relay.example.com/signal")
	t.Setenv("MEDORA_LOG_LEVEL", "debug")
	t.Setenv("MEDORA_ICE_TRANSPORT_POLICY", "relay")

	cfg, err := GetAppConfig()
	require.NoError(t, err)
	assert.Equal(t, "wss://relay.example.com/signal", cfg.RelayURL)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "relay", cfg.ICETransportPolicy)
}

func TestDefaultICEServers(t *testing.T) {
	servers := DefaultICEServers()
	require.Len(t, servers, 2)
	for _, s := range servers {
		require.NotEmpty(t, s.URLs)
		assert.Contains(t, s.URLs[0], "stun:")
		assert.Empty(t, s.Username, "public STUN needs no credentials")
	}
}
