package identity_client

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medorahealth/config"
	"github.com/medorahealth/pkg/commons"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) IdentityServiceClient {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	logger, err := commons.NewApplicationLogger()
	require.NoError(t, err, "logger create should not fail")
	return NewIdentityServiceClient(&config.AppConfig{IdentityHost: server.URL}, logger)
}

func TestGetProfile(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/profiles/user-1", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"user-1","full_name":"Alice Stone","role":"patient"}`))
	})

	profile, err := client.GetProfile(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, "Alice Stone", profile.FullName)
	assert.Equal(t, "patient", profile.Role)
}

func TestGetProfileRejected(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "forbidden", http.StatusForbidden)
	})

	_, err := client.GetProfile(context.Background(), "user-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "403")
}
