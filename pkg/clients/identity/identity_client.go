package identity_client

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/medorahealth/config"
	commons "github.com/medorahealth/pkg/commons"
)

// Profile is the identity record behind a participant: the stable user id and
// the display name rendered on call tiles.
type Profile struct {
	ID       string `json:"id"`
	FullName string `json:"full_name"`
	Role     string `json:"role"`
}

type IdentityServiceClient interface {
	// GetProfile fetches the profile for a user id.
	GetProfile(ctx context.Context, userID string) (*Profile, error)
}

type identityServiceClient struct {
	cfg    *config.AppConfig
	logger commons.Logger
	http   *resty.Client
}

func NewIdentityServiceClient(cfg *config.AppConfig, logger commons.Logger) IdentityServiceClient {
	http := resty.New().
		SetBaseURL(cfg.IdentityHost).
		SetTimeout(10 * time.Second).
		SetRetryCount(2)
	return &identityServiceClient{cfg: cfg, logger: logger, http: http}
}

func (client *identityServiceClient) GetProfile(ctx context.Context, userID string) (*Profile, error) {
	var profile Profile
	resp, err := client.http.R().
		SetContext(ctx).
		SetResult(&profile).
		SetPathParam("userId", userID).
		Get("/api/profiles/{userId}")
	if err != nil {
		return nil, fmt.Errorf("profile lookup failed: %w", err)
	}
	if resp.IsError() {
		client.logger.Warnw("profile lookup rejected", "user", userID, "status", resp.StatusCode())
		return nil, fmt.Errorf("profile lookup failed: status %d", resp.StatusCode())
	}
	return &profile, nil
}
