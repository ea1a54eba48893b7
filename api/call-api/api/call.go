package call_api

import (
	"context"
	"fmt"

	internal_capture "github.com/medorahealth/api/call-api/internal/capture"
	internal_roster "github.com/medorahealth/api/call-api/internal/roster"
	internal_session "github.com/medorahealth/api/call-api/internal/session"
	internal_signaling "github.com/medorahealth/api/call-api/internal/signaling"
	internal_type "github.com/medorahealth/api/call-api/internal/type"
	internal_vad "github.com/medorahealth/api/call-api/internal/vad"
	"github.com/medorahealth/config"
	appointment_client "github.com/medorahealth/pkg/clients/appointment"
	identity_client "github.com/medorahealth/pkg/clients/identity"
	commons "github.com/medorahealth/pkg/commons"
)

// CallService is the entry point for joining video calls. A join resolves the
// appointment to its meeting room and the user to a display name, then brings
// up a running session: relay connection, device capture, voice activity
// detection, and one peer transport per remote participant.
type CallService interface {
	// JoinAppointment joins the meeting room attached to an appointment.
	JoinAppointment(ctx context.Context, appointmentID, userID string) (*internal_session.Session, error)
	// JoinRoom joins a room directly, bypassing appointment resolution.
	JoinRoom(ctx context.Context, roomID, userID, displayName string) (*internal_session.Session, error)
}

type callApi struct {
	cfg          *config.AppConfig
	logger       commons.Logger
	devices      internal_capture.Provider
	appointments appointment_client.AppointmentServiceClient
	identities   identity_client.IdentityServiceClient
}

func NewCallApi(
	cfg *config.AppConfig,
	logger commons.Logger,
	devices internal_capture.Provider,
	appointments appointment_client.AppointmentServiceClient,
	identities identity_client.IdentityServiceClient,
) CallService {
	return &callApi{
		cfg:          cfg,
		logger:       logger,
		devices:      devices,
		appointments: appointments,
		identities:   identities,
	}
}

func (api *callApi) JoinAppointment(ctx context.Context, appointmentID, userID string) (*internal_session.Session, error) {
	roomID, displayName, err := api.resolveJoin(ctx, appointmentID, userID)
	if err != nil {
		return nil, err
	}
	return api.JoinRoom(ctx, roomID, userID, displayName)
}

func (api *callApi) JoinRoom(ctx context.Context, roomID, userID, displayName string) (*internal_session.Session, error) {
	signal := internal_signaling.NewClient(api.logger, api.cfg.RelayURL)
	capture := internal_capture.NewManager(api.logger, api.devices)
	vad := internal_vad.NewDetector(api.logger)
	roster := internal_roster.New()

	session := internal_session.NewSession(
		api.logger,
		signal,
		capture,
		vad,
		roster,
		internal_session.NewPionTransportFactory(api.cfg),
		internal_session.Identity{
			RoomID:        roomID,
			ParticipantID: internal_type.ParticipantID(userID),
			DisplayName:   displayName,
		},
	)
	if err := session.Start(ctx); err != nil {
		return nil, fmt.Errorf("failed to join room %s: %w", roomID, err)
	}
	api.logger.Infow("joined room", "room", roomID, "user", userID)
	return session, nil
}

// resolveJoin maps an appointment to its room and the user to a display name.
// A room-less appointment cannot host a call; a missing profile merely costs
// the pretty name.
func (api *callApi) resolveJoin(ctx context.Context, appointmentID, userID string) (roomID, displayName string, err error) {
	roomID, err = api.appointments.GetMeetingRoom(ctx, appointmentID)
	if err != nil {
		return "", "", fmt.Errorf("failed to resolve appointment %s: %w", appointmentID, err)
	}

	displayName = "Unknown"
	profile, err := api.identities.GetProfile(ctx, userID)
	if err != nil {
		api.logger.Warnw("profile lookup failed, using fallback display name",
			"user", userID, "error", err)
	} else if profile.FullName != "" {
		displayName = profile.FullName
	}
	return roomID, displayName, nil
}
