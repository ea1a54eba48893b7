package appointment_client

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/medorahealth/config"
	commons "github.com/medorahealth/pkg/commons"
)

// Appointment is the scheduling record a call is anchored to. The meeting
// room id is what the signaling relay keys the room by.
type Appointment struct {
	ID            string `json:"id"`
	MeetingRoomID string `json:"meeting_room_id"`
	ProviderName  string `json:"provider_name"`
	ScheduledAt   string `json:"scheduled_at"`
	Status        string `json:"status"`
}

type AppointmentServiceClient interface {
	// GetAppointment fetches one appointment by id.
	GetAppointment(ctx context.Context, appointmentID string) (*Appointment, error)
	// GetMeetingRoom resolves the room id a call for this appointment joins.
	GetMeetingRoom(ctx context.Context, appointmentID string) (string, error)
}

type appointmentServiceClient struct {
	cfg    *config.AppConfig
	logger commons.Logger
	http   *resty.Client
}

func NewAppointmentServiceClient(cfg *config.AppConfig, logger commons.Logger) AppointmentServiceClient {
	http := resty.New().
		SetBaseURL(cfg.AppointmentHost).
		SetTimeout(10 * time.Second).
		SetRetryCount(2)
	return &appointmentServiceClient{cfg: cfg, logger: logger, http: http}
}

func (client *appointmentServiceClient) GetAppointment(ctx context.Context, appointmentID string) (*Appointment, error) {
	var appt Appointment
	resp, err := client.http.R().
		SetContext(ctx).
		SetResult(&appt).
		SetPathParam("appointmentId", appointmentID).
		Get("/api/appointments/{appointmentId}")
	if err != nil {
		return nil, fmt.Errorf("appointment lookup failed: %w", err)
	}
	if resp.IsError() {
		client.logger.Warnw("appointment lookup rejected",
			"appointment", appointmentID, "status", resp.StatusCode())
		return nil, fmt.Errorf("appointment lookup failed: status %d", resp.StatusCode())
	}
	return &appt, nil
}

func (client *appointmentServiceClient) GetMeetingRoom(ctx context.Context, appointmentID string) (string, error) {
	appt, err := client.GetAppointment(ctx, appointmentID)
	if err != nil {
		return "", err
	}
	if appt.MeetingRoomID == "" {
		return "", fmt.Errorf("appointment %s has no meeting room", appointmentID)
	}
	return appt.MeetingRoomID, nil
}
