package call_session

import (
	"context"

	internal_type "github.com/medorahealth/api/call-api/internal/type"
)

// Signaler is the relay surface the session drives. internal_signaling.Client
// is the production implementation; tests script a fake.
type Signaler interface {
	Connect(ctx context.Context) error
	Join(roomID string, participantID internal_type.ParticipantID, displayName string) error

	SendOffer(target internal_type.ConnectionID, sdp string) error
	SendAnswer(target internal_type.ConnectionID, sdp string) error
	SendCandidate(target internal_type.ConnectionID, cand internal_type.ICECandidate) error
	BroadcastAudioStatus(isMuted bool) error
	BroadcastVideoStatus(isVideoOff bool) error

	Events() <-chan internal_type.SignalEvent
	ConnectionID() internal_type.ConnectionID
	Degraded() bool
	Close() error
}
