package call_api

import (
	internal_capture "github.com/medorahealth/api/call-api/internal/capture"
	internal_session "github.com/medorahealth/api/call-api/internal/session"
	internal_type "github.com/medorahealth/api/call-api/internal/type"
)

// Aliases for the engine types an embedder needs: supplying capture devices,
// holding the session, and observing the roster. Everything else stays
// internal.
type (
	Session  = internal_session.Session
	Identity = internal_session.Identity

	Participant   = internal_type.Participant
	ParticipantID = internal_type.ParticipantID
	ConnectionID  = internal_type.ConnectionID
	DeviceError   = internal_type.DeviceError

	Provider       = internal_capture.Provider
	StaticProvider = internal_capture.StaticProvider
	Source         = internal_capture.Source
	PCMTap         = internal_capture.PCMTap
	EndedNotifier  = internal_capture.EndedNotifier

	RemoteTrack = internal_session.RemoteTrack
)
