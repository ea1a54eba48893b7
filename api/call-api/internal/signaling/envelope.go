package internal_signaling

import "encoding/json"

// Wire envelopes for the relay protocol. Every frame is a JSON object with an
// event name and an event-specific payload, mirroring the relay's room events:
// join-room, room-users, user-joined, user-left, offer, answer, ice-candidate,
// user-audio-status, user-video-status, plus the "connected" hello that
// assigns the connection id.

type envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

const (
	eventConnected   = "connected"
	eventJoinRoom    = "join-room"
	eventRoomUsers   = "room-users"
	eventUserJoined  = "user-joined"
	eventUserLeft    = "user-left"
	eventOffer       = "offer"
	eventAnswer      = "answer"
	eventCandidate   = "ice-candidate"
	eventAudioStatus = "user-audio-status"
	eventVideoStatus = "user-video-status"
)

type connectedPayload struct {
	SocketID string `json:"socketId"`
}

type joinRoomPayload struct {
	RoomID        string `json:"roomId"`
	ParticipantID string `json:"participantId"`
	DisplayName   string `json:"displayName"`
}

type memberPayload struct {
	SocketID string `json:"socketId"`
	UserID   string `json:"userId"`
	UserName string `json:"userName"`
}

type roomUsersPayload struct {
	Users []memberPayload `json:"users"`
}

type sdpPayload struct {
	// Target is set on outbound frames, Sender on inbound ones; the relay
	// rewrites one into the other while routing.
	Target     string `json:"target,omitempty"`
	Sender     string `json:"sender,omitempty"`
	SenderID   string `json:"senderId,omitempty"`
	SenderName string `json:"senderName,omitempty"`
	SDP        string `json:"sdp"`
}

type candidatePayload struct {
	Target    string        `json:"target,omitempty"`
	Sender    string        `json:"sender,omitempty"`
	Candidate candidateInit `json:"candidate"`
}

type candidateInit struct {
	Candidate        string `json:"candidate"`
	SDPMid           string `json:"sdpMid,omitempty"`
	SDPMLineIndex    uint16 `json:"sdpMLineIndex,omitempty"`
	UsernameFragment string `json:"usernameFragment,omitempty"`
}

type audioStatusPayload struct {
	UserID   string `json:"userId,omitempty"`
	UserName string `json:"userName,omitempty"`
	IsMuted  bool   `json:"isMuted"`
}

type videoStatusPayload struct {
	UserID     string `json:"userId,omitempty"`
	UserName   string `json:"userName,omitempty"`
	IsVideoOff bool   `json:"isVideoOff"`
}

func marshalEnvelope(event string, payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(envelope{Event: event, Data: data})
}
