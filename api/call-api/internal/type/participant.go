package internal_type

// ParticipantID is the stable application-level identity of a user. It
// survives reconnects.
type ParticipantID string

// ConnectionID is the ephemeral identity the signaling relay assigns to one
// browsing session. Peer transports and addressed signaling messages are
// keyed by it; a reconnecting user arrives with a new one.
type ConnectionID string

// Participant is one entry in the call roster, local user or remote peer,
// with everything the call screen needs to render a tile.
type Participant struct {
	ID           ParticipantID
	ConnectionID ConnectionID
	DisplayName  string
	IsLocal      bool

	// IsMuted / IsVideoOff carry intent: the local toggles for the local
	// participant, the last explicit status broadcast for remote ones.
	IsMuted    bool
	IsVideoOff bool

	// IsSpeaking is transient, driven by the voice activity detector. It is
	// forced false whenever IsMuted is true.
	IsSpeaking bool

	// StreamID references the media stream attached to this participant.
	// Remote streams are owned by the session; the local stream by the
	// capture manager. The roster never owns media.
	StreamID string

	// HasLiveVideo reports whether an enabled, live video track exists right
	// now. It is derived from track state, independently of the IsVideoOff
	// intent flag: the renderer shows an initials placeholder unless both
	// agree that video is renderable.
	HasLiveVideo bool
}

// ShowPlaceholder reports whether the tile should render the initials
// placeholder instead of a video surface.
func (p Participant) ShowPlaceholder() bool {
	if p.IsLocal {
		return p.IsVideoOff
	}
	return p.IsVideoOff || !p.HasLiveVideo
}

// MemberInfo is a room membership record as reported by the relay.
type MemberInfo struct {
	ConnectionID  ConnectionID
	ParticipantID ParticipantID
	DisplayName   string
}

// ICECandidate is a transport network candidate as carried over signaling.
type ICECandidate struct {
	Candidate        string
	SDPMid           string
	SDPMLineIndex    uint16
	UsernameFragment string
}
