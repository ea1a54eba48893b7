package call_session

import (
	"context"

	internal_type "github.com/medorahealth/api/call-api/internal/type"
)

// peerState tracks where one remote connection stands in the offer/answer
// exchange.
type peerState int

const (
	peerStateNew peerState = iota
	peerStateOfferSent
	peerStateOfferReceived
	peerStateConnected
	peerStateClosed
)

func (s peerState) String() string {
	switch s {
	case peerStateNew:
		return "new"
	case peerStateOfferSent:
		return "offer-sent"
	case peerStateOfferReceived:
		return "offer-received"
	case peerStateConnected:
		return "connected"
	case peerStateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// peer is the session-side record of one remote connection: its transport,
// negotiation state, and the candidates buffered until the remote description
// lands. Only the session loop touches it.
type peer struct {
	conn internal_type.ConnectionID
	pid  internal_type.ParticipantID
	name string

	state     peerState
	transport Transport

	// pending holds remote candidates that arrived before the remote
	// description was set, in arrival order.
	pending []internal_type.ICECandidate

	remoteStreamID string
	// audioStatusSeen records that an explicit mute broadcast arrived for this
	// peer; once set, track arrival no longer infers the mute flag.
	audioStatusSeen bool

	// pumps cancels the audio pump per remote track id.
	pumps map[string]context.CancelFunc
}

func newPeer(m internal_type.MemberInfo) *peer {
	return &peer{
		conn:  m.ConnectionID,
		pid:   m.ParticipantID,
		name:  m.DisplayName,
		state: peerStateNew,
		pumps: make(map[string]context.CancelFunc),
	}
}
