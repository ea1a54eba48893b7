package call_session

import (
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"

	internal_type "github.com/medorahealth/api/call-api/internal/type"
)

// Transport is one direct media connection to a remote participant. The
// session owns exactly one per remote connection id and drives it through
// the offer/answer/candidate exchange. The interface is narrow on purpose:
// it is what the state machine needs, nothing more, so tests can script it.
type Transport interface {
	// AddTrack attaches an outbound track and returns its sender.
	AddTrack(track webrtc.TrackLocal) (Sender, error)
	// Senders lists the current outbound senders.
	Senders() []Sender

	// CreateOffer generates an offer and sets it as the local description.
	CreateOffer() (sdp string, err error)
	// CreateAnswer applies the remote offer and generates an answer, setting
	// both descriptions.
	CreateAnswer(offerSDP string) (sdp string, err error)
	// SetAnswer applies the answer matching an offer this side generated.
	SetAnswer(sdp string) error

	// AddICECandidate applies one remote candidate. Callers must not invoke
	// it before a remote description exists.
	AddICECandidate(c internal_type.ICECandidate) error
	// HasRemoteDescription reports whether candidates can be applied yet.
	HasRemoteDescription() bool
	// SignalingStable reports whether a fresh offer can be generated now.
	SignalingStable() bool

	OnICECandidate(fn func(internal_type.ICECandidate))
	OnConnectionStateChange(fn func(webrtc.PeerConnectionState))
	OnTrack(fn func(RemoteTrack))

	Close() error
}

// Sender is one outbound media slot on a transport. Replacing its track
// swaps the payload without renegotiation.
type Sender interface {
	Kind() webrtc.RTPCodecType
	ReplaceTrack(track webrtc.TrackLocal) error
}

// RemoteTrack is one inbound track on a transport. Enabled state is
// observable and writable so the session can force-enable tracks that arrive
// disabled.
type RemoteTrack interface {
	ID() string
	StreamID() string
	Kind() webrtc.RTPCodecType
	Enabled() bool
	SetEnabled(v bool)
	Live() bool
	// ReadRTP delivers the next inbound packet; the audio pump consumes it.
	ReadRTP() (*rtp.Packet, error)
}

// TransportFactory builds a fresh Transport per discovered peer.
type TransportFactory func() (Transport, error)
