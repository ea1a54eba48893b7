package call_session

import (
	"fmt"
	"sync/atomic"

	"github.com/pion/interceptor"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"

	internal_type "github.com/medorahealth/api/call-api/internal/type"
	"github.com/medorahealth/config"
)

// NewPionTransportFactory returns a TransportFactory producing Pion peer
// connections with the default codecs and interceptors (NACK recovery
// included) and the configured ICE servers.
func NewPionTransportFactory(cfg *config.AppConfig) TransportFactory {
	return func() (Transport, error) {
		mediaEngine := &webrtc.MediaEngine{}
		if err := mediaEngine.RegisterDefaultCodecs(); err != nil {
			return nil, fmt.Errorf("failed to register codecs: %w", err)
		}

		registry := &interceptor.Registry{}
		if err := webrtc.RegisterDefaultInterceptors(mediaEngine, registry); err != nil {
			return nil, fmt.Errorf("failed to register interceptors: %w", err)
		}

		api := webrtc.NewAPI(
			webrtc.WithMediaEngine(mediaEngine),
			webrtc.WithInterceptorRegistry(registry),
		)

		iceServers := make([]webrtc.ICEServer, len(cfg.ICEServers))
		for i, srv := range cfg.ICEServers {
			iceServers[i] = webrtc.ICEServer{
				URLs:       srv.URLs,
				Username:   srv.Username,
				Credential: srv.Credential,
			}
		}
		pcConfig := webrtc.Configuration{ICEServers: iceServers}
		if cfg.ICETransportPolicy == "relay" {
			pcConfig.ICETransportPolicy = webrtc.ICETransportPolicyRelay
		}

		pc, err := api.NewPeerConnection(pcConfig)
		if err != nil {
			return nil, fmt.Errorf("failed to create peer connection: %w", err)
		}
		return &pionTransport{pc: pc}, nil
	}
}

type pionTransport struct {
	pc *webrtc.PeerConnection
}

func (t *pionTransport) AddTrack(track webrtc.TrackLocal) (Sender, error) {
	sender, err := t.pc.AddTrack(track)
	if err != nil {
		return nil, err
	}
	return &pionSender{sender: sender, kind: track.Kind()}, nil
}

func (t *pionTransport) Senders() []Sender {
	senders := t.pc.GetSenders()
	out := make([]Sender, 0, len(senders))
	for _, s := range senders {
		track := s.Track()
		if track == nil {
			continue
		}
		out = append(out, &pionSender{sender: s, kind: track.Kind()})
	}
	return out
}

func (t *pionTransport) CreateOffer() (string, error) {
	offer, err := t.pc.CreateOffer(nil)
	if err != nil {
		return "", fmt.Errorf("failed to create offer: %w", err)
	}
	if err := t.pc.SetLocalDescription(offer); err != nil {
		return "", fmt.Errorf("failed to set local description: %w", err)
	}
	return offer.SDP, nil
}

func (t *pionTransport) CreateAnswer(offerSDP string) (string, error) {
	if err := t.pc.SetRemoteDescription(webrtc.SessionDescription{
		Type: webrtc.SDPTypeOffer,
		SDP:  offerSDP,
	}); err != nil {
		return "", fmt.Errorf("failed to set remote description: %w", err)
	}
	answer, err := t.pc.CreateAnswer(nil)
	if err != nil {
		return "", fmt.Errorf("failed to create answer: %w", err)
	}
	if err := t.pc.SetLocalDescription(answer); err != nil {
		return "", fmt.Errorf("failed to set local description: %w", err)
	}
	return answer.SDP, nil
}

func (t *pionTransport) SetAnswer(sdp string) error {
	return t.pc.SetRemoteDescription(webrtc.SessionDescription{
		Type: webrtc.SDPTypeAnswer,
		SDP:  sdp,
	})
}

func (t *pionTransport) AddICECandidate(c internal_type.ICECandidate) error {
	init := webrtc.ICECandidateInit{Candidate: c.Candidate}
	if c.SDPMid != "" {
		mid := c.SDPMid
		init.SDPMid = &mid
	}
	idx := c.SDPMLineIndex
	init.SDPMLineIndex = &idx
	if c.UsernameFragment != "" {
		frag := c.UsernameFragment
		init.UsernameFragment = &frag
	}
	return t.pc.AddICECandidate(init)
}

func (t *pionTransport) HasRemoteDescription() bool {
	return t.pc.RemoteDescription() != nil
}

func (t *pionTransport) SignalingStable() bool {
	return t.pc.SignalingState() == webrtc.SignalingStateStable
}

func (t *pionTransport) OnICECandidate(fn func(internal_type.ICECandidate)) {
	t.pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			return
		}
		cj := c.ToJSON()
		out := internal_type.ICECandidate{Candidate: cj.Candidate}
		if cj.SDPMid != nil {
			out.SDPMid = *cj.SDPMid
		}
		if cj.SDPMLineIndex != nil {
			out.SDPMLineIndex = *cj.SDPMLineIndex
		}
		if cj.UsernameFragment != nil {
			out.UsernameFragment = *cj.UsernameFragment
		}
		fn(out)
	})
}

func (t *pionTransport) OnConnectionStateChange(fn func(webrtc.PeerConnectionState)) {
	t.pc.OnConnectionStateChange(fn)
}

func (t *pionTransport) OnTrack(fn func(RemoteTrack)) {
	t.pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		rt := &pionRemoteTrack{track: track}
		rt.enabled.Store(true)
		rt.live.Store(true)
		fn(rt)
	})
}

func (t *pionTransport) Close() error {
	return t.pc.Close()
}

type pionSender struct {
	sender *webrtc.RTPSender
	kind   webrtc.RTPCodecType
}

func (s *pionSender) Kind() webrtc.RTPCodecType { return s.kind }

func (s *pionSender) ReplaceTrack(track webrtc.TrackLocal) error {
	return s.sender.ReplaceTrack(track)
}

// pionRemoteTrack adapts *webrtc.TrackRemote. Pion delivers tracks already
// enabled, so the enabled flag only exists to satisfy the normalization
// contract; Live flips false once the track hits EOF.
type pionRemoteTrack struct {
	track   *webrtc.TrackRemote
	enabled atomic.Bool
	live    atomic.Bool
}

func (t *pionRemoteTrack) ID() string                { return t.track.ID() }
func (t *pionRemoteTrack) StreamID() string          { return t.track.StreamID() }
func (t *pionRemoteTrack) Kind() webrtc.RTPCodecType { return t.track.Kind() }
func (t *pionRemoteTrack) Enabled() bool             { return t.enabled.Load() }
func (t *pionRemoteTrack) SetEnabled(v bool)         { t.enabled.Store(v) }
func (t *pionRemoteTrack) Live() bool                { return t.live.Load() }

func (t *pionRemoteTrack) ReadRTP() (*rtp.Packet, error) {
	pkt, _, err := t.track.ReadRTP()
	if err != nil {
		t.live.Store(false)
		return nil, err
	}
	return pkt, nil
}
