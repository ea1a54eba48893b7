package call_session

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"

	internal_capture "github.com/medorahealth/api/call-api/internal/capture"
	internal_roster "github.com/medorahealth/api/call-api/internal/roster"
	internal_type "github.com/medorahealth/api/call-api/internal/type"
	internal_vad "github.com/medorahealth/api/call-api/internal/vad"
	"github.com/medorahealth/pkg/commons"
)

const internalQueueSize = 512

// ErrSessionClosed is returned by operations attempted after Close.
var ErrSessionClosed = errors.New("session: closed")

// Identity is what the local participant joins the room as.
type Identity struct {
	RoomID        string
	ParticipantID internal_type.ParticipantID
	DisplayName   string
}

// ----------------------------------------------------------------------------
// internal events
// ----------------------------------------------------------------------------

// internalEvent is anything the loop must process besides signaling: transport
// callbacks, capture changes, detector verdicts, and caller commands. Events
// from transport callbacks carry the transport pointer so that a callback
// firing after its transport was replaced (glare) or closed is recognized as
// stale and dropped.
type internalEvent interface{ internalEvent() }

type localCandidateEvent struct {
	conn      internal_type.ConnectionID
	transport Transport
	cand      internal_type.ICECandidate
}

type transportStateEvent struct {
	conn      internal_type.ConnectionID
	transport Transport
	state     webrtc.PeerConnectionState
}

type remoteTrackEvent struct {
	conn      internal_type.ConnectionID
	transport Transport
	track     RemoteTrack
}

type trackChangedEvent struct {
	update internal_capture.TrackUpdate
}

type speakingEvent struct {
	streamID string
	speaking bool
}

type commandEvent struct {
	run  func() error
	done chan error
}

func (localCandidateEvent) internalEvent() {}
func (transportStateEvent) internalEvent() {}
func (remoteTrackEvent) internalEvent()    {}
func (trackChangedEvent) internalEvent()   {}
func (speakingEvent) internalEvent()       {}
func (commandEvent) internalEvent()        {}

// ----------------------------------------------------------------------------
// session
// ----------------------------------------------------------------------------

// Session orchestrates one call: it drives the signaling exchange, owns one
// peer transport per remote connection, keeps the roster current, and routes
// local media to every peer. All state transitions run on a single event loop
// goroutine; the public methods hand work to that loop and wait.
type Session struct {
	logger  commons.Logger
	signal  Signaler
	capture *internal_capture.Manager
	vad     *internal_vad.Detector
	roster  *internal_roster.Roster
	factory TransportFactory

	identity    Identity
	localStream string

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	// pumpWg tracks audio pumps separately: they block in ReadRTP and only
	// unwind once their transport closes, which happens after the loop stops.
	pumpWg sync.WaitGroup

	events chan internalEvent

	// Loop-owned state below; never touched outside the loop after Start.
	peers     map[internal_type.ConnectionID]*peer
	self      internal_type.ConnectionID
	selfKnown bool

	localMuted    bool
	localVideoOff bool

	mu            sync.Mutex
	started       bool
	onRemoteTrack func(internal_type.ConnectionID, RemoteTrack)

	closeOnce sync.Once
	closeErr  error
}

// NewSession assembles a session over its collaborators. Start joins the call.
func NewSession(
	logger commons.Logger,
	signal Signaler,
	capture *internal_capture.Manager,
	vad *internal_vad.Detector,
	roster *internal_roster.Roster,
	factory TransportFactory,
	identity Identity,
) *Session {
	ctx, cancel := context.WithCancel(context.Background())
	return &Session{
		logger:        logger,
		signal:        signal,
		capture:       capture,
		vad:           vad,
		roster:        roster,
		factory:       factory,
		identity:      identity,
		localStream:   uuid.NewString(),
		ctx:           ctx,
		cancel:        cancel,
		events:        make(chan internalEvent, internalQueueSize),
		peers:         make(map[internal_type.ConnectionID]*peer),
		localVideoOff: true, // camera stays off until explicitly enabled
	}
}

// OnRemoteTrack registers the consumer for inbound remote tracks. Audio
// tracks are additionally pumped into voice activity detection internally;
// video tracks are delivered here and nowhere else. Must be set before Start.
func (s *Session) OnRemoteTrack(fn func(internal_type.ConnectionID, RemoteTrack)) {
	s.mu.Lock()
	s.onRemoteTrack = fn
	s.mu.Unlock()
}

// Start acquires the microphone, connects to the relay, and begins the event
// loop. A missing or denied microphone is not fatal: the session joins
// audio-less and the local participant reads as muted. ctx bounds the startup
// dial and device acquisition; cancelling it later also ends the session.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return errors.New("session: already started")
	}
	s.started = true
	s.mu.Unlock()

	s.capture.SetTrackListener(func(u internal_capture.TrackUpdate) {
		s.pushInternal(trackChangedEvent{update: u})
	})
	s.vad.SetMuteLookup(s.roster.MutedByStream)
	s.vad.OnTransition(func(streamID string, speaking bool) {
		s.pushInternal(speakingEvent{streamID: streamID, speaking: speaking})
	})

	if err := s.capture.AcquireAudio(ctx); err != nil {
		var devErr *internal_type.DeviceError
		if !errors.As(err, &devErr) {
			return err
		}
		// Audio-less join: the call proceeds, the local tile reads muted.
		s.localMuted = true
		s.logger.Warnw("microphone unavailable, joining without audio", "error", err)
	} else {
		feed := s.vad.Attach(s.localStream)
		if !s.capture.SetAudioPCMSink(feed.Push) {
			s.vad.Detach(s.localStream)
			s.logger.Debugw("microphone source has no pcm tap, local voice detection disabled")
		}
	}

	if err := s.signal.Connect(ctx); err != nil {
		return err
	}

	s.wg.Add(2)
	go s.run()
	go func() {
		defer s.wg.Done()
		s.vad.Run(s.ctx)
	}()

	// Caller context cancellation ends the whole session.
	go func() {
		select {
		case <-ctx.Done():
			s.Close()
		case <-s.ctx.Done():
		}
	}()

	s.logger.Infow("session started",
		"room", s.identity.RoomID,
		"participant", s.identity.ParticipantID,
	)
	return nil
}

// SetMuted toggles the microphone, broadcasts the new state to the room, and
// forces the local speaking flag off while muted.
func (s *Session) SetMuted(ctx context.Context, muted bool) error {
	return s.do(ctx, func() error {
		s.capture.SetMuted(muted)
		s.localMuted = muted
		s.roster.UpdateByParticipant(s.identity.ParticipantID, internal_roster.Patch{
			IsMuted: internal_roster.Ptr(muted),
		})
		if err := s.signal.BroadcastAudioStatus(muted); err != nil {
			s.logger.Warnw("audio status broadcast failed", "error", err)
		}
		return nil
	})
}

// SetVideo turns the camera on or off. Turning it on acquires the device on
// first use; failures come back as a DeviceError and the call continues
// without video. Turning it off disables the track without releasing the
// device, so the next enable is instant.
func (s *Session) SetVideo(ctx context.Context, on bool) error {
	return s.do(ctx, func() error {
		if on {
			if err := s.capture.AcquireVideo(ctx); err != nil {
				return err
			}
		} else {
			s.capture.ReleaseVideo()
			s.roster.UpdateByParticipant(s.identity.ParticipantID, internal_roster.Patch{
				HasLiveVideo: internal_roster.Ptr(false),
			})
		}
		s.localVideoOff = !on
		s.roster.UpdateByParticipant(s.identity.ParticipantID, internal_roster.Patch{
			IsVideoOff: internal_roster.Ptr(!on),
		})
		if err := s.signal.BroadcastVideoStatus(!on); err != nil {
			s.logger.Warnw("video status broadcast failed", "error", err)
		}
		return nil
	})
}

// StartScreenShare makes the captured display the outbound video for every
// peer. The camera track, if live, is restored automatically when the share
// ends.
func (s *Session) StartScreenShare(ctx context.Context) error {
	return s.do(ctx, func() error {
		return s.capture.AcquireScreenShare(ctx)
	})
}

// StopScreenShare ends an active share. No-op when none is running.
func (s *Session) StopScreenShare(ctx context.Context) error {
	return s.do(ctx, func() error {
		s.capture.StopScreenShare()
		return nil
	})
}

// Roster returns the participant roster for observation.
func (s *Session) Roster() *internal_roster.Roster {
	return s.roster
}

// Degraded reports whether the relay connection has dropped.
func (s *Session) Degraded() bool {
	return s.signal.Degraded()
}

// Close leaves the call: every peer transport is torn down, devices are
// released, and the relay connection is closed. Idempotent.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.cancel()
		s.wg.Wait()

		// The loop is stopped; its state is safe to touch directly now.
		// Closing the transports unblocks the pumps.
		for id := range s.peers {
			s.closePeer(id, "session closed")
		}
		s.pumpWg.Wait()
		s.vad.Detach(s.localStream)
		s.capture.Close()
		s.closeErr = s.signal.Close()
		s.logger.Infow("session closed", "room", s.identity.RoomID)
	})
	return s.closeErr
}

// ----------------------------------------------------------------------------
// event loop
// ----------------------------------------------------------------------------

func (s *Session) run() {
	defer s.wg.Done()
	for {
		select {
		case <-s.ctx.Done():
			return
		case ev := <-s.signal.Events():
			s.handleSignal(ev)
		case ev := <-s.events:
			s.handleInternal(ev)
		}
	}
}

func (s *Session) handleSignal(ev internal_type.SignalEvent) {
	switch ev := ev.(type) {
	case internal_type.ConnectedEvent:
		s.handleConnected(ev.Self)

	case internal_type.DisconnectedEvent:
		// Peer transports stay up while degraded; reconnection policy is the
		// caller's. A later Connect delivers a fresh ConnectedEvent and the
		// room is rediscovered from scratch.
		s.logger.Warnw("signaling degraded", "error", ev.Err)

	case internal_type.RosterSnapshotEvent:
		for _, m := range ev.Members {
			if m.ConnectionID == s.self {
				continue
			}
			s.initiatePeer(m)
		}

	case internal_type.MemberJoinedEvent:
		if ev.Member.ConnectionID != s.self {
			s.initiatePeer(ev.Member)
		}

	case internal_type.MemberLeftEvent:
		s.closePeer(ev.Member.ConnectionID, "member left")
		s.roster.Remove(ev.Member.ConnectionID)

	case internal_type.OfferEvent:
		s.handleOffer(ev)

	case internal_type.AnswerEvent:
		s.handleAnswer(ev)

	case internal_type.CandidateEvent:
		s.handleCandidate(ev)

	case internal_type.AudioStatusEvent:
		for _, p := range s.peers {
			if p.pid == ev.ParticipantID {
				p.audioStatusSeen = true
			}
		}
		s.roster.UpdateByParticipant(ev.ParticipantID, internal_roster.Patch{
			IsMuted: internal_roster.Ptr(ev.IsMuted),
		})

	case internal_type.VideoStatusEvent:
		s.roster.UpdateByParticipant(ev.ParticipantID, internal_roster.Patch{
			IsVideoOff: internal_roster.Ptr(ev.IsVideoOff),
		})
	}
}

func (s *Session) handleInternal(ev internalEvent) {
	switch ev := ev.(type) {
	case localCandidateEvent:
		p, ok := s.peers[ev.conn]
		if !ok || p.transport != ev.transport {
			return // stale callback from a replaced or closed transport
		}
		if err := s.signal.SendCandidate(ev.conn, ev.cand); err != nil {
			s.logger.Warnw("candidate send failed", "peer", ev.conn, "error", err)
		}

	case transportStateEvent:
		s.handleTransportState(ev)

	case remoteTrackEvent:
		s.handleRemoteTrack(ev)

	case trackChangedEvent:
		s.propagateTrack(ev.update)

	case speakingEvent:
		s.roster.SetSpeaking(ev.streamID, ev.speaking)

	case commandEvent:
		ev.done <- ev.run()
	}
}

// handleConnected runs on every relay hello: the first one at join, and one
// per reconnect. A reconnect arrives with a new connection id, so every
// previously known peer is stale and gets torn down before re-joining.
func (s *Session) handleConnected(self internal_type.ConnectionID) {
	if s.selfKnown && self != s.self {
		s.logger.Infow("reconnected with new connection id, rediscovering room",
			"previous", s.self, "current", self)
		for id := range s.peers {
			s.closePeer(id, "signaling reconnect")
		}
		s.roster.Reset()
	}
	s.self = self
	s.selfKnown = true

	s.roster.UpsertLocal(internal_type.Participant{
		ID:           s.identity.ParticipantID,
		ConnectionID: self,
		DisplayName:  s.identity.DisplayName,
		IsMuted:      s.localMuted,
		IsVideoOff:   s.localVideoOff,
		StreamID:     s.localStream,
		HasLiveVideo: !s.localVideoOff && s.capture.ActiveVideoTrack() != nil,
	})

	if err := s.signal.Join(s.identity.RoomID, s.identity.ParticipantID, s.identity.DisplayName); err != nil {
		s.logger.Errorw("room join failed", "room", s.identity.RoomID, "error", err)
		return
	}
	if err := s.signal.BroadcastAudioStatus(s.localMuted); err != nil {
		s.logger.Warnw("audio status broadcast failed", "error", err)
	}
	if err := s.signal.BroadcastVideoStatus(s.localVideoOff); err != nil {
		s.logger.Warnw("video status broadcast failed", "error", err)
	}
}

// initiatePeer discovers a peer from the signaling layer (roster snapshot or
// join announcement) and sends it exactly one offer. Discovering a peer that
// already has a transport is a no-op, which is what bounds offers to one per
// connection id.
func (s *Session) initiatePeer(m internal_type.MemberInfo) {
	if _, ok := s.peers[m.ConnectionID]; ok {
		return
	}

	p := newPeer(m)
	s.peers[m.ConnectionID] = p
	s.roster.UpsertRemote(m.ConnectionID, internal_roster.Patch{
		ParticipantID: internal_roster.Ptr(m.ParticipantID),
		DisplayName:   internal_roster.Ptr(m.DisplayName),
	})

	transport, err := s.factory()
	if err != nil {
		s.logger.Errorw("transport create failed", "peer", m.ConnectionID, "error", err)
		delete(s.peers, m.ConnectionID)
		return
	}
	p.transport = transport
	s.bindTransport(p, transport)
	s.attachLocalTracks(p)

	sdp, err := transport.CreateOffer()
	if err != nil {
		s.logger.Errorw("offer create failed",
			"error", &internal_type.NegotiationError{Peer: m.ConnectionID, Op: "create-offer", Err: err})
		s.closePeer(m.ConnectionID, "offer failed")
		return
	}
	if err := s.signal.SendOffer(m.ConnectionID, sdp); err != nil {
		s.logger.Warnw("offer send failed", "peer", m.ConnectionID, "error", err)
	}
	p.state = peerStateOfferSent
	s.logger.Debugw("offer sent", "peer", m.ConnectionID)
}

// handleOffer covers three cases: an unknown peer offering to us (we answer),
// an established peer renegotiating (we answer on the live transport), and
// glare, where both sides offered at once. Glare resolves by connection id order:
// the lexicographically smaller id keeps its offer and ignores the colliding
// one; the larger id discards its own transport and answers instead, so
// exactly one offer per pair survives.
func (s *Session) handleOffer(ev internal_type.OfferEvent) {
	p, ok := s.peers[ev.From.ConnectionID]
	if !ok {
		// Discovered second via signaling: we are the answerer.
		p = newPeer(ev.From)
		s.peers[ev.From.ConnectionID] = p
		s.roster.UpsertRemote(ev.From.ConnectionID, internal_roster.Patch{
			ParticipantID: internal_roster.Ptr(ev.From.ParticipantID),
			DisplayName:   internal_roster.Ptr(ev.From.DisplayName),
		})
		transport, err := s.factory()
		if err != nil {
			s.logger.Errorw("transport create failed", "peer", ev.From.ConnectionID, "error", err)
			delete(s.peers, ev.From.ConnectionID)
			return
		}
		p.transport = transport
		s.bindTransport(p, transport)
		s.attachLocalTracks(p)
		s.answer(p, ev.SDP)
		return
	}

	switch p.state {
	case peerStateOfferSent:
		if s.self < ev.From.ConnectionID {
			s.logger.Debugw("offer collision, keeping local offer", "peer", p.conn)
			return
		}
		// Yield: rebuild the transport as answerer. Buffered remote candidates
		// stay valid because the remote side keeps its transport.
		s.logger.Debugw("offer collision, yielding to peer", "peer", p.conn)
		if err := p.transport.Close(); err != nil {
			s.logger.Warnw("transport close failed", "peer", p.conn, "error", err)
		}
		transport, err := s.factory()
		if err != nil {
			s.logger.Errorw("transport create failed", "peer", p.conn, "error", err)
			s.closePeer(p.conn, "glare rebuild failed")
			return
		}
		p.transport = transport
		s.bindTransport(p, transport)
		s.attachLocalTracks(p)
		s.answer(p, ev.SDP)

	case peerStateOfferReceived, peerStateConnected:
		// Renegotiation offer on the live transport.
		s.answer(p, ev.SDP)

	default:
		s.logger.Debugw("offer ignored", "peer", p.conn, "state", p.state.String())
	}
}

// answer applies a remote offer, sends the answer back, and flushes any
// candidates that arrived early.
func (s *Session) answer(p *peer, offerSDP string) {
	sdp, err := p.transport.CreateAnswer(offerSDP)
	if err != nil {
		s.logger.Errorw("answer create failed",
			"error", &internal_type.NegotiationError{Peer: p.conn, Op: "create-answer", Err: err})
		s.closePeer(p.conn, "answer failed")
		s.roster.Remove(p.conn)
		return
	}
	if err := s.signal.SendAnswer(p.conn, sdp); err != nil {
		s.logger.Warnw("answer send failed", "peer", p.conn, "error", err)
	}
	if p.state != peerStateConnected {
		p.state = peerStateOfferReceived
	}
	s.flushCandidates(p)
	s.logger.Debugw("answer sent", "peer", p.conn)
}

func (s *Session) handleAnswer(ev internal_type.AnswerEvent) {
	p, ok := s.peers[ev.From]
	if !ok {
		s.logger.Debugw("answer from unknown peer ignored", "peer", ev.From)
		return
	}
	if p.state != peerStateOfferSent && p.state != peerStateConnected {
		s.logger.Debugw("unexpected answer ignored", "peer", ev.From, "state", p.state.String())
		return
	}
	if err := p.transport.SetAnswer(ev.SDP); err != nil {
		s.logger.Errorw("answer apply failed",
			"error", &internal_type.NegotiationError{Peer: ev.From, Op: "apply-answer", Err: err})
		s.closePeer(ev.From, "answer apply failed")
		s.roster.Remove(ev.From)
		return
	}
	s.flushCandidates(p)
}

// handleCandidate applies a remote candidate, or buffers it when the remote
// description is not set yet. Buffered candidates flush in arrival order.
func (s *Session) handleCandidate(ev internal_type.CandidateEvent) {
	p, ok := s.peers[ev.From]
	if !ok {
		s.logger.Debugw("candidate from unknown peer ignored", "peer", ev.From)
		return
	}
	if p.transport == nil || !p.transport.HasRemoteDescription() {
		p.pending = append(p.pending, ev.Candidate)
		return
	}
	if err := p.transport.AddICECandidate(ev.Candidate); err != nil {
		s.logger.Warnw("candidate rejected", "peer", ev.From, "error", err)
	}
}

func (s *Session) flushCandidates(p *peer) {
	for _, c := range p.pending {
		if err := p.transport.AddICECandidate(c); err != nil {
			s.logger.Warnw("buffered candidate rejected", "peer", p.conn, "error", err)
		}
	}
	p.pending = nil
}

func (s *Session) handleTransportState(ev transportStateEvent) {
	p, ok := s.peers[ev.conn]
	if !ok || p.transport != ev.transport {
		return
	}
	s.logger.Debugw("transport state", "peer", ev.conn, "state", ev.state.String())

	switch ev.state {
	case webrtc.PeerConnectionStateConnected:
		p.state = peerStateConnected
	case webrtc.PeerConnectionStateFailed,
		webrtc.PeerConnectionStateDisconnected,
		webrtc.PeerConnectionStateClosed:
		// Terminal for this pair: drop the transport, the roster entry, and
		// the voice detection context. Nothing further is sent to this peer.
		s.logger.Warnw("peer transport lost",
			"error", &internal_type.TransportFailure{Peer: ev.conn, State: ev.state.String()})
		s.closePeer(ev.conn, "transport "+ev.state.String())
		s.roster.Remove(ev.conn)
	}
}

// handleRemoteTrack normalizes an inbound track and records what it implies
// about the sender: the stream id binds the peer to its roster entry, an audio
// track (absent an explicit broadcast) implies unmuted, a video track makes
// the tile renderable. Some browsers deliver tracks disabled; they are
// force-enabled so media flows regardless.
func (s *Session) handleRemoteTrack(ev remoteTrackEvent) {
	p, ok := s.peers[ev.conn]
	if !ok || p.transport != ev.transport {
		return
	}

	track := ev.track
	if !track.Enabled() {
		track.SetEnabled(true)
	}
	p.remoteStreamID = track.StreamID()

	patch := internal_roster.Patch{StreamID: internal_roster.Ptr(track.StreamID())}
	switch track.Kind() {
	case webrtc.RTPCodecTypeAudio:
		if !p.audioStatusSeen {
			patch.IsMuted = internal_roster.Ptr(false)
		}
	case webrtc.RTPCodecTypeVideo:
		patch.HasLiveVideo = internal_roster.Ptr(true)
	}
	s.roster.UpsertRemote(ev.conn, patch)

	if track.Kind() == webrtc.RTPCodecTypeAudio {
		feed := s.vad.Attach(track.StreamID())
		pumpCtx, cancel := context.WithCancel(s.ctx)
		if prev, ok := p.pumps[track.ID()]; ok {
			prev()
		}
		p.pumps[track.ID()] = cancel
		s.pumpWg.Add(1)
		go s.pumpAudio(pumpCtx, track, feed)
	}

	s.mu.Lock()
	deliver := s.onRemoteTrack
	s.mu.Unlock()
	if deliver != nil {
		deliver(ev.conn, track)
	}
}

// propagateTrack pushes a changed local track to every live peer. A sender of
// the same kind swaps tracks in place with no renegotiation; only a peer with
// no sender of that kind gets a fresh offer. A nil track silences existing
// senders of that kind.
func (s *Session) propagateTrack(u internal_capture.TrackUpdate) {
	var rtc webrtc.TrackLocal
	if u.Track != nil {
		rtc = u.Track.RTC()
	}

	if u.Kind == webrtc.RTPCodecTypeVideo {
		s.roster.UpdateByParticipant(s.identity.ParticipantID, internal_roster.Patch{
			HasLiveVideo: internal_roster.Ptr(u.Track != nil && u.Track.Enabled()),
		})
	}

	for _, p := range s.peers {
		if p.transport == nil || p.state == peerStateClosed {
			continue
		}

		var sender Sender
		for _, sn := range p.transport.Senders() {
			if sn.Kind() == u.Kind {
				sender = sn
				break
			}
		}

		if sender != nil {
			if err := sender.ReplaceTrack(rtc); err != nil {
				s.logger.Warnw("track replace failed", "peer", p.conn, "kind", u.Kind.String(), "error", err)
			}
			continue
		}
		if rtc == nil {
			continue
		}

		if _, err := p.transport.AddTrack(rtc); err != nil {
			s.logger.Warnw("track add failed", "peer", p.conn, "kind", u.Kind.String(), "error", err)
			continue
		}
		if !p.transport.SignalingStable() {
			// The in-flight exchange will carry the new track once it settles.
			s.logger.Debugw("renegotiation deferred", "peer", p.conn)
			continue
		}
		sdp, err := p.transport.CreateOffer()
		if err != nil {
			s.logger.Errorw("renegotiation offer failed", "peer", p.conn, "error", err)
			continue
		}
		if err := s.signal.SendOffer(p.conn, sdp); err != nil {
			s.logger.Warnw("renegotiation offer send failed", "peer", p.conn, "error", err)
		}
	}
}

// attachLocalTracks adds the current local track set to a fresh transport,
// audio first, before the initial offer or answer is generated.
func (s *Session) attachLocalTracks(p *peer) {
	for _, t := range s.capture.Tracks() {
		if _, err := p.transport.AddTrack(t.RTC()); err != nil {
			s.logger.Warnw("local track attach failed", "peer", p.conn, "kind", t.Kind().String(), "error", err)
		}
	}
}

// bindTransport routes a transport's callbacks into the loop, tagged with the
// transport pointer so events from superseded transports are dropped.
func (s *Session) bindTransport(p *peer, t Transport) {
	conn := p.conn
	t.OnICECandidate(func(c internal_type.ICECandidate) {
		s.pushInternal(localCandidateEvent{conn: conn, transport: t, cand: c})
	})
	t.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		s.pushInternal(transportStateEvent{conn: conn, transport: t, state: state})
	})
	t.OnTrack(func(track RemoteTrack) {
		s.pushInternal(remoteTrackEvent{conn: conn, transport: t, track: track})
	})
}

// closePeer tears down one peer: pumps cancelled, voice detection detached,
// transport closed, record dropped. Roster removal is the caller's call: a
// glare rebuild keeps the entry, a departure does not.
func (s *Session) closePeer(conn internal_type.ConnectionID, reason string) {
	p, ok := s.peers[conn]
	if !ok {
		return
	}
	delete(s.peers, conn)
	p.state = peerStateClosed

	for _, cancel := range p.pumps {
		cancel()
	}
	if p.remoteStreamID != "" {
		s.vad.Detach(p.remoteStreamID)
	}
	if p.transport != nil {
		if err := p.transport.Close(); err != nil {
			s.logger.Warnw("transport close failed", "peer", conn, "error", err)
		}
	}
	s.logger.Infow("peer closed", "peer", conn, "reason", reason)
}

// do hands fn to the event loop and waits for it, so every mutation of loop
// state happens on the loop goroutine.
func (s *Session) do(ctx context.Context, fn func() error) error {
	done := make(chan error, 1)
	select {
	case s.events <- commandEvent{run: fn, done: done}:
	case <-ctx.Done():
		return ctx.Err()
	case <-s.ctx.Done():
		return ErrSessionClosed
	}
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-s.ctx.Done():
		return ErrSessionClosed
	}
}

// pushInternal queues one event without ever blocking a transport or capture
// callback. The queue is deep enough that a drop means the loop is wedged;
// dropping is still better than deadlocking a media callback.
func (s *Session) pushInternal(ev internalEvent) {
	select {
	case s.events <- ev:
	case <-s.ctx.Done():
	default:
		s.logger.Warnw("session event dropped, queue full", "event", fmt.Sprintf("%T", ev))
	}
}
