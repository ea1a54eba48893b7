package internal_type

// SignalEvent is an inbound event from the signaling relay. All events for
// the room flow through one channel in arrival order; the session's event
// loop is the single consumer.
type SignalEvent interface {
	signalEvent()
}

// ConnectedEvent fires once the relay has accepted the connection and
// assigned a ConnectionID to this session. After a reconnect it fires again
// with a fresh id; all previously known peers are stale at that point.
type ConnectedEvent struct {
	Self ConnectionID
}

// DisconnectedEvent reports that the relay connection dropped. The session
// surfaces this as a degraded state; reconnection policy lives outside the
// core.
type DisconnectedEvent struct {
	Err error
}

// RosterSnapshotEvent lists the members already in the room at join time.
// The local client initiates an offer toward each of them.
type RosterSnapshotEvent struct {
	Members []MemberInfo
}

// MemberJoinedEvent announces a newly joined member; the local client is the
// initiator toward it.
type MemberJoinedEvent struct {
	Member MemberInfo
}

// MemberLeftEvent announces a departure; the peer transport for that
// connection is torn down.
type MemberLeftEvent struct {
	Member MemberInfo
}

// OfferEvent carries a session-description offer addressed to us.
type OfferEvent struct {
	From MemberInfo
	SDP  string
}

// AnswerEvent carries the answer matching an offer we sent.
type AnswerEvent struct {
	From ConnectionID
	SDP  string
}

// CandidateEvent carries one network candidate from a specific peer.
// Candidates may arrive before the matching answer; the session buffers
// them until the remote description is set.
type CandidateEvent struct {
	From      ConnectionID
	Candidate ICECandidate
}

// AudioStatusEvent is an explicit mute/unmute broadcast. It is keyed by the
// stable participant id, not the connection id.
type AudioStatusEvent struct {
	ParticipantID ParticipantID
	IsMuted       bool
}

// VideoStatusEvent is an explicit camera on/off broadcast, keyed like
// AudioStatusEvent.
type VideoStatusEvent struct {
	ParticipantID ParticipantID
	IsVideoOff    bool
}

func (ConnectedEvent) signalEvent()      {}
func (DisconnectedEvent) signalEvent()   {}
func (RosterSnapshotEvent) signalEvent() {}
func (MemberJoinedEvent) signalEvent()   {}
func (MemberLeftEvent) signalEvent()     {}
func (OfferEvent) signalEvent()          {}
func (AnswerEvent) signalEvent()         {}
func (CandidateEvent) signalEvent()      {}
func (AudioStatusEvent) signalEvent()    {}
func (VideoStatusEvent) signalEvent()    {}
