package internal_signaling

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	internal_type "github.com/medorahealth/api/call-api/internal/type"
	"github.com/medorahealth/pkg/commons"
)

const (
	eventChannelSize = 64
	sendChannelSize  = 64
	writeDeadline    = 5 * time.Second
)

// ErrNotConnected is returned by emissions attempted before Connect (or after
// the relay connection dropped).
var ErrNotConnected = errors.New("signaling: not connected")

// Client maintains one logical connection to the signaling relay for the
// lifetime of the call screen. Inbound relay frames are translated into
// internal_type.SignalEvent values and delivered on Events() in arrival
// order; the session's event loop is the single consumer.
type Client struct {
	logger   commons.Logger
	relayURL string

	mu       sync.Mutex
	conn     *websocket.Conn
	connID   internal_type.ConnectionID
	joined   bool
	joinRoom string
	joinPID  internal_type.ParticipantID
	degraded bool
	closed   bool

	send   chan []byte
	done   chan struct{} // closed when the current connection is replaced or the client closes
	events chan internal_type.SignalEvent

	pumpWg sync.WaitGroup
}

// NewClient creates a client for the given relay URL. Connect must be called
// before any other operation.
func NewClient(logger commons.Logger, relayURL string) *Client {
	return &Client{
		logger:   logger,
		relayURL: relayURL,
		send:     make(chan []byte, sendChannelSize),
		events:   make(chan internal_type.SignalEvent, eventChannelSize),
	}
}

// Connect dials the relay and starts the read/write pumps. Calling it again
// after a drop establishes a fresh connection: the relay assigns a new
// connection id (delivered as a ConnectedEvent) and the join state is reset,
// so the caller re-joins and rediscovers the room from a fresh snapshot.
func (c *Client) Connect(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.relayURL, nil)
	if err != nil {
		return &internal_type.SignalingError{Op: "connect", Err: err}
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		conn.Close()
		return &internal_type.SignalingError{Op: "connect", Err: errors.New("client closed")}
	}
	if c.conn != nil {
		c.conn.Close()
	}
	if c.done != nil {
		close(c.done)
	}
	done := make(chan struct{})
	c.done = done
	c.conn = conn
	c.joined = false
	c.degraded = false
	c.mu.Unlock()

	c.pumpWg.Add(2)
	go c.readPump(conn)
	go c.writePump(conn, done)
	return nil
}

// Join sends the join intent for the room. It is idempotent: a second call
// with the same room and participant identity is a no-op, so the client never
// registers twice. Joining a different room on a live connection is refused.
func (c *Client) Join(roomID string, participantID internal_type.ParticipantID, displayName string) error {
	c.mu.Lock()
	if c.conn == nil {
		c.mu.Unlock()
		return &internal_type.SignalingError{Op: "join", Err: ErrNotConnected}
	}
	if c.joined {
		same := c.joinRoom == roomID && c.joinPID == participantID
		c.mu.Unlock()
		if same {
			return nil
		}
		return &internal_type.SignalingError{Op: "join", Err: errors.New("already joined a different room")}
	}
	c.joined = true
	c.joinRoom = roomID
	c.joinPID = participantID
	c.mu.Unlock()

	return c.emit(eventJoinRoom, joinRoomPayload{
		RoomID:        roomID,
		ParticipantID: string(participantID),
		DisplayName:   displayName,
	})
}

// SendOffer transmits a session-description offer addressed to one peer.
func (c *Client) SendOffer(target internal_type.ConnectionID, sdp string) error {
	return c.emit(eventOffer, sdpPayload{Target: string(target), SDP: sdp})
}

// SendAnswer transmits the answer for a received offer back to its sender.
func (c *Client) SendAnswer(target internal_type.ConnectionID, sdp string) error {
	return c.emit(eventAnswer, sdpPayload{Target: string(target), SDP: sdp})
}

// SendCandidate transmits one network candidate to a specific peer.
func (c *Client) SendCandidate(target internal_type.ConnectionID, cand internal_type.ICECandidate) error {
	return c.emit(eventCandidate, candidatePayload{
		Target: string(target),
		Candidate: candidateInit{
			Candidate:        cand.Candidate,
			SDPMid:           cand.SDPMid,
			SDPMLineIndex:    cand.SDPMLineIndex,
			UsernameFragment: cand.UsernameFragment,
		},
	})
}

// BroadcastAudioStatus announces the local mute state to the room.
func (c *Client) BroadcastAudioStatus(isMuted bool) error {
	return c.emit(eventAudioStatus, audioStatusPayload{IsMuted: isMuted})
}

// BroadcastVideoStatus announces the local camera state to the room.
func (c *Client) BroadcastVideoStatus(isVideoOff bool) error {
	return c.emit(eventVideoStatus, videoStatusPayload{IsVideoOff: isVideoOff})
}

// Events returns the inbound event stream. Events are delivered in arrival
// order; the channel is never closed before Close.
func (c *Client) Events() <-chan internal_type.SignalEvent {
	return c.events
}

// ConnectionID returns the relay-assigned id for this session, or "" before
// the connected hello arrives.
func (c *Client) ConnectionID() internal_type.ConnectionID {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connID
}

// Degraded reports whether the relay connection has dropped and not been
// re-established. Existing peer transports stay up while degraded.
func (c *Client) Degraded() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.degraded
}

// Close tears down the relay connection. Idempotent.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	conn := c.conn
	c.conn = nil
	if c.done != nil {
		close(c.done)
		c.done = nil
	}
	c.mu.Unlock()

	if conn != nil {
		conn.Close()
	}
	c.pumpWg.Wait()
	return nil
}

func (c *Client) emit(event string, payload any) error {
	c.mu.Lock()
	connected := c.conn != nil && !c.degraded
	c.mu.Unlock()
	if !connected {
		return &internal_type.SignalingError{Op: event, Err: ErrNotConnected}
	}

	frame, err := marshalEnvelope(event, payload)
	if err != nil {
		return &internal_type.SignalingError{Op: event, Err: err}
	}
	select {
	case c.send <- frame:
		return nil
	default:
		return &internal_type.SignalingError{Op: event, Err: errors.New("send queue full")}
	}
}

func (c *Client) writePump(conn *websocket.Conn, done <-chan struct{}) {
	defer c.pumpWg.Done()
	for {
		select {
		case <-done:
			return
		case frame := <-c.send:
			if err := conn.SetWriteDeadline(time.Now().Add(writeDeadline)); err != nil {
				c.logger.Warnw("signaling write deadline failed", "error", err)
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				c.logger.Warnw("signaling write failed", "error", err)
				return
			}
		}
	}
}

func (c *Client) readPump(conn *websocket.Conn) {
	defer c.pumpWg.Done()
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			c.mu.Lock()
			closed := c.closed
			if c.conn == conn {
				c.degraded = true
			}
			stale := c.conn != conn && !closed
			c.mu.Unlock()
			if !closed && !stale {
				c.pushEvent(internal_type.DisconnectedEvent{Err: err})
			}
			return
		}
		c.dispatch(data)
	}
}

// dispatch decodes one relay frame and forwards it as a typed event. Unknown
// or malformed frames are logged and skipped; they never stall the stream.
func (c *Client) dispatch(data []byte) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		c.logger.Warnw("signaling bad frame", "error", err)
		return
	}

	switch env.Event {
	case eventConnected:
		var p connectedPayload
		if err := json.Unmarshal(env.Data, &p); err != nil {
			c.logger.Warnw("signaling bad connected payload", "error", err)
			return
		}
		c.mu.Lock()
		c.connID = internal_type.ConnectionID(p.SocketID)
		c.mu.Unlock()
		c.pushEvent(internal_type.ConnectedEvent{Self: internal_type.ConnectionID(p.SocketID)})

	case eventRoomUsers:
		var p roomUsersPayload
		if err := json.Unmarshal(env.Data, &p); err != nil {
			c.logger.Warnw("signaling bad room-users payload", "error", err)
			return
		}
		members := make([]internal_type.MemberInfo, 0, len(p.Users))
		for _, u := range p.Users {
			members = append(members, memberInfo(u))
		}
		c.pushEvent(internal_type.RosterSnapshotEvent{Members: members})

	case eventUserJoined:
		var p memberPayload
		if err := json.Unmarshal(env.Data, &p); err != nil {
			c.logger.Warnw("signaling bad user-joined payload", "error", err)
			return
		}
		c.pushEvent(internal_type.MemberJoinedEvent{Member: memberInfo(p)})

	case eventUserLeft:
		var p memberPayload
		if err := json.Unmarshal(env.Data, &p); err != nil {
			c.logger.Warnw("signaling bad user-left payload", "error", err)
			return
		}
		c.pushEvent(internal_type.MemberLeftEvent{Member: memberInfo(p)})

	case eventOffer:
		var p sdpPayload
		if err := json.Unmarshal(env.Data, &p); err != nil {
			c.logger.Warnw("signaling bad offer payload", "error", err)
			return
		}
		c.pushEvent(internal_type.OfferEvent{
			From: internal_type.MemberInfo{
				ConnectionID:  internal_type.ConnectionID(p.Sender),
				ParticipantID: internal_type.ParticipantID(p.SenderID),
				DisplayName:   p.SenderName,
			},
			SDP: p.SDP,
		})

	case eventAnswer:
		var p sdpPayload
		if err := json.Unmarshal(env.Data, &p); err != nil {
			c.logger.Warnw("signaling bad answer payload", "error", err)
			return
		}
		c.pushEvent(internal_type.AnswerEvent{From: internal_type.ConnectionID(p.Sender), SDP: p.SDP})

	case eventCandidate:
		var p candidatePayload
		if err := json.Unmarshal(env.Data, &p); err != nil {
			c.logger.Warnw("signaling bad candidate payload", "error", err)
			return
		}
		c.pushEvent(internal_type.CandidateEvent{
			From: internal_type.ConnectionID(p.Sender),
			Candidate: internal_type.ICECandidate{
				Candidate:        p.Candidate.Candidate,
				SDPMid:           p.Candidate.SDPMid,
				SDPMLineIndex:    p.Candidate.SDPMLineIndex,
				UsernameFragment: p.Candidate.UsernameFragment,
			},
		})

	case eventAudioStatus:
		var p audioStatusPayload
		if err := json.Unmarshal(env.Data, &p); err != nil {
			c.logger.Warnw("signaling bad audio-status payload", "error", err)
			return
		}
		c.pushEvent(internal_type.AudioStatusEvent{
			ParticipantID: internal_type.ParticipantID(p.UserID),
			IsMuted:       p.IsMuted,
		})

	case eventVideoStatus:
		var p videoStatusPayload
		if err := json.Unmarshal(env.Data, &p); err != nil {
			c.logger.Warnw("signaling bad video-status payload", "error", err)
			return
		}
		c.pushEvent(internal_type.VideoStatusEvent{
			ParticipantID: internal_type.ParticipantID(p.UserID),
			IsVideoOff:    p.IsVideoOff,
		})

	default:
		c.logger.Debugw("signaling unknown event", "event", env.Event)
	}
}

// pushEvent delivers one event to the session. The send blocks so that no
// event is ever dropped and arrival order is preserved.
func (c *Client) pushEvent(ev internal_type.SignalEvent) {
	c.events <- ev
}

func memberInfo(p memberPayload) internal_type.MemberInfo {
	return internal_type.MemberInfo{
		ConnectionID:  internal_type.ConnectionID(p.SocketID),
		ParticipantID: internal_type.ParticipantID(p.UserID),
		DisplayName:   p.UserName,
	}
}
