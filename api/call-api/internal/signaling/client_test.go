package internal_signaling

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	internal_type "github.com/medorahealth/api/call-api/internal/type"
	"github.com/medorahealth/pkg/commons"
)

// fakeRelay is a one-connection websocket endpoint that records every frame
// the client sends and lets tests inject frames toward it.
type fakeRelay struct {
	t        *testing.T
	server   *httptest.Server
	conns    chan *websocket.Conn
	received chan envelope
}

func newFakeRelay(t *testing.T) *fakeRelay {
	t.Helper()
	r := &fakeRelay{
		t:        t,
		conns:    make(chan *websocket.Conn, 2),
		received: make(chan envelope, 32),
	}
	upgrader := websocket.Upgrader{}
	r.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		conn, err := upgrader.Upgrade(w, req, nil)
		if err != nil {
			t.Errorf("upgrade failed: %v", err)
			return
		}
		r.conns <- conn
		for {
			var env envelope
			if err := conn.ReadJSON(&env); err != nil {
				return
			}
			r.received <- env
		}
	}))
	t.Cleanup(r.server.Close)
	return r
}

func (r *fakeRelay) url() string {
	return "ws" + strings.TrimPrefix(r.server.URL, "http")
}

func (r *fakeRelay) conn() *websocket.Conn {
	r.t.Helper()
	select {
	case c := <-r.conns:
		return c
	case <-time.After(2 * time.Second):
		r.t.Fatal("no client connection arrived")
		return nil
	}
}

func (r *fakeRelay) send(conn *websocket.Conn, event string, payload any) {
	r.t.Helper()
	frame, err := marshalEnvelope(event, payload)
	require.NoError(r.t, err, "test frame should marshal")
	require.NoError(r.t, conn.WriteMessage(websocket.TextMessage, frame), "test frame should send")
}

func (r *fakeRelay) next() envelope {
	r.t.Helper()
	select {
	case env := <-r.received:
		return env
	case <-time.After(2 * time.Second):
		r.t.Fatal("no frame received from client")
		return envelope{}
	}
}

func newTestClient(t *testing.T, relayURL string) *Client {
	t.Helper()
	logger, err := commons.NewApplicationLogger()
	require.NoError(t, err, "logger create should not fail")
	c := NewClient(logger, relayURL)
	t.Cleanup(func() { c.Close() })
	return c
}

func nextEvent(t *testing.T, c *Client) internal_type.SignalEvent {
	t.Helper()
	select {
	case ev := <-c.Events():
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("no event delivered")
		return nil
	}
}

func TestConnectDeliversHello(t *testing.T) {
	relay := newFakeRelay(t)
	c := newTestClient(t, relay.url())
	require.NoError(t, c.Connect(context.Background()), "connect should succeed")

	conn := relay.conn()
	relay.send(conn, eventConnected, connectedPayload{SocketID: "sock-1"})

	ev := nextEvent(t, c)
	connected, ok := ev.(internal_type.ConnectedEvent)
	require.True(t, ok, "first event should be the hello, got %T", ev)
	assert.Equal(t, internal_type.ConnectionID("sock-1"), connected.Self)
	assert.Equal(t, internal_type.ConnectionID("sock-1"), c.ConnectionID())
	assert.False(t, c.Degraded())
}

func TestConnectFailsAgainstDeadRelay(t *testing.T) {
	c := newTestClient(t, "ws://127.0.0.1:1/signal")
	err := c.Connect(context.Background())
	require.Error(t, err, "dial against a dead relay must fail")
	var sigErr *internal_type.SignalingError
	assert.ErrorAs(t, err, &sigErr, "failure should be a SignalingError")
}

func TestJoinIsIdempotent(t *testing.T) {
	relay := newFakeRelay(t)
	c := newTestClient(t, relay.url())
	require.NoError(t, c.Connect(context.Background()))
	conn := relay.conn()
	relay.send(conn, eventConnected, connectedPayload{SocketID: "sock-1"})
	nextEvent(t, c)

	require.NoError(t, c.Join("room-1", "user-1", "Alice"), "first join should send")
	require.NoError(t, c.Join("room-1", "user-1", "Alice"), "repeat join is a no-op")

	env := relay.next()
	assert.Equal(t, eventJoinRoom, env.Event)
	var p joinRoomPayload
	require.NoError(t, json.Unmarshal(env.Data, &p))
	assert.Equal(t, "room-1", p.RoomID)
	assert.Equal(t, "user-1", p.ParticipantID)
	assert.Equal(t, "Alice", p.DisplayName)

	// Exactly one join frame must have gone out.
	require.NoError(t, c.SendOffer("peer-1", "sdp"))
	env = relay.next()
	assert.Equal(t, eventOffer, env.Event, "second frame should be the offer, not a join")

	err := c.Join("room-2", "user-1", "Alice")
	require.Error(t, err, "joining a different room on a live connection is refused")
}

func TestOutboundFramesAreAddressed(t *testing.T) {
	relay := newFakeRelay(t)
	c := newTestClient(t, relay.url())
	require.NoError(t, c.Connect(context.Background()))
	conn := relay.conn()
	relay.send(conn, eventConnected, connectedPayload{SocketID: "sock-1"})
	nextEvent(t, c)

	require.NoError(t, c.SendOffer("peer-1", "offer-sdp"))
	env := relay.next()
	require.Equal(t, eventOffer, env.Event)
	var sdp sdpPayload
	require.NoError(t, json.Unmarshal(env.Data, &sdp))
	assert.Equal(t, "peer-1", sdp.Target)
	assert.Equal(t, "offer-sdp", sdp.SDP)

	require.NoError(t, c.SendAnswer("peer-2", "answer-sdp"))
	env = relay.next()
	require.Equal(t, eventAnswer, env.Event)
	require.NoError(t, json.Unmarshal(env.Data, &sdp))
	assert.Equal(t, "peer-2", sdp.Target)

	require.NoError(t, c.SendCandidate("peer-1", internal_type.ICECandidate{
		Candidate:     "candidate:1",
		SDPMid:        "0",
		SDPMLineIndex: 0,
	}))
	env = relay.next()
	require.Equal(t, eventCandidate, env.Event)
	var cand candidatePayload
	require.NoError(t, json.Unmarshal(env.Data, &cand))
	assert.Equal(t, "peer-1", cand.Target)
	assert.Equal(t, "candidate:1", cand.Candidate.Candidate)

	require.NoError(t, c.BroadcastAudioStatus(true))
	env = relay.next()
	require.Equal(t, eventAudioStatus, env.Event)
	var audio audioStatusPayload
	require.NoError(t, json.Unmarshal(env.Data, &audio))
	assert.True(t, audio.IsMuted)

	require.NoError(t, c.BroadcastVideoStatus(false))
	env = relay.next()
	require.Equal(t, eventVideoStatus, env.Event)
	var video videoStatusPayload
	require.NoError(t, json.Unmarshal(env.Data, &video))
	assert.False(t, video.IsVideoOff)
}

func TestInboundFramesDeliveredTypedAndOrdered(t *testing.T) {
	relay := newFakeRelay(t)
	c := newTestClient(t, relay.url())
	require.NoError(t, c.Connect(context.Background()))
	conn := relay.conn()

	relay.send(conn, eventConnected, connectedPayload{SocketID: "sock-1"})
	relay.send(conn, eventRoomUsers, roomUsersPayload{Users: []memberPayload{
		{SocketID: "sock-a", UserID: "user-a", UserName: "Alice"},
	}})
	relay.send(conn, eventUserJoined, memberPayload{SocketID: "sock-b", UserID: "user-b", UserName: "Bob"})
	relay.send(conn, eventOffer, sdpPayload{Sender: "sock-a", SenderID: "user-a", SenderName: "Alice", SDP: "their-offer"})
	relay.send(conn, eventAnswer, sdpPayload{Sender: "sock-b", SDP: "their-answer"})
	relay.send(conn, eventCandidate, candidatePayload{
		Sender:    "sock-a",
		Candidate: candidateInit{Candidate: "candidate:9", SDPMid: "0"},
	})
	relay.send(conn, eventAudioStatus, audioStatusPayload{UserID: "user-a", IsMuted: true})
	relay.send(conn, eventVideoStatus, videoStatusPayload{UserID: "user-b", IsVideoOff: true})
	relay.send(conn, eventUserLeft, memberPayload{SocketID: "sock-a", UserID: "user-a", UserName: "Alice"})

	_, ok := nextEvent(t, c).(internal_type.ConnectedEvent)
	require.True(t, ok, "hello first")

	snapshot, ok := nextEvent(t, c).(internal_type.RosterSnapshotEvent)
	require.True(t, ok, "snapshot second")
	require.Len(t, snapshot.Members, 1)
	assert.Equal(t, internal_type.ConnectionID("sock-a"), snapshot.Members[0].ConnectionID)
	assert.Equal(t, internal_type.ParticipantID("user-a"), snapshot.Members[0].ParticipantID)
	assert.Equal(t, "Alice", snapshot.Members[0].DisplayName)

	joined, ok := nextEvent(t, c).(internal_type.MemberJoinedEvent)
	require.True(t, ok, "join third")
	assert.Equal(t, "Bob", joined.Member.DisplayName)

	offer, ok := nextEvent(t, c).(internal_type.OfferEvent)
	require.True(t, ok, "offer fourth")
	assert.Equal(t, internal_type.ConnectionID("sock-a"), offer.From.ConnectionID)
	assert.Equal(t, "their-offer", offer.SDP)

	answer, ok := nextEvent(t, c).(internal_type.AnswerEvent)
	require.True(t, ok, "answer fifth")
	assert.Equal(t, internal_type.ConnectionID("sock-b"), answer.From)

	cand, ok := nextEvent(t, c).(internal_type.CandidateEvent)
	require.True(t, ok, "candidate sixth")
	assert.Equal(t, "candidate:9", cand.Candidate.Candidate)

	audio, ok := nextEvent(t, c).(internal_type.AudioStatusEvent)
	require.True(t, ok, "audio status seventh")
	assert.Equal(t, internal_type.ParticipantID("user-a"), audio.ParticipantID)
	assert.True(t, audio.IsMuted)

	video, ok := nextEvent(t, c).(internal_type.VideoStatusEvent)
	require.True(t, ok, "video status eighth")
	assert.True(t, video.IsVideoOff)

	left, ok := nextEvent(t, c).(internal_type.MemberLeftEvent)
	require.True(t, ok, "leave last")
	assert.Equal(t, internal_type.ConnectionID("sock-a"), left.Member.ConnectionID)
}

func TestMalformedFramesAreSkipped(t *testing.T) {
	relay := newFakeRelay(t)
	c := newTestClient(t, relay.url())
	require.NoError(t, c.Connect(context.Background()))
	conn := relay.conn()

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("not json")))
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"event":"offer","data":"bad"}`)))
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"event":"something-new","data":{}}`)))
	relay.send(conn, eventConnected, connectedPayload{SocketID: "sock-1"})

	ev := nextEvent(t, c)
	_, ok := ev.(internal_type.ConnectedEvent)
	assert.True(t, ok, "bad frames must not stall the stream, got %T", ev)
}

func TestRelayDropDegradesClient(t *testing.T) {
	relay := newFakeRelay(t)
	c := newTestClient(t, relay.url())
	require.NoError(t, c.Connect(context.Background()))
	conn := relay.conn()
	relay.send(conn, eventConnected, connectedPayload{SocketID: "sock-1"})
	nextEvent(t, c)

	conn.Close()

	ev := nextEvent(t, c)
	dropped, ok := ev.(internal_type.DisconnectedEvent)
	require.True(t, ok, "drop should surface as DisconnectedEvent, got %T", ev)
	assert.Error(t, dropped.Err)

	require.Eventually(t, func() bool { return c.Degraded() },
		2*time.Second, 10*time.Millisecond, "client should read as degraded")

	err := c.SendOffer("peer-1", "sdp")
	assert.Error(t, err, "emissions while degraded are refused")
}

func TestReconnectResetsJoinState(t *testing.T) {
	relay := newFakeRelay(t)
	c := newTestClient(t, relay.url())
	require.NoError(t, c.Connect(context.Background()))
	first := relay.conn()
	relay.send(first, eventConnected, connectedPayload{SocketID: "sock-1"})
	nextEvent(t, c)
	require.NoError(t, c.Join("room-1", "user-1", "Alice"))
	relay.next() // join frame

	first.Close()
	nextEvent(t, c) // DisconnectedEvent

	require.NoError(t, c.Connect(context.Background()), "reconnect should succeed")
	second := relay.conn()
	relay.send(second, eventConnected, connectedPayload{SocketID: "sock-2"})

	hello, ok := nextEvent(t, c).(internal_type.ConnectedEvent)
	require.True(t, ok, "fresh hello after reconnect")
	assert.Equal(t, internal_type.ConnectionID("sock-2"), hello.Self)
	assert.False(t, c.Degraded(), "reconnect clears the degraded flag")

	require.NoError(t, c.Join("room-1", "user-1", "Alice"), "re-join sends again on the new connection")
	env := relay.next()
	assert.Equal(t, eventJoinRoom, env.Event)
}

func TestCloseIsIdempotent(t *testing.T) {
	relay := newFakeRelay(t)
	c := newTestClient(t, relay.url())
	require.NoError(t, c.Connect(context.Background()))
	relay.conn()

	require.NoError(t, c.Close())
	require.NoError(t, c.Close())

	err := c.SendOffer("peer-1", "sdp")
	assert.Error(t, err, "emissions after close are refused")
}
