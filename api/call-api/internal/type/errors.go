package internal_type

import "fmt"

// The error taxonomy of the call core. Every failure is contained to the
// narrowest affected scope: one device, one signaling operation, one peer.
// Nothing here ever aborts the whole session by itself.

// DeviceError reports a denied or unavailable local capture device. The
// session degrades (e.g. proceeds audio-less) instead of aborting.
type DeviceError struct {
	Device string // "microphone", "camera", "screen"
	Err    error
}

func (e *DeviceError) Error() string {
	return fmt.Sprintf("device %s unavailable: %v", e.Device, e.Err)
}

func (e *DeviceError) Unwrap() error { return e.Err }

// SignalingError reports a relay send failure or an unreachable relay. It is
// surfaced as degraded connectivity and never tears down existing peer
// transports.
type SignalingError struct {
	Op  string
	Err error
}

func (e *SignalingError) Error() string {
	return fmt.Sprintf("signaling %s failed: %v", e.Op, e.Err)
}

func (e *SignalingError) Unwrap() error { return e.Err }

// NegotiationError reports an offer/answer/candidate failure for one peer.
// The peer's transport is left in its current state for an external retry or
// an eventual failure transition; other peers are unaffected.
type NegotiationError struct {
	Peer ConnectionID
	Op   string
	Err  error
}

func (e *NegotiationError) Error() string {
	return fmt.Sprintf("negotiation %s with peer %s failed: %v", e.Op, e.Peer, e.Err)
}

func (e *NegotiationError) Unwrap() error { return e.Err }

// TransportFailure reports an ICE/connection-level failed or disconnected
// condition. It triggers removal of the peer and release of its resources;
// the connection id is never reused.
type TransportFailure struct {
	Peer  ConnectionID
	State string
}

func (e *TransportFailure) Error() string {
	return fmt.Sprintf("transport for peer %s entered %s", e.Peer, e.State)
}
