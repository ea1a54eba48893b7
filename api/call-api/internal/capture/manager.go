package internal_capture

import (
	"context"
	"sync"

	"github.com/pion/webrtc/v4"

	internal_type "github.com/medorahealth/api/call-api/internal/type"
	"github.com/medorahealth/pkg/commons"
)

// TrackUpdate tells the session that the outbound track of a kind changed and
// must be propagated to every peer transport: replaced in place when a sender
// of that kind exists, added (with renegotiation) when none does. A nil Track
// means no outbound media of that kind remains; existing senders go silent.
type TrackUpdate struct {
	Kind  webrtc.RTPCodecType
	Track *Track
}

// Manager owns local device access: the microphone acquired at join, the
// camera acquired on demand, and the screen grabber. At most one video source
// is outbound at a time, camera or screen, never both. Every operation that
// changes the outbound track set notifies the registered listener after the
// change is complete, so observers always see either the old or the new track
// set, never a half-updated one.
type Manager struct {
	logger  commons.Logger
	devices Provider

	mu      sync.Mutex
	audio   *Track
	camera  *Track
	screen  *Track
	sharing bool
	// cameraWasLive records whether the camera was enabled when screen
	// sharing started, so natural share termination can restore it.
	cameraWasLive bool

	listener func(TrackUpdate)
}

// NewManager creates a capture manager over the given device provider.
func NewManager(logger commons.Logger, devices Provider) *Manager {
	return &Manager{logger: logger, devices: devices}
}

// SetTrackListener registers the session callback invoked after every change
// to the outbound track set. Must be set before the first acquire.
func (m *Manager) SetTrackListener(fn func(TrackUpdate)) {
	m.mu.Lock()
	m.listener = fn
	m.mu.Unlock()
}

// AcquireAudio requests the microphone only. On failure it returns a
// DeviceError and the session proceeds audio-less; the call is never aborted
// over a missing microphone.
func (m *Manager) AcquireAudio(ctx context.Context) error {
	m.mu.Lock()
	if m.audio != nil {
		m.mu.Unlock()
		return nil
	}
	src := m.devices.Microphone()
	m.mu.Unlock()

	rtc, err := src.Open(ctx)
	if err != nil {
		return &internal_type.DeviceError{Device: src.Label(), Err: err}
	}

	track := newTrack(webrtc.RTPCodecTypeAudio, rtc, src)
	m.mu.Lock()
	m.audio = track
	m.mu.Unlock()

	m.notify(TrackUpdate{Kind: webrtc.RTPCodecTypeAudio, Track: track})
	return nil
}

// SetMuted toggles the microphone track without releasing the device.
func (m *Manager) SetMuted(muted bool) {
	m.mu.Lock()
	audio := m.audio
	m.mu.Unlock()
	if audio != nil {
		audio.SetEnabled(!muted)
	}
}

// AcquireVideo turns the camera on. A camera released earlier is only
// re-enabled; otherwise the device is opened and its track joins the local
// stream alongside the existing audio tracks, preserving continuity for
// already-attached consumers. While a screen share is active the camera track
// is prepared but the share stays outbound until it ends.
func (m *Manager) AcquireVideo(ctx context.Context) error {
	m.mu.Lock()
	if cam := m.camera; cam != nil {
		wasOff := !cam.Enabled()
		cam.SetEnabled(true)
		m.cameraWasLive = true
		sharing := m.sharing
		m.mu.Unlock()
		if wasOff && !sharing {
			m.notify(TrackUpdate{Kind: webrtc.RTPCodecTypeVideo, Track: cam})
		}
		return nil
	}
	src := m.devices.Camera()
	m.mu.Unlock()

	rtc, err := src.Open(ctx)
	if err != nil {
		return &internal_type.DeviceError{Device: src.Label(), Err: err}
	}

	track := newTrack(webrtc.RTPCodecTypeVideo, rtc, src)
	if n, ok := src.(EndedNotifier); ok {
		n.OnEnded(func() { m.handleCameraEnded(track) })
	}

	m.mu.Lock()
	m.camera = track
	m.cameraWasLive = true
	sharing := m.sharing
	m.mu.Unlock()

	if !sharing {
		m.notify(TrackUpdate{Kind: webrtc.RTPCodecTypeVideo, Track: track})
	}
	return nil
}

// ReleaseVideo disables the camera track so it can be cheaply re-enabled.
// The device is only stopped on full session teardown. Senders keep the
// track, so no transport change is needed.
func (m *Manager) ReleaseVideo() {
	m.mu.Lock()
	cam := m.camera
	m.cameraWasLive = false
	m.mu.Unlock()
	if cam != nil {
		cam.SetEnabled(false)
	}
}

// AcquireScreenShare captures display media and makes it the outbound video
// track. When the user ends the share through the browser chrome, the camera
// track is restored automatically if it was live before sharing began.
func (m *Manager) AcquireScreenShare(ctx context.Context) error {
	m.mu.Lock()
	if m.sharing {
		m.mu.Unlock()
		return nil
	}
	src := m.devices.Screen()
	m.mu.Unlock()

	rtc, err := src.Open(ctx)
	if err != nil {
		return &internal_type.DeviceError{Device: src.Label(), Err: err}
	}

	track := newTrack(webrtc.RTPCodecTypeVideo, rtc, src)
	if n, ok := src.(EndedNotifier); ok {
		n.OnEnded(func() { m.handleScreenEnded(track) })
	}

	m.mu.Lock()
	m.screen = track
	m.sharing = true
	m.cameraWasLive = m.camera != nil && m.camera.Enabled()
	m.mu.Unlock()

	m.notify(TrackUpdate{Kind: webrtc.RTPCodecTypeVideo, Track: track})
	return nil
}

// StopScreenShare ends an active share explicitly and restores the camera
// track if one is live.
func (m *Manager) StopScreenShare() {
	m.mu.Lock()
	if !m.sharing {
		m.mu.Unlock()
		return
	}
	screen := m.screen
	m.screen = nil
	m.sharing = false
	restore := m.camera
	if restore != nil && !m.cameraWasLive {
		restore = nil
	}
	m.mu.Unlock()

	if screen != nil {
		if err := screen.source.Close(); err != nil {
			m.logger.Warnw("screen source close failed", "error", err)
		}
	}
	m.notify(TrackUpdate{Kind: webrtc.RTPCodecTypeVideo, Track: restore})
}

// SetAudioPCMSink mirrors decoded microphone samples into fn when the
// microphone source supports tapping. Reports whether a tap was installed.
func (m *Manager) SetAudioPCMSink(fn func(pcm []int16)) bool {
	m.mu.Lock()
	audio := m.audio
	m.mu.Unlock()
	if audio == nil {
		return false
	}
	tap, ok := audio.source.(PCMTap)
	if !ok {
		return false
	}
	tap.SetPCMSink(fn)
	return true
}

// Sharing reports whether a screen share is the outbound video right now.
func (m *Manager) Sharing() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sharing
}

// AudioTrack returns the microphone track, or nil before AcquireAudio
// succeeds.
func (m *Manager) AudioTrack() *Track {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.audio
}

// ActiveVideoTrack returns the outbound video track: the screen share when
// one is running, the camera otherwise. Nil when neither was acquired.
func (m *Manager) ActiveVideoTrack() *Track {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sharing {
		return m.screen
	}
	return m.camera
}

// Tracks snapshots the current local track set, audio first. New peer
// transports attach exactly these.
func (m *Manager) Tracks() []*Track {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Track
	if m.audio != nil {
		out = append(out, m.audio)
	}
	if m.sharing && m.screen != nil {
		out = append(out, m.screen)
	} else if m.camera != nil {
		out = append(out, m.camera)
	}
	return out
}

// Close stops and discards every device. Only called on full session
// teardown.
func (m *Manager) Close() {
	m.mu.Lock()
	tracks := []*Track{m.audio, m.camera, m.screen}
	m.audio, m.camera, m.screen = nil, nil, nil
	m.sharing = false
	m.mu.Unlock()

	for _, t := range tracks {
		if t == nil {
			continue
		}
		if err := t.source.Close(); err != nil {
			m.logger.Warnw("capture source close failed", "device", t.source.Label(), "error", err)
		}
	}
}

// handleScreenEnded runs when the shared track terminates on its own. It
// falls back to the camera without any caller action, matching the browser
// behavior of ending a share from the chrome.
func (m *Manager) handleScreenEnded(ended *Track) {
	m.mu.Lock()
	if !m.sharing || m.screen != ended {
		m.mu.Unlock()
		return
	}
	m.screen = nil
	m.sharing = false
	restore := m.camera
	if restore == nil || !m.cameraWasLive {
		restore = nil
	}
	m.mu.Unlock()

	m.logger.Infow("screen share ended by source")
	if err := ended.source.Close(); err != nil {
		m.logger.Warnw("screen source close failed", "error", err)
	}
	m.notify(TrackUpdate{Kind: webrtc.RTPCodecTypeVideo, Track: restore})
}

// handleCameraEnded marks a self-terminated camera (unplugged device) as
// released.
func (m *Manager) handleCameraEnded(ended *Track) {
	m.mu.Lock()
	if m.camera != ended {
		m.mu.Unlock()
		return
	}
	m.cameraWasLive = false
	m.mu.Unlock()
	ended.SetEnabled(false)
	m.logger.Warnw("camera track ended by source")
}

func (m *Manager) notify(u TrackUpdate) {
	m.mu.Lock()
	fn := m.listener
	m.mu.Unlock()
	if fn != nil {
		fn(u)
	}
}
