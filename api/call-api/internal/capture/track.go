package internal_capture

import (
	"sync/atomic"

	"github.com/pion/webrtc/v4"
)

// Track is one outbound local track plus the enabled flag the engine toggles
// without releasing the device. A disabled track keeps its senders; it simply
// carries no live media until re-enabled.
type Track struct {
	kind    webrtc.RTPCodecType
	rtc     webrtc.TrackLocal
	source  Source
	enabled atomic.Bool
}

func newTrack(kind webrtc.RTPCodecType, rtc webrtc.TrackLocal, src Source) *Track {
	t := &Track{kind: kind, rtc: rtc, source: src}
	t.enabled.Store(true)
	return t
}

// Kind reports whether this is an audio or video track.
func (t *Track) Kind() webrtc.RTPCodecType { return t.kind }

// RTC exposes the track to attach to peer transports.
func (t *Track) RTC() webrtc.TrackLocal { return t.rtc }

// Enabled reports whether the track currently carries media.
func (t *Track) Enabled() bool { return t.enabled.Load() }

// SetEnabled toggles the track without touching the device.
func (t *Track) SetEnabled(v bool) { t.enabled.Store(v) }
