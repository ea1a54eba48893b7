package internal_capture

import (
	"context"

	"github.com/pion/webrtc/v4"
)

// Source is one local capture device: a microphone, a camera, or a screen
// grabber. Opening a source yields the outbound track it produces; closing it
// releases the device.
type Source interface {
	// Label names the device for logs ("microphone", "camera", "screen").
	Label() string
	// Open acquires the device and returns its outbound track. It returns an
	// error when permission is denied or no device exists.
	Open(ctx context.Context) (webrtc.TrackLocal, error)
	// Close releases the device. Safe to call when never opened.
	Close() error
}

// EndedNotifier is implemented by sources whose capture can terminate on its
// own, such as a screen share stopped through the browser chrome or a camera
// being unplugged.
// The callback fires once, from the source's own goroutine.
type EndedNotifier interface {
	OnEnded(fn func())
}

// PCMTap is implemented by microphone sources that can mirror their decoded
// samples into a secondary sink. The local activity detector subscribes this
// way; remote streams are tapped at the transport instead.
type PCMTap interface {
	// SetPCMSink installs the sink for decoded 16-bit mono samples. A nil sink
	// stops mirroring.
	SetPCMSink(fn func(pcm []int16))
}

// Provider hands out the three device sources a call can use. Injected so
// tests and headless environments can supply synthetic devices.
type Provider interface {
	Microphone() Source
	Camera() Source
	Screen() Source
}

// StaticProvider is the trivial Provider over three fixed sources.
type StaticProvider struct {
	Mic Source
	Cam Source
	Scr Source
}

func (p StaticProvider) Microphone() Source { return p.Mic }
func (p StaticProvider) Camera() Source     { return p.Cam }
func (p StaticProvider) Screen() Source     { return p.Scr }
