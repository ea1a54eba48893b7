package internal_vad

import (
	"context"
	"math"
	"math/cmplx"
	"sync"
	"time"

	"gonum.org/v1/gonum/dsp/fourier"

	"github.com/medorahealth/pkg/commons"
	"github.com/medorahealth/pkg/utils"
)

// Analysis parameters. The window and thresholds match the call screen's
// tuning: a 2048-sample analysis window, 0.3 spectral smoothing, and the
// deliberately low dual thresholds: volume OR spectral average is enough to
// classify speech, which keeps quiet and bass-heavy voices from reading as
// silence.
const (
	windowSize        = 2048
	smoothingConstant = 0.3
	volumeThreshold   = 1.5 // RMS scaled to 0–100
	spectrumThreshold = 15  // byte-scaled spectral average, 0–255

	// Spectral magnitudes are mapped onto the 0–255 byte scale between these
	// dBFS bounds before averaging.
	minDecibels = -100.0
	maxDecibels = -30.0

	// DefaultInterval approximates an animation-frame cadence.
	DefaultInterval = 16 * time.Millisecond
	// DefaultWarmup delays classification after attach so the analysis
	// window can fill before the first verdict.
	DefaultWarmup = 500 * time.Millisecond
)

// Detector classifies, per attached stream, whether its speaker is currently
// vocalizing. Measurement runs every interval for every stream; the verdict
// is pushed to the transition callback only when it changes. A muted stream
// is always reported as not speaking, regardless of measured energy.
type Detector struct {
	logger   commons.Logger
	interval time.Duration
	warmup   time.Duration

	mu       sync.Mutex
	feeds    map[string]*Feed
	muted    func(streamID string) bool
	onChange func(streamID string, speaking bool)

	fft *fourier.FFT
}

// Option configures a Detector.
type Option func(*Detector)

// WithInterval overrides the measurement cadence.
func WithInterval(d time.Duration) Option {
	return func(det *Detector) { det.interval = d }
}

// WithWarmup overrides the per-stream warm-up delay.
func WithWarmup(d time.Duration) Option {
	return func(det *Detector) { det.warmup = d }
}

// NewDetector creates a detector. Run must be called to start the loop.
func NewDetector(logger commons.Logger, opts ...Option) *Detector {
	d := &Detector{
		logger:   logger,
		interval: DefaultInterval,
		warmup:   DefaultWarmup,
		feeds:    make(map[string]*Feed),
		fft:      fourier.NewFFT(windowSize),
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

// SetMuteLookup installs the per-stream mute oracle, consulted every cycle.
func (d *Detector) SetMuteLookup(fn func(streamID string) bool) {
	d.mu.Lock()
	d.muted = fn
	d.mu.Unlock()
}

// OnTransition installs the callback fired when a stream's speaking verdict
// flips. It runs on the detector loop goroutine.
func (d *Detector) OnTransition(fn func(streamID string, speaking bool)) {
	d.mu.Lock()
	d.onChange = fn
	d.mu.Unlock()
}

// Attach begins analysis for a stream and returns the feed its audio pump
// pushes PCM into. Attaching an already-attached stream replaces the prior
// analysis context cleanly; stale pumps pushing into the old feed are
// harmless and leak nothing.
func (d *Detector) Attach(streamID string) *Feed {
	f := &Feed{attachedAt: time.Now()}
	d.mu.Lock()
	d.feeds[streamID] = f
	d.mu.Unlock()
	d.logger.Debugw("vad attached", "stream", streamID)
	return f
}

// Detach stops analysis for a stream and releases its context. If the stream
// was reported as speaking, a final false transition is emitted.
func (d *Detector) Detach(streamID string) {
	d.mu.Lock()
	f, ok := d.feeds[streamID]
	delete(d.feeds, streamID)
	onChange := d.onChange
	d.mu.Unlock()
	if ok && f.wasSpeaking() && onChange != nil {
		onChange(streamID, false)
	}
}

// Run drives the measurement loop until ctx is cancelled. It is the only
// goroutine that touches the FFT scratch state.
func (d *Detector) Run(ctx context.Context) {
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	window := make([]float64, windowSize)
	coeffs := make([]complex128, windowSize/2+1)

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			d.tick(now, window, coeffs)
		}
	}
}

func (d *Detector) tick(now time.Time, window []float64, coeffs []complex128) {
	d.mu.Lock()
	muted := d.muted
	onChange := d.onChange
	streams := make(map[string]*Feed, len(d.feeds))
	for id, f := range d.feeds {
		streams[id] = f
	}
	d.mu.Unlock()

	for id, f := range streams {
		if now.Sub(f.attachedAt) < d.warmup {
			continue
		}

		speaking := false
		if muted == nil || !muted(id) {
			if f.snapshot(window) {
				volume, freqAvg := d.measure(f, window, coeffs)
				speaking = volume > volumeThreshold || freqAvg > spectrumThreshold
			}
		}

		if f.setSpeaking(speaking) && onChange != nil {
			onChange(id, speaking)
		}
	}
}

// measure computes the two activity metrics over the current window: the RMS
// volume of the time-domain waveform (scaled 0–100) and the byte-scaled
// average magnitude of the frequency spectrum.
func (d *Detector) measure(f *Feed, window []float64, coeffs []complex128) (volume, freqAvg float64) {
	var sum float64
	for _, s := range window {
		sum += s * s
	}
	volume = math.Sqrt(sum/float64(len(window))) * 100

	d.fft.Coefficients(coeffs, window)
	bytes := make([]float64, 0, len(coeffs))
	f.spectrumMu.Lock()
	if f.spectrum == nil {
		f.spectrum = make([]float64, len(coeffs))
	}
	for k, c := range coeffs {
		mag := cmplx.Abs(c) * 2 / float64(windowSize)
		// Exponential smoothing across cycles, then dBFS → byte scale.
		f.spectrum[k] = smoothingConstant*f.spectrum[k] + (1-smoothingConstant)*mag
		db := -180.0
		if f.spectrum[k] > 0 {
			db = 20 * math.Log10(f.spectrum[k])
		}
		scaled := 255 * (db - minDecibels) / (maxDecibels - minDecibels)
		bytes = append(bytes, utils.Clamp(scaled, 0, 255))
	}
	f.spectrumMu.Unlock()

	return volume, utils.AverageFloat64(bytes)
}

// Feed is the per-stream sample sink. Audio pumps push decoded PCM; the
// detector loop reads the most recent window.
type Feed struct {
	mu     sync.Mutex
	ring   [windowSize]float64
	pos    int
	filled int

	attachedAt time.Time

	speakingMu sync.Mutex
	speaking   bool

	spectrumMu sync.Mutex
	spectrum   []float64
}

// Push appends PCM samples (16-bit signed) to the analysis window. Safe to
// call from any goroutine.
func (f *Feed) Push(pcm []int16) {
	f.mu.Lock()
	for _, s := range pcm {
		f.ring[f.pos] = float64(s) / 32768.0
		f.pos = (f.pos + 1) % windowSize
	}
	f.filled += len(pcm)
	if f.filled > windowSize {
		f.filled = windowSize
	}
	f.mu.Unlock()
}

// snapshot copies the latest window, oldest sample first. Returns false until
// the window has filled at least once.
func (f *Feed) snapshot(dst []float64) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.filled < windowSize {
		return false
	}
	for i := 0; i < windowSize; i++ {
		dst[i] = f.ring[(f.pos+i)%windowSize]
	}
	return true
}

// setSpeaking records the verdict and reports whether it changed.
func (f *Feed) setSpeaking(v bool) bool {
	f.speakingMu.Lock()
	defer f.speakingMu.Unlock()
	if f.speaking == v {
		return false
	}
	f.speaking = v
	return true
}

func (f *Feed) wasSpeaking() bool {
	f.speakingMu.Lock()
	defer f.speakingMu.Unlock()
	return f.speaking
}
