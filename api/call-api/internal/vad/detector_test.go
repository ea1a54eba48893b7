package internal_vad

import (
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medorahealth/pkg/commons"
)

func newTestDetector(t *testing.T, opts ...Option) *Detector {
	t.Helper()
	logger, err := commons.NewApplicationLogger()
	require.NoError(t, err, "logger create should not fail")
	return NewDetector(logger, append([]Option{WithWarmup(0)}, opts...)...)
}

// transitions collects OnTransition callbacks for assertions.
type transitions struct {
	events []struct {
		stream   string
		speaking bool
	}
}

func (tr *transitions) record(stream string, speaking bool) {
	tr.events = append(tr.events, struct {
		stream   string
		speaking bool
	}{stream, speaking})
}

func tickOnce(d *Detector, at time.Time) {
	window := make([]float64, windowSize)
	coeffs := make([]complex128, windowSize/2+1)
	d.tick(at, window, coeffs)
}

// sine fills count samples of a tone at the given amplitude (0..32767).
func sine(amplitude float64, count int) []int16 {
	out := make([]int16, count)
	for i := range out {
		out[i] = int16(amplitude * math.Sin(2*math.Pi*440*float64(i)/48000))
	}
	return out
}

func silence(count int) []int16 { return make([]int16, count) }

func TestSilenceIsNotSpeech(t *testing.T) {
	d := newTestDetector(t)
	tr := &transitions{}
	d.OnTransition(tr.record)

	feed := d.Attach("stream-1")
	feed.Push(silence(windowSize))
	tickOnce(d, time.Now())

	assert.Empty(t, tr.events, "silence must not produce a transition")
	assert.False(t, feed.wasSpeaking())
}

func TestLoudToneIsSpeech(t *testing.T) {
	d := newTestDetector(t)
	tr := &transitions{}
	d.OnTransition(tr.record)

	feed := d.Attach("stream-1")
	feed.Push(sine(16000, windowSize))
	tickOnce(d, time.Now())

	require.Len(t, tr.events, 1, "loud audio should flip the verdict once")
	assert.Equal(t, "stream-1", tr.events[0].stream)
	assert.True(t, tr.events[0].speaking)

	// Sustained speech produces no further transitions.
	feed.Push(sine(16000, windowSize))
	tickOnce(d, time.Now())
	assert.Len(t, tr.events, 1, "verdict changes fire once, not per cycle")

	// Returning to silence flips it back.
	feed.Push(silence(windowSize))
	tickOnce(d, time.Now())
	tickOnce(d, time.Now()) // let the smoothed spectrum decay as well
	require.Len(t, tr.events, 2, "silence after speech should flip back")
	assert.False(t, tr.events[1].speaking)
}

func TestQuietNoiseTripsSpectralThreshold(t *testing.T) {
	// Quiet broadband audio sits below the volume threshold (RMS*100 < 1.5)
	// but spreads energy across every bin of the dB-scaled spectrum, so its
	// byte-scale average clears the spectral threshold. The OR of the two
	// metrics is what keeps quiet, breathy voices classified as speech.
	d := newTestDetector(t)

	rng := rand.New(rand.NewSource(1))
	noise := make([]int16, windowSize)
	for i := range noise {
		noise[i] = int16(rng.Intn(1401) - 700)
	}

	feed := d.Attach("stream-1")
	feed.Push(noise)
	window := make([]float64, windowSize)
	coeffs := make([]complex128, windowSize/2+1)
	require.True(t, feed.snapshot(window), "window should be filled")
	volume, freqAvg := d.measure(feed, window, coeffs)

	assert.Less(t, volume, volumeThreshold, "noise floor is too quiet for the volume metric")
	assert.Greater(t, freqAvg, float64(spectrumThreshold), "spectral metric should still see it")
}

func TestPartialWindowGivesNoVerdict(t *testing.T) {
	d := newTestDetector(t)
	tr := &transitions{}
	d.OnTransition(tr.record)

	feed := d.Attach("stream-1")
	feed.Push(sine(16000, windowSize/2))
	tickOnce(d, time.Now())

	assert.Empty(t, tr.events, "no verdict until the analysis window fills")
}

func TestWarmupDelaysClassification(t *testing.T) {
	d := newTestDetector(t, WithWarmup(500*time.Millisecond))
	tr := &transitions{}
	d.OnTransition(tr.record)

	feed := d.Attach("stream-1")
	feed.Push(sine(16000, windowSize))

	tickOnce(d, time.Now().Add(100*time.Millisecond))
	assert.Empty(t, tr.events, "no verdict inside the warmup window")

	tickOnce(d, time.Now().Add(time.Second))
	require.Len(t, tr.events, 1, "verdict should land once warmed up")
	assert.True(t, tr.events[0].speaking)
}

func TestMutedStreamNeverSpeaks(t *testing.T) {
	d := newTestDetector(t)
	tr := &transitions{}
	d.OnTransition(tr.record)
	d.SetMuteLookup(func(streamID string) bool { return streamID == "stream-muted" })

	muted := d.Attach("stream-muted")
	open := d.Attach("stream-open")
	muted.Push(sine(16000, windowSize))
	open.Push(sine(16000, windowSize))
	tickOnce(d, time.Now())

	require.Len(t, tr.events, 1, "only the unmuted stream should transition")
	assert.Equal(t, "stream-open", tr.events[0].stream)
}

func TestMutingASpeakingStreamEmitsFalse(t *testing.T) {
	d := newTestDetector(t)
	tr := &transitions{}
	d.OnTransition(tr.record)

	mutedStreams := map[string]bool{}
	d.SetMuteLookup(func(streamID string) bool { return mutedStreams[streamID] })

	feed := d.Attach("stream-1")
	feed.Push(sine(16000, windowSize))
	tickOnce(d, time.Now())
	require.Len(t, tr.events, 1)
	require.True(t, tr.events[0].speaking)

	mutedStreams["stream-1"] = true
	tickOnce(d, time.Now())
	require.Len(t, tr.events, 2, "muting mid-speech should flip the verdict off")
	assert.False(t, tr.events[1].speaking)
}

func TestDetachEmitsFinalFalse(t *testing.T) {
	d := newTestDetector(t)
	tr := &transitions{}
	d.OnTransition(tr.record)

	feed := d.Attach("stream-1")
	feed.Push(sine(16000, windowSize))
	tickOnce(d, time.Now())
	require.Len(t, tr.events, 1)

	d.Detach("stream-1")
	require.Len(t, tr.events, 2, "detaching a speaking stream reports it quiet")
	assert.False(t, tr.events[1].speaking)

	// Detaching an unknown or already-detached stream is a no-op.
	d.Detach("stream-1")
	d.Detach("stream-never")
	assert.Len(t, tr.events, 2)
}

func TestReattachReplacesFeed(t *testing.T) {
	d := newTestDetector(t)
	first := d.Attach("stream-1")
	first.Push(sine(16000, windowSize))

	second := d.Attach("stream-1")
	tr := &transitions{}
	d.OnTransition(tr.record)
	tickOnce(d, time.Now())
	assert.Empty(t, tr.events, "the fresh feed starts empty, no verdict yet")

	// A stale pump still pushing into the old feed changes nothing.
	first.Push(sine(16000, windowSize))
	tickOnce(d, time.Now())
	assert.Empty(t, tr.events)

	second.Push(sine(16000, windowSize))
	tickOnce(d, time.Now())
	require.Len(t, tr.events, 1, "only the current feed drives the verdict")
}

func TestFeedPushNormalizesAndWraps(t *testing.T) {
	f := &Feed{}
	f.Push([]int16{32767, -32768})
	// Fill the rest of the window so a snapshot is possible.
	f.Push(silence(windowSize - 2))

	window := make([]float64, windowSize)
	require.True(t, f.snapshot(window), "window should report filled")
	assert.InDelta(t, 32767.0/32768.0, window[0], 1e-9, "samples normalize to [-1, 1)")
	assert.InDelta(t, -1.0, window[1], 1e-9)

	// Pushing beyond the window keeps only the most recent samples.
	f.Push(sine(16000, windowSize))
	require.True(t, f.snapshot(window))
	assert.InDelta(t, 0, window[0], 1e-9, "oldest retained sample is the start of the last push")
}
