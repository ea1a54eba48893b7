package call_session

import (
	"context"

	"gopkg.in/hraban/opus.v2"

	internal_vad "github.com/medorahealth/api/call-api/internal/vad"
)

const (
	opusSampleRate = 48000
	opusChannels   = 1

	// maxPCMPerPacket fits the largest Opus frame (120 ms at 48 kHz mono).
	maxPCMPerPacket = 120 * opusSampleRate / 1000

	// maxConsecutiveDecodeErrors bounds how long a pump keeps chewing on a
	// stream it cannot decode before giving up on it.
	maxConsecutiveDecodeErrors = 50
)

// pumpAudio drains one remote audio track, decoding its Opus payloads into
// PCM for the voice activity detector. It exits when the track ends (the
// transport closed or the sender stopped) or the stream proves undecodable.
// Occasional decode errors are expected over lossy paths and are skipped.
func (s *Session) pumpAudio(ctx context.Context, track RemoteTrack, feed *internal_vad.Feed) {
	defer s.pumpWg.Done()

	dec, err := opus.NewDecoder(opusSampleRate, opusChannels)
	if err != nil {
		s.logger.Errorw("opus decoder init failed", "stream", track.StreamID(), "error", err)
		return
	}

	pcm := make([]int16, maxPCMPerPacket)
	consecutiveErrors := 0
	for {
		if ctx.Err() != nil {
			return
		}
		pkt, err := track.ReadRTP()
		if err != nil {
			s.logger.Debugw("audio pump ended", "stream", track.StreamID(), "error", err)
			return
		}
		if len(pkt.Payload) == 0 {
			continue
		}
		n, err := dec.Decode(pkt.Payload, pcm)
		if err != nil {
			consecutiveErrors++
			if consecutiveErrors > maxConsecutiveDecodeErrors {
				s.logger.Warnw("audio pump giving up, stream undecodable", "stream", track.StreamID())
				return
			}
			continue
		}
		consecutiveErrors = 0
		feed.Push(pcm[:n])
	}
}
