// Package media provides a synthetic core.MediaSource: one opus audio track
// carrying silence and one VP8 video track carrying a static pattern. Real
// device capture is a platform concern outside this module; the synthetic
// source keeps the pipeline end-to-end testable.
package media

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"
	"github.com/rs/zerolog/log"

	"github.com/nkrett/callwire/internal/core"
)

const (
	audioFrameInterval = 20 * time.Millisecond
	videoFrameInterval = 33 * time.Millisecond
	trackStreamID      = "callwire"
)

// opusSilence is a canonical opus frame that decodes to silence.
var opusSilence = []byte{0xF8, 0xFF, 0xFE}

// SyntheticSource implements core.MediaSource with generated tracks.
type SyntheticSource struct{}

func NewSyntheticSource() *SyntheticSource { return &SyntheticSource{} }

// Acquire builds the audio+video track pair and starts their writer loops.
// Release on the returned media stops the writers.
func (s *SyntheticSource) Acquire(ctx context.Context) (*core.LocalMedia, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	audio, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus},
		"audio", trackStreamID,
	)
	if err != nil {
		return nil, err
	}
	video, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8},
		"video", trackStreamID,
	)
	if err != nil {
		return nil, err
	}

	at := newSampleTrack(audio, webrtc.RTPCodecTypeAudio)
	vt := newSampleTrack(video, webrtc.RTPCodecTypeVideo)

	writerCtx, stop := context.WithCancel(context.Background())
	go writeLoop(writerCtx, at, audioFrameInterval, opusSilence)
	go writeLoop(writerCtx, vt, videoFrameInterval, patternFrame())

	log.Debug().Str("module", "media").Msg("synthetic capture acquired")
	return core.NewLocalMedia([]core.LocalTrack{at, vt}, stop), nil
}

// patternFrame is a placeholder video payload. Receivers treat it as an
// opaque frame; it only has to keep the RTP pipeline flowing.
func patternFrame() []byte {
	return make([]byte, 64)
}

func writeLoop(ctx context.Context, t *sampleTrack, every time.Duration, frame []byte) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !t.Enabled() {
				continue
			}
			err := t.track.WriteSample(media.Sample{Data: frame, Duration: every})
			if err != nil {
				log.Debug().Err(err).Str("module", "media").Str("kind", t.Kind().String()).Msg("sample write")
			}
		}
	}
}

// sampleTrack pairs a pion sample track with an enablement flag. Disabled
// tracks stay attached but go silent, which is how mute/hide behave.
type sampleTrack struct {
	track   *webrtc.TrackLocalStaticSample
	kind    webrtc.RTPCodecType
	enabled atomic.Bool
}

func newSampleTrack(t *webrtc.TrackLocalStaticSample, kind webrtc.RTPCodecType) *sampleTrack {
	st := &sampleTrack{track: t, kind: kind}
	st.enabled.Store(true)
	return st
}

func (t *sampleTrack) ID() string                { return t.track.ID() }
func (t *sampleTrack) Kind() webrtc.RTPCodecType { return t.kind }
func (t *sampleTrack) SetEnabled(v bool)         { t.enabled.Store(v) }
func (t *sampleTrack) Enabled() bool             { return t.enabled.Load() }
func (t *sampleTrack) Unwrap() webrtc.TrackLocal { return t.track }
