package core

import (
	"encoding/base64"
	"testing"

	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/require"
)

func TestDescriptionRoundTrip(t *testing.T) {
	in := webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "v=0\r\no=- 42 2 IN IP4 127.0.0.1\r\n"}
	out, err := DecodeDescription(EncodeDescription(in))
	require.NoError(t, err)
	require.Equal(t, in, out)
}

func TestDecodeDescriptionFailures(t *testing.T) {
	cases := map[string]string{
		"not base64":     "%%%not-base64%%%",
		"not json":       base64.StdEncoding.EncodeToString([]byte("not json")),
		"empty sdp":      EncodeDescription(webrtc.SessionDescription{Type: webrtc.SDPTypeOffer}),
		"untyped":        EncodeDescription(webrtc.SessionDescription{SDP: "v=0"}),
		"pranswer":       EncodeDescription(webrtc.SessionDescription{Type: webrtc.SDPTypePranswer, SDP: "v=0"}),
		"empty payload":  "",
		"candidate blob": EncodeCandidate(webrtc.ICECandidateInit{Candidate: "candidate:1"}),
	}
	for name, payload := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := DecodeDescription(payload)
			require.ErrorIs(t, err, ErrDecode)
		})
	}
}

func TestCandidateRoundTrip(t *testing.T) {
	mid := "0"
	idx := uint16(0)
	in := webrtc.ICECandidateInit{
		Candidate:     "candidate:1 1 udp 2122260223 192.0.2.7 5000 typ host",
		SDPMid:        &mid,
		SDPMLineIndex: &idx,
	}
	out, err := DecodeCandidate(EncodeCandidate(in))
	require.NoError(t, err)
	require.Equal(t, in.Candidate, out.Candidate)
	require.Equal(t, mid, *out.SDPMid)
	require.Equal(t, idx, *out.SDPMLineIndex)
}

func TestDecodeCandidateFailures(t *testing.T) {
	for name, payload := range map[string]string{
		"not base64": "???",
		"empty":      EncodeCandidate(webrtc.ICECandidateInit{}),
	} {
		t.Run(name, func(t *testing.T) {
			_, err := DecodeCandidate(payload)
			require.ErrorIs(t, err, ErrDecode)
		})
	}
}
