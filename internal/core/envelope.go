package core

import (
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/pion/webrtc/v4"
)

type EnvelopeType string

const (
	EnvelopeOffer        EnvelopeType = "offer"
	EnvelopeAnswer       EnvelopeType = "answer"
	EnvelopeCandidate    EnvelopeType = "ice-candidate"
	EnvelopeCallAccepted EnvelopeType = "call-accepted"
	EnvelopeCallRejected EnvelopeType = "call-rejected"
	EnvelopeEndCall      EnvelopeType = "end-call"
	EnvelopeError        EnvelopeType = "error"
)

// Envelope is the signaling message shape. Payload is an opaque encoded blob
// (base64 over JSON); the relay forwards it without inspection.
type Envelope struct {
	Type    EnvelopeType `json:"type"`
	From    string       `json:"from,omitempty"`
	To      string       `json:"to,omitempty"`
	Call    string       `json:"call,omitempty"`
	Payload string       `json:"payload,omitempty"`
	Reason  string       `json:"reason,omitempty"`
}

func encodeBlob(v any) string {
	b, _ := json.Marshal(v)
	return base64.StdEncoding.EncodeToString(b)
}

func decodeBlob(s string, v any) error {
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDecode, err)
	}
	if err := json.Unmarshal(b, v); err != nil {
		return fmt.Errorf("%w: %v", ErrDecode, err)
	}
	return nil
}

// EncodeDescription encodes a session description for transmission.
func EncodeDescription(d webrtc.SessionDescription) string {
	return encodeBlob(d)
}

// DecodeDescription decodes a description payload. An empty SDP or unknown
// type is treated as malformed: the session cannot proceed on it.
func DecodeDescription(s string) (webrtc.SessionDescription, error) {
	var d webrtc.SessionDescription
	if err := decodeBlob(s, &d); err != nil {
		return d, err
	}
	if d.SDP == "" || (d.Type != webrtc.SDPTypeOffer && d.Type != webrtc.SDPTypeAnswer) {
		return d, fmt.Errorf("%w: empty or untyped description", ErrDecode)
	}
	return d, nil
}

// EncodeCandidate encodes an ICE candidate for transmission.
func EncodeCandidate(c webrtc.ICECandidateInit) string {
	return encodeBlob(c)
}

// DecodeCandidate decodes a candidate payload.
func DecodeCandidate(s string) (webrtc.ICECandidateInit, error) {
	var c webrtc.ICECandidateInit
	if err := decodeBlob(s, &c); err != nil {
		return c, err
	}
	if c.Candidate == "" {
		return c, fmt.Errorf("%w: empty candidate", ErrDecode)
	}
	return c, nil
}
