package core

import (
	"sync"

	"github.com/pion/webrtc/v4"
)

// LocalMedia is the session's exclusively owned handle to local capture.
// Release stops the underlying capture exactly once.
type LocalMedia struct {
	tracks []LocalTrack

	once sync.Once
	stop func()
}

func NewLocalMedia(tracks []LocalTrack, stop func()) *LocalMedia {
	return &LocalMedia{tracks: tracks, stop: stop}
}

func (m *LocalMedia) Tracks() []LocalTrack { return m.tracks }

// SetKindEnabled toggles every track of the given kind.
func (m *LocalMedia) SetKindEnabled(kind webrtc.RTPCodecType, enabled bool) {
	for _, t := range m.tracks {
		if t.Kind() == kind {
			t.SetEnabled(enabled)
		}
	}
}

// Release stops capture. Idempotent.
func (m *LocalMedia) Release() {
	m.once.Do(func() {
		if m.stop != nil {
			m.stop()
		}
	})
}

// RemoteMedia accumulates tracks arriving from the remote peer. It is shared
// by reference with the rendering collaborator: the session mutates it, the
// renderer reads snapshots. The track set may change between reads.
type RemoteMedia struct {
	mu     sync.RWMutex
	tracks []RemoteTrack
}

func NewRemoteMedia() *RemoteMedia { return &RemoteMedia{} }

// Merge adds a track, replacing any existing track of the same kind. A
// renegotiated stream supersedes the previous one rather than piling up.
func (m *RemoteMedia) Merge(t RemoteTrack) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, old := range m.tracks {
		if old.Kind() == t.Kind() {
			m.tracks[i] = t
			return
		}
	}
	m.tracks = append(m.tracks, t)
}

// Tracks returns a snapshot of the current track set.
func (m *RemoteMedia) Tracks() []RemoteTrack {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]RemoteTrack, len(m.tracks))
	copy(out, m.tracks)
	return out
}

func (m *RemoteMedia) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tracks = nil
}
