// Package relay is the signaling relay: it accepts websocket peers and
// forwards envelopes between them without inspecting payloads. It keeps no
// durable state; a registry entry lives exactly as long as its connection.
package relay

import (
	"sync"

	"github.com/rs/zerolog/log"
)

type PeerID string

type peerEntry struct {
	conn *wsConn
}

// Registry maps connected peer identities to their connections.
type Registry struct {
	mu    sync.RWMutex
	peers map[PeerID]*peerEntry
}

func NewRegistry() *Registry {
	return &Registry{peers: make(map[PeerID]*peerEntry)}
}

// Bind registers a connection under the peer's identity, displacing any
// previous connection for the same identity (reconnects win).
func (r *Registry) Bind(id PeerID, conn *wsConn) {
	r.mu.Lock()
	old, had := r.peers[id]
	r.peers[id] = &peerEntry{conn: conn}
	r.mu.Unlock()

	if had {
		log.Info().Str("module", "relay.registry").Str("peer", string(id)).Msg("displacing previous connection")
		old.conn.Close()
	}
	log.Info().Str("module", "relay.registry").Str("peer", string(id)).Msg("peer bound")
}

// Unbind removes the identity if it still points at conn. A reconnect that
// already displaced us must not be unbound by the stale pump exiting.
func (r *Registry) Unbind(id PeerID, conn *wsConn) {
	r.mu.Lock()
	if e, ok := r.peers[id]; ok && e.conn == conn {
		delete(r.peers, id)
	}
	r.mu.Unlock()
	log.Info().Str("module", "relay.registry").Str("peer", string(id)).Msg("peer unbound")
}

func (r *Registry) Get(id PeerID) (*wsConn, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if e, ok := r.peers[id]; ok {
		return e.conn, true
	}
	return nil, false
}

// Peers returns a snapshot of connected identities.
func (r *Registry) Peers() []PeerID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]PeerID, 0, len(r.peers))
	for id := range r.peers {
		out = append(out, id)
	}
	return out
}
