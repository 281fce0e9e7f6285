// Package signal implements core.SignalingChannel over a websocket client.
// The channel is dumb transport: at-least-once, unordered; the session layer
// tolerates both.
package signal

import (
	"context"
	"encoding/json"
	"errors"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/nkrett/callwire/internal/core"
)

const (
	sendBuffer   = 32
	writeTimeout = 5 * time.Second
)

var ErrBackpressure = errors.New("backpressure")

// WSChannel is a websocket-backed signaling channel with one read pump and
// one write pump. Sending works right after Dial; incoming envelopes flow
// only once Listen supplies the handler, so the handler's collaborators can
// be constructed in between without racing the read pump.
type WSChannel struct {
	conn *websocket.Conn
	send chan core.Envelope

	listenOnce sync.Once

	mu     sync.RWMutex
	closed bool
}

// Dial connects to the relay's signaling endpoint as the given peer and
// starts the write pump.
func Dial(ctx context.Context, relayURL, peerID string) (*WSChannel, error) {
	u, err := url.Parse(relayURL)
	if err != nil {
		return nil, err
	}
	q := u.Query()
	q.Set("peer", peerID)
	u.RawQuery = q.Encode()

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, err
	}
	log.Info().Str("module", "signal").Str("peer", peerID).Str("url", u.Redacted()).Msg("signaling connected")

	c := &WSChannel{
		conn: conn,
		send: make(chan core.Envelope, sendBuffer),
	}
	go c.writePump()
	return c, nil
}

// Listen starts the read pump; onEnvelope receives every decoded incoming
// message on the pump goroutine. Only the first call takes effect.
func (c *WSChannel) Listen(onEnvelope func(core.Envelope)) {
	c.listenOnce.Do(func() {
		go c.readPump(onEnvelope)
	})
}

// Send queues one envelope for transmission. Full buffer or closed channel
// is an error; candidates are fine to lose, setup messages get retried by
// the protocol's resend tolerance.
func (c *WSChannel) Send(env core.Envelope) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return errors.New("signaling channel closed")
	}
	select {
	case c.send <- env:
		return nil
	default:
		return ErrBackpressure
	}
}

func (c *WSChannel) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	_ = c.conn.Close()
	c.mu.Unlock()
	log.Info().Str("module", "signal").Msg("signaling channel closed")
}

func (c *WSChannel) writePump() {
	for env := range c.send {
		data, err := json.Marshal(env)
		if err != nil {
			log.Error().Err(err).Str("module", "signal").Msg("envelope marshal")
			continue
		}
		if err := c.conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
			log.Error().Err(err).Str("module", "signal").Msg("writePump set deadline")
			return
		}
		if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
			log.Error().Err(err).Str("module", "signal").Msg("writePump write error")
			return
		}
	}
}

func (c *WSChannel) readPump(onEnvelope func(core.Envelope)) {
	defer c.Close()
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			log.Info().Err(err).Str("module", "signal").Msg("readPump done")
			return
		}
		var env core.Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			log.Warn().Err(err).Str("module", "signal").Msg("dropping undecodable envelope")
			continue
		}
		onEnvelope(env)
	}
}
