package relay

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/nkrett/callwire/internal/core"
)

var ErrBackpressure = errors.New("backpressure")

const (
	sendBuffer   = 32
	writeTimeout = 5 * time.Second
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// wsConn is one peer's websocket with a bounded outgoing buffer.
type wsConn struct {
	conn *websocket.Conn
	send chan []byte

	mu     sync.RWMutex
	closed bool
}

func (c *wsConn) TrySend(data []byte) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return errors.New("connection closed")
	}
	select {
	case c.send <- data:
		return nil
	default:
		return ErrBackpressure
	}
}

func (c *wsConn) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	_ = c.conn.Close()
	c.mu.Unlock()
}

// Controller terminates signaling websockets and forwards envelopes.
type Controller struct {
	Registry *Registry
}

func NewController() *Controller {
	return &Controller{Registry: NewRegistry()}
}

// HandleSignal upgrades the request and runs the pumps. The peer identity
// comes from the `peer` query parameter, falling back to the client token.
func (ctl *Controller) HandleSignal(ctx context.Context, c *gin.Context) {
	id := PeerID(c.Query("peer"))
	if id == "" {
		id = PeerID(c.GetString("client_token"))
	}
	if id == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing peer identity"})
		return
	}
	log.Info().Str("module", "relay").Str("peer", string(id)).Msg("new WS connection")

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "relay").Msg("ws upgrade")
		return
	}

	conn := &wsConn{
		conn: ws,
		send: make(chan []byte, sendBuffer),
	}
	ctl.Registry.Bind(id, conn)

	go ctl.writePump(ctx, conn)
	go ctl.readPump(ctx, id, conn)
}

func (ctl *Controller) writePump(ctx context.Context, c *wsConn) {
	for {
		select {
		case <-ctx.Done():
			// Server shutdown: closing the conn also unblocks the read
			// pump, which would otherwise sit in ReadMessage until the
			// client went away.
			c.Close()
			return
		case data, ok := <-c.send:
			if !ok {
				return
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
				log.Error().Err(err).Str("module", "relay").Msg("writePump set deadline")
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Error().Err(err).Str("module", "relay").Msg("writePump write error")
				return
			}
		}
	}
}

func (ctl *Controller) readPump(ctx context.Context, id PeerID, c *wsConn) {
	defer func() {
		ctl.Registry.Unbind(id, c)
		c.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			return
		default:
			_, data, err := c.conn.ReadMessage()
			if err != nil {
				log.Info().Err(err).Str("module", "relay").Str("peer", string(id)).Msg("readPump done")
				return
			}
			ctl.route(id, c, data)
		}
	}
}

// route forwards one envelope to its addressee. From is stamped server-side
// so peers cannot impersonate each other. Unroutable envelopes bounce back
// as an error envelope; payloads are never inspected.
func (ctl *Controller) route(from PeerID, sender *wsConn, data []byte) {
	var env core.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		log.Warn().Err(err).Str("module", "relay").Str("peer", string(from)).Msg("dropping bad envelope")
		ctl.sendJSON(sender, core.Envelope{Type: core.EnvelopeError, Reason: "bad_envelope"})
		return
	}
	env.From = string(from)

	if env.To == "" {
		ctl.sendJSON(sender, core.Envelope{Type: core.EnvelopeError, Call: env.Call, Reason: "missing_addressee"})
		return
	}
	dst, ok := ctl.Registry.Get(PeerID(env.To))
	if !ok {
		log.Warn().Str("module", "relay").Str("peer", string(from)).Str("to", env.To).Msg("addressee not connected")
		ctl.sendJSON(sender, core.Envelope{Type: core.EnvelopeError, Call: env.Call, Reason: "peer_not_connected"})
		return
	}
	ctl.sendJSON(dst, env)

	log.Debug().
		Str("module", "relay").
		Str("type", string(env.Type)).
		Str("from", string(from)).
		Str("to", env.To).
		Msg("forwarded")
}

func (ctl *Controller) sendJSON(c *wsConn, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("module", "relay").Msg("sendJSON marshal")
		return
	}
	if err := c.TrySend(b); err != nil {
		log.Warn().Err(err).Str("module", "relay").Msg("send dropped")
	}
}
