package websocket

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"github.com/wricardo/webpad/pad/session"
)

// Options tunes connection handling.
type Options struct {
	// Maximum message size allowed from peer.
	MaxMessageSize int64

	// Time allowed to read the next pong message from the peer.
	PongWait time.Duration

	// Time allowed to write a message to the peer.
	WriteWait time.Duration

	// Origins allowed to connect. Empty allows any origin.
	AllowedOrigins []string
}

// DefaultOptions returns the keepalive and size limits used when none are
// configured.
func DefaultOptions() Options {
	return Options{
		MaxMessageSize: 512,
		PongWait:       60 * time.Second,
		WriteWait:      10 * time.Second,
	}
}

// pingPeriod must be less than PongWait.
func (o Options) pingPeriod() time.Duration {
	return (o.PongWait * 9) / 10
}

// Handler upgrades requests and serves one controller session per
// connection.
type Handler struct {
	registry *session.Registry
	opts     Options
	upgrader websocket.Upgrader
	log      logrus.FieldLogger
}

// NewHandler creates a handler that registers sessions in registry.
func NewHandler(registry *session.Registry, opts Options, logger logrus.FieldLogger) *Handler {
	defaults := DefaultOptions()
	if opts.MaxMessageSize <= 0 {
		opts.MaxMessageSize = defaults.MaxMessageSize
	}
	if opts.PongWait <= 0 {
		opts.PongWait = defaults.PongWait
	}
	if opts.WriteWait <= 0 {
		opts.WriteWait = defaults.WriteWait
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	h := &Handler{
		registry: registry,
		opts:     opts,
		log:      logger.WithField("component", "websocket"),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.checkOrigin,
	}
	return h
}

func (h *Handler) checkOrigin(r *http.Request) bool {
	if len(h.opts.AllowedOrigins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		// Not a browser.
		return true
	}
	for _, allowed := range h.opts.AllowedOrigins {
		if strings.EqualFold(origin, allowed) {
			return true
		}
	}
	return false
}

// ServeHTTP upgrades the request and blocks until the session ends.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.WithError(err).WithField("remote", r.RemoteAddr).Warn("WebSocket upgrade failed")
		return
	}

	identity := connectionIdentity(r)
	client := &Client{
		handler:  h,
		conn:     conn,
		identity: identity,
		done:     make(chan struct{}),
		log:      h.log.WithField("identity", identity),
	}
	client.serve()
}

// connectionIdentity derives the registry key for a connection from its
// remote address.
func connectionIdentity(r *http.Request) string {
	if r.RemoteAddr != "" {
		return r.RemoteAddr
	}
	return "conn-" + uuid.NewString()
}

// Client is one browser connection.
type Client struct {
	handler  *Handler
	conn     *websocket.Conn
	identity string
	session  *session.Session
	log      logrus.FieldLogger

	done      chan struct{}
	closeOnce sync.Once
}

func (c *Client) serve() {
	sess, err := c.handler.registry.Create(c.identity, func() {
		c.close(websocket.CloseGoingAway)
	})
	if err != nil {
		c.log.WithError(err).Warn("Rejecting connection")
		c.close(0)
		return
	}
	c.session = sess
	c.log = c.log.WithField("player", sess.Player())
	defer sess.Teardown()

	if err := c.sendHello(); err != nil {
		c.log.WithError(err).Warn("Failed to send handshake")
		return
	}

	go c.writePump()
	c.readPump()
}

func (c *Client) sendHello() error {
	c.conn.SetWriteDeadline(time.Now().Add(c.handler.opts.WriteWait))
	return c.conn.WriteJSON(c.session.Hello())
}

// close shuts the connection once. A zero code closes without a close frame.
func (c *Client) close(code int) {
	c.closeOnce.Do(func() {
		if code != 0 {
			deadline := time.Now().Add(c.handler.opts.WriteWait)
			c.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, ""), deadline)
		}
		close(c.done)
		c.conn.Close()
	})
}

// readPump applies frames from the connection to the session until the
// connection ends or the device fails.
func (c *Client) readPump() {
	opts := c.handler.opts

	c.conn.SetReadLimit(opts.MaxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(opts.PongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(opts.PongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				c.log.WithError(err).Warn("Connection lost")
			} else {
				c.log.Debug("Client disconnected")
			}
			return
		}
		c.conn.SetReadDeadline(time.Now().Add(opts.PongWait))

		if err := c.session.Receive(data); err != nil {
			c.log.WithError(err).Warn("Closing session after device error")
			c.close(0)
			return
		}
	}
}

// writePump keeps the connection alive. The handshake is the only
// application message, so pings are all it writes.
func (c *Client) writePump() {
	ticker := time.NewTicker(c.handler.opts.pingPeriod())
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			deadline := time.Now().Add(c.handler.opts.WriteWait)
			if err := c.conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				c.log.WithError(err).Debug("Ping failed")
				c.conn.Close()
				return
			}
		case <-c.done:
			return
		}
	}
}
