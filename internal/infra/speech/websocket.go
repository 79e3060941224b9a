// Package speech hosts browser speech recognizers over a websocket. The page
// runs the Web Speech API and forwards its events; the server drives it with
// start, stop and probe ops.
package speech

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"mealvoice/internal/application"
	"mealvoice/internal/capture"
	"mealvoice/internal/domain"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period (must be less than pongWait)
	pingPeriod = (pongWait * 9) / 10

	maxMessageSize = 8192
)

type Config struct {
	// DefaultLocale is used when the hello message names none.
	DefaultLocale string
	// HelloTimeout bounds the wait for the opening hello message.
	HelloTimeout time.Duration
	// ProbeTimeout bounds the wait for a probe_result.
	ProbeTimeout time.Duration
	// Microphone replaces the browser probe when the recognizer records from
	// a device attached to this host.
	Microphone capture.Microphone
}

// Conn is one connected browser page. It implements application.EngineHost
// and application.SessionUI.
type Conn struct {
	conn   *websocket.Conn
	cfg    Config
	logger *slog.Logger

	supported bool
	secure    bool
	locale    string

	send   chan []byte
	inbox  chan application.HostMessage
	probes chan string

	done      chan struct{}
	closeOnce sync.Once
}

func NewConn(conn *websocket.Conn, cfg Config, logger *slog.Logger) *Conn {
	if cfg.DefaultLocale == "" {
		cfg.DefaultLocale = capture.DefaultFallbackLocale
	}
	if cfg.HelloTimeout <= 0 {
		cfg.HelloTimeout = 10 * time.Second
	}
	if cfg.ProbeTimeout <= 0 {
		cfg.ProbeTimeout = 10 * time.Second
	}
	return &Conn{
		conn:     conn,
		cfg:      cfg,
		logger:   logger,
		send:     make(chan []byte, 256),
		inbox:    make(chan application.HostMessage, 64),
		probes:   make(chan string, 1),
		done:     make(chan struct{}),
	}
}

// Handshake reads the hello message describing the page's environment. It
// must be called before Serve.
func (c *Conn) Handshake() error {
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(c.cfg.HelloTimeout))

	var msg clientMessage
	if err := c.conn.ReadJSON(&msg); err != nil {
		return fmt.Errorf("reading hello: %w", err)
	}
	if msg.Type != msgHello {
		return fmt.Errorf("expected hello, got %q", msg.Type)
	}

	c.supported = msg.Supported
	c.secure = msg.SecureContext
	c.locale = msg.Locale
	if c.locale == "" {
		c.locale = c.cfg.DefaultLocale
	}
	return nil
}

// Serve starts the read and write pumps. The connection closes itself when
// either pump fails.
func (c *Conn) Serve() {
	go c.writePump()
	go c.readPump()
}

func (c *Conn) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
	})
}

func (c *Conn) Locale() string                           { return c.locale }
func (c *Conn) Supported() bool                          { return c.supported }
func (c *Conn) SecureContext() bool                      { return c.secure }
func (c *Conn) Messages() <-chan application.HostMessage { return c.inbox }
func (c *Conn) Done() <-chan struct{}                    { return c.done }

func (c *Conn) Start(cfg capture.EngineConfig) error {
	return c.push(serverMessage{Op: opStart, Config: &cfg})
}

func (c *Conn) Stop() error {
	return c.push(serverMessage{Op: opStop})
}

// Acquire asks the page to open and immediately release the microphone.
func (c *Conn) Acquire(ctx context.Context) (func(), error) {
	if c.cfg.Microphone != nil {
		return c.cfg.Microphone.Acquire(ctx)
	}

	// Drop a result left over from an abandoned probe.
	select {
	case <-c.probes:
	default:
	}

	if err := c.push(serverMessage{Op: opProbe}); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.ProbeTimeout)
	defer cancel()

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("waiting for microphone probe: %w", ctx.Err())
	case <-c.done:
		return nil, fmt.Errorf("connection closed")
	case code := <-c.probes:
		if err := probeError(code); err != nil {
			return nil, err
		}
		return func() { c.push(serverMessage{Op: opRelease}) }, nil
	}
}

func probeError(code string) error {
	switch code {
	case "":
		return nil
	case probeNotAllowed:
		return domain.ErrPermissionDenied
	case probeNotFound:
		return domain.ErrDeviceUnavailable
	case probeNotReadable:
		return domain.ErrDeviceBusy
	default:
		return fmt.Errorf("microphone probe failed: %s", code)
	}
}

func (c *Conn) ShowStatus(st capture.Status) {
	msg := serverMessage{
		Op:        opStatus,
		SessionID: st.SessionID,
		State:     st.State.String(),
		Message:   st.Message,
	}
	if st.Err != nil {
		msg.Error = st.Err.Error()
	}
	c.push(msg)
}

func (c *Conn) ShowTranscript(t domain.Transcript) {
	c.push(serverMessage{Op: opTranscript, Text: t.Text, IsFinal: t.IsFinal})
}

func (c *Conn) ShowOutcome(o application.Outcome) {
	msg := serverMessage{Op: opOutcome, Message: o.Message}
	if o.Err != nil {
		msg.Error = o.Err.Error()
	}
	c.push(msg)
}

func (c *Conn) OnChange(ch application.Change) {
	switch ch.Kind {
	case application.IngredientsChanged:
		c.push(serverMessage{Op: opIngredientsChanged})
	case application.DeliveryTimeChanged:
		c.push(serverMessage{Op: opDeliveryTimeChanged, DeliveryTime: ch.DeliveryTime})
	}
}

func (c *Conn) push(msg serverMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshaling %s: %w", msg.Op, err)
	}
	select {
	case <-c.done:
		return fmt.Errorf("connection closed")
	default:
	}
	select {
	case c.send <- data:
		return nil
	default:
		c.logger.Warn("send buffer full, dropping message", "op", msg.Op)
		return fmt.Errorf("send buffer full")
	}
}

func (c *Conn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		case message := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				c.Close()
				return
			}
			w.Write(message)

			if err := w.Close(); err != nil {
				c.Close()
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.Close()
				return
			}
		}
	}
}

func (c *Conn) readPump() {
	defer func() {
		c.Close()
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		var msg clientMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Warn("websocket read error", "error", err)
			}
			return
		}
		c.conn.SetReadDeadline(time.Now().Add(pongWait))

		switch msg.Type {
		case msgListen:
			if !c.deliver(application.ControlMessage(application.ControlListen)) {
				return
			}
		case msgStop:
			if !c.deliver(application.ControlMessage(application.ControlStop)) {
				return
			}
		case msgProbeResult:
			select {
			case c.probes <- msg.Error:
			default:
				c.logger.Warn("unexpected probe result", "error", msg.Error)
			}
		case msgEvent:
			if msg.Event == nil {
				c.logger.Warn("event message without event")
				continue
			}
			if !c.deliver(application.EventMessage(*msg.Event)) {
				return
			}
		default:
			c.logger.Warn("unknown message type", "type", msg.Type)
		}
	}
}

// deliver queues msg behind everything the page sent before it. It reports
// false once the connection is closed.
func (c *Conn) deliver(msg application.HostMessage) bool {
	select {
	case c.inbox <- msg:
		return true
	case <-c.done:
		return false
	}
}
