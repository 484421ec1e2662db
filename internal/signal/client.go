package signal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"livecast/native/internal/domain"
	"livecast/native/internal/metrics"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

var logger = logrus.WithField("component", "signal")

const (
	defaultPingInterval = 20 * time.Second
	writeWait           = 5 * time.Second
)

// Option configures a Client.
type Option func(*Client)

// WithHeader adds HTTP headers to the WebSocket handshake.
func WithHeader(h http.Header) Option {
	return func(c *Client) { c.header = h }
}

// WithPingInterval sets the keepalive interval. Zero disables pings.
func WithPingInterval(d time.Duration) Option {
	return func(c *Client) { c.pingInterval = d }
}

// WithDialer replaces the default WebSocket dialer.
func WithDialer(d *websocket.Dialer) Option {
	return func(c *Client) { c.dialer = d }
}

// WithMetrics records message counts on m.
func WithMetrics(m metrics.Collector) Option {
	return func(c *Client) { c.metrics = m }
}

// Client manages the WebSocket connection to the signaling relay.
// It implements domain.Signaler and may be reconnected after Disconnect.
type Client struct {
	url          string
	header       http.Header
	dialer       *websocket.Dialer
	pingInterval time.Duration
	metrics      metrics.Collector

	mu       sync.Mutex
	role     domain.Role
	handlers *domain.Handlers
	link     *link
}

// link is one connection attempt. A Client never reuses a link.
type link struct {
	ctx       context.Context
	cancel    context.CancelFunc
	closed    chan struct{}
	closeOnce sync.Once
	onFailure func(error)

	mu   sync.Mutex // guards conn and serializes writes
	conn *websocket.Conn
}

// NewClient creates a signaling client for the relay at url.
func NewClient(url string, opts ...Option) *Client {
	c := &Client{
		url:          url,
		dialer:       websocket.DefaultDialer,
		pingInterval: defaultPingInterval,
		metrics:      metrics.Nop{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// RegisterHandlers installs the inbound handlers for role. Problems are
// reported through h.OnError, never returned or panicked.
func (c *Client) RegisterHandlers(role domain.Role, h domain.Handlers) {
	if role != domain.RoleBroadcaster && role != domain.RoleViewer {
		report(h.OnError, domain.NewSessionError(domain.KindTransport, "register handlers",
			fmt.Errorf("invalid role %s", role)))
		return
	}

	c.mu.Lock()
	if c.link != nil {
		c.mu.Unlock()
		report(h.OnError, domain.NewSessionError(domain.KindTransport, "register handlers", domain.ErrAlreadyConnected))
		return
	}
	c.role = role
	c.handlers = &h
	c.mu.Unlock()

	logger.Debugf("handlers registered as %s", role)
}

// Connect dials the relay in the background.
func (c *Client) Connect(onConnected func(), onFailure func(error)) {
	c.mu.Lock()
	if c.handlers == nil {
		c.mu.Unlock()
		report(onFailure, domain.NewSessionError(domain.KindTransport, "connect", domain.ErrHandlersNotRegistered))
		return
	}
	if c.link != nil {
		c.mu.Unlock()
		report(onFailure, domain.NewSessionError(domain.KindTransport, "connect", domain.ErrAlreadyConnected))
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	l := &link{
		ctx:       ctx,
		cancel:    cancel,
		closed:    make(chan struct{}),
		onFailure: onFailure,
	}
	c.link = l
	c.mu.Unlock()

	go c.dial(l, onConnected)
}

func (c *Client) dial(l *link, onConnected func()) {
	logger.Infof("connecting to %s", c.url)

	conn, _, err := c.dialer.DialContext(l.ctx, c.url, c.header)
	if err != nil {
		c.fail(l, domain.NewSessionError(domain.KindTransport, "connect", fmt.Errorf("websocket dial: %w", err)))
		return
	}

	l.mu.Lock()
	select {
	case <-l.closed:
		l.mu.Unlock()
		conn.Close()
		return
	default:
	}
	l.conn = conn
	l.mu.Unlock()

	logger.Infof("connected to %s", c.url)

	go c.readLoop(l)
	if c.pingInterval > 0 {
		go c.pingLoop(l)
	}

	if onConnected != nil {
		onConnected()
	}
}

// Disconnect closes the connection and drops the handlers. It is safe to
// call at any time, any number of times.
func (c *Client) Disconnect() {
	c.mu.Lock()
	l := c.link
	c.link = nil
	c.handlers = nil
	c.mu.Unlock()

	if l != nil {
		logger.Infof("disconnecting")
		l.close()
	}
}

func (l *link) close() {
	l.closeOnce.Do(func() {
		l.cancel()
		close(l.closed)

		l.mu.Lock()
		defer l.mu.Unlock()
		if l.conn != nil {
			_ = l.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeWait))
			l.conn.Close()
		}
	})
}

// fail retires l and, when it was still the live link, reports err once.
func (c *Client) fail(l *link, err error) {
	c.mu.Lock()
	current := c.link == l
	if current {
		c.link = nil
	}
	c.mu.Unlock()

	l.close()
	if !current {
		return
	}
	logger.Errorf("channel failed: %v", err)
	report(l.onFailure, err)
}

// Send writes msg to the relay. Errors are logged, never returned.
func (c *Client) Send(msg domain.Message) {
	event := string(msg.Event)
	if err := msg.Validate(); err != nil {
		logger.Warnf("dropping invalid message: %v", err)
		c.metrics.SignalingMessageDropped(event, "invalid")
		return
	}

	c.mu.Lock()
	l := c.link
	c.mu.Unlock()
	if l == nil {
		logger.Warnf("dropping %s: %v", event, domain.ErrNotConnected)
		c.metrics.SignalingMessageDropped(event, "not_connected")
		return
	}

	data, err := json.Marshal(msg)
	if err != nil {
		logger.Errorf("marshal %s: %v", event, err)
		c.metrics.SignalingMessageDropped(event, "marshal")
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.conn == nil {
		logger.Warnf("dropping %s: %v", event, domain.ErrNotConnected)
		c.metrics.SignalingMessageDropped(event, "not_connected")
		return
	}
	logger.Debugf(">>> %s", string(data))
	_ = l.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := l.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		logger.Warnf("write %s: %v", event, err)
		c.metrics.SignalingMessageDropped(event, "write")
		return
	}
	c.metrics.SignalingMessageSent(event, len(data))
}

func (c *Client) readLoop(l *link) {
	for {
		_, data, err := l.conn.ReadMessage()
		if err != nil {
			select {
			case <-l.closed:
				return
			default:
			}
			c.fail(l, domain.NewSessionError(domain.KindTransport, "read", fmt.Errorf("%w: %v", domain.ErrDisconnected, err)))
			return
		}

		logger.Debugf("<<< %s", string(data))

		var msg domain.Message
		if err := json.Unmarshal(data, &msg); err != nil {
			logger.Warnf("unmarshal error: %v", err)
			c.metrics.SignalingMessageDropped("unknown", "unmarshal")
			continue
		}
		c.metrics.SignalingMessageReceived(string(msg.Event), len(data))

		c.dispatch(l, msg)
	}
}

func (c *Client) dispatch(l *link, msg domain.Message) {
	c.mu.Lock()
	if c.link != l || c.handlers == nil {
		c.mu.Unlock()
		return
	}
	role := c.role
	h := *c.handlers
	c.mu.Unlock()

	switch msg.Event {
	case domain.MessageAnswer:
		if role != domain.RoleBroadcaster {
			c.drop(msg, "role")
			return
		}
		if msg.SDP == nil {
			c.drop(msg, "payload")
			return
		}
		logger.Infof("received answer")
		if h.OnAnswer != nil {
			h.OnAnswer(*msg.SDP)
		}

	case domain.MessageOffer:
		if role != domain.RoleViewer {
			c.drop(msg, "role")
			return
		}
		if msg.SDP == nil {
			c.drop(msg, "payload")
			return
		}
		logger.Infof("received offer")
		if h.OnOffer != nil {
			h.OnOffer(*msg.SDP)
		}

	case domain.MessageICECandidate:
		if msg.Candidate == nil || msg.Candidate.Validate() != nil {
			c.drop(msg, "payload")
			return
		}
		logger.Debugf("received remote ICE candidate")
		if h.OnICECandidate != nil {
			h.OnICECandidate(*msg.Candidate)
		}

	case domain.MessageError:
		reason := msg.Error
		if reason == "" {
			reason = "unspecified"
		}
		logger.Warnf("relay error: %s", reason)
		report(h.OnError, domain.NewSessionError(domain.KindTransport, "relay", fmt.Errorf("%w: %s", domain.ErrRemoteError, reason)))

	default:
		c.drop(msg, "unhandled")
	}
}

func (c *Client) drop(msg domain.Message, reason string) {
	logger.Debugf("dropping inbound %s (%s)", msg.Event, reason)
	c.metrics.SignalingMessageDropped(string(msg.Event), reason)
}

func (c *Client) pingLoop(l *link) {
	ticker := time.NewTicker(c.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-l.closed:
			return
		case <-ticker.C:
			l.mu.Lock()
			err := l.conn.WriteControl(websocket.PingMessage, []byte{}, time.Now().Add(writeWait))
			l.mu.Unlock()
			if err != nil {
				if errors.Is(err, websocket.ErrCloseSent) {
					return
				}
				c.fail(l, domain.NewSessionError(domain.KindTransport, "ping", err))
				return
			}
		}
	}
}

func report(fn func(error), err error) {
	if fn != nil {
		fn(err)
	}
}
