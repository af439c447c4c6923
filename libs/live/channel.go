package live

import (
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"
)

// ChannelState is the explicit lifecycle state of one push channel. The
// state machine is what guarantees "no reconnect after an intentional
// close" structurally instead of via scattered flags.
type ChannelState int32

const (
	StateIdle ChannelState = iota
	StateConnecting
	StateOpen
	StateWaitingReconnect
	StateClosed
)

func (s ChannelState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateWaitingReconnect:
		return "waiting_reconnect"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Conn is the minimal websocket surface the channel needs. The gorilla
// *websocket.Conn satisfies it directly; tests substitute scripted fakes.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteJSON(v interface{}) error
	Close() error
}

// DialFunc opens one raw connection to the given URL.
type DialFunc func(rawurl string) (Conn, error)

// ChannelConfig carries the knobs of one push channel.
type ChannelConfig struct {
	// BaseURL is the service location, e.g. "ws://host:8000". The per-bus
	// endpoint is derived from it.
	BaseURL string
	// ReconnectDelay is the pause before redialing after an unexpected
	// closure. Defaults to 3 seconds.
	ReconnectDelay time.Duration
	// JitterFraction adds up to this fraction of ReconnectDelay of random
	// jitter, so a fleet of views does not redial in lockstep. Defaults to
	// 0.1; set negative to disable.
	JitterFraction float64
	// PingInterval is the keepalive period; zero disables pings.
	PingInterval time.Duration
	// HandshakeTimeout bounds the websocket handshake. Defaults to 10s.
	HandshakeTimeout time.Duration
	// Dial overrides the websocket dialer, for tests.
	Dial DialFunc
}

func (c *ChannelConfig) withDefaults() ChannelConfig {
	out := *c
	if out.ReconnectDelay == 0 {
		out.ReconnectDelay = 3 * time.Second
	}
	if out.JitterFraction == 0 {
		out.JitterFraction = 0.1
	}
	if out.HandshakeTimeout == 0 {
		out.HandshakeTimeout = 10 * time.Second
	}
	if out.Dial == nil {
		timeout := out.HandshakeTimeout
		out.Dial = func(rawurl string) (Conn, error) {
			d := websocket.Dialer{HandshakeTimeout: timeout}
			conn, _, err := d.Dial(rawurl, nil)
			if err != nil {
				return nil, err
			}
			return conn, nil
		}
	}
	return out
}

// MessageFunc receives every successfully decoded inbound message, in
// arrival order, from a single goroutine.
type MessageFunc func(msg Message)

// StatusFunc is notified when the channel gains or loses its connection.
// Connection loss is a status, never an error thrown at the caller.
type StatusFunc func(connected bool)

type controlMessage struct {
	Type string `json:"type"`
}

// Channel mirrors one tracked entity's live state stream. It owns exactly
// one underlying connection at a time; every (re)connect starts a new
// generation, and anything read from or written to a superseded generation
// is discarded, so a slow-to-die old socket can never resurrect stale data.
type Channel struct {
	cfg      ChannelConfig
	entityID string
	handler  MessageFunc
	status   StatusFunc

	mu         sync.Mutex
	writeMu    sync.Mutex
	deliverMu  sync.Mutex
	state      ChannelState
	generation uint64
	conn       Conn
	done       chan struct{}
	reconnect  *time.Timer
}

// NewChannel prepares a channel for one entity. Nothing connects until
// Connect is called.
func NewChannel(cfg ChannelConfig, entityID string, handler MessageFunc, status StatusFunc) *Channel {
	return &Channel{
		cfg:      cfg.withDefaults(),
		entityID: entityID,
		handler:  handler,
		status:   status,
		state:    StateIdle,
	}
}

// Endpoint is the per-entity websocket URL.
func (c *Channel) Endpoint() string {
	return strings.TrimRight(c.cfg.BaseURL, "/") + "/ws/bus/" + c.entityID + "/"
}

// Connect opens the channel. It is idempotent: when a connection is already
// open it is torn down first and a fresh generation is dialed. Dialing
// happens in the background; Connect never blocks on the network.
func (c *Channel) Connect() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateClosed {
		return
	}
	c.startConnectLocked()
}

func (c *Channel) startConnectLocked() {
	c.stopTimerLocked()
	c.teardownConnLocked()
	c.generation++
	c.state = StateConnecting
	gen := c.generation
	go c.dial(gen)
}

func (c *Channel) dial(gen uint64) {
	conn, err := c.cfg.Dial(c.Endpoint())

	c.mu.Lock()
	if c.generation != gen || c.state == StateClosed {
		c.mu.Unlock()
		if conn != nil {
			conn.Close()
		}
		return
	}
	if err != nil {
		log.WithFields(log.Fields{"bus": c.entityID, "err": err}).Warn("Push channel dial failed")
		c.scheduleReconnectLocked()
		c.mu.Unlock()
		c.notify(false)
		return
	}
	c.conn = conn
	c.done = make(chan struct{})
	c.state = StateOpen
	done := c.done
	c.mu.Unlock()

	log.WithField("bus", c.entityID).Info("Push channel open")
	c.notify(true)
	if c.cfg.PingInterval > 0 {
		go c.pingLoop(gen, done)
	}
	c.readLoop(gen, conn)
}

// readLoop is the single delivery goroutine of one generation. Messages are
// decoded and handed to the subscriber strictly in arrival order; malformed
// frames are logged and dropped without stopping delivery.
func (c *Channel) readLoop(gen uint64, conn Conn) {
	for {
		_, raw, err := conn.ReadMessage()

		c.mu.Lock()
		stale := c.generation != gen || c.state == StateClosed
		c.mu.Unlock()
		if stale {
			return
		}

		if err != nil {
			c.onConnLost(gen, err)
			return
		}

		msg, derr := DecodeMessage(raw)
		if derr != nil {
			log.WithFields(log.Fields{"bus": c.entityID, "err": derr}).Warn("Dropping malformed push message")
			continue
		}
		if !c.deliver(gen, msg) {
			return
		}
	}
}

// deliver hands one decoded frame to the subscriber. Deliveries of all
// generations are serialized through one lock, and the generation is
// re-checked under that lock right before the handler runs: a frame read
// just before its connection was superseded is dropped here instead of
// landing on top of the new generation's resync. Reports whether the frame
// was still current.
func (c *Channel) deliver(gen uint64, msg Message) bool {
	c.deliverMu.Lock()
	defer c.deliverMu.Unlock()

	c.mu.Lock()
	stale := c.generation != gen || c.state == StateClosed
	c.mu.Unlock()
	if stale {
		log.WithField("bus", c.entityID).Debug("Dropping frame of superseded connection")
		return false
	}
	c.handler(msg)
	return true
}

func (c *Channel) pingLoop(gen uint64, done chan struct{}) {
	ticker := time.NewTicker(c.cfg.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			c.mu.Lock()
			stale := c.generation != gen || c.state != StateOpen
			c.mu.Unlock()
			if stale {
				return
			}
			c.Send(controlMessage{Type: "ping"})
		}
	}
}

// onConnLost handles any closure the caller did not ask for.
func (c *Channel) onConnLost(gen uint64, err error) {
	c.mu.Lock()
	if c.generation != gen || c.state == StateClosed {
		c.mu.Unlock()
		return
	}
	log.WithFields(log.Fields{"bus": c.entityID, "err": err}).Warn("Push channel lost, scheduling reconnect")
	c.teardownConnLocked()
	c.scheduleReconnectLocked()
	c.mu.Unlock()
	c.notify(false)
}

func (c *Channel) scheduleReconnectLocked() {
	c.state = StateWaitingReconnect
	delay := c.cfg.ReconnectDelay
	if c.cfg.JitterFraction > 0 {
		delay += time.Duration(rand.Float64() * c.cfg.JitterFraction * float64(c.cfg.ReconnectDelay))
	}
	c.reconnect = time.AfterFunc(delay, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.state != StateWaitingReconnect {
			return
		}
		c.startConnectLocked()
	})
}

// Send forwards an outbound control message when the channel is open and is
// a silent no-op otherwise. Write failures are logged only; the read side
// notices the broken connection and drives the reconnect.
func (c *Channel) Send(v interface{}) {
	c.mu.Lock()
	if c.state != StateOpen || c.conn == nil {
		c.mu.Unlock()
		return
	}
	conn := c.conn
	c.mu.Unlock()

	c.writeMu.Lock()
	err := conn.WriteJSON(v)
	c.writeMu.Unlock()
	if err != nil {
		log.WithFields(log.Fields{"bus": c.entityID, "err": err}).Warn("Push channel write failed")
	}
}

// Refresh asks the server for a full resynchronization snapshot.
func (c *Channel) Refresh() {
	c.Send(controlMessage{Type: "refresh"})
}

// Close shuts the channel down intentionally: the reconnect timer is
// stopped synchronously and no reconnection follows. Safe to call twice.
func (c *Channel) Close() {
	c.mu.Lock()
	if c.state == StateClosed {
		c.mu.Unlock()
		return
	}
	c.stopTimerLocked()
	c.teardownConnLocked()
	c.state = StateClosed
	c.generation++ // orphan any in-flight dial or read
	c.mu.Unlock()
	log.WithField("bus", c.entityID).Info("Push channel closed")
}

// Connected reports whether the channel currently has an open connection.
func (c *Channel) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == StateOpen
}

// State returns the current lifecycle state.
func (c *Channel) State() ChannelState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Generation returns the current connection generation.
func (c *Channel) Generation() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generation
}

func (c *Channel) teardownConnLocked() {
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	if c.done != nil {
		close(c.done)
		c.done = nil
	}
}

func (c *Channel) stopTimerLocked() {
	if c.reconnect != nil {
		c.reconnect.Stop()
		c.reconnect = nil
	}
}

func (c *Channel) notify(connected bool) {
	if c.status != nil {
		c.status(connected)
	}
}
