package stream

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// ErrNoAuthToken is returned by Connect when no bearer token is configured.
var ErrNoAuthToken = errors.New("no authentication token")

// defaultEndpoint is the local-development fallback when neither a stream URL
// nor an upstream base URL is configured.
const defaultEndpoint = "ws://localhost:8080/"

// State describes the lifecycle of the event-stream connection.
type State int

const (
	StateIdle State = iota
	StateConnecting
	StateOpen
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

// Message is the discriminated envelope pushed by the server. Only Type is
// guaranteed to be present; Data is decoded per Type by the consumer.
type Message struct {
	Type      string          `json:"type"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp string          `json:"timestamp,omitempty"`
	Message   string          `json:"message,omitempty"`
}

// Handler receives every successfully parsed inbound message.
type Handler func(Message)

// Options configures a Client.
type Options struct {
	// URL is the explicit stream endpoint. When empty the endpoint is derived
	// from BaseURL by swapping http->ws / https->wss, falling back to the
	// local-development default.
	URL              string
	BaseURL          string
	Token            string
	ReconnectInitial time.Duration
	ReconnectMax     time.Duration
	MaxAttempts      int
}

// Client maintains a single live WebSocket connection to the gate-management
// event stream and transparently recovers from abnormal closure. At most one
// socket is live at a time; Connect while connecting or open is a no-op.
type Client struct {
	opts Options

	mu             sync.Mutex
	state          State
	conn           *websocket.Conn
	handler        Handler
	lastMessage    *Message
	lastErr        error
	attempt        int
	reconnectTimer *time.Timer
	gen            int // socket generation; stale read loops bail out

	writeMu sync.Mutex
}

// NewClient creates a client. Zero-valued options get the standard defaults
// (1s initial delay, 30s cap, 5 attempts).
func NewClient(opts Options) *Client {
	if opts.ReconnectInitial <= 0 {
		opts.ReconnectInitial = time.Second
	}
	if opts.ReconnectMax <= 0 {
		opts.ReconnectMax = 30 * time.Second
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 5
	}
	return &Client{opts: opts, state: StateIdle}
}

// SetHandler installs the message handler. The handler cell is read at
// dispatch time, so swapping handlers never touches the socket.
func (c *Client) SetHandler(h Handler) {
	c.mu.Lock()
	c.handler = h
	c.mu.Unlock()
}

// Connect opens the stream connection. It is idempotent: while the client is
// already connecting or open it returns nil without side effects. A missing
// token surfaces as ErrNoAuthToken and no dial is attempted.
func (c *Client) Connect() error {
	c.mu.Lock()
	if c.state == StateConnecting || c.state == StateOpen {
		c.mu.Unlock()
		return nil
	}
	if c.opts.Token == "" {
		c.lastErr = ErrNoAuthToken
		c.mu.Unlock()
		return ErrNoAuthToken
	}
	c.state = StateConnecting
	c.mu.Unlock()
	return c.dial()
}

// Disconnect cancels any pending reconnect, closes the socket with a normal
// closure code and leaves the client in StateClosed. Safe to call repeatedly.
func (c *Client) Disconnect() {
	c.mu.Lock()
	if c.reconnectTimer != nil {
		c.reconnectTimer.Stop()
		c.reconnectTimer = nil
	}
	c.gen++ // orphan any running read loop
	conn := c.conn
	c.conn = nil
	c.state = StateClosing
	c.mu.Unlock()

	if conn != nil {
		deadline := time.Now().Add(time.Second)
		if err := conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline); err != nil {
			log.Printf("stream: close handshake failed: %v", err)
		}
		conn.Close()
	}

	c.mu.Lock()
	c.state = StateClosed
	c.mu.Unlock()
}

// Send serializes v and writes it to the stream. Delivery is best effort:
// when the connection is not open the message is logged and dropped.
func (c *Client) Send(v any) error {
	c.mu.Lock()
	conn := c.conn
	open := c.state == StateOpen
	c.mu.Unlock()

	if !open || conn == nil {
		log.Printf("stream: dropping outbound message, connection not open")
		return nil
	}

	data, err := json.Marshal(v)
	if err != nil {
		log.Printf("stream: cannot serialize outbound message: %v", err)
		return err
	}

	c.writeMu.Lock()
	err = conn.WriteMessage(websocket.TextMessage, data)
	c.writeMu.Unlock()
	if err != nil {
		log.Printf("stream: write failed: %v", err)
	}
	return err
}

// State returns the current connection state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// IsConnected reports whether the connection is open.
func (c *Client) IsConnected() bool {
	return c.State() == StateOpen
}

// LastMessage returns the most recently parsed inbound message, or nil.
func (c *Client) LastMessage() *Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastMessage
}

// Err returns the most recent connection error, or nil.
func (c *Client) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

// ReconnectAttempt returns the current reconnect attempt counter. It resets
// to zero on every successful open.
func (c *Client) ReconnectAttempt() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.attempt
}

// ReconnectDelay computes the backoff before the given reconnect attempt:
// initial doubled per attempt, capped at max.
func ReconnectDelay(attempt int, initial, max time.Duration) time.Duration {
	d := initial
	for i := 0; i < attempt; i++ {
		d *= 2
		if d >= max {
			return max
		}
	}
	return d
}

// endpoint resolves the stream URL: explicit config, then scheme-swapped
// upstream base URL, then the local-development default. The bearer token is
// carried as a query parameter.
func (c *Client) endpoint() (string, error) {
	raw := c.opts.URL
	if raw == "" && c.opts.BaseURL != "" {
		u, err := url.Parse(c.opts.BaseURL)
		if err != nil {
			return "", fmt.Errorf("invalid upstream base URL: %w", err)
		}
		switch u.Scheme {
		case "https":
			u.Scheme = "wss"
		default:
			u.Scheme = "ws"
		}
		u.Path = "/"
		raw = u.String()
	}
	if raw == "" {
		raw = defaultEndpoint
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("invalid stream URL: %w", err)
	}
	q := u.Query()
	q.Set("token", c.opts.Token)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (c *Client) dial() error {
	endpoint, err := c.endpoint()
	if err != nil {
		c.mu.Lock()
		c.state = StateClosed
		c.lastErr = err
		c.mu.Unlock()
		return err
	}

	conn, resp, err := websocket.DefaultDialer.Dial(endpoint, nil)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		return c.scheduleRetry(fmt.Errorf("event stream dial failed: %w", err))
	}

	c.mu.Lock()
	if c.state != StateConnecting {
		// Disconnected while the dial was in flight.
		c.mu.Unlock()
		conn.Close()
		return nil
	}
	c.conn = conn
	c.state = StateOpen
	c.attempt = 0
	c.lastErr = nil
	c.gen++
	gen := c.gen
	c.mu.Unlock()

	go c.readLoop(conn, gen)
	return nil
}

func (c *Client) readLoop(conn *websocket.Conn, gen int) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			c.handleClose(gen, err)
			return
		}

		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			log.Printf("stream: discarding malformed frame: %v", err)
			continue
		}

		c.mu.Lock()
		if c.gen != gen {
			c.mu.Unlock()
			return
		}
		c.lastMessage = &msg
		h := c.handler
		c.mu.Unlock()

		if h != nil {
			h(msg)
		}
	}
}

// handleClose classifies a read failure. Normal closure (1000) and policy
// violation (1008, auth rejection) are terminal; everything else is eligible
// for backoff-driven reconnect.
func (c *Client) handleClose(gen int, err error) {
	c.mu.Lock()
	if c.gen != gen || c.state != StateOpen {
		c.mu.Unlock()
		return
	}
	c.conn = nil

	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		switch ce.Code {
		case websocket.CloseNormalClosure:
			c.state = StateClosed
			c.mu.Unlock()
			return
		case websocket.ClosePolicyViolation:
			c.state = StateClosed
			c.lastErr = errors.New("authentication rejected by event stream")
			c.mu.Unlock()
			return
		}
	}

	c.state = StateConnecting
	c.mu.Unlock()
	c.scheduleRetry(fmt.Errorf("event stream closed unexpectedly: %w", err))
}

// scheduleRetry arms the reconnect timer for the next attempt, or enters the
// terminal error state once the attempt budget is exhausted.
func (c *Client) scheduleRetry(cause error) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateConnecting {
		return nil
	}

	c.attempt++
	if c.attempt > c.opts.MaxAttempts {
		c.state = StateClosed
		c.lastErr = fmt.Errorf("giving up after %d reconnect attempts: %w", c.opts.MaxAttempts, cause)
		log.Printf("stream: %v", c.lastErr)
		return c.lastErr
	}

	delay := ReconnectDelay(c.attempt, c.opts.ReconnectInitial, c.opts.ReconnectMax)
	c.lastErr = cause
	log.Printf("stream: %v; reconnect attempt %d in %s", cause, c.attempt, delay)
	c.reconnectTimer = time.AfterFunc(delay, c.redial)
	return cause
}

func (c *Client) redial() {
	c.mu.Lock()
	if c.state != StateConnecting {
		c.mu.Unlock()
		return
	}
	c.reconnectTimer = nil
	c.mu.Unlock()
	c.dial()
}
