package hub

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nerrad567/pool-logic-core/internal/protocol"
)

// closeOnce wraps a channel with sync.Once to prevent double-close panics.
type closeOnce struct {
	ch   chan struct{}
	once sync.Once
}

func newCloseOnce() *closeOnce {
	return &closeOnce{ch: make(chan struct{})}
}

func (c *closeOnce) Close() {
	c.once.Do(func() { close(c.ch) })
}

func (c *closeOnce) Done() <-chan struct{} {
	return c.ch
}

// Default timeouts and intervals for hub communication.
const (
	// defaultConnectTimeout is the maximum time to wait for initial connection.
	defaultConnectTimeout = 10 * time.Second

	// defaultWriteTimeout is the timeout for write operations.
	defaultWriteTimeout = 5 * time.Second

	// defaultHeartbeatInterval is the gap between keepalive pings.
	defaultHeartbeatInterval = 30 * time.Second

	// defaultSilenceThreshold is how long the wire may stay quiet before
	// the connection is declared dead and torn down.
	defaultSilenceThreshold = 90 * time.Second

	// defaultReconnectCooldown is the initial delay between reconnection attempts.
	defaultReconnectCooldown = 5 * time.Second

	// maxReconnectCooldown is the maximum delay between reconnection attempts.
	maxReconnectCooldown = 2 * time.Minute

	// readBufferSize is the size of the socket read buffer.
	readBufferSize = 4096

	// callbackQueueSize is the buffer size for the message callback queue.
	// When it fills, the receive loop blocks, pushing backpressure onto
	// the socket instead of dropping messages.
	callbackQueueSize = 100
)

// State describes the connection lifecycle.
type State int32

// Connection states.
const (
	StateDisconnected State = iota
	StateConnecting
	StateAuthenticating
	StateReady
	StateReconnecting
	StateClosing
	StateClosed
)

// String returns the lowercase state name.
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateAuthenticating:
		return "authenticating"
	case StateReady:
		return "ready"
	case StateReconnecting:
		return "reconnecting"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Config holds hub connection configuration.
type Config struct {
	// Host is the hub's address; Port its command port.
	Host string
	Port int

	// Username and Password authenticate the session when the hub
	// requires credentials. With both empty the login exchange is
	// skipped and the session is ready as soon as the dial completes.
	Username string
	Password string

	// ConnectTimeout is the maximum time to wait for connection.
	// Default: 10 seconds.
	ConnectTimeout time.Duration

	// HeartbeatInterval is the gap between keepalive pings.
	// Default: 30 seconds.
	HeartbeatInterval time.Duration

	// SilenceThreshold is how long the wire may stay quiet before the
	// connection is torn down and rebuilt. Default: 90 seconds.
	SilenceThreshold time.Duration

	// ReconnectCooldown is the initial delay between reconnection
	// attempts. Default: 5 seconds.
	ReconnectCooldown time.Duration

	// MinReconnectInterval is the minimum spacing between successive
	// reconnect cycles, throttling tight reconnect storms. Default: the
	// reconnect cooldown.
	MinReconnectInterval time.Duration

	// MaxBufferBytes bounds the inbound line assembly buffer.
	// Default: protocol.DefaultMaxBuffer.
	MaxBufferBytes int
}

func (cfg *Config) applyDefaults() {
	if cfg.ConnectTimeout == 0 {
		cfg.ConnectTimeout = defaultConnectTimeout
	}
	if cfg.HeartbeatInterval == 0 {
		cfg.HeartbeatInterval = defaultHeartbeatInterval
	}
	if cfg.SilenceThreshold == 0 {
		cfg.SilenceThreshold = defaultSilenceThreshold
	}
	if cfg.ReconnectCooldown == 0 {
		cfg.ReconnectCooldown = defaultReconnectCooldown
	}
	if cfg.MinReconnectInterval == 0 {
		cfg.MinReconnectInterval = cfg.ReconnectCooldown
	}
	if cfg.MaxBufferBytes == 0 {
		cfg.MaxBufferBytes = protocol.DefaultMaxBuffer
	}
}

func (cfg *Config) address() string {
	return net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))
}

// Stats holds operational statistics.
type Stats struct {
	MessagesTx      uint64
	MessagesRx      uint64
	MessagesDropped uint64 // Messages discarded during shutdown
	MalformedTotal  uint64
	OverflowTotal   uint64
	ErrorsTotal     uint64
	ReconnectsTotal uint64 // Successful reconnections
	LastActivity    time.Time
	State           State
}

// Logger interface for optional logging.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// Connector interface for testability.
// This allows mocking the hub client in tests.
type Connector interface {
	Send(ctx context.Context, req *protocol.Request) error
	SetOnMessage(callback func(*protocol.Message))
	SetOnDecodeError(callback func(error))
	IsConnected() bool
	ForceReconnect(reason string)
	Stats() Stats
	Close() error
}

// Ensure Client implements Connector.
var _ Connector = (*Client)(nil)

// Client maintains the TCP session to the pool hub: one connection,
// newline-delimited JSON both ways.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
//   - Message callbacks are invoked sequentially from a single dispatch
//     goroutine, in the order the framed messages arrived.
//
// Auto-Reconnection:
//   - When the connection is lost, the client automatically attempts to
//     reconnect with exponential backoff starting at ReconnectCooldown
//     up to a two minute cap.
//   - Successive reconnect cycles are additionally throttled to at most
//     one per MinReconnectInterval.
//   - Reconnection stops only when Close() is called.
type Client struct {
	cfg  Config
	conn net.Conn

	// Connection state
	connMu sync.RWMutex
	state  State

	// Reconnection state
	reconnecting  atomic.Bool
	lastReconnect atomic.Int64 // UnixNano of the last reconnect cycle start

	// Inbound frame assembly (owned by the receive loop)
	decoder *protocol.Decoder

	// Message handler callback
	onMessage     func(*protocol.Message)
	onDecodeError func(error)
	callbackMu    sync.RWMutex

	// Bounded dispatch queue feeding the single callback goroutine
	callbackQueue chan *protocol.Message

	// Shutdown coordination (closeOnce prevents double-close panics)
	done *closeOnce
	wg   sync.WaitGroup

	// Logger (optional)
	logger   Logger
	loggerMu sync.RWMutex

	// Statistics (atomic for performance)
	messagesTx      atomic.Uint64
	messagesRx      atomic.Uint64
	messagesDropped atomic.Uint64
	errorsTotal     atomic.Uint64
	reconnectsTotal atomic.Uint64
	lastActivity    atomic.Int64 // UnixNano of the last inbound traffic
}

// Connect establishes the TCP session to the hub and starts the receive
// and heartbeat loops.
//
// Parameters:
//   - ctx: Context for cancellation (used for initial connection)
//   - cfg: Connection configuration
//
// Returns:
//   - *Client: Connected client ready for use
//   - error: If the dial fails
func Connect(ctx context.Context, cfg Config) (*Client, error) {
	cfg.applyDefaults()

	if ctx == nil {
		ctx = context.Background()
	}
	connectCtx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()

	var dialer net.Dialer
	conn, err := dialer.DialContext(connectCtx, "tcp", cfg.address())
	if err != nil {
		return nil, fmt.Errorf("%w: dial %s: %w", ErrConnectionFailed, cfg.address(), err)
	}

	client := &Client{
		cfg:           cfg,
		conn:          conn,
		state:         StateConnecting,
		done:          newCloseOnce(),
		decoder:       protocol.NewDecoder(cfg.MaxBufferBytes),
		callbackQueue: make(chan *protocol.Message, callbackQueueSize),
	}
	client.lastActivity.Store(time.Now().UnixNano())
	client.decoder.SetOnError(client.handleDecodeError)

	client.beginSession()

	client.wg.Add(1)
	go client.callbackWorker()

	client.wg.Add(1)
	go client.receiveLoop()

	client.wg.Add(1)
	go client.heartbeatLoop()

	return client, nil
}

// beginSession runs the post-dial handshake on a fresh connection. With
// credentials configured a login request goes out and the session stays
// in the authenticating state until the first inbound message confirms
// the hub accepted it; without credentials the session is ready at once.
func (c *Client) beginSession() {
	if c.cfg.Username == "" && c.cfg.Password == "" {
		c.setState(StateReady)
		return
	}

	c.setState(StateAuthenticating)
	login := protocol.NewLoginRequest(c.cfg.Username, c.cfg.Password)
	if err := c.Send(context.Background(), login); err != nil {
		c.logError("login request failed", err)
		c.errorsTotal.Add(1)
	}
}

// receiveLoop continuously reads from the hub, assembles newline-framed
// messages, and queues them for the dispatch goroutine.
// On connection loss, it automatically attempts reconnection with
// exponential backoff.
func (c *Client) receiveLoop() {
	defer c.wg.Done()

	buf := make([]byte, readBufferSize)

	for {
		select {
		case <-c.done.Done():
			return
		default:
		}

		conn := c.currentConn()
		if conn == nil {
			if c.isClosed() || !c.reconnect() {
				return
			}
			continue
		}

		// The read deadline doubles as the liveness probe interval: a
		// timeout is normal and just loops, real errors tear down.
		if err := conn.SetReadDeadline(time.Now().Add(c.cfg.HeartbeatInterval)); err != nil {
			c.logError("set read deadline failed", err)
		}

		n, err := conn.Read(buf)
		if n > 0 {
			c.lastActivity.Store(time.Now().UnixNano())
			msgs := c.decoder.Feed(buf[:n])
			if len(msgs) > 0 {
				c.promoteAuthenticated()
			}
			for _, msg := range msgs {
				c.handleMessage(msg)
			}
		}
		if err != nil {
			if c.handleReadError(err) {
				if c.isClosed() {
					return
				}
				if !c.reconnect() {
					return
				}
			}
		}
	}
}

// handleReadError processes a read error and returns true if the
// connection must be rebuilt.
func (c *Client) handleReadError(err error) bool {
	if c.isClosed() {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return false // Deadline probe, connection may still be fine
	}

	c.logError("read failed", err)
	c.errorsTotal.Add(1)
	c.handleDisconnect()
	return true
}

// promoteAuthenticated moves an authenticating session to ready. Any
// inbound message counts as confirmation; a hub that rejects the login
// closes the socket instead of answering.
func (c *Client) promoteAuthenticated() {
	c.connMu.Lock()
	promoted := c.state == StateAuthenticating
	if promoted {
		c.state = StateReady
	}
	c.connMu.Unlock()

	if promoted {
		c.logInfo("authentication accepted")
	}
}

// handleMessage queues a decoded message for the dispatch goroutine. The
// send blocks when the queue is full, so a slow consumer backpressures
// the socket instead of losing or reordering messages.
func (c *Client) handleMessage(msg *protocol.Message) {
	c.messagesRx.Add(1)

	c.callbackMu.RLock()
	hasCallback := c.onMessage != nil
	c.callbackMu.RUnlock()
	if !hasCallback {
		return
	}

	select {
	case c.callbackQueue <- msg:
	case <-c.done.Done():
		c.messagesDropped.Add(1)
	}
}

func (c *Client) handleDecodeError(err error, fragment []byte) {
	c.errorsTotal.Add(1)
	c.logError("decode failed", err)
	if len(fragment) > 0 {
		c.logDebug("undecodable fragment", "bytes", len(fragment))
	}

	c.callbackMu.RLock()
	callback := c.onDecodeError
	c.callbackMu.RUnlock()
	if callback != nil {
		callback(err)
	}
}

// callbackWorker delivers queued messages to the registered callback.
// Exactly one runs per client, so delivery order matches arrival order.
func (c *Client) callbackWorker() {
	defer c.wg.Done()

	for {
		select {
		case <-c.done.Done():
			c.drainCallbackQueue()
			return
		case msg := <-c.callbackQueue:
			c.callbackMu.RLock()
			callback := c.onMessage
			c.callbackMu.RUnlock()

			if callback != nil {
				func() {
					defer func() {
						if r := recover(); r != nil {
							c.logError("message callback panic", fmt.Errorf("%v", r))
						}
					}()
					callback(msg)
				}()
			}
		}
	}
}

// heartbeatLoop sends periodic keepalive pings and enforces the silence
// threshold: a wire that stays quiet past the threshold is torn down so
// the receive loop rebuilds it.
func (c *Client) heartbeatLoop() {
	defer c.wg.Done()

	ticker := time.NewTicker(c.cfg.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done.Done():
			return
		case <-ticker.C:
			if !c.IsConnected() {
				continue
			}

			silence := time.Since(time.Unix(0, c.lastActivity.Load()))
			if silence > c.cfg.SilenceThreshold {
				c.logError("silence threshold exceeded, forcing reconnect",
					fmt.Errorf("no traffic for %s", silence.Round(time.Second)))
				c.ForceReconnect("silence threshold exceeded")
				continue
			}

			ping := protocol.NewRequest(protocol.CmdSendQuery)
			ping.QueryName = "echo"
			if err := c.Send(context.Background(), ping); err != nil {
				c.logError("heartbeat failed", err)
			}
		}
	}
}

// handleDisconnect marks the connection lost.
func (c *Client) handleDisconnect() {
	c.connMu.Lock()
	wasReady := c.state == StateReady
	if c.state != StateClosed && c.state != StateClosing {
		c.state = StateDisconnected
	}
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	c.connMu.Unlock()

	if wasReady {
		c.logInfo("connection lost, will attempt reconnection")
	}
}

// ForceReconnect tears down the current connection so the receive loop
// rebuilds it. Used when the stream itself is suspect (silence, repeated
// undecodable data) rather than failed.
func (c *Client) ForceReconnect(reason string) {
	if c.isClosed() {
		return
	}
	c.logInfo("forced reconnect", "reason", reason)
	c.handleDisconnect()
}

// reconnect attempts to re-establish the hub session with exponential
// backoff. Returns true if reconnection succeeded, false on shutdown.
func (c *Client) reconnect() bool {
	// Prevent multiple concurrent reconnection attempts
	if !c.reconnecting.CompareAndSwap(false, true) {
		return c.waitForReconnection()
	}
	defer c.reconnecting.Store(false)

	c.setState(StateReconnecting)
	c.throttleReconnect()

	backoff := c.cfg.ReconnectCooldown
	attempt := 0
	for {
		if c.isClosed() {
			return false
		}

		attempt++
		c.logInfo("attempting reconnection", "attempt", attempt, "backoff", backoff.String())

		conn, err := c.dial()
		if err != nil {
			backoff = c.handleReconnectFailure(err, backoff)
			if backoff == 0 {
				return false // Shutdown signalled
			}
			continue
		}

		c.finalizeReconnection(conn)
		return true
	}
}

// throttleReconnect enforces the minimum spacing between reconnect
// cycles so a flapping hub cannot drive a tight reconnect storm.
func (c *Client) throttleReconnect() {
	last := time.Unix(0, c.lastReconnect.Load())
	if wait := c.cfg.MinReconnectInterval - time.Since(last); wait > 0 {
		c.logDebug("throttling reconnect", "wait", wait.String())
		select {
		case <-c.done.Done():
			return
		case <-time.After(wait):
		}
	}
	c.lastReconnect.Store(time.Now().UnixNano())
}

// waitForReconnection waits for another goroutine to complete reconnection.
func (c *Client) waitForReconnection() bool {
	for c.reconnecting.Load() && !c.isClosed() {
		time.Sleep(100 * time.Millisecond)
	}
	return !c.isClosed() && c.IsConnected()
}

func (c *Client) dial() (net.Conn, error) {
	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.ConnectTimeout)
	defer cancel()

	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "tcp", c.cfg.address())
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", c.cfg.address(), err)
	}
	return conn, nil
}

// handleReconnectFailure handles a failed reconnection attempt.
// Returns the new backoff duration, or 0 if shutdown was signalled.
func (c *Client) handleReconnectFailure(err error, backoff time.Duration) time.Duration {
	c.logError("reconnect failed", err)
	c.errorsTotal.Add(1)

	select {
	case <-c.done.Done():
		return 0 // Signal shutdown
	case <-time.After(backoff):
	}

	newBackoff := time.Duration(float64(backoff) * 1.5)
	if newBackoff > maxReconnectCooldown {
		newBackoff = maxReconnectCooldown
	}
	return newBackoff
}

// finalizeReconnection installs the fresh connection and resets the
// frame assembly state; a partial line from the old stream must never
// prefix the new one. The rebuilt session repeats the post-dial
// handshake, including the login exchange when credentials are set.
func (c *Client) finalizeReconnection(conn net.Conn) {
	c.decoder.Reset()

	c.connMu.Lock()
	c.conn = conn
	c.connMu.Unlock()

	c.reconnectsTotal.Add(1)
	c.lastActivity.Store(time.Now().UnixNano())

	c.beginSession()

	c.logInfo("reconnection successful", "total_reconnects", c.reconnectsTotal.Load())
}

// drainCallbackQueue removes and discards any remaining items from the
// callback queue. Called during shutdown to prevent goroutines from
// blocking on send.
func (c *Client) drainCallbackQueue() {
	for {
		select {
		case <-c.callbackQueue:
		default:
			return
		}
	}
}

func (c *Client) currentConn() net.Conn {
	c.connMu.RLock()
	defer c.connMu.RUnlock()
	return c.conn
}

func (c *Client) setState(s State) {
	c.connMu.Lock()
	if c.state != StateClosed && c.state != StateClosing {
		c.state = s
	}
	c.connMu.Unlock()
}

// isClosed returns true if the client has been closed.
func (c *Client) isClosed() bool {
	select {
	case <-c.done.Done():
		return true
	default:
		return false
	}
}

// Close gracefully shuts the client down.
//
// It signals all loops to stop and closes the underlying network
// connection. Safe to call multiple times (uses sync.Once).
//
// Returns:
//   - error: nil (closing is best-effort)
func (c *Client) Close() error {
	c.connMu.Lock()
	if c.state != StateClosed {
		c.state = StateClosing
	}
	if c.conn != nil {
		c.conn.Close()
	}
	c.connMu.Unlock()

	c.done.Close()
	c.wg.Wait()

	c.connMu.Lock()
	c.state = StateClosed
	c.connMu.Unlock()

	c.logInfo("connection closed")
	return nil
}

// Send writes one request to the hub, fire and forget. Responses arrive
// asynchronously through the message callback, correlated by message id.
//
// The request is sanitized before encoding: a missing or malformed
// message id is regenerated, and control sequences anywhere in the
// payload reject the request outright.
//
// Parameters:
//   - ctx: Context for cancellation
//   - req: Request to send
//
// Returns:
//   - error: If sanitization or the write fails, or the client is not connected
func (c *Client) Send(ctx context.Context, req *protocol.Request) error {
	if c.isClosed() {
		return ErrClosed
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}

	if err := protocol.SanitizeRequest(req); err != nil {
		return fmt.Errorf("%w: %w", ErrSendFailed, err)
	}

	line, err := req.Encode()
	if err != nil {
		return fmt.Errorf("%w: encode: %w", ErrSendFailed, err)
	}

	deadline := time.Now().Add(defaultWriteTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	conn := c.currentConn()
	if conn == nil {
		return ErrNotConnected
	}

	if err := conn.SetWriteDeadline(deadline); err != nil {
		return fmt.Errorf("%w: set deadline: %w", ErrSendFailed, err)
	}

	select {
	case <-ctx.Done():
		return fmt.Errorf("%w: %w", ErrSendFailed, ctx.Err())
	default:
	}

	if _, err := conn.Write(line); err != nil {
		c.errorsTotal.Add(1)
		return fmt.Errorf("%w: write: %w", ErrSendFailed, err)
	}

	// lastActivity tracks inbound traffic only: counting our own writes
	// would let heartbeat pings reset the silence clock and mask a hub
	// that has stopped answering.
	c.messagesTx.Add(1)

	return nil
}

// SetOnMessage sets the callback for decoded inbound messages.
//
// The callback is invoked sequentially from a single dispatch goroutine,
// in arrival order. Panics in the callback are recovered and logged.
func (c *Client) SetOnMessage(callback func(*protocol.Message)) {
	c.callbackMu.Lock()
	c.onMessage = callback
	c.callbackMu.Unlock()
}

// SetOnDecodeError sets the callback invoked for each undecodable line
// or buffer overflow on the inbound stream. Used by the session layer to
// escalate persistent stream corruption.
func (c *Client) SetOnDecodeError(callback func(error)) {
	c.callbackMu.Lock()
	c.onDecodeError = callback
	c.callbackMu.Unlock()
}

// SetLogger sets the logger for this client.
func (c *Client) SetLogger(logger Logger) {
	c.loggerMu.Lock()
	c.logger = logger
	c.loggerMu.Unlock()
}

// IsConnected returns true if the session is established. An
// authenticating session counts: the socket is up and requests are
// accepted while the login confirmation is pending.
func (c *Client) IsConnected() bool {
	c.connMu.RLock()
	defer c.connMu.RUnlock()
	return c.state == StateReady || c.state == StateAuthenticating
}

// State returns the current connection state.
func (c *Client) State() State {
	c.connMu.RLock()
	defer c.connMu.RUnlock()
	return c.state
}

// Stats returns current operational statistics.
func (c *Client) Stats() Stats {
	return Stats{
		MessagesTx:      c.messagesTx.Load(),
		MessagesRx:      c.messagesRx.Load(),
		MessagesDropped: c.messagesDropped.Load(),
		MalformedTotal:  c.decoder.MalformedCount(),
		OverflowTotal:   c.decoder.OverflowCount(),
		ErrorsTotal:     c.errorsTotal.Load(),
		ReconnectsTotal: c.reconnectsTotal.Load(),
		LastActivity:    time.Unix(0, c.lastActivity.Load()),
		State:           c.State(),
	}
}

// logInfo logs an info message if logger is set.
func (c *Client) logInfo(msg string, keysAndValues ...any) {
	if l := c.getLogger(); l != nil {
		l.Info(msg, keysAndValues...)
	}
}

// logDebug logs a debug message if logger is set.
func (c *Client) logDebug(msg string, keysAndValues ...any) {
	if l := c.getLogger(); l != nil {
		l.Debug(msg, keysAndValues...)
	}
}

// logError logs an error message if logger is set.
func (c *Client) logError(msg string, err error) {
	if l := c.getLogger(); l != nil {
		l.Error(msg, "error", err)
	}
}

func (c *Client) getLogger() Logger {
	c.loggerMu.RLock()
	defer c.loggerMu.RUnlock()
	return c.logger
}
