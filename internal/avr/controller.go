package avr

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Default controller timings. Overridable via Config.
const (
	defaultReadTimeout       = 2 * time.Second
	defaultMaxRetries        = 3
	defaultInitialRetryDelay = 500 * time.Millisecond
	defaultMaxRetryDelay     = 5 * time.Second
	defaultPollInterval      = 2 * time.Second

	// Poll burst timings: spacing between query writes, total drain
	// window for responses, and the per-read timeout within the drain.
	querySpacing     = 50 * time.Millisecond
	drainWindow      = 1 * time.Second
	drainReadTimeout = 200 * time.Millisecond

	// historyWriteTimeout bounds a single history insert so a slow
	// database never stalls response interpretation.
	historyWriteTimeout = 2 * time.Second
)

// stateQueries is the fixed burst issued by the poller and after each
// successful connect, in this order.
var stateQueries = []string{"MV?", "MU?", "PW?", "SI?"}

// Config holds the controller's connection and polling parameters.
type Config struct {
	// Host is the receiver's IP address or hostname.
	Host string

	// Port is the receiver's telnet control port (default 23).
	Port int

	// ConnectTimeout bounds a single connection attempt (default 5s).
	ConnectTimeout time.Duration

	// ReadTimeout is the window for opportunistic response reads
	// after a command send (default 2s).
	ReadTimeout time.Duration

	// MaxRetries is the number of additional connection attempts after
	// the first failure (default 3; 0 disables retries).
	MaxRetries int

	// InitialRetryDelay seeds the exponential backoff (default 500ms).
	InitialRetryDelay time.Duration

	// MaxRetryDelay caps the backoff (default 5s).
	MaxRetryDelay time.Duration

	// PollInterval is the cadence of the background state poller
	// (default 2s).
	PollInterval time.Duration

	// Simulate replaces all device I/O with local state mutation,
	// for development without hardware.
	Simulate bool
}

func (cfg *Config) applyDefaults() {
	if cfg.Port == 0 {
		cfg.Port = 23
	}
	if cfg.ConnectTimeout == 0 {
		cfg.ConnectTimeout = defaultConnectTimeout
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = defaultReadTimeout
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.InitialRetryDelay == 0 {
		cfg.InitialRetryDelay = defaultInitialRetryDelay
	}
	if cfg.MaxRetryDelay == 0 {
		cfg.MaxRetryDelay = defaultMaxRetryDelay
	}
	if cfg.PollInterval == 0 {
		cfg.PollInterval = defaultPollInterval
	}
}

// StateListener receives receiver state snapshots after each update.
//
// Implementations must not retain the snapshot's pointer fields beyond
// the call; each listener receives its own deep copy. A listener whose
// OnStateChanged returns an error is removed from future notifications.
type StateListener interface {
	OnStateChanged(state State) error
}

// Stats holds controller counters for health endpoints and diagnostics.
type Stats struct {
	CommandsSent      uint64 `json:"commands_sent"`
	ResponsesReceived uint64 `json:"responses_received"`
	Connects          uint64 `json:"connects"`
	Errors            uint64 `json:"errors"`
	Connected         bool   `json:"connected"`
	RetryCount        int    `json:"retry_count"`
	LastError         string `json:"last_error,omitempty"`
}

// Controller maintains a single live session to the receiver and keeps
// a reconciled state snapshot derived from its responses.
//
// It owns the connection lifecycle (bounded exponential backoff on
// connect, forced disconnect on any send/read failure), command
// execution with a one-shot reconnect-and-resend cycle, a background
// poller that re-queries receiver state, and fan-out of state snapshots
// to registered listeners.
//
// Thread Safety: all exported methods are safe for concurrent use. The
// state lock is never held across transport I/O.
type Controller struct {
	cfg       Config
	transport Transport
	log       Logger

	// connectMu serializes connection attempts so a reconnecting
	// command path and an explicit Connect never race.
	connectMu sync.Mutex

	mu        sync.RWMutex // guards state, connected, lastError, retryCount
	state     State
	connected bool
	lastError string
	retryCount int

	listenerMu sync.Mutex
	listeners  []StateListener

	pollMu     sync.Mutex
	pollCancel context.CancelFunc
	pollDone   chan struct{}

	history StateHistoryRepository

	eventMu           sync.RWMutex
	onConnectionEvent func(event string, attempts int)

	commandsSent      atomic.Uint64
	responsesReceived atomic.Uint64
	connects          atomic.Uint64
	errorsTotal       atomic.Uint64
}

// NewController creates a controller for the receiver described by cfg.
// If transport is nil, a TelnetTransport is built from the config. Pass
// a custom Transport for testing or alternative link types.
func NewController(cfg Config, transport Transport, log Logger) *Controller {
	cfg.applyDefaults()
	if log == nil {
		log = nopLogger{}
	}
	if transport == nil {
		transport = NewTelnetTransport(TransportConfig{
			Host:           cfg.Host,
			Port:           cfg.Port,
			ConnectTimeout: cfg.ConnectTimeout,
		}, log)
	}
	return &Controller{
		cfg:       cfg,
		transport: transport,
		log:       log,
	}
}

// SetHistory registers a repository that receives a snapshot after each
// material state change. Must be called before Connect.
func (c *Controller) SetHistory(repo StateHistoryRepository) {
	c.history = repo
}

// SetOnConnectionEvent registers a callback for connection lifecycle
// events (connected, disconnected, connection_lost, connect_failed).
// Used to feed telemetry; the callback must not block.
func (c *Controller) SetOnConnectionEvent(fn func(event string, attempts int)) {
	c.eventMu.Lock()
	c.onConnectionEvent = fn
	c.eventMu.Unlock()
}

// =============================================================================
// Connection lifecycle
// =============================================================================

// Connect establishes the session to the receiver.
//
// With retry set, failed attempts are repeated with exponential backoff
// (delay before attempt i+1 is min(initial*2^i, max)) up to MaxRetries
// additional attempts. On success the retry state is reset, the
// background poller starts, and an initial state query burst is issued.
//
// In simulation mode no transport is opened; the controller transitions
// straight to connected and starts the poller.
func (c *Controller) Connect(ctx context.Context, retry bool) error {
	c.connectMu.Lock()
	defer c.connectMu.Unlock()

	if c.IsConnected() {
		return nil
	}

	if c.cfg.Simulate {
		c.mu.Lock()
		c.connected = true
		c.retryCount = 0
		c.lastError = ""
		c.mu.Unlock()

		c.connects.Add(1)
		c.startPoller()
		c.log.Info("simulation mode active, no transport opened")
		c.emitConnectionEvent("connected", 1)
		return nil
	}

	attempts := 1
	if retry {
		attempts = c.cfg.MaxRetries + 1
	}

	var lastErr error
	for i := 0; i < attempts; i++ {
		if i > 0 {
			delay := backoffDelay(c.cfg.InitialRetryDelay, c.cfg.MaxRetryDelay, i-1)
			c.log.Info("retrying connection", "attempt", i+1, "delay", delay.String())
			select {
			case <-ctx.Done():
				return fmt.Errorf("%w: %v", ErrConnectionFailed, ctx.Err())
			case <-time.After(delay):
			}
		}

		c.mu.Lock()
		c.retryCount = i + 1
		c.mu.Unlock()

		err := c.transport.Open(ctx)
		if err == nil {
			c.mu.Lock()
			c.connected = true
			c.retryCount = 0
			c.lastError = ""
			c.mu.Unlock()

			c.connects.Add(1)
			c.log.Info("connected to receiver", "host", c.cfg.Host, "port", c.cfg.Port, "attempts", i+1)
			c.emitConnectionEvent("connected", i+1)
			c.startPoller()
			c.queryStateBurst(ctx)
			return nil
		}

		lastErr = err
		c.errorsTotal.Add(1)
		c.mu.Lock()
		c.lastError = err.Error()
		c.mu.Unlock()
		c.log.Warn("connection attempt failed", "attempt", i+1, "error", err)
	}

	c.emitConnectionEvent("connect_failed", attempts)
	return fmt.Errorf("%w after %d attempts: %v", ErrConnectionFailed, attempts, lastErr)
}

// Disconnect stops the poller, waits for it to terminate, then closes
// the transport. The controller always ends disconnected, even if the
// underlying close errors. Holding connectMu means a Disconnect racing
// a concurrent Connect cannot stop the poller before that Connect
// starts it.
func (c *Controller) Disconnect() {
	c.connectMu.Lock()
	defer c.connectMu.Unlock()

	c.stopPoller()

	if !c.cfg.Simulate {
		c.transport.Close()
	}

	c.mu.Lock()
	wasConnected := c.connected
	c.connected = false
	c.mu.Unlock()

	if wasConnected {
		c.log.Info("disconnected from receiver")
		c.emitConnectionEvent("disconnected", 0)
	}
}

// IsConnected reports connection status. Never blocks.
func (c *Controller) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}

// LastError returns the most recent connection error message, empty if
// the last attempt succeeded.
func (c *Controller) LastError() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastError
}

// RetryCount returns the attempt counter of the current or most recent
// failed connect sequence. Reset to zero on success.
func (c *Controller) RetryCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.retryCount
}

// Stats returns a snapshot of the controller counters.
func (c *Controller) Stats() Stats {
	c.mu.RLock()
	connected := c.connected
	retryCount := c.retryCount
	lastError := c.lastError
	c.mu.RUnlock()

	return Stats{
		CommandsSent:      c.commandsSent.Load(),
		ResponsesReceived: c.responsesReceived.Load(),
		Connects:          c.connects.Load(),
		Errors:            c.errorsTotal.Load(),
		Connected:         connected,
		RetryCount:        retryCount,
		LastError:         lastError,
	}
}

// markDisconnected records a connection failure and discards the
// session. It does not stop the poller: the poller may be the caller,
// and it idles on its own once IsConnected reports false.
func (c *Controller) markDisconnected(err error) {
	c.mu.Lock()
	wasConnected := c.connected
	c.connected = false
	c.lastError = err.Error()
	c.mu.Unlock()

	c.transport.Close()
	c.errorsTotal.Add(1)

	if wasConnected {
		c.log.Warn("connection lost", "error", err)
		c.emitConnectionEvent("connection_lost", 0)
	}
}

// backoffDelay returns min(initial * 2^exp, max).
func backoffDelay(initial, max time.Duration, exp int) time.Duration {
	delay := initial
	for i := 0; i < exp; i++ {
		delay *= 2
		if delay >= max {
			return max
		}
	}
	if delay > max {
		return max
	}
	return delay
}

func (c *Controller) emitConnectionEvent(event string, attempts int) {
	c.eventMu.RLock()
	fn := c.onConnectionEvent
	c.eventMu.RUnlock()
	if fn != nil {
		fn(event, attempts)
	}
}

// =============================================================================
// Command execution
// =============================================================================

// SendCommand writes a single command token to the receiver, then makes
// one opportunistic short read to pick up any immediate response.
//
// If not connected, it first attempts to connect (with retries when
// retryOnFailure is set). A write failure forces a disconnect; with
// retryOnFailure set, one reconnect-and-resend cycle is attempted
// before giving up. In simulation mode the command mutates local state
// and no I/O occurs.
//
// State changes observed in the follow-up read are recorded in history
// with the command source.
func (c *Controller) SendCommand(ctx context.Context, command string, retryOnFailure bool) error {
	return c.sendCommand(ctx, command, retryOnFailure, HistorySourceCommand)
}

func (c *Controller) sendCommand(ctx context.Context, command string, retryOnFailure bool, source string) error {
	if err := c.sendOne(ctx, command, retryOnFailure); err != nil {
		return err
	}
	if c.cfg.Simulate {
		return nil
	}

	// Best-effort response pickup; a timeout here is not a failure.
	if _, err := c.readResponse(c.cfg.ReadTimeout, source); err != nil && !errors.Is(err, ErrNotConnected) {
		c.log.Debug("opportunistic read failed", "command", command, "error", err)
	}
	return nil
}

// SendAndWait sends a newline-separated command sequence one token at a
// time. Blank segments are dropped. After each successful send it waits
// waitTime, then reads one response.
//
// If any individual send fails the sequence stops immediately and the
// failure is returned; remaining tokens are never attempted.
//
// Returns the collected non-empty responses joined with "; ", or
// "Commands sent" if nothing was read back. State changes observed in
// the reads are recorded in history with the command source.
func (c *Controller) SendAndWait(ctx context.Context, command string, waitTime time.Duration) (string, error) {
	return c.sendAndWait(ctx, command, waitTime, HistorySourceCommand)
}

// SendAndWaitFrom is SendAndWait with an explicit history source, for
// callers relaying commands from another transport. The MQTT bridge
// passes HistorySourceMQTT so history rows identify the origin.
func (c *Controller) SendAndWaitFrom(ctx context.Context, command string, waitTime time.Duration, source string) (string, error) {
	return c.sendAndWait(ctx, command, waitTime, source)
}

func (c *Controller) sendAndWait(ctx context.Context, command string, waitTime time.Duration, source string) (string, error) {
	var responses []string

	for _, part := range strings.Split(command, "\n") {
		cmd := strings.TrimSpace(part)
		if cmd == "" {
			continue
		}

		if err := c.sendOne(ctx, cmd, true); err != nil {
			return "", err
		}

		if waitTime > 0 {
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(waitTime):
			}
		}

		if resp, err := c.readResponse(c.cfg.ReadTimeout, source); err == nil && resp != "" {
			responses = append(responses, resp)
		}
	}

	if len(responses) == 0 {
		return "Commands sent", nil
	}
	return strings.Join(responses, "; "), nil
}

// ReadResponse reads one response token from the receiver, feeds it
// through the interpreter to update state, and returns it.
//
// A read timeout is the normal "no unsolicited data" outcome and yields
// ("", nil), never an error. In simulation mode a fixed placeholder is
// returned without touching state. State changes are recorded in
// history with the response source.
func (c *Controller) ReadResponse(timeout time.Duration) (string, error) {
	return c.readResponse(timeout, HistorySourceResponse)
}

func (c *Controller) readResponse(timeout time.Duration, source string) (string, error) {
	if !c.IsConnected() {
		return "", ErrNotConnected
	}
	if c.cfg.Simulate {
		return simulatedResponse, nil
	}

	data, err := c.transport.ReadUntil('\r', timeout)
	if err != nil {
		if errors.Is(err, ErrTimeout) {
			return "", nil
		}
		c.markDisconnected(err)
		return "", err
	}

	token := strings.TrimSpace(string(data))
	if token == "" {
		return "", nil
	}

	c.responsesReceived.Add(1)
	c.applyToken(token, source)
	return token, nil
}

// sendOne ensures a connection, then writes one command token with the
// protocol's carriage-return terminator. No response read is attempted.
func (c *Controller) sendOne(ctx context.Context, command string, retryOnFailure bool) error {
	if !c.IsConnected() {
		if err := c.Connect(ctx, retryOnFailure); err != nil {
			return fmt.Errorf("%w: %s", ErrNotConnected, c.LastError())
		}
	}

	if c.cfg.Simulate {
		c.applySimulated(command)
		c.commandsSent.Add(1)
		return nil
	}

	err := c.transport.Write([]byte(command + "\r"))
	if err != nil {
		c.markDisconnected(err)
		if !retryOnFailure {
			return fmt.Errorf("%w: %v", ErrSendFailed, err)
		}

		// One reconnect-and-resend cycle, never recursive.
		if cerr := c.Connect(ctx, true); cerr != nil {
			return fmt.Errorf("%w: %s", ErrNotConnected, c.LastError())
		}
		if err := c.transport.Write([]byte(command + "\r")); err != nil {
			c.markDisconnected(err)
			return fmt.Errorf("%w: %v", ErrSendFailed, err)
		}
	}

	c.commandsSent.Add(1)
	return nil
}

// =============================================================================
// State access and interpretation
// =============================================================================

// GetState returns a deep copy of the current state snapshot.
func (c *Controller) GetState() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state.Clone()
}

// applyToken interprets a response token under the state lock, then
// notifies listeners and records history outside it.
func (c *Controller) applyToken(token, source string) {
	c.mu.Lock()
	before := c.state.Clone()
	matched := Apply(&c.state, token)
	var snapshot State
	changed := false
	if matched {
		c.state.LastUpdated = time.Now().UTC()
		snapshot = c.state.Clone()
		changed = !snapshot.Equal(before)
	}
	c.mu.Unlock()

	if !matched {
		return
	}

	c.notifyListeners(snapshot)
	if changed {
		c.recordHistory(snapshot, source)
	}
}

// applySimulated mutates local state for a command in simulation mode.
func (c *Controller) applySimulated(command string) {
	c.mu.Lock()
	before := c.state.Clone()
	matched := simulateCommand(&c.state, command)
	var snapshot State
	changed := false
	if matched {
		c.state.LastUpdated = time.Now().UTC()
		snapshot = c.state.Clone()
		changed = !snapshot.Equal(before)
	}
	c.mu.Unlock()

	if !matched {
		return
	}

	c.notifyListeners(snapshot)
	if changed {
		c.recordHistory(snapshot, HistorySourceSimulation)
	}
}

func (c *Controller) recordHistory(snapshot State, source string) {
	if c.history == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), historyWriteTimeout)
	defer cancel()

	if err := c.history.RecordStateChange(ctx, snapshot, source); err != nil {
		c.log.Warn("state history write failed", "error", err)
	}
}

// =============================================================================
// Listener fan-out
// =============================================================================

// Subscribe registers a listener for state snapshots.
func (c *Controller) Subscribe(l StateListener) {
	c.listenerMu.Lock()
	defer c.listenerMu.Unlock()
	c.listeners = append(c.listeners, l)
}

// Unsubscribe removes a previously registered listener. No-op if the
// listener is not registered.
func (c *Controller) Unsubscribe(l StateListener) {
	c.listenerMu.Lock()
	defer c.listenerMu.Unlock()
	c.listeners = removeListener(c.listeners, l)
}

// notifyListeners delivers the snapshot to every listener. Iteration
// runs over a copy of the registry, so listeners may subscribe or
// unsubscribe during delivery. A listener that returns an error is
// removed after the full pass; its failure never aborts delivery to
// the others.
func (c *Controller) notifyListeners(snapshot State) {
	c.listenerMu.Lock()
	current := make([]StateListener, len(c.listeners))
	copy(current, c.listeners)
	c.listenerMu.Unlock()

	var failed []StateListener
	for _, l := range current {
		if err := l.OnStateChanged(snapshot.Clone()); err != nil {
			c.log.Warn("state listener failed, removing", "error", err)
			failed = append(failed, l)
		}
	}

	if len(failed) == 0 {
		return
	}

	c.listenerMu.Lock()
	for _, l := range failed {
		c.listeners = removeListener(c.listeners, l)
	}
	c.listenerMu.Unlock()
}

func removeListener(list []StateListener, target StateListener) []StateListener {
	for i, l := range list {
		if l == target {
			return append(list[:i], list[i+1:]...)
		}
	}
	return list
}

// =============================================================================
// Background poller
// =============================================================================

// startPoller launches the background state poller. No-op if one is
// already running.
func (c *Controller) startPoller() {
	c.pollMu.Lock()
	defer c.pollMu.Unlock()

	if c.pollCancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	c.pollCancel = cancel
	c.pollDone = done

	go c.pollLoop(ctx, done)
	c.log.Debug("state poller started", "interval", c.cfg.PollInterval.String())
}

// stopPoller cancels the poller and waits for it to terminate. The
// poller issues no further writes once stopPoller returns.
func (c *Controller) stopPoller() {
	c.pollMu.Lock()
	cancel := c.pollCancel
	done := c.pollDone
	c.pollCancel = nil
	c.pollDone = nil
	c.pollMu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
	c.log.Debug("state poller stopped")
}

func (c *Controller) pollLoop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(c.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if c.IsConnected() {
				c.queryStateBurst(ctx)
			}
		}
	}
}

// queryStateBurst writes the fixed query burst, then drains responses
// arriving within the drain window. Draining stops early once a read
// times out with nothing pending. Cancellation is honoured between
// every write and read.
func (c *Controller) queryStateBurst(ctx context.Context) {
	if c.cfg.Simulate {
		return
	}

	for _, q := range stateQueries {
		if ctx.Err() != nil || !c.IsConnected() {
			return
		}
		if err := c.transport.Write([]byte(q + "\r")); err != nil {
			c.markDisconnected(err)
			return
		}
		c.commandsSent.Add(1)

		select {
		case <-ctx.Done():
			return
		case <-time.After(querySpacing):
		}
	}

	deadline := time.Now().Add(drainWindow)
	for time.Now().Before(deadline) {
		if ctx.Err() != nil || !c.IsConnected() {
			return
		}
		resp, err := c.ReadResponse(drainReadTimeout)
		if err != nil || resp == "" {
			return
		}
	}
}
