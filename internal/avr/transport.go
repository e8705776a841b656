package avr

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"
)

const (
	defaultConnectTimeout = 5 * time.Second
	defaultWriteTimeout   = 2 * time.Second

	// maxReadBuffer bounds a single readUntil accumulation. If the
	// delimiter never arrives within this many bytes, the partial
	// buffer is returned rather than discarded.
	maxReadBuffer = 4096
)

// Transport is a delimiter-oriented byte-stream session to the receiver.
//
// Implementations must serialize all operations internally: the underlying
// session is a single ordered byte stream and concurrent writes or reads
// would corrupt framing.
type Transport interface {
	// Open establishes the connection. If a session is already open it
	// is closed first and a fresh one is established.
	Open(ctx context.Context) error

	// Close releases the connection. Safe to call when already closed.
	Close() error

	// Write sends all bytes before returning, or fails with a
	// connection error if the session is not open or the write errors.
	Write(data []byte) error

	// ReadUntil blocks until delim appears in the stream or timeout
	// elapses. Returns all bytes read including the delimiter. Bytes
	// accumulated before a timeout are retained for the next read.
	ReadUntil(delim byte, timeout time.Duration) ([]byte, error)

	// IsOpen reports whether a session is currently established.
	IsOpen() bool
}

// TransportConfig holds the connection parameters for a TelnetTransport.
type TransportConfig struct {
	// Host is the receiver's IP address or hostname.
	Host string

	// Port is the receiver's control port (typically 23).
	Port int

	// ConnectTimeout bounds connection establishment (default 5s).
	ConnectTimeout time.Duration

	// WriteTimeout bounds a single write (default 2s).
	WriteTimeout time.Duration
}

// TelnetTransport is a line-oriented TCP client for the receiver's
// telnet control interface.
//
// Thread Safety: all operations are mutually exclusive. A single mutex
// serializes Open, Close, Write and ReadUntil so that at most one
// operation is in flight on the session at a time.
type TelnetTransport struct {
	cfg TransportConfig
	log Logger

	mu      sync.Mutex
	conn    net.Conn
	pending []byte // bytes read past a timeout, consumed by the next ReadUntil
}

// Compile-time interface check.
var _ Transport = (*TelnetTransport)(nil)

// NewTelnetTransport creates a transport for the given receiver address.
// The connection is not opened until Open is called.
func NewTelnetTransport(cfg TransportConfig, log Logger) *TelnetTransport {
	if cfg.ConnectTimeout == 0 {
		cfg.ConnectTimeout = defaultConnectTimeout
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = defaultWriteTimeout
	}
	if log == nil {
		log = nopLogger{}
	}
	return &TelnetTransport{cfg: cfg, log: log}
}

// Open establishes the TCP connection within the configured timeout.
// An existing session is closed first.
func (t *TelnetTransport) Open(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.conn != nil {
		t.conn.Close()
		t.conn = nil
		t.pending = nil
	}

	address := net.JoinHostPort(t.cfg.Host, fmt.Sprintf("%d", t.cfg.Port))

	dialCtx, cancel := context.WithTimeout(ctx, t.cfg.ConnectTimeout)
	defer cancel()

	var dialer net.Dialer
	conn, err := dialer.DialContext(dialCtx, "tcp", address)
	if err != nil {
		return fmt.Errorf("%w: dial %s: %v", ErrConnectionFailed, address, err)
	}

	t.conn = conn
	t.log.Debug("transport opened", "address", address)
	return nil
}

// Close releases the connection. Close-time errors are swallowed; the
// session is considered closed regardless.
func (t *TelnetTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.conn == nil {
		return nil
	}

	if err := t.conn.Close(); err != nil {
		t.log.Debug("transport close error ignored", "error", err)
	}
	t.conn = nil
	t.pending = nil
	return nil
}

// IsOpen reports whether a session is established. It does not probe the
// peer; a half-dead connection is only detected on the next read or write.
func (t *TelnetTransport) IsOpen() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.conn != nil
}

// Write sends all bytes to the receiver within the write timeout.
func (t *TelnetTransport) Write(data []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.conn == nil {
		return ErrNotConnected
	}

	if err := t.conn.SetWriteDeadline(time.Now().Add(t.cfg.WriteTimeout)); err != nil {
		return fmt.Errorf("%w: set write deadline: %v", ErrConnectionClosed, err)
	}

	if _, err := t.conn.Write(data); err != nil {
		return fmt.Errorf("%w: write: %v", ErrConnectionClosed, err)
	}
	return nil
}

// ReadUntil reads bytes until delim appears or timeout elapses.
//
// Returns:
//   - The accumulated bytes including the delimiter on success.
//   - The partial buffer without error if maxReadBuffer is exceeded
//     before the delimiter arrives (already-read bytes are not lost).
//   - ErrTimeout if the deadline passes first; bytes read so far are
//     retained and prepended to the next ReadUntil call.
//   - ErrConnectionClosed if the peer closes or the socket errors.
func (t *TelnetTransport) ReadUntil(delim byte, timeout time.Duration) ([]byte, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.conn == nil {
		return nil, ErrNotConnected
	}

	buf := t.pending
	t.pending = nil

	// The pending buffer may already hold a complete line.
	if i := bytes.IndexByte(buf, delim); i >= 0 {
		t.pending = append([]byte(nil), buf[i+1:]...)
		return buf[:i+1], nil
	}

	deadline := time.Now().Add(timeout)
	if err := t.conn.SetReadDeadline(deadline); err != nil {
		return nil, fmt.Errorf("%w: set read deadline: %v", ErrConnectionClosed, err)
	}

	chunk := make([]byte, 256)
	for {
		n, err := t.conn.Read(chunk)
		if n > 0 {
			buf = append(buf, chunk[:n]...)
			if i := bytes.IndexByte(buf, delim); i >= 0 {
				t.pending = append([]byte(nil), buf[i+1:]...)
				return buf[:i+1], nil
			}
			if len(buf) >= maxReadBuffer {
				// Overrun without a delimiter: return what we have.
				t.log.Warn("read buffer overrun, returning partial", "bytes", len(buf))
				return buf, nil
			}
		}
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				t.pending = buf
				return nil, ErrTimeout
			}
			return nil, fmt.Errorf("%w: read: %v", ErrConnectionClosed, err)
		}
	}
}
