package avr

import (
	"context"
	"errors"
	"net"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"
)

// fakeReceiver is a loopback TCP server standing in for the AVR's
// telnet interface. It records received lines and serves scripted
// responses.
type fakeReceiver struct {
	listener net.Listener

	mu       sync.Mutex
	received []string
	conn     net.Conn
}

func newFakeReceiver(t *testing.T) *fakeReceiver {
	t.Helper()

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	r := &fakeReceiver{listener: listener}
	t.Cleanup(func() { r.close() })

	go r.acceptLoop()
	return r
}

func (r *fakeReceiver) acceptLoop() {
	for {
		conn, err := r.listener.Accept()
		if err != nil {
			return
		}
		r.mu.Lock()
		r.conn = conn
		r.mu.Unlock()
		go r.readLoop(conn)
	}
}

func (r *fakeReceiver) readLoop(conn net.Conn) {
	buf := make([]byte, 256)
	var line []byte
	for {
		n, err := conn.Read(buf)
		if err != nil {
			return
		}
		for _, b := range buf[:n] {
			if b == '\r' {
				r.mu.Lock()
				r.received = append(r.received, string(line))
				r.mu.Unlock()
				line = nil
				continue
			}
			line = append(line, b)
		}
	}
}

// send writes raw bytes to the connected client.
func (r *fakeReceiver) send(t *testing.T, data string) {
	t.Helper()

	// The connection is established asynchronously by acceptLoop.
	deadline := time.Now().Add(2 * time.Second)
	for {
		r.mu.Lock()
		conn := r.conn
		r.mu.Unlock()
		if conn != nil {
			if _, err := conn.Write([]byte(data)); err != nil {
				t.Fatalf("fake receiver write: %v", err)
			}
			return
		}
		if time.Now().After(deadline) {
			t.Fatal("fake receiver: no client connected")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func (r *fakeReceiver) receivedLines() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.received))
	copy(out, r.received)
	return out
}

func (r *fakeReceiver) port() int {
	addr := r.listener.Addr().String()
	_, portStr, _ := net.SplitHostPort(addr)
	port, _ := strconv.Atoi(portStr)
	return port
}

func (r *fakeReceiver) close() {
	r.listener.Close()
	r.mu.Lock()
	if r.conn != nil {
		r.conn.Close()
	}
	r.mu.Unlock()
}

func newTestTransport(t *testing.T, r *fakeReceiver) *TelnetTransport {
	t.Helper()
	tr := NewTelnetTransport(TransportConfig{
		Host:           "127.0.0.1",
		Port:           r.port(),
		ConnectTimeout: 2 * time.Second,
	}, nil)
	t.Cleanup(func() { tr.Close() })
	return tr
}

func TestTransportOpenClose(t *testing.T) {
	r := newFakeReceiver(t)
	tr := newTestTransport(t, r)

	if tr.IsOpen() {
		t.Error("IsOpen() = true before Open()")
	}

	if err := tr.Open(context.Background()); err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if !tr.IsOpen() {
		t.Error("IsOpen() = false after Open()")
	}

	if err := tr.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
	if tr.IsOpen() {
		t.Error("IsOpen() = true after Close()")
	}

	// Close is a no-op when already closed.
	if err := tr.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
}

func TestTransportOpenRefused(t *testing.T) {
	tr := NewTelnetTransport(TransportConfig{
		Host:           "127.0.0.1",
		Port:           1, // Nothing listening here
		ConnectTimeout: 500 * time.Millisecond,
	}, nil)

	err := tr.Open(context.Background())
	if err == nil {
		t.Fatal("Open() expected error for refused connection")
	}
	if !errors.Is(err, ErrConnectionFailed) {
		t.Errorf("Open() error = %v, want ErrConnectionFailed", err)
	}
}

func TestTransportWriteNotOpen(t *testing.T) {
	r := newFakeReceiver(t)
	tr := newTestTransport(t, r)

	err := tr.Write([]byte("PWON\r"))
	if !errors.Is(err, ErrNotConnected) {
		t.Errorf("Write() error = %v, want ErrNotConnected", err)
	}
}

func TestTransportWriteReadRoundtrip(t *testing.T) {
	r := newFakeReceiver(t)
	tr := newTestTransport(t, r)

	if err := tr.Open(context.Background()); err != nil {
		t.Fatalf("Open() error = %v", err)
	}

	if err := tr.Write([]byte("MV?\r")); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	r.send(t, "MV45\r")

	data, err := tr.ReadUntil('\r', 2*time.Second)
	if err != nil {
		t.Fatalf("ReadUntil() error = %v", err)
	}
	if string(data) != "MV45\r" {
		t.Errorf("ReadUntil() = %q, want %q", data, "MV45\r")
	}

	// The receiver saw the command without its terminator.
	deadline := time.Now().Add(time.Second)
	for len(r.receivedLines()) == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	lines := r.receivedLines()
	if len(lines) != 1 || lines[0] != "MV?" {
		t.Errorf("receiver got %v, want [MV?]", lines)
	}
}

func TestTransportReadTimeout(t *testing.T) {
	r := newFakeReceiver(t)
	tr := newTestTransport(t, r)

	if err := tr.Open(context.Background()); err != nil {
		t.Fatalf("Open() error = %v", err)
	}

	_, err := tr.ReadUntil('\r', 100*time.Millisecond)
	if !errors.Is(err, ErrTimeout) {
		t.Errorf("ReadUntil() error = %v, want ErrTimeout", err)
	}
}

func TestTransportPartialRetainedAcrossTimeout(t *testing.T) {
	r := newFakeReceiver(t)
	tr := newTestTransport(t, r)

	if err := tr.Open(context.Background()); err != nil {
		t.Fatalf("Open() error = %v", err)
	}

	// Half a line arrives, then a timeout, then the rest.
	r.send(t, "MV4")
	time.Sleep(50 * time.Millisecond)

	if _, err := tr.ReadUntil('\r', 100*time.Millisecond); !errors.Is(err, ErrTimeout) {
		t.Fatalf("ReadUntil() error = %v, want ErrTimeout", err)
	}

	r.send(t, "5\r")

	data, err := tr.ReadUntil('\r', 2*time.Second)
	if err != nil {
		t.Fatalf("ReadUntil() after partial error = %v", err)
	}
	if string(data) != "MV45\r" {
		t.Errorf("ReadUntil() = %q, want %q (partial bytes lost)", data, "MV45\r")
	}
}

func TestTransportReadSplitsOnDelimiter(t *testing.T) {
	r := newFakeReceiver(t)
	tr := newTestTransport(t, r)

	if err := tr.Open(context.Background()); err != nil {
		t.Fatalf("Open() error = %v", err)
	}

	// Two responses arrive in one TCP segment; each read returns one.
	r.send(t, "PWON\rMV45\r")

	first, err := tr.ReadUntil('\r', 2*time.Second)
	if err != nil {
		t.Fatalf("first ReadUntil() error = %v", err)
	}
	second, err := tr.ReadUntil('\r', 2*time.Second)
	if err != nil {
		t.Fatalf("second ReadUntil() error = %v", err)
	}

	if string(first) != "PWON\r" || string(second) != "MV45\r" {
		t.Errorf("reads = %q, %q; want PWON\\r, MV45\\r", first, second)
	}
}

func TestTransportPeerClose(t *testing.T) {
	r := newFakeReceiver(t)
	tr := newTestTransport(t, r)

	if err := tr.Open(context.Background()); err != nil {
		t.Fatalf("Open() error = %v", err)
	}

	r.close()

	_, err := tr.ReadUntil('\r', 2*time.Second)
	if !errors.Is(err, ErrConnectionClosed) {
		t.Errorf("ReadUntil() error = %v, want ErrConnectionClosed", err)
	}
}

func TestTransportOverrunReturnsPartial(t *testing.T) {
	r := newFakeReceiver(t)
	tr := newTestTransport(t, r)

	if err := tr.Open(context.Background()); err != nil {
		t.Fatalf("Open() error = %v", err)
	}

	// More than maxReadBuffer bytes without a delimiter.
	r.send(t, strings.Repeat("A", maxReadBuffer+512))

	data, err := tr.ReadUntil('\r', 2*time.Second)
	if err != nil {
		t.Fatalf("ReadUntil() error = %v", err)
	}
	if len(data) < maxReadBuffer {
		t.Errorf("ReadUntil() returned %d bytes, want at least %d", len(data), maxReadBuffer)
	}
}

func TestTransportReopenReplacesSession(t *testing.T) {
	r := newFakeReceiver(t)
	tr := newTestTransport(t, r)

	if err := tr.Open(context.Background()); err != nil {
		t.Fatalf("first Open() error = %v", err)
	}
	if err := tr.Open(context.Background()); err != nil {
		t.Fatalf("second Open() error = %v", err)
	}
	if !tr.IsOpen() {
		t.Error("IsOpen() = false after reopen")
	}
}
