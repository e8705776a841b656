package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/discoavr-core/internal/avr"
	"github.com/nerrad567/discoavr-core/internal/infrastructure/config"
	"github.com/nerrad567/discoavr-core/internal/infrastructure/logging"
)

const testAdminPassword = "correct-horse-battery"

// testServer creates a Server backed by a simulation-mode controller.
// No real receiver or network connection is involved.
func testServer(t *testing.T) (*Server, *avr.Controller) {
	t.Helper()

	log := logging.New(config.LoggingConfig{Level: "error", Format: "text", Output: "stdout"}, "test")

	controller := avr.NewController(avr.Config{
		Host:         "127.0.0.1",
		Simulate:     true,
		PollInterval: time.Hour,
	}, nil, log)
	t.Cleanup(controller.Disconnect)

	srv, err := New(Deps{
		Config: config.APIConfig{
			Host: "127.0.0.1",
			Port: 0,
			Timeouts: config.APITimeoutConfig{
				Read:  5,
				Write: 5,
				Idle:  5,
			},
		},
		WS: config.WebSocketConfig{
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		Security: config.SecurityConfig{
			JWT: config.JWTConfig{
				Secret:         "test-secret-key-at-least-32-characters-long",
				AccessTokenTTL: 15,
			},
			AdminPassword: testAdminPassword,
		},
		Logger:     log,
		Controller: controller,
		Version:    "test",
	})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	// Initialise hub for tests
	srv.hub = NewHub(srv.wsCfg, log)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go srv.hub.Run(ctx)

	return srv, controller
}

// loginToken obtains a valid access token through the login endpoint.
func loginToken(t *testing.T, router http.Handler) string {
	t.Helper()

	body := `{"username": "admin", "password": "` + testAdminPassword + `"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", strings.NewReader(body))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("login status = %d, want %d; body: %s", w.Code, http.StatusOK, w.Body.String())
	}

	var resp loginResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal login response: %v", err)
	}
	return resp.AccessToken
}

// authedRequest builds a request carrying a Bearer token.
func authedRequest(method, target, token string, body string) *http.Request {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	return req
}

// ─── Health Endpoint Tests ─────────────────────────────────────────

func TestHealth(t *testing.T) {
	srv, _ := testServer(t)
	router := srv.buildRouter()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("health status = %d, want %d", w.Code, http.StatusOK)
	}

	var resp map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	if resp["status"] != "ok" {
		t.Errorf("status = %v, want ok", resp["status"])
	}
	if resp["version"] != "test" {
		t.Errorf("version = %v, want test", resp["version"])
	}
	if resp["connected"] != false {
		t.Errorf("connected = %v, want false", resp["connected"])
	}
}

func TestHealth_ContentType(t *testing.T) {
	srv, _ := testServer(t)
	router := srv.buildRouter()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	ct := w.Header().Get("Content-Type")
	if ct != "application/json" {
		t.Errorf("Content-Type = %q, want %q", ct, "application/json")
	}
}

// ─── Middleware Tests ──────────────────────────────────────────────

func TestRequestID_Generated(t *testing.T) {
	srv, _ := testServer(t)
	router := srv.buildRouter()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Header().Get("X-Request-ID") == "" {
		t.Error("expected X-Request-ID header to be set")
	}
}

func TestRequestID_PreservesClient(t *testing.T) {
	srv, _ := testServer(t)
	router := srv.buildRouter()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	req.Header.Set("X-Request-ID", "client-123")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if got := w.Header().Get("X-Request-ID"); got != "client-123" {
		t.Errorf("X-Request-ID = %q, want %q", got, "client-123")
	}
}

func TestCORS_Preflight(t *testing.T) {
	srv, _ := testServer(t)
	router := srv.buildRouter()

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/health", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusNoContent {
		t.Errorf("preflight status = %d, want %d", w.Code, http.StatusNoContent)
	}

	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:3000" {
		t.Errorf("ACAO = %q, want %q", got, "http://localhost:3000")
	}
}

func TestNotFound(t *testing.T) {
	srv, _ := testServer(t)
	router := srv.buildRouter()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/nonexistent", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("unknown route status = %d, want %d", w.Code, http.StatusNotFound)
	}
}

// ─── Auth Tests ────────────────────────────────────────────────────

func TestLogin_Success(t *testing.T) {
	srv, _ := testServer(t)
	router := srv.buildRouter()

	body := `{"username": "admin", "password": "` + testAdminPassword + `"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", strings.NewReader(body))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("login status = %d, want %d; body: %s", w.Code, http.StatusOK, w.Body.String())
	}

	var resp loginResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	if resp.AccessToken == "" {
		t.Error("expected access_token to be non-empty")
	}
	if resp.TokenType != "Bearer" {
		t.Errorf("token_type = %q, want Bearer", resp.TokenType)
	}
}

func TestLogin_InvalidCredentials(t *testing.T) {
	srv, _ := testServer(t)
	router := srv.buildRouter()

	body := `{"username": "admin", "password": "wrong"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", strings.NewReader(body))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", w.Code, http.StatusUnauthorized)
	}
}

func TestProtectedRoute_NoToken(t *testing.T) {
	srv, _ := testServer(t)
	router := srv.buildRouter()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/avr/status", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", w.Code, http.StatusUnauthorized)
	}
}

func TestProtectedRoute_BadToken(t *testing.T) {
	srv, _ := testServer(t)
	router := srv.buildRouter()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/avr/status", nil)
	req.Header.Set("Authorization", "Bearer not-a-real-token")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", w.Code, http.StatusUnauthorized)
	}
}

func TestWSTicket_SingleUse(t *testing.T) {
	srv, _ := testServer(t)
	router := srv.buildRouter()
	token := loginToken(t, router)

	req := authedRequest(http.MethodPost, "/api/v1/auth/ws-ticket", token, "")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}

	var resp map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	ticket, ok := resp["ticket"].(string)
	if !ok || ticket == "" {
		t.Fatal("expected ticket to be a non-empty string")
	}

	// Ticket should be valid once
	if !srv.tickets.validate(ticket) {
		t.Error("ticket should be valid on first use")
	}

	// Ticket should be consumed (single-use)
	if srv.tickets.validate(ticket) {
		t.Error("ticket should not be valid on second use")
	}
}

func TestWSTicket_Expiry(t *testing.T) {
	ts := newTicketStore()
	ticket := ts.issue()

	ts.mu.Lock()
	ts.tickets[ticket] = time.Now().Add(-1 * time.Second)
	ts.mu.Unlock()

	if ts.validate(ticket) {
		t.Error("expired ticket should not be valid")
	}
}

func TestTicketStore_Clean(t *testing.T) {
	ts := newTicketStore()
	expired := ts.issue()
	live := ts.issue()

	ts.mu.Lock()
	ts.tickets[expired] = time.Now().Add(-1 * time.Second)
	ts.mu.Unlock()

	ts.clean()

	ts.mu.Lock()
	_, expiredPresent := ts.tickets[expired]
	_, livePresent := ts.tickets[live]
	ts.mu.Unlock()

	if expiredPresent {
		t.Error("expired ticket should have been removed")
	}
	if !livePresent {
		t.Error("live ticket should have been kept")
	}
}

// ─── Receiver Endpoint Tests ───────────────────────────────────────

func TestStatus_Disconnected(t *testing.T) {
	srv, _ := testServer(t)
	router := srv.buildRouter()
	token := loginToken(t, router)

	req := authedRequest(http.MethodGet, "/api/v1/avr/status", token, "")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}

	var resp statusResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	if resp.Connected {
		t.Error("expected connected = false before connect")
	}
}

func TestConnectAndDisconnect(t *testing.T) {
	srv, controller := testServer(t)
	router := srv.buildRouter()
	token := loginToken(t, router)

	req := authedRequest(http.MethodPost, "/api/v1/avr/connect", token, "")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("connect status = %d, want %d; body: %s", w.Code, http.StatusOK, w.Body.String())
	}
	if !controller.IsConnected() {
		t.Error("controller should be connected after connect")
	}

	req = authedRequest(http.MethodPost, "/api/v1/avr/disconnect", token, "")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("disconnect status = %d, want %d", w.Code, http.StatusOK)
	}
	if controller.IsConnected() {
		t.Error("controller should be disconnected after disconnect")
	}
}

func TestGetState(t *testing.T) {
	srv, controller := testServer(t)
	router := srv.buildRouter()
	token := loginToken(t, router)

	if err := controller.Connect(context.Background(), false); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if err := controller.SendCommand(context.Background(), "PWON", false); err != nil {
		t.Fatalf("SendCommand: %v", err)
	}

	req := authedRequest(http.MethodGet, "/api/v1/avr/state", token, "")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}

	var state avr.State
	if err := json.Unmarshal(w.Body.Bytes(), &state); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	if state.Power == nil || !*state.Power {
		t.Errorf("power = %v, want true", state.Power)
	}
}

func TestListCommands(t *testing.T) {
	srv, _ := testServer(t)
	router := srv.buildRouter()
	token := loginToken(t, router)

	req := authedRequest(http.MethodGet, "/api/v1/avr/commands/", token, "")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}

	var resp struct {
		Commands []avr.CommandDef `json:"commands"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	if len(resp.Commands) == 0 {
		t.Fatal("expected non-empty command table")
	}

	found := false
	for _, def := range resp.Commands {
		if def.Name == "power_on" {
			found = true
			break
		}
	}
	if !found {
		t.Error("expected power_on in command table")
	}
}

func TestNamedCommand(t *testing.T) {
	srv, controller := testServer(t)
	router := srv.buildRouter()
	token := loginToken(t, router)

	if err := controller.Connect(context.Background(), false); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	req := authedRequest(http.MethodPost, "/api/v1/avr/commands/power_on", token, "")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d; body: %s", w.Code, http.StatusOK, w.Body.String())
	}

	var resp commandResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !resp.Success {
		t.Error("expected success = true")
	}

	state := controller.GetState()
	if state.Power == nil || !*state.Power {
		t.Errorf("power = %v, want true after power_on", state.Power)
	}
}

func TestNamedCommand_Unknown(t *testing.T) {
	srv, _ := testServer(t)
	router := srv.buildRouter()
	token := loginToken(t, router)

	req := authedRequest(http.MethodPost, "/api/v1/avr/commands/warp_drive", token, "")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", w.Code, http.StatusNotFound)
	}
}

func TestRawCommand(t *testing.T) {
	srv, controller := testServer(t)
	router := srv.buildRouter()
	token := loginToken(t, router)

	if err := controller.Connect(context.Background(), false); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	req := authedRequest(http.MethodPost, "/api/v1/avr/command", token, `{"command": "MV45"}`)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d; body: %s", w.Code, http.StatusOK, w.Body.String())
	}

	state := controller.GetState()
	if state.Volume == nil || *state.Volume != 45 {
		t.Errorf("volume = %v, want 45", state.Volume)
	}
}

func TestRawCommand_RejectsInvalid(t *testing.T) {
	srv, _ := testServer(t)
	router := srv.buildRouter()
	token := loginToken(t, router)

	tests := []struct {
		name    string
		command string
	}{
		{name: "shell metacharacters", command: "PWON; rm -rf /"},
		{name: "lowercase word", command: "hello"},
		{name: "empty", command: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body, _ := json.Marshal(map[string]string{"command": tt.command})
			req := authedRequest(http.MethodPost, "/api/v1/avr/command", token, string(body))
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			if w.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want %d; body: %s", w.Code, http.StatusBadRequest, w.Body.String())
			}
		})
	}
}

func TestRawCommand_InvalidJSON(t *testing.T) {
	srv, _ := testServer(t)
	router := srv.buildRouter()
	token := loginToken(t, router)

	req := authedRequest(http.MethodPost, "/api/v1/avr/command", token, "not json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}

func TestHistory_NotConfigured(t *testing.T) {
	srv, _ := testServer(t)
	router := srv.buildRouter()
	token := loginToken(t, router)

	req := authedRequest(http.MethodGet, "/api/v1/avr/history", token, "")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", w.Code, http.StatusNotFound)
	}
}

func TestHistory_InvalidLimit(t *testing.T) {
	srv, _ := testServer(t)
	srv.history = &stubHistory{}
	router := srv.buildRouter()
	token := loginToken(t, router)

	req := authedRequest(http.MethodGet, "/api/v1/avr/history?limit=abc", token, "")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}

func TestHistory_ReturnsEntries(t *testing.T) {
	srv, _ := testServer(t)
	srv.history = &stubHistory{entries: []avr.HistoryEntry{
		{ID: 2, Source: avr.HistorySourceResponse},
		{ID: 1, Source: avr.HistorySourceCommand},
	}}
	router := srv.buildRouter()
	token := loginToken(t, router)

	req := authedRequest(http.MethodGet, "/api/v1/avr/history?limit=10", token, "")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d; body: %s", w.Code, http.StatusOK, w.Body.String())
	}

	var resp struct {
		Entries []avr.HistoryEntry `json:"entries"`
		Count   int                `json:"count"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	if resp.Count != 2 {
		t.Errorf("count = %d, want 2", resp.Count)
	}
}

// stubHistory is a minimal in-memory StateHistoryRepository for handler tests.
type stubHistory struct {
	entries []avr.HistoryEntry
}

func (s *stubHistory) RecordStateChange(_ context.Context, state avr.State, source string) error {
	s.entries = append([]avr.HistoryEntry{{
		ID:        int64(len(s.entries) + 1),
		State:     state,
		Source:    source,
		CreatedAt: time.Now().UTC(),
	}}, s.entries...)
	return nil
}

func (s *stubHistory) GetHistory(_ context.Context, limit int) ([]avr.HistoryEntry, error) {
	if limit > 0 && limit < len(s.entries) {
		return s.entries[:limit], nil
	}
	return s.entries, nil
}

func (s *stubHistory) PruneHistory(_ context.Context, _ time.Duration) (int64, error) {
	return 0, nil
}

// ─── WebSocket Upgrade Tests ───────────────────────────────────────

// issueTicket obtains a WebSocket ticket through the authenticated API.
func issueTicket(t *testing.T, router http.Handler, token string) string {
	t.Helper()

	req := authedRequest(http.MethodPost, "/api/v1/auth/ws-ticket", token, "")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("ws-ticket status = %d, want %d; body: %s", w.Code, http.StatusOK, w.Body.String())
	}

	var resp map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal ticket response: %v", err)
	}
	ticket, ok := resp["ticket"].(string)
	if !ok || ticket == "" {
		t.Fatal("expected ticket to be a non-empty string")
	}
	return ticket
}

func TestWebSocketUpgrade_TicketOnly(t *testing.T) {
	srv, _ := testServer(t)
	router := srv.buildRouter()
	token := loginToken(t, router)
	ticket := issueTicket(t, router, token)

	ts := httptest.NewServer(router)
	defer ts.Close()

	// The upgrade request carries no Authorization header: browser
	// WebSocket clients cannot set one, so the ticket alone must
	// authenticate the connection.
	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/v1/ws?ticket=" + ticket
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer conn.Close()

	// New connections receive the current state snapshot immediately.
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg WSMessage
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("ReadJSON() error = %v", err)
	}
	if msg.Type != WSTypeEvent {
		t.Errorf("type = %q, want %q", msg.Type, WSTypeEvent)
	}
}

func TestWebSocketUpgrade_RejectsInvalidTicket(t *testing.T) {
	srv, _ := testServer(t)
	ts := httptest.NewServer(srv.buildRouter())
	defer ts.Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/v1/ws?ticket=bogus"
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err == nil {
		conn.Close()
		t.Fatal("Dial() should fail with an invalid ticket")
	}
	if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("handshake response = %v, want status %d", resp, http.StatusUnauthorized)
	}
}

func TestWebSocketUpgrade_RejectsMissingTicket(t *testing.T) {
	srv, _ := testServer(t)
	router := srv.buildRouter()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/ws", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", w.Code, http.StatusUnauthorized)
	}
}

// ─── WebSocket Hub Tests ───────────────────────────────────────────

func TestHub_BroadcastToSubscribed(t *testing.T) {
	log := logging.New(config.LoggingConfig{Level: "error", Format: "text", Output: "stdout"}, "test")
	hub := NewHub(config.WebSocketConfig{MaxMessageSize: 8192, PingInterval: 30, PongTimeout: 10}, log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	client := &WSClient{
		hub:           hub,
		send:          make(chan []byte, wsSendBufferSize),
		subscriptions: map[string]struct{}{ChannelStateChanged: {}},
	}
	hub.Register(client)

	hub.Broadcast(ChannelStateChanged, map[string]any{"power": true})

	select {
	case msg := <-client.send:
		var wsMsg WSMessage
		if err := json.Unmarshal(msg, &wsMsg); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if wsMsg.EventType != ChannelStateChanged {
			t.Errorf("event_type = %q, want %q", wsMsg.EventType, ChannelStateChanged)
		}
	case <-time.After(time.Second):
		t.Error("timed out waiting for broadcast message")
	}
}

func TestHub_NoMessageForUnsubscribed(t *testing.T) {
	log := logging.New(config.LoggingConfig{Level: "error", Format: "text", Output: "stdout"}, "test")
	hub := NewHub(config.WebSocketConfig{MaxMessageSize: 8192, PingInterval: 30, PongTimeout: 10}, log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	// Client not subscribed to the state channel
	client := &WSClient{
		hub:           hub,
		send:          make(chan []byte, wsSendBufferSize),
		subscriptions: map[string]struct{}{"some.other_channel": {}},
	}
	hub.Register(client)

	hub.Broadcast(ChannelStateChanged, map[string]any{"power": true})

	select {
	case <-client.send:
		t.Error("unsubscribed client should not receive message")
	case <-time.After(100 * time.Millisecond):
		// OK — no message received
	}
}

func TestHub_ClientCount(t *testing.T) {
	log := logging.New(config.LoggingConfig{Level: "error", Format: "text", Output: "stdout"}, "test")
	hub := NewHub(config.WebSocketConfig{MaxMessageSize: 8192, PingInterval: 30, PongTimeout: 10}, log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	if hub.ClientCount() != 0 {
		t.Errorf("initial client count = %d, want 0", hub.ClientCount())
	}

	client := &WSClient{
		hub:           hub,
		send:          make(chan []byte, wsSendBufferSize),
		subscriptions: make(map[string]struct{}),
	}
	hub.Register(client)

	if hub.ClientCount() != 1 {
		t.Errorf("after register count = %d, want 1", hub.ClientCount())
	}

	hub.Unregister(client)

	if hub.ClientCount() != 0 {
		t.Errorf("after unregister count = %d, want 0", hub.ClientCount())
	}
}

func TestStateRelay_BroadcastsSnapshots(t *testing.T) {
	log := logging.New(config.LoggingConfig{Level: "error", Format: "text", Output: "stdout"}, "test")
	hub := NewHub(config.WebSocketConfig{MaxMessageSize: 8192, PingInterval: 30, PongTimeout: 10}, log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	client := &WSClient{
		hub:           hub,
		send:          make(chan []byte, wsSendBufferSize),
		subscriptions: map[string]struct{}{ChannelStateChanged: {}},
	}
	hub.Register(client)

	relay := &stateRelay{hub: hub}

	power := true
	volume := 45
	if err := relay.OnStateChanged(avr.State{Power: &power, Volume: &volume}); err != nil {
		t.Fatalf("OnStateChanged: %v", err)
	}

	select {
	case msg := <-client.send:
		var wsMsg WSMessage
		if err := json.Unmarshal(msg, &wsMsg); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if wsMsg.Type != WSTypeEvent {
			t.Errorf("type = %q, want %q", wsMsg.Type, WSTypeEvent)
		}
		payload, ok := wsMsg.Payload.(map[string]any)
		if !ok {
			t.Fatalf("payload is not a map: %T", wsMsg.Payload)
		}
		if payload["power"] != true {
			t.Errorf("payload.power = %v, want true", payload["power"])
		}
		if payload["volume"] != float64(45) {
			t.Errorf("payload.volume = %v, want 45", payload["volume"])
		}
	case <-time.After(time.Second):
		t.Error("timed out waiting for relayed state")
	}
}

// ─── Server Lifecycle Tests ────────────────────────────────────────

func TestServer_HealthCheck_NotStarted(t *testing.T) {
	srv, _ := testServer(t)

	if err := srv.HealthCheck(context.Background()); err == nil {
		t.Error("expected error for server that has not started")
	}
}

func TestServer_CloseBeforeStart(t *testing.T) {
	srv, _ := testServer(t)

	if err := srv.Close(); err != nil {
		t.Errorf("Close() before Start() error: %v", err)
	}
}
