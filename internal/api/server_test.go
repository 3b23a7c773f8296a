package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/nvdisplay-core/internal/audit"
	"github.com/nerrad567/nvdisplay-core/internal/auth"
	"github.com/nerrad567/nvdisplay-core/internal/backend"
	"github.com/nerrad567/nvdisplay-core/internal/control"
	"github.com/nerrad567/nvdisplay-core/internal/display"
	"github.com/nerrad567/nvdisplay-core/internal/infrastructure/config"
	"github.com/nerrad567/nvdisplay-core/internal/infrastructure/database"
	"github.com/nerrad567/nvdisplay-core/internal/infrastructure/logging"
	"github.com/nerrad567/nvdisplay-core/migrations"
)

const testSecret = "test-secret-key-at-least-32-characters-long"

type testEnv struct {
	srv    *Server
	mock   *backend.Mock
	repo   *audit.SQLiteRepository
	router http.Handler
}

// testServer creates a Server over a two-display mock backend with a
// migrated SQLite audit trail.
func testServer(t *testing.T) testEnv {
	t.Helper()
	return testServerWith(t, backend.MultipleDisplays(2), testSecret)
}

func testServerWith(t *testing.T, mock *backend.Mock, secret string) testEnv {
	t.Helper()

	db, err := database.Open(database.Config{
		Path:        filepath.Join(t.TempDir(), "audit.db"),
		WALMode:     true,
		BusyTimeout: 5,
	})
	if err != nil {
		t.Fatalf("database.Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := db.Migrate(context.Background(), migrations.FS); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	repo := audit.NewSQLiteRepository(db.DB)

	svc, err := control.New(control.Config{
		Backend:  mock,
		MaxAge:   5 * time.Second,
		Debounce: 2 * time.Second,
		Audit:    audit.NewRecorder(repo),
	})
	if err != nil {
		t.Fatalf("control.New: %v", err)
	}
	t.Cleanup(func() { svc.Close() })

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
			JWT: config.JWTConfig{Secret: secret},
		},
		Logger:  logging.Discard(),
		Service: svc,
		Audit:   repo,
		DB:      db,
		Version: "test",
	})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	// Start wires these; handler tests skip the listener.
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go srv.hub.Run(ctx)
	unsubscribe := svc.Subscribe(func(ev control.Event) {
		srv.hub.Broadcast(ev.Type, ev.Data)
	})
	t.Cleanup(unsubscribe)

	return testEnv{srv: srv, mock: mock, repo: repo, router: srv.buildRouter()}
}

func token(t *testing.T, role auth.Role) string {
	t.Helper()
	tok, err := auth.GenerateToken("alice", role, testSecret, time.Hour)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}
	return tok
}

func (e testEnv) do(t *testing.T, method, path, body, bearer string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("unmarshal %q: %v", w.Body.String(), err)
	}
	return v
}

// ─── Health and Status ─────────────────────────────────────────────

func TestHealth(t *testing.T) {
	env := testServer(t)

	w := env.do(t, http.MethodGet, "/api/v1/health", "", "")
	if w.Code != http.StatusOK {
		t.Fatalf("health status = %d, want %d", w.Code, http.StatusOK)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", ct)
	}

	resp := decode[map[string]any](t, w)
	if resp["status"] != "ok" {
		t.Errorf("status = %v, want ok", resp["status"])
	}
	if resp["version"] != "test" {
		t.Errorf("version = %v, want test", resp["version"])
	}
	if resp["backend"] != "mock" {
		t.Errorf("backend = %v, want mock", resp["backend"])
	}
}

func TestStatus(t *testing.T) {
	env := testServer(t)

	w := env.do(t, http.MethodGet, "/api/v1/status", "", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status code = %d, want %d", w.Code, http.StatusOK)
	}
	info := decode[control.Info](t, w)
	if info.Backend != "mock" {
		t.Errorf("backend = %q, want mock", info.Backend)
	}
	if !info.Audit {
		t.Error("audit = false, want true")
	}
}

func TestMetrics(t *testing.T) {
	env := testServer(t)

	w := env.do(t, http.MethodGet, "/api/v1/metrics", "", "")
	if w.Code != http.StatusOK {
		t.Fatalf("metrics status = %d, want %d", w.Code, http.StatusOK)
	}
	m := decode[SystemMetrics](t, w)
	if m.Runtime.Goroutines == 0 {
		t.Error("goroutines = 0")
	}
	if m.Database == nil {
		t.Error("database metrics missing")
	}
	if m.MQTT.Enabled {
		t.Error("mqtt enabled without a client")
	}
}

// ─── Middleware ────────────────────────────────────────────────────

func TestRequestID_Generated(t *testing.T) {
	env := testServer(t)

	w := env.do(t, http.MethodGet, "/api/v1/health", "", "")
	if w.Header().Get("X-Request-ID") == "" {
		t.Error("expected X-Request-ID header to be set")
	}
}

func TestRequestID_PreservesClient(t *testing.T) {
	env := testServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	req.Header.Set("X-Request-ID", "client-123")
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)

	if got := w.Header().Get("X-Request-ID"); got != "client-123" {
		t.Errorf("X-Request-ID = %q, want %q", got, "client-123")
	}
}

func TestCORS_Preflight(t *testing.T) {
	env := testServer(t)

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/displays/0:0/attributes/vibrance", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)

	if w.Code != http.StatusNoContent {
		t.Errorf("preflight status = %d, want %d", w.Code, http.StatusNoContent)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:3000" {
		t.Errorf("ACAO = %q, want %q", got, "http://localhost:3000")
	}
	if got := w.Header().Get("Access-Control-Allow-Methods"); !strings.Contains(got, "PUT") {
		t.Errorf("allowed methods = %q, want PUT", got)
	}
}

func TestNotFound(t *testing.T) {
	env := testServer(t)

	w := env.do(t, http.MethodGet, "/api/v1/nonexistent", "", "")
	if w.Code != http.StatusNotFound {
		t.Errorf("unknown route status = %d, want %d", w.Code, http.StatusNotFound)
	}
}

func TestRecovery(t *testing.T) {
	env := testServer(t)
	h := env.srv.recoverPanics(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want %d", w.Code, http.StatusInternalServerError)
	}
}

// ─── Displays ──────────────────────────────────────────────────────

func TestListDisplays(t *testing.T) {
	env := testServer(t)

	w := env.do(t, http.MethodGet, "/api/v1/displays/", "", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	resp := decode[struct {
		Displays []display.Display `json:"displays"`
		Count    int               `json:"count"`
	}](t, w)
	if resp.Count != 2 || len(resp.Displays) != 2 {
		t.Fatalf("count = %d (%d displays), want 2", resp.Count, len(resp.Displays))
	}
	if resp.Displays[0].Name != "DP-0" {
		t.Errorf("first display = %q, want DP-0", resp.Displays[0].Name)
	}
}

func TestListDisplays_NoDevice(t *testing.T) {
	env := testServerWith(t, backend.NoDevice(), testSecret)

	w := env.do(t, http.MethodGet, "/api/v1/displays/", "", "")
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusServiceUnavailable)
	}
	e := decode[Error](t, w)
	if e.Code != "device_absent" {
		t.Errorf("code = %q, want device_absent", e.Code)
	}
	if e.Remediation == "" {
		t.Error("remediation missing")
	}
}

func TestGetDisplay(t *testing.T) {
	env := testServer(t)

	for _, ref := range []string{"0:0", "0", "dp-0"} {
		t.Run(ref, func(t *testing.T) {
			w := env.do(t, http.MethodGet, "/api/v1/displays/"+ref+"/", "", "")
			if w.Code != http.StatusOK {
				t.Fatalf("status = %d, want %d: %s", w.Code, http.StatusOK, w.Body.String())
			}
			resp := decode[displayResponse](t, w)
			if resp.ID != (display.ID{}) {
				t.Errorf("id = %s, want 0:0", resp.ID)
			}
			if len(resp.Attributes) != len(display.Kinds()) {
				t.Errorf("attributes = %d, want %d", len(resp.Attributes), len(display.Kinds()))
			}
		})
	}
}

func TestGetDisplay_NotFound(t *testing.T) {
	env := testServer(t)

	w := env.do(t, http.MethodGet, "/api/v1/displays/HDMI-7/", "", "")
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusNotFound)
	}
	if e := decode[Error](t, w); e.Code != "display_not_found" {
		t.Errorf("code = %q, want display_not_found", e.Code)
	}
}

func TestGetAttribute(t *testing.T) {
	env := testServer(t)
	env.mock.WithValue(display.ID{}, display.KindVibrance, 300)

	w := env.do(t, http.MethodGet, "/api/v1/displays/0:0/attributes/digital-vibrance", "", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d: %s", w.Code, http.StatusOK, w.Body.String())
	}
	resp := decode[attributeResponse](t, w)
	if resp.Kind != display.KindVibrance {
		t.Errorf("kind = %q, want vibrance", resp.Kind)
	}
	if resp.Value != 300 {
		t.Errorf("value = %d, want 300", resp.Value)
	}
	if resp.Stale {
		t.Error("fresh read reported stale")
	}
	if resp.Range == nil || resp.Range.Min != -1024 || resp.Range.Max != 1023 {
		t.Errorf("range = %+v, want -1024..=1023", resp.Range)
	}
}

func TestGetAttribute_InvalidKind(t *testing.T) {
	env := testServer(t)

	w := env.do(t, http.MethodGet, "/api/v1/displays/0:0/attributes/brightness", "", "")
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}

// ─── Attribute Writes ──────────────────────────────────────────────

func TestSetAttribute_Auth(t *testing.T) {
	env := testServer(t)
	path := "/api/v1/displays/0:0/attributes/vibrance"
	body := `{"value": 512}`

	tests := []struct {
		name   string
		bearer string
		want   int
	}{
		{"no token", "", http.StatusUnauthorized},
		{"garbage token", "not-a-jwt", http.StatusUnauthorized},
		{"viewer", token(t, auth.RoleViewer), http.StatusForbidden},
		{"operator", token(t, auth.RoleOperator), http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(t, http.MethodPut, path, body, tt.bearer)
			if w.Code != tt.want {
				t.Errorf("status = %d, want %d: %s", w.Code, tt.want, w.Body.String())
			}
		})
	}

	if n := env.mock.CallCount(backend.OpSet); n != 1 {
		t.Errorf("backend sets = %d, want 1", n)
	}
}

func TestSetAttribute_NoSecret(t *testing.T) {
	env := testServerWith(t, backend.SingleDisplay(), "")

	w := env.do(t, http.MethodPut, "/api/v1/displays/0:0/attributes/vibrance", `{"value": 1}`, "anything")
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want %d", w.Code, http.StatusServiceUnavailable)
	}
}

func TestSetAttribute_Success(t *testing.T) {
	env := testServer(t)
	op := token(t, auth.RoleOperator)

	w := env.do(t, http.MethodPut, "/api/v1/displays/DP-0/attributes/vibrance", `{"value": 512}`, op)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d: %s", w.Code, http.StatusOK, w.Body.String())
	}
	resp := decode[attributeResponse](t, w)
	if resp.Value != 512 {
		t.Errorf("value = %d, want 512", resp.Value)
	}

	result, err := env.repo.List(context.Background(), audit.Filter{Action: audit.ActionSet})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if result.Total != 1 {
		t.Fatalf("audit entries = %d, want 1", result.Total)
	}
	e := result.Entries[0]
	if e.Source != audit.SourceAPI || e.Actor != "alice" || e.Outcome != audit.OutcomeOK {
		t.Errorf("entry = %+v, want api/alice/ok", e)
	}
}

func TestSetAttribute_Label(t *testing.T) {
	env := testServer(t)
	op := token(t, auth.RoleOperator)

	w := env.do(t, http.MethodPut, "/api/v1/displays/0:0/attributes/color-range", `{"value": "limited"}`, op)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d: %s", w.Code, http.StatusOK, w.Body.String())
	}
	resp := decode[attributeResponse](t, w)
	if resp.Label != "limited" {
		t.Errorf("label = %q, want limited", resp.Label)
	}
}

func TestSetAttribute_OutOfRange(t *testing.T) {
	env := testServer(t)
	op := token(t, auth.RoleOperator)

	w := env.do(t, http.MethodPut, "/api/v1/displays/0:0/attributes/vibrance", `{"value": 5000}`, op)
	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusUnprocessableEntity)
	}
	e := decode[Error](t, w)
	if e.Code != "invalid_attribute_value" {
		t.Errorf("code = %q, want invalid_attribute_value", e.Code)
	}
	if e.Legal != "-1024..=1023" {
		t.Errorf("legal = %q, want -1024..=1023", e.Legal)
	}

	result, err := env.repo.List(context.Background(), audit.Filter{Outcome: audit.OutcomeRejected})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if result.Total != 1 {
		t.Errorf("rejected entries = %d, want 1", result.Total)
	}
}

func TestSetAttribute_BadBody(t *testing.T) {
	env := testServer(t)
	op := token(t, auth.RoleOperator)

	tests := []struct {
		name string
		body string
		want int
	}{
		{"invalid json", `{"value":`, http.StatusBadRequest},
		{"missing value", `{}`, http.StatusBadRequest},
		{"bad label", `{"value": "vivid"}`, http.StatusUnprocessableEntity},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(t, http.MethodPut, "/api/v1/displays/0:0/attributes/color_range", tt.body, op)
			if w.Code != tt.want {
				t.Errorf("status = %d, want %d: %s", w.Code, tt.want, w.Body.String())
			}
		})
	}
}

func TestSetAttribute_BodyTooLarge(t *testing.T) {
	env := testServer(t)
	op := token(t, auth.RoleOperator)
	body := `{"value": "` + strings.Repeat("x", maxRequestBodySize) + `"}`

	w := env.do(t, http.MethodPut, "/api/v1/displays/0:0/attributes/vibrance", body, op)
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}

// ─── Audit ─────────────────────────────────────────────────────────

func TestListAuditLogs(t *testing.T) {
	env := testServer(t)
	op := token(t, auth.RoleOperator)
	for _, v := range []string{"1", "2", "9999"} {
		env.do(t, http.MethodPut, "/api/v1/displays/0:0/attributes/vibrance", `{"value": `+v+`}`, op)
	}

	w := env.do(t, http.MethodGet, "/api/v1/audit", "", "")
	if w.Code != http.StatusUnauthorized {
		t.Errorf("anonymous status = %d, want %d", w.Code, http.StatusUnauthorized)
	}

	viewer := token(t, auth.RoleViewer)
	w = env.do(t, http.MethodGet, "/api/v1/audit?outcome=ok&attribute=vibrance&limit=1", "", viewer)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d: %s", w.Code, http.StatusOK, w.Body.String())
	}
	result := decode[audit.ListResult](t, w)
	if result.Total != 2 {
		t.Errorf("total = %d, want 2", result.Total)
	}
	if len(result.Entries) != 1 || result.Limit != 1 {
		t.Fatalf("page = %d entries, limit %d; want 1, 1", len(result.Entries), result.Limit)
	}
	if v := result.Entries[0].Value; v == nil || *v != 2 {
		t.Errorf("newest value = %v, want 2", v)
	}

	w = env.do(t, http.MethodGet, "/api/v1/audit?since=yesterday", "", viewer)
	if w.Code != http.StatusBadRequest {
		t.Errorf("bad since status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}

func TestListAuditLogs_NoRepository(t *testing.T) {
	env := testServer(t)
	env.srv.auditRepo = nil

	w := env.do(t, http.MethodGet, "/api/v1/audit", "", token(t, auth.RoleViewer))
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want %d", w.Code, http.StatusServiceUnavailable)
	}
}

// ─── Error Mapping ─────────────────────────────────────────────────

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{display.ErrInvalidID, http.StatusBadRequest},
		{display.ErrInvalidKind, http.StatusBadRequest},
		{display.ErrInvalidAttributeValue, http.StatusUnprocessableEntity},
		{display.ErrDisplayNotFound, http.StatusNotFound},
		{display.ErrUnsupported, http.StatusNotImplemented},
		{display.ErrDeviceAbsent, http.StatusServiceUnavailable},
		{display.ErrTransientIO, http.StatusServiceUnavailable},
		{display.ErrExternalTool, http.StatusBadGateway},
		{fmt.Errorf("get: %w", context.DeadlineExceeded), http.StatusGatewayTimeout},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			if got := statusFor(tt.err); got != tt.want {
				t.Errorf("statusFor(%v) = %d, want %d", tt.err, got, tt.want)
			}
		})
	}
}

func TestWriteDomainError_RetryAfter(t *testing.T) {
	w := httptest.NewRecorder()
	writeDomainError(w, fmt.Errorf("ioctl: %w", display.ErrTransientIO))

	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want %d", w.Code, http.StatusServiceUnavailable)
	}
	if got := w.Header().Get("Retry-After"); got != "1" {
		t.Errorf("Retry-After = %q, want 1", got)
	}
}

// ─── WebSocket Hub ─────────────────────────────────────────────────

func newTestHub(t *testing.T) *Hub {
	t.Helper()
	hub := NewHub(config.WebSocketConfig{MaxMessageSize: 8192, PingInterval: 30, PongTimeout: 10}, logging.Discard())
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go hub.Run(ctx)
	return hub
}

func TestHub_BroadcastToSubscribed(t *testing.T) {
	hub := newTestHub(t)

	client := &WSClient{
		hub:           hub,
		send:          make(chan []byte, wsSendBufferSize),
		subscriptions: map[string]struct{}{control.EventAttributeChanged: {}},
	}
	hub.Register(client)

	hub.Broadcast(control.EventAttributeChanged, map[string]any{"display_id": "0:0"})

	select {
	case msg := <-client.send:
		var wsMsg WSMessage
		if err := json.Unmarshal(msg, &wsMsg); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if wsMsg.EventType != control.EventAttributeChanged {
			t.Errorf("event_type = %q, want %q", wsMsg.EventType, control.EventAttributeChanged)
		}
	case <-time.After(time.Second):
		t.Error("timed out waiting for broadcast message")
	}
}

func TestHub_NoMessageForUnsubscribed(t *testing.T) {
	hub := newTestHub(t)

	client := &WSClient{
		hub:           hub,
		send:          make(chan []byte, wsSendBufferSize),
		subscriptions: map[string]struct{}{control.EventHotplugStatusChanged: {}},
	}
	hub.Register(client)

	hub.Broadcast(control.EventAttributeChanged, map[string]any{"display_id": "0:0"})

	select {
	case <-client.send:
		t.Error("unsubscribed client should not receive message")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestHub_WildcardSubscription(t *testing.T) {
	hub := newTestHub(t)

	client := &WSClient{
		hub:           hub,
		send:          make(chan []byte, wsSendBufferSize),
		subscriptions: map[string]struct{}{WSChannelAll: {}},
	}
	hub.Register(client)

	hub.Broadcast(control.EventHotplugStatusChanged, map[string]any{"current": "available"})

	select {
	case <-client.send:
	case <-time.After(time.Second):
		t.Error("wildcard client missed broadcast")
	}
}

func TestHub_ClientCount(t *testing.T) {
	hub := newTestHub(t)

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
	// A second unregister must not close the channel twice.
	hub.Unregister(client)
}

func TestWSClient_SendAfterClose(t *testing.T) {
	hub := newTestHub(t)
	client := &WSClient{
		hub:           hub,
		send:          make(chan []byte, 1),
		subscriptions: map[string]struct{}{WSChannelAll: {}},
	}
	hub.Register(client)

	if !client.trySend([]byte("a")) {
		t.Fatal("trySend() on an open client = false")
	}
	if client.trySend([]byte("b")) {
		t.Error("trySend() with a full buffer = true")
	}
	hub.Broadcast(control.EventAttributeChanged, map[string]any{"display_id": "0:0"})
	if got := hub.Dropped(); got != 1 {
		t.Errorf("Dropped() = %d, want 1", got)
	}

	hub.Unregister(client)
	if client.trySend([]byte("c")) {
		t.Error("trySend() after Unregister = true")
	}
	client.sendError("x", "late reply")

	if _, ok := <-client.send; !ok {
		t.Fatal("queued frame lost on close")
	}
	if _, ok := <-client.send; ok {
		t.Error("send channel still open after Unregister")
	}
}

// ─── WebSocket End to End ──────────────────────────────────────────

func readWS(t *testing.T, conn *websocket.Conn) WSMessage {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second)) //nolint:errcheck // test deadline
	var msg WSMessage
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("ReadJSON: %v", err)
	}
	return msg
}

func TestWebSocket_RelaysAttributeChange(t *testing.T) {
	env := testServer(t)
	ts := httptest.NewServer(env.router)
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/v1/ws"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()
	if resp.StatusCode != http.StatusSwitchingProtocols {
		t.Fatalf("handshake status = %d", resp.StatusCode)
	}

	sub := WSMessage{Type: WSTypeSubscribe, ID: "1", Payload: WSSubscribePayload{Channels: []string{control.EventAttributeChanged}}}
	if err := conn.WriteJSON(sub); err != nil {
		t.Fatalf("WriteJSON: %v", err)
	}
	if ack := readWS(t, conn); ack.Type != WSTypeResponse || ack.ID != "1" {
		t.Fatalf("ack = %+v, want response 1", ack)
	}

	req, err := http.NewRequest(http.MethodPut, ts.URL+"/api/v1/displays/0:0/attributes/vibrance",
		bytes.NewBufferString(`{"value": 700}`))
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	req.Header.Set("Authorization", "Bearer "+token(t, auth.RoleOperator))
	putResp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("PUT: %v", err)
	}
	putResp.Body.Close()
	if putResp.StatusCode != http.StatusOK {
		t.Fatalf("PUT status = %d", putResp.StatusCode)
	}

	ev := readWS(t, conn)
	if ev.Type != WSTypeEvent || ev.EventType != control.EventAttributeChanged {
		t.Fatalf("event = %+v, want attribute.changed", ev)
	}
	data, ok := ev.Payload.(map[string]any)
	if !ok {
		t.Fatalf("payload = %T", ev.Payload)
	}
	if data["display_id"] != "0:0" || data["kind"] != "vibrance" || data["source"] != audit.SourceAPI {
		t.Errorf("payload = %v", data)
	}
}

func TestWebSocket_PingAndUnknown(t *testing.T) {
	env := testServer(t)
	ts := httptest.NewServer(env.router)
	defer ts.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/api/v1/ws", nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()

	if err := conn.WriteJSON(WSMessage{Type: WSTypePing, ID: "p"}); err != nil {
		t.Fatalf("WriteJSON: %v", err)
	}
	if msg := readWS(t, conn); msg.Type != WSTypePong || msg.ID != "p" {
		t.Errorf("reply = %+v, want pong p", msg)
	}

	if err := conn.WriteJSON(WSMessage{Type: "shout", ID: "x"}); err != nil {
		t.Fatalf("WriteJSON: %v", err)
	}
	if msg := readWS(t, conn); msg.Type != WSTypeError {
		t.Errorf("reply = %+v, want error", msg)
	}

	bad := WSMessage{Type: WSTypeSubscribe, ID: "s", Payload: WSSubscribePayload{Channels: []string{"device.changed"}}}
	if err := conn.WriteJSON(bad); err != nil {
		t.Fatalf("WriteJSON: %v", err)
	}
	if msg := readWS(t, conn); msg.Type != WSTypeError || msg.ID != "s" {
		t.Errorf("reply = %+v, want error for unknown channel", msg)
	}
}

// ─── Lifecycle ─────────────────────────────────────────────────────

func TestServer_StartClose(t *testing.T) {
	env := testServer(t)
	if env.srv.Addr() != "" {
		t.Error("Addr before Start should be empty")
	}
	if err := env.srv.HealthCheck(context.Background()); err == nil {
		t.Error("HealthCheck before Start should fail")
	}

	if err := env.srv.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer env.srv.Close()

	resp, err := http.Get("http://" + env.srv.Addr() + "/api/v1/health")
	if err != nil {
		t.Fatalf("GET health: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}
	if err := env.srv.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck: %v", err)
	}
	if err := env.srv.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
}

func TestNew_RequiresDeps(t *testing.T) {
	if _, err := New(Deps{}); err == nil {
		t.Error("New without logger should fail")
	}
	if _, err := New(Deps{Logger: logging.Discard()}); err == nil {
		t.Error("New without service should fail")
	}
}
