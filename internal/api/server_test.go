package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/nerrad567/boardflow-core/internal/audit"
	"github.com/nerrad567/boardflow-core/internal/automation"
	"github.com/nerrad567/boardflow-core/internal/board"
	"github.com/nerrad567/boardflow-core/internal/event"
	"github.com/nerrad567/boardflow-core/internal/infrastructure/config"
	"github.com/nerrad567/boardflow-core/internal/infrastructure/database"
	"github.com/nerrad567/boardflow-core/internal/infrastructure/logging"
	_ "github.com/nerrad567/boardflow-core/migrations"
)

// recordingPublisher captures published events.
type recordingPublisher struct {
	mu     sync.Mutex
	events []event.DomainEvent
}

func (p *recordingPublisher) PublishAll(_ context.Context, events []event.DomainEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, events...)
}

func (p *recordingPublisher) published() []event.DomainEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]event.DomainEvent(nil), p.events...)
}

type fakeBroker struct{ connected bool }

func (b fakeBroker) IsConnected() bool { return b.connected }

type testEnv struct {
	srv       *Server
	handler   http.Handler
	boards    *board.SQLiteRepository
	rules     *automation.Registry
	ruleRepo  *automation.SQLiteRepository
	published *recordingPublisher
}

// testServer creates a Server over a migrated in-memory database seeded
// with board B1 (W1: lists L0, L1, L2) and board B2 (W2: list L9).
func testServer(t *testing.T) *testEnv {
	t.Helper()
	ctx := context.Background()

	db, err := database.Open(ctx, database.Config{Path: ":memory:", BusyTimeout: 1})
	if err != nil {
		t.Fatalf("opening test db: %v", err)
	}
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // Test cleanup
	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("migrating test db: %v", err)
	}

	boards := board.NewSQLiteRepository(db.DB)
	for _, b := range []board.Board{
		{ID: "B1", WorkspaceID: "W1", Name: "Sprint"},
		{ID: "B2", WorkspaceID: "W2", Name: "Other"},
	} {
		if err := boards.CreateBoard(ctx, &b); err != nil {
			t.Fatalf("CreateBoard(%s): %v", b.ID, err)
		}
	}
	for _, l := range []board.List{
		{ID: "L0", BoardID: "B1", Name: "Todo", Order: 1000},
		{ID: "L1", BoardID: "B1", Name: "Doing", Order: 11000},
		{ID: "L2", BoardID: "B1", Name: "Done", Order: 21000},
		{ID: "L9", BoardID: "B2", Name: "Elsewhere", Order: 1000},
	} {
		if err := boards.CreateList(ctx, &l); err != nil {
			t.Fatalf("CreateList(%s): %v", l.ID, err)
		}
	}

	repo := automation.NewSQLiteRepository(db.DB)
	registry := automation.NewRegistry(repo)
	if err := registry.RefreshCache(ctx); err != nil {
		t.Fatalf("RefreshCache: %v", err)
	}

	pub := &recordingPublisher{}
	srv, err := New(Deps{
		Config: config.APIConfig{
			Host:     "127.0.0.1",
			Timeouts: config.APITimeoutConfig{Read: 5, Write: 5, Idle: 5},
		},
		WS:         config.WebSocketConfig{MaxMessageSize: 8192, PingInterval: 30, PongTimeout: 10},
		Logger:     logging.Discard(),
		Rules:      registry,
		Executions: repo,
		Boards:     boards,
		Events:     pub,
		Broker:     fakeBroker{connected: true},
		Audit:      audit.NewSQLiteRepository(db.DB),
		DB:         db.DB,
		Version:    "test",
	})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	return &testEnv{
		srv:       srv,
		handler:   srv.Handler(),
		boards:    boards,
		rules:     registry,
		ruleRepo:  repo,
		published: pub,
	}
}

func (e *testEnv) seedCard(t *testing.T, id, listID string, order float64) {
	t.Helper()
	card := &board.Card{ID: id, WorkspaceID: "W1", ListID: listID, Name: "card " + id, Order: order}
	if err := e.boards.CreateCard(context.Background(), card); err != nil {
		t.Fatalf("CreateCard(%s): %v", id, err)
	}
}

// do sends a request through the router and returns the recorder.
func (e *testEnv) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-User-ID", "U1")
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.NewDecoder(rec.Body).Decode(v); err != nil {
		t.Fatalf("decoding response %q: %v", rec.Body.String(), err)
	}
}

func TestNew_RequiresDeps(t *testing.T) {
	tests := []struct {
		name string
		deps Deps
	}{
		{"no logger", Deps{}},
		{"no rules", Deps{Logger: logging.Discard()}},
		{"no boards", Deps{Logger: logging.Discard(), Rules: automation.NewRegistry(nil)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(tt.deps); err == nil {
				t.Error("New() succeeded with missing dependency")
			}
		})
	}
}

func TestHealth(t *testing.T) {
	env := testServer(t)

	rec := env.do(t, http.MethodGet, "/api/v1/health", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var body map[string]any
	decodeBody(t, rec, &body)
	if body["status"] != "ok" || body["version"] != "test" || body["broker_connected"] != true {
		t.Errorf("health = %v", body)
	}
}

func TestMetrics(t *testing.T) {
	env := testServer(t)

	rec := env.do(t, http.MethodGet, "/api/v1/metrics", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var m SystemMetrics
	decodeBody(t, rec, &m)
	if m.Version != "test" || !m.Broker.Configured || !m.Broker.Connected {
		t.Errorf("metrics = %+v", m)
	}
	if m.Runtime.Goroutines == 0 {
		t.Error("runtime goroutines not reported")
	}
	if m.Database.OpenConnections == 0 {
		t.Error("database stats not reported")
	}
}

func TestRequestIDMiddleware(t *testing.T) {
	env := testServer(t)

	rec := env.do(t, http.MethodGet, "/api/v1/health", "")
	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("X-Request-ID not generated")
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	req.Header.Set("X-Request-ID", "req-42")
	rec = httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)
	if got := rec.Header().Get("X-Request-ID"); got != "req-42" {
		t.Errorf("X-Request-ID = %q, want req-42", got)
	}

	long := strings.Repeat("r", maxQueryParamLen+1)
	req = httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	req.Header.Set("X-Request-ID", long)
	rec = httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)
	if got := rec.Header().Get("X-Request-ID"); got == long || got == "" {
		t.Errorf("oversized X-Request-ID not replaced: %q", got)
	}
}

func TestCORSPreflight(t *testing.T) {
	env := testServer(t)

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/rules/R1", nil)
	req.Header.Set("Origin", "http://board.local")
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Errorf("status = %d, want 204", rec.Code)
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "http://board.local" {
		t.Errorf("Allow-Origin = %q", got)
	}
	if got := rec.Header().Get("Access-Control-Allow-Headers"); !strings.Contains(got, "X-User-ID") {
		t.Errorf("Allow-Headers = %q, want X-User-ID", got)
	}
	if got := rec.Header().Get("Vary"); got != "Origin" {
		t.Errorf("Vary = %q, want Origin", got)
	}
}

func TestCORSRestrictedOrigins(t *testing.T) {
	env := testServer(t)
	env.srv.cfg.CORS.AllowedOrigins = []string{"http://ok.local"}
	handler := env.srv.Handler()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	req.Header.Set("Origin", "http://evil.local")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("Allow-Origin = %q for disallowed origin", got)
	}
}

func TestRecoveryMiddleware(t *testing.T) {
	env := testServer(t)

	h := env.srv.recoveryMiddleware(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
}

func TestBodySizeLimit(t *testing.T) {
	env := testServer(t)

	big := `{"type":"card_in_list","condition":"` + strings.Repeat("x", maxRequestBodySize) + `"}`
	rec := env.do(t, http.MethodPost, "/api/v1/workspaces/W1/rules", big)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestServerStartClose(t *testing.T) {
	env := testServer(t)

	if err := env.srv.HealthCheck(context.Background()); err == nil {
		t.Error("HealthCheck() passed before Start")
	}

	env.srv.cfg.Port = 0
	if err := env.srv.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := env.srv.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck() after Start = %v", err)
	}
	if err := env.srv.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}
