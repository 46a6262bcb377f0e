package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nerrad567/webthing-gateway/internal/auth"
	"github.com/nerrad567/webthing-gateway/internal/infrastructure/config"
	"github.com/nerrad567/webthing-gateway/internal/infrastructure/logging"
	"github.com/nerrad567/webthing-gateway/internal/thing"
)

const testSecret = "test-secret-key-at-least-32-characters-long"

// testLamp builds a lamp with a writable level, a read-only temperature,
// a sensor-only humidity, a fade action and an overheated event. Writes to
// level above 90 fail in the forwarder.
func testLamp(t *testing.T, id string) *thing.Thing {
	t.Helper()
	th := thing.New(id, "Lamp", []string{"Light"}, "A dimmable lamp")

	level, err := thing.NewProperty("level", thing.NewValue(0.0, func(v any) error {
		if f, ok := v.(float64); ok && f > 90 {
			return errors.New("dimmer offline")
		}
		return nil
	}), map[string]any{"type": "number", "minimum": 0, "maximum": 100})
	if err != nil {
		t.Fatalf("NewProperty(level) error = %v", err)
	}
	temp, err := thing.NewProperty("temperature", thing.NewValue(20.0, nil), map[string]any{
		"type": "number", "readOnly": true,
	})
	if err != nil {
		t.Fatalf("NewProperty(temperature) error = %v", err)
	}
	humidity, err := thing.NewProperty("humidity", thing.NewValue(40.0, nil), map[string]any{"type": "number"})
	if err != nil {
		t.Fatalf("NewProperty(humidity) error = %v", err)
	}
	for _, p := range []*thing.Property{level, temp, humidity} {
		if err := th.AddProperty(p); err != nil {
			t.Fatalf("AddProperty() error = %v", err)
		}
	}

	err = th.AddAvailableAction("fade", map[string]any{
		"title": "Fade",
		"input": map[string]any{
			"type":     "object",
			"required": []any{"brightness"},
			"properties": map[string]any{
				"brightness": map[string]any{"type": "integer", "minimum": 0, "maximum": 100},
			},
		},
	}, func(any) thing.Performer {
		return thing.PerformerFunc(func(ctx context.Context, _ *thing.Action) error {
			select {
			case <-ctx.Done():
			case <-time.After(20 * time.Millisecond):
			}
			return nil
		})
	})
	if err != nil {
		t.Fatalf("AddAvailableAction() error = %v", err)
	}
	th.AddAvailableEvent("overheated", map[string]any{"type": "number"})
	return th
}

// testServerWith creates a Server over things with the hub running.
func testServerWith(t *testing.T, secret string, multiple bool, things ...*thing.Thing) *Server {
	t.Helper()

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
		Logger:   logging.Discard(),
		Things:   things,
		Multiple: multiple,
		Version:  "test",
	})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	// Initialise hub for tests
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	srv.hub = NewHub(srv.wsCfg, srv.logger)
	go srv.hub.Run(ctx)

	return srv
}

// testServer serves a single lamp without auth.
func testServer(t *testing.T) (*Server, *thing.Thing) {
	t.Helper()
	lamp := testLamp(t, "urn:dev:ops:lamp-1")
	return testServerWith(t, "", false, lamp), lamp
}

func do(t *testing.T, h http.Handler, method, path, body string, header ...string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
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

// ─── Construction ──────────────────────────────────────────────────

func TestNew_Validation(t *testing.T) {
	a := testLamp(t, "a")
	b := testLamp(t, "b")

	tests := []struct {
		name string
		deps Deps
	}{
		{"no logger", Deps{Things: []*thing.Thing{a}}},
		{"no things", Deps{Logger: logging.Discard()}},
		{"two things single mode", Deps{Logger: logging.Discard(), Things: []*thing.Thing{a, b}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(tt.deps); err == nil {
				t.Error("New() error = nil, want error")
			}
		})
	}
}

func TestNew_HrefPrefixes(t *testing.T) {
	a := testLamp(t, "a")
	b := testLamp(t, "b")
	testServerWith(t, "", true, a, b)

	if got := a.Href(); got != "/0" {
		t.Errorf("a.Href() = %q, want /0", got)
	}
	if got := b.Href(); got != "/1" {
		t.Errorf("b.Href() = %q, want /1", got)
	}

	single := testLamp(t, "c")
	testServerWith(t, "", false, single)
	if got := single.Href(); got != "/" {
		t.Errorf("single.Href() = %q, want /", got)
	}
}

func TestServer_StartAndClose(t *testing.T) {
	srv, _ := testServer(t)
	srv.hub = nil

	if err := srv.HealthCheck(context.Background()); err == nil {
		t.Error("HealthCheck() before Start = nil, want error")
	}
	if err := srv.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if srv.Port() == 0 {
		t.Error("Port() = 0 after Start")
	}
	if err := srv.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}

	resp, err := http.Get("http://" + srv.Addr() + "/health")
	if err != nil {
		t.Fatalf("GET /health: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}

	if err := srv.Start(context.Background()); err == nil {
		t.Error("second Start() = nil, want error")
	}
	if err := srv.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}

// ─── Health and Metrics ────────────────────────────────────────────

func TestHealth(t *testing.T) {
	srv, _ := testServer(t)
	w := do(t, srv.buildRouter(), http.MethodGet, "/health", "")

	if w.Code != http.StatusOK {
		t.Errorf("health status = %d, want %d", w.Code, http.StatusOK)
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
}

type fakeStatus bool

func (f fakeStatus) IsConnected() bool { return bool(f) }

func TestMetrics(t *testing.T) {
	srv, lamp := testServer(t)
	srv.mqtt = fakeStatus(true)

	w := do(t, srv.buildRouter(), http.MethodGet, "/metrics", "")
	if w.Code != http.StatusOK {
		t.Fatalf("metrics status = %d", w.Code)
	}
	m := decode[SystemMetrics](t, w)
	if m.Version != "test" {
		t.Errorf("Version = %q", m.Version)
	}
	if m.MQTT == nil || !m.MQTT.Connected {
		t.Errorf("MQTT = %+v, want connected", m.MQTT)
	}
	if m.Database != nil {
		t.Errorf("Database = %+v, want omitted", m.Database)
	}
	if len(m.Things) != 1 || m.Things[0].ID != lamp.ID() || m.Things[0].Properties != 3 {
		t.Errorf("Things = %+v", m.Things)
	}
}

// ─── Thing Description ─────────────────────────────────────────────

func TestThingDescription_Single(t *testing.T) {
	srv, _ := testServer(t)
	w := do(t, srv.buildRouter(), http.MethodGet, "/", "")

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	td := decode[map[string]any](t, w)

	if td["id"] != "urn:dev:ops:lamp-1" {
		t.Errorf("id = %v", td["id"])
	}
	if td["base"] != "http://example.com/" {
		t.Errorf("base = %v, want http://example.com/", td["base"])
	}
	if td["security"] != "nosec_sc" {
		t.Errorf("security = %v, want nosec_sc", td["security"])
	}

	links, _ := td["links"].([]any)
	var alternate string
	for _, l := range links {
		link, _ := l.(map[string]any)
		if link["rel"] == "alternate" && strings.HasPrefix(link["href"].(string), "ws") {
			alternate = link["href"].(string)
		}
	}
	if alternate != "ws://example.com/" {
		t.Errorf("alternate link = %q, want ws://example.com/", alternate)
	}

	props, _ := td["properties"].(map[string]any)
	level, _ := props["level"].(map[string]any)
	levelLinks, _ := level["links"].([]any)
	if len(levelLinks) == 0 || levelLinks[0].(map[string]any)["href"] != "/properties/level" {
		t.Errorf("level links = %v", levelLinks)
	}
}

func TestThingDescription_BearerSecurity(t *testing.T) {
	lamp := testLamp(t, "lamp")
	srv := testServerWith(t, testSecret, false, lamp)
	token, err := auth.GenerateToken("alice", auth.RoleViewer, testSecret, time.Hour)
	if err != nil {
		t.Fatalf("GenerateToken() error = %v", err)
	}

	w := do(t, srv.buildRouter(), http.MethodGet, "/", "", "Authorization", "Bearer "+token)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	td := decode[map[string]any](t, w)
	if td["security"] != "bearer_sc" {
		t.Errorf("security = %v, want bearer_sc", td["security"])
	}
	defs, _ := td["securityDefinitions"].(map[string]any)
	if _, ok := defs["bearer_sc"]; !ok {
		t.Errorf("securityDefinitions = %v", defs)
	}
}

func TestMultipleThings(t *testing.T) {
	a := testLamp(t, "lamp-a")
	b := testLamp(t, "lamp-b")
	router := testServerWith(t, "", true, a, b).buildRouter()

	w := do(t, router, http.MethodGet, "/", "")
	list := decode[[]map[string]any](t, w)
	if len(list) != 2 {
		t.Fatalf("listing has %d things, want 2", len(list))
	}
	if list[0]["href"] != "/0" || list[1]["href"] != "/1" {
		t.Errorf("hrefs = %v, %v", list[0]["href"], list[1]["href"])
	}

	w = do(t, router, http.MethodGet, "/1", "")
	td := decode[map[string]any](t, w)
	if td["id"] != "lamp-b" {
		t.Errorf("/1 id = %v, want lamp-b", td["id"])
	}

	w = do(t, router, http.MethodGet, "/1/properties/level", "")
	if w.Code != http.StatusOK {
		t.Errorf("/1/properties/level status = %d", w.Code)
	}

	for _, path := range []string{"/2", "/x", "/-1/properties"} {
		if w := do(t, router, http.MethodGet, path, ""); w.Code != http.StatusNotFound {
			t.Errorf("GET %s status = %d, want 404", path, w.Code)
		}
	}
}

// ─── Properties ────────────────────────────────────────────────────

func TestProperties_Get(t *testing.T) {
	srv, _ := testServer(t)
	router := srv.buildRouter()

	w := do(t, router, http.MethodGet, "/properties", "")
	props := decode[map[string]any](t, w)
	if props["level"] != 0.0 || props["temperature"] != 20.0 {
		t.Errorf("properties = %v", props)
	}

	w = do(t, router, http.MethodGet, "/properties/level/", "")
	if w.Code != http.StatusOK {
		t.Errorf("trailing slash status = %d, want 200", w.Code)
	}

	w = do(t, router, http.MethodGet, "/properties/missing", "")
	if w.Code != http.StatusNotFound {
		t.Errorf("missing property status = %d, want 404", w.Code)
	}
}

func TestProperties_Put(t *testing.T) {
	tests := []struct {
		name       string
		property   string
		body       string
		wantStatus int
	}{
		{"valid", "level", `{"level": 42}`, http.StatusOK},
		{"out of range", "level", `{"level": 150}`, http.StatusForbidden},
		{"read only", "temperature", `{"temperature": 21}`, http.StatusForbidden},
		{"sensor only", "humidity", `{"humidity": 50}`, http.StatusForbidden},
		{"forwarder fails", "level", `{"level": 95}`, http.StatusInternalServerError},
		{"unknown property", "missing", `{"missing": 1}`, http.StatusNotFound},
		{"name not in body", "level", `{"other": 1}`, http.StatusBadRequest},
		{"unknown property bad body", "missing", `{"other": 1}`, http.StatusBadRequest},
		{"invalid json", "level", `{level`, http.StatusBadRequest},
		{"not an object", "level", `[1]`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, _ := testServer(t)
			w := do(t, srv.buildRouter(), http.MethodPut, "/properties/"+tt.property, tt.body)
			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d (body %s)", w.Code, tt.wantStatus, w.Body.String())
			}
		})
	}
}

func TestProperties_PutReturnsStoredValue(t *testing.T) {
	srv, lamp := testServer(t)
	w := do(t, srv.buildRouter(), http.MethodPut, "/properties/level", `{"level": 42}`)

	got := decode[map[string]any](t, w)
	if got["level"] != 42.0 {
		t.Errorf("response = %v, want level 42", got)
	}
	if v, _ := lamp.PropertyValue("level"); v != 42.0 {
		t.Errorf("stored level = %v, want 42", v)
	}
}

// ─── Actions ───────────────────────────────────────────────────────

func TestActions_RequestAndComplete(t *testing.T) {
	srv, lamp := testServer(t)
	router := srv.buildRouter()

	w := do(t, router, http.MethodPost, "/actions", `{"fade": {"input": {"brightness": 50}}}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201 (body %s)", w.Code, w.Body.String())
	}
	created := decode[map[string]map[string]any](t, w)
	fade := created["fade"]
	if fade["status"] != "created" {
		t.Errorf("status = %v, want created", fade["status"])
	}
	href, _ := fade["href"].(string)
	if !strings.HasPrefix(href, "/actions/fade/") {
		t.Fatalf("href = %q", href)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		w = do(t, router, http.MethodGet, href, "")
		if decode[map[string]map[string]any](t, w)["fade"]["status"] == "completed" {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	got := decode[map[string]map[string]any](t, w)["fade"]
	if got["status"] != "completed" {
		t.Fatalf("status = %v, want completed", got["status"])
	}
	if _, ok := got["timeCompleted"]; !ok {
		t.Error("completed action has no timeCompleted")
	}

	w = do(t, router, http.MethodGet, "/actions/fade", "")
	if list := decode[[]map[string]any](t, w); len(list) != 1 {
		t.Errorf("GET /actions/fade = %d entries, want 1", len(list))
	}
	if n := len(lamp.ActionDescriptions("")); n != 1 {
		t.Errorf("ActionDescriptions = %d, want 1", n)
	}
}

func TestActions_RequestRejected(t *testing.T) {
	tests := []struct {
		name string
		path string
		body string
	}{
		{"unknown action", "/actions", `{"explode": {}}`},
		{"invalid input", "/actions", `{"fade": {"input": {"brightness": 500}}}`},
		{"missing input", "/actions", `{"fade": {}}`},
		{"two actions", "/actions", `{"fade": {"input": {"brightness": 1}}, "other": {}}`},
		{"empty body", "/actions", `{}`},
		{"params not object", "/actions", `{"fade": 3}`},
		{"name mismatch", "/actions/other", `{"fade": {"input": {"brightness": 1}}}`},
		{"invalid json", "/actions", `nope`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, lamp := testServer(t)
			w := do(t, srv.buildRouter(), http.MethodPost, tt.path, tt.body)
			if w.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400 (body %s)", w.Code, w.Body.String())
			}
			if n := len(lamp.ActionDescriptions("")); n != 0 {
				t.Errorf("ActionDescriptions = %d, want 0", n)
			}
		})
	}
}

func TestActions_PostToNamedPath(t *testing.T) {
	srv, _ := testServer(t)
	w := do(t, srv.buildRouter(), http.MethodPost, "/actions/fade", `{"fade": {"input": {"brightness": 5}}}`)
	if w.Code != http.StatusCreated {
		t.Errorf("status = %d, want 201", w.Code)
	}
}

func TestActions_ListUnknownKindIsEmpty(t *testing.T) {
	srv, _ := testServer(t)
	w := do(t, srv.buildRouter(), http.MethodGet, "/actions/nothing", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if list := decode[[]any](t, w); len(list) != 0 {
		t.Errorf("list = %v, want empty", list)
	}
}

func TestActions_GetAndDelete(t *testing.T) {
	srv, lamp := testServer(t)
	router := srv.buildRouter()

	action, err := lamp.PerformAction("fade", map[string]any{"brightness": 1.0})
	if err != nil {
		t.Fatalf("PerformAction() error = %v", err)
	}
	path := "/actions/fade/" + action.ID()

	if w := do(t, router, http.MethodGet, path, ""); w.Code != http.StatusOK {
		t.Errorf("GET status = %d, want 200", w.Code)
	}
	if w := do(t, router, http.MethodDelete, path, ""); w.Code != http.StatusNoContent {
		t.Errorf("DELETE status = %d, want 204", w.Code)
	}
	if !action.Cancelled() {
		t.Error("deleted action not cancelled")
	}
	if w := do(t, router, http.MethodGet, path, ""); w.Code != http.StatusNotFound {
		t.Errorf("GET after delete status = %d, want 404", w.Code)
	}
	if w := do(t, router, http.MethodDelete, path, ""); w.Code != http.StatusNotFound {
		t.Errorf("second DELETE status = %d, want 404", w.Code)
	}
	if w := do(t, router, http.MethodGet, "/actions/other/"+action.ID(), ""); w.Code != http.StatusNotFound {
		t.Errorf("GET under wrong kind status = %d, want 404", w.Code)
	}
}

// ─── Events ────────────────────────────────────────────────────────

func TestEvents(t *testing.T) {
	srv, lamp := testServer(t)
	router := srv.buildRouter()

	lamp.AddEvent(thing.NewEvent("overheated", 102.0))

	w := do(t, router, http.MethodGet, "/events", "")
	list := decode[[]map[string]map[string]any](t, w)
	if len(list) != 1 || list[0]["overheated"]["data"] != 102.0 {
		t.Errorf("events = %v", list)
	}

	w = do(t, router, http.MethodGet, "/events/overheated", "")
	if list := decode[[]any](t, w); len(list) != 1 {
		t.Errorf("events/overheated = %v", list)
	}
	w = do(t, router, http.MethodGet, "/events/motion", "")
	if list := decode[[]any](t, w); len(list) != 0 {
		t.Errorf("events/motion = %v, want empty", list)
	}
}

// ─── Auth ──────────────────────────────────────────────────────────

func TestAuth(t *testing.T) {
	lamp := testLamp(t, "lamp")
	router := testServerWith(t, testSecret, false, lamp).buildRouter()

	viewer, err := auth.GenerateToken("viewer", auth.RoleViewer, testSecret, time.Hour)
	if err != nil {
		t.Fatalf("GenerateToken(viewer) error = %v", err)
	}
	operator, err := auth.GenerateToken("op", auth.RoleOperator, testSecret, time.Hour)
	if err != nil {
		t.Fatalf("GenerateToken(operator) error = %v", err)
	}
	wrongKey, err := auth.GenerateToken("op", auth.RoleOperator, "another-secret-key-of-sufficient-length", time.Hour)
	if err != nil {
		t.Fatalf("GenerateToken(wrong key) error = %v", err)
	}

	tests := []struct {
		name       string
		method     string
		path       string
		body       string
		token      string
		wantStatus int
	}{
		{"health needs no token", http.MethodGet, "/health", "", "", http.StatusOK},
		{"missing token", http.MethodGet, "/properties", "", "", http.StatusUnauthorized},
		{"wrong signing key", http.MethodGet, "/properties", "", wrongKey, http.StatusUnauthorized},
		{"viewer reads", http.MethodGet, "/properties", "", viewer, http.StatusOK},
		{"viewer cannot write", http.MethodPut, "/properties/level", `{"level": 1}`, viewer, http.StatusForbidden},
		{"operator writes", http.MethodPut, "/properties/level", `{"level": 1}`, operator, http.StatusOK},
		{"viewer cannot request", http.MethodPost, "/actions", `{"fade": {"input": {"brightness": 1}}}`, viewer, http.StatusForbidden},
		{"operator requests", http.MethodPost, "/actions", `{"fade": {"input": {"brightness": 1}}}`, operator, http.StatusCreated},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var header []string
			if tt.token != "" {
				header = []string{"Authorization", "Bearer " + tt.token}
			}
			w := do(t, router, tt.method, tt.path, tt.body, header...)
			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d (body %s)", w.Code, tt.wantStatus, w.Body.String())
			}
			if w.Code == http.StatusUnauthorized && w.Header().Get("WWW-Authenticate") == "" {
				t.Error("401 without WWW-Authenticate header")
			}
		})
	}

	w := do(t, router, http.MethodGet, "/properties?jwt="+viewer, "")
	if w.Code != http.StatusOK {
		t.Errorf("query token status = %d, want 200", w.Code)
	}
}

// ─── Middleware ────────────────────────────────────────────────────

func TestRequestID(t *testing.T) {
	srv, _ := testServer(t)
	router := srv.buildRouter()

	w := do(t, router, http.MethodGet, "/health", "")
	if w.Header().Get("X-Request-ID") == "" {
		t.Error("expected X-Request-ID header to be set")
	}

	w = do(t, router, http.MethodGet, "/health", "", "X-Request-ID", "client-123")
	if got := w.Header().Get("X-Request-ID"); got != "client-123" {
		t.Errorf("X-Request-ID = %q, want client-123", got)
	}
}

func TestCORS_Preflight(t *testing.T) {
	srv, _ := testServer(t)
	w := do(t, srv.buildRouter(), http.MethodOptions, "/properties", "", "Origin", "http://localhost:3000")

	if w.Code != http.StatusNoContent {
		t.Errorf("preflight status = %d, want %d", w.Code, http.StatusNoContent)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:3000" {
		t.Errorf("ACAO = %q, want http://localhost:3000", got)
	}
}

func TestHostValidation(t *testing.T) {
	srv, _ := testServer(t)
	srv.allowedHosts = map[string]struct{}{"lamp.local": {}}
	router := srv.buildRouter()

	tests := []struct {
		host       string
		wantStatus int
	}{
		{"lamp.local", http.StatusOK},
		{"lamp.local:8888", http.StatusOK},
		{"LAMP.local", http.StatusOK},
		{"evil.example", http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.host, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/properties", nil)
			req.Host = tt.host
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)
			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
		})
	}
}

func TestRecovery(t *testing.T) {
	srv, _ := testServer(t)
	var calls atomic.Int32
	h := srv.recoveryMiddleware(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		calls.Add(1)
		panic("boom")
	}))

	w := do(t, h, http.MethodGet, "/", "")
	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", w.Code)
	}
	if calls.Load() != 1 {
		t.Errorf("handler calls = %d, want 1", calls.Load())
	}
}

func TestNotFound(t *testing.T) {
	srv, _ := testServer(t)
	w := do(t, srv.buildRouter(), http.MethodGet, "/nonexistent", "")
	if w.Code != http.StatusNotFound {
		t.Errorf("unknown route status = %d, want %d", w.Code, http.StatusNotFound)
	}
}
