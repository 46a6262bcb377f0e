package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/webthing-gateway/internal/auth"
	"github.com/nerrad567/webthing-gateway/internal/thing"
)

// dialThing serves router over a real listener and opens a WebSocket to path.
func dialThing(t *testing.T, router http.Handler, path string) *websocket.Conn {
	t.Helper()

	ts := httptest.NewServer(router)
	t.Cleanup(ts.Close)

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + path
	ws, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("websocket dial failed: %v (resp: %v)", err, resp)
	}
	t.Cleanup(func() { ws.Close() })
	return ws
}

// readMessage reads the next envelope or fails the test.
func readMessage(t *testing.T, ws *websocket.Conn) thing.Message {
	t.Helper()
	//nolint:errcheck // test deadline
	ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg thing.Message
	if err := ws.ReadJSON(&msg); err != nil {
		t.Fatalf("read message: %v", err)
	}
	return msg
}

// expectSilence fails if a message arrives within a short window.
func expectSilence(t *testing.T, ws *websocket.Conn) {
	t.Helper()
	//nolint:errcheck // test deadline
	ws.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
	var msg thing.Message
	if err := ws.ReadJSON(&msg); err == nil {
		t.Fatalf("unexpected message: %+v", msg)
	}
}

func errorData(t *testing.T, msg thing.Message) map[string]any {
	t.Helper()
	if msg.MessageType != thing.MessageError {
		t.Fatalf("messageType = %q, want error (data %v)", msg.MessageType, msg.Data)
	}
	data, ok := msg.Data.(map[string]any)
	if !ok {
		t.Fatalf("error data = %T", msg.Data)
	}
	return data
}

// waitForSubscriber blocks until the Thing has n WebSocket subscribers.
func waitForSubscriber(t *testing.T, th *thing.Thing, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for th.SubscriberCount() != n {
		if time.Now().After(deadline) {
			t.Fatalf("SubscriberCount = %d, want %d", th.SubscriberCount(), n)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// ─── Hub ───────────────────────────────────────────────────────────

func TestHub_ClientCount(t *testing.T) {
	srv, lamp := testServer(t)
	hub := srv.hub

	if hub.ClientCount() != 0 {
		t.Errorf("initial client count = %d, want 0", hub.ClientCount())
	}

	client := &WSClient{
		hub:   hub,
		thing: lamp,
		send:  make(chan []byte, wsSendBufferSize),
	}
	hub.Register(client)

	if hub.ClientCount() != 1 {
		t.Errorf("after register count = %d, want 1", hub.ClientCount())
	}

	hub.Unregister(client)
	hub.Unregister(client)

	if hub.ClientCount() != 0 {
		t.Errorf("after unregister count = %d, want 0", hub.ClientCount())
	}
	if err := client.Send([]byte("x")); !errors.Is(err, ErrClientClosed) {
		t.Errorf("Send after unregister = %v, want ErrClientClosed", err)
	}
}

func TestWSClient_SendBufferFull(t *testing.T) {
	_, lamp := testServer(t)
	client := &WSClient{thing: lamp, send: make(chan []byte, 1)}

	if err := client.Send([]byte("a")); err != nil {
		t.Fatalf("first Send() error = %v", err)
	}
	if err := client.Send([]byte("b")); !errors.Is(err, ErrClientBufferFull) {
		t.Errorf("second Send() = %v, want ErrClientBufferFull", err)
	}
}

// ─── Push channel ──────────────────────────────────────────────────

func TestWebSocket_PropertyStatusPush(t *testing.T) {
	srv, lamp := testServer(t)
	ws := dialThing(t, srv.buildRouter(), "/")
	waitForSubscriber(t, lamp, 1)

	if err := lamp.SetProperty("level", 33.0); err != nil {
		t.Fatalf("SetProperty() error = %v", err)
	}

	msg := readMessage(t, ws)
	if msg.MessageType != thing.MessagePropertyStatus {
		t.Fatalf("messageType = %q, want propertyStatus", msg.MessageType)
	}
	if data, _ := msg.Data.(map[string]any); data["level"] != 33.0 {
		t.Errorf("data = %v, want level 33", msg.Data)
	}
}

func TestWebSocket_SetProperty(t *testing.T) {
	srv, lamp := testServer(t)
	ws := dialThing(t, srv.buildRouter(), "/")
	waitForSubscriber(t, lamp, 1)

	err := ws.WriteMessage(websocket.TextMessage,
		[]byte(`{"messageType":"setProperty","data":{"level":10,"missing":1,"temperature":5}}`))
	if err != nil {
		t.Fatalf("write: %v", err)
	}

	// Entries apply in order: a push for level, then one error per bad entry.
	msg := readMessage(t, ws)
	if msg.MessageType != thing.MessagePropertyStatus {
		t.Fatalf("first messageType = %q, want propertyStatus", msg.MessageType)
	}
	if data := errorData(t, readMessage(t, ws)); data["status"] != wsStatusNotFound {
		t.Errorf("missing property status = %v, want %s", data["status"], wsStatusNotFound)
	}
	if data := errorData(t, readMessage(t, ws)); data["status"] != wsStatusBadRequest {
		t.Errorf("read-only status = %v, want %s", data["status"], wsStatusBadRequest)
	}

	if v, _ := lamp.PropertyValue("level"); v != 10.0 {
		t.Errorf("level = %v, want 10", v)
	}
}

func TestWebSocket_ForwardFailure(t *testing.T) {
	srv, lamp := testServer(t)
	ws := dialThing(t, srv.buildRouter(), "/")
	waitForSubscriber(t, lamp, 1)

	if err := ws.WriteJSON(map[string]any{
		"messageType": "setProperty",
		"data":        map[string]any{"level": 95},
	}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if data := errorData(t, readMessage(t, ws)); data["status"] != wsStatusInternal {
		t.Errorf("status = %v, want %s", data["status"], wsStatusInternal)
	}
	expectSilence(t, ws)
}

func TestWebSocket_RequestAction(t *testing.T) {
	srv, lamp := testServer(t)
	ws := dialThing(t, srv.buildRouter(), "/")
	waitForSubscriber(t, lamp, 1)

	if err := ws.WriteJSON(map[string]any{
		"messageType": "requestAction",
		"data":        map[string]any{"fade": map[string]any{"input": map[string]any{"brightness": 20}}},
	}); err != nil {
		t.Fatalf("write: %v", err)
	}

	want := []string{"created", "pending", "completed"}
	for _, status := range want {
		msg := readMessage(t, ws)
		if msg.MessageType != thing.MessageActionStatus {
			t.Fatalf("messageType = %q, want actionStatus", msg.MessageType)
		}
		data, _ := msg.Data.(map[string]any)
		fade, _ := data["fade"].(map[string]any)
		if fade["status"] != status {
			t.Fatalf("status = %v, want %s", fade["status"], status)
		}
	}
}

func TestWebSocket_InvalidActionRequest(t *testing.T) {
	srv, lamp := testServer(t)
	ws := dialThing(t, srv.buildRouter(), "/")
	waitForSubscriber(t, lamp, 1)

	if err := ws.WriteJSON(map[string]any{
		"messageType": "requestAction",
		"data":        map[string]any{"fade": map[string]any{"input": map[string]any{"brightness": 900}}},
	}); err != nil {
		t.Fatalf("write: %v", err)
	}
	data := errorData(t, readMessage(t, ws))
	if data["status"] != wsStatusBadRequest || data["message"] != "Invalid action request" {
		t.Errorf("error = %v", data)
	}
	if n := len(lamp.ActionDescriptions("")); n != 0 {
		t.Errorf("ActionDescriptions = %d, want 0", n)
	}
}

func TestWebSocket_EventSubscription(t *testing.T) {
	srv, lamp := testServer(t)
	ws := dialThing(t, srv.buildRouter(), "/")
	waitForSubscriber(t, lamp, 1)

	// Not yet subscribed: this one must never arrive.
	lamp.AddEvent(thing.NewEvent("overheated", 101.0))

	if err := ws.WriteJSON(map[string]any{
		"messageType": "addEventSubscription",
		"data":        map[string]any{"overheated": map[string]any{}, "undeclared": map[string]any{}},
	}); err != nil {
		t.Fatalf("write: %v", err)
	}
	// The subscription is applied asynchronously by the read pump.
	time.Sleep(50 * time.Millisecond)

	lamp.AddEvent(thing.NewEvent("overheated", 102.0))
	msg := readMessage(t, ws)
	if msg.MessageType != thing.MessageEvent {
		t.Fatalf("messageType = %q, want event", msg.MessageType)
	}
	data, _ := msg.Data.(map[string]any)
	ev, _ := data["overheated"].(map[string]any)
	if ev["data"] != 102.0 {
		t.Errorf("event data = %v, want 102", ev["data"])
	}
}

func TestWebSocket_MalformedMessages(t *testing.T) {
	tests := []struct {
		name        string
		raw         string
		wantMessage string
	}{
		{"not json", `not json`, "Parsing request failed"},
		{"missing messageType", `{"data":{}}`, "Invalid message"},
		{"missing data", `{"messageType":"setProperty"}`, "Invalid message"},
		{"data not object", `{"messageType":"setProperty","data":[1]}`, "Invalid message"},
		{"unknown type", `{"messageType":"reboot","data":{}}`, "Unknown messageType: reboot"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, lamp := testServer(t)
			ws := dialThing(t, srv.buildRouter(), "/")
			waitForSubscriber(t, lamp, 1)

			if err := ws.WriteMessage(websocket.TextMessage, []byte(tt.raw)); err != nil {
				t.Fatalf("write: %v", err)
			}
			data := errorData(t, readMessage(t, ws))
			if data["status"] != wsStatusBadRequest {
				t.Errorf("status = %v, want %s", data["status"], wsStatusBadRequest)
			}
			if data["message"] != tt.wantMessage {
				t.Errorf("message = %v, want %s", data["message"], tt.wantMessage)
			}
		})
	}
}

func TestWebSocket_DisconnectDetaches(t *testing.T) {
	srv, lamp := testServer(t)
	ws := dialThing(t, srv.buildRouter(), "/")
	waitForSubscriber(t, lamp, 1)

	if srv.hub.ClientCount() != 1 {
		t.Errorf("hub client count = %d, want 1", srv.hub.ClientCount())
	}
	ws.Close()
	waitForSubscriber(t, lamp, 0)

	if err := lamp.SetProperty("level", 5.0); err != nil {
		t.Errorf("SetProperty() after disconnect error = %v", err)
	}
}

func TestWebSocket_MultipleMode(t *testing.T) {
	a := testLamp(t, "lamp-a")
	b := testLamp(t, "lamp-b")
	srv := testServerWith(t, "", true, a, b)
	ws := dialThing(t, srv.buildRouter(), "/1")
	waitForSubscriber(t, b, 1)

	if err := a.SetProperty("level", 1.0); err != nil {
		t.Fatalf("SetProperty(a) error = %v", err)
	}
	expectSilence(t, ws)
}

func TestWebSocket_ViewerCannotWrite(t *testing.T) {
	lamp := testLamp(t, "lamp")
	srv := testServerWith(t, testSecret, false, lamp)
	token, err := auth.GenerateToken("viewer", auth.RoleViewer, testSecret, time.Hour)
	if err != nil {
		t.Fatalf("GenerateToken() error = %v", err)
	}
	ws := dialThing(t, srv.buildRouter(), "/?jwt="+token)
	waitForSubscriber(t, lamp, 1)

	for _, raw := range []string{
		`{"messageType":"setProperty","data":{"level":10}}`,
		`{"messageType":"requestAction","data":{"fade":{"input":{"brightness":1}}}}`,
	} {
		if err := ws.WriteMessage(websocket.TextMessage, []byte(raw)); err != nil {
			t.Fatalf("write: %v", err)
		}
		if data := errorData(t, readMessage(t, ws)); data["status"] != wsStatusForbidden {
			t.Errorf("status = %v, want %s", data["status"], wsStatusForbidden)
		}
	}
	if v, _ := lamp.PropertyValue("level"); v != 0.0 {
		t.Errorf("level = %v, want unchanged 0", v)
	}
}

func TestOrderedMembers(t *testing.T) {
	members, err := orderedMembers(json.RawMessage(`{"z":1,"a":{"b":2},"m":"x"}`))
	if err != nil {
		t.Fatalf("orderedMembers() error = %v", err)
	}
	var names []string
	for _, m := range members {
		names = append(names, m.name)
	}
	if strings.Join(names, ",") != "z,a,m" {
		t.Errorf("order = %v, want z,a,m", names)
	}

	for _, bad := range []string{`[1]`, `"s"`, `{"a":}`} {
		if _, err := orderedMembers(json.RawMessage(bad)); err == nil {
			t.Errorf("orderedMembers(%s) = nil error", bad)
		}
	}
}
