package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/webthing-gateway/internal/auth"
	"github.com/nerrad567/webthing-gateway/internal/infrastructure/config"
	"github.com/nerrad567/webthing-gateway/internal/infrastructure/logging"
	"github.com/nerrad567/webthing-gateway/internal/thing"
)

// WebSocket constants.
const (
	// wsSendBufferSize is the per-client outbound message buffer size.
	wsSendBufferSize = 256

	defaultMaxMessageSize = 64 * 1024
	defaultPingInterval   = 30 * time.Second
	defaultPongTimeout    = 10 * time.Second
)

// Error status strings carried in WebSocket error messages.
const (
	wsStatusBadRequest = "400 Bad Request"
	wsStatusForbidden  = "403 Forbidden"
	wsStatusNotFound   = "404 Not Found"
	wsStatusInternal   = "500 Internal Server Error"
)

// Client send errors.
var (
	ErrClientClosed     = errors.New("api: websocket client closed")
	ErrClientBufferFull = errors.New("api: websocket send buffer full")
)

// Hub tracks live WebSocket connections so they can be counted and closed
// together on shutdown.
type Hub struct {
	cfg     config.WebSocketConfig
	logger  *logging.Logger
	clients map[*WSClient]struct{}
	mu      sync.RWMutex
}

// WSClient is one WebSocket connection bound to a Thing. It is registered
// with the Thing as a Subscriber, so pushes arrive through Send.
type WSClient struct {
	hub    *Hub
	thing  *thing.Thing
	conn   *websocket.Conn
	claims *auth.Claims

	mu     sync.Mutex
	send   chan []byte
	closed bool
	events map[string]struct{}
}

// upgrader configures the WebSocket upgrader.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(_ *http.Request) bool {
		// Origin checking is handled by CORS middleware
		return true
	},
}

// NewHub creates a new WebSocket hub.
func NewHub(cfg config.WebSocketConfig, logger *logging.Logger) *Hub {
	return &Hub{
		cfg:     cfg,
		logger:  logger,
		clients: make(map[*WSClient]struct{}),
	}
}

// Run blocks until the context is cancelled, then disconnects every client.
func (h *Hub) Run(ctx context.Context) {
	<-ctx.Done()
	h.closeAll()
}

// Register adds a client to the hub.
func (h *Hub) Register(client *WSClient) {
	h.mu.Lock()
	h.clients[client] = struct{}{}
	h.mu.Unlock()
	h.logger.Debug("websocket client connected", "thing", client.thing.ID(), "clients", h.ClientCount())
}

// Unregister removes a client from the hub.
// Only the goroutine that successfully removes the client from the map
// closes the send channel, preventing double-close panics during shutdown.
func (h *Hub) Unregister(client *WSClient) {
	h.mu.Lock()
	_, existed := h.clients[client]
	delete(h.clients, client)
	h.mu.Unlock()

	if existed {
		client.closeSend()
	}
	h.logger.Debug("websocket client disconnected", "thing", client.thing.ID(), "clients", h.ClientCount())
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// closeAll disconnects all clients and closes their send channels
// so writePump goroutines can exit cleanly.
func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for client := range h.clients {
		client.closeSend()
		if client.conn != nil {
			client.conn.Close()
		}
		delete(h.clients, client)
	}
}

// Send queues a serialised message for the write pump. It never blocks: a
// full buffer drops the message for this client only.
func (c *WSClient) Send(msg []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClientClosed
	}
	select {
	case c.send <- msg:
		return nil
	default:
		return ErrClientBufferFull
	}
}

func (c *WSClient) closeSend() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

// serveWebSocket upgrades r and attaches the connection to t.
func (s *Server) serveWebSocket(w http.ResponseWriter, r *http.Request, t *thing.Thing) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("websocket upgrade failed", "thing", t.ID(), "error", err)
		return
	}

	client := &WSClient{
		hub:    s.hub,
		thing:  t,
		conn:   conn,
		claims: claimsFrom(r.Context()),
		send:   make(chan []byte, wsSendBufferSize),
		events: make(map[string]struct{}),
	}

	s.hub.Register(client)
	t.AddSubscriber(client)

	// Start read/write pumps
	go client.writePump(s.wsCfg)
	go client.readPump(s.wsCfg)
}

// wsTimings resolves the pump settings, filling zero values with defaults.
func wsTimings(cfg config.WebSocketConfig) (maxSize int64, pingInterval, pongWait time.Duration) {
	maxSize = int64(cfg.MaxMessageSize)
	if maxSize <= 0 {
		maxSize = defaultMaxMessageSize
	}
	pingInterval = time.Duration(cfg.PingInterval) * time.Second
	if pingInterval <= 0 {
		pingInterval = defaultPingInterval
	}
	pongWait = time.Duration(cfg.PongTimeout) * time.Second
	if pongWait <= 0 {
		pongWait = defaultPongTimeout
	}
	return maxSize, pingInterval, pongWait
}

// readPump reads messages from the WebSocket connection. On exit the client
// is detached from its Thing so no further pushes are attempted.
func (c *WSClient) readPump(cfg config.WebSocketConfig) {
	defer func() {
		c.detach()
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	maxSize, pingInterval, pongWait := wsTimings(cfg)
	c.conn.SetReadLimit(maxSize)
	//nolint:errcheck // Best-effort deadline on connection setup
	c.conn.SetReadDeadline(time.Now().Add(pingInterval + pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pingInterval + pongWait))
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("websocket read error", "thing", c.thing.ID(), "error", err)
			} else {
				c.hub.logger.Debug("websocket closed", "thing", c.thing.ID(), "error", err)
			}
			return
		}
		// Any client message resets the read deadline.
		//nolint:errcheck // Best-effort deadline reset
		c.conn.SetReadDeadline(time.Now().Add(pingInterval + pongWait))
		c.handleMessage(message)
	}
}

// writePump writes messages to the WebSocket connection.
func (c *WSClient) writePump(cfg config.WebSocketConfig) {
	_, pingInterval, pongWait := wsTimings(cfg)
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			if !ok {
				// Hub closed the channel
				//nolint:errcheck // Best-effort close message
				c.conn.WriteMessage(websocket.CloseMessage, nil)
				return
			}
			//nolint:errcheck // Best-effort deadline; write error caught below
			c.conn.SetWriteDeadline(time.Now().Add(pongWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			//nolint:errcheck // Best-effort deadline; ping error caught below
			c.conn.SetWriteDeadline(time.Now().Add(pongWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// detach removes every subscription this client holds on its Thing.
func (c *WSClient) detach() {
	c.thing.RemoveSubscriber(c)

	c.mu.Lock()
	names := make([]string, 0, len(c.events))
	for name := range c.events {
		names = append(names, name)
	}
	c.mu.Unlock()

	for _, name := range names {
		c.thing.RemoveEventSubscriber(name, c)
	}
}

// wsRequest is an inbound envelope. Data stays raw so its members can be
// processed in the order the client wrote them.
type wsRequest struct {
	MessageType string          `json:"messageType"`
	Data        json.RawMessage `json:"data"`
}

// handleMessage processes an incoming WebSocket message.
func (c *WSClient) handleMessage(raw []byte) {
	var req wsRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		c.sendError(wsStatusBadRequest, "Parsing request failed", nil)
		return
	}
	if req.MessageType == "" || len(req.Data) == 0 {
		c.sendError(wsStatusBadRequest, "Invalid message", raw)
		return
	}

	entries, err := orderedMembers(req.Data)
	if err != nil {
		c.sendError(wsStatusBadRequest, "Invalid message", raw)
		return
	}

	switch req.MessageType {
	case thing.MessageSetProperty:
		c.setProperties(entries)
	case thing.MessageRequestAction:
		c.requestActions(entries)
	case thing.MessageAddEventSubscription:
		c.addEventSubscriptions(entries)
	default:
		c.sendError(wsStatusBadRequest, "Unknown messageType: "+req.MessageType, raw)
	}
}

// setProperties applies each {name: value} in order. A failing entry is
// reported and the rest are still applied.
func (c *WSClient) setProperties(entries []member) {
	if !c.can(auth.PermPropertyWrite) {
		c.sendError(wsStatusForbidden, auth.ErrForbidden.Error(), nil)
		return
	}

	for _, m := range entries {
		var value any
		if err := json.Unmarshal(m.value, &value); err != nil {
			c.sendError(wsStatusBadRequest, "Invalid property value", nil)
			continue
		}
		err := c.thing.SetProperty(m.name, value)
		switch {
		case err == nil:
		case errors.Is(err, thing.ErrPropertyNotFound):
			c.sendError(wsStatusNotFound, err.Error(), nil)
		case errors.Is(err, thing.ErrValidation), errors.Is(err, thing.ErrNoForwarder):
			c.sendError(wsStatusBadRequest, err.Error(), nil)
		default:
			c.hub.logger.Error("websocket property write failed", "thing", c.thing.ID(), "property", m.name, "error", err)
			c.sendError(wsStatusInternal, err.Error(), nil)
		}
	}
}

// requestActions creates and starts one action per {name: {input?}} entry.
func (c *WSClient) requestActions(entries []member) {
	if !c.can(auth.PermActionRequest) {
		c.sendError(wsStatusForbidden, auth.ErrForbidden.Error(), nil)
		return
	}

	for _, m := range entries {
		var params map[string]any
		if err := json.Unmarshal(m.value, &params); err != nil || params == nil {
			c.sendError(wsStatusBadRequest, "Invalid action request", map[string]any{m.name: rawValue(m.value)})
			continue
		}
		action, err := c.thing.PerformAction(m.name, params["input"])
		if err != nil {
			c.sendError(wsStatusBadRequest, "Invalid action request", map[string]any{m.name: params})
			continue
		}
		action.Start()
	}
}

// addEventSubscriptions subscribes the client to each named event kind.
// Undeclared kinds are ignored by the Thing.
func (c *WSClient) addEventSubscriptions(entries []member) {
	for _, m := range entries {
		if !c.thing.HasEvent(m.name) {
			continue
		}
		c.mu.Lock()
		c.events[m.name] = struct{}{}
		c.mu.Unlock()
		c.thing.AddEventSubscriber(m.name, c)
	}
}

func (c *WSClient) can(perm auth.Permission) bool {
	return c.claims == nil || c.claims.Can(perm)
}

// sendError pushes an error message to this client only. request echoes
// the offending input when there is one.
func (c *WSClient) sendError(status, message string, request any) {
	data := map[string]any{
		"status":  status,
		"message": message,
	}
	if raw, ok := request.([]byte); ok {
		request = rawValue(raw)
	}
	if request != nil {
		data["request"] = request
	}

	payload, err := json.Marshal(thing.Message{MessageType: thing.MessageError, Data: data})
	if err != nil {
		c.hub.logger.Error("failed to marshal websocket error", "error", err)
		return
	}
	if err := c.Send(payload); err != nil {
		c.hub.logger.Debug("websocket error dropped", "thing", c.thing.ID(), "error", err)
	}
}

// member is one key/value pair of a JSON object, value left undecoded.
type member struct {
	name  string
	value json.RawMessage
}

// orderedMembers splits a JSON object into its members in document order.
func orderedMembers(data json.RawMessage) ([]member, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, fmt.Errorf("data must be an object")
	}

	var members []member
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		name, ok := tok.(string)
		if !ok {
			return nil, fmt.Errorf("unexpected token %v", tok)
		}
		var value json.RawMessage
		if err := dec.Decode(&value); err != nil {
			return nil, err
		}
		members = append(members, member{name: name, value: value})
	}
	if _, err := dec.Token(); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	return members, nil
}

// rawValue decodes raw for echoing back, falling back to the raw text.
func rawValue(raw []byte) any {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return string(raw)
	}
	return v
}
