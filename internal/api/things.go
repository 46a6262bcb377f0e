package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/nerrad567/webthing-gateway/internal/thing"
)

// handleListThings returns every Thing description (multiple mode).
func (s *Server) handleListThings(w http.ResponseWriter, r *http.Request) {
	descs := make([]map[string]any, 0, len(s.things))
	for _, t := range s.things {
		td := s.describe(r, t)
		td["href"] = t.Href()
		descs = append(descs, td)
	}
	writeJSON(w, http.StatusOK, descs)
}

// handleThing serves the Thing description, or upgrades to the WebSocket
// push channel when the request asks for it.
func (s *Server) handleThing(w http.ResponseWriter, r *http.Request) {
	t := thingFrom(r.Context())
	if websocket.IsWebSocketUpgrade(r) {
		s.serveWebSocket(w, r, t)
		return
	}
	writeJSON(w, http.StatusOK, s.describe(r, t))
}

// ─── Properties ────────────────────────────────────────────────────

func (s *Server) handleGetProperties(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, thingFrom(r.Context()).Properties())
}

func (s *Server) handleGetProperty(w http.ResponseWriter, r *http.Request) {
	t := thingFrom(r.Context())
	name := chi.URLParam(r, "propertyName")

	value, err := t.PropertyValue(name)
	if err != nil {
		writeNotFound(w, "property not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{name: value})
}

// handleSetProperty applies PUT {name: value}. The body is checked before
// the property is looked up, so a malformed body is 400 even for unknown names.
func (s *Server) handleSetProperty(w http.ResponseWriter, r *http.Request) {
	t := thingFrom(r.Context())
	name := chi.URLParam(r, "propertyName")

	body, err := decodeObject(r)
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}
	value, ok := body[name]
	if !ok {
		writeBadRequest(w, fmt.Sprintf("body must contain %q", name))
		return
	}

	if err := t.SetProperty(name, value); err != nil {
		s.writePropertyError(w, t, name, err)
		return
	}

	current, err := t.PropertyValue(name)
	if err != nil {
		writeNotFound(w, "property not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{name: current})
}

func (s *Server) writePropertyError(w http.ResponseWriter, t *thing.Thing, name string, err error) {
	switch {
	case errors.Is(err, thing.ErrPropertyNotFound):
		writeNotFound(w, "property not found")
	case errors.Is(err, thing.ErrValidation), errors.Is(err, thing.ErrNoForwarder):
		writeError(w, http.StatusForbidden, ErrCodeValidation, err.Error())
	default:
		s.logger.Error("property write failed", "thing", t.ID(), "property", name, "error", err)
		writeInternalError(w, "failed to apply property value")
	}
}

// ─── Actions ───────────────────────────────────────────────────────

// handleListActions returns live actions, all kinds or one. An undeclared
// kind yields an empty list.
func (s *Server) handleListActions(w http.ResponseWriter, r *http.Request) {
	t := thingFrom(r.Context())
	writeJSON(w, http.StatusOK, t.ActionDescriptions(chi.URLParam(r, "actionName")))
}

// handleRequestAction accepts {actionName: {input?}} with exactly one key.
// On /actions/{actionName} the key must match the path.
func (s *Server) handleRequestAction(w http.ResponseWriter, r *http.Request) {
	t := thingFrom(r.Context())
	pathName := chi.URLParam(r, "actionName")

	body, err := decodeObject(r)
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}
	if len(body) != 1 {
		writeBadRequest(w, "body must contain exactly one action")
		return
	}

	var name string
	var params any
	for k, v := range body {
		name, params = k, v
	}
	if pathName != "" && name != pathName {
		writeBadRequest(w, "action name does not match path")
		return
	}

	request, ok := params.(map[string]any)
	if !ok {
		writeBadRequest(w, "action request must be an object")
		return
	}

	action, err := t.PerformAction(name, request["input"])
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}
	// Encode before Start so the response always shows the created state.
	desc := action.Description()
	action.Start()

	writeJSON(w, http.StatusCreated, desc)
}

func (s *Server) handleGetAction(w http.ResponseWriter, r *http.Request) {
	t := thingFrom(r.Context())

	action, ok := t.Action(chi.URLParam(r, "actionName"), chi.URLParam(r, "actionID"))
	if !ok {
		writeNotFound(w, "action not found")
		return
	}
	writeJSON(w, http.StatusOK, action.Description())
}

func (s *Server) handleCancelAction(w http.ResponseWriter, r *http.Request) {
	t := thingFrom(r.Context())

	if !t.RemoveAction(chi.URLParam(r, "actionName"), chi.URLParam(r, "actionID")) {
		writeNotFound(w, "action not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ─── Events ────────────────────────────────────────────────────────

func (s *Server) handleListEvents(w http.ResponseWriter, r *http.Request) {
	t := thingFrom(r.Context())
	writeJSON(w, http.StatusOK, t.EventDescriptions(chi.URLParam(r, "eventName")))
}

// decodeObject reads a JSON object body.
func decodeObject(r *http.Request) (map[string]any, error) {
	var body map[string]any
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("invalid JSON body: %w", err)
	}
	if body == nil {
		return nil, errors.New("body must be a JSON object")
	}
	return body, nil
}
