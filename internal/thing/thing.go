package thing

import (
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
)

// DefaultContext is the @context advertised when none is set.
const DefaultContext = "https://webthings.io/schemas"

// Message types carried in the messageType field of WebSocket envelopes.
const (
	MessageSetProperty          = "setProperty"
	MessageRequestAction        = "requestAction"
	MessageAddEventSubscription = "addEventSubscription"
	MessagePropertyStatus       = "propertyStatus"
	MessageActionStatus         = "actionStatus"
	MessageEvent                = "event"
	MessageError                = "error"
)

// Message is the envelope exchanged over a Thing's WebSocket.
type Message struct {
	MessageType string `json:"messageType"`
	Data        any    `json:"data"`
}

// Subscriber receives serialised notifications for one Thing.
//
// Send must not block. An error is logged and the message dropped for that
// subscriber only.
type Subscriber interface {
	Send(msg []byte) error
}

// Listener observes state changes in-process, after subscribers were pushed.
//
// Callbacks run on the writer's goroutine while its ordering lock is held and
// must not block or call back into the Thing.
type Listener interface {
	PropertyChanged(t *Thing, name string, value any)
	ActionStatusChanged(t *Thing, state ActionState)
	EventAdded(t *Thing, e *Event)
}

// Logger defines the logging interface used by Things.
// Compatible with *logging.Logger and *slog.Logger.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// actionKind is a registered action type.
type actionKind struct {
	metadata map[string]any
	input    Validator
	factory  ActionFactory
}

// Thing is a WebThing: a device exposed through properties, actions and events.
type Thing struct {
	id          string
	title       string
	types       []string
	description string

	// eventMu keeps log order and push order identical across concurrent AddEvent calls.
	eventMu sync.Mutex

	mu               sync.RWMutex
	context          string
	uiHref           string
	hrefPrefix       string
	properties       map[string]*Property
	actionKinds      map[string]*actionKind
	actions          map[string][]*Action
	eventKinds       map[string]map[string]any
	events           []*Event
	subscribers      map[Subscriber]struct{}
	eventSubscribers map[string]map[Subscriber]struct{}
	listeners        []Listener
	logger           Logger
}

// New creates an empty Thing.
//
// Parameters:
//   - id: Unique identifier, typically a URI
//   - title: Human readable name
//   - types: Semantic @type tags (may be nil)
//   - description: Free text description (may be empty)
func New(id, title string, types []string, description string) *Thing {
	return &Thing{
		id:               id,
		title:            title,
		types:            types,
		description:      description,
		context:          DefaultContext,
		properties:       make(map[string]*Property),
		actionKinds:      make(map[string]*actionKind),
		actions:          make(map[string][]*Action),
		eventKinds:       make(map[string]map[string]any),
		subscribers:      make(map[Subscriber]struct{}),
		eventSubscribers: make(map[string]map[Subscriber]struct{}),
		logger:           noopLogger{},
	}
}

// SetLogger sets the logger used for delivery failures and action errors.
func (t *Thing) SetLogger(logger Logger) {
	t.mu.Lock()
	t.logger = logger
	t.mu.Unlock()
}

func (t *Thing) log() Logger {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.logger
}

// ID returns the Thing id.
func (t *Thing) ID() string { return t.id }

// Title returns the Thing title.
func (t *Thing) Title() string { return t.title }

// Types returns the @type tags.
func (t *Thing) Types() []string { return t.types }

// Description returns the free text description.
func (t *Thing) Description() string { return t.description }

// SetContext overrides the @context value.
func (t *Thing) SetContext(ctx string) {
	t.mu.Lock()
	t.context = ctx
	t.mu.Unlock()
}

// SetUIHref sets the optional link to a human-facing UI.
func (t *Thing) SetUIHref(href string) {
	t.mu.Lock()
	t.uiHref = href
	t.mu.Unlock()
}

// HrefPrefix returns the routing prefix ("" when the Thing is served at /).
func (t *Thing) HrefPrefix() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.hrefPrefix
}

// Href returns the Thing's root path.
func (t *Thing) Href() string {
	if p := t.HrefPrefix(); p != "" {
		return p
	}
	return "/"
}

// SetHrefPrefix changes the routing prefix of the Thing and every owned
// property and live action.
func (t *Thing) SetHrefPrefix(prefix string) {
	t.mu.Lock()
	t.hrefPrefix = prefix
	props := make([]*Property, 0, len(t.properties))
	for _, p := range t.properties {
		props = append(props, p)
	}
	var actions []*Action
	for _, list := range t.actions {
		actions = append(actions, list...)
	}
	t.mu.Unlock()

	for _, p := range props {
		p.setHrefPrefix(prefix)
	}
	for _, a := range actions {
		a.setHrefPrefix(prefix)
	}
}

// AddListener registers an in-process observer.
func (t *Thing) AddListener(l Listener) {
	t.mu.Lock()
	t.listeners = append(t.listeners, l)
	t.mu.Unlock()
}

func (t *Thing) listenerSnapshot() []Listener {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return append([]Listener(nil), t.listeners...)
}

// ─── Properties ────────────────────────────────────────────────────

// AddProperty attaches p to the Thing and starts observing its Value.
func (t *Thing) AddProperty(p *Property) error {
	t.mu.Lock()
	if _, exists := t.properties[p.name]; exists {
		t.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrPropertyExists, p.name)
	}
	t.properties[p.name] = p
	prefix := t.hrefPrefix
	t.mu.Unlock()

	p.setHrefPrefix(prefix)
	name := p.name
	p.value.observe(func(v any) {
		t.propertyNotify(name, v)
	})
	return nil
}

// RemoveProperty detaches a property. Its Value stops notifying the Thing.
func (t *Thing) RemoveProperty(name string) bool {
	t.mu.Lock()
	p, ok := t.properties[name]
	delete(t.properties, name)
	t.mu.Unlock()
	if ok {
		p.value.observe(nil)
	}
	return ok
}

// Property returns the named property.
func (t *Thing) Property(name string) (*Property, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	p, ok := t.properties[name]
	return p, ok
}

// HasProperty reports whether the named property exists.
func (t *Thing) HasProperty(name string) bool {
	_, ok := t.Property(name)
	return ok
}

// PropertyNames returns the property names in sorted order.
func (t *Thing) PropertyNames() []string {
	t.mu.RLock()
	names := make([]string, 0, len(t.properties))
	for name := range t.properties {
		names = append(names, name)
	}
	t.mu.RUnlock()
	sort.Strings(names)
	return names
}

// PropertyValue returns the current value of the named property.
func (t *Thing) PropertyValue(name string) (any, error) {
	p, ok := t.Property(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrPropertyNotFound, name)
	}
	return p.GetValue(), nil
}

// Properties returns a map of every property name to its current value.
func (t *Thing) Properties() map[string]any {
	t.mu.RLock()
	props := make([]*Property, 0, len(t.properties))
	for _, p := range t.properties {
		props = append(props, p)
	}
	t.mu.RUnlock()

	values := make(map[string]any, len(props))
	for _, p := range props {
		values[p.name] = p.GetValue()
	}
	return values
}

// SetProperty validates and writes a property value.
//
// Returns:
//   - error: ErrPropertyNotFound, an ErrValidation descendant, ErrNoForwarder
//     or ErrForwardFailed
func (t *Thing) SetProperty(name string, v any) error {
	p, ok := t.Property(name)
	if !ok {
		return fmt.Errorf("%w: %s", ErrPropertyNotFound, name)
	}
	return p.SetValue(v)
}

// PropertyDescriptions returns the description of every property keyed by name.
func (t *Thing) PropertyDescriptions() map[string]any {
	t.mu.RLock()
	props := make([]*Property, 0, len(t.properties))
	for _, p := range t.properties {
		props = append(props, p)
	}
	t.mu.RUnlock()

	descs := make(map[string]any, len(props))
	for _, p := range props {
		descs[p.name] = p.AsDescription()
	}
	return descs
}

// ─── Actions ───────────────────────────────────────────────────────

// AddAvailableAction registers an action kind.
//
// The optional "input" object in metadata is the JSON schema each request's
// input must satisfy. Without it any input, including none, is accepted.
func (t *Thing) AddAvailableAction(name string, metadata map[string]any, factory ActionFactory) error {
	if metadata == nil {
		metadata = map[string]any{}
	}
	input, err := NewSchemaValidator(ActionInputSchema(metadata))
	if err != nil {
		return fmt.Errorf("action %q: %w", name, err)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.actionKinds[name] = &actionKind{
		metadata: metadata,
		input:    input,
		factory:  factory,
	}
	if _, ok := t.actions[name]; !ok {
		t.actions[name] = nil
	}
	return nil
}

// ActionNames returns the declared action kinds in sorted order.
func (t *Thing) ActionNames() []string {
	t.mu.RLock()
	names := make([]string, 0, len(t.actionKinds))
	for name := range t.actionKinds {
		names = append(names, name)
	}
	t.mu.RUnlock()
	sort.Strings(names)
	return names
}

// PerformAction validates input, then creates and registers a new Action.
//
// The created notification has been pushed when PerformAction returns. The
// caller starts execution with Action.Start.
//
// Returns:
//   - *Action: Registered action in the created state
//   - error: ErrUnknownAction or ErrInvalidActionInput; no action is registered
func (t *Thing) PerformAction(name string, input any) (*Action, error) {
	t.mu.RLock()
	kind, ok := t.actionKinds[name]
	t.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownAction, name)
	}

	if err := kind.input.Validate(input); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrInvalidActionInput, name, err)
	}

	var performer Performer
	if kind.factory != nil {
		performer = kind.factory(input)
	}

	t.mu.Lock()
	a := newAction(uuid.NewString(), name, input, performer, t.hrefPrefix, t.actionNotify, t.logger)
	t.actions[name] = append(t.actions[name], a)
	t.mu.Unlock()

	a.mu.Lock()
	a.emitLocked()
	a.mu.Unlock()
	return a, nil
}

// Action returns the live action with the given kind and id.
func (t *Thing) Action(name, id string) (*Action, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for _, a := range t.actions[name] {
		if a.id == id {
			return a, true
		}
	}
	return nil, false
}

// RemoveAction cancels a live action and drops it from tracking.
// No notification is emitted.
func (t *Thing) RemoveAction(name, id string) bool {
	t.mu.Lock()
	list := t.actions[name]
	var found *Action
	for i, a := range list {
		if a.id == id {
			found = a
			t.actions[name] = append(list[:i:i], list[i+1:]...)
			break
		}
	}
	t.mu.Unlock()

	if found == nil {
		return false
	}
	found.Cancel()
	return true
}

// ActionDescriptions returns descriptions of live actions. An empty name
// returns every kind, sorted by kind; within a kind actions keep request order.
func (t *Thing) ActionDescriptions(name string) []map[string]any {
	t.mu.RLock()
	var actions []*Action
	if name != "" {
		actions = append(actions, t.actions[name]...)
	} else {
		kinds := make([]string, 0, len(t.actions))
		for k := range t.actions {
			kinds = append(kinds, k)
		}
		sort.Strings(kinds)
		for _, k := range kinds {
			actions = append(actions, t.actions[k]...)
		}
	}
	t.mu.RUnlock()

	descs := make([]map[string]any, 0, len(actions))
	for _, a := range actions {
		descs = append(descs, a.Description())
	}
	return descs
}

// ─── Events ────────────────────────────────────────────────────────

// AddAvailableEvent declares an event kind. Only declared kinds are pushed
// to subscribers.
func (t *Thing) AddAvailableEvent(name string, metadata map[string]any) {
	if metadata == nil {
		metadata = map[string]any{}
	}
	t.mu.Lock()
	t.eventKinds[name] = metadata
	if _, ok := t.eventSubscribers[name]; !ok {
		t.eventSubscribers[name] = make(map[Subscriber]struct{})
	}
	t.mu.Unlock()
}

// HasEvent reports whether name is a declared event kind.
func (t *Thing) HasEvent(name string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.eventKinds[name]
	return ok
}

// AddEvent appends e to the event log and pushes it to the subscribers of
// its kind. Events of undeclared kinds are logged but never pushed.
func (t *Thing) AddEvent(e *Event) {
	t.eventMu.Lock()
	defer t.eventMu.Unlock()

	t.mu.Lock()
	t.events = append(t.events, e)
	t.mu.Unlock()

	t.eventNotify(e)

	for _, l := range t.listenerSnapshot() {
		l.EventAdded(t, e)
	}
}

// EventDescriptions returns logged events in order, optionally filtered by kind.
func (t *Thing) EventDescriptions(name string) []map[string]any {
	t.mu.RLock()
	events := append([]*Event(nil), t.events...)
	t.mu.RUnlock()

	descs := make([]map[string]any, 0, len(events))
	for _, e := range events {
		if name == "" || e.name == name {
			descs = append(descs, e.Description())
		}
	}
	return descs
}

// ─── Subscribers ───────────────────────────────────────────────────

// AddSubscriber registers s for property and action notifications.
func (t *Thing) AddSubscriber(s Subscriber) {
	t.mu.Lock()
	t.subscribers[s] = struct{}{}
	t.mu.Unlock()
}

// RemoveSubscriber drops s from the global set and from every event kind.
func (t *Thing) RemoveSubscriber(s Subscriber) {
	t.mu.Lock()
	delete(t.subscribers, s)
	for _, subs := range t.eventSubscribers {
		delete(subs, s)
	}
	t.mu.Unlock()
}

// AddEventSubscriber subscribes s to one event kind. Undeclared kinds are ignored.
func (t *Thing) AddEventSubscriber(name string, s Subscriber) {
	t.mu.Lock()
	if subs, ok := t.eventSubscribers[name]; ok {
		subs[s] = struct{}{}
	}
	t.mu.Unlock()
}

// RemoveEventSubscriber unsubscribes s from one event kind.
func (t *Thing) RemoveEventSubscriber(name string, s Subscriber) {
	t.mu.Lock()
	if subs, ok := t.eventSubscribers[name]; ok {
		delete(subs, s)
	}
	t.mu.Unlock()
}

// SubscriberCount returns the number of global subscribers.
func (t *Thing) SubscriberCount() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.subscribers)
}

// ─── Notification fan-out ──────────────────────────────────────────

func (t *Thing) propertyNotify(name string, value any) {
	t.broadcast(Message{
		MessageType: MessagePropertyStatus,
		Data:        map[string]any{name: value},
	}, t.globalSubscribers())

	for _, l := range t.listenerSnapshot() {
		l.PropertyChanged(t, name, value)
	}
}

func (t *Thing) actionNotify(state ActionState) {
	t.broadcast(Message{
		MessageType: MessageActionStatus,
		Data:        state.Description(),
	}, t.globalSubscribers())

	for _, l := range t.listenerSnapshot() {
		l.ActionStatusChanged(t, state)
	}
}

func (t *Thing) eventNotify(e *Event) {
	t.mu.RLock()
	_, declared := t.eventKinds[e.name]
	subs := make([]Subscriber, 0, len(t.eventSubscribers[e.name]))
	for s := range t.eventSubscribers[e.name] {
		subs = append(subs, s)
	}
	t.mu.RUnlock()

	if !declared {
		return
	}
	t.broadcast(Message{
		MessageType: MessageEvent,
		Data:        e.Description(),
	}, subs)
}

func (t *Thing) globalSubscribers() []Subscriber {
	t.mu.RLock()
	defer t.mu.RUnlock()
	subs := make([]Subscriber, 0, len(t.subscribers))
	for s := range t.subscribers {
		subs = append(subs, s)
	}
	return subs
}

// broadcast serialises msg once and pushes it to every subscriber in subs.
// A failing subscriber never affects the others or the caller.
func (t *Thing) broadcast(msg Message, subs []Subscriber) {
	if len(subs) == 0 {
		return
	}
	data, err := json.Marshal(msg)
	if err != nil {
		t.log().Error("failed to marshal notification",
			"thing", t.id,
			"message_type", msg.MessageType,
			"error", fmt.Errorf("%w: %w", ErrSerialization, err),
		)
		return
	}
	for _, s := range subs {
		if err := s.Send(data); err != nil {
			t.log().Debug("notification dropped",
				"thing", t.id,
				"message_type", msg.MessageType,
				"error", err,
			)
		}
	}
}

// ─── Description ───────────────────────────────────────────────────

// AsThingDescription returns the Thing Description document.
//
// Serving layers add base, security and the WebSocket alternate link.
func (t *Thing) AsThingDescription() map[string]any {
	t.mu.RLock()
	prefix := t.hrefPrefix
	ctx := t.context
	uiHref := t.uiHref
	actions := make(map[string]any, len(t.actionKinds))
	for name, kind := range t.actionKinds {
		actions[name] = describeWithLink(kind.metadata, "action", prefix+"/actions/"+name)
	}
	events := make(map[string]any, len(t.eventKinds))
	for name, meta := range t.eventKinds {
		events[name] = describeWithLink(meta, "event", prefix+"/events/"+name)
	}
	t.mu.RUnlock()

	links := []any{
		map[string]any{"rel": "properties", "href": prefix + "/properties"},
		map[string]any{"rel": "actions", "href": prefix + "/actions"},
		map[string]any{"rel": "events", "href": prefix + "/events"},
	}
	if uiHref != "" {
		links = append(links, map[string]any{
			"rel":       "alternate",
			"mediaType": "text/html",
			"href":      uiHref,
		})
	}

	td := map[string]any{
		"id":         t.id,
		"title":      t.title,
		"@context":   ctx,
		"properties": t.PropertyDescriptions(),
		"actions":    actions,
		"events":     events,
		"links":      links,
	}
	if len(t.types) > 0 {
		td["@type"] = t.types
	}
	if t.description != "" {
		td["description"] = t.description
	}
	return td
}

func describeWithLink(metadata map[string]any, rel, href string) map[string]any {
	desc := make(map[string]any, len(metadata)+1)
	for k, v := range metadata {
		desc[k] = v
	}
	desc["links"] = []any{map[string]any{"rel": rel, "href": href}}
	return desc
}
