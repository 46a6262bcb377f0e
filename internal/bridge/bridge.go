package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nerrad567/webthing-gateway/internal/infrastructure/mqtt"
	"github.com/nerrad567/webthing-gateway/internal/thing"
)

// MQTTClient is the subset of the MQTT client the bridge needs.
// This allows mocking in tests.
type MQTTClient interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	Unsubscribe(topic string) error
	IsConnected() bool
}

// Logger is the logging interface used by the bridge.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Options holds configuration for creating a bridge.
type Options struct {
	// MQTT is the connected client. Required.
	MQTT MQTTClient

	// Topics builds topic names. The zero value uses mqtt.DefaultTopicPrefix.
	Topics mqtt.Topics

	// QoS for publishes and subscriptions.
	QoS byte

	// Logger is optional.
	Logger Logger
}

// Stats counts bridge traffic since start.
type Stats struct {
	CommandsSent   uint64 `json:"commands_sent"`
	ActionsSent    uint64 `json:"actions_sent"`
	StatesApplied  uint64 `json:"states_applied"`
	EventsRaised   uint64 `json:"events_raised"`
	AcksReceived   uint64 `json:"acks_received"`
	InvalidInbound uint64 `json:"invalid_inbound"`
}

// Bridge routes traffic between Things and MQTT devices.
type Bridge struct {
	mqtt   MQTTClient
	topics mqtt.Topics
	qos    byte
	logger Logger

	mu     sync.RWMutex
	things map[string]*thing.Thing

	pendingMu sync.Mutex
	pending   map[string]chan AckMessage

	subscribed []string
	stopOnce   sync.Once

	commandsSent   atomic.Uint64
	actionsSent    atomic.Uint64
	statesApplied  atomic.Uint64
	eventsRaised   atomic.Uint64
	acksReceived   atomic.Uint64
	invalidInbound atomic.Uint64
}

// New creates a bridge. Call Attach for each Thing and then Start.
func New(opts Options) (*Bridge, error) {
	if opts.MQTT == nil {
		return nil, fmt.Errorf("MQTT client is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = noopLogger{}
	}
	return &Bridge{
		mqtt:    opts.MQTT,
		topics:  opts.Topics,
		qos:     opts.QoS,
		logger:  logger,
		things:  make(map[string]*thing.Thing),
		pending: make(map[string]chan AckMessage),
	}, nil
}

// Attach makes t reachable by inbound device traffic addressed to its id.
func (b *Bridge) Attach(t *thing.Thing) {
	b.mu.Lock()
	b.things[t.ID()] = t
	b.mu.Unlock()
}

func (b *Bridge) lookup(id string) (*thing.Thing, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	t, ok := b.things[id]
	return t, ok
}

// Start subscribes to device state, event and acknowledgement topics.
func (b *Bridge) Start(_ context.Context) error {
	for _, topic := range []string{b.topics.AllStates(), b.topics.AllEvents(), b.topics.AllAcks()} {
		if err := b.mqtt.Subscribe(topic, b.qos, b.handleMessage); err != nil {
			return fmt.Errorf("subscribe to %s: %w", topic, err)
		}
		b.subscribed = append(b.subscribed, topic)
		b.logger.Info("subscribed to device topic", "topic", topic)
	}

	b.mu.RLock()
	count := len(b.things)
	b.mu.RUnlock()
	b.logger.Info("device bridge started", "things", count)
	return nil
}

// Stop unsubscribes from device topics. Actions still waiting for an
// acknowledgement are left to their own timeout or cancellation.
func (b *Bridge) Stop() {
	b.stopOnce.Do(func() {
		for _, topic := range b.subscribed {
			if err := b.mqtt.Unsubscribe(topic); err != nil {
				b.logger.Debug("unsubscribe failed", "topic", topic, "error", err)
			}
		}
		b.logger.Info("device bridge stopped")
	})
}

// Stats returns traffic counters.
func (b *Bridge) Stats() Stats {
	return Stats{
		CommandsSent:   b.commandsSent.Load(),
		ActionsSent:    b.actionsSent.Load(),
		StatesApplied:  b.statesApplied.Load(),
		EventsRaised:   b.eventsRaised.Load(),
		AcksReceived:   b.acksReceived.Load(),
		InvalidInbound: b.invalidInbound.Load(),
	}
}

// IsConnected reports whether the underlying MQTT client is connected.
func (b *Bridge) IsConnected() bool {
	return b.mqtt.IsConnected()
}

// ─── Outbound ──────────────────────────────────────────────────────

// Forwarder returns the Value forwarder for one property. It publishes the
// accepted value as a command; a publish failure rejects the write.
func (b *Bridge) Forwarder(thingID, property string) thing.Forwarder {
	topic := b.topics.Command(thingID, property)
	return func(v any) error {
		payload, err := json.Marshal(CommandMessage{
			Thing:     thingID,
			Property:  property,
			Value:     v,
			Timestamp: time.Now().UTC(),
		})
		if err != nil {
			return fmt.Errorf("encoding command: %w", err)
		}
		if err := b.mqtt.Publish(topic, payload, b.qos, false); err != nil {
			return fmt.Errorf("%w: %w", ErrPublish, err)
		}
		b.commandsSent.Add(1)
		return nil
	}
}

// Performer returns the action factory for one action kind. Each body
// publishes an ActionRequest; with a positive timeout it then waits for the
// device acknowledgement, the timeout or cancellation, whichever comes first.
func (b *Bridge) Performer(thingID, action string, timeout time.Duration) thing.ActionFactory {
	topic := b.topics.Action(thingID, action)
	return func(any) thing.Performer {
		return thing.PerformerFunc(func(ctx context.Context, a *thing.Action) error {
			return b.perform(ctx, topic, thingID, a, timeout)
		})
	}
}

func (b *Bridge) perform(ctx context.Context, topic, thingID string, a *thing.Action, timeout time.Duration) error {
	var ack chan AckMessage
	if timeout > 0 {
		ack = make(chan AckMessage, 1)
		b.pendingMu.Lock()
		b.pending[a.ID()] = ack
		b.pendingMu.Unlock()
		defer func() {
			b.pendingMu.Lock()
			delete(b.pending, a.ID())
			b.pendingMu.Unlock()
		}()
	}

	state := a.State()
	payload, err := json.Marshal(ActionRequest{
		ID:            a.ID(),
		Thing:         thingID,
		Action:        a.Name(),
		Input:         a.Input(),
		TimeRequested: state.TimeRequested.UTC(),
		AckTimeout:    timeout.Milliseconds(),
	})
	if err != nil {
		return fmt.Errorf("encoding action request: %w", err)
	}
	if err := b.mqtt.Publish(topic, payload, b.qos, false); err != nil {
		return fmt.Errorf("%w: %w", ErrPublish, err)
	}
	b.actionsSent.Add(1)

	if ack == nil {
		return nil
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case msg := <-ack:
		if msg.Status == AckError {
			return fmt.Errorf("%w: %s", ErrDeviceRejected, msg.Message)
		}
		return nil
	case <-timer.C:
		return fmt.Errorf("%w: %s after %s", ErrAckTimeout, a.ID(), timeout)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ─── Inbound ───────────────────────────────────────────────────────

// handleMessage routes one inbound device message. Malformed messages are
// logged and dropped; returning nil keeps the subscription healthy.
func (b *Bridge) handleMessage(topic string, payload []byte) error {
	dt, ok := b.topics.Parse(topic)
	if !ok {
		b.invalidInbound.Add(1)
		b.logger.Debug("ignoring unrecognised topic", "topic", topic)
		return nil
	}

	switch dt.Category {
	case mqtt.CategoryState:
		b.handleState(dt, payload)
	case mqtt.CategoryEvent:
		b.handleEvent(dt, payload)
	case mqtt.CategoryAck:
		b.handleAck(dt, payload)
	default:
		b.logger.Debug("ignoring outbound category", "topic", topic)
	}
	return nil
}

func (b *Bridge) handleState(dt mqtt.DeviceTopic, payload []byte) {
	t, ok := b.lookup(dt.ThingID)
	if !ok {
		b.invalidInbound.Add(1)
		b.logger.Debug("state for unknown thing", "thing", dt.ThingID)
		return
	}
	p, ok := t.Property(dt.Name)
	if !ok {
		b.invalidInbound.Add(1)
		b.logger.Debug("state for unknown property", "thing", dt.ThingID, "property", dt.Name)
		return
	}

	var msg StateMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		b.invalidInbound.Add(1)
		b.logger.Warn("invalid state payload", "thing", dt.ThingID, "property", dt.Name, "error", err)
		return
	}

	if p.Value().ReportExternalUpdate(msg.Value) {
		b.statesApplied.Add(1)
	}
}

func (b *Bridge) handleEvent(dt mqtt.DeviceTopic, payload []byte) {
	t, ok := b.lookup(dt.ThingID)
	if !ok || !t.HasEvent(dt.Name) {
		b.invalidInbound.Add(1)
		b.logger.Debug("event for unknown thing or kind", "thing", dt.ThingID, "event", dt.Name)
		return
	}

	var msg EventMessage
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &msg); err != nil {
			b.invalidInbound.Add(1)
			b.logger.Warn("invalid event payload", "thing", dt.ThingID, "event", dt.Name, "error", err)
			return
		}
	}

	t.AddEvent(thing.NewEvent(dt.Name, msg.Data))
	b.eventsRaised.Add(1)
}

func (b *Bridge) handleAck(dt mqtt.DeviceTopic, payload []byte) {
	var msg AckMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		b.invalidInbound.Add(1)
		b.logger.Warn("invalid ack payload", "action_id", dt.ActionID, "error", err)
		return
	}
	if msg.Status == "" {
		msg.Status = AckOK
	}

	b.pendingMu.Lock()
	ch, ok := b.pending[dt.ActionID]
	b.pendingMu.Unlock()
	if !ok {
		b.logger.Debug("ack for action not awaiting one", "thing", dt.ThingID, "action", dt.Name, "action_id", dt.ActionID)
		return
	}

	b.acksReceived.Add(1)
	select {
	case ch <- msg:
	default:
	}
}
