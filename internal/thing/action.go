package thing

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// ActionStatus is the lifecycle state of an Action.
type ActionStatus string

// Action lifecycle states, in the only order they may occur.
const (
	StatusCreated   ActionStatus = "created"
	StatusPending   ActionStatus = "pending"
	StatusCompleted ActionStatus = "completed"
)

func (s ActionStatus) rank() int {
	switch s {
	case StatusCreated:
		return 1
	case StatusPending:
		return 2
	case StatusCompleted:
		return 3
	default:
		return 0
	}
}

// Performer is the body of an action kind.
//
// Perform may block. ctx is cancelled when the action is removed, and the
// body should return promptly once it is. An error is logged; the action is
// still marked completed.
type Performer interface {
	Perform(ctx context.Context, a *Action) error
}

// PerformerFunc adapts a function to Performer.
type PerformerFunc func(ctx context.Context, a *Action) error

// Perform calls f(ctx, a).
func (f PerformerFunc) Perform(ctx context.Context, a *Action) error {
	return f(ctx, a)
}

// Canceller is implemented by performers that need more than context
// cancellation to interrupt in-flight work.
type Canceller interface {
	Cancel()
}

// ActionFactory builds the body for one invocation from its validated input.
type ActionFactory func(input any) Performer

// ActionState is a point-in-time copy of an Action's observable fields.
type ActionState struct {
	ID            string
	Name          string
	Href          string
	Input         any
	Status        ActionStatus
	TimeRequested time.Time
	TimeCompleted time.Time
}

// Description renders the state as {name: {input?, href, timeRequested, status, timeCompleted?}}.
func (s ActionState) Description() map[string]any {
	inner := map[string]any{
		"href":          s.Href,
		"timeRequested": Timestamp(s.TimeRequested),
		"status":        string(s.Status),
	}
	if s.Input != nil {
		inner["input"] = s.Input
	}
	if s.Status == StatusCompleted {
		inner["timeCompleted"] = Timestamp(s.TimeCompleted)
	}
	return map[string]any{s.Name: inner}
}

// Action is one invocation of an action kind.
//
// Status only moves forward: created, pending, completed. Every transition is
// pushed to the owning Thing's subscribers. Once cancelled, an action makes no
// further transitions.
type Action struct {
	id        string
	name      string
	input     any
	performer Performer
	logger    Logger

	ctx    context.Context
	cancel context.CancelFunc
	start  sync.Once

	mu            sync.Mutex
	hrefPrefix    string
	status        ActionStatus
	timeRequested time.Time
	timeCompleted time.Time
	cancelled     bool
	notify        func(ActionState)
}

func newAction(id, name string, input any, performer Performer, hrefPrefix string, notify func(ActionState), logger Logger) *Action {
	ctx, cancel := context.WithCancel(context.Background())
	return &Action{
		id:            id,
		name:          name,
		input:         input,
		performer:     performer,
		logger:        logger,
		ctx:           ctx,
		cancel:        cancel,
		hrefPrefix:    hrefPrefix,
		status:        StatusCreated,
		timeRequested: time.Now(),
		notify:        notify,
	}
}

// ID returns the action's unique id.
func (a *Action) ID() string { return a.id }

// Name returns the action kind name.
func (a *Action) Name() string { return a.name }

// Input returns the validated input, or nil if none was given.
func (a *Action) Input() any { return a.input }

// Href returns the action instance's resource path.
func (a *Action) Href() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.hrefLocked()
}

func (a *Action) hrefLocked() string {
	return fmt.Sprintf("%s/actions/%s/%s", a.hrefPrefix, a.name, a.id)
}

func (a *Action) setHrefPrefix(prefix string) {
	a.mu.Lock()
	a.hrefPrefix = prefix
	a.mu.Unlock()
}

// Status returns the current lifecycle state.
func (a *Action) Status() ActionStatus {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.status
}

// State returns a snapshot of the action.
func (a *Action) State() ActionState {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.stateLocked()
}

func (a *Action) stateLocked() ActionState {
	return ActionState{
		ID:            a.id,
		Name:          a.name,
		Href:          a.hrefLocked(),
		Input:         a.input,
		Status:        a.status,
		TimeRequested: a.timeRequested,
		TimeCompleted: a.timeCompleted,
	}
}

// Description returns the action's wire description.
func (a *Action) Description() map[string]any {
	return a.State().Description()
}

// Start runs the action body on its own goroutine. Only the first call has
// any effect.
func (a *Action) Start() {
	a.start.Do(func() {
		go a.run()
	})
}

// Cancel stops progress tracking for the action and cancels the context
// handed to its body. It is safe to call more than once.
func (a *Action) Cancel() {
	a.mu.Lock()
	already := a.cancelled
	a.cancelled = true
	a.mu.Unlock()
	if already {
		return
	}

	a.cancel()
	if c, ok := a.performer.(Canceller); ok {
		c.Cancel()
	}
}

// Cancelled reports whether Cancel has been called.
func (a *Action) Cancelled() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.cancelled
}

// Context returns the context cancelled by Cancel.
func (a *Action) Context() context.Context {
	return a.ctx
}

func (a *Action) run() {
	if !a.transition(StatusPending) {
		return
	}
	if err := a.perform(); err != nil {
		a.logger.Warn("action body failed", "action", a.name, "id", a.id, "error", err)
	}
	a.transition(StatusCompleted)
}

func (a *Action) perform() (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	if a.performer == nil {
		return nil
	}
	return a.performer.Perform(a.ctx, a)
}

// transition moves the action forward to status and notifies while still
// holding the action lock, so pushes for one action are never reordered.
func (a *Action) transition(status ActionStatus) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.cancelled || status.rank() <= a.status.rank() {
		return false
	}
	a.status = status
	if status == StatusCompleted {
		a.timeCompleted = time.Now()
	}
	a.emitLocked()
	return true
}

func (a *Action) emitLocked() {
	if a.notify != nil {
		a.notify(a.stateLocked())
	}
}
