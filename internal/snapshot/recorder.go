package snapshot

import (
	"context"
	"sync"
	"time"

	"github.com/nerrad567/webthing-gateway/internal/thing"
)

const (
	// queueSize bounds pending writes; beyond it new writes are dropped.
	queueSize = 1024

	writeTimeout = 5 * time.Second
)

// Logger is the logging interface used by the recorder.
type Logger interface {
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Warn(string, ...any)  {}

// job is one queued write.
type job func(ctx context.Context) error

// Recorder persists property changes and completed actions as they happen.
// Register it on each Thing with AddListener after Restore.
type Recorder struct {
	store  *Store
	logger Logger

	jobs     chan job
	done     chan struct{}
	wg       sync.WaitGroup
	start    sync.Once
	stopOnce sync.Once
}

// NewRecorder creates a recorder writing to store.
func NewRecorder(store *Store, logger Logger) *Recorder {
	if logger == nil {
		logger = noopLogger{}
	}
	return &Recorder{
		store:  store,
		logger: logger,
		jobs:   make(chan job, queueSize),
		done:   make(chan struct{}),
	}
}

// Start launches the writer goroutine. Cancelling ctx has the same effect
// as Stop.
func (r *Recorder) Start(ctx context.Context) {
	r.start.Do(func() {
		r.wg.Add(1)
		go r.run()
		go func() {
			select {
			case <-ctx.Done():
				r.Stop()
			case <-r.done:
			}
		}()
	})
}

// Stop flushes queued writes and stops the writer. Changes reported after
// Stop are ignored.
func (r *Recorder) Stop() {
	r.stopOnce.Do(func() {
		close(r.done)
	})
	r.wg.Wait()
}

func (r *Recorder) run() {
	defer r.wg.Done()
	for {
		select {
		case j := <-r.jobs:
			r.exec(j)
		case <-r.done:
			for {
				select {
				case j := <-r.jobs:
					r.exec(j)
				default:
					return
				}
			}
		}
	}
}

func (r *Recorder) exec(j job) {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	if err := j(ctx); err != nil {
		r.logger.Warn("snapshot write failed", "error", err)
	}
}

func (r *Recorder) enqueue(j job) {
	select {
	case <-r.done:
		return
	default:
	}
	select {
	case r.jobs <- j:
	default:
		r.logger.Warn("snapshot queue full, dropping write")
	}
}

// PropertyChanged queues an upsert of the new value.
func (r *Recorder) PropertyChanged(t *thing.Thing, name string, value any) {
	thingID, at := t.ID(), time.Now()
	r.enqueue(func(ctx context.Context) error {
		return r.store.SaveProperty(ctx, thingID, name, value, at)
	})
}

// ActionStatusChanged queues an action log entry once the action completes.
func (r *Recorder) ActionStatusChanged(t *thing.Thing, state thing.ActionState) {
	if state.Status != thing.StatusCompleted {
		return
	}
	thingID := t.ID()
	r.enqueue(func(ctx context.Context) error {
		return r.store.RecordAction(ctx, thingID, state)
	})
}

// EventAdded is a no-op: the event log is not persisted.
func (r *Recorder) EventAdded(*thing.Thing, *thing.Event) {}
