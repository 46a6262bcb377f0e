package snapshot

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nerrad567/webthing-gateway/internal/thing"
)

const (
	defaultActionLogLimit = 50
	maxActionLogLimit     = 500
)

// ErrMissingThingID is returned when a write has no thing id.
var ErrMissingThingID = errors.New("snapshot: thing id is required")

// ActionRecord is one row of the action log.
type ActionRecord struct {
	ID            string
	ThingID       string
	Action        string
	Input         any
	Status        thing.ActionStatus
	TimeRequested time.Time
	TimeCompleted time.Time
}

// Store reads and writes snapshots in SQLite.
type Store struct {
	db *sql.DB
}

// NewStore creates a store over an open, migrated database.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// SaveProperty upserts the stored value of one property.
//
// Parameters:
//   - ctx: Context for cancellation and timeout
//   - thingID: Owning Thing
//   - property: Property name
//   - value: JSON-encodable value
//   - at: Time of the change
//
// Returns:
//   - error: nil on success, otherwise the encoding or database error
func (s *Store) SaveProperty(ctx context.Context, thingID, property string, value any, at time.Time) error {
	if thingID == "" {
		return ErrMissingThingID
	}
	valueJSON, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshalling value: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO property_snapshots (thing_id, property, value_json, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (thing_id, property) DO UPDATE SET
			value_json = excluded.value_json,
			updated_at = excluded.updated_at`,
		thingID, property, string(valueJSON), at.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("upserting property snapshot: %w", err)
	}
	return nil
}

// LoadProperties returns every stored value for a Thing, keyed by property.
func (s *Store) LoadProperties(ctx context.Context, thingID string) (map[string]any, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT property, value_json FROM property_snapshots WHERE thing_id = ?", thingID)
	if err != nil {
		return nil, fmt.Errorf("querying property snapshots: %w", err)
	}
	defer rows.Close()

	values := make(map[string]any)
	for rows.Next() {
		var name, raw string
		if err := rows.Scan(&name, &raw); err != nil {
			return nil, fmt.Errorf("scanning property snapshot: %w", err)
		}
		var v any
		if err := json.Unmarshal([]byte(raw), &v); err != nil {
			return nil, fmt.Errorf("decoding snapshot %s/%s: %w", thingID, name, err)
		}
		values[name] = v
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating property snapshots: %w", err)
	}
	return values, nil
}

// RecordAction writes a completed action to the log. Recording the same id
// again replaces the earlier row.
func (s *Store) RecordAction(ctx context.Context, thingID string, state thing.ActionState) error {
	if thingID == "" {
		return ErrMissingThingID
	}

	var inputJSON sql.NullString
	if state.Input != nil {
		data, err := json.Marshal(state.Input)
		if err != nil {
			return fmt.Errorf("marshalling action input: %w", err)
		}
		inputJSON = sql.NullString{String: string(data), Valid: true}
	}
	var completed sql.NullString
	if !state.TimeCompleted.IsZero() {
		completed = sql.NullString{String: state.TimeCompleted.UTC().Format(time.RFC3339Nano), Valid: true}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO action_log
			(id, thing_id, action, input_json, status, time_requested, time_completed)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		state.ID, thingID, state.Name, inputJSON, string(state.Status),
		state.TimeRequested.UTC().Format(time.RFC3339Nano), completed,
	)
	if err != nil {
		return fmt.Errorf("inserting action log: %w", err)
	}
	return nil
}

// ActionLog returns logged actions for a Thing, newest first.
//
// Parameters:
//   - ctx: Context for cancellation and timeout
//   - thingID: Owning Thing
//   - limit: Maximum rows (default 50, max 500)
func (s *Store) ActionLog(ctx context.Context, thingID string, limit int) ([]ActionRecord, error) {
	if limit <= 0 {
		limit = defaultActionLogLimit
	}
	if limit > maxActionLogLimit {
		limit = maxActionLogLimit
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, thing_id, action, input_json, status, time_requested, time_completed
		FROM action_log
		WHERE thing_id = ?
		ORDER BY time_requested DESC
		LIMIT ?`, thingID, limit)
	if err != nil {
		return nil, fmt.Errorf("querying action log: %w", err)
	}
	defer rows.Close()

	var records []ActionRecord
	for rows.Next() {
		var (
			rec               ActionRecord
			input, completed  sql.NullString
			status, requested string
		)
		if err := rows.Scan(&rec.ID, &rec.ThingID, &rec.Action, &input, &status, &requested, &completed); err != nil {
			return nil, fmt.Errorf("scanning action log: %w", err)
		}
		rec.Status = thing.ActionStatus(status)
		if input.Valid {
			if err := json.Unmarshal([]byte(input.String), &rec.Input); err != nil {
				return nil, fmt.Errorf("decoding action input %s: %w", rec.ID, err)
			}
		}
		if rec.TimeRequested, err = time.Parse(time.RFC3339Nano, requested); err != nil {
			return nil, fmt.Errorf("parsing time_requested %s: %w", rec.ID, err)
		}
		if completed.Valid {
			if rec.TimeCompleted, err = time.Parse(time.RFC3339Nano, completed.String); err != nil {
				return nil, fmt.Errorf("parsing time_completed %s: %w", rec.ID, err)
			}
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating action log: %w", err)
	}
	return records, nil
}

// Restore replays stored values into t. Stored properties that t no longer
// declares are skipped. Values bypass validation and forwarding, like a
// device report.
//
// Returns:
//   - int: Number of properties whose value changed
//   - error: If the snapshots could not be read
func (s *Store) Restore(ctx context.Context, t *thing.Thing) (int, error) {
	values, err := s.LoadProperties(ctx, t.ID())
	if err != nil {
		return 0, err
	}

	restored := 0
	for name, v := range values {
		p, ok := t.Property(name)
		if !ok {
			continue
		}
		if p.Value().ReportExternalUpdate(v) {
			restored++
		}
	}
	return restored, nil
}
