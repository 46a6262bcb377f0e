// Package snapshot persists the last accepted value of every property and a
// log of completed actions in SQLite.
//
// Store is the repository. Recorder is a thing.Listener that queues writes
// to its own goroutine, so notification fan-out never waits on disk.
// Restore replays stored values into a Thing at startup through
// Value.ReportExternalUpdate, before the Thing is served.
//
// Snapshots are state retention, not history: one row per property.
package snapshot
