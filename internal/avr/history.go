package avr

import (
	"context"
	"time"
)

// State history source values.
const (
	HistorySourceResponse   = "response"
	HistorySourceCommand    = "command"
	HistorySourceSimulation = "simulation"
	HistorySourceMQTT       = "mqtt"
)

// HistoryEntry is a single recorded receiver state change.
//
// Each entry stores a full snapshot at the time the change was
// observed, providing a local audit trail independent of the
// time-series database.
type HistoryEntry struct {
	// ID is the auto-incremented primary key of the history row.
	ID int64 `json:"id"`

	// State is the snapshot recorded at the time of the change.
	State State `json:"state"`

	// Source identifies how the change was observed
	// (response, command, simulation, mqtt).
	Source string `json:"source"`

	// CreatedAt is the timestamp of the change (UTC).
	CreatedAt time.Time `json:"created_at"`
}

// StateHistoryRepository stores and retrieves receiver state history.
//
// Implementations must be thread-safe and use UTC timestamps.
type StateHistoryRepository interface {
	// RecordStateChange persists a state snapshot.
	RecordStateChange(ctx context.Context, state State, source string) error

	// GetHistory returns recent entries, newest first. The limit may
	// be clamped by the implementation.
	GetHistory(ctx context.Context, limit int) ([]HistoryEntry, error)

	// PruneHistory deletes entries older than now-olderThan, returning
	// the number of rows removed.
	PruneHistory(ctx context.Context, olderThan time.Duration) (int64, error)
}
