// Package ledger provides an append-only history of light commits.
// It implements hue.CommitRecorder on top of SQLite.
package ledger

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/huelink/internal/hue"
)

// Entry represents a single commit in the ledger
type Entry struct {
	ID        string
	Bridge    string
	LightID   int
	LightName string
	Timestamp time.Time
	Changes   map[string]any
	Success   bool
	Errors    []*hue.BridgeError
}

// Ledger provides append-only commit logging
type Ledger struct {
	db  *sql.DB
	now func() time.Time
}

// New creates a new Ledger using the provided database connection
func New(db *sql.DB) *Ledger {
	return &Ledger{db: db, now: time.Now}
}

// RecordCommit appends a commit record. It satisfies hue.CommitRecorder.
func (l *Ledger) RecordCommit(ctx context.Context, rec hue.CommitRecord) error {
	changesJSON, err := json.Marshal(rec.Changes)
	if err != nil {
		return fmt.Errorf("failed to marshal changes: %w", err)
	}

	var errorsJSON []byte
	if len(rec.Errors) > 0 {
		errorsJSON, err = json.Marshal(rec.Errors)
		if err != nil {
			return fmt.Errorf("failed to marshal errors: %w", err)
		}
	}

	id := uuid.NewString()
	_, err = l.db.ExecContext(ctx, `
		INSERT INTO commit_ledger (id, bridge, light_id, light_name, changes, success, errors, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, id, rec.Bridge, rec.LightID, rec.LightName, string(changesJSON), rec.Success, string(errorsJSON), l.now().UTC().UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to append commit: %w", err)
	}

	log.Debug().
		Str("id", id).
		Int("light", rec.LightID).
		Bool("success", rec.Success).
		Msg("Commit recorded")
	return nil
}

// Recent returns the latest entries across all lights, newest first
func (l *Ledger) Recent(ctx context.Context, limit int) ([]*Entry, error) {
	rows, err := l.db.QueryContext(ctx, `
		SELECT id, bridge, light_id, light_name, changes, success, errors, timestamp
		FROM commit_ledger
		ORDER BY timestamp DESC, rowid DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanEntries(rows)
}

// ForLight returns the latest entries for one light on one bridge, newest first
func (l *Ledger) ForLight(ctx context.Context, bridge string, lightID, limit int) ([]*Entry, error) {
	rows, err := l.db.QueryContext(ctx, `
		SELECT id, bridge, light_id, light_name, changes, success, errors, timestamp
		FROM commit_ledger
		WHERE bridge = ? AND light_id = ?
		ORDER BY timestamp DESC, rowid DESC
		LIMIT ?
	`, bridge, lightID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanEntries(rows)
}

// DeleteOlderThan removes entries older than the specified duration (retention policy)
func (l *Ledger) DeleteOlderThan(ctx context.Context, retention time.Duration) (int64, error) {
	cutoff := l.now().Add(-retention).UTC().UnixMilli()
	result, err := l.db.ExecContext(ctx, `DELETE FROM commit_ledger WHERE timestamp < ?`, cutoff)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func scanEntries(rows *sql.Rows) ([]*Entry, error) {
	var entries []*Entry
	for rows.Next() {
		var entry Entry
		var lightName, errorsStr sql.NullString
		var changesStr string
		var timestamp int64

		err := rows.Scan(
			&entry.ID, &entry.Bridge, &entry.LightID, &lightName, &changesStr, &entry.Success, &errorsStr, &timestamp,
		)
		if err != nil {
			return nil, err
		}

		entry.Timestamp = time.UnixMilli(timestamp).UTC()
		if lightName.Valid {
			entry.LightName = lightName.String
		}

		if err := json.Unmarshal([]byte(changesStr), &entry.Changes); err != nil {
			return nil, fmt.Errorf("failed to unmarshal changes: %w", err)
		}
		if errorsStr.Valid && errorsStr.String != "" {
			if err := json.Unmarshal([]byte(errorsStr.String), &entry.Errors); err != nil {
				return nil, fmt.Errorf("failed to unmarshal errors: %w", err)
			}
		}

		entries = append(entries, &entry)
	}

	return entries, rows.Err()
}
