// Package ledger provides an append-only history of the light programs
// applied to the hardware, for auditing and debugging.
package ledger

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/lightsd/internal/lights"
)

// EventType represents the type of event in the ledger
type EventType string

const (
	EventLEDProgrammed EventType = "led_programmed"
	EventBacklightSet  EventType = "backlight_set"
)

// Entry represents a single event in the ledger
type Entry struct {
	ID        int64          `json:"id"`
	EventType EventType      `json:"event_type"`
	Timestamp time.Time      `json:"timestamp"`
	Light     string         `json:"light"`
	Active    string         `json:"active,omitempty"`
	Payload   map[string]any `json:"payload,omitempty"`
	EventID   string         `json:"event_id"`
	Seq       int64          `json:"seq"` // controller sequence; orders entries stamped in the same millisecond
}

// Ledger provides append-only event logging
type Ledger struct {
	db *sql.DB
}

// New creates a new Ledger using the provided database connection
func New(db *sql.DB) *Ledger {
	return &Ledger{db: db}
}

// Record appends an applied light event. A fresh event ID is generated.
func (l *Ledger) Record(e lights.Event) error {
	entry := Entry{
		Timestamp: e.At,
		Light:     e.Light.String(),
		EventID:   uuid.NewString(),
		Seq:       int64(e.Seq),
		Payload: map[string]any{
			"color":        fmt.Sprintf("#%08X", e.State.Color),
			"flash_mode":   e.State.FlashMode.String(),
			"flash_on_ms":  e.State.FlashOnMS,
			"flash_off_ms": e.State.FlashOffMS,
		},
	}
	if e.Light == lights.IDBacklight {
		entry.EventType = EventBacklightSet
		entry.Payload["brightness"] = e.Brightness
	} else {
		entry.EventType = EventLEDProgrammed
		entry.Active = e.Active.String()
		if e.Program != nil {
			entry.Payload["program"] = e.Program
		}
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}
	return l.Append(entry)
}

// Append adds a new entry to the ledger
func (l *Ledger) Append(entry Entry) error {
	var payloadJSON []byte
	var err error

	if entry.Payload != nil {
		payloadJSON, err = json.Marshal(entry.Payload)
		if err != nil {
			return fmt.Errorf("failed to marshal payload: %w", err)
		}
	}

	ts := entry.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}

	_, err = l.db.Exec(`
		INSERT INTO light_ledger (event_type, timestamp, light, active, payload, event_id, seq)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, string(entry.EventType), ts.UTC().UnixMilli(), entry.Light, entry.Active, string(payloadJSON), entry.EventID, entry.Seq)

	return err
}

// Recent returns the newest entries, newest first
func (l *Ledger) Recent(limit int) ([]*Entry, error) {
	rows, err := l.db.Query(`
		SELECT id, event_type, timestamp, light, active, payload, event_id, seq
		FROM light_ledger
		ORDER BY timestamp DESC, seq DESC, id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return l.scanEntries(rows)
}

// ByLight returns the newest entries requested for one light
func (l *Ledger) ByLight(light string, limit int) ([]*Entry, error) {
	rows, err := l.db.Query(`
		SELECT id, event_type, timestamp, light, active, payload, event_id, seq
		FROM light_ledger
		WHERE light = ?
		ORDER BY timestamp DESC, seq DESC, id DESC
		LIMIT ?
	`, light, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return l.scanEntries(rows)
}

// DeleteOlderThan removes entries older than the specified duration (retention policy)
func (l *Ledger) DeleteOlderThan(retention time.Duration) (int64, error) {
	cutoff := time.Now().Add(-retention).UTC().UnixMilli()
	result, err := l.db.Exec(`DELETE FROM light_ledger WHERE timestamp < ?`, cutoff)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// RunCleanup applies the retention policy every interval until ctx is done.
func (l *Ledger) RunCleanup(ctx context.Context, interval, retention time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := l.DeleteOlderThan(retention)
			if err != nil {
				log.Error().Err(err).Msg("Ledger cleanup failed")
				continue
			}
			if n > 0 {
				log.Info().Int64("deleted", n).Msg("Ledger cleanup removed old entries")
			}
		}
	}
}

func (l *Ledger) scanEntries(rows *sql.Rows) ([]*Entry, error) {
	var entries []*Entry
	for rows.Next() {
		var entry Entry
		var payloadStr, active, eventID sql.NullString
		var timestamp int64

		err := rows.Scan(
			&entry.ID, &entry.EventType, &timestamp, &entry.Light, &active, &payloadStr, &eventID, &entry.Seq,
		)
		if err != nil {
			return nil, err
		}

		entry.Timestamp = time.UnixMilli(timestamp).UTC()
		if active.Valid {
			entry.Active = active.String
		}
		if eventID.Valid {
			entry.EventID = eventID.String
		}

		if payloadStr.Valid && payloadStr.String != "" {
			entry.Payload = make(map[string]any)
			if err := json.Unmarshal([]byte(payloadStr.String), &entry.Payload); err != nil {
				return nil, fmt.Errorf("failed to unmarshal payload: %w", err)
			}
		}

		entries = append(entries, &entry)
	}

	return entries, rows.Err()
}
