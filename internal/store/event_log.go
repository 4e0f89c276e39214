package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"tzscheduler/internal/model"
)

// storedChange is the JSONB shape of one change. Instants are kept as
// RFC 3339 strings with nanoseconds so they read back exactly.
type storedChange struct {
	Field  string          `json:"field"`
	Before json.RawMessage `json:"before"`
	After  json.RawMessage `json:"after"`
}

func encodeChanges(cs []model.Change) ([]byte, error) {
	out := make([]storedChange, len(cs))
	for i, c := range cs {
		b, err := encodeValue(c.Before)
		if err != nil {
			return nil, fmt.Errorf("%s before: %w", c.Field, err)
		}
		a, err := encodeValue(c.After)
		if err != nil {
			return nil, fmt.Errorf("%s after: %w", c.Field, err)
		}
		out[i] = storedChange{Field: c.Field, Before: b, After: a}
	}
	return json.Marshal(out)
}

func encodeValue(v any) (json.RawMessage, error) {
	if t, ok := v.(time.Time); ok {
		v = t.UTC().Format(time.RFC3339Nano)
	}
	return json.Marshal(v)
}

func decodeChanges(raw []byte) ([]model.Change, error) {
	var stored []storedChange
	if err := json.Unmarshal(raw, &stored); err != nil {
		return nil, err
	}
	out := make([]model.Change, len(stored))
	for i, sc := range stored {
		b, err := decodeValue(sc.Field, sc.Before)
		if err != nil {
			return nil, err
		}
		a, err := decodeValue(sc.Field, sc.After)
		if err != nil {
			return nil, err
		}
		out[i] = model.Change{Field: sc.Field, Before: b, After: a}
	}
	return out, nil
}

// decodeValue restores the Go type by field name.
func decodeValue(field string, raw json.RawMessage) (any, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	switch field {
	case model.FieldStartAtUTC, model.FieldEndAtUTC:
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, fmt.Errorf("%s: %w", field, err)
		}
		return time.Parse(time.RFC3339Nano, s)
	case model.FieldUsers:
		var ids []string
		err := json.Unmarshal(raw, &ids)
		return ids, err
	default:
		var v any
		err := json.Unmarshal(raw, &v)
		return v, err
	}
}

func (s *Store) CreateEventLog(ctx context.Context, l *model.EventLog) error {
	changes, err := encodeChanges(l.Changes)
	if err != nil {
		return fmt.Errorf("encode changes: %w", err)
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO event_logs (id, event_id, changed_by, changes, timestamp_utc)
		 VALUES ($1,$2,$3,$4,$5)`,
		l.ID, l.EventID, l.ChangedBy, changes, l.TimestampUTC,
	)
	return err
}

// ListEventLogs returns a page of an event's logs, newest first.
func (s *Store) ListEventLogs(ctx context.Context, eventID string, offset, limit int) ([]model.EventLog, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, event_id, changed_by, changes, timestamp_utc
		 FROM event_logs
		 WHERE event_id = $1
		 ORDER BY timestamp_utc DESC, id
		 LIMIT $2 OFFSET $3`, eventID, limit, offset,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.EventLog
	for rows.Next() {
		var (
			l   model.EventLog
			raw []byte
		)
		if err := rows.Scan(&l.ID, &l.EventID, &l.ChangedBy, &raw, &l.TimestampUTC); err != nil {
			return nil, err
		}
		l.TimestampUTC = l.TimestampUTC.UTC()
		if l.Changes, err = decodeChanges(raw); err != nil {
			return nil, fmt.Errorf("event log %s: %w", l.ID, err)
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func (s *Store) CountEventLogs(ctx context.Context, eventID string) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx, `SELECT count(*) FROM event_logs WHERE event_id = $1`, eventID).Scan(&n)
	return n, err
}
