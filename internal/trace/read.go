package trace

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// Entry is one recorded event.
type Entry struct {
	ID        int64     `json:"id"`
	RunID     string    `json:"run_id"`
	Seq       int64     `json:"seq"`
	Kind      string    `json:"kind"`
	Name      string    `json:"name"`
	Key       string    `json:"key,omitempty"`
	Payload   string    `json:"payload"`
	StateHash string    `json:"state_hash,omitempty"`
	Error     string    `json:"error,omitempty"`
	At        time.Time `json:"at"`
}

// Filter narrows Events. Zero fields match everything.
type Filter struct {
	RunID string
	Kind  string
	Name  string
	Limit int
}

// Events returns matching entries ordered by seq ASC, id ASC.
// Returns an empty slice, not nil, when nothing matches.
func (l *Log) Events(ctx context.Context, f Filter) ([]Entry, error) {
	var (
		where []string
		args  []any
	)
	if f.RunID != "" {
		where = append(where, "run_id = ?")
		args = append(args, f.RunID)
	}
	if f.Kind != "" {
		where = append(where, "kind = ?")
		args = append(args, f.Kind)
	}
	if f.Name != "" {
		where = append(where, "name = ?")
		args = append(args, f.Name)
	}

	query := `SELECT id, run_id, seq, kind, name, key, payload, state_hash, error, at FROM events`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY seq ASC, id ASC"
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}

	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return entries, nil
}

// Runs returns the distinct run ids, in the order they were first recorded.
func (l *Log) Runs(ctx context.Context) ([]string, error) {
	rows, err := l.db.QueryContext(ctx, `
		SELECT run_id FROM events
		GROUP BY run_id
		ORDER BY MIN(id) ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	runs := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

func scanEntry(rows *sql.Rows) (Entry, error) {
	var (
		e  Entry
		at string
	)
	if err := rows.Scan(&e.ID, &e.RunID, &e.Seq, &e.Kind, &e.Name, &e.Key, &e.Payload, &e.StateHash, &e.Error, &at); err != nil {
		return Entry{}, fmt.Errorf("scan event: %w", err)
	}
	t, err := time.Parse(time.RFC3339Nano, at)
	if err != nil {
		return Entry{}, fmt.Errorf("parse event time %q: %w", at, err)
	}
	e.At = t
	return e, nil
}
