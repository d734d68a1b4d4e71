package trace

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Layouwen/vuex-study/internal/snapshot"
	"github.com/Layouwen/vuex-study/internal/store"
)

var _ store.Observer = (*Log)(nil)

// OnEvent implements store.Observer. Write failures are logged and the store
// carries on.
func (l *Log) OnEvent(ctx context.Context, e store.Event) {
	if err := l.Record(ctx, e); err != nil {
		slog.Error("trace write failed",
			"run_id", e.RunID,
			"seq", e.Seq,
			"kind", string(e.Type),
			"error", err,
		)
	}
}

// Record inserts one event. A duplicate (run_id, seq) is ignored.
//
// Values the canonical encoder rejects (fractional numbers, unsupported types)
// are recorded as null payloads or an empty state hash and logged at warn level.
func (l *Log) Record(ctx context.Context, e store.Event) error {
	value := e.Payload
	if e.Type == store.EventStateSet {
		value = e.New
	}

	payload, err := snapshot.EncodeJSON(value)
	if err != nil {
		slog.Warn("trace payload not encodable",
			"run_id", e.RunID,
			"seq", e.Seq,
			"error", err,
		)
		payload = "null"
	}

	stateHash := ""
	if e.State != nil {
		if stateHash, err = snapshot.StateHash(e.State); err != nil {
			slog.Warn("trace state not hashable",
				"run_id", e.RunID,
				"seq", e.Seq,
				"error", err,
			)
			stateHash = ""
		}
	}

	errText := ""
	if e.Err != nil {
		errText = e.Err.Error()
	}

	at := e.Timestamp
	if at.IsZero() {
		at = time.Now()
	}

	_, err = l.db.ExecContext(ctx, `
		INSERT INTO events
		(run_id, seq, kind, name, key, payload, state_hash, error, at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id, seq) DO NOTHING
	`,
		e.RunID,
		e.Seq,
		string(e.Type),
		e.Name,
		e.Key,
		payload,
		stateHash,
		errText,
		at.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("record event: %w", err)
	}
	return nil
}
