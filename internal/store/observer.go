package store

import (
	"context"
	"log/slog"
	"time"
)

// EventType identifies what happened in the store.
type EventType string

const (
	// EventCommit is emitted after a mutation handler returned.
	EventCommit EventType = "commit"

	// EventDispatch is emitted before an action handler runs.
	EventDispatch EventType = "dispatch"

	// EventReport is emitted for unknown mutation or action names.
	EventReport EventType = "report"

	// EventStateSet is emitted for every field a commit changed, before its EventCommit.
	EventStateSet EventType = "state.set"
)

// Event describes one store operation.
type Event struct {
	Type  EventType
	Seq   int64
	RunID string

	// Name is the mutation or action name.
	Name    string
	Payload any

	// State is a snapshot taken right after the operation. Nil for NoOpObserver.
	State map[string]any

	// Key, Old and New are set for EventStateSet.
	Key string
	Old any
	New any

	// Err is set for EventReport.
	Err error

	Timestamp time.Time
}

// Observer receives store events. OnEvent is called without the store lock held,
// in seq order for events produced by the same goroutine.
type Observer interface {
	OnEvent(ctx context.Context, event Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(ctx context.Context, event Event)

func (f ObserverFunc) OnEvent(ctx context.Context, event Event) { f(ctx, event) }

// NoOpObserver discards all events.
type NoOpObserver struct{}

func (NoOpObserver) OnEvent(ctx context.Context, event Event) {}

// MultiObserver fans out events to multiple observers.
type MultiObserver struct {
	observers []Observer
}

// NewMultiObserver creates a MultiObserver forwarding to every non-nil observer.
func NewMultiObserver(observers ...Observer) *MultiObserver {
	filtered := make([]Observer, 0, len(observers))
	for _, obs := range observers {
		if obs != nil {
			filtered = append(filtered, obs)
		}
	}
	return &MultiObserver{observers: filtered}
}

func (m *MultiObserver) OnEvent(ctx context.Context, event Event) {
	for _, obs := range m.observers {
		obs.OnEvent(ctx, event)
	}
}

// SlogObserver writes every event, reports included, to a slog.Logger at debug level.
type SlogObserver struct {
	logger *slog.Logger
}

// NewSlogObserver creates a SlogObserver that emits to logger.
func NewSlogObserver(logger *slog.Logger) *SlogObserver {
	return &SlogObserver{logger: logger}
}

func (o *SlogObserver) OnEvent(ctx context.Context, event Event) {
	attrs := []slog.Attr{
		slog.Int64("seq", event.Seq),
		slog.String("run_id", event.RunID),
		slog.String("name", event.Name),
	}
	level := slog.LevelDebug
	switch event.Type {
	case EventStateSet:
		attrs = append(attrs, slog.String("key", event.Key), slog.Any("old", event.Old), slog.Any("new", event.New))
	case EventReport:
		// The store itself logs the rejection at error level.
		attrs = append(attrs, slog.Any("error", event.Err))
	default:
		attrs = append(attrs, slog.Any("payload", event.Payload))
	}
	o.logger.LogAttrs(ctx, level, "store "+string(event.Type), attrs...)
}

// observing reports whether o does anything with events.
func observing(o Observer) bool {
	switch o.(type) {
	case nil, NoOpObserver, *NoOpObserver:
		return false
	}
	return true
}
