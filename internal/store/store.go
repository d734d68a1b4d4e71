package store

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Layouwen/vuex-study/internal/loop"
	"github.com/Layouwen/vuex-study/internal/reactive"
)

// State is the live field view handed to mutation handlers and getters.
type State = reactive.Fields

// Mutation changes state synchronously.
type Mutation func(state State, payload any)

// Action orchestrates mutations. It receives the store itself so it can commit,
// dispatch and schedule delayed work with After.
type Action func(s *Store, payload any) error

// Getter derives a value from state. It must not modify state.
type Getter func(state State) any

// ErrorHandler receives errors returned by delayed work.
type ErrorHandler func(err error)

// Options is the store definition: initial state plus the handler tables.
type Options struct {
	State     map[string]any
	Mutations map[string]Mutation
	Actions   map[string]Action
	Getters   map[string]Getter
}

// Store is a single source of truth with synchronous mutations, actions and
// memoized getters.
//
// Thread-safety model:
//   - Commit, Dispatch, State, Get, Getters: safe from any goroutine
//   - One mutex serialises commits, getter evaluation and snapshots
//   - Delayed work scheduled with After runs on the store loop (see Run)
//
// Handlers must not call back into the store while it holds its lock: a mutation
// handler or getter that commits or reads getters deadlocks. Action handlers run
// without the lock and may do anything.
type Store struct {
	mu    sync.Mutex
	state reactive.Container

	// Filled by the container subscription while a mutation runs.
	changes []reactive.Change

	mutations map[string]Mutation
	actions   map[string]Action
	getters   *Getters

	factory   reactive.Factory
	loop      *loop.Loop
	scheduler loop.Scheduler
	observer  Observer
	logger    *slog.Logger
	runID     string
	onError   ErrorHandler
}

// Option configures a Store.
type Option func(*Store)

// WithContainer sets the factory for the observable state container.
// Defaults to reactive.NewContainer.
func WithContainer(f reactive.Factory) Option {
	return func(s *Store) {
		if f != nil {
			s.factory = f
		}
	}
}

// WithScheduler sets the scheduler used by After. Defaults to loop.TimerScheduler.
func WithScheduler(sch loop.Scheduler) Option {
	return func(s *Store) {
		if sch != nil {
			s.scheduler = sch
		}
	}
}

// WithLoop runs delayed work on an existing loop, e.g. one shared by several stores.
func WithLoop(l *loop.Loop) Option {
	return func(s *Store) {
		s.loop = l
	}
}

// WithObserver sets the event observer. Defaults to NoOpObserver.
func WithObserver(o Observer) Option {
	return func(s *Store) {
		if o != nil {
			s.observer = o
		}
	}
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithRunID fixes the run id stamped on every event. Defaults to a fresh UUIDv7.
func WithRunID(id string) Option {
	return func(s *Store) {
		s.runID = id
	}
}

// WithErrorHandler receives errors from delayed work, which are otherwise dropped.
func WithErrorHandler(h ErrorHandler) Option {
	return func(s *Store) {
		s.onError = h
	}
}

// New creates a store from opts. The handler tables are copied; later changes to
// the caller's maps have no effect.
func New(opts Options, options ...Option) (*Store, error) {
	s := &Store{
		factory:   reactive.NewContainer,
		scheduler: loop.TimerScheduler{},
		observer:  NoOpObserver{},
		logger:    slog.Default(),
	}
	for _, opt := range options {
		opt(s)
	}

	if err := checkHandlers("mutation", opts.Mutations); err != nil {
		return nil, err
	}
	if err := checkHandlers("action", opts.Actions); err != nil {
		return nil, err
	}
	if err := checkHandlers("getter", opts.Getters); err != nil {
		return nil, err
	}

	if s.runID == "" {
		s.runID = uuid.Must(uuid.NewV7()).String()
	}
	if s.loop == nil {
		s.loop = loop.New(loop.WithLogger(s.logger))
	}

	s.state = s.factory(opts.State)
	if s.state == nil {
		return nil, fmt.Errorf("container factory returned nil")
	}
	s.state.Subscribe(func(c reactive.Change) {
		s.changes = append(s.changes, c)
	})

	s.mutations = maps.Clone(opts.Mutations)
	s.actions = maps.Clone(opts.Actions)
	s.getters = newGetters(s, opts.Getters)
	return s, nil
}

func checkHandlers[F any](kind string, table map[string]F) error {
	for _, name := range slices.Sorted(maps.Keys(table)) {
		if isNilFunc(table[name]) {
			return fmt.Errorf("%s %q: nil handler", kind, name)
		}
	}
	return nil
}

func isNilFunc(f any) bool {
	switch fn := f.(type) {
	case Mutation:
		return fn == nil
	case Action:
		return fn == nil
	case Getter:
		return fn == nil
	}
	return false
}

// Commit runs the named mutation synchronously against the live state.
//
// An unknown name changes nothing: it is reported once (log and EventReport) and
// returned as a *RuntimeError. Panics from the handler propagate to the caller.
func (s *Store) Commit(name string, payload any) error {
	handler, ok := s.mutations[name]
	if !ok {
		err := NewUnknownMutationError(name)
		s.report(name, payload, err)
		return err
	}

	events := s.applyMutation(name, handler, payload)
	for _, e := range events {
		s.observer.OnEvent(context.Background(), e)
	}
	return nil
}

// applyMutation runs handler under the lock and builds the events describing it.
func (s *Store) applyMutation(name string, handler Mutation, payload any) []Event {
	s.mu.Lock()
	defer func() {
		s.changes = nil
		s.mu.Unlock()
	}()

	handler(s.state, payload)

	now := time.Now().UTC()
	var snapshot map[string]any
	if observing(s.observer) {
		snapshot = s.state.Snapshot()
	}

	events := make([]Event, 0, len(s.changes)+1)
	for _, c := range s.changes {
		events = append(events, Event{
			Type:      EventStateSet,
			Seq:       s.loop.Clock().Next(),
			RunID:     s.runID,
			Name:      name,
			Key:       c.Key,
			Old:       c.Old,
			New:       c.New,
			Timestamp: now,
		})
	}
	events = append(events, Event{
		Type:      EventCommit,
		Seq:       s.loop.Clock().Next(),
		RunID:     s.runID,
		Name:      name,
		Payload:   payload,
		State:     snapshot,
		Timestamp: now,
	})
	return events
}

// Dispatch runs the named action with the store and payload.
//
// The handler's synchronous error is returned. Work it schedules with After is
// not awaited. An unknown name is reported once and returned as a *RuntimeError.
func (s *Store) Dispatch(name string, payload any) error {
	handler, ok := s.actions[name]
	if !ok {
		err := NewUnknownActionError(name)
		s.report(name, payload, err)
		return err
	}

	s.observer.OnEvent(context.Background(), s.event(EventDispatch, name, payload))
	return handler(s, payload)
}

// After schedules fn to run on the store loop once delay has elapsed.
//
// Work scheduled by one handler runs in expiry order; equal delays keep
// scheduling order. Errors and panics go to the ErrorHandler if one is set and
// are otherwise dropped. After Close the work is discarded.
func (s *Store) After(delay time.Duration, fn func() error) {
	s.scheduler.AfterFunc(delay, func() {
		queued := s.loop.Enqueue(loop.Task{
			Name: "delayed",
			Run: func(ctx context.Context) error {
				if err := runDelayed(fn); err != nil {
					s.asyncError(err)
				}
				return nil
			},
		})
		if !queued {
			s.logger.Debug("delayed work dropped: loop stopped",
				"run_id", s.runID,
				"delay", delay,
			)
		}
	})
}

// runDelayed calls fn, turning a panic into an error. There is no caller to
// propagate it to.
func runDelayed(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn()
}

func (s *Store) asyncError(err error) {
	if s.onError != nil {
		s.onError(err)
		return
	}
	s.logger.Debug("delayed work failed",
		"run_id", s.runID,
		"error", err,
	)
}

// report logs err and delivers it to the observer as a single EventReport.
func (s *Store) report(name string, payload any, err error) {
	s.logger.Error("store operation rejected",
		"run_id", s.runID,
		"name", name,
		"error", err,
	)
	e := s.event(EventReport, name, payload)
	e.Err = err
	s.observer.OnEvent(context.Background(), e)
}

// event builds an event stamped with the next seq and, when observed, a snapshot.
func (s *Store) event(typ EventType, name string, payload any) Event {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := Event{
		Type:      typ,
		Seq:       s.loop.Clock().Next(),
		RunID:     s.runID,
		Name:      name,
		Payload:   payload,
		Timestamp: time.Now().UTC(),
	}
	if observing(s.observer) {
		e.State = s.state.Snapshot()
	}
	return e
}

// State returns a shallow copy of the current state.
func (s *Store) State() map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Snapshot()
}

// Get returns one state field, or nil if it does not exist.
func (s *Store) Get(key string) any {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, _ := s.state.Lookup(key)
	return v
}

// Getters returns the read-only getter view.
func (s *Store) Getters() *Getters {
	return s.getters
}

// Mutations returns the registered mutation names, sorted.
func (s *Store) Mutations() []string {
	return slices.Sorted(maps.Keys(s.mutations))
}

// Actions returns the registered action names, sorted.
func (s *Store) Actions() []string {
	return slices.Sorted(maps.Keys(s.actions))
}

// RunID returns the id stamped on this store's events.
func (s *Store) RunID() string {
	return s.runID
}

// Run drains delayed work until ctx is cancelled or Close is called.
// Without a running loop (or Drain calls) delayed work never executes.
func (s *Store) Run(ctx context.Context) error {
	return s.loop.Run(ctx)
}

// Drain runs all queued delayed work on the calling goroutine.
func (s *Store) Drain(ctx context.Context) (int, error) {
	return s.loop.Drain(ctx)
}

// Close stops the loop. Delayed work that comes due afterwards is dropped.
func (s *Store) Close() {
	s.loop.Stop()
}
