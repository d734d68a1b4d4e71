package store

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Layouwen/vuex-study/internal/reactive"
	"github.com/Layouwen/vuex-study/internal/testutil"
)

// exampleOptions is the name/age store used throughout the tests.
func exampleOptions() Options {
	return Options{
		State: map[string]any{"name": "layouwen", "age": 100},
		Mutations: map[string]Mutation{
			"changeName": func(st State, p any) { st.Set("name", p) },
			"changeAge":  func(st State, p any) { st.Set("age", p) },
		},
		Actions: map[string]Action{
			"changeAge": func(s *Store, p any) error {
				s.After(2*time.Second, func() error { return s.Commit("changeAge", p) })
				return nil
			},
		},
		Getters: map[string]Getter{
			"info": func(st State) any {
				return fmt.Sprintf("我叫%v，今年%v", st.Get("name"), st.Get("age"))
			},
		},
	}
}

// recorder collects events delivered to the observer.
type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) OnEvent(ctx context.Context, e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) ofType(typ EventType) []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Event
	for _, e := range r.events {
		if e.Type == typ {
			out = append(out, e)
		}
	}
	return out
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
}

func newTestStore(t *testing.T, opts Options, options ...Option) *Store {
	t.Helper()
	options = append([]Option{WithLogger(quietLogger()), WithRunID("run-test")}, options...)
	s, err := New(opts, options...)
	require.NoError(t, err)
	return s
}

func TestStore_EndToEnd(t *testing.T) {
	s := newTestStore(t, exampleOptions())

	info, err := Value[string](s.Getters(), "info")
	require.NoError(t, err)
	assert.Equal(t, "我叫layouwen，今年100", info)

	require.NoError(t, s.Commit("changeName", "Tom"))

	info, err = Value[string](s.Getters(), "info")
	require.NoError(t, err)
	assert.Equal(t, "我叫Tom，今年100", info)
}

func TestStore_IdempotentRead(t *testing.T) {
	s := newTestStore(t, exampleOptions())

	first, err := s.Getters().Get("info")
	require.NoError(t, err)
	second, err := s.Getters().Get("info")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, s.Getters().Evaluations("info"))
}

func TestStore_GettersAreLazy(t *testing.T) {
	s := newTestStore(t, exampleOptions())
	assert.Equal(t, 0, s.Getters().Evaluations("info"))

	require.NoError(t, s.Commit("changeName", "Tom"))
	require.NoError(t, s.Commit("changeName", "Ann"))
	assert.Equal(t, 0, s.Getters().Evaluations("info"))

	_, err := s.Getters().Get("info")
	require.NoError(t, err)
	assert.Equal(t, 1, s.Getters().Evaluations("info"))
}

func TestStore_UnknownMutation(t *testing.T) {
	var logs bytes.Buffer
	rec := &recorder{}
	s, err := New(exampleOptions(),
		WithLogger(slog.New(slog.NewTextHandler(&logs, nil))),
		WithObserver(rec),
	)
	require.NoError(t, err)
	before := s.State()

	err = s.Commit("x", 1)

	require.Error(t, err)
	assert.True(t, IsUnknownMutation(err))
	assert.False(t, IsUnknownAction(err))
	assert.Equal(t, before, s.State())

	reports := rec.ofType(EventReport)
	require.Len(t, reports, 1)
	assert.Equal(t, "x", reports[0].Name)
	assert.ErrorIs(t, reports[0].Err, err)
	assert.Empty(t, rec.ofType(EventCommit))
	assert.Contains(t, logs.String(), "unknown mutation type: x")
}

func TestStore_UnknownNamesLoggedOnceWithSlogObserver(t *testing.T) {
	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, &slog.HandlerOptions{Level: slog.LevelDebug}))
	s, err := New(exampleOptions(), WithLogger(logger), WithObserver(NewSlogObserver(logger)))
	require.NoError(t, err)

	require.Error(t, s.Commit("ghost", nil))
	require.Error(t, s.Dispatch("phantom", nil))

	out := logs.String()
	assert.Equal(t, 2, strings.Count(out, "level=ERROR"), "one error line per rejected name:\n%s", out)
	assert.Equal(t, 2, strings.Count(out, "level=ERROR msg=\"store operation rejected\""))
	assert.Equal(t, 2, strings.Count(out, "level=DEBUG msg=\"store report\""))
}

func TestStore_CommitUpdatesStateAndGetter(t *testing.T) {
	s := newTestStore(t, exampleOptions())
	_, err := s.Getters().Get("info")
	require.NoError(t, err)

	require.NoError(t, s.Commit("changeName", "Bob"))

	assert.Equal(t, "Bob", s.Get("name"))
	assert.Equal(t, "Bob", s.State()["name"])
	info, err := s.Getters().Get("info")
	require.NoError(t, err)
	assert.Equal(t, "我叫Bob，今年100", info)
	assert.Equal(t, 2, s.Getters().Evaluations("info"))
}

func TestStore_ActionRunsAfterDelay(t *testing.T) {
	sched := testutil.NewManualScheduler()
	s := newTestStore(t, exampleOptions(), WithScheduler(sched))
	ctx := context.Background()

	require.NoError(t, s.Dispatch("changeAge", 42))
	assert.Equal(t, 100, s.Get("age"), "dispatch must not change state synchronously")

	sched.Advance(time.Second)
	n, err := s.Drain(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.Equal(t, 100, s.Get("age"))

	sched.Advance(time.Second)
	n, err = s.Drain(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 42, s.Get("age"))

	info, err := s.Getters().Get("info")
	require.NoError(t, err)
	assert.Equal(t, "我叫layouwen，今年42", info)
}

func TestStore_DelayedCommitsFollowExpiryOrder(t *testing.T) {
	sched := testutil.NewManualScheduler()
	opts := exampleOptions()
	opts.Actions["setAgeIn"] = func(s *Store, p any) error {
		args := p.([]any)
		s.After(args[0].(time.Duration), func() error { return s.Commit("changeAge", args[1]) })
		return nil
	}
	s := newTestStore(t, opts, WithScheduler(sched))

	require.NoError(t, s.Dispatch("setAgeIn", []any{3 * time.Second, 1}))
	require.NoError(t, s.Dispatch("setAgeIn", []any{time.Second, 2}))

	sched.Advance(2 * time.Second)
	_, err := s.Drain(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, s.Get("age"))

	sched.Advance(2 * time.Second)
	_, err = s.Drain(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, s.Get("age"))
}

func TestStore_ActionRunsOnLoop(t *testing.T) {
	opts := exampleOptions()
	opts.Actions["soon"] = func(s *Store, p any) error {
		s.After(10*time.Millisecond, func() error { return s.Commit("changeAge", p) })
		return nil
	}
	s := newTestStore(t, opts)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = s.Run(ctx) }()

	require.NoError(t, s.Dispatch("soon", 7))
	require.Eventually(t, func() bool { return s.Get("age") == 7 }, time.Second, 5*time.Millisecond)
}

func TestStore_UnknownAction(t *testing.T) {
	rec := &recorder{}
	s := newTestStore(t, exampleOptions(), WithObserver(rec))
	before := s.State()

	err := s.Dispatch("doesNotExist", 1)

	require.Error(t, err)
	assert.True(t, IsUnknownAction(err))
	assert.Equal(t, before, s.State())
	require.Len(t, rec.ofType(EventReport), 1)
	assert.Empty(t, rec.ofType(EventDispatch))
}

func TestStore_GetterInvalidationIsPerField(t *testing.T) {
	s := newTestStore(t, Options{
		State: map[string]any{"x": 1, "y": 2},
		Mutations: map[string]Mutation{
			"setY": func(st State, p any) { st.Set("y", p) },
		},
		Getters: map[string]Getter{
			"a": func(st State) any { return st.Get("x").(int) * 10 },
			"b": func(st State) any { return st.Get("y").(int) * 10 },
		},
	})
	g := s.Getters()
	_, _ = g.Get("a")
	_, _ = g.Get("b")

	require.NoError(t, s.Commit("setY", 5))

	a, err := g.Get("a")
	require.NoError(t, err)
	b, err := g.Get("b")
	require.NoError(t, err)

	assert.Equal(t, 10, a)
	assert.Equal(t, 50, b)
	assert.Equal(t, 1, g.Evaluations("a"))
	assert.Equal(t, 2, g.Evaluations("b"))
}

func TestStore_MethodValuesStayBound(t *testing.T) {
	s := newTestStore(t, exampleOptions())
	commit := s.Commit
	dispatch := s.Dispatch

	require.NoError(t, commit("changeName", "Bob"))
	assert.True(t, IsUnknownAction(dispatch("nope", nil)))
	assert.Equal(t, "Bob", s.Get("name"))
}

func TestStore_MutationPanicPropagates(t *testing.T) {
	opts := exampleOptions()
	opts.Mutations["explode"] = func(st State, p any) {
		st.Set("name", "half-done")
		panic("boom")
	}
	s := newTestStore(t, opts)

	assert.PanicsWithValue(t, "boom", func() { _ = s.Commit("explode", nil) })

	// The lock was released: the store keeps working.
	require.NoError(t, s.Commit("changeName", "after"))
	assert.Equal(t, "after", s.Get("name"))
}

func TestStore_ActionErrorReturned(t *testing.T) {
	errBoom := errors.New("boom")
	opts := exampleOptions()
	opts.Actions["fail"] = func(s *Store, p any) error { return errBoom }
	s := newTestStore(t, opts)

	assert.ErrorIs(t, s.Dispatch("fail", nil), errBoom)
}

func TestStore_ActionCanDispatchAndCommit(t *testing.T) {
	opts := exampleOptions()
	opts.Actions["rename"] = func(s *Store, p any) error {
		if err := s.Commit("changeName", p); err != nil {
			return err
		}
		return s.Dispatch("changeAge", 1)
	}
	sched := testutil.NewManualScheduler()
	s := newTestStore(t, opts, WithScheduler(sched))

	require.NoError(t, s.Dispatch("rename", "Zed"))
	assert.Equal(t, "Zed", s.Get("name"))

	sched.Advance(2 * time.Second)
	_, err := s.Drain(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, s.Get("age"))
}

func TestStore_DelayedErrors(t *testing.T) {
	opts := exampleOptions()
	opts.Actions["later"] = func(s *Store, p any) error {
		s.After(time.Second, func() error { return s.Commit("missing", nil) })
		return nil
	}

	t.Run("dropped by default", func(t *testing.T) {
		var logs bytes.Buffer
		sched := testutil.NewManualScheduler()
		s, err := New(opts,
			WithScheduler(sched),
			WithLogger(slog.New(slog.NewTextHandler(&logs, &slog.HandlerOptions{Level: slog.LevelDebug}))),
		)
		require.NoError(t, err)

		require.NoError(t, s.Dispatch("later", nil))
		sched.Advance(time.Second)
		_, err = s.Drain(context.Background())
		require.NoError(t, err)

		assert.Contains(t, logs.String(), "delayed work failed")
		assert.NotContains(t, logs.String(), "task failed")
	})

	t.Run("error handler", func(t *testing.T) {
		var got []error
		sched := testutil.NewManualScheduler()
		s := newTestStore(t, opts,
			WithScheduler(sched),
			WithErrorHandler(func(err error) { got = append(got, err) }),
		)

		require.NoError(t, s.Dispatch("later", nil))
		sched.Advance(time.Second)
		_, err := s.Drain(context.Background())
		require.NoError(t, err)

		require.Len(t, got, 1)
		assert.True(t, IsUnknownMutation(got[0]))
	})

	t.Run("panic becomes error", func(t *testing.T) {
		var got []error
		sched := testutil.NewManualScheduler()
		panicky := exampleOptions()
		panicky.Actions["explode"] = func(s *Store, p any) error {
			s.After(time.Second, func() error { panic("late boom") })
			return nil
		}
		s := newTestStore(t, panicky,
			WithScheduler(sched),
			WithErrorHandler(func(err error) { got = append(got, err) }),
		)

		require.NoError(t, s.Dispatch("explode", nil))
		sched.Advance(time.Second)
		_, err := s.Drain(context.Background())
		require.NoError(t, err)

		require.Len(t, got, 1)
		assert.EqualError(t, got[0], "panic: late boom")
	})
}

func TestStore_CloseDropsDelayedWork(t *testing.T) {
	sched := testutil.NewManualScheduler()
	s := newTestStore(t, exampleOptions(), WithScheduler(sched))

	require.NoError(t, s.Dispatch("changeAge", 42))
	s.Close()
	sched.Advance(2 * time.Second)

	n, err := s.Drain(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.Equal(t, 100, s.Get("age"))
}

func TestStore_DelayedWorkRunsAfterCallerDropsStore(t *testing.T) {
	sched := testutil.NewManualScheduler()
	l := newLoopForTest()
	func() {
		s := newTestStore(t, exampleOptions(), WithScheduler(sched), WithLoop(l))
		require.NoError(t, s.Dispatch("changeAge", 1))
	}()

	sched.Advance(2 * time.Second)
	n, err := l.Drain(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestStore_TablesAreCopied(t *testing.T) {
	opts := exampleOptions()
	s := newTestStore(t, opts)

	opts.Mutations["late"] = func(st State, p any) {}
	delete(opts.Mutations, "changeName")

	assert.True(t, IsUnknownMutation(s.Commit("late", nil)))
	assert.NoError(t, s.Commit("changeName", "still here"))
	assert.Equal(t, []string{"changeAge", "changeName"}, s.Mutations())
	assert.Equal(t, []string{"changeAge"}, s.Actions())
}

func TestStore_InitialStateIsCopied(t *testing.T) {
	initial := map[string]any{"name": "a"}
	s := newTestStore(t, Options{State: initial})

	initial["name"] = "b"
	assert.Equal(t, "a", s.Get("name"))

	snap := s.State()
	snap["name"] = "c"
	assert.Equal(t, "a", s.Get("name"))
}

func TestNew_RejectsNilHandlers(t *testing.T) {
	tests := []struct {
		name string
		opts Options
		want string
	}{
		{"mutation", Options{Mutations: map[string]Mutation{"m": nil}}, `mutation "m": nil handler`},
		{"action", Options{Actions: map[string]Action{"a": nil}}, `action "a": nil handler`},
		{"getter", Options{Getters: map[string]Getter{"g": nil}}, `getter "g": nil handler`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.opts)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestNew_EmptyOptions(t *testing.T) {
	s, err := New(Options{})
	require.NoError(t, err)
	assert.Empty(t, s.State())
	assert.Empty(t, s.Getters().Names())
	assert.NotEmpty(t, s.RunID())
}

func TestStore_ObserverEvents(t *testing.T) {
	rec := &recorder{}
	s := newTestStore(t, exampleOptions(), WithObserver(rec))

	require.NoError(t, s.Commit("changeName", "Tom"))
	require.NoError(t, s.Commit("changeName", "Tom"))

	require.Len(t, rec.events, 3)
	set, first, second := rec.events[0], rec.events[1], rec.events[2]

	assert.Equal(t, EventStateSet, set.Type)
	assert.Equal(t, "name", set.Key)
	assert.Equal(t, "layouwen", set.Old)
	assert.Equal(t, "Tom", set.New)

	assert.Equal(t, EventCommit, first.Type)
	assert.Equal(t, "run-test", first.RunID)
	assert.Equal(t, "Tom", first.State["name"])

	// Same value again: a commit, but no state change.
	assert.Equal(t, EventCommit, second.Type)
	assert.Less(t, set.Seq, first.Seq)
	assert.Less(t, first.Seq, second.Seq)
}

func TestStore_NoSnapshotWithoutObserver(t *testing.T) {
	var seen []Event
	s := newTestStore(t, exampleOptions())
	events := s.applyMutation("changeName", func(st State, p any) { st.Set("name", p) }, "x")
	seen = append(seen, events...)

	require.Len(t, seen, 2)
	assert.Nil(t, seen[1].State)
}

// countingContainer wraps the default container and counts writes.
type countingContainer struct {
	*reactive.State
	sets int
}

func (c *countingContainer) Set(key string, value any) {
	c.sets++
	c.State.Set(key, value)
}

func TestStore_WithContainer(t *testing.T) {
	var built *countingContainer
	factory := func(initial map[string]any) reactive.Container {
		built = &countingContainer{State: reactive.New(initial)}
		return built
	}
	s := newTestStore(t, exampleOptions(), WithContainer(factory))

	require.NoError(t, s.Commit("changeName", "Tom"))

	require.NotNil(t, built)
	assert.Equal(t, 1, built.sets)
	assert.Equal(t, "Tom", s.Get("name"))
}

func TestStore_ConcurrentCommits(t *testing.T) {
	s := newTestStore(t, Options{
		State: map[string]any{"n": 0},
		Mutations: map[string]Mutation{
			"inc": func(st State, p any) { st.Set("n", st.Get("n").(int)+1) },
		},
		Getters: map[string]Getter{
			"double": func(st State) any { return st.Get("n").(int) * 2 },
		},
	})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				_ = s.Commit("inc", nil)
				_, _ = s.Getters().Get("double")
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 800, s.Get("n"))
	v, err := s.Getters().Get("double")
	require.NoError(t, err)
	assert.Equal(t, 1600, v)
}

func TestContext_RoundTrip(t *testing.T) {
	s := newTestStore(t, exampleOptions())
	ctx := NewContext(context.Background(), s)

	got, ok := FromContext(ctx)
	require.True(t, ok)
	assert.Same(t, s, got)

	_, ok = FromContext(context.Background())
	assert.False(t, ok)
}
