package trace

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Layouwen/vuex-study/internal/snapshot"
	"github.com/Layouwen/vuex-study/internal/store"
)

func openTestLog(t *testing.T) *Log {
	t.Helper()
	l, err := Open(filepath.Join(t.TempDir(), "trace.db"))
	require.NoError(t, err)
	t.Cleanup(func() { l.Close() })
	return l
}

func TestOpen_CreatesDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trace.db")

	l, err := Open(path)
	require.NoError(t, err)
	defer l.Close()

	_, err = os.Stat(path)
	assert.NoError(t, err)
}

func TestOpen_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trace.db")
	for i := 0; i < 3; i++ {
		l, err := Open(path)
		require.NoError(t, err, "iteration %d", i)
		require.NoError(t, l.Close())
	}
}

func TestOpen_ResumesMigrations(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trace.db")

	l, err := Open(path)
	require.NoError(t, err)
	_, err = l.db.Exec(`DROP INDEX idx_events_name`)
	require.NoError(t, err)
	_, err = l.db.Exec(`PRAGMA user_version = 1`)
	require.NoError(t, err)
	require.NoError(t, l.Close())

	l, err = Open(path)
	require.NoError(t, err)
	defer l.Close()

	var n int
	require.NoError(t, l.db.QueryRow(
		`SELECT COUNT(*) FROM sqlite_master WHERE type = 'index' AND name = 'idx_events_name'`).Scan(&n))
	assert.Equal(t, 1, n)

	version, err := l.pragma("user_version")
	require.NoError(t, err)
	assert.Equal(t, "2", version)
}

func TestOpen_Pragmas(t *testing.T) {
	l := openTestLog(t)

	tests := []struct {
		name string
		want string
	}{
		{"journal_mode", "wal"},
		{"busy_timeout", "5000"},
		{"user_version", "2"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := l.pragma(tt.name)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestOpen_BadPath(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "missing", "dir", "trace.db"))
	assert.Error(t, err)
}

func TestRecord_RoundTrip(t *testing.T) {
	l := openTestLog(t)
	ctx := context.Background()
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	state := map[string]any{"name": "Tom", "age": 100}

	require.NoError(t, l.Record(ctx, store.Event{
		Type: store.EventCommit, Seq: 2, RunID: "run-1", Name: "changeName",
		Payload: "Tom", State: state, Timestamp: at,
	}))
	require.NoError(t, l.Record(ctx, store.Event{
		Type: store.EventStateSet, Seq: 1, RunID: "run-1", Name: "changeName",
		Key: "name", Old: "layouwen", New: "Tom", Timestamp: at,
	}))

	entries, err := l.Events(ctx, Filter{RunID: "run-1"})
	require.NoError(t, err)
	require.Len(t, entries, 2)

	set, commit := entries[0], entries[1]
	assert.Equal(t, "state.set", set.Kind)
	assert.Equal(t, "name", set.Key)
	assert.Equal(t, `"Tom"`, set.Payload)
	assert.Empty(t, set.StateHash)

	assert.Equal(t, "commit", commit.Kind)
	assert.Equal(t, int64(2), commit.Seq)
	assert.Equal(t, `"Tom"`, commit.Payload)
	assert.Equal(t, snapshot.MustStateHash(state), commit.StateHash)
	assert.True(t, at.Equal(commit.At))
}

func TestRecord_DuplicateSeqIgnored(t *testing.T) {
	l := openTestLog(t)
	ctx := context.Background()
	e := store.Event{Type: store.EventDispatch, Seq: 1, RunID: "r", Name: "a"}

	require.NoError(t, l.Record(ctx, e))
	require.NoError(t, l.Record(ctx, e))

	entries, err := l.Events(ctx, Filter{})
	require.NoError(t, err)
	assert.Len(t, entries, 1)
	assert.Equal(t, "null", entries[0].Payload)
}

func TestRecord_UnencodablePayload(t *testing.T) {
	l := openTestLog(t)
	ctx := context.Background()

	require.NoError(t, l.Record(ctx, store.Event{
		Type: store.EventCommit, Seq: 1, RunID: "r", Name: "m",
		Payload: 1.5, State: map[string]any{"x": 0.25},
	}))

	entries, err := l.Events(ctx, Filter{})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "null", entries[0].Payload)
	assert.Empty(t, entries[0].StateHash)
}

func TestRecord_Report(t *testing.T) {
	l := openTestLog(t)
	ctx := context.Background()

	require.NoError(t, l.Record(ctx, store.Event{
		Type: store.EventReport, Seq: 1, RunID: "r", Name: "x",
		Err: errors.New("UNKNOWN_MUTATION: unknown mutation type: x"),
	}))

	entries, err := l.Events(ctx, Filter{Kind: "report"})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Contains(t, entries[0].Error, "unknown mutation type: x")
}

func TestEvents_Filters(t *testing.T) {
	l := openTestLog(t)
	ctx := context.Background()

	for i, e := range []store.Event{
		{Type: store.EventDispatch, RunID: "a", Name: "load"},
		{Type: store.EventCommit, RunID: "a", Name: "set"},
		{Type: store.EventCommit, RunID: "b", Name: "set"},
		{Type: store.EventCommit, RunID: "b", Name: "reset"},
	} {
		e.Seq = int64(i + 1)
		require.NoError(t, l.Record(ctx, e))
	}

	tests := []struct {
		name   string
		filter Filter
		want   []int64
	}{
		{"all", Filter{}, []int64{1, 2, 3, 4}},
		{"run", Filter{RunID: "b"}, []int64{3, 4}},
		{"kind", Filter{Kind: "commit"}, []int64{2, 3, 4}},
		{"name", Filter{Name: "set"}, []int64{2, 3}},
		{"combined", Filter{RunID: "a", Kind: "commit"}, []int64{2}},
		{"limit", Filter{Limit: 2}, []int64{1, 2}},
		{"none", Filter{RunID: "zzz"}, []int64{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entries, err := l.Events(ctx, tt.filter)
			require.NoError(t, err)
			seqs := []int64{}
			for _, e := range entries {
				seqs = append(seqs, e.Seq)
			}
			assert.Equal(t, tt.want, seqs)
		})
	}

	runs, err := l.Runs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, runs)
}

func TestLog_ObservesStore(t *testing.T) {
	l := openTestLog(t)
	ctx := context.Background()

	s, err := store.New(store.Options{
		State: map[string]any{"name": "layouwen"},
		Mutations: map[string]store.Mutation{
			"changeName": func(st store.State, p any) { st.Set("name", p) },
		},
	}, store.WithObserver(l), store.WithRunID("run-obs"))
	require.NoError(t, err)

	require.NoError(t, s.Commit("changeName", "Tom"))
	_ = s.Commit("missing", nil)

	entries, err := l.Events(ctx, Filter{RunID: "run-obs"})
	require.NoError(t, err)

	kinds := make([]string, 0, len(entries))
	for _, e := range entries {
		kinds = append(kinds, e.Kind)
	}
	assert.Equal(t, []string{"state.set", "commit", "report"}, kinds)
	assert.Equal(t, snapshot.MustStateHash(map[string]any{"name": "Tom"}), entries[1].StateHash)
}
