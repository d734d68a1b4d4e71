package definition

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Layouwen/vuex-study/internal/store"
	"github.com/Layouwen/vuex-study/internal/testutil"
)

func loadBasic(t *testing.T) *LoadResult {
	t.Helper()
	result, errs := Load(filepath.Join("testdata", "basic"), LoadModeCollectAll)
	require.Empty(t, errs)
	return result
}

func newStore(t *testing.T, d *Definition, opts ...store.Option) *store.Store {
	t.Helper()
	s, err := store.New(d.Options(), opts...)
	require.NoError(t, err)
	return s
}

func TestLoad_Basic(t *testing.T) {
	result := loadBasic(t)

	assert.Equal(t, 2, result.FileCount)
	require.Len(t, result.Definitions, 2)
	assert.Equal(t, "counter", result.Definitions[0].Name)
	assert.Equal(t, "profile", result.Definitions[1].Name)

	profile, ok := result.Find("profile")
	require.True(t, ok)
	assert.Equal(t, map[string]any{"name": "layouwen", "age": int64(100)}, profile.State)
	assert.Equal(t, []string{"birthday", "changeAge", "changeName"}, profile.MutationNames())
	assert.Equal(t, []string{"changeAge", "grow", "rename"}, profile.ActionNames())
	assert.Equal(t, []string{"adult", "info"}, profile.GetterNames())
	assert.Equal(t, 2*time.Second, profile.Actions["changeAge"].Steps[0].Delay)

	_, ok = result.Find("missing")
	assert.False(t, ok)
}

func TestDefinition_EndToEnd(t *testing.T) {
	profile, _ := loadBasic(t).Find("profile")
	s := newStore(t, profile)

	info, err := store.Value[string](s.Getters(), "info")
	require.NoError(t, err)
	assert.Equal(t, "我叫layouwen，今年100", info)

	require.NoError(t, s.Commit("changeName", "Tom"))

	info, err = store.Value[string](s.Getters(), "info")
	require.NoError(t, err)
	assert.Equal(t, "我叫Tom，今年100", info)
}

func TestDefinition_DelayedAction(t *testing.T) {
	profile, _ := loadBasic(t).Find("profile")
	sched := testutil.NewManualScheduler()
	s := newStore(t, profile, store.WithScheduler(sched))
	ctx := context.Background()

	require.NoError(t, s.Dispatch("changeAge", int64(42)))
	assert.Equal(t, int64(100), s.Get("age"))

	sched.Advance(2 * time.Second)
	_, err := s.Drain(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(42), s.Get("age"))
}

func TestDefinition_StepsInIssueAndExpiryOrder(t *testing.T) {
	profile, _ := loadBasic(t).Find("profile")
	sched := testutil.NewManualScheduler()
	s := newStore(t, profile, store.WithScheduler(sched))

	require.NoError(t, s.Dispatch("rename", "Ann"))
	assert.Equal(t, "Ann", s.Get("name"))
	assert.Equal(t, int64(100), s.Get("age"))

	sched.Advance(time.Second)
	_, err := s.Drain(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(101), s.Get("age"))
}

func TestDefinition_WhenGuard(t *testing.T) {
	profile, _ := loadBasic(t).Find("profile")
	s := newStore(t, profile)

	require.NoError(t, s.Dispatch("grow", nil))
	assert.Equal(t, int64(101), s.Get("age"))

	require.NoError(t, s.Commit("changeAge", int64(120)))
	require.NoError(t, s.Dispatch("grow", nil))
	assert.Equal(t, int64(120), s.Get("age"))
}

func TestDefinition_GetterMemoization(t *testing.T) {
	counter, _ := loadBasic(t).Find("counter")
	s := newStore(t, counter)
	g := s.Getters()

	a, _ := g.Get("a")
	b, _ := g.Get("b")
	assert.Equal(t, int64(10), a)
	assert.Equal(t, int64(20), b)

	require.NoError(t, s.Commit("setY", int64(5)))
	a, _ = g.Get("a")
	b, _ = g.Get("b")

	assert.Equal(t, int64(10), a)
	assert.Equal(t, int64(50), b)
	assert.Equal(t, 1, g.Evaluations("a"))
	assert.Equal(t, 2, g.Evaluations("b"))
}

func TestDefinition_MutationSeesPreviousState(t *testing.T) {
	counter, _ := loadBasic(t).Find("counter")
	s := newStore(t, counter)

	require.NoError(t, s.Commit("swap", nil))
	assert.Equal(t, int64(2), s.Get("x"))
	assert.Equal(t, int64(1), s.Get("y"))
}

func TestDefinition_WholeStateGetter(t *testing.T) {
	counter, _ := loadBasic(t).Find("counter")
	s := newStore(t, counter)

	size, err := s.Getters().Get("size")
	require.NoError(t, err)
	assert.Equal(t, int64(2), size)

	require.NoError(t, s.Commit("setX", int64(7)))
	size, err = s.Getters().Get("size")
	require.NoError(t, err)
	assert.Equal(t, int64(2), size)

	require.NoError(t, s.Commit("setZ", int64(3)))
	size, err = s.Getters().Get("size")
	require.NoError(t, err)
	assert.Equal(t, int64(3), size, "creating a field changes the key set")
}

func TestDefinition_MutationEvalErrorPanics(t *testing.T) {
	profile, _ := loadBasic(t).Find("profile")
	s := newStore(t, profile)
	require.NoError(t, s.Commit("changeName", "x"))
	require.NoError(t, s.Commit("changeAge", "not a number"))

	assert.Panics(t, func() { _ = s.Commit("birthday", nil) })
	assert.Equal(t, "not a number", s.Get("age"))
}

func TestLoad_CollectsErrors(t *testing.T) {
	result, errs := Load(filepath.Join("testdata", "broken"), LoadModeCollectAll)
	require.NotNil(t, result)
	require.Len(t, errs, 2)
	assert.Empty(t, result.Definitions)

	codes := map[string]bool{}
	for _, err := range errs {
		var le *LoadError
		require.True(t, errors.As(err, &le))
		codes[le.Code] = true
		assert.True(t, le.Pos.IsValid(), "error should carry a position: %v", err)
	}
	assert.True(t, codes[ErrCodeInvalidExpr])
	assert.True(t, codes[ErrCodeUnknownTarget])
}

func TestLoad_FailFast(t *testing.T) {
	_, errs := Load(filepath.Join("testdata", "broken"), LoadModeFailFast)
	assert.Len(t, errs, 1)
}

func TestLoad_DirectoryErrors(t *testing.T) {
	tests := []struct {
		name string
		dir  string
		code string
	}{
		{"missing", filepath.Join("testdata", "nope"), ErrCodeNotFound},
		{"file", filepath.Join("testdata", "basic", "profile.cue"), ErrCodeNotFound},
		{"empty", t.TempDir(), ErrCodeNoFiles},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, errs := Load(tt.dir, LoadModeFailFast)
			require.Len(t, errs, 1)
			var le *LoadError
			require.True(t, errors.As(errs[0], &le))
			assert.Equal(t, tt.code, le.Code)
		})
	}
}

func TestLoadDir(t *testing.T) {
	defs, err := LoadDir(filepath.Join("testdata", "basic"))
	require.NoError(t, err)
	assert.Len(t, defs, 2)

	_, err = LoadDir(filepath.Join("testdata", "broken"))
	assert.Error(t, err)
}
