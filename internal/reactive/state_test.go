package reactive

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestState_GetSet(t *testing.T) {
	s := New(map[string]any{"name": "layouwen", "age": 100})

	assert.Equal(t, "layouwen", s.Get("name"))
	assert.Nil(t, s.Get("missing"))

	s.Set("name", "Tom")
	assert.Equal(t, "Tom", s.Get("name"))

	_, ok := s.Lookup("missing")
	assert.False(t, ok)

	s.Set("city", "Shenzhen")
	v, ok := s.Lookup("city")
	require.True(t, ok)
	assert.Equal(t, "Shenzhen", v)
	assert.Equal(t, []string{"age", "city", "name"}, s.Keys())
}

func TestState_New_CopiesInitial(t *testing.T) {
	initial := map[string]any{"x": 1}
	s := New(initial)

	initial["x"] = 2
	assert.Equal(t, 1, s.Get("x"), "state must not alias the caller's map")
}

func TestState_VersionBumpsOnlyOnChange(t *testing.T) {
	s := New(map[string]any{"x": 1, "list": []int{1, 2}})
	v1 := s.Version("x")

	s.Set("x", 1)
	assert.Equal(t, v1, s.Version("x"), "same value is not a change")

	s.Set("list", []int{1, 2})
	assert.Equal(t, uint64(1), s.Version("list"), "deeply equal value is not a change")

	s.Set("x", 2)
	assert.Greater(t, s.Version("x"), v1)
	assert.Equal(t, uint64(0), s.Version("missing"))
}

func TestState_SubscribeReceivesChanges(t *testing.T) {
	s := New(map[string]any{"name": "layouwen"})

	var changes []Change
	cancel := s.Subscribe(func(c Change) { changes = append(changes, c) })

	s.Set("name", "Tom")
	s.Set("name", "Tom")
	s.Set("age", 100)

	require.Len(t, changes, 2)
	assert.Equal(t, "name", changes[0].Key)
	assert.Equal(t, "layouwen", changes[0].Old)
	assert.Equal(t, "Tom", changes[0].New)
	assert.False(t, changes[0].Created)
	assert.True(t, changes[1].Created)
	assert.Less(t, changes[0].Version, changes[1].Version)

	cancel()
	s.Set("name", "Bob")
	assert.Len(t, changes, 2, "cancelled subscriber must not be called")
}

func TestState_SubscribersNotifiedInOrder(t *testing.T) {
	s := New(nil)

	var order []int
	s.Subscribe(func(Change) { order = append(order, 1) })
	s.Subscribe(func(Change) { order = append(order, 2) })
	s.Subscribe(func(Change) { order = append(order, 3) })

	s.Set("x", 1)
	assert.Equal(t, []int{1, 2, 3}, order)
}

func TestState_SnapshotIsCopy(t *testing.T) {
	s := New(map[string]any{"x": 1})
	snap := s.Snapshot()
	snap["x"] = 99
	assert.Equal(t, 1, s.Get("x"))
}
