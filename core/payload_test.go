package core

import (
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type vec3 struct {
	X, Y, Z float64
}

type oversized struct {
	Words [PayloadSize/8 + 1]uint64
}

type withPointer struct {
	Name string
}

var destroyed atomic.Int32

type closable struct {
	ID int
}

func (c *closable) Destroy() { destroyed.Add(1) }

func TestFitsInline(t *testing.T) {
	assert.True(t, fitsInline[int]())
	assert.True(t, fitsInline[vec3]())
	assert.True(t, fitsInline[[6]uint64]())
	assert.True(t, fitsInline[closable]())
	assert.False(t, fitsInline[oversized]())
	assert.False(t, fitsInline[withPointer]())
	assert.False(t, fitsInline[*int]())
	assert.False(t, fitsInline[[]byte]())
	assert.False(t, fitsInline[map[string]int]())
	assert.False(t, fitsInline[func()]())
}

// TestCreateWith_InlineAndBoxed verifies typed data reaches the callback in
// both storage modes
// Given: One pointer-free task payload and one carrying a string
// When: Both tasks run
// Then: The callbacks see the original values and only the first is inline
func TestCreateWith_InlineAndBoxed(t *testing.T) {
	g := newTestGraph(t, &GraphConfig{Workers: 1})
	w := g.Foreground()

	var gotVec vec3
	var gotName string

	h1, err := CreateWith(w, Handle{}, vec3{1, 2, 3}, func(_ *Task, v *vec3) { gotVec = *v })
	require.NoError(t, err)
	h2, err := CreateWith(w, Handle{}, withPointer{Name: "boxed"}, func(_ *Task, v *withPointer) { gotName = v.Name })
	require.NoError(t, err)

	t1, t2 := h1.Value(), h2.Value()
	assert.True(t, t1.Inline())
	assert.False(t, t2.Inline())
	assert.Equal(t, vec3{1, 2, 3}, *Data[vec3](t1))
	assert.Equal(t, "boxed", Data[withPointer](t2).Name)

	require.NoError(t, w.Submit(h1))
	require.NoError(t, w.Submit(h2))
	g.Wait(h1)
	g.Wait(h2)

	assert.Equal(t, vec3{1, 2, 3}, gotVec)
	assert.Equal(t, "boxed", gotName)
	requireAllSlotsFree(t, g)
}

// TestCreateWith_Destroy verifies Destroy runs once per task, after the hook
func TestCreateWith_Destroy(t *testing.T) {
	g := newTestGraph(t, &GraphConfig{Workers: 2})
	destroyed.Store(0)

	var destroyedAtHook atomic.Int32
	destroyedAtHook.Store(-1)
	root, err := AddWith(g.Foreground(), Handle{}, closable{ID: 7}, func(task *Task, c *closable) {
		task.SetTeardown(func(*Task) { destroyedAtHook.Store(destroyed.Load()) })
		for i := 0; i < 10; i++ {
			_, _ = SpawnWith(task, closable{ID: i}, func(*Task, *closable) {})
		}
	})
	require.NoError(t, err)
	g.Wait(root)

	assert.EqualValues(t, 11, destroyed.Load())
	// all children were destroyed before the root's own hook ran
	assert.EqualValues(t, 10, destroyedAtHook.Load())
	requireAllSlotsFree(t, g)
}

func TestCreateWith_DiscardDestroys(t *testing.T) {
	g := newTestGraph(t, &GraphConfig{Workers: 1})
	destroyed.Store(0)

	h, err := CreateWith(g.Foreground(), Handle{}, closable{ID: 1}, func(*Task, *closable) {
		t.Error("discarded task ran")
	})
	require.NoError(t, err)
	g.Foreground().Discard(h)

	assert.EqualValues(t, 1, destroyed.Load())
	requireAllSlotsFree(t, g)
}

func TestData_Empty(t *testing.T) {
	g := newTestGraph(t, &GraphConfig{Workers: 1})

	h, err := g.Create(nil)
	require.NoError(t, err)
	task := h.Value()
	assert.Nil(t, Data[int](task))
	assert.False(t, task.Inline())
	g.Foreground().Discard(h)
}

// TestData_TypeMismatch verifies reading typed data as another type fails loudly
// Given: One inline payload and one boxed payload
// When: Data is asked for a type other than the one stored
// Then: Each read panics with a contract violation and the matching read still works
func TestData_TypeMismatch(t *testing.T) {
	g := newTestGraph(t, &GraphConfig{Workers: 1})
	w := g.Foreground()

	inline, err := CreateWith(w, Handle{}, [2]uint64{0xdeadbeef, 3}, func(*Task, *[2]uint64) {})
	require.NoError(t, err)
	boxed, err := CreateWith(w, Handle{}, withPointer{Name: "boxed"}, func(*Task, *withPointer) {})
	require.NoError(t, err)

	requireViolation(t, func() { _ = Data[string](inline.Value()) })
	// same size and alignment is still a different type
	requireViolation(t, func() { _ = Data[[2]int64](inline.Value()) })
	requireViolation(t, func() { _ = Data[int](boxed.Value()) })
	requireViolation(t, func() { _ = Data[string](boxed.Value()) })

	assert.Equal(t, [2]uint64{0xdeadbeef, 3}, *Data[[2]uint64](inline.Value()))
	assert.Equal(t, "boxed", Data[withPointer](boxed.Value()).Name)

	w.Discard(inline)
	w.Discard(boxed)
	requireAllSlotsFree(t, g)
}

// TestData_TypeMismatchInsideTask verifies a mismatched read in a body reaches the waiter
func TestData_TypeMismatchInsideTask(t *testing.T) {
	g := newTestGraph(t, &GraphConfig{Workers: 1})

	h, err := AddWith(g.Foreground(), Handle{}, vec3{1, 2, 3}, func(task *Task, _ *vec3) {
		_ = Data[string](task)
	})
	require.NoError(t, err)

	r := recoverViolation(func() { g.Wait(h) })
	require.True(t, IsContractViolation(r), "recovered %v", r)
}
