package deque

import (
	"runtime"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type item struct{ id int }

// TestNew_Capacity verifies capacity validation and power-of-two rounding
func TestNew_Capacity(t *testing.T) {
	_, err := New[item](0)
	assert.ErrorIs(t, err, ErrInvalidCapacity)
	_, err = New[item](-3)
	assert.ErrorIs(t, err, ErrInvalidCapacity)

	for in, want := range map[int]int{1: 1, 2: 2, 3: 4, 5: 8, 4096: 4096, 4097: 8192} {
		d, err := New[item](in)
		require.NoError(t, err)
		assert.Equal(t, want, d.Capacity(), "capacity for %d", in)
	}
}

// TestDeque_LIFOFIFO verifies the owner/thief ordering law
// Given: Items A, B, C pushed in order
// When: pop, steal, pop are called
// Then: C, A, B are returned, and both ends then report empty
func TestDeque_LIFOFIFO(t *testing.T) {
	d, err := New[item](8)
	require.NoError(t, err)
	a, b, c := &item{1}, &item{2}, &item{3}

	assert.Equal(t, 0, d.Size())
	require.NoError(t, d.Push(a))
	require.NoError(t, d.Push(b))
	assert.Equal(t, 2, d.Size())
	require.NoError(t, d.Push(c))

	got, ok := d.Pop()
	require.True(t, ok)
	assert.Same(t, c, got)

	got, ok = d.Steal()
	require.True(t, ok)
	assert.Same(t, a, got)

	got, ok = d.Pop()
	require.True(t, ok)
	assert.Same(t, b, got)

	assert.Equal(t, 0, d.Size())
	_, ok = d.Pop()
	assert.False(t, ok)
	_, ok = d.Steal()
	assert.False(t, ok)

	require.NoError(t, d.Push(a))
	assert.Equal(t, 1, d.Size())
	got, ok = d.Steal()
	require.True(t, ok)
	assert.Same(t, a, got)
}

// TestDeque_Full verifies the bounded buffer refuses to overwrite
func TestDeque_Full(t *testing.T) {
	d, err := New[item](4)
	require.NoError(t, err)

	for i := 0; i < 4; i++ {
		require.NoError(t, d.Push(&item{i}))
	}
	assert.ErrorIs(t, d.Push(&item{99}), ErrFull)

	got, ok := d.Steal()
	require.True(t, ok)
	assert.Equal(t, 0, got.id)
	assert.NoError(t, d.Push(&item{4}))

	for want := 4; want >= 1; want-- {
		got, ok := d.Pop()
		require.True(t, ok)
		assert.Equal(t, want, got.id)
	}
}

// TestDeque_WrapAround verifies masking across many push/steal cycles
func TestDeque_WrapAround(t *testing.T) {
	d, err := New[item](4)
	require.NoError(t, err)

	for i := 0; i < 100; i++ {
		require.NoError(t, d.Push(&item{i}))
		require.NoError(t, d.Push(&item{i + 1000}))
		got, ok := d.Steal()
		require.True(t, ok)
		assert.Equal(t, i, got.id)
		got, ok = d.Pop()
		require.True(t, ok)
		assert.Equal(t, i+1000, got.id)
	}
	assert.Equal(t, 0, d.Size())
}

// TestDeque_ConcurrentSteal verifies every item is taken exactly once
// Given: An owner pushing and popping while several thieves steal
// When: All items have been consumed
// Then: Each item was observed exactly once across owner and thieves
func TestDeque_ConcurrentSteal(t *testing.T) {
	const (
		total   = 20000
		thieves = 4
	)
	d, err := New[item](256)
	require.NoError(t, err)

	items := make([]item, total)
	var taken [total]atomic.Int32
	var consumed atomic.Int64
	var done atomic.Bool

	var wg sync.WaitGroup
	for i := 0; i < thieves; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for !done.Load() {
				if v, ok := d.Steal(); ok {
					taken[v.id].Add(1)
					consumed.Add(1)
				}
			}
		}()
	}

	for i := 0; i < total; i++ {
		items[i].id = i
		for d.Push(&items[i]) != nil {
			if v, ok := d.Pop(); ok {
				taken[v.id].Add(1)
				consumed.Add(1)
			}
		}
		if i%3 == 0 {
			if v, ok := d.Pop(); ok {
				taken[v.id].Add(1)
				consumed.Add(1)
			}
		}
	}
	for {
		v, ok := d.Pop()
		if !ok {
			break
		}
		taken[v.id].Add(1)
		consumed.Add(1)
	}
	// thieves may still be recording a claimed item
	for consumed.Load() < total {
		runtime.Gosched()
	}
	done.Store(true)
	wg.Wait()

	for i := range taken {
		require.EqualValues(t, 1, taken[i].Load(), "item %d", i)
	}
	assert.Equal(t, 0, d.Size())
}
