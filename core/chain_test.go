package core

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type orderLog struct {
	mu    sync.Mutex
	items []int
}

func (l *orderLog) add(v int) {
	l.mu.Lock()
	l.items = append(l.items, v)
	l.mu.Unlock()
}

func (l *orderLog) snapshot() []int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]int(nil), l.items...)
}

// TestChain_Order verifies each link runs after its predecessor's whole subtree
// Given: A chain of 6 stages where every stage spawns 20 slow children
// When: The chain is waited on
// Then: Stages ran in append order and each saw all children of the previous
// stage completed
func TestChain_Order(t *testing.T) {
	g := newTestGraph(t, &GraphConfig{Workers: 4})

	const stages, fanout = 6, 20
	var log orderLog
	var done [stages]atomic.Int32
	var early atomic.Int32

	b := g.Chain()
	for i := 0; i < stages; i++ {
		b.Add(func(task *Task) {
			if i > 0 && done[i-1].Load() != fanout {
				early.Add(1)
			}
			log.add(i)
			for j := 0; j < fanout; j++ {
				_, _ = task.Spawn(func(*Task) {
					time.Sleep(20 * time.Microsecond)
					done[i].Add(1)
				})
			}
		})
	}
	require.NoError(t, b.Err())
	assert.Equal(t, stages, b.Len())

	h, err := b.Submit()
	require.NoError(t, err)
	g.Wait(h)

	assert.Equal(t, []int{0, 1, 2, 3, 4, 5}, log.snapshot())
	assert.Zero(t, early.Load())
	for i := range done {
		assert.EqualValues(t, fanout, done[i].Load())
	}
	requireAllSlotsFree(t, g)
}

// TestChain_EndToEnd runs the four-stage chain with a 1000-leaf fan-out
// Given: 4 workers and a 4-stage chain whose last stage spawns 1000 leaves
// When: The chain's handle is waited on
// Then: Every stage and leaf ran exactly once and every pool is fully free
func TestChain_EndToEnd(t *testing.T) {
	g := newTestGraph(t, &GraphConfig{Workers: 4})

	var stageRuns [4]atomic.Int32
	var leaves, spawnErrs atomic.Int32
	var log orderLog

	b := g.Chain()
	for i := 0; i < 3; i++ {
		b.Add(func(*Task) {
			stageRuns[i].Add(1)
			log.add(i)
		})
	}
	b.Add(func(task *Task) {
		stageRuns[3].Add(1)
		log.add(3)
		for j := 0; j < 1000; j++ {
			if _, err := task.Spawn(func(*Task) { leaves.Add(1) }); err != nil {
				spawnErrs.Add(1)
			}
		}
	})
	h, err := b.Submit()
	require.NoError(t, err)

	g.Wait(h)

	require.Zero(t, spawnErrs.Load())
	assert.EqualValues(t, 1000, leaves.Load())
	for i := range stageRuns {
		assert.EqualValues(t, 1, stageRuns[i].Load(), "stage %d", i)
	}
	assert.Equal(t, []int{0, 1, 2, 3}, log.snapshot())
	requireAllSlotsFree(t, g)
}

// TestChain_PoolExhausted verifies exhaustion while building a chain is
// reported by Submit and nothing runs
func TestChain_PoolExhausted(t *testing.T) {
	g := newTestGraph(t, &GraphConfig{Workers: 1, PoolCapacity: 3})

	var ran atomic.Int32
	b := g.Chain()
	for i := 0; i < 5; i++ {
		b.Add(func(*Task) { ran.Add(1) })
	}
	require.ErrorIs(t, b.Err(), ErrPoolExhausted)
	assert.Equal(t, 2, b.Len())
	assert.Zero(t, g.Foreground().Pool().Size())

	h, err := b.Submit()
	require.ErrorIs(t, err, ErrPoolExhausted)
	assert.True(t, h.IsZero())
	assert.Zero(t, ran.Load())
	requireAllSlotsFree(t, g)

	// no room for the wrapper at all
	held := make([]Handle, 0, 3)
	for i := 0; i < 3; i++ {
		h, err := g.Create(nil)
		require.NoError(t, err)
		held = append(held, h)
	}
	_, err = g.Chain().Add(func(*Task) {}).Submit()
	require.ErrorIs(t, err, ErrPoolExhausted)
	for _, h := range held {
		g.Foreground().Discard(h)
	}
	requireAllSlotsFree(t, g)
}

// TestChain_QueueFullRunsInline verifies continuations never stall on a full deque
// Given: A foreground-only graph whose deque holds a single task
// When: A 5-link chain is submitted
// Then: Links that cannot be queued run inline, still in order
func TestChain_QueueFullRunsInline(t *testing.T) {
	g := newTestGraph(t, &GraphConfig{Workers: 1, QueueCapacity: 1})

	var log orderLog
	b := g.Chain()
	for i := 0; i < 5; i++ {
		b.Add(func(*Task) { log.add(i) })
	}
	h, err := b.Submit()
	require.NoError(t, err)
	g.Wait(h)

	assert.Equal(t, []int{0, 1, 2, 3, 4}, log.snapshot())
	requireAllSlotsFree(t, g)
}

// TestChain_FromTask verifies a chain built inside a task is a child of that task
func TestChain_FromTask(t *testing.T) {
	g := newTestGraph(t, &GraphConfig{Workers: 3})

	var log orderLog
	var chainErr atomic.Value
	root, err := g.Add(func(task *Task) {
		b := task.Chain()
		ChainWith(b, 10, func(_ *Task, v *int) { log.add(*v) })
		ChainWith(b, 20, func(_ *Task, v *int) { log.add(*v) })
		if _, err := b.Submit(); err != nil {
			chainErr.Store(err)
		}
		task.SetTeardown(func(*Task) { log.add(99) })
	})
	require.NoError(t, err)
	g.Wait(root)

	assert.Nil(t, chainErr.Load())
	assert.Equal(t, []int{10, 20, 99}, log.snapshot())
	requireAllSlotsFree(t, g)
}

func TestChain_Empty(t *testing.T) {
	g := newTestGraph(t, &GraphConfig{Workers: 2})

	h, err := g.Chain().Submit()
	require.NoError(t, err)
	g.Wait(h)
	assert.False(t, h.Valid())
	requireAllSlotsFree(t, g)
}

func TestChain_MisuseIsViolation(t *testing.T) {
	g := newTestGraph(t, &GraphConfig{Workers: 1})

	b := g.Chain().Add(func(*Task) {})
	h, err := b.Submit()
	require.NoError(t, err)

	requireViolation(t, func() { b.Add(func(*Task) {}) })
	requireViolation(t, func() { _, _ = b.Submit() })

	g.Wait(h)
	requireAllSlotsFree(t, g)
}
