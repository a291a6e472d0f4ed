package canvas

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testClock 是可手动推进的时钟。
type testClock struct {
	now time.Time
}

func (c *testClock) advance(d time.Duration) { c.now = c.now.Add(d) }

func newClockedEngine(t *testing.T) (*Engine, *testClock) {
	t.Helper()
	engine, _, _ := newTestEngine(t)
	clock := &testClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	engine.now = func() time.Time { return clock.now }
	return engine, clock
}

func TestRemoteCursors_LatestPositionWins(t *testing.T) {
	engine, _ := newClockedEngine(t)

	engine.UpdateRemoteCursor("peer", "#f87171", 10, 10)
	engine.UpdateRemoteCursor("peer", "#f87171", 20, 30)

	cursors := engine.RemoteCursors()
	require.Len(t, cursors, 1)
	assert.Equal(t, float64(20), cursors[0].X)
	assert.Equal(t, float64(30), cursors[0].Y)
	assert.Equal(t, "#f87171", cursors[0].Color)
}

func TestRemoteCursors_StaleCursorIsHiddenBeforePurge(t *testing.T) {
	engine, clock := newClockedEngine(t)

	engine.UpdateRemoteCursor("slow", "#60a5fa", 1, 1)
	clock.advance(cursorTTL + time.Millisecond)
	engine.UpdateRemoteCursor("fast", "#34d399", 2, 2)

	// 清扫还没跑，但过期光标已经不再对外可见
	cursors := engine.RemoteCursors()
	require.Len(t, cursors, 1)
	assert.Equal(t, "fast", cursors[0].SessionID)
}

func TestPurgeStaleCursors_RemovesOnlyExpired(t *testing.T) {
	engine, clock := newClockedEngine(t)

	engine.UpdateRemoteCursor("slow", "#60a5fa", 1, 1)
	clock.advance(2 * time.Second)
	engine.UpdateRemoteCursor("fast", "#34d399", 2, 2)
	clock.advance(cursorTTL - 2*time.Second + time.Millisecond)

	removed := engine.purgeStaleCursors()
	assert.Equal(t, 1, removed)

	cursors := engine.RemoteCursors()
	require.Len(t, cursors, 1)
	assert.Equal(t, "fast", cursors[0].SessionID)
}

func TestPurgeStaleCursors_FreshUpdateResetsTTL(t *testing.T) {
	engine, clock := newClockedEngine(t)

	engine.UpdateRemoteCursor("peer", "#f87171", 1, 1)
	clock.advance(2 * time.Second)
	engine.UpdateRemoteCursor("peer", "#f87171", 3, 3)
	clock.advance(2 * time.Second)

	// 距最近一次更新只有 2s，光标仍然存活
	assert.Equal(t, 0, engine.purgeStaleCursors())
	assert.Len(t, engine.RemoteCursors(), 1)
}

func TestDropAuthor_RemovesCursorImmediately(t *testing.T) {
	engine, _ := newClockedEngine(t)

	engine.UpdateRemoteCursor("peer", "#f87171", 1, 1)
	engine.DropAuthor("peer")

	assert.Empty(t, engine.RemoteCursors())
}
