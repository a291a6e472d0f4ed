package canvas

import (
	"context"
	"time"
)

const (
	// 光标超过该时长没有更新即视为过期
	cursorTTL = 3 * time.Second
	// 过期光标的清扫周期
	cursorSweepInterval = 2 * time.Second
)

// Cursor 是某个远端会话最近一次上报的光标位置。
type Cursor struct {
	SessionID string
	Color     string
	X, Y      float64

	lastSeen time.Time
}

// UpdateRemoteCursor 记录远端会话的最新光标位置并刷新其存活时间。
func (e *Engine) UpdateRemoteCursor(sessionID, color string, x, y float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cursors[sessionID] = &Cursor{
		SessionID: sessionID,
		Color:     color,
		X:         x,
		Y:         y,
		lastSeen:  e.now(),
	}
}

// RemoteCursors 返回当前未过期的远端光标，供覆盖层渲染。
func (e *Engine) RemoteCursors() []Cursor {
	e.mu.Lock()
	defer e.mu.Unlock()
	cutoff := e.now().Add(-cursorTTL)
	cursors := make([]Cursor, 0, len(e.cursors))
	for _, cur := range e.cursors {
		if cur.lastSeen.Before(cutoff) {
			continue
		}
		cursors = append(cursors, *cur)
	}
	return cursors
}

// purgeStaleCursors 移除超过 TTL 未更新的光标，返回移除数量。
func (e *Engine) purgeStaleCursors() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	cutoff := e.now().Add(-cursorTTL)
	removed := 0
	for id, cur := range e.cursors {
		if cur.lastSeen.Before(cutoff) {
			delete(e.cursors, id)
			removed++
		}
	}
	return removed
}

// RunCursorJanitor 周期性清扫过期光标，直到 ctx 取消。
// 靠 TTL 兜底：正常断开会通过 DropAuthor 即时移除光标，
// 清扫只负责静默消失的会话。
func (e *Engine) RunCursorJanitor(ctx context.Context) {
	ticker := time.NewTicker(cursorSweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.purgeStaleCursors()
		}
	}
}
