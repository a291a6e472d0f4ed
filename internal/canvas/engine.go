// Package canvas 实现客户端的同步引擎：把可回放的持久化日志和远端会话的
// 实时事件流合并成正确的画面，同时支持本地用户零延迟作画。
// 引擎不关心像素如何落到栅格上——绘制能力通过 Renderer 接口注入。
package canvas

import (
	"math"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"collaborative-whiteboard/internal/domain"
)

// Renderer 是引擎对绘制表面的全部要求。
type Renderer interface {
	// Clear 清空整个表面。
	Clear()
	// DrawSegment 绘制一条线段。
	DrawSegment(from, to domain.Point, color string, width float64)
	// Snapshot 捕获当前的栅格内容（尺寸变化前调用）。
	Snapshot() Snapshot
	// Restore 把捕获的栅格内容画回表面。
	Restore(snap Snapshot)
}

// Snapshot 是 Renderer 自定义的不透明栅格快照。
type Snapshot any

// Sender 是引擎的出站通道：本地作画产生的事件经它发往服务端。
type Sender interface {
	SendStrokeStart(color string, width float64)
	SendStrokeMove(points []domain.Point)
	SendStrokeEnd(stroke domain.StrokeData)
	SendCursorPosition(x, y float64)
}

const (
	// 远端 move 事件因网络批量化产生的点间隙超过该像素阈值时做线性插值
	gapThreshold = 12.0
	// 单次插值最多补的线段数
	maxInterpolatedSegments = 8
)

// inProgressStroke 是一条尚未完成的笔画（本地的或某个远端作者的）。
// 远端的版本从不持久化，作者断开或结束时即被丢弃。
type inProgressStroke struct {
	points []domain.Point
	color  string
	width  float64
}

// Engine 维护单个连接视角下的画面状态。
//
// 两条确定性的渲染路径：新日志条目中含 clear 时全量重绘（增量追加无法
// 安全地抹掉已画内容），否则只把新条目画在现有栅格之上。
type Engine struct {
	renderer Renderer
	sender   Sender

	mu      sync.Mutex
	log     []domain.DrawingCommand // 已知的持久化日志
	applied int                     // 已渲染到的日志下标（单调递增）

	local  *inProgressStroke
	remote map[string]*inProgressStroke // 远端作者 → 未完成笔画

	// 出站合并缓冲：每个显示帧最多发出一条 stroke-move 和一条光标位置，
	// 把出站消息速率限制在显示刷新率以内，与输入采样率无关。
	pendingPoints []domain.Point
	pendingCursor *domain.Point

	cursors map[string]*Cursor // 远端作者 → 最近光标位置
	now     func() time.Time
}

// NewEngine 创建同步引擎。
func NewEngine(renderer Renderer, sender Sender) *Engine {
	if renderer == nil {
		panic("Renderer cannot be nil for Engine")
	}
	if sender == nil {
		panic("Sender cannot be nil for Engine")
	}
	return &Engine{
		renderer: renderer,
		sender:   sender,
		remote:   make(map[string]*inProgressStroke),
		cursors:  make(map[string]*Cursor),
		now:      time.Now,
	}
}

// --- 日志对账 ---

// InitLog 用服务端下发的完整日志替换本地状态并全量重绘（初次挂载/重连）。
func (e *Engine) InitLog(commands []domain.DrawingCommand) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.log = append([]domain.DrawingCommand(nil), commands...)
	e.applied = len(e.log)
	e.fullRedrawLocked()
}

// AppendCommand 追加一条新的持久化命令并渲染。
// 自上次渲染以来的新条目包含 clear 时走全量重绘，否则增量画上新条目。
func (e *Engine) AppendCommand(commands ...domain.DrawingCommand) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.log = append(e.log, commands...)

	fresh := e.log[e.applied:]
	hasClear := false
	for i := range fresh {
		if fresh[i].IsClear() {
			hasClear = true
			break
		}
	}
	if hasClear {
		e.applied = len(e.log)
		e.fullRedrawLocked()
		return
	}
	for i := range fresh {
		e.renderCommandLocked(&fresh[i])
	}
	e.applied = len(e.log)
}

// fullRedrawLocked 清空表面后按序回放全部日志，
// 再把本地和各远端的未完成笔画补画在最上层，避免正在画的内容被重绘吃掉。
func (e *Engine) fullRedrawLocked() {
	e.renderer.Clear()
	for i := range e.log {
		e.renderCommandLocked(&e.log[i])
	}
	if e.local != nil {
		e.renderPolylineLocked(e.local.points, e.local.color, e.local.width)
	}
	for _, stroke := range e.remote {
		e.renderPolylineLocked(stroke.points, stroke.color, stroke.width)
	}
}

func (e *Engine) renderCommandLocked(cmd *domain.DrawingCommand) {
	if cmd.IsClear() {
		// 回放中途的 clear 只影响它之前的内容
		e.renderer.Clear()
		return
	}
	stroke, err := cmd.ParseStroke()
	if err != nil {
		logrus.WithError(err).Warn("Skipping unreadable stroke command during replay")
		return
	}
	e.renderPolylineLocked(stroke.Points, stroke.Color, stroke.Width)
}

func (e *Engine) renderPolylineLocked(points []domain.Point, color string, width float64) {
	for i := 1; i < len(points); i++ {
		e.renderer.DrawSegment(points[i-1], points[i], color, width)
	}
}

// --- 本地作画 ---

// BeginStroke 在指针按下时开始一条本地笔画并通知远端。
func (e *Engine) BeginStroke(p domain.Point, color string, width float64) {
	e.mu.Lock()
	e.local = &inProgressStroke{points: []domain.Point{p}, color: color, width: width}
	e.pendingPoints = append(e.pendingPoints, p)
	e.mu.Unlock()
	e.sender.SendStrokeStart(color, width)
}

// AddPoint 在指针移动时追加一个点：立即渲染新线段以获得零延迟反馈，
// 并把点放入出站缓冲等待按帧合并发送。
func (e *Engine) AddPoint(p domain.Point) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.local == nil {
		return
	}
	last := e.local.points[len(e.local.points)-1]
	e.renderer.DrawSegment(last, p, e.local.color, e.local.width)
	e.local.points = append(e.local.points, p)
	e.pendingPoints = append(e.pendingPoints, p)
}

// EndStroke 在指针抬起时结束本地笔画：把完整点序列作为 stroke-end 发出，
// 并乐观地追加到本地日志（服务端随后会持久化同一条命令）。
func (e *Engine) EndStroke() {
	e.mu.Lock()
	if e.local == nil {
		e.mu.Unlock()
		return
	}
	stroke := domain.StrokeData{
		Points: e.local.points,
		Color:  e.local.color,
		Width:  e.local.width,
	}
	e.local = nil
	e.pendingPoints = nil // 完整序列随 stroke-end 发出，残余批次不再需要

	cmd := domain.DrawingCommand{Type: domain.CommandStroke, Timestamp: e.now()}
	if err := cmd.SetStroke(stroke); err == nil {
		// 本地已经边画边渲染过，直接推进 applied，避免重复绘制
		e.log = append(e.log, cmd)
		e.applied = len(e.log)
	}
	e.mu.Unlock()

	e.sender.SendStrokeEnd(stroke)
}

// MoveCursor 记录本地光标位置，按帧合并后发送（latest-wins）。
func (e *Engine) MoveCursor(x, y float64) {
	e.mu.Lock()
	e.pendingCursor = &domain.Point{X: x, Y: y}
	e.mu.Unlock()
}

// FlushFrame 在每个显示帧调用一次，把缓冲的出站遥测合并成至多两条消息。
func (e *Engine) FlushFrame() {
	e.mu.Lock()
	points := e.pendingPoints
	e.pendingPoints = nil
	cursor := e.pendingCursor
	e.pendingCursor = nil
	e.mu.Unlock()

	if len(points) > 0 {
		e.sender.SendStrokeMove(points)
	}
	if cursor != nil {
		e.sender.SendCursorPosition(cursor.X, cursor.Y)
	}
}

// --- 远端作画 ---

// RemoteStrokeStart 为远端作者分配一条未完成笔画。
func (e *Engine) RemoteStrokeStart(sessionID, color string, width float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.remote[sessionID] = &inProgressStroke{color: color, width: width}
}

// RemoteStrokeMove 追加远端作者的点批次并渲染新线段。
// 连续点之间的间隙超过阈值时做线性插值，弥补网络批量化造成的锯齿。
func (e *Engine) RemoteStrokeMove(sessionID string, points []domain.Point) {
	e.mu.Lock()
	defer e.mu.Unlock()
	stroke, ok := e.remote[sessionID]
	if !ok {
		// 没见过 start 的 move：作者信息（颜色/笔宽）缺失，忽略
		return
	}
	for _, p := range points {
		if len(stroke.points) > 0 {
			e.renderGapLocked(stroke.points[len(stroke.points)-1], p, stroke.color, stroke.width)
		}
		stroke.points = append(stroke.points, p)
	}
}

// RemoteStrokeEnd 丢弃远端作者的未完成状态。
// 完成的笔画以日志追加的形式到达（AppendCommand），不从瞬态状态重绘。
func (e *Engine) RemoteStrokeEnd(sessionID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.remote, sessionID)
}

// DropAuthor 清掉某个远端作者的全部瞬态状态（断开通知到达时调用）。
func (e *Engine) DropAuthor(sessionID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.remote, sessionID)
	delete(e.cursors, sessionID)
}

// renderGapLocked 渲染 from→to，间隙过大时线性插入至多
// maxInterpolatedSegments 段中间线段。
func (e *Engine) renderGapLocked(from, to domain.Point, color string, width float64) {
	dist := math.Hypot(to.X-from.X, to.Y-from.Y)
	segments := 1
	if dist > gapThreshold {
		segments = int(dist / gapThreshold)
		if segments > maxInterpolatedSegments {
			segments = maxInterpolatedSegments
		}
		segments++ // 中间段之外还有收尾段
	}
	prev := from
	for i := 1; i <= segments; i++ {
		t := float64(i) / float64(segments)
		next := domain.Point{
			X: from.X + (to.X-from.X)*t,
			Y: from.Y + (to.Y-from.Y)*t,
		}
		e.renderer.DrawSegment(prev, next, color, width)
		prev = next
	}
}

// --- 尺寸变化 ---

// HandleResize 在表面尺寸变化前后保留已有的栅格内容：
// 先快照，执行 resize 回调，再恢复像素，之后继续走 append-only 渲染路径。
func (e *Engine) HandleResize(resize func()) {
	e.mu.Lock()
	defer e.mu.Unlock()
	snap := e.renderer.Snapshot()
	resize()
	e.renderer.Restore(snap)
}
