package hub

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"collaborative-whiteboard/internal/domain"
	"collaborative-whiteboard/internal/service"
)

// Hub 是房间注册表兼事件中继：维护所有活跃房间的成员集合与光标颜色分配，
// 把一个会话的实时事件转发给同房间的其他成员，并驱动持久化。
//
// 并发模型：rooms map 本身由 Hub 级读写锁保护，每个房间的成员/颜色状态由
// 房间自己的互斥锁串行化——不同房间完全独立，没有跨房间的全局锁。
// 持久化追加（stroke-end / clear）可能阻塞发起会话的分发流程，但转发总是
// 先于追加发生，且其他会话在各自的读 goroutine 中分发，不会被拖住。
type Hub struct {
	mu    sync.RWMutex
	rooms map[string]*room

	roomService *service.RoomService
}

// room 保存单个房间的进程内状态。
type room struct {
	code string

	mu      sync.Mutex
	clients map[*Client]bool
	colors  map[string]string // sessionID → 光标颜色
	closed  bool              // 置位后该实例已从注册表摘除，加入方需重取
}

// NewHub 创建并返回一个新的 Hub 实例。
func NewHub(roomService *service.RoomService) *Hub {
	if roomService == nil {
		panic("RoomService cannot be nil for Hub")
	}
	return &Hub{
		rooms:       make(map[string]*room),
		roomService: roomService,
	}
}

// Dispatch 处理来自某个会话的一条原始消息。
// 每个会话只有一个读 goroutine 调用它，因此 Client.room 无需加锁。
// 畸形消息一律静默丢弃，绝不让单个会话的错误影响进程。
func (h *Hub) Dispatch(c *Client, raw []byte) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		logrus.WithField("session_id", c.sessionID).Debug("Dropping undecodable message")
		return
	}

	switch env.Type {
	case EventJoin:
		h.handleJoin(c, env.Data)
	case EventCursorPosition:
		h.handleCursorPosition(c, env.Data)
	case EventStrokeStart:
		h.handleStrokeStart(c, env.Data)
	case EventStrokeMove:
		h.handleStrokeMove(c, env.Data)
	case EventStrokeEnd:
		h.handleStrokeEnd(c, env.Data)
	case EventClear:
		h.handleClear(c)
	default:
		logrus.WithFields(logrus.Fields{
			"session_id": c.sessionID,
			"event":      env.Type,
		}).Warn("Received unknown event type")
	}
}

// Disconnect 在会话断开时调用：释放颜色、更新成员集合并广播新的成员数。
func (h *Hub) Disconnect(c *Client) {
	h.leaveRoom(c)
	c.closeSend()
	logrus.WithField("session_id", c.sessionID).Info("Session disconnected")
}

// --- 事件处理 ---

func (h *Hub) handleJoin(c *Client, data json.RawMessage) {
	var payload JoinPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return
	}
	code, ok := service.NormalizeCode(payload.RoomCode)
	if !ok {
		// 格式非法的房间码静默忽略
		logrus.WithField("session_id", c.sessionID).Debug("Ignoring join with invalid room code")
		return
	}
	logCtx := logrus.WithFields(logrus.Fields{"session_id": c.sessionID, "room": code})

	// 已在别的房间时先离开，旧房间的成员数要反映本次离开
	if c.room != nil {
		if c.room.code == code {
			logCtx.Debug("Session re-joined its current room")
			return
		}
		h.leaveRoom(c)
	}

	rm := h.joinRoom(c, code)
	logCtx.Info("Session joined room")

	// 加载完整日志（必要时创建房间记录，并发首次创建收敛为单条记录），只发给新加入者
	commands, err := h.roomService.JoinRoom(context.Background(), code)
	if err != nil {
		// 存储层故障只影响当前会话：通知它，然后让房间继续工作
		logCtx.WithError(err).Error("Failed to load drawing log for joining session")
		c.sendEvent(EventError, ErrorMessage{Message: "Failed to load drawing history"})
	} else {
		c.sendEvent(EventInitLog, InitLog{Commands: commandPayloads(commands)})
	}

	rm.mu.Lock()
	color := rm.colors[c.sessionID]
	count := len(rm.clients)
	rm.mu.Unlock()

	c.sendEvent(EventCursorColor, CursorColor{SessionID: c.sessionID, Color: color})
	// 先把成员数发给新加入者本人，再向整个房间广播最新值
	c.sendEvent(EventMembershipCount, MembershipCount{Count: count})
	h.broadcastCount(rm)
}

func (h *Hub) handleCursorPosition(c *Client, data json.RawMessage) {
	if c.room == nil {
		return
	}
	var payload CursorPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return
	}
	// 坐标原样转发，越界裁剪由客户端负责；光标位置从不持久化
	rm := c.room
	rm.mu.Lock()
	color := rm.colors[c.sessionID]
	rm.mu.Unlock()
	h.relay(rm, c, EventCursorPosition, CursorBroadcast{
		SessionID: c.sessionID, Color: color, X: payload.X, Y: payload.Y,
	})
}

func (h *Hub) handleStrokeStart(c *Client, data json.RawMessage) {
	if c.room == nil {
		return
	}
	var payload StrokeStartPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return
	}
	// start 事件只为远端提供插值所需的颜色和笔宽，不持久化
	h.relay(c.room, c, EventStrokeStart, StrokeStartBroadcast{
		SessionID: c.sessionID, Color: payload.Color, Width: payload.Width,
	})
}

func (h *Hub) handleStrokeMove(c *Client, data json.RawMessage) {
	if c.room == nil {
		return
	}
	var payload StrokeMovePayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return
	}
	points, ok := payload.Normalize()
	if !ok {
		// 单点和批量形态都不存在：畸形载荷，静默丢弃
		logrus.WithField("session_id", c.sessionID).Debug("Dropping malformed stroke-move payload")
		return
	}
	h.relay(c.room, c, EventStrokeMove, StrokeMoveBroadcast{
		SessionID: c.sessionID, Points: points,
	})
}

func (h *Hub) handleStrokeEnd(c *Client, data json.RawMessage) {
	if c.room == nil {
		return
	}
	var payload StrokeEndPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return
	}
	rm := c.room

	// 先转发再落盘：转发不等待存储
	h.relay(rm, c, EventStrokeEnd, StrokeEndBroadcast{
		SessionID: c.sessionID,
		Points:    payload.Points,
		Color:     payload.Color,
		Width:     payload.Width,
		Timestamp: time.Now(),
	})

	stroke := domain.StrokeData{Points: payload.Points, Color: payload.Color, Width: payload.Width}
	if _, err := h.roomService.AppendStroke(context.Background(), rm.code, stroke); err != nil {
		// 转发已经发生且不回滚；持久化失败只记日志，不通知任何客户端
		logrus.WithFields(logrus.Fields{"session_id": c.sessionID, "room": rm.code}).
			WithError(err).Error("Failed to persist finished stroke")
	}
}

func (h *Hub) handleClear(c *Client) {
	if c.room == nil {
		return
	}
	rm := c.room
	h.relay(rm, c, EventClear, ClearBroadcast{SessionID: c.sessionID})
	if _, err := h.roomService.AppendClear(context.Background(), rm.code); err != nil {
		logrus.WithFields(logrus.Fields{"session_id": c.sessionID, "room": rm.code}).
			WithError(err).Error("Failed to persist clear command")
	}
}

// --- 房间注册表 ---

// joinRoom 把会话绑定到房间（不存在则在注册表中懒创建），并分配光标颜色。
func (h *Hub) joinRoom(c *Client, code string) *room {
	for {
		h.mu.Lock()
		rm, ok := h.rooms[code]
		if !ok {
			rm = &room{
				code:    code,
				clients: make(map[*Client]bool),
				colors:  make(map[string]string),
			}
			h.rooms[code] = rm
		}
		h.mu.Unlock()

		rm.mu.Lock()
		if rm.closed {
			// 拿到的是刚被摘除的实例，重取
			rm.mu.Unlock()
			continue
		}
		rm.clients[c] = true
		if _, assigned := rm.colors[c.sessionID]; !assigned {
			rm.colors[c.sessionID] = pickColor(rm.colors)
		}
		rm.mu.Unlock()

		c.room = rm
		return rm
	}
}

// leaveRoom 解除会话与当前房间的绑定：释放颜色、必要时摘除空房间，
// 并向剩余成员广播新的成员数。
func (h *Hub) leaveRoom(c *Client) {
	rm := c.room
	if rm == nil {
		return
	}
	c.room = nil

	h.mu.Lock()
	rm.mu.Lock()
	delete(rm.clients, c)
	delete(rm.colors, c.sessionID)
	empty := len(rm.clients) == 0
	if empty && h.rooms[rm.code] == rm {
		rm.closed = true
		delete(h.rooms, rm.code)
	}
	rm.mu.Unlock()
	h.mu.Unlock()

	if !empty {
		h.broadcastCount(rm)
	}
	logrus.WithFields(logrus.Fields{"session_id": c.sessionID, "room": rm.code}).Debug("Session left room")
}

// --- 转发 ---

// relay 把事件发给房间内除 sender 外的所有成员。
func (h *Hub) relay(rm *room, sender *Client, eventType string, payload any) {
	msg, err := marshalEvent(eventType, payload)
	if err != nil {
		logrus.WithError(err).WithField("event", eventType).Error("Failed to marshal relay event")
		return
	}
	for _, client := range rm.snapshot(sender) {
		client.queue(msg)
	}
}

// broadcastCount 把当前成员数发给房间内所有成员（包括触发变化的会话）。
func (h *Hub) broadcastCount(rm *room) {
	rm.mu.Lock()
	count := len(rm.clients)
	rm.mu.Unlock()

	msg, err := marshalEvent(EventMembershipCount, MembershipCount{Count: count})
	if err != nil {
		logrus.WithError(err).Error("Failed to marshal membership count")
		return
	}
	for _, client := range rm.snapshot(nil) {
		client.queue(msg)
	}
}

// snapshot 在锁内复制接收者列表，避免发送期间长时间持有房间锁。
func (rm *room) snapshot(except *Client) []*Client {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	clients := make([]*Client, 0, len(rm.clients))
	for client := range rm.clients {
		if client != except {
			clients = append(clients, client)
		}
	}
	return clients
}
