package hub

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// 包级别的 WebSocket 常量，供 hub 和 client 使用
const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	// stroke-end 携带完整的点序列，因此上限远大于普通事件。
	maxMessageSize = 512 * 1024
)

// Client 代表一个连接到 Hub 的 WebSocket 会话。
// 一个会话同一时刻至多属于一个房间；room 字段只在会话自己的
// 读 goroutine（Dispatch / Disconnect 路径）中读写。
type Client struct {
	hub       *Hub
	conn      *websocket.Conn
	sessionID string // 瞬态会话标识，连接建立时分配
	room      *room

	send      chan []byte
	closeOnce sync.Once
}

// NewClient 创建一个新的 Client 实例并分配会话 ID。
func NewClient(hub *Hub, conn *websocket.Conn) *Client {
	return &Client{
		hub:       hub,
		conn:      conn,
		sessionID: uuid.NewString(),
		send:      make(chan []byte, 256),
	}
}

// SessionID 返回该会话的瞬态标识。
func (c *Client) SessionID() string { return c.sessionID }

// Run 启动客户端的读写 goroutine。
func (c *Client) Run() {
	go c.WritePump()
	go c.ReadPump()
}

// queue 非阻塞地把消息放入发送队列；队列满视为慢消费者，丢弃该消息。
func (c *Client) queue(msg []byte) {
	select {
	case c.send <- msg:
	default:
		logrus.WithField("session_id", c.sessionID).Warn("Client send channel full, dropping message")
	}
}

// sendEvent 编码并入队一个事件。
func (c *Client) sendEvent(eventType string, payload any) {
	msg, err := marshalEvent(eventType, payload)
	if err != nil {
		logrus.WithError(err).WithField("event", eventType).Error("Failed to marshal event")
		return
	}
	c.queue(msg)
}

// closeSend 关闭发送队列，使 WritePump 退出。幂等。
func (c *Client) closeSend() {
	c.closeOnce.Do(func() { close(c.send) })
}

// ReadPump 把消息从 WebSocket 连接泵送到 Hub 的分发函数。
// 它在自己的 goroutine 中运行；退出时触发会话注销。
func (c *Client) ReadPump() {
	defer func() {
		c.hub.Disconnect(c)
		c.conn.Close()
		logrus.WithField("session_id", c.sessionID).Debug("readPump exited")
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		messageType, message, err := c.conn.ReadMessage()
		if err != nil {
			logCtx := logrus.WithField("session_id", c.sessionID)
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logCtx.WithError(err).Warn("WebSocket read error (unexpected close)")
			} else {
				logCtx.Debug("WebSocket connection closed")
			}
			break
		}
		if messageType != websocket.TextMessage {
			continue
		}
		c.hub.Dispatch(c, message)
	}
}

// WritePump 把消息从发送队列泵送到 WebSocket 连接，并周期性发送 Ping。
// 它在自己的 goroutine 中运行。
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
		logrus.WithField("session_id", c.sessionID).Debug("writePump exited")
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// 发送队列已被 Hub 关闭（注销时）
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				logrus.WithField("session_id", c.sessionID).WithError(err).Warn("Failed to write message to websocket")
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
