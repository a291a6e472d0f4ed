// Package websocket 负责把 HTTP 请求升级为 WebSocket 连接并注册到 Hub。
// 房间选择不走 URL 参数：连接建立后客户端通过 join 事件声明房间。
package websocket

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"collaborative-whiteboard/internal/hub"
)

// WebSocketHandler 负责处理 WebSocket 升级请求和客户端注册。
type WebSocketHandler struct {
	upgrader websocket.Upgrader
	hub      *hub.Hub
}

// NewWebSocketHandler 创建 WebSocketHandler 实例。
func NewWebSocketHandler(h *hub.Hub) *WebSocketHandler {
	if h == nil {
		panic("Hub cannot be nil for WebSocketHandler")
	}

	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		// 允许所有来源连接 (生产环境应配置具体的允许来源)
		CheckOrigin: func(r *http.Request) bool {
			return true
		},
	}

	return &WebSocketHandler{upgrader: upgrader, hub: h}
}

// HandleConnection 处理 WebSocket 连接请求。
// 升级成功后立即启动会话的读写 goroutine；加入哪个房间由后续的
// join 事件决定，在升级阶段不做任何房间校验。
func (h *WebSocketHandler) HandleConnection(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade 失败时已自动写回 HTTP 错误响应，这里只记录日志
		logrus.WithError(err).Error("WS Handler: Failed to upgrade connection")
		return
	}

	client := hub.NewClient(h.hub, conn)
	logrus.WithFields(logrus.Fields{
		"session_id":  client.SessionID(),
		"remote_addr": conn.RemoteAddr().String(),
	}).Info("WS Handler: Connection upgraded, session started")

	client.Run()
}
