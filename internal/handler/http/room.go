package http

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"collaborative-whiteboard/internal/service"
)

// RoomHandler 封装了与房间相关的 HTTP 处理逻辑。
// WebSocket 之外的房间入口：加入前的快速校验/创建，以及房间信息查询。
type RoomHandler struct {
	roomService *service.RoomService
}

// NewRoomHandler 创建 RoomHandler 实例。
func NewRoomHandler(roomService *service.RoomService) *RoomHandler {
	if roomService == nil {
		panic("RoomService cannot be nil for RoomHandler")
	}
	return &RoomHandler{roomService: roomService}
}

// JoinRoomRequest 定义加入房间请求的结构体。
type JoinRoomRequest struct {
	RoomID string `json:"roomId" binding:"required"`
}

// JoinRoomResponse 定义加入房间成功的响应结构体。
type JoinRoomResponse struct {
	RoomID string `json:"roomId"`
}

// JoinRoom 处理加入（按需创建）房间的请求。
// 房间码格式非法返回 400；创建是幂等的，并发首次加入收敛到同一条记录。
func (h *RoomHandler) JoinRoom(c *gin.Context) {
	var req JoinRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logrus.WithError(err).Warn("Handler.JoinRoom: Invalid input format")
		ErrorResponse(c, http.StatusBadRequest, "Invalid input: roomId is required")
		return
	}

	code, ok := service.NormalizeCode(req.RoomID)
	if !ok {
		logrus.WithField("room", req.RoomID).Warn("Handler.JoinRoom: Invalid room code format")
		ErrorResponse(c, http.StatusBadRequest, service.ErrInvalidRoomCode.Error())
		return
	}

	room, err := h.roomService.EnsureRoom(c.Request.Context(), code)
	if err != nil {
		HandleServiceError(c, err)
		return
	}

	logrus.WithFields(logrus.Fields{"room": room.Code, "room_id": room.ID}).Info("Handler.JoinRoom: Room ready")
	SuccessResponse(c, http.StatusOK, JoinRoomResponse{RoomID: room.Code})
}

// RoomInfoResponse 定义房间信息查询的响应结构体。
type RoomInfoResponse struct {
	RoomID       string    `json:"roomId"`
	CreatedAt    time.Time `json:"createdAt"`
	LastActivity time.Time `json:"lastActivity"`
	LogSize      int64     `json:"logSize"`
}

// RoomInfo 返回房间的元数据和日志条目数。不存在的房间返回 404。
func (h *RoomHandler) RoomInfo(c *gin.Context) {
	code, ok := service.NormalizeCode(c.Param("roomId"))
	if !ok {
		ErrorResponse(c, http.StatusBadRequest, service.ErrInvalidRoomCode.Error())
		return
	}

	room, count, err := h.roomService.RoomInfo(c.Request.Context(), code)
	if err != nil {
		HandleServiceError(c, err)
		return
	}

	SuccessResponse(c, http.StatusOK, RoomInfoResponse{
		RoomID:       room.Code,
		CreatedAt:    room.CreatedAt,
		LastActivity: room.LastActivity,
		LogSize:      count,
	})
}
