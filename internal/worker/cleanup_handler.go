package worker

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"

	"collaborative-whiteboard/internal/service"
	"collaborative-whiteboard/internal/tasks"
)

// RoomCleanupHandler 处理不活跃房间的清理任务：
// 删除最后活跃时间超过阈值的房间及其全部绘图日志。
type RoomCleanupHandler struct {
	roomService *service.RoomService
}

// NewRoomCleanupHandler 创建 Handler 实例。
func NewRoomCleanupHandler(roomService *service.RoomService) *RoomCleanupHandler {
	if roomService == nil {
		panic("RoomService cannot be nil for RoomCleanupHandler")
	}
	return &RoomCleanupHandler{roomService: roomService}
}

// ProcessTask 实现 asynq.Handler 接口。
func (h *RoomCleanupHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	logCtx := logrus.WithField("task_type", t.Type())

	var payload tasks.RoomCleanupPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		logCtx.WithError(err).Error("Failed to unmarshal cleanup task payload")
		return fmt.Errorf("failed to unmarshal payload: %v: %w", err, asynq.SkipRetry)
	}

	removed, err := h.roomService.CleanupInactiveRooms(ctx)
	if err != nil {
		logCtx.WithError(err).Error("Room cleanup task failed")
		return fmt.Errorf("room cleanup failed: %w", err)
	}

	logCtx.WithFields(logrus.Fields{
		"removed":      removed,
		"requested_at": payload.RequestedAt,
	}).Info("Room cleanup task processed successfully")
	return nil
}
