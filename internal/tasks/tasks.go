package tasks

import (
	"encoding/json"
	"time"
)

// 定义任务类型常量
const (
	TypeRoomCleanup = "room:cleanup" // 不活跃房间清理任务类型
)

// RoomCleanupPayload 定义了房间清理任务的数据结构。
// 清理阈值由 Service 层决定，payload 只携带触发时间供日志追溯。
type RoomCleanupPayload struct {
	RequestedAt time.Time `json:"requested_at"`
}

// NewRoomCleanupTask 创建一个新的房间清理任务的 payload。
func NewRoomCleanupTask() ([]byte, error) {
	payload := RoomCleanupPayload{RequestedAt: time.Now()}
	return json.Marshal(payload)
}
