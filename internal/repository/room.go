package repository

import (
	"context"
	"time"

	"collaborative-whiteboard/internal/domain"
)

// 日志保留上限：超过 MaxLogEntries 条时截断到最近的 KeepLogEntries 条。
// 这是有损压缩——超出上限的历史按设计不可恢复，用存储上界换取回放成本上界。
const (
	MaxLogEntries  = 5000
	KeepLogEntries = 4000
)

// RoomRepository 定义了房间及其绘图日志的存储和检索操作。
type RoomRepository interface {
	// CreateIfAbsent 返回指定房间码的房间，不存在则创建。
	// 必须在并发调用下安全：多个创建者竞争同一房间码时，
	// 最终只能存在一条逻辑记录，落败方收敛为读取已有记录。
	CreateIfAbsent(ctx context.Context, code string) (*domain.Room, error)

	// FindByCode 根据房间码查找房间。
	// 房间不存在时返回 ErrRoomNotFound。
	FindByCode(ctx context.Context, code string) (*domain.Room, error)

	// Append 将一条命令追加到房间日志尾部并更新最后活跃时间。
	// 日志超过 MaxLogEntries 时截断到最近的 KeepLogEntries 条（淘汰最旧的条目）。
	Append(ctx context.Context, code string, cmd domain.DrawingCommand) error

	// Log 返回房间的完整有序日志；房间没有日志时返回空 slice。
	Log(ctx context.Context, code string) ([]domain.DrawingCommand, error)

	// CountCommands 返回房间日志当前的条目数量。
	CountCommands(ctx context.Context, code string) (int64, error)

	// TouchActivity 更新房间的最后活跃时间。
	TouchActivity(ctx context.Context, code string, at time.Time) error

	// DeleteInactiveBefore 硬删除最后活跃时间早于 cutoff 的房间及其日志，
	// 返回删除的房间数量。
	DeleteInactiveBefore(ctx context.Context, cutoff time.Time) (int64, error)
}
