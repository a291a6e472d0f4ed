package service

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"collaborative-whiteboard/internal/domain"
	"collaborative-whiteboard/internal/repository"
)

// 房间码格式：6-8 位字母数字，大小写不敏感（规范化为小写）。
var roomCodePattern = regexp.MustCompile(`^[a-zA-Z0-9]{6,8}$`)

// InactivityHorizon 是房间的不活跃删除阈值：最后活跃时间超过该时长的房间
// 会被清理任务硬删除。
const InactivityHorizon = 24 * time.Hour

// NormalizeCode 校验房间码格式并规范化为小写。
// 第二个返回值为 false 表示格式非法。
func NormalizeCode(code string) (string, bool) {
	if !roomCodePattern.MatchString(code) {
		return "", false
	}
	return strings.ToLower(code), true
}

// RoomService 负责房间生命周期与绘图日志相关的业务逻辑。
type RoomService struct {
	roomRepo repository.RoomRepository
}

// NewRoomService 创建 RoomService 实例。
func NewRoomService(roomRepo repository.RoomRepository) *RoomService {
	if roomRepo == nil {
		panic("RoomRepository cannot be nil for RoomService")
	}
	return &RoomService{roomRepo: roomRepo}
}

// EnsureRoom 确保指定房间码的房间存在（HTTP 入口使用）。
// code 必须已经过 NormalizeCode 规范化。
func (s *RoomService) EnsureRoom(ctx context.Context, code string) (*domain.Room, error) {
	room, err := s.roomRepo.CreateIfAbsent(ctx, code)
	if err != nil {
		logrus.WithError(err).WithField("room", code).Error("Failed to ensure room")
		return nil, ErrInternalServer
	}
	return room, nil
}

// JoinRoom 处理会话加入房间：房间不存在则创建（并发首次创建收敛为单条记录），
// 返回完整的有序日志供新成员回放，并更新最后活跃时间。
func (s *RoomService) JoinRoom(ctx context.Context, code string) ([]domain.DrawingCommand, error) {
	logCtx := logrus.WithField("room", code)

	if _, err := s.roomRepo.CreateIfAbsent(ctx, code); err != nil {
		logCtx.WithError(err).Error("Failed to create or load room on join")
		return nil, ErrInternalServer
	}
	commands, err := s.roomRepo.Log(ctx, code)
	if err != nil {
		logCtx.WithError(err).Error("Failed to load drawing log on join")
		return nil, ErrInternalServer
	}
	if err := s.roomRepo.TouchActivity(ctx, code, time.Now()); err != nil {
		// 活跃时间更新失败不影响加入本身
		logCtx.WithError(err).Warn("Failed to bump room activity on join")
	}
	logCtx.WithField("log_size", len(commands)).Debug("Room joined, log loaded")
	return commands, nil
}

// AppendStroke 将一条完成的笔画作为持久化命令追加到房间日志，
// 时间戳由服务端在追加时分配。返回追加的命令。
func (s *RoomService) AppendStroke(ctx context.Context, code string, stroke domain.StrokeData) (domain.DrawingCommand, error) {
	cmd := domain.DrawingCommand{Type: domain.CommandStroke, Timestamp: time.Now()}
	if err := cmd.SetStroke(stroke); err != nil {
		logrus.WithError(err).WithField("room", code).Error("Failed to encode stroke data")
		return cmd, ErrInternalServer
	}
	if err := s.roomRepo.Append(ctx, code, cmd); err != nil {
		logrus.WithError(err).WithField("room", code).Error("Failed to persist stroke command")
		return cmd, ErrInternalServer
	}
	return cmd, nil
}

// AppendClear 将一条画布重置命令追加到房间日志。
// clear 不删除之前的条目：它指示回放方在继续回放前重置画面。
func (s *RoomService) AppendClear(ctx context.Context, code string) (domain.DrawingCommand, error) {
	cmd := domain.DrawingCommand{Type: domain.CommandClear, Timestamp: time.Now()}
	if err := s.roomRepo.Append(ctx, code, cmd); err != nil {
		logrus.WithError(err).WithField("room", code).Error("Failed to persist clear command")
		return cmd, ErrInternalServer
	}
	return cmd, nil
}

// RoomInfo 返回房间记录及其日志条目数量。
func (s *RoomService) RoomInfo(ctx context.Context, code string) (*domain.Room, int64, error) {
	room, err := s.roomRepo.FindByCode(ctx, code)
	if err != nil {
		if errors.Is(err, repository.ErrRoomNotFound) {
			return nil, 0, ErrRoomNotFound
		}
		logrus.WithError(err).WithField("room", code).Error("Failed to load room info")
		return nil, 0, ErrInternalServer
	}
	count, err := s.roomRepo.CountCommands(ctx, code)
	if err != nil {
		logrus.WithError(err).WithField("room", code).Error("Failed to count room commands")
		return nil, 0, ErrInternalServer
	}
	return room, count, nil
}

// CleanupInactiveRooms 删除最后活跃时间超过 InactivityHorizon 的房间。
// 由后台清理任务周期性调用；返回删除的房间数量。
func (s *RoomService) CleanupInactiveRooms(ctx context.Context) (int64, error) {
	cutoff := time.Now().Add(-InactivityHorizon)
	removed, err := s.roomRepo.DeleteInactiveBefore(ctx, cutoff)
	if err != nil {
		logrus.WithError(err).Error("Failed to delete inactive rooms")
		return 0, err
	}
	if removed > 0 {
		logrus.WithField("removed", removed).Info("Cleanup: removed inactive rooms")
	}
	return removed, nil
}
