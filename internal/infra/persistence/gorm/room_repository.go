package gormpersistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"
	"gorm.io/gorm"

	"collaborative-whiteboard/internal/domain"
	"collaborative-whiteboard/internal/repository"
)

// GormRoomRepository 是 RoomRepository 接口的 GORM (MySQL) 实现。
type GormRoomRepository struct {
	db *gorm.DB
}

// NewGormRoomRepository 创建 GormRoomRepository 实例
func NewGormRoomRepository(db *gorm.DB) *GormRoomRepository {
	if db == nil {
		panic("database connection cannot be nil for GormRoomRepository")
	}
	return &GormRoomRepository{db: db}
}

// CreateIfAbsent 实现房间的幂等创建。
// 两个会话并发加入一个全新房间码时，落败方会命中唯一约束 (MySQL 1062)，
// 此时改为读取胜出方刚创建的记录——冲突对客户端不可见。
func (r *GormRoomRepository) CreateIfAbsent(ctx context.Context, code string) (*domain.Room, error) {
	var room domain.Room
	err := r.db.WithContext(ctx).Where("code = ?", code).First(&room).Error
	if err == nil {
		return &room, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("gorm: find room by code '%s': %w", code, err)
	}

	room = domain.Room{Code: code, LastActivity: time.Now()}
	if err := r.db.WithContext(ctx).Create(&room).Error; err != nil {
		var mysqlErr *mysql.MySQLError
		if errors.As(err, &mysqlErr) && mysqlErr.Number == 1062 {
			// 并发首次创建：另一个会话刚建好同码房间，收敛为读取已有记录
			if err := r.db.WithContext(ctx).Where("code = ?", code).First(&room).Error; err != nil {
				return nil, fmt.Errorf("gorm: re-read room '%s' after duplicate create: %w", code, err)
			}
			return &room, nil
		}
		return nil, fmt.Errorf("gorm: create room '%s': %w", code, err)
	}
	return &room, nil
}

// FindByCode 实现根据房间码查找房间
func (r *GormRoomRepository) FindByCode(ctx context.Context, code string) (*domain.Room, error) {
	var room domain.Room
	err := r.db.WithContext(ctx).Where("code = ?", code).First(&room).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, repository.ErrRoomNotFound
		}
		return nil, fmt.Errorf("gorm: find room by code '%s': %w", code, err)
	}
	return &room, nil
}

// Append 实现命令追加、活跃时间更新与保留上限截断，整体在一个事务内完成，
// 保证同一房间的并发追加不会交错损坏日志。
func (r *GormRoomRepository) Append(ctx context.Context, code string, cmd domain.DrawingCommand) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var room domain.Room
		if err := tx.Where("code = ?", code).First(&room).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return repository.ErrRoomNotFound
			}
			return fmt.Errorf("gorm: find room by code '%s': %w", code, err)
		}

		cmd.RoomID = room.ID
		if err := tx.Create(&cmd).Error; err != nil {
			return fmt.Errorf("gorm: append command to room '%s': %w", code, err)
		}
		if err := tx.Model(&domain.Room{}).Where("id = ?", room.ID).
			Update("last_activity", cmd.Timestamp).Error; err != nil {
			return fmt.Errorf("gorm: touch room '%s': %w", code, err)
		}

		var count int64
		if err := tx.Model(&domain.DrawingCommand{}).Where("room_id = ?", room.ID).Count(&count).Error; err != nil {
			return fmt.Errorf("gorm: count commands of room '%s': %w", code, err)
		}
		if count > repository.MaxLogEntries {
			// 找到第 KeepLogEntries 新的那条记录，删除比它更旧的所有命令
			var boundary domain.DrawingCommand
			err := tx.Where("room_id = ?", room.ID).Order("id DESC").
				Offset(repository.KeepLogEntries - 1).First(&boundary).Error
			if err != nil {
				return fmt.Errorf("gorm: find truncation boundary of room '%s': %w", code, err)
			}
			if err := tx.Where("room_id = ? AND id < ?", room.ID, boundary.ID).
				Delete(&domain.DrawingCommand{}).Error; err != nil {
				return fmt.Errorf("gorm: truncate log of room '%s': %w", code, err)
			}
		}
		return nil
	})
}

// Log 实现读取房间的完整有序日志
func (r *GormRoomRepository) Log(ctx context.Context, code string) ([]domain.DrawingCommand, error) {
	room, err := r.FindByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	commands := []domain.DrawingCommand{}
	if err := r.db.WithContext(ctx).Where("room_id = ?", room.ID).
		Order("id ASC").Find(&commands).Error; err != nil {
		return nil, fmt.Errorf("gorm: load log of room '%s': %w", code, err)
	}
	return commands, nil
}

// CountCommands 实现统计房间日志条目数量
func (r *GormRoomRepository) CountCommands(ctx context.Context, code string) (int64, error) {
	room, err := r.FindByCode(ctx, code)
	if err != nil {
		return 0, err
	}
	var count int64
	if err := r.db.WithContext(ctx).Model(&domain.DrawingCommand{}).
		Where("room_id = ?", room.ID).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("gorm: count commands of room '%s': %w", code, err)
	}
	return count, nil
}

// TouchActivity 实现更新房间最后活跃时间
func (r *GormRoomRepository) TouchActivity(ctx context.Context, code string, at time.Time) error {
	result := r.db.WithContext(ctx).Model(&domain.Room{}).
		Where("code = ?", code).Update("last_activity", at)
	if result.Error != nil {
		return fmt.Errorf("gorm: touch room '%s': %w", code, result.Error)
	}
	if result.RowsAffected == 0 {
		return repository.ErrRoomNotFound
	}
	return nil
}

// DeleteInactiveBefore 实现硬删除不活跃房间及其全部日志
func (r *GormRoomRepository) DeleteInactiveBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	var removed int64
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var roomIDs []uint
		if err := tx.Model(&domain.Room{}).Where("last_activity < ?", cutoff).
			Pluck("id", &roomIDs).Error; err != nil {
			return fmt.Errorf("gorm: find inactive rooms: %w", err)
		}
		if len(roomIDs) == 0 {
			return nil
		}
		if err := tx.Where("room_id IN ?", roomIDs).Delete(&domain.DrawingCommand{}).Error; err != nil {
			return fmt.Errorf("gorm: delete logs of inactive rooms: %w", err)
		}
		result := tx.Where("id IN ?", roomIDs).Delete(&domain.Room{})
		if result.Error != nil {
			return fmt.Errorf("gorm: delete inactive rooms: %w", result.Error)
		}
		removed = result.RowsAffected
		return nil
	})
	return removed, err
}
