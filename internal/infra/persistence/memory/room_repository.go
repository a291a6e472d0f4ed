package memorypersistence

import (
	"context"
	"sync"
	"time"

	"collaborative-whiteboard/internal/domain"
	"collaborative-whiteboard/internal/repository"
)

// MemoryRoomRepository 是 RoomRepository 接口的进程内实现，
// 用于本地开发和测试，不依赖外部数据库。
type MemoryRoomRepository struct {
	mu     sync.Mutex
	nextID uint
	rooms  map[string]*memoryRoom // 按房间码索引
}

type memoryRoom struct {
	room domain.Room
	log  []domain.DrawingCommand
}

// NewMemoryRoomRepository 创建 MemoryRoomRepository 实例
func NewMemoryRoomRepository() *MemoryRoomRepository {
	return &MemoryRoomRepository{rooms: make(map[string]*memoryRoom)}
}

// CreateIfAbsent 实现幂等创建；互斥锁保证并发创建者收敛到同一条记录。
func (r *MemoryRoomRepository) CreateIfAbsent(ctx context.Context, code string) (*domain.Room, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if entry, ok := r.rooms[code]; ok {
		room := entry.room
		return &room, nil
	}
	r.nextID++
	now := time.Now()
	entry := &memoryRoom{room: domain.Room{ID: r.nextID, Code: code, CreatedAt: now, LastActivity: now}}
	r.rooms[code] = entry
	room := entry.room
	return &room, nil
}

func (r *MemoryRoomRepository) FindByCode(ctx context.Context, code string) (*domain.Room, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.rooms[code]
	if !ok {
		return nil, repository.ErrRoomNotFound
	}
	room := entry.room
	return &room, nil
}

func (r *MemoryRoomRepository) Append(ctx context.Context, code string, cmd domain.DrawingCommand) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.rooms[code]
	if !ok {
		return repository.ErrRoomNotFound
	}
	r.nextID++
	cmd.ID = r.nextID
	cmd.RoomID = entry.room.ID
	entry.log = append(entry.log, cmd)
	entry.room.LastActivity = cmd.Timestamp
	if len(entry.log) > repository.MaxLogEntries {
		// 淘汰最旧的条目，只保留最近的 KeepLogEntries 条
		trimmed := make([]domain.DrawingCommand, repository.KeepLogEntries)
		copy(trimmed, entry.log[len(entry.log)-repository.KeepLogEntries:])
		entry.log = trimmed
	}
	return nil
}

func (r *MemoryRoomRepository) Log(ctx context.Context, code string) ([]domain.DrawingCommand, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.rooms[code]
	if !ok {
		return nil, repository.ErrRoomNotFound
	}
	out := make([]domain.DrawingCommand, len(entry.log))
	copy(out, entry.log)
	return out, nil
}

func (r *MemoryRoomRepository) CountCommands(ctx context.Context, code string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.rooms[code]
	if !ok {
		return 0, repository.ErrRoomNotFound
	}
	return int64(len(entry.log)), nil
}

func (r *MemoryRoomRepository) TouchActivity(ctx context.Context, code string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.rooms[code]
	if !ok {
		return repository.ErrRoomNotFound
	}
	entry.room.LastActivity = at
	return nil
}

func (r *MemoryRoomRepository) DeleteInactiveBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var removed int64
	for code, entry := range r.rooms {
		if entry.room.LastActivity.Before(cutoff) {
			delete(r.rooms, code)
			removed++
		}
	}
	return removed, nil
}
