// Package mocks 提供 repository 接口的 testify Mock 实现，供单元测试使用。
package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"collaborative-whiteboard/internal/domain"
)

// RoomRepository 是 repository.RoomRepository 的 Mock 实现
type RoomRepository struct {
	mock.Mock
}

func (m *RoomRepository) CreateIfAbsent(ctx context.Context, code string) (*domain.Room, error) {
	args := m.Called(ctx, code)
	var room *domain.Room
	if args.Get(0) != nil {
		room = args.Get(0).(*domain.Room)
	}
	return room, args.Error(1)
}

func (m *RoomRepository) FindByCode(ctx context.Context, code string) (*domain.Room, error) {
	args := m.Called(ctx, code)
	var room *domain.Room
	if args.Get(0) != nil {
		room = args.Get(0).(*domain.Room)
	}
	return room, args.Error(1)
}

func (m *RoomRepository) Append(ctx context.Context, code string, cmd domain.DrawingCommand) error {
	args := m.Called(ctx, code, cmd)
	return args.Error(0)
}

func (m *RoomRepository) Log(ctx context.Context, code string) ([]domain.DrawingCommand, error) {
	args := m.Called(ctx, code)
	var commands []domain.DrawingCommand
	if args.Get(0) != nil {
		commands = args.Get(0).([]domain.DrawingCommand)
	}
	return commands, args.Error(1)
}

func (m *RoomRepository) CountCommands(ctx context.Context, code string) (int64, error) {
	args := m.Called(ctx, code)
	return args.Get(0).(int64), args.Error(1)
}

func (m *RoomRepository) TouchActivity(ctx context.Context, code string, at time.Time) error {
	args := m.Called(ctx, code, at)
	return args.Error(0)
}

func (m *RoomRepository) DeleteInactiveBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	args := m.Called(ctx, cutoff)
	return args.Get(0).(int64), args.Error(1)
}
