package domain

import "time"

// Room 表示一个共享画板房间。
type Room struct {
	ID           uint      `gorm:"primaryKey"`                   // 房间唯一标识符 (主键)
	Code         string    `gorm:"uniqueIndex;size:16;not null"` // 房间码 (6-8 位字母数字，统一小写，全局唯一)
	CreatedAt    time.Time `gorm:"autoCreateTime"`               // 房间创建时间 (GORM 自动填充)
	LastActivity time.Time `gorm:"index;not null"`               // 最后活跃时间，清理任务据此删除不活跃房间
}
