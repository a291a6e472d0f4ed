package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// 绘图命令类型。日志是 append-only 的：clear 不删除之前的条目，
// 它本身就是一条指示回放方重置画面的记录。
const (
	CommandStroke = "stroke"
	CommandClear  = "clear"
)

// Point 表示画布上的一个坐标点。
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// StrokeData 定义了 "stroke" 类型命令的具体数据：
// 一条完成的笔画的全部点序列、颜色和笔宽。
type StrokeData struct {
	Points []Point `json:"points"`
	Color  string  `json:"color"`
	Width  float64 `json:"width"`
}

// DrawingCommand 表示房间日志中的一条持久化绘图命令。
// 命令追加后不再被修改。
type DrawingCommand struct {
	ID        uint      `gorm:"primaryKey"`       // 命令记录的唯一标识符 (主键)
	RoomID    uint      `gorm:"index;not null"`   // 命令所属的房间 ID (外键关联 Room.ID, 添加索引)
	Type      string    `gorm:"size:16;not null"` // 命令类型 ("stroke" 或 "clear")
	Data      string    `gorm:"type:text"`        // 命令的具体数据，JSON 字符串 (clear 为空)
	Timestamp time.Time `gorm:"index;not null"`   // 服务端在追加时分配的时间戳
}

// IsClear 报告该命令是否为画布重置命令。
func (c *DrawingCommand) IsClear() bool {
	return c.Type == CommandClear
}

// ParseStroke 将命令的 Data 字段 (JSON 字符串) 解析为 StrokeData。
func (c *DrawingCommand) ParseStroke() (StrokeData, error) {
	var data StrokeData
	if c.Type != CommandStroke {
		return data, fmt.Errorf("command type %q carries no stroke data", c.Type)
	}
	if c.Data == "" || c.Data == "null" {
		return data, fmt.Errorf("stroke command %d has empty data", c.ID)
	}
	if err := json.Unmarshal([]byte(c.Data), &data); err != nil {
		return data, fmt.Errorf("failed to unmarshal stroke data: %w", err)
	}
	return data, nil
}

// SetStroke 将 StrokeData 序列化为 JSON 字符串并写入 Data 字段。
func (c *DrawingCommand) SetStroke(data StrokeData) error {
	bytes, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal stroke data: %w", err)
	}
	c.Data = string(bytes)
	return nil
}
