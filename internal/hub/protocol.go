package hub

import (
	"encoding/json"
	"fmt"
	"time"

	"collaborative-whiteboard/internal/domain"
)

// 实时通道的事件词汇表。每个会话由一个分发函数按类型匹配处理，
// 对应关系见 Hub.Dispatch。
const (
	// 客户端 → 服务端
	EventJoin           = "join"
	EventCursorPosition = "cursor-position"
	EventStrokeStart    = "stroke-start"
	EventStrokeMove     = "stroke-move"
	EventStrokeEnd      = "stroke-end"
	EventClear          = "clear"

	// 服务端 → 客户端（EventCursorPosition 等双向事件复用同名常量）
	EventInitLog         = "init-log"
	EventMembershipCount = "membership-count"
	EventCursorColor     = "cursor-color"
	EventError           = "error"
)

// Envelope 是 WebSocket 上传输的统一消息信封。
type Envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// --- 客户端 → 服务端 的载荷 ---

type JoinPayload struct {
	RoomCode string `json:"roomCode"`
}

type CursorPayload struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

type StrokeStartPayload struct {
	Color string  `json:"color"`
	Width float64 `json:"width"`
}

// StrokeMovePayload 接受单点或批量两种形态。
type StrokeMovePayload struct {
	Point  *domain.Point  `json:"point,omitempty"`
	Points []domain.Point `json:"points,omitempty"`
}

// Normalize 将载荷规范化为点批次。两种形态都不存在时返回 false（畸形载荷）。
func (p *StrokeMovePayload) Normalize() ([]domain.Point, bool) {
	if len(p.Points) > 0 {
		return p.Points, true
	}
	if p.Point != nil {
		return []domain.Point{*p.Point}, true
	}
	return nil, false
}

type StrokeEndPayload struct {
	Points []domain.Point `json:"points"`
	Color  string         `json:"color"`
	Width  float64        `json:"width"`
}

// --- 服务端 → 客户端 的载荷 ---

type CursorBroadcast struct {
	SessionID string  `json:"sessionId"`
	Color     string  `json:"color"`
	X         float64 `json:"x"`
	Y         float64 `json:"y"`
}

type StrokeStartBroadcast struct {
	SessionID string  `json:"sessionId"`
	Color     string  `json:"color"`
	Width     float64 `json:"width"`
}

type StrokeMoveBroadcast struct {
	SessionID string         `json:"sessionId"`
	Points    []domain.Point `json:"points"`
}

type StrokeEndBroadcast struct {
	SessionID string         `json:"sessionId"`
	Points    []domain.Point `json:"points"`
	Color     string         `json:"color"`
	Width     float64        `json:"width"`
	Timestamp time.Time      `json:"timestamp"`
}

type ClearBroadcast struct {
	SessionID string `json:"sessionId"`
}

type MembershipCount struct {
	Count int `json:"count"`
}

type CursorColor struct {
	SessionID string `json:"sessionId"`
	Color     string `json:"color"`
}

// CommandPayload 是持久化命令在线上的表示：data 展开为 JSON 对象而非转义字符串。
type CommandPayload struct {
	Type      string          `json:"type"`
	Data      json.RawMessage `json:"data"`
	Timestamp time.Time       `json:"timestamp"`
}

type InitLog struct {
	Commands []CommandPayload `json:"commands"`
}

type ErrorMessage struct {
	Message string `json:"message"`
}

func commandPayloads(commands []domain.DrawingCommand) []CommandPayload {
	out := make([]CommandPayload, 0, len(commands))
	for _, cmd := range commands {
		data := cmd.Data
		if data == "" {
			data = "{}"
		}
		out = append(out, CommandPayload{
			Type:      cmd.Type,
			Data:      json.RawMessage(data),
			Timestamp: cmd.Timestamp,
		})
	}
	return out
}

// marshalEvent 将事件类型和载荷编码为信封字节。
func marshalEvent(eventType string, payload any) ([]byte, error) {
	var data json.RawMessage
	if payload != nil {
		bytes, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal %s payload: %w", eventType, err)
		}
		data = bytes
	}
	return json.Marshal(Envelope{Type: eventType, Data: data})
}
