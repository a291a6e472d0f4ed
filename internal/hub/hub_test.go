package hub

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"collaborative-whiteboard/internal/domain"
	memorypersistence "collaborative-whiteboard/internal/infra/persistence/memory"
	"collaborative-whiteboard/internal/service"
)

// 测试直接驱动 Dispatch，不经过真实的 WebSocket 连接：
// Client 的发送队列即是对端视角下收到的事件流。

func newTestHub() (*Hub, *service.RoomService) {
	roomService := service.NewRoomService(memorypersistence.NewMemoryRoomRepository())
	return NewHub(roomService), roomService
}

func newTestClient(h *Hub) *Client {
	return &Client{hub: h, sessionID: uuid.NewString(), send: make(chan []byte, 256)}
}

func dispatch(t *testing.T, h *Hub, c *Client, eventType string, payload any) {
	t.Helper()
	msg, err := marshalEvent(eventType, payload)
	require.NoError(t, err)
	h.Dispatch(c, msg)
}

func join(t *testing.T, h *Hub, c *Client, code string) {
	t.Helper()
	dispatch(t, h, c, EventJoin, JoinPayload{RoomCode: code})
}

func drain(t *testing.T, c *Client) []Envelope {
	t.Helper()
	var events []Envelope
	for {
		select {
		case msg := <-c.send:
			var env Envelope
			require.NoError(t, json.Unmarshal(msg, &env))
			events = append(events, env)
		default:
			return events
		}
	}
}

func eventsOfType(events []Envelope, eventType string) []Envelope {
	var out []Envelope
	for _, env := range events {
		if env.Type == eventType {
			out = append(out, env)
		}
	}
	return out
}

func decodePayload[T any](t *testing.T, env Envelope) T {
	t.Helper()
	var payload T
	require.NoError(t, json.Unmarshal(env.Data, &payload))
	return payload
}

// --- join ---

func TestJoin_SendsLogColorAndCounts(t *testing.T) {
	h, _ := newTestHub()
	a := newTestClient(h)

	join(t, h, a, "ABC123") // 大写房间码应被规范化

	events := drain(t, a)
	require.NotEmpty(t, events)
	assert.Equal(t, EventInitLog, events[0].Type, "日志必须先于成员数到达")

	initLog := decodePayload[InitLog](t, events[0])
	assert.Empty(t, initLog.Commands, "新房间的日志为空")

	colors := eventsOfType(events, EventCursorColor)
	require.Len(t, colors, 1)
	assert.NotEmpty(t, decodePayload[CursorColor](t, colors[0]).Color)

	counts := eventsOfType(events, EventMembershipCount)
	require.Len(t, counts, 2, "先发给本人，再收到广播")
	for _, env := range counts {
		assert.Equal(t, 1, decodePayload[MembershipCount](t, env).Count)
	}
}

func TestJoin_InvalidRoomCodeIsSilentlyIgnored(t *testing.T) {
	h, _ := newTestHub()
	a := newTestClient(h)

	for _, code := range []string{"ab", "toolongcode1", "abc 12", ""} {
		join(t, h, a, code)
	}

	assert.Empty(t, drain(t, a))
	assert.Nil(t, a.room)
	h.mu.RLock()
	assert.Empty(t, h.rooms, "非法房间码不应创建任何房间")
	h.mu.RUnlock()
}

func TestJoin_SecondSessionSeesIdenticalLog(t *testing.T) {
	h, roomService := newTestHub()
	a := newTestClient(h)
	b := newTestClient(h)

	join(t, h, a, "abc123")
	dispatch(t, h, a, EventStrokeEnd, StrokeEndPayload{
		Points: []domain.Point{{X: 1, Y: 1}, {X: 2, Y: 2}},
		Color:  "#60a5fa",
		Width:  2,
	})
	drain(t, a)

	join(t, h, b, "abc123")
	bEvents := drain(t, b)
	initLog := decodePayload[InitLog](t, eventsOfType(bEvents, EventInitLog)[0])

	commands, err := roomService.JoinRoom(context.Background(), "abc123")
	require.NoError(t, err)
	require.Len(t, initLog.Commands, len(commands), "独立会话读到的日志应与房间日志一致")
	for i, cmd := range commands {
		assert.Equal(t, cmd.Type, initLog.Commands[i].Type)
	}
}

func TestJoin_SwitchingRoomsUpdatesOldRoomCount(t *testing.T) {
	h, _ := newTestHub()
	a := newTestClient(h)
	b := newTestClient(h)

	join(t, h, a, "room01")
	join(t, h, b, "room01")
	drain(t, a)
	drain(t, b)

	join(t, h, b, "room02")

	aEvents := drain(t, a)
	counts := eventsOfType(aEvents, EventMembershipCount)
	require.NotEmpty(t, counts, "旧房间必须收到离开后的成员数")
	assert.Equal(t, 1, decodePayload[MembershipCount](t, counts[len(counts)-1]).Count)

	bEvents := drain(t, b)
	require.NotEmpty(t, eventsOfType(bEvents, EventInitLog))
	assert.Equal(t, "room02", b.room.code)
}

func TestJoin_SameRoomTwiceIsNoop(t *testing.T) {
	h, _ := newTestHub()
	a := newTestClient(h)

	join(t, h, a, "room01")
	drain(t, a)
	join(t, h, a, "room01")

	assert.Empty(t, drain(t, a), "重复加入当前房间不应产生事件")
}

// --- 笔画与清除场景 ---

func TestScenario_StrokeIsRelayedLiveAndReplayedFromLog(t *testing.T) {
	h, _ := newTestHub()
	a := newTestClient(h)
	b := newTestClient(h)

	join(t, h, a, "abc123")
	join(t, h, b, "abc123")
	drain(t, a)
	drain(t, b)

	dispatch(t, h, a, EventStrokeStart, StrokeStartPayload{Color: "#ff0000", Width: 4})
	for i := 0; i < 3; i++ {
		dispatch(t, h, a, EventStrokeMove, StrokeMovePayload{
			Point: &domain.Point{X: float64(i), Y: float64(i * 2)},
		})
	}
	points := []domain.Point{{X: 0, Y: 0}, {X: 1, Y: 2}, {X: 2, Y: 4}}
	dispatch(t, h, a, EventStrokeEnd, StrokeEndPayload{Points: points, Color: "#ff0000", Width: 4})

	// B 实时收到 start、三次 move 和 end
	bEvents := drain(t, b)
	starts := eventsOfType(bEvents, EventStrokeStart)
	require.Len(t, starts, 1)
	start := decodePayload[StrokeStartBroadcast](t, starts[0])
	assert.Equal(t, a.sessionID, start.SessionID)
	assert.Equal(t, "#ff0000", start.Color)

	moves := eventsOfType(bEvents, EventStrokeMove)
	require.Len(t, moves, 3)
	for _, env := range moves {
		move := decodePayload[StrokeMoveBroadcast](t, env)
		assert.Len(t, move.Points, 1, "单点形态规范化为单元素批次")
	}

	ends := eventsOfType(bEvents, EventStrokeEnd)
	require.Len(t, ends, 1)
	end := decodePayload[StrokeEndBroadcast](t, ends[0])
	assert.Equal(t, points, end.Points)

	// A 自己不应收到任何回显
	assert.Empty(t, drain(t, a))

	// 之后加入的 C 通过 init-log 回放出同一条完成的笔画
	c := newTestClient(h)
	join(t, h, c, "abc123")
	cEvents := drain(t, c)
	initLog := decodePayload[InitLog](t, eventsOfType(cEvents, EventInitLog)[0])
	require.Len(t, initLog.Commands, 1)
	assert.Equal(t, domain.CommandStroke, initLog.Commands[0].Type)

	var stroke domain.StrokeData
	require.NoError(t, json.Unmarshal(initLog.Commands[0].Data, &stroke))
	assert.Equal(t, points, stroke.Points)
	assert.Equal(t, "#ff0000", stroke.Color)
	assert.Equal(t, float64(4), stroke.Width)
}

func TestScenario_ClearIsRelayedAndAppendedToLogTail(t *testing.T) {
	h, roomService := newTestHub()
	a := newTestClient(h)
	b := newTestClient(h)

	join(t, h, a, "abc123")
	join(t, h, b, "abc123")
	drain(t, a)
	drain(t, b)

	dispatch(t, h, a, EventStrokeEnd, StrokeEndPayload{
		Points: []domain.Point{{X: 1, Y: 1}}, Color: "#34d399", Width: 1,
	})
	dispatch(t, h, a, EventClear, nil)

	bEvents := drain(t, b)
	require.Len(t, eventsOfType(bEvents, EventClear), 1, "已在房间的会话应实时收到 clear")

	commands, err := roomService.JoinRoom(context.Background(), "abc123")
	require.NoError(t, err)
	require.Len(t, commands, 2, "clear 不删除之前的条目")
	assert.Equal(t, domain.CommandStroke, commands[0].Type)
	assert.True(t, commands[1].IsClear(), "日志末尾应是 clear 条目")
}

func TestStrokeMove_MalformedPayloadIsDropped(t *testing.T) {
	h, _ := newTestHub()
	a := newTestClient(h)
	b := newTestClient(h)

	join(t, h, a, "abc123")
	join(t, h, b, "abc123")
	drain(t, a)
	drain(t, b)

	// 单点和批量形态都缺失：静默丢弃，不广播也不报错
	h.Dispatch(a, []byte(`{"type":"stroke-move","data":{}}`))

	assert.Empty(t, drain(t, b))
}

func TestStrokeMove_BatchFormIsRelayedAsIs(t *testing.T) {
	h, _ := newTestHub()
	a := newTestClient(h)
	b := newTestClient(h)

	join(t, h, a, "abc123")
	join(t, h, b, "abc123")
	drain(t, a)
	drain(t, b)

	batch := []domain.Point{{X: 1, Y: 1}, {X: 2, Y: 2}, {X: 3, Y: 3}}
	dispatch(t, h, a, EventStrokeMove, StrokeMovePayload{Points: batch})

	moves := eventsOfType(drain(t, b), EventStrokeMove)
	require.Len(t, moves, 1)
	assert.Equal(t, batch, decodePayload[StrokeMoveBroadcast](t, moves[0]).Points)
}

func TestEventsWithoutRoomAreNoops(t *testing.T) {
	h, _ := newTestHub()
	a := newTestClient(h)

	dispatch(t, h, a, EventCursorPosition, CursorPayload{X: 1, Y: 2})
	dispatch(t, h, a, EventStrokeStart, StrokeStartPayload{Color: "#fff", Width: 1})
	dispatch(t, h, a, EventStrokeEnd, StrokeEndPayload{Color: "#fff", Width: 1})
	dispatch(t, h, a, EventClear, nil)

	assert.Empty(t, drain(t, a))
}

// --- 光标 ---

func TestCursorPosition_RelayedWithAssignedColor(t *testing.T) {
	h, _ := newTestHub()
	a := newTestClient(h)
	b := newTestClient(h)

	join(t, h, a, "abc123")
	aColor := decodePayload[CursorColor](t, eventsOfType(drain(t, a), EventCursorColor)[0]).Color
	join(t, h, b, "abc123")
	drain(t, a)
	drain(t, b)

	dispatch(t, h, a, EventCursorPosition, CursorPayload{X: 10, Y: 20})

	cursors := eventsOfType(drain(t, b), EventCursorPosition)
	require.Len(t, cursors, 1)
	cursor := decodePayload[CursorBroadcast](t, cursors[0])
	assert.Equal(t, a.sessionID, cursor.SessionID)
	assert.Equal(t, aColor, cursor.Color)
	assert.Equal(t, float64(10), cursor.X)
	assert.Equal(t, float64(20), cursor.Y)

	assert.Empty(t, drain(t, a), "光标事件不回显给发送者")
}

// --- 颜色分配 ---

func TestColors_DistinctUntilPaletteExhausted(t *testing.T) {
	h, _ := newTestHub()
	seen := make(map[string]bool)

	for i := 0; i < len(cursorPalette); i++ {
		c := newTestClient(h)
		join(t, h, c, "abc123")
		color := decodePayload[CursorColor](t, eventsOfType(drain(t, c), EventCursorColor)[0]).Color
		assert.False(t, seen[color], "调色板未耗尽前颜色不应重复: %s", color)
		seen[color] = true
	}

	// 第 9 个会话：调色板耗尽，随机复用
	extra := newTestClient(h)
	join(t, h, extra, "abc123")
	color := decodePayload[CursorColor](t, eventsOfType(drain(t, extra), EventCursorColor)[0]).Color
	assert.Contains(t, cursorPalette, color)
}

func TestColors_StableForSessionAndReleasedOnDisconnect(t *testing.T) {
	h, _ := newTestHub()
	a := newTestClient(h)
	b := newTestClient(h)

	join(t, h, a, "abc123")
	aColor := decodePayload[CursorColor](t, eventsOfType(drain(t, a), EventCursorColor)[0]).Color
	join(t, h, b, "abc123")
	drain(t, a)
	drain(t, b)

	// 会话存续期间颜色保持不变
	for i := 0; i < 3; i++ {
		dispatch(t, h, a, EventCursorPosition, CursorPayload{X: float64(i), Y: 0})
	}
	for _, env := range eventsOfType(drain(t, b), EventCursorPosition) {
		assert.Equal(t, aColor, decodePayload[CursorBroadcast](t, env).Color)
	}

	// 断开后颜色才被释放；first-available-wins 使下一个会话拿到它
	h.Disconnect(a)
	counts := eventsOfType(drain(t, b), EventMembershipCount)
	require.NotEmpty(t, counts)
	assert.Equal(t, 1, decodePayload[MembershipCount](t, counts[len(counts)-1]).Count)

	c := newTestClient(h)
	join(t, h, c, "abc123")
	cColor := decodePayload[CursorColor](t, eventsOfType(drain(t, c), EventCursorColor)[0]).Color
	assert.Equal(t, aColor, cColor, "释放的颜色应按 first-available-wins 被复用")
}

func TestDisconnect_LastMemberRemovesRoomFromRegistry(t *testing.T) {
	h, _ := newTestHub()
	a := newTestClient(h)

	join(t, h, a, "abc123")
	h.Disconnect(a)

	h.mu.RLock()
	defer h.mu.RUnlock()
	assert.Empty(t, h.rooms, "空房间应从注册表摘除（持久化记录由清理任务负责）")
}

func TestRooms_AreIsolated(t *testing.T) {
	h, _ := newTestHub()
	a := newTestClient(h)
	b := newTestClient(h)

	join(t, h, a, "room01")
	join(t, h, b, "room02")
	drain(t, a)
	drain(t, b)

	dispatch(t, h, a, EventStrokeEnd, StrokeEndPayload{
		Points: []domain.Point{{X: 1, Y: 1}}, Color: "#fbbf24", Width: 2,
	})
	dispatch(t, h, a, EventClear, nil)

	assert.Empty(t, drain(t, b), "不同房间的事件互不可见")
}

func TestPickColor_FirstAvailableWins(t *testing.T) {
	used := map[string]string{}
	for i, want := range cursorPalette {
		got := pickColor(used)
		assert.Equal(t, want, got, "第 %d 个颜色应按调色板顺序分配", i)
		used[fmt.Sprintf("session-%d", i)] = got
	}
	assert.Contains(t, cursorPalette, pickColor(used), "耗尽后随机复用调色板内颜色")
}
