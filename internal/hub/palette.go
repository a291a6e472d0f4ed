package hub

import "math/rand"

// 光标颜色调色板。同一房间内的在线会话优先取未被占用的颜色，
// 调色板耗尽后随机复用。
var cursorPalette = []string{
	"#f87171", "#60a5fa", "#34d399", "#fbbf24",
	"#a78bfa", "#fb7185", "#4ade80", "#38bdf8",
}

// pickColor 从调色板中挑选一个未被 used（sessionID → 颜色）占用的颜色。
func pickColor(used map[string]string) string {
	taken := make(map[string]bool, len(used))
	for _, color := range used {
		taken[color] = true
	}
	for _, color := range cursorPalette {
		if !taken[color] {
			return color
		}
	}
	return cursorPalette[rand.Intn(len(cursorPalette))]
}
