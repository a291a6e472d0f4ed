package service

import "errors"

// 业务层错误。Handler 据此决定对客户端的响应方式。
var (
	// ErrInvalidRoomCode 表示房间码不满足 6-8 位字母数字的格式要求
	ErrInvalidRoomCode = errors.New("service: invalid room code")
	// ErrRoomNotFound 表示请求的房间不存在
	ErrRoomNotFound = errors.New("service: room not found")
	// ErrInternalServer 表示不应暴露细节的内部错误
	ErrInternalServer = errors.New("service: internal server error")
)
