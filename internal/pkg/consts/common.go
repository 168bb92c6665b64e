package consts

import "time"

const (
	// MsgTypeText 目前唯一的消息类型
	MsgTypeText = "text"

	// PreviewMaxRunes 会话列表与通知里的正文预览长度
	PreviewMaxRunes = 64

	// UnreadCacheTTL 全局未读数缓存的陈旧上限
	UnreadCacheTTL = 30 * time.Second
)
