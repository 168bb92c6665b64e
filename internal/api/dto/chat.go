package dto

// CreateConversationReq 发起会话请求体。对方的姓名与角色由调用方
// 从用户目录预先解析好带过来，本服务不做查询
type CreateConversationReq struct {
	TargetUserID string `json:"target_user_id" binding:"required"`
	TargetName   string `json:"target_name" binding:"required"`
	TargetRole   string `json:"target_role" binding:"required"`
}

// SendMessageReq 发送消息请求体
type SendMessageReq struct {
	ConversationID string `json:"conversation_id" binding:"required"`
	Body           string `json:"body" binding:"required"`
	MsgType        string `json:"msg_type"` // 缺省 text
}

// MarkReadReq 标记为已读请求
type MarkReadReq struct {
	ConversationID string `json:"conversation_id" binding:"required"`
}

// MessageDTO 消息明细响应
type MessageDTO struct {
	ID             string `json:"id"`
	ConversationID string `json:"conversation_id"`
	SenderID       string `json:"sender_id"`
	SenderName     string `json:"sender_name"`
	MsgType        string `json:"msg_type"`
	Body           string `json:"body"`
	Seq            uint64 `json:"seq"`
	Timestamp      int64  `json:"timestamp"`
	Read           bool   `json:"read"`
}

// ParticipantDTO 会话参与者快照
type ParticipantDTO struct {
	UserID      string `json:"user_id"`
	DisplayName string `json:"display_name"`
	Role        string `json:"role"`
}

// ConversationDTO 会话列表项响应
type ConversationDTO struct {
	ConversationID string           `json:"conversation_id"`
	Peer           *ParticipantDTO  `json:"peer,omitempty"`
	Participants   []ParticipantDTO `json:"participants,omitempty"`
	LastMessage    *MessageDTO      `json:"last_message"` // 无消息时为 null
	UnreadCount    int64            `json:"unread_count"`
	CreatedAt      int64            `json:"created_at"`
	UpdatedAt      int64            `json:"updated_at"`
}

// SendMessageResp 发送结果
type SendMessageResp struct {
	MessageID string `json:"message_id"`
}

// UnreadTotalDTO 全局未读数
type UnreadTotalDTO struct {
	Total int64 `json:"total"`
}
