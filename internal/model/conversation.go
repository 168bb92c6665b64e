package model

import (
	"strings"
	"time"
)

// PeerKeySep 会话 ID 分隔符，用户 ID 中不允许出现
const PeerKeySep = "|"

// Conversation 会话主表，主键即由双方 ID 推导出的会话标识
type Conversation struct {
	ID             string    `gorm:"primaryKey;type:varchar(160)" json:"id"`
	MaxMsgSeq      uint64    `gorm:"not null;default:0" json:"maxMsgSeq"` // 序列号
	LastMsgContent string    `gorm:"type:varchar(255)" json:"lastMsgContent"`
	LastMsgType    string    `gorm:"type:varchar(16);not null;default:'text'" json:"lastMsgType"`
	LastSenderID   string    `gorm:"type:varchar(64)" json:"lastSenderId"`
	LastSenderName string    `gorm:"type:varchar(64)" json:"lastSenderName"`
	LastMsgTS      int64     `gorm:"not null;default:0;index" json:"lastMsgTs"` // 毫秒，单调递增
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"` // 仅在消息写入时前移
}

func (Conversation) TableName() string { return "conversations" }

// ConversationMember 会话成员表，is_visible 即用户会话列表的保留标记
type ConversationMember struct {
	ID             uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	ConversationID string    `gorm:"uniqueIndex:idx_conv_user;type:varchar(160)" json:"conversationId"`
	UserID         string    `gorm:"uniqueIndex:idx_conv_user;index;type:varchar(64)" json:"userId"`
	DisplayName    string    `gorm:"type:varchar(64)" json:"displayName"` // 创建时的快照，不回填
	Role           string    `gorm:"type:varchar(32)" json:"role"`
	IsVisible      int8      `gorm:"not null;default:1;index" json:"isVisible"` // 会话列表可见性
	JoinedAt       time.Time `json:"joinedAt"`

	Conversation Conversation `gorm:"foreignKey:ConversationID;references:ID" json:"conversation"`
}

func (ConversationMember) TableName() string { return "conversation_members" }

// Participant 外部身份服务预先解析好的参与者信息
type Participant struct {
	UserID      string
	DisplayName string
	Role        string
}

// ConversationKey 由无序用户对推导会话 ID：字典序排序后拼接
func ConversationKey(a, b string) string {
	if a > b {
		a, b = b, a
	}
	return a + PeerKeySep + b
}

// ValidUserID 用户 ID 非空且不含分隔符，保证推导结果可逆
func ValidUserID(id string) bool {
	return id != "" && !strings.Contains(id, PeerKeySep)
}

// PeerOf 从会话 ID 中解析出对方用户 ID
func PeerOf(conversationID, selfID string) (string, bool) {
	a, b, ok := strings.Cut(conversationID, PeerKeySep)
	if !ok {
		return "", false
	}
	switch selfID {
	case a:
		return b, true
	case b:
		return a, true
	}
	return "", false
}
